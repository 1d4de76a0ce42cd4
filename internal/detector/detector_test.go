package detector

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/ayusman/facewatch/internal/types"
)

func TestResponse_Regions(t *testing.T) {
	raw := `{"boxes":[
		{"bbox":[10.7,20.2,110.9,140.0],"confidence":0.91},
		{"bbox":[1,2,3],"confidence":0.5},
		{"bbox":[0,0,50,50],"confidence":0.2}
	]}`

	var resp response
	if err := json.Unmarshal([]byte(raw), &resp); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}

	got := resp.regions()
	want := []types.Region{
		{Box: types.BBox{X1: 10, Y1: 20, X2: 110, Y2: 140}, Confidence: 0.91},
		{Box: types.BBox{X1: 0, Y1: 0, X2: 50, Y2: 50}, Confidence: 0.2},
	}

	if len(got) != len(want) {
		t.Fatalf("regions() returned %d regions, want %d", len(got), len(want))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("region %d = %+v, want %+v", i, got[i], want[i])
		}
	}
}

func TestResponse_Empty(t *testing.T) {
	var resp response
	if err := json.Unmarshal([]byte(`{"boxes":[]}`), &resp); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if got := resp.regions(); got == nil || len(got) != 0 {
		t.Errorf("regions() = %v, want empty non-nil slice", got)
	}
}

func TestMockDetector(t *testing.T) {
	m := NewMockDetector()
	regions := []types.Region{{Box: types.BBox{X1: 1, Y1: 1, X2: 5, Y2: 5}, Confidence: 0.7}}
	m.SetRegions(regions)

	got, err := m.Detect(nil)
	if err != nil {
		t.Fatalf("Detect() error = %v", err)
	}
	if len(got) != 1 || got[0] != regions[0] {
		t.Errorf("Detect() = %v", got)
	}

	// Returned slice is a copy
	got[0].Confidence = 0
	if again, _ := m.Detect(nil); again[0].Confidence != 0.7 {
		t.Error("mutating the result changed the mock's regions")
	}

	boom := errors.New("boom")
	m.SetError(boom)
	if _, err := m.Detect(nil); !errors.Is(err, boom) {
		t.Errorf("Detect() error = %v, want %v", err, boom)
	}
	if m.Calls() != 3 {
		t.Errorf("Calls() = %d, want 3", m.Calls())
	}
}
