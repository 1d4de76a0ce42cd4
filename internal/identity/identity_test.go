package identity

import (
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/ayusman/facewatch/internal/store"
)

const epsilon = 1e-6

func TestCosineSimilarity(t *testing.T) {
	tests := []struct {
		name string
		a, b []float32
		want float64
	}{
		{"identical", []float32{1, 2, 3}, []float32{1, 2, 3}, 1},
		{"scaled", []float32{1, 2, 3}, []float32{2, 4, 6}, 1},
		{"orthogonal", []float32{1, 0}, []float32{0, 1}, 0},
		{"opposite", []float32{1, 0}, []float32{-1, 0}, -1},
		{"zero norm", []float32{0, 0}, []float32{1, 1}, 0},
		{"length mismatch", []float32{1, 0}, []float32{1, 0, 0}, 0},
		{"empty", nil, nil, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := CosineSimilarity(tt.a, tt.b)
			if math.Abs(got-tt.want) > epsilon {
				t.Errorf("CosineSimilarity() = %v, want %v", got, tt.want)
			}
			if got < -1 || got > 1 {
				t.Errorf("similarity %v outside [-1, 1]", got)
			}
		})
	}
}

func TestFindBestMatch_GlobalMaximum(t *testing.T) {
	// "first" clears the threshold but "second" scores higher; the global
	// maximum must win even though it is scanned later.
	s := NewStore([]Record{
		{Name: "first", Descriptor: []float32{1, 1, 0}},
		{Name: "second", Descriptor: []float32{1, 0.1, 0}},
		{Name: "third", Descriptor: []float32{0, 0, 1}},
	})

	m, ok := s.FindBestMatch([]float32{1, 0, 0}, 0.5)
	if !ok {
		t.Fatal("expected a match")
	}
	if m.Name != "second" {
		t.Errorf("FindBestMatch() = %q, want %q", m.Name, "second")
	}
	want := CosineSimilarity([]float32{1, 0, 0}, []float32{1, 0.1, 0})
	if math.Abs(m.Similarity-want) > epsilon {
		t.Errorf("similarity = %v, want %v", m.Similarity, want)
	}
}

func TestFindBestMatch_BelowThreshold(t *testing.T) {
	s := NewStore([]Record{
		{Name: "alice", Descriptor: []float32{1, 0}},
	})

	if _, ok := s.FindBestMatch([]float32{0, 1}, 0.4); ok {
		t.Error("orthogonal descriptor should not match at threshold 0.4")
	}

	// Threshold is inclusive
	if _, ok := s.FindBestMatch([]float32{1, 0}, 1.0); !ok {
		t.Error("similarity equal to threshold should match")
	}
}

func TestFindBestMatch_TieKeepsFirst(t *testing.T) {
	s := NewStore([]Record{
		{Name: "a", Descriptor: []float32{1, 0}},
		{Name: "b", Descriptor: []float32{2, 0}},
	})

	m, ok := s.FindBestMatch([]float32{3, 0}, 0.1)
	if !ok || m.Name != "a" {
		t.Errorf("FindBestMatch() = %v, %v; want first scanned record", m, ok)
	}
}

func TestFindBestMatch_NegativeThreshold(t *testing.T) {
	s := NewStore([]Record{
		{Name: "away", Descriptor: []float32{-1, 0}},
		{Name: "further", Descriptor: []float32{-1, -0.5}},
	})

	m, ok := s.FindBestMatch([]float32{1, 0}, -2)
	if !ok {
		t.Fatal("expected match with threshold below every score")
	}
	if m.Name != "further" {
		t.Errorf("FindBestMatch() = %q, want the less negative score %q", m.Name, "further")
	}
}

func TestFindBestMatch_EmptyStoreAndDimensionMismatch(t *testing.T) {
	empty := NewStore(nil)
	if _, ok := empty.FindBestMatch([]float32{1, 0}, 0); ok {
		t.Error("empty store should never match")
	}

	s := NewStore([]Record{{Name: "alice", Descriptor: []float32{1, 0}}})
	if _, ok := s.FindBestMatch([]float32{1, 0, 0}, -1); ok {
		t.Error("descriptor of a different dimension should not match")
	}
}

func TestNewStore_DropsMismatchedDimensions(t *testing.T) {
	s := NewStore([]Record{
		{Name: "a", Descriptor: []float32{1, 0}},
		{Name: "b", Descriptor: []float32{1, 0, 0}},
		{Name: "c", Descriptor: nil},
		{Name: "d", Descriptor: []float32{0, 1}},
	})

	if s.Len() != 2 || s.Dim() != 2 {
		t.Errorf("Len()=%d Dim()=%d, want 2 and 2", s.Len(), s.Dim())
	}
	names := s.Names()
	if names[0] != "a" || names[1] != "d" {
		t.Errorf("Names() = %v, want [a d]", names)
	}
}

func TestLoad_JSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "face_embeddings.json")
	data := `{
		"bob":   {"mean_embedding": [0, 1, 0], "num_images": 4},
		"alice": {"mean_embedding": [1, 0, 0]}
	}`
	if err := os.WriteFile(path, []byte(data), 0o644); err != nil {
		t.Fatalf("write fixture: %v", err)
	}

	s, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if s.Len() != 2 {
		t.Fatalf("Len() = %d, want 2", s.Len())
	}
	if names := s.Names(); names[0] != "alice" {
		t.Errorf("records should be sorted by name, got %v", names)
	}

	m, ok := s.FindBestMatch([]float32{0, 0.9, 0.1}, 0.4)
	if !ok || m.Name != "bob" {
		t.Errorf("FindBestMatch() = %v, %v; want bob", m, ok)
	}
}

func TestLoad_FailuresYieldEmptyStore(t *testing.T) {
	dir := t.TempDir()
	corrupt := filepath.Join(dir, "corrupt.json")
	if err := os.WriteFile(corrupt, []byte("{not json"), 0o644); err != nil {
		t.Fatalf("write fixture: %v", err)
	}

	tests := []struct {
		name string
		path string
	}{
		{"missing json", filepath.Join(dir, "missing.json")},
		{"corrupt json", corrupt},
		{"missing database", filepath.Join(dir, "missing.db")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, err := Load(tt.path)
			if err == nil {
				t.Error("expected an error describing the failure")
			}
			if s == nil {
				t.Fatal("Load() must always return a usable store")
			}
			if _, ok := s.FindBestMatch([]float32{1, 0}, -1); ok {
				t.Error("empty store should never match")
			}
		})
	}

	if _, err := os.Stat(filepath.Join(dir, "missing.db")); !os.IsNotExist(err) {
		t.Error("loading a missing database must not create it")
	}
}

func TestLoad_Database(t *testing.T) {
	path := filepath.Join(t.TempDir(), "faces.db")
	st, err := store.New(path)
	if err != nil {
		t.Fatalf("store.New() error = %v", err)
	}
	if err := st.Identities().Create(&store.Identity{ID: "1", Name: "erin", MeanEmbedding: []float32{0.5, 0.5}}); err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	st.Close()

	s, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	m, ok := s.FindBestMatch([]float32{1, 1}, 0.99)
	if !ok || m.Name != "erin" {
		t.Errorf("FindBestMatch() = %v, %v; want erin", m, ok)
	}
}

func TestRefresh_PicksUpChangesAndDegrades(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ids.json")
	if err := WriteJSON(path, []Record{{Name: "alice", Descriptor: []float32{1, 0}}}); err != nil {
		t.Fatalf("WriteJSON() error = %v", err)
	}

	s, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if err := WriteJSON(path, []Record{
		{Name: "alice", Descriptor: []float32{1, 0}},
		{Name: "bob", Descriptor: []float32{0, 1}},
	}); err != nil {
		t.Fatalf("WriteJSON() error = %v", err)
	}
	if err := s.Refresh(); err != nil {
		t.Fatalf("Refresh() error = %v", err)
	}
	if s.Len() != 2 {
		t.Errorf("Len() after refresh = %d, want 2", s.Len())
	}

	if err := os.WriteFile(path, []byte("garbage"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	if err := s.Refresh(); err == nil {
		t.Error("expected error refreshing corrupt file")
	}
	if s.Len() != 0 {
		t.Errorf("Len() after failed refresh = %d, want 0", s.Len())
	}
}

func TestRefresh_NoSource(t *testing.T) {
	if err := NewStore(nil).Refresh(); err != ErrNoSource {
		t.Errorf("Refresh() error = %v, want ErrNoSource", err)
	}
}

func TestMean(t *testing.T) {
	mean, err := Mean([][]float32{{1, 0, 2}, {3, 2, 0}})
	if err != nil {
		t.Fatalf("Mean() error = %v", err)
	}
	want := []float32{2, 1, 1}
	for i := range want {
		if math.Abs(float64(mean[i]-want[i])) > epsilon {
			t.Errorf("mean[%d] = %v, want %v", i, mean[i], want[i])
		}
	}

	if _, err := Mean(nil); err == nil {
		t.Error("expected error for no samples")
	}
	if _, err := Mean([][]float32{{1, 2}, {1}}); err == nil {
		t.Error("expected error for mismatched dimensions")
	}
}
