package types

import (
	"math"
	"testing"
)

func TestIoU(t *testing.T) {
	tests := []struct {
		name     string
		a        BBox
		b        BBox
		expected float64
	}{
		{
			name:     "identical boxes",
			a:        BBox{0, 0, 10, 10},
			b:        BBox{0, 0, 10, 10},
			expected: 1.0,
		},
		{
			name:     "no overlap",
			a:        BBox{0, 0, 10, 10},
			b:        BBox{20, 20, 30, 30},
			expected: 0.0,
		},
		{
			name:     "touching edges",
			a:        BBox{0, 0, 10, 10},
			b:        BBox{10, 0, 20, 10},
			expected: 0.0,
		},
		{
			name:     "partial overlap",
			a:        BBox{0, 0, 10, 10},
			b:        BBox{5, 5, 15, 15},
			expected: 25.0 / 175.0,
		},
		{
			name:     "one inside other",
			a:        BBox{0, 0, 20, 20},
			b:        BBox{5, 5, 15, 15},
			expected: 100.0 / 400.0,
		},
		{
			name:     "degenerate boxes",
			a:        BBox{5, 5, 5, 5},
			b:        BBox{5, 5, 5, 5},
			expected: 0.0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := IoU(tt.a, tt.b)
			if math.Abs(got-tt.expected) > 1e-9 {
				t.Errorf("IoU(%v, %v) = %v, want %v", tt.a, tt.b, got, tt.expected)
			}
			if back := IoU(tt.b, tt.a); math.Abs(back-got) > 1e-9 {
				t.Errorf("IoU is not symmetric: %v vs %v", got, back)
			}
		})
	}
}

func TestRecognitionResult_Known(t *testing.T) {
	cases := map[string]bool{
		"alice":      true,
		LabelUnknown: false,
		LabelNoFace:  false,
		"":           false,
	}
	for label, want := range cases {
		r := RecognitionResult{Label: label}
		if got := r.Known(); got != want {
			t.Errorf("Known() for %q = %v, want %v", label, got, want)
		}
	}
}
