// Package types holds the values that cross stage boundaries in the face pipeline.
package types

import (
	"image"
	"time"
)

// Sentinel labels for results that do not name an identity.
const (
	LabelUnknown = "UNKNOWN"
	LabelNoFace  = "NO_FACE"
)

// Category selects one of the two staging areas.
type Category string

const (
	// CategoryKnown is the primary staging area every accepted crop is written to.
	CategoryKnown Category = "known"
	// CategoryUnknown holds the extra copy kept for faces nobody matched.
	CategoryUnknown Category = "unknown"
)

// BBox is an axis-aligned box in pixel coordinates, corners (X1,Y1) and (X2,Y2).
type BBox struct {
	X1 int `json:"x1"`
	Y1 int `json:"y1"`
	X2 int `json:"x2"`
	Y2 int `json:"y2"`
}

// Width returns X2-X1.
func (b BBox) Width() int { return b.X2 - b.X1 }

// Height returns Y2-Y1.
func (b BBox) Height() int { return b.Y2 - b.Y1 }

// Area returns the box area, or 0 for degenerate boxes.
func (b BBox) Area() int {
	if b.Width() <= 0 || b.Height() <= 0 {
		return 0
	}
	return b.Width() * b.Height()
}

// Rect converts the box to an image.Rectangle.
func (b BBox) Rect() image.Rectangle {
	return image.Rect(b.X1, b.Y1, b.X2, b.Y2)
}

// IoU calculates Intersection over Union between two boxes.
func IoU(a, b BBox) float64 {
	x1 := max(a.X1, b.X1)
	y1 := max(a.Y1, b.Y1)
	x2 := min(a.X2, b.X2)
	y2 := min(a.Y2, b.Y2)

	if x2 <= x1 || y2 <= y1 {
		return 0
	}

	intersection := float64((x2 - x1) * (y2 - y1))
	union := float64(a.Area()+b.Area()) - intersection
	if union <= 0 {
		return 0
	}

	return intersection / union
}

// Region is a candidate face reported by the detector.
type Region struct {
	Box        BBox    `json:"box"`
	Confidence float64 `json:"confidence"`
}

// RecognitionResult is the outcome of matching one face crop.
type RecognitionResult struct {
	FaceID     string    `json:"face_id"`
	Label      string    `json:"label"`
	Confidence float64   `json:"confidence"` // 0-100
	Timestamp  time.Time `json:"timestamp"`
	Box        BBox      `json:"box"`
}

// Known reports whether the result names an identity.
func (r RecognitionResult) Known() bool {
	return r.Label != "" && r.Label != LabelUnknown && r.Label != LabelNoFace
}

// CleanupRequest asks the staging area to drop the files of a processed face.
type CleanupRequest struct {
	FaceID   string
	Category Category
}
