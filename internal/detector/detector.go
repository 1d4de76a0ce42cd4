// Package detector locates candidate face regions in frames.
package detector

import (
	"gocv.io/x/gocv"

	"github.com/ayusman/facewatch/internal/types"
)

// Detector defines the interface for face detection implementations.
type Detector interface {
	// Detect returns candidate regions in frame coordinates with their
	// confidence. Returns an empty slice if no faces are detected.
	Detect(frame *gocv.Mat) ([]types.Region, error)

	// Close releases any resources held by the detector.
	Close() error
}
