package detector

import (
	"gocv.io/x/gocv"

	"github.com/ayusman/facewatch/internal/pyservice"
	"github.com/ayusman/facewatch/internal/types"
)

// ServiceDetector implements Detector with a Python model process.
type ServiceDetector struct {
	svc *pyservice.Service
}

// NewServiceDetector prepares a detector backed by script, which is given
// the model path as its only argument. The process starts on first use.
func NewServiceDetector(script, modelPath string) (*ServiceDetector, error) {
	svc, err := pyservice.New(pyservice.Config{
		Name:   "detector",
		Script: script,
		Args:   []string{modelPath},
	})
	if err != nil {
		return nil, err
	}
	return &ServiceDetector{svc: svc}, nil
}

type jsonBox struct {
	BBox       []float64 `json:"bbox"`
	Confidence float64   `json:"confidence"`
}

type response struct {
	Boxes []jsonBox `json:"boxes"`
}

// Detect sends the frame to the model process.
func (d *ServiceDetector) Detect(frame *gocv.Mat) ([]types.Region, error) {
	var resp response
	if err := d.svc.CallImage(frame, &resp); err != nil {
		return nil, err
	}
	return resp.regions(), nil
}

// Close shuts down the model process.
func (d *ServiceDetector) Close() error {
	return d.svc.Close()
}

// regions converts the wire boxes, dropping malformed entries. Coordinates
// are truncated toward zero.
func (r response) regions() []types.Region {
	out := make([]types.Region, 0, len(r.Boxes))
	for _, b := range r.Boxes {
		if len(b.BBox) != 4 {
			continue
		}
		out = append(out, types.Region{
			Box: types.BBox{
				X1: int(b.BBox[0]),
				Y1: int(b.BBox[1]),
				X2: int(b.BBox[2]),
				Y2: int(b.BBox[3]),
			},
			Confidence: b.Confidence,
		})
	}
	return out
}
