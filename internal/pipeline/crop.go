package pipeline

import (
	"bytes"
	"fmt"
	"image"
	"sync/atomic"
	"time"

	"gocv.io/x/gocv"

	"github.com/ayusman/facewatch/internal/types"
)

const (
	// PadRatio is the fraction of the box size added on every side.
	PadRatio = 0.5
	// MinCropSide is the size each padded side must exceed.
	MinCropSide = 100
	// NormalizedSize is the side of the square crop handed to the embedder.
	NormalizedSize = 224
)

// PadAndGate grows box by PadRatio of its width and height on every side,
// clamps it to a frame of the given size and reports whether both sides of
// the result exceed MinCropSide.
func PadAndGate(box types.BBox, frameWidth, frameHeight int) (types.BBox, bool) {
	padX := int(float64(box.Width()) * PadRatio)
	padY := int(float64(box.Height()) * PadRatio)

	padded := types.BBox{
		X1: max(0, box.X1-padX),
		Y1: max(0, box.Y1-padY),
		X2: min(frameWidth, box.X2+padX),
		Y2: min(frameHeight, box.Y2+padY),
	}

	ok := padded.Width() > MinCropSide && padded.Height() > MinCropSide
	return padded, ok
}

// FaceCrop is one accepted face on its way to recognition. The crop owns
// its Mats; whoever holds it last calls Close.
type FaceCrop struct {
	ID         string
	Padded     gocv.Mat
	Normalized gocv.Mat
	Box        types.BBox
	CapturedAt time.Time
}

// Close releases the image buffers.
func (c *FaceCrop) Close() {
	c.Padded.Close()
	c.Normalized.Close()
}

// newFaceCrop copies the padded region out of frame and builds the
// normalized image from it.
func newFaceCrop(id string, frame *gocv.Mat, box, padded types.BBox, at time.Time) (*FaceCrop, error) {
	view := frame.Region(padded.Rect())
	defer view.Close()

	crop := &FaceCrop{
		ID:         id,
		Padded:     view.Clone(),
		Normalized: gocv.NewMat(),
		Box:        box,
		CapturedAt: at,
	}

	gocv.Resize(crop.Padded, &crop.Normalized, image.Pt(NormalizedSize, NormalizedSize), 0, 0, gocv.InterpolationLinear)
	if crop.Normalized.Empty() {
		crop.Close()
		return nil, fmt.Errorf("resize crop %s: empty result", id)
	}
	return crop, nil
}

// idGenerator hands out collision-free face ids.
type idGenerator struct {
	counter atomic.Uint64
}

func (g *idGenerator) next(at time.Time) string {
	return fmt.Sprintf("face_%d_%d", g.counter.Add(1), at.Unix())
}

// encodeJPEG returns a Go-owned copy of the JPEG encoding of m.
func encodeJPEG(m gocv.Mat) ([]byte, error) {
	buf, err := gocv.IMEncode(gocv.JPEGFileExt, m)
	if err != nil {
		return nil, err
	}
	defer buf.Close()
	return bytes.Clone(buf.GetBytes()), nil
}
