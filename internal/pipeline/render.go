package pipeline

import (
	"fmt"
	"image"
	"image/color"

	"gocv.io/x/gocv"

	"github.com/ayusman/facewatch/internal/config"
	"github.com/ayusman/facewatch/internal/staging"
	"github.com/ayusman/facewatch/internal/types"
)

// Status is the system panel drawn in the top-left corner on the text
// background color.
type Status struct {
	Queue   int
	Staging staging.Counts
}

var statusColor = color.RGBA{G: 255, A: 255}

// Render draws boxes, labels and the status line onto img.
func Render(img *gocv.Mat, annotations []Annotation, cfg *config.Snapshot, status Status) {
	display := cfg.Display
	colors := cfg.Colors

	for _, a := range annotations {
		if !a.Accepted && a.Label == "" {
			continue
		}

		boxColor := colors.UnknownBox.RGBA()
		if a.Label != "" && a.Label != types.LabelUnknown {
			boxColor = colors.KnownBox.RGBA()
		}
		if display.ShowBoundingBox {
			gocv.Rectangle(img, a.Box.Rect(), boxColor, display.BoxThickness)
		}
		if a.Label != "" {
			drawLabel(img, a, boxColor, cfg)
		}
	}

	gocv.Rectangle(img, image.Rect(0, 0, 330, 72), colors.TextBackground.RGBA(), -1)
	gocv.PutText(img, fmt.Sprintf("Queue: %d", status.Queue), image.Pt(10, 30),
		gocv.FontHersheySimplex, 0.7, statusColor, 2)
	gocv.PutText(img, fmt.Sprintf("Known: %d | Unknown: %d", status.Staging.Known, status.Staging.Unknown),
		image.Pt(10, 60), gocv.FontHersheySimplex, 0.7, statusColor, 2)
}

// drawLabel places the name and, if enabled, the confidence on a filled
// background above the box.
func drawLabel(img *gocv.Mat, a Annotation, background color.RGBA, cfg *config.Snapshot) {
	display := cfg.Display
	textColor := cfg.Colors.Text.RGBA()
	confScale := display.FontScale * 0.8

	confText := ""
	if display.ShowConfidence && a.Confidence > 0 {
		confText = fmt.Sprintf("%.1f%%", a.Confidence)
	}

	nameSize := gocv.GetTextSize(a.Label, gocv.FontHersheySimplex, display.FontScale, display.FontThickness)
	confSize := gocv.GetTextSize(confText, gocv.FontHersheySimplex, confScale, display.FontThickness)

	x, y := a.Box.X1, a.Box.Y1
	bg := image.Rect(x, y-nameSize.Y-35, x+max(nameSize.X, confSize.X)+10, y)
	gocv.Rectangle(img, bg, background, -1)

	gocv.PutText(img, a.Label, image.Pt(x+5, y-20), gocv.FontHersheySimplex, display.FontScale, textColor, display.FontThickness)
	if confText != "" {
		gocv.PutText(img, confText, image.Pt(x+5, y-5), gocv.FontHersheySimplex, confScale, textColor, display.FontThickness)
	}
}
