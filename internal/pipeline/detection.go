package pipeline

import (
	"context"
	"errors"
	"log/slog"
	"sync/atomic"
	"time"

	"gocv.io/x/gocv"

	"github.com/ayusman/facewatch/internal/capture"
	"github.com/ayusman/facewatch/internal/config"
	"github.com/ayusman/facewatch/internal/detector"
	"github.com/ayusman/facewatch/internal/overlay"
	"github.com/ayusman/facewatch/internal/staging"
	"github.com/ayusman/facewatch/internal/types"
)

// Stager is the staging store as seen by the two stages.
type Stager interface {
	Enqueue(w staging.Write) error
	Save(ctx context.Context, w staging.Write) error
	RequestCleanup(req types.CleanupRequest) error
	Counts() staging.Counts
}

// FrameSink receives every annotated frame as JPEG.
type FrameSink interface {
	PublishFrame(jpeg []byte)
}

// Annotation is one confident detection with the label correlated to it.
type Annotation struct {
	Box        types.BBox `json:"box"`
	Detection  float64    `json:"detection"`
	Accepted   bool       `json:"accepted"`
	FaceID     string     `json:"face_id,omitempty"`
	Label      string     `json:"label,omitempty"`
	Confidence float64    `json:"confidence"`
}

// DetectionStats counts detection work since start.
type DetectionStats struct {
	Frames   int64 `json:"frames"`
	Regions  int64 `json:"regions"`
	Accepted int64 `json:"accepted"`
	Rejected int64 `json:"rejected"`
	Failures int64 `json:"failures"`
}

// DetectionStage turns frames into face crops for recognition and labels
// live detections from recent recognition results.
type DetectionStage struct {
	detector detector.Detector
	holder   *config.Holder
	queue    *Queue
	stager   Stager
	overlay  *overlay.Correlator
	frames   FrameSink
	ids      idGenerator

	frameCount atomic.Int64
	regions    atomic.Int64
	accepted   atomic.Int64
	rejected   atomic.Int64
	failures   atomic.Int64
}

// NewDetectionStage wires the stage. frames may be nil.
func NewDetectionStage(d detector.Detector, holder *config.Holder, q *Queue, s Stager, o *overlay.Correlator, frames FrameSink) *DetectionStage {
	return &DetectionStage{
		detector: d,
		holder:   holder,
		queue:    q,
		stager:   s,
		overlay:  o,
		frames:   frames,
	}
}

// Run reads frames from cam at its frame rate until ctx is cancelled or the
// camera is closed.
func (d *DetectionStage) Run(ctx context.Context, cam capture.Camera) {
	fps := cam.FPS()
	if fps <= 0 {
		fps = capture.DefaultFPS
	}
	ticker := time.NewTicker(time.Second / time.Duration(fps))
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		frame, err := cam.ReadFrame()
		if errors.Is(err, capture.ErrCameraNotOpen) {
			slog.Warn("camera closed, detection stopping")
			return
		}
		if err != nil {
			slog.Debug("frame read failed", "error", err)
			continue
		}

		d.handleFrame(frame, time.Now())
		frame.Close()
	}
}

func (d *DetectionStage) handleFrame(frame *gocv.Mat, at time.Time) {
	cfg := d.holder.Load()

	annotations, err := d.ProcessFrame(frame, at, cfg)
	if err != nil {
		d.failures.Add(1)
		slog.Debug("detection failed", "error", err)
	}

	if d.frames == nil {
		return
	}

	display := frame.Clone()
	defer display.Close()

	Render(&display, annotations, cfg, Status{Queue: d.queue.Len(), Staging: d.stager.Counts()})
	data, err := encodeJPEG(display)
	if err != nil {
		slog.Debug("frame encode failed", "error", err)
		return
	}
	d.frames.PublishFrame(data)
}

// ProcessFrame detects faces in frame using the thresholds of cfg. Accepted
// crops are staged and queued for recognition. Every confident region comes
// back annotated with the recognition result overlapping it.
func (d *DetectionStage) ProcessFrame(frame *gocv.Mat, at time.Time, cfg *config.Snapshot) ([]Annotation, error) {
	d.frameCount.Add(1)

	regions, err := d.detector.Detect(frame)
	if err != nil {
		return nil, err
	}

	var annotations []Annotation
	for _, r := range regions {
		if r.Confidence <= cfg.Detection.ConfidenceThreshold {
			continue
		}
		d.regions.Add(1)

		ann := Annotation{Box: r.Box, Detection: r.Confidence}
		if padded, ok := PadAndGate(r.Box, frame.Cols(), frame.Rows()); ok {
			id, err := d.accept(frame, r.Box, padded, at)
			if err != nil {
				slog.Debug("crop rejected", "box", r.Box, "error", err)
			} else {
				ann.Accepted = true
				ann.FaceID = id
			}
		} else {
			d.rejected.Add(1)
		}

		if label, conf, ok := d.overlay.Query(r.Box); ok {
			ann.Label = label
			ann.Confidence = conf
		}
		annotations = append(annotations, ann)
	}

	return annotations, nil
}

// accept stages the crop and queues it for recognition. The staging write
// is queued first so a cleanup request for the id can never overtake it.
func (d *DetectionStage) accept(frame *gocv.Mat, box, padded types.BBox, at time.Time) (string, error) {
	id := d.ids.next(at)
	crop, err := newFaceCrop(id, frame, box, padded, at)
	if err != nil {
		return "", err
	}

	files, err := stagingFiles(crop)
	if err != nil {
		crop.Close()
		return "", err
	}
	if err := d.stager.Enqueue(staging.Write{
		Category: types.CategoryKnown,
		FaceID:   id,
		Files:    files,
		Track:    true,
	}); err != nil {
		slog.Warn("staging write dropped", "face_id", id, "error", err)
	}

	d.queue.Push(crop)
	d.accepted.Add(1)
	return id, nil
}

func stagingFiles(c *FaceCrop) ([]staging.File, error) {
	padded, err := encodeJPEG(c.Padded)
	if err != nil {
		return nil, err
	}
	normalized, err := encodeJPEG(c.Normalized)
	if err != nil {
		return nil, err
	}
	return []staging.File{
		{Name: c.ID + ".jpg", Data: padded},
		{Name: c.ID + "_resized.jpg", Data: normalized},
	}, nil
}

// Stats returns the counters.
func (d *DetectionStage) Stats() DetectionStats {
	return DetectionStats{
		Frames:   d.frameCount.Load(),
		Regions:  d.regions.Load(),
		Accepted: d.accepted.Load(),
		Rejected: d.rejected.Load(),
		Failures: d.failures.Load(),
	}
}
