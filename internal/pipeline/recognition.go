package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"gocv.io/x/gocv"

	"github.com/ayusman/facewatch/internal/config"
	"github.com/ayusman/facewatch/internal/embedder"
	"github.com/ayusman/facewatch/internal/identity"
	"github.com/ayusman/facewatch/internal/overlay"
	"github.com/ayusman/facewatch/internal/staging"
	"github.com/ayusman/facewatch/internal/types"
)

// ErrMalformedCrop is returned for crops without a normalized image.
var ErrMalformedCrop = errors.New("malformed face crop")

// Matcher answers best-match queries over known identities.
type Matcher interface {
	FindBestMatch(descriptor []float32, threshold float64) (identity.Match, bool)
}

// RecognitionStats counts recognition outcomes since start.
type RecognitionStats struct {
	Processed int64 `json:"processed"`
	Matched   int64 `json:"matched"`
	Unknown   int64 `json:"unknown"`
	NoFace    int64 `json:"no_face"`
	Failures  int64 `json:"failures"`
}

// RecognitionStage matches queued crops against the identity store and
// publishes the outcome.
type RecognitionStage struct {
	embedder   embedder.Embedder
	identities Matcher
	holder     *config.Holder
	queue      *Queue
	stager     Stager
	overlay    *overlay.Correlator
	listeners  []func(types.RecognitionResult)
	now        func() time.Time

	processed atomic.Int64
	matched   atomic.Int64
	unknown   atomic.Int64
	noFace    atomic.Int64
	failures  atomic.Int64
}

// NewRecognitionStage wires the stage.
func NewRecognitionStage(e embedder.Embedder, m Matcher, holder *config.Holder, q *Queue, s Stager, o *overlay.Correlator) *RecognitionStage {
	return &RecognitionStage{
		embedder:   e,
		identities: m,
		holder:     holder,
		queue:      q,
		stager:     s,
		overlay:    o,
		now:        time.Now,
	}
}

// OnResult registers fn to receive every published result. Register before
// Run starts.
func (r *RecognitionStage) OnResult(fn func(types.RecognitionResult)) {
	r.listeners = append(r.listeners, fn)
}

// Run processes queued crops until ctx is cancelled. A failing crop is
// logged and skipped.
func (r *RecognitionStage) Run(ctx context.Context) {
	for {
		crop, err := r.queue.Pop(ctx)
		if err != nil {
			return
		}

		if _, err := r.Process(ctx, crop); err != nil {
			r.failures.Add(1)
			slog.Debug("recognition skipped", "face_id", crop.ID, "error", err)
		}
		crop.Close()
	}
}

// Process recognizes one crop and publishes the result. The caller keeps
// ownership of crop.
func (r *RecognitionStage) Process(ctx context.Context, crop *FaceCrop) (types.RecognitionResult, error) {
	if crop == nil || crop.Normalized.Empty() {
		return types.RecognitionResult{}, ErrMalformedCrop
	}
	cfg := r.holder.Load()

	rgb := gocv.NewMat()
	defer rgb.Close()
	gocv.CvtColor(crop.Normalized, &rgb, gocv.ColorBGRToRGB)
	if rgb.Empty() {
		return types.RecognitionResult{}, fmt.Errorf("convert %s: %w", crop.ID, ErrMalformedCrop)
	}

	descriptors, err := r.embedder.Embed(&rgb)
	if err != nil {
		return types.RecognitionResult{}, fmt.Errorf("embed %s: %w", crop.ID, err)
	}
	r.processed.Add(1)

	result := types.RecognitionResult{
		FaceID:    crop.ID,
		Timestamp: r.now(),
		Box:       crop.Box,
	}
	cleanup := types.CategoryKnown

	if len(descriptors) == 0 {
		result.Label = types.LabelNoFace
		r.noFace.Add(1)
	} else if m, ok := r.identities.FindBestMatch(descriptors[0], cfg.Recognition.SimilarityThreshold); ok {
		result.Label = m.Name
		result.Confidence = min(100, max(0, m.Similarity*100))
		r.matched.Add(1)
	} else {
		result.Label = types.LabelUnknown
		cleanup = types.CategoryUnknown
		r.unknown.Add(1)
		r.saveUnknown(ctx, crop, result.Timestamp)
	}

	r.overlay.Publish(result)
	if err := r.stager.RequestCleanup(types.CleanupRequest{FaceID: crop.ID, Category: cleanup}); err != nil {
		slog.Debug("cleanup request dropped", "face_id", crop.ID, "error", err)
	}
	for _, fn := range r.listeners {
		fn(result)
	}

	slog.Debug("face recognized", "face_id", result.FaceID, "label", result.Label, "confidence", result.Confidence)
	return result, nil
}

// saveUnknown keeps a copy of an unmatched face for review. It is not
// tracked, so only eviction removes it.
func (r *RecognitionStage) saveUnknown(ctx context.Context, crop *FaceCrop, at time.Time) {
	data, err := encodeJPEG(crop.Normalized)
	if err != nil {
		slog.Warn("unknown face not saved", "face_id", crop.ID, "error", err)
		return
	}

	err = r.stager.Save(ctx, staging.Write{
		Category: types.CategoryUnknown,
		FaceID:   crop.ID,
		Files:    []staging.File{{Name: fmt.Sprintf("unknown_%s_%d.jpg", crop.ID, at.Unix()), Data: data}},
	})
	if err != nil {
		slog.Warn("unknown face not saved", "face_id", crop.ID, "error", err)
	}
}

// Stats returns the counters.
func (r *RecognitionStage) Stats() RecognitionStats {
	return RecognitionStats{
		Processed: r.processed.Load(),
		Matched:   r.matched.Load(),
		Unknown:   r.unknown.Load(),
		NoFace:    r.noFace.Load(),
		Failures:  r.failures.Load(),
	}
}
