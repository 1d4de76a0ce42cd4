// Package app wires the capture, detection, recognition and staging workers
// together and manages their lifecycle.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/ayusman/facewatch/internal/capture"
	"github.com/ayusman/facewatch/internal/config"
	"github.com/ayusman/facewatch/internal/detector"
	"github.com/ayusman/facewatch/internal/embedder"
	"github.com/ayusman/facewatch/internal/identity"
	"github.com/ayusman/facewatch/internal/overlay"
	"github.com/ayusman/facewatch/internal/pipeline"
	"github.com/ayusman/facewatch/internal/staging"
	"github.com/ayusman/facewatch/internal/types"
	"github.com/ayusman/facewatch/internal/watch"
)

const (
	// DefaultJoinTimeout bounds how long Stop waits for each worker.
	DefaultJoinTimeout = 5 * time.Second
	// PollInterval is the modification-time polling period for the config
	// file and the identity database.
	PollInterval = 2 * time.Second
)

// Config holds the collaborators the application runs with.
type Config struct {
	Holder     *config.Holder
	Camera     capture.Camera
	Detector   detector.Detector
	Embedder   embedder.Embedder
	Identities *identity.Store
	Stager     *staging.Stager
	// Frames receives annotated frames. Optional.
	Frames pipeline.FrameSink
	// ConfigPath enables hot reload of the configuration file. Optional.
	ConfigPath string
	// WatchIdentities reloads the identity database when it changes.
	WatchIdentities bool
	JoinTimeout     time.Duration
}

// Stats is a snapshot of the running system.
type Stats struct {
	Running             bool                      `json:"running"`
	Uptime              float64                   `json:"uptime_s"`
	Queue               int                       `json:"queue"`
	Staging             staging.Counts            `json:"staging"`
	Detection           pipeline.DetectionStats   `json:"detection"`
	Recognition         pipeline.RecognitionStats `json:"recognition"`
	Identities          int                       `json:"identities"`
	ActiveResults       int                       `json:"active_results"`
	ConfidenceThreshold float64                   `json:"confidence_threshold"`
	SimilarityThreshold float64                   `json:"similarity_threshold"`
	MaxImagesPerFolder  int                       `json:"max_images_per_folder"`
}

type worker struct {
	name string
	done chan struct{}
}

// App is the running face pipeline.
type App struct {
	config      Config
	queue       *pipeline.Queue
	overlay     *overlay.Correlator
	detection   *pipeline.DetectionStage
	recognition *pipeline.RecognitionStage
	monitor     *config.Monitor

	mu      sync.Mutex
	cancel  context.CancelFunc
	stopped bool
	workers []worker
	started time.Time
}

// ErrStopped is returned by Start after the App has been stopped. An App
// runs at most once.
var ErrStopped = errors.New("app: already stopped")

// New creates an App. Nothing runs until Start.
func New(cfg Config) *App {
	if cfg.JoinTimeout <= 0 {
		cfg.JoinTimeout = DefaultJoinTimeout
	}

	q := pipeline.NewQueue()
	o := overlay.New()

	a := &App{
		config:      cfg,
		queue:       q,
		overlay:     o,
		detection:   pipeline.NewDetectionStage(cfg.Detector, cfg.Holder, q, cfg.Stager, o, cfg.Frames),
		recognition: pipeline.NewRecognitionStage(cfg.Embedder, cfg.Identities, cfg.Holder, q, cfg.Stager, o),
	}
	if cfg.ConfigPath != "" {
		a.monitor = config.NewMonitor(cfg.ConfigPath, PollInterval, cfg.Holder)
	}
	return a
}

// OnResult registers fn to receive every recognition result. Call before Start.
func (a *App) OnResult(fn func(types.RecognitionResult)) {
	a.recognition.OnResult(fn)
}

// Start opens the camera and launches every worker. A camera that cannot be
// opened is reported before any worker starts.
func (a *App) Start(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.cancel != nil {
		return nil
	}
	if a.stopped {
		return ErrStopped
	}

	if err := a.config.Camera.Open(); err != nil {
		return fmt.Errorf("open camera: %w", err)
	}

	runCtx, cancel := context.WithCancel(ctx)
	a.cancel = cancel
	a.started = time.Now()

	a.spawn("staging", func() { a.config.Stager.Run(runCtx) })
	a.spawn("recognition", func() { a.recognition.Run(runCtx) })
	a.spawn("detection", func() { a.detection.Run(runCtx, a.config.Camera) })
	if a.monitor != nil {
		a.spawn("config-monitor", func() { a.monitor.Run(runCtx) })
	}
	if a.config.WatchIdentities && a.config.Identities.Path() != "" {
		poller := watch.New(a.config.Identities.Path(), PollInterval, func(time.Time) {
			if err := a.config.Identities.Refresh(); err != nil {
				slog.Warn("identity reload failed, matching disabled until fixed", "error", err)
			}
		})
		a.spawn("identity-watch", func() { poller.Run(runCtx) })
	}

	slog.Info("pipeline started", "workers", len(a.workers))
	return nil
}

func (a *App) spawn(name string, run func()) {
	w := worker{name: name, done: make(chan struct{})}
	a.workers = append(a.workers, w)
	go func() {
		defer close(w.done)
		run()
	}()
}

// Stop cancels every worker and waits up to the join timeout for each. A
// model call in flight can outlast the timeout; such workers are abandoned
// and finish their current call without taking more work.
func (a *App) Stop() error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.cancel == nil {
		return nil
	}
	a.cancel()
	a.cancel = nil
	a.stopped = true

	var errs []error
	var abandoned []worker
	for _, w := range a.workers {
		select {
		case <-w.done:
		case <-time.After(a.config.JoinTimeout):
			slog.Warn("worker did not stop in time", "worker", w.name, "timeout", a.config.JoinTimeout)
			errs = append(errs, fmt.Errorf("worker %s: join timeout", w.name))
			abandoned = append(abandoned, w)
		}
	}
	a.workers = nil

	for _, crop := range a.queue.Drain() {
		crop.Close()
	}

	// An abandoned worker may still be inside a device or model call, so
	// those are closed once it returns.
	if len(abandoned) == 0 {
		a.closeDevices()
	} else {
		go func() {
			for _, w := range abandoned {
				<-w.done
			}
			a.closeDevices()
		}()
	}

	slog.Info("pipeline stopped")
	return errors.Join(errs...)
}

func (a *App) closeDevices() {
	if err := a.config.Camera.Close(); err != nil {
		slog.Warn("error closing camera", "error", err)
	}
	if err := a.config.Detector.Close(); err != nil {
		slog.Warn("error closing detector", "error", err)
	}
	if err := a.config.Embedder.Close(); err != nil {
		slog.Warn("error closing embedder", "error", err)
	}
}

// IsRunning reports whether Start has been called without a matching Stop.
func (a *App) IsRunning() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.cancel != nil
}

// Stats returns current counters and thresholds.
func (a *App) Stats() Stats {
	a.mu.Lock()
	running := a.cancel != nil
	started := a.started
	a.mu.Unlock()

	cfg := a.config.Holder.Load()
	s := Stats{
		Running:             running,
		Queue:               a.queue.Len(),
		Staging:             a.config.Stager.Counts(),
		Detection:           a.detection.Stats(),
		Recognition:         a.recognition.Stats(),
		Identities:          a.config.Identities.Len(),
		ActiveResults:       a.overlay.Len(),
		ConfidenceThreshold: cfg.Detection.ConfidenceThreshold,
		SimilarityThreshold: cfg.Recognition.SimilarityThreshold,
		MaxImagesPerFolder:  cfg.Detection.MaxImagesPerFolder,
	}
	if running {
		s.Uptime = time.Since(started).Seconds()
	}
	return s
}

// Identities returns the live identity store.
func (a *App) Identities() *identity.Store {
	return a.config.Identities
}

// Overlay returns the recognition result cache.
func (a *App) Overlay() *overlay.Correlator {
	return a.overlay
}

// Detection returns the detection stage.
func (a *App) Detection() *pipeline.DetectionStage {
	return a.detection
}

// Recognition returns the recognition stage.
func (a *App) Recognition() *pipeline.RecognitionStage {
	return a.recognition
}
