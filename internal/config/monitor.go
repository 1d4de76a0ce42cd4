package config

import (
	"context"
	"log/slog"
	"time"

	"github.com/ayusman/facewatch/internal/watch"
)

// Monitor reloads the configuration file when its modification time advances
// and swaps the result into a Holder.
type Monitor struct {
	holder   *Holder
	poller   *watch.Poller
	onReload []func(old, next *Snapshot)
}

// NewMonitor watches path every interval and publishes reloads to holder.
func NewMonitor(path string, interval time.Duration, holder *Holder) *Monitor {
	m := &Monitor{holder: holder}
	m.poller = watch.New(path, interval, func(time.Time) { m.Reload() })
	return m
}

// OnReload registers fn to run after every successful reload.
func (m *Monitor) OnReload(fn func(old, next *Snapshot)) {
	m.onReload = append(m.onReload, fn)
}

// Run polls until ctx is cancelled.
func (m *Monitor) Run(ctx context.Context) {
	slog.Info("config monitor started", "path", m.poller.Path, "interval", m.poller.Interval)
	m.poller.Run(ctx)
}

// Check polls once. It is exposed for tests and manual triggers.
func (m *Monitor) Check() bool {
	return m.poller.Check()
}

// Reload loads the file and publishes the new snapshot. On failure the
// current snapshot stays in place.
func (m *Monitor) Reload() error {
	next, err := Load(m.poller.Path)
	if err != nil {
		slog.Error("config reload failed, keeping previous configuration", "path", m.poller.Path, "error", err)
		return err
	}

	old := m.holder.Load()
	for _, key := range RestartRequired(old, next) {
		slog.Warn("config change requires restart", "key", key)
	}

	m.holder.Store(next)
	slog.Info("configuration reloaded",
		"confidence_threshold", next.Detection.ConfidenceThreshold,
		"similarity_threshold", next.Recognition.SimilarityThreshold,
		"max_images_per_folder", next.Detection.MaxImagesPerFolder,
	)

	for _, fn := range m.onReload {
		fn(old, next)
	}
	return nil
}
