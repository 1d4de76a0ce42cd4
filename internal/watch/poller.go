// Package watch polls files for modification-time changes.
package watch

import (
	"context"
	"log/slog"
	"os"
	"time"
)

// DefaultInterval is the polling period used when none is given.
const DefaultInterval = 2 * time.Second

// Poller calls OnChange whenever the modification time of Path advances.
type Poller struct {
	Path     string
	Interval time.Duration
	OnChange func(modTime time.Time)

	lastMod time.Time
}

// New creates a poller for path. The current modification time is taken as
// the baseline, so OnChange only fires for later edits.
func New(path string, interval time.Duration, onChange func(time.Time)) *Poller {
	if interval <= 0 {
		interval = DefaultInterval
	}
	p := &Poller{
		Path:     path,
		Interval: interval,
		OnChange: onChange,
	}
	if mod, err := modTime(path); err == nil {
		p.lastMod = mod
	}
	return p
}

// Run polls until ctx is cancelled.
func (p *Poller) Run(ctx context.Context) {
	ticker := time.NewTicker(p.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.Check()
		}
	}
}

// Check stats the file once and fires OnChange if it changed. It reports
// whether a change was seen. A missing or unreadable file is not a change.
func (p *Poller) Check() bool {
	mod, err := modTime(p.Path)
	if err != nil {
		slog.Debug("watch: stat failed", "path", p.Path, "error", err)
		return false
	}
	if !mod.After(p.lastMod) {
		return false
	}

	// Advance before the callback so a failing reload is not retried every tick.
	p.lastMod = mod
	if p.OnChange != nil {
		p.OnChange(mod)
	}
	return true
}

func modTime(path string) (time.Time, error) {
	info, err := os.Stat(path)
	if err != nil {
		return time.Time{}, err
	}
	return info.ModTime(), nil
}
