// Package staging keeps recent face crops on disk in two bounded folders.
package staging

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/ayusman/facewatch/internal/config"
	"github.com/ayusman/facewatch/internal/types"
)

// ErrStopped is returned when the stager is no longer accepting work.
var ErrStopped = errors.New("staging: stopped")

// opsBuffer bounds how far producers can run ahead of the writer goroutine.
const opsBuffer = 256

// Write stores one face's files in a category.
type Write struct {
	Category types.Category
	FaceID   string
	Files    []File
	// Track makes the files deletable by a later cleanup request for FaceID.
	Track bool
}

type opKind int

const (
	opWrite opKind = iota
	opCleanup
	opSweep
)

type op struct {
	kind    opKind
	write   Write
	cleanup types.CleanupRequest
	reply   chan error
}

// Counts is a point-in-time view of both folders.
type Counts struct {
	Known   int   `json:"known"`
	Unknown int   `json:"unknown"`
	Evicted int64 `json:"evicted"`
}

// Stager is the single writer for both staging folders. Every save, cleanup
// and sweep is applied in order by Run.
type Stager struct {
	known   *category
	unknown *category
	holder  *config.Holder
	ops     chan op
	done    chan struct{}

	// stopping is closed when Run begins shutting down. Senders hold mu for
	// reading, so once stopped is set every accepted op is already in ops.
	stopping chan struct{}
	mu       sync.RWMutex
	stopped  bool
}

// New creates both folders if needed. The eviction cap is read from holder
// on every operation.
func New(knownDir, unknownDir string, holder *config.Holder) (*Stager, error) {
	known, err := newCategory(types.CategoryKnown, knownDir)
	if err != nil {
		return nil, fmt.Errorf("staging folder %s: %w", knownDir, err)
	}
	unknown, err := newCategory(types.CategoryUnknown, unknownDir)
	if err != nil {
		return nil, fmt.Errorf("staging folder %s: %w", unknownDir, err)
	}

	return &Stager{
		known:   known,
		unknown: unknown,
		holder:  holder,
		ops:      make(chan op, opsBuffer),
		done:     make(chan struct{}),
		stopping: make(chan struct{}),
	}, nil
}

// Run applies queued operations until ctx is cancelled, sweeping both folders
// every cleanup interval. Pending operations and one final sweep run before
// it returns. Operations sent after shutdown begins fail with ErrStopped.
func (s *Stager) Run(ctx context.Context) {
	defer close(s.done)

	// The sweep interval is read once. config.RestartRequired reports a
	// changed value as restart-only.
	interval := s.holder.Load().Detection.CleanupInterval
	if interval <= 0 {
		interval = 10 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	slog.Info("staging started", "known", s.known.dir, "unknown", s.unknown.dir, "sweep_interval", interval)

	for {
		select {
		case <-ctx.Done():
			close(s.stopping)
			s.mu.Lock()
			s.stopped = true
			s.mu.Unlock()

			s.drain()
			s.sweep()
			slog.Info("staging stopped", "known", s.known.units.Load(), "unknown", s.unknown.units.Load())
			return
		case o := <-s.ops:
			s.apply(o)
		case <-ticker.C:
			s.sweep()
		}
	}
}

func (s *Stager) drain() {
	for {
		select {
		case o := <-s.ops:
			s.apply(o)
		default:
			return
		}
	}
}

func (s *Stager) apply(o op) {
	var err error
	switch o.kind {
	case opWrite:
		err = s.category(o.write.Category).save(o.write.FaceID, o.write.Files, o.write.Track)
		if err != nil {
			slog.Warn("staging: save failed", "face_id", o.write.FaceID, "category", o.write.Category, "error", err)
		}
	case opCleanup:
		s.onCleanupRequest(o.cleanup)
	case opSweep:
		s.sweep()
	}

	if o.reply != nil {
		o.reply <- err
	}
}

// onCleanupRequest drops the tracked files of the face and then enforces
// the cap on its category.
func (s *Stager) onCleanupRequest(req types.CleanupRequest) {
	c := s.category(req.Category)
	c.remove(req.FaceID)
	c.evict(s.limit())
}

// sweep enforces the cap on both folders.
func (s *Stager) sweep() {
	limit := s.limit()
	s.known.evict(limit)
	s.unknown.evict(limit)
}

func (s *Stager) limit() int {
	return s.holder.Load().Detection.MaxImagesPerFolder
}

func (s *Stager) category(kind types.Category) *category {
	if kind == types.CategoryUnknown {
		return s.unknown
	}
	return s.known
}

func (s *Stager) send(ctx context.Context, o op) error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.stopped {
		return ErrStopped
	}
	select {
	case s.ops <- o:
		return nil
	case <-s.stopping:
		return ErrStopped
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Enqueue queues a write without waiting for it to reach disk.
func (s *Stager) Enqueue(w Write) error {
	return s.send(context.Background(), op{kind: opWrite, write: w})
}

// Save writes and waits until the files are on disk.
func (s *Stager) Save(ctx context.Context, w Write) error {
	reply := make(chan error, 1)
	if err := s.send(ctx, op{kind: opWrite, write: w, reply: reply}); err != nil {
		return err
	}
	select {
	case err := <-reply:
		return err
	case <-s.done:
		// Run may have applied it during drain
		select {
		case err := <-reply:
			return err
		default:
			return ErrStopped
		}
	case <-ctx.Done():
		return ctx.Err()
	}
}

// RequestCleanup queues a cleanup request for a processed face.
func (s *Stager) RequestCleanup(req types.CleanupRequest) error {
	return s.send(context.Background(), op{kind: opCleanup, cleanup: req})
}

// Sweep runs a sweep on the writer goroutine and waits for it.
func (s *Stager) Sweep(ctx context.Context) error {
	reply := make(chan error, 1)
	if err := s.send(ctx, op{kind: opSweep, reply: reply}); err != nil {
		return err
	}
	select {
	case err := <-reply:
		return err
	case <-s.done:
		return ErrStopped
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Counts reports the number of face groups in each folder.
func (s *Stager) Counts() Counts {
	return Counts{
		Known:   int(s.known.units.Load()),
		Unknown: int(s.unknown.units.Load()),
		Evicted: s.known.evicted.Load() + s.unknown.evicted.Load(),
	}
}

// Done is closed once Run has returned.
func (s *Stager) Done() <-chan struct{} {
	return s.done
}
