// Package overlay correlates live detections with recent recognition results
// by spatial overlap.
package overlay

import (
	"sync"
	"time"

	"github.com/ayusman/facewatch/internal/types"
)

const (
	// DefaultTTL is how long a published result stays queryable.
	DefaultTTL = 3 * time.Second
	// MinIoU is the overlap a detection must strictly exceed to take a label.
	MinIoU = 0.3
)

// Correlator caches recognition results by face id. Recognition publishes,
// detection queries; the lock is held only for each call.
type Correlator struct {
	mu      sync.Mutex
	results map[string]types.RecognitionResult
	ttl     time.Duration
	now     func() time.Time
}

// New creates a correlator with the default TTL.
func New() *Correlator {
	return &Correlator{
		results: make(map[string]types.RecognitionResult),
		ttl:     DefaultTTL,
		now:     time.Now,
	}
}

// SetClock replaces the time source. Used in tests.
func (c *Correlator) SetClock(now func() time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = now
}

// Publish inserts or overwrites the result for its face id.
func (c *Correlator) Publish(r types.RecognitionResult) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.expireLocked()
	c.results[r.FaceID] = r
}

// Query returns the label and confidence of the cached result overlapping box
// the most, if that overlap exceeds MinIoU.
func (c *Correlator) Query(box types.BBox) (string, float64, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.expireLocked()

	var best types.RecognitionResult
	bestIoU := 0.0
	found := false
	for _, r := range c.results {
		iou := types.IoU(box, r.Box)
		if !found || iou > bestIoU {
			best = r
			bestIoU = iou
			found = true
		}
	}

	if !found || bestIoU <= MinIoU {
		return "", 0, false
	}
	return best.Label, best.Confidence, true
}

// Len returns the number of live results.
func (c *Correlator) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.expireLocked()
	return len(c.results)
}

// Results returns a copy of the live results.
func (c *Correlator) Results() []types.RecognitionResult {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.expireLocked()
	out := make([]types.RecognitionResult, 0, len(c.results))
	for _, r := range c.results {
		out = append(out, r)
	}
	return out
}

func (c *Correlator) expireLocked() {
	now := c.now()
	for id, r := range c.results {
		if now.Sub(r.Timestamp) > c.ttl {
			delete(c.results, id)
		}
	}
}
