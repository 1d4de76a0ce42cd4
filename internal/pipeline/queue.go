package pipeline

import (
	"context"
	"sync"
)

// Queue is an unbounded FIFO of face crops between detection and
// recognition.
type Queue struct {
	mu    sync.Mutex
	items []*FaceCrop
	wake  chan struct{}
}

// NewQueue creates an empty queue.
func NewQueue() *Queue {
	return &Queue{wake: make(chan struct{}, 1)}
}

// Push appends c. It never blocks.
func (q *Queue) Push(c *FaceCrop) {
	q.mu.Lock()
	q.items = append(q.items, c)
	q.mu.Unlock()

	select {
	case q.wake <- struct{}{}:
	default:
	}
}

// Pop removes the oldest crop, waiting until one is pushed or ctx is done.
// Once ctx is done Pop fails even if crops are still queued.
func (q *Queue) Pop(ctx context.Context) (*FaceCrop, error) {
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		q.mu.Lock()
		if len(q.items) > 0 {
			c := q.items[0]
			q.items[0] = nil
			q.items = q.items[1:]
			q.mu.Unlock()
			return c, nil
		}
		q.mu.Unlock()

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-q.wake:
		}
	}
}

// Len returns the number of queued crops.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// Drain removes and returns everything still queued.
func (q *Queue) Drain() []*FaceCrop {
	q.mu.Lock()
	defer q.mu.Unlock()

	items := q.items
	q.items = nil
	return items
}
