package pipeline

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestQueue_FIFO(t *testing.T) {
	q := NewQueue()
	for _, id := range []string{"a", "b", "c"} {
		q.Push(&FaceCrop{ID: id})
	}
	if q.Len() != 3 {
		t.Fatalf("Len() = %d, want 3", q.Len())
	}

	ctx := context.Background()
	for _, want := range []string{"a", "b", "c"} {
		c, err := q.Pop(ctx)
		if err != nil {
			t.Fatalf("Pop() error = %v", err)
		}
		if c.ID != want {
			t.Errorf("Pop() = %s, want %s", c.ID, want)
		}
	}
}

func TestQueue_PopWaitsForPush(t *testing.T) {
	q := NewQueue()
	got := make(chan string, 1)

	go func() {
		c, err := q.Pop(context.Background())
		if err == nil {
			got <- c.ID
		}
	}()

	select {
	case id := <-got:
		t.Fatalf("Pop() returned %s from an empty queue", id)
	case <-time.After(20 * time.Millisecond):
	}

	q.Push(&FaceCrop{ID: "late"})
	select {
	case id := <-got:
		if id != "late" {
			t.Errorf("Pop() = %s, want late", id)
		}
	case <-time.After(time.Second):
		t.Fatal("Pop() did not wake on push")
	}
}

func TestQueue_PopCancelled(t *testing.T) {
	q := NewQueue()
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() {
		_, err := q.Pop(ctx)
		done <- err
	}()

	cancel()
	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Errorf("Pop() error = %v, want context.Canceled", err)
		}
	case <-time.After(time.Second):
		t.Fatal("Pop() ignored cancellation")
	}
}

func TestQueue_Drain(t *testing.T) {
	q := NewQueue()
	q.Push(&FaceCrop{ID: "a"})
	q.Push(&FaceCrop{ID: "b"})

	if items := q.Drain(); len(items) != 2 {
		t.Errorf("Drain() returned %d items, want 2", len(items))
	}
	if q.Len() != 0 {
		t.Errorf("Len() after Drain = %d", q.Len())
	}
}

func TestQueue_PopAfterCancelLeavesBacklog(t *testing.T) {
	q := NewQueue()
	for _, id := range []string{"a", "b", "c"} {
		q.Push(&FaceCrop{ID: id})
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	crop, err := q.Pop(ctx)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("Pop() error = %v, want context.Canceled", err)
	}
	if crop != nil {
		t.Errorf("Pop() handed out %q after cancel", crop.ID)
	}
	if q.Len() != 3 {
		t.Errorf("Len() = %d, want 3", q.Len())
	}
}
