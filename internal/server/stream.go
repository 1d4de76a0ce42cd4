package server

import (
	"fmt"
	"net/http"
	"sync"
)

// FrameHub keeps the latest annotated frame and serves it as an MJPEG
// stream. The detection stage publishes into it.
type FrameHub struct {
	mu      sync.Mutex
	latest  []byte
	seq     uint64
	changed chan struct{}
}

// NewFrameHub creates an empty hub.
func NewFrameHub() *FrameHub {
	return &FrameHub{changed: make(chan struct{})}
}

// PublishFrame replaces the latest frame and wakes every viewer. The hub
// keeps jpeg; callers must not modify it afterwards.
func (h *FrameHub) PublishFrame(jpeg []byte) {
	h.mu.Lock()
	h.latest = jpeg
	h.seq++
	close(h.changed)
	h.changed = make(chan struct{})
	h.mu.Unlock()
}

// Latest returns the most recent frame and its sequence number.
func (h *FrameHub) Latest() ([]byte, uint64) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.latest, h.seq
}

func (h *FrameHub) next(after uint64) ([]byte, uint64, <-chan struct{}) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.seq > after {
		return h.latest, h.seq, nil
	}
	return nil, after, h.changed
}

// ServeHTTP streams frames until the client goes away. Slow clients skip
// frames rather than queue them.
func (h *FrameHub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "multipart/x-mixed-replace; boundary=frame")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	var seq uint64
	for {
		frame, next, wait := h.next(seq)
		if wait != nil {
			select {
			case <-r.Context().Done():
				return
			case <-wait:
				continue
			}
		}
		seq = next

		fmt.Fprintf(w, "--frame\r\n")
		fmt.Fprintf(w, "Content-Type: image/jpeg\r\n")
		fmt.Fprintf(w, "Content-Length: %d\r\n\r\n", len(frame))
		if _, err := w.Write(frame); err != nil {
			return
		}
		fmt.Fprintf(w, "\r\n")

		if f, ok := w.(http.Flusher); ok {
			f.Flush()
		}
	}
}
