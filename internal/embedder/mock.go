package embedder

import (
	"sync"
	"time"

	"gocv.io/x/gocv"
)

// MockEmbedder returns preset descriptors.
type MockEmbedder struct {
	mu          sync.Mutex
	descriptors [][]float32
	err         error
	delay       time.Duration
	calls       int
	closed      bool
}

// NewMockEmbedder creates a mock returning descriptors on every call.
func NewMockEmbedder(descriptors ...[]float32) *MockEmbedder {
	return &MockEmbedder{descriptors: descriptors}
}

// SetDescriptors replaces the descriptors returned by Embed.
func (m *MockEmbedder) SetDescriptors(descriptors ...[]float32) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.descriptors = descriptors
}

// SetError makes Embed fail with err.
func (m *MockEmbedder) SetError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.err = err
}

// SetDelay makes every Embed call take at least d.
func (m *MockEmbedder) SetDelay(d time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.delay = d
}

func (m *MockEmbedder) Embed(crop *gocv.Mat) ([][]float32, error) {
	m.mu.Lock()
	m.calls++
	delay := m.delay
	m.mu.Unlock()

	if delay > 0 {
		time.Sleep(delay)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return nil, m.err
	}
	return m.descriptors, nil
}

// Calls returns how many times Embed ran.
func (m *MockEmbedder) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

// Closed reports whether Close has been called.
func (m *MockEmbedder) Closed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closed
}

func (m *MockEmbedder) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}
