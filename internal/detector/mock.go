package detector

import (
	"sync"

	"gocv.io/x/gocv"

	"github.com/ayusman/facewatch/internal/types"
)

// MockDetector is a test implementation of the Detector interface.
// It allows tests to control the detection results.
type MockDetector struct {
	mu      sync.Mutex
	regions []types.Region
	err     error
	calls   int
}

// NewMockDetector creates a new MockDetector instance.
func NewMockDetector() *MockDetector {
	return &MockDetector{}
}

// SetRegions sets the regions that will be returned by Detect.
func (m *MockDetector) SetRegions(regions []types.Region) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.regions = regions
}

// SetError sets the error that will be returned by Detect.
func (m *MockDetector) SetError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.err = err
}

// Detect returns the pre-configured regions or error.
func (m *MockDetector) Detect(frame *gocv.Mat) ([]types.Region, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.calls++
	if m.err != nil {
		return nil, m.err
	}
	out := make([]types.Region, len(m.regions))
	copy(out, m.regions)
	return out, nil
}

// Calls returns how many times Detect ran.
func (m *MockDetector) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

// Close is a no-op for the mock detector.
func (m *MockDetector) Close() error {
	return nil
}
