// Package embedder turns face crops into fixed-length descriptors.
package embedder

import (
	"gocv.io/x/gocv"

	"github.com/ayusman/facewatch/internal/pyservice"
)

// Embedder extracts descriptors from an RGB face crop. An empty result means
// the crop holds no usable face.
type Embedder interface {
	Embed(crop *gocv.Mat) ([][]float32, error)
	Close() error
}

// ServiceEmbedder implements Embedder with a Python model process.
type ServiceEmbedder struct {
	svc *pyservice.Service
}

// NewServiceEmbedder prepares an embedder backed by script, which is given
// the model path as its only argument.
func NewServiceEmbedder(script, modelPath string) (*ServiceEmbedder, error) {
	svc, err := pyservice.New(pyservice.Config{
		Name:   "embedder",
		Script: script,
		Args:   []string{modelPath},
	})
	if err != nil {
		return nil, err
	}
	return &ServiceEmbedder{svc: svc}, nil
}

type response struct {
	Embeddings [][]float32 `json:"embeddings"`
}

// Embed sends the crop to the model process.
func (e *ServiceEmbedder) Embed(crop *gocv.Mat) ([][]float32, error) {
	var resp response
	if err := e.svc.CallImage(crop, &resp); err != nil {
		return nil, err
	}
	return resp.descriptors(), nil
}

// Close shuts down the model process.
func (e *ServiceEmbedder) Close() error {
	return e.svc.Close()
}

// descriptors drops empty vectors.
func (r response) descriptors() [][]float32 {
	out := make([][]float32, 0, len(r.Embeddings))
	for _, d := range r.Embeddings {
		if len(d) > 0 {
			out = append(out, d)
		}
	}
	return out
}
