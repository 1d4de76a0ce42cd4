package identity

import "fmt"

// Mean averages descriptor samples into a single representative descriptor.
// All samples must share one non-zero dimension.
func Mean(samples [][]float32) ([]float32, error) {
	if len(samples) == 0 {
		return nil, fmt.Errorf("no samples provided")
	}

	dim := len(samples[0])
	if dim == 0 {
		return nil, fmt.Errorf("sample 0 is empty")
	}
	for i, s := range samples {
		if len(s) != dim {
			return nil, fmt.Errorf("sample %d has dimension %d, expected %d", i, len(s), dim)
		}
	}

	sums := make([]float64, dim)
	for _, s := range samples {
		for j, v := range s {
			sums[j] += float64(v)
		}
	}

	mean := make([]float32, dim)
	n := float64(len(samples))
	for j, sum := range sums {
		mean[j] = float32(sum / n)
	}

	return mean, nil
}
