package utils

import "math"

// NormalizeL2 normalizes the slice in place to unit L2 norm.
// If the norm is zero, the slice is unchanged.
func NormalizeL2(x []float32) {
	var sum float32
	for _, v := range x {
		sum += v * v
	}
	if sum == 0 {
		return
	}
	norm := float32(1.0 / math.Sqrt(float64(sum)))
	for i := range x {
		x[i] *= norm
	}
}

// MeanVector returns the element-wise mean of the given vectors. All vectors
// must have the same length; returns nil for empty input.
func MeanVector(vectors [][]float32) []float32 {
	if len(vectors) == 0 {
		return nil
	}
	mean := make([]float32, len(vectors[0]))
	for _, v := range vectors {
		for i := range mean {
			mean[i] += v[i]
		}
	}
	n := float32(len(vectors))
	for i := range mean {
		mean[i] /= n
	}
	return mean
}
