package vector

// l2sq returns the squared Euclidean distance between two vectors of
// equal length. Squared distance preserves ordering and avoids the
// square root on the hot path.
func l2sq(a, b []float32) float32 {
	var sum float32
	for i := range a {
		d := a[i] - b[i]
		sum += d * d
	}
	return sum
}

// similarity converts a squared L2 distance to a score in (0, 1].
// An exact match scores 1.0.
func similarity(dist float32) float64 {
	return 1.0 / (1.0 + float64(dist))
}
