package rebalancing

import "math"

// ClampWeights clamps every weight into [lower, upper] independently and returns a new slice.
// No renormalisation happens here; when lower*N > 1 the later normalisation can push
// weights back under lower, and that result is not re-clamped.
func ClampWeights(weights []float64, lower, upper float64) []float64 {
	clamped := make([]float64, len(weights))
	for i, w := range weights {
		clamped[i] = math.Max(lower, math.Min(upper, w))
	}
	return clamped
}
