package rebalancing

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"
)

// Normalize divides every weight by the vector's sum and returns a new slice.
// It fails with ErrDegenerateVector when the sum is zero, negative or not finite.
func Normalize(weights []float64) ([]float64, error) {
	total := floats.Sum(weights)
	if math.IsNaN(total) || math.IsInf(total, 0) || total <= 0 {
		return nil, fmt.Errorf("%w: sum is %v", ErrDegenerateVector, total)
	}

	normalized := make([]float64, len(weights))
	for i, w := range weights {
		normalized[i] = w / total
	}
	return normalized, nil
}
