package rebalancing

import (
	"math"

	"gonum.org/v1/gonum/floats"
)

// ConvergenceOptions controls the damped correction loop.
type ConvergenceOptions struct {
	Threshold     float64
	Damping       float64
	MaxIterations int
}

// ConvergenceResult is the outcome of Converge.
type ConvergenceResult struct {
	Weights      []float64
	Iterations   int     // corrective steps actually applied
	MaxDeviation float64 // largest |weight - target| after the last step
	Converged    bool    // MaxDeviation dropped under the threshold
}

// Converge nudges current toward targets with a damped fixed-point iteration.
//
// Each step picks the symbol with the largest absolute deviation (first symbol
// wins ties), moves it Damping of the way to its target and spreads the opposite
// amount equally over the other symbols, so the vector sum is unchanged by the
// step. The loop stops once the largest deviation is below Threshold or after
// MaxIterations steps. Nothing is renormalised here.
func Converge(current, targets []float64, opts ConvergenceOptions) ConvergenceResult {
	weights := make([]float64, len(current))
	copy(weights, current)

	n := len(weights)
	result := ConvergenceResult{Weights: weights}
	if n == 0 {
		result.Converged = true
		return result
	}

	deviations := make([]float64, n)
	for iteration := 0; iteration < opts.MaxIterations; iteration++ {
		worst, maxDeviation := largestDeviation(weights, targets, deviations)
		result.MaxDeviation = maxDeviation
		if maxDeviation < opts.Threshold {
			result.Converged = true
			return result
		}

		// A single position has nobody to trade weight with.
		if n == 1 {
			return result
		}

		adjustment := (targets[worst] - weights[worst]) * opts.Damping
		weights[worst] += adjustment

		share := -adjustment / float64(n-1)
		for i := range weights {
			if i != worst {
				weights[i] += share
			}
		}
		result.Iterations++
	}

	_, result.MaxDeviation = largestDeviation(weights, targets, deviations)
	result.Converged = result.MaxDeviation < opts.Threshold
	return result
}

// largestDeviation fills deviations with |weights - targets| and returns the index
// and value of the largest one. floats.MaxIdx returns the first index on ties, which
// gives the input-order tie-break.
func largestDeviation(weights, targets, deviations []float64) (int, float64) {
	for i := range weights {
		deviations[i] = math.Abs(weights[i] - targets[i])
	}
	idx := floats.MaxIdx(deviations)
	return idx, deviations[idx]
}
