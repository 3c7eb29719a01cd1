package rebalancing

import (
	"fmt"
	"math"
	"sort"

	"github.com/shopspring/decimal"
)

// displayUnits is 100% expressed in hundredths of a percent.
const displayUnits = 10000

// DisplayPercents converts weights into percentages with two decimals that add
// up to exactly 100.00. Weights are first scaled by their total; the leftover
// hundredths go to the largest remainders, earlier positions first on ties.
func DisplayPercents(weights []float64) ([]decimal.Decimal, error) {
	if len(weights) == 0 {
		return nil, nil
	}

	total := decimal.Zero
	for _, w := range weights {
		if w < 0 || math.IsNaN(w) || math.IsInf(w, 0) {
			return nil, fmt.Errorf("%w: cannot display weight %v", ErrDegenerateVector, w)
		}
		total = total.Add(decimal.NewFromFloat(w))
	}
	if !total.IsPositive() {
		return nil, fmt.Errorf("%w: weights sum to zero", ErrDegenerateVector)
	}

	units := make([]int64, len(weights))
	remainders := make([]decimal.Decimal, len(weights))
	allocated := int64(0)
	for i, w := range weights {
		exact := decimal.NewFromFloat(w).Div(total).Shift(4)
		floor := exact.Floor()
		units[i] = floor.IntPart()
		remainders[i] = exact.Sub(floor)
		allocated += units[i]
	}

	order := make([]int, len(weights))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool {
		return remainders[order[a]].GreaterThan(remainders[order[b]])
	})

	for left, i := displayUnits-allocated, 0; left > 0; left, i = left-1, i+1 {
		units[order[i%len(order)]]++
	}
	// Division rounding can overshoot by a unit; take it back from the smallest remainder.
	for left, i := displayUnits-allocated, len(order)-1; left < 0 && i >= 0; left, i = left+1, i-1 {
		units[order[i]]--
	}

	percents := make([]decimal.Decimal, len(weights))
	for i, u := range units {
		percents[i] = decimal.New(u, -2)
	}
	return percents, nil
}
