package rebalancing

import (
	"fmt"
	"math"
)

// TargetWeights returns the unbounded target weight of every symbol, in input order.
//
// Under MethodMarketCap each target is the symbol's market cap weight taken as-is,
// so the targets may not sum to 1 when upstream data is imprecise. Under MethodEqual
// every symbol gets 1/N.
func TargetWeights(symbols []string, analysis map[string]HoldingAnalysis, method Method) ([]float64, error) {
	targets := make([]float64, len(symbols))

	switch method {
	case MethodEqual:
		if len(symbols) == 0 {
			return targets, nil
		}
		equal := 1.0 / float64(len(symbols))
		for i := range symbols {
			targets[i] = equal
		}
		return targets, nil

	case MethodMarketCap:
		for i, symbol := range symbols {
			holding, ok := analysis[symbol]
			if !ok || holding.MarketCapWeight == nil {
				return nil, fmt.Errorf("%w for %s", ErrMissingData, symbol)
			}
			w := *holding.MarketCapWeight
			if math.IsNaN(w) || math.IsInf(w, 0) || w < 0 || w > 1 {
				return nil, fmt.Errorf("%w: market cap weight %v for %s outside [0, 1]", ErrInvalidWeight, w, symbol)
			}
			targets[i] = w
		}
		return targets, nil

	default:
		return nil, fmt.Errorf("%w: %q", ErrInvalidMethod, string(method))
	}
}
