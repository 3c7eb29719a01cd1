package rebalancing

import (
	"fmt"
	"math"
	"strings"
)

// DefaultAllocationTolerance is how far the weights of a portfolio may stray from 1.
const DefaultAllocationTolerance = 0.001

// Position is one holding with its weight as a fraction.
type Position struct {
	Symbol string  `json:"symbol"`
	Weight float64 `json:"weight"`
}

// Portfolio is an ordered list of positions. Order matters: it decides
// tie-breaks in the convergence loop.
type Portfolio struct {
	Positions []Position `json:"positions"`
}

// ParsePortfolio builds a Portfolio from parallel symbol and percent slices.
// Symbols are trimmed and uppercased; rows with an empty symbol or a NaN weight
// are dropped. minSize below 1 is treated as 1.
func ParsePortfolio(symbols []string, percents []float64, minSize int) (*Portfolio, error) {
	if len(symbols) != len(percents) {
		return nil, fmt.Errorf("%w: %d symbols but %d weights", ErrInvalidWeight, len(symbols), len(percents))
	}
	if minSize < 1 {
		minSize = 1
	}

	p := &Portfolio{Positions: make([]Position, 0, len(symbols))}
	seen := make(map[string]struct{}, len(symbols))
	for i, raw := range symbols {
		symbol := strings.ToUpper(strings.TrimSpace(raw))
		pct := percents[i]
		if symbol == "" || math.IsNaN(pct) {
			continue
		}
		if math.IsInf(pct, 0) || pct < 0 || pct > 100 {
			return nil, fmt.Errorf("%w: %s has %v%%", ErrInvalidWeight, symbol, pct)
		}
		if _, dup := seen[symbol]; dup {
			return nil, fmt.Errorf("%w: %s", ErrDuplicateSymbol, symbol)
		}
		seen[symbol] = struct{}{}
		p.Positions = append(p.Positions, Position{Symbol: symbol, Weight: pct / 100})
	}

	if len(p.Positions) < minSize {
		return nil, fmt.Errorf("%w: need at least %d positions, got %d",
			ErrInsufficientPortfolio, minSize, len(p.Positions))
	}
	return p, nil
}

// Symbols returns the position symbols in order.
func (p *Portfolio) Symbols() []string {
	symbols := make([]string, len(p.Positions))
	for i, pos := range p.Positions {
		symbols[i] = pos.Symbol
	}
	return symbols
}

// Weights returns the position weights as fractions, in order.
func (p *Portfolio) Weights() []float64 {
	weights := make([]float64, len(p.Positions))
	for i, pos := range p.Positions {
		weights[i] = pos.Weight
	}
	return weights
}

// Total returns the sum of all weights.
func (p *Portfolio) Total() float64 {
	total := 0.0
	for _, pos := range p.Positions {
		total += pos.Weight
	}
	return total
}

// CheckFullyAllocated fails with ErrUnbalancedPortfolio unless the weights sum
// to 1 within tolerance.
func (p *Portfolio) CheckFullyAllocated(tolerance float64) error {
	total := p.Total()
	if math.Abs(total-1) > tolerance {
		return fmt.Errorf("%w: total is %.2f%%", ErrUnbalancedPortfolio, total*100)
	}
	return nil
}
