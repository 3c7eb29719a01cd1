// Package rebalancing provides the portfolio weight-rebalancing engine and the
// service that exposes it to the HTTP and CLI surfaces.
package rebalancing

import (
	"fmt"
	"strings"
)

// Position-size bounds and convergence constants.
const (
	MinWeight            = 0.03 // 3% floor per position
	MaxWeight            = 0.35 // 35% cap per position
	ConvergenceThreshold = 0.05 // stop once every drift is under 5 percentage points
	DampingFactor        = 0.5  // move the worst offender halfway to its target
	MaxIterations        = 10
	MinPortfolioSize     = 2 // product rule, enforced by callers of the engine
)

// Method selects how target weights are derived before bounding.
type Method string

const (
	// MethodMarketCap targets each holding's share of total market capitalization.
	MethodMarketCap Method = "market_cap"
	// MethodEqual targets 1/N for every holding.
	MethodEqual Method = "equal"
)

// ParseMethod converts user input into a Method.
// Empty input defaults to market-cap weighting.
func ParseMethod(s string) (Method, error) {
	switch Method(strings.ToLower(strings.TrimSpace(s))) {
	case "", MethodMarketCap:
		return MethodMarketCap, nil
	case MethodEqual:
		return MethodEqual, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrInvalidMethod, s)
	}
}

// Valid reports whether m is one of the recognised methods.
func (m Method) Valid() bool {
	return m == MethodMarketCap || m == MethodEqual
}

// WeightVector maps a symbol to its portfolio weight as a fraction.
type WeightVector map[string]float64

// Sum returns the total of all weights.
func (w WeightVector) Sum() float64 {
	total := 0.0
	for _, v := range w {
		total += v
	}
	return total
}

// HoldingAnalysis is the per-symbol data supplied by the external analysis service.
// Only MarketCapWeight is consumed by the engine; the rest is carried for display.
type HoldingAnalysis struct {
	AssignedWeight  *float64 `json:"assigned_weight,omitempty"`
	MarketCapWeight *float64 `json:"market_cap_weight,omitempty"`
	Price           float64  `json:"price,omitempty"`
	MarketCap       float64  `json:"market_cap,omitempty"`
}

// CorrelationFlag marks a pair of holdings whose prices move together.
// Level is the grade assigned by the analysis service.
type CorrelationFlag struct {
	Level string  `json:"level"`
	Value float64 `json:"value"`
}

// MarketAnalysis is the analysis service's view of a portfolio. Correlation
// flags are keyed by symbol pair, e.g. "AAPL-MSFT".
type MarketAnalysis struct {
	Holdings         map[string]HoldingAnalysis `json:"weight_analysis"`
	CorrelationFlags map[string]CorrelationFlag `json:"correlation_flags,omitempty"`
}

// Float returns a pointer to v. Used to populate optional HoldingAnalysis fields.
func Float(v float64) *float64 {
	return &v
}

// Options tunes the engine. DefaultOptions reproduces the standard product behaviour.
type Options struct {
	MinWeight            float64 `json:"min_weight"`
	MaxWeight            float64 `json:"max_weight"`
	ConvergenceThreshold float64 `json:"convergence_threshold"`
	DampingFactor        float64 `json:"damping_factor"`
	MaxIterations        int     `json:"max_iterations"`
}

// DefaultOptions returns the bounds and convergence settings used in production.
func DefaultOptions() Options {
	return Options{
		MinWeight:            MinWeight,
		MaxWeight:            MaxWeight,
		ConvergenceThreshold: ConvergenceThreshold,
		DampingFactor:        DampingFactor,
		MaxIterations:        MaxIterations,
	}
}

// Validate checks that the options describe a usable engine.
func (o Options) Validate() error {
	switch {
	case o.MinWeight < 0 || o.MinWeight > 1:
		return fmt.Errorf("min weight %.4f outside [0, 1]", o.MinWeight)
	case o.MaxWeight <= 0 || o.MaxWeight > 1:
		return fmt.Errorf("max weight %.4f outside (0, 1]", o.MaxWeight)
	case o.MinWeight > o.MaxWeight:
		return fmt.Errorf("min weight %.4f exceeds max weight %.4f", o.MinWeight, o.MaxWeight)
	case o.ConvergenceThreshold <= 0:
		return fmt.Errorf("convergence threshold must be positive, got %.4f", o.ConvergenceThreshold)
	case o.DampingFactor <= 0 || o.DampingFactor > 1:
		return fmt.Errorf("damping factor %.4f outside (0, 1]", o.DampingFactor)
	case o.MaxIterations < 0:
		return fmt.Errorf("max iterations must not be negative, got %d", o.MaxIterations)
	}
	return nil
}
