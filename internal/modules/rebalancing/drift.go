package rebalancing

import (
	"fmt"
	"math"
)

// DriftLevel grades how far a holding sits from its market-cap weight.
type DriftLevel string

const (
	DriftLow    DriftLevel = "low"
	DriftMedium DriftLevel = "medium"
	DriftHigh   DriftLevel = "high"
)

// DriftThresholds are the absolute differences (as fractions) above which a
// holding is graded medium or high.
type DriftThresholds struct {
	Medium float64 `json:"medium"`
	High   float64 `json:"high"`
}

// DefaultDriftThresholds returns 5 and 15 percentage points.
func DefaultDriftThresholds() DriftThresholds {
	return DriftThresholds{Medium: 0.05, High: 0.15}
}

// Classify grades an absolute difference. Both bounds are exclusive.
func (t DriftThresholds) Classify(difference float64) DriftLevel {
	abs := math.Abs(difference)
	switch {
	case abs > t.High:
		return DriftHigh
	case abs > t.Medium:
		return DriftMedium
	default:
		return DriftLow
	}
}

// HoldingDrift is the drift of a single holding.
type HoldingDrift struct {
	Symbol          string     `json:"symbol"`
	AssignedWeight  float64    `json:"assigned_weight"`
	MarketCapWeight float64    `json:"market_cap_weight"`
	Difference      float64    `json:"difference"`
	Level           DriftLevel `json:"level"`
	Price           float64    `json:"price,omitempty"`
	MarketCap       float64    `json:"market_cap,omitempty"`
}

// DriftReport summarises drift across a portfolio, holdings in input order.
type DriftReport struct {
	Holdings         []HoldingDrift             `json:"holdings"`
	MaxDrift         float64                    `json:"max_drift"`
	Level            DriftLevel                 `json:"level"`
	CorrelationFlags map[string]CorrelationFlag `json:"correlation_flags,omitempty"`
}

// AnalyzeDrift compares each assigned weight with its market-cap weight.
// The portfolio must be fully allocated.
func AnalyzeDrift(p *Portfolio, analysis map[string]HoldingAnalysis, thresholds DriftThresholds) (*DriftReport, error) {
	if err := p.CheckFullyAllocated(DefaultAllocationTolerance); err != nil {
		return nil, err
	}

	report := &DriftReport{
		Holdings: make([]HoldingDrift, 0, len(p.Positions)),
		Level:    DriftLow,
	}
	for _, pos := range p.Positions {
		data, ok := analysis[pos.Symbol]
		if !ok || data.MarketCapWeight == nil {
			return nil, fmt.Errorf("%w: %s", ErrMissingData, pos.Symbol)
		}

		difference := pos.Weight - *data.MarketCapWeight
		holding := HoldingDrift{
			Symbol:          pos.Symbol,
			AssignedWeight:  pos.Weight,
			MarketCapWeight: *data.MarketCapWeight,
			Difference:      difference,
			Level:           thresholds.Classify(difference),
			Price:           data.Price,
			MarketCap:       data.MarketCap,
		}
		report.Holdings = append(report.Holdings, holding)

		if abs := math.Abs(difference); abs > report.MaxDrift {
			report.MaxDrift = abs
		}
	}
	report.Level = thresholds.Classify(report.MaxDrift)

	return report, nil
}

// MarketCapWeights derives each symbol's share of the combined market cap.
func MarketCapWeights(symbols []string, caps map[string]float64) (map[string]float64, error) {
	total := 0.0
	for _, symbol := range symbols {
		c, ok := caps[symbol]
		if !ok {
			return nil, fmt.Errorf("%w: no market cap for %s", ErrMissingData, symbol)
		}
		if c < 0 || math.IsNaN(c) || math.IsInf(c, 0) {
			return nil, fmt.Errorf("%w: market cap %v for %s", ErrInvalidWeight, c, symbol)
		}
		total += c
	}
	if total <= 0 {
		return nil, fmt.Errorf("%w: combined market cap is zero", ErrDegenerateVector)
	}

	weights := make(map[string]float64, len(symbols))
	for _, symbol := range symbols {
		weights[symbol] = caps[symbol] / total
	}
	return weights, nil
}

// FillMarketCapWeights sets MarketCapWeight from MarketCap for every entry that
// lacks one. Every symbol must carry a positive market cap for the shares to be
// comparable.
func FillMarketCapWeights(symbols []string, analysis map[string]HoldingAnalysis) error {
	missing := false
	caps := make(map[string]float64, len(symbols))
	for _, symbol := range symbols {
		data, ok := analysis[symbol]
		if !ok {
			return fmt.Errorf("%w: %s", ErrMissingData, symbol)
		}
		if data.MarketCapWeight == nil {
			missing = true
		}
		caps[symbol] = data.MarketCap
	}
	if !missing {
		return nil
	}
	for _, symbol := range symbols {
		if caps[symbol] <= 0 {
			return fmt.Errorf("%w: no market cap for %s", ErrMissingData, symbol)
		}
	}

	weights, err := MarketCapWeights(symbols, caps)
	if err != nil {
		return err
	}
	for _, symbol := range symbols {
		data := analysis[symbol]
		if data.MarketCapWeight == nil {
			data.MarketCapWeight = Float(weights[symbol])
			analysis[symbol] = data
		}
	}
	return nil
}
