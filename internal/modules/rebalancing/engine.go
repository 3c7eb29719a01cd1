package rebalancing

import (
	"fmt"
	"math"

	"github.com/rs/zerolog"
)

// Engine computes rebalanced weight vectors. It holds only immutable options and a
// logger, so a single Engine can serve concurrent callers.
type Engine struct {
	opts Options
	log  zerolog.Logger
}

// Result carries the rebalanced weights together with the intermediate vectors
// that produced them, all in input order.
type Result struct {
	Symbols      []string
	Method       Method
	Targets      []float64 // unbounded targets from the selector
	Bounded      []float64 // clamped and normalised starting point of the loop
	Weights      []float64 // final normalised weights
	Iterations   int
	MaxDeviation float64
	Converged    bool
}

// Vector returns the final weights keyed by symbol.
func (r *Result) Vector() WeightVector {
	vector := make(WeightVector, len(r.Symbols))
	for i, symbol := range r.Symbols {
		vector[symbol] = r.Weights[i]
	}
	return vector
}

// NewEngine creates an engine with the given options.
func NewEngine(opts Options, log zerolog.Logger) (*Engine, error) {
	if err := opts.Validate(); err != nil {
		return nil, fmt.Errorf("invalid engine options: %w", err)
	}
	return &Engine{
		opts: opts,
		log:  log.With().Str("component", "rebalancing_engine").Logger(),
	}, nil
}

// NewDefaultEngine creates an engine with DefaultOptions.
func NewDefaultEngine(log zerolog.Logger) *Engine {
	return &Engine{
		opts: DefaultOptions(),
		log:  log.With().Str("component", "rebalancing_engine").Logger(),
	}
}

// Options returns the options the engine was built with.
func (e *Engine) Options() Options {
	return e.opts
}

// Rebalance returns the rebalanced weight of every symbol.
// The returned keys are exactly the input symbols and the weights sum to 1.
func (e *Engine) Rebalance(symbols []string, analysis map[string]HoldingAnalysis, method Method) (WeightVector, error) {
	result, err := e.Run(symbols, analysis, method)
	if err != nil {
		return nil, err
	}
	return result.Vector(), nil
}

// Run executes selector, bound enforcer, normalizer, convergence loop and the
// final normalizer, and reports the intermediate state.
func (e *Engine) Run(symbols []string, analysis map[string]HoldingAnalysis, method Method) (*Result, error) {
	if len(symbols) == 0 {
		return nil, fmt.Errorf("%w: no symbols supplied", ErrInsufficientPortfolio)
	}
	if err := checkUnique(symbols); err != nil {
		return nil, err
	}

	targets, err := TargetWeights(symbols, analysis, method)
	if err != nil {
		return nil, err
	}

	bounded, err := Normalize(ClampWeights(targets, e.opts.MinWeight, e.opts.MaxWeight))
	if err != nil {
		return nil, fmt.Errorf("failed to normalize bounded targets: %w", err)
	}

	converged := Converge(bounded, targets, ConvergenceOptions{
		Threshold:     e.opts.ConvergenceThreshold,
		Damping:       e.opts.DampingFactor,
		MaxIterations: e.opts.MaxIterations,
	})

	weights, err := Normalize(converged.Weights)
	if err != nil {
		return nil, fmt.Errorf("failed to normalize converged weights: %w", err)
	}

	if err := checkRange(symbols, weights); err != nil {
		return nil, err
	}

	e.log.Debug().
		Str("method", string(method)).
		Int("symbols", len(symbols)).
		Int("iterations", converged.Iterations).
		Float64("max_deviation", converged.MaxDeviation).
		Bool("converged", converged.Converged).
		Msg("Rebalanced weights")

	return &Result{
		Symbols:      append([]string(nil), symbols...),
		Method:       method,
		Targets:      targets,
		Bounded:      bounded,
		Weights:      weights,
		Iterations:   converged.Iterations,
		MaxDeviation: converged.MaxDeviation,
		Converged:    converged.Converged,
	}, nil
}

// checkRange rejects a vector with a weight outside [0, 1]. The loop is not
// re-clamped, so it can push a small holding below zero.
func checkRange(symbols []string, weights []float64) error {
	for i, w := range weights {
		if w < 0 || w > 1 || math.IsNaN(w) {
			return fmt.Errorf("%w: %s ended at %.6f", ErrWeightOutOfRange, symbols[i], w)
		}
	}
	return nil
}

func checkUnique(symbols []string) error {
	seen := make(map[string]struct{}, len(symbols))
	for _, symbol := range symbols {
		if _, dup := seen[symbol]; dup {
			return fmt.Errorf("%w: %s", ErrDuplicateSymbol, symbol)
		}
		seen[symbol] = struct{}{}
	}
	return nil
}
