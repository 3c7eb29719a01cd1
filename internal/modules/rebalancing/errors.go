package rebalancing

import "errors"

// Failure kinds surfaced by the engine and the service around it.
// Callers match them with errors.Is; messages carry the offending symbol.
var (
	ErrInvalidMethod          = errors.New("invalid rebalancing method")
	ErrMissingData            = errors.New("missing market cap weight")
	ErrDegenerateVector       = errors.New("degenerate weight vector")
	ErrWeightOutOfRange       = errors.New("rebalanced weight outside [0, 1]")
	ErrInsufficientPortfolio  = errors.New("insufficient portfolio")
	ErrDuplicateSymbol        = errors.New("duplicate symbol")
	ErrInvalidWeight          = errors.New("invalid weight")
	ErrUnbalancedPortfolio    = errors.New("portfolio weights do not sum to 100%")
	ErrRecommendationNotFound = errors.New("recommendation not found")
)

// IsInputError reports whether err was caused by the caller's input rather than
// by the engine or an external dependency.
func IsInputError(err error) bool {
	return errors.Is(err, ErrInvalidMethod) ||
		errors.Is(err, ErrMissingData) ||
		errors.Is(err, ErrInsufficientPortfolio) ||
		errors.Is(err, ErrDuplicateSymbol) ||
		errors.Is(err, ErrInvalidWeight) ||
		errors.Is(err, ErrUnbalancedPortfolio)
}
