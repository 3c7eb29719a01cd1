package rebalancing

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

const (
	defaultListLimit = 20
	maxListLimit     = 100
)

// AnalysisProvider fetches market data for a portfolio. weights are fractions
// in symbol order, as returned by Portfolio.Weights.
type AnalysisProvider interface {
	Analyze(ctx context.Context, symbols []string, weights []float64) (*MarketAnalysis, error)
}

// RecommendationStore keeps computed recommendations for later retrieval.
type RecommendationStore interface {
	Save(rec *Recommendation) error
	GetByID(id string) (*Recommendation, error)
	ListRecent(limit int) ([]Recommendation, error)
}

// RecommendRequest asks for a rebalanced portfolio. Weights are percentages.
type RecommendRequest struct {
	Symbols        []string                   `json:"symbols"`
	Weights        []float64                  `json:"weights"`
	Method         string                     `json:"method,omitempty"`
	WeightAnalysis map[string]HoldingAnalysis `json:"weight_analysis,omitempty"`
}

// DriftRequest asks how far a portfolio sits from market-cap weighting.
type DriftRequest struct {
	Symbols          []string                   `json:"symbols"`
	Weights          []float64                  `json:"weights"`
	WeightAnalysis   map[string]HoldingAnalysis `json:"weight_analysis,omitempty"`
	CorrelationFlags map[string]CorrelationFlag `json:"correlation_flags,omitempty"`
}

// RecommendedHolding is one row of a recommendation. Weights are fractions.
type RecommendedHolding struct {
	Symbol            string  `json:"symbol"`
	CurrentWeight     float64 `json:"current_weight"`
	TargetWeight      float64 `json:"target_weight"`
	RecommendedWeight float64 `json:"recommended_weight"`
	Change            float64 `json:"change"`
	DisplayPercent    string  `json:"display_percent"` // two decimals, rows sum to 100.00
}

// Recommendation is the outcome of one rebalancing run.
type Recommendation struct {
	UUID         string               `json:"uuid"`
	Method       Method               `json:"method"`
	Holdings     []RecommendedHolding `json:"holdings"`
	Iterations   int                  `json:"iterations"`
	Converged    bool                 `json:"converged"`
	MaxDeviation float64              `json:"max_deviation"`
	CreatedAt    time.Time            `json:"created_at"`
}

// Weights returns the recommended weights keyed by symbol.
func (r *Recommendation) Weights() WeightVector {
	weights := make(WeightVector, len(r.Holdings))
	for _, h := range r.Holdings {
		weights[h.Symbol] = h.RecommendedWeight
	}
	return weights
}

// ServiceConfig holds the product rules applied around the engine.
type ServiceConfig struct {
	MinPortfolioSize int
	Drift            DriftThresholds
}

// DefaultServiceConfig returns the standard product rules.
func DefaultServiceConfig() ServiceConfig {
	return ServiceConfig{
		MinPortfolioSize: MinPortfolioSize,
		Drift:            DefaultDriftThresholds(),
	}
}

// Settings describes the active engine and service configuration.
type Settings struct {
	Engine           Options         `json:"engine"`
	Drift            DriftThresholds `json:"drift"`
	MinPortfolioSize int             `json:"min_portfolio_size"`
}

// Service orchestrates rebalancing: input validation, market data lookup,
// the engine run and recommendation history.
type Service struct {
	engine   *Engine
	analysis AnalysisProvider    // optional
	store    RecommendationStore // optional
	cfg      ServiceConfig
	now      func() time.Time
	log      zerolog.Logger
}

// NewService creates a new rebalancing service.
// analysis and store may be nil; without a provider every request must carry
// its own weight analysis, and without a store nothing is remembered.
func NewService(
	engine *Engine,
	analysis AnalysisProvider,
	store RecommendationStore,
	cfg ServiceConfig,
	log zerolog.Logger,
) *Service {
	return &Service{
		engine:   engine,
		analysis: analysis,
		store:    store,
		cfg:      cfg,
		now:      time.Now,
		log:      log.With().Str("service", "rebalancing").Logger(),
	}
}

// Settings returns the active configuration.
func (s *Service) Settings() Settings {
	return Settings{
		Engine:           s.engine.Options(),
		Drift:            s.cfg.Drift,
		MinPortfolioSize: s.cfg.MinPortfolioSize,
	}
}

// Recommend computes rebalanced weights for the requested portfolio.
func (s *Service) Recommend(ctx context.Context, req RecommendRequest) (*Recommendation, error) {
	method, err := ParseMethod(req.Method)
	if err != nil {
		return nil, err
	}

	portfolio, err := ParsePortfolio(req.Symbols, req.Weights, s.cfg.MinPortfolioSize)
	if err != nil {
		return nil, err
	}

	var analysis map[string]HoldingAnalysis
	if method == MethodMarketCap {
		market, err := s.resolveAnalysis(ctx, portfolio, req.WeightAnalysis, nil)
		if err != nil {
			return nil, err
		}
		analysis = market.Holdings
	}

	result, err := s.engine.Run(portfolio.Symbols(), analysis, method)
	if err != nil {
		return nil, err
	}

	percents, err := DisplayPercents(result.Weights)
	if err != nil {
		return nil, fmt.Errorf("failed to format weights: %w", err)
	}

	rec := &Recommendation{
		UUID:         uuid.New().String(),
		Method:       method,
		Holdings:     make([]RecommendedHolding, len(portfolio.Positions)),
		Iterations:   result.Iterations,
		Converged:    result.Converged,
		MaxDeviation: result.MaxDeviation,
		CreatedAt:    s.now().UTC(),
	}
	for i, pos := range portfolio.Positions {
		rec.Holdings[i] = RecommendedHolding{
			Symbol:            pos.Symbol,
			CurrentWeight:     pos.Weight,
			TargetWeight:      result.Targets[i],
			RecommendedWeight: result.Weights[i],
			Change:            result.Weights[i] - pos.Weight,
			DisplayPercent:    percents[i].StringFixed(2),
		}
	}

	if s.store != nil {
		if err := s.store.Save(rec); err != nil {
			// History is a convenience; the caller still gets the result.
			s.log.Warn().Err(err).Str("uuid", rec.UUID).Msg("Failed to store recommendation")
		}
	}

	s.log.Info().
		Str("uuid", rec.UUID).
		Str("method", string(method)).
		Int("positions", len(rec.Holdings)).
		Int("iterations", rec.Iterations).
		Bool("converged", rec.Converged).
		Msg("Computed rebalancing recommendation")

	return rec, nil
}

// Drift grades how far each holding sits from its market-cap weight. Any
// correlation flags supplied or fetched along the way are attached to the report.
func (s *Service) Drift(ctx context.Context, req DriftRequest) (*DriftReport, error) {
	portfolio, err := ParsePortfolio(req.Symbols, req.Weights, s.cfg.MinPortfolioSize)
	if err != nil {
		return nil, err
	}
	if err := portfolio.CheckFullyAllocated(DefaultAllocationTolerance); err != nil {
		return nil, err
	}

	market, err := s.resolveAnalysis(ctx, portfolio, req.WeightAnalysis, req.CorrelationFlags)
	if err != nil {
		return nil, err
	}

	report, err := AnalyzeDrift(portfolio, market.Holdings, s.cfg.Drift)
	if err != nil {
		return nil, err
	}
	if len(market.CorrelationFlags) > 0 {
		report.CorrelationFlags = market.CorrelationFlags
	}
	return report, nil
}

// GetRecommendation returns a stored recommendation by UUID.
func (s *Service) GetRecommendation(id string) (*Recommendation, error) {
	if s.store == nil {
		return nil, fmt.Errorf("%w: %s", ErrRecommendationNotFound, id)
	}
	return s.store.GetByID(id)
}

// ListRecommendations returns the most recent recommendations, newest first.
func (s *Service) ListRecommendations(limit int) ([]Recommendation, error) {
	if s.store == nil {
		return []Recommendation{}, nil
	}
	if limit <= 0 {
		limit = defaultListLimit
	}
	if limit > maxListLimit {
		limit = maxListLimit
	}
	return s.store.ListRecent(limit)
}

// resolveAnalysis returns analysis data with a market-cap weight for every
// symbol when it can be found. Supplied data wins over fetched data. Gaps
// that remain are reported by the engine as ErrMissingData. The provider is
// only called when the supplied data cannot yield every market-cap weight.
func (s *Service) resolveAnalysis(
	ctx context.Context,
	portfolio *Portfolio,
	supplied map[string]HoldingAnalysis,
	flags map[string]CorrelationFlag,
) (*MarketAnalysis, error) {
	symbols := portfolio.Symbols()

	market := &MarketAnalysis{
		Holdings:         make(map[string]HoldingAnalysis, len(supplied)),
		CorrelationFlags: make(map[string]CorrelationFlag, len(flags)),
	}
	for symbol, data := range supplied {
		market.Holdings[strings.ToUpper(strings.TrimSpace(symbol))] = data
	}
	for pair, flag := range flags {
		market.CorrelationFlags[strings.ToUpper(strings.TrimSpace(pair))] = flag
	}
	if hasMarketCapWeights(symbols, market.Holdings) || FillMarketCapWeights(symbols, market.Holdings) == nil {
		return market, nil
	}
	if s.analysis == nil {
		return market, nil
	}

	fetched, err := s.analysis.Analyze(ctx, symbols, portfolio.Weights())
	if err != nil {
		return nil, fmt.Errorf("failed to fetch weight analysis: %w", err)
	}

	for _, symbol := range symbols {
		current, ok := market.Holdings[symbol]
		if ok && current.MarketCapWeight != nil {
			continue
		}
		if data, found := fetched.Holdings[symbol]; found {
			market.Holdings[symbol] = data
		}
	}
	for pair, flag := range fetched.CorrelationFlags {
		if _, ok := market.CorrelationFlags[pair]; !ok {
			market.CorrelationFlags[pair] = flag
		}
	}
	if !hasMarketCapWeights(symbols, market.Holdings) {
		if err := FillMarketCapWeights(symbols, market.Holdings); err != nil {
			s.log.Debug().Err(err).Msg("Weight analysis still incomplete")
		}
	}

	return market, nil
}

func hasMarketCapWeights(symbols []string, analysis map[string]HoldingAnalysis) bool {
	for _, symbol := range symbols {
		data, ok := analysis[symbol]
		if !ok || data.MarketCapWeight == nil {
			return false
		}
	}
	return true
}
