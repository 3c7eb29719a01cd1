// Package analysis provides a client for the portfolio analysis service, which
// supplies prices, market caps and market-cap weights for a set of symbols.
package analysis

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/aristath/ballast/internal/clientdata"
	"github.com/aristath/ballast/internal/modules/rebalancing"
	"github.com/rs/zerolog"
)

// Response is the body returned by POST /analyze.
type Response struct {
	WeightAnalysis    map[string]rebalancing.HoldingAnalysis `json:"weight_analysis"`
	CorrelationFlags  map[string]rebalancing.CorrelationFlag `json:"correlation_flags,omitempty"`
	CorrelationMatrix map[string]map[string]float64          `json:"correlation_matrix,omitempty"`
}

// analyzeRequest carries weights as fractions summing to 1.
type analyzeRequest struct {
	Symbols []string  `json:"symbols"`
	Weights []float64 `json:"weights"`
}

// Client talks to the analysis service.
type Client struct {
	baseURL   string
	client    *http.Client
	log       zerolog.Logger
	cacheRepo *clientdata.Repository
}

// NewClient creates a new analysis service client.
// cacheRepo is optional - if nil, caching is disabled
func NewClient(baseURL string, timeout time.Duration, cacheRepo *clientdata.Repository, log zerolog.Logger) *Client {
	return &Client{
		baseURL:   strings.TrimRight(baseURL, "/"),
		client:    &http.Client{Timeout: timeout},
		log:       log.With().Str("client", "analysis").Logger(),
		cacheRepo: cacheRepo,
	}
}

// Analyze returns the weight analysis and correlation flags for symbols.
// weights are fractions. It implements rebalancing.AnalysisProvider.
func (c *Client) Analyze(ctx context.Context, symbols []string, weights []float64) (*rebalancing.MarketAnalysis, error) {
	resp, err := c.Fetch(ctx, symbols, weights)
	if err != nil {
		return nil, err
	}
	return &rebalancing.MarketAnalysis{
		Holdings:         resp.WeightAnalysis,
		CorrelationFlags: resp.CorrelationFlags,
	}, nil
}

// Fetch returns the full analysis response, cache-first. weights are
// fractions. If the service fails, stale cached data is returned when
// available.
func (c *Client) Fetch(ctx context.Context, symbols []string, weights []float64) (*Response, error) {
	if len(symbols) != len(weights) {
		return nil, fmt.Errorf("got %d symbols but %d weights", len(symbols), len(weights))
	}

	cacheKey := CacheKey(symbols, weights)

	if cached, ok := c.getFreshFromCache(cacheKey); ok {
		return cached, nil
	}

	resp, err := c.post(ctx, symbols, weights)
	if err != nil {
		if stale, ok := c.getStaleFromCache(cacheKey, symbols); ok {
			c.log.Warn().
				Err(err).
				Strs("symbols", symbols).
				Msg("Analysis service failed, using stale cached data")
			return stale, nil
		}
		return nil, err
	}

	c.store(cacheKey, resp)

	c.log.Info().
		Strs("symbols", symbols).
		Int("holdings", len(resp.WeightAnalysis)).
		Msg("Fetched weight analysis")

	return resp, nil
}

func (c *Client) post(ctx context.Context, symbols []string, weights []float64) (*Response, error) {
	body, err := json.Marshal(analyzeRequest{Symbols: symbols, Weights: weights})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	url := c.baseURL + "/analyze"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	c.log.Debug().Str("url", url).Int("symbols", len(symbols)).Msg("Requesting weight analysis")

	httpResp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("analysis request failed: %w", err)
	}
	defer httpResp.Body.Close()

	if httpResp.StatusCode != http.StatusOK {
		snippet, _ := io.ReadAll(io.LimitReader(httpResp.Body, 512))
		return nil, fmt.Errorf("analysis service returned status %d: %s",
			httpResp.StatusCode, strings.TrimSpace(string(snippet)))
	}

	var resp Response
	if err := json.NewDecoder(httpResp.Body).Decode(&resp); err != nil {
		return nil, fmt.Errorf("failed to parse analysis response: %w", err)
	}
	if len(resp.WeightAnalysis) == 0 {
		return nil, fmt.Errorf("analysis response has no weight analysis")
	}

	return &resp, nil
}

func (c *Client) store(cacheKey string, resp *Response) {
	if c.cacheRepo == nil {
		return
	}

	if err := c.cacheRepo.SaveAnalysis(cacheKey, resp); err != nil {
		c.log.Warn().Err(err).Str("key", cacheKey).Msg("Failed to cache weight analysis")
	}

	securities := make([]clientdata.Security, 0, len(resp.WeightAnalysis))
	for symbol, data := range resp.WeightAnalysis {
		securities = append(securities, clientdata.Security{
			Symbol:    symbol,
			Price:     data.Price,
			MarketCap: data.MarketCap,
		})
	}
	if _, err := c.cacheRepo.SaveSecurities(securities); err != nil {
		c.log.Warn().Err(err).Int("securities", len(securities)).Msg("Failed to cache securities")
	}
}

// getFreshFromCache returns the cached response for cacheKey if it has not
// expired. An entry that no longer decodes is dropped.
func (c *Client) getFreshFromCache(cacheKey string) (*Response, bool) {
	if c.cacheRepo == nil {
		return nil, false
	}

	var cached Response
	freshness, err := c.cacheRepo.LoadAnalysis(cacheKey, &cached)
	if err != nil {
		c.log.Warn().Err(err).Str("key", cacheKey).Msg("Dropping unreadable cache entry")
		if err := c.cacheRepo.InvalidateAnalysis(cacheKey); err != nil {
			c.log.Warn().Err(err).Str("key", cacheKey).Msg("Failed to drop cache entry")
		}
		return nil, false
	}
	if freshness != clientdata.Fresh {
		return nil, false
	}

	c.log.Debug().Str("key", cacheKey).Msg("Cache hit")
	return &cached, true
}

// getStaleFromCache retrieves cached analysis even if expired. Without a
// cached response for this portfolio, one is rebuilt from per-symbol market
// caps (without market-cap weights, which the caller derives).
func (c *Client) getStaleFromCache(cacheKey string, symbols []string) (*Response, bool) {
	if c.cacheRepo == nil {
		return nil, false
	}

	var cached Response
	if freshness, err := c.cacheRepo.LoadAnalysis(cacheKey, &cached); err == nil && freshness != clientdata.Missing {
		return &cached, true
	}

	securities, err := c.cacheRepo.LoadSecurities(symbols)
	if err != nil || len(securities) != len(symbols) {
		return nil, false
	}

	rebuilt := &Response{WeightAnalysis: make(map[string]rebalancing.HoldingAnalysis, len(symbols))}
	for _, symbol := range symbols {
		sec := securities[symbol]
		rebuilt.WeightAnalysis[symbol] = rebalancing.HoldingAnalysis{
			Price:     sec.Price,
			MarketCap: sec.MarketCap,
		}
	}
	return rebuilt, true
}

// CacheKey identifies a portfolio: symbols and fractional weights in input order.
func CacheKey(symbols []string, weights []float64) string {
	parts := make([]string, len(symbols))
	for i, symbol := range symbols {
		parts[i] = symbol + ":" + strconv.FormatFloat(weights[i], 'f', 6, 64)
	}
	return strings.Join(parts, "|")
}
