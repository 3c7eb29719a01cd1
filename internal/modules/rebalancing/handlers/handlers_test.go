package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/aristath/ballast/internal/modules/rebalancing"
	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"github.com/vmihailenco/msgpack/v5"
)

type mockService struct {
	mock.Mock
}

func (m *mockService) Recommend(ctx context.Context, req rebalancing.RecommendRequest) (*rebalancing.Recommendation, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*rebalancing.Recommendation), args.Error(1)
}

func (m *mockService) Drift(ctx context.Context, req rebalancing.DriftRequest) (*rebalancing.DriftReport, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*rebalancing.DriftReport), args.Error(1)
}

func (m *mockService) GetRecommendation(id string) (*rebalancing.Recommendation, error) {
	args := m.Called(id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*rebalancing.Recommendation), args.Error(1)
}

func (m *mockService) ListRecommendations(limit int) ([]rebalancing.Recommendation, error) {
	args := m.Called(limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]rebalancing.Recommendation), args.Error(1)
}

func (m *mockService) Settings() rebalancing.Settings {
	args := m.Called()
	return args.Get(0).(rebalancing.Settings)
}

func newRouter(service Service) http.Handler {
	handler := NewHandler(service, zerolog.Nop())
	r := chi.NewRouter()
	r.Route("/api", handler.RegisterRoutes)
	return r
}

func doJSON(t *testing.T, h http.Handler, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()

	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func decodeBody(t *testing.T, w *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var response map[string]interface{}
	require.NoError(t, json.NewDecoder(w.Body).Decode(&response))
	return response
}

func TestHandleRecommend(t *testing.T) {
	service := new(mockService)
	rec := &rebalancing.Recommendation{
		UUID:   "rec-1",
		Method: rebalancing.MethodEqual,
		Holdings: []rebalancing.RecommendedHolding{
			{Symbol: "AAPL", RecommendedWeight: 0.5, DisplayPercent: "50.00"},
			{Symbol: "MSFT", RecommendedWeight: 0.5, DisplayPercent: "50.00"},
		},
		Converged: true,
		CreatedAt: time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC),
	}
	expected := rebalancing.RecommendRequest{
		Symbols: []string{"AAPL", "MSFT"},
		Weights: []float64{70, 30},
		Method:  "equal",
	}
	service.On("Recommend", mock.Anything, expected).Return(rec, nil).Once()

	w := doJSON(t, newRouter(service), http.MethodPost, "/api/rebalancing/recommend", map[string]interface{}{
		"symbols": []string{"AAPL", "MSFT"},
		"weights": []float64{70, 30},
		"method":  "equal",
	})

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "application/json", w.Header().Get("Content-Type"))

	response := decodeBody(t, w)
	assert.Contains(t, response, "metadata")
	data := response["data"].(map[string]interface{})
	assert.Equal(t, "rec-1", data["uuid"])
	holdings := data["holdings"].([]interface{})
	require.Len(t, holdings, 2)
	assert.Equal(t, "50.00", holdings[0].(map[string]interface{})["display_percent"])

	service.AssertExpectations(t)
}

func TestHandleRecommend_InvalidBody(t *testing.T) {
	service := new(mockService)
	router := newRouter(service)

	req := httptest.NewRequest(http.MethodPost, "/api/rebalancing/recommend", bytes.NewBufferString("{not json"))
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	// Unknown fields are rejected
	w = doJSON(t, router, http.MethodPost, "/api/rebalancing/recommend", map[string]interface{}{
		"symbols":        []string{"AAPL"},
		"weights":        []float64{100},
		"available_cash": 1000,
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	service.AssertNotCalled(t, "Recommend", mock.Anything, mock.Anything)
}

func TestHandleRecommend_ErrorStatus(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		status int
	}{
		{"invalid method", fmt.Errorf("%w: %q", rebalancing.ErrInvalidMethod, "foo"), http.StatusBadRequest},
		{"missing data", fmt.Errorf("%w: KO", rebalancing.ErrMissingData), http.StatusBadRequest},
		{"insufficient", rebalancing.ErrInsufficientPortfolio, http.StatusBadRequest},
		{"duplicate", rebalancing.ErrDuplicateSymbol, http.StatusBadRequest},
		{"degenerate", rebalancing.ErrDegenerateVector, http.StatusUnprocessableEntity},
		{"out of range", fmt.Errorf("%w: C ended at -0.004110", rebalancing.ErrWeightOutOfRange), http.StatusUnprocessableEntity},
		{"timeout", fmt.Errorf("failed to fetch weight analysis: %w", context.DeadlineExceeded), http.StatusGatewayTimeout},
		{"upstream", fmt.Errorf("failed to fetch weight analysis: %w", errors.New("connection refused")), http.StatusBadGateway},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			service := new(mockService)
			service.On("Recommend", mock.Anything, mock.Anything).Return(nil, tt.err).Once()

			w := doJSON(t, newRouter(service), http.MethodPost, "/api/rebalancing/recommend", map[string]interface{}{
				"symbols": []string{"AAPL", "MSFT"},
				"weights": []float64{50, 50},
			})

			assert.Equal(t, tt.status, w.Code)
			response := decodeBody(t, w)
			errBody := response["error"].(map[string]interface{})
			assert.Equal(t, tt.err.Error(), errBody["message"])
			assert.Equal(t, http.StatusText(tt.status), errBody["code"])
		})
	}
}

func TestHandleDrift(t *testing.T) {
	service := new(mockService)
	report := &rebalancing.DriftReport{
		Holdings: []rebalancing.HoldingDrift{
			{Symbol: "AAPL", AssignedWeight: 0.7, MarketCapWeight: 0.6, Difference: 0.1, Level: rebalancing.DriftMedium},
			{Symbol: "MSFT", AssignedWeight: 0.3, MarketCapWeight: 0.4, Difference: -0.1, Level: rebalancing.DriftMedium},
		},
		MaxDrift: 0.1,
		Level:    rebalancing.DriftMedium,
		CorrelationFlags: map[string]rebalancing.CorrelationFlag{
			"AAPL-MSFT": {Level: "high", Value: 0.71},
		},
	}
	service.On("Drift", mock.Anything, mock.MatchedBy(func(req rebalancing.DriftRequest) bool {
		return len(req.Symbols) == 2 &&
			req.WeightAnalysis["AAPL"].MarketCapWeight != nil &&
			req.CorrelationFlags["AAPL-MSFT"].Level == "high"
	})).Return(report, nil).Once()

	w := doJSON(t, newRouter(service), http.MethodPost, "/api/rebalancing/drift", map[string]interface{}{
		"symbols": []string{"AAPL", "MSFT"},
		"weights": []float64{70, 30},
		"weight_analysis": map[string]interface{}{
			"AAPL": map[string]interface{}{"market_cap_weight": 0.6},
			"MSFT": map[string]interface{}{"market_cap_weight": 0.4},
		},
		"correlation_flags": map[string]interface{}{
			"AAPL-MSFT": map[string]interface{}{"level": "high", "value": 0.71},
		},
	})

	assert.Equal(t, http.StatusOK, w.Code)
	data := decodeBody(t, w)["data"].(map[string]interface{})
	assert.Equal(t, "medium", data["level"])
	flags := data["correlation_flags"].(map[string]interface{})
	pair := flags["AAPL-MSFT"].(map[string]interface{})
	assert.Equal(t, "high", pair["level"])
	assert.Equal(t, 0.71, pair["value"])
	service.AssertExpectations(t)
}

func TestHandleDrift_Unbalanced(t *testing.T) {
	service := new(mockService)
	service.On("Drift", mock.Anything, mock.Anything).
		Return(nil, fmt.Errorf("%w: total is 90.00%%", rebalancing.ErrUnbalancedPortfolio)).Once()

	w := doJSON(t, newRouter(service), http.MethodPost, "/api/rebalancing/drift", map[string]interface{}{
		"symbols": []string{"AAPL", "MSFT"},
		"weights": []float64{60, 30},
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestHandleListRecommendations(t *testing.T) {
	service := new(mockService)
	service.On("ListRecommendations", 5).Return([]rebalancing.Recommendation{{UUID: "a"}, {UUID: "b"}}, nil).Once()
	service.On("ListRecommendations", 0).Return([]rebalancing.Recommendation{}, nil).Once()
	router := newRouter(service)

	w := doJSON(t, router, http.MethodGet, "/api/rebalancing/recommendations?limit=5", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	data := decodeBody(t, w)["data"].(map[string]interface{})
	assert.Equal(t, float64(2), data["count"])

	w = doJSON(t, router, http.MethodGet, "/api/rebalancing/recommendations", nil)
	assert.Equal(t, http.StatusOK, w.Code)

	w = doJSON(t, router, http.MethodGet, "/api/rebalancing/recommendations?limit=abc", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	service.AssertExpectations(t)
}

func TestHandleGetRecommendation(t *testing.T) {
	service := new(mockService)
	service.On("GetRecommendation", "rec-1").Return(&rebalancing.Recommendation{UUID: "rec-1"}, nil).Once()
	service.On("GetRecommendation", "missing").
		Return(nil, fmt.Errorf("%w: missing", rebalancing.ErrRecommendationNotFound)).Once()
	router := newRouter(service)

	w := doJSON(t, router, http.MethodGet, "/api/rebalancing/recommendations/rec-1", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	data := decodeBody(t, w)["data"].(map[string]interface{})
	assert.Equal(t, "rec-1", data["uuid"])

	w = doJSON(t, router, http.MethodGet, "/api/rebalancing/recommendations/missing", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	service.AssertExpectations(t)
}

func TestHandleGetSettings(t *testing.T) {
	service := new(mockService)
	settings := rebalancing.Settings{
		Engine:           rebalancing.DefaultOptions(),
		Drift:            rebalancing.DefaultDriftThresholds(),
		MinPortfolioSize: 2,
	}
	service.On("Settings").Return(settings).Once()

	w := doJSON(t, newRouter(service), http.MethodGet, "/api/rebalancing/settings", nil)
	assert.Equal(t, http.StatusOK, w.Code)

	data := decodeBody(t, w)["data"].(map[string]interface{})
	engine := data["engine"].(map[string]interface{})
	assert.Equal(t, 0.03, engine["min_weight"])
	assert.Equal(t, 0.35, engine["max_weight"])
	assert.Equal(t, float64(10), engine["max_iterations"])
	assert.Equal(t, float64(2), data["min_portfolio_size"])
}

func TestMsgpackNegotiation(t *testing.T) {
	service := new(mockService)
	service.On("Recommend", mock.Anything, mock.MatchedBy(func(req rebalancing.RecommendRequest) bool {
		return req.Method == "equal" && len(req.Symbols) == 2
	})).Return(&rebalancing.Recommendation{UUID: "rec-mp"}, nil).Once()

	body, err := msgpack.Marshal(map[string]interface{}{
		"symbols": []string{"AAPL", "MSFT"},
		"weights": []float64{50, 50},
		"method":  "equal",
	})
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, "/api/rebalancing/recommend", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/msgpack")
	req.Header.Set("Accept", "application/msgpack")
	w := httptest.NewRecorder()
	newRouter(service).ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "application/msgpack", w.Header().Get("Content-Type"))

	var response map[string]interface{}
	require.NoError(t, msgpack.Unmarshal(w.Body.Bytes(), &response))
	data := response["data"].(map[string]interface{})
	assert.Equal(t, "rec-mp", data["uuid"])

	service.AssertExpectations(t)
}

func TestHandleRecommend_WithRealService(t *testing.T) {
	log := zerolog.Nop()
	service := rebalancing.NewService(
		rebalancing.NewDefaultEngine(log),
		nil,
		nil,
		rebalancing.DefaultServiceConfig(),
		log,
	)

	w := doJSON(t, newRouter(service), http.MethodPost, "/api/rebalancing/recommend", map[string]interface{}{
		"symbols": []string{"a", "b", "c", "d"},
		"weights": []float64{40, 30, 20, 10},
		"method":  "equal",
	})
	require.Equal(t, http.StatusOK, w.Code)

	data := decodeBody(t, w)["data"].(map[string]interface{})
	holdings := data["holdings"].([]interface{})
	require.Len(t, holdings, 4)
	for _, h := range holdings {
		row := h.(map[string]interface{})
		assert.InDelta(t, 0.25, row["recommended_weight"], 1e-12)
		assert.Equal(t, "25.00", row["display_percent"])
	}
	assert.Equal(t, "A", holdings[0].(map[string]interface{})["symbol"])

	w = doJSON(t, newRouter(service), http.MethodGet, "/api/rebalancing/recommendations/unknown", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}
