// Package handlers provides HTTP handlers for rebalancing operations.
package handlers

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/aristath/ballast/internal/modules/rebalancing"
	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
)

// maxBodyBytes caps request bodies; portfolios are small.
const maxBodyBytes = 1 << 20

// Service is the subset of the rebalancing service the handlers call.
type Service interface {
	Recommend(ctx context.Context, req rebalancing.RecommendRequest) (*rebalancing.Recommendation, error)
	Drift(ctx context.Context, req rebalancing.DriftRequest) (*rebalancing.DriftReport, error)
	GetRecommendation(id string) (*rebalancing.Recommendation, error)
	ListRecommendations(limit int) ([]rebalancing.Recommendation, error)
	Settings() rebalancing.Settings
}

// Handler handles rebalancing HTTP requests
type Handler struct {
	service Service
	log     zerolog.Logger
}

// NewHandler creates a new rebalancing handler
func NewHandler(
	service Service,
	log zerolog.Logger,
) *Handler {
	return &Handler{
		service: service,
		log:     log.With().Str("handler", "rebalancing").Logger(),
	}
}

// HandleRecommend handles POST /api/rebalancing/recommend
func (h *Handler) HandleRecommend(w http.ResponseWriter, r *http.Request) {
	var req rebalancing.RecommendRequest
	if err := decodeRequest(r, &req); err != nil {
		h.log.Debug().Err(err).Msg("Failed to decode request body")
		h.writeError(w, r, http.StatusBadRequest, "Invalid request body")
		return
	}

	rec, err := h.service.Recommend(r.Context(), req)
	if err != nil {
		h.handleServiceError(w, r, err, "Failed to compute recommendation")
		return
	}

	h.writeData(w, r, http.StatusOK, rec)
}

// HandleDrift handles POST /api/rebalancing/drift
func (h *Handler) HandleDrift(w http.ResponseWriter, r *http.Request) {
	var req rebalancing.DriftRequest
	if err := decodeRequest(r, &req); err != nil {
		h.log.Debug().Err(err).Msg("Failed to decode request body")
		h.writeError(w, r, http.StatusBadRequest, "Invalid request body")
		return
	}

	report, err := h.service.Drift(r.Context(), req)
	if err != nil {
		h.handleServiceError(w, r, err, "Failed to analyze drift")
		return
	}

	h.writeData(w, r, http.StatusOK, report)
}

// HandleListRecommendations handles GET /api/rebalancing/recommendations
func (h *Handler) HandleListRecommendations(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 0 {
			h.writeError(w, r, http.StatusBadRequest, "limit must be a non-negative integer")
			return
		}
		limit = parsed
	}

	recs, err := h.service.ListRecommendations(limit)
	if err != nil {
		h.handleServiceError(w, r, err, "Failed to list recommendations")
		return
	}

	h.writeData(w, r, http.StatusOK, map[string]interface{}{
		"recommendations": recs,
		"count":           len(recs),
	})
}

// HandleGetRecommendation handles GET /api/rebalancing/recommendations/{uuid}
func (h *Handler) HandleGetRecommendation(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "uuid")
	if id == "" {
		h.writeError(w, r, http.StatusBadRequest, "uuid is required")
		return
	}

	rec, err := h.service.GetRecommendation(id)
	if err != nil {
		h.handleServiceError(w, r, err, "Failed to get recommendation")
		return
	}

	h.writeData(w, r, http.StatusOK, rec)
}

// HandleGetSettings handles GET /api/rebalancing/settings
func (h *Handler) HandleGetSettings(w http.ResponseWriter, r *http.Request) {
	h.writeData(w, r, http.StatusOK, h.service.Settings())
}

// statusFor maps a service error to an HTTP status.
func statusFor(err error) int {
	switch {
	case errors.Is(err, rebalancing.ErrRecommendationNotFound):
		return http.StatusNotFound
	case rebalancing.IsInputError(err):
		return http.StatusBadRequest
	case errors.Is(err, rebalancing.ErrDegenerateVector), errors.Is(err, rebalancing.ErrWeightOutOfRange):
		return http.StatusUnprocessableEntity
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	default:
		return http.StatusBadGateway
	}
}

func (h *Handler) handleServiceError(w http.ResponseWriter, r *http.Request, err error, msg string) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		h.log.Error().Err(err).Msg(msg)
	} else {
		h.log.Debug().Err(err).Int("status", status).Msg(msg)
	}
	h.writeError(w, r, status, err.Error())
}

func (h *Handler) writeData(w http.ResponseWriter, r *http.Request, status int, data interface{}) {
	h.writeResponse(w, r, status, map[string]interface{}{
		"data": data,
		"metadata": map[string]interface{}{
			"timestamp": time.Now().Format(time.RFC3339),
		},
	})
}

func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, status int, message string) {
	h.writeResponse(w, r, status, map[string]interface{}{
		"error": map[string]interface{}{
			"message": message,
			"code":    http.StatusText(status),
		},
		"metadata": map[string]interface{}{
			"timestamp": time.Now().Format(time.RFC3339),
		},
	})
}

func (h *Handler) writeResponse(w http.ResponseWriter, r *http.Request, status int, body interface{}) {
	if err := encodeResponse(w, r, status, body); err != nil {
		h.log.Error().Err(err).Msg("Failed to encode response")
	}
}
