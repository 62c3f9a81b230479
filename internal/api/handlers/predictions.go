package handlers

import (
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"github.com/wonny/augur/backend/internal/contracts"
	"github.com/wonny/augur/backend/pkg/config"
	"github.com/wonny/augur/backend/pkg/logger"
	"github.com/wonny/augur/backend/pkg/redis"
)

// PredictionsHandler serves per-ticker prediction history.
type PredictionsHandler struct {
	preds  contracts.PredictionRepository
	cache  *redis.Cache
	cfg    *config.Config
	logger *logger.Logger
}

// NewPredictionsHandler creates a new predictions handler.
func NewPredictionsHandler(
	preds contracts.PredictionRepository,
	cache *redis.Cache,
	cfg *config.Config,
	log *logger.Logger,
) *PredictionsHandler {
	return &PredictionsHandler{
		preds:  preds,
		cache:  cache,
		cfg:    cfg,
		logger: log,
	}
}

// defaultPredictionLimit bounds the history when no limit is given.
const defaultPredictionLimit = 30

type predictionsResponse struct {
	Ticker      string                  `json:"ticker"`
	Horizon     string                  `json:"horizon"`
	Count       int                     `json:"count"`
	Predictions []*contracts.Prediction `json:"predictions"`
}

// GetByTicker returns recent predictions for a ticker, newest first
// GET /api/v1/predictions/{ticker}?horizon=1d&limit=30
func (h *PredictionsHandler) GetByTicker(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	ticker := mux.Vars(r)["ticker"]

	horizon := r.URL.Query().Get("horizon")
	if horizon == "" {
		horizon = contracts.HorizonLabel(h.cfg.Model.HorizonDays)
	}
	limit := defaultPredictionLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 || n > 500 {
			respondError(w, http.StatusBadRequest, "limit must be an integer in [1, 500]")
			return
		}
		limit = n
	}

	cacheable := h.cache != nil && limit == defaultPredictionLimit
	cacheKey := redis.PredictionsKey(ticker, horizon)

	if cacheable {
		var cached predictionsResponse
		found, err := h.cache.Get(ctx, cacheKey, &cached)
		if err != nil {
			h.logger.WithError(err).Warn("Predictions cache read failed")
		} else if found {
			respondJSON(w, http.StatusOK, cached)
			return
		}
	}

	preds, err := h.preds.GetByTicker(ctx, ticker, horizon, limit)
	if err != nil {
		h.logger.WithError(err).Error("Failed to get predictions")
		respondError(w, http.StatusInternalServerError, "Failed to retrieve predictions")
		return
	}
	if len(preds) == 0 {
		respondError(w, http.StatusNotFound, "No predictions for ticker")
		return
	}

	resp := predictionsResponse{
		Ticker:      ticker,
		Horizon:     horizon,
		Count:       len(preds),
		Predictions: preds,
	}

	if cacheable {
		if err := h.cache.Set(ctx, cacheKey, resp, redis.TTLMedium); err != nil {
			h.logger.WithError(err).Warn("Predictions cache write failed")
		}
	}

	respondJSON(w, http.StatusOK, resp)
}
