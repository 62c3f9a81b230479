package handlers

import (
	"context"
	"errors"
	"net/http"
	"sort"
	"strconv"

	"github.com/wonny/augur/backend/internal/contracts"
	"github.com/wonny/augur/backend/pkg/config"
	"github.com/wonny/augur/backend/pkg/logger"
	"github.com/wonny/augur/backend/pkg/redis"
)

// signalEps keeps the base score finite when the model reports zero spread.
const signalEps = 1e-6

// SignalsHandler ranks the latest predictions into daily trading signals
// ⭐ SSOT: 시그널 랭킹 로직은 이 핸들러에서만
type SignalsHandler struct {
	preds  contracts.PredictionRepository
	feats  contracts.FeatureRepository
	cache  *redis.Cache
	cfg    *config.Config
	logger *logger.Logger
}

// NewSignalsHandler creates a new signals handler.
func NewSignalsHandler(
	preds contracts.PredictionRepository,
	feats contracts.FeatureRepository,
	cache *redis.Cache,
	cfg *config.Config,
	log *logger.Logger,
) *SignalsHandler {
	return &SignalsHandler{
		preds:  preds,
		feats:  feats,
		cache:  cache,
		cfg:    cfg,
		logger: log,
	}
}

type signalItem struct {
	Ticker       string   `json:"ticker"`
	Signal       string   `json:"signal"`
	ExpReturn    float64  `json:"exp_return"`
	Confidence   float64  `json:"confidence"`
	Quality      *float64 `json:"quality_score"`
	Valuation    *float64 `json:"valuation_score"`
	Momentum     *float64 `json:"momentum_score"`
	Sentiment    *float64 `json:"sentiment_score"`
	Composite    *float64 `json:"composite_score"`
	RiskAdjusted float64  `json:"risk_adjusted_score"`
	Date         string   `json:"dt"`
}

type signalsResponse struct {
	Signals []signalItem `json:"signals"`
	Count   int          `json:"count"`
	Horizon string       `json:"horizon"`
}

type signalsQuery struct {
	Horizon       string
	Top           int     `validate:"gte=1,lte=500"`
	MinConfidence float64 `validate:"gte=0"`
}

func (h *SignalsHandler) parseQuery(r *http.Request) (signalsQuery, error) {
	q := signalsQuery{
		Horizon: contracts.HorizonLabel(h.cfg.Model.HorizonDays),
		Top:     h.cfg.API.SignalTopDefault,
	}

	if raw := r.URL.Query().Get("horizon"); raw != "" {
		q.Horizon = raw
	}
	if raw := r.URL.Query().Get("top"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			return q, contracts.NewValidationError("top", "must be an integer")
		}
		q.Top = n
	}
	if raw := r.URL.Query().Get("min_confidence"); raw != "" {
		f, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return q, contracts.NewValidationError("min_confidence", "must be a number")
		}
		q.MinConfidence = f
	}

	if err := validate.Struct(&q); err != nil {
		return q, contracts.NewValidationError("query", validationMessage(err))
	}
	return q, nil
}

// GetDaily returns trading signals ranked by risk-adjusted score.
// The score blends the model's standardized expected return with the
// cross-sectional composite score:
//
//	base  = yhat / (yhat_std + eps)
//	score = w*base + (1-w)*composite
//
// GET /api/v1/signals/daily?horizon=1d&top=50&min_confidence=0
func (h *SignalsHandler) GetDaily(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	q, err := h.parseQuery(r)
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	// Filtered queries bypass the cache: the key space would explode and
	// filtered results are a strict subset anyway.
	cacheable := h.cache != nil && q.MinConfidence == 0
	cacheKey := redis.SignalsKey(q.Horizon, q.Top)

	if cacheable {
		var cached signalsResponse
		found, err := h.cache.Get(ctx, cacheKey, &cached)
		if err != nil {
			h.logger.WithError(err).Warn("Signals cache read failed")
		} else if found {
			respondJSON(w, http.StatusOK, cached)
			return
		}
	}

	resp, err := h.buildSignals(ctx, q)
	if err != nil {
		h.logger.WithError(err).Error("Failed to build signals")
		respondError(w, http.StatusInternalServerError, "Failed to retrieve signals")
		return
	}

	if cacheable {
		if err := h.cache.Set(ctx, cacheKey, resp, h.cfg.API.CacheTTL); err != nil {
			h.logger.WithError(err).Warn("Signals cache write failed")
		}
	}

	respondJSON(w, http.StatusOK, resp)
}

func (h *SignalsHandler) buildSignals(ctx context.Context, q signalsQuery) (*signalsResponse, error) {
	resp := &signalsResponse{Signals: []signalItem{}, Horizon: q.Horizon}

	date, err := h.preds.GetLatestDate(ctx, q.Horizon)
	if err != nil {
		if errors.Is(err, contracts.ErrNotFound) {
			h.logger.WithField("horizon", q.Horizon).Warn("No predictions for horizon")
			return resp, nil
		}
		return nil, err
	}

	preds, err := h.preds.GetByDate(ctx, date, q.Horizon)
	if err != nil {
		return nil, err
	}
	if len(preds) == 0 {
		return resp, nil
	}

	// Same-day feature rows supply the composite and pillar scores.
	rows, err := h.feats.GetByDate(ctx, date)
	if err != nil && !errors.Is(err, contracts.ErrNotFound) {
		return nil, err
	}
	byTicker := make(map[string]*contracts.FeatureRow, len(rows))
	for _, row := range rows {
		byTicker[row.Ticker] = row
	}

	w := h.cfg.API.RiskScoreWeight
	for _, p := range preds {
		row := byTicker[p.Ticker]

		base := p.Yhat / (p.YhatStd + signalEps)
		composite := 0.0
		var compositePtr *float64
		if row != nil {
			if v, ok := row.Feature("composite_score"); ok {
				composite = v
				compositePtr = &v
			}
		}
		score := w*base + (1-w)*composite

		signal := "NEUTRAL"
		switch {
		case score > 0.5:
			signal = "LONG"
		case score < -0.5:
			signal = "SHORT"
		}

		confidence := 1.0 / (p.YhatStd + signalEps)
		if q.MinConfidence > 0 && confidence < q.MinConfidence {
			continue
		}

		item := signalItem{
			Ticker:       p.Ticker,
			Signal:       signal,
			ExpReturn:    p.Yhat,
			Confidence:   confidence,
			Composite:    compositePtr,
			RiskAdjusted: score,
			Date:         p.Date.Format("2006-01-02"),
		}
		if row != nil {
			item.Quality = featurePtr(row, "quality_score")
			item.Valuation = featurePtr(row, "valuation_score")
			item.Momentum = featurePtr(row, "momentum_score")
			item.Sentiment = featurePtr(row, "sentiment_score")
		}
		resp.Signals = append(resp.Signals, item)
	}

	sort.SliceStable(resp.Signals, func(i, j int) bool {
		return resp.Signals[i].RiskAdjusted > resp.Signals[j].RiskAdjusted
	})
	if len(resp.Signals) > q.Top {
		resp.Signals = resp.Signals[:q.Top]
	}
	resp.Count = len(resp.Signals)

	return resp, nil
}
