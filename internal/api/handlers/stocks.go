package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"
	"github.com/gorilla/mux"

	"github.com/wonny/augur/backend/internal/contracts"
	"github.com/wonny/augur/backend/pkg/logger"
)

var validate *validator.Validate

func init() {
	validate = validator.New()
}

// StockHandler handles per-ticker data API endpoints
// ⭐ SSOT: 종목 데이터 API 핸들러는 이 구조체에서만
type StockHandler struct {
	prices  contracts.PriceRepository
	news    contracts.NewsRepository
	funds   contracts.FundamentalRepository
	feats   contracts.FeatureRepository
	preds   contracts.PredictionRepository
	horizon string
	logger  *logger.Logger
}

// NewStockHandler creates a new stock handler.
func NewStockHandler(
	prices contracts.PriceRepository,
	news contracts.NewsRepository,
	funds contracts.FundamentalRepository,
	feats contracts.FeatureRepository,
	preds contracts.PredictionRepository,
	horizon string,
	log *logger.Logger,
) *StockHandler {
	return &StockHandler{
		prices:  prices,
		news:    news,
		funds:   funds,
		feats:   feats,
		preds:   preds,
		horizon: horizon,
		logger:  log,
	}
}

// listQuery is the shared paging query for list endpoints.
type listQuery struct {
	Limit  int `default:"100" validate:"gte=1,lte=500"`
	Offset int `validate:"gte=0"`
}

// parseListQuery reads limit/offset with defaults and bounds.
func parseListQuery(r *http.Request) (listQuery, error) {
	var q listQuery
	if err := defaults.Set(&q); err != nil {
		return q, err
	}

	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			return q, contracts.NewValidationError("limit", "must be an integer")
		}
		q.Limit = n
	}
	if raw := r.URL.Query().Get("offset"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			return q, contracts.NewValidationError("offset", "must be an integer")
		}
		q.Offset = n
	}

	if err := validate.Struct(&q); err != nil {
		return q, contracts.NewValidationError("query", validationMessage(err))
	}
	return q, nil
}

// GetPrices returns recent daily bars, oldest first
// GET /api/v1/stocks/{ticker}/prices?limit=100
func (h *StockHandler) GetPrices(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	ticker := mux.Vars(r)["ticker"]

	q, err := parseListQuery(r)
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	bars, err := h.prices.GetLatestByTicker(ctx, ticker, q.Limit)
	if err != nil {
		h.logger.WithError(err).Error("Failed to get prices")
		respondError(w, http.StatusInternalServerError, "Failed to retrieve prices")
		return
	}
	if len(bars) == 0 {
		respondError(w, http.StatusNotFound, "No price data for ticker")
		return
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"ticker": ticker,
		"count":  len(bars),
		"prices": bars,
	})
}

// GetNews returns scored headlines, newest first
// GET /api/v1/stocks/{ticker}/news?limit=100&offset=0
func (h *StockHandler) GetNews(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	ticker := mux.Vars(r)["ticker"]

	q, err := parseListQuery(r)
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	items, err := h.news.GetLatestByTicker(ctx, ticker, q.Limit, q.Offset)
	if err != nil {
		h.logger.WithError(err).Error("Failed to get news")
		respondError(w, http.StatusInternalServerError, "Failed to retrieve news")
		return
	}

	if items == nil {
		items = []*contracts.NewsItem{}
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"ticker": ticker,
		"count":  len(items),
		"news":   items,
	})
}

// GetFundamentals returns the latest ratio snapshot plus its history
// GET /api/v1/stocks/{ticker}/fundamentals
func (h *StockHandler) GetFundamentals(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	ticker := mux.Vars(r)["ticker"]

	history, err := h.funds.GetByTicker(ctx, ticker)
	if err != nil {
		h.logger.WithError(err).Error("Failed to get fundamentals")
		respondError(w, http.StatusInternalServerError, "Failed to retrieve fundamentals")
		return
	}
	if len(history) == 0 {
		respondError(w, http.StatusNotFound, "No fundamental data for ticker")
		return
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"ticker":  ticker,
		"latest":  history[len(history)-1],
		"history": history,
	})
}

// fundamentalsSection mirrors the snapshot metrics with an asof stamp.
type fundamentalsSection struct {
	PE       *float64 `json:"pe"`
	PB       *float64 `json:"pb"`
	EVEBITDA *float64 `json:"ev_ebitda"`
	ROE      *float64 `json:"roe"`
	ROCE     *float64 `json:"roce"`
	DERatio  *float64 `json:"de_ratio"`
	EPSG3Y   *float64 `json:"eps_g3y"`
	RevG3Y   *float64 `json:"rev_g3y"`
	ProfG3Y  *float64 `json:"profit_g3y"`
	OPM      *float64 `json:"opm"`
	NPM      *float64 `json:"npm"`
	DivYield *float64 `json:"div_yield"`
	AsOf     *string  `json:"asof"`
}

type technicalsSection struct {
	RSI14      *float64 `json:"rsi14"`
	SMA20      *float64 `json:"sma20"`
	SMA50      *float64 `json:"sma50"`
	SMA200     *float64 `json:"sma200"`
	Momentum20 *float64 `json:"momentum20"`
	Momentum60 *float64 `json:"momentum60"`
	RV20       *float64 `json:"rv20"`
}

type sentimentSection struct {
	SentMeanComp *float64 `json:"sent_mean_comp"`
	Burst3D      *float64 `json:"burst_3d"`
	Burst7D      *float64 `json:"burst_7d"`
}

type predictionSection struct {
	Yhat    *float64 `json:"yhat"`
	YhatStd *float64 `json:"yhat_std"`
	ProbUp  *float64 `json:"prob_up"`
	Date    *string  `json:"dt"`
	Horizon *string  `json:"horizon"`
}

type scoresSection struct {
	Quality      *float64 `json:"quality_score"`
	Valuation    *float64 `json:"valuation_score"`
	Momentum     *float64 `json:"momentum_score"`
	Sentiment    *float64 `json:"sentiment_score"`
	Composite    *float64 `json:"composite_score"`
	RiskAdjusted *float64 `json:"risk_adjusted_score"`
}

type priceSeriesSection struct {
	Dates  []string  `json:"dates"`
	Closes []float64 `json:"closes"`
}

// stockSnapshot is the full per-ticker view.
type stockSnapshot struct {
	Ticker       string              `json:"ticker"`
	Fundamentals fundamentalsSection `json:"fundamentals"`
	Technicals   technicalsSection   `json:"technicals"`
	Sentiment    sentimentSection    `json:"sentiment"`
	Prediction   predictionSection   `json:"prediction"`
	Scores       scoresSection       `json:"scores"`
	PriceSeries  priceSeriesSection  `json:"price_series"`
}

// snapshotPriceDays bounds the chart series in the snapshot payload.
const snapshotPriceDays = 200

// GetSnapshot returns the complete stock view: latest fundamentals,
// technicals, sentiment aggregates, prediction, scores and a price series
// GET /api/v1/stocks/{ticker}
func (h *StockHandler) GetSnapshot(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	ticker := mux.Vars(r)["ticker"]

	bars, err := h.prices.GetLatestByTicker(ctx, ticker, snapshotPriceDays)
	if err != nil {
		h.logger.WithError(err).Error("Failed to get prices")
		respondError(w, http.StatusInternalServerError, "Failed to retrieve stock snapshot")
		return
	}
	if len(bars) == 0 {
		respondError(w, http.StatusNotFound, "Unknown ticker")
		return
	}

	snap := stockSnapshot{
		Ticker:      ticker,
		PriceSeries: priceSeriesSection{Dates: []string{}, Closes: []float64{}},
	}
	for _, b := range bars {
		snap.PriceSeries.Dates = append(snap.PriceSeries.Dates, b.Date.Format("2006-01-02"))
		snap.PriceSeries.Closes = append(snap.PriceSeries.Closes, b.Close)
	}

	if fund, err := h.funds.GetLatestByTicker(ctx, ticker); err == nil {
		asof := fund.AsOf.Format("2006-01-02")
		snap.Fundamentals = fundamentalsSection{
			PE: fund.PE, PB: fund.PB, EVEBITDA: fund.EVEBITDA,
			ROE: fund.ROE, ROCE: fund.ROCE, DERatio: fund.DERatio,
			EPSG3Y: fund.EPSGrowth3Y, RevG3Y: fund.RevGrowth3Y, ProfG3Y: fund.ProfitGrowth3Y,
			OPM: fund.OPM, NPM: fund.NPM, DivYield: fund.DivYield,
			AsOf: &asof,
		}
	} else if !errors.Is(err, contracts.ErrNotFound) {
		h.logger.WithError(err).Warn("Failed to get fundamentals for snapshot")
	}

	if row := h.latestFeatureRow(ctx, ticker); row != nil {
		snap.Technicals = technicalsSection{
			RSI14:      featurePtr(row, "rsi_14"),
			SMA20:      featurePtr(row, "sma_20"),
			SMA50:      featurePtr(row, "sma_50"),
			SMA200:     featurePtr(row, "sma_200"),
			Momentum20: featurePtr(row, "momentum_20"),
			Momentum60: featurePtr(row, "momentum_60"),
			RV20:       featurePtr(row, "rv_20"),
		}
		snap.Sentiment = sentimentSection{
			SentMeanComp: featurePtr(row, "sent_mean_comp"),
			Burst3D:      featurePtr(row, "burst_3d"),
			Burst7D:      featurePtr(row, "burst_7d"),
		}
		snap.Scores = scoresSection{
			Quality:      featurePtr(row, "quality_score"),
			Valuation:    featurePtr(row, "valuation_score"),
			Momentum:     featurePtr(row, "momentum_score"),
			Sentiment:    featurePtr(row, "sentiment_score"),
			Composite:    featurePtr(row, "composite_score"),
			RiskAdjusted: featurePtr(row, "risk_adjusted_score"),
		}
	}

	if preds, err := h.preds.GetByTicker(ctx, ticker, h.horizon, 1); err == nil && len(preds) > 0 {
		p := preds[0]
		dt := p.Date.Format("2006-01-02")
		snap.Prediction = predictionSection{
			Yhat:    &p.Yhat,
			YhatStd: &p.YhatStd,
			ProbUp:  &p.ProbUp,
			Date:    &dt,
			Horizon: &p.Horizon,
		}
	}

	respondJSON(w, http.StatusOK, snap)
}

// latestFeatureRow looks the ticker up on the most recent feature date.
// A ticker that missed that day's pipeline simply has no row.
func (h *StockHandler) latestFeatureRow(ctx context.Context, ticker string) *contracts.FeatureRow {
	date, err := h.feats.GetLatestDate(ctx)
	if err != nil {
		return nil
	}
	row, err := h.feats.GetByTickerDate(ctx, ticker, date)
	if err != nil {
		return nil
	}
	return row
}

// featurePtr exposes one feature value, nil when missing.
func featurePtr(row *contracts.FeatureRow, name string) *float64 {
	v, ok := row.Feature(name)
	if !ok {
		return nil
	}
	return &v
}

// Helper functions

func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{
		"error": message,
	})
}

// validationMessage flattens validator errors into one readable line.
func validationMessage(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err.Error()
	}
	parts := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		parts = append(parts, strings.ToLower(fe.Field())+" violates "+fe.Tag()+"="+fe.Param())
	}
	return strings.Join(parts, "; ")
}

// parseDateParam parses a YYYY-MM-DD path or query value.
func parseDateParam(raw string) (time.Time, error) {
	t, err := time.Parse("2006-01-02", raw)
	if err != nil {
		return time.Time{}, contracts.NewValidationError("date", "expected YYYY-MM-DD")
	}
	return contracts.Day(t), nil
}
