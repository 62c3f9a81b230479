package handlers

import (
	"net/http"
	"testing"

	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wonny/augur/backend/internal/contracts"
	"github.com/wonny/augur/backend/pkg/logger"
)

func newSignalsFixture() (*fakePredRepo, *fakeFeatureRepo, *mux.Router) {
	preds := &fakePredRepo{}
	feats := newFakeFeatureRepo()

	h := NewSignalsHandler(preds, feats, nil, testConfig(), logger.NewNop())
	r := mux.NewRouter()
	r.HandleFunc("/api/v1/signals/daily", h.GetDaily).Methods("GET")
	return preds, feats, r
}

// seedSignals loads three predictions with distinct blend outcomes plus a
// stale prior-day prediction that must not leak into the ranking.
func seedSignals(preds *fakePredRepo, feats *fakeFeatureRepo) {
	dt := day(2024, 1, 4)
	preds.preds = []*contracts.Prediction{
		{Ticker: "AAPL", Date: dt, Horizon: "1d", Yhat: 0.02, YhatStd: 0.01},
		{Ticker: "MSFT", Date: dt, Horizon: "1d", Yhat: -0.03, YhatStd: 0.02},
		{Ticker: "GOOG", Date: dt, Horizon: "1d", Yhat: 0.001, YhatStd: 0.05},
		{Ticker: "TSLA", Date: day(2024, 1, 3), Horizon: "1d", Yhat: 0.5, YhatStd: 0.001},
	}
	feats.add(&contracts.FeatureRow{
		Ticker: "AAPL", Date: dt,
		Features: map[string]float64{"composite_score": 0.5, "quality_score": 0.8},
	})
	feats.add(&contracts.FeatureRow{
		Ticker: "MSFT", Date: dt,
		Features: map[string]float64{"composite_score": -0.2},
	})
	// GOOG has no feature row on the prediction date.
}

func TestSignalsHandler_RankedBlend(t *testing.T) {
	preds, feats, router := newSignalsFixture()
	seedSignals(preds, feats)

	rec := doGET(t, router, "/api/v1/signals/daily")
	require.Equal(t, http.StatusOK, rec.Code)
	body := decodeBody(t, rec)

	assert.Equal(t, "1d", body["horizon"])
	assert.EqualValues(t, 3, body["count"], "the stale prediction is excluded")

	signals := body["signals"].([]interface{})
	require.Len(t, signals, 3)

	first := signals[0].(map[string]interface{})
	second := signals[1].(map[string]interface{})
	third := signals[2].(map[string]interface{})

	assert.Equal(t, "AAPL", first["ticker"], "highest blended score first")
	assert.Equal(t, "GOOG", second["ticker"])
	assert.Equal(t, "MSFT", third["ticker"])

	assert.Equal(t, "LONG", first["signal"])
	assert.Equal(t, "NEUTRAL", second["signal"])
	assert.Equal(t, "SHORT", third["signal"])

	wantAAPL := 0.7*(0.02/(0.01+1e-6)) + 0.3*0.5
	assert.InDelta(t, wantAAPL, first["risk_adjusted_score"].(float64), 1e-12)
	assert.Equal(t, 0.02, first["exp_return"])
	assert.InDelta(t, 1.0/(0.01+1e-6), first["confidence"].(float64), 1e-9)
	assert.Equal(t, 0.8, first["quality_score"])
	assert.Equal(t, 0.5, first["composite_score"])
	assert.Equal(t, "2024-01-04", first["dt"])

	// Without a feature row the composite defaults to zero and the pillar
	// scores serialize as null.
	wantGOOG := 0.7 * (0.001 / (0.05 + 1e-6))
	assert.InDelta(t, wantGOOG, second["risk_adjusted_score"].(float64), 1e-12)
	assert.Nil(t, second["composite_score"])
	assert.Nil(t, second["quality_score"])
}

func TestSignalsHandler_TopLimitsPayload(t *testing.T) {
	preds, feats, router := newSignalsFixture()
	seedSignals(preds, feats)

	rec := doGET(t, router, "/api/v1/signals/daily?top=2")
	require.Equal(t, http.StatusOK, rec.Code)
	body := decodeBody(t, rec)

	assert.EqualValues(t, 2, body["count"])
	signals := body["signals"].([]interface{})
	require.Len(t, signals, 2)
	assert.Equal(t, "AAPL", signals[0].(map[string]interface{})["ticker"])
	assert.Equal(t, "GOOG", signals[1].(map[string]interface{})["ticker"])
}

func TestSignalsHandler_MinConfidenceFilter(t *testing.T) {
	preds, feats, router := newSignalsFixture()
	seedSignals(preds, feats)

	// GOOG's confidence is ~20; AAPL ~100 and MSFT ~50 survive.
	rec := doGET(t, router, "/api/v1/signals/daily?min_confidence=30")
	require.Equal(t, http.StatusOK, rec.Code)
	body := decodeBody(t, rec)

	assert.EqualValues(t, 2, body["count"])
	signals := body["signals"].([]interface{})
	require.Len(t, signals, 2)
	assert.Equal(t, "AAPL", signals[0].(map[string]interface{})["ticker"])
	assert.Equal(t, "MSFT", signals[1].(map[string]interface{})["ticker"])
}

func TestSignalsHandler_NoPredictions(t *testing.T) {
	_, _, router := newSignalsFixture()

	rec := doGET(t, router, "/api/v1/signals/daily?horizon=5d")
	require.Equal(t, http.StatusOK, rec.Code)
	body := decodeBody(t, rec)

	assert.EqualValues(t, 0, body["count"])
	assert.Empty(t, body["signals"])
	assert.Equal(t, "5d", body["horizon"])
}

func TestSignalsHandler_BadQuery(t *testing.T) {
	_, _, router := newSignalsFixture()

	for _, url := range []string{
		"/api/v1/signals/daily?top=abc",
		"/api/v1/signals/daily?top=0",
		"/api/v1/signals/daily?top=501",
		"/api/v1/signals/daily?min_confidence=abc",
		"/api/v1/signals/daily?min_confidence=-1",
	} {
		rec := doGET(t, router, url)
		assert.Equal(t, http.StatusBadRequest, rec.Code, url)
	}
}
