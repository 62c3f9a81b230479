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

func newPredictionsFixture() (*fakePredRepo, *mux.Router) {
	preds := &fakePredRepo{}
	h := NewPredictionsHandler(preds, nil, testConfig(), logger.NewNop())
	r := mux.NewRouter()
	r.HandleFunc("/api/v1/predictions/{ticker}", h.GetByTicker).Methods("GET")
	return preds, r
}

func TestPredictionsHandler_GetByTicker(t *testing.T) {
	preds, router := newPredictionsFixture()
	preds.preds = []*contracts.Prediction{
		{Ticker: "AAPL", Date: day(2024, 1, 4), Horizon: "1d", Yhat: 0.012, YhatStd: 0.02, ProbUp: 0.61},
		{Ticker: "AAPL", Date: day(2024, 1, 3), Horizon: "1d", Yhat: -0.004, YhatStd: 0.03, ProbUp: 0.47},
		{Ticker: "AAPL", Date: day(2024, 1, 4), Horizon: "5d", Yhat: 0.05, YhatStd: 0.04, ProbUp: 0.7},
	}

	rec := doGET(t, router, "/api/v1/predictions/AAPL")
	require.Equal(t, http.StatusOK, rec.Code)
	body := decodeBody(t, rec)

	assert.Equal(t, "AAPL", body["ticker"])
	assert.Equal(t, "1d", body["horizon"], "horizon defaults from configuration")
	assert.EqualValues(t, 2, body["count"])

	items := body["predictions"].([]interface{})
	require.Len(t, items, 2)
	newest := items[0].(map[string]interface{})
	assert.Equal(t, 0.012, newest["yhat"])
	assert.Equal(t, 0.61, newest["prob_up"])
}

func TestPredictionsHandler_HorizonQuery(t *testing.T) {
	preds, router := newPredictionsFixture()
	preds.preds = []*contracts.Prediction{
		{Ticker: "AAPL", Date: day(2024, 1, 4), Horizon: "5d", Yhat: 0.05},
	}

	rec := doGET(t, router, "/api/v1/predictions/AAPL?horizon=5d&limit=10")
	require.Equal(t, http.StatusOK, rec.Code)
	body := decodeBody(t, rec)
	assert.Equal(t, "5d", body["horizon"])
	assert.EqualValues(t, 1, body["count"])
}

func TestPredictionsHandler_UnknownTicker(t *testing.T) {
	_, router := newPredictionsFixture()

	rec := doGET(t, router, "/api/v1/predictions/NOPE")
	require.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "No predictions for ticker", decodeBody(t, rec)["error"])
}

func TestPredictionsHandler_BadLimit(t *testing.T) {
	_, router := newPredictionsFixture()

	for _, url := range []string{
		"/api/v1/predictions/AAPL?limit=abc",
		"/api/v1/predictions/AAPL?limit=0",
		"/api/v1/predictions/AAPL?limit=501",
	} {
		rec := doGET(t, router, url)
		assert.Equal(t, http.StatusBadRequest, rec.Code, url)
	}
}
