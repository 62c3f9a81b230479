package handlers

import (
	"net/http"
	"path/filepath"
	"testing"

	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wonny/augur/backend/internal/contracts"
	"github.com/wonny/augur/backend/internal/ml"
	"github.com/wonny/augur/backend/internal/ml/gbrt"
	"github.com/wonny/augur/backend/pkg/config"
	"github.com/wonny/augur/backend/pkg/logger"
)

// oneSplitModel is small enough to attribute by hand: base 0.1, learning
// rate 0.5, a single split on "a" at 1.0 with leaves -1.0 and 3.0.
func oneSplitModel() *gbrt.Booster {
	params := gbrt.DefaultParams()
	params.LearningRate = 0.5
	return &gbrt.Booster{
		Params:        params,
		FeatureNames:  []string{"a", "b"},
		BaseScore:     0.1,
		BestIteration: 1,
		Trees: []*gbrt.Tree{{
			Nodes: []gbrt.Node{
				{Feature: 0, Threshold: 1.0, Left: 1, Right: 2, Value: 0.2, Count: 10},
				{Feature: -1, Value: -1.0, Count: 5},
				{Feature: -1, Value: 3.0, Count: 5},
			},
		}},
	}
}

func newExplainFixture(t *testing.T, runs *fakeRunRepo, feats *fakeFeatureRepo) *mux.Router {
	t.Helper()
	explainer := ml.NewExplainer(logger.NewNop(), config.ModelConfig{HorizonDays: 1}, feats, runs)
	h := NewExplainHandler(explainer, logger.NewNop())
	r := mux.NewRouter()
	r.HandleFunc("/api/v1/explain/{ticker}/{date}", h.Get).Methods("GET")
	return r
}

func TestExplainHandler_Get(t *testing.T) {
	path := filepath.Join(t.TempDir(), "run-1", "model.json")
	require.NoError(t, oneSplitModel().Save(path))

	runs := &fakeRunRepo{run: &contracts.TrainingRun{ID: "run-1", Horizon: "1d", ModelPath: path}}
	feats := newFakeFeatureRepo()
	feats.add(&contracts.FeatureRow{
		Ticker:   "AAPL",
		Date:     day(2024, 1, 4),
		Features: map[string]float64{"a": 2.0, "b": 7.0},
	})
	router := newExplainFixture(t, runs, feats)

	rec := doGET(t, router, "/api/v1/explain/AAPL/2024-01-04")
	require.Equal(t, http.StatusOK, rec.Code)
	body := decodeBody(t, rec)

	assert.Equal(t, "AAPL", body["ticker"])
	assert.Equal(t, "1d", body["horizon"])
	assert.InDelta(t, 1.6, body["yhat"].(float64), 1e-12)
	assert.InDelta(t, 0.2, body["base_value"].(float64), 1e-12)

	contribs := body["top_contributions"].([]interface{})
	require.Len(t, contribs, 1)
	top := contribs[0].(map[string]interface{})
	assert.Equal(t, "a", top["feature"])
	assert.Equal(t, 2.0, top["feature_value"])
	assert.InDelta(t, 1.4, top["contribution"].(float64), 1e-12)
}

func TestExplainHandler_BadDate(t *testing.T) {
	router := newExplainFixture(t, &fakeRunRepo{}, newFakeFeatureRepo())

	rec := doGET(t, router, "/api/v1/explain/AAPL/not-a-date")
	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, decodeBody(t, rec)["error"], "YYYY-MM-DD")
}

func TestExplainHandler_BadTopK(t *testing.T) {
	router := newExplainFixture(t, &fakeRunRepo{}, newFakeFeatureRepo())

	for _, url := range []string{
		"/api/v1/explain/AAPL/2024-01-04?top_k=abc",
		"/api/v1/explain/AAPL/2024-01-04?top_k=0",
		"/api/v1/explain/AAPL/2024-01-04?top_k=101",
	} {
		rec := doGET(t, router, url)
		assert.Equal(t, http.StatusBadRequest, rec.Code, url)
	}
}

func TestExplainHandler_NoModel(t *testing.T) {
	runs := &fakeRunRepo{err: contracts.ErrNotFound}
	router := newExplainFixture(t, runs, newFakeFeatureRepo())

	rec := doGET(t, router, "/api/v1/explain/AAPL/2024-01-04")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestExplainHandler_NoFeatureRow(t *testing.T) {
	path := filepath.Join(t.TempDir(), "run-1", "model.json")
	require.NoError(t, oneSplitModel().Save(path))

	runs := &fakeRunRepo{run: &contracts.TrainingRun{ID: "run-1", Horizon: "1d", ModelPath: path}}
	router := newExplainFixture(t, runs, newFakeFeatureRepo())

	rec := doGET(t, router, "/api/v1/explain/AAPL/2024-01-04")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
