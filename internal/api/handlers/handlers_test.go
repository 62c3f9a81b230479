package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gorilla/mux"
	"github.com/stretchr/testify/require"

	"github.com/wonny/augur/backend/internal/contracts"
	"github.com/wonny/augur/backend/pkg/config"
)

func day(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func testConfig() *config.Config {
	return &config.Config{
		Model: config.ModelConfig{HorizonDays: 1},
		API: config.APIConfig{
			RiskScoreWeight:  0.7,
			SignalTopDefault: 50,
			CacheTTL:         time.Minute,
		},
	}
}

// doGET routes a request through a real mux router so path variables
// resolve the same way they do in production.
func doGET(t *testing.T, router *mux.Router, url string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, url, nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return body
}

type fakePriceRepo struct {
	bars map[string][]*contracts.PriceBar
	err  error
}

func (r *fakePriceRepo) Upsert(ctx context.Context, bars []*contracts.PriceBar) (int, error) {
	for _, b := range bars {
		r.bars[b.Ticker] = append(r.bars[b.Ticker], b)
	}
	return len(bars), nil
}

func (r *fakePriceRepo) GetByTicker(ctx context.Context, ticker string, from, to time.Time) ([]*contracts.PriceBar, error) {
	return r.bars[ticker], r.err
}

func (r *fakePriceRepo) GetLatestByTicker(ctx context.Context, ticker string, limit int) ([]*contracts.PriceBar, error) {
	if r.err != nil {
		return nil, r.err
	}
	bars := r.bars[ticker]
	if len(bars) > limit {
		bars = bars[len(bars)-limit:]
	}
	return bars, nil
}

func (r *fakePriceRepo) GetTickers(ctx context.Context) ([]string, error) {
	var out []string
	for t := range r.bars {
		out = append(out, t)
	}
	return out, nil
}

type fakeNewsRepo struct {
	items map[string][]*contracts.NewsItem
}

func (r *fakeNewsRepo) Upsert(ctx context.Context, items []*contracts.NewsItem) (int, error) {
	for _, n := range items {
		r.items[n.Ticker] = append(r.items[n.Ticker], n)
	}
	return len(items), nil
}

func (r *fakeNewsRepo) GetByTicker(ctx context.Context, ticker string, from, to time.Time) ([]*contracts.NewsItem, error) {
	return r.items[ticker], nil
}

func (r *fakeNewsRepo) GetLatestByTicker(ctx context.Context, ticker string, limit, offset int) ([]*contracts.NewsItem, error) {
	items := r.items[ticker]
	if offset >= len(items) {
		return nil, nil
	}
	items = items[offset:]
	if len(items) > limit {
		items = items[:limit]
	}
	return items, nil
}

type fakeFundRepo struct {
	snaps map[string][]*contracts.FundamentalSnapshot
}

func (r *fakeFundRepo) Upsert(ctx context.Context, snaps []*contracts.FundamentalSnapshot) (int, error) {
	for _, s := range snaps {
		r.snaps[s.Ticker] = append(r.snaps[s.Ticker], s)
	}
	return len(snaps), nil
}

func (r *fakeFundRepo) GetByTicker(ctx context.Context, ticker string) ([]*contracts.FundamentalSnapshot, error) {
	return r.snaps[ticker], nil
}

func (r *fakeFundRepo) GetLatestByTicker(ctx context.Context, ticker string) (*contracts.FundamentalSnapshot, error) {
	snaps := r.snaps[ticker]
	if len(snaps) == 0 {
		return nil, contracts.ErrNotFound
	}
	return snaps[len(snaps)-1], nil
}

type featKey struct {
	ticker string
	date   time.Time
}

type fakeFeatureRepo struct {
	rows map[featKey]*contracts.FeatureRow
}

func newFakeFeatureRepo() *fakeFeatureRepo {
	return &fakeFeatureRepo{rows: make(map[featKey]*contracts.FeatureRow)}
}

func (r *fakeFeatureRepo) add(row *contracts.FeatureRow) {
	r.rows[featKey{row.Ticker, row.Date}] = row
}

func (r *fakeFeatureRepo) UpsertRows(ctx context.Context, rows []*contracts.FeatureRow) (int, error) {
	for _, row := range rows {
		r.add(row)
	}
	return len(rows), nil
}

func (r *fakeFeatureRepo) GetByTickerDate(ctx context.Context, ticker string, date time.Time) (*contracts.FeatureRow, error) {
	row, ok := r.rows[featKey{ticker, date}]
	if !ok {
		return nil, contracts.ErrNotFound
	}
	return row, nil
}

func (r *fakeFeatureRepo) GetByDate(ctx context.Context, date time.Time) ([]*contracts.FeatureRow, error) {
	var out []*contracts.FeatureRow
	for key, row := range r.rows {
		if key.date.Equal(date) {
			out = append(out, row)
		}
	}
	return out, nil
}

func (r *fakeFeatureRepo) GetLabeled(ctx context.Context, horizon int, from, to time.Time) ([]*contracts.FeatureRow, error) {
	return nil, nil
}

func (r *fakeFeatureRepo) GetLatestDate(ctx context.Context) (time.Time, error) {
	var latest time.Time
	for key := range r.rows {
		if key.date.After(latest) {
			latest = key.date
		}
	}
	if latest.IsZero() {
		return time.Time{}, contracts.ErrNotFound
	}
	return latest, nil
}

func (r *fakeFeatureRepo) UpdateLabels(ctx context.Context, labels []contracts.LabelValue, horizon int) (int, int, error) {
	return 0, 0, nil
}

type fakePredRepo struct {
	preds []*contracts.Prediction
}

func (r *fakePredRepo) Upsert(ctx context.Context, preds []*contracts.Prediction) (int, error) {
	r.preds = append(r.preds, preds...)
	return len(preds), nil
}

func (r *fakePredRepo) GetByDate(ctx context.Context, date time.Time, horizon string) ([]*contracts.Prediction, error) {
	var out []*contracts.Prediction
	for _, p := range r.preds {
		if p.Date.Equal(date) && p.Horizon == horizon {
			out = append(out, p)
		}
	}
	return out, nil
}

func (r *fakePredRepo) GetByTicker(ctx context.Context, ticker, horizon string, limit int) ([]*contracts.Prediction, error) {
	var out []*contracts.Prediction
	for _, p := range r.preds {
		if p.Ticker == ticker && p.Horizon == horizon {
			out = append(out, p)
		}
	}
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r *fakePredRepo) GetLatestDate(ctx context.Context, horizon string) (time.Time, error) {
	var latest time.Time
	for _, p := range r.preds {
		if p.Horizon == horizon && p.Date.After(latest) {
			latest = p.Date
		}
	}
	if latest.IsZero() {
		return time.Time{}, contracts.ErrNotFound
	}
	return latest, nil
}

type fakeRunRepo struct {
	run *contracts.TrainingRun
	err error
}

func (r *fakeRunRepo) Save(ctx context.Context, run *contracts.TrainingRun) error {
	r.run = run
	return nil
}

func (r *fakeRunRepo) GetLatest(ctx context.Context, horizon string) (*contracts.TrainingRun, error) {
	if r.err != nil {
		return nil, r.err
	}
	return r.run, nil
}
