package ml

import (
	"context"
	"errors"
	"sort"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wonny/augur/backend/internal/contracts"
	"github.com/wonny/augur/backend/pkg/logger"
)

// fakeBarStore is an in-memory contracts.PriceRepository.
type fakeBarStore struct {
	bars map[string]*contracts.PriceBar
	err  error
}

func newFakeBarStore() *fakeBarStore {
	return &fakeBarStore{bars: map[string]*contracts.PriceBar{}}
}

func (s *fakeBarStore) put(bars ...*contracts.PriceBar) {
	for _, b := range bars {
		s.bars[rowKey(b.Ticker, b.Date)] = b
	}
}

func (s *fakeBarStore) Upsert(_ context.Context, bars []*contracts.PriceBar) (int, error) {
	s.put(bars...)
	return len(bars), nil
}

func (s *fakeBarStore) GetByTicker(_ context.Context, ticker string, from, to time.Time) ([]*contracts.PriceBar, error) {
	if s.err != nil {
		return nil, s.err
	}
	var out []*contracts.PriceBar
	for _, b := range s.bars {
		if b.Ticker != ticker || b.Date.Before(from) || b.Date.After(to) {
			continue
		}
		out = append(out, b)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Date.Before(out[j].Date) })
	return out, nil
}

func (s *fakeBarStore) GetLatestByTicker(_ context.Context, ticker string, limit int) ([]*contracts.PriceBar, error) {
	if s.err != nil {
		return nil, s.err
	}
	var out []*contracts.PriceBar
	for _, b := range s.bars {
		if b.Ticker == ticker {
			out = append(out, b)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Date.Before(out[j].Date) })
	if len(out) > limit {
		out = out[len(out)-limit:]
	}
	return out, nil
}

func (s *fakeBarStore) GetTickers(_ context.Context) ([]string, error) {
	seen := map[string]bool{}
	for _, b := range s.bars {
		seen[b.Ticker] = true
	}
	var out []string
	for ticker := range seen {
		out = append(out, ticker)
	}
	sort.Strings(out)
	return out, nil
}

func bar(ticker string, d time.Time, px float64) *contracts.PriceBar {
	return &contracts.PriceBar{
		Ticker:   ticker,
		Date:     d,
		Open:     px,
		High:     px * 1.01,
		Low:      px * 0.99,
		Close:    px,
		AdjClose: px,
		Volume:   1_000_000,
	}
}

func bareRow(ticker string, d time.Time) *contracts.FeatureRow {
	return &contracts.FeatureRow{
		Ticker:   ticker,
		Date:     d,
		Features: map[string]float64{"ret_1d": 0.001, "rsi_14": 55},
	}
}

func TestComputeForwardReturns_OneDay(t *testing.T) {
	l := NewLabeler(logger.NewNop(), nil, nil)
	closes := []float64{100, 102, 101, 103, 102.5}
	bars := make([]*contracts.PriceBar, len(closes))
	for i, px := range closes {
		bars[i] = bar("AAPL", day(i), px)
	}

	labels, err := l.ComputeForwardReturns(bars, 1)
	require.NoError(t, err)
	require.Len(t, labels, 4, "the last bar has no forward close")

	want := []float64{0.02, -0.00980392, 0.01980198, -0.00485437}
	for i, lab := range labels {
		assert.Equal(t, "AAPL", lab.Ticker)
		assert.Equal(t, day(i), lab.Date)
		assert.InDelta(t, want[i], lab.Value, 1e-8)
	}
}

func TestComputeForwardReturns_LongerHorizon(t *testing.T) {
	l := NewLabeler(logger.NewNop(), nil, nil)
	closes := []float64{100, 102, 101, 103, 102.5}
	bars := make([]*contracts.PriceBar, len(closes))
	for i, px := range closes {
		bars[i] = bar("AAPL", day(i), px)
	}

	labels, err := l.ComputeForwardReturns(bars, 2)
	require.NoError(t, err)
	require.Len(t, labels, 3)

	want := []float64{0.01, 0.00980392, 0.01485149}
	for i, lab := range labels {
		assert.InDelta(t, want[i], lab.Value, 1e-8)
	}
}

func TestComputeForwardReturns_SkipsNonPositiveBase(t *testing.T) {
	l := NewLabeler(logger.NewNop(), nil, nil)
	closes := []float64{100, -5, 50, 60}
	bars := make([]*contracts.PriceBar, len(closes))
	for i, px := range closes {
		bars[i] = bar("AAPL", day(i), px)
	}

	labels, err := l.ComputeForwardReturns(bars, 1)
	require.NoError(t, err)
	require.Len(t, labels, 2)
	assert.Equal(t, day(0), labels[0].Date)
	assert.InDelta(t, -1.05, labels[0].Value, 1e-12)
	assert.Equal(t, day(2), labels[1].Date)
	assert.InDelta(t, 0.2, labels[1].Value, 1e-12)
}

func TestComputeForwardReturns_ShortSeries(t *testing.T) {
	l := NewLabeler(logger.NewNop(), nil, nil)
	bars := []*contracts.PriceBar{bar("AAPL", day(0), 100), bar("AAPL", day(1), 101)}

	labels, err := l.ComputeForwardReturns(bars, 5)
	require.NoError(t, err)
	assert.Empty(t, labels, "nothing reaches five days ahead")

	labels, err = l.ComputeForwardReturns(nil, 1)
	require.NoError(t, err)
	assert.Empty(t, labels)
}

func TestComputeForwardReturns_Validation(t *testing.T) {
	l := NewLabeler(logger.NewNop(), nil, nil)
	good := []*contracts.PriceBar{bar("AAPL", day(0), 100), bar("AAPL", day(1), 101)}

	cases := []struct {
		name    string
		bars    []*contracts.PriceBar
		horizon int
	}{
		{"zero horizon", good, 0},
		{"mixed instruments", []*contracts.PriceBar{bar("AAPL", day(0), 100), bar("MSFT", day(1), 101)}, 1},
		{"duplicate date", []*contracts.PriceBar{bar("AAPL", day(0), 100), bar("AAPL", day(0), 101)}, 1},
		{"descending dates", []*contracts.PriceBar{bar("AAPL", day(1), 100), bar("AAPL", day(0), 101)}, 1},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := l.ComputeForwardReturns(tc.bars, tc.horizon)
			require.Error(t, err)
			assert.True(t, contracts.IsValidation(err))
		})
	}
}

func TestLabeler_Run(t *testing.T) {
	prices := newFakeBarStore()
	for i := 0; i < 10; i++ {
		prices.put(bar("AAPL", day(i), 100+float64(i)))
	}
	feats := newFakeFeatureStore()
	for i := 0; i < 7; i++ {
		feats.add(bareRow("AAPL", day(i)))
	}
	l := NewLabeler(logger.NewNop(), prices, feats)

	updated, skipped, err := l.Run(context.Background(), []string{"AAPL"}, day(0), day(4), 1)
	require.NoError(t, err)
	assert.Equal(t, 5, updated)
	assert.Equal(t, 0, skipped)

	first := feats.rows[rowKey("AAPL", day(0))]
	require.NotNil(t, first.Label)
	assert.InDelta(t, 0.01, *first.Label, 1e-12)
	assert.Equal(t, 1, first.LabelHorizon)

	last := feats.rows[rowKey("AAPL", day(4))]
	require.NotNil(t, last.Label)
	assert.InDelta(t, 0.00961538, *last.Label, 1e-8)

	assert.Nil(t, feats.rows[rowKey("AAPL", day(5))].Label,
		"labels past the range end are not applied")
}

func TestLabeler_RunCountsOrphanLabels(t *testing.T) {
	prices := newFakeBarStore()
	for i := 0; i < 10; i++ {
		prices.put(bar("AAPL", day(i), 100+float64(i)))
	}
	feats := newFakeFeatureStore()
	for i := 0; i < 3; i++ {
		feats.add(bareRow("AAPL", day(i)))
	}
	l := NewLabeler(logger.NewNop(), prices, feats)

	updated, skipped, err := l.Run(context.Background(), []string{"AAPL"}, day(0), day(4), 1)
	require.NoError(t, err)
	assert.Equal(t, 3, updated)
	assert.Equal(t, 2, skipped, "labels without a feature row are only counted")
}

func TestLabeler_RunWithoutPrices(t *testing.T) {
	l := NewLabeler(logger.NewNop(), newFakeBarStore(), newFakeFeatureStore())

	updated, skipped, err := l.Run(context.Background(), []string{"AAPL", "MSFT"}, day(0), day(4), 1)
	require.NoError(t, err)
	assert.Zero(t, updated)
	assert.Zero(t, skipped)
}

func TestLabeler_RunPropagatesStoreErrors(t *testing.T) {
	prices := newFakeBarStore()
	prices.err = errors.New("connection reset")
	l := NewLabeler(logger.NewNop(), prices, newFakeFeatureStore())

	_, _, err := l.Run(context.Background(), []string{"AAPL"}, day(0), day(4), 1)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "load prices for AAPL")
}
