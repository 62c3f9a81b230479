package features

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wonny/augur/backend/internal/contracts"
	"github.com/wonny/augur/backend/pkg/logger"
)

func day(offset int) time.Time {
	return time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC).AddDate(0, 0, offset)
}

func spineFrame(tickers []string, days int) *Frame {
	var keys []RowKey
	for _, ticker := range tickers {
		for i := 0; i < days; i++ {
			keys = append(keys, RowKey{Ticker: ticker, Date: day(i)})
		}
	}
	return NewFrame(keys)
}

func snapshot(ticker string, asof time.Time, pe, pb float64) *contracts.FundamentalSnapshot {
	return &contracts.FundamentalSnapshot{
		Ticker: ticker,
		AsOf:   asof,
		PE:     &pe,
		PB:     &pb,
	}
}

func TestFundamentalJoiner_AsOfJoin(t *testing.T) {
	j := NewFundamentalJoiner(logger.NewNop(), 120)
	f := spineFrame([]string{"AAPL"}, 6)

	j.Join(f, map[string][]*contracts.FundamentalSnapshot{
		"AAPL": {
			snapshot("AAPL", day(1), 10, 2),
			snapshot("AAPL", day(4), 12, 3),
		},
	})

	pe := f.Column("pe")
	require.NotNil(t, pe)

	assert.True(t, math.IsNaN(pe[0]), "no snapshot published yet")
	assert.InDelta(t, 10.0, pe[1], 1e-12)
	assert.InDelta(t, 10.0, pe[2], 1e-12)
	assert.InDelta(t, 10.0, pe[3], 1e-12)
	assert.InDelta(t, 12.0, pe[4], 1e-12, "newer snapshot takes over on its asof day")
	assert.InDelta(t, 12.0, pe[5], 1e-12)
}

func TestFundamentalJoiner_NeverLooksForward(t *testing.T) {
	j := NewFundamentalJoiner(logger.NewNop(), 120)
	f := spineFrame([]string{"AAPL"}, 3)

	j.Join(f, map[string][]*contracts.FundamentalSnapshot{
		"AAPL": {snapshot("AAPL", day(5), 10, 2)},
	})

	pe := f.Column("pe")
	for i := 0; i < 3; i++ {
		assert.True(t, math.IsNaN(pe[i]), "future snapshot must not attach")
	}
}

func TestFundamentalJoiner_StalenessCap(t *testing.T) {
	j := NewFundamentalJoiner(logger.NewNop(), 3)
	f := spineFrame([]string{"AAPL"}, 6)

	j.Join(f, map[string][]*contracts.FundamentalSnapshot{
		"AAPL": {snapshot("AAPL", day(0), 10, 2)},
	})

	pe := f.Column("pe")
	assert.InDelta(t, 10.0, pe[0], 1e-12)
	assert.InDelta(t, 10.0, pe[3], 1e-12)
	assert.True(t, math.IsNaN(pe[4]), "snapshot older than the cap is dropped")
	assert.True(t, math.IsNaN(pe[5]))
}

func TestFundamentalJoiner_TickerWithoutSnapshots(t *testing.T) {
	j := NewFundamentalJoiner(logger.NewNop(), 120)
	f := spineFrame([]string{"AAPL", "MSFT"}, 2)

	j.Join(f, map[string][]*contracts.FundamentalSnapshot{
		"AAPL": {snapshot("AAPL", day(0), 10, 2)},
	})

	pe := f.Column("pe")
	aapl, ok := f.RowIndex(RowKey{Ticker: "AAPL", Date: day(1)})
	require.True(t, ok)
	msft, ok := f.RowIndex(RowKey{Ticker: "MSFT", Date: day(1)})
	require.True(t, ok)

	assert.False(t, math.IsNaN(pe[aapl]))
	assert.True(t, math.IsNaN(pe[msft]))

	// Every fundamental column exists even when nothing joined.
	for _, name := range contracts.FundamentalColumns {
		assert.True(t, f.HasColumn(name), name)
	}
}

func TestRelativeValuation_SectorRatio(t *testing.T) {
	j := NewFundamentalJoiner(logger.NewNop(), 120)
	f := spineFrame([]string{"AAPL", "MSFT", "XOM"}, 1)

	j.Join(f, map[string][]*contracts.FundamentalSnapshot{
		"AAPL": {snapshot("AAPL", day(0), 10, 2)},
		"MSFT": {snapshot("MSFT", day(0), 20, 4)},
		"XOM":  {snapshot("XOM", day(0), 8, 1)},
	})
	j.AddRelativeValuation(f, map[string]string{
		"AAPL": "Technology",
		"MSFT": "Technology",
		"XOM":  "Energy",
	})

	peRel := f.Column("pe_vs_sector")
	require.NotNil(t, peRel)

	aapl, _ := f.RowIndex(RowKey{Ticker: "AAPL", Date: day(0)})
	msft, _ := f.RowIndex(RowKey{Ticker: "MSFT", Date: day(0)})
	xom, _ := f.RowIndex(RowKey{Ticker: "XOM", Date: day(0)})

	// Tech sector mean PE = 15.
	assert.InDelta(t, 10.0/15.0, peRel[aapl], 1e-12)
	assert.InDelta(t, 20.0/15.0, peRel[msft], 1e-12)
	// XOM is alone in its sector, so it sits exactly at the mean.
	assert.InDelta(t, 1.0, peRel[xom], 1e-12)
}

func TestRelativeValuation_TickerMissingFromSectorMap(t *testing.T) {
	j := NewFundamentalJoiner(logger.NewNop(), 120)
	f := spineFrame([]string{"AAPL", "MSFT"}, 1)

	j.Join(f, map[string][]*contracts.FundamentalSnapshot{
		"AAPL": {snapshot("AAPL", day(0), 10, 2)},
		"MSFT": {snapshot("MSFT", day(0), 20, 4)},
	})
	j.AddRelativeValuation(f, map[string]string{"AAPL": "Technology"})

	peRel := f.Column("pe_vs_sector")
	aapl, _ := f.RowIndex(RowKey{Ticker: "AAPL", Date: day(0)})
	msft, _ := f.RowIndex(RowKey{Ticker: "MSFT", Date: day(0)})

	assert.False(t, math.IsNaN(peRel[aapl]))
	assert.True(t, math.IsNaN(peRel[msft]), "unmapped ticker stays missing")
}

func TestRelativeValuation_ZScoreFallback(t *testing.T) {
	j := NewFundamentalJoiner(logger.NewNop(), 120)
	f := spineFrame([]string{"AAPL", "MSFT"}, 1)

	j.Join(f, map[string][]*contracts.FundamentalSnapshot{
		"AAPL": {snapshot("AAPL", day(0), 10, 2)},
		"MSFT": {snapshot("MSFT", day(0), 20, 4)},
	})
	j.AddRelativeValuation(f, nil)

	peRel := f.Column("pe_vs_sector")
	aapl, _ := f.RowIndex(RowKey{Ticker: "AAPL", Date: day(0)})
	msft, _ := f.RowIndex(RowKey{Ticker: "MSFT", Date: day(0)})

	// mean 15, sample std = sqrt(50); the sign flip rewards the cheaper name.
	std := math.Sqrt(50.0)
	assert.InDelta(t, 5.0/std, peRel[aapl], 1e-12)
	assert.InDelta(t, -5.0/std, peRel[msft], 1e-12)
	assert.Greater(t, peRel[aapl], peRel[msft])
}

func TestRelativeValuation_ZeroStd(t *testing.T) {
	j := NewFundamentalJoiner(logger.NewNop(), 120)
	f := spineFrame([]string{"AAPL", "MSFT"}, 1)

	j.Join(f, map[string][]*contracts.FundamentalSnapshot{
		"AAPL": {snapshot("AAPL", day(0), 10, 2)},
		"MSFT": {snapshot("MSFT", day(0), 10, 2)},
	})
	j.AddRelativeValuation(f, nil)

	peRel := f.Column("pe_vs_sector")
	for i := 0; i < f.Len(); i++ {
		assert.True(t, math.IsNaN(peRel[i]), "identical values cannot be scaled")
	}
}

func TestGroupStats(t *testing.T) {
	src := []float64{10, 20, math.NaN(), 30}
	mean, std, n := groupStats(src, []int{0, 1, 2, 3})

	assert.Equal(t, 3, n)
	assert.InDelta(t, 20.0, mean, 1e-12)
	assert.InDelta(t, 10.0, std, 1e-12)
}
