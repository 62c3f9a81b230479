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

func testBars(ticker string, prices []float64) []*contracts.PriceBar {
	base := time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC)
	bars := make([]*contracts.PriceBar, len(prices))
	for i, p := range prices {
		bars[i] = &contracts.PriceBar{
			Ticker:   ticker,
			Date:     base.AddDate(0, 0, i),
			Open:     p,
			High:     p * 1.02,
			Low:      p * 0.98,
			Close:    p,
			AdjClose: p,
			Volume:   1000,
		}
	}
	return bars
}

func TestTechnicalCalculator_ShortHistory(t *testing.T) {
	calc := NewTechnicalCalculator(logger.NewNop())

	cols, err := calc.Compute("AAPL", testBars("AAPL", []float64{100, 101, 102}))
	require.NoError(t, err)

	assert.Len(t, cols, len(TechnicalColumns))
	for _, name := range TechnicalColumns {
		require.Len(t, cols[name], 3, name)
		for i, v := range cols[name] {
			assert.True(t, math.IsNaN(v), "%s[%d] should be missing", name, i)
		}
	}
}

func TestTechnicalCalculator_UnsortedBars(t *testing.T) {
	calc := NewTechnicalCalculator(logger.NewNop())

	bars := testBars("AAPL", []float64{100, 101, 102})
	bars[1], bars[2] = bars[2], bars[1]

	_, err := calc.Compute("AAPL", bars)
	require.Error(t, err)
	assert.True(t, contracts.IsValidation(err))
}

func TestTechnicalCalculator_DuplicateDates(t *testing.T) {
	calc := NewTechnicalCalculator(logger.NewNop())

	bars := testBars("AAPL", []float64{100, 101, 102})
	bars[2].Date = bars[1].Date

	_, err := calc.Compute("AAPL", bars)
	require.Error(t, err)
}

func TestTechnicalCalculator_AllColumnsAligned(t *testing.T) {
	calc := NewTechnicalCalculator(logger.NewNop())

	prices := make([]float64, 250)
	for i := range prices {
		prices[i] = 100 + math.Sin(float64(i)/7)*5 + float64(i)*0.1
	}
	cols, err := calc.Compute("AAPL", testBars("AAPL", prices))
	require.NoError(t, err)

	require.Len(t, cols, len(TechnicalColumns))
	for _, name := range TechnicalColumns {
		assert.Len(t, cols[name], 250, name)
	}

	// Long windows resolve once their history is available.
	assert.True(t, math.IsNaN(cols["sma_200"][198]))
	assert.False(t, math.IsNaN(cols["sma_200"][199]))
	assert.False(t, math.IsNaN(cols["ema_200"][249]))
	assert.False(t, math.IsNaN(cols["adx_14"][249]))
}

func TestRollingMean_Warmup(t *testing.T) {
	vals := []float64{1, 2, 3, 4, 5}
	out := rollingMean(vals, 3)

	assert.True(t, math.IsNaN(out[0]))
	assert.True(t, math.IsNaN(out[1]))
	assert.InDelta(t, 2.0, out[2], 1e-12)
	assert.InDelta(t, 3.0, out[3], 1e-12)
	assert.InDelta(t, 4.0, out[4], 1e-12)
}

func TestRollingMean_NaNInWindow(t *testing.T) {
	vals := []float64{1, math.NaN(), 3, 4, 5}
	out := rollingMean(vals, 3)

	assert.True(t, math.IsNaN(out[2]))
	assert.True(t, math.IsNaN(out[3]))
	assert.InDelta(t, 4.0, out[4], 1e-12)
}

func TestEMASeries_SeededWithSMA(t *testing.T) {
	vals := []float64{2, 4, 6, 8}
	out := emaSeries(vals, 3)

	assert.True(t, math.IsNaN(out[0]))
	assert.True(t, math.IsNaN(out[1]))
	// Seed equals the simple mean of the first window.
	assert.InDelta(t, 4.0, out[2], 1e-12)
	// alpha = 2/(3+1) = 0.5
	assert.InDelta(t, 0.5*8+0.5*4, out[3], 1e-12)
}

func TestCalculateRSI(t *testing.T) {
	vals := []float64{1, 2, 3, 2, 4}
	out := calculateRSI(vals, 3)

	for i := 0; i < 3; i++ {
		assert.True(t, math.IsNaN(out[i]), "index %d", i)
	}
	// gains (1,1,0)/3 = 2/3, losses (0,0,1)/3 = 1/3, rs = 2
	assert.InDelta(t, 100.0-100.0/3.0, out[3], 1e-9)
	// Wilder update: gain (2/3*2+2)/3 = 10/9, loss (1/3*2+0)/3 = 2/9, rs = 5
	assert.InDelta(t, 100.0-100.0/6.0, out[4], 1e-9)
}

func TestCalculateRSI_Extremes(t *testing.T) {
	flat := calculateRSI([]float64{5, 5, 5, 5, 5}, 3)
	for i := 3; i < len(flat); i++ {
		assert.True(t, math.IsNaN(flat[i]), "flat series has no direction")
	}

	rising := calculateRSI([]float64{1, 2, 3, 4, 5}, 3)
	assert.InDelta(t, 100.0, rising[4], 1e-12)

	falling := calculateRSI([]float64{5, 4, 3, 2, 1}, 3)
	assert.InDelta(t, 0.0, falling[4], 1e-12)
}

func TestCalculateMACD_WarmupAndDiff(t *testing.T) {
	prices := make([]float64, 60)
	for i := range prices {
		prices[i] = 100 + float64(i)
	}
	macd, signal, diff := calculateMACD(prices, 12, 26, 9)

	assert.True(t, math.IsNaN(macd[24]))
	assert.False(t, math.IsNaN(macd[25]))
	// Signal needs 9 MACD values starting at index 25.
	assert.True(t, math.IsNaN(signal[32]))
	assert.False(t, math.IsNaN(signal[33]))
	for i := 33; i < 60; i++ {
		require.False(t, math.IsNaN(diff[i]))
		assert.InDelta(t, macd[i]-signal[i], diff[i], 1e-12)
	}
}

func TestCalculateATR_ConstantRange(t *testing.T) {
	n := 20
	high := make([]float64, n)
	low := make([]float64, n)
	close := make([]float64, n)
	for i := 0; i < n; i++ {
		high[i] = 105
		low[i] = 95
		close[i] = 100
	}
	out := calculateATR(high, low, close, 14)

	assert.True(t, math.IsNaN(out[12]))
	for i := 13; i < n; i++ {
		assert.InDelta(t, 10.0, out[i], 1e-12)
	}
}

func TestCalculateBollinger(t *testing.T) {
	vals := make([]float64, 25)
	for i := range vals {
		vals[i] = 10
	}
	bbHigh, bbLow, bbMid, bbWidth := calculateBollinger(vals, 20, 2.0)

	assert.True(t, math.IsNaN(bbMid[18]))
	assert.InDelta(t, 10.0, bbMid[19], 1e-12)
	assert.InDelta(t, 10.0, bbHigh[19], 1e-12)
	assert.InDelta(t, 10.0, bbLow[19], 1e-12)
	assert.InDelta(t, 0.0, bbWidth[19], 1e-12)
}

func TestCalculateBollinger_ZeroMid(t *testing.T) {
	vals := make([]float64, 20)
	_, _, bbMid, bbWidth := calculateBollinger(vals, 20, 2.0)

	assert.InDelta(t, 0.0, bbMid[19], 1e-12)
	assert.True(t, math.IsNaN(bbWidth[19]), "zero mid cannot normalize the width")
}

func TestPctChange(t *testing.T) {
	out := pctChange([]float64{100, 102, 0, 103}, 1)

	assert.True(t, math.IsNaN(out[0]))
	assert.InDelta(t, 0.02, out[1], 1e-12)
	assert.InDelta(t, -1.0, out[2], 1e-12)
	assert.True(t, math.IsNaN(out[3]), "zero base yields missing")
}

func TestRealizedVolatilityWarmup(t *testing.T) {
	calc := NewTechnicalCalculator(logger.NewNop())

	prices := make([]float64, 30)
	for i := range prices {
		prices[i] = 100 * math.Pow(1.01, float64(i%5))
	}
	cols, err := calc.Compute("AAPL", testBars("AAPL", prices))
	require.NoError(t, err)

	rv := cols["rv_20"]
	// The first return is missing, so the 20-row window over returns
	// resolves one bar after sma_20 does.
	assert.True(t, math.IsNaN(rv[19]))
	assert.False(t, math.IsNaN(rv[20]))
}

func TestRollingStd_SampleVsPopulation(t *testing.T) {
	vals := []float64{2, 4, 4, 4, 5, 5, 7, 9}

	sample := rollingStd(vals, 8, 1)
	population := rollingStd(vals, 8, 0)

	assert.InDelta(t, 2.13809, sample[7], 1e-5)
	assert.InDelta(t, 2.0, population[7], 1e-12)
}
