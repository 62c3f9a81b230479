package features

import (
	"fmt"
	"math"

	"github.com/wonny/augur/backend/internal/contracts"
	"github.com/wonny/augur/backend/pkg/logger"
)

// TechnicalColumns lists every indicator column in output order.
var TechnicalColumns = []string{
	"sma_20", "sma_50", "sma_200",
	"ema_20", "ema_50", "ema_200",
	"rsi_14",
	"macd", "macd_signal", "macd_diff",
	"adx_14", "atr_14",
	"bb_high", "bb_low", "bb_mid", "bb_width",
	"momentum_20", "momentum_60",
	"rv_20",
}

// minIndicatorBars is the shortest history that yields any indicator value.
const minIndicatorBars = 20

// TechnicalCalculator computes per-instrument indicator columns.
// ⭐ SSOT: 기술적 지표 계산은 여기서만
type TechnicalCalculator struct {
	logger *logger.Logger
}

// NewTechnicalCalculator creates a new technical calculator.
func NewTechnicalCalculator(log *logger.Logger) *TechnicalCalculator {
	return &TechnicalCalculator{
		logger: log.WithComponent("technicals"),
	}
}

// Compute calculates all indicator columns for one instrument's bars.
// Bars must be sorted by date ascending without duplicates; values align
// with the input index and use NaN for warmup rows. Fewer than 20 bars
// yields all-NaN columns instead of an error.
func (c *TechnicalCalculator) Compute(ticker string, bars []*contracts.PriceBar) (map[string][]float64, error) {
	n := len(bars)
	for i := 1; i < n; i++ {
		if !bars[i].Date.After(bars[i-1].Date) {
			return nil, contracts.NewValidationError("bars",
				fmt.Sprintf("%s: bars not strictly ascending at index %d", ticker, i))
		}
	}

	out := make(map[string][]float64, len(TechnicalColumns))
	if n < minIndicatorBars {
		c.logger.WithFields(map[string]interface{}{
			"ticker": ticker,
			"bars":   n,
		}).Debug("Not enough bars for indicators")
		for _, col := range TechnicalColumns {
			out[col] = nanColumn(n)
		}
		return out, nil
	}

	adjClose := make([]float64, n)
	high := make([]float64, n)
	low := make([]float64, n)
	for i, b := range bars {
		adjClose[i] = b.AdjClose
		high[i] = b.High
		low[i] = b.Low
	}

	out["sma_20"] = rollingMean(adjClose, 20)
	out["sma_50"] = rollingMean(adjClose, 50)
	out["sma_200"] = rollingMean(adjClose, 200)
	out["ema_20"] = emaSeries(adjClose, 20)
	out["ema_50"] = emaSeries(adjClose, 50)
	out["ema_200"] = emaSeries(adjClose, 200)
	out["rsi_14"] = calculateRSI(adjClose, 14)

	macd, signal, diff := calculateMACD(adjClose, 12, 26, 9)
	out["macd"] = macd
	out["macd_signal"] = signal
	out["macd_diff"] = diff

	out["atr_14"] = calculateATR(high, low, adjClose, 14)
	out["adx_14"] = calculateADX(high, low, adjClose, 14)

	bbHigh, bbLow, bbMid, bbWidth := calculateBollinger(adjClose, 20, 2.0)
	out["bb_high"] = bbHigh
	out["bb_low"] = bbLow
	out["bb_mid"] = bbMid
	out["bb_width"] = bbWidth

	out["momentum_20"] = pctChange(adjClose, 20)
	out["momentum_60"] = pctChange(adjClose, 60)
	out["rv_20"] = rollingStd(pctChange(adjClose, 1), 20, 1)

	return out, nil
}

// rollingMean returns the w-bar moving average, NaN until the window fills.
func rollingMean(vals []float64, w int) []float64 {
	out := nanColumn(len(vals))
	for i := w - 1; i < len(vals); i++ {
		sum, ok := windowSum(vals, i-w+1, i)
		if !ok {
			continue
		}
		out[i] = sum / float64(w)
	}
	return out
}

// rollingStd returns the w-bar moving standard deviation with the given
// delta degrees of freedom. A window containing any NaN yields NaN.
func rollingStd(vals []float64, w, ddof int) []float64 {
	out := nanColumn(len(vals))
	for i := w - 1; i < len(vals); i++ {
		sum, ok := windowSum(vals, i-w+1, i)
		if !ok {
			continue
		}
		mean := sum / float64(w)
		var sq float64
		for j := i - w + 1; j <= i; j++ {
			d := vals[j] - mean
			sq += d * d
		}
		out[i] = math.Sqrt(sq / float64(w-ddof))
	}
	return out
}

// windowSum sums vals[lo..hi] inclusive, reporting false if any value is NaN.
func windowSum(vals []float64, lo, hi int) (float64, bool) {
	var sum float64
	for j := lo; j <= hi; j++ {
		if math.IsNaN(vals[j]) {
			return 0, false
		}
		sum += vals[j]
	}
	return sum, true
}

// emaSeries returns the w-bar exponential moving average seeded with the
// simple average of the first w values.
func emaSeries(vals []float64, w int) []float64 {
	out := nanColumn(len(vals))
	if len(vals) < w {
		return out
	}
	sum, ok := windowSum(vals, 0, w-1)
	if !ok {
		return out
	}
	out[w-1] = sum / float64(w)
	alpha := 2.0 / (float64(w) + 1.0)
	for i := w; i < len(vals); i++ {
		out[i] = alpha*vals[i] + (1-alpha)*out[i-1]
	}
	return out
}

// calculateRSI calculates the Relative Strength Index with Wilder smoothing.
func calculateRSI(vals []float64, period int) []float64 {
	n := len(vals)
	out := nanColumn(n)
	if n <= period {
		return out
	}

	var avgGain, avgLoss float64
	for i := 1; i <= period; i++ {
		change := vals[i] - vals[i-1]
		if change > 0 {
			avgGain += change
		} else {
			avgLoss += -change
		}
	}
	avgGain /= float64(period)
	avgLoss /= float64(period)
	out[period] = rsiValue(avgGain, avgLoss)

	for i := period + 1; i < n; i++ {
		change := vals[i] - vals[i-1]
		var gain, loss float64
		if change > 0 {
			gain = change
		} else {
			loss = -change
		}
		avgGain = (avgGain*float64(period-1) + gain) / float64(period)
		avgLoss = (avgLoss*float64(period-1) + loss) / float64(period)
		out[i] = rsiValue(avgGain, avgLoss)
	}
	return out
}

func rsiValue(avgGain, avgLoss float64) float64 {
	switch {
	case avgGain == 0 && avgLoss == 0:
		// Flat price history carries no signal
		return math.NaN()
	case avgLoss == 0:
		return 100.0
	default:
		rs := avgGain / avgLoss
		return 100.0 - 100.0/(1.0+rs)
	}
}

// calculateMACD calculates the MACD line, its signal line and the histogram.
func calculateMACD(vals []float64, fast, slow, signalW int) (macd, signal, diff []float64) {
	n := len(vals)
	emaFast := emaSeries(vals, fast)
	emaSlow := emaSeries(vals, slow)

	macd = nanColumn(n)
	for i := 0; i < n; i++ {
		if math.IsNaN(emaFast[i]) || math.IsNaN(emaSlow[i]) {
			continue
		}
		macd[i] = emaFast[i] - emaSlow[i]
	}

	// Signal line is an EMA over the valid MACD segment only.
	signal = nanColumn(n)
	start := slow - 1
	if start < n {
		seg := emaSeries(macd[start:], signalW)
		copy(signal[start:], seg)
	}

	diff = nanColumn(n)
	for i := 0; i < n; i++ {
		if math.IsNaN(macd[i]) || math.IsNaN(signal[i]) {
			continue
		}
		diff[i] = macd[i] - signal[i]
	}
	return macd, signal, diff
}

// trueRange returns the per-bar true range series. The first bar uses the
// plain high-low spread because no prior close exists.
func trueRange(high, low, close []float64) []float64 {
	n := len(high)
	tr := make([]float64, n)
	if n == 0 {
		return tr
	}
	tr[0] = high[0] - low[0]
	for i := 1; i < n; i++ {
		hl := high[i] - low[i]
		hc := math.Abs(high[i] - close[i-1])
		lc := math.Abs(low[i] - close[i-1])
		tr[i] = math.Max(hl, math.Max(hc, lc))
	}
	return tr
}

// calculateATR calculates the Average True Range with Wilder smoothing.
func calculateATR(high, low, close []float64, period int) []float64 {
	n := len(high)
	out := nanColumn(n)
	if n < period {
		return out
	}
	tr := trueRange(high, low, close)

	var sum float64
	for i := 0; i < period; i++ {
		sum += tr[i]
	}
	out[period-1] = sum / float64(period)
	for i := period; i < n; i++ {
		out[i] = (out[i-1]*float64(period-1) + tr[i]) / float64(period)
	}
	return out
}

// calculateADX calculates the Average Directional Index, Wilder's measure
// of trend strength regardless of direction.
func calculateADX(high, low, close []float64, period int) []float64 {
	n := len(high)
	out := nanColumn(n)
	if n < 2*period {
		return out
	}

	plusDM := make([]float64, n)
	minusDM := make([]float64, n)
	for i := 1; i < n; i++ {
		up := high[i] - high[i-1]
		down := low[i-1] - low[i]
		if up > down && up > 0 {
			plusDM[i] = up
		}
		if down > up && down > 0 {
			minusDM[i] = down
		}
	}
	tr := trueRange(high, low, close)

	// Wilder running sums over the first period bars, then decayed.
	var smTR, smPlus, smMinus float64
	for i := 1; i <= period; i++ {
		smTR += tr[i]
		smPlus += plusDM[i]
		smMinus += minusDM[i]
	}

	dx := nanColumn(n)
	dx[period] = dxValue(smPlus, smMinus, smTR)
	for i := period + 1; i < n; i++ {
		smTR = smTR - smTR/float64(period) + tr[i]
		smPlus = smPlus - smPlus/float64(period) + plusDM[i]
		smMinus = smMinus - smMinus/float64(period) + minusDM[i]
		dx[i] = dxValue(smPlus, smMinus, smTR)
	}

	// ADX seeds with the simple average of the first period DX values.
	var sum float64
	count := 0
	for i := period; i < 2*period && i < n; i++ {
		if math.IsNaN(dx[i]) {
			continue
		}
		sum += dx[i]
		count++
	}
	if count == 0 {
		return out
	}
	out[2*period-1] = sum / float64(count)
	for i := 2 * period; i < n; i++ {
		if math.IsNaN(dx[i]) {
			out[i] = out[i-1]
			continue
		}
		out[i] = (out[i-1]*float64(period-1) + dx[i]) / float64(period)
	}
	return out
}

func dxValue(smPlus, smMinus, smTR float64) float64 {
	if smTR == 0 {
		return math.NaN()
	}
	plusDI := 100.0 * smPlus / smTR
	minusDI := 100.0 * smMinus / smTR
	if plusDI+minusDI == 0 {
		return math.NaN()
	}
	return 100.0 * math.Abs(plusDI-minusDI) / (plusDI + minusDI)
}

// calculateBollinger calculates the Bollinger band columns. Band width is
// normalized by the middle band and left missing when the mid is zero.
func calculateBollinger(vals []float64, w int, k float64) (bbHigh, bbLow, bbMid, bbWidth []float64) {
	n := len(vals)
	bbMid = rollingMean(vals, w)
	std := rollingStd(vals, w, 0)

	bbHigh = nanColumn(n)
	bbLow = nanColumn(n)
	bbWidth = nanColumn(n)
	for i := 0; i < n; i++ {
		if math.IsNaN(bbMid[i]) || math.IsNaN(std[i]) {
			continue
		}
		bbHigh[i] = bbMid[i] + k*std[i]
		bbLow[i] = bbMid[i] - k*std[i]
		if bbMid[i] != 0 {
			bbWidth[i] = (bbHigh[i] - bbLow[i]) / bbMid[i]
		}
	}
	return bbHigh, bbLow, bbMid, bbWidth
}

// pctChange returns the n-bar fractional change, NaN where the base value
// is missing or zero.
func pctChange(vals []float64, n int) []float64 {
	out := nanColumn(len(vals))
	for i := n; i < len(vals); i++ {
		base := vals[i-n]
		if math.IsNaN(base) || math.IsNaN(vals[i]) || base == 0 {
			continue
		}
		out[i] = vals[i]/base - 1.0
	}
	return out
}
