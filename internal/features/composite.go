package features

import (
	"math"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/wonny/augur/backend/pkg/logger"
)

// Candidate source columns per score dimension. Only columns that survived
// cleaning participate; rsi_normalized is derived on the fly from rsi_14.
var (
	qualityCandidates   = []string{"roe", "roce", "opm", "npm"}
	valuationCandidates = []string{"pe_vs_sector", "pb_vs_sector"}
	momentumCandidates  = []string{"momentum_20", "momentum_60", "rsi_normalized"}
	sentimentCandidates = []string{"sent_mean_comp", "sent_ma_7d"}
)

// ScoreColumns lists the composite output columns in order.
var ScoreColumns = []string{
	"quality_score", "valuation_score", "momentum_score", "sentiment_score",
	"composite_score", "risk_adjusted_score",
}

// CompositeWeights holds the per-dimension blend weights.
type CompositeWeights struct {
	Quality   float64
	Valuation float64
	Momentum  float64
	Sentiment float64
}

// EqualWeights is the fallback weighting of 0.25 per dimension.
func EqualWeights() CompositeWeights {
	return CompositeWeights{Quality: 0.25, Valuation: 0.25, Momentum: 0.25, Sentiment: 0.25}
}

// ParseWeights parses a "name:weight,..." string covering all four
// dimensions. Any malformed entry, unknown or missing dimension, or
// negative weight falls back to equal weights with a warning.
func ParseWeights(raw string, log *logger.Logger) CompositeWeights {
	parsed := make(map[string]float64, 4)
	ok := true
	for _, part := range strings.Split(raw, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		name, value, found := strings.Cut(part, ":")
		if !found {
			ok = false
			break
		}
		w, err := strconv.ParseFloat(strings.TrimSpace(value), 64)
		if err != nil || math.IsNaN(w) || math.IsInf(w, 0) || w < 0 {
			ok = false
			break
		}
		parsed[strings.ToLower(strings.TrimSpace(name))] = w
	}
	for _, dim := range []string{"quality", "valuation", "momentum", "sentiment"} {
		if _, exists := parsed[dim]; !exists {
			ok = false
		}
	}
	if !ok || len(parsed) != 4 {
		log.WithField("raw", raw).Warn("Malformed composite weights, using equal weights")
		return EqualWeights()
	}
	return CompositeWeights{
		Quality:   parsed["quality"],
		Valuation: parsed["valuation"],
		Momentum:  parsed["momentum"],
		Sentiment: parsed["sentiment"],
	}
}

// CompositeScorer derives the blended cross-sectional scores.
// ⭐ SSOT: 종합 점수 계산은 여기서만
type CompositeScorer struct {
	logger  *logger.Logger
	weights CompositeWeights
}

// NewCompositeScorer creates a scorer with the given weights.
func NewCompositeScorer(log *logger.Logger, weights CompositeWeights) *CompositeScorer {
	return &CompositeScorer{
		logger:  log.WithComponent("composite"),
		weights: weights,
	}
}

// Score adds the four dimension scores plus composite_score and
// risk_adjusted_score to the frame. Each source column is scaled to [0,1]
// by same-date percentile rank (ties averaged, missing values neutral 0.5)
// and dimension scores average their scaled sources. A dimension with no
// surviving source columns is the constant 0.5. risk_adjusted_score equals
// composite_score until a real risk model replaces it.
func (s *CompositeScorer) Score(f *Frame) {
	dates, groups := f.dateGroups()

	quality := s.dimensionScore(f, "quality", qualityCandidates, dates, groups)
	valuation := s.dimensionScore(f, "valuation", valuationCandidates, dates, groups)
	momentum := s.dimensionScore(f, "momentum", momentumCandidates, dates, groups)
	sentiment := s.dimensionScore(f, "sentiment", sentimentCandidates, dates, groups)

	n := f.Len()
	composite := make([]float64, n)
	riskAdjusted := make([]float64, n)
	for i := 0; i < n; i++ {
		composite[i] = s.weights.Quality*quality[i] +
			s.weights.Valuation*valuation[i] +
			s.weights.Momentum*momentum[i] +
			s.weights.Sentiment*sentiment[i]
		riskAdjusted[i] = composite[i]
	}

	f.AddColumn("quality_score", quality)
	f.AddColumn("valuation_score", valuation)
	f.AddColumn("momentum_score", momentum)
	f.AddColumn("sentiment_score", sentiment)
	f.AddColumn("composite_score", composite)
	f.AddColumn("risk_adjusted_score", riskAdjusted)
}

// dimensionScore averages the percentile-rank scaled candidate columns that
// exist in the frame, or returns the neutral constant when none do.
func (s *CompositeScorer) dimensionScore(f *Frame, name string, candidates []string, dates []time.Time, groups map[time.Time][]int) []float64 {
	n := f.Len()
	var scaled [][]float64
	for _, col := range candidates {
		src := s.sourceColumn(f, col)
		if src == nil {
			continue
		}
		scaled = append(scaled, scaleTo01(src, dates, groups))
	}

	out := make([]float64, n)
	if len(scaled) == 0 {
		s.logger.WithField("dimension", name).Warn("No source columns available, using neutral score")
		for i := range out {
			out[i] = 0.5
		}
		return out
	}
	for i := 0; i < n; i++ {
		var sum float64
		for _, col := range scaled {
			sum += col[i]
		}
		out[i] = sum / float64(len(scaled))
	}
	return out
}

// sourceColumn resolves a candidate column, deriving rsi_normalized from
// rsi_14 without persisting it.
func (s *CompositeScorer) sourceColumn(f *Frame, col string) []float64 {
	if col != "rsi_normalized" {
		return f.Column(col)
	}
	rsi := f.Column("rsi_14")
	if rsi == nil {
		return nil
	}
	norm := make([]float64, len(rsi))
	for i, v := range rsi {
		norm[i] = v / 100.0
	}
	return norm
}

// scaleTo01 maps each value to its same-date percentile rank in [0,1].
// Ranks average over ties and divide by the count of non-missing values in
// the date group; missing values read as the neutral 0.5.
func scaleTo01(src []float64, dates []time.Time, groups map[time.Time][]int) []float64 {
	out := make([]float64, len(src))
	for i := range out {
		out[i] = 0.5
	}
	type entry struct {
		idx int
		v   float64
	}
	for _, dt := range dates {
		rows := groups[dt]
		entries := make([]entry, 0, len(rows))
		for _, i := range rows {
			if math.IsNaN(src[i]) {
				continue
			}
			entries = append(entries, entry{idx: i, v: src[i]})
		}
		n := len(entries)
		if n == 0 {
			continue
		}
		sort.Slice(entries, func(a, b int) bool { return entries[a].v < entries[b].v })
		for lo := 0; lo < n; {
			hi := lo + 1
			for hi < n && entries[hi].v == entries[lo].v {
				hi++
			}
			// Average of 1-based ranks lo+1..hi, as a fraction of the group.
			pct := (float64(lo+1+hi) / 2.0) / float64(n)
			if pct > 1 {
				pct = 1
			}
			if pct < 0 {
				pct = 0
			}
			for k := lo; k < hi; k++ {
				out[entries[k].idx] = pct
			}
			lo = hi
		}
	}
	return out
}
