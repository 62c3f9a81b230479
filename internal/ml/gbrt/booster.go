package gbrt

import (
	"fmt"
	"math"
	"math/rand"
	"sort"
)

// Booster is a fitted gradient-boosted ensemble. Exported fields
// round-trip through the JSON model artifact.
// ⭐ SSOT: 부스팅 학습과 예측 산식은 여기서만
type Booster struct {
	Params        Params   `json:"params"`
	FeatureNames  []string `json:"feature_names"`
	BaseScore     float64  `json:"base_score"`
	Trees         []*Tree  `json:"trees"`
	BestIteration int      `json:"best_iteration"`
}

// Fit trains an ensemble on x/y with squared-error loss. Each round
// fits one tree to the current residuals over a seeded row/column
// subsample, then shrinks it by the learning rate. When valX/valY are
// non-empty they drive early stopping: training stops after
// EarlyStoppingRounds rounds without a validation RMSE improvement and
// BestIteration marks the best round. Without validation all rounds
// are kept and BestIteration is the final round.
func Fit(p Params, featureNames []string, x [][]float64, y []float64, valX [][]float64, valY []float64) (*Booster, error) {
	if err := p.validate(); err != nil {
		return nil, err
	}
	if len(x) == 0 {
		return nil, fmt.Errorf("no training rows")
	}
	if len(x) != len(y) {
		return nil, fmt.Errorf("rows and targets disagree: %d vs %d", len(x), len(y))
	}
	if len(valX) != len(valY) {
		return nil, fmt.Errorf("validation rows and targets disagree: %d vs %d", len(valX), len(valY))
	}
	nf := len(featureNames)
	if nf == 0 {
		return nil, fmt.Errorf("no feature names")
	}
	for i, row := range x {
		if len(row) != nf {
			return nil, fmt.Errorf("row %d has %d values, want %d", i, len(row), nf)
		}
	}
	for i, row := range valX {
		if len(row) != nf {
			return nil, fmt.Errorf("validation row %d has %d values, want %d", i, len(row), nf)
		}
	}

	n := len(x)
	rng := rand.New(rand.NewSource(p.Seed))
	b := &Booster{
		Params:       p,
		FeatureNames: append([]string(nil), featureNames...),
		BaseScore:    mean(y),
	}

	pred := make([]float64, n)
	for i := range pred {
		pred[i] = b.BaseScore
	}
	valPred := make([]float64, len(valX))
	for i := range valPred {
		valPred[i] = b.BaseScore
	}

	resid := make([]float64, n)
	bestRMSE := math.Inf(1)
	sinceBest := 0

	for iter := 0; iter < p.NEstimators; iter++ {
		for i := range resid {
			resid[i] = y[i] - pred[i]
		}
		rows := sampleIndices(rng, n, p.Subsample)
		cols := sampleIndices(rng, nf, p.ColsampleByTree)
		tree := growTree(x, resid, rows, cols, p)
		b.Trees = append(b.Trees, tree)

		for i := range x {
			pred[i] += p.LearningRate * tree.Predict(x[i])
		}
		if len(valX) == 0 {
			continue
		}
		for i := range valX {
			valPred[i] += p.LearningRate * tree.Predict(valX[i])
		}
		if r := rmse(valY, valPred); r < bestRMSE {
			bestRMSE = r
			b.BestIteration = iter + 1
			sinceBest = 0
		} else {
			sinceBest++
			if p.EarlyStoppingRounds > 0 && sinceBest >= p.EarlyStoppingRounds {
				break
			}
		}
	}
	if len(valX) == 0 {
		b.BestIteration = len(b.Trees)
	}
	return b, nil
}

// Predict scores one feature vector with the first BestIteration trees.
func (b *Booster) Predict(x []float64) float64 {
	return b.PredictN(x, b.BestIteration)
}

// PredictN scores one feature vector with the first n trees, clamped to
// the ensemble size. n = 0 returns the base score.
func (b *Booster) PredictN(x []float64, n int) float64 {
	if n < 0 {
		n = 0
	}
	if n > len(b.Trees) {
		n = len(b.Trees)
	}
	s := b.BaseScore
	for _, t := range b.Trees[:n] {
		s += b.Params.LearningRate * t.Predict(x)
	}
	return s
}

// PredictBatch scores every row with the first BestIteration trees.
func (b *Booster) PredictBatch(x [][]float64) []float64 {
	out := make([]float64, len(x))
	for i, row := range x {
		out[i] = b.Predict(row)
	}
	return out
}

// PredictWithStd scores one row and estimates uncertainty as the
// population spread of the running predictions over the last lastK
// boosting rounds (capped at BestIteration). The spread of those
// partial sums is a cheap stability proxy, not a calibrated variance.
func (b *Booster) PredictWithStd(x []float64, lastK int) (yhat, std float64) {
	if len(b.Trees) == 0 || b.BestIteration < 1 {
		return b.BaseScore, 0
	}
	if lastK < 1 {
		lastK = 1
	}
	k := lastK
	if k > b.BestIteration {
		k = b.BestIteration
	}
	lo := b.BestIteration - k
	if lo < 1 {
		lo = 1
	}

	s := b.BaseScore
	preds := make([]float64, 0, b.BestIteration-lo+1)
	for i := 1; i <= b.BestIteration; i++ {
		s += b.Params.LearningRate * b.Trees[i-1].Predict(x)
		if i >= lo {
			preds = append(preds, s)
		}
	}
	return meanStd(preds)
}

// Importance is one feature's total split gain across the ensemble.
type Importance struct {
	Feature string  `json:"feature"`
	Gain    float64 `json:"gain"`
}

// FeatureImportance sums split gain per feature over the first
// BestIteration trees, descending. Features that never host a split are
// omitted.
func (b *Booster) FeatureImportance() []Importance {
	limit := b.BestIteration
	if limit > len(b.Trees) {
		limit = len(b.Trees)
	}
	gains := make(map[int]float64)
	for _, t := range b.Trees[:limit] {
		for i := range t.Nodes {
			nd := &t.Nodes[i]
			if nd.IsLeaf() {
				continue
			}
			gains[nd.Feature] += nd.Gain
		}
	}
	out := make([]Importance, 0, len(gains))
	for f, g := range gains {
		out = append(out, Importance{Feature: b.FeatureNames[f], Gain: g})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Gain != out[j].Gain {
			return out[i].Gain > out[j].Gain
		}
		return out[i].Feature < out[j].Feature
	})
	return out
}

// sampleIndices draws a sorted fraction of [0, n) without replacement.
// A fraction of 1 short-circuits to the identity so unbagged fits do
// not consume randomness.
func sampleIndices(rng *rand.Rand, n int, fraction float64) []int {
	if fraction >= 1 {
		out := make([]int, n)
		for i := range out {
			out[i] = i
		}
		return out
	}
	k := int(float64(n) * fraction)
	if k < 1 {
		k = 1
	}
	idx := rng.Perm(n)[:k]
	sort.Ints(idx)
	return idx
}

func mean(vs []float64) float64 {
	if len(vs) == 0 {
		return 0
	}
	var s float64
	for _, v := range vs {
		s += v
	}
	return s / float64(len(vs))
}

func meanStd(vs []float64) (float64, float64) {
	m := mean(vs)
	var ss float64
	for _, v := range vs {
		d := v - m
		ss += d * d
	}
	return m, math.Sqrt(ss / float64(len(vs)))
}

func rmse(y, yhat []float64) float64 {
	var ss float64
	for i := range y {
		d := yhat[i] - y[i]
		ss += d * d
	}
	return math.Sqrt(ss / float64(len(y)))
}
