package gbrt

import (
	"math"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRand(seed int64) *rand.Rand {
	return rand.New(rand.NewSource(seed))
}

var stepFeatures = []string{"f0", "f1", "f2"}

// stepRows is a deterministic regression set: a unit step in feature 0,
// a linear term in feature 1 and an uninformative third column.
func stepRows(n int) (x [][]float64, y []float64) {
	for i := 0; i < n; i++ {
		f0 := float64(i % 10)
		f1 := float64((i*7)%13) / 13.0
		f2 := float64((i * 3) % 5)
		target := 0.5 * f1
		if f0 >= 5 {
			target++
		}
		x = append(x, []float64{f0, f1, f2})
		y = append(y, target)
	}
	return x, y
}

func TestFit_LearnsStep(t *testing.T) {
	x, y := stepRows(400)

	b, err := Fit(DefaultParams(), stepFeatures, x, y, nil, nil)
	require.NoError(t, err)
	assert.Len(t, b.Trees, 100)
	assert.Equal(t, 100, b.BestIteration, "no validation keeps every round")

	var lo, hi float64
	for i := 0; i < 200; i++ {
		if x[i][0] >= 5 {
			hi += b.Predict(x[i]) / 100
		} else {
			lo += b.Predict(x[i]) / 100
		}
	}
	assert.Greater(t, hi-lo, 0.5, "the step must separate the halves")

	var ss float64
	for i := range x {
		d := b.Predict(x[i]) - y[i]
		ss += d * d
	}
	assert.Less(t, math.Sqrt(ss/float64(len(x))), 0.2)
}

func TestFit_Deterministic(t *testing.T) {
	x, y := stepRows(400)
	p := DefaultParams()

	b1, err := Fit(p, stepFeatures, x, y, nil, nil)
	require.NoError(t, err)
	b2, err := Fit(p, stepFeatures, x, y, nil, nil)
	require.NoError(t, err)

	assert.Equal(t, b1.BestIteration, b2.BestIteration)
	assert.Equal(t, b1.BaseScore, b2.BaseScore)
	for i := 0; i < len(x); i += 17 {
		assert.Equal(t, b1.Predict(x[i]), b2.Predict(x[i]), "same seed, same data, same model")
	}
}

func TestFit_SeedChangesBagging(t *testing.T) {
	x, y := stepRows(400)
	p := DefaultParams()

	b1, err := Fit(p, stepFeatures, x, y, nil, nil)
	require.NoError(t, err)
	p.Seed = 7
	b2, err := Fit(p, stepFeatures, x, y, nil, nil)
	require.NoError(t, err)

	same := true
	for i := range x {
		if b1.Predict(x[i]) != b2.Predict(x[i]) {
			same = false
			break
		}
	}
	assert.False(t, same, "a different seed draws different row and column bags")
}

func TestFit_EarlyStopsOnPlateau(t *testing.T) {
	n := 60
	x := make([][]float64, n)
	y := make([]float64, n)
	for i := range x {
		x[i] = []float64{float64(i)}
	}

	b, err := Fit(DefaultParams(), []string{"f0"}, x, y, x, y)
	require.NoError(t, err)

	assert.Equal(t, 1, b.BestIteration)
	assert.Len(t, b.Trees, 11, "one improving round plus the patience window")
	assert.Zero(t, b.Predict([]float64{3}))
}

func TestFit_SmallFitWithoutValidation(t *testing.T) {
	n := 50
	x := make([][]float64, n)
	y := make([]float64, n)
	for i := range x {
		x[i] = []float64{float64(i)}
	}

	p := DefaultParams()
	p.NEstimators = 7
	b, err := Fit(p, []string{"f0"}, x, y, nil, nil)
	require.NoError(t, err)

	assert.Len(t, b.Trees, 7)
	assert.Equal(t, 7, b.BestIteration)
}

func TestFit_InputValidation(t *testing.T) {
	x, y := stepRows(50)
	good := DefaultParams()

	cases := []struct {
		name string
		run  func() error
	}{
		{"no rows", func() error {
			_, err := Fit(good, stepFeatures, nil, nil, nil, nil)
			return err
		}},
		{"row target mismatch", func() error {
			_, err := Fit(good, stepFeatures, x, y[:10], nil, nil)
			return err
		}},
		{"validation mismatch", func() error {
			_, err := Fit(good, stepFeatures, x, y, x, y[:10])
			return err
		}},
		{"ragged row", func() error {
			ragged := [][]float64{{1, 2, 3}, {1, 2}}
			_, err := Fit(good, stepFeatures, ragged, []float64{0, 0}, nil, nil)
			return err
		}},
		{"no feature names", func() error {
			_, err := Fit(good, nil, x, y, nil, nil)
			return err
		}},
		{"bad leaf budget", func() error {
			p := DefaultParams()
			p.NumLeaves = 1
			_, err := Fit(p, stepFeatures, x, y, nil, nil)
			return err
		}},
		{"bad subsample", func() error {
			p := DefaultParams()
			p.Subsample = 0
			_, err := Fit(p, stepFeatures, x, y, nil, nil)
			return err
		}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Error(t, tc.run())
		})
	}
}

// constantBooster stacks single-leaf trees so partial predictions are
// easy to enumerate by hand.
func constantBooster(leafValues ...float64) *Booster {
	b := &Booster{
		Params:        Params{LearningRate: 1},
		FeatureNames:  []string{"f0"},
		BestIteration: len(leafValues),
	}
	for _, v := range leafValues {
		b.Trees = append(b.Trees, &Tree{Nodes: []Node{{Feature: leafSentinel, Value: v, Count: 1}}})
	}
	return b
}

func TestPredictWithStd_TrailingWindow(t *testing.T) {
	b := constantBooster(1, 2, 3, 4, 5)
	x := []float64{0}

	// Partial sums after rounds 3, 4, 5 are 6, 10, 15.
	yhat, std := b.PredictWithStd(x, 2)
	assert.InDelta(t, 31.0/3, yhat, 1e-12)
	assert.InDelta(t, math.Sqrt(366.0/27), std, 1e-12)

	// A window larger than the ensemble covers every round.
	yhat, std = b.PredictWithStd(x, 50)
	assert.InDelta(t, 7.0, yhat, 1e-12)
	assert.InDelta(t, math.Sqrt(25.2), std, 1e-12)
}

func TestPredictWithStd_DegenerateCases(t *testing.T) {
	b := constantBooster(1, 2, 3)
	b.BestIteration = 1

	yhat, std := b.PredictWithStd([]float64{0}, 50)
	assert.InDelta(t, 1.0, yhat, 1e-12, "a single round has no spread")
	assert.Zero(t, std)

	empty := &Booster{Params: Params{LearningRate: 1}, BaseScore: 0.25}
	yhat, std = empty.PredictWithStd([]float64{0}, 50)
	assert.Equal(t, 0.25, yhat)
	assert.Zero(t, std)
}

func TestPredictN_Clamps(t *testing.T) {
	b := constantBooster(1, 2, 3, 4, 5)
	x := []float64{0}

	assert.Zero(t, b.PredictN(x, 0))
	assert.Zero(t, b.PredictN(x, -3))
	assert.InDelta(t, 6.0, b.PredictN(x, 3), 1e-12)
	assert.InDelta(t, 15.0, b.PredictN(x, 99), 1e-12)
	assert.Equal(t, b.PredictN(x, 5), b.Predict(x))
}

func TestFeatureImportance_RanksStepFeatureFirst(t *testing.T) {
	x, y := stepRows(400)

	b, err := Fit(DefaultParams(), stepFeatures, x, y, nil, nil)
	require.NoError(t, err)

	imps := b.FeatureImportance()
	require.NotEmpty(t, imps)
	assert.Equal(t, "f0", imps[0].Feature, "the step carries most of the variance")
	for i := 1; i < len(imps); i++ {
		assert.GreaterOrEqual(t, imps[i-1].Gain, imps[i].Gain)
		assert.Positive(t, imps[i].Gain)
	}
}

func TestSampleIndices(t *testing.T) {
	full := sampleIndices(nil, 5, 1)
	assert.Equal(t, []int{0, 1, 2, 3, 4}, full, "fraction one never touches the rng")

	r1 := newTestRand(42)
	r2 := newTestRand(42)
	s1 := sampleIndices(r1, 10, 0.5)
	s2 := sampleIndices(r2, 10, 0.5)
	assert.Equal(t, s1, s2)
	assert.Len(t, s1, 5)
	seen := map[int]bool{}
	for i, v := range s1 {
		assert.GreaterOrEqual(t, v, 0)
		assert.Less(t, v, 10)
		assert.False(t, seen[v], "sampling is without replacement")
		seen[v] = true
		if i > 0 {
			assert.Greater(t, v, s1[i-1], "indices come back sorted")
		}
	}

	tiny := sampleIndices(newTestRand(1), 10, 0.01)
	assert.Len(t, tiny, 1, "at least one row is always drawn")
}
