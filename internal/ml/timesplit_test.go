package ml

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wonny/augur/backend/internal/contracts"
	"github.com/wonny/augur/backend/pkg/logger"
)

// rowDates repeats each of `days` consecutive days perDay times, date
// ascending, the shape of a multi-instrument feature table.
func rowDates(days, perDay int) []time.Time {
	var out []time.Time
	for i := 0; i < days; i++ {
		for j := 0; j < perDay; j++ {
			out = append(out, day(i))
		}
	}
	return out
}

func TestSplitter_ExpandingEmbargoedFolds(t *testing.T) {
	s := NewSplitter(logger.NewNop(), SplitConfig{NSplits: 3, EmbargoDays: 5, TestSize: 0.2})
	dates := rowDates(100, 1)

	folds, err := s.Split(dates)
	require.NoError(t, err)
	require.Len(t, folds, 3)

	wantTrain := []int{22, 48, 74}
	for i, fold := range folds {
		assert.Equal(t, i, fold.Fold)
		assert.Len(t, fold.Train, wantTrain[i], "training window expands fold over fold")
		assert.Len(t, fold.Test, 20)
		assert.Equal(t, 0, fold.Train[0], "training always covers a prefix")
		assert.Equal(t, fold.TrainEnd(), len(fold.Train)-1)

		maxTrain := dates[fold.TrainEnd()]
		minTest := dates[fold.Test[0]]
		assert.False(t, maxTrain.AddDate(0, 0, 5).After(minTest),
			"train end plus embargo must not pass the test start")
	}

	again, err := s.Split(dates)
	require.NoError(t, err)
	assert.Equal(t, folds, again, "the arithmetic is randomness-free")
}

func TestSplitter_ZeroEmbargoLeavesOneDayGap(t *testing.T) {
	s := NewSplitter(logger.NewNop(), SplitConfig{NSplits: 2, EmbargoDays: 0, TestSize: 0.2})
	dates := rowDates(50, 1)

	folds, err := s.Split(dates)
	require.NoError(t, err)
	require.NotEmpty(t, folds)

	for _, fold := range folds {
		maxTrain := dates[fold.TrainEnd()]
		minTest := dates[fold.Test[0]]
		assert.True(t, maxTrain.Before(minTest), "zero embargo still excludes the test start day")
	}
}

func TestSplitter_DatesNeverStraddleSides(t *testing.T) {
	s := NewSplitter(logger.NewNop(), SplitConfig{NSplits: 3, EmbargoDays: 2, TestSize: 0.2})
	dates := rowDates(30, 3)

	folds, err := s.Split(dates)
	require.NoError(t, err)
	require.NotEmpty(t, folds)

	for _, fold := range folds {
		trainDates := map[time.Time]bool{}
		for _, ix := range fold.Train {
			trainDates[dates[ix]] = true
		}
		for _, ix := range fold.Test {
			assert.False(t, trainDates[dates[ix]], "a date must not feed both sides")
		}
		assert.Zero(t, len(fold.Test)%3, "every row of a test day rides along")
	}
}

func TestSplitter_SkipsEmptyFoldsAndRenumbersNothing(t *testing.T) {
	s := NewSplitter(logger.NewNop(), SplitConfig{NSplits: 4, EmbargoDays: 10, TestSize: 0.2})
	dates := rowDates(20, 1)

	folds, err := s.Split(dates)
	require.NoError(t, err)
	require.Len(t, folds, 2, "early folds have no post-embargo training data")
	assert.Equal(t, 2, folds[0].Fold)
	assert.Equal(t, 3, folds[1].Fold)
}

func TestSplitter_NotEnoughSamples(t *testing.T) {
	s := NewSplitter(logger.NewNop(), SplitConfig{NSplits: 5, EmbargoDays: 2, TestSize: 0.2})

	_, err := s.Split(rowDates(4, 1))
	require.Error(t, err)
	assert.True(t, contracts.IsValidation(err))
	assert.Contains(t, err.Error(), "not enough samples")
}

func TestSplitter_UnsortedDates(t *testing.T) {
	s := NewSplitter(logger.NewNop(), SplitConfig{NSplits: 2, EmbargoDays: 2, TestSize: 0.2})

	_, err := s.Split([]time.Time{day(2), day(0), day(1)})
	require.Error(t, err)
	assert.True(t, contracts.IsValidation(err))
}

func TestSplitter_NoSurvivingFolds(t *testing.T) {
	s := NewSplitter(logger.NewNop(), SplitConfig{NSplits: 3, EmbargoDays: 2, TestSize: 0.2})

	_, err := s.Split(rowDates(1, 10))
	require.Error(t, err)
	assert.True(t, contracts.IsValidation(err))
	assert.Contains(t, err.Error(), "no valid splits")
}
