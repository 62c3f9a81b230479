package ml

import (
	"fmt"
	"sort"
	"time"

	"github.com/wonny/augur/backend/internal/contracts"
	"github.com/wonny/augur/backend/pkg/logger"
)

// CVSplit is one walk-forward fold. Train and Test are disjoint index sets
// into the caller's date-sorted rows; Train always covers a prefix.
type CVSplit struct {
	Fold  int
	Train []int
	Test  []int
}

// TrainEnd returns the last training index.
func (s CVSplit) TrainEnd() int {
	return s.Train[len(s.Train)-1]
}

// SplitConfig controls the expanding-window cross-validation scheme.
type SplitConfig struct {
	NSplits     int
	EmbargoDays int
	TestSize    float64
}

// Splitter produces expanding-window, embargoed train/test partitions.
// ⭐ SSOT: 시계열 교차검증 분할은 여기서만
type Splitter struct {
	logger *logger.Logger
	cfg    SplitConfig
}

// NewSplitter creates a splitter.
func NewSplitter(log *logger.Logger, cfg SplitConfig) *Splitter {
	return &Splitter{
		logger: log.WithComponent("timesplit"),
		cfg:    cfg,
	}
}

// Split partitions the rows behind a date-ascending index. Each fold's test
// window slides forward while the training window expands from the start,
// ending EmbargoDays before the test window opens (one day when the embargo
// is zero). Folds that come out empty are skipped with a warning; having no
// usable fold at all is an error. The arithmetic is fully deterministic.
func (s *Splitter) Split(dates []time.Time) ([]CVSplit, error) {
	n := len(dates)
	for i := 1; i < n; i++ {
		if dates[i].Before(dates[i-1]) {
			return nil, contracts.NewValidationError("dates", "dates must be sorted ascending")
		}
	}
	if s.cfg.NSplits < 1 {
		return nil, contracts.NewValidationError("n_splits", "must be >= 1")
	}
	if n < s.cfg.NSplits+1 {
		return nil, contracts.NewValidationError("dates", fmt.Sprintf(
			"not enough samples (%d) for %d splits, need at least %d",
			n, s.cfg.NSplits, s.cfg.NSplits+1))
	}

	testWindow := int(float64(n) * s.cfg.TestSize)
	if testWindow < 1 {
		testWindow = 1
	}
	step := (n - testWindow) / s.cfg.NSplits
	if step < 1 {
		step = 1
	}

	var splits []CVSplit
	for i := 0; i < s.cfg.NSplits; i++ {
		testEnd := testWindow + (i+1)*step
		if testEnd > n {
			testEnd = n
		}
		testStart := testEnd - testWindow
		if testStart < 0 {
			testStart = 0
		}

		testStartDate := dates[testStart]
		testEndDate := dates[testEnd-1]

		trainEndDate := testStartDate.AddDate(0, 0, -s.cfg.EmbargoDays)
		if s.cfg.EmbargoDays == 0 {
			trainEndDate = testStartDate.AddDate(0, 0, -1)
		}

		// Sorted dates make every region a contiguous index range.
		trainLen := sort.Search(n, func(j int) bool { return dates[j].After(trainEndDate) })
		testLo := sort.Search(n, func(j int) bool { return !dates[j].Before(testStartDate) })
		testHi := sort.Search(n, func(j int) bool { return dates[j].After(testEndDate) })

		if trainLen == 0 || testHi <= testLo {
			s.logger.WithFields(map[string]interface{}{
				"fold":  i,
				"train": trainLen,
				"test":  testHi - testLo,
			}).Warn("Skipping fold with empty side")
			continue
		}

		splits = append(splits, CVSplit{
			Fold:  i,
			Train: indexRange(0, trainLen),
			Test:  indexRange(testLo, testHi),
		})

		s.logger.WithFields(map[string]interface{}{
			"fold":       i,
			"train_end":  trainEndDate.Format("2006-01-02"),
			"test_start": testStartDate.Format("2006-01-02"),
			"test_end":   testEndDate.Format("2006-01-02"),
			"train_size": trainLen,
			"test_size":  testHi - testLo,
		}).Debug("Generated fold")
	}

	if len(splits) == 0 {
		return nil, contracts.NewValidationError("splits",
			"no valid splits generated, reduce n_splits or embargo_days")
	}

	s.logger.WithFields(map[string]interface{}{
		"folds":   len(splits),
		"embargo": s.cfg.EmbargoDays,
	}).Info("Generated time-series splits")

	return splits, nil
}

func indexRange(lo, hi int) []int {
	out := make([]int, hi-lo)
	for i := range out {
		out[i] = lo + i
	}
	return out
}
