package features

import (
	"math"

	"github.com/wonny/augur/backend/pkg/logger"
)

// FeatureCleaner applies the missing-data policy once every join stage has
// added its columns to the frame.
// ⭐ SSOT: 피처 결측치 정책은 여기서만
type FeatureCleaner struct {
	logger    *logger.Logger
	threshold float64
}

// NewFeatureCleaner creates a cleaner that drops columns whose missing rate
// exceeds threshold.
func NewFeatureCleaner(log *logger.Logger, threshold float64) *FeatureCleaner {
	return &FeatureCleaner{
		logger:    log.WithComponent("cleaner"),
		threshold: threshold,
	}
}

// Clean drops over-sparse columns, then fills the survivors per instrument
// forward, then backward, then with zero. Row keys live outside the column
// set and are never dropped or filled.
func (c *FeatureCleaner) Clean(f *Frame) {
	var dropped []string
	for _, col := range append([]string(nil), f.Columns()...) {
		if f.MissingRate(col) > c.threshold {
			f.DropColumn(col)
			dropped = append(dropped, col)
		}
	}
	if len(dropped) > 0 {
		c.logger.WithFields(map[string]interface{}{
			"threshold": c.threshold,
			"columns":   dropped,
		}).Info("Dropped sparse feature columns")
	}

	segs := f.tickerSegments()
	for _, col := range f.Columns() {
		vals := f.Column(col)
		for _, seg := range segs {
			fillSegment(vals, seg.start, seg.end)
		}
	}

	c.logger.WithFields(map[string]interface{}{
		"rows":    f.Len(),
		"columns": len(f.Columns()),
	}).Info("Cleaned feature frame")
}

// fillSegment forward-fills, then backward-fills, then zero-fills one
// instrument's contiguous index range in place.
func fillSegment(vals []float64, start, end int) {
	last := math.NaN()
	for i := start; i < end; i++ {
		if math.IsNaN(vals[i]) {
			vals[i] = last
		} else {
			last = vals[i]
		}
	}
	next := math.NaN()
	for i := end - 1; i >= start; i-- {
		if math.IsNaN(vals[i]) {
			vals[i] = next
		} else {
			next = vals[i]
		}
	}
	for i := start; i < end; i++ {
		if math.IsNaN(vals[i]) {
			vals[i] = 0
		}
	}
}
