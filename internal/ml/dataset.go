package ml

import (
	"sort"
	"time"

	"github.com/wonny/augur/backend/internal/contracts"
)

// minRowFeatures is the floor of non-missing features a labeled row
// needs before it can enter a training matrix. Thinner rows are mostly
// fill and teach the model nothing.
const minRowFeatures = 10

// Dataset is a dense matrix view over labeled feature rows, ordered by
// date then ticker. Missing feature values are zero, matching the
// cleaner's fill policy.
type Dataset struct {
	Rows    []*contracts.FeatureRow
	Columns []string
	X       [][]float64
	Y       []float64
	Dates   []time.Time
}

// BuildDataset keeps rows carrying a label and at least minRowFeatures
// non-missing features, orders them by date then ticker, and
// materializes the matrix over the sorted union of feature columns.
func BuildDataset(rows []*contracts.FeatureRow) *Dataset {
	kept := make([]*contracts.FeatureRow, 0, len(rows))
	colSet := make(map[string]struct{})
	for _, r := range rows {
		if r.Label == nil || r.FeatureCount() < minRowFeatures {
			continue
		}
		kept = append(kept, r)
		for name := range r.Features {
			colSet[name] = struct{}{}
		}
	}
	sort.SliceStable(kept, func(i, j int) bool {
		if !kept[i].Date.Equal(kept[j].Date) {
			return kept[i].Date.Before(kept[j].Date)
		}
		return kept[i].Ticker < kept[j].Ticker
	})

	cols := make([]string, 0, len(colSet))
	for name := range colSet {
		cols = append(cols, name)
	}
	sort.Strings(cols)

	ds := &Dataset{
		Rows:    kept,
		Columns: cols,
		X:       make([][]float64, len(kept)),
		Y:       make([]float64, len(kept)),
		Dates:   make([]time.Time, len(kept)),
	}
	for i, r := range kept {
		ds.X[i] = Vectorize(r, cols)
		ds.Y[i] = *r.Label
		ds.Dates[i] = r.Date
	}
	return ds
}

// Vectorize projects one row onto an ordered column list. Absent or
// NaN features become zero.
func Vectorize(r *contracts.FeatureRow, cols []string) []float64 {
	x := make([]float64, len(cols))
	for j, name := range cols {
		if v, ok := r.Feature(name); ok {
			x[j] = v
		}
	}
	return x
}

// Len reports the number of rows.
func (d *Dataset) Len() int { return len(d.X) }

// Subset views the dataset at the given row indices, sharing backing
// vectors with the parent.
func (d *Dataset) Subset(idx []int) *Dataset {
	out := &Dataset{
		Rows:    make([]*contracts.FeatureRow, len(idx)),
		Columns: d.Columns,
		X:       make([][]float64, len(idx)),
		Y:       make([]float64, len(idx)),
		Dates:   make([]time.Time, len(idx)),
	}
	for i, ix := range idx {
		out.Rows[i] = d.Rows[ix]
		out.X[i] = d.X[ix]
		out.Y[i] = d.Y[ix]
		out.Dates[i] = d.Dates[ix]
	}
	return out
}
