package features

import (
	"fmt"
	"math"
	"sort"
	"time"
)

// RowKey identifies one (instrument, trading day) row.
type RowKey struct {
	Ticker string
	Date   time.Time
}

// Frame is the column-oriented working table of the feature pipeline.
// Rows are keyed by (ticker, date) and held in (ticker, date) ascending
// order; columns are float64 slices where NaN marks a missing value.
// Key fields live outside the column map, so no column operation can drop
// or fill them.
type Frame struct {
	keys    []RowKey
	columns []string
	data    map[string][]float64
	index   map[RowKey]int
}

// NewFrame builds a frame over the given row keys. Keys are assumed sorted
// by (ticker, date); the pipeline constructs them that way.
func NewFrame(keys []RowKey) *Frame {
	index := make(map[RowKey]int, len(keys))
	for i, k := range keys {
		index[k] = i
	}
	return &Frame{
		keys:  keys,
		data:  make(map[string][]float64),
		index: index,
	}
}

// Len returns the number of rows.
func (f *Frame) Len() int {
	return len(f.keys)
}

// Key returns the row key at position i.
func (f *Frame) Key(i int) RowKey {
	return f.keys[i]
}

// Keys returns the row keys in order.
func (f *Frame) Keys() []RowKey {
	return f.keys
}

// RowIndex returns the position of a key.
func (f *Frame) RowIndex(key RowKey) (int, bool) {
	i, ok := f.index[key]
	return i, ok
}

// Columns returns the column names in insertion order.
func (f *Frame) Columns() []string {
	return f.columns
}

// HasColumn reports whether the named column exists.
func (f *Frame) HasColumn(name string) bool {
	_, ok := f.data[name]
	return ok
}

// AddColumn attaches a column. Length must match the row count; an existing
// column of the same name is overwritten in place. A mismatched length is a
// programming error and panics.
func (f *Frame) AddColumn(name string, values []float64) {
	if len(values) != len(f.keys) {
		panic(fmt.Sprintf("features: column %s has %d values for %d rows", name, len(values), len(f.keys)))
	}
	if _, exists := f.data[name]; !exists {
		f.columns = append(f.columns, name)
	}
	f.data[name] = values
}

// Column returns the named column slice, nil when absent.
func (f *Frame) Column(name string) []float64 {
	return f.data[name]
}

// DropColumn removes the named column if present.
func (f *Frame) DropColumn(name string) {
	if _, ok := f.data[name]; !ok {
		return
	}
	delete(f.data, name)
	for i, c := range f.columns {
		if c == name {
			f.columns = append(f.columns[:i], f.columns[i+1:]...)
			break
		}
	}
}

// Value reads one cell. Unknown columns read as NaN.
func (f *Frame) Value(i int, name string) float64 {
	col, ok := f.data[name]
	if !ok {
		return math.NaN()
	}
	return col[i]
}

// MissingRate returns the NaN fraction of a column, 1.0 for unknown names.
func (f *Frame) MissingRate(name string) float64 {
	col, ok := f.data[name]
	if !ok || len(col) == 0 {
		return 1.0
	}
	missing := 0
	for _, v := range col {
		if math.IsNaN(v) {
			missing++
		}
	}
	return float64(missing) / float64(len(col))
}

// segment is a contiguous run of rows belonging to one ticker.
type segment struct {
	ticker string
	start  int
	end    int // exclusive
}

// tickerSegments returns contiguous per-ticker row ranges. Correct because
// keys are sorted ticker-major.
func (f *Frame) tickerSegments() []segment {
	var segs []segment
	n := len(f.keys)
	for start := 0; start < n; {
		ticker := f.keys[start].Ticker
		end := start + 1
		for end < n && f.keys[end].Ticker == ticker {
			end++
		}
		segs = append(segs, segment{ticker: ticker, start: start, end: end})
		start = end
	}
	return segs
}

// dateGroups returns row indices grouped by date, dates in ascending order.
func (f *Frame) dateGroups() ([]time.Time, map[time.Time][]int) {
	groups := make(map[time.Time][]int)
	var dates []time.Time
	for i, k := range f.keys {
		if _, seen := groups[k.Date]; !seen {
			dates = append(dates, k.Date)
		}
		groups[k.Date] = append(groups[k.Date], i)
	}
	sort.Slice(dates, func(i, j int) bool { return dates[i].Before(dates[j]) })
	return dates, groups
}

// nanColumn returns a fresh all-missing column.
func nanColumn(n int) []float64 {
	col := make([]float64, n)
	for i := range col {
		col[i] = math.NaN()
	}
	return col
}
