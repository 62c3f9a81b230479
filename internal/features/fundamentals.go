package features

import (
	"math"
	"time"

	"github.com/wonny/augur/backend/internal/contracts"
	"github.com/wonny/augur/backend/pkg/logger"
)

// FundamentalJoiner attaches point-in-time fundamental ratios to a feature
// frame and derives sector-relative valuation columns.
// ⭐ SSOT: 펀더멘털 as-of 조인과 상대가치 계산은 여기서만
type FundamentalJoiner struct {
	logger        *logger.Logger
	stalenessDays int
}

// NewFundamentalJoiner creates a joiner with the given staleness cap in days.
func NewFundamentalJoiner(log *logger.Logger, stalenessDays int) *FundamentalJoiner {
	return &FundamentalJoiner{
		logger:        log.WithComponent("fundamentals"),
		stalenessDays: stalenessDays,
	}
}

// Join adds one column per fundamental ratio to the frame. Each row picks
// the latest snapshot published on or before the row date and no more than
// the staleness cap before it. Snapshots must be sorted by asof ascending
// per ticker; rows without an eligible snapshot stay missing.
func (j *FundamentalJoiner) Join(f *Frame, snapshots map[string][]*contracts.FundamentalSnapshot) {
	cols := make(map[string][]float64, len(contracts.FundamentalColumns))
	for _, name := range contracts.FundamentalColumns {
		cols[name] = nanColumn(f.Len())
	}

	maxAge := time.Duration(j.stalenessDays) * 24 * time.Hour
	joined := 0
	for _, seg := range f.tickerSegments() {
		snaps := snapshots[seg.ticker]
		if len(snaps) == 0 {
			continue
		}
		si := 0
		for i := seg.start; i < seg.end; i++ {
			dt := f.Key(i).Date
			for si < len(snaps)-1 && !snaps[si+1].AsOf.After(dt) {
				si++
			}
			snap := snaps[si]
			if snap.AsOf.After(dt) || dt.Sub(snap.AsOf) > maxAge {
				continue
			}
			for _, name := range contracts.FundamentalColumns {
				if v, ok := snap.Value(name); ok {
					cols[name][i] = v
				}
			}
			joined++
		}
	}

	for _, name := range contracts.FundamentalColumns {
		f.AddColumn(name, cols[name])
	}

	j.logger.WithFields(map[string]interface{}{
		"rows":        f.Len(),
		"joined_rows": joined,
		"max_age":     j.stalenessDays,
	}).Info("Joined fundamentals")
}

// valuationMetrics are the raw multiples that get a relative column.
var valuationMetrics = []string{"pe", "pb"}

// AddRelativeValuation derives pe_vs_sector and pb_vs_sector. With a sector
// map the value is divided by its same-day sector mean; without one the
// fallback is a sign-flipped cross-sectional z-score per date so a cheaper
// multiple still scores higher. Non-finite results become missing.
func (j *FundamentalJoiner) AddRelativeValuation(f *Frame, sectors map[string]string) {
	if len(sectors) > 0 {
		j.sectorRelative(f, sectors)
		return
	}
	j.logger.Info("No sector mapping available, using cross-sectional z-scores")
	j.crossSectionalZScores(f)
}

func (j *FundamentalJoiner) sectorRelative(f *Frame, sectors map[string]string) {
	dates, groups := f.dateGroups()
	for _, metric := range valuationMetrics {
		src := f.Column(metric)
		out := nanColumn(f.Len())
		if src != nil {
			for _, dt := range dates {
				rows := groups[dt]
				means := sectorMeans(f, src, rows, sectors)
				for _, i := range rows {
					sector, ok := sectors[f.Key(i).Ticker]
					if !ok {
						continue
					}
					m := means[sector]
					v := src[i] / m
					if isFinite(v) {
						out[i] = v
					}
				}
			}
		}
		f.AddColumn(metric+"_vs_sector", out)
	}
}

// sectorMeans computes the per-sector mean of src over one date group,
// skipping missing values.
func sectorMeans(f *Frame, src []float64, rows []int, sectors map[string]string) map[string]float64 {
	sums := make(map[string]float64)
	counts := make(map[string]int)
	for _, i := range rows {
		sector, ok := sectors[f.Key(i).Ticker]
		if !ok || math.IsNaN(src[i]) {
			continue
		}
		sums[sector] += src[i]
		counts[sector]++
	}
	means := make(map[string]float64, len(sums))
	for sector, sum := range sums {
		means[sector] = sum / float64(counts[sector])
	}
	return means
}

func (j *FundamentalJoiner) crossSectionalZScores(f *Frame) {
	dates, groups := f.dateGroups()
	for _, metric := range valuationMetrics {
		src := f.Column(metric)
		out := nanColumn(f.Len())
		if src != nil {
			for _, dt := range dates {
				rows := groups[dt]
				mean, std, n := groupStats(src, rows)
				if n < 2 || std == 0 {
					continue
				}
				for _, i := range rows {
					v := -(src[i] - mean) / std
					if isFinite(v) {
						out[i] = v
					}
				}
			}
		}
		f.AddColumn(metric+"_vs_sector", out)
	}
}

// groupStats returns the mean and sample standard deviation of the
// non-missing values of src at the given row indexes.
func groupStats(src []float64, rows []int) (mean, std float64, n int) {
	var sum float64
	for _, i := range rows {
		if math.IsNaN(src[i]) {
			continue
		}
		sum += src[i]
		n++
	}
	if n == 0 {
		return math.NaN(), math.NaN(), 0
	}
	mean = sum / float64(n)
	if n < 2 {
		return mean, math.NaN(), n
	}
	var sq float64
	for _, i := range rows {
		if math.IsNaN(src[i]) {
			continue
		}
		d := src[i] - mean
		sq += d * d
	}
	std = math.Sqrt(sq / float64(n-1))
	return mean, std, n
}

func isFinite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
