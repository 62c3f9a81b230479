package contracts

import (
	"fmt"
	"math"
	"time"
)

// ⭐ SSOT: 파이프라인 전 구간에서 공유하는 데이터 계약은 여기서만 정의

// Day truncates a timestamp to UTC midnight. Every date key in the system
// (price bars, feature rows, predictions) is normalized through this.
func Day(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// HorizonLabel renders a horizon in days as the identity string stored with
// predictions and labels ("1d", "5d").
func HorizonLabel(days int) string {
	return fmt.Sprintf("%dd", days)
}

// PriceBar is one daily OHLCV bar. Identity: (Ticker, Date).
// AdjClose feeds indicators; raw Close feeds forward-return labels.
type PriceBar struct {
	Ticker   string    `json:"ticker"`
	Date     time.Time `json:"date"`
	Open     float64   `json:"open"`
	High     float64   `json:"high"`
	Low      float64   `json:"low"`
	Close    float64   `json:"close"`
	AdjClose float64   `json:"adj_close"`
	Volume   float64   `json:"volume"`
}

// NewsItem is one scored headline. Identity: (Ticker, URL).
// SentComp is the compound sentiment in [-1, 1].
type NewsItem struct {
	Ticker      string    `json:"ticker"`
	PublishedAt time.Time `json:"published_at"`
	URL         string    `json:"url"`
	Title       string    `json:"title"`
	Source      string    `json:"source"`
	SentPos     float64   `json:"sent_pos"`
	SentNeg     float64   `json:"sent_neg"`
	SentNeu     float64   `json:"sent_neu"`
	SentComp    float64   `json:"sent_comp"`
}

// FundamentalSnapshot is a point-in-time set of ratios published for a
// ticker. Identity: (Ticker, AsOf). Nil fields were not reported.
type FundamentalSnapshot struct {
	Ticker string    `json:"ticker"`
	AsOf   time.Time `json:"asof"`

	PE             *float64 `json:"pe"`
	PB             *float64 `json:"pb"`
	EVEBITDA       *float64 `json:"ev_ebitda"`
	ROE            *float64 `json:"roe"`
	ROCE           *float64 `json:"roce"`
	DERatio        *float64 `json:"de_ratio"`
	EPSGrowth3Y    *float64 `json:"eps_g3y"`
	RevGrowth3Y    *float64 `json:"rev_g3y"`
	ProfitGrowth3Y *float64 `json:"profit_g3y"`
	OPM            *float64 `json:"opm"`
	NPM            *float64 `json:"npm"`
	DivYield       *float64 `json:"div_yield"`
	PromoterHold   *float64 `json:"promoter_hold"`
	PledgedPct     *float64 `json:"pledged_pct"`
}

// FundamentalColumns lists the snapshot metrics in the order they appear as
// feature columns.
var FundamentalColumns = []string{
	"pe", "pb", "ev_ebitda", "roe", "roce", "de_ratio",
	"eps_g3y", "rev_g3y", "profit_g3y", "opm", "npm",
	"div_yield", "promoter_hold", "pledged_pct",
}

// Value returns the named metric. Missing (nil) metrics report ok=false.
func (s *FundamentalSnapshot) Value(col string) (float64, bool) {
	var p *float64
	switch col {
	case "pe":
		p = s.PE
	case "pb":
		p = s.PB
	case "ev_ebitda":
		p = s.EVEBITDA
	case "roe":
		p = s.ROE
	case "roce":
		p = s.ROCE
	case "de_ratio":
		p = s.DERatio
	case "eps_g3y":
		p = s.EPSGrowth3Y
	case "rev_g3y":
		p = s.RevGrowth3Y
	case "profit_g3y":
		p = s.ProfitGrowth3Y
	case "opm":
		p = s.OPM
	case "npm":
		p = s.NPM
	case "div_yield":
		p = s.DivYield
	case "promoter_hold":
		p = s.PromoterHold
	case "pledged_pct":
		p = s.PledgedPct
	}
	if p == nil {
		return 0, false
	}
	return *p, true
}

// SetValue assigns the named metric. Unknown names are ignored.
func (s *FundamentalSnapshot) SetValue(col string, v float64) {
	p := &v
	switch col {
	case "pe":
		s.PE = p
	case "pb":
		s.PB = p
	case "ev_ebitda":
		s.EVEBITDA = p
	case "roe":
		s.ROE = p
	case "roce":
		s.ROCE = p
	case "de_ratio":
		s.DERatio = p
	case "eps_g3y":
		s.EPSGrowth3Y = p
	case "rev_g3y":
		s.RevGrowth3Y = p
	case "profit_g3y":
		s.ProfitGrowth3Y = p
	case "opm":
		s.OPM = p
	case "npm":
		s.NPM = p
	case "div_yield":
		s.DivYield = p
	case "promoter_hold":
		s.PromoterHold = p
	case "pledged_pct":
		s.PledgedPct = p
	}
}

// FeatureRow is one (ticker, trading day) of the feature table. Features is
// an open column map; NaN marks a missing value in memory, stored as SQL
// null at the persistence boundary. Label is the forward return attached
// after the fact, nil until labeling runs.
type FeatureRow struct {
	Ticker       string             `json:"ticker"`
	Date         time.Time          `json:"date"`
	Features     map[string]float64 `json:"-"`
	Label        *float64           `json:"label,omitempty"`
	LabelHorizon int                `json:"label_horizon,omitempty"`
}

// Feature returns the named feature. NaN and absent columns report ok=false.
func (r *FeatureRow) Feature(name string) (float64, bool) {
	v, exists := r.Features[name]
	if !exists || math.IsNaN(v) {
		return 0, false
	}
	return v, true
}

// FeatureCount reports how many features carry a non-missing value.
func (r *FeatureRow) FeatureCount() int {
	n := 0
	for _, v := range r.Features {
		if !math.IsNaN(v) {
			n++
		}
	}
	return n
}

// LabelValue is one forward-return observation keyed like its feature row.
type LabelValue struct {
	Ticker string    `json:"ticker"`
	Date   time.Time `json:"date"`
	Value  float64   `json:"value"`
}

// Prediction is one model output. Identity: (Ticker, Date, Horizon).
type Prediction struct {
	Ticker       string    `json:"ticker"`
	Date         time.Time `json:"date"`
	Horizon      string    `json:"horizon"`
	Yhat         float64   `json:"yhat"`
	YhatStd      float64   `json:"yhat_std"`
	ProbUp       float64   `json:"prob_up"`
	ModelVersion string    `json:"model_version"`
	CreatedAt    time.Time `json:"created_at"`
}
