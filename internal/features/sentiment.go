package features

import (
	"github.com/wonny/augur/backend/internal/contracts"
	"github.com/wonny/augur/backend/pkg/logger"
)

// SentimentColumns lists the news-derived columns in output order.
var SentimentColumns = []string{"sent_mean_comp", "burst_3d", "burst_7d", "sent_ma_7d"}

// SentimentAggregator rolls raw news items up to daily per-ticker features.
// ⭐ SSOT: 뉴스 감성 집계는 여기서만
type SentimentAggregator struct {
	logger *logger.Logger
}

// NewSentimentAggregator creates a new sentiment aggregator.
func NewSentimentAggregator(log *logger.Logger) *SentimentAggregator {
	return &SentimentAggregator{
		logger: log.WithComponent("sentiment"),
	}
}

type dailySentiment struct {
	sum   float64
	count int
}

// Apply joins aggregated news sentiment onto the frame's trading-day spine.
// Items are deduplicated on (ticker, url) keeping the first occurrence and
// bucketed by calendar day. Spine days without news read as 0.0 sentiment
// and zero headlines rather than missing. Burst columns are trailing 3 and
// 7 row sums of the daily headline count and sent_ma_7d is the trailing
// 7 row mean of daily sentiment, both defined from the first row on. News
// on days outside the spine is dropped.
func (a *SentimentAggregator) Apply(f *Frame, items []*contracts.NewsItem) {
	daily := a.aggregateDaily(items)

	n := f.Len()
	sentMean := make([]float64, n)
	headlines := make([]float64, n)
	matched := 0
	for i := 0; i < n; i++ {
		k := f.Key(i)
		agg, ok := daily[RowKey{Ticker: k.Ticker, Date: contracts.Day(k.Date)}]
		if !ok {
			continue
		}
		sentMean[i] = agg.sum / float64(agg.count)
		headlines[i] = float64(agg.count)
		matched++
	}

	burst3 := make([]float64, n)
	burst7 := make([]float64, n)
	sentMA7 := make([]float64, n)
	for _, seg := range f.tickerSegments() {
		for i := seg.start; i < seg.end; i++ {
			lo3 := i - 2
			if lo3 < seg.start {
				lo3 = seg.start
			}
			lo7 := i - 6
			if lo7 < seg.start {
				lo7 = seg.start
			}
			var s3, s7, ms float64
			for j := lo3; j <= i; j++ {
				s3 += headlines[j]
			}
			for j := lo7; j <= i; j++ {
				s7 += headlines[j]
				ms += sentMean[j]
			}
			burst3[i] = s3
			burst7[i] = s7
			sentMA7[i] = ms / float64(i-lo7+1)
		}
	}

	f.AddColumn("sent_mean_comp", sentMean)
	f.AddColumn("burst_3d", burst3)
	f.AddColumn("burst_7d", burst7)
	f.AddColumn("sent_ma_7d", sentMA7)

	a.logger.WithFields(map[string]interface{}{
		"news_items":   len(items),
		"matched_days": matched,
		"rows":         n,
	}).Info("Aggregated news sentiment")
}

// aggregateDaily dedups items on (ticker, url) and buckets compound scores
// by calendar day.
func (a *SentimentAggregator) aggregateDaily(items []*contracts.NewsItem) map[RowKey]*dailySentiment {
	seen := make(map[string]struct{}, len(items))
	daily := make(map[RowKey]*dailySentiment)
	for _, item := range items {
		dedupKey := item.Ticker + "\x00" + item.URL
		if _, dup := seen[dedupKey]; dup {
			continue
		}
		seen[dedupKey] = struct{}{}

		key := RowKey{Ticker: item.Ticker, Date: contracts.Day(item.PublishedAt)}
		agg := daily[key]
		if agg == nil {
			agg = &dailySentiment{}
			daily[key] = agg
		}
		agg.sum += item.SentComp
		agg.count++
	}
	return daily
}
