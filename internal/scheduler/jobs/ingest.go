package jobs

import (
	"context"
	"fmt"
	"time"

	"github.com/wonny/augur/backend/internal/ingest"
	"github.com/wonny/augur/backend/pkg/config"
	"github.com/wonny/augur/backend/pkg/logger"
)

// priceBackfillDays re-fetches a trailing window each day so late
// corrections and holiday gaps converge without a manual backfill.
const priceBackfillDays = 5

// DailyIngestJob pulls prices, news and fundamentals for the universe
// ⭐ SSOT: 일일 데이터 수집 스케줄은 이 Job에서만
type DailyIngestJob struct {
	config  *config.Config
	logger  *logger.Logger
	prices  *ingest.PriceFetcher
	news    *ingest.NewsFetcher
	scraper *ingest.FundamentalScraper
}

// NewDailyIngestJob creates a new daily ingest job
func NewDailyIngestJob(
	cfg *config.Config,
	log *logger.Logger,
	prices *ingest.PriceFetcher,
	news *ingest.NewsFetcher,
	scraper *ingest.FundamentalScraper,
) *DailyIngestJob {
	return &DailyIngestJob{
		config:  cfg,
		logger:  log,
		prices:  prices,
		news:    news,
		scraper: scraper,
	}
}

// Name returns the job name
func (j *DailyIngestJob) Name() string {
	return "daily_ingest"
}

// Schedule returns the cron schedule (weekdays at 5:30 PM, after close)
func (j *DailyIngestJob) Schedule() string {
	return "0 30 17 * * 1-5"
}

// Run fetches and stores the day's raw data. Each source is attempted
// even if an earlier one failed; the first error is reported after all
// sources ran.
func (j *DailyIngestJob) Run(ctx context.Context) error {
	tickers := j.config.Pipeline.Tickers
	if len(tickers) == 0 {
		j.logger.Warn("No tickers configured, skipping ingest")
		return nil
	}

	to := time.Now()
	from := to.AddDate(0, 0, -priceBackfillDays)

	var firstErr error

	j.logger.Info("Collecting prices")
	if _, err := j.prices.FetchAndStore(ctx, tickers, from, to); err != nil {
		firstErr = fmt.Errorf("fetch prices: %w", err)
		j.logger.WithError(err).Error("Price ingest failed")
	}

	if j.news.Enabled() {
		j.logger.Info("Collecting news")
		if _, err := j.news.FetchAndStore(ctx, tickers, from, to); err != nil {
			if firstErr == nil {
				firstErr = fmt.Errorf("fetch news: %w", err)
			}
			j.logger.WithError(err).Error("News ingest failed")
		}
	}

	j.logger.Info("Collecting fundamentals")
	if _, err := j.scraper.ScrapeAndStore(ctx, tickers); err != nil {
		if firstErr == nil {
			firstErr = fmt.Errorf("scrape fundamentals: %w", err)
		}
		j.logger.WithError(err).Error("Fundamentals ingest failed")
	}

	if firstErr == nil {
		j.logger.Info("Daily ingest completed successfully")
	}
	return firstErr
}
