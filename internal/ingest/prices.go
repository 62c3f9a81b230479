package ingest

import (
	"context"
	"fmt"
	"net/url"
	"sort"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/wonny/augur/backend/internal/contracts"
	"github.com/wonny/augur/backend/pkg/config"
	"github.com/wonny/augur/backend/pkg/httputil"
	"github.com/wonny/augur/backend/pkg/logger"
)

// PriceFetcher pulls daily OHLCV bars from the price API and upserts them.
// ⭐ SSOT: 외부 가격 API 호출은 이 클라이언트에서만
type PriceFetcher struct {
	httpClient *httputil.Client
	logger     *logger.Logger
	prices     contracts.PriceRepository
	baseURL    string
	limiter    *rate.Limiter
}

// NewPriceFetcher creates a price fetcher rate-limited per config.
func NewPriceFetcher(cfg *config.Config, log *logger.Logger, httpClient *httputil.Client, prices contracts.PriceRepository) *PriceFetcher {
	return &PriceFetcher{
		httpClient: httpClient,
		logger:     log.WithComponent("price_fetcher"),
		prices:     prices,
		baseURL:    strings.TrimRight(cfg.Ingest.PriceBaseURL, "/"),
		limiter:    rate.NewLimiter(rate.Limit(cfg.Ingest.PriceRatePerSec), cfg.Ingest.PriceBurst),
	}
}

// priceAPIResponse is the daily-bars payload returned by the price API.
type priceAPIResponse struct {
	Ticker string        `json:"ticker"`
	Bars   []priceAPIBar `json:"bars"`
}

type priceAPIBar struct {
	Date     string  `json:"date"`
	Open     float64 `json:"open"`
	High     float64 `json:"high"`
	Low      float64 `json:"low"`
	Close    float64 `json:"close"`
	AdjClose float64 `json:"adj_close"`
	Volume   float64 `json:"volume"`
}

// FetchTicker fetches daily bars for one ticker in [from, to]. Bars the API
// returns with an unreadable date or a non-positive close are skipped, and
// duplicate dates keep the last occurrence.
func (p *PriceFetcher) FetchTicker(ctx context.Context, ticker string, from, to time.Time) ([]*contracts.PriceBar, error) {
	if err := p.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limit wait failed: %w", err)
	}

	fullURL := fmt.Sprintf("%s/v1/daily?symbol=%s&from=%s&to=%s",
		p.baseURL,
		url.QueryEscape(ticker),
		from.Format("2006-01-02"),
		to.Format("2006-01-02"),
	)

	var resp priceAPIResponse
	if err := p.httpClient.GetJSON(ctx, fullURL, &resp); err != nil {
		return nil, fmt.Errorf("fetch prices for %s: %w", ticker, err)
	}

	byDate := make(map[time.Time]*contracts.PriceBar, len(resp.Bars))
	skipped := 0
	for _, bar := range resp.Bars {
		date, err := parseDay(bar.Date)
		if err != nil {
			skipped++
			continue
		}
		if bar.Close <= 0 {
			skipped++
			continue
		}
		adjClose := bar.AdjClose
		if adjClose <= 0 {
			adjClose = bar.Close
		}
		byDate[date] = &contracts.PriceBar{
			Ticker:   ticker,
			Date:     date,
			Open:     bar.Open,
			High:     bar.High,
			Low:      bar.Low,
			Close:    bar.Close,
			AdjClose: adjClose,
			Volume:   bar.Volume,
		}
	}

	bars := make([]*contracts.PriceBar, 0, len(byDate))
	for _, bar := range byDate {
		bars = append(bars, bar)
	}
	sort.Slice(bars, func(i, j int) bool { return bars[i].Date.Before(bars[j].Date) })

	p.logger.WithFields(map[string]interface{}{
		"ticker":  ticker,
		"count":   len(bars),
		"skipped": skipped,
	}).Debug("Fetched prices")
	return bars, nil
}

// FetchAndStore fetches and upserts bars for every ticker. One ticker
// failing does not stop the rest; failed tickers report -1 in the returned
// counts. Only context cancellation aborts the batch.
func (p *PriceFetcher) FetchAndStore(ctx context.Context, tickers []string, from, to time.Time) (map[string]int, error) {
	stats := make(map[string]int, len(tickers))

	for _, ticker := range tickers {
		select {
		case <-ctx.Done():
			return stats, ctx.Err()
		default:
		}

		bars, err := p.FetchTicker(ctx, ticker, from, to)
		if err != nil {
			p.logger.WithError(err).WithField("ticker", ticker).Error("Price fetch failed")
			stats[ticker] = -1
			continue
		}
		if len(bars) == 0 {
			p.logger.WithField("ticker", ticker).Warn("No price data fetched")
			stats[ticker] = 0
			continue
		}

		n, err := p.prices.Upsert(ctx, bars)
		if err != nil {
			p.logger.WithError(err).WithField("ticker", ticker).Error("Price upsert failed")
			stats[ticker] = -1
			continue
		}
		stats[ticker] = n
	}

	p.logger.WithFields(map[string]interface{}{
		"tickers": len(tickers),
		"from":    from.Format("2006-01-02"),
		"to":      to.Format("2006-01-02"),
	}).Info("Price fetch completed")
	return stats, nil
}
