package ingest

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"github.com/wonny/augur/backend/internal/contracts"
	"github.com/wonny/augur/backend/pkg/config"
	"github.com/wonny/augur/backend/pkg/httputil"
	"github.com/wonny/augur/backend/pkg/logger"
)

// FundamentalScraper scrapes ratio snapshots from the screener site.
// ⭐ SSOT: 스크리너 HTML 스크래핑은 여기서만
type FundamentalScraper struct {
	httpClient *httputil.Client
	logger     *logger.Logger
	funds      contracts.FundamentalRepository
	baseURL    string
}

// NewFundamentalScraper creates a scraper against the configured screener.
func NewFundamentalScraper(cfg *config.Config, log *logger.Logger, httpClient *httputil.Client, funds contracts.FundamentalRepository) *FundamentalScraper {
	return &FundamentalScraper{
		httpClient: httpClient,
		logger:     log.WithComponent("fund_scraper"),
		funds:      funds,
		baseURL:    strings.TrimRight(cfg.Ingest.ScreenerBaseURL, "/"),
	}
}

// ratioLabelVariants maps the label spellings seen on company pages to
// snapshot metric names, beyond the canonical Screener CSV headers.
var ratioLabelVariants = map[string]string{
	"stock p/e":           "pe",
	"price to book value": "pb",
	"price to book":       "pb",
	"debt to equity":      "de_ratio",
	"pledged percentage":  "pledged_pct",
	"eps growth 3yrs":     "eps_g3y",
	"sales growth 3yrs":   "rev_g3y",
	"profit growth 3yrs":  "profit_g3y",
}

// ratioLabel resolves a page label to a metric name.
func ratioLabel(label string) (string, bool) {
	name := strings.ToLower(strings.TrimSpace(label))
	if col, ok := screenerColumns[name]; ok {
		return col, true
	}
	if col, ok := ratioLabelVariants[name]; ok {
		return col, true
	}
	return "", false
}

// ScrapeTicker fetches the company page for one ticker and extracts every
// labeled ratio it can recognize. AsOf is the scrape day.
func (s *FundamentalScraper) ScrapeTicker(ctx context.Context, ticker string) (*contracts.FundamentalSnapshot, error) {
	fullURL := fmt.Sprintf("%s/company/%s/", s.baseURL, url.PathEscape(ticker))

	resp, err := s.httpClient.Get(ctx, fullURL)
	if err != nil {
		return nil, fmt.Errorf("HTTP request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, fmt.Errorf("ticker %s: %w", ticker, contracts.ErrNotFound)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status code: %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response body failed: %w", err)
	}

	snap, found := s.parseRatiosHTML(string(body), ticker)
	if found == 0 {
		return nil, fmt.Errorf("no recognizable ratios for %s", ticker)
	}

	s.logger.WithFields(map[string]interface{}{
		"ticker": ticker,
		"ratios": found,
	}).Debug("Scraped fundamentals")
	return snap, nil
}

// parseRatiosHTML walks the ratio list of a company page; when the list is
// absent it falls back to scanning two-cell table rows.
func (s *FundamentalScraper) parseRatiosHTML(html, ticker string) (*contracts.FundamentalSnapshot, int) {
	snap := &contracts.FundamentalSnapshot{
		Ticker: ticker,
		AsOf:   contracts.Day(time.Now()),
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return snap, 0
	}

	found := 0
	doc.Find("#top-ratios li").Each(func(_ int, li *goquery.Selection) {
		label := li.Find("span.name").First().Text()
		col, ok := ratioLabel(label)
		if !ok {
			return
		}
		valText := li.Find("span.number").First().Text()
		if valText == "" {
			valText = li.Find("span.value").First().Text()
		}
		if v, ok := parseRatioValue(valText); ok {
			snap.SetValue(col, v)
			found++
		}
	})

	if found > 0 {
		return snap, found
	}

	doc.Find("table tr").Each(func(_ int, row *goquery.Selection) {
		cells := row.Find("th, td")
		if cells.Length() < 2 {
			return
		}
		col, ok := ratioLabel(cells.Eq(0).Text())
		if !ok {
			return
		}
		if v, ok := parseRatioValue(cells.Eq(1).Text()); ok {
			snap.SetValue(col, v)
			found++
		}
	})

	return snap, found
}

// parseRatioValue strips currency markers before numeric parsing.
func parseRatioValue(s string) (float64, bool) {
	s = strings.TrimSpace(s)
	s = strings.TrimPrefix(s, "₹")
	s = strings.TrimPrefix(s, "$")
	return parseNumber(s)
}

// ScrapeAndStore scrapes and upserts snapshots for every ticker. Failed
// tickers report -1 like the price fetcher; the batch continues.
func (s *FundamentalScraper) ScrapeAndStore(ctx context.Context, tickers []string) (map[string]int, error) {
	stats := make(map[string]int, len(tickers))
	var snaps []*contracts.FundamentalSnapshot

	for _, ticker := range tickers {
		select {
		case <-ctx.Done():
			return stats, ctx.Err()
		default:
		}

		snap, err := s.ScrapeTicker(ctx, ticker)
		if err != nil {
			s.logger.WithError(err).WithField("ticker", ticker).Error("Fundamental scrape failed")
			stats[ticker] = -1
			continue
		}
		snaps = append(snaps, snap)
		stats[ticker] = 1
	}

	if len(snaps) > 0 {
		if _, err := s.funds.Upsert(ctx, snaps); err != nil {
			return stats, fmt.Errorf("upsert fundamentals: %w", err)
		}
	}

	s.logger.WithFields(map[string]interface{}{
		"tickers": len(tickers),
		"scraped": len(snaps),
	}).Info("Fundamental scrape completed")
	return stats, nil
}
