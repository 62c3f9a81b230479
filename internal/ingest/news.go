package ingest

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/wonny/augur/backend/internal/contracts"
	"github.com/wonny/augur/backend/pkg/config"
	"github.com/wonny/augur/backend/pkg/httputil"
	"github.com/wonny/augur/backend/pkg/logger"
)

// NewsFetcher pulls scored headlines from the JSON feed and attributes them
// to tickers by keyword match. An empty feed URL disables fetching.
// ⭐ SSOT: 뉴스 피드 호출은 이 클라이언트에서만
type NewsFetcher struct {
	httpClient *httputil.Client
	logger     *logger.Logger
	news       contracts.NewsRepository
	feedURL    string
}

// NewNewsFetcher creates a news fetcher over the configured feed.
func NewNewsFetcher(cfg *config.Config, log *logger.Logger, httpClient *httputil.Client, news contracts.NewsRepository) *NewsFetcher {
	return &NewsFetcher{
		httpClient: httpClient,
		logger:     log.WithComponent("news_fetcher"),
		news:       news,
		feedURL:    cfg.Ingest.NewsFeedURL,
	}
}

// Enabled reports whether a feed URL is configured.
func (n *NewsFetcher) Enabled() bool {
	return n.feedURL != ""
}

// newsFeedResponse is the scored-headline payload returned by the feed.
type newsFeedResponse struct {
	Articles []newsFeedArticle `json:"articles"`
}

type newsFeedArticle struct {
	PublishedAt string   `json:"published_at"`
	Title       string   `json:"title"`
	Summary     string   `json:"summary"`
	URL         string   `json:"url"`
	Source      string   `json:"source"`
	SentPos     *float64 `json:"sent_pos"`
	SentNeg     *float64 `json:"sent_neg"`
	SentNeu     *float64 `json:"sent_neu"`
	SentComp    *float64 `json:"sent_comp"`
}

// Fetch pulls headlines published in [from, to] and matches each one to the
// first ticker whose base symbol appears in the title or summary. Unmatched
// articles are dropped. Articles without sentiment scores come back with
// all-zero sentiment.
func (n *NewsFetcher) Fetch(ctx context.Context, tickers []string, from, to time.Time) ([]*contracts.NewsItem, error) {
	if !n.Enabled() {
		return nil, nil
	}

	fullURL := fmt.Sprintf("%s?from=%s&to=%s",
		n.feedURL,
		url.QueryEscape(from.Format("2006-01-02")),
		url.QueryEscape(to.Format("2006-01-02")),
	)

	var resp newsFeedResponse
	if err := n.httpClient.GetJSON(ctx, fullURL, &resp); err != nil {
		return nil, fmt.Errorf("fetch news feed: %w", err)
	}

	var items []*contracts.NewsItem
	unmatched := 0
	for _, art := range resp.Articles {
		if art.URL == "" || art.Title == "" {
			continue
		}

		published, err := parseTimestamp(art.PublishedAt)
		if err != nil {
			published = time.Now().UTC()
		}
		if published.Before(from) || published.After(to) {
			continue
		}

		ticker := matchTicker(tickers, art.Title, art.Summary)
		if ticker == "" {
			unmatched++
			continue
		}

		items = append(items, &contracts.NewsItem{
			Ticker:      ticker,
			PublishedAt: published,
			URL:         art.URL,
			Title:       art.Title,
			Source:      art.Source,
			SentPos:     deref(art.SentPos),
			SentNeg:     deref(art.SentNeg),
			SentNeu:     deref(art.SentNeu),
			SentComp:    deref(art.SentComp),
		})
	}

	n.logger.WithFields(map[string]interface{}{
		"articles":  len(resp.Articles),
		"matched":   len(items),
		"unmatched": unmatched,
	}).Debug("Fetched news")
	return items, nil
}

// FetchAndStore fetches and upserts headlines, returning the upserted count.
func (n *NewsFetcher) FetchAndStore(ctx context.Context, tickers []string, from, to time.Time) (int, error) {
	items, err := n.Fetch(ctx, tickers, from, to)
	if err != nil {
		return 0, err
	}
	if len(items) == 0 {
		return 0, nil
	}

	count, err := n.news.Upsert(ctx, items)
	if err != nil {
		return 0, fmt.Errorf("upsert news: %w", err)
	}

	n.logger.WithField("count", count).Info("News fetch completed")
	return count, nil
}

// matchTicker returns the first ticker whose base symbol (exchange suffix
// stripped) appears in the title or summary, case-insensitive.
func matchTicker(tickers []string, title, summary string) string {
	title = strings.ToUpper(title)
	summary = strings.ToUpper(summary)
	for _, ticker := range tickers {
		base := strings.ToUpper(strings.SplitN(ticker, ".", 2)[0])
		if base == "" {
			continue
		}
		if strings.Contains(title, base) || strings.Contains(summary, base) {
			return ticker
		}
	}
	return ""
}

func deref(p *float64) float64 {
	if p == nil {
		return 0
	}
	return *p
}
