package store

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/wonny/augur/backend/internal/contracts"
)

// NewsRepository implements contracts.NewsRepository
// ⭐ SSOT: 뉴스 데이터 저장소는 여기서만
type NewsRepository struct {
	pool *pgxpool.Pool
}

// NewNewsRepository creates a new news repository
func NewNewsRepository(pool *pgxpool.Pool) *NewsRepository {
	return &NewsRepository{pool: pool}
}

// Upsert writes headlines keyed by (ticker, url). A refetched article
// refreshes its timestamp, title and sentiment scores.
func (r *NewsRepository) Upsert(ctx context.Context, items []*contracts.NewsItem) (int, error) {
	if len(items) == 0 {
		return 0, nil
	}

	query := `
		INSERT INTO news (ticker, url, published_at, title, source, sent_pos, sent_neg, sent_neu, sent_comp)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (ticker, url) DO UPDATE SET
			published_at = EXCLUDED.published_at,
			title = EXCLUDED.title,
			source = EXCLUDED.source,
			sent_pos = EXCLUDED.sent_pos,
			sent_neg = EXCLUDED.sent_neg,
			sent_neu = EXCLUDED.sent_neu,
			sent_comp = EXCLUDED.sent_comp
	`

	batch := &pgx.Batch{}
	for _, n := range items {
		batch.Queue(query, n.Ticker, n.URL, n.PublishedAt, n.Title, n.Source,
			n.SentPos, n.SentNeg, n.SentNeu, n.SentComp)
	}

	br := r.pool.SendBatch(ctx, batch)
	defer br.Close()

	written := 0
	for range items {
		ct, err := br.Exec()
		if err != nil {
			return written, err
		}
		written += int(ct.RowsAffected())
	}
	return written, nil
}

// GetByTicker retrieves headlines for a ticker within [from, to],
// oldest first.
func (r *NewsRepository) GetByTicker(ctx context.Context, ticker string, from, to time.Time) ([]*contracts.NewsItem, error) {
	query := `
		SELECT ticker, url, published_at, title, source, sent_pos, sent_neg, sent_neu, sent_comp
		FROM news
		WHERE ticker = $1 AND published_at BETWEEN $2 AND $3
		ORDER BY published_at ASC
	`

	rows, err := r.pool.Query(ctx, query, ticker, from, to)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanNews(rows)
}

// GetLatestByTicker retrieves the most recent headlines for a ticker,
// newest first, with limit/offset paging.
func (r *NewsRepository) GetLatestByTicker(ctx context.Context, ticker string, limit, offset int) ([]*contracts.NewsItem, error) {
	query := `
		SELECT ticker, url, published_at, title, source, sent_pos, sent_neg, sent_neu, sent_comp
		FROM news
		WHERE ticker = $1
		ORDER BY published_at DESC
		LIMIT $2 OFFSET $3
	`

	rows, err := r.pool.Query(ctx, query, ticker, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanNews(rows)
}

func scanNews(rows pgx.Rows) ([]*contracts.NewsItem, error) {
	var items []*contracts.NewsItem
	for rows.Next() {
		var n contracts.NewsItem
		if err := rows.Scan(&n.Ticker, &n.URL, &n.PublishedAt, &n.Title, &n.Source,
			&n.SentPos, &n.SentNeg, &n.SentNeu, &n.SentComp); err != nil {
			return nil, err
		}
		items = append(items, &n)
	}
	return items, rows.Err()
}
