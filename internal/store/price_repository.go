package store

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/wonny/augur/backend/internal/contracts"
)

// PriceRepository implements contracts.PriceRepository
// ⭐ SSOT: 가격 데이터 저장소는 여기서만
type PriceRepository struct {
	pool *pgxpool.Pool
}

// NewPriceRepository creates a new price repository
func NewPriceRepository(pool *pgxpool.Pool) *PriceRepository {
	return &PriceRepository{pool: pool}
}

// Upsert writes bars keyed by (ticker, dt) and returns how many rows
// were written.
func (r *PriceRepository) Upsert(ctx context.Context, bars []*contracts.PriceBar) (int, error) {
	if len(bars) == 0 {
		return 0, nil
	}

	query := `
		INSERT INTO prices (ticker, dt, open, high, low, close, adj_close, volume)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (ticker, dt) DO UPDATE SET
			open = EXCLUDED.open,
			high = EXCLUDED.high,
			low = EXCLUDED.low,
			close = EXCLUDED.close,
			adj_close = EXCLUDED.adj_close,
			volume = EXCLUDED.volume
	`

	batch := &pgx.Batch{}
	for _, b := range bars {
		batch.Queue(query, b.Ticker, contracts.Day(b.Date), b.Open, b.High, b.Low, b.Close, b.AdjClose, b.Volume)
	}

	br := r.pool.SendBatch(ctx, batch)
	defer br.Close()

	written := 0
	for range bars {
		ct, err := br.Exec()
		if err != nil {
			return written, err
		}
		written += int(ct.RowsAffected())
	}
	return written, nil
}

// GetByTicker retrieves bars for a ticker within [from, to], date ascending.
func (r *PriceRepository) GetByTicker(ctx context.Context, ticker string, from, to time.Time) ([]*contracts.PriceBar, error) {
	query := `
		SELECT ticker, dt, open, high, low, close, adj_close, volume
		FROM prices
		WHERE ticker = $1 AND dt BETWEEN $2 AND $3
		ORDER BY dt ASC
	`

	rows, err := r.pool.Query(ctx, query, ticker, from, to)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var bars []*contracts.PriceBar
	for rows.Next() {
		var b contracts.PriceBar
		if err := rows.Scan(&b.Ticker, &b.Date, &b.Open, &b.High, &b.Low, &b.Close, &b.AdjClose, &b.Volume); err != nil {
			return nil, err
		}
		bars = append(bars, &b)
	}
	return bars, rows.Err()
}

// GetLatestByTicker retrieves the most recent bars for a ticker,
// returned date ascending so indicator code can consume them directly.
func (r *PriceRepository) GetLatestByTicker(ctx context.Context, ticker string, limit int) ([]*contracts.PriceBar, error) {
	query := `
		SELECT ticker, dt, open, high, low, close, adj_close, volume
		FROM prices
		WHERE ticker = $1
		ORDER BY dt DESC
		LIMIT $2
	`

	rows, err := r.pool.Query(ctx, query, ticker, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var bars []*contracts.PriceBar
	for rows.Next() {
		var b contracts.PriceBar
		if err := rows.Scan(&b.Ticker, &b.Date, &b.Open, &b.High, &b.Low, &b.Close, &b.AdjClose, &b.Volume); err != nil {
			return nil, err
		}
		bars = append(bars, &b)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for i, j := 0, len(bars)-1; i < j; i, j = i+1, j-1 {
		bars[i], bars[j] = bars[j], bars[i]
	}
	return bars, nil
}

// GetTickers lists every ticker with at least one stored bar.
func (r *PriceRepository) GetTickers(ctx context.Context) ([]string, error) {
	query := `SELECT DISTINCT ticker FROM prices ORDER BY ticker`

	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var tickers []string
	for rows.Next() {
		var t string
		if err := rows.Scan(&t); err != nil {
			return nil, err
		}
		tickers = append(tickers, t)
	}
	return tickers, rows.Err()
}
