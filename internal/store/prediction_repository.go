package store

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/wonny/augur/backend/internal/contracts"
)

// PredictionRepository implements contracts.PredictionRepository
// ⭐ SSOT: 예측 결과 저장소는 여기서만
type PredictionRepository struct {
	pool *pgxpool.Pool
}

// NewPredictionRepository creates a new prediction repository
func NewPredictionRepository(pool *pgxpool.Pool) *PredictionRepository {
	return &PredictionRepository{pool: pool}
}

// Upsert writes predictions keyed by (ticker, dt, horizon). Rescoring a
// date replaces the previous numbers and model version.
func (r *PredictionRepository) Upsert(ctx context.Context, preds []*contracts.Prediction) (int, error) {
	if len(preds) == 0 {
		return 0, nil
	}

	query := `
		INSERT INTO preds (ticker, dt, horizon, yhat, yhat_std, prob_up, model_version, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (ticker, dt, horizon) DO UPDATE SET
			yhat = EXCLUDED.yhat,
			yhat_std = EXCLUDED.yhat_std,
			prob_up = EXCLUDED.prob_up,
			model_version = EXCLUDED.model_version,
			created_at = EXCLUDED.created_at
	`

	batch := &pgx.Batch{}
	for _, p := range preds {
		batch.Queue(query,
			p.Ticker, contracts.Day(p.Date), p.Horizon,
			p.Yhat, p.YhatStd, p.ProbUp, p.ModelVersion, p.CreatedAt)
	}

	br := r.pool.SendBatch(ctx, batch)
	defer br.Close()

	written := 0
	for range preds {
		ct, err := br.Exec()
		if err != nil {
			return written, err
		}
		written += int(ct.RowsAffected())
	}
	return written, nil
}

// GetByDate retrieves predictions for a date and horizon, ordered by ticker.
func (r *PredictionRepository) GetByDate(ctx context.Context, date time.Time, horizon string) ([]*contracts.Prediction, error) {
	query := `
		SELECT ticker, dt, horizon, yhat, yhat_std, prob_up, model_version, created_at
		FROM preds
		WHERE dt = $1 AND horizon = $2
		ORDER BY ticker
	`

	rows, err := r.pool.Query(ctx, query, contracts.Day(date), horizon)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanPredictions(rows)
}

// GetByTicker retrieves the most recent predictions for one ticker and
// horizon, newest first.
func (r *PredictionRepository) GetByTicker(ctx context.Context, ticker, horizon string, limit int) ([]*contracts.Prediction, error) {
	query := `
		SELECT ticker, dt, horizon, yhat, yhat_std, prob_up, model_version, created_at
		FROM preds
		WHERE ticker = $1 AND horizon = $2
		ORDER BY dt DESC
		LIMIT $3
	`

	rows, err := r.pool.Query(ctx, query, ticker, horizon, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanPredictions(rows)
}

// GetLatestDate reports the newest prediction date for a horizon, or
// the zero time when none exist.
func (r *PredictionRepository) GetLatestDate(ctx context.Context, horizon string) (time.Time, error) {
	var latest *time.Time
	query := `SELECT MAX(dt) FROM preds WHERE horizon = $1`
	if err := r.pool.QueryRow(ctx, query, horizon).Scan(&latest); err != nil {
		return time.Time{}, err
	}
	if latest == nil {
		return time.Time{}, nil
	}
	return *latest, nil
}

func scanPredictions(rows pgx.Rows) ([]*contracts.Prediction, error) {
	var out []*contracts.Prediction
	for rows.Next() {
		var p contracts.Prediction
		if err := rows.Scan(&p.Ticker, &p.Date, &p.Horizon,
			&p.Yhat, &p.YhatStd, &p.ProbUp, &p.ModelVersion, &p.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, &p)
	}
	return out, rows.Err()
}
