package store

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/wonny/augur/backend/internal/contracts"
)

// TrainingRunRepository implements contracts.TrainingRunRepository
// ⭐ SSOT: 학습 실행 기록 저장소는 여기서만
type TrainingRunRepository struct {
	pool *pgxpool.Pool
}

// NewTrainingRunRepository creates a new training run repository
func NewTrainingRunRepository(pool *pgxpool.Pool) *TrainingRunRepository {
	return &TrainingRunRepository{pool: pool}
}

// Save persists a training run record keyed by run id. Re-saving the
// same id replaces the record, so a rerun with a fixed id is idempotent.
func (r *TrainingRunRepository) Save(ctx context.Context, run *contracts.TrainingRun) error {
	params, err := json.Marshal(run.Params)
	if err != nil {
		return fmt.Errorf("marshal params: %w", err)
	}
	folds, err := json.Marshal(run.Folds)
	if err != nil {
		return fmt.Errorf("marshal folds: %w", err)
	}
	aggregates, err := json.Marshal(run.Aggregates)
	if err != nil {
		return fmt.Errorf("marshal aggregates: %w", err)
	}
	importances, err := json.Marshal(run.Importances)
	if err != nil {
		return fmt.Errorf("marshal importances: %w", err)
	}

	query := `
		INSERT INTO training_runs
			(id, horizon, created_at, params, folds, aggregates, importances, model_path, metrics_path)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (id) DO UPDATE SET
			horizon = EXCLUDED.horizon,
			created_at = EXCLUDED.created_at,
			params = EXCLUDED.params,
			folds = EXCLUDED.folds,
			aggregates = EXCLUDED.aggregates,
			importances = EXCLUDED.importances,
			model_path = EXCLUDED.model_path,
			metrics_path = EXCLUDED.metrics_path
	`

	_, err = r.pool.Exec(ctx, query,
		run.ID, run.Horizon, run.CreatedAt,
		params, folds, aggregates, importances,
		run.ModelPath, run.MetricsPath)
	return err
}

// GetLatest retrieves the most recent run for a horizon, or nil when no
// run has been recorded yet.
func (r *TrainingRunRepository) GetLatest(ctx context.Context, horizon string) (*contracts.TrainingRun, error) {
	query := `
		SELECT id, horizon, created_at, params, folds, aggregates, importances, model_path, metrics_path
		FROM training_runs
		WHERE horizon = $1
		ORDER BY created_at DESC
		LIMIT 1
	`

	rows, err := r.pool.Query(ctx, query, horizon)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	if !rows.Next() {
		return nil, rows.Err()
	}

	run := &contracts.TrainingRun{}
	var params, folds, aggregates, importances []byte
	if err := rows.Scan(&run.ID, &run.Horizon, &run.CreatedAt,
		&params, &folds, &aggregates, &importances,
		&run.ModelPath, &run.MetricsPath); err != nil {
		return nil, err
	}

	if err := json.Unmarshal(params, &run.Params); err != nil {
		return nil, fmt.Errorf("unmarshal params: %w", err)
	}
	if err := json.Unmarshal(folds, &run.Folds); err != nil {
		return nil, fmt.Errorf("unmarshal folds: %w", err)
	}
	if err := json.Unmarshal(aggregates, &run.Aggregates); err != nil {
		return nil, fmt.Errorf("unmarshal aggregates: %w", err)
	}
	if err := json.Unmarshal(importances, &run.Importances); err != nil {
		return nil, fmt.Errorf("unmarshal importances: %w", err)
	}
	return run, nil
}
