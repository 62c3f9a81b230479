package store

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/wonny/augur/backend/internal/contracts"
)

// FeatureRepository implements contracts.FeatureRepository
// ⭐ SSOT: 피처 테이블 저장소는 여기서만
type FeatureRepository struct {
	pool *pgxpool.Pool
}

// NewFeatureRepository creates a new feature repository
func NewFeatureRepository(pool *pgxpool.Pool) *FeatureRepository {
	return &FeatureRepository{pool: pool}
}

// UpsertRows writes feature rows keyed by (ticker, dt). On conflict only
// the feature map is replaced; labels already attached to the row are
// left alone, so recomputing features never destroys labeling work.
func (r *FeatureRepository) UpsertRows(ctx context.Context, rows []*contracts.FeatureRow) (int, error) {
	if len(rows) == 0 {
		return 0, nil
	}

	query := `
		INSERT INTO features (ticker, dt, features)
		VALUES ($1, $2, $3)
		ON CONFLICT (ticker, dt) DO UPDATE SET
			features = EXCLUDED.features
	`

	batch := &pgx.Batch{}
	for _, row := range rows {
		raw, err := featuresToJSON(row.Features)
		if err != nil {
			return 0, fmt.Errorf("encode features for %s %s: %w",
				row.Ticker, row.Date.Format("2006-01-02"), err)
		}
		batch.Queue(query, row.Ticker, contracts.Day(row.Date), raw)
	}

	br := r.pool.SendBatch(ctx, batch)
	defer br.Close()

	written := 0
	for range rows {
		ct, err := br.Exec()
		if err != nil {
			return written, err
		}
		written += int(ct.RowsAffected())
	}
	return written, nil
}

// GetByTickerDate retrieves one feature row, or nil when absent.
func (r *FeatureRepository) GetByTickerDate(ctx context.Context, ticker string, date time.Time) (*contracts.FeatureRow, error) {
	query := `
		SELECT ticker, dt, features, label, label_horizon
		FROM features
		WHERE ticker = $1 AND dt = $2
	`

	rows, err := r.pool.Query(ctx, query, ticker, contracts.Day(date))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	if !rows.Next() {
		return nil, rows.Err()
	}
	return scanFeatureRow(rows)
}

// GetByDate retrieves every feature row on a date, ordered by ticker.
func (r *FeatureRepository) GetByDate(ctx context.Context, date time.Time) ([]*contracts.FeatureRow, error) {
	query := `
		SELECT ticker, dt, features, label, label_horizon
		FROM features
		WHERE dt = $1
		ORDER BY ticker
	`

	rows, err := r.pool.Query(ctx, query, contracts.Day(date))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanFeatureRows(rows)
}

// GetLabeled retrieves rows carrying a label for the horizon within
// [from, to], ordered by date then ticker, the training set's order.
func (r *FeatureRepository) GetLabeled(ctx context.Context, horizon int, from, to time.Time) ([]*contracts.FeatureRow, error) {
	query := `
		SELECT ticker, dt, features, label, label_horizon
		FROM features
		WHERE label IS NOT NULL AND label_horizon = $1 AND dt BETWEEN $2 AND $3
		ORDER BY dt, ticker
	`

	rows, err := r.pool.Query(ctx, query, horizon, from, to)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanFeatureRows(rows)
}

// GetLatestDate reports the newest date carrying feature rows, or the
// zero time when the table is empty.
func (r *FeatureRepository) GetLatestDate(ctx context.Context) (time.Time, error) {
	var latest *time.Time
	if err := r.pool.QueryRow(ctx, `SELECT MAX(dt) FROM features`).Scan(&latest); err != nil {
		return time.Time{}, err
	}
	if latest == nil {
		return time.Time{}, nil
	}
	return *latest, nil
}

// UpdateLabels attaches forward returns to existing rows only. Labels
// whose row is missing are counted, never inserted.
func (r *FeatureRepository) UpdateLabels(ctx context.Context, labels []contracts.LabelValue, horizon int) (updated, skipped int, err error) {
	if len(labels) == 0 {
		return 0, 0, nil
	}

	query := `
		UPDATE features
		SET label = $3, label_horizon = $4
		WHERE ticker = $1 AND dt = $2
	`

	batch := &pgx.Batch{}
	for _, lab := range labels {
		batch.Queue(query, lab.Ticker, contracts.Day(lab.Date), lab.Value, horizon)
	}

	br := r.pool.SendBatch(ctx, batch)
	defer br.Close()

	for range labels {
		ct, err := br.Exec()
		if err != nil {
			return updated, skipped, err
		}
		if ct.RowsAffected() == 0 {
			skipped++
		} else {
			updated++
		}
	}
	return updated, skipped, nil
}

func scanFeatureRows(rows pgx.Rows) ([]*contracts.FeatureRow, error) {
	var out []*contracts.FeatureRow
	for rows.Next() {
		row, err := scanFeatureRow(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, row)
	}
	return out, rows.Err()
}

func scanFeatureRow(rows pgx.Rows) (*contracts.FeatureRow, error) {
	var (
		row     contracts.FeatureRow
		raw     []byte
		horizon *int
	)
	if err := rows.Scan(&row.Ticker, &row.Date, &raw, &row.Label, &horizon); err != nil {
		return nil, err
	}
	features, err := featuresFromJSON(raw)
	if err != nil {
		return nil, fmt.Errorf("decode features for %s %s: %w",
			row.Ticker, row.Date.Format("2006-01-02"), err)
	}
	row.Features = features
	if horizon != nil {
		row.LabelHorizon = *horizon
	}
	return &row, nil
}

// featuresToJSON renders the feature map with missing (NaN) values as
// JSON null, which encoding/json cannot represent as a float.
func featuresToJSON(features map[string]float64) ([]byte, error) {
	out := make(map[string]*float64, len(features))
	for name, v := range features {
		if math.IsNaN(v) {
			out[name] = nil
			continue
		}
		vv := v
		out[name] = &vv
	}
	return json.Marshal(out)
}

// featuresFromJSON decodes a stored feature map, turning JSON null back
// into NaN.
func featuresFromJSON(raw []byte) (map[string]float64, error) {
	var decoded map[string]*float64
	if err := json.Unmarshal(raw, &decoded); err != nil {
		return nil, err
	}
	features := make(map[string]float64, len(decoded))
	for name, v := range decoded {
		if v == nil {
			features[name] = math.NaN()
			continue
		}
		features[name] = *v
	}
	return features, nil
}
