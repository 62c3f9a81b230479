// Package store implements the contracts repositories over Postgres.
// One repository per table, all sharing the pgx pool from pkg/database.
package store

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

// schemaStatements holds the DDL for every table Augur owns. Statements
// are idempotent so EnsureSchema can run at every startup.
// ⭐ SSOT: 테이블 스키마는 여기서만
var schemaStatements = []string{
	`CREATE TABLE IF NOT EXISTS prices (
		ticker    TEXT             NOT NULL,
		dt        DATE             NOT NULL,
		open      DOUBLE PRECISION NOT NULL,
		high      DOUBLE PRECISION NOT NULL,
		low       DOUBLE PRECISION NOT NULL,
		close     DOUBLE PRECISION NOT NULL,
		adj_close DOUBLE PRECISION NOT NULL,
		volume    DOUBLE PRECISION NOT NULL,
		PRIMARY KEY (ticker, dt)
	)`,
	`CREATE INDEX IF NOT EXISTS ix_prices_dt ON prices (dt)`,

	`CREATE TABLE IF NOT EXISTS news (
		ticker       TEXT             NOT NULL,
		url          TEXT             NOT NULL,
		published_at TIMESTAMPTZ      NOT NULL,
		title        TEXT             NOT NULL,
		source       TEXT             NOT NULL DEFAULT '',
		sent_pos     DOUBLE PRECISION NOT NULL DEFAULT 0,
		sent_neg     DOUBLE PRECISION NOT NULL DEFAULT 0,
		sent_neu     DOUBLE PRECISION NOT NULL DEFAULT 0,
		sent_comp    DOUBLE PRECISION NOT NULL DEFAULT 0,
		PRIMARY KEY (ticker, url)
	)`,
	`CREATE INDEX IF NOT EXISTS ix_news_ticker_published ON news (ticker, published_at)`,

	`CREATE TABLE IF NOT EXISTS fundamentals (
		ticker        TEXT NOT NULL,
		asof          DATE NOT NULL,
		pe            DOUBLE PRECISION,
		pb            DOUBLE PRECISION,
		ev_ebitda     DOUBLE PRECISION,
		roe           DOUBLE PRECISION,
		roce          DOUBLE PRECISION,
		de_ratio      DOUBLE PRECISION,
		eps_g3y       DOUBLE PRECISION,
		rev_g3y       DOUBLE PRECISION,
		profit_g3y    DOUBLE PRECISION,
		opm           DOUBLE PRECISION,
		npm           DOUBLE PRECISION,
		div_yield     DOUBLE PRECISION,
		promoter_hold DOUBLE PRECISION,
		pledged_pct   DOUBLE PRECISION,
		PRIMARY KEY (ticker, asof)
	)`,
	`CREATE INDEX IF NOT EXISTS ix_fundamentals_asof ON fundamentals (asof)`,

	`CREATE TABLE IF NOT EXISTS features (
		ticker        TEXT  NOT NULL,
		dt            DATE  NOT NULL,
		features      JSONB NOT NULL,
		label         DOUBLE PRECISION,
		label_horizon INTEGER,
		PRIMARY KEY (ticker, dt)
	)`,
	`CREATE INDEX IF NOT EXISTS ix_features_dt ON features (dt)`,
	`CREATE INDEX IF NOT EXISTS ix_features_label ON features (label_horizon, dt) WHERE label IS NOT NULL`,

	`CREATE TABLE IF NOT EXISTS preds (
		ticker        TEXT             NOT NULL,
		dt            DATE             NOT NULL,
		horizon       TEXT             NOT NULL,
		yhat          DOUBLE PRECISION NOT NULL,
		yhat_std      DOUBLE PRECISION NOT NULL,
		prob_up       DOUBLE PRECISION NOT NULL,
		model_version TEXT             NOT NULL DEFAULT '',
		created_at    TIMESTAMPTZ      NOT NULL DEFAULT NOW(),
		PRIMARY KEY (ticker, dt, horizon)
	)`,
	`CREATE INDEX IF NOT EXISTS ix_preds_dt ON preds (dt, horizon)`,

	`CREATE TABLE IF NOT EXISTS training_runs (
		id           TEXT        NOT NULL PRIMARY KEY,
		horizon      TEXT        NOT NULL,
		created_at   TIMESTAMPTZ NOT NULL,
		params       JSONB       NOT NULL,
		folds        JSONB       NOT NULL,
		aggregates   JSONB       NOT NULL,
		importances  JSONB       NOT NULL,
		model_path   TEXT        NOT NULL DEFAULT '',
		metrics_path TEXT        NOT NULL DEFAULT ''
	)`,
	`CREATE INDEX IF NOT EXISTS ix_training_runs_horizon ON training_runs (horizon, created_at)`,
}

// EnsureSchema applies the DDL statements in order.
func EnsureSchema(ctx context.Context, pool *pgxpool.Pool) error {
	for _, stmt := range schemaStatements {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("apply schema: %w", err)
		}
	}
	return nil
}
