package commands

import (
	"context"
	"fmt"
	"time"

	"github.com/wonny/augur/backend/internal/store"
	"github.com/wonny/augur/backend/pkg/config"
	"github.com/wonny/augur/backend/pkg/database"
	"github.com/wonny/augur/backend/pkg/logger"
)

// appDeps bundles the wiring every command starts from: config, logger,
// database pool and one repository per table.
// ⭐ SSOT: 커맨드 공통 초기화는 여기서만
type appDeps struct {
	cfg *config.Config
	log *logger.Logger
	db  *database.DB

	prices *store.PriceRepository
	news   *store.NewsRepository
	funds  *store.FundamentalRepository
	feats  *store.FeatureRepository
	preds  *store.PredictionRepository
	runs   *store.TrainingRunRepository
}

// initDeps loads config, connects to the database, applies the schema
// and builds the repositories.
func initDeps() (*appDeps, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	log := logger.New(cfg)

	db, err := database.New(cfg)
	if err != nil {
		return nil, fmt.Errorf("connect to database: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := store.EnsureSchema(ctx, db.Pool); err != nil {
		db.Close()
		return nil, fmt.Errorf("ensure schema: %w", err)
	}

	return &appDeps{
		cfg:    cfg,
		log:    log,
		db:     db,
		prices: store.NewPriceRepository(db.Pool),
		news:   store.NewNewsRepository(db.Pool),
		funds:  store.NewFundamentalRepository(db.Pool),
		feats:  store.NewFeatureRepository(db.Pool),
		preds:  store.NewPredictionRepository(db.Pool),
		runs:   store.NewTrainingRunRepository(db.Pool),
	}, nil
}

// Close releases the database pool.
func (d *appDeps) Close() {
	d.db.Close()
}

// parseDay parses a YYYY-MM-DD flag value; empty means "not given" and
// returns the zero time without error.
func parseDay(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date %q (want YYYY-MM-DD): %w", s, err)
	}
	return t, nil
}

// dateRange resolves --from/--to flags: a missing --to defaults to
// today, a missing --from defaults to --to minus fallbackDays.
func dateRange(fromFlag, toFlag string, fallbackDays int) (time.Time, time.Time, error) {
	to, err := parseDay(toFlag)
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	if to.IsZero() {
		to = time.Now()
	}

	from, err := parseDay(fromFlag)
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	if from.IsZero() {
		from = to.AddDate(0, 0, -fallbackDays)
	}

	if to.Before(from) {
		return time.Time{}, time.Time{}, fmt.Errorf("--to %s is before --from %s",
			to.Format("2006-01-02"), from.Format("2006-01-02"))
	}
	return from, to, nil
}
