package contracts

import (
	"context"
	"time"
)

// ⭐ SSOT: Repository 인터페이스 정의는 여기서만

// PriceRepository manages daily OHLCV bars.
type PriceRepository interface {
	Upsert(ctx context.Context, bars []*PriceBar) (int, error)
	GetByTicker(ctx context.Context, ticker string, from, to time.Time) ([]*PriceBar, error)
	GetLatestByTicker(ctx context.Context, ticker string, limit int) ([]*PriceBar, error)
	GetTickers(ctx context.Context) ([]string, error)
}

// NewsRepository manages scored headlines.
type NewsRepository interface {
	Upsert(ctx context.Context, items []*NewsItem) (int, error)
	GetByTicker(ctx context.Context, ticker string, from, to time.Time) ([]*NewsItem, error)
	GetLatestByTicker(ctx context.Context, ticker string, limit, offset int) ([]*NewsItem, error)
}

// FundamentalRepository manages point-in-time ratio snapshots.
type FundamentalRepository interface {
	Upsert(ctx context.Context, snaps []*FundamentalSnapshot) (int, error)
	GetByTicker(ctx context.Context, ticker string) ([]*FundamentalSnapshot, error)
	GetLatestByTicker(ctx context.Context, ticker string) (*FundamentalSnapshot, error)
}

// FeatureRepository manages the feature table and its labels.
type FeatureRepository interface {
	UpsertRows(ctx context.Context, rows []*FeatureRow) (int, error)
	GetByTickerDate(ctx context.Context, ticker string, date time.Time) (*FeatureRow, error)
	GetByDate(ctx context.Context, date time.Time) ([]*FeatureRow, error)
	GetLabeled(ctx context.Context, horizon int, from, to time.Time) ([]*FeatureRow, error)
	GetLatestDate(ctx context.Context) (time.Time, error)
	// UpdateLabels attaches forward returns to existing rows only. It
	// returns how many rows were updated and how many labels had no row.
	UpdateLabels(ctx context.Context, labels []LabelValue, horizon int) (updated, skipped int, err error)
}

// PredictionRepository manages model outputs.
type PredictionRepository interface {
	Upsert(ctx context.Context, preds []*Prediction) (int, error)
	GetByDate(ctx context.Context, date time.Time, horizon string) ([]*Prediction, error)
	GetByTicker(ctx context.Context, ticker, horizon string, limit int) ([]*Prediction, error)
	GetLatestDate(ctx context.Context, horizon string) (time.Time, error)
}

// TrainingRunRepository manages training run records.
type TrainingRunRepository interface {
	Save(ctx context.Context, run *TrainingRun) error
	GetLatest(ctx context.Context, horizon string) (*TrainingRun, error)
}
