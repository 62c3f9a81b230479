package ml

import (
	"context"
	"fmt"
	"math"
	"path/filepath"
	"sort"
	"time"

	"github.com/wonny/augur/backend/internal/contracts"
	"github.com/wonny/augur/backend/internal/ml/gbrt"
	"github.com/wonny/augur/backend/pkg/config"
	"github.com/wonny/augur/backend/pkg/logger"
	"github.com/wonny/augur/backend/pkg/metrics"
)

// uncertaintyFloor keeps the probability squash finite when the
// trailing-iteration spread collapses to zero.
const uncertaintyFloor = 1e-6

// InferenceResult summarizes one inference run.
type InferenceResult struct {
	Date         time.Time
	ModelVersion string
	Rows         int
	Written      int
}

// Predictor applies a trained model to stored feature rows and upserts
// predictions keyed by (ticker, date, horizon).
type Predictor struct {
	logger  *logger.Logger
	cfg     config.ModelConfig
	feats   contracts.FeatureRepository
	preds   contracts.PredictionRepository
	runs    contracts.TrainingRunRepository
	metrics *metrics.Recorder
}

// NewPredictor wires the inference engine from configuration and stores.
func NewPredictor(
	log *logger.Logger,
	cfg config.ModelConfig,
	feats contracts.FeatureRepository,
	preds contracts.PredictionRepository,
	runs contracts.TrainingRunRepository,
	recorder *metrics.Recorder,
) *Predictor {
	return &Predictor{
		logger:  log.WithComponent("inference"),
		cfg:     cfg,
		feats:   feats,
		preds:   preds,
		runs:    runs,
		metrics: recorder,
	}
}

// Run scores every feature row on the target date and upserts one
// prediction per instrument. An empty modelPath resolves to the latest
// persisted training run for the horizon; a zero date resolves to the
// latest date carrying feature rows. Uncertainty is the spread of the
// model's trailing partial predictions, a stability proxy rather than a
// calibrated variance, and the up-probability squashes the
// signal-to-spread ratio into (0, 1).
func (p *Predictor) Run(ctx context.Context, modelPath string, date time.Time) (*InferenceResult, error) {
	horizon := contracts.HorizonLabel(p.cfg.HorizonDays)
	booster, version, err := resolveModel(ctx, p.runs, horizon, modelPath)
	if err != nil {
		return nil, err
	}

	if date.IsZero() {
		latest, err := p.feats.GetLatestDate(ctx)
		if err != nil {
			return nil, fmt.Errorf("resolve latest feature date: %w", err)
		}
		if latest.IsZero() {
			p.logger.Warn("No feature rows stored, nothing to score")
			return &InferenceResult{ModelVersion: version}, nil
		}
		date = latest
	}
	date = contracts.Day(date)

	rows, err := p.feats.GetByDate(ctx, date)
	if err != nil {
		return nil, fmt.Errorf("load feature rows: %w", err)
	}
	if len(rows) == 0 {
		p.logger.WithFields(map[string]interface{}{
			"date": date.Format("2006-01-02"),
		}).Warn("No feature rows on date, nothing to score")
		return &InferenceResult{Date: date, ModelVersion: version}, nil
	}
	sort.Slice(rows, func(i, j int) bool { return rows[i].Ticker < rows[j].Ticker })

	now := time.Now().UTC()
	preds := make([]*contracts.Prediction, 0, len(rows))
	for _, row := range rows {
		x := Vectorize(row, booster.FeatureNames)
		yhat, std := booster.PredictWithStd(x, p.cfg.UncertaintyTrees)
		preds = append(preds, &contracts.Prediction{
			Ticker:       row.Ticker,
			Date:         date,
			Horizon:      horizon,
			Yhat:         yhat,
			YhatStd:      std,
			ProbUp:       probUp(yhat, std),
			ModelVersion: version,
			CreatedAt:    now,
		})
	}

	written, err := p.preds.Upsert(ctx, preds)
	if err != nil {
		return nil, fmt.Errorf("upsert predictions: %w", err)
	}
	p.metrics.RecordPredictions(horizon, written)

	p.logger.WithFields(map[string]interface{}{
		"date":    date.Format("2006-01-02"),
		"model":   version,
		"rows":    len(rows),
		"written": written,
	}).Info("Inference complete")

	return &InferenceResult{
		Date:         date,
		ModelVersion: version,
		Rows:         len(rows),
		Written:      written,
	}, nil
}

// probUp squashes the signal-to-spread ratio through a logistic curve,
// clipped away from the extremes.
func probUp(yhat, std float64) float64 {
	if std < uncertaintyFloor {
		std = uncertaintyFloor
	}
	p := 1 / (1 + math.Exp(-yhat/std))
	if p < 0.01 {
		return 0.01
	}
	if p > 0.99 {
		return 0.99
	}
	return p
}

// resolveModel loads the model at path, or the latest persisted run's
// model for the horizon when path is empty. The returned version tags
// predictions with the run that produced the model.
func resolveModel(ctx context.Context, runs contracts.TrainingRunRepository, horizon, path string) (*gbrt.Booster, string, error) {
	version := ""
	if path == "" {
		if runs == nil {
			return nil, "", contracts.NewValidationError("model", "no model path given and no training-run store available")
		}
		run, err := runs.GetLatest(ctx, horizon)
		if err != nil {
			return nil, "", fmt.Errorf("resolve latest model: %w", err)
		}
		if run == nil {
			return nil, "", contracts.NewValidationError("model", "no training run recorded for horizon "+horizon)
		}
		path = run.ModelPath
		version = run.ID
	}
	b, err := gbrt.Load(path)
	if err != nil {
		return nil, "", err
	}
	if version == "" {
		version = filepath.Base(filepath.Dir(path))
		if version == "." || version == string(filepath.Separator) {
			version = filepath.Base(path)
		}
	}
	return b, version, nil
}
