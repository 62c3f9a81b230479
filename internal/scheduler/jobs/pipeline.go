package jobs

import (
	"context"
	"fmt"
	"time"

	"github.com/wonny/augur/backend/internal/features"
	"github.com/wonny/augur/backend/internal/ml"
	"github.com/wonny/augur/backend/pkg/config"
	"github.com/wonny/augur/backend/pkg/logger"
)

// featureWindowDays is the trailing range the nightly run recomputes.
// Upserts make the overlap with previous runs harmless, and the window
// is wide enough that labels for horizon H always find their rows.
const featureWindowDays = 30

// FeaturePipelineJob runs features → labels → inference every evening
// ⭐ SSOT: 야간 피처 파이프라인 스케줄은 이 Job에서만
type FeaturePipelineJob struct {
	config    *config.Config
	logger    *logger.Logger
	pipeline  *features.Pipeline
	labeler   *ml.Labeler
	predictor *ml.Predictor
}

// NewFeaturePipelineJob creates a new feature pipeline job
func NewFeaturePipelineJob(
	cfg *config.Config,
	log *logger.Logger,
	pipeline *features.Pipeline,
	labeler *ml.Labeler,
	predictor *ml.Predictor,
) *FeaturePipelineJob {
	return &FeaturePipelineJob{
		config:    cfg,
		logger:    log,
		pipeline:  pipeline,
		labeler:   labeler,
		predictor: predictor,
	}
}

// Name returns the job name
func (j *FeaturePipelineJob) Name() string {
	return "feature_pipeline"
}

// Schedule returns the cron schedule (weekdays at 6 PM, after ingest)
func (j *FeaturePipelineJob) Schedule() string {
	return "0 0 18 * * 1-5"
}

// Run rebuilds the trailing feature window, attaches the forward
// returns that have matured inside it, then scores the latest date.
func (j *FeaturePipelineJob) Run(ctx context.Context) error {
	to := time.Now()
	from := to.AddDate(0, 0, -featureWindowDays)
	horizon := j.config.Model.HorizonDays

	j.logger.Info("Computing features")
	result, err := j.pipeline.Run(ctx, from, to)
	if err != nil {
		return fmt.Errorf("compute features: %w", err)
	}
	j.logger.WithFields(map[string]interface{}{
		"rows":    result.Rows,
		"columns": result.Columns,
		"failed":  len(result.FailedTickers),
	}).Info("Feature computation finished")

	j.logger.Info("Attaching labels")
	updated, skipped, err := j.labeler.Run(ctx, j.config.Pipeline.Tickers, from, to, horizon)
	if err != nil {
		return fmt.Errorf("compute labels: %w", err)
	}
	j.logger.WithFields(map[string]interface{}{
		"updated": updated,
		"skipped": skipped,
	}).Info("Labeling finished")

	j.logger.Info("Running inference")
	inf, err := j.predictor.Run(ctx, "", time.Time{})
	if err != nil {
		return fmt.Errorf("run inference: %w", err)
	}
	j.logger.WithFields(map[string]interface{}{
		"date":    inf.Date.Format("2006-01-02"),
		"written": inf.Written,
		"model":   inf.ModelVersion,
	}).Info("Inference finished")

	return nil
}
