package jobs

import (
	"context"
	"fmt"
	"time"

	"github.com/wonny/augur/backend/internal/ml"
	"github.com/wonny/augur/backend/pkg/config"
	"github.com/wonny/augur/backend/pkg/logger"
)

// trainLookbackYears bounds how far back the weekly retrain reaches.
const trainLookbackYears = 3

// WeeklyTrainJob retrains the model on the accumulated labeled history
// ⭐ SSOT: 주간 재학습 스케줄은 이 Job에서만
type WeeklyTrainJob struct {
	config  *config.Config
	logger  *logger.Logger
	trainer *ml.Trainer
}

// NewWeeklyTrainJob creates a new weekly training job
func NewWeeklyTrainJob(cfg *config.Config, log *logger.Logger, trainer *ml.Trainer) *WeeklyTrainJob {
	return &WeeklyTrainJob{
		config:  cfg,
		logger:  log,
		trainer: trainer,
	}
}

// Name returns the job name
func (j *WeeklyTrainJob) Name() string {
	return "weekly_train"
}

// Schedule returns the cron schedule (Saturday at 6 AM)
func (j *WeeklyTrainJob) Schedule() string {
	return "0 0 6 * * 6"
}

// Run retrains over the trailing history window and logs the run's
// aggregated out-of-sample metrics.
func (j *WeeklyTrainJob) Run(ctx context.Context) error {
	to := time.Now()
	from := to.AddDate(-trainLookbackYears, 0, 0)

	run, err := j.trainer.Train(ctx, from, to)
	if err != nil {
		return fmt.Errorf("train: %w", err)
	}

	j.logger.WithFields(map[string]interface{}{
		"run_id":       run.ID,
		"folds":        len(run.Folds),
		"rmse_mean":    run.Aggregates["rmse_mean"],
		"dir_acc_mean": run.Aggregates["direction_accuracy_mean"],
		"model_path":   run.ModelPath,
	}).Info("Weekly training completed")

	return nil
}
