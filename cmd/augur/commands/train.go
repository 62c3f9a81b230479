package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/wonny/augur/backend/internal/ml"
	"github.com/wonny/augur/backend/pkg/metrics"
)

// trainCmd represents the train command
var trainCmd = &cobra.Command{
	Use:   "train",
	Short: "워크포워드 모델 학습",
	Long: `레이블된 피처 행으로 확장 윈도우 + 엠바고 교차검증 학습을 실행합니다.

폴드별 out-of-sample 지표(RMSE/MAE/R²/방향 정확도)를 집계하고
마지막 폴드의 모델, metrics.json, feature_importances.csv를
ARTIFACT_DIR 아래에 저장합니다.

Example:
  go run ./cmd/augur train
  go run ./cmd/augur train --from 2022-01-01 --to 2024-12-31`,
	RunE: runTrain,
}

var (
	trainFrom string
	trainTo   string
)

// trainDefaultLookbackDays is roughly three years of history.
const trainDefaultLookbackDays = 365 * 3

func init() {
	rootCmd.AddCommand(trainCmd)

	trainCmd.Flags().StringVar(&trainFrom, "from", "", "시작일 (YYYY-MM-DD, 기본: --to 3년 전)")
	trainCmd.Flags().StringVar(&trainTo, "to", "", "종료일 (YYYY-MM-DD, 기본: 오늘)")
}

func runTrain(cmd *cobra.Command, args []string) error {
	from, to, err := dateRange(trainFrom, trainTo, trainDefaultLookbackDays)
	if err != nil {
		return err
	}

	deps, err := initDeps()
	if err != nil {
		return err
	}
	defer deps.Close()

	var recorder *metrics.Recorder
	if deps.cfg.MetricsEnabled {
		recorder = metrics.New()
	}

	trainer := ml.NewTrainer(deps.log, deps.cfg.Model, deps.feats, deps.runs, recorder)

	fmt.Printf("Training %s ~ %s (horizon %dd, %d splits, embargo %dd)\n",
		from.Format("2006-01-02"), to.Format("2006-01-02"),
		deps.cfg.Model.HorizonDays, deps.cfg.Model.NSplits, deps.cfg.Model.EmbargoDays)

	run, err := trainer.Train(cmd.Context(), from, to)
	if err != nil {
		return err
	}

	fmt.Println("\nFold results:")
	fmt.Printf("  %-5s %8s %8s %10s %10s %8s %8s\n",
		"fold", "n_train", "n_test", "rmse", "mae", "r2", "dir_acc")
	for _, m := range run.Folds {
		fmt.Printf("  %-5d %8d %8d %10.6f %10.6f %8.4f %8.4f\n",
			m.Fold, m.NTrain, m.NTest, m.RMSE, m.MAE, m.R2, m.DirectionAccuracy)
	}

	fmt.Println("\nAggregates:")
	for _, key := range []string{"rmse_mean", "rmse_std", "mae_mean", "r2_mean", "direction_accuracy_mean"} {
		fmt.Printf("  %-26s %.6f\n", key, run.Aggregates[key])
	}

	top := run.Importances
	if len(top) > 10 {
		top = top[:10]
	}
	fmt.Println("\nTop feature importances:")
	for _, imp := range top {
		fmt.Printf("  %-26s %.4f\n", imp.Feature, imp.Gain)
	}

	fmt.Printf("\n✅ Run %s (%d folds)\n", run.ID, len(run.Folds))
	fmt.Printf("   model:   %s\n", run.ModelPath)
	fmt.Printf("   metrics: %s\n", run.MetricsPath)
	return nil
}
