package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/wonny/augur/backend/internal/ml"
	"github.com/wonny/augur/backend/pkg/metrics"
)

// inferCmd represents the infer command
var inferCmd = &cobra.Command{
	Use:   "infer",
	Short: "학습된 모델로 예측 생성",
	Long: `저장된 피처 행에 모델을 적용해 예측을 업서트합니다.

--model을 생략하면 해당 horizon의 최신 학습 실행이 저장한 모델을,
--date를 생략하면 피처가 존재하는 최신 일자를 사용합니다.

Example:
  go run ./cmd/augur infer
  go run ./cmd/augur infer --date 2024-06-28 --model artifacts/1d/abc123/model.json`,
	RunE: runInfer,
}

var (
	inferModel string
	inferDate  string
)

func init() {
	rootCmd.AddCommand(inferCmd)

	inferCmd.Flags().StringVar(&inferModel, "model", "", "모델 파일 경로 (기본: 최신 학습 실행)")
	inferCmd.Flags().StringVar(&inferDate, "date", "", "예측 기준일 (YYYY-MM-DD, 기본: 최신 피처 일자)")
}

func runInfer(cmd *cobra.Command, args []string) error {
	date, err := parseDay(inferDate)
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

	predictor := ml.NewPredictor(deps.log, deps.cfg.Model, deps.feats, deps.preds, deps.runs, recorder)

	result, err := predictor.Run(cmd.Context(), inferModel, date)
	if err != nil {
		return err
	}

	fmt.Printf("✅ %d/%d predictions written for %s (model %s)\n",
		result.Written, result.Rows, result.Date.Format("2006-01-02"), result.ModelVersion)
	return nil
}
