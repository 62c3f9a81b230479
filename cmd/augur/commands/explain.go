package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/wonny/augur/backend/internal/ml"
)

// explainCmd represents the explain command
var explainCmd = &cobra.Command{
	Use:   "explain [ticker]",
	Short: "예측 기여도 분석",
	Long: `한 종목의 예측을 피처별 기여도로 분해합니다.

의사결정 경로 기반 기여도: base_value + 모든 기여도의 합이
예측값과 일치합니다.

Example:
  go run ./cmd/augur explain AAPL
  go run ./cmd/augur explain AAPL --date 2024-06-28 --top 15`,
	Args: cobra.ExactArgs(1),
	RunE: runExplain,
}

var (
	explainDate  string
	explainModel string
	explainTop   int
)

func init() {
	rootCmd.AddCommand(explainCmd)

	explainCmd.Flags().StringVar(&explainDate, "date", "", "기준일 (YYYY-MM-DD, 기본: 최신 피처 일자)")
	explainCmd.Flags().StringVar(&explainModel, "model", "", "모델 파일 경로 (기본: 최신 학습 실행)")
	explainCmd.Flags().IntVar(&explainTop, "top", 10, "상위 기여 피처 수")
}

func runExplain(cmd *cobra.Command, args []string) error {
	ticker := args[0]

	date, err := parseDay(explainDate)
	if err != nil {
		return err
	}

	deps, err := initDeps()
	if err != nil {
		return err
	}
	defer deps.Close()

	if date.IsZero() {
		date, err = deps.feats.GetLatestDate(cmd.Context())
		if err != nil {
			return err
		}
		if date.IsZero() {
			return fmt.Errorf("no feature rows stored yet, run features first")
		}
	}

	explainer := ml.NewExplainer(deps.log, deps.cfg.Model, deps.feats, deps.runs)

	exp, err := explainer.Explain(cmd.Context(), explainModel, ticker, date, explainTop)
	if err != nil {
		return err
	}

	fmt.Printf("%s %s (horizon %s)\n", exp.Ticker, exp.Date.Format("2006-01-02"), exp.Horizon)
	fmt.Printf("  prediction: %+.6f\n", exp.Yhat)
	fmt.Printf("  base value: %+.6f\n", exp.BaseValue)
	fmt.Println("  contributions:")
	for _, c := range exp.Top {
		fmt.Printf("    %-26s %+.6f  (value %.4f)\n", c.Feature, c.Contribution, c.FeatureValue)
	}
	return nil
}
