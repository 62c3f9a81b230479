package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/wonny/augur/backend/internal/ml"
)

// labelCmd represents the label command
var labelCmd = &cobra.Command{
	Use:   "label",
	Short: "미래 수익률 레이블 부착",
	Long: `기간 내 피처 행에 horizon 기준 미래 수익률을 부착합니다.

레이블은 이미 존재하는 피처 행에만 붙습니다. 행이 없는 레이블은
버려지고 skipped로 집계됩니다.

Example:
  go run ./cmd/augur label
  go run ./cmd/augur label --from 2024-01-01 --to 2024-06-30 --horizon 5`,
	RunE: runLabel,
}

var (
	labelFrom    string
	labelTo      string
	labelHorizon int
)

func init() {
	rootCmd.AddCommand(labelCmd)

	labelCmd.Flags().StringVar(&labelFrom, "from", "", "시작일 (YYYY-MM-DD, 기본: --to 30일 전)")
	labelCmd.Flags().StringVar(&labelTo, "to", "", "종료일 (YYYY-MM-DD, 기본: 오늘)")
	labelCmd.Flags().IntVar(&labelHorizon, "horizon", 0, "예측 기간(일), 기본: HORIZON_DAYS")
}

func runLabel(cmd *cobra.Command, args []string) error {
	from, to, err := dateRange(labelFrom, labelTo, 30)
	if err != nil {
		return err
	}

	deps, err := initDeps()
	if err != nil {
		return err
	}
	defer deps.Close()

	horizon := labelHorizon
	if horizon <= 0 {
		horizon = deps.cfg.Model.HorizonDays
	}

	labeler := ml.NewLabeler(deps.log, deps.prices, deps.feats)

	fmt.Printf("Labeling %s ~ %s (horizon %dd)\n",
		from.Format("2006-01-02"), to.Format("2006-01-02"), horizon)
	updated, skipped, err := labeler.Run(cmd.Context(), deps.cfg.Pipeline.Tickers, from, to, horizon)
	if err != nil {
		return err
	}

	fmt.Printf("✅ %d rows labeled, %d labels without a row\n", updated, skipped)
	return nil
}
