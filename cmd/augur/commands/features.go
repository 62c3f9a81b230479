package commands

import (
	"fmt"
	"sort"

	"github.com/spf13/cobra"

	"github.com/wonny/augur/backend/internal/features"
	"github.com/wonny/augur/backend/pkg/metrics"
)

// featuresCmd represents the features command
var featuresCmd = &cobra.Command{
	Use:   "features",
	Short: "피처 테이블 계산 및 저장",
	Long: `기간 내 모든 종목의 피처 행을 계산하고 업서트합니다.

단계: 기술지표 → 펀더멘털 as-of 조인 → 뉴스 감성 → 정리(결측 처리)
→ 컴포지트 점수. 같은 기간을 다시 실행해도 행이 중복되지 않습니다.

Example:
  go run ./cmd/augur features
  go run ./cmd/augur features --from 2024-01-01 --to 2024-06-30`,
	RunE: runFeatures,
}

var (
	featuresFrom string
	featuresTo   string
)

func init() {
	rootCmd.AddCommand(featuresCmd)

	featuresCmd.Flags().StringVar(&featuresFrom, "from", "", "시작일 (YYYY-MM-DD, 기본: --to 30일 전)")
	featuresCmd.Flags().StringVar(&featuresTo, "to", "", "종료일 (YYYY-MM-DD, 기본: 오늘)")
}

func runFeatures(cmd *cobra.Command, args []string) error {
	from, to, err := dateRange(featuresFrom, featuresTo, 30)
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

	pipeline := features.NewPipeline(deps.log, deps.cfg.Pipeline,
		deps.prices, deps.news, deps.funds, deps.feats, recorder)

	fmt.Printf("Computing features %s ~ %s\n", from.Format("2006-01-02"), to.Format("2006-01-02"))
	result, err := pipeline.Run(cmd.Context(), from, to)
	if err != nil {
		return err
	}

	tickers := make([]string, 0, len(result.RowsByTicker))
	for t := range result.RowsByTicker {
		tickers = append(tickers, t)
	}
	sort.Strings(tickers)
	for _, t := range tickers {
		fmt.Printf("  %-12s %d rows\n", t, result.RowsByTicker[t])
	}
	if len(result.FailedTickers) > 0 {
		fmt.Printf("  failed: %v\n", result.FailedTickers)
	}

	fmt.Printf("✅ %d rows, %d columns in %v\n", result.Rows, result.Columns, result.Elapsed)
	return nil
}
