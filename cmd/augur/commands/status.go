package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/wonny/augur/backend/internal/contracts"
	"github.com/wonny/augur/backend/pkg/redis"
)

// statusCmd represents the status command
var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "시스템 상태 조회",
	Long: `데이터베이스/Redis 연결과 데이터 적재 상태를 요약합니다.

표시 정보:
- DB 연결 및 지연 시간
- Redis 활성 여부
- 저장된 종목 수
- 최신 피처 일자 / 최신 예측 일자
- 최근 학습 실행

Example:
  go run ./cmd/augur status`,
	RunE: runStatus,
}

func init() {
	rootCmd.AddCommand(statusCmd)
}

func runStatus(cmd *cobra.Command, args []string) error {
	fmt.Println("=== Augur Status ===")

	deps, err := initDeps()
	if err != nil {
		return err
	}
	defer deps.Close()

	ctx := cmd.Context()

	// Database
	health, err := deps.db.HealthCheck(ctx)
	if err != nil {
		fmt.Printf("  database:     ❌ %v\n", err)
	} else {
		fmt.Printf("  database:     ✅ healthy (latency %v)\n", health.ResponseTime)
	}

	// Redis
	redisClient, err := redis.New(deps.cfg)
	if err != nil {
		fmt.Printf("  redis:        ❌ %v\n", err)
	} else {
		defer redisClient.Close()
		if redisClient.Enabled() {
			fmt.Println("  redis:        ✅ enabled")
		} else {
			fmt.Println("  redis:        ⏸ disabled")
		}
	}

	// Data coverage
	tickers, err := deps.prices.GetTickers(ctx)
	if err != nil {
		return err
	}
	fmt.Printf("  tickers:      %d with price history\n", len(tickers))

	featDate, err := deps.feats.GetLatestDate(ctx)
	if err != nil {
		return err
	}
	if featDate.IsZero() {
		fmt.Println("  features:     none")
	} else {
		fmt.Printf("  features:     latest %s\n", featDate.Format("2006-01-02"))
	}

	horizon := contracts.HorizonLabel(deps.cfg.Model.HorizonDays)
	predDate, err := deps.preds.GetLatestDate(ctx, horizon)
	if err != nil {
		return err
	}
	if predDate.IsZero() {
		fmt.Printf("  predictions:  none (horizon %s)\n", horizon)
	} else {
		fmt.Printf("  predictions:  latest %s (horizon %s)\n", predDate.Format("2006-01-02"), horizon)
	}

	run, err := deps.runs.GetLatest(ctx, horizon)
	if err != nil {
		return err
	}
	if run == nil {
		fmt.Println("  training:     no runs recorded")
	} else {
		fmt.Printf("  training:     run %s at %s, rmse %.6f, dir_acc %.4f\n",
			run.ID, run.CreatedAt.Format("2006-01-02 15:04"),
			run.Aggregates["rmse_mean"], run.Aggregates["direction_accuracy_mean"])
	}

	return nil
}
