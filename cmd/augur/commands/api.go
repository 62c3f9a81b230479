package commands

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/wonny/augur/backend/internal/api"
	"github.com/wonny/augur/backend/internal/api/handlers"
	"github.com/wonny/augur/backend/internal/contracts"
	"github.com/wonny/augur/backend/internal/ml"
	"github.com/wonny/augur/backend/pkg/metrics"
	"github.com/wonny/augur/backend/pkg/redis"
)

// apiCmd represents the api command
var apiCmd = &cobra.Command{
	Use:   "api",
	Short: "API 서버 시작",
	Long: `REST API 서버를 시작합니다.

Endpoints:
  GET /health                              - Health check
  GET /metrics                             - Prometheus metrics
  GET /api/v1/stocks/{ticker}              - 종목 스냅샷
  GET /api/v1/stocks/{ticker}/prices       - 가격 이력
  GET /api/v1/stocks/{ticker}/news         - 뉴스 이력
  GET /api/v1/stocks/{ticker}/fundamentals - 펀더멘털 이력
  GET /api/v1/signals/daily                - 일간 시그널 랭킹
  GET /api/v1/predictions/{ticker}         - 예측 이력
  GET /api/v1/explain/{ticker}/{date}      - 예측 기여도 분석

Example:
  go run ./cmd/augur api
  go run ./cmd/augur api --port 8086`,
	RunE: runAPIServer,
}

var apiPort string

func init() {
	rootCmd.AddCommand(apiCmd)

	apiCmd.Flags().StringVar(&apiPort, "port", "", "API 서버 포트 (기본: PORT 환경변수)")
}

func runAPIServer(cmd *cobra.Command, args []string) error {
	fmt.Println("=== Augur API Server ===")

	// 1. Config, logger, database, repositories
	deps, err := initDeps()
	if err != nil {
		return err
	}
	defer deps.Close()

	if apiPort != "" {
		deps.cfg.Port = apiPort
	}

	deps.log.WithFields(map[string]interface{}{
		"port": deps.cfg.Port,
		"env":  deps.cfg.Env,
	}).Info("Initializing API server")

	// 2. Redis cache and rate limiter (optional, degrade to nil)
	redisClient, err := redis.New(deps.cfg)
	if err != nil {
		return fmt.Errorf("connect to redis: %w", err)
	}
	defer redisClient.Close()

	var cache *redis.Cache
	var limiter *redis.RateLimiter
	if redisClient.Enabled() {
		cache = redis.NewCache(redisClient, "augur")
		limiter = redis.NewRateLimiter(redisClient, "augur")
	}

	// 3. Metrics recorder
	var recorder *metrics.Recorder
	if deps.cfg.MetricsEnabled {
		recorder = metrics.New()
	}

	// 4. Explainer for the attribution endpoint
	explainer := ml.NewExplainer(deps.log, deps.cfg.Model, deps.feats, deps.runs)

	// 5. Handlers and router
	horizon := contracts.HorizonLabel(deps.cfg.Model.HorizonDays)
	router := api.NewRouter(api.RouterDeps{
		Stocks:      handlers.NewStockHandler(deps.prices, deps.news, deps.funds, deps.feats, deps.preds, horizon, deps.log),
		Signals:     handlers.NewSignalsHandler(deps.preds, deps.feats, cache, deps.cfg, deps.log),
		Predictions: handlers.NewPredictionsHandler(deps.preds, cache, deps.cfg, deps.log),
		Explain:     handlers.NewExplainHandler(explainer, deps.log),

		Logger:      deps.log,
		Recorder:    recorder,
		RateLimiter: limiter,
		RatePerMin:  deps.cfg.API.RateLimitPerMin,

		MetricsEnabled: deps.cfg.MetricsEnabled,
	})

	// 6. Start server, shut down on SIGINT/SIGTERM
	server := api.New(deps.cfg, deps.log, router)

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.Start()
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return err
	case sig := <-quit:
		deps.log.WithField("signal", sig.String()).Info("Shutdown signal received")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	return server.Shutdown(ctx)
}
