package commands

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/wonny/augur/backend/internal/features"
	"github.com/wonny/augur/backend/internal/ingest"
	"github.com/wonny/augur/backend/internal/ml"
	"github.com/wonny/augur/backend/internal/scheduler"
	"github.com/wonny/augur/backend/internal/scheduler/jobs"
	"github.com/wonny/augur/backend/pkg/httputil"
	"github.com/wonny/augur/backend/pkg/metrics"
)

// schedulerCmd represents the scheduler command
var schedulerCmd = &cobra.Command{
	Use:   "scheduler",
	Short: "스케줄러 관리",
	Long: `스케줄러를 시작하거나 작업을 관리합니다.

등록되는 작업:
- daily_ingest:     평일 17:30 (가격/뉴스/펀더멘털 수집)
- feature_pipeline: 평일 18:00 (피처 → 레이블 → 추론)
- weekly_train:     토요일 06:00 (모델 재학습)

Example:
  go run ./cmd/augur scheduler start
  go run ./cmd/augur scheduler list
  go run ./cmd/augur scheduler run feature_pipeline`,
}

var (
	schedulerStartCmd = &cobra.Command{
		Use:   "start",
		Short: "스케줄러 시작",
		Long:  `스케줄러 데몬을 시작합니다. Ctrl+C로 종료할 수 있습니다.`,
		RunE:  runScheduler,
	}

	schedulerListCmd = &cobra.Command{
		Use:   "list",
		Short: "등록된 작업 목록",
		RunE:  listJobs,
	}

	schedulerRunCmd = &cobra.Command{
		Use:   "run [job_name]",
		Short: "특정 작업 즉시 실행 후 대기",
		Args:  cobra.ExactArgs(1),
		RunE:  runJobOnce,
	}
)

func init() {
	rootCmd.AddCommand(schedulerCmd)
	schedulerCmd.AddCommand(schedulerStartCmd)
	schedulerCmd.AddCommand(schedulerListCmd)
	schedulerCmd.AddCommand(schedulerRunCmd)
}

// buildScheduler wires every scheduled job onto one scheduler instance.
func buildScheduler(deps *appDeps) (*scheduler.Scheduler, error) {
	httpClient := httputil.New(deps.cfg, deps.log)

	var recorder *metrics.Recorder
	if deps.cfg.MetricsEnabled {
		recorder = metrics.New()
	}

	priceFetcher := ingest.NewPriceFetcher(deps.cfg, deps.log, httpClient, deps.prices)
	newsFetcher := ingest.NewNewsFetcher(deps.cfg, deps.log, httpClient, deps.news)
	scraper := ingest.NewFundamentalScraper(deps.cfg, deps.log, httpClient, deps.funds)

	pipeline := features.NewPipeline(deps.log, deps.cfg.Pipeline,
		deps.prices, deps.news, deps.funds, deps.feats, recorder)
	labeler := ml.NewLabeler(deps.log, deps.prices, deps.feats)
	predictor := ml.NewPredictor(deps.log, deps.cfg.Model, deps.feats, deps.preds, deps.runs, recorder)
	trainer := ml.NewTrainer(deps.log, deps.cfg.Model, deps.feats, deps.runs, recorder)

	sched := scheduler.New(deps.log)

	jobList := []scheduler.Job{
		jobs.NewDailyIngestJob(deps.cfg, deps.log, priceFetcher, newsFetcher, scraper),
		jobs.NewFeaturePipelineJob(deps.cfg, deps.log, pipeline, labeler, predictor),
		jobs.NewWeeklyTrainJob(deps.cfg, deps.log, trainer),
	}
	for _, job := range jobList {
		if err := sched.AddJob(job); err != nil {
			return nil, fmt.Errorf("add job %s: %w", job.Name(), err)
		}
	}

	return sched, nil
}

func runScheduler(cmd *cobra.Command, args []string) error {
	fmt.Println("=== Augur Scheduler ===")

	deps, err := initDeps()
	if err != nil {
		return err
	}
	defer deps.Close()

	sched, err := buildScheduler(deps)
	if err != nil {
		return fmt.Errorf("init scheduler: %w", err)
	}

	sched.Start()

	fmt.Println("\nRegistered jobs:")
	for _, jobName := range sched.GetAllJobs() {
		fmt.Printf("  - %s\n", jobName)
	}
	fmt.Println("\nPress Ctrl+C to stop")

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit

	sched.Stop()
	return nil
}

func listJobs(cmd *cobra.Command, args []string) error {
	deps, err := initDeps()
	if err != nil {
		return err
	}
	defer deps.Close()

	sched, err := buildScheduler(deps)
	if err != nil {
		return fmt.Errorf("init scheduler: %w", err)
	}

	fmt.Println("Registered jobs:")
	for name, stats := range sched.GetJobStats() {
		fmt.Printf("  %-20s %s\n", name, stats.Schedule)
	}
	return nil
}

func runJobOnce(cmd *cobra.Command, args []string) error {
	jobName := args[0]

	deps, err := initDeps()
	if err != nil {
		return err
	}
	defer deps.Close()

	sched, err := buildScheduler(deps)
	if err != nil {
		return fmt.Errorf("init scheduler: %w", err)
	}

	fmt.Printf("Running job %s...\n", jobName)
	if err := sched.RunJob(jobName); err != nil {
		return err
	}

	// RunJob is asynchronous; poll history until the run lands.
	for {
		time.Sleep(500 * time.Millisecond)
		history, err := sched.GetJobHistory(jobName)
		if err != nil {
			return err
		}
		if len(history.Results) > 0 {
			result := history.Results[len(history.Results)-1]
			if result.Success {
				fmt.Printf("✅ %s completed in %v\n", jobName, result.Duration)
				return nil
			}
			return fmt.Errorf("job %s failed: %s", jobName, result.Error)
		}
	}
}
