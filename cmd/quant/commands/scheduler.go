package commands

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/wonny/cbquant/internal/s0_data/quality"
	"github.com/wonny/cbquant/internal/scheduler"
	"github.com/wonny/cbquant/internal/scheduler/jobs"
	"github.com/wonny/cbquant/pkg/redis"
)

// schedulerCmd represents the scheduler command
var schedulerCmd = &cobra.Command{
	Use:   "scheduler",
	Short: "스케줄러 관리",
	Long: `스케줄러를 시작하거나 작업을 관리합니다.

Subcommands:
  start   - 스케줄러 시작
  list    - 등록된 작업 목록
  run     - 특정 작업 즉시 실행 (완료까지 대기)

Example:
  go run ./cmd/quant scheduler start
  go run ./cmd/quant scheduler list
  go run ./cmd/quant scheduler run nightly_batch`,
}

var (
	schedulerStartCmd = &cobra.Command{
		Use:   "start",
		Short: "스케줄러 시작",
		Long: `스케줄러를 시작하고 등록된 모든 작업을 스케줄합니다.

등록되는 작업:
- data_quality:  SCHEDULER_QUALITY_CRON (기본: 평일 18:00, 패널 품질 검사)
- nightly_batch: SCHEDULER_BATCH_CRON (기본: 평일 18:30, 배치 백테스트 + 엑셀)

스케줄러는 Ctrl+C로 종료할 수 있습니다.`,
		RunE: runScheduler,
	}

	schedulerListCmd = &cobra.Command{
		Use:   "list",
		Short: "등록된 작업 목록",
		RunE:  listJobs,
	}

	schedulerRunCmd = &cobra.Command{
		Use:   "run [job_name]",
		Short: "특정 작업 즉시 실행",
		Args:  cobra.ExactArgs(1),
		RunE:  runJob,
	}
)

func init() {
	rootCmd.AddCommand(schedulerCmd)
	schedulerCmd.AddCommand(schedulerStartCmd)
	schedulerCmd.AddCommand(schedulerListCmd)
	schedulerCmd.AddCommand(schedulerRunCmd)
}

func runScheduler(cmd *cobra.Command, args []string) error {
	fmt.Println("=== cbquant Scheduler ===")

	ctx := context.Background()
	a, sched, err := initScheduler(ctx)
	if err != nil {
		return fmt.Errorf("init scheduler: %w", err)
	}
	defer a.Close()

	// data_quality 작업은 로드된 패널이 필요
	if _, err := a.loadPanel(ctx); err != nil {
		return err
	}

	sched.Start()

	fmt.Println("\n✅ Scheduler started successfully")
	fmt.Println("\nRegistered jobs:")
	PrintList(sched.GetAllJobs())
	fmt.Println("\nPress Ctrl+C to stop")

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit

	fmt.Println("\nShutting down scheduler...")
	sched.Stop()
	fmt.Println("Scheduler stopped")

	return nil
}

func listJobs(cmd *cobra.Command, args []string) error {
	a, sched, err := initScheduler(context.Background())
	if err != nil {
		return fmt.Errorf("init scheduler: %w", err)
	}
	defer a.Close()

	const w = 14
	stats := sched.GetJobStats()
	fmt.Println("Registered jobs:")
	for _, name := range sched.GetAllJobs() {
		PrintKeyValue(name, stats[name].Schedule, w)
	}

	return nil
}

func runJob(cmd *cobra.Command, args []string) error {
	jobName := args[0]

	fmt.Printf("Running job: %s\n", jobName)

	ctx := context.Background()
	a, sched, err := initScheduler(ctx)
	if err != nil {
		return fmt.Errorf("init scheduler: %w", err)
	}
	defer a.Close()

	if jobName == "data_quality" {
		if _, err := a.loadPanel(ctx); err != nil {
			return err
		}
	}

	// 수동 실행은 재시도 없이 결과 바로 보고
	sched.WithRetry(0, 0)
	result, err := sched.RunJobSync(jobName)
	if err != nil {
		return fmt.Errorf("run job: %w", err)
	}

	if !result.Success {
		PrintError(fmt.Sprintf("%s failed after %s: %s", jobName, result.Duration, result.Error))
		return fmt.Errorf("job %s failed", jobName)
	}
	PrintSuccess(fmt.Sprintf("%s completed in %s", jobName, result.Duration))
	return nil
}

func initScheduler(ctx context.Context) (*app, *scheduler.Scheduler, error) {
	// 1. Config, logger, storage, engine
	a, err := newApp(ctx)
	if err != nil {
		return nil, nil, err
	}

	// 2. Optional collaborators (nil 인터페이스 방지)
	var runs jobs.RunSaver
	var snapshots jobs.SnapshotSaver
	if a.runs != nil {
		runs = a.runs
	}
	if a.quality != nil {
		snapshots = a.quality
	}

	// 3. Scheduler
	sched := scheduler.New(a.log)

	// 4. Register jobs
	cfg := a.cfg
	registered := []scheduler.Job{
		jobs.NewDataQualityJob(
			a.panels,
			quality.NewValidator(quality.DefaultConfig()),
			snapshots,
			redis.NewCache(a.redis, "cbquant"),
			cfg.Scheduler.QualityCron,
			a.log,
		),
		jobs.NewNightlyBatchJob(
			a.panels,
			a.batch,
			runs,
			cfg.Scheduler.BatchFile,
			cfg.Backtest.OutputDir,
			cfg.Scheduler.BatchCron,
			a.log,
		),
	}
	for _, job := range registered {
		if err := sched.AddJob(job); err != nil {
			a.Close()
			return nil, nil, fmt.Errorf("add job %s: %w", job.Name(), err)
		}
	}

	return a, sched, nil
}
