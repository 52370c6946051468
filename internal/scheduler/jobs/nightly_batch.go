package jobs

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/wonny/cbquant/internal/audit"
	"github.com/wonny/cbquant/internal/backtest"
	"github.com/wonny/cbquant/internal/report"
	"github.com/wonny/cbquant/internal/s0_data"
	"github.com/wonny/cbquant/internal/strategyconfig"
	"github.com/wonny/cbquant/pkg/logger"
)

// nightlyBatchTimeout bounds one attempt of the nightly batch
const nightlyBatchTimeout = 2 * time.Hour

// PanelReloader refreshes the shared prepared panel
type PanelReloader interface {
	Reload(ctx context.Context) (*s0_data.Panel, error)
}

// RunSaver persists run history
type RunSaver interface {
	SaveRuns(ctx context.Context, recs []audit.RunRecord) error
}

// NightlyBatchJob reloads the panel and reruns the configured batch file
// ⭐ SSOT: 정기 배치 백테스트 스케줄은 이 Job에서만
type NightlyBatchJob struct {
	panels    PanelReloader
	batch     *backtest.BatchRunner
	runs      RunSaver // nil이면 저장 안 함
	batchFile string
	outputDir string
	schedule  string
	logger    *logger.Logger
	now       func() time.Time
}

// NewNightlyBatchJob creates a new nightly batch job
func NewNightlyBatchJob(
	panels PanelReloader,
	batch *backtest.BatchRunner,
	runs RunSaver,
	batchFile, outputDir, schedule string,
	log *logger.Logger,
) *NightlyBatchJob {
	return &NightlyBatchJob{
		panels:    panels,
		batch:     batch,
		runs:      runs,
		batchFile: batchFile,
		outputDir: outputDir,
		schedule:  schedule,
		logger:    log,
		now:       time.Now,
	}
}

// Name returns the job name
func (j *NightlyBatchJob) Name() string {
	return "nightly_batch"
}

// Schedule returns the cron schedule (with seconds)
func (j *NightlyBatchJob) Schedule() string {
	return j.schedule
}

// Timeout bounds each attempt
func (j *NightlyBatchJob) Timeout() time.Duration {
	return nightlyBatchTimeout
}

// Run executes the batch
func (j *NightlyBatchJob) Run(ctx context.Context) error {
	j.logger.WithField("batch_file", j.batchFile).Info("Starting scheduled batch backtest")

	// 1. 배치 설정 (패널 로드 전에 검증)
	cfg, _, err := strategyconfig.LoadBatch(j.batchFile)
	if err != nil {
		return fmt.Errorf("load batch config: %w", err)
	}

	// 2. 패널 재로드 + 팩터 계산
	panel, err := j.panels.Reload(ctx)
	if err != nil {
		return fmt.Errorf("reload panel: %w", err)
	}

	// 3. 전략 실행
	results := j.batch.Run(ctx, panel, cfg.Requests())

	// 4. 리포트
	name := filepath.Base(cfg.OutputPath)
	if cfg.OutputPath == "" {
		name = fmt.Sprintf("batch_%s.xlsx", j.now().Format("20060102"))
	}
	path := filepath.Join(j.outputDir, name)
	if err := report.WriteWorkbook(path, results); err != nil {
		return fmt.Errorf("write workbook: %w", err)
	}

	// 5. 실행 이력
	if j.runs != nil {
		recs := make([]audit.RunRecord, len(results))
		for i, r := range results {
			recs[i] = r.Record()
		}
		if err := j.runs.SaveRuns(ctx, recs); err != nil {
			j.logger.WithError(err).Warn("Failed to save run history")
		}
	}

	failed := 0
	for _, r := range results {
		if !r.OK() {
			failed++
		}
	}
	j.logger.WithFields(map[string]interface{}{
		"strategies": len(results),
		"failed":     failed,
		"workbook":   path,
	}).Info("Scheduled batch backtest completed")

	return nil
}
