package jobs

import (
	"context"
	"fmt"

	"github.com/wonny/cbquant/internal/contracts"
	"github.com/wonny/cbquant/internal/s0_data"
	"github.com/wonny/cbquant/internal/s0_data/quality"
	"github.com/wonny/cbquant/pkg/logger"
	"github.com/wonny/cbquant/pkg/redis"
)

// PanelProvider returns the current panel
type PanelProvider interface {
	Get() *s0_data.Panel
}

// SnapshotSaver persists quality snapshots
type SnapshotSaver interface {
	SaveSnapshot(ctx context.Context, snapshot *contracts.DataQualitySnapshot) error
}

// DataQualityJob checks the loaded panel and records a quality snapshot
type DataQualityJob struct {
	panels    PanelProvider
	validator *quality.Validator
	repo      SnapshotSaver // nil이면 저장 안 함
	cache     *redis.Cache  // nil이면 캐시 안 함
	schedule  string
	logger    *logger.Logger
}

// NewDataQualityJob creates a new data quality job
func NewDataQualityJob(
	panels PanelProvider,
	validator *quality.Validator,
	repo SnapshotSaver,
	cache *redis.Cache,
	schedule string,
	log *logger.Logger,
) *DataQualityJob {
	return &DataQualityJob{
		panels:    panels,
		validator: validator,
		repo:      repo,
		cache:     cache,
		schedule:  schedule,
		logger:    log,
	}
}

// Name returns the job name
func (j *DataQualityJob) Name() string {
	return "data_quality"
}

// Schedule returns the cron schedule (with seconds)
func (j *DataQualityJob) Schedule() string {
	return j.schedule
}

// Run executes the quality check.
// A failing score is logged, not returned: retrying cannot change the data.
func (j *DataQualityJob) Run(ctx context.Context) error {
	panel := j.panels.Get()
	if panel == nil {
		return fmt.Errorf("panel not loaded")
	}

	snapshot := j.validator.Check(panel)

	if j.repo != nil {
		if err := j.repo.SaveSnapshot(ctx, snapshot); err != nil {
			return fmt.Errorf("save quality snapshot: %w", err)
		}
	}
	if j.cache != nil {
		if err := j.cache.Set(ctx, redis.QualityKey(snapshot.PanelVersion), snapshot, redis.TTLLong); err != nil {
			j.logger.WithError(err).Warn("Failed to cache quality snapshot")
		}
	}

	log := j.logger.WithFields(map[string]interface{}{
		"version":         snapshot.PanelVersion,
		"quality_score":   snapshot.QualityScore,
		"ohlc_violations": snapshot.OHLCViolations,
		"thin_dates":      len(snapshot.ThinDates),
	})
	if snapshot.Passed {
		log.Info("Data quality check passed")
	} else {
		log.Warn("Data quality check failed")
	}

	return nil
}
