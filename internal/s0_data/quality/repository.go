package quality

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/wonny/cbquant/internal/contracts"
)

// Schema creates the snapshot table
var Schema = []string{
	`CREATE SCHEMA IF NOT EXISTS audit`,
	`CREATE TABLE IF NOT EXISTS audit.data_quality_snapshots (
		panel_version   TEXT PRIMARY KEY,
		start_date      TEXT             NOT NULL,
		end_date        TEXT             NOT NULL,
		total_rows      INTEGER          NOT NULL,
		instruments     INTEGER          NOT NULL,
		dates           INTEGER          NOT NULL,
		coverage        JSONB            NOT NULL,
		ohlc_violations INTEGER          NOT NULL,
		min_per_date    INTEGER          NOT NULL,
		thin_dates      JSONB            NOT NULL,
		quality_score   DOUBLE PRECISION NOT NULL,
		passed          BOOLEAN          NOT NULL,
		checked_at      TIMESTAMPTZ      NOT NULL
	)`,
}

// Repository handles data quality snapshot persistence
// ⭐ SSOT: S0 품질 스냅샷 저장/조회
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates a new quality repository
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// SaveSnapshot saves a data quality snapshot, replacing one for the same panel version
func (r *Repository) SaveSnapshot(ctx context.Context, snapshot *contracts.DataQualitySnapshot) error {
	coverage, err := json.Marshal(snapshot.Coverage)
	if err != nil {
		return fmt.Errorf("marshal coverage: %w", err)
	}
	thin, err := json.Marshal(snapshot.ThinDates)
	if err != nil {
		return fmt.Errorf("marshal thin dates: %w", err)
	}

	query := `
		INSERT INTO audit.data_quality_snapshots (
			panel_version, start_date, end_date, total_rows, instruments, dates,
			coverage, ohlc_violations, min_per_date, thin_dates,
			quality_score, passed, checked_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		ON CONFLICT (panel_version) DO UPDATE SET
			coverage = EXCLUDED.coverage,
			ohlc_violations = EXCLUDED.ohlc_violations,
			min_per_date = EXCLUDED.min_per_date,
			thin_dates = EXCLUDED.thin_dates,
			quality_score = EXCLUDED.quality_score,
			passed = EXCLUDED.passed,
			checked_at = EXCLUDED.checked_at
	`

	_, err = r.pool.Exec(ctx, query,
		snapshot.PanelVersion,
		snapshot.StartDate,
		snapshot.EndDate,
		snapshot.TotalRows,
		snapshot.Instruments,
		snapshot.Dates,
		coverage,
		snapshot.OHLCViolations,
		snapshot.MinPerDate,
		thin,
		snapshot.QualityScore,
		snapshot.Passed,
		snapshot.CheckedAt,
	)
	if err != nil {
		return fmt.Errorf("save quality snapshot: %w", err)
	}

	return nil
}

// GetLatest retrieves the most recent quality snapshot
func (r *Repository) GetLatest(ctx context.Context) (*contracts.DataQualitySnapshot, error) {
	query := `
		SELECT
			panel_version, start_date, end_date, total_rows, instruments, dates,
			coverage, ohlc_violations, min_per_date, thin_dates,
			quality_score, passed, checked_at
		FROM audit.data_quality_snapshots
		ORDER BY checked_at DESC
		LIMIT 1
	`

	snapshot := &contracts.DataQualitySnapshot{}
	var coverage, thin []byte

	err := r.pool.QueryRow(ctx, query).Scan(
		&snapshot.PanelVersion,
		&snapshot.StartDate,
		&snapshot.EndDate,
		&snapshot.TotalRows,
		&snapshot.Instruments,
		&snapshot.Dates,
		&coverage,
		&snapshot.OHLCViolations,
		&snapshot.MinPerDate,
		&thin,
		&snapshot.QualityScore,
		&snapshot.Passed,
		&snapshot.CheckedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("get latest quality snapshot: %w", err)
	}

	if err := json.Unmarshal(coverage, &snapshot.Coverage); err != nil {
		return nil, fmt.Errorf("decode coverage: %w", err)
	}
	if err := json.Unmarshal(thin, &snapshot.ThinDates); err != nil {
		return nil, fmt.Errorf("decode thin dates: %w", err)
	}

	return snapshot, nil
}
