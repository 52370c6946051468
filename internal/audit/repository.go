package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/wonny/cbquant/internal/contracts"
)

// Schema creates the run history table
var Schema = []string{
	`CREATE SCHEMA IF NOT EXISTS audit`,
	`CREATE TABLE IF NOT EXISTS audit.backtest_runs (
		id            UUID PRIMARY KEY,
		name          TEXT        NOT NULL,
		config_hash   TEXT        NOT NULL,
		panel_version TEXT        NOT NULL,
		start_date    TEXT        NOT NULL,
		end_date      TEXT        NOT NULL,
		strategy      JSONB       NOT NULL,
		metrics       JSONB       NOT NULL,
		error         TEXT        NOT NULL DEFAULT '',
		elapsed_ms    BIGINT      NOT NULL,
		created_at    TIMESTAMPTZ NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_backtest_runs_created ON audit.backtest_runs (created_at DESC)`,
	`CREATE INDEX IF NOT EXISTS idx_backtest_runs_hash ON audit.backtest_runs (config_hash)`,
}

// RunRecord is one persisted backtest run.
// Metrics holds the summary only; the return series stays in the result/report.
type RunRecord struct {
	ID           uuid.UUID         `json:"id"`
	Name         string            `json:"name"`
	ConfigHash   string            `json:"config_hash"`
	PanelVersion string            `json:"panel_version"`
	StartDate    string            `json:"start_date"`
	EndDate      string            `json:"end_date"`
	Strategy     json.RawMessage   `json:"strategy"`
	Metrics      contracts.Metrics `json:"metrics"`
	Error        string            `json:"error,omitempty"`
	ElapsedMS    int64             `json:"elapsed_ms"`
	CreatedAt    time.Time         `json:"created_at"`
}

// Repository handles run history persistence
// ⭐ SSOT: 백테스트 실행 이력 저장/조회는 여기서만
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates a new audit repository
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// EnsureSchema creates the run history table if needed
func (r *Repository) EnsureSchema(ctx context.Context) error {
	for i, stmt := range Schema {
		if _, err := r.pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("audit schema statement %d: %w", i+1, err)
		}
	}
	return nil
}

// SaveRun stores one run record
func (r *Repository) SaveRun(ctx context.Context, rec RunRecord) error {
	metricsJSON, err := json.Marshal(rec.Metrics.Summary())
	if err != nil {
		return fmt.Errorf("failed to marshal metrics: %w", err)
	}
	strategy := rec.Strategy
	if len(strategy) == 0 {
		strategy = json.RawMessage(`{}`)
	}

	query := `
		INSERT INTO audit.backtest_runs (
			id, name, config_hash, panel_version, start_date, end_date,
			strategy, metrics, error, elapsed_ms, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		ON CONFLICT (id) DO NOTHING
	`

	_, err = r.pool.Exec(ctx, query,
		rec.ID, rec.Name, rec.ConfigHash, rec.PanelVersion, rec.StartDate, rec.EndDate,
		[]byte(strategy), metricsJSON, rec.Error, rec.ElapsedMS, rec.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to save run %s: %w", rec.ID, err)
	}

	return nil
}

// SaveRuns stores several records in one batch
func (r *Repository) SaveRuns(ctx context.Context, recs []RunRecord) error {
	for _, rec := range recs {
		if err := r.SaveRun(ctx, rec); err != nil {
			return err
		}
	}
	return nil
}

// GetRun retrieves one run by ID
func (r *Repository) GetRun(ctx context.Context, id uuid.UUID) (*RunRecord, error) {
	query := `
		SELECT id, name, config_hash, panel_version, start_date, end_date,
		       strategy, metrics, error, elapsed_ms, created_at
		FROM audit.backtest_runs
		WHERE id = $1
	`

	rec, err := scanRun(r.pool.QueryRow(ctx, query, id))
	if err == pgx.ErrNoRows {
		return nil, fmt.Errorf("run not found: %s", id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get run: %w", err)
	}

	return rec, nil
}

// ListRuns returns the most recent runs, newest first
func (r *Repository) ListRuns(ctx context.Context, limit int) ([]RunRecord, error) {
	if limit <= 0 {
		limit = 50
	}

	query := `
		SELECT id, name, config_hash, panel_version, start_date, end_date,
		       strategy, metrics, error, elapsed_ms, created_at
		FROM audit.backtest_runs
		ORDER BY created_at DESC
		LIMIT $1
	`

	rows, err := r.pool.Query(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query runs: %w", err)
	}
	defer rows.Close()

	runs := make([]RunRecord, 0)
	for rows.Next() {
		rec, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}
		runs = append(runs, *rec)
	}

	return runs, rows.Err()
}

func scanRun(row pgx.Row) (*RunRecord, error) {
	var rec RunRecord
	var strategy, metrics []byte

	err := row.Scan(
		&rec.ID, &rec.Name, &rec.ConfigHash, &rec.PanelVersion, &rec.StartDate, &rec.EndDate,
		&strategy, &metrics, &rec.Error, &rec.ElapsedMS, &rec.CreatedAt,
	)
	if err != nil {
		return nil, err
	}

	rec.Strategy = json.RawMessage(strategy)
	if err := json.Unmarshal(metrics, &rec.Metrics); err != nil {
		return nil, fmt.Errorf("failed to unmarshal metrics: %w", err)
	}

	return &rec, nil
}
