package database

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/wonny/cbquant/pkg/config"
)

const (
	applicationName = "cbquant"
	pingTimeout     = 5 * time.Second
)

// DB owns the pgx pool shared by the panel source and the run/quality repositories
// ⭐ SSOT: DB 연결은 이 패키지에서만 생성
type DB struct {
	Pool *pgxpool.Pool
}

// New opens the pool described by DATABASE_URL and pings it once
// ⭐ SSOT: 유일하게 pgxpool.NewWithConfig()를 호출하는 함수
func New(ctx context.Context, cfg *config.Config) (*DB, error) {
	if !cfg.HasDatabase() {
		return nil, fmt.Errorf("DATABASE_URL is empty")
	}

	pc, err := pgxpool.ParseConfig(cfg.Database.URL)
	if err != nil {
		return nil, fmt.Errorf("parse DATABASE_URL: %w", err)
	}
	if cfg.Database.MaxConns > 0 {
		pc.MaxConns = int32(cfg.Database.MaxConns)
	}
	if cfg.Database.MinConns > 0 {
		pc.MinConns = int32(cfg.Database.MinConns)
	}
	if cfg.Database.MaxConnLifetime > 0 {
		pc.MaxConnLifetime = cfg.Database.MaxConnLifetime
	}
	if cfg.Database.MaxConnIdleTime > 0 {
		pc.MaxConnIdleTime = cfg.Database.MaxConnIdleTime
	}
	// pg_stat_activity에서 식별
	if _, set := pc.ConnConfig.RuntimeParams["application_name"]; !set {
		pc.ConnConfig.RuntimeParams["application_name"] = applicationName
	}

	pool, err := pgxpool.NewWithConfig(ctx, pc)
	if err != nil {
		return nil, fmt.Errorf("create pool: %w", err)
	}

	db := &DB{Pool: pool}
	pingCtx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()
	if err := db.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, err
	}

	return db, nil
}

// Close closes the pool; safe to call more than once
func (db *DB) Close() {
	if db.Pool != nil {
		db.Pool.Close()
	}
}

// Ping checks the database answers
func (db *DB) Ping(ctx context.Context) error {
	if err := db.Pool.Ping(ctx); err != nil {
		return fmt.Errorf("ping database: %w", err)
	}
	return nil
}

// InTx runs fn in a transaction, committing only when fn returns nil
func (db *DB) InTx(ctx context.Context, fn func(tx pgx.Tx) error) error {
	tx, err := db.Pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback(ctx)

	if err := fn(tx); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

// Exec runs schema statements in order in one transaction.
// Repositories pass their CREATE ... IF NOT EXISTS statements.
func (db *DB) Exec(ctx context.Context, statements ...string) error {
	return db.InTx(ctx, func(tx pgx.Tx) error {
		for i, stmt := range statements {
			if _, err := tx.Exec(ctx, stmt); err != nil {
				return fmt.Errorf("statement %d: %w", i+1, err)
			}
		}
		return nil
	})
}

// HealthStatus is the result of a HealthCheck
type HealthStatus struct {
	Healthy      bool          `json:"healthy"`
	CheckedAt    time.Time     `json:"checked_at"`
	ResponseTime time.Duration `json:"response_time"`
	Error        string        `json:"error,omitempty"`
	Stats        PoolStats     `json:"stats"`
}

// PoolStats is a snapshot of the pool counters shown by db-check
type PoolStats struct {
	MaxConns        int32         `json:"max_conns"`
	TotalConns      int32         `json:"total_conns"`
	AcquiredConns   int32         `json:"acquired_conns"`
	IdleConns       int32         `json:"idle_conns"`
	AcquireCount    int64         `json:"acquire_count"`
	EmptyAcquires   int64         `json:"empty_acquires"` // 빈 풀에서 대기한 횟수
	AcquireDuration time.Duration `json:"acquire_duration"`
}

// HealthCheck pings the database and reports latency and pool counters
func (db *DB) HealthCheck(ctx context.Context) (*HealthStatus, error) {
	status := &HealthStatus{CheckedAt: time.Now()}

	if err := db.Ping(ctx); err != nil {
		status.Error = err.Error()
		return status, err
	}
	status.ResponseTime = time.Since(status.CheckedAt)
	status.Stats = db.Stats()
	status.Healthy = true

	return status, nil
}

// Stats returns the current pool statistics
func (db *DB) Stats() PoolStats {
	s := db.Pool.Stat()
	return PoolStats{
		MaxConns:        s.MaxConns(),
		TotalConns:      s.TotalConns(),
		AcquiredConns:   s.AcquiredConns(),
		IdleConns:       s.IdleConns(),
		AcquireCount:    s.AcquireCount(),
		EmptyAcquires:   s.EmptyAcquireCount(),
		AcquireDuration: s.AcquireDuration(),
	}
}
