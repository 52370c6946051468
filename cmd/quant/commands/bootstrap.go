package commands

import (
	"context"
	"fmt"

	"github.com/joho/godotenv"

	"github.com/wonny/cbquant/internal/audit"
	"github.com/wonny/cbquant/internal/backtest"
	"github.com/wonny/cbquant/internal/s0_data"
	"github.com/wonny/cbquant/internal/s0_data/quality"
	"github.com/wonny/cbquant/pkg/config"
	"github.com/wonny/cbquant/pkg/database"
	"github.com/wonny/cbquant/pkg/logger"
	"github.com/wonny/cbquant/pkg/redis"
)

// app bundles the collaborators shared by the long-running commands
type app struct {
	cfg     *config.Config
	log     *logger.Logger
	db      *database.DB // DATABASE_URL이 없으면 nil
	redis   *redis.Client
	engine  *backtest.Engine
	batch   *backtest.BatchRunner
	panels  *backtest.PanelStore
	runs    *audit.Repository   // db가 없으면 nil
	quality *quality.Repository // db가 없으면 nil
}

// loadConfig reads the --config file (if any) and the environment
func loadConfig() (*config.Config, error) {
	if configFile != "" {
		if err := godotenv.Load(configFile); err != nil {
			return nil, fmt.Errorf("load config file %s: %w", configFile, err)
		}
	}

	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if verbose {
		cfg.LogLevel = "debug"
	}
	return cfg, nil
}

// newApp wires config, logger, storage and the backtest engine.
// The database is optional unless the panel itself lives in Postgres.
func newApp(ctx context.Context) (*app, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	log := logger.New(cfg)

	rt := &app{cfg: cfg, log: log}

	if cfg.HasDatabase() {
		db, err := database.New(ctx, cfg)
		if err != nil {
			return nil, fmt.Errorf("connect to database: %w", err)
		}
		rt.db = db
		log.Info("Connected to database")

		rt.runs = audit.NewRepository(db.Pool)
		if err := rt.runs.EnsureSchema(ctx); err != nil {
			rt.Close()
			return nil, fmt.Errorf("ensure run history schema: %w", err)
		}
		if err := db.Exec(ctx, quality.Schema...); err != nil {
			rt.Close()
			return nil, fmt.Errorf("ensure quality schema: %w", err)
		}
		rt.quality = quality.NewRepository(db.Pool)
	}

	rc, err := redis.New(cfg)
	if err != nil {
		// 캐시는 선택 사항: 연결 실패 시 비활성 클라이언트로 계속
		log.WithError(err).Warn("Redis unavailable, caching disabled")
		rc, _ = redis.New(&config.Config{})
	}
	rt.redis = rc

	source, err := s0_data.NewSource(cfg, rt.db)
	if err != nil {
		rt.Close()
		return nil, fmt.Errorf("create panel source: %w", err)
	}

	rt.engine = backtest.NewDefaultEngine(cfg.Backtest.PeriodsPerYear, cfg.Backtest.RiskFreeRate, log)
	rt.batch = backtest.NewBatchRunner(rt.engine, cfg.Backtest.Workers, log)
	rt.panels = backtest.NewPanelStore(rt.engine, source)

	return rt, nil
}

// loadPanel performs the initial panel load
func (rt *app) loadPanel(ctx context.Context) (*s0_data.Panel, error) {
	p, err := rt.panels.Reload(ctx)
	if err != nil {
		return nil, fmt.Errorf("load panel: %w", err)
	}
	return p, nil
}

// saveRuns stores results when run history is configured
func (rt *app) saveRuns(ctx context.Context, results ...*backtest.Result) {
	if rt.runs == nil {
		return
	}
	recs := make([]audit.RunRecord, len(results))
	for i, r := range results {
		recs[i] = r.Record()
	}
	if err := rt.runs.SaveRuns(ctx, recs); err != nil {
		rt.log.WithError(err).Warn("Failed to save run history")
	}
}

// Close releases the database and Redis connections
func (rt *app) Close() {
	if rt.redis != nil {
		if err := rt.redis.Close(); err != nil {
			rt.log.WithError(err).Warn("Failed to close redis client")
		}
	}
	if rt.db != nil {
		rt.db.Close()
	}
}
