package backtest

import (
	"context"
	"runtime"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/wonny/cbquant/internal/s0_data"
	"github.com/wonny/cbquant/internal/strategyconfig"
	"github.com/wonny/cbquant/pkg/logger"
)

// BatchRunner runs independent strategies over one prepared panel in parallel
type BatchRunner struct {
	engine  *Engine
	workers int
	logger  *logger.Logger
}

// NewBatchRunner creates a batch runner; workers <= 0 uses GOMAXPROCS
func NewBatchRunner(engine *Engine, workers int, log *logger.Logger) *BatchRunner {
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	return &BatchRunner{
		engine:  engine,
		workers: workers,
		logger:  log,
	}
}

// Run returns one result per request, in request order.
// Each run only reads the shared panel; a failed run does not stop the others.
func (b *BatchRunner) Run(ctx context.Context, prepared *s0_data.Panel, reqs []strategyconfig.BacktestRequest) []*Result {
	start := time.Now()
	results := make([]*Result, len(reqs))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(b.workers)

	for i := range reqs {
		req := reqs[i]
		if req.Strategy.Name == "" {
			req.Strategy.Name = req.Strategy.DisplayName(i)
		}
		g.Go(func() error {
			results[i] = b.engine.Run(gctx, prepared, req)
			return nil
		})
	}
	_ = g.Wait()

	failed := 0
	for _, r := range results {
		if !r.OK() {
			failed++
		}
	}
	b.logger.WithFields(map[string]interface{}{
		"strategies": len(reqs),
		"failed":     failed,
		"workers":    b.workers,
		"duration":   time.Since(start).String(),
	}).Info("Batch completed")

	return results
}
