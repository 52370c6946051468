package commands

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/wonny/cbquant/internal/api"
	"github.com/wonny/cbquant/internal/api/handlers"
	"github.com/wonny/cbquant/pkg/redis"
)

// apiCmd represents the api command
var apiCmd = &cobra.Command{
	Use:   "api",
	Short: "API 서버 시작",
	Long: `REST API 서버를 시작합니다.

이 명령어는:
- 패널 로드 + 팩터 계산 (시작 시 1회)
- 단일/배치 백테스트 엔드포인트 제공
- 실행 이력 조회 (DATABASE_URL 설정 시)

Endpoints:
  GET  /health               - Health check
  POST /api/backtest         - 단일 전략 백테스트
  POST /api/backtest/batch   - 배치 백테스트
  GET  /api/runs             - 실행 이력
  GET  /api/panel            - 패널 정보

Example:
  go run ./cmd/quant api
  go run ./cmd/quant api --port 8080`,
	RunE: runAPIServer,
}

var (
	apiPort string
)

func init() {
	rootCmd.AddCommand(apiCmd)

	// Flags
	apiCmd.Flags().StringVar(&apiPort, "port", "", "API 서버 포트 (기본: PORT)")
}

func runAPIServer(cmd *cobra.Command, args []string) error {
	fmt.Println("=== cbquant API Server ===")

	ctx := context.Background()

	// 1. Config, logger, storage, engine
	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	// Override port if flag is set
	if apiPort != "" {
		a.cfg.Port = apiPort
	}

	a.log.WithFields(map[string]interface{}{
		"port": a.cfg.Port,
		"env":  a.cfg.Env,
	}).Info("Initializing API server")

	// 2. Initial panel load
	if _, err := a.loadPanel(ctx); err != nil {
		return err
	}

	// 3. Handler
	opts := handlers.BacktestOptions{
		Cache:     redis.NewCache(a.redis, "cbquant"),
		OutputDir: a.cfg.Backtest.OutputDir,
		ResultTTL: a.cfg.Backtest.ResultTTL,
	}
	if a.runs != nil {
		opts.Runs = a.runs
	}
	backtestHandler := handlers.NewBacktestHandler(a.engine, a.batch, a.panels, opts, a.log)

	// 4. Router
	limiter := api.NewRateLimiter(
		a.cfg.API.RateLimit,
		a.cfg.API.RateBurst,
		redis.NewRateLimiter(a.redis, "cbquant"),
		a.log,
	)
	router := api.NewRouter(backtestHandler, api.RouterOptions{
		Limiter:        limiter,
		RequestTimeout: a.cfg.API.RequestTimeout,
	}, a.log)

	// 5. Server (bind first so a busy port fails fast)
	server := api.New(a.cfg, a.log, router)
	if err := server.Listen(); err != nil {
		return err
	}

	fmt.Printf("\n✅ Server listening on %s\n", server.Addr())
	fmt.Println("\nAvailable endpoints:")
	fmt.Println("  GET  /health")
	fmt.Println("  POST /api/backtest")
	fmt.Println("  POST /api/backtest/batch")
	fmt.Println("  GET  /api/runs")
	fmt.Println("  GET  /api/panel")
	fmt.Println("\nPress Ctrl+C to stop")

	// 6. Serve until interrupted; Run drains in-flight requests
	sigCtx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	return server.Run(sigCtx)
}
