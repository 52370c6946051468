package commands

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/wonny/cbquant/internal/api"
	"github.com/wonny/cbquant/internal/backtest"
	"github.com/wonny/cbquant/internal/report"
	"github.com/wonny/cbquant/internal/strategyconfig"
	"github.com/wonny/cbquant/pkg/httputil"
	"github.com/wonny/cbquant/pkg/logger"
)

// backtestCmd represents the backtest command
var backtestCmd = &cobra.Command{
	Use:   "backtest",
	Short: "전환사채 랭킹 전략 백테스트",
	Long: `일별 패널로 랭킹 전략을 시뮬레이션합니다.

매 거래일 제외 조건을 통과한 종목을 가중 랭킹으로 점수화하고
상위 hold_num 종목을 익일 익절(stop_profit) 규칙으로 보유합니다.

Example:
  go run ./cmd/quant backtest run --strategy config/low_premium.yaml --from 2023-01-01 --to 2023-12-31
  go run ./cmd/quant backtest batch --file config/batch.yaml --output result/batch.xlsx`,
}

var (
	backtestRunCmd = &cobra.Command{
		Use:   "run",
		Short: "단일 전략 백테스트",
		Long: `하나의 전략을 실행합니다.

--strategy를 생략하면 기본 전략(저괴리율 + YTM + 회전율)을 사용하고,
--hold/--sp/--fee는 파일 값보다 우선합니다.

Example:
  go run ./cmd/quant backtest run --from 2023-01-01 --to 2023-12-31
  go run ./cmd/quant backtest run --strategy config/low_premium.yaml --from 2023-01-01 --to 2023-12-31 --hold 10
  go run ./cmd/quant backtest run --from 2023-01-01 --to 2023-12-31 --remote http://quant-host:8089`,
		RunE: runBacktest,
	}

	backtestBatchCmd = &cobra.Command{
		Use:   "batch",
		Short: "배치 백테스트 (엑셀 리포트)",
		Long: `배치 YAML의 모든 전략을 같은 기간으로 실행하고 엑셀 리포트를 만듭니다.

Example:
  go run ./cmd/quant backtest batch --file config/batch.yaml
  go run ./cmd/quant backtest batch --file config/batch.yaml --output result/compare.xlsx`,
		RunE: runBatch,
	}

	// Flags
	backtestStrategy string
	backtestFrom     string
	backtestTo       string
	backtestHold     int
	backtestSP       float64
	backtestFee      float64
	backtestRemote   string
	batchFile        string
	batchOutput      string
)

func init() {
	rootCmd.AddCommand(backtestCmd)
	backtestCmd.AddCommand(backtestRunCmd)
	backtestCmd.AddCommand(backtestBatchCmd)

	backtestCmd.PersistentFlags().StringVar(&backtestRemote, "remote", "", "원격 API 주소 (기본: REMOTE_BASE_URL, 비우면 로컬 실행)")

	backtestRunCmd.Flags().StringVar(&backtestStrategy, "strategy", "", "전략 YAML 파일")
	backtestRunCmd.Flags().StringVar(&backtestFrom, "from", "", "시작 날짜 (YYYY-MM-DD, 필수)")
	backtestRunCmd.Flags().StringVar(&backtestTo, "to", "", "종료 날짜 (YYYY-MM-DD, 필수)")
	backtestRunCmd.Flags().IntVar(&backtestHold, "hold", strategyconfig.DefaultHoldNum, "보유 종목 수")
	backtestRunCmd.Flags().Float64Var(&backtestSP, "sp", strategyconfig.DefaultStopProfit, "익절 기준 (0.03 = 3%)")
	backtestRunCmd.Flags().Float64Var(&backtestFee, "fee", strategyconfig.DefaultFeeRate, "왕복 수수료율")
	backtestRunCmd.MarkFlagRequired("from")
	backtestRunCmd.MarkFlagRequired("to")

	backtestBatchCmd.Flags().StringVar(&batchFile, "file", "", "배치 YAML 파일 (필수)")
	backtestBatchCmd.Flags().StringVar(&batchOutput, "output", "", "엑셀 출력 경로 (기본: output_path 또는 BACKTEST_OUTPUT_DIR/batch_YYYYMMDD.xlsx)")
	backtestBatchCmd.MarkFlagRequired("file")
}

func runBacktest(cmd *cobra.Command, args []string) error {
	req, err := buildRequest(cmd)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if remote, log, ok, err := remoteClient(); err != nil {
		return err
	} else if ok {
		log.WithField("strategy", req.Strategy.Name).Info("Running backtest on remote host")
		resp, err := remote.Backtest(ctx, req)
		if err != nil {
			return fmt.Errorf("remote backtest: %w", err)
		}
		printResult(resp.Result)
		if resp.Cached {
			PrintInfo("cached result")
		}
		return resultError(resp.Result)
	}

	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	panel, err := a.loadPanel(ctx)
	if err != nil {
		return err
	}

	result := a.engine.Run(ctx, panel, req)
	a.saveRuns(ctx, result)
	printResult(result)

	return resultError(result)
}

func runBatch(cmd *cobra.Command, args []string) error {
	// 패널 로드 전에 배치 파일부터 검증
	batch, _, err := strategyconfig.LoadBatch(batchFile)
	if err != nil {
		return fmt.Errorf("load batch config: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if remote, log, ok, err := remoteClient(); err != nil {
		return err
	} else if ok {
		log.WithField("strategies", len(batch.Strategies)).Info("Running batch on remote host")
		resp, err := remote.Batch(ctx, *batch)
		if err != nil {
			return fmt.Errorf("remote batch: %w", err)
		}
		printBatch(resp.Results)
		if resp.OutputPath != "" {
			PrintInfo("remote workbook: " + resp.OutputPath)
		}
		return nil
	}

	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	panel, err := a.loadPanel(ctx)
	if err != nil {
		return err
	}

	start := time.Now()
	results := a.batch.Run(ctx, panel, batch.Requests())
	a.saveRuns(ctx, results...)
	printBatch(results)

	path := batchOutputPath(batchOutput, batch.OutputPath, a.cfg.Backtest.OutputDir, start)
	if err := report.WriteWorkbook(path, results); err != nil {
		return fmt.Errorf("write workbook: %w", err)
	}
	PrintSuccess(fmt.Sprintf("Workbook saved to %s (%.2fs)", path, time.Since(start).Seconds()))

	return nil
}

// buildRequest merges the strategy file, defaults and command-line overrides
func buildRequest(cmd *cobra.Command) (strategyconfig.BacktestRequest, error) {
	strategy := strategyconfig.Default()
	if backtestStrategy != "" {
		s, err := strategyconfig.LoadStrategy(backtestStrategy)
		if err != nil {
			return strategyconfig.BacktestRequest{}, fmt.Errorf("load strategy: %w", err)
		}
		strategy = *s
	}

	flags := cmd.Flags()
	if flags.Changed("hold") || backtestStrategy == "" {
		strategy.HoldNum = backtestHold
	}
	if flags.Changed("sp") || backtestStrategy == "" {
		strategy.StopProfit = backtestSP
	}
	if flags.Changed("fee") || backtestStrategy == "" {
		strategy.FeeRate = backtestFee
	}

	req := strategyconfig.BacktestRequest{
		Data:     strategyconfig.DataRange{StartDate: backtestFrom, EndDate: backtestTo},
		Strategy: strategy,
	}
	if err := strategyconfig.ValidateRequest(&req); err != nil {
		return strategyconfig.BacktestRequest{}, err
	}
	return req, nil
}

// remoteClient returns an API client when a remote host is configured
func remoteClient() (*api.Client, *logger.Logger, bool, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, nil, false, err
	}

	baseURL := backtestRemote
	if baseURL == "" {
		baseURL = cfg.Remote.BaseURL
	}
	if baseURL == "" {
		return nil, nil, false, nil
	}

	log := logger.New(cfg)
	return api.NewClient(baseURL, httputil.New(cfg, log)), log, true, nil
}

// batchOutputPath picks --output, then the file's output_path, then a dated default
func batchOutputPath(flag, fromFile, outputDir string, now time.Time) string {
	switch {
	case flag != "":
		return flag
	case fromFile != "":
		return fromFile
	default:
		return filepath.Join(outputDir, fmt.Sprintf("batch_%s.xlsx", now.Format("20060102")))
	}
}

func resultError(r *backtest.Result) error {
	if r == nil {
		return fmt.Errorf("empty result")
	}
	if !r.OK() {
		return fmt.Errorf("backtest %s failed: %s", r.Name, r.Error)
	}
	return nil
}

func printResult(r *backtest.Result) {
	if r == nil {
		PrintError("no result")
		return
	}

	m := r.Metrics
	PrintHeader("Backtest: "+r.Name,
		fmt.Sprintf("Period    : %s ~ %s", m.StartDate, m.EndDate),
		fmt.Sprintf("Config    : %s (panel %s)", r.ConfigHash, r.PanelVersion),
	)

	if !r.OK() {
		PrintError(r.Error)
		return
	}

	const w = 14
	fmt.Println("📊 Returns")
	PrintKeyValue("Final NAV", strconv.FormatFloat(m.FinalNAV, 'f', 4, 64), w)
	PrintKeyValue("Total", formatPercent(m.TotalReturn), w)
	PrintKeyValue("Annual", formatPercent(m.AnnualReturn), w)
	PrintKeyValue("Trading days", strconv.Itoa(len(r.Series)), w)
	fmt.Println()

	fmt.Println("⚠️  Risk")
	PrintKeyValue("Max drawdown", formatPercent(m.MaxDrawdown), w)
	PrintKeyValue("Volatility", formatPercent(m.Volatility), w)
	PrintKeyValue("Sharpe", strconv.FormatFloat(m.Sharpe, 'f', 2, 64), w)
	PrintKeyValue("Sortino", strconv.FormatFloat(m.Sortino, 'f', 2, 64), w)
	fmt.Println()

	fmt.Println("💼 Trading")
	PrintKeyValue("Win rate", fmt.Sprintf("%.1f%%", m.WinRate*100), w)
	PrintKeyValue("Trades", strconv.Itoa(m.TradeCount), w)
	PrintKeyValue("Avg hold days", strconv.FormatFloat(m.AvgHoldDays, 'f', 1, 64), w)

	if r.Filter != nil {
		fmt.Println()
		fmt.Println("🔍 Filters")
		for _, p := range r.Filter.Predicates {
			if p.Error != "" {
				PrintKeyValue(p.Expr, "skipped: "+p.Error, w)
				continue
			}
			PrintKeyValue(p.Expr, strconv.Itoa(p.Matched)+" rows", w)
		}
		if len(r.Filter.Relaxed) > 0 {
			PrintKeyValue("Relaxed days", strconv.Itoa(len(r.Filter.Relaxed)), w)
		}
	}
	if len(r.SkippedFactors) > 0 {
		PrintWarning("Skipped factors (column missing): " + fmt.Sprint(r.SkippedFactors))
	}
	for _, warn := range r.Warnings {
		PrintWarning(warn.Message)
	}
	PrintSeparator()
}

func printBatch(results []*backtest.Result) {
	PrintHeader(fmt.Sprintf("Batch: %d strategies", len(results)))

	columns := []string{"Strategy", "Total", "Annual", "MDD", "Sharpe", "Win", "Status"}
	widths := []int{24, 10, 10, 10, 8, 8, 20}
	PrintTableHeader(columns, widths)

	for _, r := range results {
		status := "ok"
		if !r.OK() {
			status = r.Error
		}
		m := r.Metrics
		PrintTableRow([]string{
			r.Name,
			formatPercent(m.TotalReturn),
			formatPercent(m.AnnualReturn),
			formatPercent(m.MaxDrawdown),
			strconv.FormatFloat(m.Sharpe, 'f', 2, 64),
			fmt.Sprintf("%.1f%%", m.WinRate*100),
			status,
		}, widths)
	}
	PrintSeparator()
}
