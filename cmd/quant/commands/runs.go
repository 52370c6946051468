package commands

import (
	"context"
	"fmt"
	"strconv"

	"github.com/spf13/cobra"
)

// runsCmd lists stored backtest runs
var runsCmd = &cobra.Command{
	Use:   "runs",
	Short: "백테스트 실행 이력 조회",
	Long: `audit.backtest_runs에 저장된 최근 실행 이력을 보여줍니다.
DATABASE_URL이 필요합니다.

Example:
  go run ./cmd/quant runs
  go run ./cmd/quant runs --limit 100`,
	RunE: runListRuns,
}

var runsLimit int

func init() {
	rootCmd.AddCommand(runsCmd)
	runsCmd.Flags().IntVar(&runsLimit, "limit", 20, "조회 개수")
}

func runListRuns(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	if a.runs == nil {
		return fmt.Errorf("run history needs DATABASE_URL")
	}

	recs, err := a.runs.ListRuns(ctx, runsLimit)
	if err != nil {
		return fmt.Errorf("list runs: %w", err)
	}

	PrintHeader(fmt.Sprintf("Recent runs (%d)", len(recs)))
	columns := []string{"Created", "Strategy", "Period", "Total", "Sharpe", "Status"}
	widths := []int{16, 24, 23, 10, 8, 20}
	PrintTableHeader(columns, widths)
	for _, r := range recs {
		status := "ok"
		if r.Error != "" {
			status = r.Error
		}
		PrintTableRow([]string{
			r.CreatedAt.Format("2006-01-02 15:04"),
			r.Name,
			r.StartDate + "~" + r.EndDate,
			formatPercent(r.Metrics.TotalReturn),
			strconv.FormatFloat(r.Metrics.Sharpe, 'f', 2, 64),
			status,
		}, widths)
	}
	PrintSeparator()
	return nil
}
