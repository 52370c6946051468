package report

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/xuri/excelize/v2"

	"github.com/wonny/cbquant/internal/backtest"
	"github.com/wonny/cbquant/internal/s0_data"
)

// SummarySheet is the name of the overview sheet
const SummarySheet = "Summary"

var summaryHeader = []interface{}{
	"name", "start_date", "end_date", "hold_num", "stop_profit", "fee_rate",
	"exclude_conditions", "score_factors", "weights",
	"final_nav", "total_return", "annual_return", "max_drawdown", "volatility",
	"sharpe", "sortino", "win_rate", "trade_count", "avg_hold_days", "total_days",
	"config_hash", "error",
}

var seriesHeader = []interface{}{"date", "raw", "cost", "net", "nav", "holdings"}

// WriteWorkbook exports batch results: one Summary row per run plus one sheet per run
func WriteWorkbook(path string, results []*backtest.Result) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", SummarySheet); err != nil {
		return fmt.Errorf("rename summary sheet: %w", err)
	}
	bold, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return fmt.Errorf("create header style: %w", err)
	}

	if err := writeRow(f, SummarySheet, 1, summaryHeader); err != nil {
		return err
	}
	if err := f.SetRowStyle(SummarySheet, 1, 1, bold); err != nil {
		return fmt.Errorf("style summary header: %w", err)
	}

	used := map[string]bool{strings.ToLower(SummarySheet): true}
	for i, r := range results {
		if err := writeRow(f, SummarySheet, i+2, summaryRow(r)); err != nil {
			return err
		}

		sheet := sheetName(r.Name, i, used)
		if _, err := f.NewSheet(sheet); err != nil {
			return fmt.Errorf("create sheet %s: %w", sheet, err)
		}
		if err := writeSeries(f, sheet, r); err != nil {
			return err
		}
		if err := f.SetRowStyle(sheet, 1, 1, bold); err != nil {
			return fmt.Errorf("style sheet %s header: %w", sheet, err)
		}
	}

	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create output dir: %w", err)
		}
	}
	if err := f.SaveAs(path); err != nil {
		return fmt.Errorf("save workbook %s: %w", path, err)
	}

	return nil
}

func summaryRow(r *backtest.Result) []interface{} {
	s := r.Request.Strategy
	m := r.Metrics

	weights := make([]string, len(s.Weights))
	for i, w := range s.Weights {
		weights[i] = strconv.FormatFloat(w, 'g', -1, 64)
	}

	return []interface{}{
		r.Name, r.Request.Data.StartDate, r.Request.Data.EndDate,
		s.HoldNum, s.StopProfit, s.FeeRate,
		strings.Join(s.ExcludeConditions, "; "),
		strings.Join(s.ScoreFactors, ", "),
		strings.Join(weights, ", "),
		m.FinalNAV, m.TotalReturn, m.AnnualReturn, m.MaxDrawdown, m.Volatility,
		m.Sharpe, m.Sortino, m.WinRate, m.TradeCount, m.AvgHoldDays, m.TotalDays,
		r.ConfigHash, r.Error,
	}
}

func writeSeries(f *excelize.File, sheet string, r *backtest.Result) error {
	if err := writeRow(f, sheet, 1, seriesHeader); err != nil {
		return err
	}
	nav := 1.0
	for i, d := range r.Series {
		nav *= 1 + d.Net
		row := []interface{}{
			s0_data.ISODate(d.Date), d.Raw, d.Cost, d.Net, nav,
			strings.Join(d.Holdings, ","),
		}
		if err := writeRow(f, sheet, i+2, row); err != nil {
			return err
		}
	}
	return nil
}

func writeRow(f *excelize.File, sheet string, row int, values []interface{}) error {
	cell, err := excelize.CoordinatesToCellName(1, row)
	if err != nil {
		return err
	}
	if err := f.SetSheetRow(sheet, cell, &values); err != nil {
		return fmt.Errorf("write %s row %d: %w", sheet, row, err)
	}
	return nil
}

// sheetName derives a unique, Excel-safe sheet name (max 31 chars).
// Excel compares sheet names case-insensitively.
func sheetName(name string, index int, used map[string]bool) string {
	if name == "" {
		name = "strategy_" + strconv.Itoa(index+1)
	}
	name = strings.Map(func(r rune) rune {
		switch r {
		case ':', '\\', '/', '?', '*', '[', ']':
			return '_'
		}
		return r
	}, name)
	name = truncateRunes(name, 31)

	base, candidate := name, name
	for n := 2; used[strings.ToLower(candidate)]; n++ {
		suffix := "_" + strconv.Itoa(n)
		candidate = truncateRunes(base, 31-len(suffix)) + suffix
	}
	used[strings.ToLower(candidate)] = true
	return candidate
}

func truncateRunes(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
