package commands

import (
	"context"
	"fmt"
	"sort"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/wonny/cbquant/internal/contracts"
	"github.com/wonny/cbquant/internal/s0_data"
	"github.com/wonny/cbquant/internal/s0_data/quality"
)

// dataCheckCmd represents the data check command
var dataCheckCmd = &cobra.Command{
	Use:   "data-check",
	Short: "패널 데이터 품질 확인",
	Long: `설정된 소스(DATA_SOURCE)에서 패널을 읽어 품질을 확인합니다.

확인 항목:
- 필수 컬럼 커버리지 (open/high/low/close/pre_close/pct_chg/turnover/amount)
- OHLC 정합성 (high/low 범위)
- 날짜별 종목 수 (얇은 날짜)
- 가중 품질 점수

Example:
  go run ./cmd/quant data-check
  go run ./cmd/quant data-check --save --min-score 0.95`,
	RunE: runDataCheck,
}

var (
	dataCheckSave     bool
	dataCheckMinScore float64
	dataCheckMinDate  int
)

func init() {
	rootCmd.AddCommand(dataCheckCmd)

	defaults := quality.DefaultConfig()
	dataCheckCmd.Flags().BoolVar(&dataCheckSave, "save", false, "스냅샷을 DB에 저장 (DATABASE_URL 필요)")
	dataCheckCmd.Flags().Float64Var(&dataCheckMinScore, "min-score", defaults.MinScore, "통과 기준 점수")
	dataCheckCmd.Flags().IntVar(&dataCheckMinDate, "min-per-date", defaults.MinInstrumentsPerDate, "날짜별 최소 종목 수")
}

func runDataCheck(cmd *cobra.Command, args []string) error {
	fmt.Println("=== cbquant Data Check ===")

	ctx := context.Background()
	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	source, err := s0_data.NewSource(a.cfg, a.db)
	if err != nil {
		return fmt.Errorf("create panel source: %w", err)
	}
	panel, err := s0_data.LoadWithLog(ctx, source, a.log)
	if err != nil {
		return err
	}

	validator := quality.NewValidator(quality.Config{
		MinScore:              dataCheckMinScore,
		MinInstrumentsPerDate: dataCheckMinDate,
	})
	snapshot := validator.Check(panel)
	printSnapshot(source.Name(), panel, snapshot)

	if dataCheckSave {
		if a.quality == nil {
			return fmt.Errorf("--save needs DATABASE_URL")
		}
		if err := a.quality.SaveSnapshot(ctx, snapshot); err != nil {
			return fmt.Errorf("save snapshot: %w", err)
		}
		PrintSuccess("Snapshot saved")
	}

	if !snapshot.Passed {
		return fmt.Errorf("quality score %.3f below %.3f", snapshot.QualityScore, dataCheckMinScore)
	}
	return nil
}

func printSnapshot(source string, panel *s0_data.Panel, s *contracts.DataQualitySnapshot) {
	const w = 16
	PrintHeader("📊 Panel",
		"Source    : "+source,
		"Version   : "+s.PanelVersion,
	)
	PrintKeyValue("Period", s.StartDate+" ~ "+s.EndDate, w)
	PrintKeyValue("Rows", strconv.Itoa(s.TotalRows), w)
	PrintKeyValue("Instruments", strconv.Itoa(s.Instruments), w)
	PrintKeyValue("Dates", strconv.Itoa(s.Dates), w)
	PrintKeyValue("Numeric columns", strconv.Itoa(len(panel.NumericFields())), w)
	PrintKeyValue("Text columns", strconv.Itoa(len(panel.TextFields())), w)
	fmt.Println()

	fmt.Println("📋 Coverage")
	fields := make([]string, 0, len(s.Coverage))
	for f := range s.Coverage {
		fields = append(fields, f)
	}
	sort.Strings(fields)
	for _, f := range fields {
		PrintKeyValue(f, fmt.Sprintf("%.1f%%", s.Coverage[f]*100), w)
	}
	fmt.Println()

	fmt.Println("🔍 Consistency")
	PrintKeyValue("OHLC violations", strconv.Itoa(s.OHLCViolations), w)
	PrintKeyValue("Min per date", strconv.Itoa(s.MinPerDate), w)
	PrintKeyValue("Thin dates", strconv.Itoa(len(s.ThinDates)), w)
	if n := len(s.ThinDates); n > 0 && n <= 10 {
		PrintList(s.ThinDates)
	}
	fmt.Println()

	PrintSeparator()
	score := fmt.Sprintf("Quality score %.3f", s.QualityScore)
	if s.Passed {
		PrintSuccess(score + " (passed)")
	} else {
		PrintError(score + " (failed)")
	}
}
