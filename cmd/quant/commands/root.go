package commands

import (
	"github.com/spf13/cobra"
)

var (
	// Global flags
	configFile string
	verbose    bool
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "quant",
	Short: "cbquant - 전환사채 횡단면 랭킹 백테스터",
	Long: `cbquant Unified CLI

전환사채(CB) 일별 패널을 읽어 팩터 계산 → 제외 조건 → 가중 랭킹 →
익일 익절 시뮬레이션 → 수수료 → 성과 평가까지 한 번에 실행합니다.

Usage:
  go run ./cmd/quant [command]

Examples:
  go run ./cmd/quant backtest run --strategy config/low_premium.yaml --from 2023-01-01 --to 2023-12-31
  go run ./cmd/quant backtest batch --file config/batch.yaml
  go run ./cmd/quant data-check
  go run ./cmd/quant api
  go run ./cmd/quant scheduler start`,
	SilenceUsage: true,
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	// Global flags
	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", "config file (default is .env)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")
}
