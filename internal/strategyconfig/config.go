package strategyconfig

import "strconv"

// Strategy는 하나의 백테스트 전략 설정
type Strategy struct {
	Name              string    `yaml:"name" json:"name,omitempty"`
	Description       string    `yaml:"description" json:"description,omitempty"`
	ExcludeConditions []string  `yaml:"exclude_conditions" json:"exclude_conditions"`
	ScoreFactors      []string  `yaml:"score_factors" json:"score_factors"`
	Weights           []float64 `yaml:"weights" json:"weights"`         // score_factors와 길이 동일
	ScoreModes        []string  `yaml:"score_modes" json:"score_modes"` // 비우면 전부 rank_desc
	HoldNum           int       `yaml:"hold_num" json:"hold_num"`       // > 0
	StopProfit        float64   `yaml:"stop_profit" json:"stop_profit"` // >= 0
	FeeRate           float64   `yaml:"fee_rate" json:"fee_rate"`       // >= 0
}

// DataRange is the inclusive backtest window (YYYY-MM-DD or YYYYMMDD)
type DataRange struct {
	StartDate string `yaml:"start_date" json:"start_date"`
	EndDate   string `yaml:"end_date" json:"end_date"`
}

// BacktestRequest pairs one strategy with a date range
type BacktestRequest struct {
	Data     DataRange `yaml:"data" json:"data"`
	Strategy Strategy  `yaml:"strategy" json:"strategy"`
}

// BatchConfig runs several strategies over one shared date range
type BatchConfig struct {
	Data       DataRange  `yaml:"data" json:"data"`
	Strategies []Strategy `yaml:"strategies" json:"strategies"`
	OutputPath string     `yaml:"output_path" json:"output_path,omitempty"`
}

// Requests expands the batch into one request per strategy, in order
func (b *BatchConfig) Requests() []BacktestRequest {
	out := make([]BacktestRequest, len(b.Strategies))
	for i, s := range b.Strategies {
		out[i] = BacktestRequest{Data: b.Data, Strategy: s}
	}
	return out
}

// Default values of a strategy
const (
	DefaultHoldNum    = 5
	DefaultStopProfit = 0.03
	DefaultFeeRate    = 0.002
)

// Default returns the standard low-premium strategy
func Default() Strategy {
	return Strategy{
		Name:              "default",
		ExcludeConditions: []string{},
		ScoreFactors:      []string{"bond_prem", "ytm", "turnover_5_avg"},
		Weights:           []float64{-10, 10, 5},
		HoldNum:           DefaultHoldNum,
		StopProfit:        DefaultStopProfit,
		FeeRate:           DefaultFeeRate,
	}
}

// DisplayName returns the name, or a label derived from position when unnamed
func (s Strategy) DisplayName(index int) string {
	if s.Name != "" {
		return s.Name
	}
	return "strategy_" + strconv.Itoa(index+1)
}
