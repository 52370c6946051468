package contracts

// Metrics is the performance summary returned to callers.
// Error is set instead of failing when the input is empty or malformed.
type Metrics struct {
	FinalNAV     float64             `json:"final_nav"`
	TotalReturn  float64             `json:"total_return"`
	AnnualReturn float64             `json:"annual_return"`
	MaxDrawdown  float64             `json:"max_drawdown"`
	Volatility   float64             `json:"volatility"`
	Sharpe       float64             `json:"sharpe"`
	Sortino      float64             `json:"sortino"`
	WinRate      float64             `json:"win_rate"`
	TradeCount   int                 `json:"trade_count"`
	AvgHoldDays  float64             `json:"avg_hold_days"`
	StartDate    string              `json:"start_date,omitempty"`
	EndDate      string              `json:"end_date,omitempty"`
	TotalDays    int                 `json:"total_days"`
	DailyReturns map[string]float64  `json:"daily_returns"`
	Positions    map[string][]string `json:"positions"`
	Trades       []Trade             `json:"trades"`
	Error        string              `json:"error,omitempty"`
}

// NeutralMetrics returns the zero-valued summary carrying err
func NeutralMetrics(err string) Metrics {
	return Metrics{
		FinalNAV:     1.0,
		DailyReturns: map[string]float64{},
		Positions:    map[string][]string{},
		Trades:       []Trade{},
		Error:        err,
	}
}

// OK reports whether the metrics were computed without error
func (m Metrics) OK() bool {
	return m.Error == ""
}

// Summary returns a copy without the per-date series and trades
func (m Metrics) Summary() Metrics {
	m.DailyReturns = nil
	m.Positions = nil
	m.Trades = nil
	return m
}
