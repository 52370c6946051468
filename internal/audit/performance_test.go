package audit

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wonny/cbquant/internal/contracts"
)

func series(points ...interface{}) []contracts.DailyReturn {
	out := make([]contracts.DailyReturn, 0, len(points)/2)
	for i := 0; i+1 < len(points); i += 2 {
		out = append(out, contracts.DailyReturn{
			Date: points[i].(string),
			Net:  points[i+1].(float64),
		})
	}
	return out
}

func TestEvaluate_Basic(t *testing.T) {
	e := NewEvaluator(252, 0)

	m := e.Evaluate(series(
		"20240102", 0.10,
		"20240103", -0.05,
		"20240104", 0.02,
	), nil)
	require.True(t, m.OK(), m.Error)

	nav := 1.10 * 0.95 * 1.02
	assert.InDelta(t, nav, m.FinalNAV, 1e-12)
	assert.InDelta(t, nav-1, m.TotalReturn, 1e-12)
	assert.Equal(t, 2, m.TotalDays)
	assert.InEpsilon(t, math.Pow(nav, 365.0/2)-1, m.AnnualReturn, 1e-12)
	assert.InDelta(t, 0.95-1, m.MaxDrawdown, 1e-12)
	assert.InDelta(t, 2.0/3, m.WinRate, 1e-12)
	assert.Equal(t, 3, m.TradeCount)
	assert.Equal(t, 1.0, m.AvgHoldDays)
	assert.Equal(t, "2024-01-02", m.StartDate)
	assert.Equal(t, "2024-01-04", m.EndDate)
	assert.Len(t, m.DailyReturns, 3)
	assert.InDelta(t, -0.05, m.DailyReturns["2024-01-03"], 1e-12)
	assert.NotNil(t, m.Trades)
}

func TestEvaluate_RiskRatios(t *testing.T) {
	e := NewEvaluator(252, 0)
	r := []float64{0.01, -0.02, 0.03, 0.0}

	m := e.Evaluate(series(
		"20240102", r[0],
		"20240103", r[1],
		"20240104", r[2],
		"20240105", r[3],
	), nil)
	require.True(t, m.OK())

	mean := 0.02 / 4
	var ss float64
	for _, v := range r {
		ss += (v - mean) * (v - mean)
	}
	std := math.Sqrt(ss / 3)
	downside := math.Sqrt(0.02 * 0.02 / 4)

	assert.InDelta(t, std*math.Sqrt(252), m.Volatility, 1e-12)
	assert.InDelta(t, mean/std*math.Sqrt(252), m.Sharpe, 1e-9)
	assert.InDelta(t, mean/downside*math.Sqrt(252), m.Sortino, 1e-9)
}

func TestEvaluate_RiskFreeLowersSharpe(t *testing.T) {
	in := series("20240102", 0.01, "20240103", 0.02, "20240104", -0.005)

	base := NewEvaluator(252, 0).Evaluate(in, nil)
	withRf := NewEvaluator(252, 0.03).Evaluate(in, nil)

	assert.Less(t, withRf.Sharpe, base.Sharpe)
	assert.InDelta(t, base.Volatility, withRf.Volatility, 1e-12)
}

func TestEvaluate_DrawdownStartsAtFirstNAV(t *testing.T) {
	// 첫날 손실은 낙폭에 포함되지 않는다 (running max가 첫 NAV에서 시작)
	m := NewEvaluator(252, 0).Evaluate(series(
		"20240102", -0.10,
		"20240103", 0.05,
	), nil)

	assert.Equal(t, 0.0, m.MaxDrawdown)
}

func TestEvaluate_UnsortedAndDuplicateDates(t *testing.T) {
	m := NewEvaluator(252, 0).Evaluate(series(
		"20240104", 0.02,
		"2024-01-02", 0.01,
		"20240102", 0.03,
	), nil)
	require.True(t, m.OK())

	assert.Equal(t, 2, m.TradeCount)
	assert.InDelta(t, 0.03, m.DailyReturns["2024-01-02"], 1e-12)
	assert.InDelta(t, 1.03*1.02, m.FinalNAV, 1e-12)
	assert.Equal(t, "2024-01-02", m.StartDate)
}

func TestEvaluate_SingleObservation(t *testing.T) {
	m := NewEvaluator(252, 0).Evaluate(series("20240102", 0.01), nil)
	require.True(t, m.OK())

	assert.Equal(t, 0, m.TotalDays)
	assert.Equal(t, 0.0, m.AnnualReturn)
	assert.Equal(t, 0.0, m.Volatility)
	assert.Equal(t, 0.0, m.Sharpe)
	assert.InDelta(t, 1.01, m.FinalNAV, 1e-12)
}

func TestEvaluate_Errors(t *testing.T) {
	tests := []struct {
		name  string
		input []contracts.DailyReturn
	}{
		{"empty", nil},
		{"bad date", series("2024-13-45", 0.01)},
		{"nan return", series("20240102", math.NaN())},
		{"inf return", series("20240102", math.Inf(1))},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := NewEvaluator(252, 0).Evaluate(tt.input, nil)
			assert.False(t, m.OK())
			assert.Equal(t, 1.0, m.FinalNAV)
			assert.Equal(t, 0, m.TradeCount)
			assert.NotNil(t, m.DailyReturns)
		})
	}
}

func TestEvaluate_PositionsAndTrades(t *testing.T) {
	in := []contracts.DailyReturn{
		{Date: "20240102", Net: 0.01, Holdings: []string{"A", "B"}},
		{Date: "20240103", Net: 0.00},
	}
	trades := []contracts.Trade{{Code: "A", EntryDate: "2024-01-02", ExitDate: "2024-01-03", Rank: 1, Return: 0.01, Fill: contracts.FillClose}}

	m := NewEvaluator(0, 0).Evaluate(in, trades)

	assert.Equal(t, []string{"A", "B"}, m.Positions["2024-01-02"])
	assert.Equal(t, []string{}, m.Positions["2024-01-03"])
	assert.Equal(t, trades, m.Trades)
	assert.Equal(t, 0.5, m.WinRate)
}
