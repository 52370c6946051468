package audit

import (
	"fmt"
	"math"
	"sort"
	"time"

	"gonum.org/v1/gonum/stat"

	"github.com/wonny/cbquant/internal/contracts"
	"github.com/wonny/cbquant/internal/s0_data"
)

// Evaluator summarizes a daily net return series
// ⭐ SSOT: 성과 지표 계산은 여기서만
type Evaluator struct {
	periodsPerYear float64
	riskFreeRate   float64 // 연율
}

// NewEvaluator creates a new evaluator; periodsPerYear is usually 252
func NewEvaluator(periodsPerYear int, riskFreeRate float64) *Evaluator {
	if periodsPerYear <= 0 {
		periodsPerYear = 252
	}
	return &Evaluator{
		periodsPerYear: float64(periodsPerYear),
		riskFreeRate:   riskFreeRate,
	}
}

type point struct {
	date     time.Time
	ret      float64
	holdings []string
}

// Evaluate computes the performance metrics.
// Empty or malformed input yields neutral metrics with Error set, never a panic.
func (e *Evaluator) Evaluate(series []contracts.DailyReturn, trades []contracts.Trade) contracts.Metrics {
	if len(series) == 0 {
		return contracts.NeutralMetrics("empty return series")
	}

	points := make([]point, 0, len(series))
	for _, d := range series {
		t, err := s0_data.ParseDate(d.Date)
		if err != nil {
			return contracts.NeutralMetrics(fmt.Sprintf("malformed date in return series: %v", err))
		}
		if math.IsNaN(d.Net) || math.IsInf(d.Net, 0) {
			return contracts.NeutralMetrics(fmt.Sprintf("non-finite return on %s", d.Date))
		}
		points = append(points, point{date: t, ret: d.Net, holdings: d.Holdings})
	}
	points = sortDedupe(points)

	returns := make([]float64, len(points))
	for i, p := range points {
		returns[i] = p.ret
	}

	m := contracts.Metrics{
		DailyReturns: make(map[string]float64, len(points)),
		Positions:    make(map[string][]string, len(points)),
		Trades:       trades,
		TradeCount:   len(returns),
		AvgHoldDays:  1,
	}
	if m.Trades == nil {
		m.Trades = []contracts.Trade{}
	}

	// 1. 순자산 / 수익률
	nav := 1.0
	for _, r := range returns {
		nav *= 1 + r
	}
	m.FinalNAV = nav
	m.TotalReturn = nav - 1

	first, last := points[0].date, points[len(points)-1].date
	m.TotalDays = int(last.Sub(first).Hours() / 24)
	if m.TotalDays >= 1 {
		m.AnnualReturn = math.Pow(nav, 365/float64(m.TotalDays)) - 1
	}
	m.StartDate = first.Format("2006-01-02")
	m.EndDate = last.Format("2006-01-02")

	// 2. 리스크 지표
	m.MaxDrawdown = maxDrawdown(returns)
	m.Volatility = e.volatility(returns)
	m.Sharpe = e.sharpe(returns)
	m.Sortino = e.sortino(returns)
	m.WinRate = winRate(returns)

	for _, p := range points {
		key := p.date.Format("2006-01-02")
		m.DailyReturns[key] = p.ret
		holdings := p.holdings
		if holdings == nil {
			holdings = []string{}
		}
		m.Positions[key] = holdings
	}

	sanitize(&m)
	return m
}

// sortDedupe orders points by date; a repeated date keeps its last value
func sortDedupe(points []point) []point {
	sort.SliceStable(points, func(a, b int) bool {
		return points[a].date.Before(points[b].date)
	})
	out := points[:0]
	for _, p := range points {
		if n := len(out); n > 0 && out[n-1].date.Equal(p.date) {
			out[n-1] = p
			continue
		}
		out = append(out, p)
	}
	return out
}

// maxDrawdown is min(nav / running max − 1); the running max starts at the first nav
func maxDrawdown(returns []float64) float64 {
	nav, peak, worst := 1.0, math.Inf(-1), 0.0
	for _, r := range returns {
		nav *= 1 + r
		peak = math.Max(peak, nav)
		worst = math.Min(worst, nav/peak-1)
	}
	return worst
}

// volatility is the annualized sample std
func (e *Evaluator) volatility(returns []float64) float64 {
	if len(returns) < 2 {
		return 0
	}
	return stat.StdDev(returns, nil) * math.Sqrt(e.periodsPerYear)
}

// sharpe is the annualized mean excess return over its sample std
func (e *Evaluator) sharpe(returns []float64) float64 {
	if len(returns) < 2 {
		return 0
	}
	excess := e.excess(returns)
	std := stat.StdDev(excess, nil)
	if std == 0 {
		return 0
	}
	return stat.Mean(excess, nil) / std * math.Sqrt(e.periodsPerYear)
}

// sortino divides the mean excess return by the downside deviation over all observations
func (e *Evaluator) sortino(returns []float64) float64 {
	excess := e.excess(returns)
	var downside float64
	for _, r := range excess {
		if r < 0 {
			downside += r * r
		}
	}
	downside = math.Sqrt(downside / float64(len(excess)))
	if downside == 0 {
		return 0
	}
	return stat.Mean(excess, nil) / downside * math.Sqrt(e.periodsPerYear)
}

func (e *Evaluator) excess(returns []float64) []float64 {
	rf := e.riskFreeRate / e.periodsPerYear
	out := make([]float64, len(returns))
	for i, r := range returns {
		out[i] = r - rf
	}
	return out
}

func winRate(returns []float64) float64 {
	wins := 0
	for _, r := range returns {
		if r > 0 {
			wins++
		}
	}
	return float64(wins) / float64(len(returns))
}

// sanitize replaces NaN/Inf in the scalar metrics with 0
func sanitize(m *contracts.Metrics) {
	for _, v := range []*float64{
		&m.FinalNAV, &m.TotalReturn, &m.AnnualReturn, &m.MaxDrawdown,
		&m.Volatility, &m.Sharpe, &m.Sortino, &m.WinRate,
	} {
		if math.IsNaN(*v) || math.IsInf(*v, 0) {
			*v = 0
		}
	}
}
