package backtest

import (
	"context"
	"encoding/json"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wonny/cbquant/internal/contracts"
	"github.com/wonny/cbquant/internal/s0_data"
	"github.com/wonny/cbquant/internal/strategyconfig"
	"github.com/wonny/cbquant/pkg/logger"
)

type row struct {
	code, date                           string
	open, high, low, close, pct, premium float64
}

func buildPanel(t *testing.T, rows []row) *s0_data.Panel {
	t.Helper()
	tbl := s0_data.Table{
		Numeric: map[string][]float64{"quality": nil},
		Text:    map[string][]string{s0_data.FieldCallStatus: nil},
	}
	for _, f := range s0_data.RequiredNumeric {
		tbl.Numeric[f] = nil
	}
	add := func(name string, v float64) {
		tbl.Numeric[name] = append(tbl.Numeric[name], v)
	}
	for _, r := range rows {
		tbl.Codes = append(tbl.Codes, r.code)
		tbl.Dates = append(tbl.Dates, r.date)
		add(s0_data.FieldOpen, r.open)
		add(s0_data.FieldHigh, r.high)
		add(s0_data.FieldLow, r.low)
		add(s0_data.FieldClose, r.close)
		add(s0_data.FieldPreClose, r.close/(1+r.pct))
		add(s0_data.FieldPctChg, r.pct)
		add(s0_data.FieldTurnover, 1)
		add(s0_data.FieldAmount, 1000)
		add("quality", r.premium)
		tbl.Text[s0_data.FieldCallStatus] = append(tbl.Text[s0_data.FieldCallStatus], "")
	}
	p, err := s0_data.Load(tbl)
	require.NoError(t, err)
	return p
}

// scenarioPanel: A > B > C on quality every day.
// D2: A gaps open to +4%, B trades through +3% intraday after opening +1%.
func scenarioPanel(t *testing.T) *s0_data.Panel {
	return buildPanel(t, []row{
		{"A", "20240102", 100, 100, 100, 100, 0, 30},
		{"B", "20240102", 100, 100, 100, 100, 0, 20},
		{"C", "20240102", 100, 100, 100, 100, 0, 10},
		{"A", "20240103", 104, 105, 103, 104.5, 0.045, 30},
		{"B", "20240103", 101, 103.5, 100, 102, 0.02, 20},
		{"C", "20240103", 100, 100.5, 99, 100, 0, 10},
		{"A", "20240104", 104, 106, 103, 105, 0.0048, 30},
		{"B", "20240104", 102, 103, 101, 101, -0.0098, 20},
		{"C", "20240104", 100, 101, 99, 100.5, 0.005, 10},
	})
}

func scenarioRequest() strategyconfig.BacktestRequest {
	return strategyconfig.BacktestRequest{
		Data: strategyconfig.DataRange{StartDate: "2024-01-02", EndDate: "2024-01-03"},
		Strategy: strategyconfig.Strategy{
			Name:              "scenario",
			ExcludeConditions: []string{},
			ScoreFactors:      []string{"quality"},
			Weights:           []float64{1},
			HoldNum:           2,
			StopProfit:        0.03,
			FeeRate:           0.002,
		},
	}
}

func TestRealize(t *testing.T) {
	tests := []struct {
		name   string
		close  float64
		next   NextDay
		want   float64
		fill   contracts.Fill
		wantOK bool
	}{
		{
			name:   "gap open above threshold",
			close:  100,
			next:   NextDay{Open: 104, OpenOK: true, High: 110, HighOK: true, PctChg: 0.08, PctChgOK: true},
			want:   0.04,
			fill:   contracts.FillGapOpen,
			wantOK: true,
		},
		{
			name:   "intraday stop profit",
			close:  100,
			next:   NextDay{Open: 101, OpenOK: true, High: 103.5, HighOK: true, PctChg: 0.01, PctChgOK: true},
			want:   0.03,
			fill:   contracts.FillStopProfit,
			wantOK: true,
		},
		{
			name:   "below threshold uses pct change",
			close:  100,
			next:   NextDay{Open: 99, OpenOK: true, High: 102.9, HighOK: true, PctChg: -0.02, PctChgOK: true},
			want:   -0.02,
			fill:   contracts.FillClose,
			wantOK: true,
		},
		{
			name:   "missing next high falls back to pct change",
			close:  100,
			next:   NextDay{Open: 100, OpenOK: true, PctChg: 0.01, PctChgOK: true},
			want:   0.01,
			fill:   contracts.FillClose,
			wantOK: true,
		},
		{
			name:   "stop profit without pct change",
			close:  100,
			next:   NextDay{High: 104, HighOK: true},
			want:   0.03,
			fill:   contracts.FillStopProfit,
			wantOK: true,
		},
		{
			name:   "nothing realizable",
			close:  100,
			next:   NextDay{Open: 100, OpenOK: true, High: 101, HighOK: true},
			wantOK: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, fill, ok := Realize(tt.close, true, tt.next, 0.03)
			assert.Equal(t, tt.wantOK, ok)
			if tt.wantOK {
				assert.InDelta(t, tt.want, got, 1e-12)
				assert.Equal(t, tt.fill, fill)
			}
		})
	}
}

func TestRealize_StopProfitIsExact(t *testing.T) {
	sp := 0.037
	got, fill, ok := Realize(97.3, true, NextDay{Open: 97, OpenOK: true, High: 120, HighOK: true}, sp)
	require.True(t, ok)
	assert.Equal(t, contracts.FillStopProfit, fill)
	assert.Equal(t, sp, got)
}

func TestCostModel(t *testing.T) {
	m := CostModel{FeeRate: 0.002}

	costs := m.Costs([][]string{
		{"A", "B"},
		{"A", "B"},
		{"A", "C"},
		{"D", "E"},
		{"D"},
	})

	require.Len(t, costs, 5)
	assert.Equal(t, 0.001, costs[0])
	assert.Equal(t, 0.0, costs[1])
	assert.InDelta(t, 2*0.002/4, costs[2], 1e-15)
	assert.InDelta(t, 4*0.002/4, costs[3], 1e-15)
	assert.InDelta(t, 1*0.002/3, costs[4], 1e-15)
	for _, c := range costs {
		assert.GreaterOrEqual(t, c, 0.0)
	}
}

func TestCostModel_ZeroDenominator(t *testing.T) {
	costs := CostModel{FeeRate: 0.01}.Costs([][]string{{"A"}, {}, {}})
	assert.Equal(t, []float64{0.005, 0.01, 0}, costs)
}

func TestNetReturn(t *testing.T) {
	assert.InDelta(t, 0.033965, NetReturn(0.035, 0.001), 1e-12)
	assert.Equal(t, 0.0, NetReturn(0, 0))
}

func TestSimulate(t *testing.T) {
	p := scenarioPanel(t)
	ranking := contracts.NewRanking(p.Len())
	// 행 순서: A(0..2), B(3..5), C(6..8)
	ranks := map[string]int{"A": 1, "B": 2, "C": 3}
	for i := 0; i < p.Len(); i++ {
		ranking.Rank[i] = ranks[p.Code(i)]
		ranking.Score[i] = float64(ranks[p.Code(i)])
	}

	sim := NewSimulator(logger.Nop()).Simulate(p, ranking, 2, 0.03)

	assert.Equal(t, []string{"20240102", "20240103", "20240104"}, sim.Dates)
	assert.Equal(t, []string{"A", "B"}, sim.Holdings[0])
	assert.InDelta(t, 0.035, sim.Raw[0], 1e-12)
	assert.InDelta(t, (0.0048-0.0098)/2, sim.Raw[1], 1e-12)
	assert.Equal(t, 0.0, sim.Raw[2])
	assert.Equal(t, 2, sim.Dropped)

	require.Len(t, sim.Trades, 4)
	assert.Equal(t, contracts.Trade{
		Code: "A", EntryDate: "2024-01-02", ExitDate: "2024-01-03",
		Rank: 1, Return: sim.Trades[0].Return, Fill: contracts.FillGapOpen,
	}, sim.Trades[0])
	assert.InDelta(t, 0.04, sim.Trades[0].Return, 1e-12)
}

func TestSimulate_NoSelectionOmitsDate(t *testing.T) {
	p := scenarioPanel(t)
	ranking := contracts.NewRanking(p.Len())
	// 2024-01-03 행만 선택
	for _, r := range p.RowsOn("20240103") {
		ranking.Rank[r] = 1
	}

	sim := NewSimulator(logger.Nop()).Simulate(p, ranking, 5, 0.03)

	assert.Equal(t, []string{"20240103"}, sim.Dates)
	assert.Equal(t, []string{"A", "B", "C"}, sim.Holdings[0])
}

func TestEngine_Scenario(t *testing.T) {
	e := NewDefaultEngine(252, 0, logger.Nop())
	p := scenarioPanel(t)

	result := e.Run(context.Background(), p, scenarioRequest())
	require.True(t, result.OK(), result.Error)

	require.Len(t, result.Series, 2)
	first := result.Series[0]
	assert.Equal(t, "20240102", first.Date)
	assert.Equal(t, []string{"A", "B"}, first.Holdings)
	assert.InDelta(t, 0.035, first.Raw, 1e-12)
	assert.InDelta(t, 0.001, first.Cost, 1e-15)
	assert.InDelta(t, 0.033965, first.Net, 1e-12)

	// 마지막 날은 다음 관측이 없어 수익 0, 보유 변화가 없어 비용 0
	assert.Equal(t, 0.0, result.Series[1].Net)

	assert.Equal(t, 2, result.Metrics.TradeCount)
	assert.InDelta(t, 1.033965, result.Metrics.FinalNAV, 1e-12)
	assert.Equal(t, "2024-01-02", result.Metrics.StartDate)
	assert.NotEmpty(t, result.ConfigHash)
	assert.Equal(t, p.Version(), result.PanelVersion)
}

func TestEngine_Idempotent(t *testing.T) {
	e := NewDefaultEngine(252, 0, logger.Nop())
	p := scenarioPanel(t)
	req := scenarioRequest()
	req.Data.EndDate = "2024-01-04"

	first := e.Run(context.Background(), p, req)
	second := e.Run(context.Background(), p, req)

	a, err := json.Marshal(first.Series)
	require.NoError(t, err)
	b, err := json.Marshal(second.Series)
	require.NoError(t, err)
	assert.Equal(t, string(a), string(b))
	assert.Equal(t, first.ConfigHash, second.ConfigHash)
	assert.NotEqual(t, first.ID, second.ID)
}

func TestEngine_Errors(t *testing.T) {
	e := NewDefaultEngine(252, 0, logger.Nop())
	p := scenarioPanel(t)

	tests := []struct {
		name   string
		mutate func(*strategyconfig.BacktestRequest)
	}{
		{"invalid hold_num", func(r *strategyconfig.BacktestRequest) { r.Strategy.HoldNum = 0 }},
		{"range without data", func(r *strategyconfig.BacktestRequest) {
			r.Data = strategyconfig.DataRange{StartDate: "2023-01-01", EndDate: "2023-12-31"}
		}},
		{"bad score mode", func(r *strategyconfig.BacktestRequest) { r.Strategy.ScoreModes = []string{"median"} }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := scenarioRequest()
			tt.mutate(&req)

			result := e.Run(context.Background(), p, req)
			assert.False(t, result.OK())
			assert.Equal(t, result.Error, result.Metrics.Error)
			assert.Equal(t, 1.0, result.Metrics.FinalNAV)
			assert.Empty(t, result.Series)
		})
	}
}

func TestEngine_CancelledContext(t *testing.T) {
	e := NewDefaultEngine(252, 0, logger.Nop())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	result := e.Run(ctx, scenarioPanel(t), scenarioRequest())
	assert.False(t, result.OK())
	assert.Contains(t, result.Error, "canceled")
}

func TestEngine_PredicateErrorDoesNotAbort(t *testing.T) {
	e := NewDefaultEngine(252, 0, logger.Nop())
	req := scenarioRequest()
	req.Strategy.ExcludeConditions = []string{"no_such_field > 1", "quality < 15"}

	result := e.Run(context.Background(), scenarioPanel(t), req)
	require.True(t, result.OK(), result.Error)

	require.NotNil(t, result.Filter)
	require.Len(t, result.Filter.PredicateErrors(), 1)
	// C는 제외되어도 A, B로 hold_num=2를 채운다
	assert.Equal(t, []string{"A", "B"}, result.Series[0].Holdings)
}

func TestEngine_Prepare(t *testing.T) {
	e := NewDefaultEngine(252, 0, logger.Nop())
	p := scenarioPanel(t)

	prepared, err := e.Prepare(p)
	require.NoError(t, err)

	assert.True(t, prepared.HasNumeric("amplitude"))
	assert.True(t, prepared.HasNumeric("quality"))
	assert.Equal(t, p.Version(), prepared.Version())
	assert.False(t, p.HasNumeric("amplitude"), "source panel must not change")
}

func TestRecord(t *testing.T) {
	e := NewDefaultEngine(252, 0, logger.Nop())
	result := e.Run(context.Background(), scenarioPanel(t), scenarioRequest())

	rec := result.Record()
	assert.Equal(t, result.ID, rec.ID)
	assert.Equal(t, "scenario", rec.Name)
	assert.Equal(t, "2024-01-02", rec.StartDate)
	assert.True(t, json.Valid(rec.Strategy))
	assert.False(t, math.IsNaN(rec.Metrics.Sharpe))
}

func TestBatchRunner_KeepsOrder(t *testing.T) {
	e := NewDefaultEngine(252, 0, logger.Nop())
	p := scenarioPanel(t)

	reqs := make([]strategyconfig.BacktestRequest, 0, 4)
	for _, hold := range []int{1, 2, 0, 3} {
		req := scenarioRequest()
		req.Strategy.Name = ""
		req.Strategy.HoldNum = hold
		reqs = append(reqs, req)
	}

	results := NewBatchRunner(e, 2, logger.Nop()).Run(context.Background(), p, reqs)

	require.Len(t, results, 4)
	for i, r := range results {
		assert.Equal(t, reqs[i].Strategy.HoldNum, r.Request.Strategy.HoldNum)
		assert.Equal(t, reqs[i].Strategy.DisplayName(i), r.Name)
	}
	assert.True(t, results[0].OK())
	assert.True(t, results[1].OK())
	assert.False(t, results[2].OK())
	assert.True(t, results[3].OK())

	// hold 1: A 갭 상승만 보유
	assert.InDelta(t, NetReturn(0.04, 0.001), results[0].Series[0].Net, 1e-12)
	assert.Equal(t, []string{"A", "B", "C"}, results[3].Series[0].Holdings)
}
