package s1_factors

import (
	"fmt"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wonny/cbquant/internal/s0_data"
	"github.com/wonny/cbquant/pkg/logger"
)

type bar struct {
	open, high, low, close, preClose, pctChg, turnover float64
}

// synthTable builds days of bars for each code; bars are generated by fn
func synthTable(codes []string, days int, fn func(c, d int) bar) s0_data.Table {
	tbl := s0_data.Table{
		Numeric: map[string][]float64{},
		Text:    map[string][]string{s0_data.FieldCallStatus: {}},
	}
	for _, f := range s0_data.RequiredNumeric {
		tbl.Numeric[f] = nil
	}
	for c, code := range codes {
		for d := 0; d < days; d++ {
			b := fn(c, d)
			tbl.Codes = append(tbl.Codes, code)
			tbl.Dates = append(tbl.Dates, fmt.Sprintf("2024%02d%02d", 1+d/28, 1+d%28))
			tbl.Numeric[s0_data.FieldOpen] = append(tbl.Numeric[s0_data.FieldOpen], b.open)
			tbl.Numeric[s0_data.FieldHigh] = append(tbl.Numeric[s0_data.FieldHigh], b.high)
			tbl.Numeric[s0_data.FieldLow] = append(tbl.Numeric[s0_data.FieldLow], b.low)
			tbl.Numeric[s0_data.FieldClose] = append(tbl.Numeric[s0_data.FieldClose], b.close)
			tbl.Numeric[s0_data.FieldPreClose] = append(tbl.Numeric[s0_data.FieldPreClose], b.preClose)
			tbl.Numeric[s0_data.FieldPctChg] = append(tbl.Numeric[s0_data.FieldPctChg], b.pctChg)
			tbl.Numeric[s0_data.FieldTurnover] = append(tbl.Numeric[s0_data.FieldTurnover], b.turnover)
			tbl.Numeric[s0_data.FieldAmount] = append(tbl.Numeric[s0_data.FieldAmount], 1000)
			tbl.Text[s0_data.FieldCallStatus] = append(tbl.Text[s0_data.FieldCallStatus], "")
		}
	}
	return tbl
}

// wave produces a deterministic but irregular price path per instrument
func wave(c, d int) bar {
	base := 100 + float64(c)*10
	cl := base + 5*math.Sin(float64(d)/3+float64(c)) + float64(d)*0.2
	prev := base + 5*math.Sin(float64(d-1)/3+float64(c)) + float64(d-1)*0.2
	return bar{
		open:     prev + 0.3,
		high:     math.Max(cl, prev) + 1 + float64((d+c)%3),
		low:      math.Min(cl, prev) - 1,
		close:    cl,
		preClose: prev,
		pctChg:   cl/prev - 1,
		turnover: 1 + float64((d*7+c*3)%11),
	}
}

func compute(t *testing.T, tbl s0_data.Table) *s0_data.Panel {
	t.Helper()
	p, err := s0_data.Load(tbl)
	require.NoError(t, err)
	out, err := NewEngine(DefaultConfig(), logger.Nop()).Compute(p)
	require.NoError(t, err)
	return out
}

func value(t *testing.T, p *s0_data.Panel, name string, row int) (float64, bool) {
	t.Helper()
	s, ok := p.Column(name)
	require.True(t, ok, "column %s", name)
	return s.At(row)
}

func TestCompute_PriceFactors(t *testing.T) {
	closes := []float64{10, 12, 11, 13}
	tbl := synthTable([]string{"A"}, 4, func(_, d int) bar {
		c := closes[d]
		return bar{open: c, high: c + 1, low: c - 1, close: c, preClose: c, pctChg: 0.1, turnover: 1}
	})
	p := compute(t, tbl)

	v, ok := value(t, p, "amplitude", 0)
	require.True(t, ok)
	assert.InDelta(t, 0.2, v, 1e-12)

	// row 0: TR = high−low = 2; row 1: max(2, |13−10|, |11−10|) = 3
	v, _ = value(t, p, "natr_1", 0)
	assert.InDelta(t, 20.0, v, 1e-12)
	v, _ = value(t, p, "natr_1", 1)
	assert.InDelta(t, 3.0/12*100, v, 1e-12)

	_, ok = value(t, p, "natr_3", 1)
	assert.False(t, ok, "natr_3 needs three observations")
	_, ok = value(t, p, "natr_3", 2)
	assert.True(t, ok)

	_, ok = value(t, p, "max_value", 0)
	assert.False(t, ok, "no prior close on the first row")
	v, _ = value(t, p, "max_value", 2)
	assert.Equal(t, 12.0, v)
	v, _ = value(t, p, "max_value_position", 2)
	assert.InDelta(t, 11.0/12.0, v, 1e-12)

	v, _ = value(t, p, "pct_chg_5", 0)
	assert.InDelta(t, 0.1, v, 1e-12, "one observation is enough")
	v, _ = value(t, p, "pct_chg_5", 1)
	assert.InDelta(t, 0.21, v, 1e-12)

	_, ok = value(t, p, "turnover_5_avg", 3)
	assert.False(t, ok)
	_, ok = value(t, p, "momentum_20", 3)
	assert.False(t, ok)
	assert.False(t, p.HasNumeric("cap_float_share_rate"), "reference inputs absent")
}

// dropRow removes raw row idx from every column of tbl
func dropRow(tbl s0_data.Table, idx int) s0_data.Table {
	cut := func(xs []string) []string { return append(append([]string{}, xs[:idx]...), xs[idx+1:]...) }
	tbl.Codes = cut(tbl.Codes)
	tbl.Dates = cut(tbl.Dates)
	for name, col := range tbl.Numeric {
		tbl.Numeric[name] = append(append([]float64{}, col[:idx]...), col[idx+1:]...)
	}
	for name, col := range tbl.Text {
		tbl.Text[name] = cut(col)
	}
	return tbl
}

func TestCompute_RelativeStrengthNeedsAlignedWindow(t *testing.T) {
	// B는 세 번째 거래일 결측
	tbl := dropRow(synthTable([]string{"A", "B"}, 8, wave), 8+2)
	p := compute(t, tbl)

	_, ok := value(t, p, "rs_5", 7)
	assert.True(t, ok, "A has every date in its window")

	// B의 마지막 행: 5행 전은 2번째 날짜지만 시장 구간은 3번째 날짜부터
	last := p.Len() - 1
	require.Equal(t, "B", p.Code(last))
	_, ok = value(t, p, "rs_5", last)
	assert.False(t, ok, "window spans a missing date")
}

func TestCompute_VolatilityScaling(t *testing.T) {
	rets := []float64{0.01, -0.02, 0.03, 0.0, 0.01}
	tbl := synthTable([]string{"A"}, 5, func(_, d int) bar {
		return bar{open: 10, high: 11, low: 9, close: 10, preClose: 10, pctChg: rets[d], turnover: 1}
	})
	p := compute(t, tbl)

	mean := 0.006
	ss := 0.0
	for _, r := range rets {
		ss += (r - mean) * (r - mean)
	}
	want := math.Sqrt(ss/4) * math.Sqrt(5)

	v, ok := value(t, p, "volatility_5", 4)
	require.True(t, ok)
	assert.InDelta(t, want, v, 1e-12)
	_, ok = value(t, p, "volatility_5", 3)
	assert.False(t, ok)
}

func TestCompute_CrossSectionalPercentiles(t *testing.T) {
	turnovers := []float64{1, 2, 2}
	tbl := synthTable([]string{"A", "B", "C"}, 1, func(c, _ int) bar {
		return bar{open: 10, high: 10.5, low: 9.5, close: 10, preClose: 10, pctChg: 0, turnover: turnovers[c]}
	})
	p := compute(t, tbl)

	v, _ := value(t, p, "turnover_pct", 0)
	assert.InDelta(t, 1.0/3, v, 1e-12)
	v, _ = value(t, p, "turnover_pct", 1)
	assert.InDelta(t, 2.5/3, v, 1e-12)
	v, _ = value(t, p, "turnover_pct", 2)
	assert.InDelta(t, 2.5/3, v, 1e-12)

	v, _ = value(t, p, "turnover_pct_avg_1", 1)
	assert.InDelta(t, 2.5/3, v, 1e-12)
}

func TestCompute_EventCounts(t *testing.T) {
	// day 0: jump (+3% high), day 1: drop (−3% close), day 2: neither
	bars := []bar{
		{open: 100, high: 103, low: 99, close: 100, preClose: 100, turnover: 1},
		{open: 100, high: 100, low: 96, close: 97, preClose: 100, turnover: 1},
		{open: 97, high: 98, low: 96, close: 97, preClose: 97, turnover: 1},
	}
	tbl := synthTable([]string{"A"}, 3, func(_, d int) bar { return bars[d] })
	p := compute(t, tbl)

	jumps := []float64{1, 0, 0}
	drops := []float64{0, 1, 0}
	jumpCounts := []float64{1, 1, 1}
	dropCounts := []float64{0, 1, 1}
	for i := 0; i < 3; i++ {
		v, _ := value(t, p, "high_jump", i)
		assert.Equal(t, jumps[i], v, "high_jump row %d", i)
		v, _ = value(t, p, "close_drop", i)
		assert.Equal(t, drops[i], v, "close_drop row %d", i)
		v, _ = value(t, p, "high_jump_count_100", i)
		assert.Equal(t, jumpCounts[i], v)
		v, _ = value(t, p, "close_drop_count_250", i)
		assert.Equal(t, dropCounts[i], v)
		v, _ = value(t, p, "high_jump_count_100_pct", i)
		assert.Equal(t, 1.0, v, "single instrument ranks at the top")
	}
}

func TestCompute_WilderNATR(t *testing.T) {
	p := compute(t, synthTable([]string{"A"}, 30, wave))

	for i := 0; i < 14; i++ {
		_, ok := value(t, p, "natr_wilder_14", i)
		assert.False(t, ok, "row %d is inside the lookback", i)
	}
	for i := 14; i < 30; i++ {
		v, ok := value(t, p, "natr_wilder_14", i)
		require.True(t, ok, "row %d", i)
		assert.Greater(t, v, 0.0)
	}
}

func TestCompute_ReferenceFactor(t *testing.T) {
	tbl := synthTable([]string{"A"}, 2, wave)
	tbl.Numeric[FieldRemainCap] = []float64{2, 2}
	tbl.Numeric[FieldFloatShare] = []float64{1000, 0}
	tbl.Numeric[FieldCloseStk] = []float64{10, 10}
	p := compute(t, tbl)

	v, ok := value(t, p, "cap_float_share_rate", 0)
	require.True(t, ok)
	assert.InDelta(t, 2.0, v, 1e-12)
	_, ok = value(t, p, "cap_float_share_rate", 1)
	assert.False(t, ok, "zero float share yields missing")
}

func TestCompute_NoLookahead(t *testing.T) {
	const days = 70
	codes := []string{"A", "B", "C"}
	base := compute(t, synthTable(codes, days, wave))

	// perturb every field of instrument B from day 50 on
	perturbed := compute(t, synthTable(codes, days, func(c, d int) bar {
		b := wave(c, d)
		if c == 1 && d >= 50 {
			b.open *= 1.5
			b.high *= 1.7
			b.low *= 0.6
			b.close *= 1.4
			b.pctChg += 0.2
			b.turnover *= 9
		}
		return b
	}))

	cutoff := base.Dates()[50]
	for _, name := range base.NumericFields() {
		a, _ := base.Column(name)
		b, ok := perturbed.Column(name)
		require.True(t, ok, name)
		for i := 0; i < base.Len(); i++ {
			if base.Date(i) >= cutoff {
				continue
			}
			av, aok := a.At(i)
			bv, bok := b.At(i)
			require.Equal(t, aok, bok, "%s row %d validity changed", name, i)
			if aok {
				require.InDelta(t, av, bv, 1e-12, "%s row %d changed", name, i)
			}
		}
	}
}

func TestCompute_CrossSectionalIsolation(t *testing.T) {
	codes := []string{"A", "B", "C", "D"}
	base := compute(t, synthTable(codes, 5, wave))
	perturbed := compute(t, synthTable(codes, 5, func(c, d int) bar {
		b := wave(c, d)
		if d == 2 {
			b.turnover = float64(100 - c)
		}
		return b
	}))

	target := base.Dates()[2]
	a, _ := base.Column("turnover_pct")
	b, _ := perturbed.Column("turnover_pct")
	for i := 0; i < base.Len(); i++ {
		if base.Date(i) == target {
			continue
		}
		assert.Equal(t, a.Value(i), b.Value(i), "row %d on %s", i, base.Date(i))
	}
}

func TestCompute_KeepsExistingColumns(t *testing.T) {
	tbl := synthTable([]string{"A"}, 3, wave)
	tbl.Numeric["max_value"] = []float64{1, 2, 3}
	p := compute(t, tbl)

	v, _ := value(t, p, "max_value", 0)
	assert.Equal(t, 1.0, v, "loaded column wins")
	assert.True(t, p.HasNumeric("natr_1"))
}

func TestCompute_InvalidConfig(t *testing.T) {
	p, err := s0_data.Load(synthTable([]string{"A"}, 2, wave))
	require.NoError(t, err)

	cfg := DefaultConfig()
	cfg.MomentumWindows = []int{0}
	_, err = NewEngine(cfg, logger.Nop()).Compute(p)
	assert.Error(t, err)
}

func TestAverageRanks(t *testing.T) {
	assert.Equal(t, []float64{3, 1, 4, 2, 5}, AverageRanks([]float64{5, 1, 7, 2, 9}))
	assert.Equal(t, []float64{2, 2, 2}, AverageRanks([]float64{4, 4, 4}))
	assert.Equal(t, []float64{1, 2.5, 2.5, 4}, AverageRanks([]float64{1, 3, 3, 8}))
	assert.Empty(t, AverageRanks(nil))
}
