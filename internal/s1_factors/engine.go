package s1_factors

import (
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/markcheno/go-talib"

	"github.com/wonny/cbquant/internal/s0_data"
	"github.com/wonny/cbquant/pkg/logger"
)

// Optional input columns
const (
	FieldPctChgStk  = "pct_chg_stk"
	FieldRemainCap  = "remain_cap"
	FieldFloatShare = "float_share"
	FieldCloseStk   = "close_stk"
)

// Engine derives factor columns from a raw panel
// ⭐ SSOT: 팩터 계산은 여기서만 (raw 컬럼은 절대 덮어쓰지 않음)
type Engine struct {
	config Config
	logger *logger.Logger
}

// NewEngine creates a new factor engine
func NewEngine(config Config, log *logger.Logger) *Engine {
	return &Engine{
		config: config,
		logger: log,
	}
}

// Config returns the engine's window configuration
func (e *Engine) Config() Config {
	return e.config
}

// columns collects factor output in insertion order
type columns struct {
	names []string
	cols  map[string]*s0_data.Series
}

func (c *columns) add(name string, s *s0_data.Series) {
	if _, dup := c.cols[name]; !dup {
		c.names = append(c.names, name)
	}
	c.cols[name] = s
}

// Compute returns a new panel with every factor column appended.
// Factors whose name already exists in the panel are left as loaded.
func (e *Engine) Compute(p *s0_data.Panel) (*s0_data.Panel, error) {
	if err := e.config.Validate(); err != nil {
		return nil, fmt.Errorf("factor config: %w", err)
	}
	for _, f := range s0_data.RequiredNumeric {
		if !p.HasNumeric(f) {
			return nil, s0_data.SchemaError{Field: f, Message: "required column missing"}
		}
	}

	start := time.Now()
	out := &columns{cols: make(map[string]*s0_data.Series)}

	e.computePriceFactors(p, out)
	e.computeReturnFactors(p, out)
	e.computeTurnoverFactors(p, out)
	e.computeEventFactors(p, out)
	e.computeReferenceFactors(p, out)

	add := make(map[string]*s0_data.Series, len(out.names))
	var kept []string
	for _, name := range out.names {
		if p.HasNumeric(name) || p.HasText(name) {
			kept = append(kept, name)
			continue
		}
		add[name] = out.cols[name]
	}
	if len(kept) > 0 {
		sort.Strings(kept)
		e.logger.WithField("columns", kept).Warn("Factor columns already present in panel, keeping loaded values")
	}

	result, err := p.WithColumns(add)
	if err != nil {
		return nil, fmt.Errorf("append factors: %w", err)
	}

	e.logger.WithFields(map[string]interface{}{
		"rows":        p.Len(),
		"factors":     len(add),
		"duration_ms": time.Since(start).Milliseconds(),
	}).Info("Factors computed")

	return result, nil
}

// computePriceFactors derives range, NATR, peak distance and momentum columns
func (e *Engine) computePriceFactors(p *s0_data.Panel, out *columns) {
	high := mustColumn(p, s0_data.FieldHigh)
	low := mustColumn(p, s0_data.FieldLow)
	closes := mustColumn(p, s0_data.FieldClose)

	amplitude := mapRows(p.Len(), func(i int) (float64, bool) {
		h, ok1 := high.At(i)
		l, ok2 := low.At(i)
		c, ok3 := closes.At(i)
		if !ok1 || !ok2 || !ok3 || c == 0 {
			return 0, false
		}
		return (h - l) / c, true
	})
	out.add("amplitude", amplitude)

	// True range: 종목의 첫 행은 high−low만 사용
	tr := mapRows(p.Len(), func(i int) (float64, bool) {
		h, ok1 := high.At(i)
		l, ok2 := low.At(i)
		if !ok1 || !ok2 {
			return 0, false
		}
		r := h - l
		if i > 0 && p.Code(i-1) == p.Code(i) {
			if pc, ok := closes.At(i - 1); ok {
				r = math.Max(r, math.Max(math.Abs(h-pc), math.Abs(l-pc)))
			}
		}
		return r, true
	})
	for _, n := range e.config.NATRWindows {
		atr := rollingMean(p, tr, n)
		out.add(fmt.Sprintf("natr_%d", n), mapRows(p.Len(), func(i int) (float64, bool) {
			a, ok1 := atr.At(i)
			c, ok2 := closes.At(i)
			if !ok1 || !ok2 || c == 0 {
				return 0, false
			}
			return a / c * 100, true
		}))
	}
	for _, n := range e.config.WilderWindows {
		out.add(fmt.Sprintf("natr_wilder_%d", n), wilderNATR(p, high, low, closes, n))
	}

	for _, n := range e.config.VolatilityWindows {
		out.add(fmt.Sprintf("amplitude_vol_%d", n), rollingStdScaled(p, amplitude, n))
	}

	// max_value: 당일 제외 과거 종가의 누적 최대
	maxValue := s0_data.NewSeriesBuilder(p.Len())
	for _, g := range p.Groups() {
		peak, seen := math.Inf(-1), false
		for i := g.Start; i < g.End; i++ {
			if seen {
				maxValue.Set(i, peak)
			}
			if c, ok := closes.At(i); ok && c > peak {
				peak, seen = c, true
			}
		}
	}
	maxSeries := maxValue.Build()
	out.add("max_value", maxSeries)
	out.add("max_value_position", ratio(closes, maxSeries))

	for _, n := range e.config.MomentumWindows {
		out.add(fmt.Sprintf("momentum_%d", n), momentum(p, closes, n))
	}

	market := marketLevel(p, closes)
	for _, n := range e.config.RSWindows {
		mom := momentum(p, closes, n)
		out.add(fmt.Sprintf("rs_%d", n), mapRows(p.Len(), func(i int) (float64, bool) {
			m, ok := mom.At(i)
			if !ok {
				return 0, false
			}
			k := p.DateIndex(i)
			if k < n || market[k-n] == 0 || math.IsNaN(market[k]) || math.IsNaN(market[k-n]) {
				return 0, false
			}
			// 종목 구간과 시장 구간이 같은 날짜 범위일 때만
			if p.DateIndex(i-n) != k-n {
				return 0, false
			}
			return m - (market[k]/market[k-n] - 1), true
		}))
	}
}

// computeReturnFactors derives volatility and compounded return columns
func (e *Engine) computeReturnFactors(p *s0_data.Panel, out *columns) {
	pct := mustColumn(p, s0_data.FieldPctChg)
	stk, hasStk := p.Column(FieldPctChgStk)

	for _, n := range e.config.VolatilityWindows {
		out.add(fmt.Sprintf("volatility_%d", n), rollingStdScaled(p, pct, n))
		if hasStk {
			out.add(fmt.Sprintf("stk_volatility_%d", n), rollingStdScaled(p, stk, n))
		}
	}
	for _, n := range e.config.CompoundWindows {
		out.add(fmt.Sprintf("pct_chg_%d", n), rollingCompound(p, pct, n))
		if hasStk {
			out.add(fmt.Sprintf("pct_chg_stk_%d", n), rollingCompound(p, stk, n))
		}
	}
}

// computeTurnoverFactors derives turnover averages, percentiles and their ratios
func (e *Engine) computeTurnoverFactors(p *s0_data.Panel, out *columns) {
	turnover := mustColumn(p, s0_data.FieldTurnover)

	for _, n := range e.config.TurnoverWindows {
		out.add(fmt.Sprintf("turnover_%d_avg", n), rollingMean(p, turnover, n))
	}

	turnoverPct := pctRankByDate(p, turnover)
	out.add("turnover_pct", turnoverPct)

	windows := e.config.TurnoverPctWindows
	avgs := make([]*s0_data.Series, len(windows))
	for j, n := range windows {
		avgs[j] = rollingMean(p, turnoverPct, n)
		out.add(fmt.Sprintf("turnover_pct_avg_%d", n), avgs[j])
	}
	for j := 1; j < len(windows); j++ {
		out.add(fmt.Sprintf("turnover_pct_%d_to_%d", windows[j-1], windows[j]), ratio(avgs[j-1], avgs[j]))
	}
}

// computeEventFactors counts large intraday jumps and close drops and ranks the counts per date
func (e *Engine) computeEventFactors(p *s0_data.Panel, out *columns) {
	high := mustColumn(p, s0_data.FieldHigh)
	closes := mustColumn(p, s0_data.FieldClose)
	pre := mustColumn(p, s0_data.FieldPreClose)

	// 관측 불가한 행은 이벤트 없음(0)으로 집계
	flag := func(px *s0_data.Series, hit func(chg float64) bool) *s0_data.Series {
		return mapRows(p.Len(), func(i int) (float64, bool) {
			v, ok1 := px.At(i)
			pc, ok2 := pre.At(i)
			if ok1 && ok2 && pc != 0 && hit(v/pc-1) {
				return 1, true
			}
			return 0, true
		})
	}
	jump := flag(high, func(chg float64) bool { return chg > e.config.JumpThreshold })
	drop := flag(closes, func(chg float64) bool { return chg < e.config.DropThreshold })
	out.add("high_jump", jump)
	out.add("close_drop", drop)

	for _, n := range e.config.EventWindows {
		jumpCount := rollingSum(p, jump, n)
		dropCount := rollingSum(p, drop, n)
		out.add(fmt.Sprintf("high_jump_count_%d", n), jumpCount)
		out.add(fmt.Sprintf("close_drop_count_%d", n), dropCount)
		out.add(fmt.Sprintf("high_jump_count_%d_pct", n), pctRankByDate(p, jumpCount))
		out.add(fmt.Sprintf("close_drop_count_%d_pct", n), pctRankByDate(p, dropCount))
	}
}

// computeReferenceFactors derives columns from optional reference attributes
func (e *Engine) computeReferenceFactors(p *s0_data.Panel, out *columns) {
	remain, ok1 := p.Column(FieldRemainCap)
	floatShare, ok2 := p.Column(FieldFloatShare)
	closeStk, ok3 := p.Column(FieldCloseStk)
	if !ok1 || !ok2 || !ok3 {
		return
	}

	out.add("cap_float_share_rate", mapRows(p.Len(), func(i int) (float64, bool) {
		r, ok1 := remain.At(i)
		f, ok2 := floatShare.At(i)
		c, ok3 := closeStk.At(i)
		den := f * c
		if !ok1 || !ok2 || !ok3 || den == 0 {
			return 0, false
		}
		return r * 10000 / den, true
	}))
}

// momentum is close_t / close_{t−n} − 1 within the instrument
func momentum(p *s0_data.Panel, closes *s0_data.Series, n int) *s0_data.Series {
	b := s0_data.NewSeriesBuilder(p.Len())
	for _, g := range p.Groups() {
		for i := g.Start + n; i < g.End; i++ {
			c, ok1 := closes.At(i)
			prev, ok2 := closes.At(i - n)
			if ok1 && ok2 && prev != 0 {
				b.Set(i, c/prev-1)
			}
		}
	}
	return b.Build()
}

// marketLevel is the mean close of all instruments observed on each date
func marketLevel(p *s0_data.Panel, closes *s0_data.Series) []float64 {
	level := make([]float64, len(p.Dates()))
	for k := range level {
		sum, cnt := 0.0, 0
		for _, i := range p.RowsAt(k) {
			if c, ok := closes.At(i); ok {
				sum += c
				cnt++
			}
		}
		if cnt == 0 {
			level[k] = math.NaN()
			continue
		}
		level[k] = sum / float64(cnt)
	}
	return level
}

// wilderNATR runs talib.Natr over each fully observed stretch of an instrument's history
func wilderNATR(p *s0_data.Panel, high, low, closes *s0_data.Series, period int) *s0_data.Series {
	b := s0_data.NewSeriesBuilder(p.Len())

	flush := func(from, to int) {
		if to-from <= period {
			return
		}
		h := make([]float64, 0, to-from)
		l := make([]float64, 0, to-from)
		c := make([]float64, 0, to-from)
		for i := from; i < to; i++ {
			h = append(h, high.Value(i))
			l = append(l, low.Value(i))
			c = append(c, closes.Value(i))
		}
		natr := talib.Natr(h, l, c, period)
		for j := period; j < len(natr); j++ {
			b.Set(from+j, natr[j])
		}
	}

	for _, g := range p.Groups() {
		runStart := g.Start
		for i := g.Start; i < g.End; i++ {
			if !high.Valid(i) || !low.Valid(i) || !closes.Valid(i) || closes.Value(i) == 0 {
				flush(runStart, i)
				runStart = i + 1
			}
		}
		flush(runStart, g.End)
	}
	return b.Build()
}

func mustColumn(p *s0_data.Panel, name string) *s0_data.Series {
	s, ok := p.Column(name)
	if !ok {
		panic("s1_factors: column " + name + " checked but missing")
	}
	return s
}
