package backtest

import (
	"github.com/wonny/cbquant/internal/contracts"
	"github.com/wonny/cbquant/internal/s0_data"
	"github.com/wonny/cbquant/pkg/logger"
)

// NextDay is the next observation of a held instrument
type NextDay struct {
	Open     float64
	High     float64
	PctChg   float64
	OpenOK   bool
	HighOK   bool
	PctChgOK bool
}

// Realize returns the one-day return of a position entered at close.
// ok is false when nothing can be realized (the row is dropped from the day's mean).
func Realize(close float64, closeOK bool, next NextDay, sp float64) (float64, contracts.Fill, bool) {
	if closeOK && close > 0 {
		threshold := close * (1 + sp)
		// 갭 상승이 우선: 시가보다 좋게 체결될 수 없다
		if next.OpenOK && next.Open >= threshold {
			return (next.Open - close) / close, contracts.FillGapOpen, true
		}
		if next.HighOK && next.High >= threshold {
			return sp, contracts.FillStopProfit, true
		}
	}
	if next.PctChgOK {
		return next.PctChg, contracts.FillClose, true
	}
	return 0, contracts.FillClose, false
}

// Simulation is the raw (pre-cost) portfolio path of one run
type Simulation struct {
	Dates    []string   // signal dates with at least one holding (YYYYMMDD)
	Holdings [][]string // sorted codes held per date
	Raw      []float64  // equal-weight mean of realized returns
	Trades   []contracts.Trade
	Dropped  int // holdings without a realizable next day
}

// Simulator turns per-date ranks into a daily return path
// ⭐ SSOT: 보유 신호 → 일간 수익률 변환은 여기서만
type Simulator struct {
	logger *logger.Logger
}

// NewSimulator creates a new simulator
func NewSimulator(log *logger.Logger) *Simulator {
	return &Simulator{logger: log}
}

// Simulate holds the top holdNum ranked instruments of every date for one day
func (s *Simulator) Simulate(p *s0_data.Panel, ranking *contracts.Ranking, holdNum int, sp float64) *Simulation {
	closes := mustColumn(p, s0_data.FieldClose)
	opens := mustColumn(p, s0_data.FieldOpen)
	highs := mustColumn(p, s0_data.FieldHigh)
	pcts := mustColumn(p, s0_data.FieldPctChg)

	sim := &Simulation{
		Dates:    make([]string, 0, len(p.Dates())),
		Holdings: make([][]string, 0, len(p.Dates())),
		Raw:      make([]float64, 0, len(p.Dates())),
		Trades:   make([]contracts.Trade, 0),
	}

	for k, date := range p.Dates() {
		var held []string
		var sum float64
		realized := 0

		// RowsAt은 종목 코드 순서라 held는 이미 정렬되어 있다
		for _, row := range p.RowsAt(k) {
			if !ranking.Selected(row, holdNum) {
				continue
			}
			held = append(held, p.Code(row))

			nextRow := p.Next(row)
			if nextRow < 0 {
				sim.Dropped++
				continue
			}
			next := NextDay{}
			next.Open, next.OpenOK = opens.At(nextRow)
			next.High, next.HighOK = highs.At(nextRow)
			next.PctChg, next.PctChgOK = pcts.At(nextRow)
			c, cok := closes.At(row)

			ret, fill, ok := Realize(c, cok, next, sp)
			if !ok {
				sim.Dropped++
				continue
			}
			sum += ret
			realized++
			sim.Trades = append(sim.Trades, contracts.Trade{
				Code:      p.Code(row),
				EntryDate: s0_data.ISODate(date),
				ExitDate:  s0_data.ISODate(p.Date(nextRow)),
				Rank:      ranking.Rank[row],
				Return:    ret,
				Fill:      fill,
			})
		}

		if len(held) == 0 {
			continue
		}
		raw := 0.0
		if realized > 0 {
			raw = sum / float64(realized)
		}
		sim.Dates = append(sim.Dates, date)
		sim.Holdings = append(sim.Holdings, held)
		sim.Raw = append(sim.Raw, raw)
	}

	if sim.Dropped > 0 {
		s.logger.WithField("dropped", sim.Dropped).Debug("Holdings without next observation dropped")
	}
	if len(sim.Dates) == 0 {
		s.logger.Warn("No trading signals generated")
	}

	return sim
}

func mustColumn(p *s0_data.Panel, name string) *s0_data.Series {
	col, ok := p.Column(name)
	if !ok {
		panic("backtest: panel is missing required column " + name)
	}
	return col
}
