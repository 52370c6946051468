package quality

import (
	"math"
	"time"

	"github.com/wonny/cbquant/internal/contracts"
	"github.com/wonny/cbquant/internal/s0_data"
)

// Validator checks a loaded panel and produces a quality snapshot
type Validator struct {
	config Config
}

// Config holds quality gate thresholds
type Config struct {
	MinScore              float64 `yaml:"min_score"`                // 0.90
	MinInstrumentsPerDate int     `yaml:"min_instruments_per_date"` // 5
}

// DefaultConfig returns the thresholds used by data-check and the scheduler
func DefaultConfig() Config {
	return Config{
		MinScore:              0.90,
		MinInstrumentsPerDate: 5,
	}
}

// NewValidator creates a new Validator instance
func NewValidator(config Config) *Validator {
	return &Validator{config: config}
}

// 가중치 (합계 = 1.0)
var coverageWeights = map[string]float64{
	s0_data.FieldClose:    0.20, // 수익률 계산 필수
	s0_data.FieldOpen:     0.15, // 갭 체결 판정
	s0_data.FieldHigh:     0.15, // 익절 판정
	s0_data.FieldLow:      0.10,
	s0_data.FieldPreClose: 0.10,
	s0_data.FieldPctChg:   0.15,
	s0_data.FieldTurnover: 0.10,
	s0_data.FieldAmount:   0.05,
}

// Check validates a panel
// ⭐ SSOT: S0 → S1 품질 검증
func (v *Validator) Check(p *s0_data.Panel) *contracts.DataQualitySnapshot {
	snapshot := &contracts.DataQualitySnapshot{
		PanelVersion: p.Version(),
		TotalRows:    p.Len(),
		Instruments:  len(p.Groups()),
		Dates:        len(p.Dates()),
		Coverage:     make(map[string]float64),
		ThinDates:    []string{},
		CheckedAt:    time.Now().UTC(),
	}
	if p.Len() == 0 {
		return snapshot
	}

	dates := p.Dates()
	snapshot.StartDate = s0_data.ISODate(dates[0])
	snapshot.EndDate = s0_data.ISODate(dates[len(dates)-1])

	// 1. 필드별 커버리지
	for _, field := range s0_data.RequiredNumeric {
		col, ok := p.Column(field)
		if !ok {
			continue
		}
		snapshot.Coverage[field] = float64(col.ValidCount()) / float64(p.Len())
	}

	// 2. OHLC 정합성
	snapshot.OHLCViolations = countOHLCViolations(p)

	// 3. 날짜별 종목 수
	snapshot.MinPerDate = math.MaxInt
	for k, d := range dates {
		n := len(p.RowsAt(k))
		if n < snapshot.MinPerDate {
			snapshot.MinPerDate = n
		}
		if n < v.config.MinInstrumentsPerDate {
			snapshot.ThinDates = append(snapshot.ThinDates, d)
		}
	}

	// 4. 품질 점수 계산
	snapshot.QualityScore = v.calculateScore(snapshot.Coverage, snapshot.OHLCViolations, p.Len())
	snapshot.Passed = snapshot.IsValid(v.config.MinScore)

	return snapshot
}

// countOHLCViolations counts fully observed rows whose high/low do not bound open/close
func countOHLCViolations(p *s0_data.Panel) int {
	open, _ := p.Column(s0_data.FieldOpen)
	high, _ := p.Column(s0_data.FieldHigh)
	low, _ := p.Column(s0_data.FieldLow)
	closes, _ := p.Column(s0_data.FieldClose)

	violations := 0
	for i := 0; i < p.Len(); i++ {
		o, ok1 := open.At(i)
		h, ok2 := high.At(i)
		l, ok3 := low.At(i)
		c, ok4 := closes.At(i)
		if !(ok1 && ok2 && ok3 && ok4) {
			continue
		}
		if c <= 0 || h < l || h < math.Max(o, c) || l > math.Min(o, c) {
			violations++
		}
	}
	return violations
}

// calculateScore calculates the weighted coverage discounted by the OHLC violation rate
func (v *Validator) calculateScore(coverage map[string]float64, violations, rows int) float64 {
	score := 0.0
	for key, weight := range coverageWeights {
		if cov, exists := coverage[key]; exists {
			score += cov * weight
		}
	}
	if rows > 0 {
		score *= 1 - float64(violations)/float64(rows)
	}
	return score
}
