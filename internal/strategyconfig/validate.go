package strategyconfig

import (
	"fmt"
	"math"

	"github.com/wonny/cbquant/internal/s0_data"
)

// ValidationError 검증 실패 (요청 거부)
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

var scoreModes = map[string]bool{
	"":          true,
	"rank_desc": true,
	"rank_asc":  true,
	"raw":       true,
}

// Validate checks the structural constraints of a strategy.
// Field names inside conditions and factors are checked later against the panel.
func Validate(s *Strategy) error {
	if s.HoldNum <= 0 {
		return ValidationError{"hold_num", "must be > 0"}
	}
	if !validNonNegative(s.StopProfit) {
		return ValidationError{"stop_profit", "must be >= 0"}
	}
	if !validNonNegative(s.FeeRate) {
		return ValidationError{"fee_rate", "must be >= 0"}
	}

	// score_factors와 weights 배열 길이 일치 확인
	if len(s.ScoreFactors) != len(s.Weights) {
		return ValidationError{"weights", fmt.Sprintf("has %d entries, score_factors has %d", len(s.Weights), len(s.ScoreFactors))}
	}
	if len(s.ScoreModes) != 0 && len(s.ScoreModes) != len(s.ScoreFactors) {
		return ValidationError{"score_modes", "must be empty or match score_factors length"}
	}
	for i, f := range s.ScoreFactors {
		if f == "" {
			return ValidationError{fmt.Sprintf("score_factors[%d]", i), "empty factor name"}
		}
		if math.IsNaN(s.Weights[i]) || math.IsInf(s.Weights[i], 0) {
			return ValidationError{fmt.Sprintf("weights[%d]", i), "must be finite"}
		}
	}
	for i, m := range s.ScoreModes {
		if !scoreModes[m] {
			return ValidationError{fmt.Sprintf("score_modes[%d]", i), fmt.Sprintf("unknown mode %q", m)}
		}
	}
	for i, c := range s.ExcludeConditions {
		if c == "" {
			return ValidationError{fmt.Sprintf("exclude_conditions[%d]", i), "empty condition"}
		}
	}

	return nil
}

// ValidateRange checks that both bounds parse and start is not after end
func ValidateRange(r DataRange) error {
	start, err := s0_data.NormalizeDate(r.StartDate)
	if err != nil {
		return ValidationError{"data.start_date", err.Error()}
	}
	end, err := s0_data.NormalizeDate(r.EndDate)
	if err != nil {
		return ValidationError{"data.end_date", err.Error()}
	}
	if start > end {
		return ValidationError{"data", "start_date must not be after end_date"}
	}
	return nil
}

// ValidateRequest checks a single backtest request
func ValidateRequest(req *BacktestRequest) error {
	if err := ValidateRange(req.Data); err != nil {
		return err
	}
	return Validate(&req.Strategy)
}

// ValidateBatch checks the shared range and every strategy
func ValidateBatch(b *BatchConfig) error {
	if err := ValidateRange(b.Data); err != nil {
		return err
	}
	if len(b.Strategies) == 0 {
		return ValidationError{"strategies", "at least one strategy required"}
	}
	for i := range b.Strategies {
		if err := Validate(&b.Strategies[i]); err != nil {
			if ve, ok := err.(ValidationError); ok {
				ve.Field = fmt.Sprintf("strategies[%d].%s", i, ve.Field)
				return ve
			}
			return err
		}
	}
	return nil
}

func validNonNegative(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0) && v >= 0
}

// Warning 권장 위반 (경고만)
type Warning struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Warn returns recommendations that do not block a run
func Warn(s *Strategy) []Warning {
	var warnings []Warning

	if len(s.ScoreFactors) == 0 {
		warnings = append(warnings, Warning{"NO_SCORE_FACTORS", "no score factors: ranks follow instrument code order"})
	}
	if s.StopProfit == 0 {
		warnings = append(warnings, Warning{"ZERO_STOP_PROFIT", "stop_profit 0 realizes every non-negative next-day open as a gap fill"})
	}
	if s.StopProfit > 0.2 {
		warnings = append(warnings, Warning{"HIGH_STOP_PROFIT", fmt.Sprintf("stop_profit %.2f is rarely reached in one day", s.StopProfit)})
	}
	if s.FeeRate > 0.01 {
		warnings = append(warnings, Warning{"HIGH_FEE_RATE", fmt.Sprintf("fee_rate %.4f exceeds 1%%", s.FeeRate)})
	}
	for i, w := range s.Weights {
		if w == 0 {
			warnings = append(warnings, Warning{"ZERO_WEIGHT", fmt.Sprintf("score factor %s has weight 0", s.ScoreFactors[i])})
		}
	}

	return warnings
}
