package s2_universe

import (
	"errors"
	"fmt"

	"github.com/wonny/cbquant/internal/contracts"
	"github.com/wonny/cbquant/internal/s0_data"
	"github.com/wonny/cbquant/pkg/logger"
)

// RedemptionStatuses are call_status values that exclude a row unconditionally
var RedemptionStatuses = map[string]bool{
	"已公告强赎":   true,
	"公告到期赎回":  true,
	"公告实施强赎":  true,
	"公告提示强赎":  true,
	"已满足强赎条件": true,
}

// Filter produces the per-row exclusion flag
// ⭐ SSOT: 편입 제외 판정은 여기서만
type Filter struct {
	logger *logger.Logger
}

// NewFilter creates a new filter
func NewFilter(log *logger.Logger) *Filter {
	return &Filter{logger: log}
}

// Apply computes a fresh exclusion flag for every panel row.
//
//  1. rows whose call status announces a redemption are excluded
//  2. each condition that matches a row excludes it; failed conditions are skipped
//  3. a date left with fewer than holdNum eligible rows gets all its rows back
func (f *Filter) Apply(p *s0_data.Panel, conditions []string, holdNum int) (*contracts.Eligibility, error) {
	if holdNum <= 0 {
		return nil, fmt.Errorf("hold_num must be positive, got %d", holdNum)
	}
	status, ok := p.TextColumn(s0_data.FieldCallStatus)
	if !ok {
		return nil, s0_data.SchemaError{Field: s0_data.FieldCallStatus, Message: "required column missing"}
	}

	elig := &contracts.Eligibility{
		Excluded:   make([]bool, p.Len()),
		Relaxed:    []string{},
		Predicates: make([]contracts.PredicateReport, 0, len(conditions)),
	}

	// 1. 강제상환 공고 종목 제외
	for i, s := range status {
		if RedemptionStatuses[s] {
			elig.Excluded[i] = true
			elig.BaseMatched++
		}
	}

	// 2. 설정된 조건 (OR 누적)
	for _, cond := range conditions {
		report := contracts.PredicateReport{Expr: cond}

		matched, err := f.evaluate(p, cond)
		if err != nil {
			report.Error = err.Error()
			elig.Predicates = append(elig.Predicates, report)
			f.logger.WithFields(map[string]interface{}{
				"condition": cond,
				"error":     err.Error(),
			}).Warn("Skipping exclusion condition")
			continue
		}

		for i, hit := range matched {
			if hit {
				elig.Excluded[i] = true
				report.Matched++
			}
		}
		elig.Predicates = append(elig.Predicates, report)
	}

	// 3. 최소 종목 수 보장
	for k, date := range p.Dates() {
		rows := p.RowsAt(k)
		if elig.EligibleCount(rows) >= holdNum {
			continue
		}
		for _, i := range rows {
			elig.Excluded[i] = false
		}
		elig.Relaxed = append(elig.Relaxed, date)
	}
	if len(elig.Relaxed) > 0 {
		f.logger.WithFields(map[string]interface{}{
			"dates":      len(elig.Relaxed),
			"first_date": elig.Relaxed[0],
			"hold_num":   holdNum,
		}).Warn("Too few eligible instruments, filters dropped for those dates")
	}

	return elig, nil
}

func (f *Filter) evaluate(p *s0_data.Panel, cond string) ([]bool, error) {
	pred, err := Compile(cond, p)
	if err != nil {
		return nil, err
	}
	return pred.Match(p)
}

// ValidateConditions compiles every condition against schema and joins the failures
func ValidateConditions(conditions []string, schema Schema) error {
	var errs []error
	for _, cond := range conditions {
		if _, err := Compile(cond, schema); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
