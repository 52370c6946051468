package contracts

// PredicateReport describes how one exclusion predicate behaved in a run
type PredicateReport struct {
	Expr    string `json:"expr"`
	Matched int    `json:"matched"`         // rows newly or repeatedly matched
	Error   string `json:"error,omitempty"` // compile failure; predicate skipped
}

// Eligibility is the per-row exclusion flag produced by the filter stage
// ⭐ SSOT: Filter → Scoring 전달
type Eligibility struct {
	Excluded    []bool            `json:"-"`            // indexed by panel row
	Relaxed     []string          `json:"relaxed"`      // dates where every filter was dropped
	Predicates  []PredicateReport `json:"predicates"`   // in configured order
	BaseMatched int               `json:"base_matched"` // rows excluded by call status
}

// Eligible reports whether row i may be ranked
func (e *Eligibility) Eligible(i int) bool {
	return !e.Excluded[i]
}

// EligibleCount counts eligible rows among the given rows
func (e *Eligibility) EligibleCount(rows []int) int {
	n := 0
	for _, r := range rows {
		if !e.Excluded[r] {
			n++
		}
	}
	return n
}

// PredicateErrors returns the reports of predicates that were skipped
func (e *Eligibility) PredicateErrors() []PredicateReport {
	var out []PredicateReport
	for _, p := range e.Predicates {
		if p.Error != "" {
			out = append(out, p)
		}
	}
	return out
}
