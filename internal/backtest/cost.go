package backtest

// CostModel charges turnover-proportional fees on the holding sequence
type CostModel struct {
	FeeRate float64
}

// Costs returns the per-date cost fraction for consecutive holding sets.
// The first date pays half the fee for opening the initial book.
func (m CostModel) Costs(holdings [][]string) []float64 {
	costs := make([]float64, len(holdings))
	for t := range holdings {
		if t == 0 {
			costs[t] = 0.5 * m.FeeRate
			continue
		}
		prev, cur := holdings[t-1], holdings[t]
		denom := len(prev) + len(cur)
		if denom == 0 {
			continue
		}
		costs[t] = float64(symmetricDiff(prev, cur)) * m.FeeRate / float64(denom)
	}
	return costs
}

// NetReturn applies a cost fraction to a raw return
func NetReturn(raw, cost float64) float64 {
	return (1+raw)*(1-cost) - 1
}

// symmetricDiff counts codes held on exactly one of the two dates
func symmetricDiff(a, b []string) int {
	in := make(map[string]struct{}, len(a))
	for _, c := range a {
		in[c] = struct{}{}
	}
	n := 0
	for _, c := range b {
		if _, ok := in[c]; ok {
			delete(in, c)
			continue
		}
		n++
	}
	return n + len(in)
}
