package s1_factors

import (
	"math"
	"sort"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"github.com/wonny/cbquant/internal/s0_data"
)

// rollingApply evaluates fn over the present values among each row's trailing
// n observations of the same instrument. Rows with fewer than minObs present
// values stay missing. Only rows at or before the current one are read.
func rollingApply(p *s0_data.Panel, src *s0_data.Series, n, minObs int, fn func(window []float64) float64) *s0_data.Series {
	b := s0_data.NewSeriesBuilder(p.Len())
	window := make([]float64, 0, n)

	for _, g := range p.Groups() {
		for i := g.Start; i < g.End; i++ {
			lo := i - n + 1
			if lo < g.Start {
				lo = g.Start
			}
			window = window[:0]
			for j := lo; j <= i; j++ {
				if v, ok := src.At(j); ok {
					window = append(window, v)
				}
			}
			if len(window) > 0 && len(window) >= minObs {
				b.Set(i, fn(window))
			}
		}
	}
	return b.Build()
}

func rollingMean(p *s0_data.Panel, src *s0_data.Series, n int) *s0_data.Series {
	return rollingApply(p, src, n, n, func(w []float64) float64 {
		return stat.Mean(w, nil)
	})
}

// rollingStdScaled is the sample std (ddof 1) times √n
func rollingStdScaled(p *s0_data.Panel, src *s0_data.Series, n int) *s0_data.Series {
	scale := math.Sqrt(float64(n))
	return rollingApply(p, src, n, n, func(w []float64) float64 {
		if len(w) < 2 {
			return math.NaN()
		}
		return stat.StdDev(w, nil) * scale
	})
}

// rollingCompound is Π(1+r) − 1 over the window, one observation suffices
func rollingCompound(p *s0_data.Panel, src *s0_data.Series, n int) *s0_data.Series {
	return rollingApply(p, src, n, 1, func(w []float64) float64 {
		prod := 1.0
		for _, r := range w {
			prod *= 1 + r
		}
		return prod - 1
	})
}

func rollingSum(p *s0_data.Panel, src *s0_data.Series, n int) *s0_data.Series {
	return rollingApply(p, src, n, 1, func(w []float64) float64 {
		return floats.Sum(w)
	})
}

// mapRows builds a column row by row; fn reports false for a missing value
func mapRows(n int, fn func(i int) (float64, bool)) *s0_data.Series {
	b := s0_data.NewSeriesBuilder(n)
	for i := 0; i < n; i++ {
		if v, ok := fn(i); ok {
			b.Set(i, v)
		}
	}
	return b.Build()
}

// ratio divides two columns; a zero denominator yields missing
func ratio(num, den *s0_data.Series) *s0_data.Series {
	return mapRows(num.Len(), func(i int) (float64, bool) {
		a, ok1 := num.At(i)
		b, ok2 := den.At(i)
		if !ok1 || !ok2 || b == 0 {
			return 0, false
		}
		return a / b, true
	})
}

// AverageRanks ranks values ascending (1 = smallest); ties share the mean of
// the positions they occupy
func AverageRanks(vals []float64) []float64 {
	idx := make([]int, len(vals))
	for i := range idx {
		idx[i] = i
	}
	sort.SliceStable(idx, func(a, b int) bool {
		return vals[idx[a]] < vals[idx[b]]
	})

	ranks := make([]float64, len(vals))
	for start := 0; start < len(idx); {
		end := start + 1
		for end < len(idx) && vals[idx[end]] == vals[idx[start]] {
			end++
		}
		avg := float64(start+1+end) / 2
		for k := start; k < end; k++ {
			ranks[idx[k]] = avg
		}
		start = end
	}
	return ranks
}

// pctRankByDate is the per-date percentile rank (average method) of present values.
// Only rows of the same date are read.
func pctRankByDate(p *s0_data.Panel, src *s0_data.Series) *s0_data.Series {
	b := s0_data.NewSeriesBuilder(p.Len())
	var rows []int
	var vals []float64

	for k := range p.Dates() {
		rows, vals = rows[:0], vals[:0]
		for _, i := range p.RowsAt(k) {
			if v, ok := src.At(i); ok {
				rows = append(rows, i)
				vals = append(vals, v)
			}
		}
		if len(rows) == 0 {
			continue
		}
		ranks := AverageRanks(vals)
		count := float64(len(rows))
		for j, i := range rows {
			b.Set(i, ranks[j]/count)
		}
	}
	return b.Build()
}
