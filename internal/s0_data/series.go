package s0_data

import "math"

// Series is one numeric panel column with an explicit validity mask.
// A Series is never modified after construction, so panels can share it.
type Series struct {
	vals  []float64
	valid []bool
}

// NewSeries builds a Series from values and a mask of the same length.
// Values at invalid positions are normalized to NaN.
func NewSeries(vals []float64, valid []bool) *Series {
	if len(vals) != len(valid) {
		panic("s0_data: series values and mask differ in length")
	}
	v := make([]float64, len(vals))
	m := make([]bool, len(valid))
	for i := range vals {
		if valid[i] && !math.IsNaN(vals[i]) && !math.IsInf(vals[i], 0) {
			v[i] = vals[i]
			m[i] = true
		} else {
			v[i] = math.NaN()
		}
	}
	return &Series{vals: v, valid: m}
}

// SeriesFromFloats builds a Series treating NaN and ±Inf as missing
func SeriesFromFloats(vals []float64) *Series {
	valid := make([]bool, len(vals))
	for i, v := range vals {
		valid[i] = !math.IsNaN(v) && !math.IsInf(v, 0)
	}
	return NewSeries(vals, valid)
}

// Len returns the number of rows
func (s *Series) Len() int {
	return len(s.vals)
}

// At returns the value at row i and whether it is present
func (s *Series) At(i int) (float64, bool) {
	return s.vals[i], s.valid[i]
}

// Value returns the value at row i, NaN when missing
func (s *Series) Value(i int) float64 {
	return s.vals[i]
}

// Valid reports whether row i holds a value
func (s *Series) Valid(i int) bool {
	return s.valid[i]
}

// ValidCount counts present values
func (s *Series) ValidCount() int {
	n := 0
	for _, ok := range s.valid {
		if ok {
			n++
		}
	}
	return n
}

// take returns a new Series holding rows idx in order
func (s *Series) take(idx []int) *Series {
	v := make([]float64, len(idx))
	m := make([]bool, len(idx))
	for j, i := range idx {
		v[j] = s.vals[i]
		m[j] = s.valid[i]
	}
	return &Series{vals: v, valid: m}
}

// SeriesBuilder accumulates a column row by row.
// Rows never set stay missing.
type SeriesBuilder struct {
	vals  []float64
	valid []bool
}

// NewSeriesBuilder creates a builder for n rows, all missing
func NewSeriesBuilder(n int) *SeriesBuilder {
	vals := make([]float64, n)
	for i := range vals {
		vals[i] = math.NaN()
	}
	return &SeriesBuilder{vals: vals, valid: make([]bool, n)}
}

// Set stores v at row i; NaN and ±Inf are stored as missing
func (b *SeriesBuilder) Set(i int, v float64) {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		b.vals[i] = math.NaN()
		b.valid[i] = false
		return
	}
	b.vals[i] = v
	b.valid[i] = true
}

// Build freezes the builder into a Series
func (b *SeriesBuilder) Build() *Series {
	return &Series{vals: b.vals, valid: b.valid}
}
