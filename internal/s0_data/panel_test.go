package s0_data

import (
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// rawTable builds a minimal valid table; rows are deliberately unsorted
func rawTable() Table {
	nan := math.NaN()
	return Table{
		Codes: []string{"B", "A", "B", "A", "C"},
		Dates: []string{"2024-01-03", "20240103", "2024/01/02", "2024-01-02", "2024-01-03"},
		Numeric: map[string][]float64{
			FieldOpen:     {10, 20, 9, 19, 30},
			FieldHigh:     {11, 21, 10, 20, 31},
			FieldLow:      {9, 19, 8, 18, 29},
			FieldClose:    {10.5, 20.5, 9.5, 19.5, 30.5},
			FieldPreClose: {9.5, 19.5, 9, 19, 30},
			FieldPctChg:   {0.01, 0.02, nan, 0.03, 0.04},
			FieldTurnover: {1, 2, 3, 4, 5},
			FieldAmount:   {100, 200, 300, 400, 500},
		},
		Text: map[string][]string{
			FieldCallStatus: {"", "", "", "已公告强赎", ""},
		},
	}
}

func TestLoad_SortsAndIndexes(t *testing.T) {
	p, err := Load(rawTable())
	require.NoError(t, err)

	require.Equal(t, 5, p.Len())
	assert.Equal(t, []string{"A", "A", "B", "B", "C"}, []string{p.Code(0), p.Code(1), p.Code(2), p.Code(3), p.Code(4)})
	assert.Equal(t, "20240102", p.Date(0))
	assert.Equal(t, "20240103", p.Date(1))

	assert.Equal(t, []string{"20240102", "20240103"}, p.Dates())
	assert.Equal(t, []int{0, 2}, p.RowsOn("20240102"))
	assert.Equal(t, []int{1, 3, 4}, p.RowsOn("20240103"))
	assert.Nil(t, p.RowsOn("20240104"))

	groups := p.Groups()
	require.Len(t, groups, 3)
	assert.Equal(t, Group{Code: "A", Start: 0, End: 2}, groups[0])
	assert.Equal(t, Group{Code: "C", Start: 4, End: 5}, groups[2])

	assert.Equal(t, 1, p.Next(0))
	assert.Equal(t, -1, p.Next(1))
	assert.Equal(t, -1, p.Next(4))
	assert.Equal(t, 1, p.DateIndex(3))

	closes, ok := p.Column(FieldClose)
	require.True(t, ok)
	assert.Equal(t, 19.5, closes.Value(0))

	pct, _ := p.Column(FieldPctChg)
	_, valid := pct.At(2)
	assert.False(t, valid, "NaN input must be marked missing")

	status, ok := p.TextColumn(FieldCallStatus)
	require.True(t, ok)
	assert.Equal(t, "已公告强赎", status[0])
	assert.NotEmpty(t, p.Version())
}

func TestLoad_DuplicateKey(t *testing.T) {
	tbl := rawTable()
	tbl.Dates[0] = "2024-01-02" // B now appears twice on 2024-01-02

	_, err := Load(tbl)
	var dup *DuplicateKeyError
	require.True(t, errors.As(err, &dup))
	assert.Equal(t, "B", dup.Code)
	assert.Equal(t, "20240102", dup.Date)
}

func TestLoad_SchemaErrors(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Table)
		field  string
	}{
		{"missing numeric", func(t *Table) { delete(t.Numeric, FieldPreClose) }, FieldPreClose},
		{"missing call status", func(t *Table) { delete(t.Text, FieldCallStatus) }, FieldCallStatus},
		{"ragged column", func(t *Table) { t.Numeric[FieldAmount] = []float64{1} }, FieldAmount},
		{"malformed date", func(t *Table) { t.Dates[2] = "03/01/2024" }, FieldDate},
		{"empty code", func(t *Table) { t.Codes[1] = "" }, FieldCode},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tbl := rawTable()
			tt.mutate(&tbl)

			_, err := Load(tbl)
			var se SchemaError
			require.True(t, errors.As(err, &se), "got %v", err)
			assert.Equal(t, tt.field, se.Field)
		})
	}
}

func TestPanel_WithColumnsIsAppendOnly(t *testing.T) {
	p, err := Load(rawTable())
	require.NoError(t, err)

	extra := SeriesFromFloats([]float64{1, 2, 3, 4, 5})
	q, err := p.WithColumns(map[string]*Series{"score_input": extra})
	require.NoError(t, err)

	assert.True(t, q.HasNumeric("score_input"))
	assert.False(t, p.HasNumeric("score_input"), "receiver must not change")
	assert.Equal(t, p.Version(), q.Version())

	_, err = q.WithColumns(map[string]*Series{FieldClose: extra})
	assert.Error(t, err, "raw fields are never overwritten")

	_, err = p.WithColumns(map[string]*Series{"short": SeriesFromFloats([]float64{1})})
	assert.Error(t, err)
}

func TestPanel_VersionCoversAllColumns(t *testing.T) {
	load := func(mutate func(*Table)) string {
		tbl := rawTable()
		tbl.Numeric["bond_prem"] = []float64{10, 10, 10, 10, 10}
		if mutate != nil {
			mutate(&tbl)
		}
		p, err := Load(tbl)
		require.NoError(t, err)
		return p.Version()
	}

	base := load(nil)
	assert.Equal(t, base, load(nil), "same table, same version")

	tests := []struct {
		name   string
		mutate func(*Table)
	}{
		{"optional numeric", func(tbl *Table) { tbl.Numeric["bond_prem"][0] = 99 }},
		{"numeric validity", func(tbl *Table) { tbl.Numeric["bond_prem"][0] = math.NaN() }},
		{"call status", func(tbl *Table) { tbl.Text[FieldCallStatus][0] = "已满足强赎条件" }},
		{"extra text column", func(tbl *Table) { tbl.Text["name"] = []string{"b", "a", "b", "a", "c"} }},
		{"input order", func(tbl *Table) {
			tbl.Codes[1], tbl.Codes[3] = tbl.Codes[3], tbl.Codes[1]
			tbl.Dates[1], tbl.Dates[3] = tbl.Dates[3], tbl.Dates[1]
			for _, col := range tbl.Numeric {
				col[1], col[3] = col[3], col[1]
			}
			for _, col := range tbl.Text {
				col[1], col[3] = col[3], col[1]
			}
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.NotEqual(t, base, load(tt.mutate))
		})
	}
}

func TestPanel_SeqKeepsInputPosition(t *testing.T) {
	p, err := Load(rawTable())
	require.NoError(t, err)

	// 정렬 후: A/0102, A/0103, B/0102, B/0103, C/0103
	assert.Equal(t, []int{3, 1, 2, 0, 4}, []int{p.Seq(0), p.Seq(1), p.Seq(2), p.Seq(3), p.Seq(4)})

	s, err := p.Slice("2024-01-03", "")
	require.NoError(t, err)
	assert.Equal(t, []int{1, 0, 4}, []int{s.Seq(0), s.Seq(1), s.Seq(2)})
}

func TestPanel_Slice(t *testing.T) {
	p, err := Load(rawTable())
	require.NoError(t, err)

	s, err := p.Slice("2024-01-03", "2024-01-03")
	require.NoError(t, err)
	assert.Equal(t, 3, s.Len())
	assert.Equal(t, []string{"20240103"}, s.Dates())
	assert.Equal(t, -1, s.Next(0), "sliced rows only see in-range neighbours")
	assert.Equal(t, 5, p.Len(), "receiver must not change")

	open, err := p.Slice("", "20240102")
	require.NoError(t, err)
	assert.Equal(t, 2, open.Len())

	_, err = p.Slice("2024-02-01", "2024-01-01")
	assert.Error(t, err)
	_, err = p.Slice("yesterday", "")
	assert.Error(t, err)
}

func TestNormalizeDate(t *testing.T) {
	tests := []struct {
		in   string
		want string
		ok   bool
	}{
		{"20240105", "20240105", true},
		{"2024-01-05", "20240105", true},
		{"2024/01/05", "20240105", true},
		{"2024-01-05T00:00:00Z", "20240105", true},
		{" 2024-01-05 ", "20240105", true},
		{"05-01-2024", "", false},
		{"", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := NormalizeDate(tt.in)
			if !tt.ok {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}

	assert.Equal(t, "2024-01-05", ISODate("20240105"))
	assert.Equal(t, "bogus", ISODate("bogus"))
}

func TestSeriesBuilder(t *testing.T) {
	b := NewSeriesBuilder(3)
	b.Set(0, 1.5)
	b.Set(2, math.Inf(1))
	s := b.Build()

	v, ok := s.At(0)
	assert.True(t, ok)
	assert.Equal(t, 1.5, v)
	assert.False(t, s.Valid(1))
	assert.False(t, s.Valid(2))
	assert.True(t, math.IsNaN(s.Value(2)))
	assert.Equal(t, 1, s.ValidCount())
}
