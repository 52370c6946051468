package s0_data

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleCSV = `code,trade_date,open,high,low,close,pre_close,pct_chg,turnover,amount,is_call,bond_prem,rating
110001,2024-01-02,100,101,99,100.5,100,0.5,1.2,1000,,10.5,AA
110001,2024-01-03,100.5,102,100,101.5,100.5,1.0,1.1,900,,nan,AA
123002,2024-01-02,120,125,119,124,120,3.3,5.0,3000,已满足强赎条件,2.0,AA+
`

func TestReadCSV_TypesColumns(t *testing.T) {
	tbl, err := ReadCSV(strings.NewReader(sampleCSV), CSVOptions{PctChgPercent: true})
	require.NoError(t, err)

	assert.Equal(t, 3, tbl.Len())
	require.Contains(t, tbl.Numeric, "bond_prem")
	require.Contains(t, tbl.Text, "rating", "non-numeric column stays text")
	require.Contains(t, tbl.Text, FieldCallStatus)
	assert.Equal(t, "已满足强赎条件", tbl.Text[FieldCallStatus][2])

	assert.InDelta(t, 0.005, tbl.Numeric[FieldPctChg][0], 1e-12, "percent rescaled to fraction")
	assert.InDelta(t, 0.033, tbl.Numeric[FieldPctChg][2], 1e-12)

	p, err := Load(tbl)
	require.NoError(t, err)
	prem, _ := p.Column("bond_prem")
	assert.False(t, prem.Valid(1), "nan cell is missing")
}

func TestReadCSV_MissingKeyColumn(t *testing.T) {
	_, err := ReadCSV(strings.NewReader("code,close\nA,1\n"), CSVOptions{})
	var se SchemaError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, FieldDate, se.Field)

	_, err = ReadCSV(strings.NewReader(""), CSVOptions{})
	assert.Error(t, err)
}

func TestLoadCSV_FromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "panel.csv")
	require.NoError(t, os.WriteFile(path, []byte(sampleCSV), 0o644))

	p, err := LoadCSV(path, CSVOptions{})
	require.NoError(t, err)
	assert.Equal(t, 2, len(p.Groups()))
	assert.Equal(t, []string{"20240102", "20240103"}, p.Dates())

	_, err = LoadCSV(filepath.Join(t.TempDir(), "missing.csv"), CSVOptions{})
	assert.Error(t, err)
}
