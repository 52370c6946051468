package s0_data

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"strconv"
	"strings"
)

// CSVOptions controls how a panel CSV is interpreted
type CSVOptions struct {
	// PctChgPercent marks pct_chg-like columns as percent (3.2 = 3.2%)
	PctChgPercent bool
	// TextColumns forces columns to text even if every cell parses as a number
	TextColumns []string
}

// percentColumns are rescaled to fractions when PctChgPercent is set
var percentColumns = []string{FieldPctChg, "pct_chg_stk"}

// LoadCSV reads a panel from a CSV file
func LoadCSV(path string, opts CSVOptions) (*Panel, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open panel csv: %w", err)
	}
	defer f.Close()

	table, err := ReadCSV(f, opts)
	if err != nil {
		return nil, fmt.Errorf("read panel csv %s: %w", path, err)
	}
	return Load(table)
}

// ReadCSV parses a header-first CSV into a raw Table.
// A column is numeric when every non-empty cell parses as a float.
func ReadCSV(r io.Reader, opts CSVOptions) (Table, error) {
	reader := csv.NewReader(r)
	reader.ReuseRecord = false

	header, err := reader.Read()
	if errors.Is(err, io.EOF) {
		return Table{}, SchemaError{"header", "empty file"}
	}
	if err != nil {
		return Table{}, fmt.Errorf("read header: %w", err)
	}
	for i := range header {
		header[i] = strings.TrimSpace(strings.TrimPrefix(header[i], "\ufeff"))
	}

	codeCol, dateCol := -1, -1
	for i, h := range header {
		switch h {
		case FieldCode:
			codeCol = i
		case FieldDate:
			dateCol = i
		}
	}
	if codeCol < 0 {
		return Table{}, SchemaError{FieldCode, "key column missing from header"}
	}
	if dateCol < 0 {
		return Table{}, SchemaError{FieldDate, "key column missing from header"}
	}

	records, err := reader.ReadAll()
	if err != nil {
		return Table{}, fmt.Errorf("read rows: %w", err)
	}

	forcedText := map[string]bool{}
	for _, name := range RequiredText {
		forcedText[name] = true
	}
	for _, name := range opts.TextColumns {
		forcedText[name] = true
	}

	t := Table{
		Codes:   make([]string, len(records)),
		Dates:   make([]string, len(records)),
		Numeric: make(map[string][]float64),
		Text:    make(map[string][]string),
	}
	for i, rec := range records {
		t.Codes[i] = strings.TrimSpace(rec[codeCol])
		t.Dates[i] = strings.TrimSpace(rec[dateCol])
	}

	for c, name := range header {
		if c == codeCol || c == dateCol || name == "" {
			continue
		}
		if !forcedText[name] {
			if vals, ok := parseNumericColumn(records, c); ok {
				t.Numeric[name] = vals
				continue
			}
		}
		col := make([]string, len(records))
		for i, rec := range records {
			col[i] = strings.TrimSpace(rec[c])
		}
		t.Text[name] = col
	}

	if opts.PctChgPercent {
		for _, name := range percentColumns {
			if col, ok := t.Numeric[name]; ok {
				for i := range col {
					col[i] /= 100
				}
			}
		}
	}

	return t, nil
}

func parseNumericColumn(records [][]string, c int) ([]float64, bool) {
	vals := make([]float64, len(records))
	for i, rec := range records {
		cell := strings.TrimSpace(rec[c])
		if isMissingCell(cell) {
			vals[i] = math.NaN()
			continue
		}
		v, err := strconv.ParseFloat(cell, 64)
		if err != nil {
			return nil, false
		}
		vals[i] = v
	}
	return vals, true
}

func isMissingCell(cell string) bool {
	switch strings.ToLower(cell) {
	case "", "nan", "null", "none", "na":
		return true
	}
	return false
}
