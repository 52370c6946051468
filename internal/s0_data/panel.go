package s0_data

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"math"
	"sort"
)

// Column names of the canonical panel
const (
	FieldCode       = "code"
	FieldDate       = "trade_date"
	FieldOpen       = "open"
	FieldHigh       = "high"
	FieldLow        = "low"
	FieldClose      = "close"
	FieldPreClose   = "pre_close"
	FieldPctChg     = "pct_chg" // fraction, 0.01 = 1%
	FieldTurnover   = "turnover"
	FieldAmount     = "amount"
	FieldCallStatus = "is_call"
)

// RequiredNumeric lists the numeric columns every panel must carry
var RequiredNumeric = []string{
	FieldOpen, FieldHigh, FieldLow, FieldClose,
	FieldPreClose, FieldPctChg, FieldTurnover, FieldAmount,
}

// RequiredText lists the text columns every panel must carry
var RequiredText = []string{FieldCallStatus}

// SchemaError reports a structurally invalid input table (fatal)
type SchemaError struct {
	Field   string
	Message string
}

func (e SchemaError) Error() string {
	return fmt.Sprintf("schema: %s: %s", e.Field, e.Message)
}

// DuplicateKeyError reports a repeated (code, trade_date) pair
type DuplicateKeyError struct {
	Code string
	Date string
}

func (e *DuplicateKeyError) Error() string {
	return fmt.Sprintf("duplicate key (code=%s, trade_date=%s)", e.Code, e.Date)
}

// Table is the raw columnar input handed to Load.
// Missing numeric values are NaN; missing text values are "".
type Table struct {
	Codes   []string
	Dates   []string
	Numeric map[string][]float64
	Text    map[string][]string
}

// Len returns the number of raw rows
func (t Table) Len() int {
	return len(t.Codes)
}

// Group is one instrument's contiguous, date-ordered row range [Start, End)
type Group struct {
	Code  string
	Start int
	End   int
}

// Len returns the number of observations of the instrument
func (g Group) Len() int {
	return g.End - g.Start
}

// Panel is an immutable (instrument, date) table sorted by code then date.
// ⭐ SSOT: 모든 단계는 Panel을 읽기만 하고, 컬럼 추가는 WithColumns로 새 Panel을 만든다
type Panel struct {
	codes   []string
	dates   []string
	seq     []int // 입력 테이블에서의 행 위치
	numeric map[string]*Series
	text    map[string][]string

	groups   []Group
	dateList []string
	dateRows [][]int
	rowDate  []int

	version string
}

// Load validates and indexes a raw table.
// Schema problems and duplicate keys are fatal.
func Load(t Table) (*Panel, error) {
	n := len(t.Codes)
	if len(t.Dates) != n {
		return nil, SchemaError{FieldDate, fmt.Sprintf("has %d rows, %s has %d", len(t.Dates), FieldCode, n)}
	}

	for _, name := range RequiredNumeric {
		if _, ok := t.Numeric[name]; !ok {
			return nil, SchemaError{name, "required column missing"}
		}
	}
	for _, name := range RequiredText {
		if _, ok := t.Text[name]; !ok {
			return nil, SchemaError{name, "required column missing"}
		}
	}
	for name, col := range t.Numeric {
		if len(col) != n {
			return nil, SchemaError{name, fmt.Sprintf("has %d rows, expected %d", len(col), n)}
		}
		if _, dup := t.Text[name]; dup {
			return nil, SchemaError{name, "defined as both numeric and text"}
		}
	}
	for name, col := range t.Text {
		if len(col) != n {
			return nil, SchemaError{name, fmt.Sprintf("has %d rows, expected %d", len(col), n)}
		}
	}

	dates := make([]string, n)
	for i, raw := range t.Dates {
		d, err := NormalizeDate(raw)
		if err != nil {
			return nil, SchemaError{FieldDate, fmt.Sprintf("row %d: %v", i, err)}
		}
		if t.Codes[i] == "" {
			return nil, SchemaError{FieldCode, fmt.Sprintf("row %d: empty instrument code", i)}
		}
		dates[i] = d
	}

	order := make([]int, n)
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool {
		ia, ib := order[a], order[b]
		if t.Codes[ia] != t.Codes[ib] {
			return t.Codes[ia] < t.Codes[ib]
		}
		return dates[ia] < dates[ib]
	})

	for k := 1; k < n; k++ {
		prev, cur := order[k-1], order[k]
		if t.Codes[prev] == t.Codes[cur] && dates[prev] == dates[cur] {
			return nil, &DuplicateKeyError{Code: t.Codes[cur], Date: dates[cur]}
		}
	}

	p := &Panel{
		codes:   takeStrings(t.Codes, order),
		dates:   takeStrings(dates, order),
		seq:     order,
		numeric: make(map[string]*Series, len(t.Numeric)),
		text:    make(map[string][]string, len(t.Text)),
	}
	for name, col := range t.Numeric {
		p.numeric[name] = SeriesFromFloats(col).take(order)
	}
	for name, col := range t.Text {
		p.text[name] = takeStrings(col, order)
	}
	p.buildIndexes()
	p.version = p.fingerprint()

	return p, nil
}

func takeStrings(src []string, idx []int) []string {
	out := make([]string, len(idx))
	for j, i := range idx {
		out[j] = src[i]
	}
	return out
}

func takeInts(src []int, idx []int) []int {
	out := make([]int, len(idx))
	for j, i := range idx {
		out[j] = src[i]
	}
	return out
}

// buildIndexes derives instrument groups and per-date row lists.
// Rows are already sorted by (code, date), so each date's rows come out in instrument order.
func (p *Panel) buildIndexes() {
	n := len(p.codes)
	p.groups = p.groups[:0]
	for i := 0; i < n; i++ {
		if i == 0 || p.codes[i] != p.codes[i-1] {
			p.groups = append(p.groups, Group{Code: p.codes[i], Start: i})
		}
		p.groups[len(p.groups)-1].End = i + 1
	}

	seen := make(map[string]struct{})
	p.dateList = p.dateList[:0]
	for _, d := range p.dates {
		if _, ok := seen[d]; !ok {
			seen[d] = struct{}{}
			p.dateList = append(p.dateList, d)
		}
	}
	sort.Strings(p.dateList)

	pos := make(map[string]int, len(p.dateList))
	for i, d := range p.dateList {
		pos[d] = i
	}
	p.dateRows = make([][]int, len(p.dateList))
	p.rowDate = make([]int, n)
	for i, d := range p.dates {
		k := pos[d]
		p.rowDate[i] = k
		p.dateRows[k] = append(p.dateRows[k], i)
	}
}

// fingerprint hashes every key, input position and column value so caches can tell panels apart
func (p *Panel) fingerprint() string {
	h := sha256.New()
	var buf [8]byte
	writeInt := func(v uint64) {
		binary.LittleEndian.PutUint64(buf[:], v)
		h.Write(buf[:])
	}
	// 길이 접두로 문자열 경계를 구분
	writeString := func(s string) {
		writeInt(uint64(len(s)))
		h.Write([]byte(s))
	}

	writeInt(uint64(len(p.codes)))
	for i := range p.codes {
		writeString(p.codes[i])
		writeString(p.dates[i])
		writeInt(uint64(p.seq[i]))
	}

	for _, name := range p.NumericFields() {
		writeString(name)
		s := p.numeric[name]
		for i := 0; i < s.Len(); i++ {
			v, ok := s.At(i)
			if !ok {
				h.Write([]byte{0})
				continue
			}
			h.Write([]byte{1})
			writeInt(math.Float64bits(v))
		}
	}

	for _, name := range p.TextFields() {
		writeString(name)
		for _, v := range p.text[name] {
			writeString(v)
		}
	}

	return hex.EncodeToString(h.Sum(nil))[:16]
}

// Len returns the number of rows
func (p *Panel) Len() int {
	return len(p.codes)
}

// Version identifies the loaded data; derived panels keep their source's version
func (p *Panel) Version() string {
	return p.version
}

// Code returns the instrument code of row i
func (p *Panel) Code(i int) string {
	return p.codes[i]
}

// Seq returns the position of row i in the table given to Load
func (p *Panel) Seq(i int) int {
	return p.seq[i]
}

// Date returns the canonical trade date of row i
func (p *Panel) Date(i int) string {
	return p.dates[i]
}

// Groups returns the instrument groups in code order. Callers must not modify it.
func (p *Panel) Groups() []Group {
	return p.groups
}

// Dates returns the distinct trade dates in ascending order. Callers must not modify it.
func (p *Panel) Dates() []string {
	return p.dateList
}

// RowsAt returns the rows of the k-th distinct date in instrument order
func (p *Panel) RowsAt(k int) []int {
	return p.dateRows[k]
}

// RowsOn returns the rows observed on date (canonical form)
func (p *Panel) RowsOn(date string) []int {
	k := sort.SearchStrings(p.dateList, date)
	if k < len(p.dateList) && p.dateList[k] == date {
		return p.dateRows[k]
	}
	return nil
}

// DateIndex returns the position of row i's date in Dates()
func (p *Panel) DateIndex(i int) int {
	return p.rowDate[i]
}

// Next returns the next observation of row i's instrument, or -1
func (p *Panel) Next(i int) int {
	if i+1 < len(p.codes) && p.codes[i+1] == p.codes[i] {
		return i + 1
	}
	return -1
}

// Column returns a numeric column
func (p *Panel) Column(name string) (*Series, bool) {
	s, ok := p.numeric[name]
	return s, ok
}

// TextColumn returns a text column. Callers must not modify it.
func (p *Panel) TextColumn(name string) ([]string, bool) {
	s, ok := p.text[name]
	return s, ok
}

// HasNumeric reports whether a numeric column exists
func (p *Panel) HasNumeric(name string) bool {
	_, ok := p.numeric[name]
	return ok
}

// HasText reports whether a text column exists
func (p *Panel) HasText(name string) bool {
	_, ok := p.text[name]
	return ok
}

// NumericFields lists numeric column names in sorted order
func (p *Panel) NumericFields() []string {
	out := make([]string, 0, len(p.numeric))
	for name := range p.numeric {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// TextFields lists text column names in sorted order
func (p *Panel) TextFields() []string {
	out := make([]string, 0, len(p.text))
	for name := range p.text {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// WithColumns returns a new panel with extra numeric columns.
// Existing columns are shared, never replaced.
func (p *Panel) WithColumns(cols map[string]*Series) (*Panel, error) {
	names := make([]string, 0, len(cols))
	for name := range cols {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		if name == FieldCode || name == FieldDate || p.HasNumeric(name) || p.HasText(name) {
			return nil, fmt.Errorf("column %q already exists", name)
		}
		if cols[name].Len() != p.Len() {
			return nil, fmt.Errorf("column %q has %d rows, panel has %d", name, cols[name].Len(), p.Len())
		}
	}

	numeric := make(map[string]*Series, len(p.numeric)+len(cols))
	for name, s := range p.numeric {
		numeric[name] = s
	}
	for name, s := range cols {
		numeric[name] = s
	}

	return &Panel{
		codes:    p.codes,
		dates:    p.dates,
		seq:      p.seq,
		numeric:  numeric,
		text:     p.text,
		groups:   p.groups,
		dateList: p.dateList,
		dateRows: p.dateRows,
		rowDate:  p.rowDate,
		version:  p.version,
	}, nil
}

// Slice returns the rows with start <= trade_date <= end.
// Empty bounds are open; bounds may be in any format NormalizeDate accepts.
func (p *Panel) Slice(start, end string) (*Panel, error) {
	lo, hi := "", ""
	var err error
	if start != "" {
		if lo, err = NormalizeDate(start); err != nil {
			return nil, fmt.Errorf("start date: %w", err)
		}
	}
	if end != "" {
		if hi, err = NormalizeDate(end); err != nil {
			return nil, fmt.Errorf("end date: %w", err)
		}
	}
	if lo != "" && hi != "" && lo > hi {
		return nil, fmt.Errorf("start date %s is after end date %s", lo, hi)
	}

	idx := make([]int, 0, len(p.codes))
	for i, d := range p.dates {
		if (lo == "" || d >= lo) && (hi == "" || d <= hi) {
			idx = append(idx, i)
		}
	}

	out := &Panel{
		codes:   takeStrings(p.codes, idx),
		dates:   takeStrings(p.dates, idx),
		seq:     takeInts(p.seq, idx),
		numeric: make(map[string]*Series, len(p.numeric)),
		text:    make(map[string][]string, len(p.text)),
		version: p.version,
	}
	for name, s := range p.numeric {
		out.numeric[name] = s.take(idx)
	}
	for name, col := range p.text {
		out.text[name] = takeStrings(col, idx)
	}
	out.buildIndexes()

	return out, nil
}
