package s2_universe

import (
	"fmt"
	"sort"

	"github.com/wonny/cbquant/internal/s0_data"
)

// CompileError reports an exclusion predicate that cannot be compiled
type CompileError struct {
	Expr string
	Pos  int
	Msg  string
}

func (e *CompileError) Error() string {
	return fmt.Sprintf("predicate %q at %d: %s", e.Expr, e.Pos, e.Msg)
}

// Schema tells the compiler which fields exist and their kind.
// *s0_data.Panel satisfies it.
type Schema interface {
	HasNumeric(name string) bool
	HasText(name string) bool
}

type exprType int

const (
	typeNum exprType = iota
	typeText
	typeBool
)

func (t exprType) String() string {
	switch t {
	case typeNum:
		return "number"
	case typeText:
		return "text"
	default:
		return "boolean"
	}
}

// expr is a node of the typed expression tree
type expr interface {
	typ() exprType
}

type numLit struct{ v float64 }

type textLit struct{ v string }

type field struct {
	name string
	t    exprType
}

type neg struct{ x expr }

type arith struct {
	op   byte
	l, r expr
}

type compare struct {
	op   string
	l, r expr
}

type logical struct {
	and  bool
	l, r expr
}

type not struct{ x expr }

func (numLit) typ() exprType  { return typeNum }
func (textLit) typ() exprType { return typeText }
func (f field) typ() exprType { return f.t }
func (neg) typ() exprType     { return typeNum }
func (arith) typ() exprType   { return typeNum }
func (compare) typ() exprType { return typeBool }
func (logical) typ() exprType { return typeBool }
func (not) typ() exprType     { return typeBool }

// Predicate is a compiled boolean row expression
type Predicate struct {
	expr   string
	root   expr
	fields []string
}

// Compile parses expr once and checks every field against schema
func Compile(src string, schema Schema) (*Predicate, error) {
	toks, err := tokenize(src)
	if err != nil {
		return nil, err
	}

	ps := &parser{src: src, toks: toks, schema: schema, fields: map[string]bool{}}
	root, err := ps.parseOr()
	if err != nil {
		return nil, err
	}
	if tok := ps.peek(); tok.kind != tokEOF {
		return nil, ps.errorf(tok, "unexpected %q", tok.text)
	}
	if root.typ() != typeBool {
		return nil, &CompileError{Expr: src, Pos: 0, Msg: "expression is " + root.typ().String() + ", not boolean"}
	}

	names := make([]string, 0, len(ps.fields))
	for name := range ps.fields {
		names = append(names, name)
	}
	sort.Strings(names)

	return &Predicate{expr: src, root: root, fields: names}, nil
}

// String returns the source expression
func (p *Predicate) String() string {
	return p.expr
}

// Fields lists the panel fields the predicate reads
func (p *Predicate) Fields() []string {
	return p.fields
}

// Bind resolves the predicate's columns on a panel and returns a row matcher.
// A comparison touching a missing value is false.
func (p *Predicate) Bind(panel *s0_data.Panel) (func(row int) bool, error) {
	for _, name := range p.fields {
		if !panel.HasNumeric(name) && !panel.HasText(name) {
			return nil, fmt.Errorf("predicate %q: field %q not in panel", p.expr, name)
		}
	}
	return bindBool(p.root, panel), nil
}

// Match evaluates the predicate on every row
func (p *Predicate) Match(panel *s0_data.Panel) ([]bool, error) {
	fn, err := p.Bind(panel)
	if err != nil {
		return nil, err
	}
	out := make([]bool, panel.Len())
	for i := range out {
		out[i] = fn(i)
	}
	return out, nil
}

type numFn func(row int) (float64, bool)
type textFn func(row int) (string, bool)

func bindNum(e expr, p *s0_data.Panel) numFn {
	switch n := e.(type) {
	case numLit:
		return func(int) (float64, bool) { return n.v, true }
	case field:
		col, _ := p.Column(n.name)
		return col.At
	case neg:
		x := bindNum(n.x, p)
		return func(i int) (float64, bool) {
			v, ok := x(i)
			return -v, ok
		}
	case arith:
		l, r := bindNum(n.l, p), bindNum(n.r, p)
		op := n.op
		return func(i int) (float64, bool) {
			a, ok1 := l(i)
			b, ok2 := r(i)
			if !ok1 || !ok2 {
				return 0, false
			}
			switch op {
			case '+':
				return a + b, true
			case '-':
				return a - b, true
			case '*':
				return a * b, true
			default:
				if b == 0 {
					return 0, false
				}
				return a / b, true
			}
		}
	}
	panic(fmt.Sprintf("s2_universe: %T is not numeric", e))
}

func bindText(e expr, p *s0_data.Panel) textFn {
	switch n := e.(type) {
	case textLit:
		return func(int) (string, bool) { return n.v, true }
	case field:
		col, _ := p.TextColumn(n.name)
		return func(i int) (string, bool) { return col[i], true }
	}
	panic(fmt.Sprintf("s2_universe: %T is not text", e))
}

func bindBool(e expr, p *s0_data.Panel) func(int) bool {
	switch n := e.(type) {
	case not:
		x := bindBool(n.x, p)
		return func(i int) bool { return !x(i) }
	case logical:
		l, r := bindBool(n.l, p), bindBool(n.r, p)
		if n.and {
			return func(i int) bool { return l(i) && r(i) }
		}
		return func(i int) bool { return l(i) || r(i) }
	case compare:
		if n.l.typ() == typeText {
			l, r := bindText(n.l, p), bindText(n.r, p)
			eq := n.op == "=="
			return func(i int) bool {
				a, _ := l(i)
				b, _ := r(i)
				return (a == b) == eq
			}
		}
		l, r := bindNum(n.l, p), bindNum(n.r, p)
		cmp := numCompare(n.op)
		return func(i int) bool {
			a, ok1 := l(i)
			b, ok2 := r(i)
			return ok1 && ok2 && cmp(a, b)
		}
	}
	panic(fmt.Sprintf("s2_universe: %T is not boolean", e))
}

func numCompare(op string) func(a, b float64) bool {
	switch op {
	case ">":
		return func(a, b float64) bool { return a > b }
	case "<":
		return func(a, b float64) bool { return a < b }
	case ">=":
		return func(a, b float64) bool { return a >= b }
	case "<=":
		return func(a, b float64) bool { return a <= b }
	case "==":
		return func(a, b float64) bool { return a == b }
	default:
		return func(a, b float64) bool { return a != b }
	}
}
