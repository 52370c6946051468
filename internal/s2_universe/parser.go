package s2_universe

import "fmt"

// parser is a recursive-descent parser producing a typed tree.
//
//	or      := and { "|" and }
//	and     := not { "&" not }
//	not     := "~" not | compare
//	compare := sum { cmpop sum }
//	sum     := product { ("+" | "-") product }
//	product := unary { ("*" | "/") unary }
//	unary   := "-" unary | primary
//	primary := number | string | field | "(" or ")"
type parser struct {
	src    string
	toks   []token
	pos    int
	schema Schema
	fields map[string]bool
}

func (p *parser) peek() token {
	return p.toks[p.pos]
}

func (p *parser) next() token {
	tok := p.toks[p.pos]
	if tok.kind != tokEOF {
		p.pos++
	}
	return tok
}

func (p *parser) isOp(ops ...string) bool {
	tok := p.peek()
	if tok.kind != tokOp {
		return false
	}
	for _, op := range ops {
		if tok.text == op {
			return true
		}
	}
	return false
}

func (p *parser) errorf(tok token, format string, args ...interface{}) *CompileError {
	return &CompileError{Expr: p.src, Pos: tok.pos, Msg: fmt.Sprintf(format, args...)}
}

func (p *parser) expect(tok token, e expr, want exprType) error {
	if e.typ() != want {
		return p.errorf(tok, "expected %s operand, got %s", want, e.typ())
	}
	return nil
}

func (p *parser) parseOr() (expr, error) {
	return p.parseLogical("|", false, p.parseAnd)
}

func (p *parser) parseAnd() (expr, error) {
	return p.parseLogical("&", true, p.parseNot)
}

func (p *parser) parseLogical(op string, and bool, operand func() (expr, error)) (expr, error) {
	start := p.peek()
	left, err := operand()
	if err != nil {
		return nil, err
	}
	for p.isOp(op) {
		tok := p.next()
		if err := p.expect(start, left, typeBool); err != nil {
			return nil, err
		}
		right, err := operand()
		if err != nil {
			return nil, err
		}
		if err := p.expect(tok, right, typeBool); err != nil {
			return nil, err
		}
		left = logical{and: and, l: left, r: right}
	}
	return left, nil
}

func (p *parser) parseNot() (expr, error) {
	if p.isOp("~") {
		tok := p.next()
		x, err := p.parseNot()
		if err != nil {
			return nil, err
		}
		if err := p.expect(tok, x, typeBool); err != nil {
			return nil, err
		}
		return not{x: x}, nil
	}
	return p.parseCompare()
}

// parseCompare also accepts chains: a < b < c means a < b & b < c
func (p *parser) parseCompare() (expr, error) {
	left, err := p.parseSum()
	if err != nil {
		return nil, err
	}

	var result expr
	for p.isOp(">", "<", ">=", "<=", "==", "!=") {
		tok := p.next()
		right, err := p.parseSum()
		if err != nil {
			return nil, err
		}
		cmp, err := p.typeCompare(tok, left, right)
		if err != nil {
			return nil, err
		}
		if result == nil {
			result = cmp
		} else {
			result = logical{and: true, l: result, r: cmp}
		}
		left = right
	}
	if result == nil {
		return left, nil
	}
	return result, nil
}

func (p *parser) typeCompare(tok token, l, r expr) (expr, error) {
	lt, rt := l.typ(), r.typ()
	switch {
	case lt == typeNum && rt == typeNum:
		return compare{op: tok.text, l: l, r: r}, nil
	case lt == typeText && rt == typeText:
		if tok.text != "==" && tok.text != "!=" {
			return nil, p.errorf(tok, "text supports only == and !=, got %s", tok.text)
		}
		return compare{op: tok.text, l: l, r: r}, nil
	default:
		return nil, p.errorf(tok, "cannot compare %s with %s", lt, rt)
	}
}

func (p *parser) parseSum() (expr, error) {
	left, err := p.parseProduct()
	if err != nil {
		return nil, err
	}
	for p.isOp("+", "-") {
		tok := p.next()
		right, err := p.parseProduct()
		if err != nil {
			return nil, err
		}
		if err := p.checkArith(tok, left, right); err != nil {
			return nil, err
		}
		left = arith{op: tok.text[0], l: left, r: right}
	}
	return left, nil
}

func (p *parser) parseProduct() (expr, error) {
	left, err := p.parseUnary()
	if err != nil {
		return nil, err
	}
	for p.isOp("*", "/") {
		tok := p.next()
		right, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		if err := p.checkArith(tok, left, right); err != nil {
			return nil, err
		}
		left = arith{op: tok.text[0], l: left, r: right}
	}
	return left, nil
}

func (p *parser) checkArith(tok token, l, r expr) error {
	if l.typ() != typeNum || r.typ() != typeNum {
		return p.errorf(tok, "arithmetic %s needs numbers, got %s and %s", tok.text, l.typ(), r.typ())
	}
	return nil
}

func (p *parser) parseUnary() (expr, error) {
	if p.isOp("-") {
		tok := p.next()
		x, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		if err := p.expect(tok, x, typeNum); err != nil {
			return nil, err
		}
		if lit, ok := x.(numLit); ok {
			return numLit{v: -lit.v}, nil
		}
		return neg{x: x}, nil
	}
	return p.parsePrimary()
}

func (p *parser) parsePrimary() (expr, error) {
	tok := p.next()
	switch tok.kind {
	case tokNumber:
		return numLit{v: tok.num}, nil
	case tokString:
		return textLit{v: tok.text}, nil
	case tokIdent:
		switch {
		case p.schema.HasNumeric(tok.text):
			p.fields[tok.text] = true
			return field{name: tok.text, t: typeNum}, nil
		case p.schema.HasText(tok.text):
			p.fields[tok.text] = true
			return field{name: tok.text, t: typeText}, nil
		default:
			return nil, p.errorf(tok, "unknown field %q", tok.text)
		}
	case tokLParen:
		inner, err := p.parseOr()
		if err != nil {
			return nil, err
		}
		if closing := p.next(); closing.kind != tokRParen {
			return nil, p.errorf(closing, "expected ), got %q", closing.text)
		}
		return inner, nil
	case tokEOF:
		return nil, p.errorf(tok, "unexpected end of expression")
	default:
		return nil, p.errorf(tok, "unexpected %q", tok.text)
	}
}
