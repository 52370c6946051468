package s2_universe

import (
	"fmt"
	"strconv"
	"strings"
	"text/scanner"
)

type tokenKind int

const (
	tokEOF tokenKind = iota
	tokNumber
	tokString
	tokIdent
	tokOp
	tokLParen
	tokRParen
)

type token struct {
	kind tokenKind
	text string
	num  float64
	pos  int
}

// keywords that act as logical operators
var wordOps = map[string]string{
	"and": "&",
	"or":  "|",
	"not": "~",
}

// tokenize splits an expression into tokens.
// Backtick-quoted text is an identifier; single or double quotes delimit strings.
func tokenize(expr string) ([]token, error) {
	var s scanner.Scanner
	s.Init(strings.NewReader(expr))
	s.Mode = scanner.ScanIdents | scanner.ScanFloats | scanner.ScanStrings | scanner.ScanRawStrings
	s.Whitespace = 1<<' ' | 1<<'\t' | 1<<'\n' | 1<<'\r'

	var scanErr error
	s.Error = func(_ *scanner.Scanner, msg string) {
		if scanErr == nil {
			scanErr = fmt.Errorf("%s", msg)
		}
	}

	var out []token
	for {
		r := s.Scan()
		pos := s.Position.Offset
		if scanErr != nil {
			return nil, &CompileError{Expr: expr, Pos: pos, Msg: scanErr.Error()}
		}

		switch r {
		case scanner.EOF:
			out = append(out, token{kind: tokEOF, pos: len(expr)})
			return out, nil

		case scanner.Int, scanner.Float:
			v, err := strconv.ParseFloat(s.TokenText(), 64)
			if err != nil {
				return nil, &CompileError{Expr: expr, Pos: pos, Msg: "bad number " + s.TokenText()}
			}
			out = append(out, token{kind: tokNumber, text: s.TokenText(), num: v, pos: pos})

		case scanner.String:
			v, err := strconv.Unquote(s.TokenText())
			if err != nil {
				return nil, &CompileError{Expr: expr, Pos: pos, Msg: "bad string " + s.TokenText()}
			}
			out = append(out, token{kind: tokString, text: v, pos: pos})

		case scanner.RawString:
			name := strings.Trim(s.TokenText(), "`")
			out = append(out, token{kind: tokIdent, text: name, pos: pos})

		case scanner.Ident:
			word := s.TokenText()
			if op, ok := wordOps[strings.ToLower(word)]; ok {
				out = append(out, token{kind: tokOp, text: op, pos: pos})
				continue
			}
			out = append(out, token{kind: tokIdent, text: word, pos: pos})

		case '\'':
			var b strings.Builder
			for {
				c := s.Next()
				if c == scanner.EOF || c == '\n' {
					return nil, &CompileError{Expr: expr, Pos: pos, Msg: "unterminated string"}
				}
				if c == '\'' {
					break
				}
				b.WriteRune(c)
			}
			out = append(out, token{kind: tokString, text: b.String(), pos: pos})

		case '(':
			out = append(out, token{kind: tokLParen, text: "(", pos: pos})
		case ')':
			out = append(out, token{kind: tokRParen, text: ")", pos: pos})

		case '<', '>', '=', '!':
			op := string(r)
			if s.Peek() == '=' {
				s.Next()
				op += "="
			}
			if op == "=" || op == "!" {
				return nil, &CompileError{Expr: expr, Pos: pos, Msg: "unexpected " + op}
			}
			out = append(out, token{kind: tokOp, text: op, pos: pos})

		case '&', '|':
			// && and || are accepted as aliases
			if s.Peek() == r {
				s.Next()
			}
			out = append(out, token{kind: tokOp, text: string(r), pos: pos})

		case '~', '+', '-', '*', '/':
			out = append(out, token{kind: tokOp, text: string(r), pos: pos})

		default:
			return nil, &CompileError{Expr: expr, Pos: pos, Msg: fmt.Sprintf("unexpected character %q", r)}
		}
	}
}
