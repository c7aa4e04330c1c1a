package condition

import (
	"strings"
	"unicode"
)

// Grammar:
//
//	expr    := or
//	or      := and { "||" and }
//	and     := unary { "&&" unary }
//	unary   := "!" unary | primary
//	primary := "(" expr ")" | operand [ ("==" | "!=") operand ]
//	operand := ident | "'" chars "'" | "true" | "false"
type tokenKind int

const (
	tokIdent tokenKind = iota
	tokString
	tokAnd
	tokOr
	tokNot
	tokEq
	tokNeq
	tokLParen
	tokRParen
	tokEOF
)

type token struct {
	kind tokenKind
	text string
	pos  int
}

// Parse compiles an expression into an evaluable tree. The empty string is
// rejected; callers treat an absent condition as always-true before getting
// here.
func Parse(src string) (Expr, error) {
	toks, err := lex(src)
	if err != nil {
		return nil, err
	}
	p := &parser{src: src, toks: toks}
	expr, err := p.parseOr()
	if err != nil {
		return nil, err
	}
	if tk := p.peek(); tk.kind != tokEOF {
		return nil, &ParseError{Expr: src, Pos: tk.pos, Msg: "unexpected trailing input"}
	}
	return expr, nil
}

func lex(src string) ([]token, error) {
	var toks []token
	i := 0
	for i < len(src) {
		c := src[i]
		switch {
		case c == ' ' || c == '\t':
			i++
		case c == '(':
			toks = append(toks, token{tokLParen, "(", i})
			i++
		case c == ')':
			toks = append(toks, token{tokRParen, ")", i})
			i++
		case c == '&':
			if i+1 >= len(src) || src[i+1] != '&' {
				return nil, &ParseError{Expr: src, Pos: i, Msg: "expected &&"}
			}
			toks = append(toks, token{tokAnd, "&&", i})
			i += 2
		case c == '|':
			if i+1 >= len(src) || src[i+1] != '|' {
				return nil, &ParseError{Expr: src, Pos: i, Msg: "expected ||"}
			}
			toks = append(toks, token{tokOr, "||", i})
			i += 2
		case c == '=':
			if i+1 >= len(src) || src[i+1] != '=' {
				return nil, &ParseError{Expr: src, Pos: i, Msg: "expected =="}
			}
			toks = append(toks, token{tokEq, "==", i})
			i += 2
		case c == '!':
			if i+1 < len(src) && src[i+1] == '=' {
				toks = append(toks, token{tokNeq, "!=", i})
				i += 2
			} else {
				toks = append(toks, token{tokNot, "!", i})
				i++
			}
		case c == '\'':
			end := strings.IndexByte(src[i+1:], '\'')
			if end < 0 {
				return nil, &ParseError{Expr: src, Pos: i, Msg: "unterminated string literal"}
			}
			toks = append(toks, token{tokString, src[i+1 : i+1+end], i})
			i += end + 2
		case isIdentRune(rune(c)):
			start := i
			for i < len(src) && isIdentRune(rune(src[i])) {
				i++
			}
			toks = append(toks, token{tokIdent, src[start:i], start})
		default:
			return nil, &ParseError{Expr: src, Pos: i, Msg: "unexpected character"}
		}
	}
	toks = append(toks, token{tokEOF, "", len(src)})
	return toks, nil
}

func isIdentRune(r rune) bool {
	return unicode.IsLetter(r) || unicode.IsDigit(r) || r == '_' || r == '-' || r == '.'
}

type parser struct {
	src  string
	toks []token
	next int
}

func (p *parser) peek() token { return p.toks[p.next] }

func (p *parser) advance() token {
	tk := p.toks[p.next]
	if tk.kind != tokEOF {
		p.next++
	}
	return tk
}

func (p *parser) parseOr() (Expr, error) {
	left, err := p.parseAnd()
	if err != nil {
		return nil, err
	}
	for p.peek().kind == tokOr {
		p.advance()
		right, err := p.parseAnd()
		if err != nil {
			return nil, err
		}
		left = orExpr{left: left, right: right}
	}
	return left, nil
}

func (p *parser) parseAnd() (Expr, error) {
	left, err := p.parseUnary()
	if err != nil {
		return nil, err
	}
	for p.peek().kind == tokAnd {
		p.advance()
		right, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		left = andExpr{left: left, right: right}
	}
	return left, nil
}

func (p *parser) parseUnary() (Expr, error) {
	if p.peek().kind == tokNot {
		p.advance()
		inner, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		return notExpr{inner: inner}, nil
	}
	return p.parsePrimary()
}

func (p *parser) parsePrimary() (Expr, error) {
	tk := p.peek()
	if tk.kind == tokLParen {
		p.advance()
		inner, err := p.parseOr()
		if err != nil {
			return nil, err
		}
		if closing := p.advance(); closing.kind != tokRParen {
			return nil, &ParseError{Expr: p.src, Pos: closing.pos, Msg: "expected )"}
		}
		return inner, nil
	}

	left, err := p.parseOperand()
	if err != nil {
		return nil, err
	}
	switch p.peek().kind {
	case tokEq, tokNeq:
		op := p.advance()
		right, err := p.parseOperand()
		if err != nil {
			return nil, err
		}
		return equalExpr{left: left, right: right, negate: op.kind == tokNeq}, nil
	}
	return truthyExpr{op: left}, nil
}

func (p *parser) parseOperand() (operand, error) {
	tk := p.advance()
	switch tk.kind {
	case tokString:
		return literalOperand{val: tk.text}, nil
	case tokIdent:
		if tk.text == "true" || tk.text == "false" {
			return literalOperand{val: tk.text}, nil
		}
		return identOperand{name: tk.text}, nil
	default:
		return nil, &ParseError{Expr: p.src, Pos: tk.pos, Msg: "expected input name or literal"}
	}
}
