package emodl

import (
	"fmt"
	"strconv"
	"unicode"
	"unicode/utf8"
)

type tokenKind int

const (
	tokOpen tokenKind = iota
	tokClose
	tokAtom
)

type token struct {
	kind tokenKind
	text string
	pos  int
}

// tokenize splits text into parentheses and whitespace-separated atoms.
// Positions are byte offsets.
func tokenize(text string) []token {
	var tokens []token
	i := 0
	for i < len(text) {
		c, size := utf8.DecodeRuneInString(text[i:])
		switch {
		case unicode.IsSpace(c):
			i += size
		case c == '(':
			tokens = append(tokens, token{kind: tokOpen, text: "(", pos: i})
			i++
		case c == ')':
			tokens = append(tokens, token{kind: tokClose, text: ")", pos: i})
			i++
		default:
			start := i
			for i < len(text) {
				c, size := utf8.DecodeRuneInString(text[i:])
				if unicode.IsSpace(c) || c == '(' || c == ')' {
					break
				}
				i += size
			}
			tokens = append(tokens, token{kind: tokAtom, text: text[start:i], pos: start})
		}
	}
	return tokens
}

type parser struct {
	tokens []token
	pos    int
	end    int
}

// Parse parses prefix-notation expression text. A bare literal or symbol is
// a complete expression, so a function name can be used as a propensity.
func Parse(text string) (*Expr, error) {
	p := &parser{tokens: tokenize(text), end: len(text)}
	if len(p.tokens) == 0 {
		return nil, &SyntaxError{Pos: 0, Msg: "empty expression"}
	}
	e, err := p.parseExpr()
	if err != nil {
		return nil, err
	}
	if p.pos < len(p.tokens) {
		tok := p.tokens[p.pos]
		if tok.kind == tokClose {
			return nil, &SyntaxError{Pos: tok.pos, Msg: "unbalanced ')'"}
		}
		return nil, &SyntaxError{Pos: tok.pos, Msg: fmt.Sprintf("unexpected %q after expression", tok.text)}
	}
	return e, nil
}

// MustParse is like Parse but panics on error. Intended for static model
// definitions.
func MustParse(text string) *Expr {
	e, err := Parse(text)
	if err != nil {
		panic(err)
	}
	return e
}

func (p *parser) next() (token, bool) {
	if p.pos >= len(p.tokens) {
		return token{}, false
	}
	tok := p.tokens[p.pos]
	p.pos++
	return tok, true
}

func (p *parser) parseExpr() (*Expr, error) {
	tok, ok := p.next()
	if !ok {
		return nil, &SyntaxError{Pos: p.end, Msg: "unexpected end of expression"}
	}
	switch tok.kind {
	case tokClose:
		return nil, &SyntaxError{Pos: tok.pos, Msg: "unbalanced ')'"}
	case tokOpen:
		return p.parseList(tok.pos)
	}
	return parseAtom(tok)
}

func (p *parser) parseList(open int) (*Expr, error) {
	head, ok := p.next()
	if !ok {
		return nil, &SyntaxError{Pos: open, Msg: "unbalanced '('"}
	}
	switch head.kind {
	case tokClose:
		return nil, &SyntaxError{Pos: head.pos, Msg: "empty list"}
	case tokOpen:
		return nil, &SyntaxError{Pos: head.pos, Msg: "expected operator, found '('"}
	}
	op, ok := parseOp(head.text)
	if !ok {
		return nil, &SyntaxError{Pos: head.pos, Msg: fmt.Sprintf("unknown operator %q", head.text)}
	}

	e := &Expr{Kind: KindOp, Op: op, Pos: open}
	for {
		if p.pos >= len(p.tokens) {
			return nil, &SyntaxError{Pos: open, Msg: "unbalanced '('"}
		}
		if p.tokens[p.pos].kind == tokClose {
			p.pos++
			break
		}
		arg, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		e.Args = append(e.Args, arg)
	}

	switch {
	case op.binary() && len(e.Args) != 2:
		return nil, &SyntaxError{Pos: open, Msg: fmt.Sprintf("operator %s takes exactly 2 operands, got %d", op, len(e.Args))}
	case len(e.Args) == 0:
		return nil, &SyntaxError{Pos: open, Msg: fmt.Sprintf("operator %s needs at least 1 operand", op)}
	}
	return e, nil
}

func parseAtom(tok token) (*Expr, error) {
	if _, isOp := parseOp(tok.text); isOp {
		return nil, &SyntaxError{Pos: tok.pos, Msg: fmt.Sprintf("operator %q used as operand", tok.text)}
	}
	if looksNumeric(tok.text) {
		v, err := strconv.ParseFloat(tok.text, 64)
		if err != nil {
			return nil, &SyntaxError{Pos: tok.pos, Msg: fmt.Sprintf("malformed number %q", tok.text)}
		}
		return &Expr{Kind: KindLiteral, Value: v, Pos: tok.pos}, nil
	}
	return &Expr{Kind: KindSymbol, Name: tok.text, Pos: tok.pos}, nil
}

// looksNumeric reports whether an atom must be read as a number: it starts
// with a digit or '.', optionally after a sign. Names such as "nan" or
// "inf-rate" stay symbols.
func looksNumeric(s string) bool {
	if s == "" {
		return false
	}
	if s[0] == '+' || s[0] == '-' {
		s = s[1:]
	}
	return s != "" && (s[0] == '.' || (s[0] >= '0' && s[0] <= '9'))
}
