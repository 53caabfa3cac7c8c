// Package emodl implements the prefix-notation expression language used for
// reaction propensities and derived functions, e.g.
//
//	(/ (* beta-h human-susceptible tsetse-infectious) human-population)
//
// Expressions are parsed into a small tagged tree and evaluated by recursive
// tree walk against a set of symbol bindings.
package emodl

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// Kind tags the variant held by an Expr node.
type Kind int

const (
	KindLiteral Kind = iota
	KindSymbol
	KindOp
)

func (k Kind) String() string {
	switch k {
	case KindLiteral:
		return "literal"
	case KindSymbol:
		return "symbol"
	case KindOp:
		return "op"
	default:
		return "unknown"
	}
}

// Op is an arithmetic operator.
type Op byte

const (
	OpAdd Op = '+'
	OpSub Op = '-'
	OpMul Op = '*'
	OpDiv Op = '/'
)

// parseOp maps an operator token to its Op.
func parseOp(tok string) (Op, bool) {
	if len(tok) != 1 {
		return 0, false
	}
	switch op := Op(tok[0]); op {
	case OpAdd, OpSub, OpMul, OpDiv:
		return op, true
	}
	return 0, false
}

// binary reports whether the operator takes exactly two operands.
func (o Op) binary() bool {
	return o == OpSub || o == OpDiv
}

func (o Op) String() string { return string(rune(o)) }

// Expr is a node of an expression tree: a numeric literal, a symbol reference
// (species, parameter or function name) or an operator applied to operands.
type Expr struct {
	Kind  Kind
	Value float64 // KindLiteral
	Name  string  // KindSymbol
	Op    Op      // KindOp
	Args  []*Expr // KindOp
	Pos   int     // byte offset in the source text
}

// Literal builds a literal node.
func Literal(v float64) *Expr { return &Expr{Kind: KindLiteral, Value: v} }

// Symbol builds a symbol reference node.
func Symbol(name string) *Expr { return &Expr{Kind: KindSymbol, Name: name} }

// Apply builds an operator node. Arity is not checked here; use Parse for
// untrusted input.
func Apply(op Op, args ...*Expr) *Expr { return &Expr{Kind: KindOp, Op: op, Args: args} }

// Resolver supplies values for symbols during evaluation.
type Resolver interface {
	Lookup(name string) (float64, bool)
}

// Bindings is a map-backed Resolver.
type Bindings map[string]float64

func (b Bindings) Lookup(name string) (float64, bool) {
	v, ok := b[name]
	return v, ok
}

// Eval evaluates the expression against r. It fails with *UnboundSymbolError
// when a symbol has no binding and with an error wrapping ErrDivisionByZero
// when a divisor evaluates to zero.
func (e *Expr) Eval(r Resolver) (float64, error) {
	switch e.Kind {
	case KindLiteral:
		return e.Value, nil
	case KindSymbol:
		v, ok := r.Lookup(e.Name)
		if !ok {
			return 0, &UnboundSymbolError{Name: e.Name}
		}
		return v, nil
	case KindOp:
		return e.evalOp(r)
	}
	return 0, fmt.Errorf("emodl: invalid node kind %d", e.Kind)
}

func (e *Expr) evalOp(r Resolver) (float64, error) {
	if len(e.Args) == 0 {
		return 0, fmt.Errorf("emodl: operator %s has no operands", e.Op)
	}
	acc, err := e.Args[0].Eval(r)
	if err != nil {
		return 0, err
	}
	for _, arg := range e.Args[1:] {
		v, err := arg.Eval(r)
		if err != nil {
			return 0, err
		}
		switch e.Op {
		case OpAdd:
			acc += v
		case OpSub:
			acc -= v
		case OpMul:
			acc *= v
		case OpDiv:
			if v == 0 {
				return 0, &DivisionError{Expr: e.String()}
			}
			acc /= v
		}
	}
	return acc, nil
}

// Symbols returns the distinct symbol names referenced by the expression,
// sorted.
func (e *Expr) Symbols() []string {
	seen := make(map[string]struct{})
	e.walk(func(n *Expr) {
		if n.Kind == KindSymbol {
			seen[n.Name] = struct{}{}
		}
	})
	out := make([]string, 0, len(seen))
	for name := range seen {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

func (e *Expr) walk(fn func(*Expr)) {
	fn(e)
	for _, arg := range e.Args {
		arg.walk(fn)
	}
}

// String renders the expression in canonical prefix notation.
func (e *Expr) String() string {
	var sb strings.Builder
	e.write(&sb)
	return sb.String()
}

func (e *Expr) write(sb *strings.Builder) {
	switch e.Kind {
	case KindLiteral:
		sb.WriteString(strconv.FormatFloat(e.Value, 'g', -1, 64))
	case KindSymbol:
		sb.WriteString(e.Name)
	case KindOp:
		sb.WriteByte('(')
		sb.WriteByte(byte(e.Op))
		for _, arg := range e.Args {
			sb.WriteByte(' ')
			arg.write(sb)
		}
		sb.WriteByte(')')
	}
}

// Equal reports whether two expressions have the same structure and values.
// Source positions are ignored.
func (e *Expr) Equal(o *Expr) bool {
	if e == nil || o == nil {
		return e == o
	}
	if e.Kind != o.Kind {
		return false
	}
	switch e.Kind {
	case KindLiteral:
		return e.Value == o.Value
	case KindSymbol:
		return e.Name == o.Name
	}
	if e.Op != o.Op || len(e.Args) != len(o.Args) {
		return false
	}
	for i := range e.Args {
		if !e.Args[i].Equal(o.Args[i]) {
			return false
		}
	}
	return true
}
