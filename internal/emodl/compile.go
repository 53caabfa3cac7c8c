package emodl

import (
	"fmt"
)

// Binding is what a symbol resolves to when compiling: a slot in the state
// vector, or another expression to inline (a derived function).
type Binding struct {
	Slot int
	Expr *Expr
}

// Linker resolves a symbol name for Compile.
type Linker func(name string) (Binding, bool)

type pnode struct {
	kind  Kind
	op    Op
	value float64
	slot  int
	args  []int32
	text  string // source of division nodes, for error reporting
}

// Program is a compiled expression bound to slots of a []float64 state
// vector. Function references are inlined. Eval does not allocate unless it
// fails.
type Program struct {
	nodes  []pnode
	root   int32
	source string
}

// Compile binds every symbol of e through link. Symbols that link to an
// expression are compiled in place; a reference cycle is reported as an
// error rather than recursing forever.
func Compile(e *Expr, link Linker) (*Program, error) {
	p := &Program{source: e.String()}
	root, err := p.compile(e, link, map[*Expr]bool{})
	if err != nil {
		return nil, err
	}
	p.root = root
	return p, nil
}

func (p *Program) compile(e *Expr, link Linker, inlining map[*Expr]bool) (int32, error) {
	switch e.Kind {
	case KindLiteral:
		return p.push(pnode{kind: KindLiteral, value: e.Value}), nil
	case KindSymbol:
		b, ok := link(e.Name)
		if !ok {
			return 0, &UnboundSymbolError{Name: e.Name}
		}
		if b.Expr == nil {
			return p.push(pnode{kind: KindSymbol, slot: b.Slot}), nil
		}
		if inlining[b.Expr] {
			return 0, fmt.Errorf("emodl: cyclic reference through %q", e.Name)
		}
		inlining[b.Expr] = true
		idx, err := p.compile(b.Expr, link, inlining)
		delete(inlining, b.Expr)
		return idx, err
	case KindOp:
		args := make([]int32, 0, len(e.Args))
		for _, arg := range e.Args {
			idx, err := p.compile(arg, link, inlining)
			if err != nil {
				return 0, err
			}
			args = append(args, idx)
		}
		n := pnode{kind: KindOp, op: e.Op, args: args}
		if e.Op == OpDiv {
			n.text = e.String()
		}
		return p.push(n), nil
	}
	return 0, fmt.Errorf("emodl: invalid node kind %d", e.Kind)
}

func (p *Program) push(n pnode) int32 {
	p.nodes = append(p.nodes, n)
	return int32(len(p.nodes) - 1)
}

// Source returns the prefix text of the expression the program was compiled
// from (before inlining).
func (p *Program) Source() string { return p.source }

// Eval evaluates the program against the state vector.
func (p *Program) Eval(state []float64) (float64, error) {
	return p.eval(p.root, state)
}

func (p *Program) eval(i int32, state []float64) (float64, error) {
	n := &p.nodes[i]
	switch n.kind {
	case KindLiteral:
		return n.value, nil
	case KindSymbol:
		return state[n.slot], nil
	}
	acc, err := p.eval(n.args[0], state)
	if err != nil {
		return 0, err
	}
	for _, a := range n.args[1:] {
		v, err := p.eval(a, state)
		if err != nil {
			return 0, err
		}
		switch n.op {
		case OpAdd:
			acc += v
		case OpSub:
			acc -= v
		case OpMul:
			acc *= v
		case OpDiv:
			if v == 0 {
				return 0, &DivisionError{Expr: n.text}
			}
			acc /= v
		}
	}
	return acc, nil
}
