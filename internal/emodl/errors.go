package emodl

import (
	"errors"
	"fmt"
)

// ErrDivisionByZero is wrapped by every error produced when a divisor
// evaluates to zero.
var ErrDivisionByZero = errors.New("division by zero")

// SyntaxError reports malformed expression text.
type SyntaxError struct {
	Pos int
	Msg string
}

func (e *SyntaxError) Error() string {
	return fmt.Sprintf("syntax error at offset %d: %s", e.Pos, e.Msg)
}

// UnboundSymbolError reports a symbol without a value at evaluation time.
type UnboundSymbolError struct {
	Name string
}

func (e *UnboundSymbolError) Error() string {
	return fmt.Sprintf("unbound symbol %q", e.Name)
}

// DivisionError identifies the sub-expression whose divisor was zero.
type DivisionError struct {
	Expr string
}

func (e *DivisionError) Error() string {
	return fmt.Sprintf("division by zero in %s", e.Expr)
}

func (e *DivisionError) Unwrap() error { return ErrDivisionByZero }
