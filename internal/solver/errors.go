package solver

import (
	"errors"
	"fmt"
)

var (
	// ErrNumericInstability is matched by errors.Is when a propensity
	// evaluates to NaN, an infinity, a negative value, or divides by zero.
	ErrNumericInstability = errors.New("numeric instability")

	// ErrTimeout marks a run that exceeded RunConfig.Timeout.
	ErrTimeout = errors.New("run timed out")

	// ErrStepLimit marks a run that exceeded RunConfig.MaxSteps.
	ErrStepLimit = errors.New("run exceeded step limit")

	// ErrAlreadySolved is returned when Solve is called twice on one handle.
	ErrAlreadySolved = errors.New("run handle already solved")
)

// NumericError reports a propensity that could not be evaluated to a
// usable rate. Err is the underlying cause: emodl.ErrDivisionByZero, or nil
// when the value itself was bad.
type NumericError struct {
	Run      int
	Reaction string
	Expr     string
	Time     float64
	Value    float64
	Err      error
}

func (e *NumericError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("run %d: reaction %q at t=%g: propensity %s: %v", e.Run, e.Reaction, e.Time, e.Expr, e.Err)
	}
	return fmt.Sprintf("run %d: reaction %q at t=%g: propensity %s evaluated to %g", e.Run, e.Reaction, e.Time, e.Expr, e.Value)
}

func (e *NumericError) Unwrap() []error {
	if e.Err == nil {
		return []error{ErrNumericInstability}
	}
	return []error{ErrNumericInstability, e.Err}
}
