package cms

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrModelFrozen is returned by builder calls on a model that has been
	// handed to the solver.
	ErrModelFrozen = errors.New("model is frozen")

	// Sentinels matched by errors.Is against a *ValidationError that holds at
	// least one violation of the corresponding kind.
	ErrUnresolvedSymbol  = errors.New("unresolved symbol")
	ErrDuplicateName     = errors.New("duplicate name")
	ErrFunctionCycle     = errors.New("function reference cycle")
	ErrUndeclaredSpecies = errors.New("undeclared species")
	ErrInvalidValue      = errors.New("invalid value")
	ErrSyntax            = errors.New("expression syntax error")
)

// DuplicateNameError reports an insertion whose name is already taken.
type DuplicateNameError struct {
	Name     string
	Kind     Kind // kind being added
	Existing Kind // kind already holding the name
}

func (e *DuplicateNameError) Error() string {
	return fmt.Sprintf("cannot add %s %q: name already used by a %s", e.Kind, e.Name, e.Existing)
}

func (e *DuplicateNameError) Unwrap() error { return ErrDuplicateName }

// ValidationError collects every violation found in a model.
type ValidationError struct {
	Violations []Violation
}

func (e *ValidationError) Error() string {
	if len(e.Violations) == 0 {
		return "invalid model: unknown validation error"
	}
	if len(e.Violations) == 1 {
		return e.Violations[0].String()
	}
	return "model validation errors: " + strings.Join(e.Issues(), "; ")
}

// Issues returns the violations rendered as strings.
func (e *ValidationError) Issues() []string {
	out := make([]string, 0, len(e.Violations))
	for _, v := range e.Violations {
		out = append(out, v.String())
	}
	return out
}

func (e *ValidationError) Add(v Violation) {
	e.Violations = append(e.Violations, v)
}

func (e *ValidationError) HasIssues() bool {
	return len(e.Violations) > 0
}

// Is reports whether any violation has the kind represented by target.
func (e *ValidationError) Is(target error) bool {
	for _, v := range e.Violations {
		if v.Kind.sentinel() == target {
			return true
		}
	}
	return false
}
