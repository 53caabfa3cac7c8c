package cms

import (
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/daniacca/cmsim/internal/dag"
)

// ViolationKind classifies a validation violation.
type ViolationKind int

const (
	UnresolvedSymbol ViolationKind = iota + 1
	DuplicateName
	FunctionCycle
	UndeclaredSpecies
	InvalidValue
	SyntaxViolation
)

func (k ViolationKind) String() string {
	switch k {
	case UnresolvedSymbol:
		return "unresolved symbol"
	case DuplicateName:
		return "duplicate name"
	case FunctionCycle:
		return "function cycle"
	case UndeclaredSpecies:
		return "undeclared species"
	case InvalidValue:
		return "invalid value"
	case SyntaxViolation:
		return "syntax error"
	default:
		return "unknown"
	}
}

func (k ViolationKind) sentinel() error {
	switch k {
	case UnresolvedSymbol:
		return ErrUnresolvedSymbol
	case DuplicateName:
		return ErrDuplicateName
	case FunctionCycle:
		return ErrFunctionCycle
	case UndeclaredSpecies:
		return ErrUndeclaredSpecies
	case InvalidValue:
		return ErrInvalidValue
	case SyntaxViolation:
		return ErrSyntax
	}
	return nil
}

// MarshalText renders the kind for JSON responses.
func (k ViolationKind) MarshalText() ([]byte, error) {
	return []byte(strings.ReplaceAll(k.String(), " ", "_")), nil
}

// Violation is one problem found in a model. Subject names the element the
// problem was found in (e.g. `reaction "human-infection"`), Name the
// offending name.
type Violation struct {
	Kind    ViolationKind `json:"kind"`
	Subject string        `json:"subject"`
	Name    string        `json:"name"`
	Detail  string        `json:"detail,omitempty"`
}

func (v Violation) String() string {
	msg := fmt.Sprintf("%s: %s %q", v.Subject, v.Kind, v.Name)
	if v.Detail != "" {
		msg += " (" + v.Detail + ")"
	}
	return msg
}

// ValidationResult is the outcome of Validate.
type ValidationResult struct {
	Violations []Violation
}

// OK reports whether the model has no violations.
func (r ValidationResult) OK() bool {
	return len(r.Violations) == 0
}

// Err returns a *ValidationError holding every violation, or nil.
func (r ValidationResult) Err() error {
	if r.OK() {
		return nil
	}
	return &ValidationError{Violations: append([]Violation(nil), r.Violations...)}
}

// Validate checks referential integrity and structural well-formedness of
// the model. Every violation is reported; the order is deterministic.
// Validate does not modify the model, so validating twice gives the same
// result.
func Validate(m *Model) ValidationResult {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var res ValidationResult
	add := func(v Violation) { res.Violations = append(res.Violations, v) }

	checkDuplicates(m, add)

	speciesSet := make(map[string]bool, len(m.species))
	for _, sp := range m.species {
		speciesSet[sp.Name] = true
	}

	for _, p := range m.parameters {
		if math.IsNaN(p.Value) || math.IsInf(p.Value, 0) {
			add(Violation{Kind: InvalidValue, Subject: subject(KindParameter, p.Name), Name: p.Name, Detail: fmt.Sprintf("value %v is not finite", p.Value)})
		}
	}

	for _, f := range m.functions {
		for _, sym := range f.Expr.Symbols() {
			if _, ok := m.names[sym]; !ok {
				add(Violation{Kind: UnresolvedSymbol, Subject: subject(KindFunction, f.Name), Name: sym})
			}
		}
	}

	for _, cycle := range functionCycles(m) {
		add(Violation{Kind: FunctionCycle, Subject: subject(KindFunction, cycle[0]), Name: cycle[0], Detail: strings.Join(cycle, " -> ")})
	}

	for _, r := range m.reactions {
		subj := subject(KindReaction, r.Name)
		for _, sym := range r.Propensity.Symbols() {
			if _, ok := m.names[sym]; !ok {
				add(Violation{Kind: UnresolvedSymbol, Subject: subj, Name: sym})
			}
		}
		reactants, _ := Multiplicities(r.Reactants)
		for _, name := range reactants {
			if !speciesSet[name] {
				add(Violation{Kind: UndeclaredSpecies, Subject: subj, Name: name, Detail: "reactant"})
			}
		}
		products, _ := Multiplicities(r.Products)
		for _, name := range products {
			if !speciesSet[name] {
				add(Violation{Kind: UndeclaredSpecies, Subject: subj, Name: name, Detail: "product"})
			}
		}
	}

	overrides := make([]string, 0, len(m.populations))
	for name := range m.populations {
		if !speciesSet[name] {
			overrides = append(overrides, name)
		}
	}
	sort.Strings(overrides)
	for _, name := range overrides {
		add(Violation{Kind: UndeclaredSpecies, Subject: "populations", Name: name, Detail: "initial population override"})
	}

	return res
}

func subject(kind Kind, name string) string {
	return fmt.Sprintf("%s %q", kind, name)
}

// checkDuplicates re-checks name uniqueness across the whole namespace. The
// builder already rejects duplicates; this guards models assembled by other
// means.
func checkDuplicates(m *Model, add func(Violation)) {
	seen := make(map[string]Kind)
	check := func(kind Kind, name string) {
		if prev, ok := seen[name]; ok {
			add(Violation{Kind: DuplicateName, Subject: subject(kind, name), Name: name, Detail: "already declared as " + prev.String()})
			return
		}
		seen[name] = kind
	}
	for _, sp := range m.species {
		check(KindSpecies, sp.Name)
	}
	for _, p := range m.parameters {
		check(KindParameter, p.Name)
	}
	for _, f := range m.functions {
		check(KindFunction, f.Name)
	}

	reactions := make(map[string]bool)
	for _, r := range m.reactions {
		if reactions[r.Name] {
			add(Violation{Kind: DuplicateName, Subject: subject(KindReaction, r.Name), Name: r.Name, Detail: "already declared as reaction"})
		}
		reactions[r.Name] = true
	}
}

// functionGraph builds the function dependency graph: an edge g -> f when f
// references g.
func functionGraph(m *Model) *dag.Graph {
	g := dag.NewGraph()
	for _, f := range m.functions {
		g.AddNode(f.Name)
	}
	for _, f := range m.functions {
		for _, sym := range f.Expr.Symbols() {
			if m.names[sym] == KindFunction {
				_ = g.AddEdge(sym, f.Name)
			}
		}
	}
	return g
}

// functionCycles returns each reference cycle as a path in reference order,
// e.g. [f1 f2 f1] when f1 references f2 and f2 references f1.
func functionCycles(m *Model) [][]string {
	cycles := functionGraph(m).Cycles()
	for _, c := range cycles {
		// graph edges point from dependency to dependent; reverse to read
		// "f1 references f2"
		for i, j := 0, len(c)-1; i < j; i, j = i+1, j-1 {
			c[i], c[j] = c[j], c[i]
		}
	}
	return cycles
}

// FunctionOrder returns function names with dependencies first. Models with a
// cycle fall back to declaration order.
func (m *Model) FunctionOrder() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	order, err := functionGraph(m).TopologicalSort()
	if err != nil {
		order = order[:0]
		for _, f := range m.functions {
			order = append(order, f.Name)
		}
	}
	return order
}
