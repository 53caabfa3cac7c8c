package cms

import (
	"fmt"
	"maps"
	"slices"
	"strings"
	"sync"

	"github.com/daniacca/cmsim/internal/emodl"
)

// Model is a reaction network under construction. Species, parameters,
// functions and reactions are added one at a time; each insertion is checked
// for name uniqueness. Symbols referenced by expressions are not required to
// exist yet; Validate checks them once the model is complete.
//
// Freeze makes the model read-only. A frozen model is safe for concurrent
// reads.
type Model struct {
	Name string

	mu          sync.RWMutex
	frozen      bool
	species     []*Species
	parameters  []*Parameter
	functions   []*Function
	reactions   []*Reaction
	names       map[string]Kind // species, parameters and functions
	reactionIDs map[string]struct{}
	populations map[string]int64
}

// NewModel creates an empty model with the given name.
func NewModel(name string) *Model {
	return &Model{
		Name:        name,
		names:       make(map[string]Kind),
		reactionIDs: make(map[string]struct{}),
		populations: make(map[string]int64),
	}
}

func (m *Model) checkWritable(name string) error {
	if m.frozen {
		return ErrModelFrozen
	}
	if strings.TrimSpace(name) == "" {
		return fmt.Errorf("name is required")
	}
	return nil
}

func (m *Model) claim(name string, kind Kind) error {
	if existing, ok := m.names[name]; ok {
		return &DuplicateNameError{Name: name, Kind: kind, Existing: existing}
	}
	m.names[name] = kind
	return nil
}

// AddSpecies declares a species with its initial population.
func (m *Model) AddSpecies(name string, initial int64, observe bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.checkWritable(name); err != nil {
		return err
	}
	if initial < 0 {
		return fmt.Errorf("species %q: initial population must be non-negative, got %d", name, initial)
	}
	if err := m.claim(name, KindSpecies); err != nil {
		return err
	}
	m.species = append(m.species, &Species{Name: name, Initial: initial, Observe: observe})
	return nil
}

// AddParameter declares a named constant.
func (m *Model) AddParameter(name string, value float64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.checkWritable(name); err != nil {
		return err
	}
	if err := m.claim(name, KindParameter); err != nil {
		return err
	}
	m.parameters = append(m.parameters, &Parameter{Name: name, Value: value})
	return nil
}

// AddFunction declares a derived function from prefix expression text.
func (m *Model) AddFunction(name, exprText string) error {
	expr, err := emodl.Parse(exprText)
	if err != nil {
		return fmt.Errorf("function %q: %w", name, err)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.checkWritable(name); err != nil {
		return err
	}
	if err := m.claim(name, KindFunction); err != nil {
		return err
	}
	m.functions = append(m.functions, &Function{Name: name, Expr: expr})
	return nil
}

// AddReaction declares a reaction. propensity is either expression text or
// the name of a function, which may be declared later.
func (m *Model) AddReaction(name string, reactants, products []string, propensity string) error {
	expr, err := emodl.Parse(propensity)
	if err != nil {
		return fmt.Errorf("reaction %q: %w", name, err)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.checkWritable(name); err != nil {
		return err
	}
	if _, exists := m.reactionIDs[name]; exists {
		return &DuplicateNameError{Name: name, Kind: KindReaction, Existing: KindReaction}
	}
	m.reactionIDs[name] = struct{}{}
	m.reactions = append(m.reactions, &Reaction{
		Name:       name,
		Reactants:  append([]string(nil), reactants...),
		Products:   append([]string(nil), products...),
		Propensity: expr,
	})
	return nil
}

// SetPopulations overrides initial populations by species name. Species not
// present in pops keep their declared initial value. Names that are not
// declared species are reported by Validate.
func (m *Model) SetPopulations(pops map[string]int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.frozen {
		return ErrModelFrozen
	}
	for name, n := range pops {
		if n < 0 {
			return fmt.Errorf("population for %q must be non-negative, got %d", name, n)
		}
	}
	maps.Copy(m.populations, pops)
	return nil
}

// Populations returns the initial population overrides.
func (m *Model) Populations() map[string]int64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return maps.Clone(m.populations)
}

// Initial returns the effective initial population of a species.
func (m *Model) Initial(name string) (int64, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.initial(name)
}

func (m *Model) initial(name string) (int64, bool) {
	if kind, ok := m.names[name]; !ok || kind != KindSpecies {
		return 0, false
	}
	if n, ok := m.populations[name]; ok {
		return n, true
	}
	for _, sp := range m.species {
		if sp.Name == name {
			return sp.Initial, true
		}
	}
	return 0, false
}

// Freeze makes the model read-only. It is idempotent.
func (m *Model) Freeze() {
	m.mu.Lock()
	m.frozen = true
	m.mu.Unlock()
}

// Frozen reports whether the model has been frozen.
func (m *Model) Frozen() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.frozen
}

// Lookup reports what a species, parameter or function name refers to.
func (m *Model) Lookup(name string) (Kind, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	k, ok := m.names[name]
	return k, ok
}

// Species returns the declared species in declaration order, with initial
// populations reflecting SetPopulations.
func (m *Model) Species() []Species {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]Species, 0, len(m.species))
	for _, sp := range m.species {
		s := *sp
		if n, ok := m.populations[s.Name]; ok {
			s.Initial = n
		}
		out = append(out, s)
	}
	return out
}

// Observed returns the names of observed species in declaration order.
func (m *Model) Observed() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []string
	for _, sp := range m.species {
		if sp.Observe {
			out = append(out, sp.Name)
		}
	}
	return out
}

// Parameters returns the declared parameters in declaration order.
func (m *Model) Parameters() []Parameter {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]Parameter, 0, len(m.parameters))
	for _, p := range m.parameters {
		out = append(out, *p)
	}
	return out
}

// Functions returns the declared functions in declaration order.
func (m *Model) Functions() []Function {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]Function, 0, len(m.functions))
	for _, f := range m.functions {
		out = append(out, *f)
	}
	return out
}

// Reactions returns copies of the declared reactions in declaration order.
func (m *Model) Reactions() []Reaction {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]Reaction, 0, len(m.reactions))
	for _, r := range m.reactions {
		rc := *r
		rc.Reactants = slices.Clone(r.Reactants)
		rc.Products = slices.Clone(r.Products)
		out = append(out, rc)
	}
	return out
}
