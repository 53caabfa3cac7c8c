package solver

import (
	"fmt"

	"github.com/daniacca/cmsim/internal/cms"
	"github.com/daniacca/cmsim/internal/emodl"
)

type stoich struct {
	species int
	count   float64
}

// involvement is one reaction's net change of a species.
type involvement struct {
	reaction int
	count    float64
}

type compiledReaction struct {
	name       string
	propensity *emodl.Program
	reactants  []stoich // multiplicities
	delta      []stoich // net change, zero entries dropped
}

// network is the read-only compiled form of a frozen model, shared by all
// runs. State vectors are laid out as species counts followed by parameter
// values.
type network struct {
	species   []string
	initial   []float64
	params    []float64
	observed  []int // species indices
	reactions []compiledReaction

	// tau selection: reactant species and, per species, the highest order of
	// any reaction consuming it together with its multiplicity there.
	reactantSpecies []int
	highestOrder    []int
	orderMult       []int
	changes         [][]involvement // per species
}

func compileNetwork(m *cms.Model) (*network, error) {
	species := m.Species()
	params := m.Parameters()

	n := &network{}
	slots := make(map[string]int, len(species)+len(params))
	for i, sp := range species {
		n.species = append(n.species, sp.Name)
		n.initial = append(n.initial, float64(sp.Initial))
		slots[sp.Name] = i
		if sp.Observe {
			n.observed = append(n.observed, i)
		}
	}
	for i, p := range params {
		n.params = append(n.params, p.Value)
		slots[p.Name] = len(species) + i
	}
	funcs := make(map[string]*emodl.Expr)
	for _, f := range m.Functions() {
		funcs[f.Name] = f.Expr
	}

	link := func(name string) (emodl.Binding, bool) {
		if slot, ok := slots[name]; ok {
			return emodl.Binding{Slot: slot}, true
		}
		if e, ok := funcs[name]; ok {
			return emodl.Binding{Expr: e}, true
		}
		return emodl.Binding{}, false
	}

	n.highestOrder = make([]int, len(species))
	n.orderMult = make([]int, len(species))
	n.changes = make([][]involvement, len(species))
	for _, r := range m.Reactions() {
		prog, err := emodl.Compile(r.Propensity, link)
		if err != nil {
			return nil, fmt.Errorf("compiling propensity of reaction %q: %w", r.Name, err)
		}
		cr := compiledReaction{name: r.Name, propensity: prog}

		net := make(map[int]float64)
		var touched []int
		order, counts := cms.Multiplicities(r.Reactants)
		var rxOrder int
		for _, name := range order {
			idx := slots[name]
			cr.reactants = append(cr.reactants, stoich{species: idx, count: float64(counts[name])})
			if _, ok := net[idx]; !ok {
				touched = append(touched, idx)
			}
			net[idx] -= float64(counts[name])
			rxOrder += int(counts[name])
		}
		for _, name := range r.Products {
			idx := slots[name]
			if _, ok := net[idx]; !ok {
				touched = append(touched, idx)
			}
			net[idx]++
		}
		for _, idx := range touched {
			if net[idx] != 0 {
				cr.delta = append(cr.delta, stoich{species: idx, count: net[idx]})
				n.changes[idx] = append(n.changes[idx], involvement{reaction: len(n.reactions), count: net[idx]})
			}
		}
		for _, rs := range cr.reactants {
			if rxOrder > n.highestOrder[rs.species] {
				n.highestOrder[rs.species] = rxOrder
				n.orderMult[rs.species] = int(rs.count)
			} else if rxOrder == n.highestOrder[rs.species] && int(rs.count) > n.orderMult[rs.species] {
				n.orderMult[rs.species] = int(rs.count)
			}
		}
		n.reactions = append(n.reactions, cr)
	}
	for i, order := range n.highestOrder {
		if order > 0 {
			n.reactantSpecies = append(n.reactantSpecies, i)
		}
	}
	return n, nil
}

// newState returns a fresh state vector holding initial populations and
// parameter values.
func (n *network) newState() []float64 {
	state := make([]float64, 0, len(n.initial)+len(n.params))
	state = append(state, n.initial...)
	return append(state, n.params...)
}
