package cms

import "github.com/daniacca/cmsim/internal/emodl"

// Kind identifies what a name in the model namespace refers to.
type Kind int

const (
	KindSpecies Kind = iota + 1
	KindParameter
	KindFunction
	KindReaction
)

func (k Kind) String() string {
	switch k {
	case KindSpecies:
		return "species"
	case KindParameter:
		return "parameter"
	case KindFunction:
		return "function"
	case KindReaction:
		return "reaction"
	default:
		return "unknown"
	}
}

// Species is a discrete-count population compartment, e.g. susceptible
// humans. Initial is the declared initial population; Observe marks the
// species for trajectory recording.
type Species struct {
	Name    string
	Initial int64
	Observe bool
}

// Parameter is a named constant.
type Parameter struct {
	Name  string
	Value float64
}

// Function is a derived quantity computed on demand from species,
// parameters and other functions.
type Function struct {
	Name string
	Expr *emodl.Expr
}

// Reaction is a stoichiometric transition. Reactants and Products are
// multisets: a name listed twice has multiplicity two. Propensity is the
// rate expression; a bare function name is a symbol expression.
type Reaction struct {
	Name       string
	Reactants  []string
	Products   []string
	Propensity *emodl.Expr
}

// Multiplicities counts each species in a reactant or product list, keeping
// first-appearance order in the returned names.
func Multiplicities(names []string) ([]string, map[string]int64) {
	counts := make(map[string]int64, len(names))
	order := make([]string, 0, len(names))
	for _, n := range names {
		if _, seen := counts[n]; !seen {
			order = append(order, n)
		}
		counts[n]++
	}
	return order, counts
}
