// Package client is a Go client for the cmsim HTTP API. It offers a fluent
// builder for model descriptions and typed calls for models, run sets and
// notifiers.
package client

import (
	"strconv"
	"strings"

	"github.com/daniacca/cmsim/internal/cms"
)

// ModelBuilder provides a fluent API for building model descriptions.
// Declaration order is kept; functions may be declared after the reactions
// that use them.
type ModelBuilder struct {
	name        string
	species     []cms.SpeciesConfig
	params      []cms.ParameterConfig
	funcs       []cms.FunctionConfig
	reactions   []*ReactionBuilder
	populations map[string]int64
}

// NewModel creates a model builder with the given name.
func NewModel(name string) *ModelBuilder {
	return &ModelBuilder{name: name}
}

// Species declares an observed species with its initial population.
func (mb *ModelBuilder) Species(name string, population int64) *ModelBuilder {
	mb.species = append(mb.species, cms.SpeciesConfig{Name: name, Population: population})
	return mb
}

// HiddenSpecies declares a species that takes part in reactions but is left
// out of the recorded trajectories.
func (mb *ModelBuilder) HiddenSpecies(name string, population int64) *ModelBuilder {
	observe := false
	mb.species = append(mb.species, cms.SpeciesConfig{Name: name, Population: population, Observe: &observe})
	return mb
}

// Param declares a named constant.
func (mb *ModelBuilder) Param(name string, value float64) *ModelBuilder {
	mb.params = append(mb.params, cms.ParameterConfig{Name: name, Value: value})
	return mb
}

// Func declares a named expression over species, parameters and other
// functions.
func (mb *ModelBuilder) Func(name, expr string) *ModelBuilder {
	mb.funcs = append(mb.funcs, cms.FunctionConfig{Name: name, Expr: expr})
	return mb
}

// Reaction adds a reaction.
func (mb *ModelBuilder) Reaction(rb *ReactionBuilder) *ModelBuilder {
	mb.reactions = append(mb.reactions, rb)
	return mb
}

// Population overrides the initial population of a species.
func (mb *ModelBuilder) Population(species string, n int64) *ModelBuilder {
	if mb.populations == nil {
		mb.populations = make(map[string]int64)
	}
	mb.populations[species] = n
	return mb
}

// Build converts the builder to the structured model description accepted by
// PutModel.
func (mb *ModelBuilder) Build() cms.ModelConfig {
	cfg := cms.ModelConfig{
		Name:       mb.name,
		Species:    append([]cms.SpeciesConfig(nil), mb.species...),
		Parameters: append([]cms.ParameterConfig(nil), mb.params...),
		Functions:  append([]cms.FunctionConfig(nil), mb.funcs...),
	}
	for _, rb := range mb.reactions {
		cfg.Reactions = append(cfg.Reactions, rb.Build())
	}
	if len(mb.populations) > 0 {
		cfg.Populations = make(map[string]int64, len(mb.populations))
		for k, v := range mb.populations {
			cfg.Populations[k] = v
		}
	}
	return cfg
}

// Compile builds and validates the model locally, returning the same
// *cms.ValidationError the server would report.
func (mb *ModelBuilder) Compile() (*cms.Model, error) {
	m, err := cms.BuildModel(mb.Build())
	if err != nil {
		return nil, err
	}
	if err := cms.Validate(m).Err(); err != nil {
		return nil, err
	}
	return m, nil
}

// ReactionBuilder provides a fluent API for building a reaction. A species
// listed twice is consumed or produced twice.
type ReactionBuilder struct {
	name       string
	reactants  []string
	products   []string
	propensity string
}

// NewReaction creates a reaction builder with the given name.
func NewReaction(name string) *ReactionBuilder {
	return &ReactionBuilder{name: name}
}

// From adds reactants.
func (rb *ReactionBuilder) From(species ...string) *ReactionBuilder {
	rb.reactants = append(rb.reactants, species...)
	return rb
}

// To adds products.
func (rb *ReactionBuilder) To(species ...string) *ReactionBuilder {
	rb.products = append(rb.products, species...)
	return rb
}

// Rate sets the propensity expression.
func (rb *ReactionBuilder) Rate(expr string) *ReactionBuilder {
	rb.propensity = expr
	return rb
}

// Build converts the builder to a ReactionConfig.
func (rb *ReactionBuilder) Build() cms.ReactionConfig {
	return cms.ReactionConfig{
		Name:       rb.name,
		Reactants:  append([]string{}, rb.reactants...),
		Products:   append([]string{}, rb.products...),
		Propensity: rb.propensity,
	}
}

// Add, Sub, Mul and Div write prefix expressions. Arguments are symbols or
// nested expressions; use Num for literals.
func Add(args ...string) string { return apply("+", args) }
func Sub(args ...string) string { return apply("-", args) }
func Mul(args ...string) string { return apply("*", args) }
func Div(args ...string) string { return apply("/", args) }

// Num formats a literal.
func Num(v float64) string {
	return strconv.FormatFloat(v, 'g', -1, 64)
}

func apply(op string, args []string) string {
	return "(" + op + " " + strings.Join(args, " ") + ")"
}
