package cms

import (
	"errors"
	"testing"

	"github.com/daniacca/cmsim/internal/emodl"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestModel_AddAndAccessors(t *testing.T) {
	m := NewModel("sir")
	require.NoError(t, m.AddSpecies("S", 990, true))
	require.NoError(t, m.AddSpecies("I", 10, true))
	require.NoError(t, m.AddSpecies("R", 0, false))
	require.NoError(t, m.AddParameter("beta", 0.3))
	require.NoError(t, m.AddFunction("N", "(+ S I R)"))
	require.NoError(t, m.AddReaction("infection", []string{"S", "I"}, []string{"I", "I"}, "(/ (* beta S I) N)"))

	assert.Len(t, m.Species(), 3)
	assert.Equal(t, []string{"S", "I"}, m.Observed())
	assert.Equal(t, "beta", m.Parameters()[0].Name)
	assert.Equal(t, "(+ S I R)", m.Functions()[0].Expr.String())

	rs := m.Reactions()
	require.Len(t, rs, 1)
	assert.Equal(t, []string{"S", "I"}, rs[0].Reactants)

	kind, ok := m.Lookup("N")
	assert.True(t, ok)
	assert.Equal(t, KindFunction, kind)
}

func TestModel_DuplicateNames(t *testing.T) {
	m := NewModel("dup")
	require.NoError(t, m.AddSpecies("A", 1, true))

	err := m.AddParameter("A", 1)
	var dup *DuplicateNameError
	require.ErrorAs(t, err, &dup)
	assert.Equal(t, "A", dup.Name)
	assert.Equal(t, KindParameter, dup.Kind)
	assert.Equal(t, KindSpecies, dup.Existing)
	assert.True(t, errors.Is(err, ErrDuplicateName))

	require.Error(t, m.AddFunction("A", "1"))
	require.Error(t, m.AddSpecies("A", 2, false))

	require.NoError(t, m.AddReaction("r", []string{"A"}, nil, "1"))
	require.ErrorAs(t, m.AddReaction("r", []string{"A"}, nil, "2"), &dup)
	assert.Equal(t, KindReaction, dup.Existing)
}

func TestModel_ReactionNameMayShadowFunction(t *testing.T) {
	m := NewModel("shadow")
	require.NoError(t, m.AddFunction("feed", "1"))
	assert.NoError(t, m.AddReaction("feed", nil, nil, "feed"))
}

func TestModel_SyntaxErrors(t *testing.T) {
	m := NewModel("syntax")
	err := m.AddFunction("f", "(+ a")
	var syn *emodl.SyntaxError
	require.ErrorAs(t, err, &syn)

	err = m.AddReaction("r", nil, nil, "(^ a b)")
	require.ErrorAs(t, err, &syn)

	_, ok := m.Lookup("f")
	assert.False(t, ok, "failed insertion must not claim the name")
}

func TestModel_ForwardReferenceToFunction(t *testing.T) {
	m := NewModel("forward")
	require.NoError(t, m.AddSpecies("tsetse-susceptible", 10, true))
	require.NoError(t, m.AddSpecies("tsetse-exposed", 0, true))
	require.NoError(t, m.AddReaction("feed-and-infected", []string{"tsetse-susceptible"}, []string{"tsetse-exposed"}, "infectious-feed"))
	require.NoError(t, m.AddFunction("infectious-feed", "0.1"))

	assert.True(t, Validate(m).OK())
}

func TestModel_NegativeInitialPopulation(t *testing.T) {
	m := NewModel("neg")
	assert.Error(t, m.AddSpecies("A", -1, true))
	assert.Error(t, m.AddSpecies("", 1, true))
}

func TestModel_Populations(t *testing.T) {
	m := NewModel("pops")
	require.NoError(t, m.AddSpecies("A", 5, true))
	require.NoError(t, m.AddSpecies("B", 0, true))
	require.NoError(t, m.SetPopulations(map[string]int64{"B": 7}))

	n, ok := m.Initial("A")
	assert.True(t, ok)
	assert.EqualValues(t, 5, n)
	n, _ = m.Initial("B")
	assert.EqualValues(t, 7, n)
	assert.EqualValues(t, 7, m.Species()[1].Initial)

	assert.Error(t, m.SetPopulations(map[string]int64{"A": -3}))
}

func TestModel_Frozen(t *testing.T) {
	m := NewModel("frozen")
	require.NoError(t, m.AddSpecies("A", 1, true))
	m.Freeze()
	m.Freeze()
	assert.True(t, m.Frozen())

	assert.ErrorIs(t, m.AddSpecies("B", 1, true), ErrModelFrozen)
	assert.ErrorIs(t, m.AddParameter("k", 1), ErrModelFrozen)
	assert.ErrorIs(t, m.AddFunction("f", "1"), ErrModelFrozen)
	assert.ErrorIs(t, m.AddReaction("r", nil, nil, "1"), ErrModelFrozen)
	assert.ErrorIs(t, m.SetPopulations(map[string]int64{"A": 2}), ErrModelFrozen)
}

func TestMultiplicities(t *testing.T) {
	order, counts := Multiplicities([]string{"A", "B", "A"})
	assert.Equal(t, []string{"A", "B"}, order)
	assert.EqualValues(t, 2, counts["A"])
	assert.EqualValues(t, 1, counts["B"])
}

func TestModel_ReactionsAreCopies(t *testing.T) {
	m := NewModel("copies")
	require.NoError(t, m.AddSpecies("A", 2, true))
	require.NoError(t, m.AddSpecies("B", 0, true))
	require.NoError(t, m.AddReaction("convert", []string{"A"}, []string{"B"}, "A"))
	m.Freeze()

	rs := m.Reactions()
	rs[0].Reactants[0] = "B"
	rs[0].Products[0] = "A"

	cfg := m.Config()
	cfg.Reactions[0].Reactants[0] = "B"
	cfg.Reactions[0].Products = append(cfg.Reactions[0].Products[:0], "A")

	got := m.Reactions()[0]
	assert.Equal(t, []string{"A"}, got.Reactants)
	assert.Equal(t, []string{"B"}, got.Products)
}
