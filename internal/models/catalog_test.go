package models

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/daniacca/cmsim/internal/cms"
	"github.com/daniacca/cmsim/internal/solver"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func TestNames(t *testing.T) {
	assert.Equal(t, []string{"decay", "hat", "hat-expanded"}, Names())
}

func TestHAT_Structure(t *testing.T) {
	tests := []struct {
		name      string
		functions int
		reactions int
	}{
		{HAT, 3, 20},
		{HATExpanded, 2, 26},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m, err := Build(tt.name, nil)
			require.NoError(t, err)
			require.True(t, cms.Validate(m).OK(), "violations: %v", cms.Validate(m).Err())

			assert.Equal(t, tt.name, m.Name)
			assert.Len(t, m.Species(), 14)
			assert.Len(t, m.Observed(), 14)
			assert.Len(t, m.Parameters(), 15)
			assert.Len(t, m.Functions(), tt.functions)
			assert.Len(t, m.Reactions(), tt.reactions)

			for name, want := range HATPopulations {
				got, ok := m.Initial(name)
				require.True(t, ok, name)
				assert.Equal(t, want, got, name)
			}
			n, _ := m.Initial("human-exposed")
			assert.Zero(t, n)
		})
	}
}

func TestHAT_FunctionOrder(t *testing.T) {
	m, err := Build(HAT, nil)
	require.NoError(t, err)
	order := m.FunctionOrder()
	require.Len(t, order, 3)
	assert.Equal(t, "infectious-feed", order[2])
}

func TestBuild_Overrides(t *testing.T) {
	m, err := Build(HAT, map[string]int64{"human-infectious-one": 5, "tsetse-infectious": 0})
	require.NoError(t, err)

	n, _ := m.Initial("human-infectious-one")
	assert.EqualValues(t, 5, n)
	n, _ = m.Initial("tsetse-infectious")
	assert.Zero(t, n)
	n, _ = m.Initial("human-susceptible")
	assert.EqualValues(t, 10_000, n)

	// defaults are not shared between builds
	fresh, err := Build(HAT, nil)
	require.NoError(t, err)
	n, _ = fresh.Initial("tsetse-infectious")
	assert.EqualValues(t, 100, n)
}

func TestBuild_UnknownSpeciesOverride(t *testing.T) {
	m, err := Build(Decay, map[string]int64{"non-reservoir-hosts": 1_000})
	require.NoError(t, err)

	res := cms.Validate(m)
	require.Len(t, res.Violations, 1)
	assert.Equal(t, cms.UndeclaredSpecies, res.Violations[0].Kind)
	assert.Equal(t, "non-reservoir-hosts", res.Violations[0].Name)
}

func TestBuild_Errors(t *testing.T) {
	_, err := Build("sir", nil)
	assert.ErrorIs(t, err, ErrUnknownModel)

	_, err = Build(Decay, map[string]int64{"A": -1})
	assert.Error(t, err)
}

func TestResolve(t *testing.T) {
	m, err := Resolve(Decay, nil)
	require.NoError(t, err)
	assert.Equal(t, Decay, m.Name)

	src, err := Build(Decay, nil)
	require.NoError(t, err)
	data, err := yaml.Marshal(src.Config())
	require.NoError(t, err)
	path := filepath.Join(t.TempDir(), "decay.yaml")
	require.NoError(t, os.WriteFile(path, data, 0o644))

	m, err = Resolve(path, map[string]int64{"B": 3})
	require.NoError(t, err)
	n, _ := m.Initial("A")
	assert.EqualValues(t, 100, n)
	n, _ = m.Initial("B")
	assert.EqualValues(t, 3, n)

	_, err = Resolve("model.txt", nil)
	assert.ErrorIs(t, err, ErrUnknownModel)
	_, err = Resolve(filepath.Join(t.TempDir(), "missing.json"), nil)
	assert.Error(t, err)
}

func TestHAT_SolveConservesSubPopulations(t *testing.T) {
	m, err := Build(HAT, nil)
	require.NoError(t, err)

	cfg := solver.DefaultRunConfig()
	cfg.Runs = 2
	cfg.Duration = 30
	cfg.Samples = 30

	s := solver.New()
	h, err := s.CreateRun(m, cfg)
	require.NoError(t, err)
	require.NoError(t, s.Solve(context.Background(), h))
	require.Equal(t, 2, h.Summary().Completed)

	values := map[string][]float64{}
	for _, tr := range s.Trajectories(h) {
		if tr.Run == 0 {
			values[tr.Species] = tr.Values
		}
	}

	groups := map[float64][]string{
		10_000:  {"human-susceptible", "human-exposed", "human-infectious-one", "human-infectious-two", "human-recovered"},
		100_000: {"tsetse-susceptible", "tsetse-exposed", "tsetse-infectious", "tsetse-non-susceptible"},
		1_000:   {"reservoir-susceptible", "reservoir-exposed", "reservoir-infectious", "reservoir-recovered"},
	}
	for total, species := range groups {
		for i := range cfg.Samples {
			sum := 0.0
			for _, sp := range species {
				sum += values[sp][i]
			}
			assert.Equal(t, total, sum, "sample %d of %v", i, species)
		}
	}

	// cumulative infections never decrease
	cum := values["human-infection-cumulative"]
	for i := 1; i < len(cum); i++ {
		assert.GreaterOrEqual(t, cum[i], cum[i-1])
	}
}
