package solver

import (
	"context"
	"errors"
	"maps"
	"slices"
	"sync"
	"testing"
	"time"

	"github.com/daniacca/cmsim/internal/cms"
	"github.com/daniacca/cmsim/internal/emodl"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type reaction struct {
	name                string
	reactants, products []string
	propensity          string
}

func buildModel(t *testing.T, species map[string]int64, params map[string]float64, reactions ...reaction) *cms.Model {
	t.Helper()
	m := cms.NewModel(t.Name())
	for _, name := range slices.Sorted(maps.Keys(species)) {
		require.NoError(t, m.AddSpecies(name, species[name], true))
	}
	for _, name := range slices.Sorted(maps.Keys(params)) {
		require.NoError(t, m.AddParameter(name, params[name]))
	}
	for _, r := range reactions {
		require.NoError(t, m.AddReaction(r.name, r.reactants, r.products, r.propensity))
	}
	return m
}

// seir is a closed S -> E -> I -> R -> S network.
func seir(t *testing.T) *cms.Model {
	return buildModel(t,
		map[string]int64{"S": 990, "E": 0, "I": 10, "R": 0},
		map[string]float64{"beta": 0.5, "sigma": 0.3, "gamma": 0.2, "omega": 0.05},
		reaction{"infection", []string{"S"}, []string{"E"}, "(/ (* beta S I) (+ S E I R))"},
		reaction{"progression", []string{"E"}, []string{"I"}, "(* sigma E)"},
		reaction{"recovery", []string{"I"}, []string{"R"}, "(* gamma I)"},
		reaction{"waning", []string{"R"}, []string{"S"}, "(* omega R)"},
	)
}

func solve(t *testing.T, s *Solver, m *cms.Model, cfg RunConfig) *RunHandle {
	t.Helper()
	h, err := s.CreateRun(m, cfg)
	require.NoError(t, err)
	require.NoError(t, s.Solve(context.Background(), h))
	return h
}

func valuesByLabel(trajectories []Trajectory) map[string][]float64 {
	out := make(map[string][]float64, len(trajectories))
	for _, tr := range trajectories {
		out[tr.Label] = tr.Values
	}
	return out
}

func TestSolve_Deterministic(t *testing.T) {
	for _, alg := range []Algorithm{Exact, TauLeap} {
		t.Run(alg.String(), func(t *testing.T) {
			cfg := RunConfig{Algorithm: alg, Runs: 2, Duration: 10, Samples: 10, Seed: 20201025}

			s := New()
			cfg.Workers = 1
			first := s.Trajectories(solve(t, s, seir(t), cfg))
			cfg.Workers = 4
			second := s.Trajectories(solve(t, s, seir(t), cfg))

			require.Len(t, first, 8)
			assert.Equal(t, first, second)

			cfg.Seed++
			third := s.Trajectories(solve(t, s, seir(t), cfg))
			assert.NotEqual(t, first, third)
		})
	}
}

func TestSolve_RunsUseDistinctStreams(t *testing.T) {
	s := New()
	h := solve(t, s, seir(t), RunConfig{Runs: 2, Duration: 50, Samples: 20, Seed: 7})
	v := valuesByLabel(s.Trajectories(h))
	assert.NotEqual(t, v["S{0}"], v["S{1}"])
}

func TestSolve_Labels(t *testing.T) {
	s := New()
	h := solve(t, s, seir(t), RunConfig{Runs: 2, Duration: 1, Samples: 3, Seed: 1})
	assert.Equal(t, []string{"E{0}", "E{1}", "I{0}", "I{1}", "R{0}", "R{1}", "S{0}", "S{1}"}, h.Labels())
	assert.Equal(t, []float64{0, 0.5, 1}, h.Times())
	assert.Equal(t, []string{"E", "I", "R", "S"}, h.Observed())
}

func TestSolve_ConservationInClosedNetwork(t *testing.T) {
	s := New()
	h := solve(t, s, seir(t), RunConfig{Runs: 4, Duration: 100, Samples: 101, Seed: 20201025})
	v := valuesByLabel(s.Trajectories(h))

	for run := range 4 {
		for i := range 101 {
			sum := v[Label("S", run)][i] + v[Label("E", run)][i] + v[Label("I", run)][i] + v[Label("R", run)][i]
			require.Equal(t, 1000.0, sum, "run %d sample %d", run, i)
		}
	}
}

func TestSolve_DecayScenario(t *testing.T) {
	m := buildModel(t,
		map[string]int64{"A": 100, "B": 0}, nil,
		reaction{"decay", []string{"A"}, []string{"B"}, "(* 0.5 A)"},
	)
	s := New()
	h := solve(t, s, m, RunConfig{Algorithm: Exact, Runs: 1, Duration: 1, Samples: 50, Seed: 99})
	v := valuesByLabel(s.Trajectories(h))

	a, b := v["A{0}"], v["B{0}"]
	require.Len(t, b, 50)
	assert.Equal(t, 100.0, a[0])
	for i := range b {
		assert.Equal(t, 100.0, a[i]+b[i])
		if i > 0 {
			assert.GreaterOrEqual(t, b[i], b[i-1])
		}
	}
	assert.Greater(t, b[49], 0.0)
}

func TestSolve_ZeroDenominatorFailsRun(t *testing.T) {
	m := buildModel(t,
		map[string]int64{"X": 10, "Y": 3}, nil,
		reaction{"drain", []string{"Y"}, nil, "(* 1 Y)"},
		reaction{"ratio", []string{"X"}, []string{"X"}, "(/ X Y)"},
	)
	s := New()
	h := solve(t, s, m, RunConfig{Runs: 1, Duration: 200, Samples: 10, Seed: 3})

	st := h.Status(0)
	assert.Equal(t, Failed, st.State)
	assert.Equal(t, "ratio", st.Reaction)
	assert.ErrorIs(t, st.Err, ErrNumericInstability)
	assert.ErrorIs(t, st.Err, emodl.ErrDivisionByZero)

	var nerr *NumericError
	require.ErrorAs(t, st.Err, &nerr)
	assert.Equal(t, "(/ X Y)", nerr.Expr)

	assert.Empty(t, s.Trajectories(h))
	assert.Equal(t, Summary{Runs: 1, Failed: 1}, h.Summary())
}

func TestSolve_ZeroDenominatorOnOwnReactantFailsRun(t *testing.T) {
	// once Y is drained the reaction can no longer fire, but its propensity
	// still divides by zero
	m := buildModel(t,
		map[string]int64{"X": 5, "Y": 2}, nil,
		reaction{"drain", []string{"Y"}, nil, "(/ X Y)"},
	)
	s := New()
	h := solve(t, s, m, RunConfig{Runs: 1, Duration: 100, Samples: 5, Seed: 3})

	st := h.Status(0)
	require.Equal(t, Failed, st.State)
	assert.Equal(t, "drain", st.Reaction)
	assert.ErrorIs(t, st.Err, emodl.ErrDivisionByZero)
	assert.Empty(t, s.Trajectories(h))
}

func TestSolve_FailedRunsAreIsolated(t *testing.T) {
	// Y dies at rate 1, so about half the runs see Y reach zero before the
	// end and fail on the ratio propensity.
	m := buildModel(t,
		map[string]int64{"X": 1, "Y": 1}, nil,
		reaction{"die", []string{"Y"}, nil, "Y"},
		reaction{"ratio", []string{"X"}, []string{"X"}, "(/ 1 Y)"},
	)
	s := New()
	h := solve(t, s, m, RunConfig{Runs: 40, Duration: 0.7, Samples: 5, Seed: 11, Workers: 3})

	sum := h.Summary()
	assert.Greater(t, sum.Completed, 0)
	assert.Greater(t, sum.Failed, 0)
	assert.Equal(t, 40, sum.Completed+sum.Failed)
	assert.Len(t, s.Trajectories(h), 2*sum.Completed)

	for i, st := range h.Statuses() {
		if st.State == Failed {
			assert.ErrorIs(t, st.Err, emodl.ErrDivisionByZero, "run %d", i)
		}
	}
}

func TestSolve_QuiescenceHoldsLastState(t *testing.T) {
	m := buildModel(t,
		map[string]int64{"A": 3, "B": 0}, nil,
		reaction{"fast", []string{"A"}, []string{"B"}, "(* 1000 A)"},
	)
	s := New()
	h := solve(t, s, m, RunConfig{Runs: 1, Duration: 10, Samples: 11, Seed: 5})
	v := valuesByLabel(s.Trajectories(h))

	assert.Equal(t, 3.0, v["A{0}"][0])
	for i := 1; i < 11; i++ {
		assert.Equal(t, 0.0, v["A{0}"][i])
		assert.Equal(t, 3.0, v["B{0}"][i])
	}
	assert.Equal(t, Completed, h.Status(0).State)
	assert.EqualValues(t, 3, h.Status(0).Steps)
	assert.Equal(t, 10.0, h.Status(0).SimTime)
}

func TestSolve_ZeroPropensityFromStart(t *testing.T) {
	m := buildModel(t,
		map[string]int64{"A": 7}, nil,
		reaction{"never", []string{"A"}, nil, "(* 0 A)"},
		reaction{"rounding", nil, []string{"A"}, "(- 0 1e-12)"},
	)
	s := New()
	h := solve(t, s, m, RunConfig{Runs: 1, Duration: 5, Samples: 6, Seed: 1})
	assert.Equal(t, []float64{7, 7, 7, 7, 7, 7}, valuesByLabel(s.Trajectories(h))["A{0}"])
}

func TestSolve_NegativePropensityFails(t *testing.T) {
	m := buildModel(t,
		map[string]int64{"A": 7}, nil,
		reaction{"negative", []string{"A"}, nil, "(- 0 A)"},
	)
	s := New()
	h := solve(t, s, m, RunConfig{Runs: 1, Duration: 5, Samples: 6, Seed: 1})

	st := h.Status(0)
	require.Equal(t, Failed, st.State)
	assert.ErrorIs(t, st.Err, ErrNumericInstability)
	assert.Equal(t, "negative", st.Reaction)
}

func TestSolve_MultiplicityExcludesFiring(t *testing.T) {
	m := buildModel(t,
		map[string]int64{"A": 1, "B": 0}, nil,
		reaction{"pair", []string{"A", "A"}, []string{"B"}, "5"},
	)
	s := New()
	h := solve(t, s, m, RunConfig{Runs: 1, Duration: 5, Samples: 3, Seed: 1})
	v := valuesByLabel(s.Trajectories(h))
	assert.Equal(t, []float64{1, 1, 1}, v["A{0}"])
	assert.Equal(t, []float64{0, 0, 0}, v["B{0}"])
}

func TestSolve_TauLeap(t *testing.T) {
	m := buildModel(t,
		map[string]int64{"A": 100000, "B": 0}, nil,
		reaction{"decay", []string{"A"}, []string{"B"}, "(* 0.5 A)"},
	)
	s := New()
	h := solve(t, s, m, RunConfig{Algorithm: TauLeap, Runs: 3, Duration: 4, Samples: 9, Seed: 20201025, MaxTau: 0.5})
	v := valuesByLabel(s.Trajectories(h))

	for run := range 3 {
		a, b := v[Label("A", run)], v[Label("B", run)]
		for i := range a {
			assert.GreaterOrEqual(t, a[i], 0.0)
			if i > 0 {
				assert.LessOrEqual(t, a[i], a[i-1])
				assert.GreaterOrEqual(t, b[i], b[i-1])
			}
		}
		// mean at t=4 is 100000*e^-2, about 13534
		assert.InDelta(t, 13534, a[8], 1500)
		assert.Less(t, h.Status(run).Steps, int64(100000), "tau-leaping should take far fewer steps than events")
	}
}

func TestSolve_TauLeapConservesPopulation(t *testing.T) {
	m := buildModel(t,
		map[string]int64{"S": 1000, "I": 0}, nil,
		reaction{"infect", []string{"S"}, []string{"I"}, "(* 10 S)"},
	)
	s := New()
	cfg := RunConfig{Algorithm: TauLeap, Runs: 20, Duration: 2, Samples: 5, Seed: 1, TauEpsilon: 0.99}
	h := solve(t, s, m, cfg)
	v := valuesByLabel(s.Trajectories(h))

	for run := range 20 {
		for i := range 5 {
			sum := v[Label("S", run)][i] + v[Label("I", run)][i]
			require.Equal(t, 1000.0, sum, "run %d sample %d", run, i)
			require.GreaterOrEqual(t, v[Label("S", run)][i], 0.0)
		}
	}

	seirCfg := RunConfig{Algorithm: TauLeap, Runs: 4, Duration: 100, Samples: 51, Seed: 20201025, TauEpsilon: 0.9}
	h = solve(t, s, seir(t), seirCfg)
	v = valuesByLabel(s.Trajectories(h))
	for run := range 4 {
		for i := range 51 {
			sum := v[Label("S", run)][i] + v[Label("E", run)][i] + v[Label("I", run)][i] + v[Label("R", run)][i]
			require.Equal(t, 1000.0, sum, "seir run %d sample %d", run, i)
		}
	}
}

func TestSolve_TauLeapSmallPopulationFallsBackToExact(t *testing.T) {
	m := buildModel(t,
		map[string]int64{"A": 20, "B": 0}, nil,
		reaction{"decay", []string{"A"}, []string{"B"}, "(* 0.5 A)"},
	)
	s := New()
	h := solve(t, s, m, RunConfig{Algorithm: TauLeap, Runs: 2, Duration: 3, Samples: 7, Seed: 8})
	v := valuesByLabel(s.Trajectories(h))
	for run := range 2 {
		a, b := v[Label("A", run)], v[Label("B", run)]
		for i := range a {
			assert.Equal(t, 20.0, a[i]+b[i])
		}
	}
}

func TestSolve_Timeout(t *testing.T) {
	m := buildModel(t,
		map[string]int64{"A": 1}, nil,
		reaction{"churn", []string{"A"}, []string{"A"}, "1e6"},
	)
	s := New()
	h := solve(t, s, m, RunConfig{Runs: 2, Duration: 1e12, Samples: 2, Seed: 1, Timeout: 20 * time.Millisecond})

	for i := range 2 {
		st := h.Status(i)
		assert.Equal(t, Failed, st.State)
		assert.ErrorIs(t, st.Err, ErrTimeout)
	}
}

func TestSolve_StepLimit(t *testing.T) {
	m := buildModel(t,
		map[string]int64{"A": 1}, nil,
		reaction{"churn", []string{"A"}, []string{"A"}, "1"},
	)
	s := New()
	h := solve(t, s, m, RunConfig{Runs: 1, Duration: 1e9, Samples: 2, Seed: 1, MaxSteps: 500})

	st := h.Status(0)
	assert.ErrorIs(t, st.Err, ErrStepLimit)
	assert.EqualValues(t, 500, st.Steps)
}

func TestSolve_Twice(t *testing.T) {
	s := New()
	h := solve(t, s, seir(t), RunConfig{Runs: 1, Duration: 1, Samples: 2})
	assert.ErrorIs(t, s.Solve(context.Background(), h), ErrAlreadySolved)
	select {
	case <-h.Done():
	default:
		t.Fatal("Done should be closed after Solve")
	}
}

func TestTrajectories_BeforeSolve(t *testing.T) {
	s := New()
	h, err := s.CreateRun(seir(t), RunConfig{Runs: 2, Duration: 1, Samples: 2, Seed: 1})
	require.NoError(t, err)

	assert.Empty(t, s.Trajectories(h))
	assert.Equal(t, Summary{Runs: 2, Initialized: 2}, h.Summary())
	assert.Equal(t, Initialized, h.Status(1).State)
}

func TestSolve_CancelledContext(t *testing.T) {
	s := New()
	h, err := s.CreateRun(seir(t), RunConfig{Runs: 3, Duration: 1, Samples: 2})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err = s.Solve(ctx, h)
	require.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, Summary{Runs: 3, Failed: 3}, h.Summary())
	assert.ErrorIs(t, h.Status(2).Err, context.Canceled)
}

func TestCreateRun_Validation(t *testing.T) {
	s := New()

	m := seir(t)
	require.NoError(t, m.AddReaction("ghost", []string{"S"}, []string{"Z"}, "(* k S)"))
	_, err := s.CreateRun(m, RunConfig{Runs: 1, Duration: 1, Samples: 1})
	var verr *cms.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Len(t, verr.Violations, 2)
	assert.False(t, m.Frozen())

	_, err = s.CreateRun(seir(t), RunConfig{Runs: 0, Duration: -1, Samples: 0})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "runs must be positive")
	assert.Contains(t, err.Error(), "duration must be")
	assert.Contains(t, err.Error(), "samples must be positive")

	_, err = s.CreateRun(nil, DefaultRunConfig())
	assert.Error(t, err)
}

func TestCreateRun_FreezesModel(t *testing.T) {
	s := New(WithWorkers(2))
	m := seir(t)
	h, err := s.CreateRun(m, RunConfig{Runs: 1, Duration: 1, Samples: 1})
	require.NoError(t, err)
	assert.True(t, m.Frozen())
	assert.ErrorIs(t, m.AddSpecies("late", 1, true), cms.ErrModelFrozen)
	assert.Equal(t, 2, h.Config().Workers)
	assert.NotEmpty(t, h.ID)

	assert.ErrorIs(t, h.Status(5).Err, ErrUnknownRun)
	assert.Equal(t, Initialized, h.Status(0).State)
}

func TestSolve_SingleSample(t *testing.T) {
	s := New()
	h := solve(t, s, seir(t), RunConfig{Runs: 1, Duration: 30, Samples: 1, Seed: 4})
	assert.Equal(t, []float64{0}, h.Times())
	assert.Equal(t, []float64{990}, valuesByLabel(s.Trajectories(h))["S{0}"])
}

type recordingNotifier struct {
	mu     sync.Mutex
	events []RunEvent
}

func (r *recordingNotifier) ID() string   { return "rec" }
func (r *recordingNotifier) Type() string { return "test" }
func (r *recordingNotifier) Close() error { return nil }
func (r *recordingNotifier) Notify(_ context.Context, ev RunEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
	return nil
}

func TestSolve_PublishesRunEvents(t *testing.T) {
	mgr := NewNotificationManager(nil)
	rec := &recordingNotifier{}
	require.NoError(t, mgr.RegisterNotifier(rec))

	s := New(WithNotifications(mgr))
	h := solve(t, s, seir(t), RunConfig{Runs: 3, Duration: 1, Samples: 2, Seed: 1})
	require.NoError(t, mgr.Close())

	require.Len(t, rec.events, 3)
	seen := map[int]bool{}
	for _, ev := range rec.events {
		assert.Equal(t, h.ID, ev.HandleID)
		assert.Equal(t, Completed, ev.State)
		seen[ev.Run] = true
	}
	assert.Len(t, seen, 3)
}

func TestNumericError(t *testing.T) {
	err := &NumericError{Run: 1, Reaction: "r", Expr: "(/ a b)", Time: 2, Err: emodl.ErrDivisionByZero}
	assert.True(t, errors.Is(err, ErrNumericInstability))
	assert.True(t, errors.Is(err, emodl.ErrDivisionByZero))
	assert.Contains(t, err.Error(), `reaction "r"`)

	bad := &NumericError{Run: 0, Reaction: "r", Expr: "x", Value: -2}
	assert.True(t, errors.Is(bad, ErrNumericInstability))
	assert.Contains(t, bad.Error(), "evaluated to -2")
}
