package solver

import (
	"context"
	"fmt"
	"math"
	"math/rand/v2"

	"gonum.org/v1/gonum/stat/distuv"
)

// negativeTolerance is how far below zero a propensity may round before the
// run is failed instead of clamped.
const negativeTolerance = 1e-9

// ctxCheckInterval is how many steps a run takes between context checks.
const ctxCheckInterval = 256

// runner owns the private mutable state of one run.
type runner struct {
	index int
	net   *network
	cfg   RunConfig

	state []float64
	props []float64
	// pending holds the summed population changes of a tau leap
	pending []float64
	src     *rand.PCG
	rng     *rand.Rand
	samp    *sampler

	t     float64
	steps int64
	iter  int64
}

func newRunner(net *network, cfg RunConfig, times []float64, index int) *runner {
	src := runSource(cfg.Seed, index)
	return &runner{
		index:   index,
		net:     net,
		cfg:     cfg,
		state:   net.newState(),
		props:   make([]float64, len(net.reactions)),
		pending: make([]float64, len(net.newState())),
		src:     src,
		rng:     rand.New(src),
		samp:    newSampler(times, net.observed),
	}
}

func (r *runner) run(ctx context.Context) error {
	if r.cfg.Algorithm == TauLeap {
		return r.runTauLeap(ctx)
	}
	return r.runExact(ctx)
}

// interrupted reports the cause of a cancelled run context. It is polled
// every ctxCheckInterval iterations.
func (r *runner) interrupted(ctx context.Context) error {
	r.iter++
	if r.iter%ctxCheckInterval != 0 {
		return nil
	}
	if ctx.Err() != nil {
		return fmt.Errorf("run %d at t=%g: %w", r.index, r.t, context.Cause(ctx))
	}
	return nil
}

// countStep accounts for one event or leap against MaxSteps.
func (r *runner) countStep() error {
	if r.cfg.MaxSteps > 0 && r.steps >= r.cfg.MaxSteps {
		return fmt.Errorf("run %d at t=%g after %d steps: %w", r.index, r.t, r.steps, ErrStepLimit)
	}
	r.steps++
	return nil
}

// enabled reports whether every reactant is present in at least its
// multiplicity.
func (r *runner) enabled(rx *compiledReaction) bool {
	for _, s := range rx.reactants {
		if r.state[s.species] < s.count {
			return false
		}
	}
	return true
}

// propensities evaluates every reaction into r.props and returns their sum.
// Every propensity is evaluated, so numeric failures surface even for
// reactions that cannot fire; those then count as 0 for selection.
func (r *runner) propensities() (float64, error) {
	var a0 float64
	for j := range r.net.reactions {
		rx := &r.net.reactions[j]
		a, err := rx.propensity.Eval(r.state)
		if err != nil {
			return 0, &NumericError{Run: r.index, Reaction: rx.name, Expr: rx.propensity.Source(), Time: r.t, Err: err}
		}
		if math.IsNaN(a) || math.IsInf(a, 0) || a < -negativeTolerance {
			return 0, &NumericError{Run: r.index, Reaction: rx.name, Expr: rx.propensity.Source(), Time: r.t, Value: a}
		}
		if a < 0 || !r.enabled(rx) {
			a = 0
		}
		r.props[j] = a
		a0 += a
	}
	if math.IsInf(a0, 0) {
		return 0, &NumericError{Run: r.index, Reaction: "*", Expr: "total propensity", Time: r.t, Value: a0}
	}
	return a0, nil
}

// fire applies one firing of reaction j. Only enabled reactions are
// selected, so no population goes negative.
func (r *runner) fire(j int) {
	for _, d := range r.net.reactions[j].delta {
		r.state[d.species] += d.count
	}
}

// drawLeap draws the firing counts of every reaction over tau and sums their
// population changes into r.pending. It reports false when the combined
// change would drive a population negative.
func (r *runner) drawLeap(tau float64) bool {
	clear(r.pending)
	for j, a := range r.props {
		if a == 0 {
			continue
		}
		k := distuv.Poisson{Lambda: a * tau, Src: r.src}.Rand()
		if k == 0 {
			continue
		}
		for _, d := range r.net.reactions[j].delta {
			r.pending[d.species] += k * d.count
		}
	}
	for i, d := range r.pending {
		if r.state[i]+d < 0 {
			return false
		}
	}
	return true
}

// applyLeap adds the changes drawn by drawLeap.
func (r *runner) applyLeap() {
	for i, d := range r.pending {
		r.state[i] += d
	}
}
