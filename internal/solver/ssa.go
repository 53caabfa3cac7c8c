package solver

import (
	"context"

	"gonum.org/v1/gonum/stat/distuv"
)

func (r *runner) runExact(ctx context.Context) error {
	for {
		if err := r.interrupted(ctx); err != nil {
			return err
		}
		done, err := r.ssaStep()
		if err != nil {
			return err
		}
		if done {
			break
		}
	}
	r.samp.finish(r.state)
	return nil
}

// ssaStep performs one step of Gillespie's direct method. It reports done
// when the next event would fall past the duration or no reaction can fire;
// the state is then held until the end.
func (r *runner) ssaStep() (bool, error) {
	a0, err := r.propensities()
	if err != nil {
		return false, err
	}
	if a0 == 0 {
		r.t = r.cfg.Duration
		return true, nil
	}
	tau := distuv.Exponential{Rate: a0, Src: r.src}.Rand()
	if r.t+tau > r.cfg.Duration {
		r.t = r.cfg.Duration
		return true, nil
	}
	if err := r.countStep(); err != nil {
		return false, err
	}
	r.t += tau
	r.samp.advance(r.t, r.state)
	r.fire(r.selectReaction(a0))
	return false, nil
}

// selectReaction picks reaction j with probability props[j]/a0.
func (r *runner) selectReaction(a0 float64) int {
	target := r.rng.Float64() * a0
	last := -1
	for j, a := range r.props {
		if a == 0 {
			continue
		}
		last = j
		target -= a
		if target < 0 {
			return j
		}
	}
	return last
}
