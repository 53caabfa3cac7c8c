package solver

import (
	"context"
	"math"
)

const (
	// a leap shorter than ssaThreshold/a0 is not worth taking
	ssaThreshold = 10
	ssaBurst     = 100
)

func (r *runner) runTauLeap(ctx context.Context) error {
	duration := r.cfg.Duration
	for r.t < duration {
		if err := r.interrupted(ctx); err != nil {
			return err
		}
		a0, err := r.propensities()
		if err != nil {
			return err
		}
		if a0 == 0 {
			break
		}

		tau := r.selectTau()
		if r.cfg.MaxTau > 0 && tau > r.cfg.MaxTau {
			tau = r.cfg.MaxTau
		}
		// a leap overshooting a population is redrawn at half the step
		leaped := false
		for tau >= ssaThreshold/a0 {
			tau = math.Min(tau, duration-r.t)
			if leaped = r.drawLeap(tau); leaped {
				break
			}
			tau /= 2
		}
		if !leaped {
			done, err := r.ssaBurst(ctx)
			if err != nil {
				return err
			}
			if done {
				break
			}
			continue
		}

		next := r.t + tau
		if tau >= duration-r.t {
			next = duration
		}
		if err := r.countStep(); err != nil {
			return err
		}
		r.samp.advance(next, r.state)
		r.applyLeap()
		r.t = next
	}
	r.samp.finish(r.state)
	return nil
}

func (r *runner) ssaBurst(ctx context.Context) (bool, error) {
	for range ssaBurst {
		if err := r.interrupted(ctx); err != nil {
			return false, err
		}
		done, err := r.ssaStep()
		if err != nil || done {
			return done, err
		}
	}
	return false, nil
}

// selectTau returns the Cao-Gillespie-Petzold step: the largest tau for
// which no reactant population's expected relative change, or its standard
// deviation, exceeds TauEpsilon.
func (r *runner) selectTau() float64 {
	eps := r.cfg.TauEpsilon
	tau := math.Inf(1)
	for _, i := range r.net.reactantSpecies {
		var mu, sigma2 float64
		for _, c := range r.net.changes[i] {
			a := r.props[c.reaction]
			mu += c.count * a
			sigma2 += c.count * c.count * a
		}
		bound := math.Max(eps*r.state[i]/r.orderFactor(i), 1)
		if mu != 0 {
			tau = math.Min(tau, bound/math.Abs(mu))
		}
		if sigma2 != 0 {
			tau = math.Min(tau, bound*bound/sigma2)
		}
	}
	return tau
}

// orderFactor is g_i: the highest reaction order species i takes part in as
// a reactant, corrected for reactions needing several of its molecules.
func (r *runner) orderFactor(i int) float64 {
	x := r.state[i]
	order, mult := r.net.highestOrder[i], r.net.orderMult[i]
	switch order {
	case 1:
		return 1
	case 2:
		if mult >= 2 && x > 1 {
			return 2 + 1/(x-1)
		}
		return 2
	case 3:
		switch {
		case mult == 2 && x > 1:
			return 1.5 * (2 + 1/(x-1))
		case mult >= 3 && x > 2:
			return 3 + 1/(x-1) + 2/(x-2)
		}
		return 3
	}
	return float64(order)
}
