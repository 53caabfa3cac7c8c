package solver

// sampler records observed species onto fixed sample times using
// last-value-hold: the value at t_i is the state after every event at or
// before t_i.
type sampler struct {
	times    []float64
	observed []int
	values   [][]float64
	next     int
}

func newSampler(times []float64, observed []int) *sampler {
	s := &sampler{times: times, observed: observed, values: make([][]float64, len(observed))}
	for i := range s.values {
		s.values[i] = make([]float64, len(times))
	}
	return s
}

// advance records every pending sample strictly before t with state, which
// must be the state holding just before t.
func (s *sampler) advance(t float64, state []float64) {
	for s.next < len(s.times) && s.times[s.next] < t {
		s.record(state)
	}
}

// finish records every remaining sample with state.
func (s *sampler) finish(state []float64) {
	for s.next < len(s.times) {
		s.record(state)
	}
}

func (s *sampler) record(state []float64) {
	for i, idx := range s.observed {
		s.values[i][s.next] = state[idx]
	}
	s.next++
}
