package solver

import (
	"errors"
	"fmt"
	"slices"
	"sync"
	"sync/atomic"
	"time"
)

// RunState is the lifecycle state of one run.
type RunState int

const (
	Initialized RunState = iota
	Running
	Completed
	Failed
)

func (s RunState) String() string {
	switch s {
	case Initialized:
		return "initialized"
	case Running:
		return "running"
	case Completed:
		return "completed"
	case Failed:
		return "failed"
	default:
		return fmt.Sprintf("RunState(%d)", int(s))
	}
}

func (s RunState) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

func (s *RunState) UnmarshalText(text []byte) error {
	for st := Initialized; st <= Failed; st++ {
		if st.String() == string(text) {
			*s = st
			return nil
		}
	}
	return fmt.Errorf("unknown run state %q", text)
}

// Terminal reports whether no further transition is possible.
func (s RunState) Terminal() bool {
	return s == Completed || s == Failed
}

// ErrUnknownRun is reported by Status for an index outside the handle.
var ErrUnknownRun = errors.New("unknown run index")

// RunStatus describes one run. Reaction names the reaction whose propensity
// failed a run with a numeric error.
type RunStatus struct {
	State    RunState `json:"state"`
	Err      error    `json:"-"`
	Reaction string   `json:"reaction,omitempty"`
	Steps    int64    `json:"steps"`
	SimTime  float64  `json:"sim_time"`
}

// Summary counts the runs of a handle by state.
type Summary struct {
	Runs        int `json:"runs"`
	Initialized int `json:"initialized"`
	Running     int `json:"running"`
	Completed   int `json:"completed"`
	Failed      int `json:"failed"`
}

// Trajectory is one run's sampled time series of one observed species.
type Trajectory struct {
	Label   string    `json:"label"`
	Species string    `json:"species"`
	Run     int       `json:"run"`
	Values  []float64 `json:"values"`
}

type runRecord struct {
	status RunStatus
	values [][]float64 // per observed species
}

// RunHandle holds a set of independent runs of one frozen model.
type RunHandle struct {
	ID        string
	Model     string
	CreatedAt time.Time

	cfg   RunConfig
	net   *network
	times []float64

	mu     sync.RWMutex
	runs   []runRecord
	solved atomic.Bool
	done   chan struct{}
}

// Config returns the effective run configuration.
func (h *RunHandle) Config() RunConfig { return h.cfg }

// Times returns the sample times shared by every trajectory.
func (h *RunHandle) Times() []float64 { return slices.Clone(h.times) }

// Observed returns the observed species names in declaration order.
func (h *RunHandle) Observed() []string {
	out := make([]string, 0, len(h.net.observed))
	for _, idx := range h.net.observed {
		out = append(out, h.net.species[idx])
	}
	return out
}

// Done is closed once Solve has returned.
func (h *RunHandle) Done() <-chan struct{} { return h.done }

// Status returns the status of run i.
func (h *RunHandle) Status(i int) RunStatus {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if i < 0 || i >= len(h.runs) {
		return RunStatus{Err: fmt.Errorf("run %d: %w", i, ErrUnknownRun)}
	}
	return h.runs[i].status
}

// Statuses returns the status of every run in index order.
func (h *RunHandle) Statuses() []RunStatus {
	h.mu.RLock()
	defer h.mu.RUnlock()
	out := make([]RunStatus, len(h.runs))
	for i := range h.runs {
		out[i] = h.runs[i].status
	}
	return out
}

// Summary counts runs by state.
func (h *RunHandle) Summary() Summary {
	h.mu.RLock()
	defer h.mu.RUnlock()
	s := Summary{Runs: len(h.runs)}
	for _, r := range h.runs {
		switch r.status.State {
		case Initialized:
			s.Initialized++
		case Running:
			s.Running++
		case Completed:
			s.Completed++
		case Failed:
			s.Failed++
		}
	}
	return s
}

// Labels returns the labels of Trajectories, in the same order.
func (h *RunHandle) Labels() []string {
	trajectories := h.trajectories()
	out := make([]string, len(trajectories))
	for i, t := range trajectories {
		out[i] = t.Label
	}
	return out
}

// Label formats the trajectory label of a species in a run.
func Label(species string, run int) string {
	return fmt.Sprintf("%s{%d}", species, run)
}

// trajectories returns the series of completed runs, grouped by species in
// declaration order and then by run index.
func (h *RunHandle) trajectories() []Trajectory {
	h.mu.RLock()
	defer h.mu.RUnlock()
	var out []Trajectory
	for si, idx := range h.net.observed {
		name := h.net.species[idx]
		for run, r := range h.runs {
			if r.status.State != Completed {
				continue
			}
			out = append(out, Trajectory{
				Label:   Label(name, run),
				Species: name,
				Run:     run,
				Values:  slices.Clone(r.values[si]),
			})
		}
	}
	return out
}

func (h *RunHandle) setRunning(i int) {
	h.mu.Lock()
	h.runs[i].status.State = Running
	h.mu.Unlock()
}

func (h *RunHandle) finish(i int, r *runner, err error) RunStatus {
	h.mu.Lock()
	defer h.mu.Unlock()
	st := RunStatus{State: Completed}
	if r != nil {
		st.Steps = r.steps
		st.SimTime = r.t
	}
	if err != nil {
		st.State = Failed
		st.Err = err
		var nerr *NumericError
		if errors.As(err, &nerr) {
			st.Reaction = nerr.Reaction
		}
	} else {
		h.runs[i].values = r.samp.values
	}
	h.runs[i].status = st
	return st
}
