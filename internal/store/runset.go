package store

import (
	"time"

	"github.com/daniacca/cmsim/internal/solver"
)

// RunStatus is the persisted terminal status of one run.
type RunStatus struct {
	Run      int     `json:"run"`
	State    string  `json:"state"`
	Error    string  `json:"error,omitempty"`
	Reaction string  `json:"reaction,omitempty"`
	Steps    int64   `json:"steps"`
	SimTime  float64 `json:"sim_time"`
}

// RunSet is a solved run handle captured for storage and export.
type RunSet struct {
	ID           string              `json:"id"`
	Model        string              `json:"model"`
	Algorithm    string              `json:"algorithm"`
	Runs         int                 `json:"runs"`
	Duration     float64             `json:"duration"`
	Samples      int                 `json:"samples"`
	Seed         uint64              `json:"seed"`
	Completed    int                 `json:"completed"`
	Failed       int                 `json:"failed"`
	CreatedAt    time.Time           `json:"created_at"`
	Times        []float64           `json:"times"`
	Statuses     []RunStatus         `json:"statuses"`
	Trajectories []solver.Trajectory `json:"trajectories"`
}

// Capture snapshots a solved handle.
func Capture(h *solver.RunHandle, trajectories []solver.Trajectory) RunSet {
	cfg := h.Config()
	sum := h.Summary()
	rs := RunSet{
		ID:           h.ID,
		Model:        h.Model,
		Algorithm:    cfg.Algorithm.String(),
		Runs:         cfg.Runs,
		Duration:     cfg.Duration,
		Samples:      cfg.Samples,
		Seed:         cfg.Seed,
		Completed:    sum.Completed,
		Failed:       sum.Failed,
		CreatedAt:    h.CreatedAt.UTC(),
		Times:        h.Times(),
		Trajectories: trajectories,
	}
	for i, st := range h.Statuses() {
		rec := RunStatus{Run: i, State: st.State.String(), Reaction: st.Reaction, Steps: st.Steps, SimTime: st.SimTime}
		if st.Err != nil {
			rec.Error = st.Err.Error()
		}
		rs.Statuses = append(rs.Statuses, rec)
	}
	return rs
}

// Info is the listing view of a stored run set.
type Info struct {
	ID        string    `json:"id"`
	Model     string    `json:"model"`
	Algorithm string    `json:"algorithm"`
	Runs      int       `json:"runs"`
	Completed int       `json:"completed"`
	Failed    int       `json:"failed"`
	Seed      uint64    `json:"seed"`
	CreatedAt time.Time `json:"created_at"`
}
