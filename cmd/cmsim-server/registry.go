package main

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"

	"github.com/daniacca/cmsim/internal/cms"
	"github.com/daniacca/cmsim/internal/models"
	"github.com/daniacca/cmsim/internal/solver"
)

var (
	errModelNotFound = errors.New("model not found")
	errRunNotFound   = errors.New("run set not found")
)

// runEntry is a run set being solved or already solved in this process.
type runEntry struct {
	handle  *solver.RunHandle
	modelID string
	cancel  context.CancelFunc

	finished bool
	err      error // Solve error
}

// Registry keeps the model definitions posted to the server and the run sets
// started from them. Definitions are kept in structured form and rebuilt for
// every run set, since solving freezes a model.
type Registry struct {
	mu     sync.RWMutex
	models map[string]cms.ModelConfig
	runs   map[string]*runEntry
	order  []string // run set ids in creation order
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		models: make(map[string]cms.ModelConfig),
		runs:   make(map[string]*runEntry),
	}
}

// PutModel stores a model definition under id, replacing any previous one.
// It reports whether the id was new.
func (r *Registry) PutModel(id string, cfg cms.ModelConfig) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, exists := r.models[id]
	r.models[id] = cfg
	return !exists
}

// Model builds a fresh model for id. Posted definitions shadow catalog
// models of the same name.
func (r *Registry) Model(id string, populations map[string]int64) (*cms.Model, error) {
	r.mu.RLock()
	cfg, ok := r.models[id]
	r.mu.RUnlock()

	if !ok {
		if _, inCatalog := models.Lookup(id); !inCatalog {
			return nil, fmt.Errorf("%w: %s", errModelNotFound, id)
		}
		return models.Build(id, populations)
	}

	m, err := cms.BuildModel(cfg)
	if err != nil {
		return nil, err
	}
	if len(populations) > 0 {
		if err := m.SetPopulations(populations); err != nil {
			return nil, err
		}
	}
	return m, nil
}

// DeleteModel removes a posted model definition.
func (r *Registry) DeleteModel(id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.models[id]; !exists {
		return fmt.Errorf("%w: %s", errModelNotFound, id)
	}
	delete(r.models, id)
	return nil
}

// ModelIDs returns posted and catalog model ids, sorted and de-duplicated.
func (r *Registry) ModelIDs() []string {
	r.mu.RLock()
	ids := models.Names()
	for id := range r.models {
		ids = append(ids, id)
	}
	r.mu.RUnlock()
	slices.Sort(ids)
	return slices.Compact(ids)
}

// AddRun records a run set that is about to be solved.
func (r *Registry) AddRun(modelID string, h *solver.RunHandle, cancel context.CancelFunc) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.runs[h.ID] = &runEntry{handle: h, modelID: modelID, cancel: cancel}
	r.order = append(r.order, h.ID)
}

// FinishRun records the outcome of Solve.
func (r *Registry) FinishRun(id string, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if e, ok := r.runs[id]; ok {
		e.finished = true
		e.err = err
		e.cancel()
	}
}

// Run returns the run set with the given id.
func (r *Registry) Run(id string) (runEntry, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.runs[id]
	if !ok {
		return runEntry{}, fmt.Errorf("%w: %s", errRunNotFound, id)
	}
	return *e, nil
}

// Runs returns every run set in creation order.
func (r *Registry) Runs() []runEntry {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]runEntry, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, *r.runs[id])
	}
	return out
}

// CancelRun stops a run set that is still solving. Unfinished runs end up
// Failed with the cancellation error.
func (r *Registry) CancelRun(id string) error {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.runs[id]
	if !ok {
		return fmt.Errorf("%w: %s", errRunNotFound, id)
	}
	e.cancel()
	return nil
}

// CancelAll stops every run set that is still solving.
func (r *Registry) CancelAll() {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, e := range r.runs {
		e.cancel()
	}
}
