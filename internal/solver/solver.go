// Package solver evolves frozen reaction network models forward in time with
// Gillespie's stochastic simulation algorithm or adaptive tau-leaping,
// recording sampled trajectories of the observed species of every run.
package solver

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/daniacca/cmsim/internal/cms"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"
)

const tracerName = "cmsim/solver"

// Solver creates and executes run sets. It holds no per-run state and may be
// shared.
type Solver struct {
	logger      Logger
	tracer      trace.Tracer
	notify      *NotificationManager
	notifierIDs []string
	workers     int
}

// Option configures a Solver.
type Option func(*Solver)

// WithLogger sets the logger.
func WithLogger(l Logger) Option {
	return func(s *Solver) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithTracerProvider sets the provider of the solver's tracer. The global
// provider is used by default.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(s *Solver) {
		if tp != nil {
			s.tracer = tp.Tracer(tracerName)
		}
	}
}

// WithNotifications publishes a RunEvent on mgr for every run that ends. With
// no notifier IDs the event goes to every registered notifier.
func WithNotifications(mgr *NotificationManager, notifierIDs ...string) Option {
	return func(s *Solver) {
		s.notify = mgr
		s.notifierIDs = notifierIDs
	}
}

// WithWorkers sets the default worker count for run configurations that do
// not set one.
func WithWorkers(n int) Option {
	return func(s *Solver) { s.workers = n }
}

// New creates a solver.
func New(opts ...Option) *Solver {
	s := &Solver{
		logger: NewNoOpLogger(),
		tracer: otel.GetTracerProvider().Tracer(tracerName),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// CreateRun validates cfg and m, freezes m and compiles its propensities.
// Model problems are returned as a *cms.ValidationError listing every
// violation.
func (s *Solver) CreateRun(m *cms.Model, cfg RunConfig) (*RunHandle, error) {
	if m == nil {
		return nil, errors.New("model is required")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if err := cms.Validate(m).Err(); err != nil {
		return nil, err
	}
	m.Freeze()

	net, err := compileNetwork(m)
	if err != nil {
		return nil, fmt.Errorf("compiling model %q: %w", m.Name, err)
	}

	if cfg.Workers == 0 && s.workers > 0 {
		cfg.Workers = s.workers
	}
	cfg = cfg.withDefaults()

	h := &RunHandle{
		ID:        uuid.NewString(),
		Model:     m.Name,
		CreatedAt: time.Now().UTC(),
		cfg:       cfg,
		net:       net,
		times:     sampleTimes(cfg.Duration, cfg.Samples),
		runs:      make([]runRecord, cfg.Runs),
		done:      make(chan struct{}),
	}
	s.logger.Debugf("created run set %s: model=%s algorithm=%s runs=%d duration=%g samples=%d seed=%d",
		h.ID, h.Model, cfg.Algorithm, cfg.Runs, cfg.Duration, cfg.Samples, cfg.Seed)
	return h, nil
}

// Solve advances every run of h to a terminal state on a bounded pool of
// workers. A failing run never affects its siblings, and Solve returns nil
// when some runs fail; inspect Status or Summary. An error is returned only
// when h was already solved or ctx ends first, in which case unfinished runs
// are marked Failed with the context error.
func (s *Solver) Solve(ctx context.Context, h *RunHandle) error {
	if !h.solved.CompareAndSwap(false, true) {
		return ErrAlreadySolved
	}
	defer close(h.done)

	ctx, span := s.tracer.Start(ctx, "solver.Solve", trace.WithAttributes(
		attribute.String("cmsim.handle", h.ID),
		attribute.String("cmsim.model", h.Model),
		attribute.String("cmsim.algorithm", h.cfg.Algorithm.String()),
		attribute.Int("cmsim.runs", h.cfg.Runs),
	))
	defer span.End()

	started := time.Now()
	s.logger.Infof("solving run set %s: %d runs on %d workers", h.ID, h.cfg.Runs, h.cfg.Workers)

	var g errgroup.Group
	g.SetLimit(h.cfg.Workers)
	for i := range h.cfg.Runs {
		if err := ctx.Err(); err != nil {
			s.record(h, i, nil, err)
			continue
		}
		g.Go(func() error {
			s.solveRun(ctx, h, i)
			return nil
		})
	}
	_ = g.Wait()

	sum := h.Summary()
	span.SetAttributes(
		attribute.Int("cmsim.completed", sum.Completed),
		attribute.Int("cmsim.failed", sum.Failed),
	)
	s.logger.Infof("run set %s finished in %s: completed=%d failed=%d",
		h.ID, time.Since(started).Round(time.Millisecond), sum.Completed, sum.Failed)

	if err := ctx.Err(); err != nil {
		span.SetStatus(codes.Error, err.Error())
		return fmt.Errorf("solving run set %s: %w", h.ID, err)
	}
	return nil
}

func (s *Solver) solveRun(ctx context.Context, h *RunHandle, i int) {
	ctx, span := s.tracer.Start(ctx, "solver.run", trace.WithAttributes(
		attribute.String("cmsim.handle", h.ID),
		attribute.Int("cmsim.run", i),
		attribute.String("cmsim.algorithm", h.cfg.Algorithm.String()),
	))
	defer span.End()

	if err := ctx.Err(); err != nil {
		s.record(h, i, nil, err)
		return
	}
	if h.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeoutCause(ctx, h.cfg.Timeout, ErrTimeout)
		defer cancel()
	}

	h.setRunning(i)
	r := newRunner(h.net, h.cfg, h.times, i)
	err := r.run(ctx)
	st := s.record(h, i, r, err)

	span.SetAttributes(
		attribute.Int64("cmsim.steps", st.Steps),
		attribute.String("cmsim.state", st.State.String()),
	)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
}

// record stores the terminal status of run i and publishes it.
func (s *Solver) record(h *RunHandle, i int, r *runner, err error) RunStatus {
	st := h.finish(i, r, err)
	if err != nil {
		s.logger.Warnf("run set %s: run %d failed: %v", h.ID, i, err)
	} else {
		s.logger.Debugf("run set %s: run %d completed after %d steps", h.ID, i, st.Steps)
	}

	if s.notify != nil {
		ev := RunEvent{
			HandleID:  h.ID,
			Model:     h.Model,
			Run:       i,
			State:     st.State,
			Reaction:  st.Reaction,
			Steps:     st.Steps,
			SimTime:   st.SimTime,
			Timestamp: time.Now().Unix(),
		}
		if err != nil {
			ev.Error = err.Error()
		}
		s.notify.Enqueue(ev, s.notifierIDs...)
	}
	return st
}

// Trajectories returns the sampled series of every completed run of h,
// grouped by observed species and then by run. Failed runs are omitted.
func (s *Solver) Trajectories(h *RunHandle) []Trajectory {
	return h.trajectories()
}
