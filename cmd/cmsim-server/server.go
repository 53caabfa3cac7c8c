package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/daniacca/cmsim/internal/logging"
	"github.com/daniacca/cmsim/internal/solver"
	"github.com/daniacca/cmsim/internal/solver/notifiers"
	"github.com/daniacca/cmsim/internal/store"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"golang.org/x/sync/errgroup"
)

const websocketNotifierID = "ws"

// Server is the cmsim HTTP API: model definitions, asynchronous run sets,
// trajectories and a websocket stream of run events.
type Server struct {
	registry *Registry
	solver   *solver.Solver
	notify   *solver.NotificationManager
	hub      *notifiers.WebSocketNotifier
	store    *store.Store
	logger   *slog.Logger

	// solves outlive the request that started them
	baseCtx context.Context
	stop    context.CancelFunc
	wg      sync.WaitGroup
}

// NewServer creates a server. st may be nil, in which case solved run sets
// are only kept in memory.
func NewServer(logger *slog.Logger, st *store.Store) *Server {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	solverLogger := logging.Adapt(logger)
	notify := solver.NewNotificationManager(solverLogger)
	hub := notifiers.NewWebSocketNotifier(websocketNotifierID)
	if err := notify.RegisterNotifier(hub); err != nil {
		logger.Error("cannot register websocket notifier", "error", err)
	}

	ctx, stop := context.WithCancel(context.Background())
	return &Server{
		registry: NewRegistry(),
		solver:   solver.New(solver.WithLogger(solverLogger), solver.WithNotifications(notify)),
		notify:   notify,
		hub:      hub,
		store:    st,
		logger:   logger,
		baseCtx:  ctx,
		stop:     stop,
	}
}

// AddWebhook registers a webhook receiving every run event.
func (s *Server) AddWebhook(id, url string) error {
	return s.notify.RegisterNotifier(notifiers.NewWebhookNotifier(id, url))
}

// Routes returns the HTTP handler.
func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(
		middleware.RequestID,
		s.requestLogger,
		middleware.Recoverer,
	)

	r.Get("/healthz", s.handleHealth)
	r.Get("/ws", s.hub.ServeHTTP)

	r.Route("/models", func(r chi.Router) {
		r.Get("/", s.handleListModels)
		r.Route("/{id}", func(r chi.Router) {
			r.Get("/", s.handleGetModel)
			r.Post("/", s.handlePutModel)
			r.Delete("/", s.handleDeleteModel)
			r.Post("/runs", s.handleCreateRun)
		})
	})

	r.Route("/runs", func(r chi.Router) {
		r.Get("/", s.handleListRuns)
		r.Route("/{runID}", func(r chi.Router) {
			r.Get("/", s.handleGetRun)
			r.Delete("/", s.handleCancelRun)
			r.Get("/trajectories", s.handleTrajectories)
		})
	})

	r.Route("/notifiers", func(r chi.Router) {
		r.Get("/", s.handleListNotifiers)
		r.Post("/", s.handleRegisterNotifier)
		r.Delete("/{id}", s.handleUnregisterNotifier)
	})

	return r
}

func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		s.logger.Debug("request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"bytes", ww.BytesWritten(),
			"duration", time.Since(start),
			"request_id", middleware.GetReqID(r.Context()),
		)
	})
}

// Serve listens on addr until ctx is cancelled, then shuts down gracefully.
func (s *Server) Serve(ctx context.Context, addr string) error {
	eg, egctx := errgroup.WithContext(ctx)

	srv := &http.Server{
		Addr:    addr,
		Handler: s.Routes(),
		BaseContext: func(_ net.Listener) context.Context {
			return egctx
		},
		ReadHeaderTimeout: 10 * time.Second,
	}

	eg.Go(func() error {
		s.logger.Info("cmsim-server listening", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	})

	eg.Go(func() error {
		<-egctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		s.logger.Info("shutting down")
		return srv.Shutdown(shutdownCtx)
	})

	return eg.Wait()
}

// Close cancels unfinished run sets, waits for their solves to return and
// closes the notifiers.
func (s *Server) Close() error {
	s.stop()
	s.registry.CancelAll()
	s.wg.Wait()
	return s.notify.Close()
}
