package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/daniacca/cmsim/internal/cms"
	"github.com/daniacca/cmsim/internal/solver"
	"github.com/daniacca/cmsim/internal/solver/notifiers"
	"github.com/daniacca/cmsim/internal/store"
	"github.com/go-chi/chi/v5"
)

const maxBodyBytes = 4 << 20

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

type errorResponse struct {
	Error      string          `json:"error"`
	Violations []cms.Violation `json:"violations,omitempty"`
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Error: msg})
}

// writeModelError answers 422 with the violation list for model problems and
// 400 for anything else.
func writeModelError(w http.ResponseWriter, err error) {
	var verr *cms.ValidationError
	if errors.As(err, &verr) {
		writeJSON(w, http.StatusUnprocessableEntity, errorResponse{Error: "model is invalid", Violations: verr.Violations})
		return
	}
	writeError(w, http.StatusBadRequest, err.Error())
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

// GET /models
func (s *Server) handleListModels(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string][]string{"models": s.registry.ModelIDs()})
}

type modelResponse struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	Created    bool   `json:"created"`
	Valid      bool   `json:"valid"`
	Species    int    `json:"species"`
	Parameters int    `json:"parameters"`
	Functions  int    `json:"functions"`
	Reactions  int    `json:"reactions"`
}

// POST /models/{id}
// Body: ModelConfig JSON. Every violation is reported at once with 422.
func (s *Server) handlePutModel(w http.ResponseWriter, r *http.Request) {
	defer r.Body.Close()
	id := chi.URLParam(r, "id")

	var cfg cms.ModelConfig
	if err := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes)).Decode(&cfg); err != nil {
		writeError(w, http.StatusBadRequest, "invalid model json: "+err.Error())
		return
	}
	if cfg.Name == "" {
		cfg.Name = id
	}

	m, err := cms.BuildModel(cfg)
	if err != nil {
		writeModelError(w, err)
		return
	}
	if err := cms.Validate(m).Err(); err != nil {
		writeModelError(w, err)
		return
	}

	created := s.registry.PutModel(id, cfg)
	if created {
		s.logger.Info("model created", "model_id", id, "name", cfg.Name)
	} else {
		s.logger.Info("model updated", "model_id", id, "name", cfg.Name)
	}

	status := http.StatusOK
	if created {
		status = http.StatusCreated
	}
	writeJSON(w, status, modelResponse{
		ID:         id,
		Name:       m.Name,
		Created:    created,
		Valid:      true,
		Species:    len(m.Species()),
		Parameters: len(m.Parameters()),
		Functions:  len(m.Functions()),
		Reactions:  len(m.Reactions()),
	})
}

// GET /models/{id}
// Returns EMODL text, or the structured description with ?format=json.
func (s *Server) handleGetModel(w http.ResponseWriter, r *http.Request) {
	m, err := s.registry.Model(chi.URLParam(r, "id"), nil)
	if err != nil {
		if errors.Is(err, errModelNotFound) {
			writeError(w, http.StatusNotFound, err.Error())
			return
		}
		writeModelError(w, err)
		return
	}

	if r.URL.Query().Get("format") == "json" {
		writeJSON(w, http.StatusOK, m.Config())
		return
	}
	var buf bytes.Buffer
	if err := m.WriteEMODL(&buf); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	_, _ = w.Write(buf.Bytes())
}

// DELETE /models/{id}
func (s *Server) handleDeleteModel(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := s.registry.DeleteModel(id); err != nil {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}
	s.logger.Info("model deleted", "model_id", id)
	w.WriteHeader(http.StatusNoContent)
}

// runRequest is a run configuration plus optional initial population
// overrides. Omitted fields keep their defaults.
type runRequest struct {
	solver.RunConfig
	Populations map[string]int64 `json:"populations,omitempty"`
}

type runCreated struct {
	ID        string `json:"id"`
	Model     string `json:"model"`
	StatusURL string `json:"status_url"`
}

// POST /models/{id}/runs
// Body: RunConfig JSON (optional). The run set is solved in the background.
func (s *Server) handleCreateRun(w http.ResponseWriter, r *http.Request) {
	defer r.Body.Close()
	modelID := chi.URLParam(r, "id")

	req := runRequest{RunConfig: solver.DefaultRunConfig()}
	if err := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes)).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		writeError(w, http.StatusBadRequest, "invalid run configuration json: "+err.Error())
		return
	}

	m, err := s.registry.Model(modelID, req.Populations)
	if err != nil {
		if errors.Is(err, errModelNotFound) {
			writeError(w, http.StatusNotFound, err.Error())
			return
		}
		writeModelError(w, err)
		return
	}

	h, err := s.solver.CreateRun(m, req.RunConfig)
	if err != nil {
		writeModelError(w, err)
		return
	}

	ctx, cancel := context.WithCancel(s.baseCtx)
	s.registry.AddRun(modelID, h, cancel)
	s.wg.Add(1)
	go s.solve(ctx, h)

	s.logger.Info("run set started", "run_set", h.ID, "model_id", modelID, "runs", h.Config().Runs)
	writeJSON(w, http.StatusAccepted, runCreated{ID: h.ID, Model: modelID, StatusURL: "/runs/" + h.ID})
}

func (s *Server) solve(ctx context.Context, h *solver.RunHandle) {
	defer s.wg.Done()
	err := s.solver.Solve(ctx, h)
	if err != nil {
		s.logger.Warn("run set interrupted", "run_set", h.ID, "error", err)
	}
	if s.store != nil {
		rs := store.Capture(h, s.solver.Trajectories(h))
		saveCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		if serr := s.store.SaveRunSet(saveCtx, rs); serr != nil {
			s.logger.Error("cannot store run set", "run_set", h.ID, "error", serr)
		}
		cancel()
	}
	s.registry.FinishRun(h.ID, err)
}

type runView struct {
	ID        string            `json:"id"`
	Model     string            `json:"model"`
	Done      bool              `json:"done"`
	Error     string            `json:"error,omitempty"`
	Config    solver.RunConfig  `json:"config"`
	Summary   solver.Summary    `json:"summary"`
	Statuses  []store.RunStatus `json:"statuses,omitempty"`
	CreatedAt time.Time         `json:"created_at"`
}

func viewOf(e runEntry, withStatuses bool) runView {
	h := e.handle
	v := runView{
		ID:        h.ID,
		Model:     e.modelID,
		Done:      e.finished,
		Config:    h.Config(),
		Summary:   h.Summary(),
		CreatedAt: h.CreatedAt,
	}
	if e.err != nil {
		v.Error = e.err.Error()
	}
	if withStatuses {
		v.Statuses = store.Capture(h, nil).Statuses
	}
	return v
}

// GET /runs
func (s *Server) handleListRuns(w http.ResponseWriter, _ *http.Request) {
	entries := s.registry.Runs()
	views := make([]runView, 0, len(entries))
	for _, e := range entries {
		views = append(views, viewOf(e, false))
	}
	writeJSON(w, http.StatusOK, map[string][]runView{"runs": views})
}

// GET /runs/{runID}
func (s *Server) handleGetRun(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "runID")
	e, err := s.registry.Run(id)
	if err == nil {
		writeJSON(w, http.StatusOK, viewOf(e, true))
		return
	}

	rs, ok := s.storedRunSet(w, r, id)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, runView{
		ID:        rs.ID,
		Model:     rs.Model,
		Done:      true,
		Summary:   solver.Summary{Runs: rs.Runs, Completed: rs.Completed, Failed: rs.Failed},
		Statuses:  rs.Statuses,
		CreatedAt: rs.CreatedAt,
	})
}

// DELETE /runs/{runID}
// Cancels a run set that is still solving.
func (s *Server) handleCancelRun(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "runID")
	if err := s.registry.CancelRun(id); err != nil {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}
	s.logger.Info("run set cancelled", "run_set", id)
	w.WriteHeader(http.StatusAccepted)
}

// GET /runs/{runID}/trajectories
// Returns the run set JSON document, or CSV with ?format=csv. Responds 409
// while the run set is still solving.
func (s *Server) handleTrajectories(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "runID")

	var rs store.RunSet
	if e, err := s.registry.Run(id); err == nil {
		if !e.finished {
			writeError(w, http.StatusConflict, "run set is still solving")
			return
		}
		rs = store.Capture(e.handle, s.solver.Trajectories(e.handle))
	} else {
		var ok bool
		if rs, ok = s.storedRunSet(w, r, id); !ok {
			return
		}
	}

	if r.URL.Query().Get("format") == "csv" {
		var buf bytes.Buffer
		if err := store.WriteCSV(&buf, rs); err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		w.Header().Set("Content-Type", "text/csv")
		_, _ = w.Write(buf.Bytes())
		return
	}
	data, err := store.EncodeJSON(rs)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write(data)
}

// storedRunSet loads a run set from the store, answering 404 when it is
// unknown.
func (s *Server) storedRunSet(w http.ResponseWriter, r *http.Request, id string) (store.RunSet, bool) {
	if s.store == nil {
		writeError(w, http.StatusNotFound, errRunNotFound.Error()+": "+id)
		return store.RunSet{}, false
	}
	rs, err := s.store.LoadRunSet(r.Context(), id)
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, store.ErrNotFound) {
			status = http.StatusNotFound
		}
		writeError(w, status, err.Error())
		return store.RunSet{}, false
	}
	return rs, true
}

// GET /notifiers
func (s *Server) handleListNotifiers(w http.ResponseWriter, _ *http.Request) {
	ids := s.notify.ListNotifiers()
	out := make([]map[string]string, 0, len(ids))
	for _, id := range ids {
		if n, ok := s.notify.GetNotifier(id); ok {
			out = append(out, map[string]string{"id": id, "type": n.Type()})
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{"notifiers": out})
}

// POST /notifiers
// Body: { "type": "webhook", "id": "my-webhook", "config": { "url": "http://...", "headers": {...} } }
type registerNotifierRequest struct {
	Type   string         `json:"type"`
	ID     string         `json:"id"`
	Config map[string]any `json:"config"`
}

func (s *Server) handleRegisterNotifier(w http.ResponseWriter, r *http.Request) {
	defer r.Body.Close()

	var req registerNotifierRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json: "+err.Error())
		return
	}
	if req.ID == "" {
		writeError(w, http.StatusBadRequest, "notifier ID is required")
		return
	}

	switch req.Type {
	case "webhook":
		url, ok := req.Config["url"].(string)
		if !ok || url == "" {
			writeError(w, http.StatusBadRequest, "webhook URL is required")
			return
		}
		wh := notifiers.NewWebhookNotifier(req.ID, url)
		if headers, ok := req.Config["headers"].(map[string]any); ok {
			for k, v := range headers {
				if vStr, ok := v.(string); ok {
					wh.SetHeader(k, vStr)
				}
			}
		}
		if err := s.notify.RegisterNotifier(wh); err != nil {
			writeError(w, http.StatusConflict, "cannot register notifier: "+err.Error())
			return
		}
	default:
		writeError(w, http.StatusBadRequest, "unknown notifier type: "+req.Type)
		return
	}

	s.logger.Info("notifier registered", "notifier_id", req.ID, "type", req.Type)
	writeJSON(w, http.StatusCreated, map[string]string{"id": req.ID, "type": req.Type})
}

// DELETE /notifiers/{id}
func (s *Server) handleUnregisterNotifier(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if id == websocketNotifierID {
		writeError(w, http.StatusBadRequest, "the websocket stream cannot be removed")
		return
	}
	if err := s.notify.UnregisterNotifier(id); err != nil {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}
	s.logger.Info("notifier unregistered", "notifier_id", id)
	w.WriteHeader(http.StatusNoContent)
}
