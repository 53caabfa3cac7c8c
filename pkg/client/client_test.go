package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/daniacca/cmsim/internal/cms"
	"github.com/daniacca/cmsim/internal/solver"
	"github.com/daniacca/cmsim/internal/store"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func TestClient_PutModel(t *testing.T) {
	var got cms.ModelConfig
	mux := http.NewServeMux()
	mux.HandleFunc("POST /models/{id}", func(w http.ResponseWriter, r *http.Request) {
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		writeJSON(w, http.StatusCreated, ModelInfo{ID: r.PathValue("id"), Name: got.Name, Created: true, Species: len(got.Species)})
	})
	ts := httptest.NewServer(mux)
	defer ts.Close()

	info, err := New(ts.URL).ApplyModel(context.Background(), "sir", sirBuilder())
	require.NoError(t, err)
	assert.Equal(t, "sir", info.ID)
	assert.True(t, info.Created)
	assert.Equal(t, 3, info.Species)
	assert.Len(t, got.Reactions, 2)
}

func TestClient_ValidationError(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusUnprocessableEntity, map[string]any{
			"error": "model is invalid",
			"violations": []cms.Violation{
				{Kind: cms.UnresolvedSymbol, Subject: `reaction "r"`, Name: "ghost"},
			},
		})
	}))
	defer ts.Close()

	_, err := New(ts.URL).PutModel(context.Background(), "broken", cms.ModelConfig{Name: "broken"})
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusUnprocessableEntity, apiErr.StatusCode)
	assert.Equal(t, "model is invalid", apiErr.Message)
	require.Len(t, apiErr.Violations, 1)
	assert.Equal(t, "ghost", apiErr.Violations[0].Name)
	assert.Contains(t, err.Error(), `reaction "r": unresolved symbol "ghost"`)
	assert.False(t, IsNotFound(err))
}

func TestClient_NotFound(t *testing.T) {
	ts := httptest.NewServer(http.NotFoundHandler())
	defer ts.Close()

	_, err := New(ts.URL).Model(context.Background(), "missing")
	assert.True(t, IsNotFound(err))
	assert.Contains(t, err.Error(), "404 page not found")
}

func TestClient_ModelQueries(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /models", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string][]string{"models": {"decay", "hat"}})
	})
	mux.HandleFunc("GET /models/{id}", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("format") == "json" {
			writeJSON(w, http.StatusOK, cms.ModelConfig{Name: r.PathValue("id")})
			return
		}
		_, _ = w.Write([]byte(`(start-model "decay")`))
	})
	mux.HandleFunc("DELETE /models/{id}", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})
	ts := httptest.NewServer(mux)
	defer ts.Close()

	ctx := context.Background()
	c := New(ts.URL + "/")

	ids, err := c.Models(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"decay", "hat"}, ids)

	cfg, err := c.Model(ctx, "decay")
	require.NoError(t, err)
	assert.Equal(t, "decay", cfg.Name)

	text, err := c.ModelEMODL(ctx, "decay")
	require.NoError(t, err)
	assert.Equal(t, `(start-model "decay")`, text)

	assert.NoError(t, c.DeleteModel(ctx, "decay"))
}

func TestClient_RunLifecycle(t *testing.T) {
	rs := store.RunSet{
		ID:    "run-1",
		Model: "decay",
		Times: []float64{0, 1},
		Trajectories: []solver.Trajectory{
			{Label: "A{0}", Species: "A", Run: 0, Values: []float64{10, 7}},
		},
	}
	var polls atomic.Int32
	var request map[string]any

	mux := http.NewServeMux()
	mux.HandleFunc("POST /models/{id}/runs", func(w http.ResponseWriter, r *http.Request) {
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&request))
		writeJSON(w, http.StatusAccepted, map[string]string{"id": "run-1", "model": r.PathValue("id"), "status_url": "/runs/run-1"})
	})
	mux.HandleFunc("GET /runs/{id}", func(w http.ResponseWriter, r *http.Request) {
		done := polls.Add(1) >= 3
		writeJSON(w, http.StatusOK, RunInfo{ID: r.PathValue("id"), Model: "decay", Done: done})
	})
	mux.HandleFunc("GET /runs", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string][]RunInfo{"runs": {{ID: "run-1"}}})
	})
	mux.HandleFunc("DELETE /runs/{id}", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusAccepted)
	})
	mux.HandleFunc("GET /runs/{id}/trajectories", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("format") == "csv" {
			assert.NoError(t, store.WriteCSV(w, rs))
			return
		}
		data, err := store.EncodeJSON(rs)
		assert.NoError(t, err)
		_, _ = w.Write(data)
	})
	ts := httptest.NewServer(mux)
	defer ts.Close()

	ctx := context.Background()
	c := New(ts.URL)

	req := DefaultRun()
	req.Runs = 4
	req.Algorithm = solver.TauLeap
	req.Populations = map[string]int64{"A": 10}
	id, err := c.StartRun(ctx, "decay", req)
	require.NoError(t, err)
	assert.Equal(t, "run-1", id)
	assert.EqualValues(t, 4, request["runs"])
	assert.Equal(t, "TAU", request["algorithm"])
	assert.EqualValues(t, solver.DefaultSeed, request["seed"])
	assert.Equal(t, map[string]any{"A": float64(10)}, request["populations"])

	info, err := c.WaitRun(ctx, id, time.Millisecond)
	require.NoError(t, err)
	assert.True(t, info.Done)
	assert.EqualValues(t, 3, polls.Load())

	runs, err := c.Runs(ctx)
	require.NoError(t, err)
	require.Len(t, runs, 1)

	got, err := c.Trajectories(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, rs.Trajectories[0].Values, got.Trajectories[0].Values)

	var buf bytes.Buffer
	require.NoError(t, c.TrajectoriesCSV(ctx, id, &buf))
	assert.Equal(t, "time,A{0}\n0,10\n1,7\n", buf.String())

	assert.NoError(t, c.CancelRun(ctx, id))
}

func TestClient_WaitRunHonoursContext(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, RunInfo{ID: "slow"})
	}))
	defer ts.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err := New(ts.URL).WaitRun(ctx, "slow", 5*time.Millisecond)
	assert.True(t, errors.Is(err, context.DeadlineExceeded), "got %v", err)
}

func TestClient_Notifiers(t *testing.T) {
	var registered map[string]any
	mux := http.NewServeMux()
	mux.HandleFunc("POST /notifiers", func(w http.ResponseWriter, r *http.Request) {
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&registered))
		writeJSON(w, http.StatusCreated, map[string]string{"id": "hook", "type": "webhook"})
	})
	mux.HandleFunc("GET /notifiers", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{"notifiers": []NotifierInfo{{ID: "ws", Type: "websocket"}, {ID: "hook", Type: "webhook"}}})
	})
	mux.HandleFunc("DELETE /notifiers/{id}", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})
	ts := httptest.NewServer(mux)
	defer ts.Close()

	ctx := context.Background()
	c := New(ts.URL)

	require.NoError(t, c.RegisterWebhook(ctx, "hook", "http://example.com/events", map[string]string{"X-Token": "secret"}))
	assert.Equal(t, "webhook", registered["type"])
	assert.Equal(t, map[string]any{
		"url":     "http://example.com/events",
		"headers": map[string]any{"X-Token": "secret"},
	}, registered["config"])

	list, err := c.Notifiers(ctx)
	require.NoError(t, err)
	assert.Len(t, list, 2)

	assert.NoError(t, c.UnregisterNotifier(ctx, "hook"))
}

func TestClient_Subscribe(t *testing.T) {
	upgrader := websocket.Upgrader{}
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/ws", r.URL.Path)
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		for i := range 2 {
			_ = conn.WriteJSON(solver.RunEvent{HandleID: "run-1", Run: i, State: solver.Completed})
		}
	}))
	defer ts.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	events, err := New(ts.URL).Subscribe(ctx)
	require.NoError(t, err)

	var got []solver.RunEvent
	for ev := range events {
		got = append(got, ev)
	}
	require.Len(t, got, 2)
	assert.Equal(t, 1, got[1].Run)
	assert.Equal(t, solver.Completed, got[1].State)
}
