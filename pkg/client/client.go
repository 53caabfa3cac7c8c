package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/daniacca/cmsim/internal/cms"
	"github.com/daniacca/cmsim/internal/solver"
	"github.com/daniacca/cmsim/internal/store"
	"github.com/gorilla/websocket"
)

// APIError is returned for any non-2xx response. Violations is set when the
// server rejected a model.
type APIError struct {
	StatusCode int
	Message    string
	Violations []cms.Violation
}

func (e *APIError) Error() string {
	msg := fmt.Sprintf("server returned status %d: %s", e.StatusCode, e.Message)
	if len(e.Violations) > 0 {
		issues := make([]string, len(e.Violations))
		for i, v := range e.Violations {
			issues[i] = v.String()
		}
		msg += " (" + strings.Join(issues, "; ") + ")"
	}
	return msg
}

// IsNotFound reports whether err is a 404 from the server.
func IsNotFound(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusNotFound
}

// Client talks to a cmsim server.
type Client struct {
	baseURL string
	http    *http.Client
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the default http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

// New creates a client for the server at baseURL (e.g. "http://localhost:8080").
func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: 30 * time.Second},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Client) do(ctx context.Context, method string, path []string, query url.Values, body, out any) error {
	data, err := c.raw(ctx, method, path, query, body)
	if err != nil {
		return err
	}
	if out == nil || len(data) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

func (c *Client) raw(ctx context.Context, method string, path []string, query url.Values, body any) ([]byte, error) {
	u, err := url.JoinPath(c.baseURL, path...)
	if err != nil {
		return nil, fmt.Errorf("failed to build URL: %w", err)
	}
	if len(query) > 0 {
		u += "?" + query.Encode()
	}

	var r io.Reader
	if body != nil {
		jsonData, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal request: %w", err)
		}
		r = bytes.NewReader(jsonData)
	}

	req, err := http.NewRequestWithContext(ctx, method, u, r)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		apiErr := &APIError{StatusCode: resp.StatusCode, Message: strings.TrimSpace(string(data))}
		var payload struct {
			Error      string          `json:"error"`
			Violations []cms.Violation `json:"violations"`
		}
		if json.Unmarshal(data, &payload) == nil && payload.Error != "" {
			apiErr.Message = payload.Error
			apiErr.Violations = payload.Violations
		}
		return nil, apiErr
	}
	return data, nil
}

// ModelInfo summarizes a stored model definition.
type ModelInfo struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	Created    bool   `json:"created"`
	Species    int    `json:"species"`
	Parameters int    `json:"parameters"`
	Functions  int    `json:"functions"`
	Reactions  int    `json:"reactions"`
}

// PutModel creates or replaces the model definition stored under id.
func (c *Client) PutModel(ctx context.Context, id string, cfg cms.ModelConfig) (ModelInfo, error) {
	var info ModelInfo
	err := c.do(ctx, http.MethodPost, []string{"models", id}, nil, cfg, &info)
	return info, err
}

// ApplyModel builds mb and stores it under id.
func (c *Client) ApplyModel(ctx context.Context, id string, mb *ModelBuilder) (ModelInfo, error) {
	return c.PutModel(ctx, id, mb.Build())
}

// Model fetches the structured description of a model.
func (c *Client) Model(ctx context.Context, id string) (cms.ModelConfig, error) {
	var cfg cms.ModelConfig
	err := c.do(ctx, http.MethodGet, []string{"models", id}, url.Values{"format": {"json"}}, nil, &cfg)
	return cfg, err
}

// ModelEMODL fetches the EMODL text of a model.
func (c *Client) ModelEMODL(ctx context.Context, id string) (string, error) {
	data, err := c.raw(ctx, http.MethodGet, []string{"models", id}, nil, nil)
	return string(data), err
}

// Models lists the model ids known to the server, catalog models included.
func (c *Client) Models(ctx context.Context) ([]string, error) {
	var out struct {
		Models []string `json:"models"`
	}
	err := c.do(ctx, http.MethodGet, []string{"models"}, nil, nil, &out)
	return out.Models, err
}

// DeleteModel removes a posted model definition.
func (c *Client) DeleteModel(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodDelete, []string{"models", id}, nil, nil, nil)
}

// RunRequest configures a run set. Start from DefaultRun so omitted
// settings keep their defaults.
type RunRequest struct {
	solver.RunConfig
	Populations map[string]int64 `json:"populations,omitempty"`
}

// DefaultRun returns a request for a single exact run with the default
// duration, sampling and seed.
func DefaultRun() RunRequest {
	return RunRequest{RunConfig: solver.DefaultRunConfig()}
}

// StartRun starts a run set over the model and returns its id. Solving
// continues on the server; use WaitRun to block until it is done.
func (c *Client) StartRun(ctx context.Context, modelID string, req RunRequest) (string, error) {
	var out struct {
		ID string `json:"id"`
	}
	if err := c.do(ctx, http.MethodPost, []string{"models", modelID, "runs"}, nil, req, &out); err != nil {
		return "", err
	}
	return out.ID, nil
}

// RunInfo is the server's view of a run set.
type RunInfo struct {
	ID        string            `json:"id"`
	Model     string            `json:"model"`
	Done      bool              `json:"done"`
	Error     string            `json:"error,omitempty"`
	Config    solver.RunConfig  `json:"config"`
	Summary   solver.Summary    `json:"summary"`
	Statuses  []store.RunStatus `json:"statuses,omitempty"`
	CreatedAt time.Time         `json:"created_at"`
}

// Run fetches the state of a run set.
func (c *Client) Run(ctx context.Context, id string) (RunInfo, error) {
	var info RunInfo
	err := c.do(ctx, http.MethodGet, []string{"runs", id}, nil, nil, &info)
	return info, err
}

// Runs lists the run sets the server is tracking.
func (c *Client) Runs(ctx context.Context) ([]RunInfo, error) {
	var out struct {
		Runs []RunInfo `json:"runs"`
	}
	err := c.do(ctx, http.MethodGet, []string{"runs"}, nil, nil, &out)
	return out.Runs, err
}

// CancelRun asks the server to stop solving a run set.
func (c *Client) CancelRun(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodDelete, []string{"runs", id}, nil, nil, nil)
}

// WaitRun polls the run set every interval until it is done or ctx ends.
func (c *Client) WaitRun(ctx context.Context, id string, interval time.Duration) (RunInfo, error) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		info, err := c.Run(ctx, id)
		if err != nil {
			return RunInfo{}, err
		}
		if info.Done {
			return info, nil
		}
		select {
		case <-ctx.Done():
			return info, ctx.Err()
		case <-ticker.C:
		}
	}
}

// Trajectories fetches the sampled trajectories of a finished run set.
func (c *Client) Trajectories(ctx context.Context, id string) (store.RunSet, error) {
	data, err := c.raw(ctx, http.MethodGet, []string{"runs", id, "trajectories"}, nil, nil)
	if err != nil {
		return store.RunSet{}, err
	}
	return store.DecodeJSON(data)
}

// TrajectoriesCSV copies the CSV rendering of a finished run set to w.
func (c *Client) TrajectoriesCSV(ctx context.Context, id string, w io.Writer) error {
	data, err := c.raw(ctx, http.MethodGet, []string{"runs", id, "trajectories"}, url.Values{"format": {"csv"}}, nil)
	if err != nil {
		return err
	}
	_, err = w.Write(data)
	return err
}

// NotifierInfo describes a registered notifier.
type NotifierInfo struct {
	ID   string `json:"id"`
	Type string `json:"type"`
}

// RegisterWebhook asks the server to POST every run event to target.
func (c *Client) RegisterWebhook(ctx context.Context, id, target string, headers map[string]string) error {
	cfg := map[string]any{"url": target}
	if len(headers) > 0 {
		cfg["headers"] = headers
	}
	body := map[string]any{"type": "webhook", "id": id, "config": cfg}
	return c.do(ctx, http.MethodPost, []string{"notifiers"}, nil, body, nil)
}

// Notifiers lists the registered notifiers.
func (c *Client) Notifiers(ctx context.Context) ([]NotifierInfo, error) {
	var out struct {
		Notifiers []NotifierInfo `json:"notifiers"`
	}
	err := c.do(ctx, http.MethodGet, []string{"notifiers"}, nil, nil, &out)
	return out.Notifiers, err
}

// UnregisterNotifier removes a notifier.
func (c *Client) UnregisterNotifier(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodDelete, []string{"notifiers", id}, nil, nil, nil)
}

// Subscribe opens the server's event stream. The channel is closed when ctx
// ends or the connection drops.
func (c *Client) Subscribe(ctx context.Context) (<-chan solver.RunEvent, error) {
	u, err := url.Parse(c.baseURL + "/ws")
	if err != nil {
		return nil, fmt.Errorf("failed to build URL: %w", err)
	}
	switch u.Scheme {
	case "https":
		u.Scheme = "wss"
	default:
		u.Scheme = "ws"
	}

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to open event stream: %w", err)
	}

	events := make(chan solver.RunEvent, 64)
	done := make(chan struct{})
	go func() {
		select {
		case <-ctx.Done():
		case <-done:
		}
		_ = conn.Close()
	}()
	go func() {
		defer close(events)
		defer close(done)
		for {
			var ev solver.RunEvent
			if err := conn.ReadJSON(&ev); err != nil {
				return
			}
			select {
			case events <- ev:
			case <-ctx.Done():
				return
			}
		}
	}()
	return events, nil
}
