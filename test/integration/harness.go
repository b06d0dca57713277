// Package integration provides a reusable test harness for end-to-end
// integration testing of the Aduan chatbot backend. It starts a full HTTP
// server with in-memory stores and a canned general-answer responder.
package integration

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/pitabwire/aduan/internal/config"
	"github.com/pitabwire/aduan/internal/dedupe"
	"github.com/pitabwire/aduan/internal/intent"
	"github.com/pitabwire/aduan/internal/observability"
	"github.com/pitabwire/aduan/internal/openapi"
	"github.com/pitabwire/aduan/internal/session"
	"github.com/pitabwire/aduan/internal/ticket"
	"github.com/pitabwire/aduan/internal/transport"
	"github.com/pitabwire/aduan/internal/workflow"
	"github.com/pitabwire/aduan/model"
)

// TestHarness encapsulates a fully wired backend instance for integration
// testing.
type TestHarness struct {
	t      *testing.T
	server *httptest.Server

	// Internal components exposed for advanced test scenarios.
	SessionStore  *session.MemoryStore
	WorkflowStore *workflow.MemoryStore
	Sessions      *session.Manager
	Sweeper       *session.Sweeper
	Engine        *workflow.Engine
	Responder     *CannedResponder

	cfg *config.Config
}

// CannedResponder records general-answer calls and returns a fixed reply.
type CannedResponder struct {
	Reply string
	Err   error
	Calls int
}

// Answer implements intent.Responder.
func (c *CannedResponder) Answer(_ context.Context, _, _ string) (string, error) {
	c.Calls++
	if c.Err != nil {
		return "", c.Err
	}
	return c.Reply, nil
}

// HarnessOption configures the test harness.
type HarnessOption func(*harnessConfig)

type harnessConfig struct {
	sessionTimeoutMinutes int
	cleanupBatchSize      int
	cleanupScanLimit      int
	dedupeEnabled         bool
	dedupeTTL             time.Duration
	handlerTimeout        time.Duration
}

// WithSessionTimeout sets the inactivity timeout in minutes.
func WithSessionTimeout(minutes int) HarnessOption {
	return func(c *harnessConfig) {
		c.sessionTimeoutMinutes = minutes
	}
}

// WithCleanupLimits sets the sweep batch size and scan page size.
func WithCleanupLimits(batchSize, scanLimit int) HarnessOption {
	return func(c *harnessConfig) {
		c.cleanupBatchSize = batchSize
		c.cleanupScanLimit = scanLimit
	}
}

// WithDedupe enables message deduplication with the given TTL.
func WithDedupe(ttl time.Duration) HarnessOption {
	return func(c *harnessConfig) {
		c.dedupeEnabled = true
		c.dedupeTTL = ttl
	}
}

// WithHandlerTimeout sets the per-request handler timeout.
func WithHandlerTimeout(d time.Duration) HarnessOption {
	return func(c *harnessConfig) {
		c.handlerTimeout = d
	}
}

// NewTestHarness creates and starts a full backend test instance. The server
// is automatically cleaned up when the test completes.
func NewTestHarness(t *testing.T, opts ...HarnessOption) *TestHarness {
	t.Helper()

	hc := &harnessConfig{
		sessionTimeoutMinutes: 30,
		cleanupBatchSize:      25,
		cleanupScanLimit:      500,
		handlerTimeout:        10 * time.Second,
	}
	for _, opt := range opts {
		opt(hc)
	}

	cfg := config.Defaults()
	cfg.Session.TimeoutMinutes = hc.sessionTimeoutMinutes
	cfg.Session.Cleanup.BatchSize = hc.cleanupBatchSize
	cfg.Session.Cleanup.ScanLimit = hc.cleanupScanLimit
	cfg.Server.HandlerTimeout = hc.handlerTimeout
	cfg.Observability.Metrics.Enabled = false

	logger := zap.NewNop()
	metrics := observability.InitMetrics(prometheus.NewRegistry())

	h := &TestHarness{
		t:             t,
		SessionStore:  session.NewMemoryStore(),
		WorkflowStore: workflow.NewMemoryStore(),
		Responder:     &CannedResponder{Reply: "Here is some general information."},
		cfg:           cfg,
	}

	h.Sessions = session.NewManager(h.SessionStore, cfg.Session, logger, metrics)
	h.Sweeper = session.NewSweeper(h.SessionStore, cfg.Session, logger, metrics)
	h.Engine = workflow.NewEngine(h.WorkflowStore, ticket.NewMemoryCounter(), logger, metrics)
	router := intent.NewRouter(h.Engine, h.Responder, logger, metrics)

	schema, err := openapi.Load()
	if err != nil {
		t.Fatalf("load OpenAPI schema: %v", err)
	}

	var dedupeStore dedupe.Store
	if hc.dedupeEnabled {
		dedupeStore = dedupe.NewMemoryStore()
	}

	handlers := transport.NewHandlers(h.Sessions, h.Sweeper, router,
		dedupeStore, hc.dedupeTTL, schema, logger, metrics)

	h.server = httptest.NewServer(transport.NewRouter(transport.Dependencies{
		Config:   cfg,
		Logger:   logger,
		Metrics:  metrics,
		Handlers: handlers,
		Readiness: observability.ReadinessChecks{
			SessionStore:  h.SessionStore,
			WorkflowStore: h.WorkflowStore,
		},
	}))
	t.Cleanup(func() {
		h.server.Close()
	})

	return h
}

// BaseURL returns the test server's base URL.
func (h *TestHarness) BaseURL() string {
	return h.server.URL
}

// SeedSession inserts a session record directly into the store, bypassing
// the manager. Useful for staging stale or inactive records.
func (h *TestHarness) SeedSession(status string, lastActivity time.Time) string {
	h.t.Helper()

	id := model.SessionIDPrefix + uuid.New().String()
	err := h.SessionStore.Put(context.Background(), model.Session{
		ID:           id,
		Status:       status,
		CreatedAt:    lastActivity.Add(-time.Hour),
		LastActivity: lastActivity,
		TTL:          lastActivity.Add(24 * time.Hour).Unix(),
	})
	if err != nil {
		h.t.Fatalf("seed session: %v", err)
	}
	return id
}

// --- HTTP client helpers ---

// GET performs a GET request.
func (h *TestHarness) GET(path string) *http.Response {
	h.t.Helper()
	return h.doRequest(http.MethodGet, path, nil)
}

// POST performs a POST request with a JSON body.
func (h *TestHarness) POST(path string, body any) *http.Response {
	h.t.Helper()
	return h.doRequest(http.MethodPost, path, body)
}

// DELETE performs a DELETE request.
func (h *TestHarness) DELETE(path string) *http.Response {
	h.t.Helper()
	return h.doRequest(http.MethodDelete, path, nil)
}

func (h *TestHarness) doRequest(method, path string, body any) *http.Response {
	h.t.Helper()

	var bodyReader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			h.t.Fatalf("marshal request body: %v", err)
		}
		bodyReader = strings.NewReader(string(data))
	}

	req, err := http.NewRequestWithContext(context.Background(), method, h.server.URL+path, bodyReader)
	if err != nil {
		h.t.Fatalf("create request: %v", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	client := &http.Client{Timeout: 10 * time.Second}
	resp, err := client.Do(req)
	if err != nil {
		h.t.Fatalf("%s %s failed: %v", method, path, err)
	}
	return resp
}

// ParseJSON reads the response body and unmarshals it into the target.
func (h *TestHarness) ParseJSON(resp *http.Response, target any) {
	h.t.Helper()
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		h.t.Fatalf("read response body: %v", err)
	}
	if err := json.Unmarshal(data, target); err != nil {
		h.t.Fatalf("unmarshal response body: %v\nbody: %s", err, string(data))
	}
}

// AssertStatus checks that the response has the expected status code.
func (h *TestHarness) AssertStatus(t *testing.T, resp *http.Response, expected int) {
	t.Helper()
	if resp.StatusCode != expected {
		body, _ := io.ReadAll(resp.Body)
		resp.Body.Close()
		t.Errorf("status = %d, want %d\nbody: %s", resp.StatusCode, expected, string(body))
	}
}

// AssertJSON checks that the response has the expected status and parses the
// body.
func (h *TestHarness) AssertJSON(t *testing.T, resp *http.Response, expected int, target any) {
	t.Helper()
	if resp.StatusCode != expected {
		body, _ := io.ReadAll(resp.Body)
		resp.Body.Close()
		t.Fatalf("status = %d, want %d\nbody: %s", resp.StatusCode, expected, string(body))
	}
	h.ParseJSON(resp, target)
}

// SendMessage posts one chat message and returns the outbound payload.
func (h *TestHarness) SendMessage(t *testing.T, sessionID, message string) model.OutboundResponse {
	t.Helper()

	resp := h.POST("/v1/messages", map[string]any{
		"message":    message,
		"session_id": sessionID,
	})
	var out model.OutboundResponse
	h.AssertJSON(t, resp, http.StatusOK, &out)
	return out
}
