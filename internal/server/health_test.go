package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

// fakePinger is a test double for the Pinger interface.
type fakePinger struct {
	// name is returned by Name().
	name string
	// err is returned by Ping(); nil means healthy.
	err error
}

func (f *fakePinger) Name() string                 { return f.name }
func (f *fakePinger) Ping(_ context.Context) error { return f.err }

// newReadyTestServer builds a *Server with the given pingers wired in.
func newReadyTestServer(pingers ...Pinger) *Server {
	s := newTestServer()
	s.pingers = pingers
	return s
}

// TestHandleHealth_OK verifies that GET /api/health returns 200 with a JSON
// body containing {"status":"ok"}.
func TestHandleHealth_OK(t *testing.T) {
	t.Parallel()

	s := newTestServer()
	req := httptest.NewRequest(http.MethodGet, "/api/health", nil)
	w := httptest.NewRecorder()

	s.handleHealth(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200 OK, got %d — body: %s", w.Code, w.Body.String())
	}
	if ct := w.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("Content-Type: expected application/json, got %q", ct)
	}

	var body map[string]string
	if err := json.NewDecoder(w.Body).Decode(&body); err != nil {
		t.Fatalf("failed to decode JSON response: %v", err)
	}
	if body["status"] != "ok" {
		t.Errorf("status = %q, want ok", body["status"])
	}
}

// TestHandleReady_AllHealthy verifies 200 with per-dependency checks when
// every probe succeeds.
func TestHandleReady_AllHealthy(t *testing.T) {
	t.Parallel()

	s := newReadyTestServer(
		&fakePinger{name: "index"},
		&fakePinger{name: "qdrant"},
	)
	req := httptest.NewRequest(http.MethodGet, "/api/ready", nil)
	w := httptest.NewRecorder()

	s.handleReady(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}

	var resp readyResponse
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !resp.Ready || len(resp.Checks) != 2 {
		t.Fatalf("unexpected response: %+v", resp)
	}
}

// TestHandleReady_DependencyDown verifies 503 when any probe fails, with the
// failing dependency named in the response.
func TestHandleReady_DependencyDown(t *testing.T) {
	t.Parallel()

	s := newReadyTestServer(
		&fakePinger{name: "index"},
		&fakePinger{name: "qdrant", err: errors.New("connection refused")},
	)
	req := httptest.NewRequest(http.MethodGet, "/api/ready", nil)
	w := httptest.NewRecorder()

	s.handleReady(w, req)

	if w.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", w.Code)
	}

	var resp readyResponse
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Ready {
		t.Fatal("ready must be false when a probe fails")
	}
	var found bool
	for _, c := range resp.Checks {
		if c.Name == "qdrant" && !c.OK && c.Error != "" {
			found = true
		}
	}
	if !found {
		t.Fatalf("failing dependency not reported: %+v", resp.Checks)
	}
}

// TestHandleReady_NoPingers verifies liveness-only mode: 200 with zero checks.
func TestHandleReady_NoPingers(t *testing.T) {
	t.Parallel()

	s := newReadyTestServer()
	req := httptest.NewRequest(http.MethodGet, "/api/ready", nil)
	w := httptest.NewRecorder()

	s.handleReady(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200 in liveness-only mode, got %d", w.Code)
	}
}

// TestMultiPinger_FirstFailureWins verifies the aggregate probe stops at the
// first failing dependency and names it.
func TestMultiPinger_FirstFailureWins(t *testing.T) {
	t.Parallel()

	m := NewMultiPinger(
		&fakePinger{name: "index"},
		&fakePinger{name: "qdrant", err: errors.New("down")},
		&fakePinger{name: "llm", err: errors.New("also down")},
	)

	err := m.Ping(context.Background())
	if err == nil {
		t.Fatal("expected error")
	}
	if got := err.Error(); got != "qdrant: down" {
		t.Fatalf("error = %q, want first failure", got)
	}
}
