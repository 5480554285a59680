package server

import (
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
)

// TestRateLimiter_AllowsWithinBurst verifies that requests within the burst
// budget pass through.
func TestRateLimiter_AllowsWithinBurst(t *testing.T) {
	t.Parallel()

	rl, stop := newRateLimiter(10, 5, slog.Default())
	defer stop()

	h := rl.middleware(okHandler)
	for i := 0; i < 5; i++ {
		req := httptest.NewRequest(http.MethodPost, "/api/answer", nil)
		req.RemoteAddr = "10.0.0.1:1234"
		w := httptest.NewRecorder()
		h.ServeHTTP(w, req)
		if w.Code != http.StatusOK {
			t.Fatalf("request %d: expected 200, got %d", i, w.Code)
		}
	}
}

// TestRateLimiter_RejectsBeyondBurst verifies that a request past the burst
// budget receives 429 with a Retry-After header.
func TestRateLimiter_RejectsBeyondBurst(t *testing.T) {
	t.Parallel()

	rl, stop := newRateLimiter(0.001, 2, slog.Default())
	defer stop()

	h := rl.middleware(okHandler)
	var last *httptest.ResponseRecorder
	for i := 0; i < 3; i++ {
		req := httptest.NewRequest(http.MethodPost, "/api/answer", nil)
		req.RemoteAddr = "10.0.0.2:1234"
		last = httptest.NewRecorder()
		h.ServeHTTP(last, req)
	}

	if last.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429 past burst, got %d", last.Code)
	}
	if last.Header().Get("Retry-After") == "" {
		t.Error("expected Retry-After header on 429")
	}
}

// TestRateLimiter_PerIPIsolation verifies that one IP exhausting its budget
// does not affect another.
func TestRateLimiter_PerIPIsolation(t *testing.T) {
	t.Parallel()

	rl, stop := newRateLimiter(0.001, 1, slog.Default())
	defer stop()

	h := rl.middleware(okHandler)

	// Exhaust the first IP.
	for i := 0; i < 2; i++ {
		req := httptest.NewRequest(http.MethodPost, "/api/answer", nil)
		req.RemoteAddr = "10.0.0.3:1234"
		h.ServeHTTP(httptest.NewRecorder(), req)
	}

	req := httptest.NewRequest(http.MethodPost, "/api/answer", nil)
	req.RemoteAddr = "10.0.0.4:1234"
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("fresh IP must not be limited, got %d", w.Code)
	}
}

// TestRateLimiter_DefaultsApplied verifies zero config falls back to the
// package defaults instead of blocking everything.
func TestRateLimiter_DefaultsApplied(t *testing.T) {
	t.Parallel()

	rl, stop := newRateLimiter(0, 0, slog.Default())
	defer stop()

	h := rl.middleware(okHandler)
	req := httptest.NewRequest(http.MethodPost, "/api/answer", nil)
	req.RemoteAddr = "10.0.0.5:1234"
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200 with default limits, got %d", w.Code)
	}
}

func TestClientIP(t *testing.T) {
	t.Parallel()

	cases := []struct {
		addr string
		want string
	}{
		{"10.0.0.1:8080", "10.0.0.1"},
		{"[::1]:8080", "[::1]"},
		{"10.0.0.1", "10.0.0.1"},
	}
	for _, tc := range cases {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.RemoteAddr = tc.addr
		if got := clientIP(req); got != tc.want {
			t.Errorf("clientIP(%q) = %q, want %q", tc.addr, got, tc.want)
		}
	}
}
