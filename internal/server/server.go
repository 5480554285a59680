// Package server implements the HTTP server that exposes the reply pipeline
// via a REST API: comment answering, document ingestion, and relevance pool
// recomputation. The server is started by the `replyrag serve` CLI command.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/chaiyo-labs/replyrag-go/internal/answer"
	"github.com/chaiyo-labs/replyrag-go/internal/ingestion"
	"github.com/chaiyo-labs/replyrag-go/internal/logging"
	"github.com/chaiyo-labs/replyrag-go/internal/pool"
	"github.com/chaiyo-labs/replyrag-go/internal/rag"
)

// New constructs a Server from the wired pipeline stages and config.
func New(svc *answer.Service, pipeline *ingestion.Pipeline, pools *pool.Builder, idx rag.ChunkIndex, cfg *Config) (*Server, error) {
	if svc == nil {
		return nil, fmt.Errorf("server: answer service must not be nil")
	}
	if cfg == nil {
		cfg = &Config{}
	}
	if cfg.Host == "" {
		cfg.Host = "127.0.0.1"
	}
	if cfg.Port == 0 {
		cfg.Port = 8080
	}
	if cfg.ReadTimeout == 0 {
		cfg.ReadTimeout = 30 * time.Second
	}
	if cfg.WriteTimeout == 0 {
		// WriteTimeout must cover a full answer pipeline run plus ingest batches.
		cfg.WriteTimeout = 5 * time.Minute
	}
	if cfg.ShutdownTimeout == 0 {
		cfg.ShutdownTimeout = 10 * time.Second
	}
	if cfg.AnswerTimeout == 0 {
		cfg.AnswerTimeout = 2 * time.Minute
	}
	if cfg.Logger == nil {
		cfg.Logger = logging.New()
	}
	if cfg.MetricsRegistry == nil {
		cfg.MetricsRegistry = prometheus.DefaultRegisterer
	}
	if cfg.MetricsGatherer == nil {
		cfg.MetricsGatherer = prometheus.DefaultGatherer
	}

	s := &Server{
		svc:      svc,
		pipeline: pipeline,
		pools:    pools,
		contexts: idx,
		cfg:      cfg,
		log:      cfg.Logger,
		pingers:  cfg.Pingers,
		metrics:  newServerMetrics(cfg.MetricsRegistry),
	}

	if cfg.APIKey == "" {
		s.log.Warn("server: REPLYRAG_API_KEY not set — API authentication disabled")
	}

	rl, stopRL := newRateLimiter(cfg.RateLimit, cfg.RateBurst, s.log)
	s.stopRL = stopRL

	protect := func(name string, h http.HandlerFunc) http.Handler {
		return s.instrument(name, authMiddleware(cfg.APIKey, rl.middleware(h)))
	}

	mux := http.NewServeMux()
	mux.Handle("POST /api/answer", protect("answer", s.handleAnswer))
	mux.Handle("POST /api/ingest", protect("ingest", s.handleIngest))
	mux.Handle("POST /api/pools/recompute", protect("pools_recompute", s.handleRecompute))
	mux.Handle("GET /api/health", s.instrument("health", http.HandlerFunc(s.handleHealth)))
	mux.Handle("GET /api/ready", s.instrument("ready", http.HandlerFunc(s.handleReady)))
	mux.Handle("GET /metrics", promhttp.HandlerFor(cfg.MetricsGatherer, promhttp.HandlerOpts{}))

	s.httpServer = &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Handler:      requestLogger(s.log, mux),
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	}

	return s, nil
}

// Start begins listening and serving HTTP requests. It blocks until the
// context is cancelled, then performs a graceful shutdown.
func (s *Server) Start(ctx context.Context) error {
	defer s.stopRL()

	errCh := make(chan error, 1)

	go func() {
		s.log.Info("server listening", "addr", s.httpServer.Addr)
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("server: listen error: %w", err)
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout)
		defer cancel()
		if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server: graceful shutdown failed: %w", err)
		}
		return nil
	}
}

// handleAnswer handles POST /api/answer: one comment in, one validated reply
// out.
func (s *Server) handleAnswer(w http.ResponseWriter, r *http.Request) {
	var req answerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if req.Comment == "" {
		http.Error(w, "comment is required", http.StatusBadRequest)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), s.cfg.AnswerTimeout)
	defer cancel()

	start := time.Now()
	resp, err := s.svc.Answer(ctx, answer.Request{
		Comment: req.Comment,
		VideoID: req.VideoID,
	})
	elapsed := time.Since(start)

	if err != nil {
		outcome := "error"
		status := http.StatusInternalServerError
		msg := "answer failed"

		var verr *rag.ValidationError
		var uerr *rag.UpstreamServiceError
		switch {
		case errors.As(err, &verr):
			status = http.StatusBadRequest
			msg = verr.Error()
		case errors.As(err, &uerr):
			status = http.StatusBadGateway
			msg = fmt.Sprintf("upstream service %s unavailable", uerr.Service)
		case errors.Is(err, context.DeadlineExceeded):
			outcome = "timeout"
			status = http.StatusGatewayTimeout
			msg = "answer timed out"
		}

		s.metrics.answerRequestsTotal.WithLabelValues(outcome).Inc()
		s.metrics.answerDurationSeconds.WithLabelValues(outcome).Observe(elapsed.Seconds())
		logging.FromContext(r.Context()).Error("answer failed", "error", err)
		http.Error(w, msg, status)
		return
	}

	s.metrics.answerRequestsTotal.WithLabelValues("ok").Inc()
	s.metrics.answerDurationSeconds.WithLabelValues("ok").Observe(elapsed.Seconds())

	products := resp.Reply.Products
	if products == nil {
		products = []answer.Product{}
	}
	writeJSON(w, http.StatusOK, answerResponse{
		ReplyText:  resp.Reply.ReplyText,
		Products:   products,
		Candidates: resp.Candidates,
		Sections:   resp.Sections,
	})
}

// handleHealth handles GET /api/health for liveness checks.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// writeJSON encodes v as the response body with the given status.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
