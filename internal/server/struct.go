package server

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/chaiyo-labs/replyrag-go/internal/answer"
	"github.com/chaiyo-labs/replyrag-go/internal/ingestion"
	"github.com/chaiyo-labs/replyrag-go/internal/pool"
)

// Config holds the HTTP server configuration.
type Config struct {
	// Host is the address to bind to (default: 127.0.0.1).
	Host string
	// Port is the TCP port to listen on (default: 8080).
	Port int
	// ReadTimeout is the maximum duration for reading the request.
	ReadTimeout time.Duration
	// WriteTimeout is the maximum duration for writing the response.
	WriteTimeout time.Duration
	// ShutdownTimeout is the maximum duration for a graceful shutdown.
	ShutdownTimeout time.Duration
	// AnswerTimeout caps a single answer pipeline run. Defaults to 2 minutes.
	AnswerTimeout time.Duration
	// Logger is the structured logger used by the server and its handlers.
	// If nil, [logging.New] is used.
	Logger *slog.Logger
	// Pingers is the ordered list of dependency probes run by GET /api/ready.
	// If empty, /api/ready returns 200 with no checks (liveness-only mode).
	Pingers []Pinger
	// RateLimit is the sustained request rate allowed per IP on rate-limited
	// endpoints (requests/second). Defaults to 10 if zero.
	RateLimit float64
	// RateBurst is the maximum instantaneous burst per IP. Defaults to 20 if zero.
	RateBurst int
	// APIKey is the Bearer token required on all protected /api/* routes.
	// If empty, authentication is disabled (development mode).
	APIKey string
	// MetricsRegistry receives the server's Prometheus metrics. Defaults to
	// prometheus.DefaultRegisterer. Tests inject a fresh registry.
	MetricsRegistry prometheus.Registerer
	// MetricsGatherer backs the GET /metrics endpoint. Defaults to
	// prometheus.DefaultGatherer.
	MetricsGatherer prometheus.Gatherer
}

// answerer is the interface handleAnswer calls. *answer.Service satisfies it;
// tests inject a fake.
type answerer interface {
	Answer(ctx context.Context, req answer.Request) (answer.Response, error)
}

// ingester is the interface handleIngest calls. *ingestion.Pipeline satisfies
// it; tests inject a fake.
type ingester interface {
	IngestAll(ctx context.Context, items []ingestion.Item) (ingestion.Result, error)
}

// recomputer is the interface handleRecompute calls. *pool.Builder satisfies
// it; tests inject a fake.
type recomputer interface {
	Build(ctx context.Context, contextID string, overwrite bool) (int, error)
	RecomputeAll(ctx context.Context, contextIDs []string) (pool.RecomputeResult, error)
}

// contextLister enumerates the indexed transcript contexts for a full pool
// recompute.
type contextLister interface {
	ListContextIDs(ctx context.Context) ([]string, error)
}

// Server is the HTTP server exposing the answer, ingest, and pool endpoints.
type Server struct {
	// svc runs the comment-to-reply pipeline behind POST /api/answer.
	svc answerer
	// pipeline ingests documents behind POST /api/ingest.
	pipeline ingester
	// pools recomputes relevance pools behind POST /api/pools/recompute.
	pools recomputer
	// contexts lists transcript IDs for recompute-all requests.
	contexts contextLister
	// cfg holds the resolved server configuration.
	cfg *Config
	// httpServer is the underlying net/http server.
	httpServer *http.Server
	// log is the structured logger for this server instance.
	log *slog.Logger
	// pingers is the ordered list of dependency probes for GET /api/ready.
	pingers []Pinger
	// metrics holds the server's Prometheus instruments.
	metrics *serverMetrics
	// stopRL stops the rate limiter's background eviction goroutine on shutdown.
	stopRL func()
}

// answerRequest is the JSON body for POST /api/answer.
type answerRequest struct {
	// Comment is the viewer comment to answer.
	Comment string `json:"comment"`
	// VideoID scopes retrieval and the candidate pool to one video. Optional.
	VideoID string `json:"video_id,omitempty"`
}

// answerResponse is the JSON response for POST /api/answer.
type answerResponse struct {
	// ReplyText is the validated reply text.
	ReplyText string `json:"reply_text"`
	// Products are the verified product recommendations, at most two.
	Products []answer.Product `json:"products"`
	// Candidates is the size of the candidate pool the reply was constrained to.
	Candidates int `json:"candidates"`
	// Sections is the number of context excerpts assembled into the prompt.
	Sections int `json:"sections"`
}

// ingestResponse is the JSON response for POST /api/ingest.
type ingestResponse struct {
	// Succeeded is the number of items fully ingested.
	Succeeded int `json:"succeeded"`
	// Failed is the number of items that could not be ingested.
	Failed int `json:"failed"`
	// Chunks is the total number of chunks written.
	Chunks int `json:"chunks"`
	// Errors is a capped sample of per-item failure messages.
	Errors []string `json:"errors,omitempty"`
}

// recomputeRequest is the JSON body for POST /api/pools/recompute.
type recomputeRequest struct {
	// VideoID limits the recompute to one context. Empty recomputes every
	// indexed transcript. Existing pools are always rebuilt.
	VideoID string `json:"video_id,omitempty"`
}

// recomputeResponse is the JSON response for POST /api/pools/recompute.
type recomputeResponse struct {
	// Contexts is the number of contexts processed.
	Contexts int `json:"contexts"`
	// Failed is the number of contexts whose rebuild failed.
	Failed int `json:"failed"`
	// Entries is the number of pool entries persisted. Only set for
	// single-context requests.
	Entries int `json:"entries,omitempty"`
	// Errors is a capped sample of per-context failure messages.
	Errors []string `json:"errors,omitempty"`
}
