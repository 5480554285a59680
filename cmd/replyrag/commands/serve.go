package commands

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/cloudwego/eino/callbacks"
	"github.com/spf13/cobra"

	"github.com/chaiyo-labs/replyrag-go/internal/logging"
	"github.com/chaiyo-labs/replyrag-go/internal/registry"
	"github.com/chaiyo-labs/replyrag-go/internal/server"
	"github.com/chaiyo-labs/replyrag-go/internal/tracing"
)

// NewServeCmd constructs the `replyrag serve` command, which starts the HTTP
// server exposing the answer, ingest, and pool endpoints.
func NewServeCmd() *cobra.Command {
	var host string
	var port int

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the replyrag HTTP server",
		Long: `Start the replyrag HTTP server on localhost.

The server exposes POST /api/answer for reply suggestions, POST /api/ingest
for document ingestion, POST /api/pools/recompute for pool rebuilds, plus
health, readiness, and Prometheus metrics endpoints.

Examples:
  replyrag serve
  replyrag serve --port 9090
  MODEL_PROVIDER=azure replyrag serve`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			log := logging.New()
			ctx = logging.WithLogger(ctx, log)

			log.Info("serve starting", "provider", os.Getenv("MODEL_PROVIDER"))

			// Setup Langfuse tracing — opt-in, no-op if keys are absent.
			handler, flush, ok := tracing.Setup()
			if ok {
				callbacks.AppendGlobalHandlers(handler)
				defer flush()
				log.Info("langfuse tracing enabled")
			} else {
				log.Info("langfuse tracing disabled", "reason", "LANGFUSE_PUBLIC_KEY not set")
			}

			reg := registry.New()
			defer reg.Free() //nolint:errcheck // close errors on exit are not actionable

			svc, err := reg.Service(ctx)
			if err != nil {
				return fmt.Errorf("serve: %w", err)
			}
			pipeline, err := reg.Pipeline(ctx)
			if err != nil {
				return fmt.Errorf("serve: %w", err)
			}
			pools, err := reg.Pools(ctx)
			if err != nil {
				return fmt.Errorf("serve: %w", err)
			}
			idx, err := reg.Index(ctx)
			if err != nil {
				return fmt.Errorf("serve: %w", err)
			}
			store, err := reg.Store(ctx)
			if err != nil {
				return fmt.Errorf("serve: %w", err)
			}

			srv, err := server.New(svc, pipeline, pools, idx, &server.Config{
				Host:   host,
				Port:   port,
				Logger: log,
				Pingers: []server.Pinger{
					server.NewPinger("index", idx.Ping),
					server.NewPinger("qdrant", store.Ping),
				},
				APIKey: os.Getenv("REPLYRAG_API_KEY"),
			})
			if err != nil {
				return fmt.Errorf("serve: failed to create server: %w", err)
			}

			return srv.Start(ctx)
		},
	}

	cmd.Flags().StringVar(&host, "host", "127.0.0.1", "Host address to bind to")
	cmd.Flags().IntVarP(&port, "port", "p", 8080, "TCP port to listen on")

	return cmd
}
