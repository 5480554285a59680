package commands

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/chaiyo-labs/replyrag-go/internal/embedder"
	"github.com/chaiyo-labs/replyrag-go/internal/ingestion"
	"github.com/chaiyo-labs/replyrag-go/internal/logging"
	"github.com/chaiyo-labs/replyrag-go/internal/registry"
)

// NewIngestCmd constructs the `replyrag ingest` command, which reads items
// from a JSONL file and runs the ingestion pipeline.
func NewIngestCmd() *cobra.Command {
	var file string

	cmd := &cobra.Command{
		Use:   "ingest",
		Short: "Ingest comments, transcripts, and products into the index",
		Long: `Read items from a JSONL file (one item per line) and run each through the
ingestion pipeline: normalize, chunk, embed, and index into SQLite and Qdrant.
Re-ingesting an item fully replaces its previous version.

Each line carries a source_type (comment, transcript, or product), a
source_id, the text, and type-specific metadata.

Required environment variables:
  QDRANT_HOST          Qdrant server hostname (default: localhost)
  QDRANT_PORT          Qdrant gRPC port (default: 6334)
  QDRANT_COLLECTION    Collection name (default: replyrag-chunks)
  MODEL_PROVIDER       Embedding backend: ollama, openai, azure (default: ollama)
  EMBEDDING_*          Provider-specific overrides (see README)

Examples:
  replyrag ingest --file catalog.jsonl
  replyrag ingest --file - < comments.jsonl`,
		RunE: func(cmd *cobra.Command, args []string) error {
			log := logging.New()
			ctx := logging.WithLogger(cmd.Context(), log)

			if file == "" {
				return fmt.Errorf("ingest: --file is required")
			}

			if err := embedder.ValidateForRAG(log); err != nil {
				return fmt.Errorf("ingest: %w", err)
			}

			var in io.Reader = os.Stdin
			if file != "-" {
				f, err := os.Open(file)
				if err != nil {
					return fmt.Errorf("ingest: open %s: %w", file, err)
				}
				defer f.Close()
				in = f
			}

			items, err := ingestion.ReadItems(in)
			if err != nil {
				return fmt.Errorf("ingest: %w", err)
			}
			if len(items) == 0 {
				return fmt.Errorf("ingest: no items in %s", file)
			}

			reg := registry.New()
			defer reg.Free() //nolint:errcheck // close errors on exit are not actionable

			pipeline, err := reg.Pipeline(ctx)
			if err != nil {
				return fmt.Errorf("ingest: %w", err)
			}

			res, err := pipeline.IngestAll(ctx, items)
			if err != nil {
				return fmt.Errorf("ingest: %w", err)
			}

			fmt.Printf("ingested %d items (%d chunks), %d failed\n", res.Succeeded, res.Chunks, res.Failed)
			for _, e := range res.Errors {
				fmt.Fprintf(os.Stderr, "  %v\n", e)
			}
			if !res.OK() {
				return fmt.Errorf("ingest: %d items failed", res.Failed)
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&file, "file", "f", "", "JSONL file of items to ingest, or - for stdin")

	return cmd
}
