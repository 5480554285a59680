package commands

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/chaiyo-labs/replyrag-go/internal/ingestion"
	"github.com/chaiyo-labs/replyrag-go/internal/logging"
	"github.com/chaiyo-labs/replyrag-go/internal/rag"
	"github.com/chaiyo-labs/replyrag-go/internal/registry"
)

// NewReembedCmd constructs the `replyrag reembed` command, which regenerates
// embeddings for already-indexed chunks. Run it after switching embedding
// models; the indexed text and metadata are left untouched.
func NewReembedCmd() *cobra.Command {
	var sourceType string
	var batchSize int

	cmd := &cobra.Command{
		Use:   "reembed",
		Short: "Regenerate embeddings for indexed chunks",
		Long: `Re-embed every indexed chunk with the currently configured embedding model
and upsert the refreshed vectors into Qdrant. Chunks are processed in bounded
sequential batches; a failed batch is recorded and skipped, so a rerun
converges without redoing completed work.

Examples:
  replyrag reembed
  replyrag reembed --type product --batch-size 200`,
		RunE: func(cmd *cobra.Command, args []string) error {
			log := logging.New()
			ctx := logging.WithLogger(cmd.Context(), log)

			var st rag.SourceType
			if sourceType != "" {
				st = rag.SourceType(sourceType)
				if !st.Valid() {
					return fmt.Errorf("reembed: unknown source type %q (comment, transcript, product)", sourceType)
				}
			}

			reg := registry.New()
			defer reg.Free() //nolint:errcheck // close errors on exit are not actionable

			pipeline, err := reg.Pipeline(ctx)
			if err != nil {
				return fmt.Errorf("reembed: %w", err)
			}

			res, err := pipeline.Reembed(ctx, st, batchSize)
			if err != nil {
				return fmt.Errorf("reembed: %w", err)
			}

			fmt.Printf("re-embedded %d chunks, %d batches failed\n", res.Chunks, res.Failed)
			for _, e := range res.Errors {
				fmt.Fprintf(os.Stderr, "  %v\n", e)
			}
			if !res.OK() {
				return fmt.Errorf("reembed: %d batches failed", res.Failed)
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&sourceType, "type", "t", "", "Limit to one source type (comment, transcript, product)")
	cmd.Flags().IntVarP(&batchSize, "batch-size", "b", ingestion.DefaultReembedBatchSize, "Chunks per embedding batch")

	return cmd
}
