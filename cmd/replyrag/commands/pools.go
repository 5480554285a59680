package commands

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/chaiyo-labs/replyrag-go/internal/logging"
	"github.com/chaiyo-labs/replyrag-go/internal/registry"
)

// NewPoolsCmd constructs the `replyrag pools` command group.
func NewPoolsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "pools",
		Short: "Manage per-video relevance pools",
	}
	cmd.AddCommand(newPoolsRecomputeCmd())
	return cmd
}

// newPoolsRecomputeCmd constructs `replyrag pools recompute`, which rebuilds
// the verified candidate pool for one video or for every indexed transcript.
func newPoolsRecomputeCmd() *cobra.Command {
	var videoID string

	cmd := &cobra.Command{
		Use:   "recompute",
		Short: "Rebuild relevance pools from the current catalog",
		Long: `Rebuild the verified candidate pool for one video (--video) or for every
indexed transcript. Pools are never recomputed implicitly: run this after
ingesting new products or transcripts to pick up catalog changes.

Per-video failures do not abort a full recompute; each pool commits on its
own, so a rerun only redoes the contexts that failed.

Examples:
  replyrag pools recompute --video dQw4w9WgXcQ
  replyrag pools recompute`,
		RunE: func(cmd *cobra.Command, args []string) error {
			log := logging.New()
			ctx := logging.WithLogger(cmd.Context(), log)

			reg := registry.New()
			defer reg.Free() //nolint:errcheck // close errors on exit are not actionable

			pools, err := reg.Pools(ctx)
			if err != nil {
				return fmt.Errorf("pools: %w", err)
			}

			if videoID != "" {
				entries, err := pools.Build(ctx, videoID, true)
				if err != nil {
					return fmt.Errorf("pools: rebuild %s: %w", videoID, err)
				}
				fmt.Printf("pool for %s: %d candidates\n", videoID, entries)
				return nil
			}

			idx, err := reg.Index(ctx)
			if err != nil {
				return fmt.Errorf("pools: %w", err)
			}
			contextIDs, err := idx.ListContextIDs(ctx)
			if err != nil {
				return fmt.Errorf("pools: %w", err)
			}

			res, err := pools.RecomputeAll(ctx, contextIDs)
			if err != nil {
				return fmt.Errorf("pools: %w", err)
			}

			fmt.Printf("recomputed %d pools, %d failed\n", res.Succeeded, res.Failed)
			for _, e := range res.Errors {
				fmt.Fprintf(os.Stderr, "  %v\n", e)
			}
			if !res.OK() {
				return fmt.Errorf("pools: %d contexts failed", res.Failed)
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&videoID, "video", "v", "", "Rebuild only this video's pool")

	return cmd
}
