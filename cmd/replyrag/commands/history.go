package commands

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/chaiyo-labs/replyrag-go/internal/logging"
	"github.com/chaiyo-labs/replyrag-go/internal/registry"
)

// NewHistoryCmd constructs the `replyrag history` command, which lists the
// most recent answered comments for a video.
func NewHistoryCmd() *cobra.Command {
	var videoID string
	var limit int

	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show recently answered comments for a video",
		Long: `List the reply history for a video: the comments that were answered, the
suggested replies, and the products that were recommended.

History is written on every successful answer unless REPLYRAG_HISTORY_DB=off.

Example:
  replyrag history --video dQw4w9WgXcQ --limit 20`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if videoID == "" {
				return fmt.Errorf("history: --video is required")
			}

			log := logging.New()
			ctx := logging.WithLogger(cmd.Context(), log)

			reg := registry.New()
			defer reg.Free() //nolint:errcheck // close errors on exit are not actionable

			hist, err := reg.History(ctx)
			if err != nil {
				return fmt.Errorf("history: %w", err)
			}
			if hist == nil {
				return fmt.Errorf("history: disabled (REPLYRAG_HISTORY_DB=off)")
			}

			entries, err := hist.Recent(ctx, videoID, limit)
			if err != nil {
				return fmt.Errorf("history: %w", err)
			}
			if len(entries) == 0 {
				fmt.Printf("no answered comments for %s\n", videoID)
				return nil
			}

			for _, e := range entries {
				fmt.Printf("[%s] %s\n", e.CreatedAt.Format("2006-01-02 15:04"), e.Comment)
				fmt.Printf("  reply: %s\n", e.ReplyText)
				if len(e.ProductIDs) > 0 {
					fmt.Printf("  products: %s\n", strings.Join(e.ProductIDs, ", "))
				}
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&videoID, "video", "v", "", "Video ID to list history for")
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "Maximum entries to show")

	return cmd
}
