package commands

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/chaiyo-labs/replyrag-go/internal/answer"
	"github.com/chaiyo-labs/replyrag-go/internal/logging"
	"github.com/chaiyo-labs/replyrag-go/internal/registry"
)

// NewAnswerCmd constructs the `replyrag answer` command, which runs the full
// query pipeline for a single comment and prints the suggested reply.
func NewAnswerCmd() *cobra.Command {
	var videoID string
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "answer [comment]",
		Short: "Suggest a reply for one viewer comment",
		Long: `Run the full reply pipeline for one comment: intent extraction, hybrid
retrieval over the video's indexed material, price re-ranking, and grounded
generation constrained to the video's verified candidate pool.

Examples:
  replyrag answer --video dQw4w9WgXcQ "อยากได้ notebook งบ 15000 ครับ"
  replyrag answer --video dQw4w9WgXcQ --json "รุ่นไหนเล่นเกมดีสุด"`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			log := logging.New()
			ctx := logging.WithLogger(cmd.Context(), log)

			reg := registry.New()
			defer reg.Free() //nolint:errcheck // close errors on exit are not actionable

			svc, err := reg.Service(ctx)
			if err != nil {
				return fmt.Errorf("answer: %w", err)
			}

			resp, err := svc.Answer(ctx, answer.Request{
				Comment: args[0],
				VideoID: videoID,
			})
			if err != nil {
				return fmt.Errorf("answer: %w", err)
			}

			if asJSON {
				enc := json.NewEncoder(os.Stdout)
				enc.SetIndent("", "  ")
				return enc.Encode(resp.Reply) //nolint:wrapcheck // CLI output path
			}

			fmt.Println(resp.Reply.ReplyText)
			for _, p := range resp.Reply.Products {
				fmt.Printf("  - %s: %s\n", p.Name, p.URL)
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&videoID, "video", "v", "", "Video ID scoping retrieval and the candidate pool")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print the reply as JSON")

	return cmd
}
