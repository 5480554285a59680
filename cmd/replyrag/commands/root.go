// Package commands defines all Cobra CLI commands for the replyrag binary.
package commands

import (
	"github.com/spf13/cobra"

	"github.com/chaiyo-labs/replyrag-go/internal/audit"
	"github.com/chaiyo-labs/replyrag-go/internal/config"
	"github.com/chaiyo-labs/replyrag-go/internal/logging"
)

// configPath holds the --config flag value for YAML config file override.
var configPath string

// loadedConfigPath stores the resolved config file path for audit logging.
var loadedConfigPath string

// NewRootCmd constructs the root Cobra command that all subcommands attach to.
func NewRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "replyrag",
		Short: "replyrag — grounded reply suggestions for YouTube comments",
		Long: `replyrag answers viewer comments on Thai tech-review videos with replies
grounded in the channel's own material: the video transcript, the verified
product catalog, and the creator's past replies.

Product recommendations are constrained to a per-video pool of verified
candidates, so a suggested reply never links a product the creator has not
vetted.

Model provider is selected via the MODEL_PROVIDER environment variable
or a YAML config file (~/.replyrag/config.yaml).
See 'replyrag --help' for available commands.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			log := logging.New()

			// Load YAML config (env vars always override YAML values).
			path, err := config.Load(configPath, log)
			if err != nil {
				return err
			}
			loadedConfigPath = path

			// Emit structured audit log for every command invocation.
			audit.LogCommandStart(log, cmd.Name(), loadedConfigPath)

			return nil
		},
	}

	root.PersistentFlags().StringVar(&configPath, "config", "", "Path to YAML config file (default: ~/.replyrag/config.yaml)")

	root.AddCommand(
		NewAnswerCmd(),
		NewHistoryCmd(),
		NewIngestCmd(),
		NewPoolsCmd(),
		NewReembedCmd(),
		NewServeCmd(),
		NewVersionCmd(),
	)

	return root
}
