// Command replyrag is the entry point for the comment reply assistant.
// It provides a CLI interface (via Cobra) and an optional HTTP server
// exposing the answer, ingest, and pool endpoints.
package main

import (
	"fmt"
	"os"

	"github.com/chaiyo-labs/replyrag-go/cmd/replyrag/commands"
)

func main() {
	if err := commands.NewRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
