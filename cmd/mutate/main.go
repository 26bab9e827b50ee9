// Command mutate applies mutation batches to documents, diffs document
// snapshots, debugs path expressions, and serves a document store over
// websockets.
package main

import (
	"log/slog"
	"os"

	"github.com/spf13/cobra"
)

var verbose bool

func main() {
	root := &cobra.Command{
		Use:          "mutate",
		Short:        "structured document mutation tool",
		SilenceUsage: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			level := slog.LevelWarn
			if verbose {
				level = slog.LevelDebug
			}
			slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
				Level: level,
			})))
		},
	}
	root.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "debug logging")
	root.AddCommand(applyCmd(), diffCmd(), pathCmd(), serveCmd())
	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}
