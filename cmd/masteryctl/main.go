// Command masteryctl validates catalogs, records attempts and rebuilds
// learner mastery from an attempt log.
package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/p-n-ai/pai-mastery/internal/platform/config"
)

func main() {
	if err := config.LoadDotEnv(".env"); err != nil {
		fmt.Fprintln(os.Stderr, "ignoring .env:", err)
	}
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	slog.SetDefault(slog.New(config.LogConfig{Level: "warn", Format: "text"}.Handler(os.Stderr)))

	if err := newRootCmd(cfg).Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd(cfg *config.Config) *cobra.Command {
	root := &cobra.Command{
		Use:   "masteryctl",
		Short: "Operate the adaptive scheduling and mastery engine",
		Long: `masteryctl validates content catalogs, appends attempts to a local
SQLite log and rebuilds learner mastery by replaying an attempt log.`,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}
	root.AddCommand(
		newIngestCmd(),
		newRecordCmd(),
		newReplayCmd(cfg),
	)
	return root
}
