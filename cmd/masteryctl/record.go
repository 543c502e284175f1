package main

import (
	"fmt"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/p-n-ai/pai-mastery/internal/attempt"
)

func newRecordCmd() *cobra.Command {
	var (
		dbPath    string
		sessionID string
		latency   time.Duration
		at        string
	)

	cmd := &cobra.Command{
		Use:   "record <learner> <item> <score>",
		Short: "Append an attempt to a SQLite attempt log",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			score, err := strconv.ParseFloat(args[2], 64)
			if err != nil {
				return fmt.Errorf("score %q: %w", args[2], err)
			}
			when := time.Now().UTC()
			if at != "" {
				if when, err = time.Parse(time.RFC3339, at); err != nil {
					return fmt.Errorf("--at: %w", err)
				}
			}

			log, err := attempt.OpenSQLiteLog(dbPath)
			if err != nil {
				return err
			}
			defer log.Close()

			a, err := log.Append(cmd.Context(), attempt.Attempt{
				LearnerID: args[0],
				ItemID:    args[1],
				SessionID: sessionID,
				Score:     score,
				Latency:   latency,
				At:        when,
			})
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "recorded attempt %d: %s %s %.2f\n", a.Seq, a.LearnerID, a.ItemID, a.Score)
			return nil
		},
	}
	cmd.Flags().StringVar(&dbPath, "db", "attempts.db", "SQLite attempt log path")
	cmd.Flags().StringVar(&sessionID, "session", "", "session ID the attempt belongs to")
	cmd.Flags().DurationVar(&latency, "latency", 0, "response latency")
	cmd.Flags().StringVar(&at, "at", "", "attempt time in RFC 3339 (default now)")
	return cmd
}
