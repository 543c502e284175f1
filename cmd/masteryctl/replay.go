package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/p-n-ai/pai-mastery/internal/attempt"
	"github.com/p-n-ai/pai-mastery/internal/catalog"
	"github.com/p-n-ai/pai-mastery/internal/platform/config"
	"github.com/p-n-ai/pai-mastery/internal/platform/database"
	"github.com/p-n-ai/pai-mastery/internal/recovery"
)

// learnerReport is the replayed state of one learner.
type learnerReport struct {
	recovery.Checkpoint
	Due int `json:"due"`
}

func newReplayCmd(cfg *config.Config) *cobra.Command {
	var (
		catalogPath string
		sqlitePath  string
		postgresURL string
		learnerID   string
		asJSON      bool
	)

	cmd := &cobra.Command{
		Use:   "replay",
		Short: "Rebuild mastery by replaying an attempt log",
		Long: `Replay folds every attempt of a SQLite or PostgreSQL attempt log into
fresh mastery and schedule stores and prints each learner's state.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if (sqlitePath == "") == (postgresURL == "") {
				return errors.New("exactly one of --sqlite or --postgres is required")
			}

			c := catalog.New()
			if _, err := ingestPath(c, catalogPath, ""); err != nil {
				return fmt.Errorf("loading catalog: %w", err)
			}

			log, items, closeLog, err := openLog(cmd.Context(), sqlitePath, postgresURL)
			if err != nil {
				return err
			}
			defer closeLog()
			if items != nil {
				if _, err := c.Sync(cmd.Context(), items); err != nil {
					return fmt.Errorf("loading ingested items: %w", err)
				}
			}

			reports, err := replay(cmd.Context(), cfg, c, log, learnerID, time.Now().UTC())
			if err != nil {
				return err
			}
			if asJSON {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(reports)
			}
			printReports(cmd.OutOrStdout(), reports)
			return nil
		},
	}
	cmd.Flags().StringVar(&catalogPath, "catalog", cfg.CatalogPath, "catalog directory or file")
	cmd.Flags().StringVar(&sqlitePath, "sqlite", "", "SQLite attempt log path")
	cmd.Flags().StringVar(&postgresURL, "postgres", "", "PostgreSQL URL of the attempt log")
	cmd.Flags().StringVar(&learnerID, "learner", "", "only report this learner")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print JSON")
	return cmd
}

// openLog opens the attempt log. For PostgreSQL it also returns the store
// of items ingested at runtime, which the log may reference.
func openLog(ctx context.Context, sqlitePath, postgresURL string) (attempt.Log, catalog.Source, func(), error) {
	if sqlitePath != "" {
		l, err := attempt.OpenSQLiteLog(sqlitePath)
		if err != nil {
			return nil, nil, nil, err
		}
		return l, nil, func() { _ = l.Close() }, nil
	}

	db, err := database.New(ctx, database.Options{URL: postgresURL, MaxConns: 2})
	if err != nil {
		return nil, nil, nil, err
	}
	l, err := attempt.NewPostgresLog(ctx, db.Pool)
	if err != nil {
		db.Close()
		return nil, nil, nil, err
	}
	items, err := catalog.NewPostgresStore(ctx, db.Pool)
	if err != nil {
		db.Close()
		return nil, nil, nil, err
	}
	return l, items, db.Close, nil
}

// replay folds log into a fresh projection and reports the requested learners.
func replay(ctx context.Context, cfg *config.Config, c *catalog.Catalog, log attempt.Log, learnerID string, now time.Time) ([]learnerReport, error) {
	p, err := recovery.NewProjection(c, cfg.Mastery, cfg.Spacing)
	if err != nil {
		return nil, err
	}
	if err := recovery.Replay(ctx, log, p); err != nil {
		return nil, fmt.Errorf("replaying log: %w", err)
	}

	ids := p.Learners()
	if learnerID != "" {
		ids = []string{learnerID}
	}

	reports := make([]learnerReport, 0, len(ids))
	for _, id := range ids {
		r := learnerReport{Checkpoint: p.Checkpoint(id, now)}
		for _, sc := range r.Schedules {
			if sc.Due(now) {
				r.Due++
			}
		}
		reports = append(reports, r)
	}
	return reports, nil
}

func printReports(w io.Writer, reports []learnerReport) {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	defer tw.Flush()

	for _, r := range reports {
		fmt.Fprintf(tw, "learner %s\tattempts %d\tdue %d\tdigest %s\n", r.LearnerID, r.Folded, r.Due, r.Digest)
		for _, st := range r.Mastery {
			fmt.Fprintf(tw, "  %s\tp=%.3f\tuncertainty=%.3f\tattempts=%d\n", st.ConceptID, st.P, st.Uncertainty, st.Attempts)
		}
	}
}
