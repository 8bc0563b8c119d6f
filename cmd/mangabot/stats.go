package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"mangabot/internal/history"

	"github.com/spf13/cobra"
)

func statsCmd() *cobra.Command {
	var since time.Duration
	var top int

	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Show search and delivery totals from the history log",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if !cfg.History.Enabled {
				return fmt.Errorf("history is disabled (set history.enabled to true)")
			}
			if _, err := os.Stat(cfg.History.DBPath); err != nil {
				return fmt.Errorf("no history yet at %s: %w", cfg.History.DBPath, err)
			}

			store, err := history.NewStore(cfg.History.DBPath, logger)
			if err != nil {
				return err
			}
			defer store.Close()

			var from time.Time
			if since > 0 {
				from = time.Now().Add(-since)
			}
			return printStats(cmd.Context(), os.Stdout, store, from, top)
		},
	}

	cmd.Flags().DurationVar(&since, "since", 0, "only count activity in this window (e.g. 24h); 0 counts everything")
	cmd.Flags().IntVar(&top, "top", 10, "number of top queries to list")
	return cmd
}

func printStats(ctx context.Context, w io.Writer, store *history.Store, since time.Time, top int) error {
	totals, err := store.Totals(ctx, since)
	if err != nil {
		return err
	}

	window := "all time"
	if !since.IsZero() {
		window = "since " + since.Format(time.RFC3339)
	}
	fmt.Fprintf(w, "MangaBot stats (%s)\n", window)
	fmt.Fprintf(w, "  Users:       %d\n", totals.Users)
	fmt.Fprintf(w, "  Searches:    %d (%d found)\n", totals.Searches, totals.Found)
	fmt.Fprintf(w, "  Deliveries:  %d\n", totals.Deliveries)
	fmt.Fprintf(w, "  Messages:    %d sent, %d failed\n", totals.Sent, totals.Failed)

	if top <= 0 {
		return nil
	}
	queries, err := store.TopQueries(ctx, since, top)
	if err != nil {
		return err
	}
	if len(queries) == 0 {
		return nil
	}
	fmt.Fprintf(w, "\nTop queries:\n")
	for i, q := range queries {
		fmt.Fprintf(w, "  %2d. %-30s %d\n", i+1, q.Query, q.Count)
	}
	return nil
}
