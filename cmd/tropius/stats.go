package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/CmdrKerfy/tropius-maximus/internal/logging"
	"github.com/CmdrKerfy/tropius-maximus/internal/store"
)

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show table row counts and recent ingest runs",
	RunE:  runStats,
}

func runStats(cmd *cobra.Command, args []string) error {
	cfg, log, err := loadConfig()
	if err != nil {
		return err
	}

	st, err := store.OpenReadOnly(cfg.Database.Path, logging.Component(log, "store"))
	if err != nil {
		return err
	}
	defer st.Close()

	w := cmd.OutOrStdout()
	for _, table := range []string{"cards", "sets", "pokemon_metadata"} {
		n, err := st.TableCount(table)
		if err != nil {
			return err
		}
		fmt.Fprintf(w, "%-18s %8d rows\n", table, n)
	}

	runs, err := st.RecentRuns(5)
	if err != nil {
		return err
	}
	if len(runs) == 0 {
		fmt.Fprintln(w, "\nNo ingest runs recorded")
		return nil
	}

	fmt.Fprintln(w, "\nRecent ingest runs:")
	for _, r := range runs {
		completed := "-"
		if r.CompletedAt.Valid {
			completed = r.CompletedAt.Time.UTC().Format(time.RFC3339)
		}
		fmt.Fprintf(w, "  %s  started=%s completed=%s status=%s cards=%d species=%d sets_skipped=%d\n",
			r.ID, r.StartedAt.UTC().Format(time.RFC3339), completed, r.Status,
			r.CardsIngested, r.SpeciesIngested, r.SetsSkipped)
		if r.Error != "" {
			fmt.Fprintf(w, "    error: %s\n", r.Error)
		}
	}
	return nil
}
