package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/beamline-tools/beamsync/api"
	"github.com/beamline-tools/beamsync/internal/store"
	"github.com/spf13/cobra"
)

func init() {
	runsCmd.AddCommand(runsLoadCmd)
	rootCmd.AddCommand(runsCmd)
}

var runsCmd = &cobra.Command{
	Use:   "runs",
	Short: "Manage the synchrotron runs reference table",
}

var runsLoadCmd = &cobra.Command{
	Use:   "load [runs.json]",
	Short: "Load synchrotron run periods from a JSON document into the database",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}

		content, err := os.ReadFile(args[0])
		if err != nil {
			return fmt.Errorf("read runs file: %w", err)
		}
		var runs []api.SyncRun
		if err := json.Unmarshal(content, &runs); err != nil {
			return fmt.Errorf("decode runs file %s: %w", args[0], err)
		}

		st, err := openStore(cmd.Context(), cfg)
		if err != nil {
			return err
		}
		defer func() { _ = st.Close() }()

		inserted := loadRuns(cmd.Context(), st, runs)
		fmt.Printf("Loaded %d of %d runs.\n", inserted, len(runs))
		return nil
	},
}

// loadRuns inserts each run, logging and continuing on per-row failures so
// one malformed period does not stop the load.
func loadRuns(ctx context.Context, st store.Store, runs []api.SyncRun) int {
	inserted := 0
	for _, r := range runs {
		start, err := time.Parse(time.RFC3339, r.StartTime)
		if err != nil {
			log.Printf("runs: bad start time for %s: %v", r.RunName, err)
			continue
		}
		end, err := time.Parse(time.RFC3339, r.EndTime)
		if err != nil {
			log.Printf("runs: bad end time for %s: %v", r.RunName, err)
			continue
		}
		row := store.Run{ID: r.RunID, Name: r.RunName, Start: start, End: end}
		if err := st.InsertRun(ctx, row); err != nil {
			log.Printf("runs: insert %s: %v", r.RunName, err)
			continue
		}
		inserted++
	}
	return inserted
}
