package cmd

import (
	"fmt"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/beamline-tools/beamsync/internal/discover"
	"github.com/beamline-tools/beamsync/internal/reconcile"
	"github.com/beamline-tools/beamsync/internal/refdata"
	"github.com/beamline-tools/beamsync/internal/schedule"
	"github.com/go-git/go-billy/v5/osfs"
	"github.com/spf13/cobra"
)

var (
	scheduleFile string
	flagRun      string
	flagBeamline string
	flagSuffix   string
	flagExts     []string
	flagDepth    int
)

func init() {
	reconcileCmd.Flags().StringVar(&scheduleFile, "schedule-file", "", "Read the schedule document from a cached file instead of the service")
	reconcileCmd.Flags().StringVar(&flagRun, "run", "", "Synchrotron run name, e.g. 2024-1")
	reconcileCmd.Flags().StringVar(&flagBeamline, "beamline", "", "Beamline id, e.g. 2-ID-E")
	reconcileCmd.Flags().StringVar(&flagSuffix, "suffix", "", "Terminal dataset directory suffix (default from config, .mda)")
	reconcileCmd.Flags().StringSliceVar(&flagExts, "ext", nil, "Raw file extensions to collect (default from config)")
	reconcileCmd.Flags().IntVar(&flagDepth, "depth", -1, "Max directories to descend below the search root")
	rootCmd.AddCommand(reconcileCmd)
}

var reconcileCmd = &cobra.Command{
	Use:   "reconcile [search-dir]",
	Short: "Match dataset directories under search-dir to the schedule and persist the links",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		if flagRun != "" {
			cfg.Run = flagRun
		}
		if flagBeamline != "" {
			cfg.Beamline = flagBeamline
		}
		if flagSuffix != "" {
			cfg.TerminalSuffix = flagSuffix
		}
		if len(flagExts) > 0 {
			cfg.Extensions = flagExts
		}
		if flagDepth >= 0 {
			cfg.MaxDepth = flagDepth
		}

		root, err := filepath.Abs(args[0])
		if err != nil {
			return fmt.Errorf("resolve search dir: %w", err)
		}

		// Schedule first: without it there is nothing to reconcile against.
		activities, err := fetchActivities(ctx, cfg, scheduleFile)
		if err != nil {
			return err
		}
		idx := schedule.NewIndex(activities)
		fmt.Printf("Schedule loaded: %d activities.\n", idx.Len())

		st, err := openStore(ctx, cfg)
		if err != nil {
			return err
		}
		defer func() { _ = st.Close() }()

		refs, err := refdata.Load(ctx, st)
		if err != nil {
			return err
		}

		w := &discover.Walker{
			FS:             osfs.New("/"),
			TerminalSuffix: cfg.TerminalSuffix,
			Extensions:     cfg.Extensions,
			MaxDepth:       cfg.MaxDepth,
			Verbose:        verbose,
		}
		r := &reconcile.Reconciler{
			Store:    st,
			Refs:     refs,
			Index:    idx,
			Beamline: cfg.Beamline,
			RunName:  cfg.Run,
			Verbose:  verbose,
		}

		start := time.Now()
		fmt.Printf("Reconciling %s...\n", root)
		res, err := r.Run(ctx, w, root)
		fmt.Printf("Done in %v: %s.\n", time.Since(start).Round(time.Millisecond), res)
		return err
	},
}
