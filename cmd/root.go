package cmd

import (
	"context"
	"fmt"
	"os"

	"github.com/beamline-tools/beamsync/internal/config"
	"github.com/beamline-tools/beamsync/internal/store"
	"github.com/spf13/cobra"
)

var (
	configPath string
	verbose    bool
	flagDSN    string
	flagSQLite string
)

var rootCmd = &cobra.Command{
	Use:   "beamsync",
	Short: "Reconcile beamline scheduling records with datasets on disk",
	Long: `beamsync matches experiment output directories against the facility
schedule and records who produced which dataset in the experiment database.`,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Path to HCL config file")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Log per-record detail")
	rootCmd.PersistentFlags().StringVar(&flagDSN, "dsn", "", "Postgres DSN (overrides config and "+config.EnvDSN+")")
	rootCmd.PersistentFlags().StringVar(&flagSQLite, "sqlite", "", "Local SQLite database file instead of Postgres")
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

// loadConfig resolves file/env config and applies flag overrides.
func loadConfig() (config.Config, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return cfg, err
	}
	if flagDSN != "" {
		cfg.DBDSN = flagDSN
	}
	if flagSQLite != "" {
		cfg.SQLitePath = flagSQLite
	}
	return cfg, nil
}

// openStore picks the backend: SQLite when a file is configured, otherwise
// Postgres. No reconciliation can run without one of the two.
func openStore(ctx context.Context, cfg config.Config) (store.Store, error) {
	if cfg.SQLitePath != "" {
		return store.OpenSQLite(ctx, cfg.SQLitePath)
	}
	if cfg.DBDSN != "" {
		return store.OpenPostgres(ctx, cfg.DBDSN)
	}
	return nil, fmt.Errorf("no database configured: set --dsn, --sqlite, %s, or db_dsn in the config file", config.EnvDSN)
}
