package commands

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/stanchionhq/stanchion/pkg/stores"
	"github.com/stanchionhq/stanchion/pkg/telemetry"
)

var (
	// Global flags
	configPath string
	storePath  string
	verbose    bool
	jsonOutput bool

	// tel carries the observability collaborators for the running command.
	tel *telemetry.Telemetry
)

// Execute runs the root command
func Execute(ctx context.Context, version, commit, buildDate string) error {
	rootCmd := newRootCommand(version, commit, buildDate)
	return rootCmd.ExecuteContext(ctx)
}

func newRootCommand(version, commit, buildDate string) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "stanchion",
		Short: "Stanchion - Resilient session and identity management",
		Long: `Stanchion manages account sessions, machine identity, and usage counters
in a local SQLite store with transactional guarantees.

Features:
  - Typed error taxonomy driving recovery dispatch
  - Exponential-backoff retry for unreliable operations
  - Commit-or-rollback transaction scopes with guaranteed release
  - Aggregated configuration validation (report, don't fail fast)`,
		Version: fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, buildDate),
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return setupTelemetry(cmd)
		},
		PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
			if tel == nil {
				return nil
			}
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			return tel.Shutdown(ctx)
		},
	}

	// Persistent flags available to all commands
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "config.yaml", "config file path")
	rootCmd.PersistentFlags().StringVarP(&storePath, "store", "s", "stanchion.db", "state store path")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable verbose output")
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "output in JSON format")

	// Add subcommands
	rootCmd.AddCommand(newValidateCommand())
	rootCmd.AddCommand(newStatusCommand())
	rootCmd.AddCommand(newResetIdentityCommand())
	rootCmd.AddCommand(newImportSessionCommand())

	return rootCmd
}

// setupTelemetry builds the telemetry stack for this invocation and hangs
// it off the command context so subcommands and the core packages can
// reach it.
func setupTelemetry(cmd *cobra.Command) error {
	cfg := telemetry.DefaultConfig()
	if level := os.Getenv("LOG_LEVEL"); level != "" {
		cfg.Logging.Level = level
	}
	if verbose {
		cfg.Logging.Level = "debug"
	}
	cfg.Metrics.Enabled = true

	t, err := telemetry.NewTelemetry(cfg)
	if err != nil {
		return err
	}
	tel = t

	// Point the global logger at the telemetry logger so packages that log
	// through zerolog/log share output and level.
	log.Logger = t.Logger.Zerolog()
	cmd.SetContext(t.WithContext(cmd.Context()))
	return nil
}

// cmdLogger returns the component logger used by subcommands.
func cmdLogger(component string) zerolog.Logger {
	if tel != nil {
		return tel.Logger.NewComponentLogger(component).Zerolog()
	}
	return log.With().Str("component", component).Logger()
}

// openStore opens the store at path and brings its schema up to date.
// The caller owns the returned store and must close it.
func openStore(ctx context.Context, path string) (*stores.SQLiteStore, error) {
	store, err := stores.NewSQLiteStore(stores.Config{Path: path})
	if err != nil {
		return nil, err
	}
	if err := store.Init(ctx); err != nil {
		return nil, err
	}
	if err := store.Migrate(ctx); err != nil {
		_ = store.Close()
		return nil, err
	}
	return store, nil
}

// ensureStore migrates the store at path and closes it again. Transaction
// scopes opened afterwards see a fully migrated schema.
func ensureStore(ctx context.Context, path string) error {
	store, err := openStore(ctx, path)
	if err != nil {
		return err
	}
	return store.Close()
}
