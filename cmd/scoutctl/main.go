// Command scoutctl keeps Typesense collections in sync with relational
// tables: schema migrations, imports, orphan cleanup and a long-running
// ops server.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/ympact/typesense-sync/internal/config"
	"github.com/ympact/typesense-sync/internal/factory"
	"github.com/ympact/typesense-sync/internal/logger"
)

var (
	modelFlags []string
	forceFlag  bool
	rootCmd    = &cobra.Command{
		Use:           "scoutctl",
		Short:         "Sync relational models into Typesense collections",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
)

// withApp loads config, wires the components and runs fn under a context
// cancelled on SIGINT/SIGTERM.
func withApp(fn func(ctx context.Context, cfg *config.Config, app *factory.App) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, _ []string) error {
		cfg, err := config.New()
		if err != nil {
			return err
		}
		log := logger.NewWithLevel("scoutctl", cfg.LogLevel)

		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		app, err := factory.Build(ctx, cfg, log)
		if err != nil {
			return err
		}
		defer func() {
			if err := app.Close(); err != nil {
				log.Warn().Err(err).Msg("close store")
			}
		}()
		return fn(ctx, cfg, app)
	}
}

func main() {
	rootCmd.PersistentFlags().StringSliceVarP(&modelFlags, "model", "m", nil, "Limit to these models (repeatable, default all)")

	updateCmd := &cobra.Command{
		Use:   "update-schemas",
		Short: "Bring every collection up to date with its model schema",
		RunE: withApp(func(ctx context.Context, _ *config.Config, app *factory.App) error {
			return runUpdateSchemas(ctx, app, modelFlags, forceFlag, os.Stdout)
		}),
	}
	updateCmd.Flags().BoolVarP(&forceFlag, "force", "f", false, "Rebuild collections whose version is current (dual-write mode)")
	rootCmd.AddCommand(updateCmd)

	rootCmd.AddCommand(&cobra.Command{
		Use:   "status",
		Short: "Show how each collection compares to its schema",
		RunE: withApp(func(ctx context.Context, _ *config.Config, app *factory.App) error {
			return runStatus(ctx, app, modelFlags, os.Stdout)
		}),
	})

	rootCmd.AddCommand(&cobra.Command{
		Use:   "import",
		Short: "Upsert every indexable row into the live collections",
		RunE: withApp(func(ctx context.Context, cfg *config.Config, app *factory.App) error {
			return runImport(ctx, app, modelFlags, cfg.ReindexBatchSize, os.Stdout)
		}),
	})

	rootCmd.AddCommand(&cobra.Command{
		Use:   "find-orphans",
		Short: "List indexed documents whose row no longer exists",
		RunE: withApp(func(ctx context.Context, _ *config.Config, app *factory.App) error {
			return runFindOrphans(ctx, app, modelFlags, os.Stdout)
		}),
	})

	rootCmd.AddCommand(&cobra.Command{
		Use:   "remove-orphans",
		Short: "Delete indexed documents whose row no longer exists",
		RunE: withApp(func(ctx context.Context, _ *config.Config, app *factory.App) error {
			return runRemoveOrphans(ctx, app, modelFlags, os.Stdout)
		}),
	})

	rootCmd.AddCommand(&cobra.Command{
		Use:   "cleanup-legacy",
		Short: "Delete raw collections shadowed by an alias of the same name",
		RunE: withApp(func(ctx context.Context, _ *config.Config, app *factory.App) error {
			return runCleanupLegacy(ctx, app, modelFlags, os.Stdout)
		}),
	})

	rootCmd.AddCommand(&cobra.Command{
		Use:   "serve",
		Short: "Serve health and metrics, running scheduled schema updates",
		RunE:  withApp(runServe),
	})

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
