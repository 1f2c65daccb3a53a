// Package cli implements redemptionctl, the operator command line.
package cli

import (
	"context"
	"log/slog"
	"os"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/spf13/cobra"

	"github.com/redemption/backend/internal/app"
	"github.com/redemption/backend/internal/config"
)

var rootCmd = &cobra.Command{
	Use:           "redemptionctl",
	Short:         "Operate the Redemption commitment backend",
	SilenceUsage:  true,
	SilenceErrors: true,
}

var verbose bool

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Log at debug level")
}

// ExecuteContext runs the root command with ctx.
func ExecuteContext(ctx context.Context) error {
	return rootCmd.ExecuteContext(ctx)
}

func logger() *slog.Logger {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}

// withPool loads the configuration and hands fn an open pool.
func withPool(ctx context.Context, fn func(cfg config.Config, pool *pgxpool.Pool, log *slog.Logger) error) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	pool, err := app.Connect(ctx, cfg.DatabaseURL)
	if err != nil {
		return err
	}
	defer pool.Close()
	return fn(cfg, pool, logger())
}

// withApp wires an insert-only application for one-shot commands.
func withApp(ctx context.Context, fn func(a *app.App, log *slog.Logger) error) error {
	return withPool(ctx, func(cfg config.Config, pool *pgxpool.Pool, log *slog.Logger) error {
		a, err := app.New(cfg, pool, log, app.Options{})
		if err != nil {
			return err
		}
		return fn(a, log)
	})
}
