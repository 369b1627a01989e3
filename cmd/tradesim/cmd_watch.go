package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/alanyoungcy/tradesim/internal/app"
)

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Print estimates published to Redis by a running session",
	Long: `Follow the Redis channel a 'tradesim run' process publishes to and print
each estimate. Uses the [redis] section of the configuration.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(nil)
		if err != nil {
			return err
		}
		logger := newLogger(os.Stderr, cfg.LogLevel)

		ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		if err := app.Watch(ctx, cfg, logger, cmd.OutOrStdout()); err != nil {
			logger.Error("watch failed", slog.String("error", err.Error()))
			return err
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(watchCmd)
}
