package main

import (
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/alanyoungcy/tradesim/internal/config"
)

var configPath string

var rootCmd = &cobra.Command{
	Use:   "tradesim",
	Short: "Pre-trade cost estimation over a live L2 order book",
	Long: `tradesim subscribes to a venue's level-2 order-book stream and, on every
update, estimates slippage, fees and market impact for a hypothetical order
together with the probability that it fills as a maker.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "path to a TOML configuration file")
}

// configError marks failures that have already been logged.
type configError struct{ err error }

func (e *configError) Error() string { return e.err.Error() }
func (e *configError) Unwrap() error { return e.err }

// loadConfig reads and validates the configuration, logging problems with a
// bootstrap logger.
func loadConfig(apply func(*config.Config) error) (*config.Config, error) {
	boot := newLogger(os.Stderr, "info")

	cfg, err := config.Load(configPath)
	if err != nil {
		boot.Error("failed to load config", slog.String("path", configPath), slog.String("error", err.Error()))
		return nil, &configError{err}
	}
	if apply != nil {
		if err := apply(cfg); err != nil {
			boot.Error("invalid flags", slog.String("error", err.Error()))
			return nil, &configError{err}
		}
	}
	if err := cfg.Validate(); err != nil {
		boot.Error("invalid configuration", slog.String("error", err.Error()))
		return nil, &configError{err}
	}
	return cfg, nil
}

func newLogger(w io.Writer, level string) *slog.Logger {
	var lvl slog.Level
	switch strings.ToLower(level) {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{Level: lvl}))
}
