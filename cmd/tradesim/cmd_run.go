package main

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/alanyoungcy/tradesim/internal/app"
	"github.com/alanyoungcy/tradesim/internal/config"
	"github.com/alanyoungcy/tradesim/internal/domain"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Start a session and print estimates until interrupted",
	Long: `Start a session against the configured venue stream. Flags override the
[simulation] section of the configuration file.

Examples:
  tradesim run
  tradesim run --instrument ETH-USDT-SWAP --quantity 250 --fee-tier 3
  tradesim run --config tradesim.toml --model book_walk`,
	RunE: runRun,
}

var runFlags struct {
	exchange   string
	instrument string
	orderType  string
	quantity   float64
	volatility float64
	feeTier    int
	model      string
}

func init() {
	rootCmd.AddCommand(runCmd)

	f := runCmd.Flags()
	f.StringVar(&runFlags.exchange, "exchange", "", "venue name, e.g. OKX")
	f.StringVar(&runFlags.instrument, "instrument", "", "instrument symbol, e.g. BTC-USDT-SWAP")
	f.StringVar(&runFlags.orderType, "order-type", "", "market or limit")
	f.Float64Var(&runFlags.quantity, "quantity", 0, "order size in quote currency")
	f.Float64Var(&runFlags.volatility, "volatility", 0, "volatility estimate, e.g. 0.02")
	f.IntVar(&runFlags.feeTier, "fee-tier", 0, "exchange fee tier")
	f.StringVar(&runFlags.model, "model", "", "pricing model name (see 'tradesim models')")
}

// applyRunFlags copies only the flags the operator actually set.
func applyRunFlags(flags *pflag.FlagSet) func(*config.Config) error {
	return func(cfg *config.Config) error {
		if flags.Changed("exchange") {
			cfg.Simulation.Exchange = runFlags.exchange
		}
		if flags.Changed("instrument") {
			cfg.Simulation.Instrument = runFlags.instrument
		}
		if flags.Changed("order-type") {
			ot, err := domain.ParseOrderType(runFlags.orderType)
			if err != nil {
				return err
			}
			cfg.Simulation.OrderType = string(ot)
		}
		if flags.Changed("quantity") {
			cfg.Simulation.Quantity = runFlags.quantity
		}
		if flags.Changed("volatility") {
			cfg.Simulation.Volatility = runFlags.volatility
		}
		if flags.Changed("fee-tier") {
			cfg.Simulation.FeeTier = runFlags.feeTier
		}
		if flags.Changed("model") {
			cfg.Simulation.Model = runFlags.model
		}
		return nil
	}
}

func runRun(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(applyRunFlags(cmd.Flags()))
	if err != nil {
		return err
	}

	// Keep stdout for the estimate blocks when they are enabled.
	logOut := os.Stdout
	if cfg.Output.Text {
		logOut = os.Stderr
	}
	logger := newLogger(logOut, cfg.LogLevel)
	slog.SetDefault(logger)
	logger.Info("configuration loaded", slog.Any("config", config.RedactedConfig(cfg)))

	application := app.New(cfg, logger)
	defer application.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := application.Run(ctx); err != nil {
		if errors.Is(err, domain.ErrTransport) {
			logger.Error("session ended by venue", slog.String("error", err.Error()))
		}
		return err
	}
	logger.Info("tradesim stopped")
	return nil
}
