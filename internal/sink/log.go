package sink

import (
	"context"
	"log/slog"

	"github.com/alanyoungcy/tradesim/internal/domain"
)

// LogSink writes one structured line per estimate.
type LogSink struct {
	logger *slog.Logger
}

// NewLogSink creates a LogSink.
func NewLogSink(logger *slog.Logger) *LogSink {
	return &LogSink{logger: logger.With(slog.String("component", "estimate"))}
}

// Name implements Sink.
func (s *LogSink) Name() string { return "log" }

// Emit implements Sink.
func (s *LogSink) Emit(ctx context.Context, ev domain.EstimateEvent) error {
	est := ev.Estimate
	s.logger.InfoContext(ctx, "estimate",
		slog.String("session_id", ev.SessionID),
		slog.Uint64("sequence", ev.Sequence),
		slog.String("instrument", ev.Instrument),
		slog.String("model", ev.Model),
		slog.Float64("slippage", est.Slippage),
		slog.Float64("fees", est.Fees),
		slog.Float64("market_impact", est.MarketImpact),
		slog.Float64("net_cost", est.NetCost),
		slog.Float64("maker_probability", est.MakerProbability),
		slog.Float64("latency_ms", est.LatencyMs),
	)
	return nil
}
