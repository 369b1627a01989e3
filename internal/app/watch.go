package app

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/alanyoungcy/tradesim/internal/cache/redis"
	"github.com/alanyoungcy/tradesim/internal/config"
	"github.com/alanyoungcy/tradesim/internal/sink"
)

// Watch follows estimates another tradesim process publishes to Redis and
// renders each one to w until ctx is cancelled. It prints the latest stored
// estimate first, when there is one.
func Watch(ctx context.Context, cfg *config.Config, logger *slog.Logger, w io.Writer) error {
	client, err := redis.New(ctx, redisClientConfig(cfg))
	if err != nil {
		return fmt.Errorf("app: watch: %w", err)
	}
	defer client.Close()

	bus := redis.NewEstimateBus(client, redisBusConfig(cfg))
	text := sink.NewTextSink(w)
	logger = logger.With(slog.String("component", "watch"))

	if ev, err := bus.Latest(ctx); err == nil {
		_ = text.Emit(ctx, ev)
	} else {
		logger.DebugContext(ctx, "no stored estimate", slog.String("error", err.Error()))
	}

	events, err := bus.Subscribe(ctx)
	if err != nil {
		return fmt.Errorf("app: watch: %w", err)
	}
	logger.InfoContext(ctx, "watching estimates", slog.String("channel", cfg.Redis.Channel))

	for ev := range events {
		if err := text.Emit(ctx, ev); err != nil {
			return fmt.Errorf("app: watch: %w", err)
		}
	}
	return nil
}
