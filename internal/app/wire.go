package app

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/alanyoungcy/tradesim/internal/cache/redis"
	"github.com/alanyoungcy/tradesim/internal/config"
	"github.com/alanyoungcy/tradesim/internal/metrics"
	"github.com/alanyoungcy/tradesim/internal/model"
	"github.com/alanyoungcy/tradesim/internal/platform/goquant"
	"github.com/alanyoungcy/tradesim/internal/server"
	"github.com/alanyoungcy/tradesim/internal/server/handler"
	"github.com/alanyoungcy/tradesim/internal/server/ws"
	"github.com/alanyoungcy/tradesim/internal/session"
	"github.com/alanyoungcy/tradesim/internal/sink"
)

// Dependencies bundles everything Run needs. Optional parts are nil when
// disabled in the configuration.
type Dependencies struct {
	Recorder   *metrics.Recorder
	Models     *model.Registry
	Model      model.Model
	Controller *session.Controller
	Dispatcher *sink.Dispatcher

	Bus    *redis.EstimateBus // nil unless [redis] enabled
	Hub    *ws.Hub            // nil unless [server] enabled
	Server *server.Server     // nil unless [server] enabled
}

// Coefficients maps the config section onto model coefficients.
func Coefficients(c config.CoefficientsConfig) model.Coefficients {
	return model.Coefficients{
		SlippageRate:   c.SlippageRate,
		BaseFeeRate:    c.BaseFeeRate,
		TierDiscount:   c.TierDiscount,
		FloorFeeRate:   c.FloorFeeRate,
		ImpactRate:     c.ImpactRate,
		MakerSlope:     c.MakerSlope,
		MakerIntercept: c.MakerIntercept,
	}
}

// Wire builds the dependency graph from cfg. Text output goes to stdout.
// The returned cleanup releases external connections.
func Wire(ctx context.Context, cfg *config.Config, logger *slog.Logger, stdout io.Writer) (*Dependencies, func(), error) {
	return wire(ctx, cfg, logger, stdout, nil)
}

// wire accepts a dialer override for tests.
func wire(ctx context.Context, cfg *config.Config, logger *slog.Logger, stdout io.Writer, dialer goquant.Dialer) (*Dependencies, func(), error) {
	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	deps := &Dependencies{
		Recorder: metrics.New(),
		Models:   model.NewDefaultRegistry(Coefficients(cfg.Coefficients)),
	}

	m, err := deps.Models.Get(cfg.Simulation.Model)
	if err != nil {
		return nil, nil, fmt.Errorf("wire: %w", err)
	}
	deps.Model = m

	if dialer == nil {
		dialer = goquant.NewWSDialer(goquant.DialerConfig{
			HandshakeTimeout: cfg.Feed.HandshakeTimeout.Duration,
			ReadTimeout:      cfg.Feed.ReadTimeout.Duration,
			PingPeriod:       cfg.Feed.PingPeriod.Duration,
		})
	}
	deps.Controller = session.NewController(session.Config{
		URLTemplate: cfg.Feed.URLTemplate,
		StopTimeout: cfg.Session.StopTimeout.Duration,
		EventBuffer: cfg.Session.EventBuffer,
	}, dialer, m, deps.Recorder, logger)

	sinks := []sink.Sink{sink.NewLogSink(logger)}
	if cfg.Output.Text {
		sinks = append(sinks, sink.NewTextSink(stdout))
	}

	if cfg.Redis.Enabled {
		client, err := redis.New(ctx, redisClientConfig(cfg))
		if err != nil {
			return nil, nil, fmt.Errorf("wire: redis: %w", err)
		}
		closers = append(closers, func() { _ = client.Close() })

		deps.Bus = redis.NewEstimateBus(client, redisBusConfig(cfg))
		sinks = append(sinks, sink.NewPublisherSink("redis", deps.Bus))
	}

	if cfg.Server.Enabled {
		ctrl := deps.Controller
		deps.Hub = ws.NewHub(func() any { return ctrl.Status() }, logger)
		sinks = append(sinks, deps.Hub)

		deps.Server = server.NewServer(server.Config{
			Port:           cfg.Server.Port,
			CORSOrigins:    cfg.Server.CORSOrigins,
			APIKey:         cfg.Server.APIKey,
			RateLimitRPS:   cfg.Server.RateLimitRPS,
			RateLimitBurst: cfg.Server.RateLimitBurst,
		}, server.Handlers{
			Health:  handler.NewHealthHandler(),
			Session: handler.NewSessionHandler(ctrl, deps.Hub, logger),
			Models:  handler.NewModelHandler(deps.Models, m.Name()),
			Metrics: deps.Recorder.Handler(),
		}, deps.Hub, logger)
	}

	deps.Dispatcher = sink.NewDispatcher(sinks, deps.Recorder, logger)
	return deps, cleanup, nil
}

// redisClientConfig translates the [redis] section into connection options.
func redisClientConfig(cfg *config.Config) redis.ClientConfig {
	return redis.ClientConfig{
		Addr:       cfg.Redis.Addr,
		Password:   cfg.Redis.Password,
		DB:         cfg.Redis.DB,
		PoolSize:   cfg.Redis.PoolSize,
		MaxRetries: cfg.Redis.MaxRetries,
		TLSEnabled: cfg.Redis.TLSEnabled,
	}
}

// redisBusConfig translates the [redis] section into channel and key names
// for the estimate bus.
func redisBusConfig(cfg *config.Config) redis.BusConfig {
	return redis.BusConfig{
		Channel:   cfg.Redis.Channel,
		LatestKey: cfg.Redis.LatestKey,
		LatestTTL: cfg.Redis.LatestTTL.Duration,
	}
}
