// Package config defines the tradesim configuration and its validation.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/alanyoungcy/tradesim/internal/domain"
)

// Config is the root configuration. Fields come from a TOML file and are
// then overridden by TRADESIM_* environment variables.
type Config struct {
	Feed         FeedConfig         `toml:"feed"`
	Simulation   SimulationConfig   `toml:"simulation"`
	Coefficients CoefficientsConfig `toml:"coefficients"`
	Session      SessionConfig      `toml:"session"`
	Redis        RedisConfig        `toml:"redis"`
	Server       ServerConfig       `toml:"server"`
	Output       OutputConfig       `toml:"output"`
	LogLevel     string             `toml:"log_level"`
}

// FeedConfig describes the venue stream.
type FeedConfig struct {
	// URLTemplate contains {exchange} and {instrument} placeholders.
	URLTemplate      string   `toml:"url_template"`
	HandshakeTimeout duration `toml:"handshake_timeout"`
	ReadTimeout      duration `toml:"read_timeout"`
	PingPeriod       duration `toml:"ping_period"`
}

// SimulationConfig holds the initial order parameters and model choice.
type SimulationConfig struct {
	Exchange   string  `toml:"exchange"`
	Instrument string  `toml:"instrument"`
	OrderType  string  `toml:"order_type"`
	Quantity   float64 `toml:"quantity"`
	Volatility float64 `toml:"volatility"`
	FeeTier    int     `toml:"fee_tier"`
	Model      string  `toml:"model"`
}

// CoefficientsConfig tunes the built-in pricing models.
type CoefficientsConfig struct {
	SlippageRate   float64 `toml:"slippage_rate"`
	BaseFeeRate    float64 `toml:"base_fee_rate"`
	TierDiscount   float64 `toml:"tier_discount"`
	FloorFeeRate   float64 `toml:"floor_fee_rate"`
	ImpactRate     float64 `toml:"impact_rate"`
	MakerSlope     float64 `toml:"maker_slope"`
	MakerIntercept float64 `toml:"maker_intercept"`
}

// SessionConfig tunes the session controller.
type SessionConfig struct {
	StopTimeout duration `toml:"stop_timeout"`
	EventBuffer int      `toml:"event_buffer"`
}

// RedisConfig holds the optional Redis result bus.
type RedisConfig struct {
	Enabled    bool     `toml:"enabled"`
	Addr       string   `toml:"addr"`
	Password   string   `toml:"password"`
	DB         int      `toml:"db"`
	PoolSize   int      `toml:"pool_size"`
	MaxRetries int      `toml:"max_retries"`
	TLSEnabled bool     `toml:"tls_enabled"`
	Channel    string   `toml:"channel"`
	LatestKey  string   `toml:"latest_key"`
	LatestTTL  duration `toml:"latest_ttl"`
}

// ServerConfig holds the optional HTTP control surface.
type ServerConfig struct {
	Enabled        bool     `toml:"enabled"`
	Port           int      `toml:"port"`
	CORSOrigins    []string `toml:"cors_origins"`
	APIKey         string   `toml:"api_key"`
	RateLimitRPS   float64  `toml:"rate_limit_rps"`
	RateLimitBurst int      `toml:"rate_limit_burst"`
}

// OutputConfig controls local rendering.
type OutputConfig struct {
	// Text prints a labelled block to stdout for every estimate.
	Text bool `toml:"text"`
}

// duration lets TOML carry durations as strings such as "5s".
type duration struct {
	time.Duration
}

func (d *duration) UnmarshalText(text []byte) error {
	var err error
	d.Duration, err = time.ParseDuration(string(text))
	return err
}

func (d duration) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

// Defaults returns a Config that runs against the public OKX BTC-USDT-SWAP
// stream with the reference model.
func Defaults() Config {
	return Config{
		Feed: FeedConfig{
			URLTemplate:      "wss://ws.gomarket-cpp.goquant.io/ws/l2-orderbook/{exchange}/{instrument}",
			HandshakeTimeout: duration{10 * time.Second},
			ReadTimeout:      duration{60 * time.Second},
			PingPeriod:       duration{30 * time.Second},
		},
		Simulation: SimulationConfig{
			Exchange:   "OKX",
			Instrument: "BTC-USDT-SWAP",
			OrderType:  "market",
			Quantity:   100,
			Volatility: 0.02,
			FeeTier:    1,
			Model:      "reference",
		},
		Coefficients: CoefficientsConfig{
			SlippageRate:   0.0005,
			BaseFeeRate:    0.001,
			TierDiscount:   0.0001,
			FloorFeeRate:   0.0002,
			ImpactRate:     0.0003,
			MakerSlope:     -0.01,
			MakerIntercept: 1,
		},
		Session: SessionConfig{
			StopTimeout: duration{5 * time.Second},
			EventBuffer: 256,
		},
		Redis: RedisConfig{
			Addr:       "localhost:6379",
			PoolSize:   10,
			MaxRetries: 3,
			Channel:    "tradesim:estimates",
			LatestKey:  "tradesim:estimate:latest",
			LatestTTL:  duration{5 * time.Minute},
		},
		Server: ServerConfig{
			Port:           8080,
			RateLimitRPS:   20,
			RateLimitBurst: 40,
		},
		Output:   OutputConfig{Text: true},
		LogLevel: "info",
	}
}

var validLogLevels = map[string]bool{
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
}

// Parameters converts the simulation section into domain parameters. The
// result is not validated.
func (c *Config) Parameters() domain.SimulationParameters {
	return domain.SimulationParameters{
		Exchange:   c.Simulation.Exchange,
		Instrument: c.Simulation.Instrument,
		OrderType:  domain.OrderType(strings.ToLower(strings.TrimSpace(c.Simulation.OrderType))),
		Quantity:   c.Simulation.Quantity,
		Volatility: c.Simulation.Volatility,
		FeeTier:    c.Simulation.FeeTier,
	}
}

// Validate returns one error describing every problem found.
func (c *Config) Validate() error {
	var errs []string

	if !validLogLevels[strings.ToLower(c.LogLevel)] {
		errs = append(errs, fmt.Sprintf("unknown log_level %q (valid: debug, info, warn, error)", c.LogLevel))
	}

	// Feed
	if !strings.Contains(c.Feed.URLTemplate, "{exchange}") || !strings.Contains(c.Feed.URLTemplate, "{instrument}") {
		errs = append(errs, "feed: url_template must contain {exchange} and {instrument}")
	}
	if !strings.HasPrefix(c.Feed.URLTemplate, "ws://") && !strings.HasPrefix(c.Feed.URLTemplate, "wss://") {
		errs = append(errs, "feed: url_template must be a ws:// or wss:// URL")
	}
	if c.Feed.HandshakeTimeout.Duration <= 0 {
		errs = append(errs, "feed: handshake_timeout must be > 0")
	}
	if c.Feed.ReadTimeout.Duration < 0 || c.Feed.PingPeriod.Duration < 0 {
		errs = append(errs, "feed: read_timeout and ping_period must not be negative")
	}
	if c.Feed.ReadTimeout.Duration > 0 && c.Feed.PingPeriod.Duration >= c.Feed.ReadTimeout.Duration {
		errs = append(errs, "feed: ping_period must be shorter than read_timeout")
	}

	// Simulation
	if err := c.Parameters().Validate(); err != nil {
		errs = append(errs, "simulation: "+err.Error())
	}
	if strings.TrimSpace(c.Simulation.Model) == "" {
		errs = append(errs, "simulation: model must not be empty")
	}

	// Coefficients
	k := c.Coefficients
	if k.SlippageRate < 0 || k.BaseFeeRate < 0 || k.TierDiscount < 0 || k.FloorFeeRate < 0 || k.ImpactRate < 0 {
		errs = append(errs, "coefficients: rates must not be negative")
	}
	if k.FloorFeeRate > k.BaseFeeRate {
		errs = append(errs, "coefficients: floor_fee_rate must not exceed base_fee_rate")
	}

	// Session
	if c.Session.StopTimeout.Duration <= 0 {
		errs = append(errs, "session: stop_timeout must be > 0")
	}
	if c.Session.EventBuffer < 1 {
		errs = append(errs, "session: event_buffer must be >= 1")
	}

	// Redis
	if c.Redis.Enabled {
		if c.Redis.Addr == "" {
			errs = append(errs, "redis: addr must not be empty")
		}
		if c.Redis.PoolSize < 1 {
			errs = append(errs, "redis: pool_size must be >= 1")
		}
		if c.Redis.Channel == "" || c.Redis.LatestKey == "" {
			errs = append(errs, "redis: channel and latest_key must not be empty")
		}
	}

	// Server
	if c.Server.Enabled {
		if c.Server.Port <= 0 || c.Server.Port > 65535 {
			errs = append(errs, fmt.Sprintf("server: port must be 1-65535, got %d", c.Server.Port))
		}
		if c.Server.RateLimitRPS < 0 {
			errs = append(errs, "server: rate_limit_rps must not be negative")
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}
