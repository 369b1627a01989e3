package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

// Load merges the TOML file at path over Defaults, then a .env file if one
// exists, then TRADESIM_* environment variables. An empty path skips the
// file. The result is not validated.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	if path != "" {
		md, err := toml.DecodeFile(path, &cfg)
		if err != nil {
			return nil, fmt.Errorf("config: decode %s: %w", path, err)
		}
		if undecoded := md.Undecoded(); len(undecoded) > 0 {
			keys := make([]string, len(undecoded))
			for i, k := range undecoded {
				keys[i] = k.String()
			}
			return nil, fmt.Errorf("config: unknown keys in %s: %s", path, strings.Join(keys, ", "))
		}
	}

	_ = godotenv.Load()

	applyEnvOverrides(&cfg)
	return &cfg, nil
}

// applyEnvOverrides reads TRADESIM_* variables into cfg. Variables that are
// unset, empty or fail to parse leave the existing value untouched.
func applyEnvOverrides(cfg *Config) {
	// ── Feed ──
	setStr(&cfg.Feed.URLTemplate, "TRADESIM_FEED_URL_TEMPLATE")
	setDuration(&cfg.Feed.HandshakeTimeout, "TRADESIM_FEED_HANDSHAKE_TIMEOUT")
	setDuration(&cfg.Feed.ReadTimeout, "TRADESIM_FEED_READ_TIMEOUT")
	setDuration(&cfg.Feed.PingPeriod, "TRADESIM_FEED_PING_PERIOD")

	// ── Simulation ──
	setStr(&cfg.Simulation.Exchange, "TRADESIM_SIMULATION_EXCHANGE")
	setStr(&cfg.Simulation.Instrument, "TRADESIM_SIMULATION_INSTRUMENT")
	setStr(&cfg.Simulation.OrderType, "TRADESIM_SIMULATION_ORDER_TYPE")
	setFloat64(&cfg.Simulation.Quantity, "TRADESIM_SIMULATION_QUANTITY")
	setFloat64(&cfg.Simulation.Volatility, "TRADESIM_SIMULATION_VOLATILITY")
	setInt(&cfg.Simulation.FeeTier, "TRADESIM_SIMULATION_FEE_TIER")
	setStr(&cfg.Simulation.Model, "TRADESIM_SIMULATION_MODEL")

	// ── Session ──
	setDuration(&cfg.Session.StopTimeout, "TRADESIM_SESSION_STOP_TIMEOUT")
	setInt(&cfg.Session.EventBuffer, "TRADESIM_SESSION_EVENT_BUFFER")

	// ── Redis ──
	setBool(&cfg.Redis.Enabled, "TRADESIM_REDIS_ENABLED")
	setStr(&cfg.Redis.Addr, "TRADESIM_REDIS_ADDR")
	setStr(&cfg.Redis.Password, "TRADESIM_REDIS_PASSWORD")
	setInt(&cfg.Redis.DB, "TRADESIM_REDIS_DB")
	setInt(&cfg.Redis.PoolSize, "TRADESIM_REDIS_POOL_SIZE")
	setInt(&cfg.Redis.MaxRetries, "TRADESIM_REDIS_MAX_RETRIES")
	setBool(&cfg.Redis.TLSEnabled, "TRADESIM_REDIS_TLS_ENABLED")
	setStr(&cfg.Redis.Channel, "TRADESIM_REDIS_CHANNEL")
	setStr(&cfg.Redis.LatestKey, "TRADESIM_REDIS_LATEST_KEY")
	setDuration(&cfg.Redis.LatestTTL, "TRADESIM_REDIS_LATEST_TTL")

	// ── Server ──
	setBool(&cfg.Server.Enabled, "TRADESIM_SERVER_ENABLED")
	setInt(&cfg.Server.Port, "TRADESIM_SERVER_PORT")
	setStringSlice(&cfg.Server.CORSOrigins, "TRADESIM_SERVER_CORS_ORIGINS")
	setStr(&cfg.Server.APIKey, "TRADESIM_SERVER_API_KEY")
	setFloat64(&cfg.Server.RateLimitRPS, "TRADESIM_SERVER_RATE_LIMIT_RPS")
	setInt(&cfg.Server.RateLimitBurst, "TRADESIM_SERVER_RATE_LIMIT_BURST")

	// ── Output / top-level ──
	setBool(&cfg.Output.Text, "TRADESIM_OUTPUT_TEXT")
	setStr(&cfg.LogLevel, "TRADESIM_LOG_LEVEL")
}

// Typed env helpers. Each only touches dst when the variable is set,
// non-empty and parses.

func setStr(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setFloat64(dst *float64, key string) {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			*dst = f
		}
	}
}

func setBool(dst *bool, key string) {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}

func setDuration(dst *duration, key string) {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			dst.Duration = d
		}
	}
}

func setStringSlice(dst *[]string, key string) {
	if v := os.Getenv(key); v != "" {
		parts := strings.Split(v, ",")
		cleaned := make([]string, 0, len(parts))
		for _, p := range parts {
			if p = strings.TrimSpace(p); p != "" {
				cleaned = append(cleaned, p)
			}
		}
		if len(cleaned) > 0 {
			*dst = cleaned
		}
	}
}
