package config

// redacted replaces every non-empty secret in logged configuration.
const redacted = "***"

// RedactedConfig returns a copy of cfg that is safe to log: the Redis
// password and the API key are masked. Empty secrets stay empty so the log
// still shows whether one was configured. Slices are copied, so the
// original config is never modified.
func RedactedConfig(cfg *Config) Config {
	out := *cfg
	redact(&out.Redis.Password)
	redact(&out.Server.APIKey)

	if cfg.Server.CORSOrigins != nil {
		out.Server.CORSOrigins = append([]string(nil), cfg.Server.CORSOrigins...)
	}
	return out
}

// redact masks *s in place when it is set.
func redact(s *string) {
	if *s != "" {
		*s = redacted
	}
}
