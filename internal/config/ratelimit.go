package config

import "time"

type RateLimitConfig struct {
	Enabled bool
	MaxHits int
	Window  time.Duration
}

func GetRateLimitConfig(key string) RateLimitConfig {
	enabled := GetEnvOrDefault("RATELIMIT_ENABLED", "false") == "true"

	configs := map[string]RateLimitConfig{
		"global": {
			Enabled: enabled,
			MaxHits: parseEnvInt("RATELIMIT_GLOBAL", 1000), // 1000 requests per minute globally
			Window:  time.Minute,
		},
		"ask_stream": {
			Enabled: enabled,
			MaxHits: parseEnvInt("RATELIMIT_ASK_STREAM", 60), // 60 questions per minute
			Window:  time.Minute,
		},
		"ask_socket": {
			Enabled: enabled,
			MaxHits: parseEnvInt("RATELIMIT_ASK_SOCKET", 30), // 30 socket upgrades per minute
			Window:  time.Minute,
		},
		"turns": {
			Enabled: enabled,
			MaxHits: parseEnvInt("RATELIMIT_TURNS", 240), // 240 lookups per minute
			Window:  time.Minute,
		},
	}

	if config, exists := configs[key]; exists {
		return config
	}

	clog().Warn().Str("key", key).Msg("No rate limit config found")
	return RateLimitConfig{Enabled: false}
}
