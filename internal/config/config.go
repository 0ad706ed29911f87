// Package config implements the framework's configuration surface, per
// spec.md §6: a config file at the process cwd, overlaid by the process
// environment, overlaid by explicit constructor options — in that
// precedence order, low to high. Environment keys are flat
// UPPER_SNAKE_CASE names with nested sections joined by "_" (the env
// struct tags, e.g. RATE_LIMIT_MAX_REQUESTS). The config file is decoded
// against the json tags instead: nested objects with snake_case keys
// (e.g. "rate_limit": {"max_requests": 120}). File keys are not
// normalized or flattened, so a flat key such as RATE_LIMIT_MAX_REQUESTS
// or a camelCase key such as rateLimit is not recognized in the file.
package config

import "time"

// DefaultConfigFileName is the file spec.md names explicitly:
// "tejas.config.json" at the process working directory.
const DefaultConfigFileName = "tejas.config.json"

// Config is the complete, resolved configuration for a runway server.
type Config struct {
	Port            int    `json:"port" env:"PORT"`
	BodyMaxSize     int64  `json:"body_max_size" env:"BODY_MAX_SIZE"`
	BodyTimeoutMs   int    `json:"body_timeout" env:"BODY_TIMEOUT"`
	DirTargets      string `json:"dir_targets" env:"DIR_TARGETS"`
	LogHTTPRequests bool   `json:"log_http_requests" env:"LOG_HTTP_REQUESTS"`
	LogExceptions   bool   `json:"log_exceptions" env:"LOG_EXCEPTIONS"`
	LogLevel        string `json:"log_level" env:"LOG_LEVEL"`

	RateLimit RateLimitConfig `json:"rate_limit"`
	Cache     CacheConfig     `json:"cache"`

	RedisURL string `json:"redis_url" env:"REDIS_URL"`
	MongoURL string `json:"mongo_url" env:"MONGO_URL"`
}

// RateLimitConfig holds the defaults new rate limiters are constructed
// with when a caller doesn't supply explicit Options (internal/ratelimit).
type RateLimitConfig struct {
	MaxRequests   int    `json:"max_requests" env:"RATE_LIMIT_MAX_REQUESTS"`
	WindowSeconds int    `json:"window_seconds" env:"RATE_LIMIT_WINDOW_SECONDS"`
	Algorithm     string `json:"algorithm" env:"RATE_LIMIT_ALGORITHM"`
	Store         string `json:"store" env:"RATE_LIMIT_STORE"`
}

// CacheConfig configures the process-wide cache.Store.
type CacheConfig struct {
	MaxBytes string `json:"max_bytes" env:"CACHE_MAX_BYTES"`
	Encrypt  bool   `json:"encrypt" env:"CACHE_ENCRYPT"`
}

// BodyTimeout returns BodyTimeoutMs as a time.Duration.
func (c Config) BodyTimeout() time.Duration {
	return time.Duration(c.BodyTimeoutMs) * time.Millisecond
}

// Default returns spec.md §6's documented defaults.
func Default() *Config {
	return &Config{
		Port:            1403,
		BodyMaxSize:     10 * 1024 * 1024,
		BodyTimeoutMs:   30000,
		LogHTTPRequests: false,
		LogExceptions:   false,
		LogLevel:        "info",
		RateLimit: RateLimitConfig{
			MaxRequests:   60,
			WindowSeconds: 60,
			Algorithm:     "token_bucket",
			Store:         "memory",
		},
		Cache: CacheConfig{
			MaxBytes: "64MB",
			Encrypt:  true,
		},
	}
}
