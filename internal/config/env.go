package config

import (
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Environment variable names for execution-level controls.
const (
	EnvCacheEnabled = "SCENARIOLAB_CACHE"
	EnvCacheDir     = "SCENARIOLAB_CACHE_DIR"
	EnvCacheTTL     = "SCENARIOLAB_CACHE_TTL"
	EnvRedisAddr    = "SCENARIOLAB_REDIS_ADDR"
	EnvAnthropicKey = "ANTHROPIC_API_KEY"
)

// Env holds process-level controls read from the environment.
type Env struct {
	CacheEnabled    bool
	CacheDir        string
	CacheTTL        time.Duration
	RedisAddr       string
	AnthropicAPIKey string
}

// LoadEnv reads a .env file if present, then the process environment.
// The .env file never overrides variables already set.
func LoadEnv() Env {
	_ = godotenv.Load()

	return Env{
		CacheEnabled:    parseBool(os.Getenv(EnvCacheEnabled), true),
		CacheDir:        os.Getenv(EnvCacheDir),
		CacheTTL:        parseDuration(os.Getenv(EnvCacheTTL)),
		RedisAddr:       os.Getenv(EnvRedisAddr),
		AnthropicAPIKey: os.Getenv(EnvAnthropicKey),
	}
}

// parseBool reads environment booleans leniently: "1", "true", "yes", "on"
// all enable.
func parseBool(s string, fallback bool) bool {
	if s == "" {
		return fallback
	}
	if b, err := strconv.ParseBool(s); err == nil {
		return b
	}
	return s == "yes" || s == "on"
}

// parseDuration accepts Go duration strings ("24h") or plain seconds ("3600").
// Zero means no expiry.
func parseDuration(s string) time.Duration {
	if s == "" {
		return 0
	}
	if d, err := time.ParseDuration(s); err == nil {
		return d
	}
	if secs, err := strconv.Atoi(s); err == nil {
		return time.Duration(secs) * time.Second
	}
	return 0
}
