// Package config collects the run configuration from the environment.
// Command-line flags in cmd/mp-resolve override these values.
package config

import (
	"errors"
	"os"
	"strconv"
	"strings"
	"time"
)

// DefaultAPIBase is the payments endpoint queried for each identifier.
const DefaultAPIBase = "https://api.mercadopago.com/v1/payments"

// ErrMissingToken is returned when no credential is available. It is
// the only per-run configuration error that aborts before any work
// starts.
var ErrMissingToken = errors.New("missing API token: pass --token or set MP_TOKEN")

// Config holds the full run configuration.
type Config struct {
	// Infile is the text file with one payment identifier per line.
	Infile string

	// Outfile is the CSV destination.
	Outfile string

	// Token is the bearer token for the payments API.
	Token string

	// APIBase is the payments endpoint without a trailing slash.
	APIBase string

	// Timeout bounds each HTTP request.
	Timeout time.Duration

	// MaxRetries is the per-identifier attempt budget.
	MaxRetries int

	// Backoff is the exponential backoff base in seconds.
	Backoff float64

	// Proxy is an optional proxy URL.
	Proxy string

	// Workers is the concurrent worker count.
	Workers int

	// PoolSize is the HTTP connection pool size per worker.
	PoolSize int

	// RedisURL enables the resume cache when non-empty.
	RedisURL string

	// LogLevel and LogPretty configure the logger.
	LogLevel  string
	LogPretty bool
}

// Load builds a Config from environment variables and defaults.
func Load() *Config {
	return &Config{
		Outfile:    "mp_orders.csv",
		Token:      strings.TrimSpace(os.Getenv("MP_TOKEN")),
		APIBase:    getEnv("MP_API_BASE", DefaultAPIBase),
		Timeout:    parseDuration(getEnv("MP_TIMEOUT", "15s")),
		MaxRetries: parseInt(getEnv("MP_RETRIES", "3"), 3),
		Backoff:    1.2,
		Proxy:      proxyFromEnv(),
		Workers:    parseInt(getEnv("MP_WORKERS", "5"), 5),
		PoolSize:   parseInt(getEnv("MP_POOL_SIZE", "20"), 20),
		RedisURL:   os.Getenv("REDIS_URL"),
		LogLevel:   getEnv("LOG_LEVEL", "info"),
		LogPretty:  getEnv("LOG_PRETTY", "") != "",
	}
}

// Validate checks that the configuration can start a run.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.Token) == "" {
		return ErrMissingToken
	}
	return nil
}

// proxyFromEnv mirrors the usual proxy variable precedence.
func proxyFromEnv() string {
	if p := os.Getenv("HTTPS_PROXY"); p != "" {
		return strings.TrimSpace(p)
	}
	return strings.TrimSpace(os.Getenv("HTTP_PROXY"))
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func parseDuration(s string) time.Duration {
	duration, err := time.ParseDuration(s)
	if err != nil {
		return 15 * time.Second
	}
	return duration
}

func parseInt(s string, fallback int) int {
	n, err := strconv.Atoi(s)
	if err != nil {
		return fallback
	}
	return n
}
