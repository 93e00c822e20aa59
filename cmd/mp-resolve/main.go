// Command mp-resolve fetches order references for a batch of payment
// identifiers from the payments API and writes them to a CSV file.
package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"net/url"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/ledgerline/mp-resolve/pkg/cache"
	"github.com/ledgerline/mp-resolve/pkg/config"
	"github.com/ledgerline/mp-resolve/pkg/dispatch"
	"github.com/ledgerline/mp-resolve/pkg/fetch"
	"github.com/ledgerline/mp-resolve/pkg/logging"
	"github.com/ledgerline/mp-resolve/pkg/retry"
	"github.com/ledgerline/mp-resolve/pkg/sink"
	"github.com/ledgerline/mp-resolve/pkg/transport"
)

func main() {
	cfg := config.Load()

	flag.StringVar(&cfg.Infile, "infile", cfg.Infile, "TXT file with one payment ID per line (required)")
	flag.StringVar(&cfg.Outfile, "outfile", cfg.Outfile, "Output CSV")
	flag.StringVar(&cfg.Token, "token", cfg.Token, "API token (default: env MP_TOKEN)")
	flag.DurationVar(&cfg.Timeout, "timeout", cfg.Timeout, "HTTP timeout per request")
	flag.IntVar(&cfg.MaxRetries, "retries", cfg.MaxRetries, "Max attempts for 429/5xx and transport failures")
	flag.StringVar(&cfg.Proxy, "proxy", cfg.Proxy, "Proxy URL (default: env HTTPS_PROXY / HTTP_PROXY)")
	flag.IntVar(&cfg.Workers, "workers", cfg.Workers, "Number of concurrent workers")
	flag.IntVar(&cfg.PoolSize, "pool-size", cfg.PoolSize, "HTTP connection pool size per worker")
	flag.StringVar(&cfg.RedisURL, "redis", cfg.RedisURL, "Redis address enabling the resume cache (default: env REDIS_URL)")
	flag.StringVar(&cfg.LogLevel, "log-level", cfg.LogLevel, "Log level (debug, info, warn, error)")
	flag.BoolVar(&cfg.LogPretty, "log-pretty", cfg.LogPretty, "Human-readable log output")
	flag.Parse()

	logger := logging.Setup(logging.Config{
		Level:  logging.LogLevel(cfg.LogLevel),
		Pretty: cfg.LogPretty,
		Output: os.Stderr,
	})

	if cfg.Infile == "" {
		logger.Fatal().Msg("--infile is required")
	}
	if err := cfg.Validate(); err != nil {
		logger.Fatal().Err(err).Msg("Invalid configuration")
	}

	var proxyURL *url.URL
	if cfg.Proxy != "" {
		var err error
		proxyURL, err = url.Parse(cfg.Proxy)
		if err != nil {
			logger.Fatal().Err(err).Str("proxy", cfg.Proxy).Msg("Invalid proxy URL")
		}
	}

	paymentIDs, err := parseIDs(cfg.Infile)
	if err != nil {
		logger.Fatal().Err(err).Str("infile", cfg.Infile).Msg("Failed to read payment IDs")
	}
	if len(paymentIDs) == 0 {
		logger.Info().Str("infile", cfg.Infile).Msg("No payment IDs found")
		return
	}

	var store *cache.Store
	if cfg.RedisURL != "" {
		redisClient := redis.NewClient(&redis.Options{Addr: cfg.RedisURL})
		pingCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := redisClient.Ping(pingCtx).Err(); err != nil {
			cancel()
			logger.Fatal().Err(err).Str("redis", cfg.RedisURL).Msg("Failed to connect to Redis")
		}
		cancel()
		store = cache.NewStore(redisClient, cache.DefaultTTL)
		logger.Info().Str("redis", cfg.RedisURL).Msg("Resume cache enabled")
	}

	out, err := sink.NewFile(cfg.Outfile, len(paymentIDs), logging.NewLogger("sink"))
	if err != nil {
		logger.Fatal().Err(err).Str("outfile", cfg.Outfile).Msg("Failed to open output")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	transportCfg := transport.Config{
		Token:     cfg.Token,
		Proxy:     proxyURL,
		Timeout:   cfg.Timeout,
		PoolSize:  cfg.PoolSize,
		UserAgent: "mp-resolve/1.0",
	}
	policy := retry.Policy{
		MaxAttempts: cfg.MaxRetries,
		Backoff:     cfg.Backoff,
	}

	factory := func(workerID int) dispatch.Resolver {
		workerLogger := logging.NewLogger(fmt.Sprintf("worker-%d", workerID))
		return fetch.NewWorker(transport.NewClient(transportCfg), policy, cfg.APIBase, workerLogger)
	}

	var resume dispatch.ResumeStore
	if store != nil {
		resume = store
	}
	engine := dispatch.NewEngine(factory, resume, dispatch.Config{Workers: cfg.Workers}, logging.NewLogger("dispatch"))

	for outcome := range engine.Run(ctx, paymentIDs) {
		if err := out.Write(outcome); err != nil {
			logger.Error().Err(err).Str("payment_id", outcome.PaymentID).Msg("Failed to write outcome")
		}
	}

	if err := out.Close(); err != nil {
		logger.Error().Err(err).Msg("Failed to close output")
	}

	logger.Info().
		Int("processed", out.Completed()).
		Str("output", cfg.Outfile).
		Msg("Done")
}

// parseIDs reads one payment identifier per line, skipping blank lines
// and # comments.
func parseIDs(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var ids []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		ids = append(ids, line)
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}

	return ids, nil
}
