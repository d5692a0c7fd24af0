// Package main is the circlemap command-line client. It reads the same
// environment configuration as the API server.
package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/redis/go-redis/v9"

	"circlemap/internal/area"
	"circlemap/internal/cli"
	"circlemap/internal/config"
	"circlemap/internal/db"
	"circlemap/internal/external"
	"circlemap/internal/geocode"
	"circlemap/internal/history"
)

var version = "dev"

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

func run(args []string, stdout, stderr io.Writer) int {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.LoadConfig(nil)
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "loading configuration: %v\n", err)
		return cli.ExitFailure
	}
	// Diagnostics go to stderr so stdout stays machine readable.
	logger := slog.New(slog.NewTextHandler(stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))

	deps, cleanup, err := buildDependencies(ctx, cfg, logger)
	if err != nil {
		_, _ = fmt.Fprintln(stderr, err.Error())
		return cli.ExitFailure
	}
	defer cleanup()

	return cli.Execute(ctx, args, deps, stdout, stderr)
}

// buildDependencies wires the resolver and history service. The returned
// cleanup releases any pools or clients that were opened.
func buildDependencies(ctx context.Context, cfg *config.Config, logger *slog.Logger) (cli.Dependencies, func(), error) {
	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	var cache geocode.Cache = geocode.NewMemoryCache(cfg.Cache.MemoryEntries)
	if cfg.Cache.RedisEnabled() {
		rc := redis.NewClient(&redis.Options{
			Addr:     cfg.Cache.RedisAddr,
			Password: cfg.Cache.RedisPassword.Unmask(),
			DB:       cfg.Cache.RedisDB,
		})
		closers = append(closers, func() { _ = rc.Close() })
		cache = geocode.NewRedisCache(rc, cfg.Cache.KeyPrefix)
	}

	var geocoder geocode.Geocoder
	if cfg.Geocoder.Mode == config.GeocoderStub {
		geocoder = geocode.NewStubGeocoder(logger)
	} else {
		retry := external.NoRetryPolicy()
		retry.MaxRetries = cfg.Geocoder.MaxRetries
		geocoder = geocode.NewNominatimClient(geocode.NominatimConfig{
			BaseURL:     cfg.Geocoder.BaseURL,
			Language:    cfg.Geocoder.Language,
			Timeout:     cfg.Geocoder.Timeout,
			UserAgent:   cfg.Geocoder.UserAgent,
			MinInterval: cfg.Geocoder.MinInterval,
			Retry:       retry,
		}, nil)
	}
	resolver := geocode.NewResolver(geocoder, cache,
		geocode.WithCacheTTL(cfg.Geocoder.CacheTTL, cfg.Geocoder.NotFoundTTL),
		geocode.WithNamespace(cfg.Geocoder.Language),
		geocode.WithFetchTimeout(cfg.Geocoder.FetchTimeout()),
		geocode.WithLogger(logger),
	)

	var log history.Log = history.NewMemoryLog()
	if cfg.Database.Enabled() {
		pool, err := db.OpenPool(ctx, cfg.Database.URL.Unmask(), db.PoolOptions{
			MaxConns:       2,
			AcquireTimeout: cfg.Database.AcquireTimeout,
		})
		if err != nil {
			cleanup()
			return cli.Dependencies{}, nil, fmt.Errorf("opening database: %w", err)
		}
		closers = append(closers, pool.Close)
		log = db.NewHistoryRepository(pool)
	} else {
		logger.Warn("DATABASE_URL not set; history commands read an empty in-memory log")
	}

	return cli.Dependencies{
		Resolver: resolver,
		History:  history.NewService(log, history.WithLogger(logger)),
		Rates: area.Rates{
			WalkMetersPerMin: cfg.Activity.WalkMetersPerMin,
			RunMetersPerMin:  cfg.Activity.RunMetersPerMin,
			BikeMetersPerMin: cfg.Activity.BikeMetersPerMin,
			WalkKcalPerKm:    cfg.Activity.WalkKcalPerKm,
			RunKcalPerKm:     cfg.Activity.RunKcalPerKm,
		},
		Version: version,
	}, cleanup, nil
}
