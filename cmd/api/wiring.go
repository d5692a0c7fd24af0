package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/redis/go-redis/v9"

	"circlemap/internal/api/handlers"
	"circlemap/internal/area"
	"circlemap/internal/config"
	"circlemap/internal/core"
	"circlemap/internal/db"
	"circlemap/internal/external"
	"circlemap/internal/geocode"
	"circlemap/internal/history"
	"circlemap/internal/metrics"
	"circlemap/internal/scheduler"
	"circlemap/internal/session"
)

// buildServer wires every dependency into a core.Server. httpClient is used
// for the upstream geocoder and may be nil. Routes are not mounted. On error,
// resources opened so far are released through the server's shutdown hooks.
func buildServer(ctx context.Context, cfg *config.Config, logger *slog.Logger, httpClient *http.Client) (_ *core.Server, err error) {
	srv, err := core.NewServer(cfg, logger)
	if err != nil {
		return nil, fmt.Errorf("creating server: %w", err)
	}
	defer func() {
		if err != nil {
			_ = srv.Shutdown(context.WithoutCancel(ctx))
		}
	}()

	collector := metrics.New()
	srv.Metrics = collector
	srv.MetricsHandler = collector.Handler()

	cache, err := newGeocodeCache(ctx, cfg.Cache, srv)
	if err != nil {
		return nil, err
	}
	resolver := geocode.NewResolver(
		newGeocoder(cfg.Geocoder, httpClient, logger),
		cache,
		geocode.WithCacheTTL(cfg.Geocoder.CacheTTL, cfg.Geocoder.NotFoundTTL),
		geocode.WithNamespace(cfg.Geocoder.Language),
		geocode.WithFetchTimeout(cfg.Geocoder.FetchTimeout()),
		geocode.WithRecorder(collector),
		geocode.WithLogger(logger),
	)

	historyLog, err := newHistoryLog(ctx, cfg.Database, srv)
	if err != nil {
		return nil, err
	}
	historySvc := history.NewService(historyLog,
		history.WithRecorder(collector),
		history.WithLogger(logger),
	)

	rates := ratesFromConfig(cfg.Activity)
	manager := session.NewManager(resolver, historySvc, session.Config{
		CoordEpsilon:  cfg.Session.CoordEpsilon,
		RestorePolicy: session.RestorePolicy(cfg.Session.RestorePolicy),
		IdleTTL:       cfg.Session.IdleTTL,
		MaxSessions:   cfg.Session.MaxSessions,
		Rates:         rates,
	},
		session.WithRecorder(collector),
		session.WithLogger(logger),
	)

	stopJanitor := scheduler.NewJanitor(manager, cfg.Session.SweepInterval, logger).Start(context.Background())
	srv.OnShutdown(func(context.Context) error {
		stopJanitor()
		return nil
	})

	sessionHandler := handlers.NewSessionHandler(manager, srv.Validator, logger)
	geocodeHandler := handlers.NewGeocodeHandler(resolver, logger)
	areaHandler := handlers.NewAreaHandler(rates)
	historyHandler := handlers.NewHistoryHandler(historySvc, logger)

	srv.V1RouteRegistrars = append(srv.V1RouteRegistrars,
		func(r chi.Router) { r.Route("/sessions", sessionHandler.RegisterRoutes) },
		func(r chi.Router) { r.Route("/geocode", geocodeHandler.RegisterRoutes) },
		areaHandler.RegisterRoutes,
		func(r chi.Router) { r.Route("/history", historyHandler.RegisterRoutes) },
	)

	return srv, nil
}

func newGeocoder(cfg config.GeocoderConfig, httpClient *http.Client, logger *slog.Logger) geocode.Geocoder {
	if cfg.Mode == config.GeocoderStub {
		logger.Warn("using stub geocoder; only fixture places resolve")
		return geocode.NewStubGeocoder(logger)
	}
	retry := external.NoRetryPolicy()
	retry.MaxRetries = cfg.MaxRetries
	return geocode.NewNominatimClient(geocode.NominatimConfig{
		BaseURL:     cfg.BaseURL,
		Language:    cfg.Language,
		Timeout:     cfg.Timeout,
		UserAgent:   cfg.UserAgent,
		MinInterval: cfg.MinInterval,
		Retry:       retry,
		Breaker: external.BreakerSettings{
			Name:                "nominatim",
			ConsecutiveFailures: cfg.BreakerFailures,
			OpenTimeout:         cfg.BreakerTimeout,
		},
	}, httpClient)
}

// newGeocodeCache returns a Redis-backed cache when configured, registering
// its health probe and shutdown hook on srv.
func newGeocodeCache(ctx context.Context, cfg config.CacheConfig, srv *core.Server) (geocode.Cache, error) {
	if !cfg.RedisEnabled() {
		return geocode.NewMemoryCache(cfg.MemoryEntries), nil
	}

	rc := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword.Unmask(),
		DB:       cfg.RedisDB,
	})
	if err := rc.Ping(ctx).Err(); err != nil {
		_ = rc.Close()
		return nil, fmt.Errorf("connecting to redis: %w", err)
	}

	srv.HealthProbes = append(srv.HealthProbes, core.ProbeFunc{
		ProbeName: "redis",
		Fn:        func(ctx context.Context) error { return rc.Ping(ctx).Err() },
	})
	srv.OnShutdown(func(context.Context) error { return rc.Close() })
	return geocode.NewRedisCache(rc, cfg.KeyPrefix), nil
}

// newHistoryLog returns the PostgreSQL log when a database URL is set and the
// in-memory log otherwise.
func newHistoryLog(ctx context.Context, cfg config.DatabaseConfig, srv *core.Server) (history.Log, error) {
	if !cfg.Enabled() {
		return history.NewMemoryLog(), nil
	}

	pool, err := db.OpenPool(ctx, cfg.URL.Unmask(), db.PoolOptions{
		MaxConns:          cfg.MaxConns,
		MinConns:          cfg.MinConns,
		MaxConnLifetime:   cfg.MaxConnLifetime,
		HealthCheckPeriod: cfg.HealthCheckPeriod,
		AcquireTimeout:    cfg.AcquireTimeout,
	})
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	repo := db.NewHistoryRepository(pool)
	if err := repo.EnsureSchema(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ensuring history schema: %w", err)
	}

	srv.HealthProbes = append(srv.HealthProbes, core.ProbeFunc{
		ProbeName: "database",
		Fn:        pool.Ping,
	})
	srv.OnShutdown(func(context.Context) error {
		pool.Close()
		return nil
	})
	return repo, nil
}

func ratesFromConfig(cfg config.ActivityConfig) area.Rates {
	return area.Rates{
		WalkMetersPerMin: cfg.WalkMetersPerMin,
		RunMetersPerMin:  cfg.RunMetersPerMin,
		BikeMetersPerMin: cfg.BikeMetersPerMin,
		WalkKcalPerKm:    cfg.WalkKcalPerKm,
		RunKcalPerKm:     cfg.RunKcalPerKm,
	}
}
