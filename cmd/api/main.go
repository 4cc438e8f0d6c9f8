// Package main provides the entrypoint for the M-Radl API server.
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/mradl/mradl/internal/api"
	"github.com/mradl/mradl/internal/api/handler"
	"github.com/mradl/mradl/internal/api/middleware"
	"github.com/mradl/mradl/internal/auth"
	"github.com/mradl/mradl/internal/config"
	"github.com/mradl/mradl/internal/database"
	"github.com/mradl/mradl/internal/environment"
	"github.com/mradl/mradl/internal/environment/overpass"
	"github.com/mradl/mradl/internal/featureflags"
	"github.com/mradl/mradl/internal/geocode"
	geocodegh "github.com/mradl/mradl/internal/geocode/graphhopper"
	"github.com/mradl/mradl/internal/provider/resilience"
	"github.com/mradl/mradl/internal/report"
	"github.com/mradl/mradl/internal/routing"
	routinggh "github.com/mradl/mradl/internal/routing/graphhopper"
	"github.com/mradl/mradl/internal/telemetry"
	"github.com/mradl/mradl/internal/trip"
	"github.com/mradl/mradl/internal/weather"
	"github.com/mradl/mradl/internal/weather/openmeteo"
)

// Version and BuildTime are set at compile time via ldflags.
var (
	Version   = "dev"
	BuildTime = "unknown"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		bootLogger := zerolog.New(os.Stderr)
		bootLogger.Fatal().Err(err).Msg("failed to load configuration")
	}

	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil {
		level = zerolog.InfoLevel
	}

	log := zerolog.New(os.Stdout).
		Level(level).
		With().
		Timestamp().
		Str("service", telemetry.ServiceAPI).
		Str("version", Version).
		Logger()

	log.Info().
		Str("build_time", BuildTime).
		Str("env", cfg.Env).
		Msg("starting M-Radl API")

	if cfg.UsesDevSigningKey() {
		log.Warn().Msg("using default JWT signing key - not secure for production")
	}

	ctx := context.Background()

	tp, err := telemetry.Init(ctx, telemetry.FromConfig(cfg, telemetry.ServiceAPI, Version))
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize telemetry")
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if shutdownErr := tp.Shutdown(shutdownCtx); shutdownErr != nil {
			log.Error().Err(shutdownErr).Msg("failed to shutdown telemetry")
		}
	}()

	if cfg.OTelEnabled {
		log.Info().
			Str("otlp_endpoint", cfg.OTLPEndpoint).
			Float64("sample_ratio", cfg.OTelSampleRatio).
			Msg("OpenTelemetry initialized")
	}

	metrics, err := middleware.NewMetrics(tp.Meter)
	if err != nil {
		log.Error().Err(err).Msg("failed to initialize metrics")
		os.Exit(1) //nolint:gocritic // intentional exit, telemetry cleanup is best-effort
	}
	domainMetrics, err := telemetry.NewDomainMetrics(tp.Meter)
	if err != nil {
		log.Error().Err(err).Msg("failed to initialize domain metrics")
		os.Exit(1)
	}

	// Database and schema
	version, err := database.Migrate(cfg.Database)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to migrate database")
	}
	pool, err := database.Connect(ctx, cfg.Database)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer pool.Close()
	log.Info().
		Uint("schema_version", version).
		Str("host", cfg.Database.Host).
		Str("database", cfg.Database.Database).
		Msg("database connected")

	rdb := redis.NewClient(cfg.Redis.Options())
	defer func() { _ = rdb.Close() }()
	if err := rdb.Ping(ctx).Err(); err != nil {
		log.Fatal().Err(err).Str("addr", cfg.Redis.Addr).Msg("failed to connect to redis")
	}
	log.Info().Str("addr", cfg.Redis.Addr).Msg("redis connected")

	providers := resilience.NewRegistry()

	// Auth
	authService := auth.NewService(auth.ServiceConfig{
		JWTService: auth.NewJWTService(auth.JWTConfig{
			SigningKey: cfg.JWT.SigningKey,
			Issuer:     cfg.JWT.Issuer,
			Audience:   cfg.JWT.Audience,
		}),
		RefreshStore: auth.NewRedisRefreshTokenStore(rdb),
		Logger:       log,
	})

	// Feature flags
	flags := featureflags.NewService(featureflags.ServiceConfig{
		Store:    featureflags.NewPostgresStore(pool),
		Logger:   log,
		CacheTTL: time.Minute,
	})

	// Reports and the live danger zone registry
	reportStore := report.NewPostgresStore(pool, log)
	reportService := report.NewService(report.ServiceConfig{Store: reportStore, Logger: log})
	zones := report.NewRegistry(reportStore, log)
	if err := zones.Start(ctx); err != nil {
		log.Fatal().Err(err).Msg("failed to load danger zones")
	}
	defer zones.Close()
	log.Info().Int("zones", zones.Len()).Msg("danger zone registry started")

	// Geocoding
	var geocodeCache geocode.Cache
	if cfg.GeocodeCachePath != "" {
		sqliteCache, err := geocode.OpenSQLiteCache(cfg.GeocodeCachePath, cfg.GeocodeCacheTTL)
		if err != nil {
			log.Fatal().Err(err).Str("path", cfg.GeocodeCachePath).Msg("failed to open geocode cache")
		}
		defer func() { _ = sqliteCache.Close() }()
		geocodeCache = sqliteCache
	}
	geocoder := geocode.NewService(geocode.ServiceConfig{
		Provider: geocodegh.NewClient(geocodegh.ClientConfig{
			APIKey:   cfg.Provider.GraphHopperAPIKey,
			BaseURL:  cfg.Provider.GraphHopperBaseURL,
			Registry: providers,
			Logger:   log,
		}),
		Cache:  geocodeCache,
		Logger: log,
	})

	// Lighting and shade coverage
	coverage := environment.NewService(environment.ServiceConfig{
		Source: overpass.NewClient(overpass.ClientConfig{
			BaseURL:  cfg.Provider.OverpassBaseURL,
			Registry: providers,
			Logger:   log,
		}),
		Cache:  environment.NewRedisTileCache(rdb),
		Clamp:  flags,
		Logger: log,
	})

	// Routing
	router := routing.NewService(routing.ServiceConfig{
		Router: routinggh.NewClient(routinggh.ClientConfig{
			APIKey:   cfg.Provider.GraphHopperAPIKey,
			BaseURL:  cfg.Provider.GraphHopperBaseURL,
			Registry: providers,
			Logger:   log,
		}),
		Logger: log,
	})
	planner := routing.NewPlanner(routing.PlannerConfig{
		Geocoder: geocoder,
		Fetcher:  routing.NewFetcher(router, log),
		Sampler:  coverage,
		Logger:   log,
	})
	defer planner.Close()

	// Live trips
	trips := trip.NewController(trip.ControllerConfig{
		Store: trip.NewRedisStore(trip.RedisStoreConfig{
			Client: rdb,
			TTL:    cfg.Trip.SessionTTL,
			Logger: log,
		}),
		Zones:        zones,
		Thresholds:   flags,
		PushInterval: cfg.Trip.PushInterval,
		EvalInterval: cfg.Trip.EvalInterval,
		Logger:       log,
	})
	defer trips.Close()

	// Weather
	weatherService := weather.NewService(weather.ServiceConfig{
		Provider: openmeteo.NewClient(openmeteo.ClientConfig{
			BaseURL:  cfg.Provider.OpenMeteoBaseURL,
			Registry: providers,
			Logger:   log,
		}),
		Logger: log,
	})

	log.Info().Msg("services initialized")

	handlerRouter := api.NewRouter(api.RouterConfig{
		Version:          Version,
		BuildTime:        BuildTime,
		Logger:           log,
		ServiceName:      telemetry.ServiceAPI,
		Metrics:          metrics,
		DomainMetrics:    domainMetrics,
		AuthService:      authService,
		RoutePlanner:     planner,
		ReportService:    reportService,
		DangerZones:      zones,
		TripController:   trips,
		WeatherService:   weatherService,
		FlagService:      flags,
		ReadinessChecks:  readinessChecks(pool, rdb),
		ProviderRegistry: providers,
		AdminAPIKeys:     cfg.AdminAPIKeys,
		RequireTLS:       cfg.RequireTLS,
	})

	server := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      handlerRouter,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Info().
			Str("addr", server.Addr).
			Msg("server listening")

		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("server error")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("shutting down server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("server forced to shutdown")
	}

	log.Info().Msg("server stopped")
}

// readinessChecks pings the stores every request path depends on.
func readinessChecks(pool *pgxpool.Pool, rdb *redis.Client) map[string]handler.ReadinessCheck {
	return map[string]handler.ReadinessCheck{
		"postgres": pool.Ping,
		"redis": func(ctx context.Context) error {
			return rdb.Ping(ctx).Err()
		},
	}
}
