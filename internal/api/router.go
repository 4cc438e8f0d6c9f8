// Package api provides the HTTP API for M-Radl.
package api

import (
	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"

	"github.com/mradl/mradl/internal/api/handler"
	"github.com/mradl/mradl/internal/api/middleware"
	"github.com/mradl/mradl/internal/provider/resilience"
	"github.com/mradl/mradl/internal/telemetry"
)

// AuthService is what the router needs from the auth package.
type AuthService interface {
	handler.AuthService
	middleware.TokenValidator
}

// RouterConfig holds configuration for the router.
type RouterConfig struct {
	Version     string
	BuildTime   string
	Logger      zerolog.Logger
	ServiceName string
	Metrics     *middleware.Metrics

	// DomainMetrics counts plans, trips and reports. May be nil.
	DomainMetrics *telemetry.DomainMetrics

	AuthService    AuthService
	RoutePlanner   handler.RoutePlanner
	ReportService  handler.ReportService
	DangerZones    handler.DangerZoneSource
	TripController handler.TripController
	WeatherService handler.WeatherService
	FlagService    handler.FlagService

	// ReadinessChecks run on /v1/ops/ready and /v1/ops/status.
	ReadinessChecks  map[string]handler.ReadinessCheck
	// ProviderRegistry reports upstream circuit breaker state. May be nil.
	ProviderRegistry *resilience.Registry
	// AdminAPIKeys guard /v1/admin.
	AdminAPIKeys     []string
	// RequireTLS rejects plain HTTP requests behind the load balancer.
	RequireTLS       bool
}

// NewRouter creates a new chi router with all API routes configured.
func NewRouter(cfg RouterConfig) *chi.Mux {
	r := chi.NewRouter()

	// Set default service name if not provided
	serviceName := cfg.ServiceName
	if serviceName == "" {
		serviceName = "mradl-api"
	}

	// Global middleware - order matters
	r.Use(middleware.RequestID)            // Generate/propagate request ID first
	r.Use(middleware.Tracing(serviceName)) // Distributed tracing
	if cfg.Metrics != nil {
		r.Use(cfg.Metrics.Middleware()) // HTTP metrics
	}
	r.Use(middleware.Logger(cfg.Logger))   // Structured logging
	r.Use(middleware.Recovery(cfg.Logger)) // Panic recovery
	r.Use(chimiddleware.RealIP)            // Real IP extraction
	r.Use(middleware.SecurityHeaders)
	r.Use(middleware.RequireTLS(cfg.RequireTLS))
	r.Use(middleware.ContentTypeJSON)

	// Initialize handlers
	opsHandler := handler.NewOpsHandler(cfg.Version, cfg.BuildTime, cfg.ReadinessChecks, cfg.ProviderRegistry)
	authHandler := handler.NewAuthHandler(cfg.AuthService, cfg.Logger)
	metadataHandler := handler.NewMetadataHandler()
	routeHandler := handler.NewRouteHandler(cfg.RoutePlanner, cfg.DomainMetrics, cfg.Logger)
	reportHandler := handler.NewReportHandler(cfg.ReportService, cfg.DangerZones, cfg.DomainMetrics, cfg.Logger)
	tripHandler := handler.NewTripHandler(cfg.TripController, cfg.DomainMetrics, cfg.Logger)
	weatherHandler := handler.NewWeatherHandler(cfg.WeatherService, cfg.Logger)
	featureFlagsHandler := handler.NewFeatureFlagsHandler(cfg.FlagService, cfg.Logger)

	// Create auth middleware
	authMiddleware := middleware.Auth(cfg.AuthService)

	authRateLimit := middleware.RateLimitByIP(middleware.AuthRateLimit)
	planRateLimit := middleware.RateLimitByUser(middleware.PlanRateLimit)
	locationRateLimit := middleware.RateLimitByUser(middleware.LocationPushRateLimit)
	reportRateLimit := middleware.RateLimitByUser(middleware.ReportRateLimit)
	standardRateLimit := middleware.RateLimitByIP(middleware.StandardRateLimit)
	userRateLimit := middleware.RateLimitByUser(middleware.StandardRateLimit)

	// API v1 routes
	r.Route("/v1", func(r chi.Router) {
		r.Use(middleware.RequireJSON)

		// Auth endpoints (public) - strict rate limiting
		r.Route("/auth", func(r chi.Router) {
			r.Use(authRateLimit) // 10 requests per minute per IP
			r.Post("/anonymous", authHandler.SignInAnonymously)
			r.Post("/refresh", authHandler.RefreshToken)
			r.Post("/logout", authHandler.Logout)
			// logout-all requires authentication
			r.With(authMiddleware).Post("/logout-all", authHandler.LogoutAll)
		})

		// Ops endpoints (public)
		r.Route("/ops", func(r chi.Router) {
			r.Get("/health", opsHandler.HealthCheck)
			r.Get("/ready", opsHandler.ReadinessCheck)
			// Status endpoint requires authentication
			r.With(authMiddleware).Get("/status", opsHandler.SystemStatus)
		})

		// Metadata endpoints (public) - standard rate limiting
		r.Route("/metadata", func(r chi.Router) {
			r.Use(standardRateLimit)
			r.Get("/enums", metadataHandler.GetEnums)
		})

		// Rider endpoints (authenticated) - user-based rate limiting
		r.Group(func(r chi.Router) {
			r.Use(authMiddleware)

			r.With(planRateLimit).Post("/routes:plan", routeHandler.PlanRoute)

			// Location pushes and reports have their own budgets so a
			// chatty sharer cannot starve the rest of the API.
			r.With(locationRateLimit).Put("/trips/current/location", tripHandler.UpdateLocation)
			r.With(reportRateLimit).Post("/reports", reportHandler.SubmitReport)

			r.Group(func(r chi.Router) {
				r.Use(userRateLimit)

				r.Get("/routes/current", routeHandler.CurrentRoute)
				r.Get("/routes/{selectionId}", routeHandler.GetRoute)

				r.Get("/reports/{collection}", reportHandler.ListReports)
				r.Get("/danger-zones", reportHandler.DangerZones)

				r.Post("/trips", tripHandler.StartSharing)
				r.Get("/trips/current", tripHandler.Status)
				r.Delete("/trips/current", tripHandler.Stop)
				r.Post("/watches", tripHandler.StartWatching)

				r.Get("/weather", weatherHandler.Current)
			})
		})

		// Admin endpoints (API key) - for internal operations
		r.Route("/admin", func(r chi.Router) {
			r.Use(middleware.APIKey(cfg.AdminAPIKeys, cfg.Logger))
			r.Use(standardRateLimit)

			// Feature flags management
			r.Route("/feature-flags", func(r chi.Router) {
				r.Get("/", featureFlagsHandler.ListFeatureFlags)
				r.Put("/", featureFlagsHandler.UpsertFeatureFlags)
				r.Post("/invalidate", featureFlagsHandler.InvalidateCache)
			})
		})
	})

	return r
}
