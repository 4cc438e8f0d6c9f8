// Package config loads process configuration from the environment.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"

	"github.com/mradl/mradl/internal/database"
)

// Environments.
const (
	EnvDevelopment = "development"
	EnvProduction  = "production"
)

// devSigningKey is used outside production when JWT_SIGNING_KEY is unset.
const devSigningKey = "local-dev-signing-key-change-in-production"

// ErrMissingSigningKey is returned in production without JWT_SIGNING_KEY.
var ErrMissingSigningKey = errors.New("JWT_SIGNING_KEY is required in production")

// Config is the configuration shared by the API server and the worker.
type Config struct {
	Port     string
	Env      string
	LogLevel string

	OTelEnabled     bool
	OTLPEndpoint    string
	OTelSampleRatio float64

	Database database.Config
	Redis    RedisConfig
	JWT      JWTConfig
	Provider ProviderConfig
	PubSub   PubSubConfig
	Trip     TripConfig

	// AdminAPIKeys guard the operator endpoints. Empty disables them.
	AdminAPIKeys []string
	// RequireTLS rejects requests forwarded over plain HTTP.
	RequireTLS bool

	// GeocodeCachePath is the SQLite file for cached geocoding results.
	// Empty disables the cache.
	GeocodeCachePath string
	GeocodeCacheTTL  time.Duration
}

// RedisConfig holds Redis connection settings.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// Options returns go-redis client options.
func (c RedisConfig) Options() *redis.Options {
	return &redis.Options{
		Addr:     c.Addr,
		Password: c.Password,
		DB:       c.DB,
	}
}

// JWTConfig holds access token settings.
type JWTConfig struct {
	SigningKey string
	Issuer     string
	Audience   string
}

// ProviderConfig holds upstream API settings.
type ProviderConfig struct {
	GraphHopperAPIKey  string
	GraphHopperBaseURL string
	OverpassBaseURL    string
	OpenMeteoBaseURL   string
}

// PubSubConfig holds the worker's Pub/Sub settings.
type PubSubConfig struct {
	ProjectID      string
	SubscriptionID string

	// RefreshInterval drives refreshes on a timer when ProjectID is empty.
	RefreshInterval time.Duration
}

// TripConfig holds live trip timer settings.
type TripConfig struct {
	PushInterval time.Duration
	EvalInterval time.Duration
	SessionTTL   time.Duration
}

// IsProduction reports whether the process runs in production.
func (c *Config) IsProduction() bool {
	return c.Env == EnvProduction
}

// Load reads a .env file if present, then the environment.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("loading .env file: %w", err)
	}
	return FromEnv()
}

// FromEnv reads configuration from environment variables.
func FromEnv() (*Config, error) {
	cfg := &Config{
		Port:            getEnv("APP_PORT", "8080"),
		Env:             getEnv("APP_ENV", EnvDevelopment),
		LogLevel:        getEnv("LOG_LEVEL", "info"),
		OTelEnabled:     getEnvAsBool("OTEL_ENABLED", false),
		OTLPEndpoint:    getEnv("OTEL_EXPORTER_OTLP_ENDPOINT", "localhost:4317"),
		OTelSampleRatio: getEnvAsFloat("OTEL_TRACES_SAMPLE_RATIO", 1),
		Database:        databaseFromEnv(),
		Redis: RedisConfig{
			Addr:     getEnv("REDIS_ADDR", "localhost:6379"),
			Password: os.Getenv("REDIS_PASSWORD"),
			DB:       getEnvAsInt("REDIS_DB", 0),
		},
		JWT: JWTConfig{
			SigningKey: os.Getenv("JWT_SIGNING_KEY"),
			Issuer:     getEnv("JWT_ISSUER", "https://api.mradl.de"),
			Audience:   getEnv("JWT_AUDIENCE", "mradl-api"),
		},
		Provider: ProviderConfig{
			GraphHopperAPIKey:  os.Getenv("GRAPHHOPPER_API_KEY"),
			GraphHopperBaseURL: os.Getenv("GRAPHHOPPER_BASE_URL"),
			OverpassBaseURL:    os.Getenv("OVERPASS_BASE_URL"),
			OpenMeteoBaseURL:   os.Getenv("OPEN_METEO_BASE_URL"),
		},
		PubSub: PubSubConfig{
			ProjectID:       os.Getenv("PUBSUB_PROJECT_ID"),
			SubscriptionID:  getEnv("PUBSUB_SUBSCRIPTION_ID", "mradl-worker"),
			RefreshInterval: getEnvAsDuration("WORKER_REFRESH_INTERVAL", 6*time.Hour),
		},
		Trip: TripConfig{
			PushInterval: getEnvAsDuration("TRIP_PUSH_INTERVAL", 5*time.Second),
			EvalInterval: getEnvAsDuration("TRIP_EVAL_INTERVAL", 30*time.Second),
			SessionTTL:   getEnvAsDuration("TRIP_SESSION_TTL", 6*time.Hour),
		},
		AdminAPIKeys:     getEnvAsList("ADMIN_API_KEYS"),
		RequireTLS:       getEnvAsBool("REQUIRE_TLS", false),
		GeocodeCachePath: getEnv("GEOCODE_CACHE_PATH", "geocode-cache.db"),
		GeocodeCacheTTL:  getEnvAsDuration("GEOCODE_CACHE_TTL", 30*24*time.Hour),
	}

	if cfg.JWT.SigningKey == "" {
		if cfg.IsProduction() {
			return nil, ErrMissingSigningKey
		}
		cfg.JWT.SigningKey = devSigningKey
	}

	return cfg, nil
}

// UsesDevSigningKey reports whether the built-in development key is in use.
func (c *Config) UsesDevSigningKey() bool {
	return c.JWT.SigningKey == devSigningKey
}

func databaseFromEnv() database.Config {
	cfg := database.DefaultConfig()
	cfg.URL = os.Getenv("DATABASE_URL")
	cfg.Host = getEnv("DB_HOST", cfg.Host)
	cfg.Port = getEnvAsInt("DB_PORT", cfg.Port)
	cfg.User = getEnv("DB_USER", cfg.User)
	cfg.Password = getEnv("DB_PASSWORD", cfg.Password)
	cfg.Database = getEnv("DB_NAME", cfg.Database)
	cfg.SSLMode = getEnv("DB_SSLMODE", cfg.SSLMode)
	cfg.MaxConns = getEnvAsInt("DB_MAX_CONNS", cfg.MaxConns)
	cfg.MinConns = getEnvAsInt("DB_MIN_CONNS", cfg.MinConns)
	return cfg
}

func getEnv(key, defaultValue string) string {
	if value, ok := os.LookupEnv(key); ok && value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if v, err := strconv.Atoi(getEnv(key, "")); err == nil {
		return v
	}
	return defaultValue
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	if v, err := strconv.ParseFloat(getEnv(key, ""), 64); err == nil {
		return v
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	switch strings.ToLower(getEnv(key, "")) {
	case "true", "1", "yes":
		return true
	case "false", "0", "no":
		return false
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	if v, err := time.ParseDuration(getEnv(key, "")); err == nil {
		return v
	}
	return defaultValue
}

func getEnvAsList(key string) []string {
	var out []string
	for _, v := range strings.Split(os.Getenv(key), ",") {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	return out
}
