package middleware

import (
	"math"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/httprate"

	"github.com/mradl/mradl/internal/api/models"
)

// RateLimitConfig is a fixed-window request budget.
type RateLimitConfig struct {
	RequestLimit int
	WindowLength time.Duration
}

// Budgets per endpoint class.
var (
	// AuthRateLimit guards anonymous sign-in and token refresh.
	AuthRateLimit = RateLimitConfig{RequestLimit: 10, WindowLength: time.Minute}

	// PlanRateLimit guards route planning, which fans out to the geocoder
	// and up to three routing requests.
	PlanRateLimit = RateLimitConfig{RequestLimit: 30, WindowLength: time.Minute}

	// LocationPushRateLimit allows a sharer to push roughly every two
	// seconds with headroom for retries.
	LocationPushRateLimit = RateLimitConfig{RequestLimit: 60, WindowLength: time.Minute}

	// ReportRateLimit caps map reports per rider.
	ReportRateLimit = RateLimitConfig{RequestLimit: 20, WindowLength: time.Hour}

	// StandardRateLimit applies everywhere else.
	StandardRateLimit = RateLimitConfig{RequestLimit: 100, WindowLength: time.Minute}
)

// RateLimitByIP limits by client address. Put chi's RealIP in front of it
// when running behind a proxy.
func RateLimitByIP(cfg RateLimitConfig) func(http.Handler) http.Handler {
	return rateLimit(cfg, httprate.KeyByRealIP)
}

// RateLimitByUser limits by authenticated user and falls back to the client
// address for anonymous requests.
func RateLimitByUser(cfg RateLimitConfig) func(http.Handler) http.Handler {
	return rateLimit(cfg, keyByUserOrIP)
}

func rateLimit(cfg RateLimitConfig, key httprate.KeyFunc) func(http.Handler) http.Handler {
	return httprate.Limit(
		cfg.RequestLimit,
		cfg.WindowLength,
		httprate.WithKeyFuncs(key),
		httprate.WithLimitHandler(limitExceeded(cfg.WindowLength)),
	)
}

func keyByUserOrIP(r *http.Request) (string, error) {
	if userID := GetUserID(r.Context()); userID != "" {
		return "user:" + userID, nil
	}
	return httprate.KeyByRealIP(r)
}

// limitExceeded writes a 429 problem. httprate does not expose when the
// window resets, so Retry-After is the full window length.
func limitExceeded(window time.Duration) http.HandlerFunc {
	retryAfter := strconv.Itoa(int(math.Ceil(window.Seconds())))

	return func(w http.ResponseWriter, r *http.Request) {
		problem := models.NewTooManyRequests(GetRequestID(r.Context()), "rate limit exceeded, retry later")
		problem.Instance = r.URL.Path
		w.Header().Set("Retry-After", retryAfter)
		problem.Write(w)
	}
}
