// Package graphhopper provides a client for the GraphHopper routing API.
package graphhopper

import (
	"cmp"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/rs/zerolog"

	"github.com/mradl/mradl/internal/geo"
	"github.com/mradl/mradl/internal/provider/resilience"
	"github.com/mradl/mradl/internal/routing"
)

const (
	// ProviderName identifies this routing provider.
	ProviderName = "graphhopper"

	// DefaultBaseURL is the GraphHopper API base URL.
	DefaultBaseURL = "https://graphhopper.com/api/1"

	// DefaultTimeout is the default request timeout.
	DefaultTimeout = 10 * time.Second

	// DefaultDirectProfile is the off-road capable vehicle profile.
	DefaultDirectProfile = "foot"

	// DefaultPavedProfile is the paved-road vehicle profile.
	DefaultPavedProfile = "bike"
)

// HTTPDoer is an interface for executing HTTP requests.
type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// ClientConfig holds configuration for the GraphHopper client.
type ClientConfig struct {
	// APIKey is the GraphHopper API key.
	APIKey string

	// BaseURL is the API base URL (optional, defaults to the hosted API).
	BaseURL string

	// DirectProfile and PavedProfile are the upstream vehicle profile names.
	DirectProfile string
	PavedProfile  string

	// MaxPaths caps the number of alternatives requested (default: 3).
	MaxPaths int

	// HTTPClient is the HTTP client to use (optional).
	// If nil, uses a resilient client with defaults.
	HTTPClient HTTPDoer

	// Timeout is the request timeout (optional, defaults to 10s).
	Timeout time.Duration

	// Registry is the provider registry for health tracking (optional).
	Registry *resilience.Registry

	// Logger for client operations.
	Logger zerolog.Logger
}

// Client is a GraphHopper routing client.
type Client struct {
	apiKey        string
	baseURL       string
	directProfile string
	pavedProfile  string
	maxPaths      int
	httpClient    HTTPDoer
	logger        zerolog.Logger
}

// NewClient creates a new GraphHopper routing client. Zero config fields
// fall back to the package defaults.
func NewClient(cfg ClientConfig) *Client {
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		clientCfg := resilience.DefaultClientConfig(ProviderName)
		clientCfg.Timeout = cmp.Or(cfg.Timeout, DefaultTimeout)
		clientCfg.Registry = cfg.Registry
		clientCfg.Logger = cfg.Logger
		httpClient = resilience.NewClient(clientCfg)
	}

	return &Client{
		apiKey:        cfg.APIKey,
		baseURL:       cmp.Or(cfg.BaseURL, DefaultBaseURL),
		directProfile: cmp.Or(cfg.DirectProfile, DefaultDirectProfile),
		pavedProfile:  cmp.Or(cfg.PavedProfile, DefaultPavedProfile),
		maxPaths:      cmp.Or(max(cfg.MaxPaths, 0), 3),
		httpClient:    httpClient,
		logger:        cfg.Logger.With().Str("provider", ProviderName).Logger(),
	}
}

// Name returns the provider name.
func (c *Client) Name() string {
	return ProviderName
}

// Route requests routes for a single profile. PAVED_ALT asks the paved
// profile for alternatives and returns every path; the other profiles
// return the first path only.
func (c *Client) Route(ctx context.Context, req routing.Request) ([]routing.Candidate, error) {
	for _, pt := range []struct {
		c    geo.Coordinate
		code string
	}{{req.Origin, "INVALID_ORIGIN"}, {req.Destination, "INVALID_DESTINATION"}} {
		if err := pt.c.Validate(); err != nil {
			return nil, providerError(pt.code, err.Error(), routing.ErrInvalidCoordinates)
		}
	}

	params := url.Values{}
	params.Add("point", pointParam(req.Origin))
	params.Add("point", pointParam(req.Destination))
	params.Set("points_encoded", "false")
	params.Set("elevation", "false")
	params.Set("instructions", "false")

	switch req.Profile {
	case routing.ProfileDirect:
		params.Set("profile", c.directProfile)
	case routing.ProfilePaved:
		params.Set("profile", c.pavedProfile)
	case routing.ProfilePavedAlt:
		params.Set("profile", c.pavedProfile)
		params.Set("algorithm", "alternative_route")
		params.Set("alternative_route.max_paths", strconv.Itoa(c.maxPaths))
	default:
		return nil, fmt.Errorf("unsupported profile %q", req.Profile)
	}

	if c.apiKey != "" {
		params.Set("key", c.apiKey)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/route?"+params.Encode(), http.NoBody)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	httpReq.Header.Set("Accept", "application/json")

	c.logger.Debug().
		Str("profile", string(req.Profile)).
		Float64("origin_lat", req.Origin.Lat).
		Float64("origin_lng", req.Origin.Lng).
		Float64("dest_lat", req.Destination.Lat).
		Float64("dest_lng", req.Destination.Lng).
		Msg("requesting route from GraphHopper")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, providerError("REQUEST_FAILED", err.Error(), routing.ErrProviderUnavailable)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading response body: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, c.handleErrorResponse(resp.StatusCode, respBody)
	}

	var ghResp routeResponse
	if err := json.Unmarshal(respBody, &ghResp); err != nil {
		return nil, fmt.Errorf("decoding response: %w", err)
	}

	candidates := c.toCandidates(req.Profile, &ghResp)

	c.logger.Debug().
		Str("profile", string(req.Profile)).
		Int("path_count", len(ghResp.Paths)).
		Int("candidate_count", len(candidates)).
		Msg("received route from GraphHopper")

	return candidates, nil
}

// handleErrorResponse maps a non-200 answer to a routing error. A body
// that is not GraphHopper JSON is treated as a generic upstream failure.
func (c *Client) handleErrorResponse(statusCode int, body []byte) error {
	var ghErr errorResponse
	if json.Unmarshal(body, &ghErr) != nil {
		return providerError(fmt.Sprintf("HTTP_%d", statusCode), http.StatusText(statusCode), routing.ErrProviderUnavailable)
	}

	switch {
	case statusCode == http.StatusTooManyRequests:
		return providerError("RATE_LIMIT", ghErr.Message, routing.ErrRateLimitExceeded)
	case statusCode == http.StatusUnauthorized, statusCode == http.StatusForbidden:
		return providerError("FORBIDDEN", "API key rejected: "+ghErr.Message, routing.ErrProviderUnavailable)
	case statusCode == http.StatusBadRequest && ghErr.noRoute():
		return providerError("NO_ROUTE", ghErr.Message, routing.ErrNoRoute)
	case statusCode == http.StatusBadRequest:
		return providerError("BAD_REQUEST", ghErr.Message, routing.ErrInvalidCoordinates)
	case statusCode >= 500:
		return providerError(fmt.Sprintf("SERVER_%d", statusCode), ghErr.Message, routing.ErrProviderUnavailable)
	}
	return providerError(fmt.Sprintf("HTTP_%d", statusCode), ghErr.Message, routing.ErrProviderUnavailable)
}

func providerError(code, msg string, kind error) *routing.Error {
	return &routing.Error{Provider: ProviderName, Code: code, Message: msg, Err: kind}
}

// toCandidates converts paths into candidates. Paths without usable
// geometry are dropped.
func (c *Client) toCandidates(profile routing.Profile, resp *routeResponse) []routing.Candidate {
	candidates := make([]routing.Candidate, 0, len(resp.Paths))

	for i := range resp.Paths {
		p := &resp.Paths[i]

		points, err := geo.FromWire(p.Points.Coordinates)
		if err != nil {
			c.logger.Warn().Err(err).
				Str("profile", string(profile)).
				Int("path", i).
				Msg("dropping path with malformed geometry")
			continue
		}
		if len(points) == 0 {
			continue
		}

		candidates = append(candidates, routing.Candidate{
			Profile:        profile,
			Points:         points,
			DistanceMeters: p.Distance,
			DurationMs:     p.Time,
		})

		if profile != routing.ProfilePavedAlt {
			break
		}
	}

	return candidates
}

func pointParam(c geo.Coordinate) string {
	return strconv.FormatFloat(c.Lat, 'f', -1, 64) + "," + strconv.FormatFloat(c.Lng, 'f', -1, 64)
}
