// Package graphhopper provides a client for the GraphHopper geocoding API.
package graphhopper

import (
	"cmp"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/rs/zerolog"

	"github.com/mradl/mradl/internal/geo"
	"github.com/mradl/mradl/internal/geocode"
	"github.com/mradl/mradl/internal/provider/resilience"
)

const (
	// ProviderName identifies this geocoding provider.
	ProviderName = "graphhopper-geocode"

	// DefaultBaseURL is the GraphHopper API base URL.
	DefaultBaseURL = "https://graphhopper.com/api/1"

	// DefaultTimeout is the default request timeout.
	DefaultTimeout = 5 * time.Second
)

// HTTPDoer is an interface for executing HTTP requests.
type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// ClientConfig holds configuration for the geocoding client.
type ClientConfig struct {
	// APIKey is the GraphHopper API key.
	APIKey string

	// BaseURL is the API base URL (optional).
	BaseURL string

	// Locale for result names (default: de).
	Locale string

	// HTTPClient is the HTTP client to use (optional).
	// If nil, uses a resilient client without retries.
	HTTPClient HTTPDoer

	// Timeout is the request timeout (optional, defaults to 5s).
	Timeout time.Duration

	// Registry is the provider registry for health tracking (optional).
	Registry *resilience.Registry

	Logger zerolog.Logger
}

// Client is a GraphHopper geocoding client.
type Client struct {
	apiKey     string
	baseURL    string
	locale     string
	httpClient HTTPDoer
	logger     zerolog.Logger
}

// NewClient creates a new geocoding client.
func NewClient(cfg ClientConfig) *Client {
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		clientCfg := resilience.DefaultClientConfig(ProviderName)
		clientCfg.Timeout = cmp.Or(cfg.Timeout, DefaultTimeout)
		// A failed lookup is reported to the rider right away.
		clientCfg.DisableRetry = true
		clientCfg.Registry = cfg.Registry
		clientCfg.Logger = cfg.Logger
		httpClient = resilience.NewClient(clientCfg)
	}

	return &Client{
		apiKey:     cfg.APIKey,
		baseURL:    cmp.Or(cfg.BaseURL, DefaultBaseURL),
		locale:     cmp.Or(cfg.Locale, "de"),
		httpClient: httpClient,
		logger:     cfg.Logger,
	}
}

// Name returns the provider name.
func (c *Client) Name() string {
	return ProviderName
}

type geocodeResponse struct {
	Hits []struct {
		Point struct {
			Lat float64 `json:"lat"`
			Lng float64 `json:"lng"`
		} `json:"point"`
		Name    string `json:"name"`
		City    string `json:"city,omitempty"`
		Country string `json:"country,omitempty"`
	} `json:"hits"`
}

type errorResponse struct {
	Message string `json:"message"`
}

// Geocode returns the best match for "{query}, {cityBias}".
func (c *Client) Geocode(ctx context.Context, query, cityBias string) (geo.Coordinate, error) {
	q := query
	if cityBias != "" {
		q = query + ", " + cityBias
	}

	params := url.Values{}
	params.Set("q", q)
	params.Set("limit", "1")
	params.Set("locale", c.locale)
	if c.apiKey != "" {
		params.Set("key", c.apiKey)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/geocode?"+params.Encode(), http.NoBody)
	if err != nil {
		return geo.Coordinate{}, fmt.Errorf("creating request: %w", err)
	}
	httpReq.Header.Set("Accept", "application/json")

	c.logger.Debug().Str("query", q).Msg("requesting geocode")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return geo.Coordinate{}, &geocode.Error{
			Provider: ProviderName,
			Code:     "REQUEST_FAILED",
			Message:  "failed to reach geocoding provider",
			Err:      geocode.ErrProviderUnavailable,
		}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return geo.Coordinate{}, fmt.Errorf("reading response body: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		var apiErr errorResponse
		_ = json.Unmarshal(body, &apiErr)
		return geo.Coordinate{}, &geocode.Error{
			Provider: ProviderName,
			Code:     fmt.Sprintf("HTTP_%d", resp.StatusCode),
			Message:  fmt.Sprintf("geocoding provider returned status %d %s", resp.StatusCode, apiErr.Message),
			Err:      geocode.ErrProviderUnavailable,
		}
	}

	var parsed geocodeResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return geo.Coordinate{}, fmt.Errorf("decoding response: %w", err)
	}

	if len(parsed.Hits) == 0 {
		return geo.Coordinate{}, fmt.Errorf("%w: %q", geocode.ErrNotFound, q)
	}

	hit := parsed.Hits[0]
	c.logger.Debug().
		Str("query", q).
		Str("name", hit.Name).
		Float64("lat", hit.Point.Lat).
		Float64("lng", hit.Point.Lng).
		Msg("geocode resolved")

	return geo.Coordinate{Lat: hit.Point.Lat, Lng: hit.Point.Lng}, nil
}
