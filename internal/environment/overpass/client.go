// Package overpass provides a client for the OpenStreetMap Overpass API.
package overpass

import (
	"cmp"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/mradl/mradl/internal/environment"
	"github.com/mradl/mradl/internal/geo"
	"github.com/mradl/mradl/internal/provider/resilience"
)

const (
	// ProviderName identifies this feature provider.
	ProviderName = "overpass"

	// DefaultBaseURL is the public Overpass instance.
	DefaultBaseURL = "https://overpass-api.de"

	// DefaultTimeout is the default request timeout. Overpass queries are slow.
	DefaultTimeout = 30 * time.Second
)

// HTTPDoer is an interface for executing HTTP requests.
type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// ClientConfig holds configuration for the Overpass client.
type ClientConfig struct {
	// BaseURL is the API base URL (optional).
	BaseURL string

	// HTTPClient is the HTTP client to use (optional).
	HTTPClient HTTPDoer

	// Timeout is the request timeout (optional, defaults to 30s).
	Timeout time.Duration

	// Registry is the provider registry for health tracking (optional).
	Registry *resilience.Registry

	Logger zerolog.Logger
}

// Client is an Overpass API client.
type Client struct {
	baseURL    string
	timeout    time.Duration
	httpClient HTTPDoer
	logger     zerolog.Logger
}

// NewClient creates a new Overpass client.
func NewClient(cfg ClientConfig) *Client {
	timeout := cmp.Or(cfg.Timeout, DefaultTimeout)

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		clientCfg := resilience.DefaultClientConfig(ProviderName)
		clientCfg.Timeout = timeout
		clientCfg.MaxRetries = 1
		clientCfg.Registry = cfg.Registry
		clientCfg.Logger = cfg.Logger
		httpClient = resilience.NewClient(clientCfg)
	}

	return &Client{
		baseURL:    strings.TrimRight(cmp.Or(cfg.BaseURL, DefaultBaseURL), "/"),
		timeout:    timeout,
		httpClient: httpClient,
		logger:     cfg.Logger,
	}
}

// Name returns the provider name.
func (c *Client) Name() string {
	return ProviderName
}

type response struct {
	Elements []element `json:"elements"`
	Remark   string    `json:"remark,omitempty"`
}

type element struct {
	Type   string   `json:"type"`
	ID     int64    `json:"id"`
	Lat    *float64 `json:"lat,omitempty"`
	Lon    *float64 `json:"lon,omitempty"`
	Center *struct {
		Lat float64 `json:"lat"`
		Lon float64 `json:"lon"`
	} `json:"center,omitempty"`
}

// Features runs the query for kind over bbox. Nodes contribute their
// position and ways their center; elements with neither are skipped.
func (c *Client) Features(ctx context.Context, kind environment.Kind, bbox geo.BoundingBox) ([]geo.Coordinate, error) {
	query, err := BuildQuery(kind, bbox, c.timeout)
	if err != nil {
		return nil, err
	}

	form := url.Values{}
	form.Set("data", query)

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/interpreter", strings.NewReader(form.Encode()))
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	httpReq.Header.Set("Accept", "application/json")

	c.logger.Debug().
		Str("kind", string(kind)).
		Str("bbox", bbox.Key()).
		Msg("querying overpass")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, &environment.Error{
			Provider: ProviderName,
			Code:     "REQUEST_FAILED",
			Message:  "failed to reach feature provider",
			Err:      environment.ErrProviderUnavailable,
		}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading response body: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		code := fmt.Sprintf("HTTP_%d", resp.StatusCode)
		if resp.StatusCode == http.StatusTooManyRequests {
			code = "RATE_LIMIT"
		}
		return nil, &environment.Error{
			Provider: ProviderName,
			Code:     code,
			Message:  fmt.Sprintf("feature provider returned status %d", resp.StatusCode),
			Err:      environment.ErrProviderUnavailable,
		}
	}

	var parsed response
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, fmt.Errorf("decoding response: %w", err)
	}

	// A runtime error inside the query is reported as a remark with 200.
	if parsed.Remark != "" && len(parsed.Elements) == 0 {
		return nil, &environment.Error{
			Provider: ProviderName,
			Code:     "QUERY_REMARK",
			Message:  parsed.Remark,
			Err:      environment.ErrProviderUnavailable,
		}
	}

	features := make([]geo.Coordinate, 0, len(parsed.Elements))
	for _, el := range parsed.Elements {
		switch {
		case el.Lat != nil && el.Lon != nil:
			features = append(features, geo.Coordinate{Lat: *el.Lat, Lng: *el.Lon})
		case el.Center != nil:
			features = append(features, geo.Coordinate{Lat: el.Center.Lat, Lng: el.Center.Lon})
		}
	}

	c.logger.Debug().
		Str("kind", string(kind)).
		Int("elements", len(parsed.Elements)).
		Int("features", len(features)).
		Msg("overpass query complete")

	return features, nil
}

var _ environment.FeatureSource = (*Client)(nil)
