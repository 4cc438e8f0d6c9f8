// Package openmeteo provides a client for the Open-Meteo forecast API.
package openmeteo

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/mradl/mradl/internal/geo"
	"github.com/mradl/mradl/internal/provider/resilience"
	"github.com/mradl/mradl/internal/weather"
)

const (
	// ProviderName identifies this weather provider.
	ProviderName = "open-meteo"

	// DefaultBaseURL is the Open-Meteo API base URL.
	DefaultBaseURL = "https://api.open-meteo.com"

	// DefaultTimeout is the default request timeout.
	DefaultTimeout = 5 * time.Second

	currentFields = "temperature_2m,relative_humidity_2m,precipitation,wind_speed_10m,weather_code,is_day"
)

// HTTPDoer is an interface for executing HTTP requests.
type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// ClientConfig holds configuration for the Open-Meteo client.
type ClientConfig struct {
	// BaseURL is the API base URL (optional).
	BaseURL string

	// HTTPClient is the HTTP client to use (optional).
	HTTPClient HTTPDoer

	// Registry is the provider registry for health tracking (optional).
	Registry *resilience.Registry

	Logger zerolog.Logger
}

// Client is an Open-Meteo API client. The API needs no key.
type Client struct {
	baseURL    string
	httpClient HTTPDoer
	logger     zerolog.Logger
	now        func() time.Time
}

// NewClient creates a new Open-Meteo client.
func NewClient(cfg ClientConfig) *Client {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		clientCfg := resilience.DefaultClientConfig(ProviderName)
		clientCfg.Timeout = DefaultTimeout
		clientCfg.Registry = cfg.Registry
		clientCfg.Logger = cfg.Logger
		httpClient = resilience.NewClient(clientCfg)
	}

	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: httpClient,
		logger:     cfg.Logger,
		now:        time.Now,
	}
}

// Name returns the provider name.
func (c *Client) Name() string {
	return ProviderName
}

type forecastResponse struct {
	Current *struct {
		Time             string  `json:"time"`
		Temperature      float64 `json:"temperature_2m"`
		RelativeHumidity float64 `json:"relative_humidity_2m"`
		Precipitation    float64 `json:"precipitation"`
		WindSpeed        float64 `json:"wind_speed_10m"`
		WeatherCode      int     `json:"weather_code"`
		IsDay            int     `json:"is_day"`
	} `json:"current"`
	Error  bool   `json:"error,omitempty"`
	Reason string `json:"reason,omitempty"`
}

// Current fetches current conditions. Times are requested in UTC and
// wind in km/h.
func (c *Client) Current(ctx context.Context, at geo.Coordinate) (*weather.Observation, error) {
	params := url.Values{}
	params.Set("latitude", strconv.FormatFloat(at.Lat, 'f', 4, 64))
	params.Set("longitude", strconv.FormatFloat(at.Lng, 'f', 4, 64))
	params.Set("current", currentFields)
	params.Set("wind_speed_unit", "kmh")
	params.Set("timezone", "UTC")
	params.Set("forecast_days", "1")

	reqURL := c.baseURL + "/v1/forecast?" + params.Encode()

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	httpReq.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, &weather.Error{
			Provider: ProviderName,
			Code:     "REQUEST_FAILED",
			Message:  "failed to reach weather provider",
			Err:      weather.ErrProviderUnavailable,
		}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading response body: %w", err)
	}

	var fr forecastResponse
	if resp.StatusCode != http.StatusOK {
		_ = json.Unmarshal(body, &fr)
		c.logger.Warn().
			Int("status", resp.StatusCode).
			Str("reason", fr.Reason).
			Msg("open-meteo returned error")
		return nil, &weather.Error{
			Provider: ProviderName,
			Code:     fmt.Sprintf("HTTP_%d", resp.StatusCode),
			Message:  "weather provider error",
			Err:      weather.ErrProviderUnavailable,
		}
	}

	if err := json.Unmarshal(body, &fr); err != nil {
		return nil, fmt.Errorf("parsing response: %w", err)
	}
	if fr.Current == nil {
		return nil, &weather.Error{
			Provider: ProviderName,
			Code:     "NO_CURRENT",
			Message:  "response has no current conditions",
			Err:      weather.ErrProviderUnavailable,
		}
	}

	now := c.now()
	observedAt := now
	if t, err := time.Parse("2006-01-02T15:04", fr.Current.Time); err == nil {
		observedAt = t
	}

	return &weather.Observation{
		Location:        at,
		TemperatureC:    fr.Current.Temperature,
		HumidityPct:     fr.Current.RelativeHumidity,
		PrecipitationMM: fr.Current.Precipitation,
		WindSpeedKmh:    fr.Current.WindSpeed,
		WeatherCode:     fr.Current.WeatherCode,
		IsDay:           fr.Current.IsDay == 1,
		ObservedAt:      observedAt,
		FetchedAt:       now,
	}, nil
}

var _ weather.Provider = (*Client)(nil)
