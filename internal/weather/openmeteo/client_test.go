package openmeteo

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mradl/mradl/internal/geo"
	"github.com/mradl/mradl/internal/weather"
)

func TestClient_Current_Success(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/forecast", r.URL.Path)
		q := r.URL.Query()
		assert.Equal(t, "48.1351", q.Get("latitude"))
		assert.Equal(t, "11.5820", q.Get("longitude"))
		assert.Contains(t, q.Get("current"), "wind_speed_10m")
		assert.Equal(t, "kmh", q.Get("wind_speed_unit"))

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"latitude": 48.14,
			"longitude": 11.58,
			"current": {
				"time": "2024-06-21T11:15",
				"temperature_2m": 22.4,
				"relative_humidity_2m": 55,
				"precipitation": 0.2,
				"wind_speed_10m": 12.5,
				"weather_code": 61,
				"is_day": 1
			}
		}`))
	}))
	defer server.Close()

	client := NewClient(ClientConfig{BaseURL: server.URL, HTTPClient: server.Client(), Logger: zerolog.Nop()})

	obs, err := client.Current(context.Background(), geo.Munich)
	require.NoError(t, err)

	assert.Equal(t, geo.Munich, obs.Location)
	assert.Equal(t, 22.4, obs.TemperatureC)
	assert.Equal(t, 55.0, obs.HumidityPct)
	assert.Equal(t, 0.2, obs.PrecipitationMM)
	assert.Equal(t, 12.5, obs.WindSpeedKmh)
	assert.Equal(t, 61, obs.WeatherCode)
	assert.True(t, obs.IsDay)
	assert.Equal(t, "Light rain", obs.Description())
	assert.Equal(t, time.Date(2024, time.June, 21, 11, 15, 0, 0, time.UTC), obs.ObservedAt)
}

func TestClient_Current_Errors(t *testing.T) {
	tests := []struct {
		name     string
		status   int
		body     string
		wantCode string
	}{
		{"bad request", http.StatusBadRequest, `{"error":true,"reason":"Latitude must be in range"}`, "HTTP_400"},
		{"server error", http.StatusInternalServerError, `{}`, "HTTP_500"},
		{"missing current", http.StatusOK, `{"latitude":48.14}`, "NO_CURRENT"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			}))
			defer server.Close()

			client := NewClient(ClientConfig{BaseURL: server.URL, HTTPClient: server.Client(), Logger: zerolog.Nop()})

			_, err := client.Current(context.Background(), geo.Munich)
			require.Error(t, err)
			assert.ErrorIs(t, err, weather.ErrProviderUnavailable)

			var wErr *weather.Error
			require.True(t, errors.As(err, &wErr))
			assert.Equal(t, tt.wantCode, wErr.Code)
			assert.Equal(t, ProviderName, wErr.Provider)
		})
	}
}

func TestClient_Current_Unreachable(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	server.Close()

	client := NewClient(ClientConfig{BaseURL: server.URL, HTTPClient: http.DefaultClient, Logger: zerolog.Nop()})

	_, err := client.Current(context.Background(), geo.Munich)
	assert.ErrorIs(t, err, weather.ErrProviderUnavailable)
}
