package handler

import (
	"context"
	"errors"
	"net/http"

	"github.com/rs/zerolog"

	"github.com/mradl/mradl/internal/api/models"
	"github.com/mradl/mradl/internal/api/response"
	"github.com/mradl/mradl/internal/geo"
	"github.com/mradl/mradl/internal/weather"
)

// WeatherService reports current riding conditions.
type WeatherService interface {
	Conditions(ctx context.Context, at geo.Coordinate) (*weather.Conditions, error)
}

// WeatherHandler handles weather endpoints.
type WeatherHandler struct {
	service WeatherService
	logger  zerolog.Logger
}

// NewWeatherHandler creates a new WeatherHandler.
func NewWeatherHandler(service WeatherService, logger zerolog.Logger) *WeatherHandler {
	return &WeatherHandler{service: service, logger: logger}
}

// Current handles GET /v1/weather. Without lat and lng the Munich city
// center is used.
func (h *WeatherHandler) Current(w http.ResponseWriter, r *http.Request) {
	at := geo.Munich
	q := r.URL.Query()
	if q.Has("lat") || q.Has("lng") {
		c, err := parseCoordinate(q.Get("lat"), q.Get("lng"))
		if err != nil {
			response.BadRequest(w, r, err.Error(), nil)
			return
		}
		at = c
	}

	cond, err := h.service.Conditions(r.Context(), at)
	if err != nil {
		if errors.Is(err, weather.ErrInvalidCoordinates) {
			response.BadRequest(w, r, err.Error(), nil)
			return
		}
		h.logger.Warn().Err(err).Msg("weather unavailable")
		response.ServiceUnavailable(w, r, "weather is temporarily unavailable")
		return
	}

	obs := cond.Observation
	w.Header().Set("Cache-Control", "public, max-age=300")
	response.JSON(w, r, http.StatusOK, models.Weather{
		Location:        toPoint(obs.Location.Lat, obs.Location.Lng),
		TemperatureC:    obs.TemperatureC,
		HumidityPct:     obs.HumidityPct,
		PrecipitationMM: obs.PrecipitationMM,
		WindSpeedKmh:    obs.WindSpeedKmh,
		WeatherCode:     obs.WeatherCode,
		Description:     obs.Description(),
		IsDay:           obs.IsDay,
		Cycling:         string(cond.Cycling),
		Stale:           cond.Stale,
		ObservedAt:      models.Timestamp(obs.ObservedAt),
	})
}
