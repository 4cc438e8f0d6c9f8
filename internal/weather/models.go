// Package weather reports current conditions and whether they are
// pleasant for cycling.
package weather

import (
	"context"
	"errors"
	"time"

	"github.com/mradl/mradl/internal/geo"
)

// Weather errors.
var (
	ErrProviderUnavailable = errors.New("weather provider unavailable")
	ErrInvalidCoordinates  = errors.New("invalid coordinates")
)

// Observation is the current weather at a point.
type Observation struct {
	Location        geo.Coordinate
	TemperatureC    float64
	HumidityPct     float64
	PrecipitationMM float64
	WindSpeedKmh    float64
	WeatherCode     int
	IsDay           bool
	ObservedAt      time.Time
	FetchedAt       time.Time
}

// Description returns a short label for the observation's WMO weather code.
func (o *Observation) Description() string {
	return Describe(o.WeatherCode)
}

// Condition is how suitable the weather is for riding.
type Condition string

const (
	ConditionGood     Condition = "GOOD"
	ConditionModerate Condition = "MODERATE"
	ConditionBad      Condition = "BAD"
)

// Assessment thresholds.
const (
	BadPrecipitationMM = 5.0
	BadWindKmh         = 40.0
	ModerateWindKmh    = 25.0
)

// Assess rates riding conditions from precipitation in mm and wind in km/h.
func Assess(precipitationMM, windKmh float64) Condition {
	switch {
	case precipitationMM > BadPrecipitationMM || windKmh > BadWindKmh:
		return ConditionBad
	case precipitationMM > 0 || windKmh > ModerateWindKmh:
		return ConditionModerate
	default:
		return ConditionGood
	}
}

// Conditions pairs an observation with its cycling assessment.
type Conditions struct {
	Observation *Observation
	Cycling     Condition
	// Stale is set when the observation is past its TTL and was served
	// because the provider failed.
	Stale bool
}

// Provider fetches current weather.
type Provider interface {
	Current(ctx context.Context, at geo.Coordinate) (*Observation, error)
	Name() string
}

var descriptions = map[int]string{
	0:  "Clear sky",
	1:  "Mainly clear",
	2:  "Partly cloudy",
	3:  "Overcast",
	45: "Fog",
	48: "Fog",
	51: "Light drizzle",
	53: "Drizzle",
	55: "Heavy drizzle",
	61: "Light rain",
	63: "Rain",
	65: "Heavy rain",
	71: "Light snowfall",
	73: "Snowfall",
	75: "Heavy snowfall",
	80: "Rain showers",
	81: "Rain showers",
	82: "Heavy rain showers",
	95: "Thunderstorm",
	96: "Thunderstorm with hail",
	99: "Thunderstorm with hail",
}

// Describe maps a WMO weather code to a label.
func Describe(code int) string {
	if d, ok := descriptions[code]; ok {
		return d
	}
	return "Unknown"
}

// Error is a weather provider error.
type Error struct {
	Provider string
	Code     string
	Message  string
	Err      error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return e.Message + ": " + e.Err.Error()
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}
