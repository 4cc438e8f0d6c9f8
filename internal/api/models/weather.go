package models

// Weather is the current weather with a cycling assessment.
type Weather struct {
	Location        Point     `json:"location"`
	TemperatureC    float64   `json:"temperatureC"`
	HumidityPct     float64   `json:"humidityPct"`
	PrecipitationMM float64   `json:"precipitationMm"`
	WindSpeedKmh    float64   `json:"windSpeedKmh"`
	WeatherCode     int       `json:"weatherCode"`
	Description     string    `json:"description"`
	IsDay           bool      `json:"isDay"`
	Cycling         string    `json:"cycling"`
	Stale           bool      `json:"stale"`
	ObservedAt      Timestamp `json:"observedAt"`
}
