package models

// StartTripRequest is the request body for POST /v1/trips.
type StartTripRequest struct {
	Location Point `json:"location"`
}

// UpdateLocationRequest is the request body for PUT /v1/trips/current/location.
type UpdateLocationRequest struct {
	Location Point `json:"location"`
}

// StartWatchRequest is the request body for POST /v1/watches.
type StartWatchRequest struct {
	Code string `json:"code" validate:"required,min=6,max=8"`
}

// TripSession is a shared trip as stored.
type TripSession struct {
	Code       string    `json:"code"`
	Location   Point     `json:"location"`
	LastUpdate Timestamp `json:"lastUpdate"`
	StartedAt  Timestamp `json:"startedAt"`
	Status     string    `json:"status"`
}

// Alarm is the watcher's danger alarm.
type Alarm struct {
	IsDangerAlert bool      `json:"isDangerAlert"`
	StaleSeconds  int       `json:"staleSeconds"`
	NearestZoneID string    `json:"nearestZoneId,omitempty"`
	EvaluatedAt   Timestamp `json:"evaluatedAt"`
}

// TripStatus is the caller's current trip role and state.
type TripStatus struct {
	Role     string       `json:"role"`
	Code     string       `json:"code,omitempty"`
	Location *Point       `json:"location,omitempty"`
	Session  *TripSession `json:"session,omitempty"`
	Alarm    *Alarm       `json:"alarm,omitempty"`
	Ended    bool         `json:"ended,omitempty"`
}
