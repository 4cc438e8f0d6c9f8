package models

// PlanRouteRequest is the request body for POST /v1/routes:plan.
type PlanRouteRequest struct {
	Origin      Point  `json:"origin"`
	Destination string `json:"destination" validate:"required,max=200"`
	Mode        string `json:"mode" validate:"required,oneof=SAFE_LIT COOL_SHADED DIRECT"`
}

// RouteSelection is the route chosen for a safety mode.
type RouteSelection struct {
	ID              string    `json:"id"`
	Mode            string    `json:"mode"`
	Profile         string    `json:"profile"`
	Note            string    `json:"note"`
	NoteFinal       bool      `json:"noteFinal"`
	Fallback        bool      `json:"fallback"`
	DistanceMeters  int       `json:"distanceMeters"`
	DurationSeconds int       `json:"durationSeconds"`
	Origin          Point     `json:"origin"`
	Destination     Point     `json:"destination"`
	Polyline        string    `json:"polyline"`
	CreatedAt       Timestamp `json:"createdAt"`
}
