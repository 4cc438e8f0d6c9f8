package models

// SubmitReportRequest is the request body for POST /v1/reports.
type SubmitReportRequest struct {
	Category string  `json:"category" validate:"required"`
	Lat      float64 `json:"lat" validate:"latitude"`
	Lng      float64 `json:"lng" validate:"longitude"`
}

// Report is a stored crowd report.
type Report struct {
	ID         string    `json:"id"`
	Collection string    `json:"collection"`
	Lat        float64   `json:"lat"`
	Lng        float64   `json:"lng"`
	ReportedAt Timestamp `json:"reportedAt"`
	Reporter   string    `json:"reporter"`
}

// ReportList is a list of reports of one collection.
type ReportList struct {
	Collection string   `json:"collection"`
	Items      []Report `json:"items"`
}

// DangerZones is the current danger zone set.
type DangerZones struct {
	Items []Report `json:"items"`
	Count int      `json:"count"`
	// Nearest is set when the request carries a reference position.
	Nearest *NearestZone `json:"nearest,omitempty"`
}

// NearestZone is the closest danger zone to a reference position.
type NearestZone struct {
	Zone           Report  `json:"zone"`
	DistanceMeters float64 `json:"distanceMeters"`
}
