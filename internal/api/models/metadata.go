package models

// Enums represents the enum values used by the API.
type Enums struct {
	SafetyModes       []string `json:"safetyModes"`
	ReportCategories  []string `json:"reportCategories"`
	ReportCollections []string `json:"reportCollections"`
	TripRoles         []string `json:"tripRoles"`
	CyclingConditions []string `json:"cyclingConditions"`
}
