package handler

import (
	"net/http"

	"github.com/mradl/mradl/internal/api/models"
	"github.com/mradl/mradl/internal/api/response"
	"github.com/mradl/mradl/internal/report"
	"github.com/mradl/mradl/internal/routing"
	"github.com/mradl/mradl/internal/trip"
	"github.com/mradl/mradl/internal/weather"
)

// MetadataHandler handles metadata endpoints.
type MetadataHandler struct{}

// NewMetadataHandler creates a new MetadataHandler.
func NewMetadataHandler() *MetadataHandler {
	return &MetadataHandler{}
}

// GetEnums handles GET /v1/metadata/enums - get enum values used by the API.
func (h *MetadataHandler) GetEnums(w http.ResponseWriter, r *http.Request) {
	enums := models.Enums{
		ReportCategories: []string{
			string(report.CategoryTheft),
			string(report.CategoryRack),
			string(report.CategoryRepair),
		},
		TripRoles: []string{
			string(trip.RoleIdle),
			string(trip.RoleSharing),
			string(trip.RoleWatching),
		},
		CyclingConditions: []string{
			string(weather.ConditionGood),
			string(weather.ConditionModerate),
			string(weather.ConditionBad),
		},
	}
	for _, m := range routing.Modes {
		enums.SafetyModes = append(enums.SafetyModes, string(m))
	}
	for _, c := range report.Collections {
		enums.ReportCollections = append(enums.ReportCollections, string(c))
	}

	w.Header().Set("Cache-Control", "public, max-age=3600")
	response.JSON(w, r, http.StatusOK, enums)
}
