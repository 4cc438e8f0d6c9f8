package handler

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/mradl/mradl/internal/api/models"
	"github.com/mradl/mradl/internal/api/response"
	"github.com/mradl/mradl/internal/geo"
	"github.com/mradl/mradl/internal/report"
	"github.com/mradl/mradl/internal/telemetry"
)

// ReportService stores and lists crowd reports.
type ReportService interface {
	Submit(ctx context.Context, sub report.Submission) (report.Report, error)
	List(ctx context.Context, collection report.Collection) ([]report.Report, error)
}

// DangerZoneSource is the live danger zone set.
type DangerZoneSource interface {
	Zones() []report.Report
	Nearest(c geo.Coordinate) (report.Report, float64, bool)
}

// ReportHandler handles report and danger zone endpoints.
type ReportHandler struct {
	service ReportService
	zones   DangerZoneSource
	metrics *telemetry.DomainMetrics
	logger  zerolog.Logger
}

// NewReportHandler creates a new ReportHandler. metrics may be nil.
func NewReportHandler(service ReportService, zones DangerZoneSource, metrics *telemetry.DomainMetrics, logger zerolog.Logger) *ReportHandler {
	return &ReportHandler{service: service, zones: zones, metrics: metrics, logger: logger}
}

// SubmitReport handles POST /v1/reports.
func (h *ReportHandler) SubmitReport(w http.ResponseWriter, r *http.Request) {
	var req models.SubmitReportRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	rep, err := h.service.Submit(r.Context(), report.Submission{
		Category: report.Category(req.Category),
		Lat:      req.Lat,
		Lng:      req.Lng,
		Reporter: riderID(r),
	})
	switch {
	case err == nil:
	case errors.Is(err, report.ErrUnknownCategory), errors.Is(err, report.ErrInvalidSubmission):
		response.BadRequest(w, r, err.Error(), nil)
		return
	default:
		response.ServiceUnavailable(w, r, "report could not be saved, please try again")
		return
	}
	h.metrics.ReportSubmitted(r.Context(), string(rep.Collection))

	response.Created(w, r, "/v1/reports/"+string(rep.Collection), toReport(rep))
}

// ListReports handles GET /v1/reports/{collection}.
func (h *ReportHandler) ListReports(w http.ResponseWriter, r *http.Request) {
	collection, err := report.ParseCollection(chi.URLParam(r, "collection"))
	if err != nil {
		response.NotFound(w, r, "unknown report collection")
		return
	}

	reports, err := h.service.List(r.Context(), collection)
	if err != nil {
		response.ServiceUnavailable(w, r, "reports are temporarily unavailable")
		return
	}

	list := models.ReportList{Collection: string(collection), Items: make([]models.Report, 0, len(reports))}
	for _, rep := range reports {
		list.Items = append(list.Items, toReport(rep))
	}
	response.JSON(w, r, http.StatusOK, list)
}

// DangerZones handles GET /v1/danger-zones. With lat and lng query
// parameters the nearest zone to that position is included.
func (h *ReportHandler) DangerZones(w http.ResponseWriter, r *http.Request) {
	zones := h.zones.Zones()
	out := models.DangerZones{Items: make([]models.Report, 0, len(zones)), Count: len(zones)}
	for _, z := range zones {
		out.Items = append(out.Items, toReport(z))
	}

	q := r.URL.Query()
	if q.Has("lat") || q.Has("lng") {
		at, err := parseCoordinate(q.Get("lat"), q.Get("lng"))
		if err != nil {
			response.BadRequest(w, r, err.Error(), nil)
			return
		}
		if z, meters, ok := h.zones.Nearest(at); ok {
			out.Nearest = &models.NearestZone{Zone: toReport(z), DistanceMeters: meters}
		}
	}

	response.JSON(w, r, http.StatusOK, out)
}

func parseCoordinate(lat, lng string) (geo.Coordinate, error) {
	la, err := strconv.ParseFloat(lat, 64)
	if err != nil {
		return geo.Coordinate{}, errors.New("lat must be a number")
	}
	ln, err := strconv.ParseFloat(lng, 64)
	if err != nil {
		return geo.Coordinate{}, errors.New("lng must be a number")
	}
	c := geo.Coordinate{Lat: la, Lng: ln}
	if err := c.Validate(); err != nil {
		return geo.Coordinate{}, err
	}
	return c, nil
}

func toReport(rep report.Report) models.Report {
	return models.Report{
		ID:         rep.ID,
		Collection: string(rep.Collection),
		Lat:        rep.Lat,
		Lng:        rep.Lng,
		ReportedAt: models.Timestamp(rep.ReportedAt),
		Reporter:   rep.Reporter,
	}
}
