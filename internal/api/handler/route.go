package handler

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/mradl/mradl/internal/api/models"
	"github.com/mradl/mradl/internal/api/response"
	"github.com/mradl/mradl/internal/geo"
	"github.com/mradl/mradl/internal/geocode"
	"github.com/mradl/mradl/internal/routing"
	"github.com/mradl/mradl/internal/telemetry"
	"github.com/mradl/mradl/pkg/polyline"
)

// RoutePlanner plans routes and keeps each client's current selection.
type RoutePlanner interface {
	Plan(ctx context.Context, req routing.PlanRequest) (routing.Selection, error)
	Current(clientID string) (routing.Selection, error)
	Get(id string) (routing.Selection, error)
}

// RouteHandler handles route endpoints.
type RouteHandler struct {
	planner RoutePlanner
	metrics *telemetry.DomainMetrics
	logger  zerolog.Logger
}

// NewRouteHandler creates a new RouteHandler. metrics may be nil.
func NewRouteHandler(planner RoutePlanner, metrics *telemetry.DomainMetrics, logger zerolog.Logger) *RouteHandler {
	return &RouteHandler{planner: planner, metrics: metrics, logger: logger}
}

// PlanRoute handles POST /v1/routes:plan - geocode the destination and pick
// a route for the requested safety mode.
func (h *RouteHandler) PlanRoute(w http.ResponseWriter, r *http.Request) {
	var req models.PlanRouteRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	mode, err := routing.ParseMode(req.Mode)
	if err != nil {
		response.BadRequest(w, r, err.Error(), nil)
		return
	}

	start := time.Now()
	sel, err := h.planner.Plan(r.Context(), routing.PlanRequest{
		ClientID:    riderID(r),
		Origin:      geo.Coordinate{Lat: req.Origin.Lat, Lng: req.Origin.Lng},
		Destination: req.Destination,
		Mode:        mode,
	})
	if err != nil {
		outcome := telemetry.OutcomeError
		if errors.Is(err, routing.ErrNoRoute) {
			outcome = telemetry.OutcomeNoRoute
		}
		h.metrics.RoutePlanned(r.Context(), string(mode), "", outcome, time.Since(start))
		h.writePlanError(w, r, err)
		return
	}
	h.metrics.RoutePlanned(r.Context(), string(mode), string(sel.Candidate.Profile), telemetry.OutcomeOK, time.Since(start))

	response.JSON(w, r, http.StatusOK, toRouteSelection(sel))
}

// CurrentRoute handles GET /v1/routes/current - the caller's latest selection,
// including its coverage note once sampling finished.
func (h *RouteHandler) CurrentRoute(w http.ResponseWriter, r *http.Request) {
	sel, err := h.planner.Current(riderID(r))
	if err != nil {
		response.NotFound(w, r, "no route has been planned")
		return
	}
	response.JSON(w, r, http.StatusOK, toRouteSelection(sel))
}

// GetRoute handles GET /v1/routes/{selectionId}.
func (h *RouteHandler) GetRoute(w http.ResponseWriter, r *http.Request) {
	sel, err := h.planner.Get(chi.URLParam(r, "selectionId"))
	if err != nil || sel.ClientID != riderID(r) {
		response.NotFound(w, r, "route not found")
		return
	}
	response.JSON(w, r, http.StatusOK, toRouteSelection(sel))
}

func (h *RouteHandler) writePlanError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, geocode.ErrNotFound):
		response.NotFound(w, r, "destination could not be found")
	case errors.Is(err, geocode.ErrEmptyQuery),
		errors.Is(err, routing.ErrUnknownMode),
		errors.Is(err, routing.ErrInvalidCoordinates),
		errors.Is(err, geo.ErrInvalidCoordinate):
		response.BadRequest(w, r, err.Error(), nil)
	case errors.Is(err, routing.ErrNoRoute):
		response.NoRoute(w, r, "no route found between origin and destination")
	case errors.Is(err, routing.ErrRateLimitExceeded):
		response.TooManyRequests(w, r, "routing provider rate limit reached, try again shortly", 30*time.Second)
	default:
		h.logger.Error().Err(err).Msg("route planning failed")
		response.ServiceUnavailable(w, r, "route planning is temporarily unavailable")
	}
}

func toRouteSelection(sel routing.Selection) models.RouteSelection {
	return models.RouteSelection{
		ID:              sel.ID,
		Mode:            string(sel.Mode),
		Profile:         string(sel.Candidate.Profile),
		Note:            sel.Note,
		NoteFinal:       sel.NoteFinal,
		Fallback:        sel.Fallback,
		DistanceMeters:  int(sel.Candidate.DistanceMeters),
		DurationSeconds: int(sel.Candidate.DurationMs / 1000),
		Origin:          toPoint(sel.Origin.Lat, sel.Origin.Lng),
		Destination:     toPoint(sel.Destination.Lat, sel.Destination.Lng),
		Polyline:        polyline.Encode(sel.Candidate.Points),
		CreatedAt:       models.Timestamp(sel.CreatedAt),
	}
}
