package handler

import (
	"context"
	"errors"
	"net/http"

	"github.com/rs/zerolog"

	"github.com/mradl/mradl/internal/api/models"
	"github.com/mradl/mradl/internal/api/response"
	"github.com/mradl/mradl/internal/geo"
	"github.com/mradl/mradl/internal/telemetry"
	"github.com/mradl/mradl/internal/trip"
)

// TripController drives trip sharing and watching for each client.
type TripController interface {
	StartSharing(ctx context.Context, clientID string, loc geo.Coordinate) (trip.Session, error)
	UpdateLocation(clientID string, loc geo.Coordinate) error
	StartWatching(ctx context.Context, clientID, code string) (trip.View, error)
	Status(clientID string) trip.View
	Stop(clientID string)
}

// TripHandler handles trip sharing endpoints.
type TripHandler struct {
	controller TripController
	metrics    *telemetry.DomainMetrics
	logger     zerolog.Logger
}

// NewTripHandler creates a new TripHandler. metrics may be nil.
func NewTripHandler(controller TripController, metrics *telemetry.DomainMetrics, logger zerolog.Logger) *TripHandler {
	return &TripHandler{controller: controller, metrics: metrics, logger: logger}
}

// StartSharing handles POST /v1/trips - start sharing the caller's position
// under a fresh trip code.
func (h *TripHandler) StartSharing(w http.ResponseWriter, r *http.Request) {
	var req models.StartTripRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	clientID := riderID(r)
	if _, err := h.controller.StartSharing(r.Context(), clientID, geo.Coordinate{Lat: req.Location.Lat, Lng: req.Location.Lng}); err != nil {
		h.writeError(w, r, err)
		return
	}
	h.metrics.TripStarted(r.Context(), string(trip.RoleSharing))

	response.Created(w, r, "/v1/trips/current", toTripStatus(h.controller.Status(clientID)))
}

// UpdateLocation handles PUT /v1/trips/current/location.
func (h *TripHandler) UpdateLocation(w http.ResponseWriter, r *http.Request) {
	var req models.UpdateLocationRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	if err := h.controller.UpdateLocation(riderID(r), geo.Coordinate{Lat: req.Location.Lat, Lng: req.Location.Lng}); err != nil {
		h.writeError(w, r, err)
		return
	}

	response.NoContent(w, r)
}

// StartWatching handles POST /v1/watches - follow a shared trip by code.
func (h *TripHandler) StartWatching(w http.ResponseWriter, r *http.Request) {
	var req models.StartWatchRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	view, err := h.controller.StartWatching(r.Context(), riderID(r), req.Code)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.metrics.TripStarted(r.Context(), string(trip.RoleWatching))

	response.JSON(w, r, http.StatusOK, toTripStatus(view))
}

// Status handles GET /v1/trips/current - the caller's role, session and alarm.
func (h *TripHandler) Status(w http.ResponseWriter, r *http.Request) {
	response.JSON(w, r, http.StatusOK, toTripStatus(h.controller.Status(riderID(r))))
}

// Stop handles DELETE /v1/trips/current - stop sharing or watching.
func (h *TripHandler) Stop(w http.ResponseWriter, r *http.Request) {
	h.controller.Stop(riderID(r))
	response.NoContent(w, r)
}

func (h *TripHandler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, trip.ErrInvalidCode), errors.Is(err, geo.ErrInvalidCoordinate):
		response.BadRequest(w, r, err.Error(), nil)
	case errors.Is(err, trip.ErrSessionNotFound):
		response.NotFound(w, r, "no active trip with this code")
	case errors.Is(err, trip.ErrNotSharing):
		response.Conflict(w, r, "not sharing a trip")
	case errors.Is(err, trip.ErrSuperseded):
		response.Conflict(w, r, "trip role changed while the request was in flight")
	default:
		h.logger.Error().Err(err).Msg("trip operation failed")
		response.ServiceUnavailable(w, r, "trip sharing is temporarily unavailable")
	}
}

func toTripStatus(v trip.View) models.TripStatus {
	out := models.TripStatus{Role: string(v.Role), Code: v.Code, Ended: v.Ended}
	if v.Location != nil {
		p := toPoint(v.Location.Lat, v.Location.Lng)
		out.Location = &p
	}
	if v.Session != nil {
		out.Session = &models.TripSession{
			Code:       v.Session.ID,
			Location:   toPoint(v.Session.Location.Lat, v.Session.Location.Lng),
			LastUpdate: models.Timestamp(v.Session.LastUpdate),
			StartedAt:  models.Timestamp(v.Session.StartedAt),
			Status:     v.Session.Status,
		}
	}
	if v.Alarm != nil {
		out.Alarm = &models.Alarm{
			IsDangerAlert: v.Alarm.IsDangerAlert,
			StaleSeconds:  int(v.Alarm.StaleFor.Seconds()),
			NearestZoneID: v.Alarm.NearestZoneID,
			EvaluatedAt:   models.Timestamp(v.Alarm.EvaluatedAt),
		}
	}
	return out
}
