package handler

import (
	"context"
	"errors"
	"net/http"

	"github.com/rs/zerolog"

	"github.com/mradl/mradl/internal/api/models"
	"github.com/mradl/mradl/internal/api/response"
	"github.com/mradl/mradl/internal/featureflags"
)

// FlagService reads and writes runtime flags.
type FlagService interface {
	Flags(ctx context.Context) []featureflags.Flag
	Update(ctx context.Context, values map[string]any) error
	Invalidate()
}

// FeatureFlagsHandler handles feature flag endpoints.
type FeatureFlagsHandler struct {
	service FlagService
	logger  zerolog.Logger
}

// NewFeatureFlagsHandler creates a new FeatureFlagsHandler.
func NewFeatureFlagsHandler(service FlagService, logger zerolog.Logger) *FeatureFlagsHandler {
	return &FeatureFlagsHandler{service: service, logger: logger}
}

// ListFeatureFlags handles GET /v1/admin/feature-flags - list all feature flags.
func (h *FeatureFlagsHandler) ListFeatureFlags(w http.ResponseWriter, r *http.Request) {
	flags := h.service.Flags(r.Context())

	out := models.FeatureFlags{Flags: make([]models.FeatureFlag, len(flags))}
	for i, f := range flags {
		out.Flags[i] = models.FeatureFlag{Key: f.Key, Value: f.Value}
		if !f.UpdatedAt.IsZero() {
			ts := models.Timestamp(f.UpdatedAt)
			out.Flags[i].UpdatedAt = &ts
		}
	}

	response.JSON(w, r, http.StatusOK, out)
}

// UpsertFeatureFlags handles PUT /v1/admin/feature-flags - update feature flags.
func (h *FeatureFlagsHandler) UpsertFeatureFlags(w http.ResponseWriter, r *http.Request) {
	var req models.UpsertFeatureFlagsRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	if err := h.service.Update(r.Context(), req.Flags); err != nil {
		var verr *featureflags.ValidationError
		if errors.As(err, &verr) {
			response.BadRequest(w, r, "invalid feature flag", []models.FieldError{{
				Field:   "flags." + verr.Key,
				Message: verr.Reason,
				Code:    "INVALID_VALUE",
			}})
			return
		}
		h.logger.Error().Err(err).Msg("failed to update feature flags")
		response.ServiceUnavailable(w, r, "feature flags could not be saved")
		return
	}

	response.NoContent(w, r)
}

// InvalidateCache handles POST /v1/admin/feature-flags/invalidate - invalidate flag cache.
func (h *FeatureFlagsHandler) InvalidateCache(w http.ResponseWriter, r *http.Request) {
	h.service.Invalidate()
	response.NoContent(w, r)
}
