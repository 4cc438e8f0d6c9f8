package response_test

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mradl/mradl/internal/api/middleware"
	"github.com/mradl/mradl/internal/api/models"
	"github.com/mradl/mradl/internal/api/response"
)

// serve runs write behind the RequestID middleware and returns the
// recorded response.
func serve(method, path string, write http.HandlerFunc) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	middleware.RequestID(write).ServeHTTP(rec, httptest.NewRequest(method, path, http.NoBody))
	return rec
}

func TestJSON(t *testing.T) {
	rec := serve(http.MethodGet, "/v1/weather", func(w http.ResponseWriter, r *http.Request) {
		response.JSON(w, r, http.StatusOK, map[string]float64{"temperatureC": 14.5})
	})

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	assert.Contains(t, rec.Header().Get(middleware.RequestIDHeader), "req_")
	assert.JSONEq(t, `{"temperatureC":14.5}`, rec.Body.String())
}

func TestJSON_NilDataWritesNoBody(t *testing.T) {
	rec := serve(http.MethodGet, "/v1/trips/current", func(w http.ResponseWriter, r *http.Request) {
		response.JSON(w, r, http.StatusAccepted, nil)
	})

	assert.Equal(t, http.StatusAccepted, rec.Code)
	assert.Empty(t, rec.Body.String())
}

func TestJSON_NoRequestIDOutsideMiddleware(t *testing.T) {
	rec := httptest.NewRecorder()
	response.JSON(rec, httptest.NewRequest(http.MethodGet, "/v1/weather", http.NoBody), http.StatusOK, struct{}{})

	assert.Empty(t, rec.Header().Get(middleware.RequestIDHeader))
}

func TestCreated(t *testing.T) {
	rec := serve(http.MethodPost, "/v1/reports", func(w http.ResponseWriter, r *http.Request) {
		response.Created(w, r, "/v1/reports/bike_racks", map[string]string{"id": "r1"})
	})

	assert.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, "/v1/reports/bike_racks", rec.Header().Get("Location"))
	assert.NotEmpty(t, rec.Header().Get(middleware.RequestIDHeader))
	assert.JSONEq(t, `{"id":"r1"}`, rec.Body.String())
}

func TestNoContent(t *testing.T) {
	rec := serve(http.MethodDelete, "/v1/trips/current", func(w http.ResponseWriter, r *http.Request) {
		response.NoContent(w, r)
	})

	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.NotEmpty(t, rec.Header().Get(middleware.RequestIDHeader))
	assert.Empty(t, rec.Body.String())
}

func TestProblems(t *testing.T) {
	tests := []struct {
		name   string
		write  func(w http.ResponseWriter, r *http.Request)
		status int
		typ    string
	}{
		{"bad request", func(w http.ResponseWriter, r *http.Request) {
			response.BadRequest(w, r, "invalid destination", []models.FieldError{{Field: "destination", Message: "required"}})
		}, http.StatusBadRequest, models.ProblemTypeValidation},
		{"unauthorized", func(w http.ResponseWriter, r *http.Request) {
			response.Unauthorized(w, r, "token expired")
		}, http.StatusUnauthorized, models.ProblemTypeUnauthorized},
		{"not found", func(w http.ResponseWriter, r *http.Request) {
			response.NotFound(w, r, "no such trip")
		}, http.StatusNotFound, models.ProblemTypeNotFound},
		{"conflict", func(w http.ResponseWriter, r *http.Request) {
			response.Conflict(w, r, "already sharing")
		}, http.StatusConflict, models.ProblemTypeConflict},
		{"no route", func(w http.ResponseWriter, r *http.Request) {
			response.NoRoute(w, r, "destination unreachable")
		}, http.StatusUnprocessableEntity, models.ProblemTypeNoRoute},
		{"internal", func(w http.ResponseWriter, r *http.Request) {
			response.InternalError(w, r, "boom")
		}, http.StatusInternalServerError, models.ProblemTypeInternal},
		{"unavailable", func(w http.ResponseWriter, r *http.Request) {
			response.ServiceUnavailable(w, r, "graphhopper down")
		}, http.StatusServiceUnavailable, models.ProblemTypeUnavailable},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := serve(http.MethodPost, "/v1/routes:plan", tt.write)

			assert.Equal(t, tt.status, rec.Code)
			assert.Equal(t, "application/problem+json", rec.Header().Get("Content-Type"))

			var problem models.Problem
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &problem))
			assert.Equal(t, tt.typ, problem.Type)
			assert.Equal(t, tt.status, problem.Status)
			assert.Equal(t, "/v1/routes:plan", problem.Instance)
			assert.Equal(t, rec.Header().Get(middleware.RequestIDHeader), problem.TraceID)
			assert.NotEmpty(t, problem.Detail)
		})
	}
}

func TestBadRequest_FieldErrors(t *testing.T) {
	rec := serve(http.MethodPost, "/v1/reports", func(w http.ResponseWriter, r *http.Request) {
		response.BadRequest(w, r, "invalid report", []models.FieldError{{Field: "lat", Message: "out of range", Code: "latitude"}})
	})

	var problem models.Problem
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &problem))
	require.Len(t, problem.Errors, 1)
	assert.Equal(t, models.FieldError{Field: "lat", Message: "out of range", Code: "latitude"}, problem.Errors[0])
}

func TestTooManyRequests_RetryAfter(t *testing.T) {
	tests := []struct {
		name       string
		retryAfter time.Duration
		want       string
	}{
		{"whole seconds", 30 * time.Second, "30"},
		{"rounds up", 2500 * time.Millisecond, "3"},
		{"unknown", 0, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := serve(http.MethodPost, "/v1/routes:plan", func(w http.ResponseWriter, r *http.Request) {
				response.TooManyRequests(w, r, "slow down", tt.retryAfter)
			})

			assert.Equal(t, http.StatusTooManyRequests, rec.Code)
			assert.Equal(t, tt.want, rec.Header().Get("Retry-After"))
		})
	}
}
