package middleware_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"

	"github.com/mradl/mradl/internal/api/middleware"
)

func newMetrics(t *testing.T) (*middleware.Metrics, *sdkmetric.ManualReader) {
	t.Helper()
	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	t.Cleanup(func() { _ = mp.Shutdown(context.Background()) })

	metrics, err := middleware.NewMetrics(mp.Meter("test"))
	require.NoError(t, err)
	return metrics, reader
}

// requestRoutes returns http.route -> count from http.server.request.total.
func requestRoutes(t *testing.T, reader *sdkmetric.ManualReader) map[string]int64 {
	t.Helper()
	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(context.Background(), &rm))

	out := make(map[string]int64)
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			if m.Name != "http.server.request.total" {
				continue
			}
			for _, dp := range m.Data.(metricdata.Sum[int64]).DataPoints {
				route, _ := dp.Attributes.Value(attribute.Key("http.route"))
				status, _ := dp.Attributes.Value(attribute.Key("http.response.status_code"))
				out[route.AsString()+" "+status.Emit()] += dp.Value
			}
		}
	}
	return out
}

func TestMetrics_Middleware_RoutePattern(t *testing.T) {
	metrics, reader := newMetrics(t)

	r := chi.NewRouter()
	r.Use(metrics.Middleware())
	r.Get("/v1/routes/{selectionId}", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("{}"))
	})
	r.Get("/v1/reports/{collection}", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})

	for _, path := range []string{"/v1/routes/sel-1", "/v1/routes/sel-2", "/v1/reports/parking", "/v1/nowhere"} {
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, path, http.NoBody))
	}

	assert.Equal(t, map[string]int64{
		"/v1/routes/{selectionId} 200": 2,
		"/v1/reports/{collection} 404": 1,
		"unmatched 404":                1,
	}, requestRoutes(t, reader))
}

func TestMetrics_Middleware_PassesThrough(t *testing.T) {
	metrics, _ := newMetrics(t)

	tests := []struct {
		name   string
		status int
		write  bool
	}{
		{"created", http.StatusCreated, true},
		{"service unavailable", http.StatusServiceUnavailable, true},
		{"implicit ok", 0, true},
		{"no body", http.StatusNoContent, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			handler := metrics.Middleware()(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				if tt.status != 0 {
					w.WriteHeader(tt.status)
				}
				if tt.write {
					_, _ = w.Write([]byte(`{"type":"about:blank"}`))
				}
			}))

			w := httptest.NewRecorder()
			handler.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/v1/trips", http.NoBody))

			want := tt.status
			if want == 0 {
				want = http.StatusOK
			}
			assert.Equal(t, want, w.Code)
		})
	}
}
