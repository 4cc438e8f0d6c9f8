package api_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"

	"github.com/mradl/mradl/internal/api"
	"github.com/mradl/mradl/internal/api/handler"
	"github.com/mradl/mradl/internal/api/models"
	"github.com/mradl/mradl/internal/auth"
	"github.com/mradl/mradl/internal/featureflags"
	"github.com/mradl/mradl/internal/geo"
	"github.com/mradl/mradl/internal/geocode"
	"github.com/mradl/mradl/internal/provider/resilience"
	"github.com/mradl/mradl/internal/report"
	"github.com/mradl/mradl/internal/routing"
	"github.com/mradl/mradl/internal/telemetry"
	"github.com/mradl/mradl/internal/trip"
	"github.com/mradl/mradl/internal/weather"
)

const testAdminKey = "ops-test-key"

type fakePlanner struct {
	err  error
	last routing.PlanRequest
	sels map[string]routing.Selection
}

func (p *fakePlanner) Plan(_ context.Context, req routing.PlanRequest) (routing.Selection, error) {
	p.last = req
	if p.err != nil {
		return routing.Selection{}, p.err
	}
	sel := routing.Selection{
		ID:       "sel-1",
		ClientID: req.ClientID,
		Mode:     req.Mode,
		Candidate: routing.Candidate{
			Profile:        routing.ProfilePaved,
			Points:         []geo.Coordinate{req.Origin, {Lat: 48.1500, Lng: 11.5900}},
			DistanceMeters: 1830.4,
			DurationMs:     412000,
		},
		Note:        "Lit route (calculating coverage...)",
		Origin:      req.Origin,
		Destination: geo.Coordinate{Lat: 48.1500, Lng: 11.5900},
		CreatedAt:   time.Now(),
	}
	if p.sels == nil {
		p.sels = make(map[string]routing.Selection)
	}
	p.sels[sel.ID] = sel
	return sel, nil
}

func (p *fakePlanner) Current(clientID string) (routing.Selection, error) {
	for _, sel := range p.sels {
		if sel.ClientID == clientID {
			return sel, nil
		}
	}
	return routing.Selection{}, routing.ErrSelectionNotFound
}

func (p *fakePlanner) Get(id string) (routing.Selection, error) {
	sel, ok := p.sels[id]
	if !ok {
		return routing.Selection{}, routing.ErrSelectionNotFound
	}
	return sel, nil
}

type fakeWeather struct {
	err error
	at  geo.Coordinate
}

func (f *fakeWeather) Conditions(_ context.Context, at geo.Coordinate) (*weather.Conditions, error) {
	f.at = at
	if f.err != nil {
		return nil, f.err
	}
	return &weather.Conditions{
		Observation: &weather.Observation{
			Location:        at,
			TemperatureC:    18.5,
			PrecipitationMM: 0.4,
			WindSpeedKmh:    12,
			WeatherCode:     61,
			IsDay:           true,
			ObservedAt:      time.Now(),
		},
		Cycling: weather.ConditionModerate,
	}, nil
}

type testEnv struct {
	router   http.Handler
	auth     *auth.Service
	planner  *fakePlanner
	weather  *fakeWeather
	reports  *report.MemoryStore
	registry *report.Registry
	metrics  *sdkmetric.ManualReader
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	logger := zerolog.New(io.Discard)

	authService := auth.NewService(auth.ServiceConfig{
		JWTService: auth.NewJWTService(auth.JWTConfig{
			SigningKey: "test-secret-key-for-testing-only",
			Issuer:     "https://api.mradl.de",
			Audience:   "mradl-api",
		}),
		RefreshStore: auth.NewInMemoryRefreshTokenStore(),
		Logger:       logger,
	})

	reports := report.NewMemoryStore()
	registry := report.NewRegistry(reports, logger)
	require.NoError(t, registry.Start(context.Background()))
	t.Cleanup(registry.Close)

	flags := featureflags.NewService(featureflags.ServiceConfig{
		Store:  featureflags.NewMemoryStore(),
		Logger: logger,
	})

	controller := trip.NewController(trip.ControllerConfig{
		Store:      trip.NewMemoryStore(time.Now),
		Zones:      registry,
		Thresholds: flags,
		Logger:     logger,
	})
	t.Cleanup(controller.Close)

	providers := resilience.NewRegistry()
	resilience.NewClient(resilience.ClientConfig{Name: "graphhopper", Registry: providers})

	reader := sdkmetric.NewManualReader()
	domainMetrics, err := telemetry.NewDomainMetrics(sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader)).Meter("test"))
	require.NoError(t, err)

	env := &testEnv{
		auth:     authService,
		planner:  &fakePlanner{},
		weather:  &fakeWeather{},
		reports:  reports,
		registry: registry,
		metrics:  reader,
	}
	env.router = api.NewRouter(api.RouterConfig{
		Version:          "test",
		BuildTime:        "2024-01-01T00:00:00Z",
		Logger:           logger,
		AuthService:      authService,
		RoutePlanner:     env.planner,
		ReportService:    report.NewService(report.ServiceConfig{Store: reports, Logger: logger}),
		DangerZones:      registry,
		TripController:   controller,
		WeatherService:   env.weather,
		FlagService:      flags,
		DomainMetrics:    domainMetrics,
		ProviderRegistry: providers,
		ReadinessChecks: map[string]handler.ReadinessCheck{
			"registry": func(context.Context) error { return nil },
		},
		AdminAPIKeys: []string{testAdminKey},
	})
	return env
}

// signIn returns a bearer token for a fresh anonymous rider.
func (e *testEnv) signIn(t *testing.T) (token, userID string) {
	t.Helper()
	resp, err := e.auth.SignInAnonymously(context.Background())
	require.NoError(t, err)
	return resp.AccessToken, resp.User.ID
}

func (e *testEnv) do(t *testing.T, method, path, token string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var rdr io.Reader = http.NoBody
	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(t, err)
		rdr = bytes.NewReader(b)
	}
	req := httptest.NewRequest(method, path, rdr)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder, v interface{}) {
	t.Helper()
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), v), w.Body.String())
}

func TestRouter_HealthCheck(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(t, http.MethodGet, "/v1/ops/health", "", nil)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "application/json", w.Header().Get("Content-Type"))
	assert.NotEmpty(t, w.Header().Get("X-Request-Id"))

	var health models.Health
	decode(t, w, &health)
	assert.Equal(t, models.HealthStatusOK, health.Status)
	assert.Equal(t, "test", health.Details["version"])
}

func TestRouter_ReadinessCheck(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(t, http.MethodGet, "/v1/ops/ready", "", nil)

	assert.Equal(t, http.StatusOK, w.Code)
	var health models.Health
	decode(t, w, &health)
	assert.Equal(t, models.HealthStatusOK, health.Status)
}

func TestRouter_ReadinessCheck_Failing(t *testing.T) {
	router := api.NewRouter(api.RouterConfig{
		Logger: zerolog.Nop(),
		ReadinessChecks: map[string]handler.ReadinessCheck{
			"postgres": func(context.Context) error { return errors.New("connection refused") },
			"redis":    func(context.Context) error { return nil },
		},
	})

	req := httptest.NewRequest(http.MethodGet, "/v1/ops/ready", http.NoBody)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	var health models.Health
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &health))
	assert.Equal(t, models.HealthStatusFail, health.Status)
	assert.Equal(t, "connection refused", health.Details["postgres"])
	assert.NotContains(t, health.Details, "redis")
}

func TestRouter_SystemStatus(t *testing.T) {
	env := newTestEnv(t)
	token, _ := env.signIn(t)

	assert.Equal(t, http.StatusUnauthorized, env.do(t, http.MethodGet, "/v1/ops/status", "", nil).Code)

	w := env.do(t, http.MethodGet, "/v1/ops/status", token, nil)
	assert.Equal(t, http.StatusOK, w.Code)

	var status models.SystemStatus
	decode(t, w, &status)
	assert.Equal(t, models.HealthStatusOK, status.Status)
	require.Len(t, status.Subsystems, 1)
	assert.Equal(t, "registry", status.Subsystems[0].Name)
	assert.GreaterOrEqual(t, status.Subsystems[0].LatencyMs, int64(0))

	require.Len(t, status.Providers, 1)
	assert.Equal(t, "graphhopper", status.Providers[0].Provider)
	assert.Equal(t, models.HealthStatusOK, status.Providers[0].Status)
	assert.Equal(t, "closed", status.Providers[0].CircuitState)
	assert.Empty(t, status.ActiveDegradationFlags)
}

func TestRouter_GetEnums(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(t, http.MethodGet, "/v1/metadata/enums", "", nil)
	assert.Equal(t, http.StatusOK, w.Code)

	var enums models.Enums
	decode(t, w, &enums)
	assert.Equal(t, []string{"SAFE_LIT", "COOL_SHADED", "DIRECT"}, enums.SafetyModes)
	assert.Equal(t, []string{"report_theft", "add_rack", "repair"}, enums.ReportCategories)
	assert.Equal(t, []string{"theft_reports", "bike_racks", "repair_stations"}, enums.ReportCollections)
	assert.Contains(t, enums.TripRoles, "WATCHING")
}

func TestRouter_AnonymousSignInAndRefresh(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(t, http.MethodPost, "/v1/auth/anonymous", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var tokens auth.TokenResponse
	decode(t, w, &tokens)
	assert.NotEmpty(t, tokens.AccessToken)
	assert.NotEmpty(t, tokens.RefreshToken)

	w = env.do(t, http.MethodPost, "/v1/auth/refresh", "", map[string]string{"refreshToken": tokens.RefreshToken})
	require.Equal(t, http.StatusOK, w.Code)
	var rotated auth.TokenResponse
	decode(t, w, &rotated)
	assert.NotEqual(t, tokens.RefreshToken, rotated.RefreshToken)
	assert.Equal(t, tokens.User.ID, rotated.User.ID)

	// The old refresh token was consumed.
	w = env.do(t, http.MethodPost, "/v1/auth/refresh", "", map[string]string{"refreshToken": tokens.RefreshToken})
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestRouter_RequiresAuth(t *testing.T) {
	env := newTestEnv(t)

	paths := []struct{ method, path string }{
		{http.MethodPost, "/v1/routes:plan"},
		{http.MethodGet, "/v1/routes/current"},
		{http.MethodPost, "/v1/reports"},
		{http.MethodGet, "/v1/danger-zones"},
		{http.MethodPost, "/v1/trips"},
		{http.MethodGet, "/v1/trips/current"},
		{http.MethodGet, "/v1/weather"},
	}
	for _, p := range paths {
		t.Run(p.method+" "+p.path, func(t *testing.T) {
			w := env.do(t, p.method, p.path, "", nil)
			assert.Equal(t, http.StatusUnauthorized, w.Code)
			assert.Equal(t, "application/problem+json", w.Header().Get("Content-Type"))
		})
	}
}

func TestRouter_PlanRoute(t *testing.T) {
	env := newTestEnv(t)
	token, userID := env.signIn(t)

	w := env.do(t, http.MethodPost, "/v1/routes:plan", token, models.PlanRouteRequest{
		Origin:      models.Point{Lat: 48.1351, Lng: 11.5820},
		Destination: "Englischer Garten",
		Mode:        "SAFE_LIT",
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var sel models.RouteSelection
	decode(t, w, &sel)
	assert.Equal(t, "sel-1", sel.ID)
	assert.Equal(t, "SAFE_LIT", sel.Mode)
	assert.Equal(t, "PAVED", sel.Profile)
	assert.Equal(t, 1830, sel.DistanceMeters)
	assert.Equal(t, 412, sel.DurationSeconds)
	assert.NotEmpty(t, sel.Polyline)
	assert.False(t, sel.NoteFinal)

	assert.Equal(t, userID, env.planner.last.ClientID)
	assert.Equal(t, "Englischer Garten", env.planner.last.Destination)
	assert.Equal(t, routing.ModeSafeLit, env.planner.last.Mode)

	w = env.do(t, http.MethodGet, "/v1/routes/current", token, nil)
	assert.Equal(t, http.StatusOK, w.Code)

	w = env.do(t, http.MethodGet, "/v1/routes/sel-1", token, nil)
	assert.Equal(t, http.StatusOK, w.Code)

	// Another rider cannot read the selection.
	other, _ := env.signIn(t)
	w = env.do(t, http.MethodGet, "/v1/routes/sel-1", other, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
	w = env.do(t, http.MethodGet, "/v1/routes/current", other, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	assert.Equal(t, int64(1), env.counter(t, "mradl.routes.planned"))
}

// counter sums every data point of an int64 counter.
func (e *testEnv) counter(t *testing.T, name string) int64 {
	t.Helper()
	var rm metricdata.ResourceMetrics
	require.NoError(t, e.metrics.Collect(context.Background(), &rm))

	var total int64
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			if m.Name != name {
				continue
			}
			sum, ok := m.Data.(metricdata.Sum[int64])
			require.True(t, ok)
			for _, dp := range sum.DataPoints {
				total += dp.Value
			}
		}
	}
	return total
}

func TestRouter_PlanRoute_Errors(t *testing.T) {
	tests := []struct {
		name string
		err  error
		body models.PlanRouteRequest
		want int
	}{
		{
			name: "unknown mode",
			body: models.PlanRouteRequest{Origin: models.Point{Lat: 48.1, Lng: 11.5}, Destination: "Marienplatz", Mode: "SCENIC"},
			want: http.StatusBadRequest,
		},
		{
			name: "missing destination",
			body: models.PlanRouteRequest{Origin: models.Point{Lat: 48.1, Lng: 11.5}, Mode: "DIRECT"},
			want: http.StatusBadRequest,
		},
		{
			name: "origin out of range",
			body: models.PlanRouteRequest{Origin: models.Point{Lat: 148.1, Lng: 11.5}, Destination: "Marienplatz", Mode: "DIRECT"},
			want: http.StatusBadRequest,
		},
		{
			name: "destination not found",
			err:  geocode.ErrNotFound,
			body: models.PlanRouteRequest{Origin: models.Point{Lat: 48.1, Lng: 11.5}, Destination: "Atlantis", Mode: "DIRECT"},
			want: http.StatusNotFound,
		},
		{
			name: "no route",
			err:  routing.ErrNoRoute,
			body: models.PlanRouteRequest{Origin: models.Point{Lat: 48.1, Lng: 11.5}, Destination: "Marienplatz", Mode: "DIRECT"},
			want: http.StatusUnprocessableEntity,
		},
		{
			name: "provider down",
			err:  &routing.Error{Provider: "graphhopper", Code: "HTTP_503", Err: routing.ErrProviderUnavailable},
			body: models.PlanRouteRequest{Origin: models.Point{Lat: 48.1, Lng: 11.5}, Destination: "Marienplatz", Mode: "DIRECT"},
			want: http.StatusServiceUnavailable,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t)
			env.planner.err = tt.err
			token, _ := env.signIn(t)

			w := env.do(t, http.MethodPost, "/v1/routes:plan", token, tt.body)
			assert.Equal(t, tt.want, w.Code, w.Body.String())
			assert.Equal(t, "application/problem+json", w.Header().Get("Content-Type"))
		})
	}
}

func TestRouter_Reports(t *testing.T) {
	env := newTestEnv(t)
	token, userID := env.signIn(t)

	w := env.do(t, http.MethodPost, "/v1/reports", token, models.SubmitReportRequest{
		Category: "report_theft", Lat: 48.1372, Lng: 11.5755,
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	assert.Equal(t, "/v1/reports/theft_reports", w.Header().Get("Location"))

	var created models.Report
	decode(t, w, &created)
	assert.Equal(t, "theft_reports", created.Collection)
	assert.Equal(t, userID, created.Reporter)

	w = env.do(t, http.MethodGet, "/v1/reports/theft_reports", token, nil)
	require.Equal(t, http.StatusOK, w.Code)
	var list models.ReportList
	decode(t, w, &list)
	require.Len(t, list.Items, 1)
	assert.Equal(t, created.ID, list.Items[0].ID)

	w = env.do(t, http.MethodGet, "/v1/reports/bike_racks", token, nil)
	require.Equal(t, http.StatusOK, w.Code)
	decode(t, w, &list)
	assert.Empty(t, list.Items)

	w = env.do(t, http.MethodGet, "/v1/reports/parking", token, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = env.do(t, http.MethodPost, "/v1/reports", token, models.SubmitReportRequest{Category: "graffiti", Lat: 48.1, Lng: 11.5})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	assert.Equal(t, int64(1), env.counter(t, "mradl.reports.submitted"))
}

func TestRouter_DangerZones(t *testing.T) {
	env := newTestEnv(t)
	token, _ := env.signIn(t)

	_, err := env.reports.Insert(context.Background(), report.CollectionTheft, 48.1372, 11.5755, "usr_a")
	require.NoError(t, err)
	_, err = env.reports.Insert(context.Background(), report.CollectionRacks, 48.1400, 11.5800, "usr_b")
	require.NoError(t, err)

	w := env.do(t, http.MethodGet, "/v1/danger-zones", token, nil)
	require.Equal(t, http.StatusOK, w.Code)
	var zones models.DangerZones
	decode(t, w, &zones)
	assert.Equal(t, 1, zones.Count)
	assert.Nil(t, zones.Nearest)

	w = env.do(t, http.MethodGet, "/v1/danger-zones?lat=48.1373&lng=11.5755", token, nil)
	require.Equal(t, http.StatusOK, w.Code)
	decode(t, w, &zones)
	require.NotNil(t, zones.Nearest)
	assert.InDelta(t, 11.1, zones.Nearest.DistanceMeters, 0.5)

	w = env.do(t, http.MethodGet, "/v1/danger-zones?lat=north&lng=11.5", token, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestRouter_TripSharingAndWatching(t *testing.T) {
	env := newTestEnv(t)
	rider, _ := env.signIn(t)
	watcher, _ := env.signIn(t)

	w := env.do(t, http.MethodGet, "/v1/trips/current", rider, nil)
	require.Equal(t, http.StatusOK, w.Code)
	var status models.TripStatus
	decode(t, w, &status)
	assert.Equal(t, "IDLE", status.Role)

	w = env.do(t, http.MethodPost, "/v1/trips", rider, models.StartTripRequest{
		Location: models.Point{Lat: 48.1351, Lng: 11.5820},
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	decode(t, w, &status)
	assert.Equal(t, "SHARING", status.Role)
	require.Len(t, status.Code, trip.CodeLength)
	code := status.Code

	w = env.do(t, http.MethodPut, "/v1/trips/current/location", rider, models.UpdateLocationRequest{
		Location: models.Point{Lat: 48.1360, Lng: 11.5830},
	})
	assert.Equal(t, http.StatusNoContent, w.Code)

	w = env.do(t, http.MethodPost, "/v1/watches", watcher, models.StartWatchRequest{Code: code})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	decode(t, w, &status)
	assert.Equal(t, "WATCHING", status.Role)
	require.NotNil(t, status.Session)
	require.NotNil(t, status.Alarm)
	assert.False(t, status.Alarm.IsDangerAlert)
	assert.Equal(t, int64(2), env.counter(t, "mradl.trips.started"))

	// Updating a position while not sharing conflicts.
	w = env.do(t, http.MethodPut, "/v1/trips/current/location", watcher, models.UpdateLocationRequest{
		Location: models.Point{Lat: 48.1360, Lng: 11.5830},
	})
	assert.Equal(t, http.StatusConflict, w.Code)

	w = env.do(t, http.MethodDelete, "/v1/trips/current", rider, nil)
	assert.Equal(t, http.StatusNoContent, w.Code)

	w = env.do(t, http.MethodGet, "/v1/trips/current", rider, nil)
	decode(t, w, &status)
	assert.Equal(t, "IDLE", status.Role)

	// The session is gone once the rider stops.
	other, _ := env.signIn(t)
	w = env.do(t, http.MethodPost, "/v1/watches", other, models.StartWatchRequest{Code: code})
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestRouter_StartWatching_InvalidCode(t *testing.T) {
	env := newTestEnv(t)
	token, _ := env.signIn(t)

	for _, code := range []string{"", "ab", "abc-12"} {
		w := env.do(t, http.MethodPost, "/v1/watches", token, models.StartWatchRequest{Code: code})
		assert.Equal(t, http.StatusBadRequest, w.Code, code)
	}
}

func TestRouter_Weather(t *testing.T) {
	env := newTestEnv(t)
	token, _ := env.signIn(t)

	w := env.do(t, http.MethodGet, "/v1/weather", token, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, geo.Munich, env.weather.at)

	var got models.Weather
	decode(t, w, &got)
	assert.Equal(t, "MODERATE", got.Cycling)
	assert.Equal(t, "Light rain", got.Description)

	w = env.do(t, http.MethodGet, "/v1/weather?lat=48.2&lng=11.6", token, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, geo.Coordinate{Lat: 48.2, Lng: 11.6}, env.weather.at)

	w = env.do(t, http.MethodGet, "/v1/weather?lat=95&lng=11.6", token, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	env.weather.err = weather.ErrProviderUnavailable
	w = env.do(t, http.MethodGet, "/v1/weather", token, nil)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestRouter_AdminFeatureFlags(t *testing.T) {
	env := newTestEnv(t)
	token, _ := env.signIn(t)

	adminReq := func(method, path string, body interface{}, key string) *httptest.ResponseRecorder {
		var rdr io.Reader = http.NoBody
		if body != nil {
			b, _ := json.Marshal(body)
			rdr = bytes.NewReader(b)
		}
		req := httptest.NewRequest(method, path, rdr)
		req.Header.Set("Authorization", "Bearer "+token)
		if key != "" {
			req.Header.Set("X-API-Key", key)
		}
		w := httptest.NewRecorder()
		env.router.ServeHTTP(w, req)
		return w
	}

	// A rider token is not enough.
	assert.Equal(t, http.StatusUnauthorized, adminReq(http.MethodGet, "/v1/admin/feature-flags", nil, "").Code)
	assert.Equal(t, http.StatusForbidden, adminReq(http.MethodGet, "/v1/admin/feature-flags", nil, "nope").Code)

	w := adminReq(http.MethodGet, "/v1/admin/feature-flags", nil, testAdminKey)
	require.Equal(t, http.StatusOK, w.Code)
	var flags models.FeatureFlags
	decode(t, w, &flags)
	require.NotEmpty(t, flags.Flags)
	assert.Equal(t, featureflags.FlagAlarmStaleThresholdSeconds, flags.Flags[0].Key)

	w = adminReq(http.MethodPut, "/v1/admin/feature-flags", models.UpsertFeatureFlagsRequest{
		Flags: map[string]any{featureflags.FlagCoverageClampMax: 150},
	}, testAdminKey)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = adminReq(http.MethodPut, "/v1/admin/feature-flags", models.UpsertFeatureFlagsRequest{
		Flags: map[string]any{featureflags.FlagAlarmStaleThresholdSeconds: 90},
	}, testAdminKey)
	assert.Equal(t, http.StatusNoContent, w.Code)

	w = adminReq(http.MethodGet, "/v1/admin/feature-flags", nil, testAdminKey)
	decode(t, w, &flags)
	assert.Equal(t, float64(90), flags.Flags[0].Value)

	w = adminReq(http.MethodPost, "/v1/admin/feature-flags/invalidate", nil, testAdminKey)
	assert.Equal(t, http.StatusNoContent, w.Code)
}

func TestRouter_NotFound(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(t, http.MethodGet, "/v1/nonexistent", "", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestRouter_RejectsNonJSONBody(t *testing.T) {
	env := newTestEnv(t)
	rider, _ := env.signIn(t)

	req := httptest.NewRequest(http.MethodPost, "/v1/reports", strings.NewReader("category=repair"))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Authorization", "Bearer "+rider)
	w := httptest.NewRecorder()
	env.router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusUnsupportedMediaType, w.Code)
	assert.Equal(t, "application/problem+json", w.Header().Get("Content-Type"))
}

func TestRouter_RequireTLS(t *testing.T) {
	router := api.NewRouter(api.RouterConfig{Logger: zerolog.Nop(), RequireTLS: true})

	req := httptest.NewRequest(http.MethodGet, "/v1/metadata/enums", http.NoBody)
	req.Header.Set("X-Forwarded-Proto", "http")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusForbidden, w.Code)

	req = httptest.NewRequest(http.MethodGet, "/v1/ops/health", http.NoBody)
	req.Header.Set("X-Forwarded-Proto", "http")
	w = httptest.NewRecorder()
	router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)
}
