package routing_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/mradl/mradl/internal/geo"
	"github.com/mradl/mradl/internal/geocode"
	"github.com/mradl/mradl/internal/routing"
)

type fakeGeocoder struct {
	result geo.Coordinate
	err    error
}

func (f fakeGeocoder) Geocode(context.Context, string) (geo.Coordinate, error) {
	return f.result, f.err
}

// gatedSampler blocks until release is closed, then returns note.
type gatedSampler struct {
	release chan struct{}
	note    string
	err     error

	mu    sync.Mutex
	calls []routing.Mode
	boxes []geo.BoundingBox
}

func (s *gatedSampler) SampleNote(ctx context.Context, mode routing.Mode, _ []geo.Coordinate, bbox geo.BoundingBox) (string, error) {
	s.mu.Lock()
	s.calls = append(s.calls, mode)
	s.boxes = append(s.boxes, bbox)
	s.mu.Unlock()

	select {
	case <-s.release:
	case <-ctx.Done():
		return "", ctx.Err()
	}
	return s.note, s.err
}

func (s *gatedSampler) callCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.calls)
}

func routerWithAll(t *testing.T) *routing.Fetcher {
	router := newMockRouter(t)
	router.EXPECT().Route(gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ context.Context, req routing.Request) ([]routing.Candidate, error) {
			if req.Profile == routing.ProfilePavedAlt {
				return []routing.Candidate{candidate(req.Profile, 2200), candidate(req.Profile, 2500)}, nil
			}
			return []routing.Candidate{candidate(req.Profile, 2000)}, nil
		}).AnyTimes()
	return routing.NewFetcher(router, zerolog.Nop())
}

func newPlanner(t *testing.T, fetcher *routing.Fetcher, sampler routing.CoverageSampler) *routing.Planner {
	t.Helper()
	p := routing.NewPlanner(routing.PlannerConfig{
		Geocoder: fakeGeocoder{result: destination},
		Fetcher:  fetcher,
		Sampler:  sampler,
		Logger:   zerolog.Nop(),
	})
	t.Cleanup(p.Close)
	return p
}

func TestPlanner_Plan_ReturnsBeforeSampling(t *testing.T) {
	sampler := &gatedSampler{release: make(chan struct{}), note: "Lit coverage: 72%"}
	planner := newPlanner(t, routerWithAll(t), sampler)

	sel, err := planner.Plan(context.Background(), routing.PlanRequest{
		ClientID:    "usr_a",
		Origin:      origin,
		Destination: "Chinesischer Turm",
		Mode:        routing.ModeSafeLit,
	})
	require.NoError(t, err)

	assert.NotEmpty(t, sel.ID)
	assert.Equal(t, routing.NoteSafeLit, sel.Note)
	assert.False(t, sel.NoteFinal)
	assert.Equal(t, destination, sel.Destination)

	close(sampler.release)

	require.Eventually(t, func() bool {
		cur, err := planner.Current("usr_a")
		return err == nil && cur.NoteFinal
	}, time.Second, 10*time.Millisecond)

	cur, err := planner.Current("usr_a")
	require.NoError(t, err)
	assert.Equal(t, "Lit coverage: 72%", cur.Note)

	sampler.mu.Lock()
	bbox := sampler.boxes[0]
	sampler.mu.Unlock()
	assert.InDelta(t, origin.Lat-0.01, bbox.South, 1e-9)
	assert.InDelta(t, destination.Lat+0.01, bbox.North, 1e-9)
	assert.InDelta(t, origin.Lng-0.01, bbox.West, 1e-9)
	assert.InDelta(t, destination.Lng+0.01, bbox.East, 1e-9)
}

func TestPlanner_Plan_DirectDoesNotSample(t *testing.T) {
	sampler := &gatedSampler{release: make(chan struct{})}
	planner := newPlanner(t, routerWithAll(t), sampler)

	sel, err := planner.Plan(context.Background(), routing.PlanRequest{
		ClientID:    "usr_a",
		Origin:      origin,
		Destination: "Chinesischer Turm",
		Mode:        routing.ModeDirect,
	})
	require.NoError(t, err)

	assert.True(t, sel.NoteFinal)
	assert.Equal(t, routing.ProfileDirect, sel.Candidate.Profile)
	assert.Equal(t, 0, sampler.callCount())
}

func TestPlanner_Plan_SupersededSelectionKeepsNote(t *testing.T) {
	sampler := &gatedSampler{release: make(chan struct{}), note: "Shade coverage: 40%"}
	planner := newPlanner(t, routerWithAll(t), sampler)

	first, err := planner.Plan(context.Background(), routing.PlanRequest{
		ClientID: "usr_a", Origin: origin, Destination: "Hofgarten", Mode: routing.ModeCoolShaded,
	})
	require.NoError(t, err)

	second, err := planner.Plan(context.Background(), routing.PlanRequest{
		ClientID: "usr_a", Origin: origin, Destination: "Hofgarten", Mode: routing.ModeDirect,
	})
	require.NoError(t, err)

	close(sampler.release)
	planner.Close()

	got, err := planner.Get(first.ID)
	require.NoError(t, err)
	assert.Equal(t, routing.NoteCoolShaded, got.Note)
	assert.False(t, got.NoteFinal)

	cur, err := planner.Current("usr_a")
	require.NoError(t, err)
	assert.Equal(t, second.ID, cur.ID)

	mode, ok := planner.ActiveMode("usr_a")
	require.True(t, ok)
	assert.Equal(t, routing.ModeDirect, mode)
}

func TestPlanner_Plan_LateEarlierPlanDoesNotReplaceNewer(t *testing.T) {
	slowOrigin := geo.Coordinate{Lat: 48.1300, Lng: 11.5700}
	gate := make(chan struct{})
	entered := make(chan struct{})
	var once sync.Once

	router := newMockRouter(t)
	router.EXPECT().Route(gomock.Any(), gomock.Any()).
		DoAndReturn(func(ctx context.Context, req routing.Request) ([]routing.Candidate, error) {
			if req.Origin == slowOrigin {
				once.Do(func() { close(entered) })
				select {
				case <-gate:
				case <-ctx.Done():
					return nil, ctx.Err()
				}
			}
			if req.Profile == routing.ProfilePavedAlt {
				return []routing.Candidate{candidate(req.Profile, 2200), candidate(req.Profile, 2500)}, nil
			}
			return []routing.Candidate{candidate(req.Profile, 2000)}, nil
		}).AnyTimes()

	release := make(chan struct{})
	close(release)
	sampler := &gatedSampler{release: release, note: "Shade coverage: 40%"}
	planner := newPlanner(t, routing.NewFetcher(router, zerolog.Nop()), sampler)

	type result struct {
		sel routing.Selection
		err error
	}
	first := make(chan result, 1)
	go func() {
		sel, err := planner.Plan(context.Background(), routing.PlanRequest{
			ClientID:    "usr_a",
			Origin:      slowOrigin,
			Destination: "Chinesischer Turm",
			Mode:        routing.ModeSafeLit,
		})
		first <- result{sel, err}
	}()
	<-entered

	second, err := planner.Plan(context.Background(), routing.PlanRequest{
		ClientID:    "usr_a",
		Origin:      origin,
		Destination: "Chinesischer Turm",
		Mode:        routing.ModeCoolShaded,
	})
	require.NoError(t, err)

	close(gate)
	late := <-first
	require.NoError(t, late.err)

	cur, err := planner.Current("usr_a")
	require.NoError(t, err)
	assert.Equal(t, second.ID, cur.ID)

	mode, ok := planner.ActiveMode("usr_a")
	require.True(t, ok)
	assert.Equal(t, routing.ModeCoolShaded, mode)

	require.Eventually(t, func() bool {
		cur, err := planner.Current("usr_a")
		return err == nil && cur.NoteFinal
	}, time.Second, 10*time.Millisecond)
	cur, err = planner.Current("usr_a")
	require.NoError(t, err)
	assert.Equal(t, "Shade coverage: 40%", cur.Note)

	// The late selection stays readable by id and is never sampled.
	got, err := planner.Get(late.sel.ID)
	require.NoError(t, err)
	assert.Equal(t, routing.ModeSafeLit, got.Mode)
	assert.Equal(t, 1, sampler.callCount())
}

func TestPlanner_Plan_SamplerErrorKeepsProvisionalNote(t *testing.T) {
	sampler := &gatedSampler{release: make(chan struct{}), err: errors.New("overpass timeout")}
	close(sampler.release)
	planner := newPlanner(t, routerWithAll(t), sampler)

	sel, err := planner.Plan(context.Background(), routing.PlanRequest{
		ClientID: "usr_a", Origin: origin, Destination: "Hofgarten", Mode: routing.ModeCoolShaded,
	})
	require.NoError(t, err)
	planner.Close()

	got, err := planner.Get(sel.ID)
	require.NoError(t, err)
	assert.Equal(t, routing.NoteCoolShaded, got.Note)
}

func TestPlanner_Plan_GeocodeNotFound(t *testing.T) {
	router := newMockRouter(t)
	planner := routing.NewPlanner(routing.PlannerConfig{
		Geocoder: fakeGeocoder{err: geocode.ErrNotFound},
		Fetcher:  routing.NewFetcher(router, zerolog.Nop()),
		Logger:   zerolog.Nop(),
	})
	defer planner.Close()

	_, err := planner.Plan(context.Background(), routing.PlanRequest{
		ClientID: "usr_a", Origin: origin, Destination: "Atlantis", Mode: routing.ModeSafeLit,
	})
	assert.ErrorIs(t, err, geocode.ErrNotFound)

	_, err = planner.Current("usr_a")
	assert.ErrorIs(t, err, routing.ErrSelectionNotFound)
}

func TestPlanner_Plan_NoRouteLeavesPriorSelection(t *testing.T) {
	calls := 0
	router := newMockRouter(t)
	router.EXPECT().Route(gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ context.Context, req routing.Request) ([]routing.Candidate, error) {
			calls++
			if calls <= 3 {
				return []routing.Candidate{candidate(req.Profile, 2000)}, nil
			}
			return nil, routing.ErrProviderUnavailable
		}).Times(6)

	// Sequential router calls keep the counter race-free.
	fetcher := routing.NewFetcher(&serialRouter{Router: router}, zerolog.Nop())
	planner := newPlanner(t, fetcher, nil)

	first, err := planner.Plan(context.Background(), routing.PlanRequest{
		ClientID: "usr_a", Origin: origin, Destination: "Hofgarten", Mode: routing.ModeSafeLit,
	})
	require.NoError(t, err)

	_, err = planner.Plan(context.Background(), routing.PlanRequest{
		ClientID: "usr_a", Origin: origin, Destination: "Hofgarten", Mode: routing.ModeSafeLit,
	})
	assert.ErrorIs(t, err, routing.ErrNoRoute)

	cur, err := planner.Current("usr_a")
	require.NoError(t, err)
	assert.Equal(t, first.ID, cur.ID)
}

func TestPlanner_Plan_PavedFailureFallsBackToDirect(t *testing.T) {
	router := newMockRouter(t)
	router.EXPECT().Route(gomock.Any(), profileIs(routing.ProfileDirect)).
		Return([]routing.Candidate{candidate(routing.ProfileDirect, 2000)}, nil)
	router.EXPECT().Route(gomock.Any(), profileIs(routing.ProfilePaved)).
		Return(nil, &routing.Error{Code: "REQUEST_FAILED", Err: routing.ErrProviderUnavailable})
	router.EXPECT().Route(gomock.Any(), profileIs(routing.ProfilePavedAlt)).
		Return(nil, &routing.Error{Code: "REQUEST_FAILED", Err: routing.ErrProviderUnavailable})

	planner := newPlanner(t, routing.NewFetcher(router, zerolog.Nop()), nil)

	sel, err := planner.Plan(context.Background(), routing.PlanRequest{
		ClientID: "usr_a", Origin: origin, Destination: "Hofgarten", Mode: routing.ModeSafeLit,
	})
	require.NoError(t, err)

	assert.Equal(t, routing.ProfileDirect, sel.Candidate.Profile)
	assert.True(t, sel.Fallback)
	assert.Equal(t, routing.NoteFallbackPrefix+routing.NoteSafeLit, sel.Note)
}

func TestPlanner_Plan_RejectsUnknownMode(t *testing.T) {
	planner := newPlanner(t, routerWithAll(t), nil)

	_, err := planner.Plan(context.Background(), routing.PlanRequest{
		ClientID: "usr_a", Origin: origin, Destination: "Hofgarten", Mode: "FAST",
	})
	assert.ErrorIs(t, err, routing.ErrUnknownMode)
}

func TestPlanner_Get_Unknown(t *testing.T) {
	planner := newPlanner(t, routerWithAll(t), nil)

	_, err := planner.Get("missing")
	assert.ErrorIs(t, err, routing.ErrSelectionNotFound)
}

// serialRouter serializes calls to the wrapped router.
type serialRouter struct {
	routing.Router
	mu sync.Mutex
}

func (s *serialRouter) Route(ctx context.Context, req routing.Request) ([]routing.Candidate, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.Router.Route(ctx, req)
}
