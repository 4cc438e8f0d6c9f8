package worker_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mradl/mradl/internal/environment"
	"github.com/mradl/mradl/internal/geo"
	"github.com/mradl/mradl/internal/weather"
	"github.com/mradl/mradl/internal/worker"
)

type fakeTiles struct {
	mu       sync.Mutex
	calls    []string
	failFor  string
	inFlight int32
	maxSeen  int32
	delay    time.Duration
}

func (f *fakeTiles) Prewarm(ctx context.Context, kind environment.Kind, bbox geo.BoundingBox) (int, error) {
	n := atomic.AddInt32(&f.inFlight, 1)
	defer atomic.AddInt32(&f.inFlight, -1)
	for {
		seen := atomic.LoadInt32(&f.maxSeen)
		if n <= seen || atomic.CompareAndSwapInt32(&f.maxSeen, seen, n) {
			break
		}
	}
	if f.delay > 0 {
		select {
		case <-time.After(f.delay):
		case <-ctx.Done():
			return 0, ctx.Err()
		}
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, bbox.Key()+"/"+string(kind))
	if f.failFor != "" && bbox.Key() == f.failFor {
		return 0, errors.New("overpass: 504")
	}
	return len(bbox.Tiles(0.02)), nil
}

func (f *fakeTiles) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

type fakeWeather struct {
	calls int32
	err   error
}

func (f *fakeWeather) Conditions(_ context.Context, _ geo.Coordinate) (*weather.Conditions, error) {
	atomic.AddInt32(&f.calls, 1)
	if f.err != nil {
		return nil, f.err
	}
	return &weather.Conditions{Cycling: weather.ConditionGood}, nil
}

var (
	areaA = geo.BoundingBox{South: 48.12, West: 11.56, North: 48.14, East: 11.58}
	areaB = geo.BoundingBox{South: 48.14, West: 11.56, North: 48.18, East: 11.60}
)

func TestDefaultRefreshConfig(t *testing.T) {
	cfg := worker.DefaultRefreshConfig()

	assert.Equal(t, 2, cfg.Concurrency)
	assert.Equal(t, 60*time.Second, cfg.Timeout)
	assert.True(t, cfg.RefreshWeather)
	assert.Equal(t, environment.Kinds, cfg.Kinds)
	assert.NotEmpty(t, cfg.Targets)
	assert.Equal(t, len(cfg.Targets)*2, cfg.TotalTasks())
}

func TestDefaultRefreshTargets(t *testing.T) {
	targets := worker.DefaultRefreshTargets()
	assert.GreaterOrEqual(t, len(targets), 5)

	var altstadt *worker.RefreshTarget
	for i := range targets {
		if targets[i].Name == "Altstadt-Lehel" {
			altstadt = &targets[i]
		}
		// Every district is a non-empty box on the tile grid.
		area := targets[i].Area
		assert.Less(t, area.South, area.North, targets[i].Name)
		assert.Less(t, area.West, area.East, targets[i].Name)
		assert.Equal(t, area, area.Snap(0.02), targets[i].Name)
	}
	require.NotNil(t, altstadt)
	assert.Equal(t, 1, altstadt.Priority)
	assert.True(t, altstadt.Area.Contains(geo.Munich))
}

func TestRefreshConfig_Ordered(t *testing.T) {
	cfg := worker.RefreshConfig{
		Targets: []worker.RefreshTarget{
			{Name: "c", Priority: 3},
			{Name: "a1", Priority: 1},
			{Name: "b", Priority: 2},
			{Name: "a2", Priority: 1},
		},
	}

	var names []string
	for _, target := range cfg.Ordered() {
		names = append(names, target.Name)
	}
	assert.Equal(t, []string{"a1", "a2", "b", "c"}, names)
	assert.Equal(t, "c", cfg.Targets[0].Name)
}

func TestRefreshJob_Run(t *testing.T) {
	tiles := &fakeTiles{}
	wx := &fakeWeather{}
	job := worker.NewRefreshJob(worker.RefreshJobConfig{
		Config: worker.RefreshConfig{
			Targets: []worker.RefreshTarget{
				{Name: "A", Priority: 1, Area: areaA},
				{Name: "B", Priority: 2, Area: areaB},
			},
			Kinds:          environment.Kinds,
			Concurrency:    2,
			Timeout:        time.Second,
			RefreshWeather: true,
		},
		Logger:  zerolog.Nop(),
		Tiles:   tiles,
		Weather: wx,
	})

	result := job.Run(context.Background())

	assert.Equal(t, 6, result.TotalTasks)
	assert.Equal(t, 6, result.Successful)
	assert.Zero(t, result.Failed)
	assert.Equal(t, 2, result.WeatherRefreshed)
	// A is one tile, B is 2x2; both kinds.
	assert.Equal(t, 2*(1+4), result.TilesFetched)
	assert.Equal(t, 4, tiles.callCount())
	assert.Equal(t, int32(2), atomic.LoadInt32(&wx.calls))
	assert.False(t, result.EndTime.Before(result.StartTime))
}

func TestRefreshJob_Run_CollectsErrors(t *testing.T) {
	tiles := &fakeTiles{failFor: areaB.Key()}
	job := worker.NewRefreshJob(worker.RefreshJobConfig{
		Config: worker.RefreshConfig{
			Targets: []worker.RefreshTarget{
				{Name: "A", Area: areaA},
				{Name: "B", Area: areaB},
			},
			Kinds:       []environment.Kind{environment.KindShade},
			Concurrency: 1,
			Timeout:     time.Second,
		},
		Logger: zerolog.Nop(),
		Tiles:  tiles,
	})

	result := job.Run(context.Background())

	assert.Equal(t, 1, result.Successful)
	assert.Equal(t, 1, result.Failed)
	require.Len(t, result.Errors, 1)
	assert.Equal(t, "B", result.Errors[0].Target)
	assert.Equal(t, "SHADE", result.Errors[0].Kind)
	assert.Contains(t, result.Errors[0].Error, "504")
}

func TestRefreshJob_Run_RespectsConcurrency(t *testing.T) {
	targets := make([]worker.RefreshTarget, 8)
	for i := range targets {
		targets[i] = worker.RefreshTarget{Name: string(rune('A' + i)), Area: areaA}
	}
	tiles := &fakeTiles{delay: 10 * time.Millisecond}
	job := worker.NewRefreshJob(worker.RefreshJobConfig{
		Config: worker.RefreshConfig{
			Targets:     targets,
			Kinds:       []environment.Kind{environment.KindLight},
			Concurrency: 3,
			Timeout:     time.Second,
		},
		Logger: zerolog.Nop(),
		Tiles:  tiles,
	})

	result := job.Run(context.Background())

	assert.Equal(t, 8, result.Successful)
	assert.LessOrEqual(t, atomic.LoadInt32(&tiles.maxSeen), int32(3))
}

func TestRefreshJob_Run_ContextCancellation(t *testing.T) {
	tiles := &fakeTiles{}
	job := worker.NewRefreshJob(worker.RefreshJobConfig{
		Config: worker.RefreshConfig{
			Targets:     []worker.RefreshTarget{{Name: "A", Area: areaA}, {Name: "B", Area: areaB}},
			Concurrency: 1,
			Timeout:     time.Second,
		},
		Logger: zerolog.Nop(),
		Tiles:  tiles,
	})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	result := job.Run(ctx)

	assert.Equal(t, 4, result.TotalTasks)
	assert.Equal(t, 4, result.Skipped)
	assert.Zero(t, tiles.callCount())
}

func TestRefreshJob_Run_NoServices(t *testing.T) {
	job := worker.NewRefreshJob(worker.RefreshJobConfig{
		Config: worker.RefreshConfig{
			Targets:        []worker.RefreshTarget{{Name: "A", Area: areaA}},
			RefreshWeather: true,
		},
		Logger: zerolog.Nop(),
	})

	result := job.Run(context.Background())
	assert.Zero(t, result.TotalTasks)
	assert.Zero(t, result.Failed)
}

func TestRefreshJob_Metrics(t *testing.T) {
	job := worker.NewRefreshJob(worker.RefreshJobConfig{
		Config: worker.RefreshConfig{
			Targets:        []worker.RefreshTarget{{Name: "A", Area: areaA}},
			Kinds:          []environment.Kind{environment.KindLight},
			Concurrency:    1,
			RefreshWeather: true,
		},
		Logger:  zerolog.Nop(),
		Tiles:   &fakeTiles{},
		Weather: &fakeWeather{},
	})

	assert.Equal(t, int64(0), job.GetMetrics().TotalRefreshes) // Not run yet

	_ = job.Run(context.Background())
	_ = job.Run(context.Background())

	metrics := job.GetMetrics()
	assert.Equal(t, int64(2), metrics.TotalRefreshes)
	assert.Equal(t, int64(4), metrics.SuccessfulRefresh)
	assert.Equal(t, int64(2), metrics.TilesFetched)
	assert.Equal(t, int64(2), metrics.WeatherRefresh)
	assert.NotZero(t, metrics.LastRefreshAt)

	snapshot := job.MetricsSnapshot()
	for _, key := range []string{"total_refreshes", "successful_refreshes", "failed_refreshes", "tiles_fetched", "last_refresh_duration"} {
		assert.Contains(t, snapshot, key)
	}
}
