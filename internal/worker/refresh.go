package worker

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/mradl/mradl/internal/environment"
	"github.com/mradl/mradl/internal/geo"
	"github.com/mradl/mradl/internal/weather"
)

// TilePrewarmer fills the feature tile cache for an area.
type TilePrewarmer interface {
	Prewarm(ctx context.Context, kind environment.Kind, bbox geo.BoundingBox) (int, error)
}

// WeatherRefresher fetches current conditions, refreshing its cache.
type WeatherRefresher interface {
	Conditions(ctx context.Context, at geo.Coordinate) (*weather.Conditions, error)
}

// RefreshJob keeps feature tiles and weather warm for the configured areas.
type RefreshJob struct {
	config RefreshConfig
	logger zerolog.Logger

	// Services (nil if not configured)
	tiles   TilePrewarmer
	weather WeatherRefresher

	metrics *RefreshMetrics
}

// RefreshMetrics tracks refresh job statistics.
type RefreshMetrics struct {
	mu sync.RWMutex

	// Counters
	TotalRefreshes    int64
	SuccessfulRefresh int64
	FailedRefreshes   int64
	TilesFetched      int64
	WeatherRefresh    int64

	// Timings
	LastRefreshAt       time.Time
	LastRefreshDuration time.Duration
	TotalDuration       time.Duration
}

// RefreshJobConfig holds configuration for creating a RefreshJob.
type RefreshJobConfig struct {
	Config  RefreshConfig
	Logger  zerolog.Logger
	Tiles   TilePrewarmer
	Weather WeatherRefresher
}

// NewRefreshJob creates a new refresh job processor.
func NewRefreshJob(cfg RefreshJobConfig) *RefreshJob {
	config := cfg.Config
	if len(config.Targets) == 0 {
		config = DefaultRefreshConfig()
	}
	if len(config.Kinds) == 0 {
		config.Kinds = environment.Kinds
	}
	if config.Concurrency <= 0 {
		config.Concurrency = 1
	}
	if config.Timeout <= 0 {
		config.Timeout = 60 * time.Second
	}

	return &RefreshJob{
		config:  config,
		logger:  cfg.Logger,
		tiles:   cfg.Tiles,
		weather: cfg.Weather,
		metrics: &RefreshMetrics{},
	}
}

// RefreshResult contains the result of a refresh operation.
type RefreshResult struct {
	StartTime        time.Time
	EndTime          time.Time
	Duration         time.Duration
	TotalTasks       int
	Successful       int
	Failed           int
	Skipped          int
	TilesFetched     int
	WeatherRefreshed int
	Errors           []RefreshError
}

// RefreshError represents an error during refresh.
type RefreshError struct {
	Target string
	Kind   string
	Error  string
}

type task struct {
	target RefreshTarget
	kind   environment.Kind // empty for weather
}

// Run prewarms every target and kind. Failures are collected, not fatal;
// once ctx is done the remaining tasks are skipped.
func (j *RefreshJob) Run(ctx context.Context) *RefreshResult {
	startTime := time.Now()

	var tasks []task
	for _, target := range j.config.Ordered() {
		if j.tiles != nil {
			for _, kind := range j.config.Kinds {
				tasks = append(tasks, task{target: target, kind: kind})
			}
		}
		if j.config.RefreshWeather && j.weather != nil {
			tasks = append(tasks, task{target: target})
		}
	}

	result := &RefreshResult{
		StartTime:  startTime,
		TotalTasks: len(tasks),
	}

	j.logger.Info().
		Int("total_tasks", result.TotalTasks).
		Int("concurrency", j.config.Concurrency).
		Msg("starting feature refresh job")

	var (
		mu sync.Mutex
		g  errgroup.Group
	)
	g.SetLimit(j.config.Concurrency)

	for _, t := range tasks {
		if ctx.Err() != nil {
			mu.Lock()
			result.Skipped++
			mu.Unlock()
			continue
		}
		g.Go(func() error {
			fetched, err := j.runTask(ctx, t)

			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				result.Failed++
				result.Errors = append(result.Errors, RefreshError{
					Target: t.target.Name,
					Kind:   taskKind(t),
					Error:  err.Error(),
				})
				return nil
			}
			result.Successful++
			result.TilesFetched += fetched
			if t.kind == "" {
				result.WeatherRefreshed++
			}
			return nil
		})
	}
	_ = g.Wait()

	result.EndTime = time.Now()
	result.Duration = result.EndTime.Sub(startTime)

	j.updateMetrics(result)

	j.logger.Info().
		Dur("duration", result.Duration).
		Int("successful", result.Successful).
		Int("failed", result.Failed).
		Int("skipped", result.Skipped).
		Int("tiles_fetched", result.TilesFetched).
		Msg("feature refresh job completed")

	return result
}

func (j *RefreshJob) runTask(ctx context.Context, t task) (int, error) {
	taskCtx, cancel := context.WithTimeout(ctx, j.config.Timeout)
	defer cancel()

	if t.kind == "" {
		_, err := j.weather.Conditions(taskCtx, t.target.Area.Center())
		return 0, err
	}

	n, err := j.tiles.Prewarm(taskCtx, t.kind, t.target.Area)
	if err != nil {
		j.logger.Warn().Err(err).
			Str("target", t.target.Name).
			Str("kind", string(t.kind)).
			Msg("tile prewarm failed")
		return 0, err
	}
	return n, nil
}

func taskKind(t task) string {
	if t.kind == "" {
		return "WEATHER"
	}
	return string(t.kind)
}

func (j *RefreshJob) updateMetrics(result *RefreshResult) {
	j.metrics.mu.Lock()
	defer j.metrics.mu.Unlock()

	j.metrics.TotalRefreshes++
	j.metrics.SuccessfulRefresh += int64(result.Successful)
	j.metrics.FailedRefreshes += int64(result.Failed)
	j.metrics.TilesFetched += int64(result.TilesFetched)
	j.metrics.WeatherRefresh += int64(result.WeatherRefreshed)
	j.metrics.LastRefreshAt = result.EndTime
	j.metrics.LastRefreshDuration = result.Duration
	j.metrics.TotalDuration += result.Duration
}

// GetMetrics returns a copy of the current metrics.
func (j *RefreshJob) GetMetrics() RefreshMetrics {
	j.metrics.mu.RLock()
	defer j.metrics.mu.RUnlock()

	return RefreshMetrics{
		TotalRefreshes:      j.metrics.TotalRefreshes,
		SuccessfulRefresh:   j.metrics.SuccessfulRefresh,
		FailedRefreshes:     j.metrics.FailedRefreshes,
		TilesFetched:        j.metrics.TilesFetched,
		WeatherRefresh:      j.metrics.WeatherRefresh,
		LastRefreshAt:       j.metrics.LastRefreshAt,
		LastRefreshDuration: j.metrics.LastRefreshDuration,
		TotalDuration:       j.metrics.TotalDuration,
	}
}

// MetricsSnapshot returns a snapshot of the current metrics as a map.
func (j *RefreshJob) MetricsSnapshot() map[string]interface{} {
	m := j.GetMetrics()
	return map[string]interface{}{
		"total_refreshes":       m.TotalRefreshes,
		"successful_refreshes":  m.SuccessfulRefresh,
		"failed_refreshes":      m.FailedRefreshes,
		"tiles_fetched":         m.TilesFetched,
		"weather_refreshes":     m.WeatherRefresh,
		"last_refresh_at":       m.LastRefreshAt,
		"last_refresh_duration": m.LastRefreshDuration.String(),
		"total_duration":        m.TotalDuration.String(),
	}
}
