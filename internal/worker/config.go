// Package worker provides background job processing for M-Radl.
package worker

import (
	"sort"
	"time"

	"github.com/mradl/mradl/internal/environment"
	"github.com/mradl/mradl/internal/geo"
)

// RefreshTarget is an area whose feature tiles are kept warm.
type RefreshTarget struct {
	// Name is the human-readable name of the target.
	Name string

	// Area is the bounding box to prewarm. It is snapped outward to tile
	// bounds by the environment service.
	Area geo.BoundingBox

	// Priority determines refresh order (lower = higher priority).
	Priority int
}

// RefreshConfig holds configuration for the feature refresh job.
type RefreshConfig struct {
	// Targets are the areas to refresh.
	// If empty, uses DefaultRefreshTargets.
	Targets []RefreshTarget

	// Kinds are the feature kinds to prewarm.
	// Default: light and shade
	Kinds []environment.Kind

	// Concurrency is the number of concurrent refresh operations.
	// Overpass rejects bursts, so keep this low.
	// Default: 2
	Concurrency int

	// Timeout is the timeout for each refresh operation.
	// Default: 60 seconds
	Timeout time.Duration

	// RefreshWeather also refreshes current weather at each target's center.
	// Default: true
	RefreshWeather bool
}

// DefaultRefreshConfig returns the default refresh configuration.
func DefaultRefreshConfig() RefreshConfig {
	return RefreshConfig{
		Targets:        DefaultRefreshTargets(),
		Kinds:          environment.Kinds,
		Concurrency:    2,
		Timeout:        60 * time.Second,
		RefreshWeather: true,
	}
}

// DefaultRefreshTargets returns the Munich districts riders plan through
// most. Boxes sit on the 0.02 degree tile grid.
func DefaultRefreshTargets() []RefreshTarget {
	return []RefreshTarget{
		{Name: "Altstadt-Lehel", Priority: 1, Area: geo.BoundingBox{South: 48.12, West: 11.56, North: 48.16, East: 11.60}},
		{Name: "Maxvorstadt", Priority: 1, Area: geo.BoundingBox{South: 48.14, West: 11.54, North: 48.16, East: 11.58}},
		{Name: "Ludwigsvorstadt-Isarvorstadt", Priority: 1, Area: geo.BoundingBox{South: 48.12, West: 11.54, North: 48.14, East: 11.58}},
		{Name: "Schwabing", Priority: 1, Area: geo.BoundingBox{South: 48.16, West: 11.56, North: 48.18, East: 11.60}},
		{Name: "Au-Haidhausen", Priority: 2, Area: geo.BoundingBox{South: 48.12, West: 11.58, North: 48.14, East: 11.62}},
		{Name: "Englischer Garten", Priority: 2, Area: geo.BoundingBox{South: 48.14, West: 11.58, North: 48.18, East: 11.62}},
		{Name: "Neuhausen-Nymphenburg", Priority: 2, Area: geo.BoundingBox{South: 48.14, West: 11.50, North: 48.18, East: 11.54}},
		{Name: "Sendling", Priority: 2, Area: geo.BoundingBox{South: 48.10, West: 11.52, North: 48.12, East: 11.56}},
		{Name: "Giesing", Priority: 3, Area: geo.BoundingBox{South: 48.10, West: 11.56, North: 48.12, East: 11.60}},
		{Name: "Bogenhausen", Priority: 3, Area: geo.BoundingBox{South: 48.14, West: 11.60, North: 48.16, East: 11.64}},
		{Name: "Olympiapark", Priority: 3, Area: geo.BoundingBox{South: 48.16, West: 11.54, North: 48.18, East: 11.56}},
	}
}

// Ordered returns the targets sorted by priority, keeping the configured
// order within a priority.
func (c RefreshConfig) Ordered() []RefreshTarget {
	out := make([]RefreshTarget, len(c.Targets))
	copy(out, c.Targets)
	sort.SliceStable(out, func(i, j int) bool { return out[i].Priority < out[j].Priority })
	return out
}

// TotalTasks returns the number of target/kind prewarm operations.
func (c RefreshConfig) TotalTasks() int {
	return len(c.Targets) * len(c.Kinds)
}
