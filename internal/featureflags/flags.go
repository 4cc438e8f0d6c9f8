// Package featureflags holds runtime tunables that operators can change
// without a deploy.
package featureflags

import (
	"fmt"
	"sort"
	"time"
)

// Well-known keys.
const (
	// FlagCoverageClampEnabled keeps displayed coverage inside
	// [coverage_clamp_min, coverage_clamp_max].
	FlagCoverageClampEnabled = "coverage_clamp_enabled"
	FlagCoverageClampMin     = "coverage_clamp_min"
	FlagCoverageClampMax     = "coverage_clamp_max"

	// FlagAlarmStaleThresholdSeconds is how long a shared trip may go
	// without an update before a watcher's danger alarm can fire.
	FlagAlarmStaleThresholdSeconds = "alarm_stale_threshold_seconds"
)

const (
	DefaultCoverageClampEnabled = true
	DefaultCoverageClampMin     = 10.0
	DefaultCoverageClampMax     = 95.0
	DefaultAlarmStaleSeconds    = 60
)

// Flag is one stored tunable. Numbers are held as float64, the way JSON
// decodes them.
type Flag struct {
	Key       string
	Value     any
	UpdatedAt time.Time
}

type definition struct {
	value any
	check func(v any) string
}

var known = map[string]definition{
	FlagCoverageClampEnabled:       {DefaultCoverageClampEnabled, isBool},
	FlagCoverageClampMin:           {DefaultCoverageClampMin, inRange(0, 100)},
	FlagCoverageClampMax:           {DefaultCoverageClampMax, inRange(0, 100)},
	FlagAlarmStaleThresholdSeconds: {float64(DefaultAlarmStaleSeconds), inRange(1, 24*60*60)},
}

// Defaults returns the built-in value of every well-known key, sorted by key.
func Defaults() []Flag {
	out := make([]Flag, 0, len(known))
	for k, d := range known {
		out = append(out, Flag{Key: k, Value: d.value})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out
}

// ValidationError describes a rejected flag update.
type ValidationError struct {
	Key    string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid value for %s: %s", e.Key, e.Reason)
}

// Validate checks value against the type and range of a well-known key and
// returns it normalized. Unknown keys pass through unchanged.
func Validate(key string, value any) (any, error) {
	if f, ok := number(value); ok {
		value = f
	}
	d, ok := known[key]
	if !ok {
		return value, nil
	}
	if reason := d.check(value); reason != "" {
		return nil, &ValidationError{Key: key, Reason: reason}
	}
	return value, nil
}

func isBool(v any) string {
	if _, ok := v.(bool); !ok {
		return "must be a boolean"
	}
	return ""
}

func inRange(lo, hi float64) func(any) string {
	return func(v any) string {
		f, ok := v.(float64)
		if !ok {
			return "must be a number"
		}
		if f < lo || f > hi {
			return fmt.Sprintf("must be between %g and %g", lo, hi)
		}
		return ""
	}
}

func number(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	}
	return 0, false
}

func boolOr(v any, def bool) bool {
	if b, ok := v.(bool); ok {
		return b
	}
	return def
}

func numberOr(v any, def float64) float64 {
	if f, ok := number(v); ok {
		return f
	}
	return def
}
