// Package routing fetches route candidates for several travel profiles and
// selects one of them according to the rider's safety mode.
package routing

//go:generate mockgen -destination=mocks/mock_router.go -package=mocks github.com/mradl/mradl/internal/routing Router

import (
	"context"
	"errors"
	"time"

	"github.com/mradl/mradl/internal/geo"
)

// Sentinel errors for routing operations.
var (
	// ErrProviderUnavailable indicates the routing provider is down or the circuit breaker is open.
	ErrProviderUnavailable = errors.New("routing provider unavailable")
	// ErrNoRoute indicates that no profile produced a usable route.
	ErrNoRoute = errors.New("no route found between the given points")
	// ErrRateLimitExceeded indicates the API quota has been exceeded.
	ErrRateLimitExceeded = errors.New("rate limit exceeded")
	// ErrInvalidCoordinates indicates the provided coordinates are invalid or out of range.
	ErrInvalidCoordinates = errors.New("invalid coordinates")
	// ErrUnknownMode is returned for a safety mode outside SAFE_LIT, COOL_SHADED and DIRECT.
	ErrUnknownMode = errors.New("unknown safety mode")
	// ErrSelectionNotFound is returned when a selection id or client has no stored selection.
	ErrSelectionNotFound = errors.New("route selection not found")
)

// Profile identifies which upstream request produced a candidate.
type Profile string

const (
	// ProfileDirect is the off-road capable profile that finds shortcuts.
	ProfileDirect Profile = "DIRECT"
	// ProfilePaved is the paved-road profile.
	ProfilePaved Profile = "PAVED"
	// ProfilePavedAlt is the paved-road profile asked for alternative routes.
	ProfilePavedAlt Profile = "PAVED_ALT"
)

// Profiles lists every profile in fetch order.
var Profiles = []Profile{ProfileDirect, ProfilePaved, ProfilePavedAlt}

// Mode is the rider's safety bias. Exactly one mode is active at a time.
type Mode string

const (
	ModeSafeLit    Mode = "SAFE_LIT"
	ModeCoolShaded Mode = "COOL_SHADED"
	ModeDirect     Mode = "DIRECT"
)

// Modes lists the supported safety modes.
var Modes = []Mode{ModeSafeLit, ModeCoolShaded, ModeDirect}

// ParseMode validates a mode string.
func ParseMode(s string) (Mode, error) {
	for _, m := range Modes {
		if string(m) == s {
			return m, nil
		}
	}
	return "", ErrUnknownMode
}

// Candidate is one route geometry with its metrics.
type Candidate struct {
	Profile        Profile
	Points         []geo.Coordinate
	DistanceMeters float64
	DurationMs     float64
}

// Valid reports whether the candidate has a geometry.
func (c *Candidate) Valid() bool {
	return c != nil && len(c.Points) > 0
}

// CandidateSet holds the result of one fetch. Any slot may be empty.
type CandidateSet struct {
	Direct   *Candidate
	Paved    *Candidate
	PavedAlt []Candidate
}

// Empty reports whether no slot holds a valid candidate.
func (s CandidateSet) Empty() bool {
	if s.Direct.Valid() || s.Paved.Valid() {
		return false
	}
	for i := range s.PavedAlt {
		if s.PavedAlt[i].Valid() {
			return false
		}
	}
	return true
}

// Count returns the number of valid candidates in the set.
func (s CandidateSet) Count() int {
	n := 0
	if s.Direct.Valid() {
		n++
	}
	if s.Paved.Valid() {
		n++
	}
	for i := range s.PavedAlt {
		if s.PavedAlt[i].Valid() {
			n++
		}
	}
	return n
}

// Selection is the route chosen for a mode. Note starts with a provisional
// label and is replaced at most once by a coverage score.
type Selection struct {
	ID          string
	ClientID    string
	Mode        Mode
	Candidate   Candidate
	Note        string
	Fallback    bool
	NoteFinal   bool
	Origin      geo.Coordinate
	Destination geo.Coordinate
	CreatedAt   time.Time
}

// Request asks a router for routes of one profile.
type Request struct {
	Origin      geo.Coordinate
	Destination geo.Coordinate
	Profile     Profile
}

// Router computes route candidates for a single profile.
type Router interface {
	// Route returns the candidates the provider found, best first.
	Route(ctx context.Context, req Request) ([]Candidate, error)
	// Name returns the provider identifier for logging and metrics.
	Name() string
}

// Error provides detailed error information from the routing provider.
type Error struct {
	Provider string // Provider that generated the error
	Code     string // Error code from the provider
	Message  string // Human-readable error message
	Err      error  // Underlying error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return e.Message + ": " + e.Err.Error()
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

// IsRetryable returns true if the error is transient and the request can be retried.
func (e *Error) IsRetryable() bool {
	return errors.Is(e.Err, ErrProviderUnavailable) || errors.Is(e.Err, ErrRateLimitExceeded)
}
