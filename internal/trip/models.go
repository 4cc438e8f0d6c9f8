// Package trip implements live trip sharing: a rider periodically pushes
// a position under a short code and watchers raise a danger alarm when the
// rider stops updating near a reported theft hotspot.
package trip

import (
	"context"
	"errors"
	"time"

	"github.com/mradl/mradl/internal/geo"
)

// Trip errors.
var (
	ErrSessionNotFound = errors.New("trip session not found")
	ErrInvalidCode     = errors.New("invalid trip code")
	ErrCodeTaken       = errors.New("trip code already in use")
	ErrCodeExhausted   = errors.New("could not allocate a free trip code")
	ErrPersistence     = errors.New("trip persistence failed")
	ErrNotSharing      = errors.New("client is not sharing a trip")
	ErrClosed          = errors.New("trip controller closed")
	ErrSuperseded      = errors.New("role changed before it became active")
)

// Session statuses. Stored sessions are always active; StatusEnded is only
// delivered to subscribers and watchers once the rider stops or the session
// expires.
const (
	StatusActive = "active"
	StatusEnded  = "ended"
)

// Session is the shared trip document.
type Session struct {
	ID         string         `json:"id"`
	Location   geo.Coordinate `json:"location"`
	LastUpdate time.Time      `json:"lastUpdate"`
	StartedAt  time.Time      `json:"startedAt"`
	Status     string         `json:"status"`
}

// Role is what a client is currently doing with trips.
type Role string

const (
	RoleIdle     Role = "IDLE"
	RoleSharing  Role = "SHARING"
	RoleWatching Role = "WATCHING"
)

// AlarmState is derived on every evaluation and never stored.
type AlarmState struct {
	IsDangerAlert bool          `json:"isDangerAlert"`
	StaleFor      time.Duration `json:"-"`
	NearestZoneID string        `json:"nearestZoneId,omitempty"`
	EvaluatedAt   time.Time     `json:"evaluatedAt"`
}

// AlarmParams tunes the alarm.
type AlarmParams struct {
	// StaleThreshold is how long the rider may go without an update.
	StaleThreshold time.Duration
	// DangerRadius is the planar distance in degrees that counts as near.
	DangerRadius float64
}

// Defaults for AlarmParams.
const (
	DefaultStaleThreshold = 60 * time.Second
	DefaultDangerRadius   = 0.002
)

// DefaultAlarmParams returns the standard alarm tuning.
func DefaultAlarmParams() AlarmParams {
	return AlarmParams{
		StaleThreshold: DefaultStaleThreshold,
		DangerRadius:   DefaultDangerRadius,
	}
}

// Store holds session documents. Create and Push stamp LastUpdate with
// the store's own clock.
type Store interface {
	// Create fails with ErrCodeTaken if code is in use.
	Create(ctx context.Context, code string, loc geo.Coordinate) (Session, error)
	// Push fails with ErrSessionNotFound if the session expired or ended.
	Push(ctx context.Context, code string, loc geo.Coordinate) (Session, error)
	Get(ctx context.Context, code string) (Session, error)
	// Delete removes the session and notifies its subscribers.
	Delete(ctx context.Context, code string) error
	// Subscribe calls onChange with the session after every push, and with
	// the last known session marked StatusEnded when it is deleted.
	Subscribe(ctx context.Context, code string, onChange func(Session)) (unsubscribe func(), err error)
}
