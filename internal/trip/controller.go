package trip

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/mradl/mradl/internal/geo"
	"github.com/mradl/mradl/internal/report"
)

// ZoneSource provides the current danger zones.
type ZoneSource interface {
	Zones() []report.Report
}

// ThresholdSource provides the staleness threshold at evaluation time.
type ThresholdSource interface {
	AlarmStaleThreshold(ctx context.Context) time.Duration
}

// Controller defaults.
const (
	DefaultPushInterval    = 5 * time.Second
	DefaultEvalInterval    = 30 * time.Second
	DefaultPushTimeout     = 4 * time.Second
	DefaultMaxCodeAttempts = 5
)

// ControllerConfig holds configuration for the trip controller.
type ControllerConfig struct {
	Store           Store
	Zones           ZoneSource
	Thresholds      ThresholdSource
	PushInterval    time.Duration
	EvalInterval    time.Duration
	PushTimeout     time.Duration
	MaxCodeAttempts int
	Logger          zerolog.Logger

	// Now and NewCode are overridable for tests.
	Now     func() time.Time
	NewCode func() (string, error)
}

// View is a client's trip state as shown to it.
type View struct {
	Role     Role            `json:"role"`
	Code     string          `json:"code,omitempty"`
	Location *geo.Coordinate `json:"location,omitempty"`
	Session  *Session        `json:"session,omitempty"`
	Alarm    *AlarmState     `json:"alarm,omitempty"`
	// Ended is set for a watcher whose rider stopped sharing.
	Ended bool `json:"ended,omitempty"`
}

type clientState struct {
	role       Role
	code       string
	location   geo.Coordinate
	session    Session
	alarm      *AlarmState
	params     AlarmParams
	generation uint64
	stop       func()
}

func (cs *clientState) view() View {
	v := View{Role: cs.role, Code: cs.code}
	switch cs.role {
	case RoleSharing:
		loc := cs.location
		sess := cs.session
		v.Location = &loc
		v.Session = &sess
	case RoleWatching:
		sess := cs.session
		v.Session = &sess
		v.Ended = sess.Status == StatusEnded
		if cs.alarm != nil {
			alarm := *cs.alarm
			v.Alarm = &alarm
		}
	}
	return v
}

// Controller owns the trip role of every local client. Each client is
// either idle, sharing its own trip, or watching someone else's. Every role
// change bumps the client's generation so that results from a torn-down
// role are dropped.
type Controller struct {
	store           Store
	zones           ZoneSource
	thresholds      ThresholdSource
	pushInterval    time.Duration
	evalInterval    time.Duration
	pushTimeout     time.Duration
	maxCodeAttempts int
	logger          zerolog.Logger
	now             func() time.Time
	newCode         func() (string, error)

	mu      sync.Mutex
	clients map[string]*clientState
	closed  bool
	wg      sync.WaitGroup
}

// NewController creates a trip controller.
func NewController(cfg ControllerConfig) *Controller {
	c := &Controller{
		store:           cfg.Store,
		zones:           cfg.Zones,
		thresholds:      cfg.Thresholds,
		pushInterval:    cfg.PushInterval,
		evalInterval:    cfg.EvalInterval,
		pushTimeout:     cfg.PushTimeout,
		maxCodeAttempts: cfg.MaxCodeAttempts,
		logger:          cfg.Logger,
		now:             cfg.Now,
		newCode:         cfg.NewCode,
		clients:         make(map[string]*clientState),
	}
	if c.pushInterval == 0 {
		c.pushInterval = DefaultPushInterval
	}
	if c.evalInterval == 0 {
		c.evalInterval = DefaultEvalInterval
	}
	if c.pushTimeout == 0 {
		c.pushTimeout = DefaultPushTimeout
	}
	if c.maxCodeAttempts == 0 {
		c.maxCodeAttempts = DefaultMaxCodeAttempts
	}
	if c.now == nil {
		c.now = time.Now
	}
	if c.newCode == nil {
		c.newCode = NewCode
	}
	return c
}

// StartSharing creates a new session at loc and starts pushing the
// client's position. Any previous role of the client is ended.
func (c *Controller) StartSharing(ctx context.Context, clientID string, loc geo.Coordinate) (Session, error) {
	if err := loc.Validate(); err != nil {
		return Session{}, err
	}

	sess, err := c.createSession(ctx, loc)
	if err != nil {
		return Session{}, err
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		c.endSession(sess.ID)
		return Session{}, ErrClosed
	}
	cs := c.clientLocked(clientID)
	prev := c.teardownLocked(cs)

	cs.role = RoleSharing
	cs.code = sess.ID
	cs.location = loc
	cs.session = sess
	gen := cs.generation

	loopCtx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	cs.stop = func() {
		cancel()
		<-done
	}
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		defer close(done)
		c.ride(loopCtx, clientID, gen)
	}()
	c.mu.Unlock()

	prev()

	c.logger.Info().
		Str("client_id", clientID).
		Str("trip_code", sess.ID).
		Msg("trip sharing started")

	return sess, nil
}

func (c *Controller) createSession(ctx context.Context, loc geo.Coordinate) (Session, error) {
	for attempt := 0; attempt < c.maxCodeAttempts; attempt++ {
		code, err := c.newCode()
		if err != nil {
			return Session{}, fmt.Errorf("generate trip code: %w", err)
		}
		sess, err := c.store.Create(ctx, code, loc)
		if errors.Is(err, ErrCodeTaken) {
			c.logger.Debug().Str("trip_code", code).Msg("trip code collision, retrying")
			continue
		}
		if err != nil {
			c.logger.Error().Err(err).Msg("failed to create trip session")
			return Session{}, err
		}
		return sess, nil
	}
	return Session{}, ErrCodeExhausted
}

// UpdateLocation replaces the position the next push will send.
func (c *Controller) UpdateLocation(clientID string, loc geo.Coordinate) error {
	if err := loc.Validate(); err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	cs, ok := c.clients[clientID]
	if !ok || cs.role != RoleSharing {
		return ErrNotSharing
	}
	cs.location = loc
	return nil
}

func (c *Controller) ride(ctx context.Context, clientID string, gen uint64) {
	ticker := time.NewTicker(c.pushInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.push(ctx, clientID, gen)
		}
	}
}

// push sends one position update. A failure is logged and left for the
// next tick.
func (c *Controller) push(ctx context.Context, clientID string, gen uint64) {
	c.mu.Lock()
	cs, ok := c.currentLocked(clientID, gen)
	if !ok {
		c.mu.Unlock()
		return
	}
	code, loc := cs.code, cs.location
	c.mu.Unlock()

	pushCtx, cancel := context.WithTimeout(ctx, c.pushTimeout)
	defer cancel()

	sess, err := c.store.Push(pushCtx, code, loc)
	if err != nil {
		if ctx.Err() == nil {
			c.logger.Warn().Err(err).
				Str("client_id", clientID).
				Str("trip_code", code).
				Msg("trip position push failed")
		}
		return
	}

	c.mu.Lock()
	if cs, ok := c.currentLocked(clientID, gen); ok {
		cs.session = sess
	}
	c.mu.Unlock()
}

// StartWatching validates code, loads the session and starts evaluating
// the danger alarm. The first evaluation happens before it returns.
func (c *Controller) StartWatching(ctx context.Context, clientID, code string) (View, error) {
	code, err := NormalizeCode(code)
	if err != nil {
		return View{}, err
	}

	sess, err := c.store.Get(ctx, code)
	if err != nil {
		return View{}, err
	}

	params := c.alarmParams(ctx)

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return View{}, ErrClosed
	}
	cs := c.clientLocked(clientID)
	prev := c.teardownLocked(cs)

	cs.role = RoleWatching
	cs.code = code
	cs.session = sess
	cs.params = params
	c.evaluateLocked(clientID, cs)
	gen := cs.generation
	c.mu.Unlock()

	prev()

	unsubscribe, err := c.store.Subscribe(ctx, code, func(s Session) {
		c.sessionChanged(clientID, gen, s)
	})
	if err != nil {
		c.mu.Lock()
		stop := func() {}
		if cs, ok := c.currentLocked(clientID, gen); ok {
			stop = c.teardownLocked(cs)
		}
		c.mu.Unlock()
		stop()
		return View{}, err
	}

	loopCtx, cancel := context.WithCancel(context.Background())

	c.mu.Lock()
	cs, ok := c.currentLocked(clientID, gen)
	if !ok {
		c.mu.Unlock()
		cancel()
		unsubscribe()
		return View{}, ErrSuperseded
	}

	done := make(chan struct{})
	cs.stop = func() {
		cancel()
		<-done
		unsubscribe()
	}
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		defer close(done)
		c.watch(loopCtx, clientID, gen)
	}()
	view := cs.view()
	c.mu.Unlock()

	c.logger.Info().
		Str("client_id", clientID).
		Str("trip_code", code).
		Msg("trip watching started")

	return view, nil
}

func (c *Controller) watch(ctx context.Context, clientID string, gen uint64) {
	ticker := time.NewTicker(c.evalInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.refreshWatched(ctx, clientID, gen)
			params := c.alarmParams(ctx)

			c.mu.Lock()
			if cs, ok := c.currentLocked(clientID, gen); ok {
				cs.params = params
				c.evaluateLocked(clientID, cs)
			}
			c.mu.Unlock()
		}
	}
}

// refreshWatched re-reads the watched session so that a missed update or
// an expired session is noticed on the next tick.
func (c *Controller) refreshWatched(ctx context.Context, clientID string, gen uint64) {
	c.mu.Lock()
	cs, ok := c.currentLocked(clientID, gen)
	if !ok || cs.session.Status == StatusEnded {
		c.mu.Unlock()
		return
	}
	code := cs.code
	c.mu.Unlock()

	getCtx, cancel := context.WithTimeout(ctx, c.pushTimeout)
	defer cancel()

	sess, err := c.store.Get(getCtx, code)
	switch {
	case errors.Is(err, ErrSessionNotFound):
		sess = Session{ID: code, Status: StatusEnded}
	case err != nil:
		if ctx.Err() == nil {
			c.logger.Warn().Err(err).
				Str("client_id", clientID).
				Str("trip_code", code).
				Msg("failed to refresh watched trip")
		}
		return
	}

	c.mu.Lock()
	if cs, ok := c.currentLocked(clientID, gen); ok {
		c.applySessionLocked(clientID, cs, sess)
	}
	c.mu.Unlock()
}

func (c *Controller) sessionChanged(clientID string, gen uint64, s Session) {
	c.mu.Lock()
	defer c.mu.Unlock()

	cs, ok := c.currentLocked(clientID, gen)
	if !ok {
		return
	}
	c.applySessionLocked(clientID, cs, s)
	c.evaluateLocked(clientID, cs)
}

// applySessionLocked folds a newer view of the watched session into cs.
// An ended session stays ended, keeping the rider's last position, even if
// the code is later reused by another rider.
func (c *Controller) applySessionLocked(clientID string, cs *clientState, s Session) {
	if cs.session.Status == StatusEnded {
		return
	}
	if s.Status == StatusEnded {
		cs.session.Status = StatusEnded
		c.logger.Info().
			Str("client_id", clientID).
			Str("trip_code", cs.code).
			Msg("watched trip ended")
		return
	}
	if s.LastUpdate.Before(cs.session.LastUpdate) {
		return
	}
	cs.session = s
}

// evaluateLocked recomputes the alarm from scratch.
func (c *Controller) evaluateLocked(clientID string, cs *clientState) {
	var zones []report.Report
	if c.zones != nil {
		zones = c.zones.Zones()
	}

	alarm := Evaluate(c.now(), cs.session, zones, cs.params)
	wasAlert := cs.alarm != nil && cs.alarm.IsDangerAlert
	cs.alarm = &alarm

	if alarm.IsDangerAlert && !wasAlert {
		c.logger.Warn().
			Str("client_id", clientID).
			Str("trip_code", cs.code).
			Str("zone_id", alarm.NearestZoneID).
			Dur("stale_for", alarm.StaleFor).
			Msg("danger alarm raised")
	}
	if !alarm.IsDangerAlert && wasAlert {
		c.logger.Info().
			Str("client_id", clientID).
			Str("trip_code", cs.code).
			Msg("danger alarm cleared")
	}
}

func (c *Controller) alarmParams(ctx context.Context) AlarmParams {
	p := DefaultAlarmParams()
	if c.thresholds != nil {
		if d := c.thresholds.AlarmStaleThreshold(ctx); d > 0 {
			p.StaleThreshold = d
		}
	}
	return p
}

// Status returns the client's current trip state.
func (c *Controller) Status(clientID string) View {
	c.mu.Lock()
	defer c.mu.Unlock()

	cs, ok := c.clients[clientID]
	if !ok {
		return View{Role: RoleIdle}
	}
	return cs.view()
}

// Stop ends whatever the client is doing. A shared session is deleted.
func (c *Controller) Stop(clientID string) {
	c.mu.Lock()
	cs, ok := c.clients[clientID]
	if !ok {
		c.mu.Unlock()
		return
	}
	stop := c.teardownLocked(cs)
	delete(c.clients, clientID)
	c.mu.Unlock()

	stop()
}

// Close stops every client and waits for their loops to exit.
func (c *Controller) Close() {
	c.mu.Lock()
	c.closed = true
	stops := make([]func(), 0, len(c.clients))
	for id, cs := range c.clients {
		stops = append(stops, c.teardownLocked(cs))
		delete(c.clients, id)
	}
	c.mu.Unlock()

	for _, stop := range stops {
		stop()
	}
	c.wg.Wait()
}

func (c *Controller) clientLocked(clientID string) *clientState {
	cs, ok := c.clients[clientID]
	if !ok {
		cs = &clientState{role: RoleIdle}
		c.clients[clientID] = cs
	}
	return cs
}

func (c *Controller) currentLocked(clientID string, gen uint64) (*clientState, bool) {
	cs, ok := c.clients[clientID]
	if !ok || cs.generation != gen {
		return nil, false
	}
	return cs, true
}

// teardownLocked resets the client to idle and returns the cleanup to run
// once c.mu is released.
func (c *Controller) teardownLocked(cs *clientState) func() {
	cs.generation++
	stop, role, code := cs.stop, cs.role, cs.code

	cs.role = RoleIdle
	cs.code = ""
	cs.location = geo.Coordinate{}
	cs.session = Session{}
	cs.alarm = nil
	cs.stop = nil

	return func() {
		if stop != nil {
			stop()
		}
		if role == RoleSharing {
			c.endSession(code)
		}
	}
}

func (c *Controller) endSession(code string) {
	ctx, cancel := context.WithTimeout(context.Background(), c.pushTimeout)
	defer cancel()

	if err := c.store.Delete(ctx, code); err != nil {
		c.logger.Warn().Err(err).Str("trip_code", code).Msg("failed to end trip session")
	}
}
