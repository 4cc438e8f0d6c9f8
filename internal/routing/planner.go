package routing

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/mradl/mradl/internal/geo"
)

// Geocoder resolves destination text.
type Geocoder interface {
	Geocode(ctx context.Context, query string) (geo.Coordinate, error)
}

// CoverageSampler produces the final note for a selected route.
type CoverageSampler interface {
	SampleNote(ctx context.Context, mode Mode, route []geo.Coordinate, bbox geo.BoundingBox) (string, error)
}

// PlannerConfig holds configuration for the planner.
type PlannerConfig struct {
	Geocoder Geocoder
	Fetcher  *Fetcher

	// Sampler is optional; without it notes stay provisional.
	Sampler CoverageSampler

	// SampleTimeout bounds one background sampling run (default: 30s).
	SampleTimeout time.Duration

	// BBoxPadding pads the origin-destination span in degrees (default: 0.01).
	BBoxPadding float64

	// Retention is how long superseded selections stay readable by id (default: 1h).
	Retention time.Duration

	Logger zerolog.Logger
}

// PlanRequest asks for a route from Origin to a free-text destination.
type PlanRequest struct {
	ClientID    string
	Origin      geo.Coordinate
	Destination string
	Mode        Mode
}

// Planner runs geocode, fetch and select, and keeps each client's current
// selection. Coverage notes are attached in the background.
type Planner struct {
	geocoder      Geocoder
	fetcher       *Fetcher
	sampler       CoverageSampler
	sampleTimeout time.Duration
	padding       float64
	retention     time.Duration
	logger        zerolog.Logger
	now           func() time.Time

	mu         sync.RWMutex
	selections map[string]*Selection
	current    map[string]string
	modes      map[string]*ModeState
	// issued counts Plan calls per client; applied is the sequence of the
	// client's current selection.
	issued  map[string]uint64
	applied map[string]uint64

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewPlanner creates a planner.
func NewPlanner(cfg PlannerConfig) *Planner {
	sampleTimeout := cfg.SampleTimeout
	if sampleTimeout == 0 {
		sampleTimeout = 30 * time.Second
	}

	padding := cfg.BBoxPadding
	if padding == 0 {
		padding = 0.01
	}

	retention := cfg.Retention
	if retention == 0 {
		retention = time.Hour
	}

	ctx, cancel := context.WithCancel(context.Background())

	return &Planner{
		geocoder:      cfg.Geocoder,
		fetcher:       cfg.Fetcher,
		sampler:       cfg.Sampler,
		sampleTimeout: sampleTimeout,
		padding:       padding,
		retention:     retention,
		logger:        cfg.Logger,
		now:           time.Now,
		selections:    make(map[string]*Selection),
		current:       make(map[string]string),
		modes:         make(map[string]*ModeState),
		issued:        make(map[string]uint64),
		applied:       make(map[string]uint64),
		ctx:           ctx,
		cancel:        cancel,
	}
}

// Plan computes and stores a selection for the client. On any error the
// client's previous selection is left as it was. When a later Plan of the
// same client finishes first, this one is kept readable by id only.
func (p *Planner) Plan(ctx context.Context, req PlanRequest) (Selection, error) {
	if _, err := ParseMode(string(req.Mode)); err != nil {
		return Selection{}, err
	}
	if err := req.Origin.Validate(); err != nil {
		return Selection{}, fmt.Errorf("%w: origin", ErrInvalidCoordinates)
	}

	seq := p.begin(req.ClientID)

	destination, err := p.geocoder.Geocode(ctx, req.Destination)
	if err != nil {
		return Selection{}, fmt.Errorf("geocode destination: %w", err)
	}

	set, err := p.fetcher.FetchCandidates(ctx, req.Origin, destination)
	if err != nil {
		return Selection{}, err
	}

	sel, err := Select(set, req.Mode)
	if err != nil {
		return Selection{}, err
	}

	sel.ID = uuid.New().String()
	sel.ClientID = req.ClientID
	sel.Origin = req.Origin
	sel.Destination = destination
	sel.CreatedAt = p.now()
	sel.NoteFinal = req.Mode == ModeDirect || p.sampler == nil

	if !p.store(&sel, seq) {
		p.logger.Info().
			Str("selection_id", sel.ID).
			Str("client_id", req.ClientID).
			Msg("route selected after a newer plan, not made current")
		return sel, nil
	}

	p.logger.Info().
		Str("selection_id", sel.ID).
		Str("client_id", req.ClientID).
		Str("mode", string(sel.Mode)).
		Str("profile", string(sel.Candidate.Profile)).
		Bool("fallback", sel.Fallback).
		Int("candidates", set.Count()).
		Msg("route selected")

	if !sel.NoteFinal {
		bbox := geo.BoundingBoxOf(req.Origin, destination).Pad(p.padding)
		p.wg.Add(1)
		go p.annotate(sel.ID, sel.Mode, sel.Candidate.Points, bbox)
	}

	return sel, nil
}

func (p *Planner) begin(clientID string) uint64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.issued[clientID]++
	return p.issued[clientID]
}

// store saves sel and makes it current unless a plan started later already
// is. It reports whether sel became current.
func (p *Planner) store(sel *Selection, seq uint64) bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	stored := *sel
	p.selections[sel.ID] = &stored
	defer p.pruneLocked(sel.CreatedAt)

	if seq < p.applied[sel.ClientID] {
		return false
	}
	p.applied[sel.ClientID] = seq
	p.current[sel.ClientID] = sel.ID

	ms, ok := p.modes[sel.ClientID]
	if !ok {
		ms = NewModeState(sel.Mode)
		p.modes[sel.ClientID] = ms
	}
	_ = ms.Set(sel.Mode)
	return true
}

// pruneLocked drops superseded selections past the retention window.
func (p *Planner) pruneLocked(now time.Time) {
	for id, s := range p.selections {
		if p.current[s.ClientID] == id {
			continue
		}
		if now.Sub(s.CreatedAt) > p.retention {
			delete(p.selections, id)
		}
	}
}

// annotate samples coverage and overwrites the note once, provided the
// selection is still its client's current one.
func (p *Planner) annotate(id string, mode Mode, route []geo.Coordinate, bbox geo.BoundingBox) {
	defer p.wg.Done()

	ctx, cancel := context.WithTimeout(p.ctx, p.sampleTimeout)
	defer cancel()

	note, err := p.sampler.SampleNote(ctx, mode, route, bbox)
	if err != nil {
		p.logger.Warn().Err(err).
			Str("selection_id", id).
			Str("mode", string(mode)).
			Msg("coverage sampling failed, keeping provisional note")
		return
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	sel, ok := p.selections[id]
	if !ok || sel.NoteFinal || p.current[sel.ClientID] != id {
		p.logger.Debug().
			Str("selection_id", id).
			Msg("dropping coverage note for superseded selection")
		return
	}

	sel.Note = note
	sel.NoteFinal = true

	p.logger.Debug().
		Str("selection_id", id).
		Str("note", note).
		Msg("coverage note attached")
}

// Current returns the client's current selection.
func (p *Planner) Current(clientID string) (Selection, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	id, ok := p.current[clientID]
	if !ok {
		return Selection{}, ErrSelectionNotFound
	}
	return *p.selections[id], nil
}

// Get returns a selection by id.
func (p *Planner) Get(id string) (Selection, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	sel, ok := p.selections[id]
	if !ok {
		return Selection{}, ErrSelectionNotFound
	}
	return *sel, nil
}

// ActiveMode returns the client's active safety mode.
func (p *Planner) ActiveMode(clientID string) (Mode, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	ms, ok := p.modes[clientID]
	if !ok {
		return "", false
	}
	return ms.Active(), true
}

// Close cancels background sampling and waits for it to finish.
func (p *Planner) Close() {
	p.cancel()
	p.wg.Wait()
}
