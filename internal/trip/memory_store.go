package trip

import (
	"context"
	"sync"
	"time"

	"github.com/mradl/mradl/internal/geo"
)

// MemoryStore is an in-process Store. Subscribers are called synchronously
// from Push and Delete.
type MemoryStore struct {
	mu       sync.Mutex
	sessions map[string]Session
	subs     map[string]map[int]func(Session)
	nextSub  int
	now      func() time.Time
}

// NewMemoryStore creates a MemoryStore stamped by now, or time.Now if nil.
func NewMemoryStore(now func() time.Time) *MemoryStore {
	if now == nil {
		now = time.Now
	}
	return &MemoryStore{
		sessions: make(map[string]Session),
		subs:     make(map[string]map[int]func(Session)),
		now:      now,
	}
}

// Create stores a new session under code.
func (s *MemoryStore) Create(_ context.Context, code string, loc geo.Coordinate) (Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.sessions[code]; ok {
		return Session{}, ErrCodeTaken
	}
	now := s.now().UTC()
	sess := Session{ID: code, Location: loc, LastUpdate: now, StartedAt: now, Status: StatusActive}
	s.sessions[code] = sess
	return sess, nil
}

// Push records the rider's position and notifies subscribers.
func (s *MemoryStore) Push(_ context.Context, code string, loc geo.Coordinate) (Session, error) {
	s.mu.Lock()
	sess, ok := s.sessions[code]
	if !ok {
		s.mu.Unlock()
		return Session{}, ErrSessionNotFound
	}
	sess.Location = loc
	sess.LastUpdate = s.now().UTC()
	sess.Status = StatusActive
	s.sessions[code] = sess

	handlers := s.handlersLocked(code)
	s.mu.Unlock()

	for _, fn := range handlers {
		fn(sess)
	}
	return sess, nil
}

func (s *MemoryStore) handlersLocked(code string) []func(Session) {
	handlers := make([]func(Session), 0, len(s.subs[code]))
	for _, fn := range s.subs[code] {
		handlers = append(handlers, fn)
	}
	return handlers
}

// Get reads a session.
func (s *MemoryStore) Get(_ context.Context, code string) (Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[code]
	if !ok {
		return Session{}, ErrSessionNotFound
	}
	return sess, nil
}

// Delete removes a session and tells subscribers it ended.
func (s *MemoryStore) Delete(_ context.Context, code string) error {
	s.mu.Lock()
	sess, ok := s.sessions[code]
	if !ok {
		s.mu.Unlock()
		return nil
	}
	delete(s.sessions, code)
	handlers := s.handlersLocked(code)
	s.mu.Unlock()

	sess.Status = StatusEnded
	for _, fn := range handlers {
		fn(sess)
	}
	return nil
}

// Subscribe registers onChange for pushes to code.
func (s *MemoryStore) Subscribe(_ context.Context, code string, onChange func(Session)) (func(), error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id := s.nextSub
	s.nextSub++
	if s.subs[code] == nil {
		s.subs[code] = make(map[int]func(Session))
	}
	s.subs[code][id] = onChange

	return func() {
		s.mu.Lock()
		delete(s.subs[code], id)
		s.mu.Unlock()
	}, nil
}

var _ Store = (*MemoryStore)(nil)
