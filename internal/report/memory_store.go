package report

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryStore is an in-memory implementation of Store and Subscriber.
// Subscribers are notified synchronously from Insert.
type MemoryStore struct {
	mu      sync.RWMutex
	reports map[Collection][]Report
	subs    map[Collection]map[int]func([]Report)
	nextSub int
	last    time.Time
	now     func() time.Time
}

// NewMemoryStore creates a new in-memory report store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		reports: make(map[Collection][]Report),
		subs:    make(map[Collection]map[int]func([]Report)),
		now:     time.Now,
	}
}

// Insert stores a report and notifies subscribers of the collection.
func (s *MemoryStore) Insert(_ context.Context, collection Collection, lat, lng float64, reporter string) (Report, error) {
	s.mu.Lock()
	// Timestamps are strictly increasing so insertion order is report order.
	at := s.now().UTC()
	if !at.After(s.last) {
		at = s.last.Add(time.Nanosecond)
	}
	s.last = at

	r := Report{
		ID:         uuid.New().String(),
		Collection: collection,
		Lat:        lat,
		Lng:        lng,
		ReportedAt: at,
		Reporter:   reporter,
	}
	s.reports[collection] = append(s.reports[collection], r)
	snapshot := cloneReports(s.reports[collection])
	handlers := make([]func([]Report), 0, len(s.subs[collection]))
	for _, fn := range s.subs[collection] {
		handlers = append(handlers, fn)
	}
	s.mu.Unlock()

	for _, fn := range handlers {
		fn(cloneReports(snapshot))
	}
	return r, nil
}

// List returns all reports of a collection in insertion order.
func (s *MemoryStore) List(_ context.Context, collection Collection) ([]Report, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return cloneReports(s.reports[collection]), nil
}

// Subscribe delivers the current contents immediately, then after every insert.
func (s *MemoryStore) Subscribe(_ context.Context, collection Collection, onChange func([]Report)) (func(), error) {
	s.mu.Lock()
	id := s.nextSub
	s.nextSub++
	if s.subs[collection] == nil {
		s.subs[collection] = make(map[int]func([]Report))
	}
	s.subs[collection][id] = onChange
	snapshot := cloneReports(s.reports[collection])
	s.mu.Unlock()

	onChange(snapshot)

	return func() {
		s.mu.Lock()
		delete(s.subs[collection], id)
		s.mu.Unlock()
	}, nil
}

func cloneReports(in []Report) []Report {
	out := make([]Report, len(in))
	copy(out, in)
	return out
}

var (
	_ Store      = (*MemoryStore)(nil)
	_ Subscriber = (*MemoryStore)(nil)
)
