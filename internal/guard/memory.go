package guard

import (
	"context"
	"sync"
)

// MemoryGuestStore keeps guest counters in process memory.
type MemoryGuestStore struct {
	mu      sync.Mutex
	records map[string]GuestRecord
}

// NewMemoryGuestStore constructs a MemoryGuestStore.
func NewMemoryGuestStore() *MemoryGuestStore {
	return &MemoryGuestStore{records: make(map[string]GuestRecord)}
}

// ReadGuest returns the stored record for scope.
func (s *MemoryGuestStore) ReadGuest(_ context.Context, scope string) (GuestRecord, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	record, ok := s.records[scope]
	return record, ok, nil
}

// WriteGuest replaces the stored record for scope.
func (s *MemoryGuestStore) WriteGuest(_ context.Context, scope string, record GuestRecord) error {
	s.mu.Lock()
	s.records[scope] = record
	s.mu.Unlock()
	return nil
}

// ConsumeGuest applies one request to scope under the store lock.
func (s *MemoryGuestStore) ConsumeGuest(_ context.Context, scope, today string, limit int) (GuestRecord, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	record, found := s.records[scope]
	next, ok := nextGuestRecord(record, found, today, limit)
	if ok {
		s.records[scope] = next
	}
	return next, ok, nil
}

// MemoryUserStore keeps user quota rows in process memory.
type MemoryUserStore struct {
	mu      sync.Mutex
	records map[string]UserRecord
}

// NewMemoryUserStore constructs a MemoryUserStore.
func NewMemoryUserStore() *MemoryUserStore {
	return &MemoryUserStore{records: make(map[string]UserRecord)}
}

// Put creates or replaces the row for id.
func (s *MemoryUserStore) Put(id string, record UserRecord) {
	s.mu.Lock()
	s.records[id] = record
	s.mu.Unlock()
}

// ReadUser returns the row for id.
func (s *MemoryUserStore) ReadUser(_ context.Context, id string) (UserRecord, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	record, ok := s.records[id]
	return record, ok, nil
}

// WriteUser updates the row for id. Rows are only created through Put.
func (s *MemoryUserStore) WriteUser(_ context.Context, id string, record UserRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.records[id]; !ok {
		return ErrUserNotFound
	}
	s.records[id] = record
	return nil
}
