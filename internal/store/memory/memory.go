package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"teamsync/internal/model"
	"teamsync/internal/store"
)

// Store keeps events and users in process memory. It backs local
// development and tests.
type Store struct {
	mu     sync.RWMutex
	events map[string]model.Event
	users  map[string]model.User
}

// NewStore returns an empty store.
func NewStore() *Store {
	return &Store{
		events: make(map[string]model.Event),
		users:  make(map[string]model.User),
	}
}

// NewSeeded seeds the store with the demo team so the UI can render immediately.
func NewSeeded() *Store {
	s := NewStore()
	now := time.Now().UTC().Format(time.RFC3339)
	for _, u := range model.DemoTeam() {
		u.CreatedAt = now
		s.users[u.ID] = u
	}
	return s
}

// List returns every stored series ordered by anchor date then id.
func (s *Store) List(_ context.Context) ([]model.Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]model.Event, 0, len(s.events))
	for _, ev := range s.events {
		out = append(out, ev.Normalized())
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Date != out[j].Date {
			return out[i].Date < out[j].Date
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

// Put upserts ev.
func (s *Store) Put(_ context.Context, ev model.Event) error {
	if ev.ID == "" {
		return fmt.Errorf("memory: put event: empty id")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events[ev.ID] = ev.Clone()
	return nil
}

// Delete removes the series with id.
func (s *Store) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.events[id]; !ok {
		return fmt.Errorf("memory: delete event %q: %w", id, store.ErrNotFound)
	}
	delete(s.events, id)
	return nil
}

// ApplyBatch applies ops under a single lock against a working copy,
// so each op sees the ones before it and a failing batch leaves the store
// untouched.
func (s *Store) ApplyBatch(_ context.Context, ops []store.Op) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	next := make(map[string]model.Event, len(s.events))
	for id, ev := range s.events {
		next[id] = ev
	}
	for i, op := range ops {
		switch op.Kind {
		case store.OpPut:
			if op.Event.ID == "" {
				return fmt.Errorf("memory: batch op %d: empty id", i)
			}
			next[op.Event.ID] = op.Event.Clone()
		case store.OpDelete:
			if _, ok := next[op.ID]; !ok {
				return fmt.Errorf("memory: batch op %d: delete %q: %w", i, op.ID, store.ErrNotFound)
			}
			delete(next, op.ID)
		default:
			return fmt.Errorf("memory: batch op %d: unknown kind %q", i, op.Kind)
		}
	}
	s.events = next
	return nil
}

// ListUsers returns every member ordered by id.
func (s *Store) ListUsers(_ context.Context) ([]model.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]model.User, 0, len(s.users))
	for _, u := range s.users {
		out = append(out, u)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// PutUser upserts u.
func (s *Store) PutUser(_ context.Context, u model.User) error {
	if u.ID == "" {
		return fmt.Errorf("memory: put user: empty id")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.users[u.ID] = u
	return nil
}

// DeleteUser removes the member with id.
func (s *Store) DeleteUser(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.users[id]; !ok {
		return fmt.Errorf("memory: delete user %q: %w", id, store.ErrNotFound)
	}
	delete(s.users, id)
	return nil
}
