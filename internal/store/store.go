// Package store defines the persistence collaborators of the calendar.
package store

import (
	"context"
	"errors"
	"time"

	"teamsync/internal/model"
)

// ErrNotFound is returned when a record with the requested id does not exist.
var ErrNotFound = errors.New("not found")

// EventStore persists series records keyed by id.
type EventStore interface {
	List(ctx context.Context) ([]model.Event, error)
	// Put upserts ev by its id.
	Put(ctx context.Context, ev model.Event) error
	Delete(ctx context.Context, id string) error
}

// UserDirectory persists team members.
type UserDirectory interface {
	ListUsers(ctx context.Context) ([]model.User, error)
	PutUser(ctx context.Context, u model.User) error
	DeleteUser(ctx context.Context, id string) error
}

// Store is the full backend used by the server and the proxy.
type Store interface {
	EventStore
	UserDirectory
}

// Batcher is implemented by stores that can apply several writes in one
// transaction.
type Batcher interface {
	ApplyBatch(ctx context.Context, ops []Op) error
}

// OpKind selects what an Op does.
type OpKind string

const (
	OpPut    OpKind = "put"
	OpDelete OpKind = "delete"
)

// Op is a single write against an EventStore.
type Op struct {
	Kind  OpKind      `json:"kind"`
	Event model.Event `json:"event"`
	ID    string      `json:"id,omitempty"`
}

// PutOp upserts ev.
func PutOp(ev model.Event) Op {
	return Op{Kind: OpPut, Event: ev, ID: ev.ID}
}

// DeleteOp removes the record with id.
func DeleteOp(id string) Op {
	return Op{Kind: OpDelete, ID: id}
}

// Apply runs op against s.
func Apply(ctx context.Context, s EventStore, op Op) error {
	switch op.Kind {
	case OpPut:
		return s.Put(ctx, op.Event)
	case OpDelete:
		return s.Delete(ctx, op.ID)
	}
	return errors.New("store: unknown op kind " + string(op.Kind))
}

// Find returns the event with id from events.
func Find(events []model.Event, id string) (model.Event, bool) {
	for _, ev := range events {
		if ev.ID == id {
			return ev, true
		}
	}
	return model.Event{}, false
}

// FindUser returns the user with id from users.
func FindUser(users []model.User, id string) (model.User, bool) {
	for _, u := range users {
		if u.ID == id {
			return u, true
		}
	}
	return model.User{}, false
}

// Lookup returns a series lookup over a listed snapshot.
func Lookup(events []model.Event) func(id string) (model.Event, bool) {
	byID := make(map[string]model.Event, len(events))
	for _, ev := range events {
		byID[ev.ID] = ev
	}
	return func(id string) (model.Event, bool) {
		ev, ok := byID[id]
		return ev, ok
	}
}

// EnsureAdmin seeds the default administrator into an empty directory and
// returns the resulting member list.
func EnsureAdmin(ctx context.Context, d UserDirectory) ([]model.User, error) {
	users, err := d.ListUsers(ctx)
	if err != nil {
		return nil, err
	}
	if len(users) > 0 {
		return users, nil
	}
	admin := model.DefaultAdmin()
	admin.CreatedAt = time.Now().UTC().Format(time.RFC3339)
	if err := d.PutUser(ctx, admin); err != nil {
		return nil, err
	}
	return []model.User{admin}, nil
}
