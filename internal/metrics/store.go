package metrics

import (
	"context"

	"teamsync/internal/model"
	"teamsync/internal/store"
)

// InstrumentStore counts every call made through s. Batch support of the
// wrapped store is preserved.
func InstrumentStore(s store.Store) store.Store {
	in := &instrumented{next: s}
	if b, ok := s.(store.Batcher); ok {
		return &instrumentedBatcher{instrumented: in, batch: b}
	}
	return in
}

type instrumented struct {
	next store.Store
}

func (s *instrumented) List(ctx context.Context) ([]model.Event, error) {
	out, err := s.next.List(ctx)
	ObserveStoreOp("list", err)
	return out, err
}

func (s *instrumented) Put(ctx context.Context, ev model.Event) error {
	err := s.next.Put(ctx, ev)
	ObserveStoreOp("put", err)
	return err
}

func (s *instrumented) Delete(ctx context.Context, id string) error {
	err := s.next.Delete(ctx, id)
	ObserveStoreOp("delete", err)
	return err
}

func (s *instrumented) ListUsers(ctx context.Context) ([]model.User, error) {
	out, err := s.next.ListUsers(ctx)
	ObserveStoreOp("list_users", err)
	return out, err
}

func (s *instrumented) PutUser(ctx context.Context, u model.User) error {
	err := s.next.PutUser(ctx, u)
	ObserveStoreOp("put_user", err)
	return err
}

func (s *instrumented) DeleteUser(ctx context.Context, id string) error {
	err := s.next.DeleteUser(ctx, id)
	ObserveStoreOp("delete_user", err)
	return err
}

// Unwrap returns the wrapped store.
func (s *instrumented) Unwrap() store.Store { return s.next }

type instrumentedBatcher struct {
	*instrumented
	batch store.Batcher
}

func (s *instrumentedBatcher) ApplyBatch(ctx context.Context, ops []store.Op) error {
	err := s.batch.ApplyBatch(ctx, ops)
	ObserveStoreOp("batch", err)
	return err
}
