package series

import (
	"context"
	"fmt"
	"sync"
	"time"

	appLog "teamsync/internal/log"
	"teamsync/internal/metrics"
	"teamsync/internal/store"
)

// PartialWriteError reports a WriteSet that stopped part way through on a
// store without transactions. The first Applied ops were written.
type PartialWriteError struct {
	Applied int
	Total   int
	Op      store.Op
	Err     error
}

func (e *PartialWriteError) Error() string {
	return fmt.Sprintf("write set stopped after %d of %d ops (%s %s): %v",
		e.Applied, e.Total, e.Op.Kind, e.Op.ID, e.Err)
}

func (e *PartialWriteError) Unwrap() error { return e.Err }

// Commit applies ws to s. Stores implementing store.Batcher get the whole
// set in one call. Otherwise ops run in order and stop at the first
// failure with no rollback.
func Commit(ctx context.Context, s store.EventStore, ws WriteSet) error {
	if len(ws.Ops) == 0 {
		return nil
	}
	if b, ok := s.(store.Batcher); ok {
		if err := b.ApplyBatch(ctx, ws.Ops); err != nil {
			return fmt.Errorf("apply batch: %w", err)
		}
		return nil
	}

	for i, op := range ws.Ops {
		if err := ctx.Err(); err != nil {
			return &PartialWriteError{Applied: i, Total: len(ws.Ops), Op: op, Err: err}
		}
		if err := store.Apply(ctx, s, op); err != nil {
			if i > 0 {
				appLog.Warn("series: write set partially applied",
					"applied", i, "total", len(ws.Ops), "op", op.Kind, "id", op.ID)
			}
			return &PartialWriteError{Applied: i, Total: len(ws.Ops), Op: op, Err: err}
		}
	}
	return nil
}

// Plan builds a WriteSet against the series currently in the store.
type Plan func(lookup Lookup) (WriteSet, error)

// Run loads the series of s, plans against them and commits the result.
// Callers serialize Run when concurrent plans could conflict.
func Run(ctx context.Context, s store.EventStore, plan Plan) (WriteSet, error) {
	current, err := s.List(ctx)
	if err != nil {
		return WriteSet{}, fmt.Errorf("load series: %w", err)
	}
	ws, err := plan(Lookup(store.Lookup(current)))
	if err != nil {
		return WriteSet{}, err
	}
	if err := Commit(ctx, s, ws); err != nil {
		return ws, err
	}
	return ws, nil
}

// Runner runs one plan at a time against a store and times each run
// under its action name. The zero value is ready to use.
type Runner struct {
	mu sync.Mutex
}

// Run is Run under the runner's lock.
func (r *Runner) Run(ctx context.Context, s store.EventStore, action string, plan Plan) (WriteSet, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	start := time.Now()
	defer func() { metrics.ObserveMutation(action, time.Since(start)) }()

	ws, err := Run(ctx, s, plan)
	if err != nil {
		if len(ws.Ops) > 0 {
			appLog.Error("series: commit failed", err, "action", action, "ops", len(ws.Ops))
		}
		return ws, err
	}
	appLog.Info("series: committed", "action", action, "ops", len(ws.Ops))
	return ws, nil
}
