// Package series plans the store writes behind edit and delete actions on
// a clicked occurrence.
//
// A plan is a WriteSet: an ordered list of puts and deletes. Planning is
// pure; Commit applies a WriteSet to an EventStore.
package series

import (
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"teamsync/internal/model"
	"teamsync/internal/recurrence"
	"teamsync/internal/store"
)

var (
	ErrSeriesNotFound  = errors.New("series not found")
	ErrScopeRequired   = errors.New("scope required for recurring series")
	ErrNotAnOccurrence = errors.New("date is not an occurrence of the series")
)

// Scope says how far an action propagates across a series.
type Scope string

const (
	ScopeUnset         Scope = ""
	ScopeThisOnly      Scope = "this-only"
	ScopeThisAndFuture Scope = "this-and-future"
)

// ParseScope accepts the wire form of a scope. The empty string is
// ScopeUnset, which is only valid for non-recurring series.
func ParseScope(s string) (Scope, error) {
	switch sc := Scope(strings.ToLower(strings.TrimSpace(s))); sc {
	case ScopeUnset, ScopeThisOnly, ScopeThisAndFuture:
		return sc, nil
	}
	return ScopeUnset, fmt.Errorf("%w: unknown scope %q", ErrScopeRequired, s)
}

// Lookup resolves a series by id.
type Lookup func(id string) (model.Event, bool)

// IDFunc returns a fresh series id. Ids must not contain '_'.
type IDFunc func() string

// WriteSet is the ordered list of writes produced by one action.
type WriteSet struct {
	Ops []store.Op
}

// Puts returns the events written by ws, in order.
func (ws WriteSet) Puts() []model.Event {
	var out []model.Event
	for _, op := range ws.Ops {
		if op.Kind == store.OpPut {
			out = append(out, op.Event)
		}
	}
	return out
}

func (ws *WriteSet) put(ev model.Event) { ws.Ops = append(ws.Ops, store.PutOp(ev)) }
func (ws *WriteSet) del(id string)      { ws.Ops = append(ws.Ops, store.DeleteOp(id)) }

// Mutator plans series edits and deletes.
type Mutator struct {
	NewID IDFunc
}

// New returns a Mutator that issues uuid ids.
func New() *Mutator {
	return &Mutator{NewID: uuid.NewString}
}

var defaultMutator = New()

// ApplyEdit plans an edit of the clicked occurrence with the default Mutator.
func ApplyEdit(lookup Lookup, clicked model.InstanceRef, edited model.Fields, scope Scope) (WriteSet, error) {
	return defaultMutator.ApplyEdit(lookup, clicked, edited, scope)
}

// ApplyDelete plans a delete of the clicked occurrence with the default Mutator.
func ApplyDelete(lookup Lookup, clicked model.InstanceRef, scope Scope) (WriteSet, error) {
	return defaultMutator.ApplyDelete(lookup, clicked, scope)
}

// Create builds a new series from the add-event form.
func Create(fields model.Fields, creator string) (model.Event, error) {
	return defaultMutator.Create(fields, creator)
}

// Create builds a new series from the add-event form.
func (m *Mutator) Create(fields model.Fields, creator string) (model.Event, error) {
	ev := model.Event{ID: m.NewID(), CreatedBy: creator}.WithFields(fields)
	if err := model.Validate(ev); err != nil {
		return model.Event{}, err
	}
	return ev, nil
}

// ApplyEdit plans the writes for editing the clicked occurrence.
//
// Non-recurring series are updated in place and scope is ignored. For a
// recurring series:
//
//   - this-only adds the clicked date to the series exceptions and creates
//     an independent one-off event carrying the edited fields
//   - this-and-future on the anchor rewrites the series in place; on a
//     later occurrence it bounds the series at the previous day and
//     starts a new series with the edited fields
func (m *Mutator) ApplyEdit(lookup Lookup, clicked model.InstanceRef, edited model.Fields, scope Scope) (WriteSet, error) {
	orig, err := m.resolve(lookup, clicked)
	if err != nil {
		return WriteSet{}, err
	}

	var ws WriteSet
	if !orig.Recurrence.Repeats() {
		ev := orig.WithFields(withDate(edited, clicked.Date))
		if err := model.Validate(ev); err != nil {
			return WriteSet{}, err
		}
		ws.put(ev)
		return ws, nil
	}

	switch scope {
	case ScopeThisOnly:
		f := withDate(edited, clicked.Date)
		f.Recurrence = model.RecurrenceNone
		f.RecurrenceEndsOn = ""
		fork := m.fork(orig, f)
		if err := model.Validate(fork); err != nil {
			return WriteSet{}, err
		}
		ws.put(withException(orig, clicked.Date))
		ws.put(fork)

	case ScopeThisAndFuture:
		f := withDate(edited, clicked.Date)
		if clicked.Date == orig.Date {
			ev := orig.WithFields(f)
			if err := model.Validate(ev); err != nil {
				return WriteSet{}, err
			}
			ws.put(ev)
			return ws, nil
		}
		bounded, err := boundedBefore(orig, clicked.Date)
		if err != nil {
			return WriteSet{}, err
		}
		fork := m.fork(orig, f)
		// Exceptions on or after the clicked date belong to the new series.
		fork.ExceptionDates = exceptionsFrom(orig, fork.Date)
		fork = fork.Normalized()
		if err := model.Validate(fork); err != nil {
			return WriteSet{}, err
		}
		ws.put(bounded)
		ws.put(fork)

	default:
		return WriteSet{}, scopeError(scope)
	}
	return ws, nil
}

// ApplyDelete plans the writes for deleting the clicked occurrence.
//
// Non-recurring series are deleted and scope is ignored. For a recurring
// series this-only adds an exception, and this-and-future deletes the
// series when clicked on the anchor or otherwise bounds it at the
// previous day.
func (m *Mutator) ApplyDelete(lookup Lookup, clicked model.InstanceRef, scope Scope) (WriteSet, error) {
	orig, err := m.resolve(lookup, clicked)
	if err != nil {
		return WriteSet{}, err
	}

	var ws WriteSet
	if !orig.Recurrence.Repeats() {
		ws.del(orig.ID)
		return ws, nil
	}

	switch scope {
	case ScopeThisOnly:
		ws.put(withException(orig, clicked.Date))
	case ScopeThisAndFuture:
		if clicked.Date == orig.Date {
			ws.del(orig.ID)
			return ws, nil
		}
		bounded, err := boundedBefore(orig, clicked.Date)
		if err != nil {
			return WriteSet{}, err
		}
		ws.put(bounded)
	default:
		return WriteSet{}, scopeError(scope)
	}
	return ws, nil
}

func (m *Mutator) resolve(lookup Lookup, clicked model.InstanceRef) (model.Event, error) {
	orig, ok := lookup(clicked.SeriesID)
	if !ok {
		return model.Event{}, fmt.Errorf("%w: %q", ErrSeriesNotFound, clicked.SeriesID)
	}
	orig = orig.Normalized()
	if !recurrence.Occurs(orig, clicked.Date) {
		return model.Event{}, fmt.Errorf("%w: %s on %s", ErrNotAnOccurrence, clicked.SeriesID, clicked.Date)
	}
	return orig, nil
}

// fork starts a new series from orig carrying f. The creator is kept.
func (m *Mutator) fork(orig model.Event, f model.Fields) model.Event {
	base := orig.Clone()
	base.ID = m.NewID()
	base.ExceptionDates = nil
	return base.WithFields(f)
}

func scopeError(scope Scope) error {
	if scope == ScopeUnset {
		return ErrScopeRequired
	}
	return fmt.Errorf("%w: unknown scope %q", ErrScopeRequired, scope)
}

// withDate defaults an empty edited date to the clicked occurrence.
func withDate(f model.Fields, date string) model.Fields {
	if strings.TrimSpace(f.Date) == "" {
		f.Date = date
	}
	return f
}

func withException(ev model.Event, date string) model.Event {
	out := ev.Clone()
	if !out.HasException(date) {
		out.ExceptionDates = append(out.ExceptionDates, date)
	}
	return out
}

// boundedBefore ends ev on the day before date. An existing earlier bound
// is kept.
func boundedBefore(ev model.Event, date string) (model.Event, error) {
	prev, err := model.DayBefore(date)
	if err != nil {
		return model.Event{}, err
	}
	out := ev.Clone()
	if out.RecurrenceEndsOn == "" || out.RecurrenceEndsOn > prev {
		out.RecurrenceEndsOn = prev
	}
	// Exceptions past the new bound can no longer apply.
	kept := out.ExceptionDates[:0]
	for _, d := range out.ExceptionDates {
		if d <= prev {
			kept = append(kept, d)
		}
	}
	out.ExceptionDates = kept
	if len(out.ExceptionDates) == 0 {
		out.ExceptionDates = nil
	}
	return out, nil
}

func exceptionsFrom(ev model.Event, date string) []string {
	var out []string
	for _, d := range ev.ExceptionDates {
		if d >= date {
			out = append(out, d)
		}
	}
	return out
}
