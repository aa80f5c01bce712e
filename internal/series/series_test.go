package series

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"teamsync/internal/model"
	"teamsync/internal/recurrence"
	"teamsync/internal/store"
	"teamsync/internal/store/memory"
)

func weekly() model.Event {
	return model.Event{
		ID:            "s1",
		Title:         "Standup",
		Description:   "daily sync",
		Date:          "2024-01-01",
		StartTime:     "09:00",
		EndTime:       "09:30",
		TaggedUserIDs: []string{"user-1"},
		CreatedBy:     "admin-1",
		Color:         model.ColorBlue,
		Recurrence:    model.RecurrenceWeekly,
		Tags:          []string{"Team"},
	}
}

func lookupOf(events ...model.Event) Lookup {
	return Lookup(store.Lookup(events))
}

func seqIDs() IDFunc {
	n := 0
	return func() string {
		n++
		return fmt.Sprintf("new-%d", n)
	}
}

func testMutator() *Mutator {
	return &Mutator{NewID: seqIDs()}
}

// apply commits ws to a memory store holding events and returns the
// stored state afterwards.
func apply(t *testing.T, ws WriteSet, events ...model.Event) []model.Event {
	t.Helper()
	ctx := context.Background()
	s := memory.NewStore()
	for _, ev := range events {
		require.NoError(t, s.Put(ctx, ev))
	}
	require.NoError(t, Commit(ctx, s, ws))
	out, err := s.List(ctx)
	require.NoError(t, err)
	return out
}

func januaryDates(events []model.Event) []string {
	var out []string
	for _, in := range recurrence.Expand(events, 2024, time.January) {
		out = append(out, in.Ref.Date)
	}
	return out
}

func ref(date string) model.InstanceRef {
	return model.InstanceRef{SeriesID: "s1", Date: date}
}

func TestDeleteThisOnly(t *testing.T) {
	orig := weekly()
	ws, err := testMutator().ApplyDelete(lookupOf(orig), ref("2024-01-15"), ScopeThisOnly)
	require.NoError(t, err)
	require.Len(t, ws.Ops, 1)
	assert.Equal(t, store.OpPut, ws.Ops[0].Kind)
	assert.Equal(t, []string{"2024-01-15"}, ws.Ops[0].Event.ExceptionDates)

	after := apply(t, ws, orig)
	assert.Equal(t, []string{"2024-01-01", "2024-01-08", "2024-01-22", "2024-01-29"}, januaryDates(after))

	// the original record passed in is not modified
	assert.Empty(t, orig.ExceptionDates)
}

func TestDeleteThisOnlyAppendsException(t *testing.T) {
	orig := weekly()
	orig.ExceptionDates = []string{"2024-01-08"}
	ws, err := testMutator().ApplyDelete(lookupOf(orig), ref("2024-01-22"), ScopeThisOnly)
	require.NoError(t, err)
	assert.Equal(t, []string{"2024-01-08", "2024-01-22"}, ws.Ops[0].Event.ExceptionDates)

	// an already excepted date is no longer an occurrence
	_, err = testMutator().ApplyDelete(lookupOf(orig), ref("2024-01-08"), ScopeThisOnly)
	assert.ErrorIs(t, err, ErrNotAnOccurrence)
}

func TestDeleteThisAndFutureMidSeries(t *testing.T) {
	orig := weekly()
	ws, err := testMutator().ApplyDelete(lookupOf(orig), ref("2024-01-15"), ScopeThisAndFuture)
	require.NoError(t, err)
	require.Len(t, ws.Ops, 1)
	assert.Equal(t, "2024-01-14", ws.Ops[0].Event.RecurrenceEndsOn)

	after := apply(t, ws, orig)
	assert.Equal(t, []string{"2024-01-01", "2024-01-08"}, januaryDates(after))
}

func TestDeleteThisAndFutureAcrossMonthBoundary(t *testing.T) {
	orig := weekly()
	orig.Date = "2024-02-01"
	orig.Recurrence = model.RecurrenceDaily
	ws, err := testMutator().ApplyDelete(lookupOf(orig), ref("2024-03-01"), ScopeThisAndFuture)
	require.NoError(t, err)
	assert.Equal(t, "2024-02-29", ws.Ops[0].Event.RecurrenceEndsOn)
}

func TestDeleteThisAndFutureOnAnchorDeletesSeries(t *testing.T) {
	orig := weekly()
	ws, err := testMutator().ApplyDelete(lookupOf(orig), ref("2024-01-01"), ScopeThisAndFuture)
	require.NoError(t, err)
	require.Len(t, ws.Ops, 1)
	assert.Equal(t, store.DeleteOp("s1"), ws.Ops[0])

	assert.Empty(t, apply(t, ws, orig))
}

func TestNonRecurringIgnoresScope(t *testing.T) {
	one := weekly()
	one.Recurrence = model.RecurrenceNone

	for _, scope := range []Scope{ScopeUnset, ScopeThisOnly, ScopeThisAndFuture} {
		ws, err := testMutator().ApplyDelete(lookupOf(one), ref("2024-01-01"), scope)
		require.NoError(t, err, scope)
		assert.Equal(t, []store.Op{store.DeleteOp("s1")}, ws.Ops)

		f := one.Fields()
		f.Title = "Moved"
		f.Date = "2024-01-03"
		ws, err = testMutator().ApplyEdit(lookupOf(one), ref("2024-01-01"), f, scope)
		require.NoError(t, err, scope)
		require.Len(t, ws.Ops, 1)
		assert.Equal(t, "s1", ws.Ops[0].Event.ID)
		assert.Equal(t, "2024-01-03", ws.Ops[0].Event.Date)
		assert.Equal(t, "Moved", ws.Ops[0].Event.Title)
	}
}

func TestRecurringRequiresScope(t *testing.T) {
	orig := weekly()
	_, err := testMutator().ApplyDelete(lookupOf(orig), ref("2024-01-08"), ScopeUnset)
	assert.ErrorIs(t, err, ErrScopeRequired)

	_, err = testMutator().ApplyEdit(lookupOf(orig), ref("2024-01-08"), orig.Fields(), Scope("everything"))
	assert.ErrorIs(t, err, ErrScopeRequired)
}

func TestUnknownSeriesAndDate(t *testing.T) {
	orig := weekly()
	_, err := testMutator().ApplyDelete(lookupOf(orig), model.InstanceRef{SeriesID: "nope", Date: "2024-01-08"}, ScopeThisOnly)
	assert.ErrorIs(t, err, ErrSeriesNotFound)

	for _, d := range []string{"2024-01-09", "2023-12-25"} {
		_, err = testMutator().ApplyEdit(lookupOf(orig), ref(d), orig.Fields(), ScopeThisOnly)
		assert.ErrorIs(t, err, ErrNotAnOccurrence, d)
	}
}

func TestEditThisOnly(t *testing.T) {
	orig := weekly()
	f := orig.Fields()
	f.Date = "2024-01-15"
	f.Title = "Moved standup"
	f.StartTime = "11:00"
	f.EndTime = "11:30"

	ws, err := testMutator().ApplyEdit(lookupOf(orig), ref("2024-01-15"), f, ScopeThisOnly)
	require.NoError(t, err)
	require.Len(t, ws.Ops, 2)

	updated, fork := ws.Ops[0].Event, ws.Ops[1].Event
	assert.Equal(t, "s1", updated.ID)
	assert.Equal(t, []string{"2024-01-15"}, updated.ExceptionDates)
	assert.Equal(t, "Standup", updated.Title)

	assert.Equal(t, "new-1", fork.ID)
	assert.Equal(t, model.RecurrenceNone, fork.Recurrence)
	assert.Equal(t, "2024-01-15", fork.Date)
	assert.Equal(t, "Moved standup", fork.Title)
	assert.Equal(t, "admin-1", fork.CreatedBy)
	assert.Empty(t, fork.ExceptionDates)
	assert.Empty(t, fork.RecurrenceEndsOn)

	after := apply(t, ws, orig)
	instances := recurrence.Expand(after, 2024, time.January)
	require.Len(t, instances, 5)
	for _, in := range instances {
		if in.Ref.Date == "2024-01-15" {
			assert.Equal(t, "Moved standup", in.Event.Title)
			assert.Equal(t, "new-1", in.Ref.SeriesID)
		} else {
			assert.Equal(t, "Standup", in.Event.Title)
			assert.Equal(t, "s1", in.Ref.SeriesID)
		}
	}
}

func TestEditThisOnlyWithNewDate(t *testing.T) {
	orig := weekly()
	f := orig.Fields()
	f.Date = "2024-01-16"

	ws, err := testMutator().ApplyEdit(lookupOf(orig), ref("2024-01-15"), f, ScopeThisOnly)
	require.NoError(t, err)
	assert.Equal(t, "2024-01-16", ws.Ops[1].Event.Date)

	after := apply(t, ws, orig)
	assert.Equal(t, []string{"2024-01-01", "2024-01-08", "2024-01-16", "2024-01-22", "2024-01-29"}, januaryDates(after))
}

func TestEditThisAndFutureMidSeries(t *testing.T) {
	orig := weekly()
	orig.ExceptionDates = []string{"2024-01-08", "2024-01-29"}
	f := orig.Fields()
	f.Title = "New standup"
	f.Date = ""

	ws, err := testMutator().ApplyEdit(lookupOf(orig), ref("2024-01-15"), f, ScopeThisAndFuture)
	require.NoError(t, err)
	require.Len(t, ws.Ops, 2)

	bounded, fork := ws.Ops[0].Event, ws.Ops[1].Event
	assert.Equal(t, "s1", bounded.ID)
	assert.Equal(t, "2024-01-14", bounded.RecurrenceEndsOn)
	assert.Equal(t, []string{"2024-01-08"}, bounded.ExceptionDates)

	assert.Equal(t, "new-1", fork.ID)
	assert.Equal(t, "2024-01-15", fork.Date)
	assert.Equal(t, model.RecurrenceWeekly, fork.Recurrence)
	assert.Equal(t, []string{"2024-01-29"}, fork.ExceptionDates)

	after := apply(t, ws, orig)
	instances := recurrence.Expand(after, 2024, time.January)
	var got []string
	for _, in := range instances {
		got = append(got, in.Ref.Date+" "+in.Event.Title)
	}
	assert.Equal(t, []string{"2024-01-01 Standup", "2024-01-15 New standup", "2024-01-22 New standup"}, got)
}

func TestEditThisAndFutureOnAnchorMutatesInPlace(t *testing.T) {
	orig := weekly()
	orig.ExceptionDates = []string{"2024-01-22"}
	f := orig.Fields()
	f.Recurrence = model.RecurrenceDaily
	f.Title = "Daily now"

	ws, err := testMutator().ApplyEdit(lookupOf(orig), ref("2024-01-01"), f, ScopeThisAndFuture)
	require.NoError(t, err)
	require.Len(t, ws.Ops, 1)

	ev := ws.Ops[0].Event
	assert.Equal(t, "s1", ev.ID)
	assert.Equal(t, model.RecurrenceDaily, ev.Recurrence)
	assert.Equal(t, "Daily now", ev.Title)
	assert.Equal(t, []string{"2024-01-22"}, ev.ExceptionDates)
	assert.Equal(t, "admin-1", ev.CreatedBy)
}

func TestEditRejectsInvalidFields(t *testing.T) {
	orig := weekly()
	f := orig.Fields()
	f.EndTime = "08:00"

	_, err := testMutator().ApplyEdit(lookupOf(orig), ref("2024-01-15"), f, ScopeThisOnly)
	assert.ErrorIs(t, err, model.ErrInvalidEvent)
	_, err = testMutator().ApplyEdit(lookupOf(orig), ref("2024-01-15"), f, ScopeThisAndFuture)
	assert.ErrorIs(t, err, model.ErrInvalidEvent)
}

func TestCreate(t *testing.T) {
	m := testMutator()
	ev, err := m.Create(model.Fields{Title: "Launch", Date: "2024-05-02", StartTime: "10:00", EndTime: "11:00"}, "admin-1")
	require.NoError(t, err)
	assert.Equal(t, "new-1", ev.ID)
	assert.Equal(t, "admin-1", ev.CreatedBy)
	assert.Equal(t, model.DefaultColor, ev.Color)
	assert.Equal(t, model.RecurrenceNone, ev.Recurrence)

	_, err = m.Create(model.Fields{Title: "", Date: "2024-05-02", StartTime: "10:00", EndTime: "11:00"}, "admin-1")
	assert.ErrorIs(t, err, model.ErrInvalidEvent)
}

func TestDefaultIDsHaveNoUnderscore(t *testing.T) {
	ev, err := Create(model.Fields{Title: "x", Date: "2024-05-02", StartTime: "10:00", EndTime: "11:00"}, "admin-1")
	require.NoError(t, err)
	assert.NotContains(t, ev.ID, "_")
	assert.Len(t, ev.ID, 36)
}

func TestParseScope(t *testing.T) {
	sc, err := ParseScope("This-Only")
	require.NoError(t, err)
	assert.Equal(t, ScopeThisOnly, sc)

	sc, err = ParseScope("")
	require.NoError(t, err)
	assert.Equal(t, ScopeUnset, sc)

	_, err = ParseScope("all")
	assert.ErrorIs(t, err, ErrScopeRequired)
}

// flakyStore fails the put of a given id and has no batch support.
type flakyStore struct {
	events map[string]model.Event
	failID string
}

func (f *flakyStore) List(context.Context) ([]model.Event, error) {
	out := make([]model.Event, 0, len(f.events))
	for _, ev := range f.events {
		out = append(out, ev)
	}
	return out, nil
}

func (f *flakyStore) Put(_ context.Context, ev model.Event) error {
	if ev.ID == f.failID {
		return errors.New("connection reset")
	}
	f.events[ev.ID] = ev
	return nil
}

func (f *flakyStore) Delete(_ context.Context, id string) error {
	delete(f.events, id)
	return nil
}

func TestCommitPartialFailure(t *testing.T) {
	orig := weekly()
	ws, err := testMutator().ApplyEdit(lookupOf(orig), ref("2024-01-15"), orig.Fields(), ScopeThisOnly)
	require.NoError(t, err)

	fs := &flakyStore{events: map[string]model.Event{"s1": orig}, failID: "new-1"}
	err = Commit(context.Background(), fs, ws)

	var pw *PartialWriteError
	require.True(t, errors.As(err, &pw))
	assert.Equal(t, 1, pw.Applied)
	assert.Equal(t, 2, pw.Total)
	assert.Equal(t, "new-1", pw.Op.ID)
	assert.EqualError(t, errors.Unwrap(err), "connection reset")

	// the exception was written, the fork was not
	assert.Equal(t, []string{"2024-01-15"}, fs.events["s1"].ExceptionDates)
	assert.Len(t, fs.events, 1)
}

func TestCommitUsesBatch(t *testing.T) {
	ctx := context.Background()
	s := memory.NewStore()
	require.NoError(t, s.Put(ctx, weekly()))

	ws := WriteSet{Ops: []store.Op{
		store.PutOp(model.Event{ID: "x", Title: "x"}),
		store.DeleteOp("missing"),
	}}
	err := Commit(ctx, s, ws)
	require.ErrorIs(t, err, store.ErrNotFound)

	events, _ := s.List(ctx)
	assert.Len(t, events, 1)
}

func TestWriteSetPuts(t *testing.T) {
	ws := WriteSet{Ops: []store.Op{store.DeleteOp("a"), store.PutOp(model.Event{ID: "b"})}}
	require.Len(t, ws.Puts(), 1)
	assert.Equal(t, "b", ws.Puts()[0].ID)
	assert.NoError(t, Commit(context.Background(), memory.NewStore(), WriteSet{}))
}

func TestRunnerRunsOnePlanAtATime(t *testing.T) {
	ctx := context.Background()
	s := memory.NewStore()
	var r Runner

	var active, peak atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := r.Run(ctx, s, "create", func(Lookup) (WriteSet, error) {
				n := active.Add(1)
				defer active.Add(-1)
				for {
					p := peak.Load()
					if n <= p || peak.CompareAndSwap(p, n) {
						break
					}
				}
				time.Sleep(time.Millisecond)
				return WriteSet{Ops: []store.Op{store.PutOp(model.Event{ID: fmt.Sprintf("e%d", i)})}}, nil
			})
			assert.NoError(t, err)
		}(i)
	}
	wg.Wait()

	assert.Equal(t, int32(1), peak.Load())
	got, err := s.List(ctx)
	require.NoError(t, err)
	assert.Len(t, got, 8)
}

func TestRunnerReturnsPlannedOpsOnFailure(t *testing.T) {
	var r Runner
	ws, err := r.Run(context.Background(), memory.NewStore(), "delete", func(Lookup) (WriteSet, error) {
		return WriteSet{Ops: []store.Op{store.DeleteOp("missing")}}, nil
	})
	require.ErrorIs(t, err, store.ErrNotFound)
	assert.Len(t, ws.Ops, 1)
}
