package memory

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"teamsync/internal/model"
	"teamsync/internal/store"
)

func TestEventsCRUD(t *testing.T) {
	ctx := context.Background()
	s := NewStore()

	ev := model.Event{ID: "b", Title: "Review", Date: "2024-02-01", StartTime: "10:00", EndTime: "11:00", AdminColor: model.ColorRed}
	require.NoError(t, s.Put(ctx, ev))
	require.NoError(t, s.Put(ctx, model.Event{ID: "a", Title: "Kickoff", Date: "2024-01-01"}))

	got, err := s.List(ctx)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "a", got[0].ID)
	// records are normalized on read
	assert.Equal(t, model.ColorRed, got[1].Color)
	assert.Empty(t, got[1].AdminColor)

	ev.Title = "Review v2"
	require.NoError(t, s.Put(ctx, ev))
	got, _ = s.List(ctx)
	assert.Equal(t, "Review v2", got[1].Title)

	require.NoError(t, s.Delete(ctx, "a"))
	err = s.Delete(ctx, "a")
	assert.True(t, errors.Is(err, store.ErrNotFound))
}

func TestPutCopiesSlices(t *testing.T) {
	ctx := context.Background()
	s := NewStore()
	tags := []string{"Ops"}
	require.NoError(t, s.Put(ctx, model.Event{ID: "a", Tags: tags}))
	tags[0] = "Changed"

	got, _ := s.List(ctx)
	assert.Equal(t, []string{"Ops"}, got[0].Tags)
}

func TestApplyBatchAllOrNothing(t *testing.T) {
	ctx := context.Background()
	s := NewStore()
	require.NoError(t, s.Put(ctx, model.Event{ID: "a", Title: "A"}))

	err := s.ApplyBatch(ctx, []store.Op{
		store.PutOp(model.Event{ID: "a", Title: "A2"}),
		store.DeleteOp("missing"),
	})
	require.ErrorIs(t, err, store.ErrNotFound)
	got, _ := s.List(ctx)
	assert.Equal(t, "A", got[0].Title)

	require.NoError(t, s.ApplyBatch(ctx, []store.Op{
		store.PutOp(model.Event{ID: "a", Title: "A2"}),
		store.PutOp(model.Event{ID: "b", Title: "B"}),
	}))
	got, _ = s.List(ctx)
	require.Len(t, got, 2)
	assert.Equal(t, "A2", got[0].Title)
}

func TestApplyBatchSeesEarlierOps(t *testing.T) {
	ctx := context.Background()
	s := NewStore()
	require.NoError(t, s.Put(ctx, model.Event{ID: "a", Title: "A"}))

	require.NoError(t, s.ApplyBatch(ctx, []store.Op{
		store.PutOp(model.Event{ID: "x", Title: "X"}),
		store.DeleteOp("x"),
	}))
	got, _ := s.List(ctx)
	require.Len(t, got, 1)
	assert.Equal(t, "a", got[0].ID)

	err := s.ApplyBatch(ctx, []store.Op{
		store.DeleteOp("a"),
		store.DeleteOp("a"),
	})
	require.ErrorIs(t, err, store.ErrNotFound)
	got, _ = s.List(ctx)
	require.Len(t, got, 1)
}

func TestSeededUsers(t *testing.T) {
	ctx := context.Background()
	s := NewSeeded()

	users, err := s.ListUsers(ctx)
	require.NoError(t, err)
	require.Len(t, users, 5)
	assert.Equal(t, "admin-1", users[0].ID)
	assert.NotEmpty(t, users[0].CreatedAt)

	require.NoError(t, s.DeleteUser(ctx, "user-4"))
	assert.ErrorIs(t, s.DeleteUser(ctx, "user-4"), store.ErrNotFound)

	require.NoError(t, s.PutUser(ctx, model.User{ID: "user-9", Username: "new", Role: model.RoleUser}))
	users, _ = s.ListUsers(ctx)
	assert.Len(t, users, 5)
}
