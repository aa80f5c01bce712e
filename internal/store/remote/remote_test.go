package remote

import (
	"context"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"teamsync/internal/model"
	"teamsync/internal/proxy"
	"teamsync/internal/store"
	"teamsync/internal/store/memory"
)

func newClient(t *testing.T) *Client {
	t.Helper()
	srv := proxy.NewServer(proxy.Config{}, memory.NewSeeded())
	ts := httptest.NewServer(adaptor.FiberApp(srv.App()))
	t.Cleanup(ts.Close)

	c, err := New(ts.URL+"/", time.Second)
	require.NoError(t, err)
	return c
}

func TestNewRejectsBadURL(t *testing.T) {
	_, err := New("localhost:8090", time.Second)
	assert.Error(t, err)
	_, err = New("", time.Second)
	assert.Error(t, err)
}

func TestEventRoundTrip(t *testing.T) {
	ctx := context.Background()
	c := newClient(t)

	ev := model.Event{
		ID:            "s1",
		Title:         "Standup",
		Date:          "2024-01-01",
		StartTime:     "09:00",
		EndTime:       "09:15",
		UserColor:     model.ColorGreen,
		Recurrence:    model.RecurrenceWeekly,
		TaggedUserIDs: []string{"user-1"},
	}
	require.NoError(t, c.Put(ctx, ev))

	events, err := c.List(ctx)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, model.ColorGreen, events[0].Color)
	assert.Empty(t, events[0].UserColor)
	assert.Equal(t, []string{}, events[0].Tags)

	require.NoError(t, c.Delete(ctx, "s1"))
	err = c.Delete(ctx, "s1")
	assert.ErrorIs(t, err, store.ErrNotFound)

	err = c.Put(ctx, model.Event{Title: "no id"})
	var se *StatusError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, 400, se.Code)
	assert.Equal(t, "id is required", se.Msg)
}

func TestUsersAndLogin(t *testing.T) {
	ctx := context.Background()
	c := newClient(t)

	users, err := c.ListUsers(ctx)
	require.NoError(t, err)
	assert.Len(t, users, 5)
	for _, u := range users {
		assert.Empty(t, u.Password)
	}

	u, err := c.Login(ctx, "user2", "user2")
	require.NoError(t, err)
	assert.Equal(t, "user-2", u.ID)

	_, err = c.Login(ctx, "user2", "wrong")
	assert.ErrorIs(t, err, ErrUnauthorized)

	require.NoError(t, c.PutUser(ctx, model.User{ID: "user-5", Username: "eve", Name: "Eve", Role: model.RoleUser, Password: "pw"}))
	_, err = c.Login(ctx, "eve", "pw")
	require.NoError(t, err)

	require.NoError(t, c.DeleteUser(ctx, "user-5"))
	assert.ErrorIs(t, c.DeleteUser(ctx, "user-5"), store.ErrNotFound)
	assert.NoError(t, c.Logout(ctx))
}

func TestStoreSatisfiesInterface(t *testing.T) {
	var _ store.Store = (*Client)(nil)
}
