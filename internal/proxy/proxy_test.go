package proxy

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"teamsync/internal/model"
	"teamsync/internal/store/memory"
)

func newTestServer(t *testing.T, st *memory.Store) *Server {
	t.Helper()
	return NewServer(Config{Addr: "127.0.0.1:0"}, st)
}

func call(t *testing.T, srv *Server, method, path, body string) (int, []byte) {
	t.Helper()
	var r io.Reader
	if body != "" {
		r = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, r)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := srv.App().Test(req, -1)
	require.NoError(t, err)
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp.StatusCode, data
}

func TestLogin(t *testing.T) {
	srv := newTestServer(t, memory.NewSeeded())

	code, body := call(t, srv, http.MethodPost, "/login", `{"username":"admin","password":"admin"}`)
	require.Equal(t, http.StatusOK, code)
	var u model.User
	require.NoError(t, json.Unmarshal(body, &u))
	assert.Equal(t, "admin-1", u.ID)
	assert.Empty(t, u.Password)

	code, body = call(t, srv, http.MethodPost, "/login", `{"username":"admin","password":"nope"}`)
	assert.Equal(t, http.StatusUnauthorized, code)
	assert.JSONEq(t, `{"error":"Invalid credentials"}`, string(body))

	code, _ = call(t, srv, http.MethodPost, "/logout", "")
	assert.Equal(t, http.StatusOK, code)
}

func TestEventsCRUD(t *testing.T) {
	st := memory.NewSeeded()
	srv := newTestServer(t, st)

	code, body := call(t, srv, http.MethodGet, "/events", "")
	require.Equal(t, http.StatusOK, code)
	assert.JSONEq(t, `[]`, string(body))

	ev := `{"id":"s1","title":"Standup","date":"2024-01-01","startTime":"09:00","endTime":"09:15","adminColor":"pink","recurrence":"weekly"}`
	code, _ = call(t, srv, http.MethodPost, "/events", ev)
	require.Equal(t, http.StatusOK, code)

	code, body = call(t, srv, http.MethodGet, "/events", "")
	require.Equal(t, http.StatusOK, code)
	var events []model.Event
	require.NoError(t, json.Unmarshal(body, &events))
	require.Len(t, events, 1)
	assert.Equal(t, model.ColorPink, events[0].Color)
	assert.Equal(t, "event", events[0].Type)

	code, _ = call(t, srv, http.MethodPost, "/events", `{"title":"no id"}`)
	assert.Equal(t, http.StatusBadRequest, code)
	code, _ = call(t, srv, http.MethodPost, "/events", `not json`)
	assert.Equal(t, http.StatusBadRequest, code)

	code, _ = call(t, srv, http.MethodDelete, "/events/s1", "")
	assert.Equal(t, http.StatusOK, code)
	code, body = call(t, srv, http.MethodDelete, "/events/s1", "")
	assert.Equal(t, http.StatusNotFound, code)
	assert.Contains(t, string(body), "not found")
}

func TestUsersBootstrapAdmin(t *testing.T) {
	st := memory.NewStore()
	srv := newTestServer(t, st)

	code, body := call(t, srv, http.MethodGet, "/users", "")
	require.Equal(t, http.StatusOK, code)
	var users []model.User
	require.NoError(t, json.Unmarshal(body, &users))
	require.Len(t, users, 1)
	assert.Equal(t, "admin", users[0].Username)
	assert.Empty(t, users[0].Password)

	code, _ = call(t, srv, http.MethodPost, "/login", `{"username":"admin","password":"admin"}`)
	assert.Equal(t, http.StatusOK, code)
}

func TestPutUserKeepsPassword(t *testing.T) {
	st := memory.NewSeeded()
	srv := newTestServer(t, st)

	code, _ := call(t, srv, http.MethodPost, "/users", `{"id":"user-1","username":"user","name":"Jane Roe","role":"USER"}`)
	require.Equal(t, http.StatusOK, code)
	code, _ = call(t, srv, http.MethodPost, "/login", `{"username":"user","password":"user"}`)
	assert.Equal(t, http.StatusOK, code)

	code, _ = call(t, srv, http.MethodPost, "/users", `{"name":"nobody"}`)
	assert.Equal(t, http.StatusBadRequest, code)

	code, _ = call(t, srv, http.MethodDelete, "/users/user-1", "")
	assert.Equal(t, http.StatusOK, code)
	code, _ = call(t, srv, http.MethodDelete, "/users/user-1", "")
	assert.Equal(t, http.StatusNotFound, code)
}

func TestUnknownRoute(t *testing.T) {
	srv := newTestServer(t, memory.NewStore())
	code, body := call(t, srv, http.MethodGet, "/nope", "")
	assert.Equal(t, http.StatusNotFound, code)
	assert.JSONEq(t, `{"error":"Route not found: /nope"}`, string(body))

	code, body = call(t, srv, http.MethodGet, "/healthz", "")
	assert.Equal(t, http.StatusOK, code)
	assert.JSONEq(t, `{"status":"ok"}`, string(body))
}

func TestMetricsRoute(t *testing.T) {
	srv := newTestServer(t, memory.NewStore())
	call(t, srv, http.MethodGet, "/events", "")

	code, body := call(t, srv, http.MethodGet, "/metrics", "")
	assert.Equal(t, http.StatusOK, code)
	assert.Contains(t, string(body), `teamsync_http_requests_total{code="200",route="proxy GET /events"}`)
}
