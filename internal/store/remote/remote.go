// Package remote is the client of the key-value proxy (scan/put/delete
// over HTTP). See internal/proxy for the server side.
package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	appLog "teamsync/internal/log"
	"teamsync/internal/model"
	"teamsync/internal/store"
)

// ErrUnauthorized is returned by Login for rejected credentials.
var ErrUnauthorized = errors.New("invalid credentials")

// StatusError is a non-2xx response from the proxy.
type StatusError struct {
	Method string
	Path   string
	Code   int
	Msg    string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("remote: %s %s: %d %s", e.Method, e.Path, e.Code, e.Msg)
}

// Client talks to a proxy at BaseURL. It implements store.Store.
type Client struct {
	base   string
	client *http.Client
}

// New returns a client for the proxy at baseURL.
func New(baseURL string, timeout time.Duration) (*Client, error) {
	u, err := url.Parse(baseURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("remote: invalid base url %q", baseURL)
	}
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &Client{
		base:   strings.TrimRight(baseURL, "/"),
		client: &http.Client{Timeout: timeout},
	}, nil
}

func (c *Client) List(ctx context.Context) ([]model.Event, error) {
	var events []model.Event
	if err := c.do(ctx, http.MethodGet, "/events", nil, &events); err != nil {
		return nil, err
	}
	for i := range events {
		events[i] = events[i].Normalized()
	}
	return events, nil
}

func (c *Client) Put(ctx context.Context, ev model.Event) error {
	return c.do(ctx, http.MethodPost, "/events", ev, nil)
}

func (c *Client) Delete(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodDelete, "/events/"+url.PathEscape(id), nil, nil)
}

func (c *Client) ListUsers(ctx context.Context) ([]model.User, error) {
	var users []model.User
	if err := c.do(ctx, http.MethodGet, "/users", nil, &users); err != nil {
		return nil, err
	}
	return users, nil
}

func (c *Client) PutUser(ctx context.Context, u model.User) error {
	return c.do(ctx, http.MethodPost, "/users", u, nil)
}

func (c *Client) DeleteUser(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodDelete, "/users/"+url.PathEscape(id), nil, nil)
}

// Login checks credentials on the proxy and returns the matching member.
func (c *Client) Login(ctx context.Context, username, password string) (model.User, error) {
	var u model.User
	body := map[string]string{"username": username, "password": password}
	err := c.do(ctx, http.MethodPost, "/login", body, &u)
	var se *StatusError
	if errors.As(err, &se) && se.Code == http.StatusUnauthorized {
		return model.User{}, ErrUnauthorized
	}
	if err != nil {
		return model.User{}, err
	}
	return u, nil
}

// Logout notifies the proxy. The proxy keeps no session state.
func (c *Client) Logout(ctx context.Context) error {
	return c.do(ctx, http.MethodPost, "/logout", nil, nil)
}

func (c *Client) do(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("remote: encode %s %s: %w", method, path, err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.base+path, body)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	start := time.Now()
	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("remote: %s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("remote: read %s %s: %w", method, path, err)
	}
	appLog.Debug("remote request", "method", method, "path", path, "status", resp.StatusCode, "took", time.Since(start))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		se := &StatusError{Method: method, Path: path, Code: resp.StatusCode, Msg: errorMessage(data)}
		if resp.StatusCode == http.StatusNotFound && method == http.MethodDelete {
			return fmt.Errorf("%w: %w", store.ErrNotFound, se)
		}
		return se
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("remote: decode %s %s: %w", method, path, err)
	}
	return nil
}

func errorMessage(body []byte) string {
	var e struct {
		Error string `json:"error"`
	}
	if json.Unmarshal(body, &e) == nil && e.Error != "" {
		return e.Error
	}
	return strings.TrimSpace(string(body))
}
