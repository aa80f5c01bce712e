// Package session holds a signed-in member's view of the calendar: login
// and logout, a periodically refreshed snapshot of the store, and
// serialized series mutations.
package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	appLog "teamsync/internal/log"
	"teamsync/internal/metrics"
	"teamsync/internal/model"
	"teamsync/internal/recurrence"
	"teamsync/internal/series"
	"teamsync/internal/store"
	"teamsync/internal/visibility"
)

var (
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrNotLoggedIn        = errors.New("not logged in")
	ErrForbidden          = errors.New("admin role required")
	// ErrStaleRefresh reports a refresh whose response arrived after the
	// session it was issued for had ended.
	ErrStaleRefresh = errors.New("stale refresh discarded")
)

// Authenticator checks plaintext credentials, either by directory scan or
// against the proxy's /login route.
type Authenticator interface {
	Login(ctx context.Context, username, password string) (model.User, error)
}

// Authenticate finds the member whose username and password match. The
// comparison is plaintext.
func Authenticate(ctx context.Context, dir store.UserDirectory, username, password string) (model.User, error) {
	if username == "" {
		return model.User{}, ErrInvalidCredentials
	}
	users, err := dir.ListUsers(ctx)
	if err != nil {
		return model.User{}, fmt.Errorf("authenticate: %w", err)
	}
	for _, u := range users {
		if u.Username == username && u.Password == password {
			return u, nil
		}
	}
	return model.User{}, ErrInvalidCredentials
}

// DirectoryAuth authenticates by scanning a user directory.
type DirectoryAuth struct {
	Dir store.UserDirectory
}

func (a DirectoryAuth) Login(ctx context.Context, username, password string) (model.User, error) {
	return Authenticate(ctx, a.Dir, username, password)
}

// Option configures a Session.
type Option func(*Session)

// WithAuthenticator routes Login through a.
func WithAuthenticator(a Authenticator) Option {
	return func(s *Session) { s.auth = a }
}

// WithMutator replaces the series mutator (fresh id source).
func WithMutator(m *series.Mutator) Option {
	return func(s *Session) { s.mutator = m }
}

// Session is safe for concurrent use. Mutations are serialized.
type Session struct {
	store   store.Store
	auth    Authenticator
	mutator *series.Mutator

	mu     sync.RWMutex
	user   *model.User
	gen    uint64
	events []model.Event
	users  []model.User
	synced time.Time

	runner series.Runner

	cronMu sync.Mutex
	cron   *cron.Cron
}

// New returns a logged-out session over st.
func New(st store.Store, opts ...Option) *Session {
	s := &Session{store: st, auth: DirectoryAuth{Dir: st}, mutator: series.New()}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Login authenticates and loads the first snapshot.
func (s *Session) Login(ctx context.Context, username, password string) (model.User, error) {
	u, err := s.auth.Login(ctx, username, password)
	if err != nil {
		if !errors.Is(err, ErrInvalidCredentials) {
			appLog.Warn("session: login failed", "username", username, "err", err)
		}
		return model.User{}, err
	}

	s.mu.Lock()
	u = u.Public()
	s.user = &u
	s.gen++
	s.events, s.users = nil, nil
	s.mu.Unlock()

	appLog.Info("session: logged in", "user", u.ID, "role", u.Role)
	if err := s.Refresh(ctx); err != nil {
		return u, fmt.Errorf("initial refresh: %w", err)
	}
	return u, nil
}

// Logout ends the session. Refreshes still in flight are discarded.
func (s *Session) Logout() {
	s.StopPolling()
	s.mu.Lock()
	if s.user != nil {
		appLog.Info("session: logged out", "user", s.user.ID)
	}
	s.user = nil
	s.gen++
	s.events, s.users = nil, nil
	s.mu.Unlock()
}

// User returns the signed-in member.
func (s *Session) User() (model.User, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.user == nil {
		return model.User{}, false
	}
	return *s.user, true
}

// Refresh reloads events and users from the store. The snapshot is
// replaced only if the session is still the one the call started in.
func (s *Session) Refresh(ctx context.Context) error {
	s.mu.RLock()
	gen, loggedIn := s.gen, s.user != nil
	s.mu.RUnlock()
	if !loggedIn {
		return ErrNotLoggedIn
	}

	events, err := s.store.List(ctx)
	if err != nil {
		return fmt.Errorf("refresh events: %w", err)
	}
	users, err := s.store.ListUsers(ctx)
	if err != nil {
		return fmt.Errorf("refresh users: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.gen != gen || s.user == nil {
		appLog.Debug("session: dropping stale refresh", "issued_gen", gen, "current_gen", s.gen)
		return ErrStaleRefresh
	}
	s.events = events
	s.users = make([]model.User, 0, len(users))
	for _, u := range users {
		s.users = append(s.users, u.Public())
	}
	s.synced = time.Now()
	return nil
}

// Events returns the series visible to the signed-in member.
func (s *Session) Events() ([]model.Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.user == nil {
		return nil, ErrNotLoggedIn
	}
	return visibility.Series(s.events, *s.user), nil
}

// Users returns the team directory without credentials.
func (s *Session) Users() []model.User {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]model.User(nil), s.users...)
}

// LastSync is when the snapshot was last replaced.
func (s *Session) LastSync() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.synced
}

// Month expands the snapshot for a month and filters it for the member.
func (s *Session) Month(year int, month time.Month, tagFilter, userFilter []string) ([]model.Instance, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.user == nil {
		return nil, ErrNotLoggedIn
	}
	instances := recurrence.Expand(s.events, year, month)
	metrics.ObserveExpand(len(instances))
	return visibility.Filter(instances, *s.user, tagFilter, userFilter), nil
}

// Create adds a new series authored by the signed-in admin.
func (s *Session) Create(ctx context.Context, fields model.Fields) (model.Event, error) {
	var created model.Event
	err := s.mutate(ctx, "create", func(u model.User, _ series.Lookup) (series.WriteSet, error) {
		ev, err := s.mutator.Create(fields, u.ID)
		if err != nil {
			return series.WriteSet{}, err
		}
		created = ev
		return series.WriteSet{Ops: []store.Op{store.PutOp(ev)}}, nil
	})
	return created, err
}

// Edit applies an edit of the clicked occurrence.
func (s *Session) Edit(ctx context.Context, clicked model.InstanceRef, fields model.Fields, scope series.Scope) (series.WriteSet, error) {
	var ws series.WriteSet
	err := s.mutate(ctx, "edit", func(_ model.User, lookup series.Lookup) (series.WriteSet, error) {
		var err error
		ws, err = s.mutator.ApplyEdit(lookup, clicked, fields, scope)
		return ws, err
	})
	return ws, err
}

// Delete applies a delete of the clicked occurrence.
func (s *Session) Delete(ctx context.Context, clicked model.InstanceRef, scope series.Scope) (series.WriteSet, error) {
	var ws series.WriteSet
	err := s.mutate(ctx, "delete", func(_ model.User, lookup series.Lookup) (series.WriteSet, error) {
		var err error
		ws, err = s.mutator.ApplyDelete(lookup, clicked, scope)
		return ws, err
	})
	return ws, err
}

// Import stores events as new series created by the signed-in admin.
func (s *Session) Import(ctx context.Context, events []model.Event) (int, error) {
	err := s.mutate(ctx, "import", func(u model.User, _ series.Lookup) (series.WriteSet, error) {
		var ws series.WriteSet
		for _, ev := range events {
			if ev.CreatedBy == "" {
				ev.CreatedBy = u.ID
			}
			ev = ev.Normalized()
			if err := model.Validate(ev); err != nil {
				return series.WriteSet{}, err
			}
			ws.Ops = append(ws.Ops, store.PutOp(ev))
		}
		return ws, nil
	})
	if err != nil {
		return 0, err
	}
	return len(events), nil
}

type planFunc func(u model.User, lookup series.Lookup) (series.WriteSet, error)

// mutate plans against the current store contents and commits, one
// mutation at a time. The snapshot is refreshed afterwards.
func (s *Session) mutate(ctx context.Context, action string, plan planFunc) error {
	u, ok := s.User()
	if !ok {
		return ErrNotLoggedIn
	}
	if !u.IsAdmin() {
		return ErrForbidden
	}

	if _, err := s.runner.Run(ctx, s.store, action, func(lookup series.Lookup) (series.WriteSet, error) {
		return plan(u, lookup)
	}); err != nil {
		return fmt.Errorf("%s: %w", action, err)
	}

	if err := s.Refresh(ctx); err != nil && !errors.Is(err, ErrStaleRefresh) {
		appLog.Warn("session: refresh after commit failed", "err", err)
	}
	return nil
}

// StartPolling refreshes on the cron schedule spec until StopPolling or
// Logout. Each run gets its own timeout.
func (s *Session) StartPolling(spec string, timeout time.Duration) error {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	c := cron.New()
	if _, err := c.AddFunc(spec, func() {
		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()
		err := s.Refresh(ctx)
		switch {
		case err == nil, errors.Is(err, ErrStaleRefresh), errors.Is(err, ErrNotLoggedIn):
		default:
			appLog.Error("session: poll refresh failed", err)
		}
	}); err != nil {
		return fmt.Errorf("refresh schedule %q: %w", spec, err)
	}

	s.cronMu.Lock()
	if s.cron != nil {
		s.cron.Stop()
	}
	s.cron = c
	s.cronMu.Unlock()

	c.Start()
	appLog.Debug("session: polling started", "schedule", spec)
	return nil
}

// StopPolling stops the refresh schedule.
func (s *Session) StopPolling() {
	s.cronMu.Lock()
	defer s.cronMu.Unlock()
	if s.cron != nil {
		s.cron.Stop()
		s.cron = nil
	}
}
