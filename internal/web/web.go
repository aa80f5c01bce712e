// Package web serves the team calendar over HTTP: the JSON API, the
// printable month page and per-member ICS feeds.
package web

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"teamsync/internal/assist"
	"teamsync/internal/config"
	appLog "teamsync/internal/log"
	"teamsync/internal/metrics"
	"teamsync/internal/model"
	"teamsync/internal/series"
	"teamsync/internal/session"
	"teamsync/internal/store"
)

// snapshotTTL bounds how stale a cached store read may be.
const snapshotTTL = 30 * time.Second

// Server provides the HTTP API. Every route except /health and /metrics
// requires HTTP Basic credentials of a team member.
type Server struct {
	cfg     *config.Config
	store   store.Store
	auth    session.Authenticator
	mutator *series.Mutator
	assist  *assist.Parser
	now     func() time.Time
	mux     *http.ServeMux

	// In-memory copy of the store, shared by all requests until it
	// expires or a write invalidates it.
	snapMu sync.RWMutex
	snap   *snapshot

	runner series.Runner

	cronMu sync.Mutex
	cron   *cron.Cron
}

type snapshot struct {
	events    []model.Event
	users     []model.User
	updatedAt time.Time
}

// Option configures a Server.
type Option func(*Server)

// WithAuthenticator replaces the directory scan used for Basic auth.
func WithAuthenticator(a session.Authenticator) Option {
	return func(s *Server) { s.auth = a }
}

// WithMutator replaces the series mutator.
func WithMutator(m *series.Mutator) Option {
	return func(s *Server) { s.mutator = m }
}

// WithClock replaces time.Now for month defaults and assist prompts.
func WithClock(now func() time.Time) Option {
	return func(s *Server) { s.now = now }
}

// NewServer constructs a new Server.
func NewServer(cfg *config.Config, st store.Store, opts ...Option) *Server {
	if cfg == nil {
		cfg = config.DefaultConfig()
	}
	s := &Server{
		cfg:     cfg,
		store:   st,
		auth:    session.DirectoryAuth{Dir: st},
		mutator: series.New(),
		assist:  assist.NewParser(),
		now:     time.Now,
		mux:     http.NewServeMux(),
	}
	for _, o := range opts {
		o(s)
	}
	s.registerRoutes()
	return s
}

// Handler returns the underlying http.Handler for this server.
func (s *Server) Handler() http.Handler {
	return s.basicAuthMiddleware(s.mux)
}

// Run serves on cfg.Listen until ctx is cancelled.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.cfg.Listen,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	appLog.Info("starting HTTP server", "listen", "http://"+s.cfg.Listen)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// StartRefresh re-reads the store on the cron schedule spec so requests
// rarely wait on it.
func (s *Server) StartRefresh(spec string) error {
	c := cron.New()
	if _, err := c.AddFunc(spec, func() {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if _, err := s.reload(ctx); err != nil {
			appLog.Error("scheduled store refresh failed", err)
		}
	}); err != nil {
		return err
	}

	s.cronMu.Lock()
	if s.cron != nil {
		s.cron.Stop()
	}
	s.cron = c
	s.cronMu.Unlock()

	c.Start()
	appLog.Info("store refresh scheduled", "cron", spec)
	return nil
}

// StopRefresh stops the refresh schedule.
func (s *Server) StopRefresh() {
	s.cronMu.Lock()
	defer s.cronMu.Unlock()
	if s.cron != nil {
		s.cron.Stop()
		s.cron = nil
	}
}

type ctxKey struct{}

// userFrom returns the member authenticated for r.
func userFrom(r *http.Request) model.User {
	u, _ := r.Context().Value(ctxKey{}).(model.User)
	return u
}

// basicAuthMiddleware wraps all handlers except /health and /metrics
// with HTTP Basic Auth against the team directory.
func (s *Server) basicAuthMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rec := &statusRecorder{ResponseWriter: w, code: http.StatusOK}
		defer func() {
			metrics.ObserveHTTP(r.Method+" "+routeOf(r), rec.code)
		}()

		if r.URL.Path == "/health" || r.URL.Path == "/metrics" {
			next.ServeHTTP(rec, r)
			return
		}

		name, pass, ok := r.BasicAuth()
		if !ok {
			unauthorized(rec)
			return
		}
		u, err := s.auth.Login(r.Context(), name, pass)
		if err != nil {
			if !errors.Is(err, session.ErrInvalidCredentials) {
				appLog.Error("authentication failed", err, "username", name)
				writeError(rec, http.StatusBadGateway, "authentication backend unavailable")
				return
			}
			unauthorized(rec)
			return
		}
		ctx := context.WithValue(r.Context(), ctxKey{}, u.Public())
		next.ServeHTTP(rec, r.WithContext(ctx))
	})
}

func unauthorized(w http.ResponseWriter) {
	w.Header().Set("WWW-Authenticate", `Basic realm="TeamSync", charset="UTF-8"`)
	writeError(w, http.StatusUnauthorized, "Unauthorized")
}

// routeOf keeps metric labels bounded: ids and dates are dropped.
func routeOf(r *http.Request) string {
	p := r.URL.Path
	switch {
	case strings.HasPrefix(p, "/api/events/raw"):
		return "/api/events/raw"
	case strings.HasPrefix(p, "/api/events/") && strings.Contains(p, "/occurrences/"):
		return "/api/events/{seriesId}/occurrences/{date}"
	case strings.HasPrefix(p, "/api/events/"):
		return "/api/events/{seriesId}"
	case strings.HasPrefix(p, "/api/users/"):
		return "/api/users/{id}"
	case strings.HasPrefix(p, "/feed/calendar/"):
		return "/feed/calendar/{file}"
	}
	return p
}

type statusRecorder struct {
	http.ResponseWriter
	code int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.code = code
	r.ResponseWriter.WriteHeader(code)
}

// load returns the cached snapshot while fresh, otherwise re-reads the store.
func (s *Server) load(ctx context.Context) (*snapshot, error) {
	s.snapMu.RLock()
	snap := s.snap
	s.snapMu.RUnlock()
	if snap != nil && s.now().Sub(snap.updatedAt) < snapshotTTL {
		return snap, nil
	}
	return s.reload(ctx)
}

func (s *Server) reload(ctx context.Context) (*snapshot, error) {
	events, err := s.store.List(ctx)
	if err != nil {
		return nil, err
	}
	users, err := store.EnsureAdmin(ctx, s.store)
	if err != nil {
		return nil, err
	}
	snap := &snapshot{events: events, users: users, updatedAt: s.now()}

	s.snapMu.Lock()
	s.snap = snap
	s.snapMu.Unlock()
	return snap, nil
}

func (s *Server) invalidate() {
	s.snapMu.Lock()
	s.snap = nil
	s.snapMu.Unlock()
}

// statusFor maps domain errors onto HTTP status codes. Anything
// unrecognised is a failing store or proxy.
func statusFor(err error) int {
	var pw *series.PartialWriteError
	switch {
	case errors.As(err, &pw):
		return http.StatusBadGateway
	case errors.Is(err, model.ErrInvalidEvent), errors.Is(err, series.ErrScopeRequired), errors.Is(err, assist.ErrEmptyPrompt):
		return http.StatusBadRequest
	case errors.Is(err, session.ErrInvalidCredentials):
		return http.StatusUnauthorized
	case errors.Is(err, session.ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, series.ErrSeriesNotFound), errors.Is(err, series.ErrNotAnOccurrence), errors.Is(err, store.ErrNotFound):
		return http.StatusNotFound
	}
	return http.StatusBadGateway
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		appLog.Error("failed to write JSON response", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	type errResp struct {
		Error string `json:"error"`
	}
	writeJSON(w, status, errResp{Error: msg})
}

// fail logs unexpected failures and writes the mapped status.
func fail(w http.ResponseWriter, r *http.Request, err error) {
	code := statusFor(err)
	if code >= http.StatusInternalServerError {
		appLog.Error("request failed", err, "method", r.Method, "path", r.URL.Path)
	}
	writeError(w, code, err.Error())
}

func parseIntDefault(s string, def int) int {
	if s == "" {
		return def
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return def
	}
	return n
}

// listParam accepts both repeated keys and comma separated values.
func listParam(r *http.Request, key string) []string {
	var out []string
	for _, v := range r.URL.Query()[key] {
		for _, part := range strings.Split(v, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
	}
	return out
}

// monthParams reads year and month, defaulting to the current month.
func (s *Server) monthParams(r *http.Request) (int, time.Month, bool) {
	now := s.now()
	q := r.URL.Query()
	year := parseIntDefault(q.Get("year"), now.Year())
	month := parseIntDefault(q.Get("month"), int(now.Month()))
	if month < 1 || month > 12 || year < 1 || year > 9999 {
		return 0, 0, false
	}
	return year, time.Month(month), true
}
