package web

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"teamsync/internal/assist"
	"teamsync/internal/ics"
	"teamsync/internal/metrics"
	"teamsync/internal/model"
	"teamsync/internal/recurrence"
	"teamsync/internal/series"
	"teamsync/internal/session"
	"teamsync/internal/store"
	"teamsync/internal/visibility"
)

func (s *Server) registerRoutes() {
	s.mux.HandleFunc("GET /health", s.handleHealth)
	s.mux.Handle("GET /metrics", metrics.Handler())

	s.mux.HandleFunc("GET /api/me", s.handleMe)
	s.mux.HandleFunc("GET /api/events", s.handleMonth)
	s.mux.HandleFunc("GET /api/events/raw", s.handleRaw)
	s.mux.HandleFunc("GET /api/tags", s.handleTags)
	s.mux.HandleFunc("POST /api/events", s.admin(s.handleCreate))
	s.mux.HandleFunc("PUT /api/events/{seriesId}/occurrences/{date}", s.admin(s.handleEdit))
	s.mux.HandleFunc("DELETE /api/events/{seriesId}/occurrences/{date}", s.admin(s.handleDeleteOccurrence))
	s.mux.HandleFunc("DELETE /api/events/{seriesId}", s.admin(s.handleDeleteSeries))
	s.mux.HandleFunc("POST /api/assist", s.admin(s.handleAssist))

	s.mux.HandleFunc("GET /api/users", s.handleUsers)
	s.mux.HandleFunc("POST /api/users", s.admin(s.handlePutUser))
	s.mux.HandleFunc("DELETE /api/users/{id}", s.admin(s.handleDeleteUser))

	s.mux.HandleFunc("GET /feed/calendar/{file}", s.handleFeed)
	s.mux.HandleFunc("GET /calendar", s.handleCalendarPage)

	s.mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusNotFound, "Route not found: "+r.URL.Path)
	})
}

// admin rejects members without the ADMIN role.
func (s *Server) admin(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !userFrom(r).IsAdmin() {
			writeError(w, http.StatusForbidden, session.ErrForbidden.Error())
			return
		}
		next(w, r)
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}

func (s *Server) handleMe(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, userFrom(r))
}

// instanceDTO is the JSON view of one occurrence.
type instanceDTO struct {
	ID            string           `json:"id"`
	SeriesID      string           `json:"seriesId"`
	Date          string           `json:"date"`
	Title         string           `json:"title"`
	Description   string           `json:"description"`
	StartTime     string           `json:"startTime"`
	EndTime       string           `json:"endTime"`
	Color         model.Color      `json:"color"`
	ColorHex      string           `json:"colorHex"`
	Recurrence    model.Recurrence `json:"recurrence"`
	Tags          []string         `json:"tags"`
	TaggedUserIDs []string         `json:"taggedUserIds"`
	CreatedBy     string           `json:"createdBy"`
}

func toDTO(in model.Instance) instanceDTO {
	ev := in.Event
	return instanceDTO{
		ID:            in.Ref.Key(),
		SeriesID:      in.Ref.SeriesID,
		Date:          in.Ref.Date,
		Title:         ev.Title,
		Description:   ev.Description,
		StartTime:     ev.StartTime,
		EndTime:       ev.EndTime,
		Color:         ev.Color,
		ColorHex:      ev.Color.Hex(),
		Recurrence:    ev.Recurrence,
		Tags:          ev.Tags,
		TaggedUserIDs: ev.TaggedUserIDs,
		CreatedBy:     ev.CreatedBy,
	}
}

type monthResponse struct {
	Year      int           `json:"year"`
	Month     int           `json:"month"`
	Instances []instanceDTO `json:"instances"`
	UpdatedAt time.Time     `json:"updatedAt"`
}

// monthInstances expands the snapshot for a month and filters it for u.
func (s *Server) monthInstances(ctx context.Context, u model.User, year int, month time.Month, tags, users []string) ([]model.Instance, *snapshot, error) {
	snap, err := s.load(ctx)
	if err != nil {
		return nil, nil, err
	}
	all := recurrence.Expand(snap.events, year, month)
	metrics.ObserveExpand(len(all))
	return visibility.Filter(all, u, tags, users), snap, nil
}

// handleMonth returns the occurrences of one month the caller may see.
//
// GET /api/events?year=2024&month=1&tag=Team&user=user-1
func (s *Server) handleMonth(w http.ResponseWriter, r *http.Request) {
	year, month, ok := s.monthParams(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "year and month must be a valid calendar month")
		return
	}
	instances, snap, err := s.monthInstances(r.Context(), userFrom(r), year, month, listParam(r, "tag"), listParam(r, "user"))
	if err != nil {
		fail(w, r, err)
		return
	}
	out := make([]instanceDTO, 0, len(instances))
	for _, in := range instances {
		out = append(out, toDTO(in))
	}
	writeJSON(w, http.StatusOK, monthResponse{Year: year, Month: int(month), Instances: out, UpdatedAt: snap.updatedAt})
}

func (s *Server) handleRaw(w http.ResponseWriter, r *http.Request) {
	snap, err := s.load(r.Context())
	if err != nil {
		fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, visibility.Series(snap.events, userFrom(r)))
}

func (s *Server) handleTags(w http.ResponseWriter, r *http.Request) {
	snap, err := s.load(r.Context())
	if err != nil {
		fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, recurrence.AvailableTags(visibility.Series(snap.events, userFrom(r))))
}

func decode(w http.ResponseWriter, r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20))
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("%w: invalid payload: %v", model.ErrInvalidEvent, err)
	}
	return nil
}

// mutate plans and commits one write set at a time, then drops the cache.
func (s *Server) mutate(ctx context.Context, action string, plan series.Plan) (series.WriteSet, error) {
	ws, err := s.runner.Run(ctx, s.store, action, plan)
	if len(ws.Ops) > 0 {
		s.invalidate()
	}
	return ws, err
}

func (s *Server) handleCreate(w http.ResponseWriter, r *http.Request) {
	var f model.Fields
	if err := decode(w, r, &f); err != nil {
		fail(w, r, err)
		return
	}
	if f.Color == "" {
		f.Color = model.Color(s.cfg.DefaultColor)
	}
	var created model.Event
	_, err := s.mutate(r.Context(), "create", func(series.Lookup) (series.WriteSet, error) {
		ev, err := s.mutator.Create(f, userFrom(r).ID)
		if err != nil {
			return series.WriteSet{}, err
		}
		created = ev
		return series.WriteSet{Ops: []store.Op{store.PutOp(ev)}}, nil
	})
	if err != nil {
		fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, created)
}

// clickedRef reads the occurrence addressed by the path.
func clickedRef(r *http.Request) (model.InstanceRef, series.Scope, error) {
	ref := model.InstanceRef{SeriesID: r.PathValue("seriesId"), Date: r.PathValue("date")}
	if !model.ValidDate(ref.Date) {
		return ref, "", fmt.Errorf("%w: occurrence date %q is not YYYY-MM-DD", model.ErrInvalidEvent, ref.Date)
	}
	scope, err := series.ParseScope(r.URL.Query().Get("scope"))
	return ref, scope, err
}

type writeSetResponse struct {
	Ops []store.Op `json:"ops"`
}

func (s *Server) handleEdit(w http.ResponseWriter, r *http.Request) {
	ref, scope, err := clickedRef(r)
	if err != nil {
		fail(w, r, err)
		return
	}
	var f model.Fields
	if err := decode(w, r, &f); err != nil {
		fail(w, r, err)
		return
	}
	ws, err := s.mutate(r.Context(), "edit", func(lookup series.Lookup) (series.WriteSet, error) {
		return s.mutator.ApplyEdit(lookup, ref, f, scope)
	})
	if err != nil {
		fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, writeSetResponse{Ops: ws.Ops})
}

func (s *Server) handleDeleteOccurrence(w http.ResponseWriter, r *http.Request) {
	ref, scope, err := clickedRef(r)
	if err != nil {
		fail(w, r, err)
		return
	}
	ws, err := s.mutate(r.Context(), "delete", func(lookup series.Lookup) (series.WriteSet, error) {
		return s.mutator.ApplyDelete(lookup, ref, scope)
	})
	if err != nil {
		fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, writeSetResponse{Ops: ws.Ops})
}

func (s *Server) handleDeleteSeries(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("seriesId")
	ws, err := s.mutate(r.Context(), "delete_series", func(lookup series.Lookup) (series.WriteSet, error) {
		if _, ok := lookup(id); !ok {
			return series.WriteSet{}, fmt.Errorf("%w: %s", series.ErrSeriesNotFound, id)
		}
		return series.WriteSet{Ops: []store.Op{store.DeleteOp(id)}}, nil
	})
	if err != nil {
		fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, writeSetResponse{Ops: ws.Ops})
}

type assistRequest struct {
	Text   string       `json:"text"`
	Fields model.Fields `json:"fields"`
}

type assistResponse struct {
	Draft  assist.Draft `json:"draft"`
	Fields model.Fields `json:"fields"`
}

// handleAssist drafts event fields from a sentence. Nothing is stored.
func (s *Server) handleAssist(w http.ResponseWriter, r *http.Request) {
	var in assistRequest
	if err := decode(w, r, &in); err != nil {
		fail(w, r, err)
		return
	}
	snap, err := s.load(r.Context())
	if err != nil {
		fail(w, r, err)
		return
	}
	d, err := s.assist.Parse(in.Text, snap.users, s.now())
	if err != nil {
		fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, assistResponse{Draft: d, Fields: d.ApplyTo(in.Fields)})
}

func (s *Server) handleUsers(w http.ResponseWriter, r *http.Request) {
	snap, err := s.load(r.Context())
	if err != nil {
		fail(w, r, err)
		return
	}
	out := make([]model.User, 0, len(snap.users))
	for _, u := range snap.users {
		out = append(out, u.Public())
	}
	writeJSON(w, http.StatusOK, out)
}

// handlePutUser adds or updates a member. New members get an id, the
// USER role and a placeholder avatar; an empty password keeps the old one.
func (s *Server) handlePutUser(w http.ResponseWriter, r *http.Request) {
	var u model.User
	if err := decode(w, r, &u); err != nil {
		fail(w, r, err)
		return
	}
	u.Username = strings.TrimSpace(u.Username)
	if u.Username == "" || strings.TrimSpace(u.Name) == "" {
		writeError(w, http.StatusBadRequest, "username and name are required")
		return
	}
	if u.Role != model.RoleAdmin {
		u.Role = model.RoleUser
	}
	ctx := r.Context()
	users, err := s.store.ListUsers(ctx)
	if err != nil {
		fail(w, r, err)
		return
	}
	for _, other := range users {
		if other.Username == u.Username && other.ID != u.ID {
			writeError(w, http.StatusConflict, "username already taken")
			return
		}
	}
	if prev, ok := store.FindUser(users, u.ID); ok {
		if u.Password == "" {
			u.Password = prev.Password
		}
		if u.CreatedAt == "" {
			u.CreatedAt = prev.CreatedAt
		}
	} else {
		if u.ID == "" {
			u.ID = uuid.NewString()
		}
		if u.Password == "" {
			writeError(w, http.StatusBadRequest, "password is required for new members")
			return
		}
		u.CreatedAt = s.now().UTC().Format(time.RFC3339)
	}
	if u.AvatarURL == "" {
		u.AvatarURL = model.AvatarFor(u.Username)
	}
	if err := s.store.PutUser(ctx, u); err != nil {
		fail(w, r, err)
		return
	}
	s.invalidate()
	writeJSON(w, http.StatusOK, u.Public())
}

func (s *Server) handleDeleteUser(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if id == userFrom(r).ID {
		writeError(w, http.StatusBadRequest, "cannot delete yourself")
		return
	}
	if err := s.store.DeleteUser(r.Context(), id); err != nil {
		fail(w, r, err)
		return
	}
	s.invalidate()
	writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}

// handleFeed serves the series visible to one member as ICS.
//
// GET /feed/calendar/{userId}.ics
func (s *Server) handleFeed(w http.ResponseWriter, r *http.Request) {
	id, ok := strings.CutSuffix(r.PathValue("file"), ".ics")
	if !ok || id == "" {
		writeError(w, http.StatusNotFound, "Route not found: "+r.URL.Path)
		return
	}
	caller := userFrom(r)
	if caller.ID != id && !caller.IsAdmin() {
		writeError(w, http.StatusForbidden, session.ErrForbidden.Error())
		return
	}
	snap, err := s.load(r.Context())
	if err != nil {
		fail(w, r, err)
		return
	}
	target, found := store.FindUser(snap.users, id)
	if !found {
		writeError(w, http.StatusNotFound, "user not found")
		return
	}
	body := ics.Export(visibility.Series(snap.events, target), ics.Options{ProductName: s.cfg.ProductName, Now: s.now()})
	w.Header().Set("Content-Type", "text/calendar; charset=utf-8")
	w.Header().Set("Content-Disposition", `inline; filename="`+id+`.ics"`)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(body))
}
