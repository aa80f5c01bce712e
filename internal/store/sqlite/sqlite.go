// Package sqlite is the local persistent store, backed by bun over SQLite.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	"github.com/uptrace/bun/driver/sqliteshim"

	appLog "teamsync/internal/log"
	"teamsync/internal/model"
	"teamsync/internal/store"
)

type eventRow struct {
	bun.BaseModel `bun:"table:events"`

	ID               string   `bun:"id,pk,notnull"`
	Title            string   `bun:"title,notnull"`
	Description      string   `bun:"description"`
	Date             string   `bun:"date,notnull"`
	StartTime        string   `bun:"start_time,notnull"`
	EndTime          string   `bun:"end_time,notnull"`
	TaggedUserIDs    []string `bun:"tagged_user_ids"`
	CreatedBy        string   `bun:"created_by"`
	Color            string   `bun:"color"`
	AdminColor       string   `bun:"admin_color"`
	UserColor        string   `bun:"user_color"`
	Recurrence       string   `bun:"recurrence"`
	RecurrenceEndsOn string   `bun:"recurrence_ends_on"`
	ExceptionDates   []string `bun:"exception_dates"`
	Tags             []string `bun:"tags"`
}

type userRow struct {
	bun.BaseModel `bun:"table:users"`

	ID        string `bun:"id,pk,notnull"`
	Username  string `bun:"username,notnull,unique"`
	Name      string `bun:"name"`
	Role      string `bun:"role,notnull"`
	Password  string `bun:"password"`
	AvatarURL string `bun:"avatar_url"`
	CreatedAt string `bun:"created_at"`
}

func toEventRow(ev model.Event) *eventRow {
	return &eventRow{
		ID:               ev.ID,
		Title:            ev.Title,
		Description:      ev.Description,
		Date:             ev.Date,
		StartTime:        ev.StartTime,
		EndTime:          ev.EndTime,
		TaggedUserIDs:    ev.TaggedUserIDs,
		CreatedBy:        ev.CreatedBy,
		Color:            string(ev.Color),
		AdminColor:       string(ev.AdminColor),
		UserColor:        string(ev.UserColor),
		Recurrence:       string(ev.Recurrence),
		RecurrenceEndsOn: ev.RecurrenceEndsOn,
		ExceptionDates:   ev.ExceptionDates,
		Tags:             ev.Tags,
	}
}

func (r *eventRow) event() model.Event {
	return model.Event{
		ID:               r.ID,
		Title:            r.Title,
		Description:      r.Description,
		Date:             r.Date,
		StartTime:        r.StartTime,
		EndTime:          r.EndTime,
		TaggedUserIDs:    r.TaggedUserIDs,
		CreatedBy:        r.CreatedBy,
		Color:            model.Color(r.Color),
		AdminColor:       model.Color(r.AdminColor),
		UserColor:        model.Color(r.UserColor),
		Recurrence:       model.Recurrence(r.Recurrence),
		RecurrenceEndsOn: r.RecurrenceEndsOn,
		ExceptionDates:   r.ExceptionDates,
		Tags:             r.Tags,
	}.Normalized()
}

func toUserRow(u model.User) *userRow {
	return &userRow{
		ID:        u.ID,
		Username:  u.Username,
		Name:      u.Name,
		Role:      string(u.Role),
		Password:  u.Password,
		AvatarURL: u.AvatarURL,
		CreatedAt: u.CreatedAt,
	}
}

func (r *userRow) user() model.User {
	return model.User{
		ID:        r.ID,
		Username:  r.Username,
		Name:      r.Name,
		Role:      model.Role(r.Role),
		Password:  r.Password,
		AvatarURL: r.AvatarURL,
		CreatedAt: r.CreatedAt,
	}
}

// Store persists events and users in a SQLite database.
type Store struct {
	db *bun.DB
}

// Open opens (creating if needed) the database at dsn and its schema.
// ":memory:" gives a private in-memory database.
func Open(ctx context.Context, dsn string) (*Store, error) {
	sqldb, err := sql.Open(sqliteshim.ShimName, dsn)
	if err != nil {
		return nil, fmt.Errorf("sqlite: open %s: %w", dsn, err)
	}
	if dsn == ":memory:" {
		// Each connection would otherwise see its own empty database.
		sqldb.SetMaxOpenConns(1)
	}
	db := bun.NewDB(sqldb, sqlitedialect.New())

	s := &Store{db: db}
	if err := s.createSchema(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	appLog.Debug("sqlite: store opened", "dsn", dsn)
	return s, nil
}

func (s *Store) createSchema(ctx context.Context) error {
	return s.db.RunInTx(ctx, &sql.TxOptions{}, func(ctx context.Context, tx bun.Tx) error {
		for _, m := range []interface{}{
			(*eventRow)(nil),
			(*userRow)(nil),
		} {
			if _, err := tx.NewCreateTable().Model(m).IfNotExists().Exec(ctx); err != nil {
				return fmt.Errorf("sqlite: create schema: %w", err)
			}
		}
		return nil
	})
}

// Close releases the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Ping checks the database is reachable.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *Store) List(ctx context.Context) ([]model.Event, error) {
	var rows []eventRow
	if err := s.db.NewSelect().Model(&rows).Order("date ASC", "id ASC").Scan(ctx); err != nil {
		return nil, fmt.Errorf("sqlite: list events: %w", err)
	}
	out := make([]model.Event, 0, len(rows))
	for i := range rows {
		out = append(out, rows[i].event())
	}
	return out, nil
}

func (s *Store) Put(ctx context.Context, ev model.Event) error {
	return putEvent(ctx, s.db, ev)
}

func (s *Store) Delete(ctx context.Context, id string) error {
	return deleteEvent(ctx, s.db, id)
}

// ApplyBatch applies ops in one transaction; any failure rolls back all.
func (s *Store) ApplyBatch(ctx context.Context, ops []store.Op) error {
	return s.db.RunInTx(ctx, &sql.TxOptions{}, func(ctx context.Context, tx bun.Tx) error {
		for i, op := range ops {
			var err error
			switch op.Kind {
			case store.OpPut:
				err = putEvent(ctx, tx, op.Event)
			case store.OpDelete:
				err = deleteEvent(ctx, tx, op.ID)
			default:
				err = fmt.Errorf("unknown op kind %q", op.Kind)
			}
			if err != nil {
				return fmt.Errorf("sqlite: batch op %d: %w", i, err)
			}
		}
		return nil
	})
}

func putEvent(ctx context.Context, db bun.IDB, ev model.Event) error {
	if ev.ID == "" {
		return fmt.Errorf("sqlite: put event: empty id")
	}
	_, err := db.NewInsert().
		Model(toEventRow(ev)).
		On("CONFLICT (id) DO UPDATE").
		Set("title = EXCLUDED.title").
		Set("description = EXCLUDED.description").
		Set("date = EXCLUDED.date").
		Set("start_time = EXCLUDED.start_time").
		Set("end_time = EXCLUDED.end_time").
		Set("tagged_user_ids = EXCLUDED.tagged_user_ids").
		Set("created_by = EXCLUDED.created_by").
		Set("color = EXCLUDED.color").
		Set("admin_color = EXCLUDED.admin_color").
		Set("user_color = EXCLUDED.user_color").
		Set("recurrence = EXCLUDED.recurrence").
		Set("recurrence_ends_on = EXCLUDED.recurrence_ends_on").
		Set("exception_dates = EXCLUDED.exception_dates").
		Set("tags = EXCLUDED.tags").
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("sqlite: put event %q: %w", ev.ID, err)
	}
	return nil
}

func deleteEvent(ctx context.Context, db bun.IDB, id string) error {
	res, err := db.NewDelete().Model((*eventRow)(nil)).Where("id = ?", id).Exec(ctx)
	if err != nil {
		return fmt.Errorf("sqlite: delete event %q: %w", id, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("sqlite: delete event %q: %w", id, store.ErrNotFound)
	}
	return nil
}

func (s *Store) ListUsers(ctx context.Context) ([]model.User, error) {
	var rows []userRow
	if err := s.db.NewSelect().Model(&rows).Order("id ASC").Scan(ctx); err != nil {
		return nil, fmt.Errorf("sqlite: list users: %w", err)
	}
	out := make([]model.User, 0, len(rows))
	for i := range rows {
		out = append(out, rows[i].user())
	}
	return out, nil
}

func (s *Store) PutUser(ctx context.Context, u model.User) error {
	if u.ID == "" {
		return fmt.Errorf("sqlite: put user: empty id")
	}
	_, err := s.db.NewInsert().
		Model(toUserRow(u)).
		On("CONFLICT (id) DO UPDATE").
		Set("username = EXCLUDED.username").
		Set("name = EXCLUDED.name").
		Set("role = EXCLUDED.role").
		Set("password = EXCLUDED.password").
		Set("avatar_url = EXCLUDED.avatar_url").
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("sqlite: put user %q: %w", u.ID, err)
	}
	return nil
}

func (s *Store) DeleteUser(ctx context.Context, id string) error {
	res, err := s.db.NewDelete().Model((*userRow)(nil)).Where("id = ?", id).Exec(ctx)
	if err != nil {
		return fmt.Errorf("sqlite: delete user %q: %w", id, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("sqlite: delete user %q: %w", id, store.ErrNotFound)
	}
	return nil
}
