package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"teamsync/internal/config"
	appLog "teamsync/internal/log"
	"teamsync/internal/metrics"
	"teamsync/internal/model"
	"teamsync/internal/session"
	"teamsync/internal/store"
	"teamsync/internal/store/memory"
	"teamsync/internal/store/remote"
	"teamsync/internal/store/sqlite"
)

// backend is the configured store plus the way members sign in to it.
type backend struct {
	store store.Store
	auth  session.Authenticator
	close func() error
}

func openBackend(ctx context.Context, cfg *config.Config) (*backend, error) {
	var (
		st      store.Store
		auth    session.Authenticator
		closeFn = func() error { return nil }
	)
	switch cfg.Store.Backend {
	case config.BackendMemory:
		st = memory.NewSeeded()
	case config.BackendSQLite:
		if dir := filepath.Dir(cfg.Store.SQLitePath); dir != "." {
			if err := os.MkdirAll(dir, 0o700); err != nil {
				return nil, err
			}
		}
		db, err := sqlite.Open(ctx, cfg.Store.SQLitePath)
		if err != nil {
			return nil, err
		}
		st, closeFn = db, db.Close
	case config.BackendRemote:
		c, err := remote.New(cfg.Store.RemoteURL, cfg.Store.RemoteTimeout)
		if err != nil {
			return nil, err
		}
		// The proxy never returns passwords, so sign-in goes through /login.
		st, auth = c, proxyLogin{c}
	default:
		return nil, fmt.Errorf("unknown store backend %q", cfg.Store.Backend)
	}

	st = metrics.InstrumentStore(st)
	if _, err := store.EnsureAdmin(ctx, st); err != nil {
		_ = closeFn()
		return nil, fmt.Errorf("bootstrap users: %w", err)
	}
	if auth == nil {
		auth = session.DirectoryAuth{Dir: st}
	}
	appLog.Info("store ready", "backend", cfg.Store.Backend)
	return &backend{store: st, auth: auth, close: closeFn}, nil
}

// proxyLogin checks credentials against the proxy's /login route.
type proxyLogin struct {
	c *remote.Client
}

func (p proxyLogin) Login(ctx context.Context, username, password string) (model.User, error) {
	u, err := p.c.Login(ctx, username, password)
	if errors.Is(err, remote.ErrUnauthorized) {
		return model.User{}, session.ErrInvalidCredentials
	}
	return u, err
}
