package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadCreatesDefaultOnFirstRun(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.yaml")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig(), cfg)

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())
}

func TestLoadNormalizesPartialFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	body := "listen: 0.0.0.0:9000\nstore:\n  backend: remote\n  remote_url: http://proxy:8090\n"
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "0.0.0.0:9000", cfg.Listen)
	assert.Equal(t, BackendRemote, cfg.Store.Backend)
	assert.Equal(t, "http://proxy:8090", cfg.Store.RemoteURL)
	assert.Equal(t, 15*time.Second, cfg.Store.RemoteTimeout)
	assert.Equal(t, "TeamSync", cfg.ProductName)
	assert.Equal(t, "*/1 * * * *", cfg.RefreshCron)
}

func TestNormalizeUnknownBackend(t *testing.T) {
	cfg := &Config{Store: StoreConfig{Backend: "dynamo"}}
	cfg.Normalize()
	assert.Equal(t, BackendSQLite, cfg.Store.Backend)
}

func TestSaveRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	cfg := DefaultConfig()
	cfg.Store.Backend = BackendMemory
	cfg.DefaultColor = "green"
	require.NoError(t, cfg.Save(path))

	loaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, cfg, loaded)
}

func TestApplyEnv(t *testing.T) {
	t.Setenv("TEAMSYNC_LISTEN", ":7000")
	t.Setenv("TEAMSYNC_STORE", "memory")
	cfg := DefaultConfig()
	cfg.ApplyEnv()
	assert.Equal(t, ":7000", cfg.Listen)
	assert.Equal(t, BackendMemory, cfg.Store.Backend)
}
