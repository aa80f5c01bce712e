// Command teamsync-proxy serves the key-value API that remote teamsync
// clients use, backed by a local SQLite database.
package main

import (
	"context"
	"flag"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/joho/godotenv"

	"teamsync/internal/config"
	appLog "teamsync/internal/log"
	"teamsync/internal/metrics"
	"teamsync/internal/proxy"
	"teamsync/internal/store"
	"teamsync/internal/store/sqlite"
)

type flagConfig struct {
	configPath string
	listen     string
	dbPath     string
	accessLog  bool
}

func main() {
	if err := godotenv.Load(); err != nil {
		appLog.Debug("no .env file loaded", "err", err)
	}
	flags := parseFlags()

	conf, err := config.Load(flags.configPath)
	if err != nil {
		appLog.Error("failed to load config", err, "config_path", flags.configPath)
		os.Exit(1)
	}
	conf.ApplyEnv()
	appLog.SetLevel(appLog.ParseLevel(conf.LogLevel))
	if flags.listen != "" {
		conf.ProxyListen = flags.listen
	}
	if flags.dbPath != "" {
		conf.Store.SQLitePath = flags.dbPath
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		appLog.Info("signal received, shutting down", "signal", sig.String())
		cancel()
	}()

	if err := os.MkdirAll(filepath.Dir(conf.Store.SQLitePath), 0o700); err != nil {
		appLog.Error("failed to create data directory", err, "path", conf.Store.SQLitePath)
		os.Exit(1)
	}
	db, err := sqlite.Open(ctx, conf.Store.SQLitePath)
	if err != nil {
		appLog.Error("failed to open database", err, "path", conf.Store.SQLitePath)
		os.Exit(1)
	}
	defer db.Close()

	st := metrics.InstrumentStore(db)
	if _, err := store.EnsureAdmin(ctx, st); err != nil {
		appLog.Error("failed to bootstrap users", err)
		os.Exit(1)
	}

	var accessLog io.Writer
	if flags.accessLog {
		accessLog = os.Stdout
	}
	srv := proxy.NewServer(proxy.Config{Addr: conf.ProxyListen, AccessLog: accessLog}, st)
	if err := srv.Run(ctx); err != nil {
		appLog.Error("proxy stopped", err)
		os.Exit(1)
	}
	appLog.Info("teamsync-proxy exiting")
}

func parseFlags() flagConfig {
	var cfg flagConfig
	path := os.Getenv("TEAMSYNC_CONFIG")
	if path == "" {
		path = "teamsync.yaml"
	}

	flag.StringVar(&cfg.configPath, "config", path, "Path to config file")
	flag.StringVar(&cfg.listen, "listen", "", "listen address (overrides proxy_listen if set)")
	flag.StringVar(&cfg.dbPath, "db", "", "SQLite database path (overrides store.sqlite_path if set)")
	flag.BoolVar(&cfg.accessLog, "access-log", false, "log every request to stdout")

	flag.Parse()
	return cfg
}
