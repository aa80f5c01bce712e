package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"teamsync/internal/config"
	appLog "teamsync/internal/log"
)

const usage = `usage: teamsync <command> [flags]

commands:
  serve    run the HTTP API and month page
  month    print a month grid for a member
  export   write the member's series as ICS
  import   load an ICS file or URL into the calendar (admin)
  capture  save the month page as PNG
`

type command func(ctx context.Context, cfg *config.Config, args []string) error

var commands = map[string]command{
	"serve":   runServe,
	"month":   runMonth,
	"export":  runExport,
	"import":  runImport,
	"capture": runCapture,
}

func main() {
	if err := godotenv.Load(); err != nil {
		appLog.Debug("no .env file loaded", "err", err)
	}

	if len(os.Args) < 2 {
		fmt.Fprint(os.Stderr, usage)
		os.Exit(2)
	}
	cmd, ok := commands[os.Args[1]]
	if !ok {
		fmt.Fprintf(os.Stderr, "unknown command %q\n\n%s", os.Args[1], usage)
		os.Exit(2)
	}

	cfgPath := os.Getenv("TEAMSYNC_CONFIG")
	if cfgPath == "" {
		cfgPath = "teamsync.yaml"
	}
	conf, err := config.Load(cfgPath)
	if err != nil {
		appLog.Error("failed to load config", err, "config_path", cfgPath)
		os.Exit(1)
	}
	conf.ApplyEnv()
	appLog.SetLevel(appLog.ParseLevel(conf.LogLevel))

	// Root context with cancellation on SIGINT/SIGTERM.
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		appLog.Info("signal received, shutting down", "signal", sig.String())
		cancel()
	}()

	if err := cmd(ctx, conf, os.Args[2:]); err != nil {
		appLog.Error("command failed", err, "command", os.Args[1])
		os.Exit(1)
	}
}
