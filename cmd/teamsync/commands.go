package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"teamsync/internal/capture"
	"teamsync/internal/config"
	"teamsync/internal/ics"
	appLog "teamsync/internal/log"
	"teamsync/internal/model"
	"teamsync/internal/session"
	"teamsync/internal/termcal"
	"teamsync/internal/web"
)

func runServe(ctx context.Context, cfg *config.Config, args []string) error {
	fs := flag.NewFlagSet("serve", flag.ExitOnError)
	listen := fs.String("listen", "", "HTTP listen address (overrides config if set)")
	_ = fs.Parse(args)
	if *listen != "" {
		cfg.Listen = *listen
	}

	b, err := openBackend(ctx, cfg)
	if err != nil {
		return err
	}
	defer b.close()

	appLog.Info("effective config",
		"listen", cfg.Listen,
		"store", cfg.Store.Backend,
		"refresh", cfg.RefreshCron,
		"product_name", cfg.ProductName,
	)

	srv := web.NewServer(cfg, b.store, web.WithAuthenticator(b.auth))
	if err := srv.StartRefresh(cfg.RefreshCron); err != nil {
		return fmt.Errorf("refresh schedule %q: %w", cfg.RefreshCron, err)
	}
	defer srv.StopRefresh()
	return srv.Run(ctx)
}

// credentials are shared by the commands that act as a member.
type credentials struct {
	user, password string
}

func (c *credentials) register(fs *flag.FlagSet) {
	fs.StringVar(&c.user, "user", os.Getenv("TEAMSYNC_USER"), "username")
	fs.StringVar(&c.password, "password", os.Getenv("TEAMSYNC_PASSWORD"), "password")
}

// signIn opens the backend and logs the member in.
func signIn(ctx context.Context, cfg *config.Config, c credentials) (*session.Session, func(), error) {
	if c.user == "" {
		return nil, nil, errors.New("-user is required")
	}
	b, err := openBackend(ctx, cfg)
	if err != nil {
		return nil, nil, err
	}
	s := session.New(b.store, session.WithAuthenticator(b.auth))
	if _, err := s.Login(ctx, c.user, c.password); err != nil {
		_ = b.close()
		return nil, nil, err
	}
	return s, func() {
		s.Logout()
		_ = b.close()
	}, nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func runMonth(ctx context.Context, cfg *config.Config, args []string) error {
	var creds credentials
	now := time.Now()
	fs := flag.NewFlagSet("month", flag.ExitOnError)
	creds.register(fs)
	year := fs.Int("year", now.Year(), "year")
	month := fs.Int("month", int(now.Month()), "month (1-12)")
	tags := fs.String("tag", "", "comma separated tag filter")
	members := fs.String("member", "", "comma separated member id filter")
	agenda := fs.Bool("agenda", false, "print an agenda list instead of the grid")
	_ = fs.Parse(args)
	if *month < 1 || *month > 12 {
		return fmt.Errorf("month %d out of range", *month)
	}

	s, done, err := signIn(ctx, cfg, creds)
	if err != nil {
		return err
	}
	defer done()

	instances, err := s.Month(*year, time.Month(*month), splitList(*tags), splitList(*members))
	if err != nil {
		return err
	}
	if *agenda {
		fmt.Println(termcal.Agenda(instances))
		return nil
	}
	fmt.Println(termcal.Month(*year, time.Month(*month), instances, termcal.Options{Today: model.FormatDate(now)}))
	return nil
}

func runExport(ctx context.Context, cfg *config.Config, args []string) error {
	var creds credentials
	fs := flag.NewFlagSet("export", flag.ExitOnError)
	creds.register(fs)
	out := fs.String("out", "", "output file (stdout when empty)")
	_ = fs.Parse(args)

	s, done, err := signIn(ctx, cfg, creds)
	if err != nil {
		return err
	}
	defer done()

	events, err := s.Events()
	if err != nil {
		return err
	}
	body := ics.Export(events, ics.Options{ProductName: cfg.ProductName})
	if *out == "" {
		_, err = io.WriteString(os.Stdout, body)
		return err
	}
	if err := os.WriteFile(*out, []byte(body), 0o644); err != nil {
		return err
	}
	appLog.Info("ics exported", "out", *out, "series", len(events))
	return nil
}

func runImport(ctx context.Context, cfg *config.Config, args []string) error {
	var creds credentials
	fs := flag.NewFlagSet("import", flag.ExitOnError)
	creds.register(fs)
	file := fs.String("file", "", "ICS file to import")
	url := fs.String("url", "", "ICS feed URL to import")
	color := fs.String("color", "", "colour for imported series")
	_ = fs.Parse(args)
	if (*file == "") == (*url == "") {
		return errors.New("exactly one of -file or -url is required")
	}

	var body []byte
	var err error
	if *file != "" {
		body, err = os.ReadFile(*file)
	} else {
		var res ics.FetchResult
		res, err = ics.NewFetcher(cfg.ICSCacheDir, cfg.Store.RemoteTimeout).Fetch(ctx, *url)
		body = res.Body
	}
	if err != nil {
		return err
	}

	events, err := ics.Import(body, ics.ImportOptions{Color: model.Color(*color)})
	if err != nil {
		return err
	}

	s, done, err := signIn(ctx, cfg, creds)
	if err != nil {
		return err
	}
	defer done()

	n, err := s.Import(ctx, events)
	if err != nil {
		return err
	}
	appLog.Info("ics imported", "series", n)
	return nil
}

func runCapture(ctx context.Context, cfg *config.Config, args []string) error {
	var creds credentials
	fs := flag.NewFlagSet("capture", flag.ExitOnError)
	creds.register(fs)
	target := fs.String("url", "http://"+cfg.Listen+"/calendar", "month page URL")
	out := fs.String("out", "./var/calendar.png", "PNG output path")
	_ = fs.Parse(args)

	return capture.CalendarPNG(ctx, capture.Options{
		URL:        *target,
		OutputPath: *out,
		Username:   creds.user,
		Password:   creds.password,
		Width:      cfg.Capture.Width,
		Height:     cfg.Capture.Height,
		Timeout:    cfg.Capture.Timeout,
	})
}
