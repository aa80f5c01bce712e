// Package proxy serves the key-value scan/put/delete API that remote
// clients use as their event store and user directory.
package proxy

import (
	"context"
	"errors"
	"io"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"

	appLog "teamsync/internal/log"
	"teamsync/internal/metrics"
	"teamsync/internal/model"
	"teamsync/internal/store"
)

const (
	eventType = "event"
	userType  = "user"
)

// Config wraps the knobs that impact runtime behavior.
type Config struct {
	Addr string
	// AccessLog receives one line per request when set.
	AccessLog io.Writer
}

// Server exposes the Fiber application.
type Server struct {
	app   *fiber.App
	store store.Store
	cfg   Config
}

// NewServer wires handlers and middleware.
func NewServer(cfg Config, st store.Store) *Server {
	app := fiber.New(fiber.Config{
		DisableStartupMessage: true,
		ReadTimeout:           15 * time.Second,
		WriteTimeout:          15 * time.Second,
		ErrorHandler:          errorHandler,
	})
	app.Use(recover.New())
	if cfg.AccessLog != nil {
		app.Use(logger.New(logger.Config{
			Format: "${time} | ${status} | ${latency} | ${method} ${path}\n",
			Output: cfg.AccessLog,
		}))
	}
	app.Use(cors.New(cors.Config{
		AllowOrigins: "*",
		AllowMethods: "OPTIONS,POST,GET,PUT,DELETE",
		AllowHeaders: "Content-Type,Authorization",
	}))

	srv := &Server{app: app, store: st, cfg: cfg}
	srv.registerRoutes()
	return srv
}

// App exposes the underlying application, mainly for tests.
func (s *Server) App() *fiber.App { return s.app }

// Run starts listening for HTTP traffic until the context is cancelled.
func (s *Server) Run(ctx context.Context) error {
	go func() {
		<-ctx.Done()
		_ = s.app.Shutdown()
	}()

	appLog.Info("proxy listening", "addr", s.cfg.Addr)
	return s.app.Listen(s.cfg.Addr)
}

func (s *Server) registerRoutes() {
	s.app.Use(func(c *fiber.Ctx) error {
		err := c.Next()
		code := c.Response().StatusCode()
		var fe *fiber.Error
		if errors.As(err, &fe) {
			code = fe.Code
		}
		metrics.ObserveHTTP("proxy "+c.Method()+" "+routePath(c), code)
		return err
	})

	s.app.Get("/healthz", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok"})
	})
	s.app.Get("/metrics", adaptor.HTTPHandler(metrics.Handler()))

	s.app.Post("/login", s.handleLogin)
	s.app.Post("/logout", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"success": true})
	})

	s.app.Get("/events", s.handleListEvents)
	s.app.Post("/events", s.handlePutEvent)
	s.app.Delete("/events/:id", s.handleDeleteEvent)

	s.app.Get("/users", s.handleListUsers)
	s.app.Post("/users", s.handlePutUser)
	s.app.Delete("/users/:id", s.handleDeleteUser)

	s.app.Use(func(c *fiber.Ctx) error {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "Route not found: " + c.Path()})
	})
}

func routePath(c *fiber.Ctx) string {
	if r := c.Route(); r != nil && r.Path != "/" {
		return r.Path
	}
	return "unmatched"
}

func errorHandler(c *fiber.Ctx, err error) error {
	code := fiber.StatusInternalServerError
	var fe *fiber.Error
	if errors.As(err, &fe) {
		code = fe.Code
	}
	if code >= fiber.StatusInternalServerError {
		appLog.Error("proxy request failed", err, "method", c.Method(), "path", c.Path())
	}
	return c.Status(code).JSON(fiber.Map{"error": err.Error()})
}

func storeError(action string, err error) error {
	if errors.Is(err, store.ErrNotFound) {
		return fiber.NewError(fiber.StatusNotFound, action+": not found")
	}
	return fiber.NewError(fiber.StatusInternalServerError, action+": "+err.Error())
}

type credentials struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

func (s *Server) handleLogin(c *fiber.Ctx) error {
	var in credentials
	if err := c.BodyParser(&in); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid payload")
	}
	users, err := s.store.ListUsers(c.UserContext())
	if err != nil {
		return storeError("login", err)
	}
	for _, u := range users {
		if u.Username == in.Username && u.Password == in.Password {
			return c.JSON(u.Public())
		}
	}
	return fiber.NewError(fiber.StatusUnauthorized, "Invalid credentials")
}

func (s *Server) handleListEvents(c *fiber.Ctx) error {
	events, err := s.store.List(c.UserContext())
	if err != nil {
		return storeError("list events", err)
	}
	return c.JSON(events)
}

func (s *Server) handlePutEvent(c *fiber.Ctx) error {
	var ev model.Event
	if err := c.BodyParser(&ev); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid payload")
	}
	if ev.ID == "" {
		return fiber.NewError(fiber.StatusBadRequest, "id is required")
	}
	ev.Type = eventType
	if err := s.store.Put(c.UserContext(), ev); err != nil {
		return storeError("put event", err)
	}
	return c.JSON(fiber.Map{"success": true})
}

func (s *Server) handleDeleteEvent(c *fiber.Ctx) error {
	if err := s.store.Delete(c.UserContext(), c.Params("id")); err != nil {
		return storeError("delete event", err)
	}
	return c.JSON(fiber.Map{"success": true})
}

// handleListUsers seeds the default admin when the directory is empty.
func (s *Server) handleListUsers(c *fiber.Ctx) error {
	users, err := store.EnsureAdmin(c.UserContext(), s.store)
	if err != nil {
		return storeError("list users", err)
	}
	out := make([]model.User, 0, len(users))
	for _, u := range users {
		out = append(out, u.Public())
	}
	return c.JSON(out)
}

func (s *Server) handlePutUser(c *fiber.Ctx) error {
	var u model.User
	if err := c.BodyParser(&u); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid payload")
	}
	if u.ID == "" || u.Username == "" {
		return fiber.NewError(fiber.StatusBadRequest, "id and username are required")
	}
	ctx := c.UserContext()
	if u.Password == "" {
		// Updates from clients that never saw the credential keep it.
		users, err := s.store.ListUsers(ctx)
		if err != nil {
			return storeError("put user", err)
		}
		if prev, ok := store.FindUser(users, u.ID); ok {
			u.Password = prev.Password
		}
	}
	u.Type = userType
	if err := s.store.PutUser(ctx, u); err != nil {
		return storeError("put user", err)
	}
	return c.JSON(fiber.Map{"success": true})
}

func (s *Server) handleDeleteUser(c *fiber.Ctx) error {
	if err := s.store.DeleteUser(c.UserContext(), c.Params("id")); err != nil {
		return storeError("delete user", err)
	}
	return c.JSON(fiber.Map{"success": true})
}
