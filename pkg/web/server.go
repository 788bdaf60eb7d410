// Package web serves the latest gauge reading over HTTP and WebSocket.
package web

import (
	"context"
	"errors"
	"fmt"
	"image"
	"log/slog"
	"net"
	"sync"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/websocket/v2"

	"github.com/teslashibe/go-gauge/internal/log"
	"github.com/teslashibe/go-gauge/pkg/gauge"
	"github.com/teslashibe/go-gauge/pkg/history"
	"github.com/teslashibe/go-gauge/pkg/hub"
	"github.com/teslashibe/go-gauge/pkg/monitor"
	"github.com/teslashibe/go-gauge/pkg/params"
)

// ErrNotRunning is returned by Restart before Run has bound a port.
var ErrNotRunning = errors.New("web: server not running")

// Reader is the part of the monitor the server reports on.
type Reader interface {
	Last() (gauge.Reading, error)
	Snapshot() (*image.RGBA, bool)
	Stats() monitor.Stats
	Calibration() *gauge.Calibration
	Setup() gauge.Setup
}

// History answers the history endpoints.
type History interface {
	Recent(ctx context.Context, limit int) ([]history.Record, error)
	Summary(ctx context.Context, since time.Time) (history.Summary, error)
}

// Config wires a Server. Params and History are optional.
type Config struct {
	Port    int
	Monitor Reader
	Params  *params.Store
	History History
}

// Update is the WebSocket payload.
type Update struct {
	Type    string         `json:"type"` // reading, miss
	Reading *gauge.Reading `json:"reading,omitempty"`
	Miss    *monitor.Miss  `json:"miss,omitempty"`
}

// Server exposes readings. It implements monitor.Sink so every result is
// pushed to WebSocket subscribers.
type Server struct {
	mon     Reader
	params  *params.Store
	history History
	hub     *hub.Hub
	log     *slog.Logger
	started time.Time

	mu   sync.Mutex
	app  *fiber.App
	ln   net.Listener
	port int
}

var _ monitor.Sink = (*Server)(nil)

// NewServer creates a server. Nothing listens until Run.
func NewServer(cfg Config) *Server {
	s := &Server{
		mon:     cfg.Monitor,
		params:  cfg.Params,
		history: cfg.History,
		hub:     hub.New("value"),
		log:     log.Component("web"),
		started: time.Now(),
		port:    cfg.Port,
	}
	s.app = s.newApp()
	return s
}

func (s *Server) newApp() *fiber.App {
	app := fiber.New(fiber.Config{
		AppName:               "Gauge Reader",
		DisableStartupMessage: true,
	})

	app.Use(cors.New())

	api := app.Group("/api")
	api.Get("/value", s.handleValue)
	api.Get("/status", s.handleStatus)
	api.Get("/calibration", s.handleCalibration)
	api.Get("/params", s.handleGetParams)
	api.Put("/params", s.handlePutParams)
	api.Get("/history", s.handleHistory)
	api.Get("/history/summary", s.handleHistorySummary)
	api.Get("/snapshot.png", s.handleSnapshot)

	// WebSocket upgrade middleware
	app.Use("/ws", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})
	app.Get("/ws/value", websocket.New(s.handleValueWS))

	return app
}

// App returns the current fiber app, for tests and embedding.
func (s *Server) App() *fiber.App {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.app
}

// Hub returns the value hub.
func (s *Server) Hub() *hub.Hub {
	return s.hub
}

// Addr is the bound address, empty before Run.
func (s *Server) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ln == nil {
		return ""
	}
	return s.ln.Addr().String()
}

// Run binds the port, serves until ctx is cancelled and shuts down.
func (s *Server) Run(ctx context.Context) error {
	go s.hub.Run(ctx)

	s.mu.Lock()
	app, port := s.app, s.port
	s.mu.Unlock()
	if err := s.serve(app, port); err != nil {
		return err
	}

	<-ctx.Done()
	return s.Shutdown()
}

// serve binds port and starts app on it in the background.
func (s *Server) serve(app *fiber.App, port int) error {
	ln, err := net.Listen("tcp", fmt.Sprintf(":%d", port))
	if err != nil {
		return fmt.Errorf("web: listen on %d: %w", port, err)
	}

	s.mu.Lock()
	s.app, s.ln, s.port = app, ln, port
	s.mu.Unlock()

	s.log.Info("listening", "addr", ln.Addr().String())
	go func() {
		if err := app.Listener(ln); err != nil {
			s.log.Error("server stopped", "error", err)
		}
	}()
	return nil
}

// Restart moves the server to a new port. The old listener keeps running
// if the new port cannot be bound.
func (s *Server) Restart(port int) error {
	s.mu.Lock()
	old, running, current := s.app, s.ln != nil, s.port
	s.mu.Unlock()

	if !running {
		return ErrNotRunning
	}
	if port == current {
		return nil
	}

	if err := s.serve(s.newApp(), port); err != nil {
		return err
	}
	if err := old.Shutdown(); err != nil {
		s.log.Warn("old listener shutdown", "error", err)
	}
	s.log.Info("port changed", "from", current, "to", port)
	return nil
}

// Shutdown stops the current listener.
func (s *Server) Shutdown() error {
	s.mu.Lock()
	app := s.app
	s.ln = nil
	s.mu.Unlock()
	return app.Shutdown()
}

// Publish implements monitor.Sink.
func (s *Server) Publish(_ context.Context, r gauge.Reading) error {
	return s.hub.BroadcastJSON(Update{Type: "reading", Reading: &r})
}

// PublishMiss implements monitor.Sink.
func (s *Server) PublishMiss(_ context.Context, m monitor.Miss) error {
	return s.hub.BroadcastJSON(Update{Type: "miss", Miss: &m})
}
