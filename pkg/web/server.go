// Package web serves a read-only dashboard for a running scanner: status,
// the latest detections and a websocket feed of detection events. Frames
// are never served.
package web

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/websocket/v2"
	"github.com/teslashibe/markercam/internal/log"
	"github.com/teslashibe/markercam/pkg/hub"
	"github.com/teslashibe/markercam/pkg/scanner"
)

// StatsSource reports loop counters. *scanner.Scanner implements it.
type StatsSource interface {
	Stats() scanner.Stats
}

// Status is the /api/status payload.
type Status struct {
	Session     string        `json:"session"`
	Uptime      string        `json:"uptime"`
	Subscribers int           `json:"subscribers"`
	Dropped     uint64        `json:"dropped_events"`
	Scanner     scanner.Stats `json:"scanner"`
}

// Server is the dashboard HTTP server.
type Server struct {
	app     *fiber.App
	addr    string
	session string
	started time.Time
	logger  *slog.Logger

	stats  StatsSource
	config any

	markers *hub.Hub

	lastMu sync.RWMutex
	last   *scanner.Event
}

// NewServer builds the routes. config is served verbatim at /api/config.
func NewServer(addr, session string, stats StatsSource, config any) *Server {
	s := &Server{
		addr:    addr,
		session: session,
		started: time.Now(),
		logger:  log.Component("web"),
		stats:   stats,
		config:  config,
		markers: hub.New("markers", 256),
	}

	app := fiber.New(fiber.Config{
		AppName:               "markercam",
		DisableStartupMessage: true,
	})
	app.Use(cors.New())

	api := app.Group("/api")
	api.Get("/status", s.handleStatus)
	api.Get("/markers", s.handleMarkers)
	api.Get("/config", s.handleConfig)

	app.Use("/ws", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})
	app.Get("/ws/markers", websocket.New(s.handleMarkersWS))

	s.app = app
	return s
}

// Publish records ev as the latest detection and queues it for websocket
// subscribers. It never blocks; pass it to scanner.WithObserver.
func (s *Server) Publish(ev scanner.Event) {
	s.lastMu.Lock()
	s.last = &ev
	s.lastMu.Unlock()

	if err := s.markers.BroadcastJSON("markers", ev); err != nil {
		s.logger.Warn("encode event", "error", err)
	}
}

// Start runs the hub and the listener until ctx is done.
func (s *Server) Start(ctx context.Context) error {
	go s.markers.Run(ctx)
	go func() {
		<-ctx.Done()
		s.app.ShutdownWithTimeout(2 * time.Second)
	}()

	s.logger.Info("dashboard listening", "addr", s.addr)
	if err := s.app.Listen(s.addr); err != nil {
		return fmt.Errorf("web: listen %s: %w", s.addr, err)
	}
	return nil
}

// StartAsync runs Start in a goroutine and logs its error.
func (s *Server) StartAsync(ctx context.Context) {
	go func() {
		if err := s.Start(ctx); err != nil {
			s.logger.Error("dashboard stopped", "error", err)
		}
	}()
}

// App exposes the fiber app, for tests.
func (s *Server) App() *fiber.App {
	return s.app
}
