package web

import (
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"
	"github.com/teslashibe/markercam/pkg/hub"
)

func (s *Server) handleStatus(c *fiber.Ctx) error {
	return c.JSON(Status{
		Session:     s.session,
		Uptime:      time.Since(s.started).Round(time.Second).String(),
		Subscribers: s.markers.ClientCount(),
		Dropped:     s.markers.Dropped(),
		Scanner:     s.stats.Stats(),
	})
}

// handleMarkers returns the most recent detection event, or 204 before the
// first marker has been seen.
func (s *Server) handleMarkers(c *fiber.Ctx) error {
	s.lastMu.RLock()
	last := s.last
	s.lastMu.RUnlock()

	if last == nil {
		return c.SendStatus(fiber.StatusNoContent)
	}
	return c.JSON(last)
}

func (s *Server) handleConfig(c *fiber.Ctx) error {
	if s.config == nil {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "no config"})
	}
	return c.JSON(s.config)
}

func (s *Server) handleMarkersWS(c *websocket.Conn) {
	client, err := hub.NewClient(s.markers, c)
	if err != nil {
		s.logger.Debug("rejecting subscriber", "error", err)
		c.Close()
		return
	}
	client.Run()
}
