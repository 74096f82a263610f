package api

import (
	"github.com/gofiber/fiber/v2"

	customlog "github.com/medirover/controller/pkg/log"
	"github.com/medirover/controller/pkg/status"
)

// StatusFeed is the status surface served over HTTP and WebSocket
type StatusFeed interface {
	Snapshot() []status.Status
	Latest(channel string) (status.Status, bool)
	Connection() status.ConnectionReport
	Watch(onStatus func(status.Status), onConnection func(status.ConnectionReport)) (cancel func())
}

// RegisterStatusRoutes registers the status endpoints under /api/v1/status
func RegisterStatusRoutes(app *fiber.App, feed StatusFeed, logger customlog.Logger) {
	g := app.Group("/api/v1/status")

	g.Get("/", func(c *fiber.Ctx) error {
		return ok(c, fiber.Map{
			"connection": feed.Connection(),
			"channels":   feed.Snapshot(),
		})
	})

	// Registered before /:channel so "connection" is not taken as a channel
	g.Get("/connection", func(c *fiber.Ctx) error {
		return ok(c, feed.Connection())
	})

	g.Get("/:channel", func(c *fiber.Ctx) error {
		channel := c.Params("channel")
		s, found := feed.Latest(channel)
		if !found {
			return fail(c, fiber.StatusNotFound, "no status received on "+channel)
		}
		return ok(c, s)
	})

	customlog.OrDefault(logger).Infof("Registered status API endpoints under /api/v1/status")
}
