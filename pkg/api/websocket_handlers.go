package api

import (
	"sync"

	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"

	customlog "github.com/medirover/controller/pkg/log"
	"github.com/medirover/controller/pkg/status"
)

// streamBuffer is how many events a slow client may fall behind by before
// it is disconnected
const streamBuffer = 256

// RegisterWebSocketRoutes registers GET /ws/status
func RegisterWebSocketRoutes(app *fiber.App, feed StatusFeed, logger customlog.Logger) {
	logger = customlog.OrDefault(logger)

	app.Use("/ws", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})
	app.Get("/ws/status", websocket.New(func(conn *websocket.Conn) {
		StatusWebSocketHandler(conn, feed, logger)
	}))
}

// StatusWebSocketHandler streams the current status, then every update,
// until the client goes away. A client that cannot keep up is closed
// rather than losing updates quietly.
func StatusWebSocketHandler(conn *websocket.Conn, feed StatusFeed, logger customlog.Logger) {
	remote := conn.RemoteAddr().String()
	logger.Infof("Status WebSocket connected: %s", remote)

	events := make(chan StreamEvent, streamBuffer)
	overflow := make(chan struct{})
	var overflowOnce sync.Once
	push := func(ev StreamEvent) {
		select {
		case events <- ev:
		default:
			overflowOnce.Do(func() { close(overflow) })
		}
	}

	cancel := feed.Watch(
		func(s status.Status) { push(StreamEvent{Type: EventStatus, Status: &s}) },
		func(r status.ConnectionReport) { push(StreamEvent{Type: EventConnection, Connection: &r}) },
	)
	defer cancel()

	// Reads only to notice the close
	gone := make(chan struct{})
	go func() {
		defer close(gone)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
					logger.Warnf("Status WS read error: %v", err)
				}
				return
			}
		}
	}()

	report := feed.Connection()
	if err := conn.WriteJSON(StreamEvent{Type: EventConnection, Connection: &report}); err != nil {
		logger.Debugf("Status WS write to %s failed: %v", remote, err)
		return
	}
	for _, s := range feed.Snapshot() {
		s := s
		if err := conn.WriteJSON(StreamEvent{Type: EventStatus, Status: &s}); err != nil {
			logger.Debugf("Status WS write to %s failed: %v", remote, err)
			return
		}
	}

	for {
		select {
		case ev := <-events:
			if err := conn.WriteJSON(ev); err != nil {
				logger.Debugf("Status WS write to %s failed: %v", remote, err)
				return
			}
		case <-overflow:
			logger.Warnf("Status WS client %s fell %d events behind, closing", remote, streamBuffer)
			conn.WriteMessage(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.ClosePolicyViolation, "too slow"))
			conn.Close()
			<-gone
			return
		case <-gone:
			logger.Infof("Status WebSocket disconnected: %s", remote)
			return
		}
	}
}
