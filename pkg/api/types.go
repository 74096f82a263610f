package api

import (
	"github.com/gofiber/fiber/v2"

	"github.com/medirover/controller/pkg/gateway"
	"github.com/medirover/controller/pkg/status"
)

// Response is the envelope of every JSON reply
type Response struct {
	Code int         `json:"code"`
	Msg  string      `json:"msg"`
	Data interface{} `json:"data,omitempty"`
}

// StreamEvent is one frame on the status WebSocket
type StreamEvent struct {
	Type       string                   `json:"type"`
	Status     *status.Status           `json:"status,omitempty"`
	Connection *status.ConnectionReport `json:"connection,omitempty"`
}

// Stream event types
const (
	EventStatus     = "status"
	EventConnection = "connection"
)

func ok(c *fiber.Ctx, data interface{}) error {
	return c.Status(fiber.StatusOK).JSON(Response{Code: fiber.StatusOK, Msg: "success", Data: data})
}

func created(c *fiber.Ctx, data interface{}) error {
	return c.Status(fiber.StatusCreated).JSON(Response{Code: fiber.StatusCreated, Msg: "created", Data: data})
}

func fail(c *fiber.Ctx, code int, msg string) error {
	return c.Status(code).JSON(Response{Code: code, Msg: msg})
}

// StatusForOutcome maps a command outcome to its HTTP status: rejected
// input is the client's fault, an unreachable robot is the service's.
func StatusForOutcome(outcome gateway.CommandOutcome) int {
	switch outcome.Error {
	case gateway.ErrorKindNone:
		return fiber.StatusOK
	case gateway.ErrorKindInvalidCommandArgument:
		return fiber.StatusBadRequest
	case gateway.ErrorKindPeerUnresolvedReference:
		return fiber.StatusNotFound
	case gateway.ErrorKindNotConnected, gateway.ErrorKindConnection:
		return fiber.StatusServiceUnavailable
	case gateway.ErrorKindCancelled:
		return fiber.StatusRequestTimeout
	}
	return fiber.StatusInternalServerError
}
