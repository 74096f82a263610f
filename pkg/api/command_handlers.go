package api

import (
	"context"

	"github.com/gofiber/fiber/v2"

	"github.com/medirover/controller/domain/command"
	"github.com/medirover/controller/pkg/gateway"
	customlog "github.com/medirover/controller/pkg/log"
)

// Commands is the command surface served over HTTP
type Commands interface {
	Transport(ctx context.Context, in command.TransportInput) (gateway.CommandOutcome, error)
	TransportByName(ctx context.Context, in command.TransportByNameInput) (gateway.CommandOutcome, error)
	Cruise(ctx context.Context, in command.CruiseInput) (gateway.CommandOutcome, error)
	CruiseByName(ctx context.Context, in command.CruiseByNameInput) (gateway.CommandOutcome, error)
	Exception(ctx context.Context, in command.TokenInput) (gateway.CommandOutcome, error)
	Mapping(ctx context.Context, in command.TokenInput) (gateway.CommandOutcome, error)
	Velocity(ctx context.Context, in command.TokenInput) (gateway.CommandOutcome, error)
}

// CommandHandler holds dependencies for command endpoints
type CommandHandler struct {
	commands Commands
	logger   customlog.Logger
}

// RegisterCommandRoutes registers the command endpoints under /api/v1/commands
func RegisterCommandRoutes(app *fiber.App, commands Commands, logger customlog.Logger) {
	h := &CommandHandler{commands: commands, logger: customlog.OrDefault(logger)}

	g := app.Group("/api/v1/commands")
	g.Post("/transport", bind(h, h.commands.Transport))
	g.Post("/transport/by-name", bind(h, h.commands.TransportByName))
	g.Post("/cruise", bind(h, h.commands.Cruise))
	g.Post("/cruise/by-name", bind(h, h.commands.CruiseByName))
	g.Post("/exception", bind(h, h.commands.Exception))
	g.Post("/mapping", bind(h, h.commands.Mapping))
	g.Post("/velocity", bind(h, h.commands.Velocity))

	h.logger.Infof("Registered command API endpoints under /api/v1/commands")
}

// bind parses the body into In and runs op with the request context
func bind[In any](h *CommandHandler, op func(context.Context, In) (gateway.CommandOutcome, error)) fiber.Handler {
	return func(c *fiber.Ctx) error {
		var in In
		if err := c.BodyParser(&in); err != nil {
			h.logger.Warnf("Bad command body on %s: %v", c.Path(), err)
			return fail(c, fiber.StatusBadRequest, "invalid request body: "+err.Error())
		}
		outcome, err := op(c.UserContext(), in)
		return h.respond(c, outcome, err)
	}
}

func (h *CommandHandler) respond(c *fiber.Ctx, outcome gateway.CommandOutcome, err error) error {
	code := StatusForOutcome(outcome)
	msg := "success"
	if err != nil {
		msg = err.Error()
	}
	return c.Status(code).JSON(Response{Code: code, Msg: msg, Data: outcome})
}
