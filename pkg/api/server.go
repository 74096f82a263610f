package api

import (
	"errors"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"

	customlog "github.com/medirover/controller/pkg/log"
	"github.com/medirover/controller/services"
)

// Dependencies wires the HTTP adapter to the rest of the gateway. Nil
// members leave their routes out.
type Dependencies struct {
	Commands      Commands
	Status        StatusFeed
	Records       Records
	ConfigService services.ChannelConfigService
	Logger        customlog.Logger
	// AccessLog enables the per-request log line
	AccessLog bool
}

// NewApp creates the Fiber app with every route registered
func NewApp(deps Dependencies) *fiber.App {
	log := customlog.OrDefault(deps.Logger)

	app := fiber.New(fiber.Config{
		AppName:               "MediRover Gateway",
		ErrorHandler:          errorHandler,
		DisableStartupMessage: true,
	})

	if deps.AccessLog {
		app.Use(logger.New())
	}
	app.Use(recover.New())

	app.Get("/health", func(c *fiber.Ctx) error {
		data := fiber.Map{"status": "healthy"}
		if deps.Status != nil {
			data["robot"] = deps.Status.Connection()
		}
		return ok(c, data)
	})

	if deps.Commands != nil {
		RegisterCommandRoutes(app, deps.Commands, log)
	}
	if deps.Status != nil {
		RegisterStatusRoutes(app, deps.Status, log)
		RegisterWebSocketRoutes(app, deps.Status, log)
	}
	if deps.Records != nil {
		RegisterRecordRoutes(app, deps.Records, log)
	}
	if deps.ConfigService != nil {
		RegisterConfigRoutes(app, deps.ConfigService, log)
	}

	return app
}

// errorHandler renders errors in the Response envelope
func errorHandler(c *fiber.Ctx, err error) error {
	code := fiber.StatusInternalServerError

	var e *fiber.Error
	if errors.As(err, &e) {
		code = e.Code
	}

	return fail(c, code, err.Error())
}
