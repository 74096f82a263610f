package api

import (
	"errors"

	"github.com/gofiber/fiber/v2"

	customlog "github.com/medirover/controller/pkg/log"
	"github.com/medirover/controller/services"
)

// ConfigHandler holds dependencies for configuration API endpoints.
type ConfigHandler struct {
	configService services.ChannelConfigService
	logger        customlog.Logger
}

// NewConfigHandler creates a new handler for configuration endpoints.
func NewConfigHandler(configService services.ChannelConfigService, logger customlog.Logger) *ConfigHandler {
	if configService == nil {
		panic("ConfigService cannot be nil in NewConfigHandler")
	}
	return &ConfigHandler{
		configService: configService,
		logger:        customlog.OrDefault(logger),
	}
}

// RegisterConfigRoutes registers the configuration API endpoints with the Fiber app.
func RegisterConfigRoutes(app *fiber.App, configService services.ChannelConfigService, logger customlog.Logger) {
	h := NewConfigHandler(configService, logger)

	apiGroup := app.Group("/api/v1/config")
	apiGroup.Get("/channels", h.handleGetChannelConfig)
	apiGroup.Put("/channels", h.handleUpdateChannelConfig)

	h.logger.Infof("Registered channel configuration API endpoints under /api/v1/config")
}

// handleGetChannelConfig returns the channel config as YAML, or as the
// parsed JSON form when the client asks for JSON.
func (h *ConfigHandler) handleGetChannelConfig(c *fiber.Ctx) error {
	if c.Accepts("application/x-yaml", fiber.MIMEApplicationJSON) == fiber.MIMEApplicationJSON {
		return ok(c, h.configService.GetCurrentConfig())
	}

	yamlData, err := h.configService.GetCurrentConfigYAML()
	if err != nil {
		h.logger.Errorf("Failed to get current channel config YAML: %v", err)
		return fail(c, fiber.StatusInternalServerError, "failed to retrieve configuration")
	}

	c.Set(fiber.HeaderContentType, "application/x-yaml")
	return c.Send(yamlData)
}

// handleUpdateChannelConfig replaces the channel config with the YAML body
func (h *ConfigHandler) handleUpdateChannelConfig(c *fiber.Ctx) error {
	newConfigYAML := c.Body()
	if len(newConfigYAML) == 0 {
		return fail(c, fiber.StatusBadRequest, "request body cannot be empty")
	}

	cfg, err := h.configService.UpdateConfig(newConfigYAML)
	if err != nil {
		if errors.Is(err, services.ErrInvalidConfig) {
			return fail(c, fiber.StatusBadRequest, err.Error())
		}
		h.logger.Errorf("Failed to update channel configuration: %v", err)
		return fail(c, fiber.StatusInternalServerError, "failed to store configuration")
	}

	h.logger.Infof("Channel configuration updated to %s", cfg.ConfigID)
	return ok(c, cfg)
}
