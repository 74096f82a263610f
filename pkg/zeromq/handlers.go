package zeromq

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/medirover/controller/pkg/config"
	"github.com/medirover/controller/pkg/gateway"
	customlog "github.com/medirover/controller/pkg/log"
	"github.com/medirover/controller/pkg/status"
)

// CommandDispatcher runs a command given its request type and JSON body
type CommandDispatcher interface {
	Dispatch(ctx context.Context, requestType string, data json.RawMessage) (gateway.CommandOutcome, error)
}

// CommandHandler answers command requests with the CommandOutcome.
// The request type is the command type, e.g. VELOCITY.
type CommandHandler struct {
	commands CommandDispatcher
	timeout  time.Duration
	logger   customlog.Logger
}

// NewCommandHandler creates a handler for command requests. timeout bounds
// each command including its pacing hold; zero means no bound.
func NewCommandHandler(commands CommandDispatcher, timeout time.Duration, logger customlog.Logger) *CommandHandler {
	return &CommandHandler{
		commands: commands,
		timeout:  timeout,
		logger:   customlog.OrDefault(logger),
	}
}

// HandleMessage runs the command. A failed command is still answered with
// its outcome; only outcomes for unknown types become errors.
func (h *CommandHandler) HandleMessage(msg ZeroMQMessage) ([]byte, error) {
	ctx := context.Background()
	if h.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, h.timeout)
		defer cancel()
	}

	outcome, err := h.commands.Dispatch(ctx, msg.Type, msg.Data)
	if err != nil {
		h.logger.Debugf("Command %s over ZeroMQ: %v", msg.Type, err)
		if errors.Is(err, gateway.ErrInvalidCommandArgument) && outcome.Kind == "" {
			return nil, ErrUnknownMessageType
		}
	}
	return encodeReply(MsgTypeCommandOutcome, outcome)
}

// ConfigHandler handles CONFIG_REQUEST messages
type ConfigHandler struct {
	current func() *config.Config
	logger  customlog.Logger
}

// NewConfigHandler creates a new handler for configuration requests.
// current returns the configuration in effect.
func NewConfigHandler(current func() *config.Config, logger customlog.Logger) *ConfigHandler {
	return &ConfigHandler{
		current: current,
		logger:  customlog.OrDefault(logger),
	}
}

// HandleMessage returns a CONFIG_RESPONSE
func (h *ConfigHandler) HandleMessage(msg ZeroMQMessage) ([]byte, error) {
	cfg := h.current()
	h.logger.Debugf("Processing configuration request (ID: %s)", cfg.ConfigID)
	return encodeReply(MsgTypeConfigResponse, cfg)
}

// StatusReporter is the status surface served to STATUS_REQUEST
type StatusReporter interface {
	Snapshot() []status.Status
	Connection() status.ConnectionReport
}

// StatusHandler handles STATUS_REQUEST messages
type StatusHandler struct {
	reporter StatusReporter
}

// NewStatusHandler creates a new handler for status requests
func NewStatusHandler(reporter StatusReporter) *StatusHandler {
	return &StatusHandler{reporter: reporter}
}

// StatusSnapshot is the body of a STATUS_RESPONSE
type StatusSnapshot struct {
	Connection status.ConnectionReport `json:"connection"`
	Channels   []status.Status         `json:"channels"`
}

// HandleMessage returns the last known status of every channel
func (h *StatusHandler) HandleMessage(msg ZeroMQMessage) ([]byte, error) {
	return encodeReply(MsgTypeStatusResponse, StatusSnapshot{
		Connection: h.reporter.Connection(),
		Channels:   h.reporter.Snapshot(),
	})
}

// RegisterCommandHandlers registers the command handler for every command type
func RegisterCommandHandlers(service *ZeroMQService, commands CommandDispatcher, types []string, timeout time.Duration, logger customlog.Logger) {
	handler := NewCommandHandler(commands, timeout, logger)
	for _, t := range types {
		service.RegisterHandler(t, handler)
	}
}
