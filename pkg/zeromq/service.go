package zeromq

import (
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/pebbe/zmq4"

	"github.com/medirover/controller/pkg/config"
	customlog "github.com/medirover/controller/pkg/log"
)

// Common errors
var (
	ErrServiceClosed      = errors.New("zeromq service is closed")
	ErrInvalidMessage     = errors.New("invalid message format")
	ErrUnknownMessageType = errors.New("unknown message type")
)

// Message types
const (
	MsgTypeConfigRequest   = "CONFIG_REQUEST"
	MsgTypeConfigResponse  = "CONFIG_RESPONSE"
	MsgTypeConfigUpdated   = "CONFIG_UPDATED"
	MsgTypeStatusRequest   = "STATUS_REQUEST"
	MsgTypeStatusResponse  = "STATUS_RESPONSE"
	MsgTypeCommandOutcome  = "COMMAND_OUTCOME"
	MsgTypeConnectionState = "CONNECTION_STATE"
	MsgTypeError           = "ERROR"
)

// Publish topics. Status envelopes go out on TopicStatusPrefix + channel,
// e.g. "status/tp_result".
const (
	TopicStatusPrefix          = "status"
	TopicConnectionState       = "connection.state"
	TopicConfigurationNotified = "configuration.notification"
)

// ZeroMQMessage represents a generic message structure for ZeroMQ communication
type ZeroMQMessage struct {
	Type      string          `json:"type"`
	Timestamp float64         `json:"timestamp"`
	Data      json.RawMessage `json:"data,omitempty"`
}

// outgoingMessage is ZeroMQMessage with an unencoded payload
type outgoingMessage struct {
	Type      string      `json:"type"`
	Timestamp float64     `json:"timestamp"`
	Data      interface{} `json:"data,omitempty"`
}

// ErrorResponse represents an error response message
type ErrorResponse struct {
	Message string `json:"message"`
	Code    int    `json:"code"`
}

// MessageHandler defines the interface for handlers that process specific message types
type MessageHandler interface {
	HandleMessage(msg ZeroMQMessage) ([]byte, error)
}

// HandlerFunc is a function type that implements MessageHandler
type HandlerFunc func(msg ZeroMQMessage) ([]byte, error)

// HandleMessage calls the function
func (f HandlerFunc) HandleMessage(msg ZeroMQMessage) ([]byte, error) {
	return f(msg)
}

// encodeReply serializes a reply of messageType carrying data
func encodeReply(messageType string, data interface{}) ([]byte, error) {
	out, err := json.Marshal(outgoingMessage{
		Type:      messageType,
		Timestamp: float64(time.Now().UnixNano()) / 1e9,
		Data:      data,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to serialize %s: %w", messageType, err)
	}
	return out, nil
}

// MessageReceiver answers requests on a REP socket. The socket is only
// touched from the receive goroutine.
type MessageReceiver struct {
	socket     *zmq4.Socket
	address    string
	dispatcher *MessageDispatcher
	poller     *zmq4.Poller
	logger     customlog.Logger
	running    atomic.Bool
	wg         sync.WaitGroup
}

// newMessageReceiver creates a new MessageReceiver bound to address
func newMessageReceiver(ctx *zmq4.Context, address string, dispatcher *MessageDispatcher, logger customlog.Logger) (*MessageReceiver, error) {
	socket, err := ctx.NewSocket(zmq4.REP)
	if err != nil {
		return nil, fmt.Errorf("failed to create REP socket: %w", err)
	}

	if err := socket.SetLinger(0); err != nil {
		socket.Close()
		return nil, fmt.Errorf("failed to set linger option: %w", err)
	}

	// Bounded send so a vanished client cannot wedge shutdown
	const socketTimeout = 1 * time.Second
	if err := socket.SetSndtimeo(socketTimeout); err != nil {
		socket.Close()
		return nil, fmt.Errorf("failed to set send timeout: %w", err)
	}

	if err := socket.Bind(address); err != nil {
		socket.Close()
		return nil, fmt.Errorf("failed to bind to %s: %w", address, err)
	}

	poller := zmq4.NewPoller()
	poller.Add(socket, zmq4.POLLIN)

	logger.Infof("MessageReceiver initialized on %s", address)

	return &MessageReceiver{
		socket:     socket,
		address:    address,
		dispatcher: dispatcher,
		poller:     poller,
		logger:     logger,
	}, nil
}

// Start begins the message receiving loop
func (r *MessageReceiver) Start() {
	if !r.running.CompareAndSwap(false, true) {
		return
	}

	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		defer r.socket.Close()
		r.logger.Infof("MessageReceiver started")

		for r.running.Load() {
			// Poll with a timeout so Stop is noticed
			sockets, err := r.poller.Poll(250 * time.Millisecond)
			if err != nil {
				if r.running.Load() {
					r.logger.Errorf("Error polling socket: %v", err)
				}
				continue
			}
			if len(sockets) == 0 {
				continue
			}

			msg, err := r.socket.RecvBytes(0)
			if err != nil {
				if r.running.Load() {
					r.logger.Errorf("Error receiving message: %v", err)
				}
				continue
			}

			r.logger.Debugf("Received message (%d bytes)", len(msg))

			response, err := r.dispatcher.Dispatch(msg)
			if err != nil {
				r.logger.Warnf("Error dispatching message: %v", err)
				code := 500
				if errors.Is(err, ErrInvalidMessage) || errors.Is(err, ErrUnknownMessageType) {
					code = 400
				}
				response, err = encodeReply(MsgTypeError, ErrorResponse{Message: err.Error(), Code: code})
				if err != nil {
					// REP must answer every request
					response = []byte(`{"type":"ERROR"}`)
				}
			}

			if _, err := r.socket.SendBytes(response, 0); err != nil && r.running.Load() {
				r.logger.Errorf("Error sending response: %v", err)
			}
		}
	}()
}

// Stop halts the receive loop and waits for it to close the socket
func (r *MessageReceiver) Stop() {
	if !r.running.CompareAndSwap(true, false) {
		return
	}
	r.wg.Wait()
	r.logger.Infof("MessageReceiver on %s stopped", r.address)
}

// MessageSender handles sending messages to ZeroMQ sockets
type MessageSender struct {
	socket  *zmq4.Socket
	logger  customlog.Logger
	running bool
	mu      sync.Mutex
}

// newMessageSender creates a new MessageSender bound to address
func newMessageSender(ctx *zmq4.Context, address string, logger customlog.Logger) (*MessageSender, error) {
	socket, err := ctx.NewSocket(zmq4.PUB)
	if err != nil {
		return nil, fmt.Errorf("failed to create PUB socket: %w", err)
	}

	if err := socket.SetLinger(0); err != nil {
		socket.Close()
		return nil, fmt.Errorf("failed to set linger option: %w", err)
	}

	if err := socket.Bind(address); err != nil {
		socket.Close()
		return nil, fmt.Errorf("failed to bind to %s: %w", address, err)
	}

	logger.Infof("MessageSender initialized on %s", address)

	return &MessageSender{
		socket:  socket,
		logger:  logger,
		running: true,
	}, nil
}

// PublishMessage sends a message with the given topic
func (s *MessageSender) PublishMessage(topic string, message []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.running {
		return ErrServiceClosed
	}

	// Topic frame first, then the body
	if _, err := s.socket.Send(topic, zmq4.SNDMORE); err != nil {
		return fmt.Errorf("failed to send topic: %w", err)
	}
	if _, err := s.socket.SendBytes(message, 0); err != nil {
		return fmt.Errorf("failed to send message: %w", err)
	}
	return nil
}

// Close cleans up resources
func (s *MessageSender) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.running = false
	if s.socket != nil {
		s.socket.Close()
		s.socket = nil
	}
}

// MessageDispatcher routes messages to the appropriate handlers
type MessageDispatcher struct {
	handlers map[string]MessageHandler
	logger   customlog.Logger
	mu       sync.RWMutex
}

// NewMessageDispatcher creates a new message dispatcher
func NewMessageDispatcher(logger customlog.Logger) *MessageDispatcher {
	return &MessageDispatcher{
		handlers: make(map[string]MessageHandler),
		logger:   customlog.OrDefault(logger),
	}
}

// RegisterHandler adds a handler for a specific message type
func (d *MessageDispatcher) RegisterHandler(messageType string, handler MessageHandler) {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.handlers[messageType] = handler
	d.logger.Debugf("Registered handler for message type: %s", messageType)
}

// Dispatch parses a JSON request and routes it to the handler for its type
func (d *MessageDispatcher) Dispatch(data []byte) ([]byte, error) {
	var msg ZeroMQMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidMessage, err)
	}
	if msg.Type == "" {
		return nil, fmt.Errorf("%w: missing type", ErrInvalidMessage)
	}

	d.logger.Debugf("Dispatching message of type: %s", msg.Type)
	d.mu.RLock()
	handler, exists := d.handlers[msg.Type]
	d.mu.RUnlock()

	if !exists {
		return nil, fmt.Errorf("%w: %s", ErrUnknownMessageType, msg.Type)
	}
	return handler.HandleMessage(msg)
}

// ZeroMQService fans status out on a PUB socket and, when a request
// address is configured, answers requests on a REP socket.
type ZeroMQService struct {
	ctx        *zmq4.Context
	receiver   *MessageReceiver
	sender     *MessageSender
	dispatcher *MessageDispatcher
	logger     customlog.Logger
	running    atomic.Bool
}

// NewZeroMQService creates a new ZeroMQ service and binds its sockets
func NewZeroMQService(cfg config.ZeroMQBootstrap, logger customlog.Logger) (*ZeroMQService, error) {
	logger = customlog.OrDefault(logger).WithField("component", "zeromq")
	if cfg.PublishBindAddress == "" {
		return nil, fmt.Errorf("zeromq: publish address is required")
	}

	ctx, err := zmq4.NewContext()
	if err != nil {
		return nil, fmt.Errorf("failed to create ZMQ context: %w", err)
	}

	dispatcher := NewMessageDispatcher(logger)

	sender, err := newMessageSender(ctx, cfg.PublishBindAddress, logger)
	if err != nil {
		ctx.Term()
		return nil, err
	}

	var receiver *MessageReceiver
	if cfg.RequestBindAddress != "" {
		receiver, err = newMessageReceiver(ctx, cfg.RequestBindAddress, dispatcher, logger)
		if err != nil {
			sender.Close()
			ctx.Term()
			return nil, err
		}
	}

	return &ZeroMQService{
		ctx:        ctx,
		receiver:   receiver,
		sender:     sender,
		dispatcher: dispatcher,
		logger:     logger,
	}, nil
}

// RegisterHandler adds a handler for a specific message type
func (s *ZeroMQService) RegisterHandler(messageType string, handler MessageHandler) {
	s.dispatcher.RegisterHandler(messageType, handler)
}

// RegisterHandlerFunc adds a handler function for a specific message type
func (s *ZeroMQService) RegisterHandlerFunc(messageType string, handler func(ZeroMQMessage) ([]byte, error)) {
	s.dispatcher.RegisterHandler(messageType, HandlerFunc(handler))
}

// Start begins the ZeroMQ service
func (s *ZeroMQService) Start() error {
	if !s.running.CompareAndSwap(false, true) {
		return nil
	}

	s.logger.Infof("Starting ZeroMQ service")
	if s.receiver != nil {
		s.receiver.Start()
	}
	return nil
}

// Stop halts the ZeroMQ service and releases its sockets
func (s *ZeroMQService) Stop() {
	s.logger.Infof("Stopping ZeroMQ service")
	s.running.Store(false)

	if s.receiver != nil {
		if s.receiver.running.Load() {
			s.receiver.Stop()
		} else {
			// Never started: the loop did not take ownership of the socket
			s.receiver.socket.Close()
		}
		s.receiver = nil
	}
	if s.sender != nil {
		s.sender.Close()
	}

	if s.ctx != nil {
		s.ctx.Term()
		s.ctx = nil
	}

	s.logger.Infof("ZeroMQ service stopped")
}

// PublishMessage sends a message with the given topic
func (s *ZeroMQService) PublishMessage(topic string, message []byte) error {
	if !s.running.Load() {
		return ErrServiceClosed
	}
	return s.sender.PublishMessage(topic, message)
}

// PublishJSON publishes a JSON-serializable message with the given topic
func (s *ZeroMQService) PublishJSON(topic string, messageType string, data interface{}) error {
	msgData, err := encodeReply(messageType, data)
	if err != nil {
		return err
	}
	return s.PublishMessage(topic, msgData)
}
