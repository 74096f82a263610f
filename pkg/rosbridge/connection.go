package rosbridge

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	customlog "github.com/medirover/controller/pkg/log"
)

// Common errors
var (
	ErrNotConnected = errors.New("rosbridge: not connected")
	ErrClosed       = errors.New("rosbridge: connection closed")
)

// ConnectionError reports a failed connect or reconnect attempt
type ConnectionError struct {
	URL string
	Err error
}

func (e *ConnectionError) Error() string {
	return fmt.Sprintf("rosbridge: connect to %s: %v", e.URL, e.Err)
}

func (e *ConnectionError) Unwrap() error {
	return e.Err
}

// State is the lifecycle state of a Connection
type State int32

const (
	StateDisconnected State = iota
	StateConnecting
	StateConnected
)

func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	}
	return fmt.Sprintf("state(%d)", int32(s))
}

// Message is one inbound publish on a subscribed channel
type Message struct {
	Channel string
	Raw     json.RawMessage
}

// Handler receives inbound messages. It runs on the read loop and must not block.
type Handler func(Message)

// StateObserver is told about every state transition
type StateObserver func(State)

// Options configures a Connection
type Options struct {
	Host              string
	Port              int
	ConnectTimeout    time.Duration
	ReconnectInterval time.Duration // zero disables automatic reconnects
	WriteTimeout      time.Duration
	// Dialer defaults to a WebSocketDialer
	Dialer Dialer
}

type subscription struct {
	schema  string
	handler Handler
}

// Connection owns the single transport to the bridge. All publishes and
// subscriptions of the process are multiplexed over it.
type Connection struct {
	opts   Options
	url    string
	dialer Dialer
	logger customlog.Logger

	connectMu sync.Mutex // serializes dials
	writeMu   sync.Mutex // serializes transport writes

	mu           sync.Mutex
	state        State
	transport    Transport
	subs         map[string]subscription
	subscribed   map[string]bool // per socket
	advertised   map[string]bool // per socket
	observers    []StateObserver
	closed       bool
	reconnecting bool

	stopCh chan struct{}
	wg     sync.WaitGroup
}

// NewConnection creates a disconnected Connection
func NewConnection(opts Options, logger customlog.Logger) *Connection {
	if opts.ConnectTimeout <= 0 {
		opts.ConnectTimeout = 5 * time.Second
	}
	dialer := opts.Dialer
	if dialer == nil {
		dialer = &WebSocketDialer{HandshakeTimeout: opts.ConnectTimeout, WriteTimeout: opts.WriteTimeout}
	}
	url := URL(opts.Host, opts.Port)
	return &Connection{
		opts:       opts,
		url:        url,
		dialer:     dialer,
		logger:     customlog.OrDefault(logger).WithField("bridge", url),
		subs:       make(map[string]subscription),
		subscribed: make(map[string]bool),
		advertised: make(map[string]bool),
		stopCh:     make(chan struct{}),
	}
}

// URL returns the bridge address
func (c *Connection) URL() string {
	return c.url
}

// State returns the current lifecycle state
func (c *Connection) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// IsConnected reports whether State is StateConnected
func (c *Connection) IsConnected() bool {
	return c.State() == StateConnected
}

// OnStateChange registers an observer for state transitions
func (c *Connection) OnStateChange(fn StateObserver) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.observers = append(c.observers, fn)
}

// Connect dials the bridge. It is a no-op when already connected and fails
// with a *ConnectionError when the bridge cannot be reached within the
// connect timeout. A failed attempt schedules background reconnects when a
// reconnect interval is configured.
func (c *Connection) Connect(ctx context.Context) error {
	err := c.dial(ctx)
	if err != nil && !errors.Is(err, ErrClosed) {
		c.scheduleReconnect()
	}
	return err
}

func (c *Connection) dial(ctx context.Context) error {
	c.connectMu.Lock()
	defer c.connectMu.Unlock()

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrClosed
	}
	if c.state == StateConnected {
		c.mu.Unlock()
		return nil
	}
	observers := c.setStateLocked(StateConnecting)
	c.mu.Unlock()
	notify(observers, StateConnecting)

	dialCtx, cancel := context.WithTimeout(ctx, c.opts.ConnectTimeout)
	defer cancel()

	t, err := c.dialer.Dial(dialCtx, c.url)
	if err != nil {
		c.mu.Lock()
		observers := c.setStateLocked(StateDisconnected)
		c.mu.Unlock()
		notify(observers, StateDisconnected)
		return &ConnectionError{URL: c.url, Err: err}
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		t.Close()
		return ErrClosed
	}
	c.transport = t
	c.subscribed = make(map[string]bool)
	c.advertised = make(map[string]bool)
	observers = c.setStateLocked(StateConnected)
	pending := make(map[string]string, len(c.subs))
	for channel, sub := range c.subs {
		pending[channel] = sub.schema
	}
	c.wg.Add(1)
	c.mu.Unlock()

	go c.readLoop(t)

	c.logger.Infof("Connected to rosbridge")
	notify(observers, StateConnected)

	// Subscriptions do not survive a new socket
	for channel, schema := range pending {
		if err := c.sendSubscribe(t, channel, schema); err != nil {
			c.logger.WithField("channel", channel).Warnf("Re-subscribe failed: %v", err)
		}
	}
	return nil
}

// Publish hands msg to the transport on channel. It fails with
// ErrNotConnected, without writing anything, unless the connection is up.
// The first publish on a channel per socket is preceded by an advertise op.
func (c *Connection) Publish(channel, schema string, msg interface{}) error {
	c.mu.Lock()
	if c.state != StateConnected || c.transport == nil {
		c.mu.Unlock()
		return ErrNotConnected
	}
	t := c.transport
	needAdvertise := !c.advertised[channel]
	c.mu.Unlock()

	data, err := PublishMsg(channel, msg)
	if err != nil {
		return fmt.Errorf("encode publish on %s: %w", channel, err)
	}

	if needAdvertise {
		adv, err := AdvertiseMsg(channel, schema)
		if err != nil {
			return fmt.Errorf("encode advertise on %s: %w", channel, err)
		}
		if err := c.write(t, adv); err != nil {
			return err
		}
		c.mu.Lock()
		if c.transport == t {
			c.advertised[channel] = true
		}
		c.mu.Unlock()
	}

	if err := c.write(t, data); err != nil {
		return err
	}
	c.logger.WithField("channel", channel).Debugf("Published %d bytes", len(data))
	return nil
}

// Subscribe registers handler for inbound messages on channel, replacing any
// previous handler. The subscription is kept across reconnects.
func (c *Connection) Subscribe(channel, schema string, handler Handler) error {
	if handler == nil {
		return fmt.Errorf("rosbridge: nil handler for %s", channel)
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrClosed
	}
	c.subs[channel] = subscription{schema: schema, handler: handler}
	t := c.transport
	send := c.state == StateConnected && t != nil
	c.mu.Unlock()

	if !send {
		return nil
	}
	return c.sendSubscribe(t, channel, schema)
}

// Unsubscribe drops the handler for channel
func (c *Connection) Unsubscribe(channel string) error {
	c.mu.Lock()
	_, known := c.subs[channel]
	delete(c.subs, channel)
	t := c.transport
	send := known && c.state == StateConnected && t != nil && c.subscribed[channel]
	delete(c.subscribed, channel)
	c.mu.Unlock()

	if !send {
		return nil
	}
	data, err := UnsubscribeMsg(channel)
	if err != nil {
		return err
	}
	return c.write(t, data)
}

// Channels returns the channels with a registered handler
func (c *Connection) Channels() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	channels := make([]string, 0, len(c.subs))
	for channel := range c.subs {
		channels = append(channels, channel)
	}
	return channels
}

// Close releases the connection and stops reconnecting. It is idempotent.
func (c *Connection) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	close(c.stopCh)
	t := c.transport
	c.transport = nil
	observers := c.setStateLocked(StateDisconnected)
	c.mu.Unlock()

	var err error
	if t != nil {
		err = t.Close()
	}
	notify(observers, StateDisconnected)
	c.wg.Wait()
	c.logger.Infof("Connection closed")
	return err
}

// sendSubscribe sends one subscribe op for channel on t. A channel already
// subscribed on t, or no longer registered, is skipped.
func (c *Connection) sendSubscribe(t Transport, channel, schema string) error {
	c.mu.Lock()
	_, registered := c.subs[channel]
	if c.transport != t || !registered || c.subscribed[channel] {
		c.mu.Unlock()
		return nil
	}
	c.subscribed[channel] = true
	c.mu.Unlock()

	data, err := SubscribeMsg(channel, schema)
	if err == nil {
		err = c.write(t, data)
	}
	if err != nil {
		c.mu.Lock()
		if c.transport == t {
			delete(c.subscribed, channel)
		}
		c.mu.Unlock()
		return err
	}
	c.logger.WithField("channel", channel).Debugf("Subscribed (%s)", schema)
	return nil
}

func (c *Connection) write(t Transport, data []byte) error {
	c.writeMu.Lock()
	err := t.WriteMessage(data)
	c.writeMu.Unlock()
	if err != nil {
		c.dropTransport(t, err)
		return &ConnectionError{URL: c.url, Err: fmt.Errorf("write: %w", err)}
	}
	return nil
}

func (c *Connection) readLoop(t Transport) {
	defer c.wg.Done()
	for {
		data, err := t.ReadMessage()
		if err != nil {
			c.dropTransport(t, err)
			return
		}
		c.handleFrame(data)
	}
}

func (c *Connection) handleFrame(data []byte) {
	in, err := ParseIncoming(data)
	if err != nil {
		c.logger.Warnf("Dropping frame: %v", err)
		return
	}

	switch in.Op {
	case OpPublish:
		c.mu.Lock()
		sub, ok := c.subs[in.Topic]
		c.mu.Unlock()
		if !ok {
			c.logger.WithField("channel", in.Topic).Debugf("No handler for inbound message")
			return
		}
		sub.handler(Message{Channel: in.Topic, Raw: in.Msg})
	case OpStatus:
		var text string
		_ = json.Unmarshal(in.Msg, &text)
		c.logger.WithField("level", in.Level).Warnf("Bridge status: %s", text)
	default:
		c.logger.Debugf("Ignoring op %s", in.Op)
	}
}

// dropTransport moves to Disconnected if t is still the live transport.
func (c *Connection) dropTransport(t Transport, cause error) {
	c.mu.Lock()
	if c.transport != t {
		c.mu.Unlock()
		return
	}
	c.transport = nil
	observers := c.setStateLocked(StateDisconnected)
	closed := c.closed
	c.mu.Unlock()

	t.Close()
	if closed {
		return
	}
	c.logger.Warnf("Connection lost: %v", cause)
	notify(observers, StateDisconnected)
	c.scheduleReconnect()
}

func (c *Connection) scheduleReconnect() {
	if c.opts.ReconnectInterval <= 0 {
		return
	}
	c.mu.Lock()
	if c.closed || c.reconnecting {
		c.mu.Unlock()
		return
	}
	c.reconnecting = true
	c.wg.Add(1)
	c.mu.Unlock()

	go func() {
		defer c.wg.Done()

		for attempt := 1; ; attempt++ {
			select {
			case <-c.stopCh:
				return
			case <-time.After(c.opts.ReconnectInterval):
			}
			c.logger.Infof("Reconnecting (attempt %d)", attempt)
			err := c.dial(context.Background())
			if errors.Is(err, ErrClosed) {
				return
			}
			if err != nil {
				c.logger.Warnf("Reconnect failed: %v", err)
				continue
			}
			// The new socket may already have dropped
			c.mu.Lock()
			if c.state == StateConnected {
				c.reconnecting = false
				c.mu.Unlock()
				return
			}
			c.mu.Unlock()
		}
	}()
}

// setStateLocked records s and returns the observers to notify, or nil when
// the state did not change. c.mu must be held.
func (c *Connection) setStateLocked(s State) []StateObserver {
	if c.state == s {
		return nil
	}
	c.state = s
	observers := make([]StateObserver, len(c.observers))
	copy(observers, c.observers)
	return observers
}

func notify(observers []StateObserver, s State) {
	for _, fn := range observers {
		fn(s)
	}
}
