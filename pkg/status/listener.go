package status

import (
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/medirover/controller/pkg/config"
	customlog "github.com/medirover/controller/pkg/log"
	"github.com/medirover/controller/pkg/processing"
	"github.com/medirover/controller/pkg/rosbridge"
)

// Subscriber is the part of the bridge connection the listener needs
type Subscriber interface {
	Subscribe(channel, schema string, handler rosbridge.Handler) error
	Unsubscribe(channel string) error
}

// Status is the last known message on a status channel
type Status struct {
	Channel     string          `json:"channel"`
	MessageType string          `json:"message_type"`
	Value       interface{}     `json:"value"`
	Raw         json.RawMessage `json:"raw"`
	ReceivedAt  time.Time       `json:"received_at"`
	Sequence    uint64          `json:"sequence"`
	DecodeError string          `json:"decode_error,omitempty"`
}

// Observer is called once per inbound status message, in arrival order
// for any one channel. Observers run on a worker, not the transport loop.
type Observer func(Status)

// ConnectionObserver is called on every connection state change
type ConnectionObserver func(rosbridge.State)

// Options sizes the delivery pool
type Options struct {
	Workers   int
	QueueSize int
}

// Listener keeps the last known status per channel and fans inbound
// messages out to registered observers.
type Listener struct {
	logger     customlog.Logger
	subscriber Subscriber
	director   *processing.MessageDirector

	mu        sync.RWMutex
	cfg       *config.Config
	latest    map[string]Status
	observers map[int]Observer
	nextID    int
	connState rosbridge.State
	connObs   map[int]ConnectionObserver
	started   bool
}

// NewListener creates a listener for cfg's INBOUND channels. Nothing is
// subscribed until Start.
func NewListener(subscriber Subscriber, cfg *config.Config, opts Options, logger customlog.Logger) *Listener {
	logger = customlog.OrDefault(logger)
	if cfg == nil {
		cfg = config.DefaultChannelConfig()
	}
	l := &Listener{
		logger:     logger,
		subscriber: subscriber,
		cfg:        cfg,
		latest:     make(map[string]Status),
		observers:  make(map[int]Observer),
		connObs:    make(map[int]ConnectionObserver),
	}
	l.director = processing.NewMessageDirector(cfg, logger, &processing.DirectorOptions{
		Workers:   opts.Workers,
		QueueSize: opts.QueueSize,
	}, l.onResult)
	return l
}

// Start starts delivery and subscribes every INBOUND channel
func (l *Listener) Start() error {
	l.mu.Lock()
	if l.started {
		l.mu.Unlock()
		return nil
	}
	l.started = true
	cfg := l.cfg
	l.mu.Unlock()

	l.director.Start()

	var firstErr error
	for _, m := range cfg.GetChannelMappingsByDirection(config.DirectionInbound) {
		if err := l.subscribe(m); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// Stop unsubscribes every channel and waits for queued messages to be delivered
func (l *Listener) Stop() {
	l.mu.Lock()
	if !l.started {
		l.mu.Unlock()
		return
	}
	l.started = false
	cfg := l.cfg
	l.mu.Unlock()

	for _, m := range cfg.GetChannelMappingsByDirection(config.DirectionInbound) {
		if err := l.subscriber.Unsubscribe(m.Channel); err != nil {
			l.logger.Debugf("Unsubscribe %s: %v", m.Channel, err)
		}
	}
	l.director.Stop()
}

// Reload switches to cfg: newly listed INBOUND channels are subscribed and
// channels no longer listed are unsubscribed and forgotten.
func (l *Listener) Reload(cfg *config.Config) error {
	l.mu.Lock()
	previous := l.cfg
	l.cfg = cfg
	started := l.started
	l.mu.Unlock()

	l.director.Reload(cfg)

	oldSet := make(map[string]bool)
	for _, m := range previous.GetChannelMappingsByDirection(config.DirectionInbound) {
		oldSet[m.Channel] = true
	}
	newSet := make(map[string]bool)
	var firstErr error
	for _, m := range cfg.GetChannelMappingsByDirection(config.DirectionInbound) {
		newSet[m.Channel] = true
		if oldSet[m.Channel] || !started {
			continue
		}
		if err := l.subscribe(m); err != nil && firstErr == nil {
			firstErr = err
		}
	}

	for channel := range oldSet {
		if newSet[channel] {
			continue
		}
		if started {
			if err := l.subscriber.Unsubscribe(channel); err != nil && firstErr == nil {
				firstErr = fmt.Errorf("unsubscribe %s: %w", channel, err)
			}
		}
		l.mu.Lock()
		delete(l.latest, channel)
		l.mu.Unlock()
		l.logger.Infof("Stopped listening on %s", channel)
	}
	return firstErr
}

func (l *Listener) subscribe(m config.ChannelMapping) error {
	if err := l.subscriber.Subscribe(m.Channel, m.MessageType, l.handle); err != nil {
		l.logger.Errorf("Failed to subscribe to %s: %v", m.Channel, err)
		return fmt.Errorf("subscribe %s: %w", m.Channel, err)
	}
	l.logger.Infof("Listening on %s (%s)", m.Channel, m.MessageType)
	return nil
}

// handle runs on the transport read loop; it only queues
func (l *Listener) handle(msg rosbridge.Message) {
	if err := l.director.Submit(msg.Channel, msg.Raw); err != nil {
		l.logger.Warnf("Dropped status on %s: %v", msg.Channel, err)
	}
}

func (l *Listener) onResult(r *processing.ProcessResult) {
	s := Status{
		Channel:     r.Channel,
		MessageType: r.MessageType,
		Value:       r.Value,
		Raw:         r.Raw,
		ReceivedAt:  r.ReceivedAt,
		Sequence:    r.Sequence,
	}
	if r.Error != nil {
		s.DecodeError = r.Error.Error()
	}

	l.mu.Lock()
	l.latest[s.Channel] = s
	observers := make([]Observer, 0, len(l.observers))
	for _, id := range sortedKeys(l.observers) {
		observers = append(observers, l.observers[id])
	}
	l.mu.Unlock()

	for _, fn := range observers {
		fn(s)
	}
}

// Observe registers fn for every status message. The returned function
// removes it.
func (l *Listener) Observe(fn Observer) (cancel func()) {
	l.mu.Lock()
	id := l.nextID
	l.nextID++
	l.observers[id] = fn
	l.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			l.mu.Lock()
			delete(l.observers, id)
			l.mu.Unlock()
		})
	}
}

// Latest returns the last status seen on channel
func (l *Listener) Latest(channel string) (Status, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	s, ok := l.latest[channel]
	return s, ok
}

// Snapshot returns the last status of every channel, sorted by channel
func (l *Listener) Snapshot() []Status {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]Status, 0, len(l.latest))
	for _, s := range l.latest {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Channel < out[j].Channel })
	return out
}

// Channels returns the INBOUND channels currently configured
func (l *Listener) Channels() []config.ChannelMapping {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.cfg.GetChannelMappingsByDirection(config.DirectionInbound)
}

// Stats returns per-channel receive counters
func (l *Listener) Stats() []processing.ChannelInfo {
	return l.director.GetChannelStats()
}

// SetConnectionState records a connection transition. Register it with
// rosbridge.Connection.OnStateChange.
func (l *Listener) SetConnectionState(state rosbridge.State) {
	l.mu.Lock()
	prev := l.connState
	l.connState = state
	observers := make([]ConnectionObserver, 0, len(l.connObs))
	for _, id := range sortedKeys(l.connObs) {
		observers = append(observers, l.connObs[id])
	}
	l.mu.Unlock()

	if prev != state {
		l.logger.Infof("Bridge connection %s -> %s", prev, state)
	}
	for _, fn := range observers {
		fn(state)
	}
}

// ConnectionState returns the last recorded connection state
func (l *Listener) ConnectionState() rosbridge.State {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.connState
}

// ObserveConnection registers fn for connection state changes
func (l *Listener) ObserveConnection(fn ConnectionObserver) (cancel func()) {
	l.mu.Lock()
	id := l.nextID
	l.nextID++
	l.connObs[id] = fn
	l.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			l.mu.Lock()
			delete(l.connObs, id)
			l.mu.Unlock()
		})
	}
}

func sortedKeys[V any](m map[int]V) []int {
	keys := make([]int, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Ints(keys)
	return keys
}
