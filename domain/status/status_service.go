package status

import (
	"strings"
	"sync"
	"time"

	customlog "github.com/medirover/controller/pkg/log"
	"github.com/medirover/controller/pkg/processing"
	"github.com/medirover/controller/pkg/rosbridge"
	"github.com/medirover/controller/pkg/status"
)

// Source is the listener surface the service reads from
type Source interface {
	Latest(channel string) (status.Status, bool)
	Snapshot() []status.Status
	Stats() []processing.ChannelInfo
	ConnectionState() rosbridge.State
	Observe(fn status.Observer) (cancel func())
	ObserveConnection(fn status.ConnectionObserver) (cancel func())
}

// Sink receives every status update and connection change. The ZeroMQ
// fan-out and the Redis mirror are sinks.
type Sink interface {
	PublishStatus(s status.Status) error
	PublishConnection(c status.ConnectionReport) error
}

// StatusService answers status queries and forwards updates to sinks
type StatusService struct {
	source Source
	url    string
	logger customlog.Logger

	mu      sync.RWMutex
	since   time.Time
	sinks   []Sink
	queues  []*sinkQueue
	cancels []func()
}

// NewStatusService creates a new status service. url is the bridge address
// shown in connection reports.
func NewStatusService(source Source, url string, logger customlog.Logger) *StatusService {
	return &StatusService{
		source: source,
		url:    url,
		logger: customlog.OrDefault(logger),
		since:  time.Now(),
	}
}

// AddSink registers a sink. Call before Start.
func (s *StatusService) AddSink(sink Sink) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sinks = append(s.sinks, sink)
}

// Start begins forwarding updates to the sinks. Each sink is fed from its
// own queue; a sink that falls SinkQueueSize updates behind loses updates
// instead of stalling status delivery.
func (s *StatusService) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.cancels) > 0 {
		return
	}
	for _, sink := range s.sinks {
		q := newSinkQueue(sink, SinkQueueSize, s.logger)
		go q.run()
		s.queues = append(s.queues, q)
	}
	s.cancels = append(s.cancels,
		s.source.Observe(s.forwardStatus),
		s.source.ObserveConnection(s.forwardConnection),
	)
}

// Stop stops forwarding and waits for the sinks to take what was queued
func (s *StatusService) Stop() {
	s.mu.Lock()
	cancels := s.cancels
	queues := s.queues
	s.cancels = nil
	s.queues = nil
	s.mu.Unlock()
	for _, cancel := range cancels {
		cancel()
	}
	for _, q := range queues {
		q.stop()
	}
}

// Dropped returns how many updates the running sinks have missed
func (s *StatusService) Dropped() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var n uint64
	for _, q := range s.queues {
		n += q.dropped.Load()
	}
	return n
}

func (s *StatusService) forwardStatus(st status.Status) {
	s.offer(sinkEvent{status: &st})
}

func (s *StatusService) forwardConnection(state rosbridge.State) {
	s.mu.Lock()
	s.since = time.Now()
	s.mu.Unlock()

	report := s.Connection()
	s.offer(sinkEvent{connection: &report})
}

func (s *StatusService) offer(ev sinkEvent) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, q := range s.queues {
		q.offer(ev)
	}
}

// Watch calls onStatus for every status update and onConnection for every
// connection change until the returned function is called
func (s *StatusService) Watch(onStatus func(status.Status), onConnection func(status.ConnectionReport)) (cancel func()) {
	cancelStatus := s.source.Observe(status.Observer(onStatus))
	cancelConn := s.source.ObserveConnection(func(rosbridge.State) {
		onConnection(s.Connection())
	})
	return func() {
		cancelStatus()
		cancelConn()
	}
}

// Snapshot returns the last known status of every channel
func (s *StatusService) Snapshot() []status.Status {
	return s.source.Snapshot()
}

// Latest returns the last status on channel. The leading slash is optional.
func (s *StatusService) Latest(channel string) (status.Status, bool) {
	return s.source.Latest(NormalizeChannel(channel))
}

// Stats returns per-channel receive counters
func (s *StatusService) Stats() []processing.ChannelInfo {
	return s.source.Stats()
}

// Connection returns the current bridge link report
func (s *StatusService) Connection() status.ConnectionReport {
	state := s.source.ConnectionState()
	s.mu.RLock()
	since := s.since
	s.mu.RUnlock()
	return status.ConnectionReport{
		State:     state.String(),
		Connected: state == rosbridge.StateConnected,
		URL:       s.url,
		Since:     since,
	}
}

// NormalizeChannel adds the leading slash rosbridge channel names carry
func NormalizeChannel(channel string) string {
	channel = strings.TrimSpace(channel)
	if channel == "" || strings.HasPrefix(channel, "/") {
		return channel
	}
	return "/" + channel
}
