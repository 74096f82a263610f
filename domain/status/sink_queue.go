package status

import (
	"sync/atomic"

	customlog "github.com/medirover/controller/pkg/log"
	"github.com/medirover/controller/pkg/status"
)

// SinkQueueSize is how many updates a sink may fall behind by before
// further updates to it are dropped
const SinkQueueSize = 256

type sinkEvent struct {
	status     *status.Status
	connection *status.ConnectionReport
}

// sinkQueue feeds one sink from its own goroutine so a slow or unreachable
// sink never holds up status delivery
type sinkQueue struct {
	sink    Sink
	logger  customlog.Logger
	events  chan sinkEvent
	dropped atomic.Uint64
	done    chan struct{}
}

func newSinkQueue(sink Sink, size int, logger customlog.Logger) *sinkQueue {
	return &sinkQueue{
		sink:   sink,
		logger: logger,
		events: make(chan sinkEvent, size),
		done:   make(chan struct{}),
	}
}

func (q *sinkQueue) run() {
	defer close(q.done)
	for ev := range q.events {
		switch {
		case ev.status != nil:
			if err := q.sink.PublishStatus(*ev.status); err != nil {
				q.logger.Warnf("Failed to forward status on %s: %v", ev.status.Channel, err)
			}
		case ev.connection != nil:
			if err := q.sink.PublishConnection(*ev.connection); err != nil {
				q.logger.Warnf("Failed to forward connection state %s: %v", ev.connection.State, err)
			}
		}
	}
}

// offer queues ev without blocking
func (q *sinkQueue) offer(ev sinkEvent) {
	select {
	case q.events <- ev:
	default:
		if n := q.dropped.Add(1); n == 1 || n%100 == 0 {
			q.logger.Warnf("Sink %T is behind, %d updates dropped", q.sink, n)
		}
	}
}

// stop closes the queue and waits until the pending updates are delivered
func (q *sinkQueue) stop() {
	close(q.events)
	<-q.done
}
