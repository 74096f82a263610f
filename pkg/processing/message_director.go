package processing

import (
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/medirover/controller/pkg/config"
	customlog "github.com/medirover/controller/pkg/log"
)

// MessageDirector owns the status pipeline: it counts each inbound message
// in the channel registry, hands it to the ordered pool for decoding, and
// passes results to the configured handler.
type MessageDirector struct {
	logger        customlog.Logger
	registry      *ChannelRegistry
	processor     *RosMessageProcessor
	pool          *ProcessingPool
	resultHandler ResultHandler
	running       bool
	mu            sync.RWMutex
}

// DirectorOptions holds configuration options for the MessageDirector
type DirectorOptions struct {
	Workers   int
	QueueSize int
}

// NewMessageDirector creates a new message director for cfg's channels.
// handler receives every result, in per-channel arrival order.
func NewMessageDirector(
	cfg *config.Config,
	logger customlog.Logger,
	options *DirectorOptions,
	handler ResultHandler,
) *MessageDirector {
	logger = customlog.OrDefault(logger)
	if options == nil {
		options = &DirectorOptions{Workers: 2, QueueSize: 256}
	}

	registry := NewChannelRegistry(logger)
	if cfg != nil {
		registry.LoadFromConfig(cfg)
	}
	processor := NewRosMessageProcessor(logger, registry)

	pool := NewProcessingPool("STATUS", options.Workers, options.QueueSize, logger)
	pool.SetProcessor(processor.CreateProcessorFunc())
	pool.SetResultHandler(NewLoggingResultHandler(logger, handler).CreateHandlerFunc())

	return &MessageDirector{
		logger:        logger,
		registry:      registry,
		processor:     processor,
		pool:          pool,
		resultHandler: handler,
	}
}

// Registry returns the channel registry
func (d *MessageDirector) Registry() *ChannelRegistry {
	return d.registry
}

// Start starts the processing pool
func (d *MessageDirector) Start() {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.running {
		return
	}

	d.running = true
	d.logger.Infof("Starting Message Director")
	d.pool.Start()
}

// Stop drains and stops the processing pool
func (d *MessageDirector) Stop() {
	d.mu.Lock()
	running := d.running
	d.running = false
	d.mu.Unlock()

	if !running {
		return
	}

	d.logger.Infof("Stopping Message Director")
	d.pool.Stop()
	d.logger.Infof("Message Director stopped")
}

// Submit counts and queues a raw message received on channel
func (d *MessageDirector) Submit(channel string, raw json.RawMessage) error {
	d.mu.RLock()
	running := d.running
	d.mu.RUnlock()

	if !running {
		return fmt.Errorf("message director is not running")
	}

	now := time.Now()
	seq := d.registry.RecordReceived(channel, now.UnixNano())

	msg := &Message{
		Channel:    channel,
		Raw:        raw,
		ReceivedAt: now,
		Sequence:   seq,
	}
	if !d.pool.ProcessMessage(msg) {
		return fmt.Errorf("failed to enqueue message for channel '%s'", channel)
	}
	return nil
}

// Reload replaces the registered channels
func (d *MessageDirector) Reload(cfg *config.Config) {
	d.registry.LoadFromConfig(cfg)
}

// GetPoolMetrics returns the pool metrics
func (d *MessageDirector) GetPoolMetrics() PoolMetrics {
	return d.pool.GetMetrics()
}

// GetChannelStats returns per-channel counters
func (d *MessageDirector) GetChannelStats() []ChannelInfo {
	return d.registry.GetChannelStats()
}
