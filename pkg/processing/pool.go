package processing

import (
	"hash/fnv"
	"sync"
	"time"

	customlog "github.com/medirover/controller/pkg/log"
)

// ResultHandler is a function that handles processed results
type ResultHandler func(result *ProcessResult)

// MessageProcessor processes messages in a worker
type MessageProcessor func(msg *Message) *ProcessResult

// ProcessingPool is a worker pool that keeps per-channel order: every
// channel is pinned to one worker, so results for a channel are handled in
// the order the messages arrived. Channels are spread across workers.
type ProcessingPool struct {
	name          string
	workerCount   int
	queueSize     int
	logger        customlog.Logger
	queues        []chan *Message
	running       bool
	wg            sync.WaitGroup
	mu            sync.RWMutex // running + queues; held for reading while enqueueing
	handlerMu     sync.RWMutex
	processor     MessageProcessor
	resultHandler ResultHandler
	metrics       *PoolMetrics
}

// PoolMetrics tracks metrics for a processing pool
type PoolMetrics struct {
	ProcessedCount    int64
	ErrorCount        int64
	QueuedCount       int64
	BlockedCount      int64 // enqueues that had to wait for room
	LastProcessedTime int64
	ProcessingTimeAvg int64 // in microseconds
	ProcessingTimeMax int64 // in microseconds
	mu                sync.Mutex
}

// NewProcessingPool creates a new processing pool. queueSize is per worker.
func NewProcessingPool(name string, workerCount, queueSize int, logger customlog.Logger) *ProcessingPool {
	if workerCount < 1 {
		workerCount = 1
	}
	if queueSize < 1 {
		queueSize = 1
	}
	return &ProcessingPool{
		name:        name,
		workerCount: workerCount,
		queueSize:   queueSize,
		logger:      customlog.OrDefault(logger),
		metrics:     &PoolMetrics{},
	}
}

// SetProcessor sets the message processor function
func (p *ProcessingPool) SetProcessor(processor MessageProcessor) {
	p.handlerMu.Lock()
	defer p.handlerMu.Unlock()
	p.processor = processor
}

// SetResultHandler sets the result handler function
func (p *ProcessingPool) SetResultHandler(handler ResultHandler) {
	p.handlerMu.Lock()
	defer p.handlerMu.Unlock()
	p.resultHandler = handler
}

// ProcessMessage queues msg on its channel's worker. When that queue is full
// it waits for room rather than dropping. It returns false only when the
// pool is not running.
func (p *ProcessingPool) ProcessMessage(msg *Message) bool {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if !p.running {
		p.logger.Warnf("%s pool not running, message on %s not processed", p.name, msg.Channel)
		return false
	}

	p.metrics.mu.Lock()
	p.metrics.QueuedCount++
	p.metrics.mu.Unlock()

	queue := p.queues[p.shard(msg.Channel)]
	select {
	case queue <- msg:
		return true
	default:
	}

	p.metrics.mu.Lock()
	p.metrics.BlockedCount++
	p.metrics.mu.Unlock()
	p.logger.Warnf("%s pool queue for %s is full, waiting", p.name, msg.Channel)

	queue <- msg
	return true
}

func (p *ProcessingPool) shard(channel string) int {
	h := fnv.New32a()
	h.Write([]byte(channel))
	return int(h.Sum32() % uint32(len(p.queues)))
}

// Start starts the processing pool workers
func (p *ProcessingPool) Start() {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.running {
		return
	}

	p.running = true
	p.queues = make([]chan *Message, p.workerCount)
	p.logger.Infof("Starting %s pool with %d workers", p.name, p.workerCount)

	for i := 0; i < p.workerCount; i++ {
		p.queues[i] = make(chan *Message, p.queueSize)
		p.wg.Add(1)
		go p.worker(i, p.queues[i])
	}
}

// Stop stops the pool after the queued messages have been processed
func (p *ProcessingPool) Stop() {
	p.mu.Lock()
	if !p.running {
		p.mu.Unlock()
		return
	}
	p.running = false
	for _, q := range p.queues {
		close(q)
	}
	p.mu.Unlock()

	p.logger.Infof("Stopping %s pool", p.name)
	p.wg.Wait()
	p.logger.Infof("%s pool stopped", p.name)

	p.logMetrics()
}

// worker processes messages from its queue
func (p *ProcessingPool) worker(id int, queue <-chan *Message) {
	defer p.wg.Done()

	p.logger.Debugf("%s pool worker %d started", p.name, id)

	for msg := range queue {
		p.handlerMu.RLock()
		processor := p.processor
		resultHandler := p.resultHandler
		p.handlerMu.RUnlock()

		if processor == nil {
			p.logger.Errorf("No message processor set for %s pool", p.name)
			continue
		}

		startTime := time.Now()
		result := processor(msg)
		processingTime := time.Since(startTime).Microseconds()

		p.metrics.mu.Lock()
		p.metrics.ProcessedCount++
		p.metrics.LastProcessedTime = time.Now().UnixNano()
		if p.metrics.ProcessingTimeAvg == 0 {
			p.metrics.ProcessingTimeAvg = processingTime
		} else {
			// Simple moving average
			p.metrics.ProcessingTimeAvg = (p.metrics.ProcessingTimeAvg + processingTime) / 2
		}
		if processingTime > p.metrics.ProcessingTimeMax {
			p.metrics.ProcessingTimeMax = processingTime
		}
		if result != nil && result.Error != nil {
			p.metrics.ErrorCount++
		}
		p.metrics.mu.Unlock()

		if result != nil && resultHandler != nil {
			resultHandler(result)
		}
	}

	p.logger.Debugf("%s pool worker %d stopped", p.name, id)
}

// GetMetrics returns a copy of the current metrics
func (p *ProcessingPool) GetMetrics() PoolMetrics {
	p.metrics.mu.Lock()
	defer p.metrics.mu.Unlock()

	return PoolMetrics{
		ProcessedCount:    p.metrics.ProcessedCount,
		ErrorCount:        p.metrics.ErrorCount,
		QueuedCount:       p.metrics.QueuedCount,
		BlockedCount:      p.metrics.BlockedCount,
		LastProcessedTime: p.metrics.LastProcessedTime,
		ProcessingTimeAvg: p.metrics.ProcessingTimeAvg,
		ProcessingTimeMax: p.metrics.ProcessingTimeMax,
	}
}

// logMetrics logs the current metrics
func (p *ProcessingPool) logMetrics() {
	metrics := p.GetMetrics()

	p.logger.Infof("%s pool metrics: processed=%d, errors=%d, blocked=%d, avg_time=%dµs, max_time=%dµs",
		p.name, metrics.ProcessedCount, metrics.ErrorCount, metrics.BlockedCount,
		metrics.ProcessingTimeAvg, metrics.ProcessingTimeMax)
}

// GetName returns the pool name
func (p *ProcessingPool) GetName() string {
	return p.name
}

// GetQueueLength returns the number of messages waiting across all workers
func (p *ProcessingPool) GetQueueLength() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	n := 0
	for _, q := range p.queues {
		n += len(q)
	}
	return n
}

// GetQueueCapacity returns the total queue capacity
func (p *ProcessingPool) GetQueueCapacity() int {
	return p.queueSize * p.workerCount
}
