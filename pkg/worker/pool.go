// Package worker provides an asynchronous worker pool that commits the
// long-term memory of a finished turn and publishes its turn event.
//
// The pool decouples those side effects from the chat request so that a slow
// or unavailable memory store never delays a response.
package worker

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"sync"
	"time"

	"github.com/papercomputeco/recall/pkg/conversation"
	"github.com/papercomputeco/recall/pkg/eventstream"
	"github.com/papercomputeco/recall/pkg/memory"
)

var (
	defaultNumWorkers   uint = 3
	defaultJobQueueSize uint = 256
	defaultJobTimeout        = 30 * time.Second
)

// Job is one persisted turn whose side effects are still pending.
type Job struct {
	OwnerID          string
	ConversationID   string
	UserMessage      conversation.Message
	AssistantMessage conversation.Message
	Model            string
	Provider         string
}

// Config is the configuration options for the worker pool.
type Config struct {
	// Memory stores the exchange transcript. Required.
	Memory *memory.Adapter

	// Publisher receives a TurnPersistedEvent per job. Optional.
	Publisher eventstream.Publisher

	// NumWorkers is the number of background workers in the pool.
	NumWorkers uint

	// QueueSize is the capacity of the buffered job channel (defaults to 256).
	QueueSize uint

	// JobTimeout bounds each job's own background context.
	JobTimeout time.Duration

	Logger *slog.Logger
}

// Pool processes turn side effects asynchronously via a worker pool.
type Pool struct {
	config *Config
	queue  chan Job
	wg     sync.WaitGroup
	logger *slog.Logger

	mu     sync.RWMutex
	closed bool
}

// NewPool creates a new Pool and starts its worker goroutines.
func NewPool(c *Config) (*Pool, error) {
	if c.Memory == nil {
		return nil, fmt.Errorf("memory adapter is required")
	}

	if c.NumWorkers == 0 {
		c.NumWorkers = defaultNumWorkers
	}

	if c.QueueSize == 0 {
		c.QueueSize = defaultJobQueueSize
	}

	if c.JobTimeout == 0 {
		c.JobTimeout = defaultJobTimeout
	}

	if c.NumWorkers > uint(math.MaxInt) {
		return nil, fmt.Errorf("NumWorkers %d exceeds max int", c.NumWorkers)
	}

	if c.Logger == nil {
		c.Logger = slog.Default()
	}

	wp := &Pool{
		config: c,
		queue:  make(chan Job, c.QueueSize),
		logger: c.Logger.With("component", "worker"),
	}

	wp.wg.Add(int(c.NumWorkers))
	for i := range c.NumWorkers {
		go wp.worker(i)
	}

	return wp, nil
}

// Enqueue submits a job for processing by the worker pool.
// Returns true if enqueued, false if the queue is full or the pool is closed,
// resulting in the job being dropped.
func (p *Pool) Enqueue(job Job) bool {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if p.closed {
		p.logger.Warn("job not queued, pool closed, job dropped",
			"conversation_id", job.ConversationID,
		)
		return false
	}

	select {
	case p.queue <- job:
		p.logger.Debug("job queued",
			"conversation_id", job.ConversationID,
			"provider", job.Provider,
		)
		return true
	default:
		p.logger.Error("job not queued, queue full, job dropped",
			"conversation_id", job.ConversationID,
			"provider", job.Provider,
		)
		return false
	}
}

// Close signals workers to stop and waits for in-flight jobs to drain.
// Call this during graceful shutdown after the HTTP server has stopped.
func (p *Pool) Close() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	close(p.queue)
	p.mu.Unlock()

	p.wg.Wait()
}

// worker is the inner worker thread that continuously pulls jobs off the jobs queue
func (p *Pool) worker(id uint) {
	defer p.wg.Done()
	p.logger.Debug("worker started", "worker_id", id)

	for job := range p.queue {
		p.processJob(job)
	}

	p.logger.Debug("worker stopped", "worker_id", id)
}

// processJob stores the exchange in memory and publishes the turn event.
// Neither failure is returned: the turn itself is already durable.
func (p *Pool) processJob(job Job) {
	ctx, cancel := context.WithTimeout(context.Background(), p.config.JobTimeout)
	defer cancel()

	p.config.Memory.StoreExchange(ctx, job.OwnerID,
		[]conversation.Message{job.UserMessage, job.AssistantMessage},
		job.ConversationID,
	)

	if p.config.Publisher == nil {
		return
	}

	event := eventstream.NewTurnPersistedEvent(job.ConversationID, job.OwnerID, job.UserMessage, job.AssistantMessage)
	event.Model = job.Model
	event.Provider = job.Provider

	if err := p.config.Publisher.PublishTurn(ctx, event); err != nil {
		p.logger.Warn("failed to publish turn event",
			"conversation_id", job.ConversationID,
			"event_id", event.EventID,
			"error", err,
		)
		return
	}

	p.logger.Debug("turn side effects done",
		"conversation_id", job.ConversationID,
		"event_id", event.EventID,
	)
}
