package workerpool

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/panjf2000/ants/v2"
	"go.uber.org/zap"
)

var ErrPoolClosed = errors.New("worker pool is closed")

// TaskResult carries the outcome of a task submitted with SubmitWithResult.
type TaskResult struct {
	Data  interface{}
	Error error
}

// Config holds worker pool configuration.
type Config struct {
	Workers   int // number of concurrent workers
	QueueSize int // pending task buffer inside ants
}

// DefaultConfig returns the default pool configuration.
func DefaultConfig() *Config {
	return &Config{
		Workers:   3,
		QueueSize: 64,
	}
}

// Statistics is a snapshot of pool usage counters.
type Statistics struct {
	Submitted int64
	Completed int64
	Failed    int64
}

type statCounters struct {
	mu sync.RWMutex
	s  Statistics
}

func (c *statCounters) incSubmitted() {
	c.mu.Lock()
	c.s.Submitted++
	c.mu.Unlock()
}

func (c *statCounters) incCompleted() {
	c.mu.Lock()
	c.s.Completed++
	c.mu.Unlock()
}

func (c *statCounters) incFailed() {
	c.mu.Lock()
	c.s.Failed++
	c.mu.Unlock()
}

func (c *statCounters) get() Statistics {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.s
}

// Pool is a bounded worker pool backed by ants. Tasks beyond the worker
// count queue inside ants and run as workers free up.
type Pool struct {
	pool   *ants.Pool
	config *Config
	stats  *statCounters

	ctx    context.Context
	cancel context.CancelFunc

	logger *zap.Logger
}

// New creates a worker pool with the given configuration.
func New(config *Config, logger *zap.Logger) (*Pool, error) {
	if config == nil {
		config = DefaultConfig()
	}

	antsPool, err := ants.NewPool(config.Workers,
		ants.WithMaxBlockingTasks(config.QueueSize),
		ants.WithPanicHandler(func(err interface{}) {
			logger.Error("worker panic", zap.Any("error", err))
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create ants pool: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())

	return &Pool{
		pool:   antsPool,
		config: config,
		stats:  &statCounters{},
		ctx:    ctx,
		cancel: cancel,
		logger: logger,
	}, nil
}

// Submit submits a task for execution.
func (p *Pool) Submit(task func()) error {
	select {
	case <-p.ctx.Done():
		return ErrPoolClosed
	default:
	}

	p.stats.incSubmitted()
	err := p.pool.Submit(func() {
		task()
		p.stats.incCompleted()
	})
	if err != nil {
		p.stats.incFailed()
	}
	return err
}

// SubmitWithResult submits a task and returns a channel that receives its
// result. The channel is buffered, so an abandoned result never blocks the
// worker that produced it.
func (p *Pool) SubmitWithResult(task func() (interface{}, error)) <-chan TaskResult {
	resultCh := make(chan TaskResult, 1)

	err := p.Submit(func() {
		result, err := task()
		resultCh <- TaskResult{Data: result, Error: err}
		close(resultCh)
	})
	if err != nil {
		resultCh <- TaskResult{Error: err}
		close(resultCh)
	}

	return resultCh
}

// Workers returns the configured worker count.
func (p *Pool) Workers() int {
	return p.config.Workers
}

// Running returns the number of currently running workers.
func (p *Pool) Running() int {
	return p.pool.Running()
}

// Stats returns a snapshot of usage counters.
func (p *Pool) Stats() Statistics {
	return p.stats.get()
}

// Shutdown stops the pool and releases its workers.
func (p *Pool) Shutdown() {
	p.cancel()
	p.pool.Release()
}
