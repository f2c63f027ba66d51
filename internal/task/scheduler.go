// internal/task/scheduler.go
package task

import (
	"context"
	"fmt"
	"math"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Handler processes one task payload. Returning an error triggers a
// retry, so handlers must be idempotent: at-least-once delivery means
// the same payload can arrive more than once.
type Handler func(ctx context.Context, payload []byte) error

// Scheduler enqueues named tasks for execution at or after eta.
type Scheduler interface {
	Schedule(ctx context.Context, name string, payload []byte, eta time.Time) error
}

type job struct {
	name    string
	payload []byte
	attempt int
}

// Pool is the in-process Scheduler: a fixed set of worker goroutines
// draining a queue of named jobs, with exponential-backoff retries.
// Jobs do not survive a restart; the background sweeps re-discover
// anything that matters from the database.
type Pool struct {
	mu       sync.RWMutex
	handlers map[string]Handler
	stopped  bool

	queue chan *job
	done  chan struct{}
	wg    sync.WaitGroup

	workers     int
	maxAttempts int
	baseBackoff time.Duration
	logger      *zap.Logger
}

type Option func(*Pool)

func WithWorkers(n int) Option {
	return func(p *Pool) { p.workers = n }
}

func WithMaxAttempts(n int) Option {
	return func(p *Pool) { p.maxAttempts = n }
}

func WithBaseBackoff(d time.Duration) Option {
	return func(p *Pool) { p.baseBackoff = d }
}

func WithQueueSize(n int) Option {
	return func(p *Pool) { p.queue = make(chan *job, n) }
}

func NewPool(logger *zap.Logger, opts ...Option) *Pool {
	p := &Pool{
		handlers:    make(map[string]Handler),
		queue:       make(chan *job, 1024),
		done:        make(chan struct{}),
		workers:     8,
		maxAttempts: 5,
		baseBackoff: time.Second,
		logger:      logger,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Register binds a handler to a task name. All registration happens
// before Start; scheduling an unregistered name is an error.
func (p *Pool) Register(name string, h Handler) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if _, exists := p.handlers[name]; exists {
		return fmt.Errorf("task %q already registered", name)
	}
	p.handlers[name] = h
	return nil
}

func (p *Pool) Start() {
	for i := 0; i < p.workers; i++ {
		p.wg.Add(1)
		go p.worker()
	}
	p.logger.Info("task pool started", zap.Int("workers", p.workers))
}

// Stop drains in-flight jobs and returns once all workers exit.
// Delayed jobs that have not reached their eta are dropped.
func (p *Pool) Stop() {
	p.mu.Lock()
	p.stopped = true
	p.mu.Unlock()

	close(p.done)
	p.wg.Wait()
	p.logger.Info("task pool stopped")
}

// Schedule refuses new work once Stop has begun. The stopped flag and
// the wg.Add for the delay goroutine sit under the same lock Stop takes
// before waiting, so the Add can never race the Wait.
func (p *Pool) Schedule(ctx context.Context, name string, payload []byte, eta time.Time) error {
	p.mu.Lock()
	if p.stopped {
		p.mu.Unlock()
		return fmt.Errorf("task pool is shutting down")
	}
	if _, ok := p.handlers[name]; !ok {
		p.mu.Unlock()
		return fmt.Errorf("no handler registered for task %q", name)
	}

	j := &job{name: name, payload: payload, attempt: 1}

	delay := time.Until(eta)
	if delay <= 0 {
		p.mu.Unlock()
		return p.enqueue(ctx, j)
	}

	p.wg.Add(1)
	p.mu.Unlock()
	go func() {
		defer p.wg.Done()
		timer := time.NewTimer(delay)
		defer timer.Stop()

		select {
		case <-timer.C:
			if err := p.enqueue(context.Background(), j); err != nil {
				p.logger.Warn("dropping delayed task",
					zap.String("task", j.name), zap.Error(err))
			}
		case <-p.done:
		}
	}()
	return nil
}

func (p *Pool) enqueue(ctx context.Context, j *job) error {
	select {
	case p.queue <- j:
		return nil
	case <-p.done:
		return fmt.Errorf("task pool is shutting down")
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (p *Pool) worker() {
	defer p.wg.Done()

	for {
		select {
		case j := <-p.queue:
			p.run(j)
		case <-p.done:
			// Drain whatever is already queued before exiting.
			for {
				select {
				case j := <-p.queue:
					p.run(j)
				default:
					return
				}
			}
		}
	}
}

func (p *Pool) run(j *job) {
	p.mu.RLock()
	h := p.handlers[j.name]
	p.mu.RUnlock()

	err := h(context.Background(), j.payload)
	if err == nil {
		return
	}

	if j.attempt >= p.maxAttempts {
		p.logger.Error("task exhausted retries",
			zap.String("task", j.name),
			zap.Int("attempts", j.attempt),
			zap.Error(err))
		return
	}

	backoff := time.Duration(float64(p.baseBackoff) * math.Pow(2, float64(j.attempt-1)))
	p.logger.Warn("task failed, retrying",
		zap.String("task", j.name),
		zap.Int("attempt", j.attempt),
		zap.Duration("backoff", backoff),
		zap.Error(err))

	retry := &job{name: j.name, payload: j.payload, attempt: j.attempt + 1}

	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		timer := time.NewTimer(backoff)
		defer timer.Stop()

		select {
		case <-timer.C:
			if err := p.enqueue(context.Background(), retry); err != nil {
				p.logger.Warn("dropping retry",
					zap.String("task", retry.name), zap.Error(err))
			}
		case <-p.done:
		}
	}()
}

var _ Scheduler = (*Pool)(nil)
