// Package background runs fire-and-forget side effects of the request
// pipeline (last-seen stamps, session touches, audit inserts) on a bounded
// worker pool so they never block or fail a request.
package background

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/upb/campaign-gateway/internal/observability"
	"go.uber.org/zap"
)

// ErrQueueFull is returned by Submit when the task was dropped
var ErrQueueFull = errors.New("background queue full")

// ErrNotRunning is returned by Submit before Start or after Stop
var ErrNotRunning = errors.New("background dispatcher not running")

// Runner accepts fire-and-forget work. *Dispatcher implements it.
type Runner interface {
	Go(kind string, run func(ctx context.Context) error)
}

// Task is a unit of best-effort work
type Task struct {
	Kind string // Used for logs and metrics
	Run  func(ctx context.Context) error
}

// Config holds configuration for the Dispatcher
type Config struct {
	BufferSize  int           // Size of the task buffer channel
	WorkerCount int           // Number of concurrent workers
	TaskTimeout time.Duration // Deadline applied to each task
}

// DefaultConfig returns the default configuration
func DefaultConfig() Config {
	return Config{
		BufferSize:  4096,
		WorkerCount: 4,
		TaskTimeout: 5 * time.Second,
	}
}

// Dispatcher executes submitted tasks asynchronously
type Dispatcher struct {
	logger  *zap.Logger
	metrics *observability.Metrics
	cfg     Config
	tasks   chan Task
	wg      sync.WaitGroup
	mu      sync.RWMutex
	started bool
	stopped bool
}

// NewDispatcher creates a Dispatcher; call Start before submitting
func NewDispatcher(cfg Config, logger *zap.Logger, metrics *observability.Metrics) *Dispatcher {
	def := DefaultConfig()
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = def.BufferSize
	}
	if cfg.WorkerCount <= 0 {
		cfg.WorkerCount = def.WorkerCount
	}
	if cfg.TaskTimeout <= 0 {
		cfg.TaskTimeout = def.TaskTimeout
	}
	return &Dispatcher{
		logger:  logger,
		metrics: metrics,
		cfg:     cfg,
		tasks:   make(chan Task, cfg.BufferSize),
	}
}

// Start starts the background workers
func (d *Dispatcher) Start() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.started {
		return fmt.Errorf("background dispatcher already started")
	}

	for i := 0; i < d.cfg.WorkerCount; i++ {
		d.wg.Add(1)
		go d.worker(i)
	}

	d.started = true
	d.logger.Info("started background dispatcher",
		zap.Int("worker_count", d.cfg.WorkerCount),
		zap.Int("buffer_size", d.cfg.BufferSize))
	return nil
}

// Stop stops accepting tasks and waits for queued ones to drain
func (d *Dispatcher) Stop(timeout time.Duration) error {
	d.mu.Lock()
	if !d.started || d.stopped {
		d.mu.Unlock()
		return fmt.Errorf("background dispatcher not running")
	}
	d.stopped = true
	close(d.tasks)
	d.mu.Unlock()

	d.logger.Info("stopping background dispatcher", zap.Int("pending_tasks", len(d.tasks)))

	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		d.logger.Info("background dispatcher stopped gracefully")
		return nil
	case <-time.After(timeout):
		return fmt.Errorf("background dispatcher stop timeout after %v", timeout)
	}
}

// Submit queues task without blocking. A full queue drops the task.
func (d *Dispatcher) Submit(task Task) error {
	d.mu.RLock()
	defer d.mu.RUnlock()

	if !d.started || d.stopped {
		return ErrNotRunning
	}

	select {
	case d.tasks <- task:
		return nil
	default:
		d.metrics.TaskDropped(task.Kind)
		d.logger.Warn("background queue full, dropping task", zap.String("kind", task.Kind))
		return ErrQueueFull
	}
}

// Go is Submit for callers that do not care about the outcome
func (d *Dispatcher) Go(kind string, run func(ctx context.Context) error) {
	_ = d.Submit(Task{Kind: kind, Run: run})
}

func (d *Dispatcher) worker(id int) {
	defer d.wg.Done()

	d.logger.Debug("background worker started", zap.Int("worker_id", id))
	for task := range d.tasks {
		if err := d.run(task); err != nil {
			d.logger.Warn("background task failed",
				zap.Int("worker_id", id),
				zap.String("kind", task.Kind),
				zap.Error(err))
		}
	}
	d.logger.Debug("background worker stopped", zap.Int("worker_id", id))
}

// run executes one task, containing panics so a worker never dies
func (d *Dispatcher) run(task Task) (err error) {
	ctx, cancel := context.WithTimeout(context.Background(), d.cfg.TaskTimeout)
	defer cancel()

	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("task panicked: %v", r)
		}
	}()
	return task.Run(ctx)
}

// Stats represents dispatcher statistics
type Stats struct {
	BufferSize   int
	PendingTasks int
	WorkerCount  int
	Running      bool
}

// GetStats returns statistics about the dispatcher
func (d *Dispatcher) GetStats() Stats {
	d.mu.RLock()
	defer d.mu.RUnlock()

	return Stats{
		BufferSize:   d.cfg.BufferSize,
		PendingTasks: len(d.tasks),
		WorkerCount:  d.cfg.WorkerCount,
		Running:      d.started && !d.stopped,
	}
}

// HealthCheck fails while the dispatcher is stopped or its queue is saturated
func (d *Dispatcher) HealthCheck(context.Context) error {
	stats := d.GetStats()
	if !stats.Running {
		return ErrNotRunning
	}
	if stats.PendingTasks >= stats.BufferSize {
		return ErrQueueFull
	}
	return nil
}
