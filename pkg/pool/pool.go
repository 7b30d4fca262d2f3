// Package pool provides a bounded goroutine worker pool built on ants.
// Ingestion uses it to embed document pages concurrently without letting
// a large upload spawn an unbounded number of goroutines.
package pool

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/kart-io/logger"
	"github.com/panjf2000/ants/v2"
)

var (
	// ErrPoolClosed is returned when submitting to a released pool.
	ErrPoolClosed = errors.New("worker pool is closed")
	// ErrPoolOverload is returned when a nonblocking pool is full.
	ErrPoolOverload = errors.New("worker pool is overloaded")
)

// Config defines the configuration for a worker pool.
type Config struct {
	// Capacity is the maximum number of concurrent workers.
	Capacity int
	// ExpiryDuration is how long an idle worker lives before reclaim.
	ExpiryDuration time.Duration
	// Nonblocking makes Submit fail instead of wait when the pool is full.
	Nonblocking bool
	// MaxBlockingTasks caps queued submitters when Nonblocking is false
	// (0 means unlimited).
	MaxBlockingTasks int
}

// DefaultConfig returns the default pool configuration.
func DefaultConfig() *Config {
	return &Config{
		Capacity:       8,
		ExpiryDuration: 10 * time.Second,
	}
}

// Stats is a snapshot of pool counters.
type Stats struct {
	SubmittedTasks int64
	CompletedTasks int64
	FailedTasks    int64
	RejectedTasks  int64
	PanicRecovered int64
}

type statsCounter struct {
	submitted atomic.Int64
	completed atomic.Int64
	failed    atomic.Int64
	rejected  atomic.Int64
	panics    atomic.Int64
}

// Pool is a named worker pool.
type Pool struct {
	name   string
	pool   *ants.Pool
	config *Config
	stats  statsCounter
	closed atomic.Bool
	mu     sync.Mutex
}

// New creates a worker pool with the given configuration.
func New(name string, config *Config) (*Pool, error) {
	if config == nil {
		config = DefaultConfig()
	}

	p := &Pool{
		name:   name,
		config: config,
	}

	opts := []ants.Option{
		ants.WithExpiryDuration(config.ExpiryDuration),
		ants.WithNonblocking(config.Nonblocking),
		ants.WithMaxBlockingTasks(config.MaxBlockingTasks),
		ants.WithPanicHandler(func(r interface{}) {
			logger.Errorw("worker panic recovered", "pool", name, "panic", r)
		}),
	}

	pool, err := ants.NewPool(config.Capacity, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create ants pool: %w", err)
	}
	p.pool = pool

	logger.Infow("worker pool created", "name", name, "capacity", config.Capacity)
	return p, nil
}

// Name returns the pool name.
func (p *Pool) Name() string { return p.name }

// Cap returns the pool capacity.
func (p *Pool) Cap() int { return p.pool.Cap() }

// Running returns the number of busy workers.
func (p *Pool) Running() int { return p.pool.Running() }

// Free returns the number of available workers.
func (p *Pool) Free() int { return p.pool.Free() }

// Submit schedules a task on the pool.
func (p *Pool) Submit(task func()) error {
	if p.closed.Load() {
		return ErrPoolClosed
	}

	p.stats.submitted.Add(1)
	err := p.pool.Submit(func() {
		defer func() {
			if r := recover(); r != nil {
				p.stats.panics.Add(1)
				p.stats.failed.Add(1)
				panic(r) // let the ants panic handler log it
			}
			p.stats.completed.Add(1)
		}()
		task()
	})
	if err != nil {
		if errors.Is(err, ants.ErrPoolOverload) {
			p.stats.rejected.Add(1)
			return ErrPoolOverload
		}
		p.stats.failed.Add(1)
		return err
	}
	return nil
}

// SubmitWithContext schedules a task that is skipped if ctx is cancelled
// before it starts running.
func (p *Pool) SubmitWithContext(ctx context.Context, task func()) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return p.Submit(func() {
		if ctx.Err() != nil {
			return
		}
		task()
	})
}

// Release shuts the pool down without waiting for queued tasks.
func (p *Pool) Release() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed.Load() {
		return
	}
	p.closed.Store(true)
	p.pool.Release()
	logger.Infow("worker pool released", "name", p.name)
}

// ReleaseTimeout shuts down the pool, waiting up to timeout for running
// tasks to finish.
func (p *Pool) ReleaseTimeout(timeout time.Duration) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed.Load() {
		return nil
	}
	p.closed.Store(true)
	return p.pool.ReleaseTimeout(timeout)
}

// Stats returns a snapshot of the pool counters.
func (p *Pool) Stats() Stats {
	return Stats{
		SubmittedTasks: p.stats.submitted.Load(),
		CompletedTasks: p.stats.completed.Load(),
		FailedTasks:    p.stats.failed.Load(),
		RejectedTasks:  p.stats.rejected.Load(),
		PanicRecovered: p.stats.panics.Load(),
	}
}
