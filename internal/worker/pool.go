// Package worker runs CPU-bound jobs with bounded concurrency, a bounded
// wait queue and a per-job timeout.
package worker

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"sync"
	"sync/atomic"
	"time"
)

var (
	// ErrBusy is returned when both the running slots and the wait queue are full.
	ErrBusy = errors.New("worker pool is busy")
	// ErrTimeout wraps the error of a job that exceeded the pool's job timeout.
	ErrTimeout = errors.New("job timed out")
	ErrClosed  = errors.New("worker pool is closed")
)

const (
	DefaultMaxQueued  = 16
	DefaultJobTimeout = 5 * time.Minute
)

type Config struct {
	MaxConcurrent int           // default runtime.NumCPU()
	MaxQueued     int           // jobs allowed to wait for a slot; default 16, negative means none
	JobTimeout    time.Duration // default 5m
}

// Stats is a snapshot of the pool counters.
type Stats struct {
	MaxConcurrent int   `json:"max_concurrent"`
	MaxQueued     int   `json:"max_queued"`
	Running       int   `json:"running"`
	Waiting       int   `json:"waiting"`
	Submitted     int64 `json:"submitted"`
	Completed     int64 `json:"completed"`
	Failed        int64 `json:"failed"`
	Rejected      int64 `json:"rejected"`
	TimedOut      int64 `json:"timed_out"`
}

type Pool struct {
	cfg     Config
	slots   chan struct{}
	admit   chan struct{}
	wg      sync.WaitGroup
	mu      sync.RWMutex
	closed  bool
	waiting atomic.Int64

	submitted atomic.Int64
	completed atomic.Int64
	failed    atomic.Int64
	rejected  atomic.Int64
	timedOut  atomic.Int64
}

func New(cfg Config) *Pool {
	if cfg.MaxConcurrent <= 0 {
		cfg.MaxConcurrent = runtime.NumCPU()
	}
	if cfg.MaxQueued == 0 {
		cfg.MaxQueued = DefaultMaxQueued
	}
	if cfg.MaxQueued < 0 {
		cfg.MaxQueued = 0
	}
	if cfg.JobTimeout <= 0 {
		cfg.JobTimeout = DefaultJobTimeout
	}
	return &Pool{
		cfg:   cfg,
		slots: make(chan struct{}, cfg.MaxConcurrent),
		admit: make(chan struct{}, cfg.MaxConcurrent+cfg.MaxQueued),
	}
}

// Do runs fn on the calling goroutine once a slot is free. fn receives a
// context bounded by the job timeout. Do fails fast with ErrBusy when the
// pool cannot accept the job.
func (p *Pool) Do(ctx context.Context, fn func(ctx context.Context) error) (err error) {
	p.mu.RLock()
	if p.closed {
		p.mu.RUnlock()
		return ErrClosed
	}
	select {
	case p.admit <- struct{}{}:
	default:
		p.mu.RUnlock()
		p.rejected.Add(1)
		return ErrBusy
	}
	p.wg.Add(1)
	p.mu.RUnlock()

	defer p.wg.Done()
	defer func() { <-p.admit }()
	p.submitted.Add(1)

	p.waiting.Add(1)
	select {
	case p.slots <- struct{}{}:
		p.waiting.Add(-1)
	case <-ctx.Done():
		p.waiting.Add(-1)
		p.failed.Add(1)
		return ctx.Err()
	}
	defer func() { <-p.slots }()

	jobCtx, cancel := context.WithTimeout(ctx, p.cfg.JobTimeout)
	defer cancel()

	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("job panicked: %v", r)
		}
		switch {
		case err == nil:
			p.completed.Add(1)
		case errors.Is(jobCtx.Err(), context.DeadlineExceeded) && ctx.Err() == nil:
			p.timedOut.Add(1)
			p.failed.Add(1)
			err = fmt.Errorf("%w after %s: %w", ErrTimeout, p.cfg.JobTimeout, err)
		default:
			p.failed.Add(1)
		}
	}()

	return fn(jobCtx)
}

// Stats returns the current counters.
func (p *Pool) Stats() Stats {
	return Stats{
		MaxConcurrent: p.cfg.MaxConcurrent,
		MaxQueued:     p.cfg.MaxQueued,
		Running:       len(p.slots),
		Waiting:       int(p.waiting.Load()),
		Submitted:     p.submitted.Load(),
		Completed:     p.completed.Load(),
		Failed:        p.failed.Load(),
		Rejected:      p.rejected.Load(),
		TimedOut:      p.timedOut.Load(),
	}
}

func (p *Pool) JobTimeout() time.Duration {
	return p.cfg.JobTimeout
}

// Close stops admitting jobs and waits for admitted ones to finish.
func (p *Pool) Close() {
	p.mu.Lock()
	p.closed = true
	p.mu.Unlock()
	p.wg.Wait()
}
