package worker

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func TestPoolRunsJob(t *testing.T) {
	p := New(Config{MaxConcurrent: 2})
	defer p.Close()

	var ran bool
	err := p.Do(context.Background(), func(ctx context.Context) error {
		if _, ok := ctx.Deadline(); !ok {
			t.Error("job context should carry the job timeout")
		}
		ran = true
		return nil
	})
	if err != nil || !ran {
		t.Fatalf("Do() = %v, ran = %v", err, ran)
	}

	s := p.Stats()
	if s.Submitted != 1 || s.Completed != 1 || s.Failed != 0 {
		t.Errorf("unexpected stats %+v", s)
	}
}

func TestPoolBoundsConcurrency(t *testing.T) {
	const limit = 3
	p := New(Config{MaxConcurrent: limit, MaxQueued: 20})
	defer p.Close()

	var running, peak atomic.Int64
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := p.Do(context.Background(), func(ctx context.Context) error {
				n := running.Add(1)
				for {
					old := peak.Load()
					if n <= old || peak.CompareAndSwap(old, n) {
						break
					}
				}
				time.Sleep(5 * time.Millisecond)
				running.Add(-1)
				return nil
			})
			if err != nil {
				t.Errorf("Do() = %v", err)
			}
		}()
	}
	wg.Wait()

	if peak.Load() > limit {
		t.Errorf("peak concurrency %d exceeds limit %d", peak.Load(), limit)
	}
	if c := p.Stats().Completed; c != 20 {
		t.Errorf("completed = %d, want 20", c)
	}
}

func TestPoolRejectsWhenFull(t *testing.T) {
	p := New(Config{MaxConcurrent: 1, MaxQueued: -1})
	defer p.Close()

	started := make(chan struct{})
	release := make(chan struct{})
	done := make(chan error)
	go func() {
		done <- p.Do(context.Background(), func(ctx context.Context) error {
			close(started)
			<-release
			return nil
		})
	}()
	<-started

	err := p.Do(context.Background(), func(ctx context.Context) error { return nil })
	if !errors.Is(err, ErrBusy) {
		t.Errorf("expected ErrBusy, got %v", err)
	}
	close(release)
	if err := <-done; err != nil {
		t.Fatal(err)
	}

	if r := p.Stats().Rejected; r != 1 {
		t.Errorf("rejected = %d, want 1", r)
	}
	if err := p.Do(context.Background(), func(ctx context.Context) error { return nil }); err != nil {
		t.Errorf("pool should accept work again: %v", err)
	}
}

func TestPoolTimeout(t *testing.T) {
	p := New(Config{MaxConcurrent: 1, JobTimeout: 20 * time.Millisecond})
	defer p.Close()

	err := p.Do(context.Background(), func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	})
	if !errors.Is(err, ErrTimeout) {
		t.Errorf("expected ErrTimeout, got %v", err)
	}
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("cause should be preserved, got %v", err)
	}
	if s := p.Stats(); s.TimedOut != 1 || s.Failed != 1 {
		t.Errorf("unexpected stats %+v", s)
	}
}

func TestPoolCallerCancelWhileWaiting(t *testing.T) {
	p := New(Config{MaxConcurrent: 1, MaxQueued: 1})
	defer p.Close()

	started := make(chan struct{})
	release := make(chan struct{})
	go p.Do(context.Background(), func(ctx context.Context) error {
		close(started)
		<-release
		return nil
	})
	<-started

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	err := p.Do(ctx, func(ctx context.Context) error {
		t.Error("job should not run")
		return nil
	})
	close(release)
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("expected caller deadline, got %v", err)
	}
	if errors.Is(err, ErrTimeout) {
		t.Error("caller cancellation is not a job timeout")
	}
}

func TestPoolRecoversPanic(t *testing.T) {
	p := New(Config{})
	defer p.Close()

	err := p.Do(context.Background(), func(ctx context.Context) error {
		panic("boom")
	})
	if err == nil {
		t.Fatal("panic should surface as an error")
	}
	if f := p.Stats().Failed; f != 1 {
		t.Errorf("failed = %d, want 1", f)
	}
}

func TestPoolClosed(t *testing.T) {
	p := New(Config{})
	p.Close()
	if err := p.Do(context.Background(), func(ctx context.Context) error { return nil }); !errors.Is(err, ErrClosed) {
		t.Errorf("expected ErrClosed, got %v", err)
	}
}
