package scheduler

import (
	"context"
	"sync"
	"time"

	"FeedPress/internal/ports"
)

// Ticker runs a job on a fixed interval. Runs never overlap: a tick that arrives
// while the job is still running is dropped.
type Ticker struct {
	interval   time.Duration
	runAtStart bool

	mu   sync.Mutex
	stop chan struct{}
	done chan struct{}
}

var _ ports.Scheduler = (*Ticker)(nil)

// NewTicker builds a driver firing every interval. With runAtStart the job also runs once immediately.
func NewTicker(interval time.Duration, runAtStart bool) *Ticker {
	return &Ticker{interval: interval, runAtStart: runAtStart}
}

// Start begins ticking. A non-positive interval or nil job disables the driver.
func (t *Ticker) Start(ctx context.Context, job func(time.Time)) error {
	if job == nil || t.interval <= 0 {
		return nil
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	if t.stop != nil {
		return nil
	}
	t.stop = make(chan struct{})
	t.done = make(chan struct{})

	go t.loop(ctx, job, t.stop, t.done)
	return nil
}

func (t *Ticker) loop(ctx context.Context, job func(time.Time), stop, done chan struct{}) {
	defer close(done)
	ticker := time.NewTicker(t.interval)
	defer ticker.Stop()

	if t.runAtStart {
		job(time.Now())
	}
	for {
		select {
		case at := <-ticker.C:
			job(at)
		case <-ctx.Done():
			return
		case <-stop:
			return
		}
	}
}

// Stop halts the ticker goroutine and waits for an in-flight job or ctx expiry.
func (t *Ticker) Stop(ctx context.Context) error {
	t.mu.Lock()
	stop, done := t.stop, t.done
	t.stop, t.done = nil, nil
	t.mu.Unlock()

	if stop == nil {
		return nil
	}
	close(stop)
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
