package waiting

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"
)

// Waiter polls a single Condition until it completes, fails, or the timeout
// and retry budget are exhausted.
//
// A Waiter is built for one wait and discarded afterwards. Its state is
// mutated only by the worker running WaitForCompletion; the completed and
// failed flags may be read concurrently at any time.
type Waiter struct {
	cond Condition
	settings

	completed atomic.Bool
	failed    atomic.Bool
	waiting   atomic.Bool

	mu        sync.Mutex
	resultCh  chan bool
	awaitOnce sync.Once
	result    bool
}

// NewWaiter builds a waiter for the given condition. It fails on invalid
// settings such as a negative retry budget.
func NewWaiter(cond Condition, opts ...Option) (*Waiter, error) {
	s, err := newSettings(opts...)
	if err != nil {
		return nil, fmt.Errorf("invalid waiter settings for %q: %w", cond.ConditionName(), err)
	}
	return &Waiter{cond: cond, settings: s}, nil
}

// Name returns the condition's name.
func (w *Waiter) Name() string {
	return w.cond.ConditionName()
}

// Completed reports whether the condition has been confirmed complete.
func (w *Waiter) Completed() bool {
	return w.completed.Load()
}

// Failed reports whether the condition reported a permanent failure.
func (w *Waiter) Failed() bool {
	return w.failed.Load()
}

// WaitForCompletion polls the condition until it completes, fails, or the
// timeout elapses with no retries left. The post-wait hook runs on every exit
// path. It returns whether the condition completed.
func (w *Waiter) WaitForCompletion(ctx context.Context) bool {
	start := time.Now()
	defer func() {
		if p, ok := w.cond.(PostWaiter); ok {
			p.PostWait(ctx)
		}
		w.metrics.observeDuration(w.Name(), outcomeOf(w.completed.Load(), w.failed.Load()), time.Since(start))
	}()

	if p, ok := w.cond.(PreWaiter); ok {
		done, err := p.PreWait(ctx)
		if err != nil {
			w.fail(err)
			return false
		}
		if done {
			w.completed.Store(true)
			return true
		}
	}

	retriesLeft := w.retries
	for {
		w.pollUntilDeadline(ctx)
		if w.completed.Load() || w.failed.Load() || ctx.Err() != nil {
			break
		}

		w.logger.Error("timed out waiting for condition",
			"condition", w.Name(),
			"timeout", w.timeout)
		w.metrics.observeTimeout(w.Name())

		if retriesLeft <= 0 {
			break
		}
		retriesLeft--
		w.metrics.observeRetry(w.Name())
		if r, ok := w.cond.(RetryObserver); ok {
			r.OnRetry(ctx)
		}
	}

	return w.completed.Load()
}

// pollUntilDeadline runs one timeout cycle: evaluate, sleep, repeat. It
// returns once the condition completes or fails, the cycle's deadline passes,
// or the context ends.
func (w *Waiter) pollUntilDeadline(ctx context.Context) {
	start := time.Now()
	for w.timeout == 0 || time.Since(start) < w.timeout {
		if c, ok := w.cond.(CheckObserver); ok {
			c.OnCheck(ctx)
		}

		done, err := w.cond.HasCompleted(ctx)
		if err != nil {
			w.fail(err)
			return
		}
		if done {
			w.completed.Store(true)
			return
		}

		if !sleep(ctx, w.pollInterval) {
			return
		}
	}
}

func (w *Waiter) fail(err error) {
	w.failed.Store(true)
	w.logger.Error("condition reported a permanent failure",
		"condition", w.Name(),
		"error", err)
	w.metrics.observeFailure(w.Name())
}

// Start launches WaitForCompletion on a background goroutine and returns
// immediately. It fails if the waiter was already started.
func (w *Waiter) Start(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.resultCh != nil {
		return fmt.Errorf("wait for %q already started", w.Name())
	}
	w.resultCh = make(chan bool, 1)
	w.waiting.Store(true)

	go func() {
		defer w.waiting.Store(false)
		w.resultCh <- w.WaitForCompletion(ctx)
	}()
	return nil
}

// Await blocks until the background wait started by Start finishes and
// returns its result. Calling Await before Start returns ErrNotStarted.
// Await may be called more than once; later calls return the cached result.
func (w *Waiter) Await() (bool, error) {
	w.mu.Lock()
	ch := w.resultCh
	w.mu.Unlock()

	if ch == nil {
		return false, ErrNotStarted
	}
	w.awaitOnce.Do(func() {
		w.result = <-ch
	})
	return w.result, nil
}

// IsWaiting reports whether a background wait is currently running.
func (w *Waiter) IsWaiting() bool {
	return w.waiting.Load()
}

// Scope starts the background wait and returns a release function that blocks
// until it finishes, for use with defer. The release function runs the wait
// to completion unconditionally, so the post-wait hook fires on every exit
// path of the caller.
func (w *Waiter) Scope(ctx context.Context) (release func() bool, err error) {
	if err := w.Start(ctx); err != nil {
		return nil, err
	}
	return func() bool {
		done, _ := w.Await()
		return done
	}, nil
}

// sleep pauses for d, returning false if the context ended first.
func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}

func outcomeOf(completed, failed bool) string {
	switch {
	case completed:
		return "completed"
	case failed:
		return "failed"
	default:
		return "timed_out"
	}
}
