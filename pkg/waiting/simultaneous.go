package waiting

import (
	"context"
	"strings"
)

// Simultaneous runs several independent conditions concurrently and completes
// once all of them do, so the total wait is bounded by the slowest condition
// rather than the sum. Each condition gets its own Waiter started before
// polling begins and awaited unconditionally afterwards.
type Simultaneous struct {
	subs  []*Waiter
	inner *Waiter
}

// simultaneousCondition is the aggregate polled by the inner waiter. Its
// hooks drive the sub-waiter lifecycle.
type simultaneousCondition struct {
	subs []*Waiter
}

func (c *simultaneousCondition) ConditionName() string {
	names := make([]string, len(c.subs))
	for i, w := range c.subs {
		names[i] = w.Name()
	}
	return strings.Join(names, " and ")
}

func (c *simultaneousCondition) HasCompleted(context.Context) (bool, error) {
	for _, w := range c.subs {
		if !w.Completed() {
			return false, nil
		}
	}
	return true, nil
}

// PreWait starts every sub-waiter in the background.
func (c *simultaneousCondition) PreWait(ctx context.Context) (bool, error) {
	for _, w := range c.subs {
		if err := w.Start(ctx); err != nil {
			return false, err
		}
	}
	return false, nil
}

// PostWait joins every sub-waiter, on every exit path of the outer wait.
func (c *simultaneousCondition) PostWait(context.Context) {
	for _, w := range c.subs {
		w.Await() //nolint:errcheck // started in PreWait; result read via flags
	}
}

// NewSimultaneous builds a waiter over the given conditions. All sub-waiters
// share the same options (timeout, poll interval, retries, logger, metrics).
func NewSimultaneous(conds []Condition, opts ...Option) (*Simultaneous, error) {
	subs := make([]*Waiter, 0, len(conds))
	for _, cond := range conds {
		w, err := NewWaiter(cond, opts...)
		if err != nil {
			return nil, err
		}
		subs = append(subs, w)
	}

	inner, err := NewWaiter(&simultaneousCondition{subs: subs}, opts...)
	if err != nil {
		return nil, err
	}
	return &Simultaneous{subs: subs, inner: inner}, nil
}

// Name returns the joined names of all sub-conditions.
func (s *Simultaneous) Name() string {
	return s.inner.Name()
}

// WaitForCompletion waits until every sub-condition completes or the shared
// timeout and retry budget are exhausted. It returns whether all completed.
func (s *Simultaneous) WaitForCompletion(ctx context.Context) bool {
	return s.inner.WaitForCompletion(ctx)
}

// Start launches the wait on a background goroutine.
func (s *Simultaneous) Start(ctx context.Context) error {
	return s.inner.Start(ctx)
}

// Await blocks until the background wait finishes.
func (s *Simultaneous) Await() (bool, error) {
	return s.inner.Await()
}

// IsWaiting reports whether a background wait is currently running.
func (s *Simultaneous) IsWaiting() bool {
	return s.inner.IsWaiting()
}

// Completed reports whether every sub-condition completed.
func (s *Simultaneous) Completed() bool {
	return s.inner.Completed()
}

// Failed reports whether any sub-condition reported a permanent failure.
func (s *Simultaneous) Failed() bool {
	for _, w := range s.subs {
		if w.Failed() {
			return true
		}
	}
	return s.inner.Failed()
}

// Waiters returns the sub-waiters in construction order.
func (s *Simultaneous) Waiters() []*Waiter {
	out := make([]*Waiter, len(s.subs))
	copy(out, s.subs)
	return out
}
