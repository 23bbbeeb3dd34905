package waiting

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"
)

// Group waits for every member of a fixed set to independently satisfy a
// per-member condition. A member that reports a permanent failure is moved
// from the pending set into the failed set and its siblings keep being
// checked, so one broken member never blocks reporting on the healthy ones.
//
// The pending and failed sets are guarded so that status consumers may read
// them while the wait is running; they are only mutated by the worker running
// WaitForCompletion.
type Group[M comparable] struct {
	cond    GroupCondition[M]
	members []M
	settings

	mu      sync.RWMutex
	pending map[M]struct{}
	failed  map[M]struct{}

	waiting atomic.Bool

	asyncMu   sync.Mutex
	resultCh  chan map[M]struct{}
	awaitOnce sync.Once
	result    map[M]struct{}
}

// NewGroup builds a group waiter over the given members. Duplicate members
// are collapsed. It fails on invalid settings.
func NewGroup[M comparable](cond GroupCondition[M], members []M, opts ...Option) (*Group[M], error) {
	s, err := newSettings(opts...)
	if err != nil {
		return nil, fmt.Errorf("invalid group waiter settings for %q: %w", cond.ConditionName(), err)
	}

	g := &Group[M]{
		cond:     cond,
		settings: s,
		pending:  make(map[M]struct{}, len(members)),
		failed:   make(map[M]struct{}),
	}
	for _, m := range members {
		if _, ok := g.pending[m]; ok {
			continue
		}
		g.pending[m] = struct{}{}
		g.members = append(g.members, m)
	}
	return g, nil
}

// ConditionName returns the group condition's name. Together with
// HasCompleted it lets a Group be treated as a single Condition.
func (g *Group[M]) ConditionName() string {
	return g.cond.ConditionName()
}

// HasCompleted evaluates the group as a single condition: true once every
// member's condition holds. A failure for any member fails the whole
// condition.
func (g *Group[M]) HasCompleted(ctx context.Context) (bool, error) {
	for _, m := range g.members {
		done, err := g.cond.MemberHasCompleted(ctx, m)
		if err != nil {
			return false, err
		}
		if !done {
			return false, nil
		}
	}
	return true, nil
}

// Members returns the member set in check order.
func (g *Group[M]) Members() []M {
	out := make([]M, len(g.members))
	copy(out, g.members)
	return out
}

// Pending returns the members not yet confirmed complete and not failed.
func (g *Group[M]) Pending() map[M]struct{} {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return copySet(g.pending)
}

// Failed returns the members that reported a permanent failure.
func (g *Group[M]) Failed() map[M]struct{} {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return copySet(g.failed)
}

// Completed returns the members confirmed complete so far.
func (g *Group[M]) Completed() map[M]struct{} {
	g.mu.RLock()
	defer g.mu.RUnlock()

	out := make(map[M]struct{})
	for _, m := range g.members {
		if _, pending := g.pending[m]; pending {
			continue
		}
		if _, failed := g.failed[m]; failed {
			continue
		}
		out[m] = struct{}{}
	}
	return out
}

// WaitForCompletion polls every pending member once per cycle until the
// pending set empties or the timeout elapses with no retries left. It returns
// the residual pending set: members neither confirmed complete nor explicitly
// failed. Failed members are reported separately by Failed.
func (g *Group[M]) WaitForCompletion(ctx context.Context) map[M]struct{} {
	start := time.Now()
	defer func() {
		if p, ok := g.cond.(PostWaiter); ok {
			p.PostWait(ctx)
		}
		g.metrics.observeDuration(g.ConditionName(), g.outcome(), time.Since(start))
	}()

	if p, ok := g.cond.(PreWaiter); ok {
		done, err := p.PreWait(ctx)
		if err != nil {
			g.logger.Error("pre-wait failed for group condition",
				"condition", g.ConditionName(),
				"error", err)
			g.metrics.observeFailure(g.ConditionName())
			return g.Pending()
		}
		if done {
			g.clearPending()
			return g.Pending()
		}
	}

	retriesLeft := g.retries
	for {
		g.pollUntilDeadline(ctx)
		if g.pendingCount() == 0 || ctx.Err() != nil {
			break
		}

		g.logger.Error("timed out waiting for group condition",
			"condition", g.ConditionName(),
			"timeout", g.timeout,
			"pending", g.pendingCount())
		g.metrics.observeTimeout(g.ConditionName())

		if retriesLeft <= 0 {
			break
		}
		retriesLeft--
		g.metrics.observeRetry(g.ConditionName())
		if r, ok := g.cond.(RetryObserver); ok {
			r.OnRetry(ctx)
		}
	}

	return g.Pending()
}

func (g *Group[M]) pollUntilDeadline(ctx context.Context) {
	start := time.Now()
	for g.pendingCount() > 0 && (g.timeout == 0 || time.Since(start) < g.timeout) {
		if c, ok := g.cond.(CheckObserver); ok {
			c.OnCheck(ctx)
		}

		g.sweep(ctx)
		if g.pendingCount() == 0 {
			return
		}

		if !sleep(ctx, g.pollInterval) {
			return
		}
	}
}

// sweep checks every pending member once, in member order, and returns the
// members that completed during this cycle.
func (g *Group[M]) sweep(ctx context.Context) []M {
	var completed []M
	for _, m := range g.members {
		if !g.isPending(m) || g.isFailed(m) {
			continue
		}

		done, err := g.cond.MemberHasCompleted(ctx, m)
		if err != nil {
			g.failMember(m, err)
			continue
		}
		if done {
			g.completeMember(m)
			completed = append(completed, m)
		}
	}
	return completed
}

func (g *Group[M]) failMember(member M, err error) {
	g.mu.Lock()
	delete(g.pending, member)
	g.failed[member] = struct{}{}
	g.mu.Unlock()

	g.logger.Error("member reported a permanent failure",
		"condition", g.ConditionName(),
		"member", fmt.Sprintf("%v", member),
		"error", err)
	g.metrics.observeFailure(g.ConditionName())
}

func (g *Group[M]) completeMember(member M) {
	g.mu.Lock()
	delete(g.pending, member)
	g.mu.Unlock()
}

func (g *Group[M]) clearPending() {
	g.mu.Lock()
	g.pending = make(map[M]struct{})
	g.mu.Unlock()
}

func (g *Group[M]) isPending(member M) bool {
	g.mu.RLock()
	defer g.mu.RUnlock()
	_, ok := g.pending[member]
	return ok
}

func (g *Group[M]) isFailed(member M) bool {
	g.mu.RLock()
	defer g.mu.RUnlock()
	_, ok := g.failed[member]
	return ok
}

func (g *Group[M]) pendingCount() int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return len(g.pending)
}

func (g *Group[M]) outcome() string {
	g.mu.RLock()
	defer g.mu.RUnlock()
	switch {
	case len(g.pending) == 0 && len(g.failed) == 0:
		return "completed"
	case len(g.failed) > 0:
		return "failed"
	default:
		return "timed_out"
	}
}

// Start launches WaitForCompletion on a background goroutine and returns
// immediately. It fails if the group waiter was already started.
func (g *Group[M]) Start(ctx context.Context) error {
	g.asyncMu.Lock()
	defer g.asyncMu.Unlock()

	if g.resultCh != nil {
		return fmt.Errorf("wait for %q already started", g.ConditionName())
	}
	g.resultCh = make(chan map[M]struct{}, 1)
	g.waiting.Store(true)

	go func() {
		defer g.waiting.Store(false)
		g.resultCh <- g.WaitForCompletion(ctx)
	}()
	return nil
}

// Await blocks until the background wait started by Start finishes and
// returns the residual pending set. Calling Await before Start returns
// ErrNotStarted.
func (g *Group[M]) Await() (map[M]struct{}, error) {
	g.asyncMu.Lock()
	ch := g.resultCh
	g.asyncMu.Unlock()

	if ch == nil {
		return nil, ErrNotStarted
	}
	g.awaitOnce.Do(func() {
		g.result = <-ch
	})
	return g.result, nil
}

// IsWaiting reports whether a background wait is currently running.
func (g *Group[M]) IsWaiting() bool {
	return g.waiting.Load()
}

func copySet[M comparable](in map[M]struct{}) map[M]struct{} {
	out := make(map[M]struct{}, len(in))
	for m := range in {
		out[m] = struct{}{}
	}
	return out
}
