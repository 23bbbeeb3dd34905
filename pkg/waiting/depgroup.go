package waiting

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"
)

// DependencyGroup waits on a member set whose activation order is constrained
// by a dependency graph. Members without dependencies are begun immediately;
// every other member stays dormant until all of its transitive dependencies
// have completed, then is begun and polled like any group member.
//
// A member whose ancestor failed never becomes eligible: the ancestor never
// leaves the failed set, so the descendant stays dormant and is reported in
// the residual pending set when the outer timeout elapses.
type DependencyGroup[M comparable] struct {
	cond    DependencyGroupCondition[M]
	graph   *Graph[M]
	members []M
	settings

	mu        sync.RWMutex
	pending   map[M]struct{}
	failed    map[M]struct{}
	completed map[M]struct{}
	begun     map[M]struct{}

	waiting atomic.Bool

	asyncMu   sync.Mutex
	resultCh  chan map[M]struct{}
	awaitOnce sync.Once
	result    map[M]struct{}
}

// NewDependencyGroup builds a dependency-ordered group waiter. Every member
// is registered as a graph node; construction fails if any member depends,
// directly or transitively, on something outside the member set, since such
// a dependency could never resolve.
func NewDependencyGroup[M comparable](
	cond DependencyGroupCondition[M],
	members []M,
	graph *Graph[M],
	opts ...Option,
) (*DependencyGroup[M], error) {
	s, err := newSettings(opts...)
	if err != nil {
		return nil, fmt.Errorf("invalid dependency group settings for %q: %w", cond.ConditionName(), err)
	}

	d := &DependencyGroup[M]{
		cond:      cond,
		graph:     graph,
		settings:  s,
		pending:   make(map[M]struct{}),
		failed:    make(map[M]struct{}),
		completed: make(map[M]struct{}),
		begun:     make(map[M]struct{}),
	}

	memberSet := make(map[M]struct{}, len(members))
	for _, m := range members {
		if _, ok := memberSet[m]; ok {
			continue
		}
		memberSet[m] = struct{}{}
		d.members = append(d.members, m)
		graph.Add(m)
	}
	for _, m := range d.members {
		for _, dep := range graph.FullDependencies(m) {
			if _, ok := memberSet[dep]; !ok {
				return nil, fmt.Errorf("member %v depends on %v, which is not a member of the group", m, dep)
			}
		}
	}

	return d, nil
}

// ConditionName returns the group condition's name.
func (d *DependencyGroup[M]) ConditionName() string {
	return d.cond.ConditionName()
}

// Pending returns the members not yet confirmed complete and not failed,
// including dormant members still waiting on their dependencies.
func (d *DependencyGroup[M]) Pending() map[M]struct{} {
	d.mu.RLock()
	defer d.mu.RUnlock()

	out := make(map[M]struct{})
	for _, m := range d.members {
		if _, done := d.completed[m]; done {
			continue
		}
		if _, failed := d.failed[m]; failed {
			continue
		}
		out[m] = struct{}{}
	}
	return out
}

// Failed returns the members that reported a permanent failure, either from
// their activation action or while being polled.
func (d *DependencyGroup[M]) Failed() map[M]struct{} {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return copySet(d.failed)
}

// Completed returns the members confirmed complete so far.
func (d *DependencyGroup[M]) Completed() map[M]struct{} {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return copySet(d.completed)
}

// Begun reports whether the member's activation action has run.
func (d *DependencyGroup[M]) Begun(member M) bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	_, ok := d.begun[member]
	return ok
}

// WaitForCompletion begins every dependency-free member, then polls active
// members once per cycle, beginning dependents as their prerequisites
// resolve, until every member has completed or the timeout elapses with no
// retries left. It returns the residual pending set.
func (d *DependencyGroup[M]) WaitForCompletion(ctx context.Context) map[M]struct{} {
	start := time.Now()
	defer func() {
		if p, ok := d.cond.(PostWaiter); ok {
			p.PostWait(ctx)
		}
		d.metrics.observeDuration(d.ConditionName(), d.outcome(), time.Since(start))
	}()

	for _, m := range d.members {
		if !d.graph.HasDependencies(m) {
			d.activate(ctx, m)
		}
	}

	retriesLeft := d.retries
	for {
		d.pollUntilDeadline(ctx)
		if d.unresolvedCount() == 0 || ctx.Err() != nil {
			break
		}

		d.logger.Error("timed out waiting for dependency group",
			"condition", d.ConditionName(),
			"timeout", d.timeout,
			"pending", d.unresolvedCount())
		d.metrics.observeTimeout(d.ConditionName())

		if retriesLeft <= 0 {
			break
		}
		retriesLeft--
		d.metrics.observeRetry(d.ConditionName())
		if r, ok := d.cond.(RetryObserver); ok {
			r.OnRetry(ctx)
		}
	}

	return d.Pending()
}

func (d *DependencyGroup[M]) pollUntilDeadline(ctx context.Context) {
	start := time.Now()
	for d.unresolvedCount() > 0 && (d.timeout == 0 || time.Since(start) < d.timeout) {
		if c, ok := d.cond.(CheckObserver); ok {
			c.OnCheck(ctx)
		}

		completed := d.sweep(ctx)
		d.activateDependents(ctx, completed)
		if d.unresolvedCount() == 0 {
			return
		}

		if !sleep(ctx, d.pollInterval) {
			return
		}
	}
}

// sweep checks every active member once, in member order, and returns the
// members that completed during this cycle.
func (d *DependencyGroup[M]) sweep(ctx context.Context) []M {
	var completed []M
	for _, m := range d.members {
		if !d.isActive(m) {
			continue
		}

		done, err := d.cond.MemberHasCompleted(ctx, m)
		if err != nil {
			d.failMember(m, err)
			continue
		}
		if done {
			d.completeMember(m)
			completed = append(completed, m)
		}
	}
	return completed
}

// activateDependents begins every dependent of a just-completed member whose
// transitive dependencies have all resolved.
func (d *DependencyGroup[M]) activateDependents(ctx context.Context, completed []M) {
	for _, m := range completed {
		for _, dep := range d.graph.Dependents(m) {
			if !d.isMember(dep) || d.Begun(dep) {
				continue
			}
			if d.eligible(dep) {
				d.activate(ctx, dep)
			}
		}
	}
}

// eligible reports whether none of the member's transitive dependencies
// remain unresolved. A failed ancestor keeps its descendants ineligible
// forever.
func (d *DependencyGroup[M]) eligible(member M) bool {
	d.mu.RLock()
	defer d.mu.RUnlock()

	for _, dep := range d.graph.FullDependencies(member) {
		if _, done := d.completed[dep]; !done {
			return false
		}
	}
	return true
}

// activate marks the member active and runs its activation action exactly
// once. A failure from the action moves the member straight into the failed
// set; it is never polled.
func (d *DependencyGroup[M]) activate(ctx context.Context, member M) {
	d.mu.Lock()
	if _, ok := d.begun[member]; ok {
		d.mu.Unlock()
		return
	}
	d.begun[member] = struct{}{}
	d.pending[member] = struct{}{}
	d.mu.Unlock()

	d.logger.Info("beginning member",
		"condition", d.ConditionName(),
		"member", fmt.Sprintf("%v", member))

	if err := d.cond.BeginMember(ctx, member); err != nil {
		d.failMember(member, err)
	}
}

func (d *DependencyGroup[M]) failMember(member M, err error) {
	d.mu.Lock()
	delete(d.pending, member)
	d.failed[member] = struct{}{}
	d.mu.Unlock()

	d.logger.Error("member reported a permanent failure",
		"condition", d.ConditionName(),
		"member", fmt.Sprintf("%v", member),
		"error", err)
	d.metrics.observeFailure(d.ConditionName())
}

func (d *DependencyGroup[M]) completeMember(member M) {
	d.mu.Lock()
	delete(d.pending, member)
	d.completed[member] = struct{}{}
	d.mu.Unlock()
}

// isActive reports whether the member has been begun and is still being
// polled.
func (d *DependencyGroup[M]) isActive(member M) bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	_, ok := d.pending[member]
	return ok
}

func (d *DependencyGroup[M]) isMember(member M) bool {
	for _, m := range d.members {
		if m == member {
			return true
		}
	}
	return false
}

// unresolvedCount counts members that are neither completed nor failed,
// dormant ones included.
func (d *DependencyGroup[M]) unresolvedCount() int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.members) - len(d.completed) - len(d.failed)
}

func (d *DependencyGroup[M]) outcome() string {
	d.mu.RLock()
	defer d.mu.RUnlock()
	switch {
	case len(d.completed) == len(d.members):
		return "completed"
	case len(d.failed) > 0:
		return "failed"
	default:
		return "timed_out"
	}
}

// Start launches WaitForCompletion on a background goroutine and returns
// immediately. It fails if the waiter was already started.
func (d *DependencyGroup[M]) Start(ctx context.Context) error {
	d.asyncMu.Lock()
	defer d.asyncMu.Unlock()

	if d.resultCh != nil {
		return fmt.Errorf("wait for %q already started", d.ConditionName())
	}
	d.resultCh = make(chan map[M]struct{}, 1)
	d.waiting.Store(true)

	go func() {
		defer d.waiting.Store(false)
		d.resultCh <- d.WaitForCompletion(ctx)
	}()
	return nil
}

// Await blocks until the background wait started by Start finishes and
// returns the residual pending set. Calling Await before Start returns
// ErrNotStarted.
func (d *DependencyGroup[M]) Await() (map[M]struct{}, error) {
	d.asyncMu.Lock()
	ch := d.resultCh
	d.asyncMu.Unlock()

	if ch == nil {
		return nil, ErrNotStarted
	}
	d.awaitOnce.Do(func() {
		d.result = <-ch
	})
	return d.result, nil
}

// IsWaiting reports whether a background wait is currently running.
func (d *DependencyGroup[M]) IsWaiting() bool {
	return d.waiting.Load()
}
