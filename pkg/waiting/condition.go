package waiting

import (
	"context"
	"errors"
	"fmt"
)

// Condition is a boolean predicate over external state that a caller wants to
// become true. Implementations report "not yet" by returning (false, nil) and
// a permanent, non-retried failure by returning an error created with Failf.
type Condition interface {
	// ConditionName returns a human-readable description used in logs.
	ConditionName() string

	// HasCompleted evaluates the condition once.
	HasCompleted(ctx context.Context) (bool, error)
}

// GroupCondition evaluates one condition independently for every member of a
// fixed set. A failure returned for one member affects that member only.
type GroupCondition[M comparable] interface {
	// ConditionName returns a human-readable description used in logs.
	ConditionName() string

	// MemberHasCompleted evaluates the condition for a single member.
	MemberHasCompleted(ctx context.Context, member M) (bool, error)
}

// DependencyGroupCondition extends GroupCondition with the action performed
// when all of a member's dependencies have resolved.
type DependencyGroupCondition[M comparable] interface {
	GroupCondition[M]

	// BeginMember performs the member's activation action. It is called
	// exactly once per member, only after every transitive dependency of the
	// member has completed. A failure moves the member directly into the
	// failed set without it ever being polled.
	BeginMember(ctx context.Context, member M) error
}

// Optional hooks. A Condition or GroupCondition may additionally implement
// any of these; the waiters probe for them with type assertions and skip the
// hook when it is absent.
type (
	// PreWaiter runs once before polling starts. Returning done=true marks
	// the condition complete without any polling, which lets implementations
	// short-circuit expensive checks.
	PreWaiter interface {
		PreWait(ctx context.Context) (done bool, err error)
	}

	// PostWaiter runs exactly once after waiting ends, on every exit path.
	PostWaiter interface {
		PostWait(ctx context.Context)
	}

	// CheckObserver runs once per poll cycle, before the condition is
	// evaluated.
	CheckObserver interface {
		OnCheck(ctx context.Context)
	}

	// RetryObserver runs once per retry, after a timeout has elapsed and
	// before polling restarts. It never runs when the retry budget is zero.
	RetryObserver interface {
		OnRetry(ctx context.Context)
	}
)

// ErrNotStarted is returned by Await when the background wait was never
// started.
var ErrNotStarted = errors.New("wait has not been started")

// Failure signals that a condition is known to be permanently unsatisfiable
// right now, as opposed to an ordinary "not yet". Waiters never retry it.
type Failure struct {
	Reason string
}

func (f *Failure) Error() string {
	return f.Reason
}

// Failf builds a Failure with a formatted reason.
func Failf(format string, args ...interface{}) error {
	return &Failure{Reason: fmt.Sprintf(format, args...)}
}

// IsFailure reports whether err is or wraps a Failure.
func IsFailure(err error) bool {
	var f *Failure
	return errors.As(err, &f)
}
