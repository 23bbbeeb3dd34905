package waiting

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeCondition completes after a configurable number of checks, or fails
// permanently at a given check. It records every hook invocation.
type fakeCondition struct {
	name          string
	completeAfter int32 // number of checks before completing; <0 never completes
	failAt        int32 // check number that fails permanently; 0 disables
	preWaitDone   bool

	checks    atomic.Int32
	preWaits  atomic.Int32
	postWaits atomic.Int32
	retries   atomic.Int32
}

func (f *fakeCondition) ConditionName() string { return f.name }

func (f *fakeCondition) HasCompleted(context.Context) (bool, error) {
	n := f.checks.Add(1)
	if f.failAt > 0 && n >= f.failAt {
		return false, Failf("condition %s broke at check %d", f.name, n)
	}
	if f.completeAfter >= 0 && n > f.completeAfter {
		return true, nil
	}
	return false, nil
}

func (f *fakeCondition) PreWait(context.Context) (bool, error) {
	f.preWaits.Add(1)
	return f.preWaitDone, nil
}

func (f *fakeCondition) PostWait(context.Context) { f.postWaits.Add(1) }
func (f *fakeCondition) OnRetry(context.Context)  { f.retries.Add(1) }

// recordingHandler captures log records so tests can count timeout events.
type recordingHandler struct {
	mu       sync.Mutex
	messages []string
}

func (h *recordingHandler) Enabled(context.Context, slog.Level) bool { return true }

func (h *recordingHandler) Handle(_ context.Context, r slog.Record) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.messages = append(h.messages, r.Message)
	return nil
}

func (h *recordingHandler) WithAttrs([]slog.Attr) slog.Handler { return h }
func (h *recordingHandler) WithGroup(string) slog.Handler      { return h }

func (h *recordingHandler) count(substr string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	n := 0
	for _, m := range h.messages {
		if strings.Contains(m, substr) {
			n++
		}
	}
	return n
}

func TestNewWaiterValidation(t *testing.T) {
	cond := &fakeCondition{name: "always true", completeAfter: 0}

	testCases := []struct {
		name    string
		opts    []Option
		wantErr bool
	}{
		{name: "defaults", opts: nil, wantErr: false},
		{name: "negative retries", opts: []Option{WithRetries(-1)}, wantErr: true},
		{name: "negative timeout", opts: []Option{WithTimeout(-time.Second)}, wantErr: true},
		{name: "zero poll interval", opts: []Option{WithPollInterval(0)}, wantErr: true},
		{name: "zero retries", opts: []Option{WithRetries(0)}, wantErr: false},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := NewWaiter(cond, tc.opts...)
			if tc.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestWaiterCompletesBeforeTimeout(t *testing.T) {
	cond := &fakeCondition{name: "node ready", completeAfter: 3}
	w, err := NewWaiter(cond,
		WithTimeout(2*time.Second),
		WithPollInterval(10*time.Millisecond))
	require.NoError(t, err)

	start := time.Now()
	done := w.WaitForCompletion(context.Background())
	elapsed := time.Since(start)

	assert.True(t, done)
	assert.True(t, w.Completed())
	assert.False(t, w.Failed())
	// Three "not yet" polls at 10ms apart, then success on the fourth check.
	assert.Less(t, elapsed, 500*time.Millisecond)
	assert.EqualValues(t, 4, cond.checks.Load())
}

func TestWaiterTimeoutAndRetries(t *testing.T) {
	const retries = 2

	handler := &recordingHandler{}
	cond := &fakeCondition{name: "ssh reachable", completeAfter: -1}
	w, err := NewWaiter(cond,
		WithTimeout(30*time.Millisecond),
		WithPollInterval(10*time.Millisecond),
		WithRetries(retries),
		WithLogger(slog.New(handler)))
	require.NoError(t, err)

	done := w.WaitForCompletion(context.Background())

	assert.False(t, done)
	assert.False(t, w.Completed())
	assert.False(t, w.Failed())
	// One retry hook per retry, one timeout log per elapsed cycle.
	assert.EqualValues(t, retries, cond.retries.Load())
	assert.Equal(t, retries+1, handler.count("timed out"))
	assert.EqualValues(t, 1, cond.postWaits.Load())
}

func TestWaiterPermanentFailureNotRetried(t *testing.T) {
	cond := &fakeCondition{name: "power off", completeAfter: -1, failAt: 2}
	w, err := NewWaiter(cond,
		WithTimeout(time.Second),
		WithPollInterval(5*time.Millisecond),
		WithRetries(3))
	require.NoError(t, err)

	done := w.WaitForCompletion(context.Background())

	assert.False(t, done)
	assert.True(t, w.Failed())
	assert.EqualValues(t, 0, cond.retries.Load(), "a permanent failure must not be retried")
	assert.EqualValues(t, 2, cond.checks.Load(), "polling must stop at the failing check")
	assert.EqualValues(t, 1, cond.postWaits.Load())
}

func TestWaiterPreWaitShortCircuit(t *testing.T) {
	cond := &fakeCondition{name: "session done", completeAfter: -1, preWaitDone: true}
	w, err := NewWaiter(cond,
		WithTimeout(time.Second),
		WithPollInterval(5*time.Millisecond))
	require.NoError(t, err)

	done := w.WaitForCompletion(context.Background())

	assert.True(t, done)
	assert.EqualValues(t, 0, cond.checks.Load(), "no polling after pre-wait completion")
	assert.EqualValues(t, 1, cond.preWaits.Load())
	assert.EqualValues(t, 1, cond.postWaits.Load())
}

func TestWaiterPostWaitRunsOnEveryOutcome(t *testing.T) {
	testCases := []struct {
		name string
		cond *fakeCondition
	}{
		{name: "success", cond: &fakeCondition{name: "c", completeAfter: 0}},
		{name: "timeout", cond: &fakeCondition{name: "c", completeAfter: -1}},
		{name: "failure", cond: &fakeCondition{name: "c", failAt: 1, completeAfter: -1}},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			w, err := NewWaiter(tc.cond,
				WithTimeout(20*time.Millisecond),
				WithPollInterval(5*time.Millisecond))
			require.NoError(t, err)

			w.WaitForCompletion(context.Background())
			assert.EqualValues(t, 1, tc.cond.postWaits.Load())
		})
	}
}

func TestWaiterNoTimeout(t *testing.T) {
	cond := &fakeCondition{name: "eventually", completeAfter: 5}
	w, err := NewWaiter(cond, WithPollInterval(5*time.Millisecond))
	require.NoError(t, err)

	assert.True(t, w.WaitForCompletion(context.Background()))
}

func TestWaiterContextCancellation(t *testing.T) {
	cond := &fakeCondition{name: "never", completeAfter: -1}
	w, err := NewWaiter(cond,
		WithPollInterval(5*time.Millisecond),
		WithRetries(10))
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()

	done := w.WaitForCompletion(ctx)

	assert.False(t, done)
	assert.EqualValues(t, 0, cond.retries.Load(), "cancellation must not trigger retries")
	assert.EqualValues(t, 1, cond.postWaits.Load())
}

func TestWaiterAwaitBeforeStart(t *testing.T) {
	cond := &fakeCondition{name: "c", completeAfter: 0}
	w, err := NewWaiter(cond)
	require.NoError(t, err)

	_, err = w.Await()
	assert.ErrorIs(t, err, ErrNotStarted)
}

func TestWaiterAsync(t *testing.T) {
	cond := &fakeCondition{name: "slow", completeAfter: 3}
	w, err := NewWaiter(cond,
		WithTimeout(2*time.Second),
		WithPollInterval(10*time.Millisecond))
	require.NoError(t, err)

	require.NoError(t, w.Start(context.Background()))
	assert.True(t, w.IsWaiting())
	assert.Error(t, w.Start(context.Background()), "double start must fail")

	done, err := w.Await()
	require.NoError(t, err)
	assert.True(t, done)
	assert.False(t, w.IsWaiting())

	// Await is idempotent once the result is in.
	again, err := w.Await()
	require.NoError(t, err)
	assert.True(t, again)
}

func TestWaiterScope(t *testing.T) {
	cond := &fakeCondition{name: "scoped", completeAfter: 2}
	w, err := NewWaiter(cond,
		WithTimeout(2*time.Second),
		WithPollInterval(5*time.Millisecond))
	require.NoError(t, err)

	release, err := w.Scope(context.Background())
	require.NoError(t, err)

	assert.True(t, release())
	assert.EqualValues(t, 1, cond.postWaits.Load())
}
