package session

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Cray-HPE/sat-sub000/pkg/waiting"
)

// flagCondition completes once its flag is set.
type flagCondition struct {
	name string
	done atomic.Bool
	fail atomic.Bool
}

func (f *flagCondition) ConditionName() string { return f.name }

func (f *flagCondition) HasCompleted(context.Context) (bool, error) {
	if f.fail.Load() {
		return false, waiting.Failf("%s broke", f.name)
	}
	return f.done.Load(), nil
}

func newTestWaiter(t *testing.T, cond waiting.Condition, timeout time.Duration) *waiting.Waiter {
	t.Helper()

	w, err := waiting.NewWaiter(cond,
		waiting.WithTimeout(timeout),
		waiting.WithPollInterval(10*time.Millisecond))
	require.NoError(t, err)
	return w
}

func TestCoordinatorTracksOutcomes(t *testing.T) {
	c := NewCoordinator(nil)
	ctx := context.Background()

	good := &flagCondition{name: "good"}
	good.done.Store(true)
	bad := &flagCondition{name: "bad"}
	slow := &flagCondition{name: "slow"}

	require.NoError(t, c.Launch(ctx, "boot", newTestWaiter(t, good, time.Second)))
	require.NoError(t, c.Launch(ctx, "storage", newTestWaiter(t, bad, 50*time.Millisecond)))
	require.NoError(t, c.Launch(ctx, "nodes", newTestWaiter(t, slow, 50*time.Millisecond)))

	c.Wait()

	status, ok := c.Status("boot")
	require.True(t, ok)
	assert.Equal(t, StateCompleted, status.State)
	assert.Empty(t, status.Error)
	assert.False(t, status.FinishedAt.IsZero())

	status, ok = c.Status("storage")
	require.True(t, ok)
	assert.Equal(t, StateFailed, status.State)

	assert.True(t, c.Failed())
	assert.Zero(t, c.Running())
}

func TestCoordinatorSnapshotPreservesLaunchOrder(t *testing.T) {
	c := NewCoordinator(nil)
	ctx := context.Background()

	for _, name := range []string{"alpha", "beta", "gamma"} {
		cond := &flagCondition{name: name}
		cond.done.Store(true)
		require.NoError(t, c.Launch(ctx, name, newTestWaiter(t, cond, time.Second)))
	}
	c.Wait()

	snapshot := c.Snapshot()
	require.Len(t, snapshot, 3)
	assert.Equal(t, "alpha", snapshot[0].Name)
	assert.Equal(t, "beta", snapshot[1].Name)
	assert.Equal(t, "gamma", snapshot[2].Name)
	for _, s := range snapshot {
		assert.Equal(t, StateCompleted, s.State)
	}
}

func TestCoordinatorRejectsDuplicateNames(t *testing.T) {
	c := NewCoordinator(nil)
	ctx := context.Background()

	cond := &flagCondition{name: "dup"}
	cond.done.Store(true)
	require.NoError(t, c.Launch(ctx, "one", newTestWaiter(t, cond, time.Second)))

	err := c.Launch(ctx, "one", newTestWaiter(t, &flagCondition{name: "dup2"}, time.Second))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "already launched")

	c.Wait()
}

func TestCoordinatorRunningCount(t *testing.T) {
	c := NewCoordinator(nil)
	ctx := context.Background()

	cond := &flagCondition{name: "gate"}
	require.NoError(t, c.Launch(ctx, "gate", newTestWaiter(t, cond, time.Second)))
	assert.Equal(t, 1, c.Running())

	cond.done.Store(true)
	c.Wait()
	assert.Zero(t, c.Running())

	status, ok := c.Status("gate")
	require.True(t, ok)
	assert.Equal(t, StateCompleted, status.State)
}
