// Package session tracks named wait operations across their lifecycle.
package session

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/Cray-HPE/sat-sub000/internal/common"
	"github.com/Cray-HPE/sat-sub000/pkg/waiting"
)

// State is the lifecycle state of a wait session.
type State string

const (
	StateRunning   State = "Running"
	StateCompleted State = "Completed"
	StateFailed    State = "Failed"
)

// Status is the externally visible snapshot of one session.
type Status struct {
	Name       string    `json:"name"`
	Condition  string    `json:"condition"`
	State      State     `json:"state"`
	StartedAt  time.Time `json:"startedAt"`
	FinishedAt time.Time `json:"finishedAt,omitempty"`
	Error      string    `json:"error,omitempty"`
}

// record pairs a waiter with its current status.
type record struct {
	waiter *waiting.Waiter
	status Status
}

// Coordinator launches one worker per named wait operation and aggregates
// their outcomes. Since groups satisfy the condition interface, any group
// wrapped in a waiter can be tracked as a session too.
type Coordinator struct {
	mu       sync.RWMutex
	sessions map[string]*record
	order    []string
	wg       sync.WaitGroup
	logger   *slog.Logger
}

// NewCoordinator creates an empty coordinator.
func NewCoordinator(logger *slog.Logger) *Coordinator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Coordinator{
		sessions: make(map[string]*record),
		logger:   logger,
	}
}

// Launch starts the waiter in the background under the given session name.
// Session names must be unique for the lifetime of the coordinator.
func (c *Coordinator) Launch(ctx context.Context, name string, w *waiting.Waiter) error {
	if err := common.CheckContext(ctx); err != nil {
		return common.WrapError(err, "launch session "+name)
	}

	c.mu.Lock()
	if _, exists := c.sessions[name]; exists {
		c.mu.Unlock()
		return fmt.Errorf("session %q already launched", name)
	}
	c.sessions[name] = &record{
		waiter: w,
		status: Status{
			Name:      name,
			Condition: w.Name(),
			State:     StateRunning,
			StartedAt: time.Now(),
		},
	}
	c.order = append(c.order, name)
	c.mu.Unlock()

	if err := w.Start(ctx); err != nil {
		c.finish(name, false, err)
		return err
	}

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		ok, err := w.Await()
		c.finish(name, ok, err)
	}()

	c.logger.Info("launched wait session", "session", name, "condition", w.Name())
	return nil
}

// finish records the terminal state of a session.
func (c *Coordinator) finish(name string, ok bool, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	rec, exists := c.sessions[name]
	if !exists {
		return
	}

	rec.status.FinishedAt = time.Now()
	if ok {
		rec.status.State = StateCompleted
	} else {
		rec.status.State = StateFailed
		if err != nil {
			rec.status.Error = err.Error()
		} else {
			rec.status.Error = "condition was not met in time"
		}
	}

	c.logger.Info("wait session finished",
		"session", name,
		"state", rec.status.State,
		"duration", rec.status.FinishedAt.Sub(rec.status.StartedAt))
}

// Wait blocks until every launched session has finished.
func (c *Coordinator) Wait() {
	c.wg.Wait()
}

// Status returns the snapshot for one session.
func (c *Coordinator) Status(name string) (Status, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	rec, exists := c.sessions[name]
	if !exists {
		return Status{}, false
	}
	return rec.status, true
}

// Snapshot returns all session statuses in launch order.
func (c *Coordinator) Snapshot() []Status {
	c.mu.RLock()
	defer c.mu.RUnlock()

	out := make([]Status, 0, len(c.order))
	for _, name := range c.order {
		out = append(out, c.sessions[name].status)
	}
	return out
}

// Running returns the number of sessions still in flight.
func (c *Coordinator) Running() int {
	c.mu.RLock()
	defer c.mu.RUnlock()

	n := 0
	for _, rec := range c.sessions {
		if rec.status.State == StateRunning {
			n++
		}
	}
	return n
}

// Failed reports whether any session finished without its condition met.
func (c *Coordinator) Failed() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()

	for _, rec := range c.sessions {
		if rec.status.State == StateFailed {
			return true
		}
	}
	return false
}
