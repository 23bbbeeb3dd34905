package waiting

import (
	"fmt"
	"log/slog"
	"time"
)

const defaultPollInterval = 1 * time.Second

// settings holds the knobs shared by every waiter flavor.
type settings struct {
	// timeout bounds one polling cycle. Zero means no timeout: polling
	// continues until the condition completes, fails, or the context ends.
	timeout time.Duration

	// pollInterval is the delay between successive condition evaluations.
	pollInterval time.Duration

	// retries is the number of additional full timeout cycles allowed after
	// the first one elapses.
	retries int

	logger  *slog.Logger
	metrics *Metrics
}

// Option configures a waiter.
type Option func(*settings)

// WithTimeout sets the timeout for one polling cycle. Zero means no timeout.
func WithTimeout(d time.Duration) Option {
	return func(s *settings) { s.timeout = d }
}

// WithPollInterval sets the delay between condition evaluations.
func WithPollInterval(d time.Duration) Option {
	return func(s *settings) { s.pollInterval = d }
}

// WithRetries sets the number of additional timeout cycles allowed before a
// timeout becomes terminal.
func WithRetries(n int) Option {
	return func(s *settings) { s.retries = n }
}

// WithLogger sets the structured log sink. Defaults to slog.Default.
func WithLogger(logger *slog.Logger) Option {
	return func(s *settings) { s.logger = logger }
}

// WithMetrics attaches a metrics collector. Without one, no metrics are
// recorded.
func WithMetrics(m *Metrics) Option {
	return func(s *settings) { s.metrics = m }
}

func newSettings(opts ...Option) (settings, error) {
	s := settings{
		pollInterval: defaultPollInterval,
		logger:       slog.Default(),
	}
	for _, opt := range opts {
		opt(&s)
	}
	if s.timeout < 0 {
		return settings{}, fmt.Errorf("timeout must not be negative, got %v", s.timeout)
	}
	if s.pollInterval <= 0 {
		return settings{}, fmt.Errorf("poll interval must be positive, got %v", s.pollInterval)
	}
	if s.retries < 0 {
		return settings{}, fmt.Errorf("retries must not be negative, got %d", s.retries)
	}
	return s, nil
}
