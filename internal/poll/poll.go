// Package poll waits on long-running provider operations with a paced,
// bounded, cancellable loop.
package poll

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/juju/clock"
)

// Defaults for replication polling.
const (
	DefaultInterval = 60 * time.Second
	DefaultTimeout  = 4 * time.Hour
)

// ErrTimeout is returned when the condition is not met within Config.Timeout.
var ErrTimeout = errors.New("timed out waiting for condition")

// Config controls one wait.
type Config struct {
	Interval time.Duration
	Timeout  time.Duration
	Clock    clock.Clock
}

func (c Config) withDefaults() Config {
	if c.Interval <= 0 {
		c.Interval = DefaultInterval
	}
	if c.Timeout <= 0 {
		c.Timeout = DefaultTimeout
	}
	if c.Clock == nil {
		c.Clock = clock.WallClock
	}
	return c
}

// Check reports whether the awaited condition holds. A non-nil error ends
// the wait immediately.
type Check func(ctx context.Context) (done bool, err error)

// Until calls check immediately and then once per interval until it reports
// done, returns an error, the timeout elapses, or ctx is cancelled.
func Until(ctx context.Context, cfg Config, check Check) error {
	cfg = cfg.withDefaults()
	deadline := cfg.Clock.Now().Add(cfg.Timeout)
	for {
		done, err := check(ctx)
		if err != nil {
			return err
		}
		if done {
			return nil
		}
		if !cfg.Clock.Now().Before(deadline) {
			return fmt.Errorf("%w after %v", ErrTimeout, cfg.Timeout)
		}
		wait := cfg.Interval
		if remaining := deadline.Sub(cfg.Clock.Now()); remaining < wait {
			wait = remaining
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-cfg.Clock.After(wait):
		}
	}
}
