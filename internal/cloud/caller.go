package cloud

import (
	"context"
	"fmt"
	"time"

	"github.com/codebypatrickleung/cloudhop/internal/logger"
	"github.com/juju/clock"
	"github.com/juju/retry"
	"golang.org/x/time/rate"
)

// Retry defaults applied when CallerConfig leaves a field zero.
const (
	DefaultRetryAttempts = 5
	DefaultRetryDelay    = time.Second
	DefaultRetryMaxDelay = 30 * time.Second
)

// CallerConfig tunes the provider call policy.
type CallerConfig struct {
	// RateLimit is the sustained calls per second; zero or less disables limiting.
	RateLimit float64
	Burst     int
	Attempts  int
	Delay     time.Duration
	MaxDelay  time.Duration
	Clock     clock.Clock
	// OnRetry, when set, is told about every transient failure of op.
	OnRetry   func(op string)
}

// Caller paces provider calls and retries transient failures with a
// doubling delay. Errors that are not transient are returned immediately.
type Caller struct {
	limiter  *rate.Limiter
	attempts int
	delay    time.Duration
	maxDelay time.Duration
	clock    clock.Clock
	logger   *logger.Logger
	onRetry  func(op string)
}

// NewCaller creates a Caller.
func NewCaller(cfg CallerConfig, log *logger.Logger) *Caller {
	limit := rate.Inf
	if cfg.RateLimit > 0 {
		limit = rate.Limit(cfg.RateLimit)
	}
	burst := cfg.Burst
	if burst <= 0 {
		burst = 1
	}
	c := &Caller{
		limiter:  rate.NewLimiter(limit, burst),
		attempts: cfg.Attempts,
		delay:    cfg.Delay,
		maxDelay: cfg.MaxDelay,
		clock:    cfg.Clock,
		logger:   log,
		onRetry:  cfg.OnRetry,
	}
	if c.attempts <= 0 {
		c.attempts = DefaultRetryAttempts
	}
	if c.delay <= 0 {
		c.delay = DefaultRetryDelay
	}
	if c.maxDelay <= 0 {
		c.maxDelay = DefaultRetryMaxDelay
	}
	if c.clock == nil {
		c.clock = clock.WallClock
	}
	if c.logger == nil {
		c.logger = logger.NewNop()
	}
	return c
}

// Call runs fn until it succeeds, returns a non-transient error, or the
// attempt budget is spent.
func (c *Caller) Call(ctx context.Context, op string, fn func(ctx context.Context) error) error {
	err := retry.Call(retry.CallArgs{
		Func: func() error {
			if err := c.limiter.Wait(ctx); err != nil {
				return err
			}
			return fn(ctx)
		},
		IsFatalError: func(err error) bool {
			return !IsTransient(err) || ctx.Err() != nil
		},
		NotifyFunc: func(err error, attempt int) {
			c.logger.Debugf("%s: attempt %d failed: %v", op, attempt, err)
			if c.onRetry != nil {
				c.onRetry(op)
			}
		},
		Attempts:    c.attempts,
		Delay:       c.delay,
		MaxDelay:    c.maxDelay,
		BackoffFunc: retry.DoubleDelay,
		Clock:       c.clock,
		Stop:        ctx.Done(),
	})
	switch {
	case err == nil:
		return nil
	case retry.IsAttemptsExceeded(err):
		return fmt.Errorf("%s failed after %d attempts: %w", op, c.attempts, retry.LastError(err))
	case retry.IsRetryStopped(err):
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return fmt.Errorf("%s stopped: %w", op, retry.LastError(err))
	default:
		return err
	}
}
