// Package retry throttles and retries calls to remote model providers.
package retry

import (
	"context"
	"errors"
	"math/rand/v2"
	"time"

	"github.com/charmbracelet/log"
	"golang.org/x/time/rate"
)

// Config configures a Caller.
type Config struct {
	// RequestsPerSecond is the sustained request rate. Zero disables limiting.
	RequestsPerSecond float64
	// Burst is the maximum burst size.
	Burst int
	// MaxAttempts is the total number of tries per call, including the first.
	MaxAttempts int
	// BaseDelay is the backoff unit; it doubles with every retry.
	BaseDelay time.Duration
}

// DefaultConfig returns conservative defaults for a local or hosted provider.
func DefaultConfig() Config {
	return Config{
		RequestsPerSecond: 10,
		Burst:             10,
		MaxAttempts:       3,
		BaseDelay:         500 * time.Millisecond,
	}
}

// Caller runs calls under a token bucket and retries failed ones with
// exponential backoff.
type Caller struct {
	limiter   *rate.Limiter
	attempts  int
	baseDelay time.Duration
}

// New creates a Caller.
func New(cfg Config) *Caller {
	c := &Caller{
		attempts:  cfg.MaxAttempts,
		baseDelay: cfg.BaseDelay,
	}
	if c.attempts < 1 {
		c.attempts = 1
	}
	if cfg.RequestsPerSecond > 0 {
		burst := cfg.Burst
		if burst < 1 {
			burst = 1
		}
		c.limiter = rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), burst)
	}
	return c
}

// permanentError marks an error that retrying cannot fix.
type permanentError struct {
	err error
}

func (e *permanentError) Error() string { return e.err.Error() }
func (e *permanentError) Unwrap() error { return e.err }

// Permanent wraps err so that Do returns it without retrying.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

// Do calls fn until it succeeds, returns a permanent error, the context ends,
// or the attempts run out. The last error is returned.
func (c *Caller) Do(ctx context.Context, op string, fn func(ctx context.Context) error) error {
	var err error
	for attempt := 0; attempt < c.attempts; attempt++ {
		if attempt > 0 {
			delay := CalculateBackoff(c.baseDelay, attempt)
			log.Debug("Retrying call", "op", op, "attempt", attempt+1, "delay", delay, "error", err)
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(delay):
			}
		}

		if c.limiter != nil {
			if werr := c.limiter.Wait(ctx); werr != nil {
				return werr
			}
		}

		err = fn(ctx)
		if err == nil {
			return nil
		}

		var perm *permanentError
		if errors.As(err, &perm) {
			return perm.err
		}
		if ctx.Err() != nil {
			return err
		}
	}
	return err
}

// CalculateBackoff returns exponential backoff with jitter.
// The delay doubles each attempt, is capped at 30 seconds, and varies by up
// to 25% either way.
func CalculateBackoff(baseDelay time.Duration, attempt int) time.Duration {
	if attempt <= 0 || baseDelay <= 0 {
		return 0
	}
	// Cap attempt to avoid overflow in bit shift
	if attempt > 30 {
		attempt = 30
	}
	backoff := baseDelay * time.Duration(1<<uint(attempt))
	if backoff > 30*time.Second || backoff <= 0 {
		backoff = 30 * time.Second
	}
	spread := int64(backoff) / 2
	if spread <= 0 {
		return backoff
	}
	jitter := time.Duration(rand.Int64N(spread)) - backoff/4
	return backoff + jitter
}
