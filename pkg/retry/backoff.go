// Package retry repeats an operation with exponential backoff until it
// succeeds, runs out of attempts, or fails with a permanent error.
package retry

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand/v2"
	"time"

	"go.uber.org/zap"
)

// Config shapes the backoff. MaxRetries counts attempts, not retries, and is
// never less than one.
type Config struct {
	MaxRetries    int
	InitialDelay  time.Duration
	MaxDelay      time.Duration
	Multiplier    float64
	JitterEnabled bool
}

// DefaultConfig suits connecting to stores at startup.
func DefaultConfig() Config {
	return Config{
		MaxRetries:    10,
		InitialDelay:  2 * time.Second,
		MaxDelay:      time.Minute,
		Multiplier:    2,
		JitterEnabled: true,
	}
}

// delay is the wait after the given failed attempt, capped at MaxDelay.
// Jitter spreads it over ±15% so replicas restarted together do not
// reconnect in lockstep.
func (c Config) delay(attempt int) time.Duration {
	d := math.Min(float64(c.InitialDelay)*math.Pow(c.Multiplier, float64(attempt-1)), float64(c.MaxDelay))
	if c.JitterEnabled {
		d *= 0.85 + 0.3*rand.Float64()
	}
	return time.Duration(d)
}

type permanentError struct{ err error }

func (p *permanentError) Error() string { return p.err.Error() }
func (p *permanentError) Unwrap() error { return p.err }

// Permanent marks err as not worth retrying; WithBackoff returns it unwrapped.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

// WithBackoff calls fn until it returns nil. Cancelling ctx stops both the
// attempts and the waits between them.
func WithBackoff(ctx context.Context, cfg Config, logger *zap.Logger, operation string, fn func() error) error {
	attempts := max(cfg.MaxRetries, 1)
	for attempt := 1; ; attempt++ {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("%s: retry cancelled: %w", operation, err)
		}

		err := fn()
		var perm *permanentError
		switch {
		case err == nil:
			if attempt > 1 {
				logger.Info("Operation recovered",
					zap.String("operation", operation),
					zap.Int("attempts", attempt))
			}
			return nil
		case errors.As(err, &perm):
			return perm.err
		case attempt == attempts:
			return fmt.Errorf("%s failed after %d attempts: %w", operation, attempt, err)
		}

		wait := cfg.delay(attempt)
		logger.Warn("Operation failed, backing off",
			zap.String("operation", operation),
			zap.Int("attempt", attempt),
			zap.Int("of", attempts),
			zap.Duration("wait", wait),
			zap.Error(err))

		t := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			t.Stop()
			return fmt.Errorf("%s: retry cancelled: %w", operation, ctx.Err())
		case <-t.C:
		}
	}
}
