package resilience

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
)

// Policy controls retry backoff. Backoff grows linearly with the attempt
// number and is capped at MaxInterval.
type Policy struct {
	InitialInterval time.Duration
	MaxInterval     time.Duration
	// MaxAttempts of zero retries until ctx is done
	MaxAttempts int
}

// DefaultPolicy is used for reconnecting long-lived streams
var DefaultPolicy = Policy{
	InitialInterval: 250 * time.Millisecond,
	MaxInterval:     5 * time.Second,
}

// Backoff returns the wait before the next attempt
func (p Policy) Backoff(attempt int) time.Duration {
	backoff := time.Duration(attempt) * p.InitialInterval
	if p.MaxInterval > 0 && backoff > p.MaxInterval {
		backoff = p.MaxInterval
	}
	return backoff
}

type permanentError struct {
	err error
}

func (e *permanentError) Error() string { return e.err.Error() }
func (e *permanentError) Unwrap() error { return e.err }

// Permanent marks err as not worth retrying
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

// IsPermanent reports whether err was marked with Permanent
func IsPermanent(err error) bool {
	var pe *permanentError
	return errors.As(err, &pe)
}

// Retry runs fn until it succeeds, returns a permanent error, runs out of
// attempts or ctx is done
func Retry(ctx context.Context, log *zap.Logger, operation string, policy Policy, fn func(ctx context.Context) error) error {
	if log == nil {
		log = zap.NewNop()
	}

	var lastErr error
	for attempt := 1; ; attempt++ {
		if err := ctx.Err(); err != nil {
			if lastErr != nil {
				return fmt.Errorf("%s: %w (last error: %v)", operation, err, lastErr)
			}
			return err
		}

		err := fn(ctx)
		if err == nil {
			if attempt > 1 {
				log.Info("Operation recovered",
					zap.String("operation", operation),
					zap.Int("attempts", attempt))
			}
			return nil
		}
		if IsPermanent(err) {
			return errors.Unwrap(err)
		}
		lastErr = err

		if policy.MaxAttempts > 0 && attempt >= policy.MaxAttempts {
			return fmt.Errorf("%s failed after %d attempts: %w", operation, attempt, err)
		}

		backoff := policy.Backoff(attempt)
		log.Warn("Operation failed, backing off",
			zap.String("operation", operation),
			zap.Int("attempt", attempt),
			zap.Duration("backoff", backoff),
			zap.Error(err))

		timer := time.NewTimer(backoff)
		select {
		case <-ctx.Done():
			timer.Stop()
		case <-timer.C:
		}
	}
}
