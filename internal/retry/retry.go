package retry

import (
	"context"
	"fmt"
	"math/rand"
	"time"

	"github.com/rs/zerolog/log"
)

// Policy bounds one remote call. MaxRetries of zero means a single attempt
// that is still subject to Timeout.
type Policy struct {
	MaxRetries int
	BaseDelay  time.Duration
	MaxDelay   time.Duration
	Timeout    time.Duration
	// Retryable decides whether an error is worth another attempt. A nil
	// Retryable treats every error as retryable.
	Retryable func(error) bool
}

func (p Policy) retryable(err error) bool {
	if p.Retryable == nil {
		return true
	}
	return p.Retryable(err)
}

func Do[T any](ctx context.Context, policy Policy, name string, operation func(context.Context) (T, error)) (T, error) {
	var zero T
	for attempt := 0; attempt <= policy.MaxRetries; attempt++ {
		if err := ctx.Err(); err != nil {
			return zero, err
		}

		opCtx, cancel := ctx, context.CancelFunc(func() {})
		if policy.Timeout > 0 {
			opCtx, cancel = context.WithTimeout(ctx, policy.Timeout)
		}
		result, err := operation(opCtx)
		cancel()

		if err == nil {
			return result, nil
		}

		log.Debug().
			Err(err).
			Str("operation", name).
			Int("attempt", attempt+1).
			Msg("Operation failed")

		if !policy.retryable(err) {
			return zero, err
		}

		if attempt < policy.MaxRetries {
			delay := calculateBackoffDelay(attempt, policy.BaseDelay, policy.MaxDelay)
			log.Warn().
				Err(err).
				Str("operation", name).
				Dur("delay", delay).
				Int("next_attempt", attempt+2).
				Msg("Retrying after delay")

			select {
			case <-ctx.Done():
				return zero, ctx.Err()
			case <-time.After(delay):
				continue
			}
		}
		if policy.MaxRetries == 0 {
			return zero, err
		}
		return zero, fmt.Errorf("%s failed after %d attempts: %w", name, policy.MaxRetries+1, err)
	}
	return zero, fmt.Errorf("unexpected: exceeded retry loop")
}

// Run is Do for operations without a result.
func Run(ctx context.Context, policy Policy, name string, operation func(context.Context) error) error {
	_, err := Do(ctx, policy, name, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, operation(ctx)
	})
	return err
}

func calculateBackoffDelay(attempt int, baseDelay, maxDelay time.Duration) time.Duration {
	// Cap attempt at 30 to prevent overflow
	safeAttempt := min(attempt, 30)
	multiplier := 1 << safeAttempt
	delay := time.Duration(multiplier) * baseDelay

	if delay > maxDelay {
		delay = maxDelay
	}

	// jitter between 0.5x and 1.5x
	jitter := 0.5 + rand.Float64()
	delay = time.Duration(float64(delay) * jitter)

	if delay > maxDelay {
		delay = maxDelay
	}

	return delay
}
