// Package retry provides the bounded retry policy shared by every backend
// adapter.
package retry

import (
	"context"
	"fmt"
	"math"
	"math/rand/v2"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const (
	DefaultMaxRetries     = 5
	DefaultAttemptTimeout = 30 * time.Second
	DefaultBackoffBase    = 800 * time.Millisecond
	DefaultMaxBackoff     = 10 * time.Second
	DefaultMultiplier     = 2.0
	DefaultJitter         = 0.3
)

type Policy struct {
	// MaxRetries is the number of attempts after the first one.
	MaxRetries int
	// AttemptTimeout bounds every single attempt. Zero disables it.
	AttemptTimeout time.Duration
	BackoffBase    time.Duration
	Multiplier     float64
	MaxBackoff     time.Duration
	// Jitter scales every delay by a random factor in [1-Jitter, 1+Jitter].
	Jitter float64

	// Classify decides whether a failure is worth another attempt. Defaults
	// to IsRetryable.
	Classify func(error) bool
	// OnRetry is called before every wait between attempts.
	OnRetry func(name string, attempt int, err error)

	sleep  func(context.Context, time.Duration) error
	random func() float64
}

func DefaultPolicy() Policy {
	return Policy{
		MaxRetries:     DefaultMaxRetries,
		AttemptTimeout: DefaultAttemptTimeout,
		BackoffBase:    DefaultBackoffBase,
		Multiplier:     DefaultMultiplier,
		MaxBackoff:     DefaultMaxBackoff,
		Jitter:         DefaultJitter,
	}
}

// Backoff returns the delay before retry number n (1-based), without jitter.
func (p Policy) Backoff(n int) time.Duration {
	if n < 1 || p.BackoffBase <= 0 {
		return 0
	}

	multiplier := p.Multiplier
	if multiplier < 1 {
		multiplier = 1
	}

	delay := float64(p.BackoffBase) * math.Pow(multiplier, float64(n-1))
	if p.MaxBackoff > 0 && delay > float64(p.MaxBackoff) {
		delay = float64(p.MaxBackoff)
	}
	return time.Duration(delay)
}

func (p Policy) delay(n int) time.Duration {
	delay := p.Backoff(n)
	if p.Jitter <= 0 || delay == 0 {
		return delay
	}

	random := p.random
	if random == nil {
		random = rand.Float64
	}
	factor := 1 - p.Jitter + 2*p.Jitter*random()
	return time.Duration(float64(delay) * factor)
}

func (p Policy) retryable(err error) bool {
	if p.Classify != nil {
		return p.Classify(err)
	}
	return IsRetryable(err)
}

// Do runs op until it succeeds, the failure is classified as permanent, the
// attempts run out or ctx is done. Every failure short of success is returned
// as *ExhaustedError.
func Do[T any](ctx context.Context, p Policy, name string, op func(ctx context.Context) (T, error)) (T, error) {
	ctx, span := tracer.Start(ctx, "retry "+name)
	defer span.End()

	var zero T
	attempts := max(p.MaxRetries, 0) + 1

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		result, err := runAttempt(ctx, p.AttemptTimeout, op)
		if err == nil {
			span.SetAttributes(attribute.Int("retry.attempts", attempt))
			return result, nil
		}
		lastErr = err

		if ctx.Err() != nil {
			lastErr = fmt.Errorf("%w (last error: %w)", ctx.Err(), err)
			return zero, exhausted(span, name, attempt, lastErr)
		}

		if !p.retryable(err) {
			logger.WarnContext(ctx, "operation failed permanently",
				"operation", name, "attempt", attempt, "error", err)
			return zero, exhausted(span, name, attempt, err)
		}

		if attempt == attempts {
			break
		}

		delay := p.delay(attempt)
		logger.WarnContext(ctx, "operation failed, retrying",
			"operation", name, "attempt", attempt, "max_attempts", attempts,
			"delay", delay, "error", err)
		span.AddEvent("retry")
		if p.OnRetry != nil {
			p.OnRetry(name, attempt, err)
		}

		if err := p.wait(ctx, delay); err != nil {
			return zero, exhausted(span, name, attempt, fmt.Errorf("%w (last error: %w)", err, lastErr))
		}
	}

	return zero, exhausted(span, name, attempts, lastErr)
}

func runAttempt[T any](ctx context.Context, timeout time.Duration, op func(ctx context.Context) (T, error)) (T, error) {
	if timeout <= 0 {
		return op(ctx)
	}

	attemptCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	result, err := op(attemptCtx)
	if err != nil && attemptCtx.Err() != nil && ctx.Err() == nil {
		return result, fmt.Errorf("attempt timed out after %s: %w", timeout, err)
	}
	return result, err
}

func (p Policy) wait(ctx context.Context, d time.Duration) error {
	if p.sleep != nil {
		return p.sleep(ctx, d)
	}
	if d <= 0 {
		return ctx.Err()
	}

	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func exhausted(span trace.Span, name string, attempts int, err error) error {
	exhaustedErr := &ExhaustedError{Operation: name, Attempts: attempts, Err: err}
	span.SetAttributes(attribute.Int("retry.attempts", attempts))
	span.RecordError(exhaustedErr)
	span.SetStatus(codes.Error, exhaustedErr.Error())
	return exhaustedErr
}
