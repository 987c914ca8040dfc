package runtime

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"math/rand"
	"time"

	"github.com/Itangalo/scenario-lab-sub001/pkg/ports"
)

// RetryPolicy defines the backoff behavior for transient model failures.
type RetryPolicy struct {
	MaxRetries   int
	InitialDelay time.Duration
	MaxDelay     time.Duration
	Multiplier   float64
	Jitter       bool
}

// DefaultRetryPolicy is used when the orchestrator is not configured with one.
var DefaultRetryPolicy = RetryPolicy{
	MaxRetries:   3,
	InitialDelay: 500 * time.Millisecond,
	MaxDelay:     30 * time.Second,
	Multiplier:   2.0,
	Jitter:       true,
}

// RetryExhaustedError reports that every allowed attempt failed.
type RetryExhaustedError struct {
	Err      error
	Attempts int
}

func (e *RetryExhaustedError) Error() string {
	return fmt.Sprintf("retries exhausted after %d attempts: %v", e.Attempts, e.Err)
}

func (e *RetryExhaustedError) Unwrap() error {
	return e.Err
}

// callWithRetry runs fn, retrying transient failures with exponential backoff
// and honoring a provider-specified retry delay when one is present.
// Permanent and parse failures are returned immediately.
func callWithRetry(ctx context.Context, policy RetryPolicy, logger *slog.Logger, fn func(ctx context.Context) (ports.ModelReply, error)) (ports.ModelReply, error) {
	var lastErr error
	for attempt := 0; ; attempt++ {
		reply, err := fn(ctx)
		if err == nil {
			return reply, nil
		}
		if ports.ClassifyFailure(err) != ports.FailureTransient {
			return ports.ModelReply{}, err
		}
		lastErr = err

		if attempt >= policy.MaxRetries {
			return ports.ModelReply{}, &RetryExhaustedError{Err: lastErr, Attempts: attempt + 1}
		}

		delay := backoffDelay(policy, attempt, err)
		logger.Warn("transient model failure, retrying",
			"attempt", attempt+1,
			"delay", delay,
			"err", err,
		)

		select {
		case <-ctx.Done():
			return ports.ModelReply{}, ctx.Err()
		case <-time.After(delay):
		}
	}
}

// backoffDelay computes the wait before the next attempt. A provider-supplied
// Retry-After wins over the computed backoff, capped at MaxDelay.
func backoffDelay(policy RetryPolicy, attempt int, err error) time.Duration {
	if after := ports.RetryDelay(err); after > 0 {
		if after > policy.MaxDelay {
			return policy.MaxDelay
		}
		return after
	}

	delay := float64(policy.InitialDelay) * math.Pow(policy.Multiplier, float64(attempt))
	if delay > float64(policy.MaxDelay) {
		delay = float64(policy.MaxDelay)
	}
	if policy.Jitter {
		delay += rand.Float64() * 0.2 * delay
	}
	return time.Duration(delay)
}
