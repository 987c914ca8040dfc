package runtime

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Itangalo/scenario-lab-sub001/internal/logging"
	"github.com/Itangalo/scenario-lab-sub001/pkg/ports"
)

func TestCallWithRetry_TransientThenSuccess(t *testing.T) {
	transient := ports.NewModelError(errors.New("rate limited"), ports.FailureTransient)
	attempts := 0

	reply, err := callWithRetry(context.Background(), fastRetry, logging.NewNop(), func(context.Context) (ports.ModelReply, error) {
		attempts++
		if attempts <= 2 {
			return ports.ModelReply{}, transient
		}
		return ports.ModelReply{Text: "ok"}, nil
	})
	require.NoError(t, err)
	assert.Equal(t, "ok", reply.Text)
	assert.Equal(t, 3, attempts)
}

func TestCallWithRetry_PermanentFailsImmediately(t *testing.T) {
	permanent := ports.NewModelError(errors.New("bad auth"), ports.FailurePermanent)
	attempts := 0

	_, err := callWithRetry(context.Background(), fastRetry, logging.NewNop(), func(context.Context) (ports.ModelReply, error) {
		attempts++
		return ports.ModelReply{}, permanent
	})
	assert.ErrorIs(t, err, permanent)
	assert.Equal(t, 1, attempts)
}

func TestCallWithRetry_Exhaustion(t *testing.T) {
	transient := ports.NewModelError(errors.New("overloaded"), ports.FailureTransient)
	attempts := 0

	_, err := callWithRetry(context.Background(), fastRetry, logging.NewNop(), func(context.Context) (ports.ModelReply, error) {
		attempts++
		return ports.ModelReply{}, transient
	})

	var exhausted *RetryExhaustedError
	require.ErrorAs(t, err, &exhausted)
	assert.ErrorIs(t, err, transient)
	assert.Equal(t, fastRetry.MaxRetries+1, attempts)
}

func TestCallWithRetry_HonorsContextDuringBackoff(t *testing.T) {
	transient := ports.NewModelError(errors.New("overloaded"), ports.FailureTransient)
	policy := RetryPolicy{MaxRetries: 5, InitialDelay: time.Hour, MaxDelay: time.Hour, Multiplier: 1}

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()

	_, err := callWithRetry(ctx, policy, logging.NewNop(), func(context.Context) (ports.ModelReply, error) {
		return ports.ModelReply{}, transient
	})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestBackoffDelay(t *testing.T) {
	policy := RetryPolicy{
		MaxRetries:   5,
		InitialDelay: 100 * time.Millisecond,
		MaxDelay:     time.Second,
		Multiplier:   2.0,
	}
	transient := ports.NewModelError(errors.New("x"), ports.FailureTransient)

	assert.Equal(t, 100*time.Millisecond, backoffDelay(policy, 0, transient))
	assert.Equal(t, 200*time.Millisecond, backoffDelay(policy, 1, transient))
	assert.Equal(t, 400*time.Millisecond, backoffDelay(policy, 2, transient))
	assert.Equal(t, time.Second, backoffDelay(policy, 10, transient), "capped at MaxDelay")

	// A provider-specified Retry-After wins over the computed backoff.
	withAfter := &ports.ModelError{Err: errors.New("429"), Class: ports.FailureTransient, RetryAfter: 300 * time.Millisecond}
	assert.Equal(t, 300*time.Millisecond, backoffDelay(policy, 0, withAfter))

	tooLong := &ports.ModelError{Err: errors.New("429"), Class: ports.FailureTransient, RetryAfter: time.Minute}
	assert.Equal(t, time.Second, backoffDelay(policy, 0, tooLong), "Retry-After capped at MaxDelay")

	jittered := RetryPolicy{MaxRetries: 1, InitialDelay: 100 * time.Millisecond, MaxDelay: time.Second, Multiplier: 2, Jitter: true}
	d := backoffDelay(jittered, 0, transient)
	assert.GreaterOrEqual(t, d, 100*time.Millisecond)
	assert.LessOrEqual(t, d, 120*time.Millisecond)
}
