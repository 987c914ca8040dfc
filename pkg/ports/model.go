package ports

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// ModelReply is the normalized result of one text-generation call.
type ModelReply struct {
	Text         string
	InputTokens  int
	OutputTokens int
}

// ModelClient abstracts the text-generation transport. Implementations must
// honor ctx cancellation and classify failures via ModelError so the
// orchestrator can decide between retry and surfacing.
type ModelClient interface {
	Call(ctx context.Context, model, prompt string) (ModelReply, error)
}

// FailureClass buckets model-invocation failures for retry decisions.
type FailureClass string

const (
	// FailureTransient covers rate limits, 5xx responses, timeouts and
	// connection failures. Retried with exponential backoff.
	FailureTransient FailureClass = "transient"
	// FailurePermanent covers auth failures and other 4xx responses.
	// Surfaced immediately, never retried.
	FailurePermanent FailureClass = "permanent"
	// FailureParse covers malformed model output. Handled by best-effort
	// fallback extraction, never aborts the turn.
	FailureParse FailureClass = "parse"
)

// ModelError wraps a transport failure with its classification and, when the
// provider supplied one, the delay to honor before retrying.
type ModelError struct {
	Err        error
	Class      FailureClass
	RetryAfter time.Duration
}

func (e *ModelError) Error() string {
	return fmt.Sprintf("model call failed (%s): %v", e.Class, e.Err)
}

func (e *ModelError) Unwrap() error {
	return e.Err
}

// NewModelError wraps err with a failure class.
func NewModelError(err error, class FailureClass) *ModelError {
	return &ModelError{Err: err, Class: class}
}

// ClassifyFailure extracts the failure class from an error. Unclassified
// errors default to permanent so unknown failures are surfaced, not retried.
func ClassifyFailure(err error) FailureClass {
	var me *ModelError
	if errors.As(err, &me) {
		return me.Class
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return FailureTransient
	}
	return FailurePermanent
}

// RetryDelay returns the provider-specified retry delay, if any.
func RetryDelay(err error) time.Duration {
	var me *ModelError
	if errors.As(err, &me) {
		return me.RetryAfter
	}
	return 0
}
