// Package model provides ModelClient implementations: the Anthropic transport
// for real runs, a scripted client for dry runs, and a mock for tests.
package model

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"time"

	anthropic "github.com/liushuangls/go-anthropic/v2"

	"github.com/Itangalo/scenario-lab-sub001/pkg/ports"
)

// DefaultMaxTokens caps the model output per call.
const DefaultMaxTokens = 4096

// AnthropicClient calls the Anthropic Messages API. It implements
// ports.ModelClient.
type AnthropicClient struct {
	client    *anthropic.Client
	maxTokens int
}

// AnthropicOption configures the client.
type AnthropicOption func(*AnthropicClient)

// WithMaxTokens overrides the per-call output token cap.
func WithMaxTokens(n int) AnthropicOption {
	return func(c *AnthropicClient) {
		c.maxTokens = n
	}
}

// NewAnthropicClient creates a client authenticated with apiKey.
func NewAnthropicClient(apiKey string, opts ...AnthropicOption) *AnthropicClient {
	c := &AnthropicClient{
		client:    anthropic.NewClient(apiKey),
		maxTokens: DefaultMaxTokens,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Call sends one prompt and returns the normalized reply. Failures come back
// as classified ModelErrors so the caller can decide between retry and
// surfacing.
func (c *AnthropicClient) Call(ctx context.Context, model, prompt string) (ports.ModelReply, error) {
	resp, err := c.client.CreateMessages(ctx, anthropic.MessagesRequest{
		Model: anthropic.Model(model),
		Messages: []anthropic.Message{
			anthropic.NewUserTextMessage(prompt),
		},
		MaxTokens: c.maxTokens,
	})
	if err != nil {
		return ports.ModelReply{}, classifyAnthropicError(err)
	}

	var text string
	for _, block := range resp.Content {
		if block.Type == anthropic.MessagesContentTypeText && block.Text != nil {
			text += *block.Text
		}
	}

	return ports.ModelReply{
		Text:         text,
		InputTokens:  resp.Usage.InputTokens,
		OutputTokens: resp.Usage.OutputTokens,
	}, nil
}

// classifyAnthropicError maps SDK errors onto the retry taxonomy: rate
// limits, overload and 5xx are transient; auth and other 4xx are permanent.
func classifyAnthropicError(err error) *ports.ModelError {
	var apiErr *anthropic.APIError
	if errors.As(err, &apiErr) {
		switch {
		case apiErr.IsRateLimitErr(), apiErr.IsOverloadedErr(), apiErr.IsApiErr():
			return &ports.ModelError{Err: err, Class: ports.FailureTransient, RetryAfter: retryAfterHint(err)}
		default:
			return ports.NewModelError(err, ports.FailurePermanent)
		}
	}

	var reqErr *anthropic.RequestError
	if errors.As(err, &reqErr) {
		if reqErr.StatusCode == 429 || reqErr.StatusCode >= 500 {
			return &ports.ModelError{Err: err, Class: ports.FailureTransient, RetryAfter: retryAfterHint(err)}
		}
		return ports.NewModelError(err, ports.FailurePermanent)
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return ports.NewModelError(err, ports.FailureTransient)
	}
	return ports.NewModelError(err, ports.FailurePermanent)
}

// retryAfterHint extracts a provider retry delay from the error text when one
// is present. The SDK does not surface the header directly.
func retryAfterHint(err error) time.Duration {
	if err == nil {
		return 0
	}
	msg := strings.ToLower(err.Error())
	idx := strings.Index(msg, "retry-after")
	if idx < 0 {
		idx = strings.Index(msg, "retry after")
	}
	if idx < 0 {
		return 0
	}
	for _, field := range strings.Fields(msg[idx:]) {
		if secs, err := strconv.Atoi(strings.Trim(field, ":;,.")); err == nil {
			return time.Duration(secs) * time.Second
		}
	}
	return 0
}
