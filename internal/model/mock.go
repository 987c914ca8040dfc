package model

import (
	"context"
	"sync"

	"github.com/Itangalo/scenario-lab-sub001/pkg/ports"
)

// MockClient implements ports.ModelClient for testing. It allows configuring
// per-actor replies, simulating failures per model, staggering completion
// times, and tracking calls for verification.
type MockClient struct {
	mu sync.Mutex

	reply   func(model, prompt string) ports.ModelReply
	errFor  map[string]error
	failN   map[string]int
	barrier func(model, prompt string)

	// Calls records every invocation in arrival order.
	Calls []MockCall
}

// MockCall records one invocation.
type MockCall struct {
	Model  string
	Prompt string
}

// NewMockClient creates a mock that answers every call with a fixed reply.
func NewMockClient() *MockClient {
	return &MockClient{
		errFor: make(map[string]error),
		failN:  make(map[string]int),
		reply: func(model, prompt string) ports.ModelReply {
			return ports.ModelReply{
				Text:         "Mock reasoning.\nACTION: proceed as planned\n",
				InputTokens:  100,
				OutputTokens: 50,
			}
		},
	}
}

// WithReply configures the reply function.
func (m *MockClient) WithReply(fn func(model, prompt string) ports.ModelReply) *MockClient {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.reply = fn
	return m
}

// WithError makes every call for the given model fail with err.
func (m *MockClient) WithError(model string, err error) *MockClient {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.errFor[model] = err
	return m
}

// WithTransientFailures makes the first n calls for the given model fail
// with a transient error, then succeed.
func (m *MockClient) WithTransientFailures(model string, n int, err error) *MockClient {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failN[model] = n
	m.errFor[model] = err
	return m
}

// WithBarrier installs a hook invoked before each reply, letting tests
// stagger completion order across concurrent calls.
func (m *MockClient) WithBarrier(fn func(model, prompt string)) *MockClient {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.barrier = fn
	return m
}

// Call implements ports.ModelClient.
func (m *MockClient) Call(ctx context.Context, model, prompt string) (ports.ModelReply, error) {
	m.mu.Lock()
	m.Calls = append(m.Calls, MockCall{Model: model, Prompt: prompt})
	barrier := m.barrier
	reply := m.reply

	var callErr error
	if n, limited := m.failN[model]; limited {
		if n > 0 {
			m.failN[model] = n - 1
			callErr = m.errFor[model]
		}
	} else if err, ok := m.errFor[model]; ok {
		callErr = err
	}
	m.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return ports.ModelReply{}, err
	}
	if barrier != nil {
		barrier(model, prompt)
	}
	if callErr != nil {
		return ports.ModelReply{}, callErr
	}
	return reply(model, prompt), nil
}

// CallCount returns the number of calls served so far.
func (m *MockClient) CallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.Calls)
}
