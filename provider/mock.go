package provider

import (
	"context"
	"sync"
	"time"
)

// MockClient is a test double for Client.
// It supports fixed responses, sequential responses, per-model answers and
// custom handlers.
type MockClient struct {
	mu           sync.Mutex
	responses    []string
	responseIdx  int
	err          error
	byModel      map[string]string
	errByModel   map[string]error
	completeFunc func(ctx context.Context, req Request) (*Response, error)

	// Calls tracks all requests for assertions. Read it through Requests
	// while calls may still be in flight.
	Calls []Request
}

// NewMockClient creates a mock that returns a fixed response.
func NewMockClient(response string) *MockClient {
	return &MockClient{
		responses:  []string{response},
		byModel:    make(map[string]string),
		errByModel: make(map[string]error),
	}
}

// WithResponses configures sequential responses.
// Each call to Complete returns the next response in the list.
// Cycles back to the beginning after exhausting all responses.
func (m *MockClient) WithResponses(responses ...string) *MockClient {
	m.responses = responses
	return m
}

// WithError configures the mock to always return an error.
func (m *MockClient) WithError(err error) *MockClient {
	m.err = err
	return m
}

// WithModelResponse answers requests for one model with a fixed response.
func (m *MockClient) WithModelResponse(model, response string) *MockClient {
	m.byModel[model] = response
	return m
}

// WithModelError fails requests for one model.
func (m *MockClient) WithModelError(model string, err error) *MockClient {
	m.errByModel[model] = err
	return m
}

// WithCompleteFunc sets a custom handler for Complete calls.
// This takes precedence over every other setting.
func (m *MockClient) WithCompleteFunc(fn func(ctx context.Context, req Request) (*Response, error)) *MockClient {
	m.completeFunc = fn
	return m
}

// Complete implements Client.
func (m *MockClient) Complete(ctx context.Context, req Request) (*Response, error) {
	m.mu.Lock()
	m.Calls = append(m.Calls, req)

	if err := ctx.Err(); err != nil {
		m.mu.Unlock()
		return nil, err
	}

	// The handler runs unlocked so parallel callers are not serialized.
	if m.completeFunc != nil {
		fn := m.completeFunc
		m.mu.Unlock()
		return fn(ctx, req)
	}

	if err, ok := m.errByModel[req.Model]; ok {
		m.mu.Unlock()
		return nil, err
	}
	if m.err != nil {
		err := m.err
		m.mu.Unlock()
		return nil, err
	}

	response, ok := m.byModel[req.Model]
	if !ok && len(m.responses) > 0 {
		response = m.responses[m.responseIdx%len(m.responses)]
		m.responseIdx++
	}
	m.mu.Unlock()

	return &Response{
		Content:      response,
		Usage:        TokenUsage{InputTokens: 10, OutputTokens: len(response) / 4, TotalTokens: 10 + len(response)/4},
		Model:        req.Model,
		FinishReason: "stop",
		Duration:     10 * time.Millisecond,
	}, nil
}

// Provider implements Client.
func (m *MockClient) Provider() string { return "mock" }

// Reset clears the call history and response index.
func (m *MockClient) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Calls = nil
	m.responseIdx = 0
}

// CallCount returns the number of times Complete was called.
func (m *MockClient) CallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.Calls)
}

// Requests returns a copy of the recorded requests.
func (m *MockClient) Requests() []Request {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Request, len(m.Calls))
	copy(out, m.Calls)
	return out
}

// CallsFor returns how many requests named model.
func (m *MockClient) CallsFor(model string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, c := range m.Calls {
		if c.Model == model {
			n++
		}
	}
	return n
}

// LastCall returns the most recent request, or nil if no calls made.
func (m *MockClient) LastCall() *Request {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.Calls) == 0 {
		return nil
	}
	last := m.Calls[len(m.Calls)-1]
	return &last
}

var _ Client = (*MockClient)(nil)
