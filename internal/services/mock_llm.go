package services

import (
	"context"
	"sync"
)

// MockLLM is a mock implementation of LLMService for testing
type MockLLM struct {
	GenerateContentFunc       func(ctx context.Context, req *LLMRequest) (*LLMResponse, error)
	GenerateContentStreamFunc func(ctx context.Context, req *LLMRequest, onChunk func(chunk string)) (*LLMResponse, error)
	CountTokensFunc           func(ctx context.Context, text string) (int, error)

	// Track calls for testing
	GenerateContentCalls []GenerateContentCall
	CountTokensCalls     []string

	mu sync.Mutex // protects all fields above
}

type GenerateContentCall struct {
	Request *LLMRequest
	Stream  bool
}

// NewMockLLM creates a new mock LLM service
func NewMockLLM() *MockLLM {
	return &MockLLM{
		GenerateContentCalls: make([]GenerateContentCall, 0),
		CountTokensCalls:     make([]string, 0),
	}
}

// MaxTemperature mocks the provider ceiling
func (m *MockLLM) MaxTemperature() float64 {
	return 2.0
}

// GenerateContent mocks a blocking generation
func (m *MockLLM) GenerateContent(ctx context.Context, req *LLMRequest) (*LLMResponse, error) {
	m.mu.Lock()
	m.GenerateContentCalls = append(m.GenerateContentCalls, GenerateContentCall{Request: req})
	fn := m.GenerateContentFunc
	m.mu.Unlock()

	if fn != nil {
		return fn(ctx, req)
	}
	return assembleResponse("", `{"story":"Mock narration."}`), nil
}

// GenerateContentStream mocks a streaming generation. Without a
// configured func, the default response is delivered as one chunk.
func (m *MockLLM) GenerateContentStream(ctx context.Context, req *LLMRequest, onChunk func(chunk string)) (*LLMResponse, error) {
	m.mu.Lock()
	m.GenerateContentCalls = append(m.GenerateContentCalls, GenerateContentCall{Request: req, Stream: true})
	fn := m.GenerateContentStreamFunc
	m.mu.Unlock()

	if fn != nil {
		return fn(ctx, req, onChunk)
	}
	resp, err := m.generateDefault(ctx, req)
	if err != nil {
		return nil, err
	}
	if onChunk != nil {
		onChunk(resp.Raw)
	}
	return resp, nil
}

func (m *MockLLM) generateDefault(ctx context.Context, req *LLMRequest) (*LLMResponse, error) {
	m.mu.Lock()
	fn := m.GenerateContentFunc
	m.mu.Unlock()
	if fn != nil {
		return fn(ctx, req)
	}
	return assembleResponse("", `{"story":"Mock narration."}`), nil
}

// CountTokens mocks token counting
func (m *MockLLM) CountTokens(ctx context.Context, text string) (int, error) {
	m.mu.Lock()
	m.CountTokensCalls = append(m.CountTokensCalls, text)
	fn := m.CountTokensFunc
	m.mu.Unlock()

	if fn != nil {
		return fn(ctx, text)
	}
	return estimateTokens(text), nil
}

// NewRawResponse builds a response from raw provider text the same way
// the real providers do, extracting the JSON payload when present. Test
// helper for per-call mock funcs.
func NewRawResponse(raw string) *LLMResponse {
	return assembleResponse("", raw)
}

// SetResponse sets up the mock to return a fixed raw payload
func (m *MockLLM) SetResponse(raw string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.GenerateContentFunc = func(ctx context.Context, req *LLMRequest) (*LLMResponse, error) {
		return assembleResponse("", raw), nil
	}
}

// SetError sets up the mock to fail every generation
func (m *MockLLM) SetError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.GenerateContentFunc = func(ctx context.Context, req *LLMRequest) (*LLMResponse, error) {
		return nil, err
	}
	m.GenerateContentStreamFunc = func(ctx context.Context, req *LLMRequest, onChunk func(chunk string)) (*LLMResponse, error) {
		return nil, err
	}
}

// Reset clears all call tracking
func (m *MockLLM) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.GenerateContentCalls = make([]GenerateContentCall, 0)
	m.CountTokensCalls = make([]string, 0)
	m.GenerateContentFunc = nil
	m.GenerateContentStreamFunc = nil
	m.CountTokensFunc = nil
}

// Calls returns a copy of the generation call log in a thread-safe way
func (m *MockLLM) Calls() []GenerateContentCall {
	m.mu.Lock()
	defer m.mu.Unlock()
	calls := make([]GenerateContentCall, len(m.GenerateContentCalls))
	copy(calls, m.GenerateContentCalls)
	return calls
}
