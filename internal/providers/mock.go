package providers

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"github.com/lipish/llm-connector-sub002/pkg/llm"
)

// MockProvider serves scripted responses for tests and offline development.
// Responses and streams are consumed in FIFO order; once the scripts run
// dry it falls back to echoing a fixed canned reply. Requests are recorded
// so tests can assert on what reached the provider boundary.
type MockProvider struct {
	mu        sync.Mutex
	responses []*llm.ChatResponse
	streams   [][]llm.StreamingResponse
	requests  []llm.ChatRequest
}

// NewMock returns an empty mock; script it with EnqueueResponse and
// EnqueueStream.
func NewMock() *MockProvider { return &MockProvider{} }

// EnqueueResponse schedules resp to answer the next Chat call.
func (p *MockProvider) EnqueueResponse(resp *llm.ChatResponse) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.responses = append(p.responses, resp)
}

// EnqueueStream schedules chunks to answer the next ChatStream call.
func (p *MockProvider) EnqueueStream(chunks []llm.StreamingResponse) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.streams = append(p.streams, chunks)
}

// Requests returns a copy of every request seen so far.
func (p *MockProvider) Requests() []llm.ChatRequest {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]llm.ChatRequest, len(p.requests))
	copy(out, p.requests)
	return out
}

func (p *MockProvider) Name() string { return "mock" }

func (p *MockProvider) Capabilities() llm.Capabilities {
	return llm.Capabilities{
		SupportsTools:     true,
		SupportsStreaming: true,
		SupportsVision:    true,
		Models:            []string{"mock-model"},
	}
}

func (p *MockProvider) ListModels(ctx context.Context) ([]string, error) {
	return []string{"mock-model"}, nil
}

func (p *MockProvider) Chat(ctx context.Context, req llm.ChatRequest) (*llm.ChatResponse, error) {
	if len(req.Messages) == 0 {
		return nil, llm.NewError(llm.ErrorInvalidRequest, "mock", "request has no messages")
	}

	p.mu.Lock()
	p.requests = append(p.requests, req)
	var resp *llm.ChatResponse
	if len(p.responses) > 0 {
		resp = p.responses[0]
		p.responses = p.responses[1:]
	}
	p.mu.Unlock()

	if resp != nil {
		return resp, nil
	}
	return cannedResponse(req.Model), nil
}

func (p *MockProvider) ChatStream(ctx context.Context, req llm.ChatRequest) (<-chan llm.StreamEvent, error) {
	if len(req.Messages) == 0 {
		return nil, llm.NewError(llm.ErrorInvalidRequest, "mock", "request has no messages")
	}

	p.mu.Lock()
	p.requests = append(p.requests, req)
	var chunks []llm.StreamingResponse
	if len(p.streams) > 0 {
		chunks = p.streams[0]
		p.streams = p.streams[1:]
	} else {
		chunks = cannedStream(req.Model)
	}
	p.mu.Unlock()

	events := make(chan llm.StreamEvent)
	go func() {
		defer close(events)
		for i := range chunks {
			select {
			case events <- llm.StreamEvent{Chunk: &chunks[i]}:
			case <-ctx.Done():
				return
			}
		}
	}()
	return events, nil
}

func cannedResponse(model string) *llm.ChatResponse {
	msg := llm.NewAssistantMessage("mock response")
	return &llm.ChatResponse{
		ID:      "mock-" + uuid.NewString(),
		Object:  "chat.completion",
		Model:   model,
		Choices: []llm.Choice{{Index: 0, Message: msg, FinishReason: llm.FinishReasonStop}},
		Content: "mock response",
		Usage:   &llm.Usage{PromptTokens: 1, CompletionTokens: 2, TotalTokens: 3},
	}
}

func cannedStream(model string) []llm.StreamingResponse {
	id := "mock-" + uuid.NewString()
	stop := llm.FinishReasonStop
	return []llm.StreamingResponse{
		{
			ID:      id,
			Object:  "chat.completion.chunk",
			Model:   model,
			Choices: []llm.StreamChoice{{Index: 0, Delta: llm.Delta{Role: llm.RoleAssistant, Content: "mock "}}},
			Content: "mock ",
		},
		{
			ID:      id,
			Object:  "chat.completion.chunk",
			Model:   model,
			Choices: []llm.StreamChoice{{Index: 0, Delta: llm.Delta{Content: "stream"}}},
			Content: "stream",
		},
		{
			ID:      id,
			Object:  "chat.completion.chunk",
			Model:   model,
			Choices: []llm.StreamChoice{{Index: 0, FinishReason: &stop}},
			Usage:   &llm.Usage{PromptTokens: 1, CompletionTokens: 2, TotalTokens: 3},
		},
	}
}

var _ llm.Provider = (*MockProvider)(nil)
