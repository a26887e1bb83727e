package testutils

import (
	"context"
	"strings"
	"sync"

	"github.com/papercomputeco/recall/pkg/completion"
	"github.com/papercomputeco/recall/pkg/llm"
)

// MockCompletionProvider streams canned chunks and records every request.
type MockCompletionProvider struct {
	mu       sync.Mutex
	requests []*llm.ChatRequest

	// Chunks are streamed in order as deltas.
	Chunks []string

	// Model is reported on chunks and on the final response.
	Model string

	// Err is returned after FailAfter chunks were streamed.
	Err       error
	FailAfter int
}

// NewMockCompletionProvider creates a provider that streams chunks.
func NewMockCompletionProvider(chunks ...string) *MockCompletionProvider {
	return &MockCompletionProvider{Chunks: chunks, Model: "mock-model"}
}

func (m *MockCompletionProvider) Name() string {
	return "mock"
}

func (m *MockCompletionProvider) Stream(ctx context.Context, req *llm.ChatRequest, onChunk completion.ChunkFunc) (*llm.ChatResponse, error) {
	m.mu.Lock()
	m.requests = append(m.requests, req)
	m.mu.Unlock()

	var text strings.Builder
	for i, c := range m.Chunks {
		if m.Err != nil && i == m.FailAfter {
			return nil, m.Err
		}
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if err := onChunk(llm.StreamChunk{Model: m.Model, Delta: c}); err != nil {
			return nil, err
		}
		text.WriteString(c)
	}
	if m.Err != nil {
		return nil, m.Err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	return &llm.ChatResponse{
		Model:      m.Model,
		Message:    llm.NewTextMessage(llm.RoleAssistant, text.String()),
		Done:       true,
		StopReason: "stop",
	}, nil
}

// Requests returns the requests received so far.
func (m *MockCompletionProvider) Requests() []*llm.ChatRequest {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]*llm.ChatRequest(nil), m.requests...)
}

// LastRequest returns the most recent request, or nil.
func (m *MockCompletionProvider) LastRequest() *llm.ChatRequest {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.requests) == 0 {
		return nil
	}
	return m.requests[len(m.requests)-1]
}
