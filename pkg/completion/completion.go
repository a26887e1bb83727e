// Package completion defines the streaming chat completion interface the
// orchestrator talks to. Implementations live in subpackages.
package completion

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/papercomputeco/recall/pkg/llm"
)

// ErrUpstream marks failures of the completion provider itself, as opposed
// to cancellation by the caller.
var ErrUpstream = errors.New("completion provider failed")

// ChunkFunc receives every streamed chunk in order. Returning an error aborts
// the stream and Stream returns that error.
type ChunkFunc func(llm.StreamChunk) error

// Provider streams a chat completion.
type Provider interface {
	// Name returns the provider name recorded on turn events (e.g. "ollama").
	Name() string

	// Stream sends req and calls onChunk for every delta. On success it
	// returns the assembled response. A cancelled ctx aborts the stream.
	Stream(ctx context.Context, req *llm.ChatRequest, onChunk ChunkFunc) (*llm.ChatResponse, error)
}

// StatusError is returned when the provider answers with a non-2xx status.
type StatusError struct {
	Provider   string
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s returned status %d: %s", e.Provider, e.StatusCode, strings.TrimSpace(e.Body))
}

// Is matches ErrUpstream.
func (e *StatusError) Is(target error) bool {
	return target == ErrUpstream
}

// Accumulator assembles streamed deltas into the final response.
type Accumulator struct {
	text  strings.Builder
	model string
	last  llm.StreamChunk
}

// Add records a chunk.
func (a *Accumulator) Add(chunk llm.StreamChunk) {
	a.text.WriteString(chunk.Delta)
	if chunk.Model != "" {
		a.model = chunk.Model
	}
	if chunk.Done || chunk.StopReason != "" || chunk.Usage != nil {
		a.last = chunk
	}
}

// Text returns everything streamed so far.
func (a *Accumulator) Text() string {
	return a.text.String()
}

// Response builds the assembled assistant response.
func (a *Accumulator) Response() *llm.ChatResponse {
	return &llm.ChatResponse{
		Model:      a.model,
		CreatedAt:  a.last.CreatedAt,
		Message:    llm.NewTextMessage(llm.RoleAssistant, a.text.String()),
		Done:       true,
		StopReason: a.last.StopReason,
		Usage:      a.last.Usage,
	}
}
