// Package openai streams chat completions from OpenAI-compatible
// /chat/completions endpoints (OpenAI, Groq, and local gateways).
package openai

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/papercomputeco/recall/pkg/completion"
	"github.com/papercomputeco/recall/pkg/llm"
	"github.com/papercomputeco/recall/pkg/sse"
)

const (
	// DefaultBaseURL is the OpenAI API base URL.
	DefaultBaseURL = "https://api.openai.com/v1"

	// GroqBaseURL is Groq's OpenAI-compatible base URL.
	GroqBaseURL = "https://api.groq.com/openai/v1"
)

// Config configures the provider.
type Config struct {
	// Name is reported by Name(). Defaults to "openai".
	Name    string
	BaseURL string
	APIKey  string
	Logger  *slog.Logger
}

// Provider implements completion.Provider for OpenAI-compatible APIs.
type Provider struct {
	name   string
	client *resty.Client
	logger *slog.Logger
}

// New creates an OpenAI-compatible completion provider.
func New(c Config) *Provider {
	if c.BaseURL == "" {
		c.BaseURL = DefaultBaseURL
	}
	if c.Name == "" {
		c.Name = "openai"
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}

	client := resty.New().
		SetBaseURL(c.BaseURL).
		SetHeader("Content-Type", "application/json").
		SetHeader("Accept", "text/event-stream")
	if c.APIKey != "" {
		client.SetAuthToken(c.APIKey)
	}

	return &Provider{
		name:   c.Name,
		client: client,
		logger: c.Logger,
	}
}

func (p *Provider) Name() string {
	return p.name
}

// Stream posts the request with stream enabled and reads SSE events until
// the [DONE] sentinel.
func (p *Provider) Stream(ctx context.Context, req *llm.ChatRequest, onChunk completion.ChunkFunc) (*llm.ChatResponse, error) {
	resp, err := p.client.R().
		SetContext(ctx).
		SetBody(buildRequest(req)).
		SetDoNotParseResponse(true).
		Post("/chat/completions")
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("%w: sending request: %w", completion.ErrUpstream, err)
	}

	raw := resp.RawBody()
	defer raw.Close()

	if resp.StatusCode() != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(raw, 4096))
		var apiErr errorResponse
		if json.Unmarshal(body, &apiErr) == nil && apiErr.Error.Message != "" {
			body = []byte(apiErr.Error.Message)
		}
		return nil, &completion.StatusError{Provider: p.name, StatusCode: resp.StatusCode(), Body: string(body)}
	}

	var (
		acc    completion.Accumulator
		reader = sse.NewReader(raw)
	)
	for {
		ev, err := reader.Next()
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			return nil, fmt.Errorf("%w: reading stream: %w", completion.ErrUpstream, err)
		}
		if ev == nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			return nil, fmt.Errorf("%w: stream ended before [DONE]", completion.ErrUpstream)
		}
		if ev.IsDone() {
			return acc.Response(), nil
		}

		var sc streamChunk
		if err := json.Unmarshal([]byte(ev.Data), &sc); err != nil {
			return nil, fmt.Errorf("%w: decoding stream event: %w", completion.ErrUpstream, err)
		}

		chunk := toChunk(sc)
		acc.Add(chunk)
		if err := onChunk(chunk); err != nil {
			return nil, err
		}
	}
}

func buildRequest(req *llm.ChatRequest) *chatRequest {
	out := &chatRequest{
		Model:       req.Model,
		Messages:    make([]chatMessage, 0, len(req.Messages)),
		MaxTokens:   req.MaxTokens,
		Temperature: req.Temperature,
		Stop:        req.Stop,
		Stream:      true,
	}

	for _, m := range req.Messages {
		images := m.ImageURLs()
		if len(images) == 0 {
			// plain string content for text-only messages
			out.Messages = append(out.Messages, chatMessage{Role: m.Role, Content: m.GetText()})
			continue
		}

		parts := make([]contentPart, 0, len(m.Content))
		for _, block := range m.Content {
			switch block.Type {
			case llm.BlockTypeText:
				parts = append(parts, contentPart{Type: "text", Text: block.Text})
			case llm.BlockTypeImage:
				parts = append(parts, contentPart{Type: "image_url", ImageURL: &imageURL{URL: block.ImageURL}})
			}
		}
		out.Messages = append(out.Messages, chatMessage{Role: m.Role, Content: parts})
	}
	return out
}

func toChunk(sc streamChunk) llm.StreamChunk {
	chunk := llm.StreamChunk{
		Model:     sc.Model,
		CreatedAt: time.Unix(sc.Created, 0),
	}
	if len(sc.Choices) > 0 {
		choice := sc.Choices[0]
		chunk.Delta = choice.Delta.Content
		if choice.FinishReason != nil {
			chunk.StopReason = *choice.FinishReason
			chunk.Done = true
		}
	}

	u := sc.Usage
	if u == nil && sc.XGroq != nil {
		u = sc.XGroq.Usage
	}
	if u != nil {
		chunk.Usage = &llm.Usage{
			PromptTokens:     u.PromptTokens,
			CompletionTokens: u.CompletionTokens,
			TotalTokens:      u.TotalTokens,
		}
	}
	return chunk
}

var _ completion.Provider = (*Provider)(nil)
