// Package client is a small HTTP client for the recall API used by the CLI.
package client

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/papercomputeco/recall/api"
	"github.com/papercomputeco/recall/pkg/conversation"
	"github.com/papercomputeco/recall/pkg/memory"
)

const defaultTimeout = 30 * time.Second

// ErrStream is returned by StreamTurn when the server reports a failed turn
// through an error event.
var ErrStream = errors.New("turn failed")

// StatusError is a non-2xx response outside of a stream.
type StatusError struct {
	StatusCode int
	Message    string
}

func (e *StatusError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("recall api: status %d", e.StatusCode)
	}
	return fmt.Sprintf("recall api: status %d: %s", e.StatusCode, e.Message)
}

// Client talks to a recall API server on behalf of one bearer token.
type Client struct {
	rest *resty.Client
}

// New creates a client for baseURL. The token may be empty for public routes.
func New(baseURL, token string) *Client {
	rest := resty.New().
		SetBaseURL(strings.TrimRight(baseURL, "/")).
		SetHeader("Content-Type", "application/json").
		SetTimeout(defaultTimeout)
	if token != "" {
		rest.SetAuthToken(token)
	}
	return &Client{rest: rest}
}

// CreateConversation creates an empty conversation.
func (c *Client) CreateConversation(ctx context.Context, title string) (*conversation.Conversation, error) {
	out := &conversation.Conversation{}
	resp, err := c.rest.R().
		SetContext(ctx).
		SetBody(map[string]string{"title": title}).
		SetResult(out).
		Post("/conversations/")
	if err := check(resp, err); err != nil {
		return nil, err
	}
	return out, nil
}

// GetConversation fetches a conversation with its messages.
func (c *Client) GetConversation(ctx context.Context, id string) (*conversation.Conversation, error) {
	out := &conversation.Conversation{}
	resp, err := c.rest.R().
		SetContext(ctx).
		SetPathParam("id", id).
		SetResult(out).
		Get("/conversations/{id}")
	if err := check(resp, err); err != nil {
		return nil, err
	}
	return out, nil
}

// ListConversations returns the caller's conversation summaries.
func (c *Client) ListConversations(ctx context.Context) ([]conversation.Summary, error) {
	out := &api.ListConversationsResponse{}
	resp, err := c.rest.R().
		SetContext(ctx).
		SetResult(out).
		Get("/conversations/")
	if err := check(resp, err); err != nil {
		return nil, err
	}
	return out.Conversations, nil
}

// ListMemories returns the caller's categorized memories.
func (c *Client) ListMemories(ctx context.Context) (*api.MemoryListResponse, error) {
	out := &api.MemoryListResponse{}
	resp, err := c.rest.R().
		SetContext(ctx).
		SetResult(out).
		Get("/memory/")
	if err := check(resp, err); err != nil {
		return nil, err
	}
	return out, nil
}

// MemoryStats returns the caller's memory counts.
func (c *Client) MemoryStats(ctx context.Context) (*memory.Stats, error) {
	out := &memory.Stats{}
	resp, err := c.rest.R().
		SetContext(ctx).
		SetResult(out).
		Get("/memory/stats")
	if err := check(resp, err); err != nil {
		return nil, err
	}
	return out, nil
}

// ClearMemories deletes every memory of the caller and returns how many
// were removed.
func (c *Client) ClearMemories(ctx context.Context) (int, error) {
	out := &api.ClearMemoriesResponse{}
	resp, err := c.rest.R().
		SetContext(ctx).
		SetResult(out).
		Delete("/memory/")
	if err := check(resp, err); err != nil {
		return 0, err
	}
	return out.Deleted, nil
}

type turnMessage struct {
	ID       string `json:"id,omitempty"`
	ClientID string `json:"clientId,omitempty"`
	Text     string `json:"text"`
}

type turnBody struct {
	Message turnMessage `json:"message"`
}

// StreamTurn sends one user message and calls onEvent for every streamed
// event in order. The returned event is the final "done" event. An "error"
// event ends the stream with an error wrapping ErrStream.
//
// clientID makes retries idempotent: resending the same clientID replays the
// stored answer instead of generating a new one.
func (c *Client) StreamTurn(ctx context.Context, conversationID, clientID, text string, onEvent func(api.StreamEvent) error) (*api.StreamEvent, error) {
	resp, err := c.rest.R().
		SetContext(ctx).
		SetPathParam("id", conversationID).
		SetBody(turnBody{Message: turnMessage{ClientID: clientID, Text: text}}).
		SetDoNotParseResponse(true).
		Post("/conversations/{id}/turns")
	if err != nil {
		return nil, fmt.Errorf("sending turn: %w", err)
	}

	raw := resp.RawBody()
	defer raw.Close()

	if resp.StatusCode() != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(raw, 4096))
		return nil, statusError(resp.StatusCode(), body)
	}

	return readStream(raw, onEvent)
}

// readStream decodes NDJSON stream events until a terminal event.
func readStream(r io.Reader, onEvent func(api.StreamEvent) error) (*api.StreamEvent, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), 4*1024*1024)

	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}

		var ev api.StreamEvent
		if err := json.Unmarshal(line, &ev); err != nil {
			return nil, fmt.Errorf("decoding stream event: %w", err)
		}
		if onEvent != nil {
			if err := onEvent(ev); err != nil {
				return nil, err
			}
		}

		switch ev.Type {
		case api.StreamEventDone:
			return &ev, nil
		case api.StreamEventError:
			return nil, fmt.Errorf("%w: %s (status %d)", ErrStream, ev.Error, ev.Status)
		}
	}

	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("reading stream: %w", err)
	}
	return nil, fmt.Errorf("%w: stream ended before done", ErrStream)
}

func check(resp *resty.Response, err error) error {
	if err != nil {
		return fmt.Errorf("recall api request: %w", err)
	}
	if resp.IsError() {
		return statusError(resp.StatusCode(), resp.Body())
	}
	return nil
}

func statusError(code int, body []byte) error {
	var e api.ErrorResponse
	if json.Unmarshal(body, &e) == nil && e.Error != "" {
		return &StatusError{StatusCode: code, Message: e.Error}
	}
	return &StatusError{StatusCode: code, Message: strings.TrimSpace(string(body))}
}
