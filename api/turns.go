package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"

	"github.com/gofiber/fiber/v2"

	"github.com/papercomputeco/recall/pkg/chat"
	"github.com/papercomputeco/recall/pkg/conversation"
)

// Stream event types written as NDJSON lines by the turn endpoints.
const (
	StreamEventDelta = "delta"
	StreamEventDone  = "done"
	StreamEventError = "error"

	ndjsonContentType = "application/x-ndjson"
)

// StreamEvent is one line of a streamed turn.
type StreamEvent struct {
	Type             string                `json:"type"`
	Text             string                `json:"text,omitempty"`
	UserMessage      *conversation.Message `json:"userMessage,omitempty"`
	AssistantMessage *conversation.Message `json:"assistantMessage,omitempty"`
	Title            string                `json:"title,omitempty"`
	Error            string                `json:"error,omitempty"`
	Status           int                   `json:"status,omitempty"`
}

type attachmentInput struct {
	Name      string `json:"name" validate:"required,max=255"`
	URL       string `json:"url" validate:"required,url"`
	MediaType string `json:"mediaType" validate:"required"`
	Size      int64  `json:"size" validate:"gte=0"`
	UUID      string `json:"uuid"`
}

type turnMessageInput struct {
	ID          string            `json:"id" validate:"max=128"`
	ClientID    string            `json:"clientId" validate:"max=128"`
	Text        string            `json:"text"`
	Attachments []attachmentInput `json:"attachments" validate:"max=10,dive"`
}

type turnRequest struct {
	Message turnMessageInput `json:"message"`
}

type editAndRegenerateRequest struct {
	Content string `json:"content" validate:"required"`
}

func (m turnMessageInput) toMessage() conversation.Message {
	attachments := make([]conversation.Attachment, 0, len(m.Attachments))
	for _, a := range m.Attachments {
		attachments = append(attachments, conversation.Attachment{
			Name:      a.Name,
			URL:       a.URL,
			MediaType: a.MediaType,
			Size:      a.Size,
			UUID:      a.UUID,
		})
	}

	msg := conversation.NewUserMessage(m.Text, attachments)
	msg.ID = m.ID
	msg.ClientID = m.ClientID
	return msg
}

func (s *Server) handleTurn(c *fiber.Ctx) error {
	var req turnRequest
	if err := s.bind(c, &req, false); err != nil {
		return err
	}

	msg := req.Message.toMessage()
	if msg.IsEmpty() {
		return badRequest(c, "message has no text and no attachments")
	}

	turn := chat.TurnRequest{
		OwnerID:        userID(c),
		ConversationID: c.Params("id"),
		Message:        msg,
	}
	return s.stream(c, func(ctx context.Context, sink chat.StreamSink) (*chat.TurnResult, error) {
		return s.config.Orchestrator.SendTurn(ctx, turn, sink)
	})
}

func (s *Server) handleRegenerate(c *fiber.Ctx) error {
	owner, id := userID(c), c.Params("id")
	if _, err := s.config.Store.GetConversation(c.Context(), id, owner); err != nil {
		return s.fail(c, err)
	}

	return s.stream(c, func(ctx context.Context, sink chat.StreamSink) (*chat.TurnResult, error) {
		return s.config.Orchestrator.Regenerate(ctx, owner, id, sink)
	})
}

func (s *Server) handleEditAndRegenerate(c *fiber.Ctx) error {
	var req editAndRegenerateRequest
	if err := s.bind(c, &req, false); err != nil {
		return err
	}

	owner, id, messageID := userID(c), c.Params("id"), c.Params("messageId")
	conv, err := s.config.Store.GetConversation(c.Context(), id, owner)
	if err != nil {
		return s.fail(c, err)
	}
	if conv.FindMessage(messageID) < 0 {
		return c.Status(fiber.StatusNotFound).JSON(ErrorResponse{Error: "message not found: " + messageID})
	}

	return s.stream(c, func(ctx context.Context, sink chat.StreamSink) (*chat.TurnResult, error) {
		return s.config.Editor.EditAndRegenerate(ctx, owner, id, messageID, req.Content, sink)
	})
}

// stream runs a turn in the background and writes its events as NDJSON.
// fasthttp reads the pipe and flushes each chunk to the client, so a client
// that goes away fails the next write and aborts the turn.
func (s *Server) stream(c *fiber.Ctx, run func(ctx context.Context, sink chat.StreamSink) (*chat.TurnResult, error)) error {
	c.Set(fiber.HeaderContentType, ndjsonContentType)
	c.Set(fiber.HeaderCacheControl, "no-cache")

	pr, pw := io.Pipe()
	go func() {
		defer pw.Close()

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		enc := json.NewEncoder(pw)
		sink := chat.SinkFunc(func(text string) error {
			return enc.Encode(StreamEvent{Type: StreamEventDelta, Text: text})
		})

		result, err := run(ctx, sink)
		if err != nil {
			if errors.Is(err, io.ErrClosedPipe) {
				s.logger.Debug("client disconnected during turn")
				return
			}

			status := statusFor(err)
			s.logger.Warn("turn failed", "status", status, "error", err)
			_ = enc.Encode(StreamEvent{
				Type:   StreamEventError,
				Error:  errorMessage(err, status),
				Status: status,
			})
			return
		}

		_ = enc.Encode(StreamEvent{
			Type:             StreamEventDone,
			UserMessage:      result.UserMessage,
			AssistantMessage: result.AssistantMessage,
			Title:            result.Title,
		})
	}()

	c.Context().Response.SetBodyStream(pr, -1)
	return nil
}
