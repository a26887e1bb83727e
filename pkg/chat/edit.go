package chat

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/papercomputeco/recall/pkg/conversation"
	"github.com/papercomputeco/recall/pkg/storage"
)

// ActionReplace is the only edit action supported.
const ActionReplace = "replace"

// Editor rewrites a user message, drops everything after it, and optionally
// regenerates the answer.
type Editor struct {
	store        storage.Driver
	orchestrator *Orchestrator
	logger       *slog.Logger
}

// NewEditor creates an Editor that regenerates through o.
func NewEditor(o *Orchestrator, logger *slog.Logger) *Editor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Editor{
		store:        o.Store(),
		orchestrator: o,
		logger:       logger.With("component", "editor"),
	}
}

// Edit replaces the content of messageID and truncates the tail without
// regenerating. action must be ActionReplace.
func (e *Editor) Edit(ctx context.Context, ownerID, conversationID, messageID, content, action string) ([]conversation.Message, error) {
	const op = "chat.Edit"

	if action != ActionReplace {
		return nil, validationError(op, fmt.Sprintf("unsupported action %q", action))
	}

	msgs, err := e.store.ReplaceMessageAndTruncate(ctx, conversationID, ownerID, messageID,
		conversation.NewTextMessage(conversation.RoleUser, content))
	if err != nil {
		return nil, wrap(op, err)
	}
	return msgs, nil
}

// EditAndRegenerate replaces the text of a user message, keeping its
// attachments, drops every later message, and streams a new answer. When the
// replace fails nothing has changed.
func (e *Editor) EditAndRegenerate(ctx context.Context, ownerID, conversationID, messageID, newText string, sink StreamSink) (*TurnResult, error) {
	const op = "chat.EditAndRegenerate"

	conv, err := e.store.GetConversation(ctx, conversationID, ownerID)
	if err != nil {
		return failedResult(conversationID), wrap(op, err)
	}

	idx := conv.FindMessage(messageID)
	if idx < 0 {
		return failedResult(conversationID), wrap(op, storage.MessageNotFound(messageID))
	}

	original := conv.Messages[idx]
	if original.Role != conversation.RoleUser {
		return failedResult(conversationID), validationError(op, "only user messages can be edited")
	}

	var attachments []conversation.Attachment
	for _, p := range original.FileParts() {
		attachments = append(attachments, *p.File)
	}

	replacement := conversation.NewUserMessage(newText, attachments)
	if replacement.IsEmpty() {
		return failedResult(conversationID), validationError(op, "edited message has no text and no attachments")
	}
	replacement.ID = original.ID

	msgs, err := e.store.ReplaceMessageAndTruncate(ctx, conversationID, ownerID, messageID, replacement)
	if err != nil {
		return failedResult(conversationID), wrap(op, err)
	}

	e.logger.Debug("message replaced",
		"conversation_id", conversationID,
		"message_id", messageID,
		"remaining", len(msgs),
	)

	result, err := e.orchestrator.Regenerate(ctx, ownerID, conversationID, sink)
	if err != nil {
		var chatErr *Error
		if errors.As(err, &chatErr) {
			return result, err
		}
		return result, fmt.Errorf("%s: %w", op, err)
	}
	return result, nil
}

func failedResult(conversationID string) *TurnResult {
	return &TurnResult{State: StateFailed, ConversationID: conversationID}
}
