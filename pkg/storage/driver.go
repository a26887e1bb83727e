// Package storage defines the message store: the durable, per-conversation
// append/replace log that is the source of truth for conversation state.
package storage

import (
	"context"

	"github.com/papercomputeco/recall/pkg/conversation"
)

// Driver defines the interface for persisting and retrieving conversations in
// a storage backend.
//
// Every method scoped by ownerID behaves as if the conversation did not exist
// when it belongs to another owner: callers receive a NotFoundError and can
// not distinguish the two cases.
type Driver interface {
	// CreateConversation inserts a new empty conversation. An empty title
	// defaults to conversation.DefaultTitle.
	CreateConversation(ctx context.Context, ownerID, title string) (*conversation.Conversation, error)

	// GetConversation fetches a conversation by id. When ownerID is empty the
	// owner is not checked.
	GetConversation(ctx context.Context, id, ownerID string) (*conversation.Conversation, error)

	// ListConversations returns summaries for an owner, most recently active
	// first.
	ListConversations(ctx context.Context, ownerID string) ([]conversation.Summary, error)

	// AppendMessages idempotently appends messages. Messages whose id or
	// client id is already present are dropped, missing ids are assigned, and
	// the conversation is created with the default title when it does not
	// exist yet. Duplicates never produce an error.
	AppendMessages(ctx context.Context, id, ownerID string, msgs []conversation.Message) (*AppendResult, error)

	// SetTitle overwrites the conversation title.
	SetTitle(ctx context.Context, id, ownerID, title string) error

	// ReplaceMessageAndTruncate replaces messageID with newMsg, keeping the
	// original id and file parts, and drops every message after it.
	// It returns the resulting message sequence.
	ReplaceMessageAndTruncate(ctx context.Context, id, ownerID, messageID string, newMsg conversation.Message) ([]conversation.Message, error)

	// TruncateFrom removes messageID and every message after it.
	// It returns the resulting message sequence.
	TruncateFrom(ctx context.Context, id, ownerID, messageID string) ([]conversation.Message, error)

	// DeleteConversation removes a conversation and its messages.
	DeleteConversation(ctx context.Context, id, ownerID string) error

	// ShareConversation marks a conversation shared and returns its share
	// token. Sharing an already shared conversation returns the same token.
	ShareConversation(ctx context.Context, id, ownerID string) (string, error)

	// UnshareConversation revokes the share token.
	UnshareConversation(ctx context.Context, id, ownerID string) error

	// GetSharedConversation looks up a shared conversation by its token.
	GetSharedConversation(ctx context.Context, token string) (*conversation.Conversation, error)

	// Close closes the store and releases any resources.
	Close() error
}

// AppendResult reports the outcome of an AppendMessages call.
type AppendResult struct {
	// Conversation is the conversation after the append.
	Conversation *conversation.Conversation

	// Appended holds the messages that were newly stored, with their durable
	// ids. Duplicates that were dropped are not included.
	Appended []conversation.Message

	// Created is true when the append created the conversation.
	Created bool
}
