// Package eventstream publishes domain events about persisted chat turns to
// an external stream so downstream consumers (analytics, audit, indexing)
// can react without coupling to the chat path.
package eventstream

import (
	"time"

	"github.com/google/uuid"

	"github.com/papercomputeco/recall/pkg/conversation"
)

const (
	// SchemaVersionV1 is the first version of the event payload schema.
	SchemaVersionV1 = 1

	// EventTypeTurnPersisted is emitted after a turn's assistant message is
	// persisted.
	EventTypeTurnPersisted = "recall.turn.persisted"
)

// TurnPersistedEvent is a transport-neutral event payload for a persisted turn.
type TurnPersistedEvent struct {
	SchemaVersion    int                  `json:"schema_version"`
	EventType        string               `json:"event_type"`
	EventID          string               `json:"event_id"`
	EmittedAt        time.Time            `json:"emitted_at"`
	ConversationID   string               `json:"conversation_id"`
	OwnerID          string               `json:"owner_id"`
	UserMessage      conversation.Message `json:"user_message"`
	AssistantMessage conversation.Message `json:"assistant_message"`
	Model            string               `json:"model,omitempty"`
	Provider         string               `json:"provider,omitempty"`
}

// NewTurnPersistedEvent stamps a new event with a fresh id.
func NewTurnPersistedEvent(conversationID, ownerID string, user, assistant conversation.Message) *TurnPersistedEvent {
	return &TurnPersistedEvent{
		SchemaVersion:    SchemaVersionV1,
		EventType:        EventTypeTurnPersisted,
		EventID:          uuid.NewString(),
		EmittedAt:        time.Now().UTC(),
		ConversationID:   conversationID,
		OwnerID:          ownerID,
		UserMessage:      user,
		AssistantMessage: assistant,
	}
}
