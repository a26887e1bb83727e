// Package memory provides the long-term memory layer for recall.
//
// A [Driver] is a pluggable backend that stores free-text memory entries per
// user and searches them. The [Adapter] sits in front of a driver and turns
// conversation exchanges into entries, categorizes them for display, and
// keeps read failures from ever reaching the chat path.
//
// Drivers are pluggable via configuration:
//
//	[memory]
//	provider = "local"   # or "mem0", "vectorstore"
package memory

import (
	"context"
	"strconv"
	"time"
)

// Driver stores and searches memory entries. It holds no per-user state:
// every call names the user it acts for.
type Driver interface {
	// Add stores a new memory entry for the user.
	Add(ctx context.Context, userID, content string, meta Metadata) error

	// Search returns up to limit entries relevant to query, best match first.
	Search(ctx context.Context, userID, query string, limit int) ([]Entry, error)

	// List returns every entry stored for the user.
	List(ctx context.Context, userID string) ([]Entry, error)

	// Delete removes a single entry.
	Delete(ctx context.Context, userID, entryID string) error

	// Close releases driver resources.
	Close() error
}

// Entry is a stored memory. Its category is derived at read time by
// Classify and never stored.
type Entry struct {
	ID        string    `json:"id"`
	UserID    string    `json:"user_id"`
	Content   string    `json:"content"`
	Metadata  Metadata  `json:"metadata"`
	CreatedAt time.Time `json:"created_at"`
}

// Metadata is attached to every entry produced from a chat exchange.
type Metadata struct {
	ConversationID string `json:"conversation_id,omitempty"`

	// Timestamp is RFC 3339. Entries without one are never aged out.
	Timestamp    string `json:"timestamp,omitempty"`
	MessageCount int    `json:"message_count,omitempty"`
	Source       string `json:"source,omitempty"`
}

// Time parses the metadata timestamp. ok is false when it is missing or
// malformed.
func (m Metadata) Time() (t time.Time, ok bool) {
	if m.Timestamp == "" {
		return time.Time{}, false
	}
	t, err := time.Parse(time.RFC3339, m.Timestamp)
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}

// Map flattens the metadata into string pairs for backends with flat
// metadata stores.
func (m Metadata) Map() map[string]string {
	out := make(map[string]string, 4)
	if m.ConversationID != "" {
		out["conversation_id"] = m.ConversationID
	}
	if m.Timestamp != "" {
		out["timestamp"] = m.Timestamp
	}
	if m.MessageCount != 0 {
		out["message_count"] = strconv.Itoa(m.MessageCount)
	}
	if m.Source != "" {
		out["source"] = m.Source
	}
	return out
}

// MetadataFromMap is the inverse of Metadata.Map.
func MetadataFromMap(in map[string]string) Metadata {
	n, _ := strconv.Atoi(in["message_count"])
	return Metadata{
		ConversationID: in["conversation_id"],
		Timestamp:      in["timestamp"],
		MessageCount:   n,
		Source:         in["source"],
	}
}
