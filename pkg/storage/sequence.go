package storage

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/papercomputeco/recall/pkg/conversation"
)

// shareTokenBytes yields a 32 character URL-safe token.
const shareTokenBytes = 24

// PrepareMessages validates and normalizes messages before they are stored,
// assigning a durable id to any message without one.
func PrepareMessages(msgs []conversation.Message) ([]conversation.Message, error) {
	out := make([]conversation.Message, 0, len(msgs))
	for _, m := range msgs {
		m = m.Clone()
		if m.Role != conversation.RoleUser && m.Role != conversation.RoleAssistant {
			return nil, fmt.Errorf("%w: unsupported role %q", ErrInvalidMessage, m.Role)
		}
		if m.ID == "" {
			m.ID = uuid.NewString()
		}
		m.Normalize()
		out = append(out, m)
	}
	return out, nil
}

// FilterNew returns the incoming messages that are not already present in
// existing. A message is present when its id, or its non-empty client id,
// matches a stored message. Repeats within incoming are dropped as well, so
// the result preserves the order of first occurrence.
func FilterNew(existing, incoming []conversation.Message) []conversation.Message {
	ids := make(map[string]struct{}, len(existing)+len(incoming))
	clientIDs := make(map[string]struct{})
	for _, m := range existing {
		ids[m.ID] = struct{}{}
		if m.ClientID != "" {
			clientIDs[m.ClientID] = struct{}{}
		}
	}

	var fresh []conversation.Message
	for _, m := range incoming {
		if _, ok := ids[m.ID]; ok && m.ID != "" {
			continue
		}
		if m.ClientID != "" {
			if _, ok := clientIDs[m.ClientID]; ok {
				continue
			}
			clientIDs[m.ClientID] = struct{}{}
		}
		if m.ID != "" {
			ids[m.ID] = struct{}{}
		}
		fresh = append(fresh, m)
	}
	return fresh
}

// BuildReplacement returns the message that replaces original in an edit: it
// keeps the original id, client id, and role, takes its text from newMsg, and
// carries over every file part of original. File parts on newMsg are ignored.
func BuildReplacement(original, newMsg conversation.Message) conversation.Message {
	replacement := conversation.Message{
		ID:        original.ID,
		ClientID:  original.ClientID,
		Role:      original.Role,
		Parts:     []conversation.Part{{Type: conversation.PartTypeText, Text: newMsg.Text()}},
		Timestamp: newMsg.Timestamp,
	}

	kept := original.Clone()
	replacement.Parts = append(replacement.Parts, kept.FileParts()...)

	replacement.Normalize()
	return replacement
}

// ReplaceAndTruncate returns msgs truncated to everything before messageID
// followed by its replacement. It returns a MessageNotFound error when
// messageID is absent.
func ReplaceAndTruncate(msgs []conversation.Message, messageID string, newMsg conversation.Message) ([]conversation.Message, error) {
	idx := conversation.IndexOf(msgs, messageID)
	if idx < 0 {
		return nil, MessageNotFound(messageID)
	}

	out := conversation.CloneMessages(msgs[:idx])
	return append(out, BuildReplacement(msgs[idx], newMsg)), nil
}

// TruncateFrom returns msgs without messageID and everything after it. It
// returns a MessageNotFound error when messageID is absent.
func TruncateFrom(msgs []conversation.Message, messageID string) ([]conversation.Message, error) {
	idx := conversation.IndexOf(msgs, messageID)
	if idx < 0 {
		return nil, MessageNotFound(messageID)
	}

	out := conversation.CloneMessages(msgs[:idx])
	if out == nil {
		out = []conversation.Message{}
	}
	return out, nil
}

// LastMessageAt returns the timestamp a conversation holding msgs should
// report as its latest activity: the timestamp of the last message, or
// fallback when msgs is empty.
func LastMessageAt(msgs []conversation.Message, fallback time.Time) time.Time {
	if len(msgs) == 0 {
		return fallback
	}
	return msgs[len(msgs)-1].Timestamp
}

// SortSummaries orders summaries by last message time, then last update
// time, most recent first.
func SortSummaries(summaries []conversation.Summary) {
	sort.SliceStable(summaries, func(i, j int) bool {
		a, b := summaries[i], summaries[j]
		if !a.LastMessageAt.Equal(b.LastMessageAt) {
			return a.LastMessageAt.After(b.LastMessageAt)
		}
		return a.UpdatedAt.After(b.UpdatedAt)
	})
}

// NewShareToken returns an opaque, high-entropy token for read-only access to
// a shared conversation.
func NewShareToken() (string, error) {
	b := make([]byte, shareTokenBytes)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("generating share token: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}
