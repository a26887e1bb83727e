// Package conversation defines the conversation domain model shared by the
// message store, the orchestrator, and the HTTP API.
package conversation

import (
	"strings"
	"time"

	"github.com/papercomputeco/recall/pkg/utils"
)

const (
	// DefaultTitle is the title of a conversation until its first user turn
	// sets one.
	DefaultTitle = "New Chat"

	// maxTitleLength is the number of characters of the first user message
	// kept in a generated title before the ellipsis.
	maxTitleLength = 50

	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleSystem    = "system"

	PartTypeText = "text"
	PartTypeFile = "file"
)

// Conversation is one titled chat thread owned by a single user.
type Conversation struct {
	ID            string    `json:"id"`
	OwnerID       string    `json:"ownerId,omitempty"`
	Title         string    `json:"title"`
	Messages      []Message `json:"messages"`
	IsShared      bool      `json:"isShared"`
	ShareToken    string    `json:"shareToken,omitempty"`
	CreatedAt     time.Time `json:"createdAt"`
	UpdatedAt     time.Time `json:"updatedAt"`
	LastMessageAt time.Time `json:"lastMessageAt"`
}

// Summary is the list view of a conversation. It carries no message bodies.
type Summary struct {
	ID            string    `json:"id"`
	Title         string    `json:"title"`
	IsShared      bool      `json:"isShared"`
	ShareToken    string    `json:"shareToken,omitempty"`
	CreatedAt     time.Time `json:"createdAt"`
	UpdatedAt     time.Time `json:"updatedAt"`
	LastMessageAt time.Time `json:"lastMessageAt"`
	MessageCount  int       `json:"messageCount"`
}

// Summarize returns the list view of c.
func (c *Conversation) Summarize() Summary {
	return Summary{
		ID:            c.ID,
		Title:         c.Title,
		IsShared:      c.IsShared,
		ShareToken:    c.ShareToken,
		CreatedAt:     c.CreatedAt,
		UpdatedAt:     c.UpdatedAt,
		LastMessageAt: c.LastMessageAt,
		MessageCount:  len(c.Messages),
	}
}

// HasDefaultTitle reports whether the conversation still carries the title it
// was created with.
func (c *Conversation) HasDefaultTitle() bool {
	return c.Title == "" || c.Title == DefaultTitle
}

// FindMessage returns the index of the message with the given id, or -1.
func (c *Conversation) FindMessage(id string) int {
	return IndexOf(c.Messages, id)
}

// IndexOf returns the index of the message with the given id in msgs, or -1.
func IndexOf(msgs []Message, id string) int {
	for i := range msgs {
		if msgs[i].ID == id {
			return i
		}
	}
	return -1
}

// GenerateTitle derives a conversation title from the first user message.
func GenerateTitle(text string) string {
	text = strings.TrimSpace(text)
	if text == "" {
		return DefaultTitle
	}
	return utils.Truncate(text, maxTitleLength)
}
