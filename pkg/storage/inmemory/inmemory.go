// Package inmemory provides a map-backed message store for tests and
// ephemeral runs.
package inmemory

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/papercomputeco/recall/pkg/conversation"
	"github.com/papercomputeco/recall/pkg/storage"
)

// Driver implements storage.Driver using an in-memory map.
type Driver struct {
	// mu serializes every mutation so appends to the same conversation
	// observe each other's writes.
	mu sync.RWMutex

	// conversations is keyed by conversation id
	conversations map[string]*conversation.Conversation

	// shared maps a share token to a conversation id
	shared map[string]string
}

// NewDriver creates a new in-memory store.
func NewDriver() *Driver {
	return &Driver{
		conversations: make(map[string]*conversation.Conversation),
		shared:        make(map[string]string),
	}
}

// CreateConversation inserts a new empty conversation.
func (d *Driver) CreateConversation(_ context.Context, ownerID, title string) (*conversation.Conversation, error) {
	if title == "" {
		title = conversation.DefaultTitle
	}

	now := time.Now().UTC()
	c := &conversation.Conversation{
		ID:            uuid.NewString(),
		OwnerID:       ownerID,
		Title:         title,
		Messages:      []conversation.Message{},
		CreatedAt:     now,
		UpdatedAt:     now,
		LastMessageAt: now,
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	d.conversations[c.ID] = c

	return cloneConversation(c), nil
}

// GetConversation fetches a conversation by id.
func (d *Driver) GetConversation(_ context.Context, id, ownerID string) (*conversation.Conversation, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	c, err := d.lookup(id, ownerID)
	if err != nil {
		return nil, err
	}
	return cloneConversation(c), nil
}

// ListConversations returns summaries for an owner, most recently active first.
func (d *Driver) ListConversations(_ context.Context, ownerID string) ([]conversation.Summary, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	summaries := []conversation.Summary{}
	for _, c := range d.conversations {
		if c.OwnerID == ownerID {
			summaries = append(summaries, c.Summarize())
		}
	}
	storage.SortSummaries(summaries)

	return summaries, nil
}

// AppendMessages idempotently appends messages, creating the conversation
// when it does not exist.
func (d *Driver) AppendMessages(_ context.Context, id, ownerID string, msgs []conversation.Message) (*storage.AppendResult, error) {
	prepared, err := storage.PrepareMessages(msgs)
	if err != nil {
		return nil, err
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	result := &storage.AppendResult{}
	c, ok := d.conversations[id]
	switch {
	case !ok:
		now := time.Now().UTC()
		c = &conversation.Conversation{
			ID:            id,
			OwnerID:       ownerID,
			Title:         conversation.DefaultTitle,
			Messages:      []conversation.Message{},
			CreatedAt:     now,
			UpdatedAt:     now,
			LastMessageAt: now,
		}
		d.conversations[id] = c
		result.Created = true
	case c.OwnerID != ownerID:
		return nil, storage.ConversationNotFound(id)
	}

	fresh := storage.FilterNew(c.Messages, prepared)
	if len(fresh) > 0 {
		c.Messages = append(c.Messages, fresh...)
		c.UpdatedAt = time.Now().UTC()
		c.LastMessageAt = fresh[len(fresh)-1].Timestamp
	}

	result.Conversation = cloneConversation(c)
	result.Appended = conversation.CloneMessages(fresh)
	return result, nil
}

// SetTitle overwrites the conversation title.
func (d *Driver) SetTitle(_ context.Context, id, ownerID, title string) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	c, err := d.lookup(id, ownerID)
	if err != nil {
		return err
	}
	c.Title = title
	c.UpdatedAt = time.Now().UTC()
	return nil
}

// ReplaceMessageAndTruncate replaces a message and drops everything after it.
func (d *Driver) ReplaceMessageAndTruncate(_ context.Context, id, ownerID, messageID string, newMsg conversation.Message) ([]conversation.Message, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	c, err := d.lookup(id, ownerID)
	if err != nil {
		return nil, err
	}

	msgs, err := storage.ReplaceAndTruncate(c.Messages, messageID, newMsg)
	if err != nil {
		return nil, err
	}
	d.setMessages(c, msgs)

	return conversation.CloneMessages(msgs), nil
}

// TruncateFrom removes a message and everything after it.
func (d *Driver) TruncateFrom(_ context.Context, id, ownerID, messageID string) ([]conversation.Message, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	c, err := d.lookup(id, ownerID)
	if err != nil {
		return nil, err
	}

	msgs, err := storage.TruncateFrom(c.Messages, messageID)
	if err != nil {
		return nil, err
	}
	d.setMessages(c, msgs)

	return conversation.CloneMessages(msgs), nil
}

// DeleteConversation removes a conversation.
func (d *Driver) DeleteConversation(_ context.Context, id, ownerID string) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	c, err := d.lookup(id, ownerID)
	if err != nil {
		return err
	}
	if c.ShareToken != "" {
		delete(d.shared, c.ShareToken)
	}
	delete(d.conversations, id)
	return nil
}

// ShareConversation marks a conversation shared and returns its token.
func (d *Driver) ShareConversation(_ context.Context, id, ownerID string) (string, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	c, err := d.lookup(id, ownerID)
	if err != nil {
		return "", err
	}
	if c.IsShared && c.ShareToken != "" {
		return c.ShareToken, nil
	}

	token, err := storage.NewShareToken()
	if err != nil {
		return "", err
	}
	c.IsShared = true
	c.ShareToken = token
	c.UpdatedAt = time.Now().UTC()
	d.shared[token] = id

	return token, nil
}

// UnshareConversation revokes the share token.
func (d *Driver) UnshareConversation(_ context.Context, id, ownerID string) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	c, err := d.lookup(id, ownerID)
	if err != nil {
		return err
	}
	if c.ShareToken != "" {
		delete(d.shared, c.ShareToken)
	}
	c.IsShared = false
	c.ShareToken = ""
	c.UpdatedAt = time.Now().UTC()
	return nil
}

// GetSharedConversation looks up a shared conversation by token.
func (d *Driver) GetSharedConversation(_ context.Context, token string) (*conversation.Conversation, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	id, ok := d.shared[token]
	if !ok || token == "" {
		return nil, storage.ConversationNotFound("")
	}
	c, ok := d.conversations[id]
	if !ok || !c.IsShared {
		return nil, storage.ConversationNotFound("")
	}
	return cloneConversation(c), nil
}

// Close is a no-op for the in-memory store.
func (d *Driver) Close() error {
	return nil
}

// lookup must be called with d.mu held.
func (d *Driver) lookup(id, ownerID string) (*conversation.Conversation, error) {
	c, ok := d.conversations[id]
	if !ok || (ownerID != "" && c.OwnerID != ownerID) {
		return nil, storage.ConversationNotFound(id)
	}
	return c, nil
}

func (d *Driver) setMessages(c *conversation.Conversation, msgs []conversation.Message) {
	c.Messages = conversation.CloneMessages(msgs)
	c.UpdatedAt = time.Now().UTC()
	c.LastMessageAt = storage.LastMessageAt(c.Messages, c.CreatedAt)
}

func cloneConversation(c *conversation.Conversation) *conversation.Conversation {
	out := *c
	out.Messages = conversation.CloneMessages(c.Messages)
	if out.Messages == nil {
		out.Messages = []conversation.Message{}
	}
	return &out
}
