// Package entdriver implements the message store on top of ent's SQL
// dialect layer. It is database-agnostic and is embedded by the sqlite and
// postgres drivers.
package entdriver

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"entgo.io/ent/dialect"
	entsql "entgo.io/ent/dialect/sql"
	entschema "entgo.io/ent/dialect/sql/schema"
	"github.com/google/uuid"

	"github.com/papercomputeco/recall/pkg/conversation"
	"github.com/papercomputeco/recall/pkg/storage"
	"github.com/papercomputeco/recall/pkg/storage/ent/schema"
)

var conversationColumns = []string{
	"id", "owner_id", "title", "is_shared", "share_token",
	"created_at", "updated_at", "last_message_at",
}

var messageColumns = []string{
	"seq", "message_id", "client_id", "role", "content", "parts", "created_at",
}

// EntDriver provides storage operations over an ent SQL driver.
type EntDriver struct {
	Driver *entsql.Driver
}

// New wraps an ent SQL driver and runs the schema migration.
func New(ctx context.Context, drv *entsql.Driver) (*EntDriver, error) {
	m, err := entschema.NewMigrate(drv)
	if err != nil {
		return nil, fmt.Errorf("failed to create migrator: %w", err)
	}

	// Auto-migration handles append-only schema changes (new tables,
	// columns, indexes).
	if err := m.Create(ctx, schema.Tables...); err != nil {
		return nil, fmt.Errorf("failed to create schema: %w", err)
	}

	return &EntDriver{Driver: drv}, nil
}

type querier interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// storedMessage pairs a message with its insertion sequence number.
type storedMessage struct {
	seq int64
	msg conversation.Message
}

func (ed *EntDriver) builder() *entsql.DialectBuilder {
	return entsql.Dialect(ed.Driver.Dialect())
}

func (ed *EntDriver) db() *sql.DB {
	return ed.Driver.DB()
}

// CreateConversation inserts a new empty conversation.
func (ed *EntDriver) CreateConversation(ctx context.Context, ownerID, title string) (*conversation.Conversation, error) {
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

	query, args := ed.builder().Insert(schema.ConversationsTableName).
		Columns("id", "owner_id", "title", "is_shared", "created_at", "updated_at", "last_message_at").
		Values(c.ID, c.OwnerID, c.Title, false, now, now, now).
		Query()
	if _, err := ed.db().ExecContext(ctx, query, args...); err != nil {
		return nil, fmt.Errorf("could not create conversation: %w", err)
	}

	return c, nil
}

// GetConversation fetches a conversation and its messages.
func (ed *EntDriver) GetConversation(ctx context.Context, id, ownerID string) (*conversation.Conversation, error) {
	c, err := ed.loadConversation(ctx, ed.db(), id, false)
	if err != nil {
		return nil, err
	}
	if ownerID != "" && c.OwnerID != ownerID {
		return nil, storage.ConversationNotFound(id)
	}

	stored, err := ed.loadMessages(ctx, ed.db(), id)
	if err != nil {
		return nil, err
	}
	c.Messages = messagesOf(stored)

	return c, nil
}

// ListConversations returns summaries for an owner, most recently active first.
func (ed *EntDriver) ListConversations(ctx context.Context, ownerID string) ([]conversation.Summary, error) {
	query, args := ed.builder().Select(conversationColumns...).
		From(entsql.Table(schema.ConversationsTableName)).
		Where(entsql.EQ("owner_id", ownerID)).
		OrderBy(entsql.Desc("last_message_at"), entsql.Desc("updated_at")).
		Query()

	rows, err := ed.db().QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list conversations: %w", err)
	}
	defer rows.Close()

	summaries := []conversation.Summary{}
	ids := []any{}
	for rows.Next() {
		c, err := scanConversation(rows)
		if err != nil {
			return nil, err
		}
		summaries = append(summaries, c.Summarize())
		ids = append(ids, c.ID)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate conversations: %w", err)
	}
	if len(ids) == 0 {
		return summaries, nil
	}

	counts, err := ed.countMessages(ctx, ids)
	if err != nil {
		return nil, err
	}
	for i := range summaries {
		summaries[i].MessageCount = counts[summaries[i].ID]
	}

	return summaries, nil
}

// AppendMessages idempotently appends messages, creating the conversation
// when it does not exist yet.
func (ed *EntDriver) AppendMessages(ctx context.Context, id, ownerID string, msgs []conversation.Message) (*storage.AppendResult, error) {
	prepared, err := storage.PrepareMessages(msgs)
	if err != nil {
		return nil, err
	}

	result := &storage.AppendResult{}
	err = ed.withTx(ctx, func(tx *sql.Tx) error {
		now := time.Now().UTC()

		query, args := ed.builder().Insert(schema.ConversationsTableName).
			Columns("id", "owner_id", "title", "is_shared", "created_at", "updated_at", "last_message_at").
			Values(id, ownerID, conversation.DefaultTitle, false, now, now, now).
			OnConflict(entsql.ConflictColumns("id"), entsql.DoNothing()).
			Query()
		res, err := tx.ExecContext(ctx, query, args...)
		if err != nil {
			return fmt.Errorf("could not upsert conversation: %w", err)
		}
		if n, err := res.RowsAffected(); err == nil && n > 0 {
			result.Created = true
		}

		// Lock the conversation row so concurrent appends see each other's
		// messages before filtering.
		c, err := ed.loadConversation(ctx, tx, id, true)
		if err != nil {
			return err
		}
		if c.OwnerID != ownerID {
			return storage.ConversationNotFound(id)
		}

		stored, err := ed.loadMessages(ctx, tx, id)
		if err != nil {
			return err
		}
		existing := messagesOf(stored)

		fresh := storage.FilterNew(existing, prepared)
		if len(fresh) > 0 {
			if err := ed.insertMessages(ctx, tx, id, fresh); err != nil {
				return err
			}
			last := fresh[len(fresh)-1].Timestamp
			if err := ed.touch(ctx, tx, id, now, last); err != nil {
				return err
			}
			c.UpdatedAt = now
			c.LastMessageAt = last
		}

		c.Messages = append(existing, fresh...)
		result.Conversation = c
		result.Appended = conversation.CloneMessages(fresh)
		return nil
	})
	if err != nil {
		return nil, err
	}

	return result, nil
}

// SetTitle overwrites the conversation title.
func (ed *EntDriver) SetTitle(ctx context.Context, id, ownerID, title string) error {
	query, args := ed.builder().Update(schema.ConversationsTableName).
		Set("title", title).
		Set("updated_at", time.Now().UTC()).
		Where(ownedBy(id, ownerID)).
		Query()

	return ed.execOwned(ctx, ed.db(), id, query, args)
}

// ReplaceMessageAndTruncate replaces a message and drops everything after it.
func (ed *EntDriver) ReplaceMessageAndTruncate(ctx context.Context, id, ownerID, messageID string, newMsg conversation.Message) ([]conversation.Message, error) {
	var out []conversation.Message
	err := ed.withTx(ctx, func(tx *sql.Tx) error {
		stored, err := ed.lockOwned(ctx, tx, id, ownerID)
		if err != nil {
			return err
		}

		idx := indexOfStored(stored, messageID)
		if idx < 0 {
			return storage.MessageNotFound(messageID)
		}

		msgs, err := storage.ReplaceAndTruncate(messagesOf(stored), messageID, newMsg)
		if err != nil {
			return err
		}
		replacement := msgs[len(msgs)-1]

		parts, err := json.Marshal(replacement.Parts)
		if err != nil {
			return fmt.Errorf("failed to marshal parts: %w", err)
		}

		query, args := ed.builder().Update(schema.MessagesTableName).
			Set("content", replacement.Content).
			Set("parts", string(parts)).
			Set("created_at", replacement.Timestamp).
			Where(entsql.EQ("seq", stored[idx].seq)).
			Query()
		if _, err := tx.ExecContext(ctx, query, args...); err != nil {
			return fmt.Errorf("failed to replace message: %w", err)
		}

		if err := ed.deleteFrom(ctx, tx, id, stored[idx].seq+1); err != nil {
			return err
		}
		if err := ed.retouch(ctx, tx, id, time.Now().UTC(), msgs); err != nil {
			return err
		}

		out = msgs
		return nil
	})
	if err != nil {
		return nil, err
	}

	return out, nil
}

// TruncateFrom removes a message and everything after it.
func (ed *EntDriver) TruncateFrom(ctx context.Context, id, ownerID, messageID string) ([]conversation.Message, error) {
	var out []conversation.Message
	err := ed.withTx(ctx, func(tx *sql.Tx) error {
		stored, err := ed.lockOwned(ctx, tx, id, ownerID)
		if err != nil {
			return err
		}

		idx := indexOfStored(stored, messageID)
		if idx < 0 {
			return storage.MessageNotFound(messageID)
		}

		out = messagesOf(stored[:idx])
		if err := ed.deleteFrom(ctx, tx, id, stored[idx].seq); err != nil {
			return err
		}
		if err := ed.retouch(ctx, tx, id, time.Now().UTC(), out); err != nil {
			return err
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	return out, nil
}

// DeleteConversation removes a conversation and its messages.
func (ed *EntDriver) DeleteConversation(ctx context.Context, id, ownerID string) error {
	return ed.withTx(ctx, func(tx *sql.Tx) error {
		if _, err := ed.lockOwned(ctx, tx, id, ownerID); err != nil {
			return err
		}

		if err := ed.deleteFrom(ctx, tx, id, 0); err != nil {
			return err
		}

		query, args := ed.builder().Delete(schema.ConversationsTableName).
			Where(entsql.EQ("id", id)).
			Query()
		if _, err := tx.ExecContext(ctx, query, args...); err != nil {
			return fmt.Errorf("failed to delete conversation: %w", err)
		}
		return nil
	})
}

// ShareConversation marks a conversation shared and returns its token.
func (ed *EntDriver) ShareConversation(ctx context.Context, id, ownerID string) (string, error) {
	var token string
	err := ed.withTx(ctx, func(tx *sql.Tx) error {
		c, err := ed.loadConversation(ctx, tx, id, true)
		if err != nil {
			return err
		}
		if ownerID != "" && c.OwnerID != ownerID {
			return storage.ConversationNotFound(id)
		}
		if c.IsShared && c.ShareToken != "" {
			token = c.ShareToken
			return nil
		}

		token, err = storage.NewShareToken()
		if err != nil {
			return err
		}

		query, args := ed.builder().Update(schema.ConversationsTableName).
			Set("is_shared", true).
			Set("share_token", token).
			Set("updated_at", time.Now().UTC()).
			Where(entsql.EQ("id", id)).
			Query()
		if _, err := tx.ExecContext(ctx, query, args...); err != nil {
			return fmt.Errorf("failed to share conversation: %w", err)
		}
		return nil
	})
	if err != nil {
		return "", err
	}

	return token, nil
}

// UnshareConversation revokes the share token.
func (ed *EntDriver) UnshareConversation(ctx context.Context, id, ownerID string) error {
	query, args := ed.builder().Update(schema.ConversationsTableName).
		Set("is_shared", false).
		SetNull("share_token").
		Set("updated_at", time.Now().UTC()).
		Where(ownedBy(id, ownerID)).
		Query()

	return ed.execOwned(ctx, ed.db(), id, query, args)
}

// GetSharedConversation looks up a shared conversation by token.
func (ed *EntDriver) GetSharedConversation(ctx context.Context, token string) (*conversation.Conversation, error) {
	if token == "" {
		return nil, storage.ConversationNotFound("")
	}

	query, args := ed.builder().Select(conversationColumns...).
		From(entsql.Table(schema.ConversationsTableName)).
		Where(entsql.And(entsql.EQ("share_token", token), entsql.EQ("is_shared", true))).
		Query()

	rows, err := ed.db().QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query shared conversation: %w", err)
	}
	defer rows.Close()

	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return nil, fmt.Errorf("failed to query shared conversation: %w", err)
		}
		return nil, storage.ConversationNotFound("")
	}
	c, err := scanConversation(rows)
	if err != nil {
		return nil, err
	}
	rows.Close()

	stored, err := ed.loadMessages(ctx, ed.db(), c.ID)
	if err != nil {
		return nil, err
	}
	c.Messages = messagesOf(stored)

	return c, nil
}

// Close closes the underlying database connection.
func (ed *EntDriver) Close() error {
	return ed.Driver.Close()
}

func (ed *EntDriver) withTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := ed.db().BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	if err := fn(tx); err != nil {
		if rerr := tx.Rollback(); rerr != nil {
			return errors.Join(err, rerr)
		}
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// loadConversation reads a conversation row without its messages. When lock
// is set on a dialect that supports it, the row is locked for the rest of
// the transaction.
func (ed *EntDriver) loadConversation(ctx context.Context, q querier, id string, lock bool) (*conversation.Conversation, error) {
	sel := ed.builder().Select(conversationColumns...).
		From(entsql.Table(schema.ConversationsTableName)).
		Where(entsql.EQ("id", id))
	if lock && ed.Driver.Dialect() == dialect.Postgres {
		sel = sel.ForUpdate()
	}
	query, args := sel.Query()

	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query conversation: %w", err)
	}
	defer rows.Close()

	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return nil, fmt.Errorf("failed to query conversation: %w", err)
		}
		return nil, storage.ConversationNotFound(id)
	}

	c, err := scanConversation(rows)
	if err != nil {
		return nil, err
	}
	c.Messages = []conversation.Message{}
	return c, nil
}

// lockOwned locks the conversation, verifies the owner, and returns its
// messages.
func (ed *EntDriver) lockOwned(ctx context.Context, tx *sql.Tx, id, ownerID string) ([]storedMessage, error) {
	c, err := ed.loadConversation(ctx, tx, id, true)
	if err != nil {
		return nil, err
	}
	if ownerID != "" && c.OwnerID != ownerID {
		return nil, storage.ConversationNotFound(id)
	}
	return ed.loadMessages(ctx, tx, id)
}

func (ed *EntDriver) loadMessages(ctx context.Context, q querier, id string) ([]storedMessage, error) {
	query, args := ed.builder().Select(messageColumns...).
		From(entsql.Table(schema.MessagesTableName)).
		Where(entsql.EQ("conversation_id", id)).
		OrderBy("seq").
		Query()

	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query messages: %w", err)
	}
	defer rows.Close()

	var stored []storedMessage
	for rows.Next() {
		var (
			sm       storedMessage
			clientID sql.NullString
			parts    []byte
		)
		if err := rows.Scan(&sm.seq, &sm.msg.ID, &clientID, &sm.msg.Role, &sm.msg.Content, &parts, &sm.msg.Timestamp); err != nil {
			return nil, fmt.Errorf("failed to scan message: %w", err)
		}
		sm.msg.ClientID = clientID.String
		if len(parts) > 0 {
			if err := json.Unmarshal(parts, &sm.msg.Parts); err != nil {
				return nil, fmt.Errorf("failed to unmarshal parts: %w", err)
			}
		}
		sm.msg.Normalize()
		stored = append(stored, sm)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate messages: %w", err)
	}

	return stored, nil
}

func (ed *EntDriver) insertMessages(ctx context.Context, tx *sql.Tx, id string, msgs []conversation.Message) error {
	insert := ed.builder().Insert(schema.MessagesTableName).
		Columns("conversation_id", "message_id", "client_id", "role", "content", "parts", "created_at")

	for _, m := range msgs {
		parts, err := json.Marshal(m.Parts)
		if err != nil {
			return fmt.Errorf("failed to marshal parts: %w", err)
		}

		var clientID any
		if m.ClientID != "" {
			clientID = m.ClientID
		}
		insert = insert.Values(id, m.ID, clientID, m.Role, m.Content, string(parts), m.Timestamp)
	}

	query, args := insert.
		OnConflict(entsql.ConflictColumns("conversation_id", "message_id"), entsql.DoNothing()).
		Query()
	if _, err := tx.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("could not insert messages: %w", err)
	}
	return nil
}

// deleteFrom removes every message of the conversation with seq >= from.
func (ed *EntDriver) deleteFrom(ctx context.Context, tx *sql.Tx, id string, from int64) error {
	query, args := ed.builder().Delete(schema.MessagesTableName).
		Where(entsql.And(entsql.EQ("conversation_id", id), entsql.GTE("seq", from))).
		Query()
	if _, err := tx.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("failed to delete messages: %w", err)
	}
	return nil
}

func (ed *EntDriver) touch(ctx context.Context, tx *sql.Tx, id string, now, lastMessageAt time.Time) error {
	query, args := ed.builder().Update(schema.ConversationsTableName).
		Set("updated_at", now).
		Set("last_message_at", lastMessageAt).
		Where(entsql.EQ("id", id)).
		Query()
	if _, err := tx.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("failed to update conversation: %w", err)
	}
	return nil
}

// retouch is touch after a rewrite: last_message_at follows the last
// remaining message, or falls back to created_at when none remain.
func (ed *EntDriver) retouch(ctx context.Context, tx *sql.Tx, id string, now time.Time, remaining []conversation.Message) error {
	update := ed.builder().Update(schema.ConversationsTableName).
		Set("updated_at", now)
	if len(remaining) > 0 {
		update = update.Set("last_message_at", remaining[len(remaining)-1].Timestamp)
	} else {
		update = update.Set("last_message_at", ed.builder().Expr(func(b *entsql.Builder) { b.Ident("created_at") }))
	}

	query, args := update.Where(entsql.EQ("id", id)).Query()
	if _, err := tx.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("failed to update conversation: %w", err)
	}
	return nil
}

// execOwned runs an owner-scoped update and maps "no rows" to not found.
func (ed *EntDriver) execOwned(ctx context.Context, q querier, id, query string, args []any) error {
	res, err := q.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("failed to update conversation: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to update conversation: %w", err)
	}
	if n == 0 {
		return storage.ConversationNotFound(id)
	}
	return nil
}

func (ed *EntDriver) countMessages(ctx context.Context, ids []any) (map[string]int, error) {
	query, args := ed.builder().Select("conversation_id", entsql.Count("*")).
		From(entsql.Table(schema.MessagesTableName)).
		Where(entsql.In("conversation_id", ids...)).
		GroupBy("conversation_id").
		Query()

	rows, err := ed.db().QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to count messages: %w", err)
	}
	defer rows.Close()

	counts := make(map[string]int, len(ids))
	for rows.Next() {
		var (
			id string
			n  int
		)
		if err := rows.Scan(&id, &n); err != nil {
			return nil, fmt.Errorf("failed to scan message count: %w", err)
		}
		counts[id] = n
	}
	return counts, rows.Err()
}

func ownedBy(id, ownerID string) *entsql.Predicate {
	if ownerID == "" {
		return entsql.EQ("id", id)
	}
	return entsql.And(entsql.EQ("id", id), entsql.EQ("owner_id", ownerID))
}

func scanConversation(rows *sql.Rows) (*conversation.Conversation, error) {
	var (
		c     conversation.Conversation
		token sql.NullString
	)
	if err := rows.Scan(&c.ID, &c.OwnerID, &c.Title, &c.IsShared, &token, &c.CreatedAt, &c.UpdatedAt, &c.LastMessageAt); err != nil {
		return nil, fmt.Errorf("failed to scan conversation: %w", err)
	}
	c.ShareToken = token.String
	return &c, nil
}

func messagesOf(stored []storedMessage) []conversation.Message {
	out := make([]conversation.Message, 0, len(stored))
	for _, sm := range stored {
		out = append(out, sm.msg)
	}
	return out
}

func indexOfStored(stored []storedMessage, messageID string) int {
	for i := range stored {
		if stored[i].msg.ID == messageID {
			return i
		}
	}
	return -1
}
