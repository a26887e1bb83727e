// Package mongo provides a MongoDB-backed message store. Each conversation is
// one document holding its ordered message array.
package mongo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/papercomputeco/recall/pkg/conversation"
	"github.com/papercomputeco/recall/pkg/storage"
)

const (
	// DefaultDatabase is used when no database name is configured.
	DefaultDatabase = "recall"

	collectionName = "conversations"

	// rewriteAttempts bounds the optimistic retries of edits that rewrite
	// the message array.
	rewriteAttempts = 3
)

var errConcurrentEdit = errors.New("conversation modified concurrently")

// Driver implements storage.Driver using MongoDB.
type Driver struct {
	client *mongo.Client
	coll   *mongo.Collection
}

type conversationDoc struct {
	ID            string       `bson:"_id"`
	OwnerID       string       `bson:"owner_id"`
	Title         string       `bson:"title"`
	Messages      []messageDoc `bson:"messages"`
	IsShared      bool         `bson:"is_shared"`
	ShareToken    string       `bson:"share_token,omitempty"`
	CreatedAt     time.Time    `bson:"created_at"`
	UpdatedAt     time.Time    `bson:"updated_at"`
	LastMessageAt time.Time    `bson:"last_message_at"`
}

type messageDoc struct {
	ID        string    `bson:"id"`
	ClientID  string    `bson:"client_id,omitempty"`
	Role      string    `bson:"role"`
	Content   string    `bson:"content"`
	Parts     []partDoc `bson:"parts"`
	Timestamp time.Time `bson:"timestamp"`
}

type partDoc struct {
	Type string   `bson:"type"`
	Text string   `bson:"text,omitempty"`
	File *fileDoc `bson:"file,omitempty"`
}

type fileDoc struct {
	Name      string `bson:"name"`
	URL       string `bson:"url"`
	MediaType string `bson:"media_type"`
	Size      int64  `bson:"size,omitempty"`
	UUID      string `bson:"uuid,omitempty"`
}

type summaryDoc struct {
	ID            string    `bson:"_id"`
	Title         string    `bson:"title"`
	IsShared      bool      `bson:"is_shared"`
	ShareToken    string    `bson:"share_token,omitempty"`
	CreatedAt     time.Time `bson:"created_at"`
	UpdatedAt     time.Time `bson:"updated_at"`
	LastMessageAt time.Time `bson:"last_message_at"`
	MessageCount  int       `bson:"message_count"`
}

// NewDriver connects to MongoDB and ensures the collection indexes exist.
func NewDriver(ctx context.Context, uri, database string) (*Driver, error) {
	if database == "" {
		database = DefaultDatabase
	}

	client, err := mongo.Connect(options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to MongoDB: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(ctx)
		return nil, fmt.Errorf("failed to ping MongoDB: %w", err)
	}

	coll := client.Database(database).Collection(collectionName)
	_, err = coll.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "owner_id", Value: 1}, {Key: "last_message_at", Value: -1}}},
		{
			Keys:    bson.D{{Key: "share_token", Value: 1}},
			Options: options.Index().SetUnique(true).SetSparse(true),
		},
	})
	if err != nil {
		_ = client.Disconnect(ctx)
		return nil, fmt.Errorf("failed to create indexes: %w", err)
	}

	return &Driver{client: client, coll: coll}, nil
}

// CreateConversation inserts a new empty conversation.
func (d *Driver) CreateConversation(ctx context.Context, ownerID, title string) (*conversation.Conversation, error) {
	if title == "" {
		title = conversation.DefaultTitle
	}

	now := time.Now().UTC().Truncate(time.Millisecond)
	doc := conversationDoc{
		ID:            uuid.NewString(),
		OwnerID:       ownerID,
		Title:         title,
		Messages:      []messageDoc{},
		CreatedAt:     now,
		UpdatedAt:     now,
		LastMessageAt: now,
	}
	if _, err := d.coll.InsertOne(ctx, doc); err != nil {
		return nil, fmt.Errorf("could not create conversation: %w", err)
	}

	return doc.toConversation(), nil
}

// GetConversation fetches a conversation by id.
func (d *Driver) GetConversation(ctx context.Context, id, ownerID string) (*conversation.Conversation, error) {
	doc, err := d.find(ctx, id, ownerID)
	if err != nil {
		return nil, err
	}
	return doc.toConversation(), nil
}

// ListConversations returns summaries for an owner, most recently active first.
func (d *Driver) ListConversations(ctx context.Context, ownerID string) ([]conversation.Summary, error) {
	pipeline := mongo.Pipeline{
		{{Key: "$match", Value: bson.D{{Key: "owner_id", Value: ownerID}}}},
		{{Key: "$sort", Value: bson.D{{Key: "last_message_at", Value: -1}, {Key: "updated_at", Value: -1}}}},
		{{Key: "$project", Value: bson.D{
			{Key: "title", Value: 1},
			{Key: "is_shared", Value: 1},
			{Key: "share_token", Value: 1},
			{Key: "created_at", Value: 1},
			{Key: "updated_at", Value: 1},
			{Key: "last_message_at", Value: 1},
			{Key: "message_count", Value: bson.D{{Key: "$size", Value: "$messages"}}},
		}}},
	}

	cursor, err := d.coll.Aggregate(ctx, pipeline)
	if err != nil {
		return nil, fmt.Errorf("failed to list conversations: %w", err)
	}

	var docs []summaryDoc
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("failed to decode conversations: %w", err)
	}

	summaries := make([]conversation.Summary, 0, len(docs))
	for _, s := range docs {
		summaries = append(summaries, conversation.Summary{
			ID:            s.ID,
			Title:         s.Title,
			IsShared:      s.IsShared,
			ShareToken:    s.ShareToken,
			CreatedAt:     s.CreatedAt,
			UpdatedAt:     s.UpdatedAt,
			LastMessageAt: s.LastMessageAt,
			MessageCount:  s.MessageCount,
		})
	}
	return summaries, nil
}

// AppendMessages idempotently appends messages. Each message is pushed with
// a filter that only matches while its id is absent, so concurrent appends
// of the same message store it once.
func (d *Driver) AppendMessages(ctx context.Context, id, ownerID string, msgs []conversation.Message) (*storage.AppendResult, error) {
	prepared, err := storage.PrepareMessages(msgs)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC().Truncate(time.Millisecond)
	res, err := d.coll.UpdateOne(ctx,
		bson.D{{Key: "_id", Value: id}},
		bson.D{{Key: "$setOnInsert", Value: bson.D{
			{Key: "owner_id", Value: ownerID},
			{Key: "title", Value: conversation.DefaultTitle},
			{Key: "messages", Value: bson.A{}},
			{Key: "is_shared", Value: false},
			{Key: "created_at", Value: now},
			{Key: "updated_at", Value: now},
			{Key: "last_message_at", Value: now},
		}}},
		options.UpdateOne().SetUpsert(true),
	)
	if err != nil {
		return nil, fmt.Errorf("could not upsert conversation: %w", err)
	}

	result := &storage.AppendResult{Created: res.UpsertedCount > 0}

	doc, err := d.find(ctx, id, ownerID)
	if err != nil {
		return nil, err
	}
	if doc.OwnerID != ownerID {
		return nil, storage.ConversationNotFound(id)
	}

	for _, m := range storage.FilterNew(doc.messages(), prepared) {
		filter := bson.D{
			{Key: "_id", Value: id},
			{Key: "owner_id", Value: ownerID},
			{Key: "messages.id", Value: bson.D{{Key: "$ne", Value: m.ID}}},
		}
		if m.ClientID != "" {
			filter = append(filter, bson.E{Key: "messages.client_id", Value: bson.D{{Key: "$ne", Value: m.ClientID}}})
		}

		res, err := d.coll.UpdateOne(ctx, filter, bson.D{
			{Key: "$push", Value: bson.D{{Key: "messages", Value: toMessageDoc(m)}}},
			{Key: "$set", Value: bson.D{
				{Key: "updated_at", Value: time.Now().UTC().Truncate(time.Millisecond)},
				{Key: "last_message_at", Value: m.Timestamp},
			}},
		})
		if err != nil {
			return nil, fmt.Errorf("could not append message: %w", err)
		}
		if res.MatchedCount > 0 {
			result.Appended = append(result.Appended, m)
		}
	}

	doc, err = d.find(ctx, id, ownerID)
	if err != nil {
		return nil, err
	}
	result.Conversation = doc.toConversation()

	return result, nil
}

// SetTitle overwrites the conversation title.
func (d *Driver) SetTitle(ctx context.Context, id, ownerID, title string) error {
	return d.updateOwned(ctx, id, ownerID, bson.D{{Key: "$set", Value: bson.D{
		{Key: "title", Value: title},
		{Key: "updated_at", Value: time.Now().UTC()},
	}}})
}

// ReplaceMessageAndTruncate replaces a message and drops everything after it.
func (d *Driver) ReplaceMessageAndTruncate(ctx context.Context, id, ownerID, messageID string, newMsg conversation.Message) ([]conversation.Message, error) {
	return d.rewrite(ctx, id, ownerID, func(msgs []conversation.Message) ([]conversation.Message, error) {
		return storage.ReplaceAndTruncate(msgs, messageID, newMsg)
	})
}

// TruncateFrom removes a message and everything after it.
func (d *Driver) TruncateFrom(ctx context.Context, id, ownerID, messageID string) ([]conversation.Message, error) {
	return d.rewrite(ctx, id, ownerID, func(msgs []conversation.Message) ([]conversation.Message, error) {
		return storage.TruncateFrom(msgs, messageID)
	})
}

// DeleteConversation removes a conversation.
func (d *Driver) DeleteConversation(ctx context.Context, id, ownerID string) error {
	res, err := d.coll.DeleteOne(ctx, ownerFilter(id, ownerID))
	if err != nil {
		return fmt.Errorf("failed to delete conversation: %w", err)
	}
	if res.DeletedCount == 0 {
		return storage.ConversationNotFound(id)
	}
	return nil
}

// ShareConversation marks a conversation shared and returns its token.
func (d *Driver) ShareConversation(ctx context.Context, id, ownerID string) (string, error) {
	doc, err := d.find(ctx, id, ownerID)
	if err != nil {
		return "", err
	}
	if doc.IsShared && doc.ShareToken != "" {
		return doc.ShareToken, nil
	}

	token, err := storage.NewShareToken()
	if err != nil {
		return "", err
	}

	res, err := d.coll.UpdateOne(ctx,
		bson.D{{Key: "_id", Value: id}, {Key: "is_shared", Value: false}},
		bson.D{{Key: "$set", Value: bson.D{
			{Key: "is_shared", Value: true},
			{Key: "share_token", Value: token},
			{Key: "updated_at", Value: time.Now().UTC()},
		}}},
	)
	if err != nil {
		return "", fmt.Errorf("failed to share conversation: %w", err)
	}
	if res.MatchedCount == 0 {
		// Another request shared it first.
		doc, err := d.find(ctx, id, ownerID)
		if err != nil {
			return "", err
		}
		return doc.ShareToken, nil
	}

	return token, nil
}

// UnshareConversation revokes the share token.
func (d *Driver) UnshareConversation(ctx context.Context, id, ownerID string) error {
	return d.updateOwned(ctx, id, ownerID, bson.D{
		{Key: "$set", Value: bson.D{
			{Key: "is_shared", Value: false},
			{Key: "updated_at", Value: time.Now().UTC()},
		}},
		{Key: "$unset", Value: bson.D{{Key: "share_token", Value: ""}}},
	})
}

// GetSharedConversation looks up a shared conversation by token.
func (d *Driver) GetSharedConversation(ctx context.Context, token string) (*conversation.Conversation, error) {
	if token == "" {
		return nil, storage.ConversationNotFound("")
	}

	var doc conversationDoc
	err := d.coll.FindOne(ctx, bson.D{
		{Key: "share_token", Value: token},
		{Key: "is_shared", Value: true},
	}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, storage.ConversationNotFound("")
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query shared conversation: %w", err)
	}
	return doc.toConversation(), nil
}

// Close disconnects from MongoDB.
func (d *Driver) Close() error {
	return d.client.Disconnect(context.Background())
}

func (d *Driver) find(ctx context.Context, id, ownerID string) (*conversationDoc, error) {
	var doc conversationDoc
	err := d.coll.FindOne(ctx, ownerFilter(id, ownerID)).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, storage.ConversationNotFound(id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query conversation: %w", err)
	}
	return &doc, nil
}

func (d *Driver) updateOwned(ctx context.Context, id, ownerID string, update bson.D) error {
	res, err := d.coll.UpdateOne(ctx, ownerFilter(id, ownerID), update)
	if err != nil {
		return fmt.Errorf("failed to update conversation: %w", err)
	}
	if res.MatchedCount == 0 {
		return storage.ConversationNotFound(id)
	}
	return nil
}

// rewrite applies edit to the message array and writes it back only if the
// conversation has not changed since it was read.
func (d *Driver) rewrite(ctx context.Context, id, ownerID string, edit func([]conversation.Message) ([]conversation.Message, error)) ([]conversation.Message, error) {
	for range rewriteAttempts {
		doc, err := d.find(ctx, id, ownerID)
		if err != nil {
			return nil, err
		}

		msgs, err := edit(doc.messages())
		if err != nil {
			return nil, err
		}

		docs := make([]messageDoc, 0, len(msgs))
		for _, m := range msgs {
			docs = append(docs, toMessageDoc(m))
		}

		res, err := d.coll.UpdateOne(ctx,
			bson.D{
				{Key: "_id", Value: id},
				{Key: "updated_at", Value: doc.UpdatedAt},
				{Key: "messages", Value: bson.D{{Key: "$size", Value: len(doc.Messages)}}},
			},
			bson.D{{Key: "$set", Value: bson.D{
				{Key: "messages", Value: docs},
				{Key: "updated_at", Value: time.Now().UTC().Truncate(time.Millisecond)},
				{Key: "last_message_at", Value: storage.LastMessageAt(msgs, doc.CreatedAt)},
			}}},
		)
		if err != nil {
			return nil, fmt.Errorf("failed to rewrite messages: %w", err)
		}
		if res.MatchedCount > 0 {
			return msgs, nil
		}
	}

	return nil, errConcurrentEdit
}

func ownerFilter(id, ownerID string) bson.D {
	filter := bson.D{{Key: "_id", Value: id}}
	if ownerID != "" {
		filter = append(filter, bson.E{Key: "owner_id", Value: ownerID})
	}
	return filter
}

func (doc *conversationDoc) messages() []conversation.Message {
	msgs := make([]conversation.Message, 0, len(doc.Messages))
	for _, md := range doc.Messages {
		m := conversation.Message{
			ID:        md.ID,
			ClientID:  md.ClientID,
			Role:      md.Role,
			Content:   md.Content,
			Timestamp: md.Timestamp,
		}
		for _, p := range md.Parts {
			part := conversation.Part{Type: p.Type, Text: p.Text}
			if p.File != nil {
				part.File = &conversation.Attachment{
					Name:      p.File.Name,
					URL:       p.File.URL,
					MediaType: p.File.MediaType,
					Size:      p.File.Size,
					UUID:      p.File.UUID,
				}
			}
			m.Parts = append(m.Parts, part)
		}
		m.Normalize()
		msgs = append(msgs, m)
	}
	return msgs
}

func (doc *conversationDoc) toConversation() *conversation.Conversation {
	return &conversation.Conversation{
		ID:            doc.ID,
		OwnerID:       doc.OwnerID,
		Title:         doc.Title,
		Messages:      doc.messages(),
		IsShared:      doc.IsShared,
		ShareToken:    doc.ShareToken,
		CreatedAt:     doc.CreatedAt,
		UpdatedAt:     doc.UpdatedAt,
		LastMessageAt: doc.LastMessageAt,
	}
}

func toMessageDoc(m conversation.Message) messageDoc {
	md := messageDoc{
		ID:        m.ID,
		ClientID:  m.ClientID,
		Role:      m.Role,
		Content:   m.Content,
		Timestamp: m.Timestamp,
	}
	for _, p := range m.Parts {
		pd := partDoc{Type: p.Type, Text: p.Text}
		if p.File != nil {
			pd.File = &fileDoc{
				Name:      p.File.Name,
				URL:       p.File.URL,
				MediaType: p.File.MediaType,
				Size:      p.File.Size,
				UUID:      p.File.UUID,
			}
		}
		md.Parts = append(md.Parts, pd)
	}
	return md
}

// Reset removes every conversation. It exists for test isolation.
func (d *Driver) Reset(ctx context.Context) error {
	_, err := d.coll.DeleteMany(ctx, bson.D{})
	return err
}
