// Package vectorstore implements memory.Driver on top of an embedder and a
// vector.Driver. Each entry becomes one vector document partitioned by user.
package vectorstore

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/papercomputeco/recall/pkg/embeddings"
	"github.com/papercomputeco/recall/pkg/memory"
	"github.com/papercomputeco/recall/pkg/vector"
)

// Config configures the vector-backed memory driver.
type Config struct {
	Embedder embeddings.Embedder
	Vectors  vector.Driver
	Logger   *slog.Logger

	// Now is used to stamp new entries. Defaults to time.Now.
	Now func() time.Time
}

// Driver implements memory.Driver.
type Driver struct {
	embedder embeddings.Embedder
	vectors  vector.Driver
	logger   *slog.Logger
	now      func() time.Time
}

// NewDriver creates a vector-backed memory driver. The driver owns both
// collaborators and closes them on Close.
func NewDriver(c Config) (*Driver, error) {
	if c.Embedder == nil {
		return nil, errors.New("embedder is required")
	}
	if c.Vectors == nil {
		return nil, errors.New("vector driver is required")
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
	if c.Now == nil {
		c.Now = time.Now
	}

	return &Driver{
		embedder: c.Embedder,
		vectors:  c.Vectors,
		logger:   c.Logger,
		now:      c.Now,
	}, nil
}

// Add embeds content and stores it as a new document.
func (d *Driver) Add(ctx context.Context, userID, content string, meta memory.Metadata) error {
	embedding, err := d.embedder.Embed(ctx, content)
	if err != nil {
		return fmt.Errorf("embedding memory: %w", err)
	}

	doc := vector.Document{
		ID:        uuid.NewString(),
		UserID:    userID,
		Content:   content,
		Metadata:  meta.Map(),
		CreatedAt: d.now().UTC(),
		Embedding: embedding,
	}
	if err := d.vectors.Add(ctx, []vector.Document{doc}); err != nil {
		return fmt.Errorf("storing memory: %w", err)
	}

	d.logger.Debug("stored memory in vector store", "user_id", userID, "id", doc.ID)
	return nil
}

// Search embeds the query and returns the nearest entries of the user.
func (d *Driver) Search(ctx context.Context, userID, query string, limit int) ([]memory.Entry, error) {
	if query == "" {
		entries, err := d.List(ctx, userID)
		if err != nil {
			return nil, err
		}
		// most recent first, as with the other backends
		out := make([]memory.Entry, 0, min(limit, len(entries)))
		for i := len(entries) - 1; i >= 0 && len(out) < limit; i-- {
			out = append(out, entries[i])
		}
		return out, nil
	}

	embedding, err := d.embedder.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embedding query: %w", err)
	}

	results, err := d.vectors.Query(ctx, userID, embedding, limit)
	if err != nil {
		return nil, fmt.Errorf("querying vector store: %w", err)
	}

	entries := make([]memory.Entry, 0, len(results))
	for _, r := range results {
		entries = append(entries, toEntry(r.Document))
	}
	return entries, nil
}

// List returns every entry of the user, oldest first.
func (d *Driver) List(ctx context.Context, userID string) ([]memory.Entry, error) {
	docs, err := d.vectors.List(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("listing vector store: %w", err)
	}

	entries := make([]memory.Entry, 0, len(docs))
	for _, doc := range docs {
		entries = append(entries, toEntry(doc))
	}
	return entries, nil
}

// Delete removes an entry. Entry ids are random UUIDs handed out by Add and
// listed per user, so the user id is not consulted.
func (d *Driver) Delete(ctx context.Context, _ string, entryID string) error {
	if err := d.vectors.Delete(ctx, []string{entryID}); err != nil {
		return fmt.Errorf("deleting memory %s: %w", entryID, err)
	}
	return nil
}

// Close closes the vector driver and the embedder.
func (d *Driver) Close() error {
	return errors.Join(d.vectors.Close(), d.embedder.Close())
}

func toEntry(doc vector.Document) memory.Entry {
	return memory.Entry{
		ID:        doc.ID,
		UserID:    doc.UserID,
		Content:   doc.Content,
		Metadata:  memory.MetadataFromMap(doc.Metadata),
		CreatedAt: doc.CreatedAt,
	}
}
