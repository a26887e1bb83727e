// Package vector provides interfaces and implementations for vector storage.
// Documents are partitioned by user: queries and listings never cross users.
package vector

import (
	"context"
	"time"
)

// Document represents a stored item with its embedding and metadata.
type Document struct {
	// ID is a unique identifier for the document.
	ID string

	// UserID is the partition key. Query and List only see documents of the
	// requested user.
	UserID string

	// Content is the original text the embedding was computed from.
	Content string

	// Metadata holds flat string attributes stored alongside the vector.
	Metadata map[string]string

	CreatedAt time.Time

	// Embedding is the vector representation of the document content.
	Embedding []float32
}

// QueryResult represents a search result with similarity score.
type QueryResult struct {
	Document

	// Score represents the similarity score (higher = more similar).
	Score float32
}

// Driver handles storage and retrieval of vector embeddings.
type Driver interface {
	// Add stores documents with their embeddings.
	// If a document with the same ID already exists, implementers should update
	// the document.
	Add(ctx context.Context, docs []Document) error

	// Query finds the topK documents of userID most similar to embedding.
	Query(ctx context.Context, userID string, embedding []float32, topK int) ([]QueryResult, error)

	// List returns every document of userID, oldest first. Embeddings may be
	// omitted.
	List(ctx context.Context, userID string) ([]Document, error)

	// Delete removes documents by their IDs.
	Delete(ctx context.Context, ids []string) error

	// Close releases any resources held by the driver.
	Close() error
}

// DefaultTopK is used when a query asks for no results.
const DefaultTopK = 10
