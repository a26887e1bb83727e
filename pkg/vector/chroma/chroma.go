// Package chroma provides a Chroma vector database driver implementation.
package chroma

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sort"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/papercomputeco/recall/pkg/vector"
)

const (
	// DefaultCollectionName is the default collection name for storing memory embeddings.
	DefaultCollectionName = "recall"

	defaultMaxRetries    = 5
	defaultRetryDelay    = 500 * time.Millisecond
	defaultMaxRetryDelay = 5 * time.Second

	userIDKey    = "user_id"
	createdAtKey = "created_at"

	collectionsPath = "/api/v2/tenants/default_tenant/databases/default_database/collections"
)

// Driver implements vector.Driver using Chroma's REST API.
type Driver struct {
	client         *resty.Client
	collectionName string
	collectionID   string
	logger         *slog.Logger
}

// Config holds configuration for the Chroma driver.
type Config struct {
	// URL is the Chroma server URL (e.g., "http://localhost:8000").
	URL string

	// CollectionName is the name of the collection to use.
	// Defaults to DefaultCollectionName if empty.
	CollectionName string

	// MaxRetries bounds the attempts to reach Chroma at startup.
	MaxRetries int

	// RetryDelay is the initial backoff between startup attempts. It doubles
	// after each failure up to MaxRetryDelay.
	RetryDelay    time.Duration
	MaxRetryDelay time.Duration
}

// NewDriver creates a new Chroma vector driver. It retries with exponential
// backoff while Chroma is still starting.
func NewDriver(c Config, logger *slog.Logger) (*Driver, error) {
	if c.URL == "" {
		return nil, errors.New("chroma URL is required")
	}

	collectionName := c.CollectionName
	if collectionName == "" {
		collectionName = DefaultCollectionName
	}
	if c.MaxRetries <= 0 {
		c.MaxRetries = defaultMaxRetries
	}
	if c.RetryDelay <= 0 {
		c.RetryDelay = defaultRetryDelay
	}
	if c.MaxRetryDelay <= 0 {
		c.MaxRetryDelay = defaultMaxRetryDelay
	}

	d := &Driver{
		client: resty.New().
			SetBaseURL(c.URL).
			SetHeader("Content-Type", "application/json").
			SetTimeout(60 * time.Second),
		collectionName: collectionName,
		logger:         logger,
	}

	var (
		lastErr error
		delay   = c.RetryDelay
	)
	for attempt := 1; attempt <= c.MaxRetries; attempt++ {
		collectionID, err := d.getOrCreateCollection(context.Background())
		if err == nil {
			d.collectionID = collectionID
			logger.Info("connected to Chroma",
				"url", c.URL,
				"collection", collectionName,
				"collection_id", collectionID,
			)
			return d, nil
		}

		lastErr = err
		logger.Warn("chroma not ready, retrying",
			"attempt", attempt,
			"max_retries", c.MaxRetries,
			"error", err,
		)
		if attempt < c.MaxRetries {
			time.Sleep(delay)
			delay = min(delay*2, c.MaxRetryDelay)
		}
	}

	return nil, fmt.Errorf("getting or creating collection %q after %d attempts: %w", collectionName, c.MaxRetries, lastErr)
}

// getOrCreateCollection gets an existing collection or creates a new one.
func (d *Driver) getOrCreateCollection(ctx context.Context) (string, error) {
	var collection chromaCollection

	resp, err := d.client.R().
		SetContext(ctx).
		SetResult(&collection).
		Get(collectionsPath + "/" + d.collectionName)
	if err != nil {
		return "", fmt.Errorf("sending get request: %w", err)
	}
	if resp.StatusCode() == http.StatusOK {
		return collection.ID, nil
	}

	// Collection doesn't exist, create it
	resp, err = d.client.R().
		SetContext(ctx).
		SetBody(map[string]any{"name": d.collectionName, "get_or_create": true}).
		SetResult(&collection).
		Post(collectionsPath)
	if err != nil {
		return "", fmt.Errorf("sending create request: %w", err)
	}
	if resp.StatusCode() != http.StatusOK && resp.StatusCode() != http.StatusCreated {
		return "", fmt.Errorf("failed to create collection: status %d: %s", resp.StatusCode(), resp.String())
	}

	return collection.ID, nil
}

func (d *Driver) collectionPath(op string) string {
	return collectionsPath + "/" + d.collectionID + "/" + op
}

// Add upserts documents with their embeddings.
func (d *Driver) Add(ctx context.Context, docs []vector.Document) error {
	if len(docs) == 0 {
		return nil
	}

	req := chromaAddRequest{
		IDs:        make([]string, len(docs)),
		Embeddings: make([][]float32, len(docs)),
		Metadatas:  make([]map[string]any, len(docs)),
		Documents:  make([]string, len(docs)),
	}
	for i, doc := range docs {
		req.IDs[i] = doc.ID
		req.Embeddings[i] = doc.Embedding
		req.Documents[i] = doc.Content
		req.Metadatas[i] = toChromaMetadata(doc)
	}

	resp, err := d.client.R().
		SetContext(ctx).
		SetBody(req).
		Post(d.collectionPath("upsert"))
	if err != nil {
		return fmt.Errorf("sending upsert request: %w", err)
	}
	if resp.StatusCode() != http.StatusOK && resp.StatusCode() != http.StatusCreated {
		return fmt.Errorf("failed to add documents: status %d: %s", resp.StatusCode(), resp.String())
	}

	d.logger.Debug("added documents to chroma", "count", len(docs))
	return nil
}

// Query finds the topK documents of userID most similar to embedding.
func (d *Driver) Query(ctx context.Context, userID string, embedding []float32, topK int) ([]vector.QueryResult, error) {
	if topK <= 0 {
		topK = vector.DefaultTopK
	}

	var queryResp chromaQueryResponse
	resp, err := d.client.R().
		SetContext(ctx).
		SetBody(chromaQueryRequest{
			QueryEmbeddings: [][]float32{embedding},
			NResults:        topK,
			Where:           map[string]any{userIDKey: userID},
			Include:         []string{"metadatas", "documents", "distances"},
		}).
		SetResult(&queryResp).
		Post(d.collectionPath("query"))
	if err != nil {
		return nil, fmt.Errorf("sending query request: %w", err)
	}
	if resp.StatusCode() != http.StatusOK {
		return nil, fmt.Errorf("failed to query: status %d: %s", resp.StatusCode(), resp.String())
	}

	var results []vector.QueryResult

	// Process first group (we only query with one embedding)
	if len(queryResp.IDs) == 0 || len(queryResp.IDs[0]) == 0 {
		return results, nil
	}

	ids := queryResp.IDs[0]
	var (
		distances []float32
		metadatas []map[string]any
		documents []string
	)
	if len(queryResp.Distances) > 0 {
		distances = queryResp.Distances[0]
	}
	if len(queryResp.Metadatas) > 0 {
		metadatas = queryResp.Metadatas[0]
	}
	if len(queryResp.Documents) > 0 {
		documents = queryResp.Documents[0]
	}

	for i, id := range ids {
		result := vector.QueryResult{Document: fromChroma(id, at(metadatas, i), at(documents, i))}

		// Convert distance to similarity score
		// Lower distance = higher similarity
		if i < len(distances) {
			result.Score = 1.0 / (1.0 + distances[i])
		}

		results = append(results, result)
	}

	d.logger.Debug("queried chroma", "results", len(results))
	return results, nil
}

// List returns every document of userID, oldest first.
func (d *Driver) List(ctx context.Context, userID string) ([]vector.Document, error) {
	var getResp chromaGetResponse
	resp, err := d.client.R().
		SetContext(ctx).
		SetBody(chromaGetRequest{
			Where:   map[string]any{userIDKey: userID},
			Include: []string{"metadatas", "documents"},
		}).
		SetResult(&getResp).
		Post(d.collectionPath("get"))
	if err != nil {
		return nil, fmt.Errorf("sending get request: %w", err)
	}
	if resp.StatusCode() != http.StatusOK {
		return nil, fmt.Errorf("failed to get documents: status %d: %s", resp.StatusCode(), resp.String())
	}

	docs := make([]vector.Document, 0, len(getResp.IDs))
	for i, id := range getResp.IDs {
		docs = append(docs, fromChroma(id, at(getResp.Metadatas, i), at(getResp.Documents, i)))
	}
	sort.SliceStable(docs, func(i, j int) bool {
		return docs[i].CreatedAt.Before(docs[j].CreatedAt)
	})

	return docs, nil
}

// Delete removes documents by their IDs.
func (d *Driver) Delete(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}

	resp, err := d.client.R().
		SetContext(ctx).
		SetBody(chromaDeleteRequest{IDs: ids}).
		Post(d.collectionPath("delete"))
	if err != nil {
		return fmt.Errorf("sending delete request: %w", err)
	}
	if resp.StatusCode() != http.StatusOK {
		return fmt.Errorf("failed to delete documents: status %d: %s", resp.StatusCode(), resp.String())
	}

	d.logger.Debug("deleted documents from chroma", "count", len(ids))
	return nil
}

// Close releases resources held by the driver.
func (d *Driver) Close() error {
	// HTTP client doesn't require explicit cleanup
	return nil
}

func toChromaMetadata(doc vector.Document) map[string]any {
	m := make(map[string]any, len(doc.Metadata)+2)
	for k, v := range doc.Metadata {
		m[k] = v
	}
	m[userIDKey] = doc.UserID
	m[createdAtKey] = doc.CreatedAt.UTC().Format(time.RFC3339Nano)
	return m
}

func fromChroma(id string, meta map[string]any, content string) vector.Document {
	doc := vector.Document{
		ID:       id,
		Content:  content,
		Metadata: make(map[string]string, len(meta)),
	}
	for k, v := range meta {
		s, ok := v.(string)
		if !ok {
			s = fmt.Sprint(v)
		}
		switch k {
		case userIDKey:
			doc.UserID = s
		case createdAtKey:
			doc.CreatedAt, _ = time.Parse(time.RFC3339Nano, s)
		default:
			doc.Metadata[k] = s
		}
	}
	return doc
}

func at[T any](s []T, i int) T {
	var zero T
	if i < len(s) {
		return s[i]
	}
	return zero
}
