package testutils

import (
	"context"
	"sort"
	"sync"

	"github.com/papercomputeco/recall/pkg/vector"
)

// MockVectorDriver is a test vector driver. Query returns the user's
// documents in insertion order with descending scores.
type MockVectorDriver struct {
	mu        sync.Mutex
	documents []vector.Document

	// FailDelete makes Delete fail for these document ids.
	FailDelete map[string]bool
}

func NewMockVectorDriver() *MockVectorDriver {
	return &MockVectorDriver{
		documents:  make([]vector.Document, 0),
		FailDelete: map[string]bool{},
	}
}

func (m *MockVectorDriver) Add(_ context.Context, docs []vector.Document) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, doc := range docs {
		replaced := false
		for i := range m.documents {
			if m.documents[i].ID == doc.ID {
				m.documents[i] = doc
				replaced = true
			}
		}
		if !replaced {
			m.documents = append(m.documents, doc)
		}
	}
	return nil
}

func (m *MockVectorDriver) Query(_ context.Context, userID string, _ []float32, topK int) ([]vector.QueryResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var results []vector.QueryResult
	for _, doc := range m.documents {
		if doc.UserID != userID {
			continue
		}
		results = append(results, vector.QueryResult{
			Document: doc,
			Score:    1 / float32(len(results)+1),
		})
	}
	if len(results) > topK {
		results = results[:topK]
	}
	return results, nil
}

func (m *MockVectorDriver) List(_ context.Context, userID string) ([]vector.Document, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var docs []vector.Document
	for _, doc := range m.documents {
		if doc.UserID == userID {
			docs = append(docs, doc)
		}
	}
	sort.SliceStable(docs, func(i, j int) bool {
		return docs[i].CreatedAt.Before(docs[j].CreatedAt)
	})
	return docs, nil
}

func (m *MockVectorDriver) Delete(_ context.Context, ids []string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, id := range ids {
		if m.FailDelete[id] {
			return ErrMock
		}
	}

	drop := make(map[string]bool, len(ids))
	for _, id := range ids {
		drop[id] = true
	}
	kept := m.documents[:0]
	for _, doc := range m.documents {
		if !drop[doc.ID] {
			kept = append(kept, doc)
		}
	}
	m.documents = kept
	return nil
}

func (m *MockVectorDriver) Close() error {
	return nil
}

// Documents returns a copy of every stored document.
func (m *MockVectorDriver) Documents() []vector.Document {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]vector.Document(nil), m.documents...)
}
