package testutils

import (
	"context"
	"errors"
	"sync"

	"github.com/papercomputeco/recall/pkg/memory"
)

// ErrMock is returned by the mocks when a failure is requested.
var ErrMock = errors.New("mock failure")

// MockMemoryDriver is a test memory driver that records calls and returns
// configurable results.
type MockMemoryDriver struct {
	mu sync.Mutex

	// Added accumulates all contents passed to Add.
	Added []string

	// AddedMetadata holds the metadata passed alongside each Added entry.
	AddedMetadata []memory.Metadata

	// Entries is returned by List and, truncated to limit, by Search.
	Entries []memory.Entry

	// Deleted accumulates the ids passed to Delete.
	Deleted []string

	// FailAdd causes Add to return an error.
	FailAdd bool

	// FailSearch causes Search to return an error.
	FailSearch bool

	// FailList causes List to return an error.
	FailList bool

	// FailDeleteIDs causes Delete to return an error for the listed ids.
	FailDeleteIDs map[string]bool

	// PanicOnSearch causes Search to panic.
	PanicOnSearch bool
}

// NewMockMemoryDriver creates a new mock memory driver.
func NewMockMemoryDriver() *MockMemoryDriver {
	return &MockMemoryDriver{
		Added:         make([]string, 0),
		Entries:       make([]memory.Entry, 0),
		FailDeleteIDs: make(map[string]bool),
	}
}

func (m *MockMemoryDriver) Add(_ context.Context, _ string, content string, meta memory.Metadata) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.FailAdd {
		return ErrMock
	}
	m.Added = append(m.Added, content)
	m.AddedMetadata = append(m.AddedMetadata, meta)
	return nil
}

func (m *MockMemoryDriver) Search(_ context.Context, _ string, _ string, limit int) ([]memory.Entry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.PanicOnSearch {
		panic("mock search panic")
	}
	if m.FailSearch {
		return nil, ErrMock
	}
	if len(m.Entries) < limit {
		return m.Entries, nil
	}
	return m.Entries[:limit], nil
}

func (m *MockMemoryDriver) List(_ context.Context, _ string) ([]memory.Entry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.FailList {
		return nil, ErrMock
	}
	out := make([]memory.Entry, len(m.Entries))
	copy(out, m.Entries)
	return out, nil
}

func (m *MockMemoryDriver) Delete(_ context.Context, _ string, entryID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.FailDeleteIDs[entryID] {
		return ErrMock
	}
	m.Deleted = append(m.Deleted, entryID)
	return nil
}

func (m *MockMemoryDriver) Close() error {
	return nil
}

// AddedCount returns the number of Add calls that succeeded.
func (m *MockMemoryDriver) AddedCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.Added)
}

// TextEntries builds entries with sequential ids from plain texts.
func TextEntries(texts ...string) []memory.Entry {
	out := make([]memory.Entry, 0, len(texts))
	for i, t := range texts {
		out = append(out, memory.Entry{
			ID:      "mem-" + string(rune('a'+i)),
			Content: t,
		})
	}
	return out
}
