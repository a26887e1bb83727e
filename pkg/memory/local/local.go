// Package local provides an in-process implementation of the memory.Driver
// interface.
//
// Entries are kept per user in insertion order. Search ranks entries by how
// many distinct lower-cased query tokens they contain. This is the local-dev
// backend; production deployments point at mem0 or a vector store.
package local

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"
	"unicode"

	"github.com/google/uuid"

	"github.com/papercomputeco/recall/pkg/memory"
)

// Driver implements memory.Driver using in-process data structures.
type Driver struct {
	mu sync.RWMutex

	// entries maps user id -> entries in insertion order.
	entries map[string][]memory.Entry
}

// NewDriver creates a local in-memory memory driver.
func NewDriver() *Driver {
	return &Driver{
		entries: make(map[string][]memory.Entry),
	}
}

// Add stores a new entry for the user.
func (d *Driver) Add(_ context.Context, userID, content string, meta memory.Metadata) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.entries[userID] = append(d.entries[userID], memory.Entry{
		ID:        uuid.NewString(),
		UserID:    userID,
		Content:   content,
		Metadata:  meta,
		CreatedAt: time.Now().UTC(),
	})
	return nil
}

// Search returns up to limit entries sharing at least one token with query,
// best match first. An empty query returns the most recent entries.
func (d *Driver) Search(_ context.Context, userID, query string, limit int) ([]memory.Entry, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	entries := d.entries[userID]
	queryTokens := tokenize(query)

	if len(queryTokens) == 0 {
		out := make([]memory.Entry, 0, limit)
		for i := len(entries) - 1; i >= 0 && len(out) < limit; i-- {
			out = append(out, entries[i])
		}
		return out, nil
	}

	type scored struct {
		entry memory.Entry
		score int
	}

	var matches []scored
	for _, e := range entries {
		score := 0
		for tok := range tokenize(e.Content) {
			if _, ok := queryTokens[tok]; ok {
				score++
			}
		}
		if score > 0 {
			matches = append(matches, scored{entry: e, score: score})
		}
	}

	sort.SliceStable(matches, func(i, j int) bool {
		return matches[i].score > matches[j].score
	})

	out := make([]memory.Entry, 0, min(limit, len(matches)))
	for _, m := range matches {
		if len(out) == limit {
			break
		}
		out = append(out, m.entry)
	}
	return out, nil
}

// List returns a copy of every entry for the user.
func (d *Driver) List(_ context.Context, userID string) ([]memory.Entry, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	// Return a copy to avoid callers mutating internal state.
	result := make([]memory.Entry, len(d.entries[userID]))
	copy(result, d.entries[userID])
	return result, nil
}

// Delete removes an entry. Deleting an unknown entry is not an error.
func (d *Driver) Delete(_ context.Context, userID, entryID string) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	entries := d.entries[userID]
	for i := range entries {
		if entries[i].ID == entryID {
			d.entries[userID] = append(entries[:i:i], entries[i+1:]...)
			break
		}
	}
	return nil
}

// Close is a no-op for the in-memory driver.
func (d *Driver) Close() error {
	return nil
}

func tokenize(s string) map[string]struct{} {
	fields := strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsNumber(r)
	})

	tokens := make(map[string]struct{}, len(fields))
	for _, f := range fields {
		if len(f) < 2 {
			continue
		}
		tokens[f] = struct{}{}
	}
	return tokens
}
