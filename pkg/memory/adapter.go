package memory

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/papercomputeco/recall/pkg/conversation"
)

const (
	// MinTranscriptLength is the transcript length an exchange must exceed
	// before it is worth remembering.
	MinTranscriptLength = 100

	// DefaultRelevantLimit is used when RetrieveRelevant gets no limit.
	DefaultRelevantLimit = 5

	// SourceChatSession tags entries produced from chat exchanges.
	SourceChatSession = "chat_session"
)

// Config configures an Adapter.
type Config struct {
	Driver Driver
	Logger *slog.Logger

	// Now overrides the clock. Defaults to time.Now.
	Now func() time.Time
}

// Adapter is the single shared entry point to the memory backend. It is safe
// for concurrent use and keeps no per-user state.
//
// Reads never fail: backend errors are logged and degrade to empty results.
// StoreExchange swallows errors as well, so callers can run it fire and
// forget. Only the deletion paths report errors.
type Adapter struct {
	driver Driver
	logger *slog.Logger
	now    func() time.Time
}

// Stats summarizes a user's memories.
type Stats struct {
	Total       int        `json:"total"`
	Facts       int        `json:"facts"`
	Preferences int        `json:"preferences"`
	Context     int        `json:"context"`
	LastUpdated *time.Time `json:"lastUpdated"`
}

// NewAdapter creates an Adapter. A nil driver yields an adapter whose reads
// are empty and whose deletes return ErrNotConfigured.
func NewAdapter(c Config) *Adapter {
	logger := c.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	now := c.Now
	if now == nil {
		now = time.Now
	}
	return &Adapter{
		driver: c.Driver,
		logger: logger.With("component", "memory"),
		now:    now,
	}
}

// Transcript renders one "role: text" line per text part. A message without
// parts contributes its content as a single line; file parts are skipped.
func Transcript(msgs []conversation.Message) string {
	lines := make([]string, 0, len(msgs))
	for _, m := range msgs {
		if len(m.Parts) == 0 {
			lines = append(lines, m.Role+": "+m.Content)
			continue
		}
		for _, p := range m.Parts {
			if p.Type == conversation.PartTypeText {
				lines = append(lines, m.Role+": "+p.Text)
			}
		}
	}
	return strings.Join(lines, "\n")
}

// StoreExchange stores a transcript of msgs as a single memory entry when it
// is longer than MinTranscriptLength. Failures are logged, never returned.
func (a *Adapter) StoreExchange(ctx context.Context, userID string, msgs []conversation.Message, conversationID string) {
	if a.driver == nil {
		return
	}

	transcript := Transcript(msgs)
	if len(transcript) <= MinTranscriptLength {
		a.logger.Debug("skipping short exchange",
			"conversation_id", conversationID,
			"length", len(transcript),
		)
		return
	}

	meta := Metadata{
		ConversationID: conversationID,
		Timestamp:      a.now().UTC().Format(time.RFC3339),
		MessageCount:   len(msgs),
		Source:         SourceChatSession,
	}

	if err := a.driver.Add(ctx, userID, transcript, meta); err != nil {
		a.logger.Warn("failed to store exchange",
			"conversation_id", conversationID,
			"error", err,
		)
		return
	}

	a.logger.Debug("stored exchange",
		"conversation_id", conversationID,
		"message_count", len(msgs),
	)
}

// RetrieveRelevant returns up to limit memory texts relevant to query.
func (a *Adapter) RetrieveRelevant(ctx context.Context, userID, query string, limit int) []string {
	if a.driver == nil {
		return []string{}
	}
	if limit <= 0 {
		limit = DefaultRelevantLimit
	}

	entries, err := a.driver.Search(ctx, userID, query, limit)
	if err != nil {
		a.logger.Warn("failed to search memories", "error", err)
		return []string{}
	}

	out := make([]string, 0, len(entries))
	for _, e := range entries {
		out = append(out, e.Content)
	}
	if len(out) > limit {
		out = out[:limit]
	}
	return out
}

// RetrieveAll returns every memory of the user grouped by category.
func (a *Adapter) RetrieveAll(ctx context.Context, userID string) Categorized {
	entries, err := a.list(ctx, userID)
	if err != nil {
		a.logger.Warn("failed to list memories", "error", err)
		return Categorize(nil)
	}
	return Categorize(entries)
}

// DeleteOlderThan deletes entries whose timestamp is more than days old.
// days == 0 deletes every entry. Entries that fail to delete are logged and
// skipped; the returned error is non-nil only when listing failed.
func (a *Adapter) DeleteOlderThan(ctx context.Context, userID string, days int) (int, error) {
	deleted, _, err := a.deleteOlderThan(ctx, userID, days)
	return deleted, err
}

// ClearAll deletes every entry of the user. Unlike DeleteOlderThan it reports
// ErrPartialDelete when some entries could not be deleted.
func (a *Adapter) ClearAll(ctx context.Context, userID string) (int, error) {
	deleted, failed, err := a.deleteOlderThan(ctx, userID, 0)
	if err != nil {
		return deleted, err
	}
	if failed > 0 {
		return deleted, fmt.Errorf("%w: %d of %d failed", ErrPartialDelete, failed, deleted+failed)
	}
	return deleted, nil
}

func (a *Adapter) deleteOlderThan(ctx context.Context, userID string, days int) (deleted, failed int, err error) {
	entries, err := a.list(ctx, userID)
	if err != nil {
		return 0, 0, fmt.Errorf("listing memories: %w", err)
	}

	cutoff := a.now().Add(-time.Duration(days) * 24 * time.Hour)
	for _, e := range entries {
		if days != 0 {
			ts, ok := e.Metadata.Time()
			if !ok || !ts.Before(cutoff) {
				continue
			}
		}

		if err := a.driver.Delete(ctx, userID, e.ID); err != nil {
			a.logger.Warn("failed to delete memory", "memory_id", e.ID, "error", err)
			failed++
			continue
		}
		deleted++
	}

	a.logger.Info("deleted memories", "user_id", userID, "deleted", deleted, "failed", failed, "days", days)
	return deleted, failed, nil
}

// ComputeStats counts the user's memories per category and finds the most
// recent metadata timestamp.
func (a *Adapter) ComputeStats(ctx context.Context, userID string) Stats {
	entries, err := a.list(ctx, userID)
	if err != nil {
		a.logger.Warn("failed to compute memory stats", "error", err)
		return Stats{}
	}

	c := Categorize(entries)
	stats := Stats{
		Total:       len(entries),
		Facts:       len(c.Facts),
		Preferences: len(c.Preferences),
		Context:     len(c.Context),
	}

	for _, e := range entries {
		ts, ok := e.Metadata.Time()
		if !ok {
			continue
		}
		if stats.LastUpdated == nil || ts.After(*stats.LastUpdated) {
			stats.LastUpdated = &ts
		}
	}

	return stats
}

func (a *Adapter) list(ctx context.Context, userID string) ([]Entry, error) {
	if a.driver == nil {
		return nil, ErrNotConfigured
	}
	entries, err := a.driver.List(ctx, userID)
	if err != nil {
		return nil, err
	}
	return entries, nil
}

// Configured reports whether a backend is attached.
func (a *Adapter) Configured() bool {
	return a.driver != nil
}

// Close closes the backend.
func (a *Adapter) Close() error {
	if a.driver == nil {
		return nil
	}
	return a.driver.Close()
}

// IsNotConfigured reports whether err means memory is disabled.
func IsNotConfigured(err error) bool {
	return errors.Is(err, ErrNotConfigured)
}
