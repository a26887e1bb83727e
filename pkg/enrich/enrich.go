// Package enrich builds the system prompt for a turn by appending the user's
// relevant long-term memories to the base prompt.
package enrich

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/papercomputeco/recall/pkg/memory"
)

const (
	// RelevantLimit is the number of query-relevant memories included.
	RelevantLimit = 3

	// CategoryLimit is the number of preferences and of facts included.
	CategoryLimit = 3

	relevantHeading   = "\n\nRelevant context from previous conversations:"
	preferenceHeading = "\n\nUser preferences:"
	factHeading       = "\n\nKnown facts about user:"

	// Instruction closes every enriched prompt.
	Instruction = "\n\nPlease use this context to provide more personalized and relevant responses. " +
		"Reference past conversations naturally when appropriate, but don't mention that you're " +
		"using stored memory unless specifically asked."
)

// MemoryReader is the read side of the memory adapter.
type MemoryReader interface {
	RetrieveRelevant(ctx context.Context, userID, query string, limit int) []string
	RetrieveAll(ctx context.Context, userID string) memory.Categorized
}

// Enricher appends memory context to system prompts.
type Enricher struct {
	memory MemoryReader
	logger *slog.Logger
}

// New creates an Enricher.
func New(mem MemoryReader, logger *slog.Logger) *Enricher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Enricher{
		memory: mem,
		logger: logger.With("component", "enrich"),
	}
}

// BuildSystemPrompt never fails. With no memories, or when the memory
// backend errors or panics, it returns basePrompt unchanged.
func (e *Enricher) BuildSystemPrompt(ctx context.Context, basePrompt, userID, query string) string {
	if e.memory == nil {
		return basePrompt
	}

	var sb strings.Builder
	sb.WriteString(basePrompt)
	enriched := false

	if query != "" {
		relevant := e.relevant(ctx, userID, query)
		if len(relevant) > 0 {
			sb.WriteString(relevantHeading)
			for i, m := range relevant {
				fmt.Fprintf(&sb, "\n%d. %s", i+1, m)
			}
			enriched = true
		}
	}

	all := e.all(ctx, userID)
	if writeList(&sb, preferenceHeading, all.Preferences) {
		enriched = true
	}
	if writeList(&sb, factHeading, all.Facts) {
		enriched = true
	}

	if !enriched {
		return basePrompt
	}

	sb.WriteString(Instruction)
	return sb.String()
}

func (e *Enricher) relevant(ctx context.Context, userID, query string) (out []string) {
	defer e.recover("relevant", userID, func() { out = nil })
	return e.memory.RetrieveRelevant(ctx, userID, query, RelevantLimit)
}

func (e *Enricher) all(ctx context.Context, userID string) (out memory.Categorized) {
	defer e.recover("all", userID, func() { out = memory.Categorized{} })
	return e.memory.RetrieveAll(ctx, userID)
}

func (e *Enricher) recover(step, userID string, reset func()) {
	if r := recover(); r != nil {
		e.logger.Error("memory retrieval panicked",
			"step", step,
			"user_id", userID,
			"panic", fmt.Sprint(r),
		)
		reset()
	}
}

func writeList(sb *strings.Builder, heading string, items []string) bool {
	if len(items) == 0 {
		return false
	}
	sb.WriteString(heading)
	for _, item := range items[:min(len(items), CategoryLimit)] {
		sb.WriteString("\n- ")
		sb.WriteString(item)
	}
	return true
}
