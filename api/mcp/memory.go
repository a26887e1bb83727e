package mcp

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/papercomputeco/recall/pkg/memory"
)

const defaultSearchLimit = 5

var (
	memorySearchToolName    = "memory_search"
	memorySearchDescription = "Search a user's long-term memory from past recall conversations. Returns the memories most relevant to the query, best match first."

	memoryProfileToolName    = "memory_profile"
	memoryProfileDescription = "Summarize what recall remembers about a user: memories grouped into facts, preferences, and context, plus counts and the time of the latest memory."
)

// MemorySearchInput represents the input arguments for the memory_search tool.
// The searched user is always the authenticated caller.
type MemorySearchInput struct {
	Query string `json:"query" jsonschema:"natural language search query"`
	Limit int    `json:"limit,omitempty" jsonschema:"maximum number of memories to return (default 5)"`
}

// MemorySearchOutput is the structured output of memory_search.
type MemorySearchOutput struct {
	Query    string   `json:"query"`
	Memories []string `json:"memories"`
	Count    int      `json:"count"`
}

// MemoryProfileInput represents the input arguments for the memory_profile
// tool. It takes none; the profile is the authenticated caller's.
type MemoryProfileInput struct{}

// MemoryProfileOutput is the structured output of memory_profile.
type MemoryProfileOutput struct {
	Facts       []string     `json:"facts"`
	Preferences []string     `json:"preferences"`
	Context     []string     `json:"context"`
	Stats       memory.Stats `json:"stats"`
}

func (s *Server) memorySearch(ctx context.Context, userID string, input MemorySearchInput) (*mcp.CallToolResult, MemorySearchOutput, error) {
	if userID == "" {
		return errorResult("unauthenticated"), MemorySearchOutput{}, nil
	}
	if input.Query == "" {
		return errorResult("query is required"), MemorySearchOutput{}, nil
	}

	limit := input.Limit
	if limit <= 0 {
		limit = defaultSearchLimit
	}

	memories := s.config.Memory.RetrieveRelevant(ctx, userID, input.Query, limit)
	output := MemorySearchOutput{
		Query:    input.Query,
		Memories: memories,
		Count:    len(memories),
	}

	s.config.Logger.Debug("mcp memory search",
		"user_id", userID,
		"count", output.Count,
	)

	return jsonResult(output), output, nil
}

func (s *Server) memoryProfile(ctx context.Context, userID string) (*mcp.CallToolResult, MemoryProfileOutput, error) {
	if userID == "" {
		return errorResult("unauthenticated"), MemoryProfileOutput{}, nil
	}

	all := s.config.Memory.RetrieveAll(ctx, userID)
	output := MemoryProfileOutput{
		Facts:       all.Facts,
		Preferences: all.Preferences,
		Context:     all.Context,
		Stats:       s.config.Memory.ComputeStats(ctx, userID),
	}

	return jsonResult(output), output, nil
}

func errorResult(msg string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		IsError: true,
		Content: []mcp.Content{
			&mcp.TextContent{Text: msg},
		},
	}
}

func jsonResult(v any) *mcp.CallToolResult {
	jsonBytes, err := json.Marshal(v)
	if err != nil {
		return errorResult(fmt.Sprintf("Failed to serialize results: %v", err))
	}

	return &mcp.CallToolResult{
		Content: []mcp.Content{
			&mcp.TextContent{Text: string(jsonBytes)},
		},
	}
}
