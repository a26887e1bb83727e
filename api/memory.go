package api

import (
	"fmt"

	"github.com/gofiber/fiber/v2"

	"github.com/papercomputeco/recall/pkg/memory"
)

// MemoryItem is one categorized memory as listed by GET /memory.
type MemoryItem struct {
	ID      string `json:"id"`
	Content string `json:"content"`
	Type    string `json:"type"`
}

// MemoryListResponse is the body of GET /memory.
type MemoryListResponse struct {
	Memories []MemoryItem `json:"memories"`
	Total    int          `json:"total"`
	UserID   string       `json:"userId"`
}

// ClearMemoriesResponse is the body of DELETE /memory.
type ClearMemoriesResponse struct {
	Success bool `json:"success"`
	Deleted int  `json:"deleted"`
}

func (s *Server) handleListMemories(c *fiber.Ctx) error {
	owner := userID(c)
	all := s.config.Memory.RetrieveAll(c.Context(), owner)

	items := make([]MemoryItem, 0, len(all.Facts)+len(all.Preferences)+len(all.Context))
	items = appendItems(items, "fact", memory.CategoryFact, all.Facts)
	items = appendItems(items, "pref", memory.CategoryPreference, all.Preferences)
	items = appendItems(items, "ctx", memory.CategoryContext, all.Context)

	return c.JSON(MemoryListResponse{
		Memories: items,
		Total:    len(items),
		UserID:   owner,
	})
}

func appendItems(items []MemoryItem, prefix string, category memory.Category, texts []string) []MemoryItem {
	for i, text := range texts {
		items = append(items, MemoryItem{
			ID:      fmt.Sprintf("%s-%d", prefix, i),
			Content: text,
			Type:    string(category),
		})
	}
	return items
}

func (s *Server) handleMemoryStats(c *fiber.Ctx) error {
	return c.JSON(s.config.Memory.ComputeStats(c.Context(), userID(c)))
}

func (s *Server) handleClearMemories(c *fiber.Ctx) error {
	owner := userID(c)
	deleted, err := s.config.Memory.ClearAll(c.Context(), owner)
	if err != nil {
		s.logger.Error("failed to clear memories", "user_id", owner, "deleted", deleted, "error", err)
		return c.Status(fiber.StatusInternalServerError).JSON(ErrorResponse{Error: "failed to clear memories"})
	}
	return c.JSON(ClearMemoriesResponse{Success: true, Deleted: deleted})
}
