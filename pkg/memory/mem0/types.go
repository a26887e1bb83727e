package mem0

import (
	"encoding/json"
	"time"

	"github.com/papercomputeco/recall/pkg/memory"
)

type message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type addRequest struct {
	Messages []message       `json:"messages"`
	UserID   string          `json:"user_id"`
	Metadata memory.Metadata `json:"metadata"`
}

type searchRequest struct {
	Query  string `json:"query"`
	UserID string `json:"user_id"`
	Limit  int    `json:"limit,omitempty"`
}

// memoryObject is a memory as returned by the mem0 API.
type memoryObject struct {
	ID        string           `json:"id"`
	Memory    string           `json:"memory"`
	Text      string           `json:"text"`
	UserID    string           `json:"user_id"`
	Metadata  *memory.Metadata `json:"metadata"`
	CreatedAt string           `json:"created_at"`
}

// resultsEnvelope is the paginated shape some mem0 endpoints use instead of a
// bare array.
type resultsEnvelope struct {
	Results []memoryObject `json:"results"`
}

func (m memoryObject) toEntry(userID string) memory.Entry {
	e := memory.Entry{
		ID:      m.ID,
		UserID:  m.UserID,
		Content: m.Memory,
	}
	if e.Content == "" {
		e.Content = m.Text
	}
	if e.UserID == "" {
		e.UserID = userID
	}
	if m.Metadata != nil {
		e.Metadata = *m.Metadata
	}
	if t, err := time.Parse(time.RFC3339Nano, m.CreatedAt); err == nil {
		e.CreatedAt = t
	}
	return e
}

// decodeMemories accepts either a bare array or a {"results": [...]} object.
func decodeMemories(body []byte) ([]memoryObject, error) {
	var list []memoryObject
	if err := json.Unmarshal(body, &list); err == nil {
		return list, nil
	}

	var env resultsEnvelope
	if err := json.Unmarshal(body, &env); err != nil {
		return nil, err
	}
	return env.Results, nil
}
