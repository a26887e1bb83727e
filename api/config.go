// Package api serves the recall HTTP API: conversation CRUD, streamed turns,
// memory management, and the optional MCP endpoint.
package api

import (
	"log/slog"
	"net/http"

	"github.com/papercomputeco/recall/pkg/chat"
	"github.com/papercomputeco/recall/pkg/memory"
	"github.com/papercomputeco/recall/pkg/storage"
)

// Authenticator resolves the caller's user id from the Authorization header.
type Authenticator interface {
	UserID(token string) (string, error)
}

// Config is the API server configuration.
type Config struct {
	// ListenAddr is the address to listen on (e.g., ":8080")
	ListenAddr string

	Store        storage.Driver
	Orchestrator *chat.Orchestrator
	Editor       *chat.Editor
	Memory       *memory.Adapter
	Auth         Authenticator

	// MCPHandler is mounted at /mcp when set.
	MCPHandler http.Handler

	Logger *slog.Logger
}
