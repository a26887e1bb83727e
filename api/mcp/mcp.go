// Package mcp serves recall's long-term memory to agents over the Model
// Context Protocol.
package mcp

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/papercomputeco/recall/pkg/memory"
	"github.com/papercomputeco/recall/pkg/utils"
)

type Config struct {
	// Memory answers the memory tools.
	Memory *memory.Adapter

	// Noop for empty MCP server
	Noop bool

	Logger *slog.Logger
}

type Server struct {
	config    Config
	mcpServer *mcp.Server
	handler   *mcp.StreamableHTTPHandler
}

// NewServer creates a new MCP server with the memory tools. Tools are
// registered per request for the user found in the request context.
func NewServer(c Config) (*Server, error) {
	s := &Server{
		config: c,
	}

	if !c.Noop {
		if c.Memory == nil {
			return nil, errors.New("memory adapter is required")
		}
		if c.Logger == nil {
			return nil, errors.New("logger is required")
		}
	}

	s.mcpServer = s.newMCPServer("")

	// Create a streamable HTTP net/http handler for stateless operations.
	// Every request gets a server bound to the caller, so tools never see
	// another user's memory.
	s.handler = mcp.NewStreamableHTTPHandler(
		func(r *http.Request) *mcp.Server {
			if c.Noop {
				return s.mcpServer
			}
			userID := UserIDFromContext(r.Context())
			if userID == "" {
				return nil
			}
			return s.newMCPServer(userID)
		},
		&mcp.StreamableHTTPOptions{
			Stateless: true,
		},
	)

	return s, nil
}

// newMCPServer builds an MCP server whose memory tools answer for userID.
// An empty userID yields a server without tools.
func (s *Server) newMCPServer(userID string) *mcp.Server {
	mcpServer := mcp.NewServer(
		&mcp.Implementation{
			Name:    "recall",
			Version: utils.Version,
		},
		&mcp.ServerOptions{},
	)

	if s.config.Noop || userID == "" {
		return mcpServer
	}

	mcp.AddTool(mcpServer, &mcp.Tool{
		Name:        memorySearchToolName,
		Description: memorySearchDescription,
	}, func(ctx context.Context, _ *mcp.CallToolRequest, input MemorySearchInput) (*mcp.CallToolResult, MemorySearchOutput, error) {
		return s.memorySearch(ctx, userID, input)
	})

	mcp.AddTool(mcpServer, &mcp.Tool{
		Name:        memoryProfileToolName,
		Description: memoryProfileDescription,
	}, func(ctx context.Context, _ *mcp.CallToolRequest, _ MemoryProfileInput) (*mcp.CallToolResult, MemoryProfileOutput, error) {
		return s.memoryProfile(ctx, userID)
	})

	return mcpServer
}

// Handler returns the HTTP handler for the MCP server. Requests must carry
// the authenticated user in their context, see WithUserID.
func (s *Server) Handler() http.Handler {
	if s.config.Noop {
		return s.handler
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if UserIDFromContext(r.Context()) == "" {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		s.handler.ServeHTTP(w, r)
	})
}
