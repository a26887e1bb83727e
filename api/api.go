package api

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/adaptor/v2"
	"github.com/gofiber/fiber/v2"

	mcpserver "github.com/papercomputeco/recall/api/mcp"
)

// Server is the recall API server.
type Server struct {
	config   Config
	logger   *slog.Logger
	validate *validator.Validate
	app      *fiber.App
}

// NewServer creates a new API server and registers its routes.
func NewServer(c Config) (*Server, error) {
	if c.Store == nil {
		return nil, errors.New("message store is required")
	}
	if c.Orchestrator == nil || c.Editor == nil {
		return nil, errors.New("orchestrator and editor are required")
	}
	if c.Memory == nil {
		return nil, errors.New("memory adapter is required")
	}
	if c.Auth == nil {
		return nil, errors.New("authenticator is required")
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}

	app := fiber.New(fiber.Config{
		DisableStartupMessage: true,
		// Streaming handlers read request values after the handler returned.
		Immutable:    true,
		ErrorHandler: errorHandler,
	})

	s := &Server{
		config:   c,
		logger:   c.Logger.With("component", "api"),
		validate: newValidator(),
		app:      app,
	}

	app.Get("/ping", s.handlePing)
	app.Get("/shared/:token", s.handleGetShared)

	conversations := app.Group("/conversations", s.requireUser)
	conversations.Post("/", s.handleCreateConversation)
	conversations.Get("/", s.handleListConversations)
	conversations.Get("/:id", s.handleGetConversation)
	conversations.Patch("/:id", s.handleUpdateConversation)
	conversations.Delete("/:id", s.handleDeleteConversation)
	conversations.Post("/:id/share", s.handleShare)
	conversations.Delete("/:id/share", s.handleUnshare)
	conversations.Post("/:id/turns", s.handleTurn)
	conversations.Post("/:id/regenerate", s.handleRegenerate)
	conversations.Patch("/:id/messages/:messageId", s.handleEditMessage)
	conversations.Delete("/:id/messages/:messageId", s.handleTruncate)
	conversations.Post("/:id/messages/:messageId/regenerate", s.handleEditAndRegenerate)

	mem := app.Group("/memory", s.requireUser)
	mem.Get("/", s.handleListMemories)
	mem.Get("/stats", s.handleMemoryStats)
	mem.Delete("/", s.handleClearMemories)

	if c.MCPHandler != nil {
		app.All("/mcp", s.requireUser, s.handleMCP)
	}

	return s, nil
}

// Run starts the API server on the configured address.
func (s *Server) Run() error {
	s.logger.Info("starting API server", "listen", s.config.ListenAddr)
	return s.app.Listen(s.config.ListenAddr)
}

// Shutdown gracefully shuts down the API server.
func (s *Server) Shutdown() error {
	return s.app.Shutdown()
}

// handleMCP forwards to the MCP handler with the authenticated user in the
// request context. Tool calls are scoped to that user.
func (s *Server) handleMCP(c *fiber.Ctx) error {
	uid := userID(c)
	h := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.config.MCPHandler.ServeHTTP(w, r.WithContext(mcpserver.WithUserID(r.Context(), uid)))
	})
	return adaptor.HTTPHandler(h)(c)
}

func (s *Server) handlePing(c *fiber.Ctx) error {
	return c.JSON("pong")
}
