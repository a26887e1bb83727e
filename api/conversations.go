package api

import (
	"github.com/gofiber/fiber/v2"

	"github.com/papercomputeco/recall/pkg/conversation"
)

type createConversationRequest struct {
	Title string `json:"title" validate:"max=200"`
}

type updateConversationRequest struct {
	Title    *string                `json:"title" validate:"omitempty,min=1,max=200"`
	Messages []conversation.Message `json:"messages" validate:"omitempty,max=500"`
}

type editMessageRequest struct {
	Content string `json:"content" validate:"required"`
	Action  string `json:"action" validate:"required"`
}

// ListConversationsResponse is the body of GET /conversations.
type ListConversationsResponse struct {
	Conversations []conversation.Summary `json:"conversations"`
}

// MessagesResponse carries the message sequence after an edit or truncate.
type MessagesResponse struct {
	Messages []conversation.Message `json:"messages"`
}

// ShareResponse is the body of POST /conversations/:id/share.
type ShareResponse struct {
	ShareToken string `json:"shareToken"`
}

// SuccessResponse acknowledges a mutation without a body of its own.
type SuccessResponse struct {
	Success bool `json:"success"`
}

func (s *Server) handleCreateConversation(c *fiber.Ctx) error {
	var req createConversationRequest
	if err := s.bind(c, &req, true); err != nil {
		return err
	}

	conv, err := s.config.Store.CreateConversation(c.Context(), userID(c), req.Title)
	if err != nil {
		return s.fail(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(conv)
}

func (s *Server) handleListConversations(c *fiber.Ctx) error {
	summaries, err := s.config.Store.ListConversations(c.Context(), userID(c))
	if err != nil {
		return s.fail(c, err)
	}
	if summaries == nil {
		summaries = []conversation.Summary{}
	}
	return c.JSON(ListConversationsResponse{Conversations: summaries})
}

func (s *Server) handleGetConversation(c *fiber.Ctx) error {
	conv, err := s.config.Store.GetConversation(c.Context(), c.Params("id"), userID(c))
	if err != nil {
		return s.fail(c, err)
	}
	return c.JSON(conv)
}

// handleUpdateConversation appends messages idempotently, creating the
// conversation when needed, then applies the title.
func (s *Server) handleUpdateConversation(c *fiber.Ctx) error {
	var req updateConversationRequest
	if err := s.bind(c, &req, false); err != nil {
		return err
	}

	ctx := c.Context()
	id, owner := c.Params("id"), userID(c)

	if len(req.Messages) > 0 {
		res, err := s.config.Store.AppendMessages(ctx, id, owner, req.Messages)
		if err != nil {
			return s.fail(c, err)
		}
		s.logger.Debug("messages appended",
			"conversation_id", id,
			"appended", len(res.Appended),
			"dropped", len(req.Messages)-len(res.Appended),
		)
	}

	if req.Title != nil {
		if err := s.config.Store.SetTitle(ctx, id, owner, *req.Title); err != nil {
			return s.fail(c, err)
		}
	}

	conv, err := s.config.Store.GetConversation(ctx, id, owner)
	if err != nil {
		return s.fail(c, err)
	}
	return c.JSON(conv)
}

func (s *Server) handleDeleteConversation(c *fiber.Ctx) error {
	if err := s.config.Store.DeleteConversation(c.Context(), c.Params("id"), userID(c)); err != nil {
		return s.fail(c, err)
	}
	return c.JSON(SuccessResponse{Success: true})
}

func (s *Server) handleEditMessage(c *fiber.Ctx) error {
	var req editMessageRequest
	if err := s.bind(c, &req, false); err != nil {
		return err
	}

	msgs, err := s.config.Editor.Edit(c.Context(), userID(c), c.Params("id"), c.Params("messageId"), req.Content, req.Action)
	if err != nil {
		return s.fail(c, err)
	}
	return c.JSON(MessagesResponse{Messages: msgs})
}

func (s *Server) handleTruncate(c *fiber.Ctx) error {
	msgs, err := s.config.Store.TruncateFrom(c.Context(), c.Params("id"), userID(c), c.Params("messageId"))
	if err != nil {
		return s.fail(c, err)
	}
	return c.JSON(MessagesResponse{Messages: msgs})
}

func (s *Server) handleShare(c *fiber.Ctx) error {
	token, err := s.config.Store.ShareConversation(c.Context(), c.Params("id"), userID(c))
	if err != nil {
		return s.fail(c, err)
	}
	return c.JSON(ShareResponse{ShareToken: token})
}

func (s *Server) handleUnshare(c *fiber.Ctx) error {
	if err := s.config.Store.UnshareConversation(c.Context(), c.Params("id"), userID(c)); err != nil {
		return s.fail(c, err)
	}
	return c.JSON(SuccessResponse{Success: true})
}

// handleGetShared serves a shared conversation read-only, without its owner.
func (s *Server) handleGetShared(c *fiber.Ctx) error {
	conv, err := s.config.Store.GetSharedConversation(c.Context(), c.Params("token"))
	if err != nil {
		return s.fail(c, err)
	}
	conv.OwnerID = ""
	return c.JSON(conv)
}
