package api

import (
	"github.com/gofiber/fiber/v2"
)

const userIDKey = "recall.user_id"

// requireUser authenticates the bearer token and stores the user id.
func (s *Server) requireUser(c *fiber.Ctx) error {
	userID, err := s.config.Auth.UserID(c.Get(fiber.HeaderAuthorization))
	if err != nil {
		s.logger.Debug("unauthorized request", "path", c.Path(), "error", err)
		return c.Status(fiber.StatusUnauthorized).JSON(ErrorResponse{Error: "unauthorized"})
	}

	c.Locals(userIDKey, userID)
	return c.Next()
}

func userID(c *fiber.Ctx) string {
	id, _ := c.Locals(userIDKey).(string)
	return id
}
