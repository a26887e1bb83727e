package api

import (
	"errors"

	"github.com/gofiber/fiber/v2"

	"github.com/papercomputeco/recall/pkg/auth"
	"github.com/papercomputeco/recall/pkg/chat"
	"github.com/papercomputeco/recall/pkg/storage"
)

// ErrorResponse is the body of every failed request.
type ErrorResponse struct {
	Error string `json:"error"`
}

// statusFor maps an error to its HTTP status.
func statusFor(err error) int {
	var fiberErr *fiber.Error
	switch {
	case errors.As(err, &fiberErr):
		return fiberErr.Code
	case errors.Is(err, chat.ErrNotFound), errors.Is(err, storage.ErrNotFound):
		return fiber.StatusNotFound
	case errors.Is(err, chat.ErrUnauthorized),
		errors.Is(err, auth.ErrMissingToken),
		errors.Is(err, auth.ErrInvalidToken),
		errors.Is(err, auth.ErrExpiredToken),
		errors.Is(err, auth.ErrInvalidClaims):
		return fiber.StatusUnauthorized
	case errors.Is(err, chat.ErrUpstream):
		return fiber.StatusBadGateway
	case errors.Is(err, chat.ErrValidation), errors.Is(err, storage.ErrInvalidMessage):
		return fiber.StatusBadRequest
	}
	return fiber.StatusInternalServerError
}

// errorMessage hides the details of internal errors.
func errorMessage(err error, status int) string {
	if status == fiber.StatusInternalServerError {
		return "internal server error"
	}
	return err.Error()
}

func (s *Server) fail(c *fiber.Ctx, err error) error {
	status := statusFor(err)
	if status >= fiber.StatusInternalServerError {
		s.logger.Error("request failed",
			"method", c.Method(),
			"path", c.Path(),
			"status", status,
			"error", err,
		)
	}
	return c.Status(status).JSON(ErrorResponse{Error: errorMessage(err, status)})
}

func badRequest(c *fiber.Ctx, msg string) error {
	return c.Status(fiber.StatusBadRequest).JSON(ErrorResponse{Error: msg})
}

func errorHandler(c *fiber.Ctx, err error) error {
	status := statusFor(err)
	return c.Status(status).JSON(ErrorResponse{Error: errorMessage(err, status)})
}
