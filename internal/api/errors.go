package api

import (
	"errors"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/utils"
	"github.com/markwell-app/markwell/internal/bookmarks"
	"github.com/markwell-app/markwell/internal/email"
	"github.com/markwell-app/markwell/internal/ratelimit"
	"github.com/markwell-app/markwell/internal/tasks"
	"github.com/markwell-app/markwell/internal/users"
	"github.com/rs/zerolog/log"
)

// ErrorResponse is the JSON body of every error answer
type ErrorResponse struct {
	Error     string      `json:"error"`
	Code      string      `json:"code,omitempty"`
	Details   interface{} `json:"details,omitempty"`
	RequestID string      `json:"request_id,omitempty"`
}

// getRequestID extracts the request ID set by the requestid middleware
func getRequestID(c *fiber.Ctx) string {
	if id, ok := c.Locals("requestid").(string); ok && id != "" {
		return id
	}
	return c.Get(fiber.HeaderXRequestID)
}

// SendErrorWithCode sends an error response with an error code
func SendErrorWithCode(c *fiber.Ctx, status int, message, code string) error {
	return c.Status(status).JSON(ErrorResponse{
		Error:     message,
		Code:      code,
		RequestID: getRequestID(c),
	})
}

// SendErrorWithDetails sends an error response with extra context
func SendErrorWithDetails(c *fiber.Ctx, status int, message, code string, details interface{}) error {
	return c.Status(status).JSON(ErrorResponse{
		Error:     message,
		Code:      code,
		Details:   details,
		RequestID: getRequestID(c),
	})
}

// handleError maps domain errors to HTTP responses. Anything unrecognized is
// logged and answered with a generic 500.
func handleError(c *fiber.Ctx, err error, operation string) error {
	switch {
	case errors.Is(err, users.ErrUnauthenticated):
		return SendErrorWithCode(c, fiber.StatusUnauthorized, "Authentication required", "UNAUTHORIZED")

	case errors.Is(err, bookmarks.ErrNotFound), errors.Is(err, tasks.ErrNotFound):
		return SendErrorWithCode(c, fiber.StatusNotFound, "Not found", "NOT_FOUND")

	case errors.Is(err, bookmarks.ErrDuplicate):
		return SendErrorWithCode(c, fiber.StatusConflict, "This URL is already saved", "DUPLICATE")

	case errors.Is(err, bookmarks.ErrInvalidURL),
		errors.Is(err, bookmarks.ErrInvalidTags),
		errors.Is(err, bookmarks.ErrInvalidInput),
		errors.Is(err, tasks.ErrInvalidInput):
		return SendErrorWithDetails(c, fiber.StatusBadRequest, "Invalid request", "INVALID_INPUT", err.Error())

	case errors.Is(err, ratelimit.ErrStoreUnavailable):
		log.Error().Err(err).Str("operation", operation).Msg("Rate limit store unavailable")
		return SendErrorWithCode(c, fiber.StatusServiceUnavailable, "Service temporarily unavailable", "SERVICE_UNAVAILABLE")

	case errors.Is(err, email.ErrDeliveryFailed):
		log.Warn().Err(err).Str("operation", operation).Msg("Mail delivery failed")
		return SendErrorWithCode(c, fiber.StatusBadGateway, "Mail could not be delivered", "DELIVERY_FAILED")
	}

	log.Error().
		Err(err).
		Str("operation", operation).
		Str("request_id", getRequestID(c)).
		Msg("Request failed")
	return SendErrorWithCode(c, fiber.StatusInternalServerError, "Internal server error", "INTERNAL_ERROR")
}

// customErrorHandler renders errors that escape handlers and middleware
func customErrorHandler(c *fiber.Ctx, err error) error {
	code := fiber.StatusInternalServerError
	message := "Internal Server Error"

	var e *fiber.Error
	if errors.As(err, &e) {
		code = e.Code
		message = e.Message
	}

	if code >= fiber.StatusInternalServerError {
		log.Error().
			Err(err).
			Int("status", code).
			Str("path", c.Path()).
			Str("request_id", getRequestID(c)).
			Msg("Unhandled error")
	}

	return SendErrorWithCode(c, code, message, errorCode(code))
}

// errorCode derives a machine readable code from an HTTP status,
// "Not Found" becoming NOT_FOUND
func errorCode(status int) string {
	switch status {
	case fiber.StatusTooManyRequests:
		return "RATE_LIMITED"
	case fiber.StatusRequestEntityTooLarge:
		return "PAYLOAD_TOO_LARGE"
	}
	msg := utils.StatusMessage(status)
	if msg == "" {
		return "INTERNAL_ERROR"
	}
	return strings.ToUpper(strings.ReplaceAll(msg, " ", "_"))
}
