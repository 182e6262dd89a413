package api

import (
	"github.com/gofiber/fiber/v2"
	"github.com/markwell-app/markwell/internal/metadata"
)

// handleMetadataPreview handles GET /metadata?url=, fetching without saving.
// An unreachable page is still a 200 with status "unavailable".
func (s *Server) handleMetadataPreview(c *fiber.Ctx) error {
	raw := c.Query("url")
	if _, err := metadata.ParseURL(raw); err != nil {
		return SendErrorWithDetails(c, fiber.StatusBadRequest, "Invalid url", "INVALID_URL", err.Error())
	}

	if s.svc.Metadata == nil {
		return SendErrorWithCode(c, fiber.StatusServiceUnavailable, "Metadata fetching is disabled", "SERVICE_UNAVAILABLE")
	}

	return c.JSON(s.svc.Metadata.Fetch(c.UserContext(), raw))
}
