package api

import (
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/markwell-app/markwell/internal/middleware"
	"github.com/markwell-app/markwell/internal/users"
)

const localsUser = "user"

// requireUser provisions the local user for the authenticated principal and
// stores it for the handlers
func (s *Server) requireUser(c *fiber.Ctx) error {
	user, err := s.svc.Users.EnsureUser(c.UserContext(), middleware.GetPrincipal(c))
	if err != nil {
		return handleError(c, err, "provision user")
	}
	c.Locals(localsUser, user)
	return c.Next()
}

// currentUser returns the user stored by requireUser
func currentUser(c *fiber.Ctx) *users.User {
	u, _ := c.Locals(localsUser).(*users.User)
	return u
}

func currentUserID(c *fiber.Ctx) uuid.UUID {
	if u := currentUser(c); u != nil {
		return u.ID
	}
	return uuid.Nil
}

// handleMe returns the signed-in user
func (s *Server) handleMe(c *fiber.Ctx) error {
	user := currentUser(c)
	if user == nil {
		return handleError(c, users.ErrUnauthenticated, "me")
	}
	return c.JSON(user)
}

// parseID reads the :id route parameter
func parseID(c *fiber.Ctx) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Params("id"))
	return id, err == nil
}

func invalidID(c *fiber.Ctx) error {
	return SendErrorWithCode(c, fiber.StatusBadRequest, "Invalid id", "INVALID_ID")
}
