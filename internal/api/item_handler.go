package api

import (
	"github.com/gofiber/fiber/v2"
	"github.com/markwell-app/markwell/internal/bookmarks"
)

// ItemHandler serves saved links and their tags
type ItemHandler struct {
	items *bookmarks.Service
}

// List handles GET /items?tag=&q=&limit=&offset=
func (h *ItemHandler) List(c *fiber.Ctx) error {
	items, err := h.items.List(c.UserContext(), currentUserID(c), bookmarks.Filter{
		Tag:    c.Query("tag"),
		Query:  c.Query("q"),
		Limit:  c.QueryInt("limit", bookmarks.DefaultPageSize),
		Offset: c.QueryInt("offset", 0),
	})
	if err != nil {
		return handleError(c, err, "list items")
	}
	return c.JSON(items)
}

// Create handles POST /items
func (h *ItemHandler) Create(c *fiber.Ctx) error {
	var in bookmarks.CreateInput
	if err := c.BodyParser(&in); err != nil {
		return SendErrorWithCode(c, fiber.StatusBadRequest, "Invalid request body", "INVALID_BODY")
	}

	item, err := h.items.Create(c.UserContext(), currentUserID(c), in)
	if err != nil {
		return handleError(c, err, "create item")
	}
	return c.Status(fiber.StatusCreated).JSON(item)
}

// Get handles GET /items/:id
func (h *ItemHandler) Get(c *fiber.Ctx) error {
	id, ok := parseID(c)
	if !ok {
		return invalidID(c)
	}

	item, err := h.items.Get(c.UserContext(), currentUserID(c), id)
	if err != nil {
		return handleError(c, err, "get item")
	}
	return c.JSON(item)
}

// Update handles PATCH /items/:id
func (h *ItemHandler) Update(c *fiber.Ctx) error {
	id, ok := parseID(c)
	if !ok {
		return invalidID(c)
	}

	var in bookmarks.UpdateInput
	if err := c.BodyParser(&in); err != nil {
		return SendErrorWithCode(c, fiber.StatusBadRequest, "Invalid request body", "INVALID_BODY")
	}

	item, err := h.items.Update(c.UserContext(), currentUserID(c), id, in)
	if err != nil {
		return handleError(c, err, "update item")
	}
	return c.JSON(item)
}

// Delete handles DELETE /items/:id
func (h *ItemHandler) Delete(c *fiber.Ctx) error {
	id, ok := parseID(c)
	if !ok {
		return invalidID(c)
	}

	if err := h.items.Delete(c.UserContext(), currentUserID(c), id); err != nil {
		return handleError(c, err, "delete item")
	}
	return c.SendStatus(fiber.StatusNoContent)
}

// Refresh handles POST /items/:id/refresh
func (h *ItemHandler) Refresh(c *fiber.Ctx) error {
	id, ok := parseID(c)
	if !ok {
		return invalidID(c)
	}

	item, err := h.items.Refresh(c.UserContext(), currentUserID(c), id)
	if err != nil {
		return handleError(c, err, "refresh item")
	}
	return c.JSON(item)
}

// Share handles POST /items/:id/share
func (h *ItemHandler) Share(c *fiber.Ctx) error {
	id, ok := parseID(c)
	if !ok {
		return invalidID(c)
	}

	var in bookmarks.ShareInput
	if err := c.BodyParser(&in); err != nil {
		return SendErrorWithCode(c, fiber.StatusBadRequest, "Invalid request body", "INVALID_BODY")
	}

	sender := ""
	if u := currentUser(c); u != nil {
		sender = u.Name
		if sender == "" {
			sender = u.Email
		}
	}

	if err := h.items.Share(c.UserContext(), currentUserID(c), id, sender, in); err != nil {
		return handleError(c, err, "share item")
	}
	return c.SendStatus(fiber.StatusAccepted)
}

// Tags handles GET /tags
func (h *ItemHandler) Tags(c *fiber.Ctx) error {
	tags, err := h.items.Tags(c.UserContext(), currentUserID(c))
	if err != nil {
		return handleError(c, err, "list tags")
	}
	return c.JSON(tags)
}
