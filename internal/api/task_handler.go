package api

import (
	"github.com/gofiber/fiber/v2"
	"github.com/markwell-app/markwell/internal/tasks"
)

// TaskHandler serves action items
type TaskHandler struct {
	tasks *tasks.Service
}

// List handles GET /tasks?include_done=true
func (h *TaskHandler) List(c *fiber.Ctx) error {
	list, err := h.tasks.List(c.UserContext(), currentUserID(c), tasks.Filter{
		IncludeDone: c.QueryBool("include_done", false),
	})
	if err != nil {
		return handleError(c, err, "list tasks")
	}
	return c.JSON(list)
}

// Create handles POST /tasks
func (h *TaskHandler) Create(c *fiber.Ctx) error {
	var in tasks.Input
	if err := c.BodyParser(&in); err != nil {
		return SendErrorWithCode(c, fiber.StatusBadRequest, "Invalid request body", "INVALID_BODY")
	}

	task, err := h.tasks.Create(c.UserContext(), currentUserID(c), in)
	if err != nil {
		return handleError(c, err, "create task")
	}
	return c.Status(fiber.StatusCreated).JSON(task)
}

// Update handles PATCH /tasks/:id
func (h *TaskHandler) Update(c *fiber.Ctx) error {
	id, ok := parseID(c)
	if !ok {
		return invalidID(c)
	}

	var in tasks.UpdateInput
	if err := c.BodyParser(&in); err != nil {
		return SendErrorWithCode(c, fiber.StatusBadRequest, "Invalid request body", "INVALID_BODY")
	}

	task, err := h.tasks.Update(c.UserContext(), currentUserID(c), id, in)
	if err != nil {
		return handleError(c, err, "update task")
	}
	return c.JSON(task)
}

// Complete handles POST /tasks/:id/complete
func (h *TaskHandler) Complete(c *fiber.Ctx) error {
	id, ok := parseID(c)
	if !ok {
		return invalidID(c)
	}

	task, err := h.tasks.Complete(c.UserContext(), currentUserID(c), id)
	if err != nil {
		return handleError(c, err, "complete task")
	}
	return c.JSON(task)
}

// Delete handles DELETE /tasks/:id
func (h *TaskHandler) Delete(c *fiber.Ctx) error {
	id, ok := parseID(c)
	if !ok {
		return invalidID(c)
	}

	if err := h.tasks.Delete(c.UserContext(), currentUserID(c), id); err != nil {
		return handleError(c, err, "delete task")
	}
	return c.SendStatus(fiber.StatusNoContent)
}
