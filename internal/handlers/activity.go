package handlers

import (
	"github.com/gofiber/fiber/v2"

	"github.com/mythicalltd/featherpanel/internal/permissions"
)

// ActivityHandler exposes the append-only audit trail for a server.
type ActivityHandler struct {
	deps *Deps
}

func NewActivityHandler(deps *Deps) *ActivityHandler {
	return &ActivityHandler{deps: deps}
}

// List returns a page of activity entries, newest first.
func (h *ActivityHandler) List(c *fiber.Ctx) error {
	server, err := h.deps.resolveServer(c)
	if server == nil {
		return err
	}
	if ok, err := h.deps.requirePermission(c, server.ID, permissions.ActivityRead); !ok {
		return err
	}

	page := c.QueryInt("page", 1)
	perPage := c.QueryInt("per_page", 25)

	entries, total, err := h.deps.Recorder.List(server.ID, page, perPage)
	if err != nil {
		return fail(c, fiber.StatusInternalServerError, CodeInternalError, "Failed to load activity")
	}

	return c.JSON(fiber.Map{
		"success": true,
		"data":    entries,
		"meta": fiber.Map{
			"total":    total,
			"page":     page,
			"per_page": perPage,
		},
	})
}
