package handlers

import (
	"github.com/gofiber/fiber/v2"

	"github.com/mythicalltd/featherpanel/internal/events"
	"github.com/mythicalltd/featherpanel/internal/permissions"
	"github.com/mythicalltd/featherpanel/internal/services"
)

// FastDLHandler toggles the daemon's FastDL web server for a game
// server. All state lives on the daemon; the panel only gates and
// forwards.
type FastDLHandler struct {
	deps *Deps
}

func NewFastDLHandler(deps *Deps) *FastDLHandler {
	return &FastDLHandler{deps: deps}
}

type fastDLRequest struct {
	Path string `json:"path"`
}

// Get returns the daemon's FastDL state for the server.
func (h *FastDLHandler) Get(c *fiber.Ctx) error {
	server, err := h.deps.resolveServer(c)
	if server == nil {
		return err
	}
	if ok, err := h.deps.requireFeature(c, services.SettingAllowUserFastDL, CodeFastDLDisabled, "FastDL"); !ok {
		return err
	}
	if ok, err := h.deps.requirePermission(c, server.ID, permissions.FastDLRead); !ok {
		return err
	}

	node, err := h.deps.resolveNode(c, server)
	if node == nil {
		return err
	}

	resp := h.deps.NewClient(node).GetFastDL(server.UUID)
	if !resp.IsSuccessful() {
		return daemonFail(c, resp)
	}
	return c.JSON(fiber.Map{"success": true, "data": resp.Data})
}

// Enable turns FastDL on for the server.
func (h *FastDLHandler) Enable(c *fiber.Ctx) error {
	server, err := h.deps.resolveServer(c)
	if server == nil {
		return err
	}
	if ok, err := h.deps.requireFeature(c, services.SettingAllowUserFastDL, CodeFastDLDisabled, "FastDL"); !ok {
		return err
	}
	if ok, err := h.deps.requirePermission(c, server.ID, permissions.FastDLManage); !ok {
		return err
	}

	var req fastDLRequest
	if err := c.BodyParser(&req); err != nil {
		return fail(c, fiber.StatusBadRequest, CodeInvalidParameters, "Invalid request body")
	}

	node, err := h.deps.resolveNode(c, server)
	if node == nil {
		return err
	}

	payload := map[string]interface{}{}
	if req.Path != "" {
		payload["path"] = req.Path
	}
	resp := h.deps.NewClient(node).EnableFastDL(server.UUID, payload)
	if !resp.IsSuccessful() {
		return daemonFail(c, resp)
	}

	h.deps.Recorder.Record(server.ID, currentUserIDPtr(c), events.FastDLChanged, clientIP(c), map[string]interface{}{
		"enabled": true,
	})
	h.deps.Bus.Emit(events.FastDLChanged, map[string]interface{}{
		"server_uuid": server.UUID,
		"enabled":     true,
	})
	return c.JSON(fiber.Map{"success": true, "data": resp.Data})
}

// Disable turns FastDL off for the server.
func (h *FastDLHandler) Disable(c *fiber.Ctx) error {
	server, err := h.deps.resolveServer(c)
	if server == nil {
		return err
	}
	if ok, err := h.deps.requireFeature(c, services.SettingAllowUserFastDL, CodeFastDLDisabled, "FastDL"); !ok {
		return err
	}
	if ok, err := h.deps.requirePermission(c, server.ID, permissions.FastDLManage); !ok {
		return err
	}

	node, err := h.deps.resolveNode(c, server)
	if node == nil {
		return err
	}

	resp := h.deps.NewClient(node).DisableFastDL(server.UUID)
	if !resp.IsSuccessful() {
		return daemonFail(c, resp)
	}

	h.deps.Recorder.Record(server.ID, currentUserIDPtr(c), events.FastDLChanged, clientIP(c), map[string]interface{}{
		"enabled": false,
	})
	h.deps.Bus.Emit(events.FastDLChanged, map[string]interface{}{
		"server_uuid": server.UUID,
		"enabled":     false,
	})
	return c.JSON(fiber.Map{"success": true, "message": "FastDL disabled"})
}

// Update changes FastDL settings on the daemon.
func (h *FastDLHandler) Update(c *fiber.Ctx) error {
	server, err := h.deps.resolveServer(c)
	if server == nil {
		return err
	}
	if ok, err := h.deps.requireFeature(c, services.SettingAllowUserFastDL, CodeFastDLDisabled, "FastDL"); !ok {
		return err
	}
	if ok, err := h.deps.requirePermission(c, server.ID, permissions.FastDLManage); !ok {
		return err
	}

	var req fastDLRequest
	if err := c.BodyParser(&req); err != nil {
		return fail(c, fiber.StatusBadRequest, CodeInvalidParameters, "Invalid request body")
	}

	node, err := h.deps.resolveNode(c, server)
	if node == nil {
		return err
	}

	resp := h.deps.NewClient(node).UpdateFastDL(server.UUID, map[string]interface{}{
		"path": req.Path,
	})
	if !resp.IsSuccessful() {
		return daemonFail(c, resp)
	}
	return c.JSON(fiber.Map{"success": true, "data": resp.Data})
}
