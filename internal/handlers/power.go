package handlers

import (
	"github.com/gofiber/fiber/v2"

	"github.com/mythicalltd/featherpanel/internal/events"
	"github.com/mythicalltd/featherpanel/internal/permissions"
)

// PowerHandler forwards power state changes and console commands to the
// daemon.
type PowerHandler struct {
	deps *Deps
}

func NewPowerHandler(deps *Deps) *PowerHandler {
	return &PowerHandler{deps: deps}
}

type powerRequest struct {
	Action string `json:"action"`
}

type commandRequest struct {
	Commands []string `json:"commands"`
}

// powerPermissions maps each action to the permission that grants it.
// Kill rides on the stop permission since it is a harder stop.
var powerPermissions = map[string]permissions.Permission{
	"start":   permissions.ControlStart,
	"stop":    permissions.ControlStop,
	"restart": permissions.ControlRestart,
	"kill":    permissions.ControlStop,
}

// Action changes the server's power state.
func (h *PowerHandler) Action(c *fiber.Ctx) error {
	server, err := h.deps.resolveServer(c)
	if server == nil {
		return err
	}

	var req powerRequest
	if err := c.BodyParser(&req); err != nil {
		return fail(c, fiber.StatusBadRequest, CodeInvalidParameters, "Invalid request body")
	}
	perm, known := powerPermissions[req.Action]
	if !known {
		return fail(c, fiber.StatusBadRequest, CodeInvalidParameters, "Action must be start, stop, restart or kill")
	}

	if ok, err := h.deps.requirePermission(c, server.ID, perm); !ok {
		return err
	}

	node, err := h.deps.resolveNode(c, server)
	if node == nil {
		return err
	}

	resp := h.deps.NewClient(node).PowerAction(server.UUID, req.Action)
	if !resp.IsSuccessful() {
		return daemonFail(c, resp)
	}

	h.deps.Recorder.Record(server.ID, currentUserIDPtr(c), events.ServerPowerChanged, clientIP(c), map[string]interface{}{
		"action": req.Action,
	})
	h.deps.Bus.Emit(events.ServerPowerChanged, map[string]interface{}{
		"server_uuid": server.UUID,
		"action":      req.Action,
	})

	return c.JSON(fiber.Map{"success": true, "message": "Power action sent"})
}

// SendCommands writes console commands to the server process.
func (h *PowerHandler) SendCommands(c *fiber.Ctx) error {
	server, err := h.deps.resolveServer(c)
	if server == nil {
		return err
	}
	if ok, err := h.deps.requirePermission(c, server.ID, permissions.ControlConsole); !ok {
		return err
	}

	var req commandRequest
	if err := c.BodyParser(&req); err != nil {
		return fail(c, fiber.StatusBadRequest, CodeInvalidParameters, "Invalid request body")
	}
	if len(req.Commands) == 0 {
		return fail(c, fiber.StatusBadRequest, CodeInvalidParameters, "At least one command is required")
	}

	node, err := h.deps.resolveNode(c, server)
	if node == nil {
		return err
	}

	resp := h.deps.NewClient(node).SendCommands(server.UUID, req.Commands)
	if !resp.IsSuccessful() {
		return daemonFail(c, resp)
	}

	return c.JSON(fiber.Map{"success": true, "message": "Commands sent"})
}

// Status returns the daemon's live view of the server process.
func (h *PowerHandler) Status(c *fiber.Ctx) error {
	server, err := h.deps.resolveServer(c)
	if server == nil {
		return err
	}
	if ok, err := h.deps.requirePermission(c, server.ID, permissions.ActivityRead); !ok {
		return err
	}

	node, err := h.deps.resolveNode(c, server)
	if node == nil {
		return err
	}

	resp := h.deps.NewClient(node).ServerStatus(server.UUID)
	if !resp.IsSuccessful() {
		return daemonFail(c, resp)
	}
	if state, ok := resp.Data["state"].(string); ok {
		syncServerStatus(h.deps, server, state)
	}
	return c.JSON(fiber.Map{"success": true, "data": resp.Data})
}
