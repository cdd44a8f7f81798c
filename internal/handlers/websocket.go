package handlers

import (
	"github.com/gofiber/fiber/v2"

	"github.com/mythicalltd/featherpanel/internal/middleware"
	"github.com/mythicalltd/featherpanel/internal/permissions"
)

// WebsocketHandler issues the scoped token and connection string the
// browser uses to attach to the daemon's console websocket directly.
// The panel never proxies the stream.
type WebsocketHandler struct {
	deps *Deps
}

func NewWebsocketHandler(deps *Deps) *WebsocketHandler {
	return &WebsocketHandler{deps: deps}
}

// Token returns a connection string carrying the caller's effective
// permissions, so the daemon enforces the same capability set the panel
// would.
func (h *WebsocketHandler) Token(c *fiber.Ctx) error {
	server, err := h.deps.resolveServer(c)
	if server == nil {
		return err
	}
	if ok, err := h.deps.requirePermission(c, server.ID, permissions.WebsocketConnect); !ok {
		return err
	}

	user := middleware.GetCurrentUser(c)
	if user == nil {
		return fail(c, fiber.StatusUnauthorized, CodeInvalidParameters, "Not authenticated")
	}

	perms, err := h.deps.Gate.ResolvePermissions(user.ID, server.ID)
	if err != nil {
		return fail(c, fiber.StatusInternalServerError, CodeInternalError, "Failed to resolve permissions")
	}

	node, err := h.deps.resolveNode(c, server)
	if node == nil {
		return err
	}

	wsURL, err := h.deps.Issuer.WebSocketURL(node, server.UUID, user.UUID, permissions.Strings(perms))
	if err != nil {
		return fail(c, fiber.StatusInternalServerError, CodeInternalError, "Failed to issue websocket token")
	}

	return c.JSON(fiber.Map{
		"success": true,
		"data":    fiber.Map{"url": wsURL},
	})
}
