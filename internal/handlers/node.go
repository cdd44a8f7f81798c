package handlers

import (
	"errors"

	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"

	"github.com/mythicalltd/featherpanel/internal/models"
)

// NodeHandler is the admin-facing node management surface. All routes
// sit behind the AdminOnly middleware.
type NodeHandler struct {
	deps *Deps
}

func NewNodeHandler(deps *Deps) *NodeHandler {
	return &NodeHandler{deps: deps}
}

type nodeRequest struct {
	Name        string `json:"name"`
	FQDN        string `json:"fqdn"`
	Scheme      string `json:"scheme"`
	DaemonPort  int    `json:"daemon_port"`
	DaemonToken string `json:"daemon_token"`
	PublicIPv4  string `json:"public_ipv4"`
	PublicIPv6  string `json:"public_ipv6"`
}

// List returns all nodes.
func (h *NodeHandler) List(c *fiber.Ctx) error {
	var nodes []models.Node
	if err := h.deps.DB.Find(&nodes).Error; err != nil {
		return fail(c, fiber.StatusInternalServerError, CodeInternalError, "Failed to load nodes")
	}
	return c.JSON(fiber.Map{"success": true, "data": nodes})
}

// Create registers a new node.
func (h *NodeHandler) Create(c *fiber.Ctx) error {
	var req nodeRequest
	if err := c.BodyParser(&req); err != nil {
		return fail(c, fiber.StatusBadRequest, CodeInvalidParameters, "Invalid request body")
	}
	if req.Name == "" || req.FQDN == "" || req.DaemonToken == "" {
		return fail(c, fiber.StatusBadRequest, CodeInvalidParameters, "Name, FQDN and daemon token are required")
	}
	if req.Scheme == "" {
		req.Scheme = "http"
	}
	if req.DaemonPort == 0 {
		req.DaemonPort = 8080
	}

	node := models.Node{
		Name:        req.Name,
		FQDN:        req.FQDN,
		Scheme:      req.Scheme,
		DaemonPort:  req.DaemonPort,
		DaemonToken: req.DaemonToken,
		PublicIPv4:  req.PublicIPv4,
		PublicIPv6:  req.PublicIPv6,
	}
	if err := h.deps.DB.Create(&node).Error; err != nil {
		return fail(c, fiber.StatusInternalServerError, CodeInternalError, "Failed to create node")
	}
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"success": true, "data": node})
}

// Update edits node settings.
func (h *NodeHandler) Update(c *fiber.Ctx) error {
	nodeID, err := c.ParamsInt("node")
	if err != nil {
		return fail(c, fiber.StatusBadRequest, CodeInvalidParameters, "Invalid node ID")
	}
	var node models.Node
	if err := h.deps.DB.First(&node, nodeID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return fail(c, fiber.StatusNotFound, CodeNodeNotFound, "Node not found")
		}
		return fail(c, fiber.StatusInternalServerError, CodeInternalError, "Failed to load node")
	}

	var req nodeRequest
	if err := c.BodyParser(&req); err != nil {
		return fail(c, fiber.StatusBadRequest, CodeInvalidParameters, "Invalid request body")
	}
	if req.Name != "" {
		node.Name = req.Name
	}
	if req.FQDN != "" {
		node.FQDN = req.FQDN
	}
	if req.Scheme != "" {
		node.Scheme = req.Scheme
	}
	if req.DaemonPort != 0 {
		node.DaemonPort = req.DaemonPort
	}
	if req.DaemonToken != "" {
		node.DaemonToken = req.DaemonToken
	}
	node.PublicIPv4 = req.PublicIPv4
	node.PublicIPv6 = req.PublicIPv6

	if err := h.deps.DB.Save(&node).Error; err != nil {
		return fail(c, fiber.StatusInternalServerError, CodeInternalError, "Failed to update node")
	}
	return c.JSON(fiber.Map{"success": true, "data": node})
}

// Delete removes a node that hosts no servers.
func (h *NodeHandler) Delete(c *fiber.Ctx) error {
	nodeID, err := c.ParamsInt("node")
	if err != nil {
		return fail(c, fiber.StatusBadRequest, CodeInvalidParameters, "Invalid node ID")
	}

	var count int64
	if err := h.deps.DB.Model(&models.Server{}).Where("node_id = ?", nodeID).Count(&count).Error; err != nil {
		return fail(c, fiber.StatusInternalServerError, CodeInternalError, "Failed to count servers")
	}
	if count > 0 {
		return fail(c, fiber.StatusBadRequest, CodeInvalidParameters, "Node still hosts servers")
	}

	result := h.deps.DB.Delete(&models.Node{}, nodeID)
	if result.Error != nil {
		return fail(c, fiber.StatusInternalServerError, CodeInternalError, "Failed to delete node")
	}
	if result.RowsAffected == 0 {
		return fail(c, fiber.StatusNotFound, CodeNodeNotFound, "Node not found")
	}
	return c.JSON(fiber.Map{"success": true, "message": "Node deleted"})
}

// TestConnection asks the node's daemon for its system information.
func (h *NodeHandler) TestConnection(c *fiber.Ctx) error {
	nodeID, err := c.ParamsInt("node")
	if err != nil {
		return fail(c, fiber.StatusBadRequest, CodeInvalidParameters, "Invalid node ID")
	}
	var node models.Node
	if err := h.deps.DB.First(&node, nodeID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return fail(c, fiber.StatusNotFound, CodeNodeNotFound, "Node not found")
		}
		return fail(c, fiber.StatusInternalServerError, CodeInternalError, "Failed to load node")
	}

	resp := h.deps.NewClient(&node).SystemInfo()
	if !resp.IsSuccessful() {
		return fail(c, fiber.StatusBadGateway, CodeDaemonError, resp.Error())
	}
	return c.JSON(fiber.Map{"success": true, "data": resp.Data})
}
