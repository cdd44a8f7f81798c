package handlers

import (
	"errors"
	"log"

	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"

	"github.com/mythicalltd/featherpanel/internal/events"
	"github.com/mythicalltd/featherpanel/internal/models"
	"github.com/mythicalltd/featherpanel/internal/permissions"
	"github.com/mythicalltd/featherpanel/internal/services"
	"github.com/mythicalltd/featherpanel/internal/validate"
)

// FirewallHandler manages per-server firewall rules. The daemon owns the
// rules; local rows are mirrors written after the daemon confirms.
type FirewallHandler struct {
	deps *Deps
}

func NewFirewallHandler(deps *Deps) *FirewallHandler {
	return &FirewallHandler{deps: deps}
}

type firewallRuleRequest struct {
	RemoteIP   string `json:"remote_ip"`
	ServerPort int    `json:"server_port"`
	Priority   int    `json:"priority"`
	Type       string `json:"type"`
	Protocol   string `json:"protocol"`
}

// validateRule checks the request before anything reaches the daemon.
// Returns a non-nil error with the response already written on failure.
func (h *FirewallHandler) validateRule(c *fiber.Ctx, req *firewallRuleRequest) (bool, error) {
	if validate.ContainsDangerousChars(req.RemoteIP) {
		return false, fail(c, fiber.StatusBadRequest, CodeInvalidRemoteIP, "Remote IP contains invalid characters")
	}
	if !validate.IsValidIPOrCIDR(req.RemoteIP) {
		return false, fail(c, fiber.StatusBadRequest, CodeInvalidRemoteIP, "Remote IP must be a valid IP address or CIDR block")
	}
	if !validate.IsValidPort(req.ServerPort) {
		return false, fail(c, fiber.StatusBadRequest, CodeInvalidPort, "Port must be between 1 and 65535")
	}
	if !validate.IsValidPriority(req.Priority) {
		return false, fail(c, fiber.StatusBadRequest, CodeInvalidPriority, "Priority must be between 0 and 10000")
	}
	if req.Type != string(models.FirewallRuleAllow) && req.Type != string(models.FirewallRuleBlock) {
		return false, fail(c, fiber.StatusBadRequest, CodeInvalidParameters, "Rule type must be allow or block")
	}
	if req.Protocol != "tcp" && req.Protocol != "udp" {
		return false, fail(c, fiber.StatusBadRequest, CodeInvalidParameters, "Protocol must be tcp or udp")
	}
	return true, nil
}

// List returns the locally mirrored rules for a server.
func (h *FirewallHandler) List(c *fiber.Ctx) error {
	server, err := h.deps.resolveServer(c)
	if server == nil {
		return err
	}
	if ok, err := h.deps.requireFeature(c, services.SettingAllowUserFirewall, CodeFirewallDisabled, "Firewall"); !ok {
		return err
	}
	if ok, err := h.deps.requirePermission(c, server.ID, permissions.FirewallRead); !ok {
		return err
	}

	var rules []models.FirewallRule
	if err := h.deps.DB.Where("server_id = ?", server.ID).Order("priority ASC").Find(&rules).Error; err != nil {
		return fail(c, fiber.StatusInternalServerError, CodeInternalError, "Failed to load firewall rules")
	}
	return c.JSON(fiber.Map{"success": true, "data": rules})
}

// Create validates the rule, commits it on the daemon and mirrors it
// locally. A failed mirror write is logged but does not fail the
// request since the daemon already holds the rule.
func (h *FirewallHandler) Create(c *fiber.Ctx) error {
	server, err := h.deps.resolveServer(c)
	if server == nil {
		return err
	}
	if ok, err := h.deps.requireFeature(c, services.SettingAllowUserFirewall, CodeFirewallDisabled, "Firewall"); !ok {
		return err
	}
	if ok, err := h.deps.requirePermission(c, server.ID, permissions.FirewallManage); !ok {
		return err
	}

	var req firewallRuleRequest
	if err := c.BodyParser(&req); err != nil {
		return fail(c, fiber.StatusBadRequest, CodeInvalidParameters, "Invalid request body")
	}
	if req.Protocol == "" {
		req.Protocol = "tcp"
	}
	if ok, err := h.validateRule(c, &req); !ok {
		return err
	}

	node, err := h.deps.resolveNode(c, server)
	if node == nil {
		return err
	}

	resp := h.deps.NewClient(node).CreateFirewallRule(server.UUID, map[string]interface{}{
		"remote_ip":   req.RemoteIP,
		"server_port": req.ServerPort,
		"priority":    req.Priority,
		"type":        req.Type,
		"protocol":    req.Protocol,
	})
	if !resp.IsSuccessful() {
		return daemonFail(c, resp)
	}

	rule := models.FirewallRule{
		ServerID:     server.ID,
		DaemonRuleID: extractRuleID(resp.Data),
		RemoteIP:     req.RemoteIP,
		ServerPort:   req.ServerPort,
		Priority:     req.Priority,
		Type:         models.FirewallRuleType(req.Type),
		Protocol:     req.Protocol,
	}
	if err := h.deps.DB.Create(&rule).Error; err != nil {
		log.Printf("WARNING: failed to mirror firewall rule for server %s: %v", server.UUID, err)
	}

	h.deps.Recorder.Record(server.ID, currentUserIDPtr(c), events.FirewallRuleCreated, clientIP(c), map[string]interface{}{
		"remote_ip":   req.RemoteIP,
		"server_port": req.ServerPort,
		"type":        req.Type,
	})
	h.deps.Bus.Emit(events.FirewallRuleCreated, map[string]interface{}{
		"server_uuid": server.UUID,
		"rule_id":     rule.DaemonRuleID,
	})

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"success": true, "data": rule})
}

// Update changes an existing rule on the daemon and refreshes the
// mirror.
func (h *FirewallHandler) Update(c *fiber.Ctx) error {
	server, err := h.deps.resolveServer(c)
	if server == nil {
		return err
	}
	if ok, err := h.deps.requireFeature(c, services.SettingAllowUserFirewall, CodeFirewallDisabled, "Firewall"); !ok {
		return err
	}
	if ok, err := h.deps.requirePermission(c, server.ID, permissions.FirewallManage); !ok {
		return err
	}

	ruleID, err := c.ParamsInt("rule")
	if err != nil {
		return fail(c, fiber.StatusBadRequest, CodeInvalidParameters, "Invalid rule ID")
	}
	var rule models.FirewallRule
	if err := h.deps.DB.Where("id = ? AND server_id = ?", ruleID, server.ID).First(&rule).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return fail(c, fiber.StatusNotFound, CodeRuleNotFound, "Firewall rule not found")
		}
		return fail(c, fiber.StatusInternalServerError, CodeInternalError, "Failed to load firewall rule")
	}

	var req firewallRuleRequest
	if err := c.BodyParser(&req); err != nil {
		return fail(c, fiber.StatusBadRequest, CodeInvalidParameters, "Invalid request body")
	}
	if req.Protocol == "" {
		req.Protocol = rule.Protocol
	}
	if ok, err := h.validateRule(c, &req); !ok {
		return err
	}

	node, err := h.deps.resolveNode(c, server)
	if node == nil {
		return err
	}

	resp := h.deps.NewClient(node).UpdateFirewallRule(server.UUID, rule.DaemonRuleID, map[string]interface{}{
		"remote_ip":   req.RemoteIP,
		"server_port": req.ServerPort,
		"priority":    req.Priority,
		"type":        req.Type,
		"protocol":    req.Protocol,
	})
	if !resp.IsSuccessful() {
		return daemonFail(c, resp)
	}

	rule.RemoteIP = req.RemoteIP
	rule.ServerPort = req.ServerPort
	rule.Priority = req.Priority
	rule.Type = models.FirewallRuleType(req.Type)
	rule.Protocol = req.Protocol
	if err := h.deps.DB.Save(&rule).Error; err != nil {
		log.Printf("WARNING: failed to update firewall rule mirror %d: %v", rule.ID, err)
	}

	h.deps.Recorder.Record(server.ID, currentUserIDPtr(c), events.FirewallRuleUpdated, clientIP(c), map[string]interface{}{
		"rule_id":   rule.ID,
		"remote_ip": req.RemoteIP,
	})
	h.deps.Bus.Emit(events.FirewallRuleUpdated, map[string]interface{}{
		"server_uuid": server.UUID,
		"rule_id":     rule.DaemonRuleID,
	})

	return c.JSON(fiber.Map{"success": true, "data": rule})
}

// Delete removes the rule from the daemon, then the mirror.
func (h *FirewallHandler) Delete(c *fiber.Ctx) error {
	server, err := h.deps.resolveServer(c)
	if server == nil {
		return err
	}
	if ok, err := h.deps.requireFeature(c, services.SettingAllowUserFirewall, CodeFirewallDisabled, "Firewall"); !ok {
		return err
	}
	if ok, err := h.deps.requirePermission(c, server.ID, permissions.FirewallManage); !ok {
		return err
	}

	ruleID, err := c.ParamsInt("rule")
	if err != nil {
		return fail(c, fiber.StatusBadRequest, CodeInvalidParameters, "Invalid rule ID")
	}
	var rule models.FirewallRule
	if err := h.deps.DB.Where("id = ? AND server_id = ?", ruleID, server.ID).First(&rule).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return fail(c, fiber.StatusNotFound, CodeRuleNotFound, "Firewall rule not found")
		}
		return fail(c, fiber.StatusInternalServerError, CodeInternalError, "Failed to load firewall rule")
	}

	node, err := h.deps.resolveNode(c, server)
	if node == nil {
		return err
	}

	resp := h.deps.NewClient(node).DeleteFirewallRule(server.UUID, rule.DaemonRuleID)
	if !resp.IsSuccessful() {
		return daemonFail(c, resp)
	}

	if err := h.deps.DB.Delete(&rule).Error; err != nil {
		log.Printf("WARNING: failed to delete firewall rule mirror %d: %v", rule.ID, err)
	}

	h.deps.Recorder.Record(server.ID, currentUserIDPtr(c), events.FirewallRuleDeleted, clientIP(c), map[string]interface{}{
		"rule_id":   rule.ID,
		"remote_ip": rule.RemoteIP,
	})
	h.deps.Bus.Emit(events.FirewallRuleDeleted, map[string]interface{}{
		"server_uuid": server.UUID,
		"rule_id":     rule.DaemonRuleID,
	})

	return c.JSON(fiber.Map{"success": true, "message": "Firewall rule deleted"})
}

// Sync asks the daemon to flush its rule set to the host firewall.
func (h *FirewallHandler) Sync(c *fiber.Ctx) error {
	server, err := h.deps.resolveServer(c)
	if server == nil {
		return err
	}
	if ok, err := h.deps.requireFeature(c, services.SettingAllowUserFirewall, CodeFirewallDisabled, "Firewall"); !ok {
		return err
	}
	if ok, err := h.deps.requirePermission(c, server.ID, permissions.FirewallManage); !ok {
		return err
	}

	node, err := h.deps.resolveNode(c, server)
	if node == nil {
		return err
	}

	resp := h.deps.NewClient(node).SyncFirewall(server.UUID)
	if !resp.IsSuccessful() {
		return daemonFail(c, resp)
	}
	return c.JSON(fiber.Map{"success": true, "message": "Firewall rules synced"})
}

// extractRuleID digs the daemon's rule identifier out of the response
// body. Zero when the daemon did not report one.
func extractRuleID(data map[string]interface{}) int {
	if data == nil {
		return 0
	}
	if rule, ok := data["rule"].(map[string]interface{}); ok {
		if id, ok := rule["id"].(float64); ok {
			return int(id)
		}
	}
	if id, ok := data["id"].(float64); ok {
		return int(id)
	}
	return 0
}
