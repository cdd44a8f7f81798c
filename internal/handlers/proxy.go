package handlers

import (
	"errors"
	"log"
	"net"

	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"

	"github.com/mythicalltd/featherpanel/internal/events"
	"github.com/mythicalltd/featherpanel/internal/models"
	"github.com/mythicalltd/featherpanel/internal/permissions"
	"github.com/mythicalltd/featherpanel/internal/services"
	"github.com/mythicalltd/featherpanel/internal/validate"
)

// ProxyHandler manages reverse proxy configurations. Like firewall
// rules, the daemon commits first and the local row mirrors it.
type ProxyHandler struct {
	deps *Deps
}

func NewProxyHandler(deps *Deps) *ProxyHandler {
	return &ProxyHandler{deps: deps}
}

type proxyCreateRequest struct {
	Domain         string `json:"domain"`
	Port           int    `json:"port"`
	SSL            bool   `json:"ssl"`
	UseLetsEncrypt bool   `json:"use_lets_encrypt"`
	ClientEmail    string `json:"client_email"`
	SSLCert        string `json:"ssl_cert"`
	SSLKey         string `json:"ssl_key"`
}

// List returns the server's proxy configurations.
func (h *ProxyHandler) List(c *fiber.Ctx) error {
	server, err := h.deps.resolveServer(c)
	if server == nil {
		return err
	}
	if ok, err := h.deps.requireFeature(c, services.SettingAllowUserProxy, CodeProxyDisabled, "Proxy"); !ok {
		return err
	}
	if ok, err := h.deps.requirePermission(c, server.ID, permissions.ProxyRead); !ok {
		return err
	}

	var proxies []models.Proxy
	if err := h.deps.DB.Where("server_id = ?", server.ID).Find(&proxies).Error; err != nil {
		return fail(c, fiber.StatusInternalServerError, CodeInternalError, "Failed to load proxies")
	}
	return c.JSON(fiber.Map{"success": true, "data": proxies})
}

// Create validates the domain and port, resolves the backend address
// from the server's allocations, commits the proxy on the daemon and
// mirrors it locally. Loopback allocation addresses are replaced with
// the node's public IPv4 so the stored backend is reachable from the
// proxy host.
func (h *ProxyHandler) Create(c *fiber.Ctx) error {
	server, err := h.deps.resolveServer(c)
	if server == nil {
		return err
	}
	if ok, err := h.deps.requireFeature(c, services.SettingAllowUserProxy, CodeProxyDisabled, "Proxy"); !ok {
		return err
	}
	if ok, err := h.deps.requirePermission(c, server.ID, permissions.ProxyManage); !ok {
		return err
	}

	maxProxies := h.deps.Settings.GetInt(services.SettingProxyMaxPerServer, 1)
	var count int64
	if err := h.deps.DB.Model(&models.Proxy{}).Where("server_id = ?", server.ID).Count(&count).Error; err != nil {
		return fail(c, fiber.StatusInternalServerError, CodeInternalError, "Failed to count proxies")
	}
	if count >= int64(maxProxies) {
		return fail(c, fiber.StatusBadRequest, CodeProxyLimitReached, "Proxy limit reached for this server")
	}

	var req proxyCreateRequest
	if err := c.BodyParser(&req); err != nil {
		return fail(c, fiber.StatusBadRequest, CodeInvalidParameters, "Invalid request body")
	}
	if !validate.IsValidDomain(req.Domain) {
		return fail(c, fiber.StatusBadRequest, CodeInvalidDomain, "Domain is not a valid hostname")
	}
	if req.SSL && req.UseLetsEncrypt && req.ClientEmail == "" {
		return fail(c, fiber.StatusBadRequest, CodeInvalidParameters, "Let's Encrypt requires a contact email")
	}
	if req.SSL && !req.UseLetsEncrypt && (req.SSLCert == "" || req.SSLKey == "") {
		return fail(c, fiber.StatusBadRequest, CodeInvalidParameters, "Custom SSL requires a certificate and key")
	}

	// The proxied port must belong to the server.
	var allocation models.Allocation
	err = h.deps.DB.Where("server_id = ? AND port = ?", server.ID, req.Port).First(&allocation).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return fail(c, fiber.StatusBadRequest, CodeInvalidPort, "Port is not allocated to this server")
		}
		return fail(c, fiber.StatusInternalServerError, CodeInternalError, "Failed to load allocations")
	}

	node, err := h.deps.resolveNode(c, server)
	if node == nil {
		return err
	}

	backendIP := allocation.IP
	if validate.IsInternalIP(backendIP) {
		if node.PublicIPv4 == "" {
			return fail(c, fiber.StatusBadRequest, CodeNoPublicIP, "Node has no public IPv4 address configured")
		}
		backendIP = node.PublicIPv4
	}

	payload := map[string]interface{}{
		"domain":           req.Domain,
		"ip":               backendIP,
		"port":             req.Port,
		"ssl":              req.SSL,
		"use_lets_encrypt": req.UseLetsEncrypt,
	}
	if req.ClientEmail != "" {
		payload["client_email"] = req.ClientEmail
	}
	if req.SSLCert != "" {
		payload["ssl_cert"] = req.SSLCert
		payload["ssl_key"] = req.SSLKey
	}

	resp := h.deps.NewClient(node).CreateProxy(server.UUID, payload)
	if !resp.IsSuccessful() {
		return daemonFail(c, resp)
	}

	proxy := models.Proxy{
		ServerID:       server.ID,
		Domain:         req.Domain,
		IP:             backendIP,
		Port:           req.Port,
		SSL:            req.SSL,
		UseLetsEncrypt: req.UseLetsEncrypt,
		ClientEmail:    req.ClientEmail,
		SSLCert:        req.SSLCert,
		SSLKey:         req.SSLKey,
	}
	if err := h.deps.DB.Create(&proxy).Error; err != nil {
		log.Printf("WARNING: failed to mirror proxy %s for server %s: %v", req.Domain, server.UUID, err)
	}

	h.deps.Recorder.Record(server.ID, currentUserIDPtr(c), events.ProxyCreated, clientIP(c), map[string]interface{}{
		"domain": req.Domain,
		"port":   req.Port,
	})
	h.deps.Bus.Emit(events.ProxyCreated, map[string]interface{}{
		"server_uuid": server.UUID,
		"domain":      req.Domain,
	})

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"success": true, "data": proxy})
}

// Delete removes the proxy from the daemon and then the mirror.
func (h *ProxyHandler) Delete(c *fiber.Ctx) error {
	server, err := h.deps.resolveServer(c)
	if server == nil {
		return err
	}
	if ok, err := h.deps.requireFeature(c, services.SettingAllowUserProxy, CodeProxyDisabled, "Proxy"); !ok {
		return err
	}
	if ok, err := h.deps.requirePermission(c, server.ID, permissions.ProxyManage); !ok {
		return err
	}

	proxyID, err := c.ParamsInt("proxy")
	if err != nil {
		return fail(c, fiber.StatusBadRequest, CodeInvalidParameters, "Invalid proxy ID")
	}
	var proxy models.Proxy
	if err := h.deps.DB.Where("id = ? AND server_id = ?", proxyID, server.ID).First(&proxy).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return fail(c, fiber.StatusNotFound, CodeProxyNotFound, "Proxy not found")
		}
		return fail(c, fiber.StatusInternalServerError, CodeInternalError, "Failed to load proxy")
	}

	node, err := h.deps.resolveNode(c, server)
	if node == nil {
		return err
	}

	resp := h.deps.NewClient(node).DeleteProxy(server.UUID, proxy.Domain)
	if !resp.IsSuccessful() {
		return daemonFail(c, resp)
	}

	if err := h.deps.DB.Delete(&proxy).Error; err != nil {
		log.Printf("WARNING: failed to delete proxy mirror %d: %v", proxy.ID, err)
	}

	h.deps.Recorder.Record(server.ID, currentUserIDPtr(c), events.ProxyDeleted, clientIP(c), map[string]interface{}{
		"domain": proxy.Domain,
	})
	h.deps.Bus.Emit(events.ProxyDeleted, map[string]interface{}{
		"server_uuid": server.UUID,
		"domain":      proxy.Domain,
	})

	return c.JSON(fiber.Map{"success": true, "message": "Proxy deleted"})
}

// VerifyDNS checks whether the domain's A records point at the node's
// public address, so users can confirm DNS before requesting a
// certificate.
func (h *ProxyHandler) VerifyDNS(c *fiber.Ctx) error {
	server, err := h.deps.resolveServer(c)
	if server == nil {
		return err
	}
	if ok, err := h.deps.requireFeature(c, services.SettingAllowUserProxy, CodeProxyDisabled, "Proxy"); !ok {
		return err
	}
	if ok, err := h.deps.requirePermission(c, server.ID, permissions.ProxyRead); !ok {
		return err
	}

	domain := c.Query("domain")
	if !validate.IsValidDomain(domain) {
		return fail(c, fiber.StatusBadRequest, CodeInvalidDomain, "Domain is not a valid hostname")
	}

	node, err := h.deps.resolveNode(c, server)
	if node == nil {
		return err
	}

	ips, lookupErr := net.LookupIP(domain)
	resolved := make([]string, 0, len(ips))
	matches := false
	for _, ip := range ips {
		resolved = append(resolved, ip.String())
		if node.PublicIPv4 != "" && ip.String() == node.PublicIPv4 {
			matches = true
		}
		if node.PublicIPv6 != "" && ip.String() == node.PublicIPv6 {
			matches = true
		}
	}

	return c.JSON(fiber.Map{
		"success": true,
		"data": fiber.Map{
			"domain":   domain,
			"resolved": resolved,
			"matches":  matches,
			"error":    lookupErrString(lookupErr),
		},
	})
}

func lookupErrString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
