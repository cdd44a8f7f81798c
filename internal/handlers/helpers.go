// Package handlers contains the HTTP layer. Every server action follows
// the same sequence: resolve the server, check the feature flag, check
// permissions, validate input, resolve the node, call the daemon, map
// failures, persist, record activity, emit an event, respond.
package handlers

import (
	"errors"
	"log"

	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"

	"github.com/mythicalltd/featherpanel/internal/activity"
	"github.com/mythicalltd/featherpanel/internal/config"
	"github.com/mythicalltd/featherpanel/internal/events"
	"github.com/mythicalltd/featherpanel/internal/middleware"
	"github.com/mythicalltd/featherpanel/internal/models"
	"github.com/mythicalltd/featherpanel/internal/permissions"
	"github.com/mythicalltd/featherpanel/internal/services"
	"github.com/mythicalltd/featherpanel/internal/wings"
)

// Machine-readable error codes carried in the error_code field.
const (
	CodeServerNotFound       = "SERVER_NOT_FOUND"
	CodeNodeNotFound         = "NODE_NOT_FOUND"
	CodeBackupNotFound       = "BACKUP_NOT_FOUND"
	CodeRuleNotFound         = "RULE_NOT_FOUND"
	CodeProxyNotFound        = "PROXY_NOT_FOUND"
	CodeDatabaseNotFound     = "DATABASE_NOT_FOUND"
	CodeDatabaseHostNotFound = "DATABASE_HOST_NOT_FOUND"
	CodeScheduleNotFound     = "SCHEDULE_NOT_FOUND"
	CodePermissionDenied     = "PERMISSION_DENIED"
	CodeInvalidParameters    = "INVALID_PARAMETERS"
	CodeFirewallDisabled     = "FIREWALL_DISABLED"
	CodeProxyDisabled        = "PROXY_DISABLED"
	CodeFastDLDisabled       = "FASTDL_DISABLED"
	CodeImportsDisabled      = "IMPORTS_DISABLED"
	CodeInvalidRemoteIP      = "INVALID_REMOTE_IP"
	CodeInvalidPort          = "INVALID_PORT"
	CodeInvalidPriority      = "INVALID_PRIORITY"
	CodeInvalidDomain        = "INVALID_DOMAIN"
	CodeInvalidCron          = "INVALID_CRON"
	CodeBackupLimitReached   = "BACKUP_LIMIT_REACHED"
	CodeProxyLimitReached    = "PROXY_LIMIT_REACHED"
	CodeDatabaseLimitReached = "DATABASE_LIMIT_REACHED"
	CodeBackupLocked         = "BACKUP_LOCKED"
	CodeServerBusy           = "SERVER_BUSY"
	CodeServerMustBeOffline  = "SERVER_MUST_BE_OFFLINE"
	CodeNoPublicIP           = "NO_PUBLIC_IP"
	CodeDaemonInvalidConfig  = "DAEMON_INVALID_CONFIG"
	CodeDaemonAuthFailed     = "DAEMON_AUTH_FAILED"
	CodeDaemonNotFound       = "DAEMON_NOT_FOUND"
	CodeDaemonInvalidData    = "DAEMON_INVALID_DATA"
	CodeDaemonError          = "DAEMON_ERROR"
	CodeInternalError        = "INTERNAL_ERROR"
)

// Deps bundles everything the action handlers need. One value is built
// in main and shared by all handler constructors.
type Deps struct {
	Cfg       *config.Config
	DB        *gorm.DB
	Settings  *services.Settings
	Gate      *permissions.Gate
	Issuer    *wings.Issuer
	Recorder  *activity.Recorder
	Bus       *events.Bus
	NewClient services.ClientFactory
}

func fail(c *fiber.Ctx, status int, code, message string) error {
	return c.Status(status).JSON(fiber.Map{
		"success":    false,
		"error_code": code,
		"message":    message,
	})
}

// resolveServer loads the server named by the :server route param, by
// full or short UUID. A nil server means the response is already
// written.
func (d *Deps) resolveServer(c *fiber.Ctx) (*models.Server, error) {
	identifier := c.Params("server")
	if identifier == "" {
		return nil, fail(c, fiber.StatusNotFound, CodeServerNotFound, "Server not found")
	}

	var server models.Server
	err := d.DB.Where("uuid = ? OR uuid_short = ?", identifier, identifier).First(&server).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fail(c, fiber.StatusNotFound, CodeServerNotFound, "Server not found")
		}
		return nil, fail(c, fiber.StatusInternalServerError, CodeInternalError, "Failed to load server")
	}
	return &server, nil
}

// resolveNode loads the node hosting the server.
func (d *Deps) resolveNode(c *fiber.Ctx, server *models.Server) (*models.Node, error) {
	var node models.Node
	if err := d.DB.First(&node, server.NodeID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fail(c, fiber.StatusNotFound, CodeNodeNotFound, "Node not found")
		}
		return nil, fail(c, fiber.StatusInternalServerError, CodeInternalError, "Failed to load node")
	}
	return &node, nil
}

// requirePermission runs the gate. allowed=false means the response is
// already written; callers return err immediately.
func (d *Deps) requirePermission(c *fiber.Ctx, serverID uint, perm permissions.Permission) (bool, error) {
	userID := middleware.GetCurrentUserID(c)
	ok, err := d.Gate.Has(userID, serverID, perm)
	if err != nil {
		if errors.Is(err, permissions.ErrInvalidParameters) {
			return false, fail(c, fiber.StatusBadRequest, CodeInvalidParameters, "Invalid user or server")
		}
		return false, fail(c, fiber.StatusInternalServerError, CodeInternalError, "Permission check failed")
	}
	if !ok {
		return false, fail(c, fiber.StatusForbidden, CodePermissionDenied, "You don't have permission to perform this action")
	}
	return true, nil
}

// requireFeature checks a feature flag. Runs before the permission check
// so a disabled feature reads identically for every caller.
func (d *Deps) requireFeature(c *fiber.Ctx, settingKey, code, name string) (bool, error) {
	if !d.Settings.GetBool(settingKey, false) {
		return false, fail(c, fiber.StatusForbidden, code, name+" management is disabled on this panel")
	}
	return true, nil
}

// daemonFail maps a failed daemon response. Each daemon status class
// keeps its own error code, the daemon's original status and message
// ride along in the body, and a 409 is the one retryable case. Daemon
// 401/403 means the node token is wrong, a panel misconfiguration, so
// it surfaces as a gateway error rather than an auth status the client
// would act on.
func daemonFail(c *fiber.Ctx, resp *wings.Response) error {
	status := fiber.StatusBadGateway
	code := CodeDaemonError
	retryable := false
	switch resp.StatusCode {
	case fiber.StatusBadRequest:
		status, code = fiber.StatusBadRequest, CodeDaemonInvalidConfig
	case fiber.StatusUnauthorized, fiber.StatusForbidden:
		code = CodeDaemonAuthFailed
	case fiber.StatusNotFound:
		status, code = fiber.StatusNotFound, CodeDaemonNotFound
	case fiber.StatusConflict:
		status, code, retryable = fiber.StatusConflict, CodeServerBusy, true
	case fiber.StatusUnprocessableEntity:
		status, code = fiber.StatusUnprocessableEntity, CodeDaemonInvalidData
	}
	return c.Status(status).JSON(fiber.Map{
		"success":       false,
		"error_code":    code,
		"message":       resp.Error(),
		"daemon_status": resp.StatusCode,
		"retryable":     retryable,
	})
}

// syncServerStatus writes a daemon-reported process state back to the
// server row, so panel-side reads reflect the last observed state.
func syncServerStatus(d *Deps, server *models.Server, state string) {
	st := models.ServerStatus(state)
	if state == "" || server.Status == st {
		return
	}
	if err := d.DB.Model(server).Update("status", st).Error; err != nil {
		log.Printf("WARNING: failed to record status for server %s: %v", server.UUID, err)
		return
	}
	server.Status = st
}

// clientIP is the address recorded in activity entries.
func clientIP(c *fiber.Ctx) string {
	return c.IP()
}

// currentUserIDPtr returns the acting user's ID for activity rows.
func currentUserIDPtr(c *fiber.Ctx) *uint {
	id := middleware.GetCurrentUserID(c)
	if id == 0 {
		return nil
	}
	return &id
}
