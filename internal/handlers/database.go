package handlers

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"log"
	"regexp"

	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"

	"github.com/mythicalltd/featherpanel/internal/events"
	"github.com/mythicalltd/featherpanel/internal/models"
	"github.com/mythicalltd/featherpanel/internal/permissions"
	"github.com/mythicalltd/featherpanel/internal/services"
)

var databaseNamePattern = regexp.MustCompile(`^[a-zA-Z0-9_]{1,48}$`)

// DatabaseHandler provisions databases on external database hosts. The
// panel connects to the host directly; the daemon is not involved in
// this resource family.
type DatabaseHandler struct {
	deps        *Deps
	provisioner *services.Provisioner
}

func NewDatabaseHandler(deps *Deps, provisioner *services.Provisioner) *DatabaseHandler {
	return &DatabaseHandler{deps: deps, provisioner: provisioner}
}

type databaseCreateRequest struct {
	Name           string `json:"name"`
	DatabaseHostID uint   `json:"database_host_id"`
	Remote         string `json:"remote"`
}

// List returns the server's databases with connection details.
func (h *DatabaseHandler) List(c *fiber.Ctx) error {
	server, err := h.deps.resolveServer(c)
	if server == nil {
		return err
	}
	if ok, err := h.deps.requirePermission(c, server.ID, permissions.DatabaseRead); !ok {
		return err
	}

	var databases []models.ServerDatabase
	if err := h.deps.DB.Where("server_id = ?", server.ID).Find(&databases).Error; err != nil {
		return fail(c, fiber.StatusInternalServerError, CodeInternalError, "Failed to load databases")
	}
	return c.JSON(fiber.Map{"success": true, "data": databases})
}

// Create provisions a database and user on an external host, then
// writes the local row. A local write failure rolls the remote objects
// back best effort.
func (h *DatabaseHandler) Create(c *fiber.Ctx) error {
	server, err := h.deps.resolveServer(c)
	if server == nil {
		return err
	}
	if ok, err := h.deps.requirePermission(c, server.ID, permissions.DatabaseCreate); !ok {
		return err
	}

	var count int64
	if err := h.deps.DB.Model(&models.ServerDatabase{}).Where("server_id = ?", server.ID).Count(&count).Error; err != nil {
		return fail(c, fiber.StatusInternalServerError, CodeInternalError, "Failed to count databases")
	}
	if count >= int64(server.DatabaseLimit) {
		return fail(c, fiber.StatusBadRequest, CodeDatabaseLimitReached, "Database limit reached for this server")
	}

	var req databaseCreateRequest
	if err := c.BodyParser(&req); err != nil {
		return fail(c, fiber.StatusBadRequest, CodeInvalidParameters, "Invalid request body")
	}
	if !databaseNamePattern.MatchString(req.Name) {
		return fail(c, fiber.StatusBadRequest, CodeInvalidParameters, "Database name may only contain letters, digits and underscores")
	}
	if req.Remote == "" {
		req.Remote = "%"
	}

	host, err := h.pickHost(c, server, req.DatabaseHostID)
	if host == nil {
		return err
	}

	dbName := fmt.Sprintf("s%d_%s", server.ID, req.Name)
	username := fmt.Sprintf("u%d_%s", server.ID, randomHex(6))
	password := randomHex(16)

	if err := h.provisioner.Provision(host, dbName, username, password); err != nil {
		log.Printf("WARNING: failed to provision database %s on %s: %v", dbName, host.Host, err)
		return fail(c, fiber.StatusInternalServerError, CodeInternalError, "Failed to provision database on host")
	}

	database := models.ServerDatabase{
		ServerID:       server.ID,
		DatabaseHostID: host.ID,
		Name:           dbName,
		Username:       username,
		Password:       password,
		Remote:         req.Remote,
	}
	if err := h.deps.DB.Create(&database).Error; err != nil {
		h.provisioner.RollbackRemote(host, dbName, username)
		return fail(c, fiber.StatusInternalServerError, CodeInternalError, "Failed to store database record")
	}

	h.deps.Recorder.Record(server.ID, currentUserIDPtr(c), events.DatabaseCreated, clientIP(c), map[string]interface{}{
		"database": dbName,
		"host":     host.Host,
	})
	h.deps.Bus.Emit(events.DatabaseCreated, map[string]interface{}{
		"server_uuid": server.UUID,
		"database":    dbName,
	})

	// Credentials are returned once at creation time.
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"success": true,
		"data": fiber.Map{
			"id":       database.ID,
			"name":     dbName,
			"username": username,
			"password": password,
			"host":     host.Host,
			"port":     host.Port,
		},
	})
}

// RotatePassword generates a fresh password for the database user.
func (h *DatabaseHandler) RotatePassword(c *fiber.Ctx) error {
	server, err := h.deps.resolveServer(c)
	if server == nil {
		return err
	}
	if ok, err := h.deps.requirePermission(c, server.ID, permissions.DatabaseUpdate); !ok {
		return err
	}

	database, host, err := h.findDatabase(c, server.ID)
	if database == nil {
		return err
	}

	password := randomHex(16)
	if err := h.provisioner.RotatePassword(host, database.Username, password); err != nil {
		log.Printf("WARNING: failed to rotate password for %s on %s: %v", database.Username, host.Host, err)
		return fail(c, fiber.StatusInternalServerError, CodeInternalError, "Failed to rotate password on host")
	}
	if err := h.deps.DB.Model(database).Update("password", password).Error; err != nil {
		return fail(c, fiber.StatusInternalServerError, CodeInternalError, "Failed to store new password")
	}

	return c.JSON(fiber.Map{
		"success": true,
		"data": fiber.Map{
			"username": database.Username,
			"password": password,
		},
	})
}

// Delete drops the database and user from the host and removes the row.
func (h *DatabaseHandler) Delete(c *fiber.Ctx) error {
	server, err := h.deps.resolveServer(c)
	if server == nil {
		return err
	}
	if ok, err := h.deps.requirePermission(c, server.ID, permissions.DatabaseDelete); !ok {
		return err
	}

	database, host, err := h.findDatabase(c, server.ID)
	if database == nil {
		return err
	}

	if err := h.provisioner.Drop(host, database.Name, database.Username); err != nil {
		log.Printf("WARNING: failed to drop database %s on %s: %v", database.Name, host.Host, err)
		return fail(c, fiber.StatusInternalServerError, CodeInternalError, "Failed to drop database on host")
	}
	if err := h.deps.DB.Delete(database).Error; err != nil {
		return fail(c, fiber.StatusInternalServerError, CodeInternalError, "Failed to remove database record")
	}

	h.deps.Recorder.Record(server.ID, currentUserIDPtr(c), events.DatabaseDeleted, clientIP(c), map[string]interface{}{
		"database": database.Name,
	})
	h.deps.Bus.Emit(events.DatabaseDeleted, map[string]interface{}{
		"server_uuid": server.UUID,
		"database":    database.Name,
	})

	return c.JSON(fiber.Map{"success": true, "message": "Database deleted"})
}

func (h *DatabaseHandler) findDatabase(c *fiber.Ctx, serverID uint) (*models.ServerDatabase, *models.DatabaseHost, error) {
	databaseID, err := c.ParamsInt("database")
	if err != nil {
		return nil, nil, fail(c, fiber.StatusBadRequest, CodeInvalidParameters, "Invalid database ID")
	}

	var database models.ServerDatabase
	if err := h.deps.DB.Where("id = ? AND server_id = ?", databaseID, serverID).First(&database).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil, fail(c, fiber.StatusNotFound, CodeDatabaseNotFound, "Database not found")
		}
		return nil, nil, fail(c, fiber.StatusInternalServerError, CodeInternalError, "Failed to load database")
	}

	var host models.DatabaseHost
	if err := h.deps.DB.First(&host, database.DatabaseHostID).Error; err != nil {
		return nil, nil, fail(c, fiber.StatusInternalServerError, CodeDatabaseHostNotFound, "Database host not found")
	}
	return &database, &host, nil
}

// pickHost selects the database host: the requested one, else a host
// bound to the server's node, else the first configured host.
func (h *DatabaseHandler) pickHost(c *fiber.Ctx, server *models.Server, hostID uint) (*models.DatabaseHost, error) {
	var host models.DatabaseHost
	if hostID != 0 {
		if err := h.deps.DB.First(&host, hostID).Error; err != nil {
			return nil, fail(c, fiber.StatusBadRequest, CodeDatabaseHostNotFound, "Database host not found")
		}
		return &host, nil
	}

	err := h.deps.DB.Where("node_id = ?", server.NodeID).First(&host).Error
	if err == nil {
		return &host, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fail(c, fiber.StatusInternalServerError, CodeInternalError, "Failed to load database hosts")
	}

	if err := h.deps.DB.First(&host).Error; err != nil {
		return nil, fail(c, fiber.StatusBadRequest, CodeDatabaseHostNotFound, "No database host available")
	}
	return &host, nil
}

func randomHex(n int) string {
	buf := make([]byte, n)
	if _, err := rand.Read(buf); err != nil {
		log.Printf("WARNING: crypto/rand failed: %v", err)
	}
	return hex.EncodeToString(buf)
}
