package handlers

import (
	"errors"
	"log"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/mythicalltd/featherpanel/internal/events"
	"github.com/mythicalltd/featherpanel/internal/models"
	"github.com/mythicalltd/featherpanel/internal/permissions"
)

// BackupHandler manages server backups. Ordering differs from the
// mirror-style resources: the row is written before the daemon call so
// a concurrent create cannot slip past the limit, and removed again if
// the daemon rejects the job.
type BackupHandler struct {
	deps *Deps
}

func NewBackupHandler(deps *Deps) *BackupHandler {
	return &BackupHandler{deps: deps}
}

type backupCreateRequest struct {
	Name         string `json:"name"`
	IgnoredFiles string `json:"ignored_files"`
}

type backupRestoreRequest struct {
	TruncateDirectory bool `json:"truncate_directory"`
}

// List returns the server's backups.
func (h *BackupHandler) List(c *fiber.Ctx) error {
	server, err := h.deps.resolveServer(c)
	if server == nil {
		return err
	}
	if ok, err := h.deps.requirePermission(c, server.ID, permissions.BackupRead); !ok {
		return err
	}

	var backups []models.Backup
	if err := h.deps.DB.Where("server_id = ?", server.ID).Order("created_at DESC").Find(&backups).Error; err != nil {
		return fail(c, fiber.StatusInternalServerError, CodeInternalError, "Failed to load backups")
	}
	return c.JSON(fiber.Map{"success": true, "data": backups})
}

// Create enforces the backup limit, writes the row locked, and hands the
// job to the daemon. A rejected job removes the row so the limit is not
// consumed by a backup that never existed.
func (h *BackupHandler) Create(c *fiber.Ctx) error {
	server, err := h.deps.resolveServer(c)
	if server == nil {
		return err
	}
	if ok, err := h.deps.requirePermission(c, server.ID, permissions.BackupCreate); !ok {
		return err
	}

	var count int64
	if err := h.deps.DB.Model(&models.Backup{}).Where("server_id = ?", server.ID).Count(&count).Error; err != nil {
		return fail(c, fiber.StatusInternalServerError, CodeInternalError, "Failed to count backups")
	}
	if count >= int64(server.BackupLimit) {
		return fail(c, fiber.StatusBadRequest, CodeBackupLimitReached, "Backup limit reached for this server")
	}

	var req backupCreateRequest
	if err := c.BodyParser(&req); err != nil {
		return fail(c, fiber.StatusBadRequest, CodeInvalidParameters, "Invalid request body")
	}
	if req.Name == "" {
		return fail(c, fiber.StatusBadRequest, CodeInvalidParameters, "Backup name is required")
	}

	node, err := h.deps.resolveNode(c, server)
	if node == nil {
		return err
	}

	backup := models.Backup{
		UUID:         uuid.NewString(),
		ServerID:     server.ID,
		Name:         req.Name,
		Adapter:      "wings",
		IgnoredFiles: req.IgnoredFiles,
		IsLocked:     true,
	}
	if err := h.deps.DB.Create(&backup).Error; err != nil {
		return fail(c, fiber.StatusInternalServerError, CodeInternalError, "Failed to create backup record")
	}

	resp := h.deps.NewClient(node).CreateBackup(server.UUID, backup.Adapter, backup.UUID, backup.IgnoredFiles)
	if !resp.IsSuccessful() {
		if err := h.deps.DB.Unscoped().Delete(&backup).Error; err != nil {
			log.Printf("WARNING: failed to remove rejected backup row %s: %v", backup.UUID, err)
		}
		return daemonFail(c, resp)
	}

	// Release the creation guard once the daemon has the job.
	if err := h.deps.DB.Model(&backup).Update("is_locked", false).Error; err != nil {
		log.Printf("WARNING: failed to unlock backup %s after daemon accept: %v", backup.UUID, err)
	}
	backup.IsLocked = false

	h.deps.Recorder.Record(server.ID, currentUserIDPtr(c), events.BackupCreated, clientIP(c), map[string]interface{}{
		"backup_uuid": backup.UUID,
		"name":        backup.Name,
	})
	h.deps.Bus.Emit(events.BackupCreated, map[string]interface{}{
		"server_uuid": server.UUID,
		"backup_uuid": backup.UUID,
	})

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"success": true, "data": backup})
}

func (h *BackupHandler) findBackup(c *fiber.Ctx, serverID uint) (*models.Backup, error) {
	backupUUID := c.Params("backup")
	var backup models.Backup
	err := h.deps.DB.Where("uuid = ? AND server_id = ?", backupUUID, serverID).First(&backup).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fail(c, fiber.StatusNotFound, CodeBackupNotFound, "Backup not found")
		}
		return nil, fail(c, fiber.StatusInternalServerError, CodeInternalError, "Failed to load backup")
	}
	return &backup, nil
}

// Delete removes the backup from the daemon and soft-deletes the row.
// Locked backups cannot be deleted.
func (h *BackupHandler) Delete(c *fiber.Ctx) error {
	server, err := h.deps.resolveServer(c)
	if server == nil {
		return err
	}
	if ok, err := h.deps.requirePermission(c, server.ID, permissions.BackupDelete); !ok {
		return err
	}

	backup, err := h.findBackup(c, server.ID)
	if backup == nil {
		return err
	}
	if backup.IsLocked {
		return fail(c, fiber.StatusLocked, CodeBackupLocked, "Backup is locked and cannot be deleted")
	}

	node, err := h.deps.resolveNode(c, server)
	if node == nil {
		return err
	}

	resp := h.deps.NewClient(node).DeleteBackup(server.UUID, backup.UUID)
	if !resp.IsSuccessful() {
		return daemonFail(c, resp)
	}

	if err := h.deps.DB.Delete(backup).Error; err != nil {
		log.Printf("WARNING: failed to delete backup row %s: %v", backup.UUID, err)
	}

	h.deps.Recorder.Record(server.ID, currentUserIDPtr(c), events.BackupDeleted, clientIP(c), map[string]interface{}{
		"backup_uuid": backup.UUID,
	})
	h.deps.Bus.Emit(events.BackupDeleted, map[string]interface{}{
		"server_uuid": server.UUID,
		"backup_uuid": backup.UUID,
	})

	return c.JSON(fiber.Map{"success": true, "message": "Backup deleted"})
}

// Restore replays a backup onto the server. Locked backups cannot be
// restored since a restore mid-creation would read a partial archive.
func (h *BackupHandler) Restore(c *fiber.Ctx) error {
	server, err := h.deps.resolveServer(c)
	if server == nil {
		return err
	}
	if ok, err := h.deps.requirePermission(c, server.ID, permissions.BackupRestore); !ok {
		return err
	}

	backup, err := h.findBackup(c, server.ID)
	if backup == nil {
		return err
	}
	if backup.IsLocked {
		return fail(c, fiber.StatusLocked, CodeBackupLocked, "Backup is locked and cannot be restored")
	}

	var req backupRestoreRequest
	if err := c.BodyParser(&req); err != nil {
		return fail(c, fiber.StatusBadRequest, CodeInvalidParameters, "Invalid request body")
	}

	node, err := h.deps.resolveNode(c, server)
	if node == nil {
		return err
	}

	resp := h.deps.NewClient(node).RestoreBackup(server.UUID, backup.UUID, backup.Adapter, req.TruncateDirectory, "")
	if !resp.IsSuccessful() {
		return daemonFail(c, resp)
	}

	h.deps.Recorder.Record(server.ID, currentUserIDPtr(c), events.BackupRestored, clientIP(c), map[string]interface{}{
		"backup_uuid": backup.UUID,
		"truncate":    req.TruncateDirectory,
	})
	h.deps.Bus.Emit(events.BackupRestored, map[string]interface{}{
		"server_uuid": server.UUID,
		"backup_uuid": backup.UUID,
	})

	return c.JSON(fiber.Map{"success": true, "message": "Backup restore started"})
}

// Download returns a signed URL the browser fetches straight from the
// daemon. The panel never proxies archive bytes.
func (h *BackupHandler) Download(c *fiber.Ctx) error {
	server, err := h.deps.resolveServer(c)
	if server == nil {
		return err
	}
	if ok, err := h.deps.requirePermission(c, server.ID, permissions.BackupDownload); !ok {
		return err
	}

	backup, err := h.findBackup(c, server.ID)
	if backup == nil {
		return err
	}

	node, err := h.deps.resolveNode(c, server)
	if node == nil {
		return err
	}

	user := currentUserIDPtr(c)
	userUUID := ""
	if user != nil {
		var u models.User
		if err := h.deps.DB.First(&u, *user).Error; err == nil {
			userUUID = u.UUID
		}
	}

	downloadURL, err := h.deps.Issuer.BackupDownloadURL(node, server.UUID, backup.UUID, userUUID)
	if err != nil {
		return fail(c, fiber.StatusInternalServerError, CodeInternalError, "Failed to sign download URL")
	}

	return c.JSON(fiber.Map{"success": true, "data": fiber.Map{"url": downloadURL}})
}

// ToggleLock flips the user-facing lock that protects a backup from
// deletion and restores.
func (h *BackupHandler) ToggleLock(c *fiber.Ctx) error {
	server, err := h.deps.resolveServer(c)
	if server == nil {
		return err
	}
	if ok, err := h.deps.requirePermission(c, server.ID, permissions.BackupDelete); !ok {
		return err
	}

	backup, err := h.findBackup(c, server.ID)
	if backup == nil {
		return err
	}

	backup.IsLocked = !backup.IsLocked
	if err := h.deps.DB.Model(backup).Update("is_locked", backup.IsLocked).Error; err != nil {
		return fail(c, fiber.StatusInternalServerError, CodeInternalError, "Failed to update backup lock")
	}

	return c.JSON(fiber.Map{"success": true, "data": backup})
}
