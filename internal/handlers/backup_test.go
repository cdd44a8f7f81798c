package handlers

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mythicalltd/featherpanel/internal/models"
)

func backupsPath(env *testEnv) string {
	return "/api/servers/" + env.server.UUID + "/backups"
}

func TestBackupCreateLimitReachedNoRow(t *testing.T) {
	env := newTestEnv(t, http.StatusOK, nil)
	for i := 0; i < 2; i++ {
		require.NoError(t, env.db.Create(&models.Backup{
			UUID:     "existing-" + string(rune('a'+i)),
			ServerID: env.server.ID,
			Name:     "old",
		}).Error)
	}

	status, body := env.request(t, env.owner.ID, http.MethodPost, backupsPath(env), map[string]interface{}{
		"name": "one too many",
	})

	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, CodeBackupLimitReached, body["error_code"])
	assert.Zero(t, env.hits(), "limit rejection must not reach the daemon")

	var count int64
	require.NoError(t, env.db.Model(&models.Backup{}).Where("server_id = ?", env.server.ID).Count(&count).Error)
	assert.Equal(t, int64(2), count, "no new row may be created")
}

func TestBackupCreateDaemonBusyRemovesRow(t *testing.T) {
	env := newTestEnv(t, http.StatusConflict, map[string]interface{}{"error": "another operation is in progress"})

	status, body := env.request(t, env.owner.ID, http.MethodPost, backupsPath(env), map[string]interface{}{
		"name": "nightly",
	})

	assert.Equal(t, http.StatusConflict, status)
	assert.Equal(t, CodeServerBusy, body["error_code"])
	assert.Equal(t, true, body["retryable"])
	assert.Equal(t, "another operation is in progress", body["message"])
	assert.Equal(t, int32(1), env.hits())

	var count int64
	require.NoError(t, env.db.Unscoped().Model(&models.Backup{}).Where("server_id = ?", env.server.ID).Count(&count).Error)
	assert.Equal(t, int64(0), count, "rejected backup row must be removed entirely")
}

func TestBackupCreateSuccess(t *testing.T) {
	env := newTestEnv(t, http.StatusOK, map[string]interface{}{"success": true})

	status, _ := env.request(t, env.owner.ID, http.MethodPost, backupsPath(env), map[string]interface{}{
		"name":          "nightly",
		"ignored_files": "*.log",
	})

	assert.Equal(t, http.StatusCreated, status)
	assert.Equal(t, int32(1), env.hits())
	assert.Equal(t, "wings", env.lastBody["adapter"])
	assert.Equal(t, "*.log", env.lastBody["ignore"])

	var backup models.Backup
	require.NoError(t, env.db.Where("server_id = ?", env.server.ID).First(&backup).Error)
	assert.False(t, backup.IsLocked, "creation guard must be released after daemon accept")
	assert.Equal(t, env.lastBody["uuid"], backup.UUID)
}

func TestBackupDeleteLockedKeepsRow(t *testing.T) {
	env := newTestEnv(t, http.StatusOK, nil)
	backup := &models.Backup{
		UUID:     "locked-backup",
		ServerID: env.server.ID,
		Name:     "precious",
		IsLocked: true,
	}
	require.NoError(t, env.db.Create(backup).Error)

	status, body := env.request(t, env.owner.ID, http.MethodDelete, backupsPath(env)+"/locked-backup", nil)

	assert.Equal(t, http.StatusLocked, status)
	assert.Equal(t, CodeBackupLocked, body["error_code"])
	assert.Zero(t, env.hits(), "locked backup deletion must not reach the daemon")

	var count int64
	require.NoError(t, env.db.Model(&models.Backup{}).Where("uuid = ?", "locked-backup").Count(&count).Error)
	assert.Equal(t, int64(1), count, "locked backup row must be kept")
}

func TestBackupRestoreLocked(t *testing.T) {
	env := newTestEnv(t, http.StatusOK, nil)
	require.NoError(t, env.db.Create(&models.Backup{
		UUID:     "locked-backup",
		ServerID: env.server.ID,
		Name:     "precious",
		IsLocked: true,
	}).Error)

	status, body := env.request(t, env.owner.ID, http.MethodPost, backupsPath(env)+"/locked-backup/restore", map[string]interface{}{})

	assert.Equal(t, http.StatusLocked, status)
	assert.Equal(t, CodeBackupLocked, body["error_code"])
	assert.Zero(t, env.hits())
}

func TestBackupDeleteSuccess(t *testing.T) {
	env := newTestEnv(t, http.StatusOK, nil)
	require.NoError(t, env.db.Create(&models.Backup{
		UUID:     "old-backup",
		ServerID: env.server.ID,
		Name:     "old",
	}).Error)

	status, _ := env.request(t, env.owner.ID, http.MethodDelete, backupsPath(env)+"/old-backup", nil)

	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, int32(1), env.hits())

	var count int64
	require.NoError(t, env.db.Model(&models.Backup{}).Where("uuid = ?", "old-backup").Count(&count).Error)
	assert.Equal(t, int64(0), count)
}

func TestBackupDownloadSignedURL(t *testing.T) {
	env := newTestEnv(t, http.StatusOK, nil)
	require.NoError(t, env.db.Create(&models.Backup{
		UUID:     "done-backup",
		ServerID: env.server.ID,
		Name:     "done",
	}).Error)

	status, body := env.request(t, env.owner.ID, http.MethodGet, backupsPath(env)+"/done-backup/download", nil)

	assert.Equal(t, http.StatusOK, status)
	data := body["data"].(map[string]interface{})
	url := data["url"].(string)
	assert.Contains(t, url, "/download/backup?token=")
	assert.Contains(t, url, "backup=done-backup")
	assert.Zero(t, env.hits(), "download URL is signed locally, no daemon call")
}

func TestBackupSubuserPermissions(t *testing.T) {
	env := newTestEnv(t, http.StatusOK, nil)
	require.NoError(t, env.db.Create(&models.Subuser{
		UserID:      env.subuser.ID,
		ServerID:    env.server.ID,
		Permissions: `["backup.read"]`,
	}).Error)

	status, _ := env.request(t, env.subuser.ID, http.MethodGet, backupsPath(env), nil)
	assert.Equal(t, http.StatusOK, status)

	status, body := env.request(t, env.subuser.ID, http.MethodPost, backupsPath(env), map[string]interface{}{"name": "x"})
	assert.Equal(t, http.StatusForbidden, status)
	assert.Equal(t, CodePermissionDenied, body["error_code"])
	assert.Zero(t, env.hits())
}
