package handlers

import (
	"fmt"
	"net/http"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mythicalltd/featherpanel/internal/models"
)

func databasesPath(env *testEnv) string {
	return "/api/servers/" + env.server.UUID + "/databases"
}

func createDatabaseHost(t *testing.T, env *testEnv) *models.DatabaseHost {
	t.Helper()
	host := &models.DatabaseHost{
		Name:     "db-host-1",
		Host:     "10.0.0.5",
		Username: "panel_admin",
		Password: "x",
	}
	require.NoError(t, env.db.Create(host).Error)
	return host
}

func anyStatementContains(statements []string, fragment string) bool {
	for _, s := range statements {
		if strings.Contains(s, fragment) {
			return true
		}
	}
	return false
}

func TestDatabaseHostDefaultsToPostgres(t *testing.T) {
	env := newTestEnv(t, http.StatusOK, nil)
	host := createDatabaseHost(t, env)

	var loaded models.DatabaseHost
	require.NoError(t, env.db.First(&loaded, host.ID).Error)
	assert.Equal(t, models.DatabaseHostPostgres, loaded.Type)
	assert.Equal(t, 5432, loaded.Port)
}

func TestDatabaseCreateProvisionsAndReturnsCredentials(t *testing.T) {
	env := newTestEnv(t, http.StatusOK, nil)
	createDatabaseHost(t, env)

	status, body := env.request(t, env.owner.ID, http.MethodPost, databasesPath(env), map[string]interface{}{
		"name": "files",
	})

	require.Equal(t, http.StatusCreated, status)
	data := body["data"].(map[string]interface{})
	wantName := fmt.Sprintf("s%d_files", env.server.ID)
	assert.Equal(t, wantName, data["name"])
	assert.NotEmpty(t, data["username"])
	assert.NotEmpty(t, data["password"])

	recorded := env.remote.recorded()
	assert.True(t, anyStatementContains(recorded, fmt.Sprintf(`CREATE DATABASE "%s"`, wantName)))
	assert.True(t, anyStatementContains(recorded, "CREATE USER"))
	assert.True(t, anyStatementContains(recorded, "GRANT ALL PRIVILEGES"))

	var row models.ServerDatabase
	require.NoError(t, env.db.Where("server_id = ?", env.server.ID).First(&row).Error)
	assert.Equal(t, wantName, row.Name)
	assert.Zero(t, env.hits(), "database provisioning never talks to the daemon")
}

func TestDatabaseCreateLimitReachedBeforeProvisioning(t *testing.T) {
	env := newTestEnv(t, http.StatusOK, nil)
	host := createDatabaseHost(t, env)
	require.NoError(t, env.db.Create(&models.ServerDatabase{
		ServerID:       env.server.ID,
		DatabaseHostID: host.ID,
		Name:           fmt.Sprintf("s%d_existing", env.server.ID),
		Username:       "u_existing",
		Password:       "x",
	}).Error)

	status, body := env.request(t, env.owner.ID, http.MethodPost, databasesPath(env), map[string]interface{}{
		"name": "files",
	})

	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, CodeDatabaseLimitReached, body["error_code"])
	assert.Empty(t, env.remote.recorded(), "no host statement may run once the limit is hit")
}

func TestDatabaseCreateRollsBackRemoteOnLocalWriteFailure(t *testing.T) {
	env := newTestEnv(t, http.StatusOK, nil)
	host := createDatabaseHost(t, env)
	require.NoError(t, env.db.Model(env.server).Update("database_limit", 2).Error)

	// Occupy the name the handler will generate so the local insert
	// collides after the host objects exist.
	wantName := fmt.Sprintf("s%d_files", env.server.ID)
	require.NoError(t, env.db.Create(&models.ServerDatabase{
		ServerID:       env.server.ID,
		DatabaseHostID: host.ID,
		Name:           wantName,
		Username:       "u_taken",
		Password:       "x",
	}).Error)

	status, body := env.request(t, env.owner.ID, http.MethodPost, databasesPath(env), map[string]interface{}{
		"name": "files",
	})

	assert.Equal(t, http.StatusInternalServerError, status)
	assert.Equal(t, CodeInternalError, body["error_code"])

	recorded := env.remote.recorded()
	assert.True(t, anyStatementContains(recorded, fmt.Sprintf(`DROP DATABASE IF EXISTS "%s"`, wantName)),
		"failed local write must drop the database it created")
	assert.True(t, anyStatementContains(recorded, `DROP USER IF EXISTS "u`),
		"failed local write must drop the user it created")

	var count int64
	require.NoError(t, env.db.Model(&models.ServerDatabase{}).Where("server_id = ?", env.server.ID).Count(&count).Error)
	assert.Equal(t, int64(1), count, "only the pre-existing row remains")
}

func TestDatabaseDeleteDropsRemoteObjects(t *testing.T) {
	env := newTestEnv(t, http.StatusOK, nil)
	host := createDatabaseHost(t, env)
	row := &models.ServerDatabase{
		ServerID:       env.server.ID,
		DatabaseHostID: host.ID,
		Name:           fmt.Sprintf("s%d_game", env.server.ID),
		Username:       "u_game",
		Password:       "x",
	}
	require.NoError(t, env.db.Create(row).Error)

	status, _ := env.request(t, env.owner.ID, http.MethodDelete, fmt.Sprintf("%s/%d", databasesPath(env), row.ID), nil)

	assert.Equal(t, http.StatusOK, status)
	recorded := env.remote.recorded()
	assert.True(t, anyStatementContains(recorded, fmt.Sprintf(`DROP DATABASE IF EXISTS "%s"`, row.Name)))
	assert.True(t, anyStatementContains(recorded, `DROP USER IF EXISTS "u_game"`))

	var count int64
	require.NoError(t, env.db.Model(&models.ServerDatabase{}).Where("id = ?", row.ID).Count(&count).Error)
	assert.Zero(t, count)
}
