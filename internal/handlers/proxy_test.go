package handlers

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mythicalltd/featherpanel/internal/models"
)

func proxiesPath(env *testEnv) string {
	return "/api/servers/" + env.server.UUID + "/proxies"
}

func seedAllocation(t *testing.T, env *testEnv, ip string, port int) {
	t.Helper()
	require.NoError(t, env.db.Create(&models.Allocation{
		ServerID:  env.server.ID,
		NodeID:    env.node.ID,
		IP:        ip,
		Port:      port,
		IsPrimary: true,
	}).Error)
}

func validProxyBody() map[string]interface{} {
	return map[string]interface{}{
		"domain": "play.example.com",
		"port":   25565,
	}
}

func TestProxyCreateSubstitutesPublicIP(t *testing.T) {
	env := newTestEnv(t, http.StatusOK, map[string]interface{}{"success": true})
	env.enableAllFeatures(t)
	seedAllocation(t, env, "127.0.0.1", 25565)

	status, _ := env.request(t, env.owner.ID, http.MethodPost, proxiesPath(env), validProxyBody())

	assert.Equal(t, http.StatusCreated, status)
	assert.Equal(t, int32(1), env.hits())
	assert.Equal(t, "203.0.113.10", env.lastBody["ip"], "daemon must receive the public address")

	var proxy models.Proxy
	require.NoError(t, env.db.Where("server_id = ?", env.server.ID).First(&proxy).Error)
	assert.Equal(t, "203.0.113.10", proxy.IP, "stored mirror must hold the substituted address")
}

func TestProxyCreateNoPublicIP(t *testing.T) {
	env := newTestEnv(t, http.StatusOK, nil)
	env.enableAllFeatures(t)
	require.NoError(t, env.db.Model(env.node).Update("PublicIPv4", "").Error)
	seedAllocation(t, env, "0.0.0.0", 25565)

	status, body := env.request(t, env.owner.ID, http.MethodPost, proxiesPath(env), validProxyBody())

	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, CodeNoPublicIP, body["error_code"])
	assert.Zero(t, env.hits())
}

func TestProxyCreatePortNotAllocated(t *testing.T) {
	env := newTestEnv(t, http.StatusOK, nil)
	env.enableAllFeatures(t)
	seedAllocation(t, env, "203.0.113.50", 27015)

	status, body := env.request(t, env.owner.ID, http.MethodPost, proxiesPath(env), validProxyBody())

	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, CodeInvalidPort, body["error_code"])
	assert.Zero(t, env.hits())
}

func TestProxyCreateInvalidDomain(t *testing.T) {
	env := newTestEnv(t, http.StatusOK, nil)
	env.enableAllFeatures(t)
	seedAllocation(t, env, "203.0.113.50", 25565)

	body := validProxyBody()
	body["domain"] = "nodot"
	status, reply := env.request(t, env.owner.ID, http.MethodPost, proxiesPath(env), body)

	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, CodeInvalidDomain, reply["error_code"])
	assert.Zero(t, env.hits())
}

func TestProxyCreateLimitReached(t *testing.T) {
	env := newTestEnv(t, http.StatusOK, nil)
	env.enableAllFeatures(t)
	seedAllocation(t, env, "203.0.113.50", 25565)
	for i := 0; i < 2; i++ {
		require.NoError(t, env.db.Create(&models.Proxy{
			ServerID: env.server.ID,
			Domain:   "old" + string(rune('a'+i)) + ".example.com",
			IP:       "203.0.113.50",
			Port:     25565,
		}).Error)
	}

	status, body := env.request(t, env.owner.ID, http.MethodPost, proxiesPath(env), validProxyBody())

	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, CodeProxyLimitReached, body["error_code"])
	assert.Zero(t, env.hits())
}

func TestProxyCreateDisabled(t *testing.T) {
	env := newTestEnv(t, http.StatusOK, nil)
	seedAllocation(t, env, "203.0.113.50", 25565)

	status, body := env.request(t, env.owner.ID, http.MethodPost, proxiesPath(env), validProxyBody())

	assert.Equal(t, http.StatusForbidden, status)
	assert.Equal(t, CodeProxyDisabled, body["error_code"])
	assert.Zero(t, env.hits())
}

func TestProxyCreateDirectPublicAllocation(t *testing.T) {
	env := newTestEnv(t, http.StatusOK, map[string]interface{}{"success": true})
	env.enableAllFeatures(t)
	seedAllocation(t, env, "198.51.100.20", 25565)

	status, _ := env.request(t, env.owner.ID, http.MethodPost, proxiesPath(env), validProxyBody())

	assert.Equal(t, http.StatusCreated, status)
	assert.Equal(t, "198.51.100.20", env.lastBody["ip"], "public allocation addresses pass through unchanged")
}

func TestProxyDeleteDaemonFirst(t *testing.T) {
	env := newTestEnv(t, http.StatusOK, nil)
	env.enableAllFeatures(t)
	proxy := &models.Proxy{
		ServerID: env.server.ID,
		Domain:   "play.example.com",
		IP:       "203.0.113.10",
		Port:     25565,
	}
	require.NoError(t, env.db.Create(proxy).Error)

	status, _ := env.request(t, env.owner.ID, http.MethodDelete, proxiesPath(env)+"/1", nil)

	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, int32(1), env.hits())
	assert.Equal(t, "play.example.com", env.lastBody["domain"])

	var count int64
	require.NoError(t, env.db.Model(&models.Proxy{}).Where("server_id = ?", env.server.ID).Count(&count).Error)
	assert.Equal(t, int64(0), count)
}
