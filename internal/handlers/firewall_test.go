package handlers

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mythicalltd/featherpanel/internal/models"
	"github.com/mythicalltd/featherpanel/internal/services"
)

func firewallPath(env *testEnv) string {
	return "/api/servers/" + env.server.UUID + "/firewall"
}

func validFirewallBody() map[string]interface{} {
	return map[string]interface{}{
		"remote_ip":   "198.51.100.7",
		"server_port": 25565,
		"priority":    10,
		"type":        "allow",
		"protocol":    "tcp",
	}
}

func TestFirewallCreateFeatureDisabledNoDaemonCall(t *testing.T) {
	env := newTestEnv(t, http.StatusOK, map[string]interface{}{"id": 1})
	// Flag left unset: disabled by default.

	status, body := env.request(t, env.owner.ID, http.MethodPost, firewallPath(env), validFirewallBody())

	assert.Equal(t, http.StatusForbidden, status)
	assert.Equal(t, CodeFirewallDisabled, body["error_code"])
	assert.Zero(t, env.hits(), "disabled feature must not reach the daemon")
}

func TestFirewallCreatePermissionDeniedNoDaemonCall(t *testing.T) {
	env := newTestEnv(t, http.StatusOK, map[string]interface{}{"id": 1})
	env.enableAllFeatures(t)
	require.NoError(t, env.db.Create(&models.Subuser{
		UserID:      env.subuser.ID,
		ServerID:    env.server.ID,
		Permissions: `["firewall.read"]`,
	}).Error)

	status, body := env.request(t, env.subuser.ID, http.MethodPost, firewallPath(env), validFirewallBody())

	assert.Equal(t, http.StatusForbidden, status)
	assert.Equal(t, CodePermissionDenied, body["error_code"])
	assert.Zero(t, env.hits(), "denied request must not reach the daemon")
}

func TestFirewallCreateDangerousCharsRejected(t *testing.T) {
	env := newTestEnv(t, http.StatusOK, map[string]interface{}{"id": 1})
	env.enableAllFeatures(t)

	body := validFirewallBody()
	body["remote_ip"] = "1.2.3.4; rm -rf /"
	status, reply := env.request(t, env.owner.ID, http.MethodPost, firewallPath(env), body)

	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, CodeInvalidRemoteIP, reply["error_code"])
	assert.Zero(t, env.hits(), "injection attempt must not reach the daemon")
}

func TestFirewallCreateMirrorsRule(t *testing.T) {
	env := newTestEnv(t, http.StatusOK, map[string]interface{}{
		"rule": map[string]interface{}{"id": float64(42)},
	})
	env.enableAllFeatures(t)

	status, _ := env.request(t, env.owner.ID, http.MethodPost, firewallPath(env), validFirewallBody())

	assert.Equal(t, http.StatusCreated, status)
	assert.Equal(t, int32(1), env.hits())

	var rule models.FirewallRule
	require.NoError(t, env.db.Where("server_id = ?", env.server.ID).First(&rule).Error)
	assert.Equal(t, 42, rule.DaemonRuleID)
	assert.Equal(t, "198.51.100.7", rule.RemoteIP)
	assert.Equal(t, models.FirewallRuleAllow, rule.Type)

	var activityCount int64
	require.NoError(t, env.db.Model(&models.ServerActivity{}).Where("server_id = ?", env.server.ID).Count(&activityCount).Error)
	assert.Equal(t, int64(1), activityCount)
}

func TestFirewallCreateInvalidPortAndPriority(t *testing.T) {
	env := newTestEnv(t, http.StatusOK, nil)
	env.enableAllFeatures(t)

	body := validFirewallBody()
	body["server_port"] = 70000
	status, reply := env.request(t, env.owner.ID, http.MethodPost, firewallPath(env), body)
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, CodeInvalidPort, reply["error_code"])

	body = validFirewallBody()
	body["priority"] = 20000
	status, reply = env.request(t, env.owner.ID, http.MethodPost, firewallPath(env), body)
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, CodeInvalidPriority, reply["error_code"])

	assert.Zero(t, env.hits())
}

func TestFirewallListSubuserWithReadPermission(t *testing.T) {
	env := newTestEnv(t, http.StatusOK, nil)
	env.enableAllFeatures(t)
	require.NoError(t, env.db.Create(&models.Subuser{
		UserID:      env.subuser.ID,
		ServerID:    env.server.ID,
		Permissions: `["firewall.read"]`,
	}).Error)

	status, body := env.request(t, env.subuser.ID, http.MethodGet, firewallPath(env), nil)

	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, true, body["success"])
}

func TestFirewallUnknownServer(t *testing.T) {
	env := newTestEnv(t, http.StatusOK, nil)
	env.enableAllFeatures(t)

	status, body := env.request(t, env.owner.ID, http.MethodGet, "/api/servers/ffffffff/firewall", nil)

	assert.Equal(t, http.StatusNotFound, status)
	assert.Equal(t, CodeServerNotFound, body["error_code"])
}

func TestFirewallFeatureFlagPrecedesPermission(t *testing.T) {
	// A stranger with no permissions still sees FIREWALL_DISABLED, not
	// PERMISSION_DENIED, when the feature is off.
	env := newTestEnv(t, http.StatusOK, nil)
	require.NoError(t, env.settings.Set(services.SettingAllowUserFirewall, "false"))

	status, body := env.request(t, env.subuser.ID, http.MethodPost, firewallPath(env), validFirewallBody())

	assert.Equal(t, http.StatusForbidden, status)
	assert.Equal(t, CodeFirewallDisabled, body["error_code"])
}
