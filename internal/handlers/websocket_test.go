package handlers

import (
	"net/http"
	"net/url"
	"strings"
	"testing"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mythicalltd/featherpanel/internal/models"
	"github.com/mythicalltd/featherpanel/internal/permissions"
)

func websocketToken(t *testing.T, env *testEnv, userID uint) jwt.MapClaims {
	t.Helper()

	status, body := env.request(t, userID, http.MethodGet, "/api/servers/"+env.server.UUID+"/websocket", nil)
	require.Equal(t, http.StatusOK, status)

	rawURL := body["data"].(map[string]interface{})["url"].(string)
	require.True(t, strings.HasPrefix(rawURL, "ws://"), "plain http node yields a ws scheme")

	parsed, err := url.Parse(rawURL)
	require.NoError(t, err)
	tokenStr := parsed.Query().Get("token")
	require.NotEmpty(t, tokenStr)

	claims := jwt.MapClaims{}
	parsedToken, err := jwt.ParseWithClaims(tokenStr, claims, func(*jwt.Token) (interface{}, error) {
		return []byte(env.node.DaemonToken), nil
	})
	require.NoError(t, err)
	require.True(t, parsedToken.Valid, "token must verify against the node secret")
	return claims
}

func tokenPermissions(t *testing.T, claims jwt.MapClaims) []string {
	t.Helper()
	raw, ok := claims["permissions"].([]interface{})
	require.True(t, ok, "token must carry a permissions claim")
	out := make([]string, 0, len(raw))
	for _, p := range raw {
		out = append(out, p.(string))
	}
	return out
}

func TestWebsocketTokenLimitedToSubuserPermissions(t *testing.T) {
	env := newTestEnv(t, http.StatusOK, nil)
	require.NoError(t, env.db.Create(&models.Subuser{
		UserID:      env.subuser.ID,
		ServerID:    env.server.ID,
		Permissions: `["websocket.connect","control.start"]`,
	}).Error)

	claims := websocketToken(t, env, env.subuser.ID)

	assert.Equal(t, env.server.UUID, claims["server_uuid"])
	assert.Equal(t, env.subuser.UUID, claims["user_uuid"])
	assert.Equal(t, "websocket", claims["purpose"])

	granted := tokenPermissions(t, claims)
	effective, err := permissions.NewGate(env.db).ResolvePermissions(env.subuser.ID, env.server.ID)
	require.NoError(t, err)
	effectiveSet := make(map[string]bool, len(effective))
	for _, p := range permissions.Strings(effective) {
		effectiveSet[p] = true
	}
	for _, p := range granted {
		assert.True(t, effectiveSet[p], "token permission %q exceeds the caller's grant", p)
	}
	assert.ElementsMatch(t, []string{"websocket.connect", "control.start"}, granted)
	assert.Zero(t, env.hits(), "token issuance never calls the daemon")
}

func TestWebsocketTokenForOwnerCarriesFullSet(t *testing.T) {
	env := newTestEnv(t, http.StatusOK, nil)

	claims := websocketToken(t, env, env.owner.ID)

	granted := tokenPermissions(t, claims)
	assert.ElementsMatch(t, permissions.Strings(permissions.AllPermissions), granted)
}

func TestWebsocketTokenDeniedWithoutPermission(t *testing.T) {
	env := newTestEnv(t, http.StatusOK, nil)
	require.NoError(t, env.db.Create(&models.Subuser{
		UserID:      env.subuser.ID,
		ServerID:    env.server.ID,
		Permissions: `["control.start"]`,
	}).Error)

	status, body := env.request(t, env.subuser.ID, http.MethodGet, "/api/servers/"+env.server.UUID+"/websocket", nil)

	assert.Equal(t, http.StatusForbidden, status)
	assert.Equal(t, CodePermissionDenied, body["error_code"])
}
