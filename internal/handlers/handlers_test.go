package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/mythicalltd/featherpanel/internal/activity"
	"github.com/mythicalltd/featherpanel/internal/config"
	"github.com/mythicalltd/featherpanel/internal/events"
	"github.com/mythicalltd/featherpanel/internal/models"
	"github.com/mythicalltd/featherpanel/internal/permissions"
	"github.com/mythicalltd/featherpanel/internal/services"
	"github.com/mythicalltd/featherpanel/internal/wings"
)

// testEnv wires a fiber app, an in-memory database and a fake daemon
// together the way main does, with authentication replaced by a header
// that names the acting user.
type testEnv struct {
	app        *fiber.App
	db         *gorm.DB
	daemon     *httptest.Server
	daemonHits int32
	lastBody   map[string]interface{}

	owner   *models.User
	subuser *models.User
	node    *models.Node
	server  *models.Server

	settings *services.Settings
	remote   *sqlRecorder
}

// sqlRecorder captures every statement gorm builds against the fake
// external database host.
type sqlRecorder struct {
	mu         sync.Mutex
	statements []string
}

func (r *sqlRecorder) LogMode(logger.LogLevel) logger.Interface          { return r }
func (r *sqlRecorder) Info(context.Context, string, ...interface{})      {}
func (r *sqlRecorder) Warn(context.Context, string, ...interface{})      {}
func (r *sqlRecorder) Error(context.Context, string, ...interface{})     {}
func (r *sqlRecorder) Trace(_ context.Context, _ time.Time, fc func() (string, int64), _ error) {
	sql, _ := fc()
	r.mu.Lock()
	r.statements = append(r.statements, sql)
	r.mu.Unlock()
}

func (r *sqlRecorder) recorded() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, len(r.statements))
	copy(out, r.statements)
	return out
}

// newTestEnv builds the environment. daemonStatus and daemonBody define
// the fake daemon's uniform reply.
func newTestEnv(t *testing.T, daemonStatus int, daemonBody map[string]interface{}) *testEnv {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	require.NoError(t, models.AutoMigrate(db))

	env := &testEnv{db: db}

	env.daemon = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&env.daemonHits, 1)
		raw, _ := io.ReadAll(r.Body)
		var body map[string]interface{}
		if len(raw) > 0 {
			_ = json.Unmarshal(raw, &body)
		}
		env.lastBody = body
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(daemonStatus)
		_ = json.NewEncoder(w).Encode(daemonBody)
	}))
	t.Cleanup(env.daemon.Close)

	u, err := url.Parse(env.daemon.URL)
	require.NoError(t, err)
	port, err := strconv.Atoi(u.Port())
	require.NoError(t, err)

	env.owner = &models.User{UUID: "owner-uuid", Username: "owner", Email: "owner@example.com", Password: "x", IsActive: true}
	require.NoError(t, db.Create(env.owner).Error)
	env.subuser = &models.User{UUID: "sub-uuid", Username: "sub", Email: "sub@example.com", Password: "x", IsActive: true}
	require.NoError(t, db.Create(env.subuser).Error)

	env.node = &models.Node{
		Name:        "node-1",
		FQDN:        u.Hostname(),
		Scheme:      u.Scheme,
		DaemonPort:  port,
		DaemonToken: "node-secret",
		PublicIPv4:  "203.0.113.10",
	}
	require.NoError(t, db.Create(env.node).Error)

	env.server = &models.Server{
		UUID:        "11111111-2222-3333-4444-555555555555",
		UUIDShort:   "11111111",
		Name:        "survival",
		NodeID:      env.node.ID,
		OwnerID:     env.owner.ID,
		Status:      models.ServerStatusRunning,
		BackupLimit: 2,
	}
	require.NoError(t, db.Create(env.server).Error)

	env.settings = services.NewSettings(db, nil)

	cfg := &config.Config{JWTSecret: "test-secret", JWTExpireHours: 24, PanelURL: "https://panel.test"}
	deps := &Deps{
		Cfg:      cfg,
		DB:       db,
		Settings: env.settings,
		Gate:     permissions.NewGate(db),
		Issuer:   wings.NewIssuer(cfg.PanelURL),
		Recorder: activity.NewRecorder(db),
		Bus:      events.NewBus(),
		NewClient: func(node *models.Node) *wings.Client {
			return wings.NewClient(node, 0)
		},
	}

	app := fiber.New()

	// Test auth: X-Test-User carries the acting user's ID.
	app.Use(func(c *fiber.Ctx) error {
		idStr := c.Get("X-Test-User")
		if idStr != "" {
			id, err := strconv.Atoi(idStr)
			if err == nil {
				var user models.User
				if db.First(&user, id).Error == nil {
					c.Locals("user", &user)
					c.Locals("userID", user.ID)
				}
			}
		}
		return c.Next()
	})

	// The fake database host builds statements without executing them,
	// and the recorder keeps what would have been sent.
	env.remote = &sqlRecorder{}
	provisioner := services.NewProvisionerWithOpener(func(host *models.DatabaseHost) (*gorm.DB, error) {
		return gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
			Logger: env.remote,
			DryRun: true,
		})
	})

	firewall := NewFirewallHandler(deps)
	proxy := NewProxyHandler(deps)
	backup := NewBackupHandler(deps)
	power := NewPowerHandler(deps)
	imports := NewImportHandler(deps)
	databases := NewDatabaseHandler(deps, provisioner)
	websocket := NewWebsocketHandler(deps)
	activityHandler := NewActivityHandler(deps)

	srv := app.Group("/api/servers/:server")
	srv.Get("/firewall", firewall.List)
	srv.Post("/firewall", firewall.Create)
	srv.Put("/firewall/:rule", firewall.Update)
	srv.Delete("/firewall/:rule", firewall.Delete)
	srv.Post("/firewall/sync", firewall.Sync)
	srv.Get("/proxies", proxy.List)
	srv.Post("/proxies", proxy.Create)
	srv.Delete("/proxies/:proxy", proxy.Delete)
	srv.Get("/backups", backup.List)
	srv.Post("/backups", backup.Create)
	srv.Delete("/backups/:backup", backup.Delete)
	srv.Post("/backups/:backup/restore", backup.Restore)
	srv.Get("/backups/:backup/download", backup.Download)
	srv.Post("/backups/:backup/lock", backup.ToggleLock)
	srv.Post("/power", power.Action)
	srv.Post("/imports", imports.Start)
	srv.Get("/databases", databases.List)
	srv.Post("/databases", databases.Create)
	srv.Delete("/databases/:database", databases.Delete)
	srv.Get("/websocket", websocket.Token)
	srv.Get("/activity", activityHandler.List)

	env.app = app
	return env
}

func (e *testEnv) enableAllFeatures(t *testing.T) {
	t.Helper()
	for _, key := range []string{
		services.SettingAllowUserFirewall,
		services.SettingAllowUserProxy,
		services.SettingAllowUserFastDL,
		services.SettingAllowUserImports,
	} {
		require.NoError(t, e.settings.Set(key, "true"))
	}
	require.NoError(t, e.settings.Set(services.SettingProxyMaxPerServer, "2"))
}

// request performs a JSON request as the given user and decodes the
// JSON reply.
func (e *testEnv) request(t *testing.T, userID uint, method, path string, body interface{}) (int, map[string]interface{}) {
	t.Helper()

	var reqBody io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		require.NoError(t, err)
		reqBody = bytes.NewReader(encoded)
	}

	req := httptest.NewRequest(method, path, reqBody)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if userID != 0 {
		req.Header.Set("X-Test-User", strconv.Itoa(int(userID)))
	}

	resp, err := e.app.Test(req, -1)
	require.NoError(t, err)
	defer resp.Body.Close()

	var decoded map[string]interface{}
	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	if len(raw) > 0 {
		require.NoError(t, json.Unmarshal(raw, &decoded))
	}
	return resp.StatusCode, decoded
}

func (e *testEnv) hits() int32 {
	return atomic.LoadInt32(&e.daemonHits)
}
