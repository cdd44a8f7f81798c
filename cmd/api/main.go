package main

import (
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/compress"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"

	"github.com/mythicalltd/featherpanel/internal/activity"
	"github.com/mythicalltd/featherpanel/internal/config"
	"github.com/mythicalltd/featherpanel/internal/database"
	"github.com/mythicalltd/featherpanel/internal/events"
	"github.com/mythicalltd/featherpanel/internal/handlers"
	"github.com/mythicalltd/featherpanel/internal/middleware"
	"github.com/mythicalltd/featherpanel/internal/models"
	"github.com/mythicalltd/featherpanel/internal/permissions"
	"github.com/mythicalltd/featherpanel/internal/services"
	"github.com/mythicalltd/featherpanel/internal/wings"
)

func main() {
	// Load configuration
	cfg := config.Load()

	// Connect to database and redis
	db, rdb, err := database.Connect(cfg)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer database.Close(db, rdb)

	// Run migrations
	if err := models.AutoMigrate(db); err != nil {
		log.Fatalf("Failed to run migrations: %v", err)
	}

	// Seed admin user if not exists
	seedAdminUser(db)

	wingsTimeout := time.Duration(cfg.WingsTimeoutSeconds) * time.Second
	newClient := func(node *models.Node) *wings.Client {
		return wings.NewClient(node, wingsTimeout)
	}

	recorder := activity.NewRecorder(db)
	bus := events.NewBus()

	// Start the schedule runner and node heartbeat
	scheduleRunner := services.NewScheduleRunner(db, recorder, bus, newClient)
	go scheduleRunner.Start()

	heartbeat := services.NewNodeHeartbeat(db, newClient)
	go heartbeat.Start()

	// Create Fiber app
	app := fiber.New(fiber.Config{
		AppName:      "FeatherPanel API v1.0",
		ServerHeader: "FeatherPanel",
		BodyLimit:    10 * 1024 * 1024, // 10MB
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			code := fiber.StatusInternalServerError
			if e, ok := err.(*fiber.Error); ok {
				code = e.Code
			}
			return c.Status(code).JSON(fiber.Map{
				"success": false,
				"message": err.Error(),
			})
		},
	})

	// Global middleware
	app.Use(recover.New())
	app.Use(compress.New())
	app.Use(middleware.Logger())
	app.Use(middleware.CORS())

	// Health check
	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"status":  "healthy",
			"service": "featherpanel-api",
		})
	})

	// Initialize handlers
	deps := &handlers.Deps{
		Cfg:       cfg,
		DB:        db,
		Settings:  services.NewSettings(db, rdb),
		Gate:      permissions.NewGate(db),
		Issuer:    wings.NewIssuer(cfg.PanelURL),
		Recorder:  recorder,
		Bus:       bus,
		NewClient: newClient,
	}
	auth := middleware.NewAuth(cfg, db, rdb)

	authHandler := handlers.NewAuthHandler(deps, auth)
	powerHandler := handlers.NewPowerHandler(deps)
	websocketHandler := handlers.NewWebsocketHandler(deps)
	backupHandler := handlers.NewBackupHandler(deps)
	firewallHandler := handlers.NewFirewallHandler(deps)
	proxyHandler := handlers.NewProxyHandler(deps)
	databaseHandler := handlers.NewDatabaseHandler(deps, services.NewProvisioner())
	importHandler := handlers.NewImportHandler(deps)
	fastDLHandler := handlers.NewFastDLHandler(deps)
	scheduleHandler := handlers.NewScheduleHandler(deps)
	activityHandler := handlers.NewActivityHandler(deps)
	nodeHandler := handlers.NewNodeHandler(deps)

	// API routes
	api := app.Group("/api")

	// Apply rate limiting to API routes (100 requests per minute by default)
	api.Use(middleware.RateLimiter(100, 1*time.Minute))

	// Public routes
	api.Post("/auth/login", authHandler.Login)

	// Protected routes
	protected := api.Group("", auth.Required())
	protected.Post("/auth/logout", authHandler.Logout)
	protected.Get("/auth/me", authHandler.Me)
	protected.Post("/auth/2fa/setup", authHandler.Setup2FA)
	protected.Post("/auth/2fa/verify", authHandler.Verify2FA)
	protected.Post("/auth/2fa/disable", authHandler.Disable2FA)

	// Server action routes
	server := protected.Group("/servers/:server")
	server.Post("/power", powerHandler.Action)
	server.Post("/commands", powerHandler.SendCommands)
	server.Get("/status", powerHandler.Status)
	server.Get("/websocket", websocketHandler.Token)

	server.Get("/backups", backupHandler.List)
	server.Post("/backups", backupHandler.Create)
	server.Delete("/backups/:backup", backupHandler.Delete)
	server.Post("/backups/:backup/restore", backupHandler.Restore)
	server.Get("/backups/:backup/download", backupHandler.Download)
	server.Post("/backups/:backup/lock", backupHandler.ToggleLock)

	server.Get("/firewall", firewallHandler.List)
	server.Post("/firewall", firewallHandler.Create)
	server.Put("/firewall/:rule", firewallHandler.Update)
	server.Delete("/firewall/:rule", firewallHandler.Delete)
	server.Post("/firewall/sync", firewallHandler.Sync)

	server.Get("/proxies", proxyHandler.List)
	server.Post("/proxies", proxyHandler.Create)
	server.Delete("/proxies/:proxy", proxyHandler.Delete)
	server.Get("/proxies/verify-dns", proxyHandler.VerifyDNS)

	server.Get("/databases", databaseHandler.List)
	server.Post("/databases", databaseHandler.Create)
	server.Post("/databases/:database/rotate-password", databaseHandler.RotatePassword)
	server.Delete("/databases/:database", databaseHandler.Delete)

	server.Get("/imports", importHandler.List)
	server.Post("/imports", importHandler.Start)
	server.Post("/imports/test-connection", importHandler.TestConnection)

	server.Get("/fastdl", fastDLHandler.Get)
	server.Post("/fastdl/enable", fastDLHandler.Enable)
	server.Post("/fastdl/disable", fastDLHandler.Disable)
	server.Put("/fastdl", fastDLHandler.Update)

	server.Get("/schedules", scheduleHandler.List)
	server.Post("/schedules", scheduleHandler.Create)
	server.Put("/schedules/:schedule", scheduleHandler.Update)
	server.Delete("/schedules/:schedule", scheduleHandler.Delete)
	server.Post("/schedules/:schedule/tasks", scheduleHandler.CreateTask)
	server.Delete("/schedules/:schedule/tasks/:task", scheduleHandler.DeleteTask)

	server.Get("/activity", activityHandler.List)

	// Admin routes
	admin := protected.Group("/admin", middleware.AdminOnly())
	admin.Get("/nodes", nodeHandler.List)
	admin.Post("/nodes", nodeHandler.Create)
	admin.Put("/nodes/:node", nodeHandler.Update)
	admin.Delete("/nodes/:node", nodeHandler.Delete)
	admin.Post("/nodes/:node/test", nodeHandler.TestConnection)

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-quit
		log.Println("Shutting down server...")
		scheduleRunner.Stop()
		heartbeat.Stop()
		app.Shutdown()
	}()

	// Start server
	addr := fmt.Sprintf(":%d", cfg.APIPort)
	log.Printf("FeatherPanel API listening on %s", addr)
	if err := app.Listen(addr); err != nil {
		log.Fatalf("Failed to start server: %v", err)
	}
}

func seedAdminUser(db *gorm.DB) {
	var count int64
	db.Model(&models.User{}).Where("is_admin = ?", true).Count(&count)

	if count == 0 {
		log.Println("Creating default admin user...")

		hashedPassword, _ := bcrypt.GenerateFromPassword([]byte("admin123"), bcrypt.DefaultCost)

		admin := models.User{
			UUID:     uuid.NewString(),
			Username: "admin",
			Password: string(hashedPassword),
			Email:    "admin@featherpanel.local",
			IsAdmin:  true,
			IsActive: true,
		}

		if err := db.Create(&admin).Error; err != nil {
			log.Printf("Failed to create admin user: %v", err)
		} else {
			log.Println("Admin user created successfully (username: admin, password: admin123)")
		}
	}
}
