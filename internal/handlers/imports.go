package handlers

import (
	"fmt"
	"log"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/jlaffaye/ftp"

	"github.com/mythicalltd/featherpanel/internal/events"
	"github.com/mythicalltd/featherpanel/internal/models"
	"github.com/mythicalltd/featherpanel/internal/permissions"
	"github.com/mythicalltd/featherpanel/internal/services"
	"github.com/mythicalltd/featherpanel/internal/validate"
)

// ImportHandler starts server file imports from remote SFTP/FTP sources.
// The daemon performs the transfer; the panel validates, gates and
// records the job.
type ImportHandler struct {
	deps *Deps
}

func NewImportHandler(deps *Deps) *ImportHandler {
	return &ImportHandler{deps: deps}
}

type importRequest struct {
	Source     string `json:"source"`
	Host       string `json:"host"`
	Port       int    `json:"port"`
	Username   string `json:"username"`
	Password   string `json:"password"`
	SourcePath string `json:"source_path"`
	Wipe       bool   `json:"wipe"`
}

func (h *ImportHandler) validateImport(c *fiber.Ctx, req *importRequest) (bool, error) {
	if req.Source != "sftp" && req.Source != "ftp" {
		return false, fail(c, fiber.StatusBadRequest, CodeInvalidParameters, "Source must be sftp or ftp")
	}
	if req.Host == "" || validate.ContainsDangerousChars(req.Host) {
		return false, fail(c, fiber.StatusBadRequest, CodeInvalidParameters, "Invalid source host")
	}
	if !validate.IsValidPort(req.Port) {
		return false, fail(c, fiber.StatusBadRequest, CodeInvalidPort, "Port must be between 1 and 65535")
	}
	if req.Username == "" {
		return false, fail(c, fiber.StatusBadRequest, CodeInvalidParameters, "Username is required")
	}
	if req.SourcePath == "" {
		req.SourcePath = "/"
	}
	return true, nil
}

// List returns the server's import history.
func (h *ImportHandler) List(c *fiber.Ctx) error {
	server, err := h.deps.resolveServer(c)
	if server == nil {
		return err
	}
	if ok, err := h.deps.requireFeature(c, services.SettingAllowUserImports, CodeImportsDisabled, "Import"); !ok {
		return err
	}
	if ok, err := h.deps.requirePermission(c, server.ID, permissions.ImportRead); !ok {
		return err
	}

	var imports []models.ServerImport
	if err := h.deps.DB.Where("server_id = ?", server.ID).Order("created_at DESC").Find(&imports).Error; err != nil {
		return fail(c, fiber.StatusInternalServerError, CodeInternalError, "Failed to load imports")
	}
	return c.JSON(fiber.Map{"success": true, "data": imports})
}

// Start hands the transfer job to the daemon. The server must not be
// running: an import over a live server would race the process's own
// writes. The daemon is asked for the live process state; the panel's
// own status column only reflects the last state it happened to see.
func (h *ImportHandler) Start(c *fiber.Ctx) error {
	server, err := h.deps.resolveServer(c)
	if server == nil {
		return err
	}
	if ok, err := h.deps.requireFeature(c, services.SettingAllowUserImports, CodeImportsDisabled, "Import"); !ok {
		return err
	}
	if ok, err := h.deps.requirePermission(c, server.ID, permissions.ImportManage); !ok {
		return err
	}

	var req importRequest
	if err := c.BodyParser(&req); err != nil {
		return fail(c, fiber.StatusBadRequest, CodeInvalidParameters, "Invalid request body")
	}
	if ok, err := h.validateImport(c, &req); !ok {
		return err
	}

	node, err := h.deps.resolveNode(c, server)
	if node == nil {
		return err
	}
	client := h.deps.NewClient(node)

	statusResp := client.ServerStatus(server.UUID)
	if !statusResp.IsSuccessful() {
		return daemonFail(c, statusResp)
	}
	state, _ := statusResp.Data["state"].(string)
	syncServerStatus(h.deps, server, state)
	if state != string(models.ServerStatusOffline) && state != string(models.ServerStatusStopped) {
		return fail(c, fiber.StatusConflict, CodeServerMustBeOffline, "Server must be stopped before importing files")
	}

	resp := client.ImportServer(server.UUID, map[string]interface{}{
		"source":      req.Source,
		"host":        req.Host,
		"port":        req.Port,
		"username":    req.Username,
		"password":    req.Password,
		"source_path": req.SourcePath,
		"wipe":        req.Wipe,
	})
	if !resp.IsSuccessful() {
		return daemonFail(c, resp)
	}

	record := models.ServerImport{
		ServerID:   server.ID,
		Source:     req.Source,
		Host:       req.Host,
		Port:       req.Port,
		Username:   req.Username,
		SourcePath: req.SourcePath,
		Status:     models.ImportStatusImporting,
	}
	if err := h.deps.DB.Create(&record).Error; err != nil {
		log.Printf("WARNING: failed to record import for server %s: %v", server.UUID, err)
	}

	h.deps.Recorder.Record(server.ID, currentUserIDPtr(c), events.ImportStarted, clientIP(c), map[string]interface{}{
		"source": req.Source,
		"host":   req.Host,
	})
	h.deps.Bus.Emit(events.ImportStarted, map[string]interface{}{
		"server_uuid": server.UUID,
		"import_id":   record.ID,
	})

	return c.Status(fiber.StatusAccepted).JSON(fiber.Map{"success": true, "data": record})
}

// TestConnection verifies FTP source credentials from the panel before
// the job is handed to the daemon. SFTP sources are not dialed here;
// the daemon reports those failures itself.
func (h *ImportHandler) TestConnection(c *fiber.Ctx) error {
	server, err := h.deps.resolveServer(c)
	if server == nil {
		return err
	}
	if ok, err := h.deps.requireFeature(c, services.SettingAllowUserImports, CodeImportsDisabled, "Import"); !ok {
		return err
	}
	if ok, err := h.deps.requirePermission(c, server.ID, permissions.ImportManage); !ok {
		return err
	}

	var req importRequest
	if err := c.BodyParser(&req); err != nil {
		return fail(c, fiber.StatusBadRequest, CodeInvalidParameters, "Invalid request body")
	}
	if ok, err := h.validateImport(c, &req); !ok {
		return err
	}
	if req.Source != "ftp" {
		return fail(c, fiber.StatusBadRequest, CodeInvalidParameters, "Connection test is only available for FTP sources")
	}

	conn, dialErr := ftp.Dial(fmt.Sprintf("%s:%d", req.Host, req.Port), ftp.DialWithTimeout(10*time.Second))
	if dialErr != nil {
		return c.JSON(fiber.Map{
			"success": true,
			"data":    fiber.Map{"reachable": false, "error": dialErr.Error()},
		})
	}
	defer conn.Quit()

	if loginErr := conn.Login(req.Username, req.Password); loginErr != nil {
		return c.JSON(fiber.Map{
			"success": true,
			"data":    fiber.Map{"reachable": true, "authenticated": false, "error": loginErr.Error()},
		})
	}

	return c.JSON(fiber.Map{
		"success": true,
		"data":    fiber.Map{"reachable": true, "authenticated": true},
	})
}
