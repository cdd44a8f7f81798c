package handlers

import (
	"errors"

	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"

	"github.com/mythicalltd/featherpanel/internal/models"
	"github.com/mythicalltd/featherpanel/internal/permissions"
	"github.com/mythicalltd/featherpanel/internal/services"
)

// ScheduleHandler manages schedules and their tasks. Schedules are
// panel-local state; the runner service talks to the daemon when tasks
// fire.
type ScheduleHandler struct {
	deps *Deps
}

func NewScheduleHandler(deps *Deps) *ScheduleHandler {
	return &ScheduleHandler{deps: deps}
}

type scheduleRequest struct {
	Name           string `json:"name"`
	CronMinute     string `json:"cron_minute"`
	CronHour       string `json:"cron_hour"`
	CronDayOfMonth string `json:"cron_day_of_month"`
	CronMonth      string `json:"cron_month"`
	CronDayOfWeek  string `json:"cron_day_of_week"`
	IsActive       *bool  `json:"is_active"`
	OnlyWhenOnline bool   `json:"only_when_online"`
}

type taskRequest struct {
	Action            string `json:"action"`
	Payload           string `json:"payload"`
	SequenceID        int    `json:"sequence_id"`
	TimeOffset        int    `json:"time_offset"`
	ContinueOnFailure bool   `json:"continue_on_failure"`
}

func applyCronDefaults(req *scheduleRequest) {
	if req.CronMinute == "" {
		req.CronMinute = "*"
	}
	if req.CronHour == "" {
		req.CronHour = "*"
	}
	if req.CronDayOfMonth == "" {
		req.CronDayOfMonth = "*"
	}
	if req.CronMonth == "" {
		req.CronMonth = "*"
	}
	if req.CronDayOfWeek == "" {
		req.CronDayOfWeek = "*"
	}
}

// List returns the server's schedules with their tasks.
func (h *ScheduleHandler) List(c *fiber.Ctx) error {
	server, err := h.deps.resolveServer(c)
	if server == nil {
		return err
	}
	if ok, err := h.deps.requirePermission(c, server.ID, permissions.ScheduleRead); !ok {
		return err
	}

	var schedules []models.Schedule
	if err := h.deps.DB.Preload("Tasks").Where("server_id = ?", server.ID).Find(&schedules).Error; err != nil {
		return fail(c, fiber.StatusInternalServerError, CodeInternalError, "Failed to load schedules")
	}
	return c.JSON(fiber.Map{"success": true, "data": schedules})
}

// Create stores a new schedule after validating the cron fields.
func (h *ScheduleHandler) Create(c *fiber.Ctx) error {
	server, err := h.deps.resolveServer(c)
	if server == nil {
		return err
	}
	if ok, err := h.deps.requirePermission(c, server.ID, permissions.ScheduleCreate); !ok {
		return err
	}

	var req scheduleRequest
	if err := c.BodyParser(&req); err != nil {
		return fail(c, fiber.StatusBadRequest, CodeInvalidParameters, "Invalid request body")
	}
	if req.Name == "" {
		return fail(c, fiber.StatusBadRequest, CodeInvalidParameters, "Schedule name is required")
	}
	applyCronDefaults(&req)
	if err := services.ValidateCron(req.CronMinute, req.CronHour, req.CronDayOfMonth, req.CronMonth, req.CronDayOfWeek); err != nil {
		return fail(c, fiber.StatusBadRequest, CodeInvalidCron, err.Error())
	}

	isActive := true
	if req.IsActive != nil {
		isActive = *req.IsActive
	}
	schedule := models.Schedule{
		ServerID:       server.ID,
		Name:           req.Name,
		CronMinute:     req.CronMinute,
		CronHour:       req.CronHour,
		CronDayOfMonth: req.CronDayOfMonth,
		CronMonth:      req.CronMonth,
		CronDayOfWeek:  req.CronDayOfWeek,
		IsActive:       isActive,
		OnlyWhenOnline: req.OnlyWhenOnline,
	}
	if err := h.deps.DB.Create(&schedule).Error; err != nil {
		return fail(c, fiber.StatusInternalServerError, CodeInternalError, "Failed to create schedule")
	}

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"success": true, "data": schedule})
}

func (h *ScheduleHandler) findSchedule(c *fiber.Ctx, serverID uint) (*models.Schedule, error) {
	scheduleID, err := c.ParamsInt("schedule")
	if err != nil {
		return nil, fail(c, fiber.StatusBadRequest, CodeInvalidParameters, "Invalid schedule ID")
	}
	var schedule models.Schedule
	if err := h.deps.DB.Preload("Tasks").Where("id = ? AND server_id = ?", scheduleID, serverID).First(&schedule).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fail(c, fiber.StatusNotFound, CodeScheduleNotFound, "Schedule not found")
		}
		return nil, fail(c, fiber.StatusInternalServerError, CodeInternalError, "Failed to load schedule")
	}
	return &schedule, nil
}

// Update edits a schedule in place.
func (h *ScheduleHandler) Update(c *fiber.Ctx) error {
	server, err := h.deps.resolveServer(c)
	if server == nil {
		return err
	}
	if ok, err := h.deps.requirePermission(c, server.ID, permissions.ScheduleUpdate); !ok {
		return err
	}

	schedule, err := h.findSchedule(c, server.ID)
	if schedule == nil {
		return err
	}

	var req scheduleRequest
	if err := c.BodyParser(&req); err != nil {
		return fail(c, fiber.StatusBadRequest, CodeInvalidParameters, "Invalid request body")
	}
	if req.Name != "" {
		schedule.Name = req.Name
	}
	if req.CronMinute != "" {
		schedule.CronMinute = req.CronMinute
	}
	if req.CronHour != "" {
		schedule.CronHour = req.CronHour
	}
	if req.CronDayOfMonth != "" {
		schedule.CronDayOfMonth = req.CronDayOfMonth
	}
	if req.CronMonth != "" {
		schedule.CronMonth = req.CronMonth
	}
	if req.CronDayOfWeek != "" {
		schedule.CronDayOfWeek = req.CronDayOfWeek
	}
	if req.IsActive != nil {
		schedule.IsActive = *req.IsActive
	}
	schedule.OnlyWhenOnline = req.OnlyWhenOnline

	if err := services.ValidateCron(schedule.CronMinute, schedule.CronHour, schedule.CronDayOfMonth, schedule.CronMonth, schedule.CronDayOfWeek); err != nil {
		return fail(c, fiber.StatusBadRequest, CodeInvalidCron, err.Error())
	}
	if err := h.deps.DB.Save(schedule).Error; err != nil {
		return fail(c, fiber.StatusInternalServerError, CodeInternalError, "Failed to update schedule")
	}

	return c.JSON(fiber.Map{"success": true, "data": schedule})
}

// Delete removes a schedule and its tasks.
func (h *ScheduleHandler) Delete(c *fiber.Ctx) error {
	server, err := h.deps.resolveServer(c)
	if server == nil {
		return err
	}
	if ok, err := h.deps.requirePermission(c, server.ID, permissions.ScheduleDelete); !ok {
		return err
	}

	schedule, err := h.findSchedule(c, server.ID)
	if schedule == nil {
		return err
	}

	if err := h.deps.DB.Where("schedule_id = ?", schedule.ID).Delete(&models.ScheduleTask{}).Error; err != nil {
		return fail(c, fiber.StatusInternalServerError, CodeInternalError, "Failed to delete schedule tasks")
	}
	if err := h.deps.DB.Delete(schedule).Error; err != nil {
		return fail(c, fiber.StatusInternalServerError, CodeInternalError, "Failed to delete schedule")
	}

	return c.JSON(fiber.Map{"success": true, "message": "Schedule deleted"})
}

// CreateTask appends a task to a schedule.
func (h *ScheduleHandler) CreateTask(c *fiber.Ctx) error {
	server, err := h.deps.resolveServer(c)
	if server == nil {
		return err
	}
	if ok, err := h.deps.requirePermission(c, server.ID, permissions.ScheduleUpdate); !ok {
		return err
	}

	schedule, err := h.findSchedule(c, server.ID)
	if schedule == nil {
		return err
	}

	var req taskRequest
	if err := c.BodyParser(&req); err != nil {
		return fail(c, fiber.StatusBadRequest, CodeInvalidParameters, "Invalid request body")
	}
	action := models.ScheduleTaskAction(req.Action)
	if action != models.TaskActionPower && action != models.TaskActionCommand && action != models.TaskActionBackup {
		return fail(c, fiber.StatusBadRequest, CodeInvalidParameters, "Task action must be power, command or backup")
	}
	if req.SequenceID < 1 {
		req.SequenceID = len(schedule.Tasks) + 1
	}

	task := models.ScheduleTask{
		ScheduleID:        schedule.ID,
		SequenceID:        req.SequenceID,
		Action:            action,
		Payload:           req.Payload,
		TimeOffset:        req.TimeOffset,
		ContinueOnFailure: req.ContinueOnFailure,
	}
	if err := h.deps.DB.Create(&task).Error; err != nil {
		return fail(c, fiber.StatusInternalServerError, CodeInternalError, "Failed to create task")
	}

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"success": true, "data": task})
}

// DeleteTask removes one task from a schedule.
func (h *ScheduleHandler) DeleteTask(c *fiber.Ctx) error {
	server, err := h.deps.resolveServer(c)
	if server == nil {
		return err
	}
	if ok, err := h.deps.requirePermission(c, server.ID, permissions.ScheduleUpdate); !ok {
		return err
	}

	schedule, err := h.findSchedule(c, server.ID)
	if schedule == nil {
		return err
	}

	taskID, err := c.ParamsInt("task")
	if err != nil {
		return fail(c, fiber.StatusBadRequest, CodeInvalidParameters, "Invalid task ID")
	}
	result := h.deps.DB.Where("id = ? AND schedule_id = ?", taskID, schedule.ID).Delete(&models.ScheduleTask{})
	if result.Error != nil {
		return fail(c, fiber.StatusInternalServerError, CodeInternalError, "Failed to delete task")
	}
	if result.RowsAffected == 0 {
		return fail(c, fiber.StatusNotFound, CodeScheduleNotFound, "Task not found")
	}

	return c.JSON(fiber.Map{"success": true, "message": "Task deleted"})
}
