package services

import (
	"encoding/json"
	"log"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/mythicalltd/featherpanel/internal/activity"
	"github.com/mythicalltd/featherpanel/internal/events"
	"github.com/mythicalltd/featherpanel/internal/models"
	"github.com/mythicalltd/featherpanel/internal/wings"
)

// ClientFactory builds a daemon client for a node. Injected so tests can
// point schedules at a fake daemon.
type ClientFactory func(node *models.Node) *wings.Client

// ScheduleRunner checks schedules every minute and executes due tasks
// against the owning node's daemon.
type ScheduleRunner struct {
	db        *gorm.DB
	recorder  *activity.Recorder
	bus       *events.Bus
	newClient ClientFactory
	stopChan  chan struct{}
}

func NewScheduleRunner(db *gorm.DB, recorder *activity.Recorder, bus *events.Bus, newClient ClientFactory) *ScheduleRunner {
	return &ScheduleRunner{
		db:        db,
		recorder:  recorder,
		bus:       bus,
		newClient: newClient,
		stopChan:  make(chan struct{}),
	}
}

// Start runs the check loop until Stop is called.
func (s *ScheduleRunner) Start() {
	log.Println("ScheduleRunner started, checking every 1 minute")

	ticker := time.NewTicker(1 * time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-s.stopChan:
			log.Println("ScheduleRunner stopped")
			return
		case <-ticker.C:
			s.checkSchedules(time.Now())
		}
	}
}

func (s *ScheduleRunner) Stop() {
	close(s.stopChan)
}

func (s *ScheduleRunner) checkSchedules(now time.Time) {
	var schedules []models.Schedule
	err := s.db.Preload("Tasks", func(db *gorm.DB) *gorm.DB {
		return db.Order("sequence_id ASC")
	}).Where("is_active = ? AND is_processing = ?", true, false).Find(&schedules).Error
	if err != nil {
		log.Printf("ScheduleRunner: failed to load schedules: %v", err)
		return
	}

	for i := range schedules {
		schedule := schedules[i]
		if !scheduleMatches(&schedule, now) {
			continue
		}
		if err := s.db.Model(&models.Schedule{}).Where("id = ?", schedule.ID).
			Update("is_processing", true).Error; err != nil {
			log.Printf("ScheduleRunner: failed to mark schedule %d processing: %v", schedule.ID, err)
			continue
		}
		go s.runSchedule(&schedule)
	}
}

// runSchedule executes the schedule's tasks in sequence order. A task
// failure stops the run unless the task allows continuation.
func (s *ScheduleRunner) runSchedule(schedule *models.Schedule) {
	defer func() {
		now := time.Now()
		if err := s.db.Model(&models.Schedule{}).Where("id = ?", schedule.ID).
			Updates(map[string]interface{}{"is_processing": false, "last_run_at": now}).Error; err != nil {
			log.Printf("ScheduleRunner: failed to finalize schedule %d: %v", schedule.ID, err)
		}
	}()

	var server models.Server
	if err := s.db.First(&server, schedule.ServerID).Error; err != nil {
		log.Printf("ScheduleRunner: schedule %d server missing: %v", schedule.ID, err)
		return
	}
	if schedule.OnlyWhenOnline && server.Status != models.ServerStatusRunning {
		return
	}

	var node models.Node
	if err := s.db.First(&node, server.NodeID).Error; err != nil {
		log.Printf("ScheduleRunner: schedule %d node missing: %v", schedule.ID, err)
		return
	}
	client := s.newClient(&node)

	for _, task := range schedule.Tasks {
		if task.TimeOffset > 0 {
			time.Sleep(time.Duration(task.TimeOffset) * time.Second)
		}
		ok := s.runTask(client, &server, &task)
		s.recorder.Record(server.ID, nil, events.ScheduleTaskExecuted, "", map[string]interface{}{
			"schedule_id": schedule.ID,
			"task_id":     task.ID,
			"action":      string(task.Action),
			"successful":  ok,
		})
		s.bus.Emit(events.ScheduleTaskExecuted, map[string]interface{}{
			"server_uuid": server.UUID,
			"schedule_id": schedule.ID,
			"task_id":     task.ID,
		})
		if !ok && !task.ContinueOnFailure {
			log.Printf("ScheduleRunner: schedule %d aborted at task %d", schedule.ID, task.ID)
			return
		}
	}
}

func (s *ScheduleRunner) runTask(client *wings.Client, server *models.Server, task *models.ScheduleTask) bool {
	switch task.Action {
	case models.TaskActionPower:
		resp := client.PowerAction(server.UUID, task.Payload)
		return resp.IsSuccessful()

	case models.TaskActionCommand:
		resp := client.SendCommands(server.UUID, []string{task.Payload})
		return resp.IsSuccessful()

	case models.TaskActionBackup:
		backup := models.Backup{
			UUID:     uuid.NewString(),
			ServerID: server.ID,
			Name:     "Scheduled backup " + time.Now().Format("2006-01-02 15:04"),
			Adapter:  "wings",
			IsLocked: true,
		}
		if err := s.db.Create(&backup).Error; err != nil {
			log.Printf("ScheduleRunner: failed to create backup row for server %d: %v", server.ID, err)
			return false
		}
		var ignored string
		if task.Payload != "" {
			var payload struct {
				Ignore string `json:"ignore"`
			}
			if err := json.Unmarshal([]byte(task.Payload), &payload); err == nil {
				ignored = payload.Ignore
			}
		}
		resp := client.CreateBackup(server.UUID, backup.Adapter, backup.UUID, ignored)
		if !resp.IsSuccessful() {
			if err := s.db.Unscoped().Delete(&backup).Error; err != nil {
				log.Printf("ScheduleRunner: failed to remove rejected backup row %s: %v", backup.UUID, err)
			}
			return false
		}
		return true

	default:
		log.Printf("ScheduleRunner: unknown task action %q", task.Action)
		return false
	}
}
