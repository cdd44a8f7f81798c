package models

import "time"

// Schedule is a recurring set of tasks run against a server. The cron
// fields follow standard five-field cron semantics.
type Schedule struct {
	ID       uint   `gorm:"column:id;primaryKey" json:"id"`
	ServerID uint   `gorm:"column:server_id;not null;index" json:"server_id"`
	Name     string `gorm:"column:name;size:100;not null" json:"name"`

	CronMinute     string `gorm:"column:cron_minute;size:20;default:*" json:"cron_minute"`
	CronHour       string `gorm:"column:cron_hour;size:20;default:*" json:"cron_hour"`
	CronDayOfMonth string `gorm:"column:cron_day_of_month;size:20;default:*" json:"cron_day_of_month"`
	CronMonth      string `gorm:"column:cron_month;size:20;default:*" json:"cron_month"`
	CronDayOfWeek  string `gorm:"column:cron_day_of_week;size:20;default:*" json:"cron_day_of_week"`

	IsActive       bool `gorm:"column:is_active;default:true" json:"is_active"`
	IsProcessing   bool `gorm:"column:is_processing;default:false" json:"is_processing"`
	OnlyWhenOnline bool `gorm:"column:only_when_online;default:false" json:"only_when_online"`

	LastRunAt *time.Time `gorm:"column:last_run_at" json:"last_run_at"`
	NextRunAt *time.Time `gorm:"column:next_run_at" json:"next_run_at"`

	Tasks []ScheduleTask `gorm:"foreignKey:ScheduleID" json:"tasks,omitempty"`

	CreatedAt time.Time `gorm:"column:created_at" json:"created_at"`
	UpdatedAt time.Time `gorm:"column:updated_at" json:"updated_at"`
}

func (Schedule) TableName() string {
	return "schedules"
}

// ScheduleTaskAction is what a task does when its schedule fires.
type ScheduleTaskAction string

const (
	TaskActionPower   ScheduleTaskAction = "power"
	TaskActionCommand ScheduleTaskAction = "command"
	TaskActionBackup  ScheduleTaskAction = "backup"
)

// ScheduleTask is a single step within a schedule, executed in
// SequenceID order with an optional offset delay.
type ScheduleTask struct {
	ID         uint `gorm:"column:id;primaryKey" json:"id"`
	ScheduleID uint `gorm:"column:schedule_id;not null;index" json:"schedule_id"`
	SequenceID int  `gorm:"column:sequence_id;default:1" json:"sequence_id"`

	Action  ScheduleTaskAction `gorm:"column:action;size:20;not null" json:"action"`
	Payload string             `gorm:"column:payload;type:text" json:"payload"`

	TimeOffset        int  `gorm:"column:time_offset;default:0" json:"time_offset"`
	ContinueOnFailure bool `gorm:"column:continue_on_failure;default:false" json:"continue_on_failure"`

	CreatedAt time.Time `gorm:"column:created_at" json:"created_at"`
	UpdatedAt time.Time `gorm:"column:updated_at" json:"updated_at"`
}

func (ScheduleTask) TableName() string {
	return "schedule_tasks"
}
