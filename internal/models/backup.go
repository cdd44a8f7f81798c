package models

import (
	"time"

	"gorm.io/gorm"
)

// Backup is the panel-side record of a daemon-side backup archive. The row
// is written before the daemon call with IsLocked set, and removed again if
// the daemon rejects the request.
type Backup struct {
	ID       uint   `gorm:"column:id;primaryKey" json:"id"`
	UUID     string `gorm:"column:uuid;size:36;uniqueIndex;not null" json:"uuid"`
	ServerID uint   `gorm:"column:server_id;not null;index" json:"server_id"`

	Name         string `gorm:"column:name;size:255;not null" json:"name"`
	Adapter      string `gorm:"column:adapter;size:50;default:wings" json:"adapter"`
	IgnoredFiles string `gorm:"column:ignored_files;type:text" json:"ignored_files"`

	IsLocked     bool  `gorm:"column:is_locked;default:false" json:"is_locked"`
	IsSuccessful bool  `gorm:"column:is_successful;default:false" json:"is_successful"`
	Bytes        int64 `gorm:"column:bytes;default:0" json:"bytes"`

	CompletedAt *time.Time `gorm:"column:completed_at" json:"completed_at"`

	CreatedAt time.Time      `gorm:"column:created_at" json:"created_at"`
	UpdatedAt time.Time      `gorm:"column:updated_at" json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"column:deleted_at;index" json:"-"`
}

func (Backup) TableName() string {
	return "backups"
}
