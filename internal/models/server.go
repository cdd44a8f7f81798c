package models

import (
	"time"

	"gorm.io/gorm"
)

// ServerStatus mirrors the daemon-side process state the panel last saw.
type ServerStatus string

const (
	ServerStatusOffline    ServerStatus = "offline"
	ServerStatusStopped    ServerStatus = "stopped"
	ServerStatusStarting   ServerStatus = "starting"
	ServerStatusRunning    ServerStatus = "running"
	ServerStatusStopping   ServerStatus = "stopping"
	ServerStatusInstalling ServerStatus = "installing"
)

// Server represents a game server hosted on a node.
type Server struct {
	ID        uint   `gorm:"column:id;primaryKey" json:"id"`
	UUID      string `gorm:"column:uuid;size:36;uniqueIndex;not null" json:"uuid"`
	UUIDShort string `gorm:"column:uuid_short;size:8;uniqueIndex;not null" json:"uuid_short"`
	Name      string `gorm:"column:name;size:100;not null" json:"name"`

	NodeID  uint `gorm:"column:node_id;not null;index" json:"node_id"`
	OwnerID uint `gorm:"column:owner_id;not null;index" json:"owner_id"`

	Status ServerStatus `gorm:"column:status;size:20;default:offline" json:"status"`

	// Resource limits enforced by the panel before any daemon call
	BackupLimit   int `gorm:"column:backup_limit;default:1" json:"backup_limit"`
	DatabaseLimit int `gorm:"column:database_limit;default:1" json:"database_limit"`

	CreatedAt time.Time      `gorm:"column:created_at" json:"created_at"`
	UpdatedAt time.Time      `gorm:"column:updated_at" json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"column:deleted_at;index" json:"-"`
}

func (Server) TableName() string {
	return "servers"
}

// Allocation is an IP:port pair assigned to a server.
type Allocation struct {
	ID        uint   `gorm:"column:id;primaryKey" json:"id"`
	ServerID  uint   `gorm:"column:server_id;not null;index" json:"server_id"`
	NodeID    uint   `gorm:"column:node_id;not null;index" json:"node_id"`
	IP        string `gorm:"column:ip;size:50;not null" json:"ip"`
	Port      int    `gorm:"column:port;not null" json:"port"`
	IsPrimary bool   `gorm:"column:is_primary;default:false" json:"is_primary"`

	CreatedAt time.Time `gorm:"column:created_at" json:"created_at"`
	UpdatedAt time.Time `gorm:"column:updated_at" json:"updated_at"`
}

func (Allocation) TableName() string {
	return "allocations"
}
