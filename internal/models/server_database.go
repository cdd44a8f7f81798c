package models

import (
	"time"

	"gorm.io/gorm"
)

// DatabaseHostType selects the SQL dialect used when provisioning.
// Only postgres is spoken today; the column exists so adding a dialect
// is a data change, not a schema change.
type DatabaseHostType string

const (
	DatabaseHostPostgres DatabaseHostType = "postgresql"
)

// DatabaseHost is an external database server the panel provisions
// databases on. Distinct from the panel's own database.
type DatabaseHost struct {
	ID   uint             `gorm:"column:id;primaryKey" json:"id"`
	Name string           `gorm:"column:name;size:100;not null" json:"name"`
	Type DatabaseHostType `gorm:"column:type;size:20;default:postgresql" json:"type"`

	Host     string `gorm:"column:host;size:255;not null" json:"host"`
	Port     int    `gorm:"column:port;default:5432" json:"port"`
	Username string `gorm:"column:username;size:100;not null" json:"username"`
	Password string `gorm:"column:password;size:255;not null" json:"-"`

	NodeID *uint `gorm:"column:node_id" json:"node_id"`

	CreatedAt time.Time      `gorm:"column:created_at" json:"created_at"`
	UpdatedAt time.Time      `gorm:"column:updated_at" json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"column:deleted_at;index" json:"-"`
}

func (DatabaseHost) TableName() string {
	return "database_hosts"
}

// ServerDatabase is a database provisioned for a server on a DatabaseHost.
type ServerDatabase struct {
	ID             uint `gorm:"column:id;primaryKey" json:"id"`
	ServerID       uint `gorm:"column:server_id;not null;index" json:"server_id"`
	DatabaseHostID uint `gorm:"column:database_host_id;not null;index" json:"database_host_id"`

	Name     string `gorm:"column:name;size:100;not null;uniqueIndex" json:"name"`
	Username string `gorm:"column:username;size:100;not null" json:"username"`
	Password string `gorm:"column:password;size:255;not null" json:"-"`
	Remote   string `gorm:"column:remote;size:100;default:%" json:"remote"`

	CreatedAt time.Time `gorm:"column:created_at" json:"created_at"`
	UpdatedAt time.Time `gorm:"column:updated_at" json:"updated_at"`
}

func (ServerDatabase) TableName() string {
	return "server_databases"
}
