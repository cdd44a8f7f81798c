package models

import (
	"time"

	"gorm.io/gorm"
)

// Node represents a physical machine running the Wings daemon.
type Node struct {
	ID          uint   `gorm:"column:id;primaryKey" json:"id"`
	Name        string `gorm:"column:name;size:100;not null" json:"name"`
	FQDN        string `gorm:"column:fqdn;size:255;not null;uniqueIndex" json:"fqdn"`
	Scheme      string `gorm:"column:scheme;size:10;default:http" json:"scheme"`
	DaemonPort  int    `gorm:"column:daemon_port;default:8080" json:"daemon_port"`
	DaemonToken string `gorm:"column:daemon_token;size:255;not null" json:"-"` // Hidden from API responses for security

	PublicIPv4 string `gorm:"column:public_ip_v4;size:50" json:"public_ip_v4"`
	PublicIPv6 string `gorm:"column:public_ip_v6;size:50" json:"public_ip_v6"`

	IsOnline bool       `gorm:"column:is_online;default:false" json:"is_online"`
	LastSeen *time.Time `gorm:"column:last_seen" json:"last_seen"`
	Version  string     `gorm:"column:version;size:50" json:"version"`

	CreatedAt time.Time      `gorm:"column:created_at" json:"created_at"`
	UpdatedAt time.Time      `gorm:"column:updated_at" json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"column:deleted_at;index" json:"-"`
}

func (Node) TableName() string {
	return "nodes"
}
