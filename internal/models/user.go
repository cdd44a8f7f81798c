package models

import (
	"time"

	"gorm.io/gorm"
)

// User represents a panel account. Admins bypass per-server permission
// checks; regular users only reach servers they own or are subusers on.
type User struct {
	ID       uint   `gorm:"column:id;primaryKey" json:"id"`
	UUID     string `gorm:"column:uuid;size:36;uniqueIndex;not null" json:"uuid"`
	Username string `gorm:"column:username;size:100;uniqueIndex;not null" json:"username"`
	Email    string `gorm:"column:email;size:255;uniqueIndex;not null" json:"email"`
	Password string `gorm:"column:password;size:255;not null" json:"-"`

	IsAdmin  bool `gorm:"column:is_admin;default:false" json:"is_admin"`
	IsActive bool `gorm:"column:is_active;default:true" json:"is_active"`

	// 2FA
	TwoFASecret  string `gorm:"column:twofa_secret;size:255" json:"-"`
	TwoFAEnabled bool   `gorm:"column:twofa_enabled;default:false" json:"twofa_enabled"`

	LastIP string `gorm:"column:last_ip;size:50" json:"last_ip"`

	CreatedAt time.Time      `gorm:"column:created_at" json:"created_at"`
	UpdatedAt time.Time      `gorm:"column:updated_at" json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"column:deleted_at;index" json:"-"`
}

func (User) TableName() string {
	return "users"
}

// Subuser grants a delegated user a subset of the owner's permissions on a
// single server. Permissions is a JSON array of capability strings.
type Subuser struct {
	ID          uint   `gorm:"column:id;primaryKey" json:"id"`
	UserID      uint   `gorm:"column:user_id;not null;index:idx_subuser_user_server,unique" json:"user_id"`
	ServerID    uint   `gorm:"column:server_id;not null;index:idx_subuser_user_server,unique" json:"server_id"`
	Permissions string `gorm:"column:permissions;type:text" json:"permissions"`

	CreatedAt time.Time `gorm:"column:created_at" json:"created_at"`
	UpdatedAt time.Time `gorm:"column:updated_at" json:"updated_at"`
}

func (Subuser) TableName() string {
	return "subusers"
}
