package models

import "time"

// ServerActivity is an append-only audit entry for an action taken on a
// server. UserID is nullable so system-initiated actions can be recorded.
type ServerActivity struct {
	ID       uint  `gorm:"column:id;primaryKey" json:"id"`
	ServerID uint  `gorm:"column:server_id;not null;index" json:"server_id"`
	UserID   *uint `gorm:"column:user_id;index" json:"user_id"`

	Event    string `gorm:"column:event;size:100;not null" json:"event"`
	Metadata string `gorm:"column:metadata;type:text" json:"metadata"`
	IP       string `gorm:"column:ip;size:50" json:"ip"`

	CreatedAt time.Time `gorm:"column:created_at" json:"created_at"`
}

func (ServerActivity) TableName() string {
	return "server_activities"
}
