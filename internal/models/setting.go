package models

import "time"

// Setting is a panel-wide key/value configuration entry. Feature flags
// such as server_allow_user_made_firewall live here.
type Setting struct {
	ID    uint   `gorm:"column:id;primaryKey" json:"id"`
	Key   string `gorm:"column:key;size:100;uniqueIndex;not null" json:"key"`
	Value string `gorm:"column:value;type:text" json:"value"`

	CreatedAt time.Time `gorm:"column:created_at" json:"created_at"`
	UpdatedAt time.Time `gorm:"column:updated_at" json:"updated_at"`
}

func (Setting) TableName() string {
	return "settings"
}
