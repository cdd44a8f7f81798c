package models

import "gorm.io/gorm"

// AutoMigrate creates or updates the schema for every model.
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&User{},
		&Subuser{},
		&Node{},
		&Server{},
		&Allocation{},
		&Backup{},
		&Proxy{},
		&FirewallRule{},
		&DatabaseHost{},
		&ServerDatabase{},
		&ServerImport{},
		&Schedule{},
		&ScheduleTask{},
		&ServerActivity{},
		&Setting{},
	)
}
