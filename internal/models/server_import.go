package models

import "time"

// ImportStatus tracks a file import job delegated to the daemon.
type ImportStatus string

const (
	ImportStatusPending   ImportStatus = "pending"
	ImportStatusImporting ImportStatus = "importing"
	ImportStatusCompleted ImportStatus = "completed"
	ImportStatusFailed    ImportStatus = "failed"
)

// ServerImport records a server file import from a remote SFTP/FTP source.
// Credentials are not persisted; only the connection coordinates are kept
// for display.
type ServerImport struct {
	ID       uint `gorm:"column:id;primaryKey" json:"id"`
	ServerID uint `gorm:"column:server_id;not null;index" json:"server_id"`

	Source     string `gorm:"column:source;size:10;not null" json:"source"` // sftp or ftp
	Host       string `gorm:"column:host;size:255;not null" json:"host"`
	Port       int    `gorm:"column:port;not null" json:"port"`
	Username   string `gorm:"column:username;size:100;not null" json:"username"`
	SourcePath string `gorm:"column:source_path;size:500;default:/" json:"source_path"`

	Status ImportStatus `gorm:"column:status;size:20;default:pending" json:"status"`

	CreatedAt time.Time `gorm:"column:created_at" json:"created_at"`
	UpdatedAt time.Time `gorm:"column:updated_at" json:"updated_at"`
}

func (ServerImport) TableName() string {
	return "server_imports"
}
