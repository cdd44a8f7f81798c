// Package activity appends audit entries for server actions. Entries are
// never updated or deleted.
package activity

import (
	"encoding/json"
	"log"

	"gorm.io/gorm"

	"github.com/mythicalltd/featherpanel/internal/models"
)

type Recorder struct {
	db *gorm.DB
}

func NewRecorder(db *gorm.DB) *Recorder {
	return &Recorder{db: db}
}

// Record appends one activity entry. userID is nil for system-initiated
// actions (schedule runner, heartbeat). A failed insert is logged and
// swallowed so audit trouble never fails the action it describes.
func (r *Recorder) Record(serverID uint, userID *uint, event, ip string, metadata map[string]interface{}) {
	encoded := ""
	if metadata != nil {
		raw, err := json.Marshal(metadata)
		if err != nil {
			log.Printf("WARNING: failed to encode activity metadata for %s: %v", event, err)
		} else {
			encoded = string(raw)
		}
	}

	entry := models.ServerActivity{
		ServerID: serverID,
		UserID:   userID,
		Event:    event,
		Metadata: encoded,
		IP:       ip,
	}
	if err := r.db.Create(&entry).Error; err != nil {
		log.Printf("WARNING: failed to record activity %s for server %d: %v", event, serverID, err)
	}
}

// List returns a page of entries for a server, newest first.
func (r *Recorder) List(serverID uint, page, perPage int) ([]models.ServerActivity, int64, error) {
	if page < 1 {
		page = 1
	}
	if perPage < 1 || perPage > 100 {
		perPage = 25
	}

	var total int64
	if err := r.db.Model(&models.ServerActivity{}).Where("server_id = ?", serverID).Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var entries []models.ServerActivity
	err := r.db.Where("server_id = ?", serverID).
		Order("created_at DESC").
		Offset((page - 1) * perPage).
		Limit(perPage).
		Find(&entries).Error
	return entries, total, err
}
