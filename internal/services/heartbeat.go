package services

import (
	"log"
	"time"

	"gorm.io/gorm"

	"github.com/mythicalltd/featherpanel/internal/models"
)

// NodeHeartbeat polls every node's daemon and keeps the online flag,
// last-seen timestamp and reported version current.
type NodeHeartbeat struct {
	db        *gorm.DB
	newClient ClientFactory
	interval  time.Duration
	stopChan  chan struct{}
}

func NewNodeHeartbeat(db *gorm.DB, newClient ClientFactory) *NodeHeartbeat {
	return &NodeHeartbeat{
		db:        db,
		newClient: newClient,
		interval:  time.Minute,
		stopChan:  make(chan struct{}),
	}
}

func (h *NodeHeartbeat) Start() {
	log.Println("NodeHeartbeat started, checking every 1 minute")

	ticker := time.NewTicker(h.interval)
	defer ticker.Stop()

	h.checkNodes()

	for {
		select {
		case <-h.stopChan:
			log.Println("NodeHeartbeat stopped")
			return
		case <-ticker.C:
			h.checkNodes()
		}
	}
}

func (h *NodeHeartbeat) Stop() {
	close(h.stopChan)
}

func (h *NodeHeartbeat) checkNodes() {
	var nodes []models.Node
	if err := h.db.Find(&nodes).Error; err != nil {
		log.Printf("NodeHeartbeat: failed to load nodes: %v", err)
		return
	}

	for i := range nodes {
		node := nodes[i]
		resp := h.newClient(&node).SystemInfo()

		updates := map[string]interface{}{"is_online": resp.IsSuccessful()}
		if resp.IsSuccessful() {
			now := time.Now()
			updates["last_seen"] = &now
			if version, ok := resp.Data["version"].(string); ok {
				updates["version"] = version
			}
		}
		if err := h.db.Model(&models.Node{}).Where("id = ?", node.ID).Updates(updates).Error; err != nil {
			log.Printf("NodeHeartbeat: failed to update node %s: %v", node.Name, err)
		}
	}
}
