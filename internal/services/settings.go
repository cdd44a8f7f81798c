// Package services holds panel-side background and support services:
// feature-flag settings, external database provisioning, the schedule
// runner and the node heartbeat.
package services

import (
	"context"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"

	"github.com/mythicalltd/featherpanel/internal/models"
)

// Feature flag keys stored in the settings table. Checked before any
// permission check so a disabled feature reads the same for everyone.
const (
	SettingAllowUserFirewall = "server_allow_user_made_firewall"
	SettingAllowUserProxy    = "server_allow_user_made_proxy"
	SettingAllowUserFastDL   = "server_allow_user_made_fastdl"
	SettingAllowUserImports  = "server_allow_user_made_imports"
	SettingProxyMaxPerServer = "server_proxy_max_per_server"
)

const settingsCacheTTL = 60 * time.Second
const settingsCachePrefix = "settings:"

// Settings reads panel configuration from the settings table with a
// short redis cache in front. A nil redis client disables the cache.
type Settings struct {
	db  *gorm.DB
	rdb *redis.Client
}

func NewSettings(db *gorm.DB, rdb *redis.Client) *Settings {
	return &Settings{db: db, rdb: rdb}
}

// Get returns the raw value for key, or fallback when the key is unset.
func (s *Settings) Get(key, fallback string) string {
	if s.rdb != nil {
		if cached, err := s.rdb.Get(context.Background(), settingsCachePrefix+key).Result(); err == nil {
			return cached
		}
	}

	var setting models.Setting
	if err := s.db.Where("key = ?", key).First(&setting).Error; err != nil {
		return fallback
	}

	if s.rdb != nil {
		s.rdb.Set(context.Background(), settingsCachePrefix+key, setting.Value, settingsCacheTTL)
	}
	return setting.Value
}

// GetBool parses a flag value; "true" and "1" enable it.
func (s *Settings) GetBool(key string, fallback bool) bool {
	v := s.Get(key, "")
	if v == "" {
		return fallback
	}
	return v == "true" || v == "1"
}

// GetInt parses a numeric setting.
func (s *Settings) GetInt(key string, fallback int) int {
	v := s.Get(key, "")
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}

// Set writes a setting and drops its cache entry.
func (s *Settings) Set(key, value string) error {
	setting := models.Setting{Key: key, Value: value}
	err := s.db.Where("key = ?", key).Assign(models.Setting{Value: value}).FirstOrCreate(&setting).Error
	if err != nil {
		return err
	}
	if s.rdb != nil {
		s.rdb.Del(context.Background(), settingsCachePrefix+key)
	}
	return nil
}
