package services

import (
	"testing"

	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/mythicalltd/featherpanel/internal/models"
)

func setupDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	require.NoError(t, models.AutoMigrate(db))
	return db
}

func TestSettingsGetFallback(t *testing.T) {
	db := setupDB(t)
	s := NewSettings(db, nil)

	assert.Equal(t, "off", s.Get("missing", "off"))
	assert.True(t, s.GetBool(SettingAllowUserFirewall, true))
	assert.False(t, s.GetBool(SettingAllowUserFirewall, false))
	assert.Equal(t, 3, s.GetInt(SettingProxyMaxPerServer, 3))
}

func TestSettingsSetAndGet(t *testing.T) {
	db := setupDB(t)
	s := NewSettings(db, nil)

	require.NoError(t, s.Set(SettingAllowUserProxy, "true"))
	assert.True(t, s.GetBool(SettingAllowUserProxy, false))

	require.NoError(t, s.Set(SettingAllowUserProxy, "false"))
	assert.False(t, s.GetBool(SettingAllowUserProxy, true))

	require.NoError(t, s.Set(SettingProxyMaxPerServer, "5"))
	assert.Equal(t, 5, s.GetInt(SettingProxyMaxPerServer, 1))
}

func TestSettingsBoolParsing(t *testing.T) {
	db := setupDB(t)
	s := NewSettings(db, nil)

	require.NoError(t, s.Set("flag", "1"))
	assert.True(t, s.GetBool("flag", false))

	require.NoError(t, s.Set("flag", "0"))
	assert.False(t, s.GetBool("flag", true))

	require.NoError(t, s.Set("num", "not-a-number"))
	assert.Equal(t, 7, s.GetInt("num", 7))
}
