package activity

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

func TestRecordAndList(t *testing.T) {
	db := setupDB(t)
	rec := NewRecorder(db)

	userID := uint(42)
	rec.Record(1, &userID, "server.backup.created", "203.0.113.5", map[string]interface{}{
		"backup_uuid": "bkp-1",
	})
	rec.Record(1, nil, "server.power.changed", "", map[string]interface{}{
		"action": "start",
	})
	rec.Record(2, &userID, "server.proxy.created", "203.0.113.5", nil)

	entries, total, err := rec.List(1, 1, 25)
	require.NoError(t, err)
	assert.Equal(t, int64(2), total)
	require.Len(t, entries, 2)

	var sawSystem bool
	for _, e := range entries {
		if e.UserID == nil {
			sawSystem = true
			assert.Equal(t, "server.power.changed", e.Event)
		}
	}
	assert.True(t, sawSystem, "system entry with nil user should be listed")
}

func TestListPaging(t *testing.T) {
	db := setupDB(t)
	rec := NewRecorder(db)

	for i := 0; i < 30; i++ {
		rec.Record(1, nil, "server.power.changed", "", nil)
	}

	entries, total, err := rec.List(1, 2, 25)
	require.NoError(t, err)
	assert.Equal(t, int64(30), total)
	assert.Len(t, entries, 5)
}
