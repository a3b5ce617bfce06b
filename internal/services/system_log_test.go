package services

import (
	"context"
	"testing"
	"time"

	"github.com/fuseproject/fuse/backend/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAuditHelpers(t *testing.T) {
	db := setupDB(t)
	InitSystemLogger(db)
	t.Cleanup(func() { InitSystemLogger(nil) })

	uid := uint(5)
	LogInfo(AuditEntry{
		Module:  "group",
		Action:  "POST /api/teams/3/join",
		Message: "joined",
		UserID:  &uid,
		Group:   &models.GroupRef{Kind: models.KindTeam, ID: 3},
		Extra:   map[string]any{"status": 200},
	})
	LogWarning(AuditEntry{Module: "auth", Action: "login", Message: "bad password"})
	LogError(AuditEntry{Module: "auth", Action: "login", Message: "ldap down"})

	svc := NewSystemLogService(db)
	ctx := context.Background()

	page, err := svc.List(ctx, &SystemLogListRequest{GroupKind: "team", GroupID: 3})
	require.NoError(t, err)
	require.Len(t, page.Items, 1)
	entry := page.Items[0]
	assert.Equal(t, models.LogLevelInfo, entry.Level)
	assert.JSONEq(t, `{"status":200}`, entry.Extra)
	require.NotNil(t, entry.UserID)
	assert.Equal(t, uid, *entry.UserID)

	page, err = svc.List(ctx, &SystemLogListRequest{Module: "auth", Search: "ldap"})
	require.NoError(t, err)
	require.Len(t, page.Items, 1)
	assert.Equal(t, models.LogLevelError, page.Items[0].Level)

	modules, err := svc.Modules(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"auth", "group"}, modules)
}

func TestSystemLogService_Cleanup(t *testing.T) {
	db := setupDB(t)
	svc := NewSystemLogService(db)
	ctx := context.Background()
	now := testNow

	for _, age := range []int{1, 10, 40, 100} {
		require.NoError(t, db.Create(&models.SystemLog{
			Level:     models.LogLevelInfo,
			Module:    "test",
			CreatedAt: now.AddDate(0, 0, -age),
		}).Error)
	}

	deleted, err := svc.CleanupOldLogs(ctx, 0, now)
	require.NoError(t, err)
	assert.Zero(t, deleted, "zero retention keeps everything")

	// Default retention is 30 days.
	svc.RunCleanup(ctx, now)
	var left int64
	require.NoError(t, db.Model(&models.SystemLog{}).Count(&left).Error)
	assert.Equal(t, int64(2), left)

	deleted, err = svc.CleanupOldLogs(ctx, 5, now.Add(time.Minute))
	require.NoError(t, err)
	assert.Equal(t, int64(1), deleted)
}
