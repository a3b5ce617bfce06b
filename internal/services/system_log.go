package services

import (
	"context"
	"encoding/json"
	"time"

	"github.com/fuseproject/fuse/backend/internal/models"
	"github.com/fuseproject/fuse/backend/pkg/logger"
	"gorm.io/gorm"
)

var auditDB *gorm.DB

// InitSystemLogger points the package-level audit helpers at db.
func InitSystemLogger(db *gorm.DB) {
	auditDB = db
}

// AuditEntry describes one auditable action.
type AuditEntry struct {
	Module    string
	Action    string
	Message   string
	UserID    *uint
	Group     *models.GroupRef
	IP        string
	UserAgent string
	Extra     any
}

func LogInfo(entry AuditEntry) {
	writeLog(models.LogLevelInfo, entry)
}

func LogWarning(entry AuditEntry) {
	writeLog(models.LogLevelWarning, entry)
}

func LogError(entry AuditEntry) {
	writeLog(models.LogLevelError, entry)
}

func writeLog(level string, entry AuditEntry) {
	if auditDB == nil {
		return
	}

	row := &models.SystemLog{
		Level:     level,
		Module:    entry.Module,
		Action:    entry.Action,
		Message:   entry.Message,
		UserID:    entry.UserID,
		IP:        entry.IP,
		UserAgent: entry.UserAgent,
		CreatedAt: time.Now().UTC(),
	}
	if entry.Group != nil {
		row.GroupKind = entry.Group.Kind
		id := entry.Group.ID
		row.GroupID = &id
	}
	if entry.Extra != nil {
		if b, err := json.Marshal(entry.Extra); err == nil {
			row.Extra = string(b)
		}
	}
	if err := auditDB.Create(row).Error; err != nil {
		logger.Warn().Err(err).Str("module", entry.Module).Str("action", entry.Action).Msg("failed to write audit log")
	}
}

type SystemLogService struct {
	db *gorm.DB
}

func NewSystemLogService(db *gorm.DB) *SystemLogService {
	return &SystemLogService{db: db}
}

type SystemLogListRequest struct {
	Page      int    `form:"page"`
	PageSize  int    `form:"page_size"`
	Level     string `form:"level"`
	Module    string `form:"module"`
	Action    string `form:"action"`
	GroupKind string `form:"group_kind"`
	GroupID   uint   `form:"group_id"`
	StartDate string `form:"start_date"`
	EndDate   string `form:"end_date"`
	Search    string `form:"search"`
}

func (s *SystemLogService) List(ctx context.Context, req *SystemLogListRequest) (*Page[models.SystemLog], error) {
	page, pageSize := normalizePage(req.Page, req.PageSize)

	query := s.db.WithContext(ctx).Model(&models.SystemLog{})
	if req.Level != "" {
		query = query.Where("level = ?", req.Level)
	}
	if req.Module != "" {
		query = query.Where("module = ?", req.Module)
	}
	if req.Action != "" {
		query = query.Where("action LIKE ?", "%"+req.Action+"%")
	}
	if req.GroupKind != "" {
		query = query.Where("group_kind = ?", req.GroupKind)
	}
	if req.GroupID != 0 {
		query = query.Where("group_id = ?", req.GroupID)
	}
	if req.StartDate != "" {
		query = query.Where("created_at >= ?", req.StartDate)
	}
	if req.EndDate != "" {
		query = query.Where("created_at <= ?", req.EndDate+" 23:59:59")
	}
	if req.Search != "" {
		query = query.Where("message LIKE ?", "%"+req.Search+"%")
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, err
	}

	var logs []models.SystemLog
	offset := (page - 1) * pageSize
	if err := query.Offset(offset).Limit(pageSize).Order("created_at DESC").Find(&logs).Error; err != nil {
		return nil, err
	}
	return &Page[models.SystemLog]{Total: total, Page: page, PageSize: pageSize, Items: logs}, nil
}

func (s *SystemLogService) Modules(ctx context.Context) ([]string, error) {
	var modules []string
	if err := s.db.WithContext(ctx).Model(&models.SystemLog{}).Distinct("module").Order("module").Pluck("module", &modules).Error; err != nil {
		return nil, err
	}
	return modules, nil
}

// CleanupOldLogs deletes logs older than retentionDays and returns how many
// rows went away. A non-positive retention keeps everything.
func (s *SystemLogService) CleanupOldLogs(ctx context.Context, retentionDays int, now time.Time) (int64, error) {
	if retentionDays <= 0 {
		return 0, nil
	}
	cutoff := now.UTC().AddDate(0, 0, -retentionDays)
	result := s.db.WithContext(ctx).Where("created_at < ?", cutoff).Delete(&models.SystemLog{})
	if result.Error != nil {
		return 0, result.Error
	}
	return result.RowsAffected, nil
}

// RunCleanup applies the configured retention once.
func (s *SystemLogService) RunCleanup(ctx context.Context, now time.Time) {
	days := NewSystemConfigService(s.db).GetInt(ctx, models.ConfigLogRetentionDays, 30)
	if days <= 0 {
		logger.Debug().Msg("system log cleanup disabled")
		return
	}
	deleted, err := s.CleanupOldLogs(ctx, days, now)
	if err != nil {
		logger.Error().Err(err).Msg("failed to clean up system logs")
		return
	}
	if deleted > 0 {
		logger.Info().Int64("deleted", deleted).Int("retention_days", days).Msg("cleaned up system logs")
	}
}
