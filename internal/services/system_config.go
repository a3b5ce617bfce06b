package services

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/fuseproject/fuse/backend/internal/models"
	"gorm.io/gorm"
)

type SystemConfigService struct {
	db *gorm.DB
}

func NewSystemConfigService(db *gorm.DB) *SystemConfigService {
	return &SystemConfigService{db: db}
}

func (s *SystemConfigService) Get(ctx context.Context, key string) (string, error) {
	var cfg models.SystemConfig
	if err := s.db.WithContext(ctx).Where("config_key = ?", key).First(&cfg).Error; err != nil {
		return "", err
	}
	return cfg.Value, nil
}

func (s *SystemConfigService) GetWithDefault(ctx context.Context, key, defaultValue string) string {
	value, err := s.Get(ctx, key)
	if err != nil {
		return defaultValue
	}
	return value
}

func (s *SystemConfigService) GetInt(ctx context.Context, key string, defaultValue int) int {
	n, err := strconv.Atoi(s.GetWithDefault(ctx, key, ""))
	if err != nil {
		return defaultValue
	}
	return n
}

func (s *SystemConfigService) GetBool(ctx context.Context, key string, defaultValue bool) bool {
	b, err := strconv.ParseBool(s.GetWithDefault(ctx, key, ""))
	if err != nil {
		return defaultValue
	}
	return b
}

// Set stores value under key, creating the row when it does not exist.
func (s *SystemConfigService) Set(ctx context.Context, key, value string) error {
	db := s.db.WithContext(ctx)
	var cfg models.SystemConfig
	err := db.Where("config_key = ?", key).First(&cfg).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return db.Create(&models.SystemConfig{Key: key, Value: value}).Error
	}
	if err != nil {
		return fmt.Errorf("load config %s: %w", key, err)
	}
	return db.Model(&cfg).Update("value", value).Error
}

func (s *SystemConfigService) GetByGroup(ctx context.Context, group string) ([]models.SystemConfig, error) {
	var configs []models.SystemConfig
	if err := s.db.WithContext(ctx).Where("config_group = ?", group).Order("config_key").Find(&configs).Error; err != nil {
		return nil, err
	}
	return configs, nil
}

type UpdateSchedulerConfigRequest struct {
	DigestEnabled    *bool   `json:"digest_enabled"`
	DigestTime       *string `json:"digest_time"`
	LogRetentionDays *int    `json:"log_retention_days"`
}

// UpdateScheduler applies the non-nil fields. digest_time must be HH:MM.
func (s *SystemConfigService) UpdateScheduler(ctx context.Context, req *UpdateSchedulerConfigRequest) error {
	if req.DigestTime != nil {
		if _, _, err := parseClock(*req.DigestTime); err != nil {
			return invalidFields(err.Error())
		}
	}
	if req.LogRetentionDays != nil && *req.LogRetentionDays < 0 {
		return invalidFields("log_retention_days must not be negative")
	}

	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		svc := NewSystemConfigService(tx)
		if req.DigestEnabled != nil {
			if err := svc.Set(ctx, models.ConfigDigestEnabled, strconv.FormatBool(*req.DigestEnabled)); err != nil {
				return err
			}
		}
		if req.DigestTime != nil {
			if err := svc.Set(ctx, models.ConfigDigestTime, *req.DigestTime); err != nil {
				return err
			}
		}
		if req.LogRetentionDays != nil {
			if err := svc.Set(ctx, models.ConfigLogRetentionDays, strconv.Itoa(*req.LogRetentionDays)); err != nil {
				return err
			}
		}
		return nil
	})
}
