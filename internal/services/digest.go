package services

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/fuseproject/fuse/backend/internal/models"
	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const digestJobName = "applications_digest"

// DigestService reminds group admins of applications still waiting for a
// decision. Each calendar day (UTC) is claimed by a single instance.
type DigestService struct {
	db        *gorm.DB
	processor *NotificationProcessor
	holder    string
}

func NewDigestService(db *gorm.DB, processor *NotificationProcessor) *DigestService {
	holder, err := os.Hostname()
	if err != nil || holder == "" {
		holder = "fuse"
	}
	return &DigestService{db: db, processor: processor, holder: fmt.Sprintf("%s-%d", holder, os.Getpid())}
}

type pendingGroup struct {
	GroupKind models.GroupKind
	GroupID   uint
	Pending   int64
}

// claim inserts the lock row for runKey. It reports false when another
// instance already holds it.
func (s *DigestService) claim(ctx context.Context, runKey string, now time.Time) (bool, error) {
	lock := models.SchedulerLock{
		Name:      digestJobName,
		RunKey:    runKey,
		Holder:    s.holder,
		LockedAt:  now,
		ExpiresAt: now.Add(24 * time.Hour),
	}
	result := s.db.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(&lock)
	if result.Error != nil {
		return false, fmt.Errorf("claim %s %s: %w", digestJobName, runKey, result.Error)
	}
	return result.RowsAffected == 1, nil
}

// Run sends one reminder per group with pending applications and returns
// how many groups were notified.
func (s *DigestService) Run(ctx context.Context, now time.Time) (int, error) {
	now = now.UTC()
	ok, err := s.claim(ctx, now.Format(time.DateOnly), now)
	if err != nil {
		return 0, err
	}
	if !ok {
		componentLog("digest").Debug().Str("date", now.Format(time.DateOnly)).Msg("digest already sent")
		return 0, nil
	}

	var groups []pendingGroup
	if err := s.db.WithContext(ctx).Model(&models.GroupApplication{}).
		Select("group_kind, group_id, COUNT(*) AS pending").
		Where("status = ?", models.ApplicationPending).
		Group("group_kind, group_id").
		Order("group_kind, group_id").
		Scan(&groups).Error; err != nil {
		return 0, fmt.Errorf("count pending applications: %w", err)
	}

	sent := 0
	for _, pg := range groups {
		ref := models.GroupRef{Kind: pg.GroupKind, ID: pg.GroupID}
		group, err := loadGroup(s.db.WithContext(ctx), ref)
		if errors.Is(err, ErrNotFound) {
			continue
		}
		if err != nil {
			return sent, err
		}

		admins, err := s.processor.relationships.UsersWithRole(ctx, ref, models.RoleAdmin, models.RoleOwner)
		if err != nil {
			return sent, err
		}
		name := group.Base().Name
		err = s.processor.deliver(ctx, admins, &models.Notification{
			Type:      models.NotificationApplicationsPending,
			GroupKind: ref.Kind,
			GroupID:   ref.ID,
			Message:   fmt.Sprintf("%d application(s) to %s are waiting for a decision", pg.Pending, name),
			Payload: datatypes.JSONMap{
				"group_name": name,
				"pending":    pg.Pending,
			},
		})
		if err != nil {
			return sent, err
		}
		sent++
	}

	componentLog("digest").Info().Int("groups", sent).Msg("application digest sent")
	return sent, nil
}

// parseClock parses an HH:MM time of day.
func parseClock(value string) (hour, minute int, err error) {
	h, m, ok := strings.Cut(strings.TrimSpace(value), ":")
	if !ok {
		return 0, 0, fmt.Errorf("invalid time of day %q, expected HH:MM", value)
	}
	hour, herr := strconv.Atoi(h)
	minute, merr := strconv.Atoi(m)
	if herr != nil || merr != nil || hour < 0 || hour > 23 || minute < 0 || minute > 59 {
		return 0, 0, fmt.Errorf("invalid time of day %q, expected HH:MM", value)
	}
	return hour, minute, nil
}
