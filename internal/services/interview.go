package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/fuseproject/fuse/backend/internal/models"
	"gorm.io/gorm"
)

// InterviewService owns interview slots and the templates they are
// generated from.
type InterviewService struct {
	db   *gorm.DB
	opts Options
}

type SlotInput struct {
	Start time.Time `json:"start" binding:"required"`
	End   time.Time `json:"end" binding:"required"`
}

type EditSlotInput struct {
	Start *time.Time `json:"start"`
	End   *time.Time `json:"end"`
}

// managedGroup loads the group and requires the actor to be able to update it.
func managedGroup(ctx context.Context, tx *gorm.DB, actorID uint, ref models.GroupRef) (models.Group, error) {
	if _, err := actingUser(tx, actorID); err != nil {
		return nil, err
	}
	group, err := loadGroup(tx, ref)
	if err != nil {
		return nil, err
	}
	perm, err := permissionFor(ctx, tx, actorID, group)
	if err != nil {
		return nil, err
	}
	if !perm.CanUpdate() {
		return nil, forbidden("only admins can manage %s", ref.Kind)
	}
	return group, nil
}

// available lists bookable slots of a group starting at or after now.
func (s *InterviewService) available(tx *gorm.DB, ref models.GroupRef, now time.Time) ([]models.Interview, error) {
	var slots []models.Interview
	err := tx.Where("group_kind = ? AND group_id = ?", ref.Kind, ref.ID).
		Where("available = ? AND cancelled = ?", true, false).
		Where("start_time >= ?", now).
		Order("start_time ASC, id ASC").
		Find(&slots).Error
	if err != nil {
		return nil, fmt.Errorf("load available interviews of %s: %w", ref, err)
	}
	return slots, nil
}

// AvailableSlots returns the slots applicants can still book.
func (s *InterviewService) AvailableSlots(ctx context.Context, ref models.GroupRef) ([]models.Interview, error) {
	db := s.db.WithContext(ctx)
	if _, err := loadGroup(db, ref); err != nil {
		return nil, err
	}
	return s.available(db, ref, s.opts.now())
}

// ListSlots returns every live slot of the group, booked ones included.
func (s *InterviewService) ListSlots(ctx context.Context, actorID uint, ref models.GroupRef) ([]models.Interview, error) {
	db := s.db.WithContext(ctx)
	if _, err := managedGroup(ctx, db, actorID, ref); err != nil {
		return nil, err
	}
	var slots []models.Interview
	if err := db.Where("group_kind = ? AND group_id = ?", ref.Kind, ref.ID).
		Order("start_time ASC").Find(&slots).Error; err != nil {
		return nil, fmt.Errorf("list interviews of %s: %w", ref, err)
	}
	return slots, nil
}

// GenerateSlots creates one slot per future template of the group. Projects
// also use the templates of their organization. Templates falling on a
// non-workday of the group's holiday country are skipped, as are windows
// that already have a live slot.
func (s *InterviewService) GenerateSlots(ctx context.Context, actorID uint, ref models.GroupRef) ([]models.Interview, error) {
	var created []models.Interview
	err := inTx(ctx, s.db, func(tx *gorm.DB, _ *afterCommit) error {
		group, err := managedGroup(ctx, tx, actorID, ref)
		if err != nil {
			return err
		}

		templates, err := s.templatesFor(tx, group)
		if err != nil {
			return err
		}

		now := s.opts.now()
		country := group.Base().HolidayCountry
		for _, t := range templates {
			if !t.StartTime.After(now) {
				continue
			}
			if country != "" && !s.opts.Holidays.IsWorkday(t.StartTime, country) {
				continue
			}

			var existing int64
			if err := tx.Model(&models.Interview{}).
				Where("group_kind = ? AND group_id = ? AND start_time = ? AND end_time = ?",
					ref.Kind, ref.ID, t.StartTime.UTC(), t.EndTime.UTC()).
				Count(&existing).Error; err != nil {
				return fmt.Errorf("check existing interview: %w", err)
			}
			if existing > 0 {
				continue
			}

			slot := s.newSlot(ref, t.StartTime, t.EndTime)
			if err := tx.Create(&slot).Error; err != nil {
				return fmt.Errorf("create interview: %w", err)
			}
			created = append(created, slot)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return created, nil
}

func (s *InterviewService) templatesFor(tx *gorm.DB, group models.Group) ([]models.InterviewTemplate, error) {
	refs := []models.GroupRef{group.Ref()}
	if p, ok := group.(*models.Project); ok && p.OrganizationID != nil {
		refs = append(refs, models.GroupRef{Kind: models.KindOrganization, ID: *p.OrganizationID})
	}

	var templates []models.InterviewTemplate
	for _, ref := range refs {
		var batch []models.InterviewTemplate
		if err := tx.Where("group_kind = ? AND group_id = ?", ref.Kind, ref.ID).
			Order("start_time ASC").Find(&batch).Error; err != nil {
			return nil, fmt.Errorf("load templates of %s: %w", ref, err)
		}
		templates = append(templates, batch...)
	}
	return templates, nil
}

func (s *InterviewService) newSlot(ref models.GroupRef, start, end time.Time) models.Interview {
	return models.Interview{
		GroupKind: ref.Kind,
		GroupID:   ref.ID,
		StartTime: start.UTC(),
		EndTime:   end.UTC(),
		Available: true,
		Code:      s.opts.Tokens.NewToken(),
	}
}

// AddSlots creates ad hoc slots. Every slot must start in the future and
// end no earlier than it starts.
func (s *InterviewService) AddSlots(ctx context.Context, actorID uint, ref models.GroupRef, inputs []SlotInput) ([]models.Interview, error) {
	if len(inputs) == 0 {
		return nil, invalidFields("at least one slot is required")
	}

	var created []models.Interview
	err := inTx(ctx, s.db, func(tx *gorm.DB, _ *afterCommit) error {
		if _, err := managedGroup(ctx, tx, actorID, ref); err != nil {
			return err
		}

		now := s.opts.now()
		var problems []string
		for i, in := range inputs {
			if !in.Start.After(now) {
				problems = append(problems, fmt.Sprintf("slot %d: start must be in the future", i))
			}
			if in.End.Before(in.Start) {
				problems = append(problems, fmt.Sprintf("slot %d: end must not precede start", i))
			}
		}
		if len(problems) > 0 {
			return invalidFields(problems...)
		}

		for _, in := range inputs {
			slot := s.newSlot(ref, in.Start, in.End)
			if err := tx.Create(&slot).Error; err != nil {
				return fmt.Errorf("create interview: %w", err)
			}
			created = append(created, slot)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return created, nil
}

func loadInterview(tx *gorm.DB, id uint) (*models.Interview, error) {
	var slot models.Interview
	err := tx.First(&slot, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, notFound("interview")
	}
	if err != nil {
		return nil, fmt.Errorf("load interview %d: %w", id, err)
	}
	return &slot, nil
}

// EditSlot moves a slot. A bound left alone is checked against the stored
// counterpart.
func (s *InterviewService) EditSlot(ctx context.Context, actorID, interviewID uint, in EditSlotInput) (*models.Interview, error) {
	var slot *models.Interview
	err := inTx(ctx, s.db, func(tx *gorm.DB, _ *afterCommit) error {
		var err error
		slot, err = loadInterview(tx, interviewID)
		if err != nil {
			return err
		}
		if _, err := managedGroup(ctx, tx, actorID, slot.Group()); err != nil {
			return err
		}

		start, end := slot.StartTime, slot.EndTime
		if in.Start != nil {
			start = in.Start.UTC()
		}
		if in.End != nil {
			end = in.End.UTC()
		}
		if end.Before(start) {
			return newError(ErrInvalidTime, "end must not precede start")
		}

		slot.StartTime, slot.EndTime = start, end
		return tx.Model(slot).Updates(map[string]any{
			"start_time": start,
			"end_time":   end,
		}).Error
	})
	if err != nil {
		return nil, err
	}
	return slot, nil
}

// CancelSlot keeps the slot but takes it out of the bookable set.
func (s *InterviewService) CancelSlot(ctx context.Context, actorID, interviewID uint) error {
	return inTx(ctx, s.db, func(tx *gorm.DB, _ *afterCommit) error {
		slot, err := loadInterview(tx, interviewID)
		if err != nil {
			return err
		}
		if _, err := managedGroup(ctx, tx, actorID, slot.Group()); err != nil {
			return err
		}
		return tx.Model(slot).Update("cancelled", true).Error
	})
}

// DeleteSlot soft-deletes the slot.
func (s *InterviewService) DeleteSlot(ctx context.Context, actorID, interviewID uint) error {
	return inTx(ctx, s.db, func(tx *gorm.DB, _ *afterCommit) error {
		slot, err := loadInterview(tx, interviewID)
		if err != nil {
			return err
		}
		if _, err := managedGroup(ctx, tx, actorID, slot.Group()); err != nil {
			return err
		}
		return tx.Delete(slot).Error
	})
}

func (s *InterviewService) AddTemplate(ctx context.Context, actorID uint, ref models.GroupRef, in SlotInput) (*models.InterviewTemplate, error) {
	if in.End.Before(in.Start) {
		return nil, newError(ErrInvalidTime, "end must not precede start")
	}

	tmpl := &models.InterviewTemplate{
		GroupKind: ref.Kind,
		GroupID:   ref.ID,
		StartTime: in.Start.UTC(),
		EndTime:   in.End.UTC(),
	}
	err := inTx(ctx, s.db, func(tx *gorm.DB, _ *afterCommit) error {
		if _, err := managedGroup(ctx, tx, actorID, ref); err != nil {
			return err
		}
		return tx.Create(tmpl).Error
	})
	if err != nil {
		return nil, err
	}
	return tmpl, nil
}

func (s *InterviewService) ListTemplates(ctx context.Context, actorID uint, ref models.GroupRef) ([]models.InterviewTemplate, error) {
	db := s.db.WithContext(ctx)
	if _, err := managedGroup(ctx, db, actorID, ref); err != nil {
		return nil, err
	}
	var templates []models.InterviewTemplate
	if err := db.Where("group_kind = ? AND group_id = ?", ref.Kind, ref.ID).
		Order("start_time ASC").Find(&templates).Error; err != nil {
		return nil, fmt.Errorf("list templates of %s: %w", ref, err)
	}
	return templates, nil
}

// freeSlotsOf unbinds every slot userID holds in the group.
func freeSlotsOf(tx *gorm.DB, ref models.GroupRef, userID uint) error {
	err := tx.Model(&models.Interview{}).
		Where("group_kind = ? AND group_id = ? AND user_id = ?", ref.Kind, ref.ID, userID).
		Updates(map[string]any{"user_id": nil, "available": true}).Error
	if err != nil {
		return fmt.Errorf("free interviews of user %d in %s: %w", userID, ref, err)
	}
	return nil
}
