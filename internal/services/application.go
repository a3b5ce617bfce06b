package services

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/fuseproject/fuse/backend/internal/models"
	"gorm.io/gorm"
)

// ApplicationService handles requests to join restricted groups and the
// admin decisions on them.
type ApplicationService struct {
	db          *gorm.DB
	opts        Options
	invitations *InvitationService
}

func (s *ApplicationService) Apply(ctx context.Context, userID uint, ref models.GroupRef) (*models.GroupApplication, error) {
	var app *models.GroupApplication
	err := inTx(ctx, s.db, func(tx *gorm.DB, after *afterCommit) error {
		user, err := actingUser(tx, userID)
		if err != nil {
			return err
		}
		group, err := loadGroup(tx, ref)
		if err != nil {
			return err
		}
		app, err = s.apply(ctx, tx, user, group, after)
		return err
	})
	if err != nil {
		return nil, err
	}
	return app, nil
}

func (s *ApplicationService) apply(ctx context.Context, tx *gorm.DB, user *models.User, group models.Group, after *afterCommit) (*models.GroupApplication, error) {
	ref := group.Ref()

	perm, err := permissionFor(ctx, tx, user.ID, group)
	if err != nil {
		return nil, err
	}
	if perm.IsMember() {
		return nil, newError(ErrAlreadyJoinedOrInvited, "already a member")
	}

	var existing int64
	if err := tx.Model(&models.GroupApplication{}).
		Where("sender_id = ? AND group_kind = ? AND group_id = ?", user.ID, ref.Kind, ref.ID).
		Count(&existing).Error; err != nil {
		return nil, fmt.Errorf("check existing application: %w", err)
	}
	if existing > 0 {
		return nil, newError(ErrDuplicateApplication, "you already applied to this "+string(ref.Kind))
	}

	app := &models.GroupApplication{
		SenderID:    user.ID,
		GroupKind:   ref.Kind,
		GroupID:     ref.ID,
		Status:      models.ApplicationPending,
		SubmittedAt: s.opts.now(),
	}
	if err := tx.Create(app).Error; err != nil {
		return nil, fmt.Errorf("create application: %w", err)
	}

	after.add(func() {
		applicationTransitions.WithLabelValues(string(models.ApplicationPending)).Inc()
		s.opts.Notifier.UserApplied(context.WithoutCancel(ctx), app)
	})
	return app, nil
}

// SetApplicantStatus records an admin decision and carries out its side
// effects. Setting the current status again changes nothing.
func (s *ApplicationService) SetApplicantStatus(ctx context.Context, actorID uint, ref models.GroupRef, applicationID uint, status string) (*models.GroupApplication, error) {
	target, err := models.ParseApplicationStatus(status)
	if err != nil {
		return nil, invalidFields(err.Error())
	}

	var app models.GroupApplication
	err = inTx(ctx, s.db, func(tx *gorm.DB, after *afterCommit) error {
		actor, err := actingUser(tx, actorID)
		if err != nil {
			return err
		}
		group, err := loadGroup(tx, ref)
		if err != nil {
			return err
		}
		perm, err := permissionFor(ctx, tx, actorID, group)
		if err != nil {
			return err
		}
		if !perm.CanUpdate() {
			return forbidden("only admins can review applications")
		}

		err = tx.Where("id = ? AND group_kind = ? AND group_id = ?", applicationID, ref.Kind, ref.ID).First(&app).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return notFound("application")
		}
		if err != nil {
			return fmt.Errorf("load application %d: %w", applicationID, err)
		}
		if app.Status == target {
			return nil
		}

		app.Status = target
		updates := map[string]any{"status": target}
		if err := closeInvitations(ctx, tx, "application_id = ?", app.ID); err != nil {
			return err
		}
		if target != models.ApplicationInterviewScheduled {
			if err := freeSlotsOf(tx, ref, app.SenderID); err != nil {
				return err
			}
			app.InterviewAt = nil
			updates["interview_at"] = nil
		}
		if err := tx.Model(&app).Updates(updates).Error; err != nil {
			return fmt.Errorf("update application: %w", err)
		}

		switch target {
		case models.ApplicationDeclined:
			declined := app
			after.add(func() { s.opts.Notifier.ApplicationDeclined(context.WithoutCancel(ctx), &declined) })
		case models.ApplicationInterviewScheduled:
			if err := s.inviteApplicant(ctx, tx, actor, group, &app, models.InvitationInterview, after); err != nil {
				return err
			}
		case models.ApplicationInvited:
			if err := s.inviteApplicant(ctx, tx, actor, group, &app, models.InvitationJoin, after); err != nil {
				return err
			}
		case models.ApplicationPending, models.ApplicationAccepted, models.ApplicationInterviewed:
		default:
			return newError(ErrServer, fmt.Sprintf("unhandled application status %q", target))
		}

		after.add(func() { applicationTransitions.WithLabelValues(string(target)).Inc() })
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &app, nil
}

func (s *ApplicationService) inviteApplicant(ctx context.Context, tx *gorm.DB, actor *models.User, group models.Group,
	app *models.GroupApplication, typ models.InvitationType, after *afterCommit) error {
	var applicant models.User
	if err := tx.First(&applicant, app.SenderID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return invalidFields("applicant no longer exists")
		}
		return fmt.Errorf("load applicant: %w", err)
	}
	// Members need no join invitation, and a direct invitation of the same
	// type already covers the applicant.
	roles, err := NewRelationshipService(tx).Roles(ctx, applicant.ID, group.Ref())
	if err != nil {
		return err
	}
	if typ == models.InvitationJoin && roles.IsMember() {
		return nil
	}
	pending, err := hasPendingInvitation(tx, applicant.ID, group.Ref(), typ)
	if err != nil {
		return err
	}
	if pending {
		return nil
	}

	appID := app.ID
	_, err = s.invitations.create(ctx, tx, actor, group, &applicant, typ, &appID, after)
	return err
}

// ListApplicants returns the applications of a group, optionally filtered
// by status. Scheduled interviews come first, soonest first.
func (s *ApplicationService) ListApplicants(ctx context.Context, actorID uint, ref models.GroupRef, status string) ([]models.GroupApplication, error) {
	db := s.db.WithContext(ctx)
	if _, err := managedGroup(ctx, db, actorID, ref); err != nil {
		return nil, err
	}

	query := db.Preload("Sender").Where("group_kind = ? AND group_id = ?", ref.Kind, ref.ID)
	if status != "" {
		st, err := models.ParseApplicationStatus(status)
		if err != nil {
			return nil, invalidFields(err.Error())
		}
		query = query.Where("status = ?", st)
	}

	var apps []models.GroupApplication
	if err := query.Order("submitted_at ASC, id ASC").Find(&apps).Error; err != nil {
		return nil, fmt.Errorf("list applications: %w", err)
	}

	sort.SliceStable(apps, func(i, j int) bool {
		a, b := apps[i].InterviewAt, apps[j].InterviewAt
		switch {
		case a != nil && b != nil:
			return a.Before(*b)
		case a != nil:
			return true
		default:
			return false
		}
	})
	return apps, nil
}
