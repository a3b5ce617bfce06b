package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/fuseproject/fuse/backend/internal/models"
	"github.com/fuseproject/fuse/backend/internal/permissions"
	"gorm.io/gorm"
)

// InvitationService issues invitations and carries out their acceptance.
type InvitationService struct {
	db         *gorm.DB
	opts       Options
	interviews *InterviewService
}

// InviteInput names the receiver by id or by email.
type InviteInput struct {
	ReceiverID    *uint  `json:"receiver_id"`
	Email         string `json:"email"`
	Type          string `json:"type" binding:"required"`
	ApplicationID *uint  `json:"application_id"`
}

func (s *InvitationService) Invite(ctx context.Context, actorID uint, ref models.GroupRef, in InviteInput) (*models.GroupInvitation, error) {
	var inv *models.GroupInvitation
	err := inTx(ctx, s.db, func(tx *gorm.DB, after *afterCommit) error {
		sender, err := actingUser(tx, actorID)
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
		if !perm.CanInvite() {
			return forbidden("only admins can invite to this %s", ref.Kind)
		}

		receiver, err := resolveReceiver(tx, in)
		if err != nil {
			return err
		}
		typ, err := models.ParseInvitationType(in.Type)
		if err != nil {
			return invalidFields(err.Error())
		}
		role, err := typ.Role()
		if err != nil {
			return invalidFields(err.Error())
		}

		receiverPerm, err := permissionFor(ctx, tx, receiver.ID, group)
		if err != nil {
			return err
		}
		if receiverPerm.HasRole(role) {
			return newError(ErrAlreadyJoinedOrInvited, "user is already invited")
		}
		// Members may still be interviewed, but cannot be invited to join again.
		if typ == models.InvitationJoin && receiverPerm.IsMember() {
			return newError(ErrAlreadyJoinedOrInvited, "user is already a member")
		}

		if in.ApplicationID != nil {
			var count int64
			if err := tx.Model(&models.GroupApplication{}).
				Where("id = ? AND group_kind = ? AND group_id = ? AND sender_id = ?", *in.ApplicationID, ref.Kind, ref.ID, receiver.ID).
				Count(&count).Error; err != nil {
				return fmt.Errorf("check application: %w", err)
			}
			if count == 0 {
				return invalidFields("application not found for this user")
			}
		}

		inv, err = s.create(ctx, tx, sender, group, receiver, typ, in.ApplicationID, after)
		return err
	})
	if err != nil {
		return nil, err
	}
	return inv, nil
}

func resolveReceiver(tx *gorm.DB, in InviteInput) (*models.User, error) {
	var user models.User
	var err error
	switch {
	case in.ReceiverID != nil:
		err = tx.First(&user, *in.ReceiverID).Error
	case strings.TrimSpace(in.Email) != "":
		err = tx.Where("email = ?", strings.TrimSpace(in.Email)).First(&user).Error
	default:
		return nil, invalidFields("user not found")
	}
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, invalidFields("user not found")
	}
	if err != nil {
		return nil, fmt.Errorf("resolve receiver: %w", err)
	}
	return &user, nil
}

// create stores a pending invitation and grants the pending roles of its
// type. Interview invitations need a bookable slot.
func (s *InvitationService) create(ctx context.Context, tx *gorm.DB, sender *models.User, group models.Group, receiver *models.User,
	typ models.InvitationType, applicationID *uint, after *afterCommit) (*models.GroupInvitation, error) {
	ref := group.Ref()

	inv := &models.GroupInvitation{
		SenderID:      sender.ID,
		ReceiverID:    receiver.ID,
		GroupKind:     ref.Kind,
		GroupID:       ref.ID,
		Type:          typ,
		Status:        models.InvitationPending,
		ApplicationID: applicationID,
	}
	if err := tx.Create(inv).Error; err != nil {
		return nil, fmt.Errorf("create invitation: %w", err)
	}

	relationships := NewRelationshipService(tx)
	switch typ {
	case models.InvitationJoin:
		if err := relationships.AddRoles(ctx, receiver.ID, ref, models.RoleInvitedToJoin); err != nil {
			return nil, err
		}
		after.add(func() { s.opts.Notifier.JoinInvitationSent(context.WithoutCancel(ctx), inv) })
	case models.InvitationInterview:
		slots, err := s.interviews.available(tx, ref, s.opts.now())
		if err != nil {
			return nil, err
		}
		if len(slots) == 0 {
			return nil, newError(ErrInterviewNotAvailable, "no interview slots available")
		}
		if err := relationships.AddRoles(ctx, receiver.ID, ref, models.RoleToInterview, models.RoleInvitedToInterview); err != nil {
			return nil, err
		}
		after.add(func() { s.opts.Notifier.InterviewInvitationSent(context.WithoutCancel(ctx), inv) })
	default:
		return nil, invalidFields(fmt.Sprintf("unknown invitation type %q", typ))
	}

	after.add(func() { invitationEvents.WithLabelValues(string(typ), "created").Inc() })
	return inv, nil
}

func pendingInvitation(tx *gorm.DB, id uint) (*models.GroupInvitation, error) {
	var inv models.GroupInvitation
	err := tx.Where("id = ? AND status = ?", id, models.InvitationPending).First(&inv).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, notFound("invitation")
	}
	if err != nil {
		return nil, fmt.Errorf("load invitation %d: %w", id, err)
	}
	return &inv, nil
}

// AcceptInvite consumes a pending invitation. For interview invitations
// interviewID picks the slot to book; it may be nil when the invitation
// already has one bound.
func (s *InvitationService) AcceptInvite(ctx context.Context, actorID, invitationID uint, interviewID *uint) (*models.GroupInvitation, error) {
	var inv *models.GroupInvitation
	err := inTx(ctx, s.db, func(tx *gorm.DB, after *afterCommit) error {
		user, err := actingUser(tx, actorID)
		if err != nil {
			return err
		}
		inv, err = pendingInvitation(tx, invitationID)
		if err != nil {
			return err
		}
		if inv.ReceiverID != actorID {
			return forbidden("only the receiver can accept this invitation")
		}

		group, err := loadGroup(tx, inv.Group())
		if err != nil {
			return err
		}
		perm, err := permissionFor(ctx, tx, actorID, group)
		if err != nil {
			return err
		}

		switch inv.Type {
		case models.InvitationJoin:
			if err := s.acceptJoin(ctx, tx, perm, inv); err != nil {
				return err
			}
			after.add(func() { s.opts.Notifier.UserJoined(context.WithoutCancel(ctx), user, inv.Group()) })
		case models.InvitationInterview:
			if err := s.acceptInterview(ctx, tx, perm, inv, interviewID); err != nil {
				return err
			}
		default:
			return newError(ErrServer, fmt.Sprintf("unknown invitation type %q", inv.Type))
		}

		inv.Status = models.InvitationAccepted
		if err := tx.Model(inv).Updates(map[string]any{
			"status":       inv.Status,
			"interview_id": inv.InterviewID,
		}).Error; err != nil {
			return fmt.Errorf("update invitation: %w", err)
		}

		typ := string(inv.Type)
		after.add(func() { invitationEvents.WithLabelValues(typ, "accepted").Inc() })
		return nil
	})
	if err != nil {
		return nil, err
	}
	return inv, nil
}

func (s *InvitationService) acceptJoin(ctx context.Context, tx *gorm.DB, perm *permissions.Permission, inv *models.GroupInvitation) error {
	result := perm.CanJoin()
	switch result {
	case permissions.JoinHasInvite:
	case permissions.JoinOK, permissions.JoinNeedInvite, permissions.JoinAlreadyJoined,
		permissions.JoinNotAllowed, permissions.JoinError:
		return forbidden("cannot join: %s", result)
	default:
		return newError(ErrServer, fmt.Sprintf("unknown join result %d", int(result)))
	}

	relationships := NewRelationshipService(tx)
	if err := relationships.AddRoles(ctx, inv.ReceiverID, inv.Group(), models.RoleDefaultUser); err != nil {
		return err
	}
	return relationships.RemoveRoles(ctx, inv.ReceiverID, inv.Group(), models.RoleInvitedToJoin)
}

func (s *InvitationService) acceptInterview(ctx context.Context, tx *gorm.DB, perm *permissions.Permission, inv *models.GroupInvitation, interviewID *uint) error {
	if interviewID != nil {
		inv.InterviewID = interviewID
	}
	if inv.InterviewID == nil {
		return invalidFields("an interview must be chosen")
	}
	if !perm.HasRole(models.RoleInvitedToInterview) {
		return forbidden("user is not invited to interview")
	}

	var slot models.Interview
	err := tx.Where("id = ? AND group_kind = ? AND group_id = ?", *inv.InterviewID, inv.GroupKind, inv.GroupID).
		First(&slot).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return newError(ErrInterviewNotAvailable, "interview not found")
	}
	if err != nil {
		return fmt.Errorf("load interview: %w", err)
	}
	if !slot.Available || slot.Cancelled {
		return newError(ErrInterviewNotAvailable, "interview is already taken")
	}
	now := s.opts.now()
	if slot.StartTime.Before(now) {
		return newError(ErrInterviewNotAvailable, "interview has already started")
	}

	// Guard against a concurrent booking of the same slot.
	result := tx.Model(&models.Interview{}).
		Where("id = ? AND available = ? AND cancelled = ? AND start_time >= ?", slot.ID, true, false, now).
		Updates(map[string]any{"user_id": inv.ReceiverID, "available": false})
	if result.Error != nil {
		return fmt.Errorf("book interview: %w", result.Error)
	}
	if result.RowsAffected != 1 {
		return newError(ErrInterviewNotAvailable, "interview is already taken")
	}

	relationships := NewRelationshipService(tx)
	if err := relationships.AddRoles(ctx, inv.ReceiverID, inv.Group(), models.RoleToInterview, models.RoleInvitedToInterview); err != nil {
		return err
	}

	if inv.ApplicationID != nil {
		if err := tx.Model(&models.GroupApplication{}).Where("id = ?", *inv.ApplicationID).
			Update("interview_at", slot.StartTime).Error; err != nil {
			return fmt.Errorf("update application interview time: %w", err)
		}
	}
	return nil
}

// DeclineInvite closes a pending invitation and withdraws its pending role.
func (s *InvitationService) DeclineInvite(ctx context.Context, actorID, invitationID uint) error {
	return inTx(ctx, s.db, func(tx *gorm.DB, after *afterCommit) error {
		if _, err := actingUser(tx, actorID); err != nil {
			return err
		}
		inv, err := pendingInvitation(tx, invitationID)
		if err != nil {
			return err
		}
		if inv.ReceiverID != actorID {
			return forbidden("only the receiver can decline this invitation")
		}

		role, err := inv.Type.Role()
		if err != nil {
			return newError(ErrServer, err.Error())
		}
		if err := NewRelationshipService(tx).RemoveRoles(ctx, actorID, inv.Group(), role); err != nil {
			return err
		}
		if err := tx.Model(inv).Update("status", models.InvitationDeclined).Error; err != nil {
			return fmt.Errorf("decline invitation: %w", err)
		}

		typ := string(inv.Type)
		after.add(func() { invitationEvents.WithLabelValues(typ, "declined").Inc() })
		return nil
	})
}

// ListInvitations returns the actor's pending invitations, newest first.
func (s *InvitationService) ListInvitations(ctx context.Context, actorID uint) ([]models.GroupInvitation, error) {
	db := s.db.WithContext(ctx)
	if _, err := actingUser(db, actorID); err != nil {
		return nil, err
	}
	var invs []models.GroupInvitation
	if err := db.Preload("Sender").Preload("Interview").
		Where("receiver_id = ? AND status = ?", actorID, models.InvitationPending).
		Order("created_at DESC, id DESC").
		Find(&invs).Error; err != nil {
		return nil, fmt.Errorf("list invitations: %w", err)
	}
	return invs, nil
}

// closeInvitations marks the pending invitations matched by where as done
// and withdraws the pending role each one granted. A role stays while
// another pending invitation of the same type still backs it.
func closeInvitations(ctx context.Context, tx *gorm.DB, where string, args ...any) error {
	var invs []models.GroupInvitation
	if err := tx.Where(where, args...).Where("status = ?", models.InvitationPending).Find(&invs).Error; err != nil {
		return fmt.Errorf("load pending invitations: %w", err)
	}

	relationships := NewRelationshipService(tx)
	for i := range invs {
		inv := &invs[i]
		if err := tx.Model(inv).Update("status", models.InvitationDone).Error; err != nil {
			return fmt.Errorf("close invitation %d: %w", inv.ID, err)
		}

		var backing int64
		if err := tx.Model(&models.GroupInvitation{}).
			Where("receiver_id = ? AND group_kind = ? AND group_id = ? AND type = ? AND status = ?",
				inv.ReceiverID, inv.GroupKind, inv.GroupID, inv.Type, models.InvitationPending).
			Count(&backing).Error; err != nil {
			return fmt.Errorf("count pending invitations: %w", err)
		}
		if backing > 0 {
			continue
		}

		role, err := inv.Type.Role()
		if err != nil {
			return newError(ErrServer, err.Error())
		}
		if err := relationships.RemoveRoles(ctx, inv.ReceiverID, inv.Group(), role); err != nil {
			return err
		}
	}
	return nil
}

// hasPendingInvitation reports whether userID already holds a pending
// invitation of typ to the group.
func hasPendingInvitation(tx *gorm.DB, userID uint, ref models.GroupRef, typ models.InvitationType) (bool, error) {
	var count int64
	err := tx.Model(&models.GroupInvitation{}).
		Where("receiver_id = ? AND group_kind = ? AND group_id = ? AND type = ? AND status = ?",
			userID, ref.Kind, ref.ID, typ, models.InvitationPending).
		Count(&count).Error
	if err != nil {
		return false, fmt.Errorf("count pending invitations: %w", err)
	}
	return count > 0, nil
}
