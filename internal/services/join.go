package services

import (
	"context"
	"fmt"

	"github.com/fuseproject/fuse/backend/internal/models"
	"github.com/fuseproject/fuse/backend/internal/permissions"
	"gorm.io/gorm"
)

// JoinOutcome reports what Join did. Applied is set when the group needed
// an invitation and an application was filed instead.
type JoinOutcome struct {
	Result      permissions.JoinResult   `json:"result"`
	Applied     bool                     `json:"applied"`
	Application *models.GroupApplication `json:"application,omitempty"`
}

// Join adds the user to the group when the join decision allows it. Joins
// are serialized per (user, group).
func (s *GroupService) Join(ctx context.Context, userID uint, ref models.GroupRef) (*JoinOutcome, error) {
	unlock, err := s.opts.Locker.Lock(ctx, lockKey("join", userID, ref))
	if err != nil {
		return nil, fmt.Errorf("lock join: %w", err)
	}
	defer unlock()

	outcome := &JoinOutcome{}
	err = inTx(ctx, s.db, func(tx *gorm.DB, after *afterCommit) error {
		user, err := actingUser(tx, userID)
		if err != nil {
			return err
		}
		group, err := loadGroup(tx, ref)
		if err != nil {
			return err
		}
		perm, err := permissionFor(ctx, tx, userID, group)
		if err != nil {
			return err
		}

		outcome.Result = perm.CanJoin()
		result := outcome.Result
		after.add(func() { joinAttempts.WithLabelValues(string(ref.Kind), result.String()).Inc() })

		switch outcome.Result {
		case permissions.JoinOK, permissions.JoinHasInvite:
			relationships := NewRelationshipService(tx)
			if err := relationships.AddRoles(ctx, userID, ref, models.RoleDefaultUser); err != nil {
				return err
			}
			if outcome.Result == permissions.JoinHasInvite {
				if err := relationships.RemoveRoles(ctx, userID, ref, models.RoleInvitedToJoin); err != nil {
					return err
				}
				if err := consumeJoinInvitations(tx, userID, ref); err != nil {
					return err
				}
			}
			after.add(func() { s.opts.Notifier.UserJoined(context.WithoutCancel(ctx), user, ref) })
			return nil
		case permissions.JoinNeedInvite:
			app, err := s.applications.apply(ctx, tx, user, group, after)
			if err != nil {
				return err
			}
			outcome.Applied = true
			outcome.Application = app
			return nil
		case permissions.JoinAlreadyJoined:
			return newError(ErrAlreadyJoined, "already a member")
		case permissions.JoinNotAllowed:
			return newError(ErrNotAllowed, fmt.Sprintf("not allowed to join this %s", ref.Kind))
		case permissions.JoinError:
			return newError(ErrServer, "group has an invalid restriction")
		default:
			return newError(ErrServer, fmt.Sprintf("unknown join result %d", int(outcome.Result)))
		}
	})
	if err != nil {
		return nil, err
	}
	return outcome, nil
}

// consumeJoinInvitations accepts the pending join invitations a direct
// join has used up.
func consumeJoinInvitations(tx *gorm.DB, userID uint, ref models.GroupRef) error {
	err := tx.Model(&models.GroupInvitation{}).
		Where("receiver_id = ? AND group_kind = ? AND group_id = ? AND type = ? AND status = ?",
			userID, ref.Kind, ref.ID, models.InvitationJoin, models.InvitationPending).
		Update("status", models.InvitationAccepted).Error
	if err != nil {
		return fmt.Errorf("consume join invitations: %w", err)
	}
	return nil
}
