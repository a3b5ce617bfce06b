package services

import (
	"context"
	"fmt"

	"github.com/fuseproject/fuse/backend/internal/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var membershipRoles = []models.Role{models.RoleDefaultUser, models.RoleAdmin, models.RoleOwner}

// RelationshipService is the only writer of role assignments. Every change
// recomputes the member count cached on the group.
type RelationshipService struct {
	db *gorm.DB
}

func NewRelationshipService(db *gorm.DB) *RelationshipService {
	return &RelationshipService{db: db}
}

func (s *RelationshipService) WithTx(tx *gorm.DB) *RelationshipService {
	return &RelationshipService{db: tx}
}

// AddRoles grants roles to userID. Roles already held are left alone.
func (s *RelationshipService) AddRoles(ctx context.Context, userID uint, ref models.GroupRef, roles ...models.Role) error {
	db := s.db.WithContext(ctx)
	for _, role := range roles {
		if !role.Valid() {
			return fmt.Errorf("add role: invalid role %d", int(role))
		}
		row := models.RoleAssignment{UserID: userID, GroupKind: ref.Kind, GroupID: ref.ID, Role: role}
		if err := db.Clauses(clause.OnConflict{DoNothing: true}).Create(&row).Error; err != nil {
			return fmt.Errorf("add role %s to user %d in %s: %w", role, userID, ref, err)
		}
	}
	return s.refreshMemberCount(ctx, ref)
}

func (s *RelationshipService) RemoveRoles(ctx context.Context, userID uint, ref models.GroupRef, roles ...models.Role) error {
	if len(roles) == 0 {
		return nil
	}
	err := s.db.WithContext(ctx).
		Where("user_id = ? AND group_kind = ? AND group_id = ? AND role IN ?", userID, ref.Kind, ref.ID, roles).
		Delete(&models.RoleAssignment{}).Error
	if err != nil {
		return fmt.Errorf("remove roles from user %d in %s: %w", userID, ref, err)
	}
	return s.refreshMemberCount(ctx, ref)
}

// RemoveAll drops every role userID holds in the group.
func (s *RelationshipService) RemoveAll(ctx context.Context, userID uint, ref models.GroupRef) error {
	err := s.db.WithContext(ctx).
		Where("user_id = ? AND group_kind = ? AND group_id = ?", userID, ref.Kind, ref.ID).
		Delete(&models.RoleAssignment{}).Error
	if err != nil {
		return fmt.Errorf("remove user %d from %s: %w", userID, ref, err)
	}
	return s.refreshMemberCount(ctx, ref)
}

func (s *RelationshipService) Roles(ctx context.Context, userID uint, ref models.GroupRef) (models.RoleSet, error) {
	var roles []models.Role
	err := s.db.WithContext(ctx).Model(&models.RoleAssignment{}).
		Where("user_id = ? AND group_kind = ? AND group_id = ?", userID, ref.Kind, ref.ID).
		Pluck("role", &roles).Error
	if err != nil {
		return nil, fmt.Errorf("load roles of user %d in %s: %w", userID, ref, err)
	}
	return models.NewRoleSet(roles...), nil
}

// UsersWithRole lists the ids of users holding any of roles in the group.
func (s *RelationshipService) UsersWithRole(ctx context.Context, ref models.GroupRef, roles ...models.Role) ([]uint, error) {
	var ids []uint
	err := s.db.WithContext(ctx).Model(&models.RoleAssignment{}).
		Where("group_kind = ? AND group_id = ? AND role IN ?", ref.Kind, ref.ID, roles).
		Distinct().Order("user_id").
		Pluck("user_id", &ids).Error
	if err != nil {
		return nil, fmt.Errorf("load users of %s: %w", ref, err)
	}
	return ids, nil
}

func (s *RelationshipService) refreshMemberCount(ctx context.Context, ref models.GroupRef) error {
	var count int64
	db := s.db.WithContext(ctx)
	err := db.Model(&models.RoleAssignment{}).
		Where("group_kind = ? AND group_id = ? AND role IN ?", ref.Kind, ref.ID, membershipRoles).
		Distinct("user_id").Count(&count).Error
	if err != nil {
		return fmt.Errorf("count members of %s: %w", ref, err)
	}

	group, err := models.NewGroup(ref.Kind)
	if err != nil {
		return err
	}
	if err := db.Model(group).Where("id = ?", ref.ID).UpdateColumn("member_count", count).Error; err != nil {
		return fmt.Errorf("update member count of %s: %w", ref, err)
	}
	return nil
}
