package models

import "time"

// RoleAssignment is one (user, group, role) grant.
type RoleAssignment struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	UserID    uint      `gorm:"uniqueIndex:idx_role_assignment;not null" json:"user_id"`
	GroupKind GroupKind `gorm:"uniqueIndex:idx_role_assignment;index:idx_role_group;size:20;not null" json:"group_kind"`
	GroupID   uint      `gorm:"uniqueIndex:idx_role_assignment;index:idx_role_group;not null" json:"group_id"`
	Role      Role      `gorm:"uniqueIndex:idx_role_assignment;not null" json:"role"`
	CreatedAt time.Time `json:"created_at"`
}

func (RoleAssignment) TableName() string { return "role_assignments" }
