package permissions

import (
	"context"
	"fmt"

	"github.com/fuseproject/fuse/backend/internal/models"
	"gorm.io/gorm"
)

// Permission is what one user may do in one group, computed once per request.
type Permission struct {
	UserID uint
	Group  models.GroupRef

	roles             models.RoleSet
	restriction       models.Restriction
	allowedToJoin     bool
	canUpdate         bool
	canInvite         bool
	canCreateProjects bool
}

func (p *Permission) HasRole(r models.Role) bool { return p.roles.Has(r) }

func (p *Permission) IsMember() bool { return p.roles.IsMember() }

func (p *Permission) CanUpdate() bool { return p.canUpdate }

func (p *Permission) CanInvite() bool { return p.canInvite }

func (p *Permission) AllowedToJoin() bool { return p.allowedToJoin }

// CanCreateProjectsInOrganization is always false outside organizations.
func (p *Permission) CanCreateProjectsInOrganization() bool { return p.canCreateProjects }

func (p *Permission) Roles() []models.Role { return p.roles.Slice() }

func (p *Permission) RoleSet() models.RoleSet { return p.roles }

func (p *Permission) CanJoin() JoinResult {
	return DecideJoin(JoinInput{
		AllowedToJoin: p.allowedToJoin,
		Roles:         p.roles,
		Restriction:   p.restriction,
	})
}

// View is the permission summary returned alongside a group.
type View struct {
	Roles    []models.Role `json:"roles"`
	IsMember bool          `json:"is_member"`
	CanJoin  JoinResult    `json:"can_join"`
	CanEdit  bool          `json:"can_edit"`
}

func (p *Permission) View() View {
	return View{
		Roles:    p.Roles(),
		IsMember: p.IsMember(),
		CanJoin:  p.CanJoin(),
		CanEdit:  p.CanUpdate(),
	}
}

// Engine builds permissions for groups of type G.
type Engine[G models.Group] struct {
	db         *gorm.DB
	capability Capability[G]
}

func NewEngine[G models.Group](db *gorm.DB, capability Capability[G]) *Engine[G] {
	return &Engine[G]{db: db, capability: capability}
}

// Roles loads the roles userID holds in group.
func (e *Engine[G]) Roles(ctx context.Context, userID uint, group G) (models.RoleSet, error) {
	ref := group.Ref()
	var roles []models.Role
	err := e.db.WithContext(ctx).Model(&models.RoleAssignment{}).
		Where("user_id = ? AND group_kind = ? AND group_id = ?", userID, ref.Kind, ref.ID).
		Pluck("role", &roles).Error
	if err != nil {
		return nil, fmt.Errorf("load roles for %s: %w", ref, err)
	}
	return models.NewRoleSet(roles...), nil
}

func (e *Engine[G]) For(ctx context.Context, userID uint, group G) (*Permission, error) {
	roles, err := e.Roles(ctx, userID, group)
	if err != nil {
		return nil, err
	}
	allowed, err := e.capability.AllowedToJoin(ctx, userID, group)
	if err != nil {
		return nil, err
	}

	p := &Permission{
		UserID:        userID,
		Group:         group.Ref(),
		roles:         roles,
		restriction:   group.Base().Restriction,
		allowedToJoin: allowed,
		canUpdate:     e.capability.CanUpdate(roles),
		canInvite:     e.capability.CanInvite(roles),
	}
	if pc, ok := any(e.capability).(projectCreator); ok {
		p.canCreateProjects = pc.CanCreateProjects(roles)
	}
	return p, nil
}
