package permissions

import (
	"context"
	"errors"
	"fmt"

	"github.com/fuseproject/fuse/backend/internal/models"
	"gorm.io/gorm"
)

// Capability holds the rules that differ between group kinds.
type Capability[G models.Group] interface {
	AllowedToJoin(ctx context.Context, userID uint, group G) (bool, error)
	CanUpdate(roles models.RoleSet) bool
	CanInvite(roles models.RoleSet) bool
}

// projectCreator is implemented by capabilities whose groups can host projects.
type projectCreator interface {
	CanCreateProjects(roles models.RoleSet) bool
}

func isManager(roles models.RoleSet) bool {
	return roles.HasAny(models.RoleAdmin, models.RoleOwner)
}

type OrganizationCapability struct{}

func (OrganizationCapability) AllowedToJoin(context.Context, uint, *models.Organization) (bool, error) {
	return true, nil
}

func (OrganizationCapability) CanUpdate(roles models.RoleSet) bool { return isManager(roles) }

func (OrganizationCapability) CanInvite(roles models.RoleSet) bool { return isManager(roles) }

func (OrganizationCapability) CanCreateProjects(roles models.RoleSet) bool {
	return roles.HasAny(models.RoleAdmin, models.RoleOwner, models.RoleCreateProjectInOrganization)
}

// ProjectCapability requires membership of the parent organization, when
// there is one, before a user may join.
type ProjectCapability struct {
	db   *gorm.DB
	orgs *Engine[*models.Organization]
}

func NewProjectCapability(db *gorm.DB, orgs *Engine[*models.Organization]) *ProjectCapability {
	return &ProjectCapability{db: db, orgs: orgs}
}

func (c *ProjectCapability) AllowedToJoin(ctx context.Context, userID uint, project *models.Project) (bool, error) {
	if project.OrganizationID == nil {
		return true, nil
	}

	var org models.Organization
	err := c.db.WithContext(ctx).First(&org, *project.OrganizationID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("load parent organization: %w", err)
	}

	roles, err := c.orgs.Roles(ctx, userID, &org)
	if err != nil {
		return false, err
	}
	return roles.IsMember(), nil
}

func (c *ProjectCapability) CanUpdate(roles models.RoleSet) bool { return isManager(roles) }

func (c *ProjectCapability) CanInvite(roles models.RoleSet) bool { return isManager(roles) }

type TeamCapability struct{}

func (TeamCapability) AllowedToJoin(context.Context, uint, *models.Team) (bool, error) {
	return true, nil
}

func (TeamCapability) CanUpdate(roles models.RoleSet) bool { return isManager(roles) }

func (TeamCapability) CanInvite(roles models.RoleSet) bool { return isManager(roles) }
