package permissions

import (
	"context"
	"fmt"

	"github.com/fuseproject/fuse/backend/internal/models"
	"gorm.io/gorm"
)

// Factory routes a group to the engine for its kind. Build one per
// transaction so every query runs on the same connection.
type Factory struct {
	Organizations *Engine[*models.Organization]
	Projects      *Engine[*models.Project]
	Teams         *Engine[*models.Team]
}

func NewFactory(db *gorm.DB) *Factory {
	orgs := NewEngine[*models.Organization](db, OrganizationCapability{})
	return &Factory{
		Organizations: orgs,
		Projects:      NewEngine[*models.Project](db, NewProjectCapability(db, orgs)),
		Teams:         NewEngine[*models.Team](db, TeamCapability{}),
	}
}

func (f *Factory) For(ctx context.Context, userID uint, group models.Group) (*Permission, error) {
	switch g := group.(type) {
	case *models.Organization:
		return f.Organizations.For(ctx, userID, g)
	case *models.Project:
		return f.Projects.For(ctx, userID, g)
	case *models.Team:
		return f.Teams.For(ctx, userID, g)
	default:
		return nil, fmt.Errorf("no permission engine for %T", group)
	}
}
