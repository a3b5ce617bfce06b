package services

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/fuseproject/fuse/backend/internal/models"
	"github.com/fuseproject/fuse/backend/internal/permissions"
	"gorm.io/gorm"
)

// GroupService manages organizations, projects and teams and their members.
type GroupService struct {
	db           *gorm.DB
	opts         Options
	applications *ApplicationService
}

type CreateGroupInput struct {
	Name               string      `json:"name" binding:"required"`
	Description        string      `json:"description"`
	Restriction        string      `json:"restriction"`
	HolidayCountry     string      `json:"holiday_country"`
	OrganizationID     *uint       `json:"organization_id"`
	InterviewTemplates []SlotInput `json:"interview_templates"`
}

type UpdateGroupInput struct {
	Name           *string `json:"name"`
	Description    *string `json:"description"`
	Restriction    *string `json:"restriction"`
	HolidayCountry *string `json:"holiday_country"`
}

// GroupView is a group together with what the viewer may do in it.
type GroupView struct {
	Kind       models.GroupKind `json:"kind"`
	Group      models.Group     `json:"group"`
	Permission permissions.View `json:"permission"`
}

type Member struct {
	User  *models.User  `json:"user"`
	Roles []models.Role `json:"roles"`
}

func parseRestriction(value string) (models.Restriction, error) {
	if value == "" {
		return models.RestrictionOpen, nil
	}
	r := models.Restriction(value)
	if !r.Valid() {
		return "", invalidFields(fmt.Sprintf("invalid restriction %q", value))
	}
	return r, nil
}

func nameTaken(tx *gorm.DB, kind models.GroupKind, ownerID uint, name string, exceptID uint) (bool, error) {
	model, err := models.NewGroup(kind)
	if err != nil {
		return false, err
	}
	var count int64
	if err := tx.Model(model).
		Where("owner_id = ? AND name = ? AND id <> ?", ownerID, name, exceptID).
		Count(&count).Error; err != nil {
		return false, fmt.Errorf("check group name: %w", err)
	}
	return count > 0, nil
}

// Create makes ownerID the owner and an admin of a new group.
func (s *GroupService) Create(ctx context.Context, ownerID uint, kind models.GroupKind, in CreateGroupInput) (models.Group, error) {
	name := strings.TrimSpace(in.Name)
	if name == "" {
		return nil, invalidFields("name is required")
	}
	restriction, err := parseRestriction(in.Restriction)
	if err != nil {
		return nil, err
	}
	if in.OrganizationID != nil && kind != models.KindProject {
		return nil, invalidFields("organization_id is only valid for projects")
	}
	for i, t := range in.InterviewTemplates {
		if t.End.Before(t.Start) {
			return nil, newError(ErrInvalidTime, fmt.Sprintf("interview template %d: end must not precede start", i))
		}
	}

	group, err := models.NewGroup(kind)
	if err != nil {
		return nil, invalidFields(err.Error())
	}

	unlock, err := s.opts.Locker.Lock(ctx, lockKey("group", "create", ownerID, kind, strings.ToLower(name)))
	if err != nil {
		return nil, fmt.Errorf("lock group creation: %w", err)
	}
	defer unlock()

	err = inTx(ctx, s.db, func(tx *gorm.DB, after *afterCommit) error {
		if _, err := actingUser(tx, ownerID); err != nil {
			return err
		}

		taken, err := nameTaken(tx, kind, ownerID, name, 0)
		if err != nil {
			return err
		}
		if taken {
			return invalidFields("name already exists")
		}

		base := group.Base()
		base.Name = name
		base.Description = in.Description
		base.OwnerID = ownerID
		base.Restriction = restriction
		base.HolidayCountry = strings.ToUpper(in.HolidayCountry)

		if project, ok := group.(*models.Project); ok && in.OrganizationID != nil {
			org, err := loadGroup(tx, models.GroupRef{Kind: models.KindOrganization, ID: *in.OrganizationID})
			if err != nil {
				return err
			}
			perm, err := permissionFor(ctx, tx, ownerID, org)
			if err != nil {
				return err
			}
			if !perm.CanCreateProjectsInOrganization() {
				return forbidden("you cannot create projects in this organization")
			}
			project.OrganizationID = in.OrganizationID
		}

		if err := tx.Create(group).Error; err != nil {
			return fmt.Errorf("create %s: %w", kind, err)
		}
		ref := group.Ref()

		if err := NewRelationshipService(tx).AddRoles(ctx, ownerID, ref, models.RoleOwner, models.RoleAdmin); err != nil {
			return err
		}
		base.MemberCount = 1

		for _, t := range in.InterviewTemplates {
			tmpl := models.InterviewTemplate{
				GroupKind: ref.Kind,
				GroupID:   ref.ID,
				StartTime: t.Start.UTC(),
				EndTime:   t.End.UTC(),
			}
			if err := tx.Create(&tmpl).Error; err != nil {
				return fmt.Errorf("create interview template: %w", err)
			}
		}

		after.add(func() {
			s.opts.Publisher.Publish(context.WithoutCancel(ctx), newGroupEvent(EventGroupCreated, group, ownerID, s.opts.now()))
		})
		return nil
	})
	if err != nil {
		return nil, err
	}
	return group, nil
}

func (s *GroupService) Update(ctx context.Context, actorID uint, ref models.GroupRef, in UpdateGroupInput) (models.Group, error) {
	var group models.Group
	err := inTx(ctx, s.db, func(tx *gorm.DB, after *afterCommit) error {
		var err error
		group, err = managedGroup(ctx, tx, actorID, ref)
		if err != nil {
			return err
		}
		base := group.Base()
		updates := map[string]any{}

		if in.Name != nil {
			name := strings.TrimSpace(*in.Name)
			if name == "" {
				return invalidFields("name is required")
			}
			if name != base.Name {
				taken, err := nameTaken(tx, ref.Kind, base.OwnerID, name, base.ID)
				if err != nil {
					return err
				}
				if taken {
					return invalidFields("name already exists")
				}
			}
			base.Name = name
			updates["name"] = name
		}
		if in.Description != nil {
			base.Description = *in.Description
			updates["description"] = *in.Description
		}
		if in.Restriction != nil {
			r, err := parseRestriction(*in.Restriction)
			if err != nil {
				return err
			}
			base.Restriction = r
			updates["restriction"] = r
		}
		if in.HolidayCountry != nil {
			base.HolidayCountry = strings.ToUpper(*in.HolidayCountry)
			updates["holiday_country"] = base.HolidayCountry
		}

		if len(updates) == 0 {
			return nil
		}
		if err := tx.Model(group).Updates(updates).Error; err != nil {
			return fmt.Errorf("update %s: %w", ref, err)
		}
		after.add(func() {
			s.opts.Publisher.Publish(context.WithoutCancel(ctx), newGroupEvent(EventGroupUpdated, group, actorID, s.opts.now()))
		})
		return nil
	})
	if err != nil {
		return nil, err
	}
	return group, nil
}

// Delete soft-deletes a group. Only its owner may do this.
func (s *GroupService) Delete(ctx context.Context, actorID uint, ref models.GroupRef) error {
	return inTx(ctx, s.db, func(tx *gorm.DB, after *afterCommit) error {
		if _, err := actingUser(tx, actorID); err != nil {
			return err
		}
		group, err := loadGroup(tx, ref)
		if err != nil {
			return err
		}
		if group.Base().OwnerID != actorID {
			return forbidden("only the owner can delete this %s", ref.Kind)
		}
		if err := tx.Delete(group).Error; err != nil {
			return fmt.Errorf("delete %s: %w", ref, err)
		}
		after.add(func() {
			s.opts.Publisher.Publish(context.WithoutCancel(ctx), newGroupEvent(EventGroupDeleted, group, actorID, s.opts.now()))
		})
		return nil
	})
}

func (s *GroupService) Get(ctx context.Context, actorID uint, ref models.GroupRef) (*GroupView, error) {
	db := s.db.WithContext(ctx)
	if _, err := actingUser(db, actorID); err != nil {
		return nil, err
	}
	group, err := loadGroup(db, ref)
	if err != nil {
		return nil, err
	}
	perm, err := permissionFor(ctx, db, actorID, group)
	if err != nil {
		return nil, err
	}
	return &GroupView{Kind: ref.Kind, Group: group, Permission: perm.View()}, nil
}

func findGroups[T any, PT interface {
	*T
	models.Group
}](db *gorm.DB, offset, limit int) ([]models.Group, int64, error) {
	var total int64
	if err := db.Model(new(T)).Count(&total).Error; err != nil {
		return nil, 0, err
	}
	var rows []T
	if err := db.Order("id ASC").Offset(offset).Limit(limit).Find(&rows).Error; err != nil {
		return nil, 0, err
	}
	out := make([]models.Group, len(rows))
	for i := range rows {
		out[i] = PT(&rows[i])
	}
	return out, total, nil
}

// List pages through the live groups of a kind with the viewer's permissions.
func (s *GroupService) List(ctx context.Context, actorID uint, kind models.GroupKind, page, pageSize int) (*Page[GroupView], error) {
	db := s.db.WithContext(ctx)
	if _, err := actingUser(db, actorID); err != nil {
		return nil, err
	}
	page, pageSize = normalizePage(page, pageSize)
	offset := (page - 1) * pageSize

	var groups []models.Group
	var total int64
	var err error
	switch kind {
	case models.KindOrganization:
		groups, total, err = findGroups[models.Organization](db, offset, pageSize)
	case models.KindProject:
		groups, total, err = findGroups[models.Project](db, offset, pageSize)
	case models.KindTeam:
		groups, total, err = findGroups[models.Team](db, offset, pageSize)
	default:
		return nil, invalidFields(fmt.Sprintf("unknown group kind %q", kind))
	}
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", kind, err)
	}

	factory := permissions.NewFactory(db)
	items := make([]GroupView, 0, len(groups))
	for _, g := range groups {
		perm, err := factory.For(ctx, actorID, g)
		if err != nil {
			return nil, err
		}
		items = append(items, GroupView{Kind: kind, Group: g, Permission: perm.View()})
	}
	return &Page[GroupView]{Total: total, Page: page, PageSize: pageSize, Items: items}, nil
}

// FindByNameAndOwner looks a group up by its name and its owner's email.
func (s *GroupService) FindByNameAndOwner(ctx context.Context, kind models.GroupKind, name, ownerEmail string) (models.Group, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, invalidFields("name is required")
	}
	db := s.db.WithContext(ctx)

	var owner models.User
	err := db.Where("email = ?", strings.TrimSpace(ownerEmail)).First(&owner).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, invalidFields("owner not found")
	}
	if err != nil {
		return nil, fmt.Errorf("load owner: %w", err)
	}

	group, err := models.NewGroup(kind)
	if err != nil {
		return nil, invalidFields(err.Error())
	}
	err = db.Where("owner_id = ? AND name = ?", owner.ID, name).First(group).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, notFound(string(kind))
	}
	if err != nil {
		return nil, fmt.Errorf("find %s: %w", kind, err)
	}
	return group, nil
}

// Members pages through users holding a membership role, with all their roles.
func (s *GroupService) Members(ctx context.Context, ref models.GroupRef, page, pageSize int) (*Page[Member], error) {
	db := s.db.WithContext(ctx)
	if _, err := loadGroup(db, ref); err != nil {
		return nil, err
	}
	page, pageSize = normalizePage(page, pageSize)

	var rows []models.RoleAssignment
	if err := db.Where("group_kind = ? AND group_id = ?", ref.Kind, ref.ID).Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("load roles of %s: %w", ref, err)
	}

	byUser := make(map[uint]models.RoleSet)
	for _, r := range rows {
		if byUser[r.UserID] == nil {
			byUser[r.UserID] = models.NewRoleSet()
		}
		byUser[r.UserID][r.Role] = struct{}{}
	}

	var memberIDs []uint
	for id, roles := range byUser {
		if roles.IsMember() {
			memberIDs = append(memberIDs, id)
		}
	}
	sort.Slice(memberIDs, func(i, j int) bool { return memberIDs[i] < memberIDs[j] })

	result := &Page[Member]{Total: int64(len(memberIDs)), Page: page, PageSize: pageSize, Items: []Member{}}
	start := (page - 1) * pageSize
	if start >= len(memberIDs) {
		return result, nil
	}
	end := min(start+pageSize, len(memberIDs))
	pageIDs := memberIDs[start:end]

	var users []models.User
	if err := db.Where("id IN ?", pageIDs).Find(&users).Error; err != nil {
		return nil, fmt.Errorf("load members of %s: %w", ref, err)
	}
	usersByID := make(map[uint]*models.User, len(users))
	for i := range users {
		usersByID[users[i].ID] = &users[i]
	}
	for _, id := range pageIDs {
		if u, ok := usersByID[id]; ok {
			result.Items = append(result.Items, Member{User: u, Roles: byUser[id].Slice()})
		}
	}
	return result, nil
}

// memberTarget loads the group for a manager acting on one of its members.
func (s *GroupService) memberTarget(ctx context.Context, tx *gorm.DB, actorID uint, ref models.GroupRef, memberID uint) (models.Group, models.RoleSet, error) {
	group, err := managedGroup(ctx, tx, actorID, ref)
	if err != nil {
		return nil, nil, err
	}
	roles, err := NewRelationshipService(tx).Roles(ctx, memberID, ref)
	if err != nil {
		return nil, nil, err
	}
	return group, roles, nil
}

func (s *GroupService) GrantAdmin(ctx context.Context, actorID uint, ref models.GroupRef, memberID uint) error {
	return inTx(ctx, s.db, func(tx *gorm.DB, _ *afterCommit) error {
		_, roles, err := s.memberTarget(ctx, tx, actorID, ref, memberID)
		if err != nil {
			return err
		}
		if !roles.IsMember() {
			return invalidFields("user is not a member")
		}
		return NewRelationshipService(tx).AddRoles(ctx, memberID, ref, models.RoleAdmin)
	})
}

func (s *GroupService) RevokeAdmin(ctx context.Context, actorID uint, ref models.GroupRef, memberID uint) error {
	return inTx(ctx, s.db, func(tx *gorm.DB, _ *afterCommit) error {
		group, roles, err := s.memberTarget(ctx, tx, actorID, ref, memberID)
		if err != nil {
			return err
		}
		if !roles.IsMember() {
			return invalidFields("user is not a member")
		}
		if group.Base().OwnerID == memberID {
			return forbidden("the owner always keeps admin rights")
		}
		return NewRelationshipService(tx).RemoveRoles(ctx, memberID, ref, models.RoleAdmin)
	})
}

// Kick removes every role memberID holds, pending ones included, closes
// their pending invitations and frees any interview booked in the group.
func (s *GroupService) Kick(ctx context.Context, actorID uint, ref models.GroupRef, memberID uint) error {
	return inTx(ctx, s.db, func(tx *gorm.DB, _ *afterCommit) error {
		group, roles, err := s.memberTarget(ctx, tx, actorID, ref, memberID)
		if err != nil {
			return err
		}
		if group.Base().OwnerID == memberID {
			return forbidden("the owner cannot be removed")
		}
		if len(roles) == 0 {
			return invalidFields("user is not a member")
		}
		if err := freeSlotsOf(tx, ref, memberID); err != nil {
			return err
		}
		if err := closeInvitations(ctx, tx, "receiver_id = ? AND group_kind = ? AND group_id = ?", memberID, ref.Kind, ref.ID); err != nil {
			return err
		}
		return NewRelationshipService(tx).RemoveAll(ctx, memberID, ref)
	})
}

func (s *GroupService) CanEdit(ctx context.Context, actorID uint, ref models.GroupRef) (bool, error) {
	db := s.db.WithContext(ctx)
	group, err := loadGroup(db, ref)
	if err != nil {
		return false, err
	}
	perm, err := permissionFor(ctx, db, actorID, group)
	if err != nil {
		return false, err
	}
	return perm.CanUpdate(), nil
}

// GrantProjectCreation lets a member of an organization create projects in it.
func (s *GroupService) GrantProjectCreation(ctx context.Context, actorID, organizationID, memberID uint) error {
	ref := models.GroupRef{Kind: models.KindOrganization, ID: organizationID}
	return inTx(ctx, s.db, func(tx *gorm.DB, _ *afterCommit) error {
		_, roles, err := s.memberTarget(ctx, tx, actorID, ref, memberID)
		if err != nil {
			return err
		}
		if !roles.IsMember() {
			return invalidFields("user is not a member")
		}
		return NewRelationshipService(tx).AddRoles(ctx, memberID, ref, models.RoleCreateProjectInOrganization)
	})
}
