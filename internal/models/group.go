package models

import (
	"fmt"
	"strings"
	"time"

	"gorm.io/gorm"
)

// GroupKind names one of the group tables.
type GroupKind string

const (
	KindOrganization GroupKind = "organization"
	KindProject      GroupKind = "project"
	KindTeam         GroupKind = "team"
)

// ParseGroupKind accepts both the singular kind and the plural route segment.
func ParseGroupKind(s string) (GroupKind, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "organization", "organizations":
		return KindOrganization, nil
	case "project", "projects":
		return KindProject, nil
	case "team", "teams":
		return KindTeam, nil
	default:
		return "", fmt.Errorf("unknown group kind %q", s)
	}
}

func (k GroupKind) Valid() bool {
	switch k {
	case KindOrganization, KindProject, KindTeam:
		return true
	default:
		return false
	}
}

// Restriction controls who may join a group without an invitation.
type Restriction string

const (
	RestrictionOpen                Restriction = "open"
	RestrictionInviteOnly          Restriction = "invite_only"
	RestrictionApplicationRequired Restriction = "application_required"
)

func (r Restriction) Valid() bool {
	switch r {
	case RestrictionOpen, RestrictionInviteOnly, RestrictionApplicationRequired:
		return true
	default:
		return false
	}
}

// GroupRef identifies a group of any kind.
type GroupRef struct {
	Kind GroupKind `json:"kind"`
	ID   uint      `json:"id"`
}

func (r GroupRef) String() string {
	return fmt.Sprintf("%s:%d", r.Kind, r.ID)
}

// Group is implemented by *Organization, *Project and *Team.
type Group interface {
	Ref() GroupRef
	Base() *GroupBase
}

// GroupBase holds the columns shared by every group table.
type GroupBase struct {
	ID             uint           `gorm:"primaryKey" json:"id"`
	Name           string         `gorm:"size:200;not null;index" json:"name"`
	Description    string         `gorm:"type:text" json:"description"`
	OwnerID        uint           `gorm:"index;not null" json:"owner_id"`
	Restriction    Restriction    `gorm:"size:32;not null" json:"restriction"`
	HolidayCountry string         `gorm:"size:8" json:"holiday_country"`
	MemberCount    int            `json:"member_count"`
	CreatedAt      time.Time      `json:"created_at"`
	UpdatedAt      time.Time      `json:"updated_at"`
	DeletedAt      gorm.DeletedAt `gorm:"index" json:"-"`
}

func (g *GroupBase) Base() *GroupBase { return g }

type Organization struct {
	GroupBase
}

func (Organization) TableName() string { return "organizations" }

func (o *Organization) Ref() GroupRef { return GroupRef{Kind: KindOrganization, ID: o.ID} }

type Project struct {
	GroupBase
	OrganizationID *uint `gorm:"index" json:"organization_id"`
}

func (Project) TableName() string { return "projects" }

func (p *Project) Ref() GroupRef { return GroupRef{Kind: KindProject, ID: p.ID} }

type Team struct {
	GroupBase
}

func (Team) TableName() string { return "teams" }

func (t *Team) Ref() GroupRef { return GroupRef{Kind: KindTeam, ID: t.ID} }

// NewGroup returns an empty group value of the given kind, ready to be
// loaded or filled by gorm.
func NewGroup(kind GroupKind) (Group, error) {
	switch kind {
	case KindOrganization:
		return &Organization{}, nil
	case KindProject:
		return &Project{}, nil
	case KindTeam:
		return &Team{}, nil
	default:
		return nil, fmt.Errorf("unknown group kind %q", kind)
	}
}
