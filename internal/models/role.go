package models

import (
	"fmt"
	"sort"
	"strings"
)

// Role is a grant tying a user to a group. The integer codes are persisted
// and must not change.
type Role int

const (
	RoleDefaultUser                 Role = 0
	RoleInvitedToJoin               Role = 1
	RoleAdmin                       Role = 2
	RoleOwner                       Role = 3
	RoleInvitedToInterview          Role = 4
	RoleToInterview                 Role = 5
	RoleCreateProjectInOrganization Role = 6
)

var allRoles = []Role{
	RoleDefaultUser,
	RoleInvitedToJoin,
	RoleAdmin,
	RoleOwner,
	RoleInvitedToInterview,
	RoleToInterview,
	RoleCreateProjectInOrganization,
}

func AllRoles() []Role {
	out := make([]Role, len(allRoles))
	copy(out, allRoles)
	return out
}

func (r Role) String() string {
	switch r {
	case RoleDefaultUser:
		return "DEFAULT_USER"
	case RoleInvitedToJoin:
		return "INVITED_TO_JOIN"
	case RoleAdmin:
		return "ADMIN"
	case RoleOwner:
		return "OWNER"
	case RoleInvitedToInterview:
		return "INVITED_TO_INTERVIEW"
	case RoleToInterview:
		return "TO_INTERVIEW"
	case RoleCreateProjectInOrganization:
		return "CREATE_PROJECT_IN_ORGANIZATION"
	default:
		return fmt.Sprintf("Role(%d)", int(r))
	}
}

func (r Role) Valid() bool {
	switch r {
	case RoleDefaultUser, RoleInvitedToJoin, RoleAdmin, RoleOwner,
		RoleInvitedToInterview, RoleToInterview, RoleCreateProjectInOrganization:
		return true
	default:
		return false
	}
}

// ImpliesMembership reports whether holding r makes the user a member.
func (r Role) ImpliesMembership() bool {
	switch r {
	case RoleDefaultUser, RoleAdmin, RoleOwner:
		return true
	case RoleInvitedToJoin, RoleInvitedToInterview, RoleToInterview, RoleCreateProjectInOrganization:
		return false
	default:
		return false
	}
}

func ParseRole(s string) (Role, error) {
	name := strings.ToUpper(strings.TrimSpace(s))
	for _, r := range allRoles {
		if r.String() == name {
			return r, nil
		}
	}
	return 0, fmt.Errorf("unknown role %q", s)
}

func (r Role) MarshalText() ([]byte, error) {
	if !r.Valid() {
		return nil, fmt.Errorf("invalid role %d", int(r))
	}
	return []byte(r.String()), nil
}

func (r *Role) UnmarshalText(text []byte) error {
	parsed, err := ParseRole(string(text))
	if err != nil {
		return err
	}
	*r = parsed
	return nil
}

// RoleSet is the set of roles one user holds in one group.
type RoleSet map[Role]struct{}

func NewRoleSet(roles ...Role) RoleSet {
	s := make(RoleSet, len(roles))
	for _, r := range roles {
		s[r] = struct{}{}
	}
	return s
}

func (s RoleSet) Has(r Role) bool {
	_, ok := s[r]
	return ok
}

func (s RoleSet) HasAny(roles ...Role) bool {
	for _, r := range roles {
		if s.Has(r) {
			return true
		}
	}
	return false
}

// IsMember reports whether any held role implies membership.
func (s RoleSet) IsMember() bool {
	for r := range s {
		if r.ImpliesMembership() {
			return true
		}
	}
	return false
}

// Slice returns the roles ordered by code.
func (s RoleSet) Slice() []Role {
	out := make([]Role, 0, len(s))
	for r := range s {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
