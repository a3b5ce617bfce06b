package permissions

import (
	"testing"

	"github.com/fuseproject/fuse/backend/internal/models"
)

func TestDecideJoin(t *testing.T) {
	tests := []struct {
		name        string
		allowed     bool
		roles       []models.Role
		restriction models.Restriction
		want        JoinResult
	}{
		{"not allowed beats membership", false, []models.Role{models.RoleOwner}, models.RestrictionOpen, JoinNotAllowed},
		{"not allowed beats invite", false, []models.Role{models.RoleInvitedToJoin}, models.RestrictionOpen, JoinNotAllowed},
		{"member", true, []models.Role{models.RoleDefaultUser}, models.RestrictionOpen, JoinAlreadyJoined},
		{"admin is member", true, []models.Role{models.RoleAdmin}, models.RestrictionInviteOnly, JoinAlreadyJoined},
		{"member with stale invite", true, []models.Role{models.RoleDefaultUser, models.RoleInvitedToJoin}, models.RestrictionOpen, JoinAlreadyJoined},
		{"invite on restricted group", true, []models.Role{models.RoleInvitedToJoin}, models.RestrictionInviteOnly, JoinHasInvite},
		{"invite on open group", true, []models.Role{models.RoleInvitedToJoin}, models.RestrictionOpen, JoinHasInvite},
		{"invite with corrupt restriction", true, []models.Role{models.RoleInvitedToJoin}, "bogus", JoinHasInvite},
		{"open", true, nil, models.RestrictionOpen, JoinOK},
		{"open with interview roles", true, []models.Role{models.RoleToInterview, models.RoleInvitedToInterview}, models.RestrictionOpen, JoinOK},
		{"invite only", true, nil, models.RestrictionInviteOnly, JoinNeedInvite},
		{"application required", true, nil, models.RestrictionApplicationRequired, JoinNeedInvite},
		{"corrupt restriction", true, nil, "bogus", JoinError},
		{"empty restriction", true, nil, "", JoinError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := DecideJoin(JoinInput{
				AllowedToJoin: tt.allowed,
				Roles:         models.NewRoleSet(tt.roles...),
				Restriction:   tt.restriction,
			})
			if got != tt.want {
				t.Errorf("DecideJoin() = %s, expected %s", got, tt.want)
			}
		})
	}
}

func TestJoinResult_String(t *testing.T) {
	names := map[JoinResult]string{
		JoinOK:            "OK",
		JoinHasInvite:     "HAS_INVITE",
		JoinNeedInvite:    "NEED_INVITE",
		JoinAlreadyJoined: "ALREADY_JOINED",
		JoinNotAllowed:    "NOT_ALLOWED",
		JoinError:         "ERROR",
	}
	for r, name := range names {
		if r.String() != name {
			t.Errorf("String() = %q, expected %q", r.String(), name)
		}
	}
}
