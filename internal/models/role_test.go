package models

import "testing"

func TestRole_StringParseRoundTrip(t *testing.T) {
	for _, r := range AllRoles() {
		parsed, err := ParseRole(r.String())
		if err != nil {
			t.Fatalf("ParseRole(%q) error: %v", r.String(), err)
		}
		if parsed != r {
			t.Errorf("ParseRole(%q) = %v, expected %v", r.String(), parsed, r)
		}
	}
}

func TestRole_Codes(t *testing.T) {
	tests := []struct {
		role Role
		code int
	}{
		{RoleDefaultUser, 0},
		{RoleInvitedToJoin, 1},
		{RoleAdmin, 2},
		{RoleOwner, 3},
		{RoleInvitedToInterview, 4},
		{RoleToInterview, 5},
		{RoleCreateProjectInOrganization, 6},
	}
	for _, tt := range tests {
		if int(tt.role) != tt.code {
			t.Errorf("%s = %d, expected %d", tt.role, int(tt.role), tt.code)
		}
	}
}

func TestRole_ImpliesMembership(t *testing.T) {
	members := map[Role]bool{
		RoleDefaultUser: true,
		RoleAdmin:       true,
		RoleOwner:       true,
	}
	for _, r := range AllRoles() {
		if got := r.ImpliesMembership(); got != members[r] {
			t.Errorf("%s.ImpliesMembership() = %v, expected %v", r, got, members[r])
		}
	}
}

func TestParseRole_Invalid(t *testing.T) {
	if _, err := ParseRole("SUPERUSER"); err == nil {
		t.Error("ParseRole(SUPERUSER) should fail")
	}
	if Role(42).Valid() {
		t.Error("Role(42) should be invalid")
	}
	if _, err := Role(42).MarshalText(); err == nil {
		t.Error("MarshalText on invalid role should fail")
	}
}

func TestRoleSet(t *testing.T) {
	s := NewRoleSet(RoleInvitedToJoin, RoleToInterview)
	if s.IsMember() {
		t.Error("pending roles should not imply membership")
	}
	if !s.HasAny(RoleAdmin, RoleToInterview) {
		t.Error("HasAny should find TO_INTERVIEW")
	}

	s[RoleDefaultUser] = struct{}{}
	if !s.IsMember() {
		t.Error("DEFAULT_USER should imply membership")
	}

	got := s.Slice()
	expected := []Role{RoleDefaultUser, RoleInvitedToJoin, RoleToInterview}
	if len(got) != len(expected) {
		t.Fatalf("Slice() = %v, expected %v", got, expected)
	}
	for i := range expected {
		if got[i] != expected[i] {
			t.Errorf("Slice()[%d] = %v, expected %v", i, got[i], expected[i])
		}
	}
}
