package models

import "testing"

func TestParseGroupKind(t *testing.T) {
	tests := []struct {
		in      string
		want    GroupKind
		wantErr bool
	}{
		{"organization", KindOrganization, false},
		{"organizations", KindOrganization, false},
		{"Projects", KindProject, false},
		{"team", KindTeam, false},
		{"guild", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseGroupKind(tt.in)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseGroupKind(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("ParseGroupKind(%q) = %q, expected %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestNewGroup_RefKind(t *testing.T) {
	for _, kind := range []GroupKind{KindOrganization, KindProject, KindTeam} {
		g, err := NewGroup(kind)
		if err != nil {
			t.Fatalf("NewGroup(%q) error: %v", kind, err)
		}
		g.Base().ID = 7
		ref := g.Ref()
		if ref.Kind != kind || ref.ID != 7 {
			t.Errorf("Ref() = %v, expected %s:7", ref, kind)
		}
	}
	if _, err := NewGroup("guild"); err == nil {
		t.Error("NewGroup(guild) should fail")
	}
}

func TestInvitationType_Role(t *testing.T) {
	if r, _ := InvitationJoin.Role(); r != RoleInvitedToJoin {
		t.Errorf("join role = %v, expected %v", r, RoleInvitedToJoin)
	}
	if r, _ := InvitationInterview.Role(); r != RoleInvitedToInterview {
		t.Errorf("interview role = %v, expected %v", r, RoleInvitedToInterview)
	}
	if _, err := InvitationType("coffee").Role(); err == nil {
		t.Error("unknown invitation type should fail")
	}
}
