package models

import (
	"fmt"
	"time"
)

type InvitationType string

const (
	InvitationJoin      InvitationType = "join"
	InvitationInterview InvitationType = "interview"
)

func ParseInvitationType(s string) (InvitationType, error) {
	switch t := InvitationType(s); t {
	case InvitationJoin, InvitationInterview:
		return t, nil
	default:
		return "", fmt.Errorf("unknown invitation type %q", s)
	}
}

// Role returns the pending role an invitation of this type grants.
func (t InvitationType) Role() (Role, error) {
	switch t {
	case InvitationJoin:
		return RoleInvitedToJoin, nil
	case InvitationInterview:
		return RoleInvitedToInterview, nil
	default:
		return 0, fmt.Errorf("unknown invitation type %q", string(t))
	}
}

type InvitationStatus string

const (
	InvitationPending  InvitationStatus = "pending"
	InvitationAccepted InvitationStatus = "accepted"
	InvitationDeclined InvitationStatus = "declined"
	// InvitationDone closes an invitation whose application was re-decided.
	InvitationDone InvitationStatus = "done"
)

// GroupInvitation offers a role in a group to one user. Rows are closed by
// status and never deleted.
type GroupInvitation struct {
	ID            uint              `gorm:"primaryKey" json:"id"`
	SenderID      uint              `gorm:"index;not null" json:"sender_id"`
	Sender        *User             `gorm:"foreignKey:SenderID" json:"sender,omitempty"`
	ReceiverID    uint              `gorm:"index;not null" json:"receiver_id"`
	Receiver      *User             `gorm:"foreignKey:ReceiverID" json:"receiver,omitempty"`
	GroupKind     GroupKind         `gorm:"index:idx_invitation_group;size:20;not null" json:"group_kind"`
	GroupID       uint              `gorm:"index:idx_invitation_group;not null" json:"group_id"`
	Type          InvitationType    `gorm:"size:20;not null" json:"type"`
	Status        InvitationStatus  `gorm:"size:20;index;not null" json:"status"`
	ApplicationID *uint             `gorm:"index" json:"application_id,omitempty"`
	Application   *GroupApplication `gorm:"foreignKey:ApplicationID" json:"application,omitempty"`
	InterviewID   *uint             `gorm:"index" json:"interview_id,omitempty"`
	Interview     *Interview        `gorm:"foreignKey:InterviewID" json:"interview,omitempty"`
	CreatedAt     time.Time         `json:"created_at"`
	UpdatedAt     time.Time         `json:"updated_at"`
}

func (GroupInvitation) TableName() string { return "group_invitations" }

func (i *GroupInvitation) Group() GroupRef {
	return GroupRef{Kind: i.GroupKind, ID: i.GroupID}
}
