package models

import (
	"time"

	"gorm.io/datatypes"
)

type NotificationType string

const (
	NotificationUserApplied         NotificationType = "user_applied"
	NotificationUserJoined          NotificationType = "user_joined"
	NotificationApplicationDeclined NotificationType = "application_declined"
	NotificationInterviewInvitation NotificationType = "interview_invitation"
	NotificationJoinInvitation      NotificationType = "join_invitation"
	NotificationApplicationsPending NotificationType = "applications_pending"
)

// Notification is an in-app message for one receiver.
type Notification struct {
	ID            uint              `gorm:"primaryKey" json:"id"`
	ReceiverID    uint              `gorm:"index;not null" json:"receiver_id"`
	Type          NotificationType  `gorm:"size:40;index;not null" json:"type"`
	GroupKind     GroupKind         `gorm:"size:20" json:"group_kind"`
	GroupID       uint              `json:"group_id"`
	InvitationID  *uint             `json:"invitation_id,omitempty"`
	ApplicationID *uint             `json:"application_id,omitempty"`
	Message       string            `gorm:"size:500" json:"message"`
	Payload       datatypes.JSONMap `json:"payload"`
	Read          bool              `gorm:"column:is_read;index" json:"read"`
	CreatedAt     time.Time         `gorm:"index" json:"created_at"`
}

func (Notification) TableName() string { return "notifications" }
