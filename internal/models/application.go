package models

import (
	"fmt"
	"time"
)

type ApplicationStatus string

const (
	ApplicationPending            ApplicationStatus = "pending"
	ApplicationAccepted           ApplicationStatus = "accepted"
	ApplicationDeclined           ApplicationStatus = "declined"
	ApplicationInterviewed        ApplicationStatus = "interviewed"
	ApplicationInterviewScheduled ApplicationStatus = "interview_scheduled"
	ApplicationInvited            ApplicationStatus = "invited"
)

func ParseApplicationStatus(s string) (ApplicationStatus, error) {
	switch st := ApplicationStatus(s); st {
	case ApplicationPending, ApplicationAccepted, ApplicationDeclined,
		ApplicationInterviewed, ApplicationInterviewScheduled, ApplicationInvited:
		return st, nil
	default:
		return "", fmt.Errorf("unknown application status %q", s)
	}
}

// GroupApplication is a user's request to join a restricted group.
type GroupApplication struct {
	ID          uint              `gorm:"primaryKey" json:"id"`
	SenderID    uint              `gorm:"index;not null" json:"sender_id"`
	Sender      *User             `gorm:"foreignKey:SenderID" json:"sender,omitempty"`
	GroupKind   GroupKind         `gorm:"index:idx_application_group;size:20;not null" json:"group_kind"`
	GroupID     uint              `gorm:"index:idx_application_group;not null" json:"group_id"`
	Status      ApplicationStatus `gorm:"size:32;index;not null" json:"status"`
	SubmittedAt time.Time         `json:"submitted_at"`
	InterviewAt *time.Time        `json:"interview_at,omitempty"`
	CreatedAt   time.Time         `json:"created_at"`
	UpdatedAt   time.Time         `json:"updated_at"`
}

func (GroupApplication) TableName() string { return "group_applications" }

func (a *GroupApplication) Group() GroupRef {
	return GroupRef{Kind: a.GroupKind, ID: a.GroupID}
}
