package models

import (
	"time"

	"gorm.io/gorm"
)

// Interview is a bookable slot [StartTime, EndTime) in UTC.
type Interview struct {
	ID        uint           `gorm:"primaryKey" json:"id"`
	GroupKind GroupKind      `gorm:"index:idx_interview_group;size:20;not null" json:"group_kind"`
	GroupID   uint           `gorm:"index:idx_interview_group;not null" json:"group_id"`
	StartTime time.Time      `gorm:"index;not null" json:"start"`
	EndTime   time.Time      `gorm:"not null" json:"end"`
	Available bool           `gorm:"index" json:"available"`
	Cancelled bool           `json:"cancelled"`
	UserID    *uint          `gorm:"index" json:"user_id,omitempty"`
	Code      string         `gorm:"uniqueIndex;size:64;not null" json:"code"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"-"`
}

func (Interview) TableName() string { return "interviews" }

func (i *Interview) Group() GroupRef {
	return GroupRef{Kind: i.GroupKind, ID: i.GroupID}
}

// InterviewTemplate describes a recurring window slots are generated from.
type InterviewTemplate struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	GroupKind GroupKind `gorm:"index:idx_template_group;size:20;not null" json:"group_kind"`
	GroupID   uint      `gorm:"index:idx_template_group;not null" json:"group_id"`
	StartTime time.Time `gorm:"not null" json:"start"`
	EndTime   time.Time `gorm:"not null" json:"end"`
	CreatedAt time.Time `json:"created_at"`
}

func (InterviewTemplate) TableName() string { return "interview_templates" }
