package models

import "time"

// SchedulerLock lets one instance claim a cron run, e.g. the digest for a date.
type SchedulerLock struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	Name      string    `gorm:"uniqueIndex:idx_scheduler_lock;size:100;not null" json:"name"`
	RunKey    string    `gorm:"uniqueIndex:idx_scheduler_lock;size:100;not null" json:"run_key"`
	Holder    string    `gorm:"size:100" json:"holder"`
	LockedAt  time.Time `json:"locked_at"`
	ExpiresAt time.Time `gorm:"index" json:"expires_at"`
}

func (SchedulerLock) TableName() string { return "scheduler_locks" }
