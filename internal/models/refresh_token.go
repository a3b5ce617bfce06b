package models

import "time"

// RefreshToken is one link of a rotating refresh token chain. Only the
// SHA-256 of the token is stored.
type RefreshToken struct {
	ID           uint       `gorm:"primaryKey" json:"id"`
	UserID       uint       `gorm:"index;not null" json:"user_id"`
	TokenHash    string     `gorm:"uniqueIndex;size:64;not null" json:"-"`
	ExpiresAt    time.Time  `gorm:"index;not null" json:"expires_at"`
	RevokedAt    *time.Time `json:"revoked_at,omitempty"`
	ReplacedByID *uint      `json:"replaced_by_id,omitempty"`
	ClientIP     string     `gorm:"size:64" json:"client_ip,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
}

func (RefreshToken) TableName() string { return "refresh_tokens" }

func (t *RefreshToken) Active(now time.Time) bool {
	return t.RevokedAt == nil && now.Before(t.ExpiresAt)
}
