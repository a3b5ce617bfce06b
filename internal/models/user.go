package models

import (
	"time"

	"gorm.io/gorm"
)

const (
	SystemRoleAdmin = "admin"
	SystemRoleUser  = "user"

	AuthTypeLocal = "local"
	AuthTypeLDAP  = "ldap"
)

// User is an account that can hold roles in groups.
type User struct {
	ID        uint           `gorm:"primaryKey" json:"id"`
	Username  string         `gorm:"uniqueIndex;size:100;not null" json:"username"`
	Password  string         `gorm:"size:255" json:"-"` // empty for LDAP users
	Email     string         `gorm:"index;size:255" json:"email"`
	Nickname  string         `gorm:"size:100" json:"nickname"`
	Role      string         `gorm:"size:20;default:user" json:"role"`
	AuthType  string         `gorm:"size:20;default:local" json:"auth_type"`
	IsActive  bool           `gorm:"default:true" json:"is_active"`
	LastLogin *time.Time     `json:"last_login"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"-"`
}

func (User) TableName() string { return "users" }

func (u *User) DisplayName() string {
	if u.Nickname != "" {
		return u.Nickname
	}
	return u.Username
}
