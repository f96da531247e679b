package models

import (
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// User is the local identity + progression row. Profile columns are owned by the
// identity service (mirrored by the sync worker); Experience and Level are only
// ever written by the experience engine.
type User struct {
	ID         string  `gorm:"primaryKey;type:uuid" json:"id"`
	Username   string  `gorm:"uniqueIndex;size:100;not null" json:"username"`
	Email      string  `gorm:"uniqueIndex;size:200;not null" json:"email"`
	AvatarURL  *string `json:"avatar_url,omitempty"`
	Role       string  `gorm:"size:50;not null;default:'User'" json:"role"`
	Experience int64   `gorm:"not null;default:0;check:experience >= 0" json:"experience"`
	Level      int     `gorm:"not null;default:1;check:level >= 1" json:"level"`

	Timestamps
}

const (
	RoleUser  = "User"
	RoleAdmin = "Admin"
)

func (u *User) BeforeCreate(tx *gorm.DB) error {
	if u.ID == "" {
		u.ID = uuid.NewString()
	}
	if u.Level < 1 {
		u.Level = 1
	}
	if u.Role == "" {
		u.Role = RoleUser
	}
	return nil
}
