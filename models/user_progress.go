package models

import (
	"time"

	"gorm.io/gorm"
)

// UserMapProgress is an unlock fact. The composite primary key is the storage-level
// guarantee that a (user, point) pair is recorded at most once.
type UserMapProgress struct {
	UserID     string    `gorm:"primaryKey;type:uuid" json:"user_id"`
	MapPointID string    `gorm:"primaryKey;type:uuid;index" json:"map_point_id"`
	UnlockedAt time.Time `gorm:"not null" json:"unlocked_at"`
}

func (UserMapProgress) TableName() string {
	return "user_map_progress"
}

// Timestamps adds GORM auto-times
type Timestamps struct {
	CreatedAt time.Time      `json:"created_at" gorm:"autoCreateTime"`
	UpdatedAt time.Time      `json:"updated_at" gorm:"autoUpdateTime"`
	DeletedAt gorm.DeletedAt `json:"-" gorm:"index"`
}
