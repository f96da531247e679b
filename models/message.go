package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Message is a comment left on a map point.
type Message struct {
	ID         string    `gorm:"primaryKey;type:uuid" json:"id"`
	Content    string    `gorm:"type:text;not null" json:"content"`
	UserID     string    `gorm:"type:uuid;index;not null" json:"user_id"`
	MapPointID string    `gorm:"type:uuid;index;not null" json:"map_point_id"`
	CreatedAt  time.Time `gorm:"autoCreateTime;index" json:"created_at"`
}

func (m *Message) BeforeCreate(tx *gorm.DB) error {
	if m.ID == "" {
		m.ID = uuid.NewString()
	}
	return nil
}

// MessageLike: one row per (user, message). Toggled, never updated.
type MessageLike struct {
	UserID    string    `gorm:"primaryKey;type:uuid" json:"user_id"`
	MessageID string    `gorm:"primaryKey;type:uuid;index" json:"message_id"`
	LikedAt   time.Time `gorm:"not null" json:"liked_at"`
}
