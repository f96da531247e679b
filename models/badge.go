package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Achievement: static catalog entry, managed by admins, read-only for the engine.
type Achievement struct {
	ID            string    `gorm:"primaryKey;type:uuid" json:"id"`
	Code          string    `gorm:"uniqueIndex;size:100;not null" json:"code"` // e.g., "OPEN_1_POINT"
	Title         string    `gorm:"size:150;not null" json:"title"`
	Description   string    `gorm:"type:text" json:"description"`
	RewardPoints  int64     `gorm:"not null;default:0;check:reward_points >= 0" json:"reward_points"`
	BadgeImageURL *string   `gorm:"type:text" json:"badge_image_url,omitempty"` // R2 URL
	CreatedAt     time.Time `gorm:"autoCreateTime" json:"created_at"`
}

func (a *Achievement) BeforeCreate(tx *gorm.DB) error {
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	return nil
}

// UserAchievement: awarded instance. Composite key => at most one grant per user per achievement.
type UserAchievement struct {
	UserID        string     `gorm:"primaryKey;type:uuid" json:"user_id"`
	AchievementID string     `gorm:"primaryKey;type:uuid;index" json:"achievement_id"`
	IsCompleted   bool       `gorm:"not null;default:false" json:"is_completed"`
	CompletedAt   *time.Time `json:"completed_at,omitempty"`
	Progress      int64      `gorm:"not null;default:0" json:"progress"`
}

// Achievement codes referenced by the rule table.
const (
	AchievementOpen1Point     = "OPEN_1_POINT"
	AchievementOpen10Points   = "OPEN_10_POINTS"
	AchievementOpen50Points   = "OPEN_50_POINTS"
	AchievementFirstComment   = "FIRST_COMMENT"
	AchievementFirstLike      = "FIRST_LIKE"
	AchievementMessage1Like   = "MESSAGE_1_LIKE"
	AchievementMessage5Likes  = "MESSAGE_5_LIKES"
	AchievementMessage10Likes = "MESSAGE_10_LIKES"
)

// DefaultAchievements is seeded at startup for any code missing from the catalog.
var DefaultAchievements = []Achievement{
	{
		Code:         AchievementOpen1Point,
		Title:        "First Steps",
		Description:  "Unlocked your first point",
		RewardPoints: 50,
	},
	{
		Code:         AchievementOpen10Points,
		Title:        "Explorer",
		Description:  "Unlocked 10 points",
		RewardPoints: 200,
	},
	{
		Code:         AchievementOpen50Points,
		Title:        "Nomad",
		Description:  "Unlocked 50 points",
		RewardPoints: 1000,
	},
	{
		Code:         AchievementFirstComment,
		Title:        "Say Something",
		Description:  "Posted your first message",
		RewardPoints: 25,
	},
	{
		Code:         AchievementFirstLike,
		Title:        "Appreciator",
		Description:  "Liked a message for the first time",
		RewardPoints: 10,
	},
	{
		Code:         AchievementMessage1Like,
		Title:        "Noticed",
		Description:  "One of your messages received a like",
		RewardPoints: 10,
	},
	{
		Code:         AchievementMessage5Likes,
		Title:        "Crowd Pleaser",
		Description:  "A message of yours received 5 likes",
		RewardPoints: 50,
	},
	{
		Code:         AchievementMessage10Likes,
		Title:        "Local Legend",
		Description:  "A message of yours received 10 likes",
		RewardPoints: 100,
	},
}

// AllModels lists every table owned by this service, in migration order.
func AllModels() []interface{} {
	return []interface{}{
		&User{},
		&MapPoint{},
		&UserMapProgress{},
		&Achievement{},
		&UserAchievement{},
		&Message{},
		&MessageLike{},
		&LeaderboardEntry{},
	}
}
