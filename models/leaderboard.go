package models

import "time"

type LeaderboardBoard string

const (
	BoardExperience   LeaderboardBoard = "experience"
	BoardPoints       LeaderboardBoard = "points"
	BoardAchievements LeaderboardBoard = "achievements"
)

var LeaderboardBoards = []LeaderboardBoard{BoardExperience, BoardPoints, BoardAchievements}

// LeaderboardEntry is one row of a materialized leaderboard snapshot.
// Rebuilt wholesale by the scheduler; never edited in place.
type LeaderboardEntry struct {
	Board       LeaderboardBoard `gorm:"primaryKey;size:32" json:"board"`
	Rank        int              `gorm:"primaryKey" json:"rank"`
	UserID      string           `gorm:"type:uuid;not null" json:"user_id"`
	Username    string           `gorm:"not null" json:"username"`
	AvatarURL   *string          `json:"avatar_url,omitempty"`
	Level       int              `json:"level"`
	Score       int64            `json:"score"`
	RefreshedAt time.Time        `gorm:"not null" json:"refreshed_at"`
}
