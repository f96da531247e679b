package services

import (
	"time"

	"nomad-gis/models"
)

// UserSnapshot is the user state returned after a gameplay event.
type UserSnapshot struct {
	ID                  string  `json:"id"`
	Username            string  `json:"username"`
	Email               string  `json:"email"`
	AvatarURL           *string `json:"avatar_url,omitempty"`
	Experience          int64   `json:"experience"`
	Level               int     `json:"level"`
	Rank                string  `json:"rank"`
	NextLevelExperience int64   `json:"next_level_experience"`
}

func snapshotOf(u *models.User) *UserSnapshot {
	if u == nil {
		return nil
	}
	return &UserSnapshot{
		ID:                  u.ID,
		Username:            u.Username,
		Email:               u.Email,
		AvatarURL:           u.AvatarURL,
		Experience:          u.Experience,
		Level:               u.Level,
		Rank:                RankName(RankForLevel(u.Level)),
		NextLevelExperience: RequiredExperience(u.Level),
	}
}

type AchievementSummary struct {
	ID            string  `json:"id"`
	Code          string  `json:"code"`
	Title         string  `json:"title"`
	Description   string  `json:"description"`
	RewardPoints  int64   `json:"reward_points"`
	BadgeImageURL *string `json:"badge_image_url,omitempty"`
}

func summarize(achievements []models.Achievement) []AchievementSummary {
	out := make([]AchievementSummary, 0, len(achievements))
	for _, a := range achievements {
		out = append(out, AchievementSummary{
			ID:            a.ID,
			Code:          a.Code,
			Title:         a.Title,
			Description:   a.Description,
			RewardPoints:  a.RewardPoints,
			BadgeImageURL: a.BadgeImageURL,
		})
	}
	return out
}

type MessageView struct {
	ID                   string    `json:"id"`
	Content              string    `json:"content"`
	CreatedAt            time.Time `json:"created_at"`
	UserID               string    `json:"user_id"`
	Username             string    `json:"username"`
	AvatarURL            *string   `json:"avatar_url,omitempty"`
	MapPointID           string    `json:"map_point_id"`
	LikesCount           int64     `json:"likes_count"`
	IsLikedByCurrentUser bool      `json:"is_liked_by_current_user"`
}

// GameEventOutcome is what every orchestrator call returns. Success=false with a
// nil error is a normal result (e.g. nothing to unlock nearby).
type GameEventOutcome struct {
	Success              bool                 `json:"success"`
	Message              string               `json:"message"`
	ExperienceGained     int64                `json:"experience_gained"`
	LeveledUp            bool                 `json:"leveled_up"`
	User                 *UserSnapshot        `json:"user,omitempty"`
	UnlockedAchievements []AchievementSummary `json:"unlocked_achievements"`
	UnlockedPointID      *string              `json:"unlocked_point_id,omitempty"`
	CreatedMessage       *MessageView         `json:"created_message,omitempty"`
	IsLiked              *bool                `json:"is_liked,omitempty"`
}
