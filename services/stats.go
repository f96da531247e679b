package services

import (
	"context"
	"fmt"
	"time"

	"nomad-gis/models"

	"gorm.io/gorm"
)

type DashboardStats struct {
	TotalUsers             int64 `json:"total_users"`
	TotalPoints            int64 `json:"total_points"`
	TotalMessages          int64 `json:"total_messages"`
	TotalUnlocks           int64 `json:"total_unlocks"`
	CompletedAchievements  int64 `json:"completed_achievements"`
	NewUsersLast24Hours    int64 `json:"new_users_last_24h"`
	NewMessagesLast24Hours int64 `json:"new_messages_last_24h"`
}

type StatsService struct {
	DB  *gorm.DB
	Now func() time.Time
}

func NewStatsService(db *gorm.DB) *StatsService {
	return &StatsService{DB: db, Now: time.Now}
}

func (s *StatsService) Collect(ctx context.Context) (*DashboardStats, error) {
	db := s.DB.WithContext(ctx)
	since := s.Now().UTC().Add(-24 * time.Hour)

	var st DashboardStats
	counts := []struct {
		name  string
		query *gorm.DB
		dest  *int64
	}{
		{"users", db.Model(&models.User{}), &st.TotalUsers},
		{"points", db.Model(&models.MapPoint{}), &st.TotalPoints},
		{"messages", db.Model(&models.Message{}), &st.TotalMessages},
		{"unlocks", db.Model(&models.UserMapProgress{}), &st.TotalUnlocks},
		{"achievements", db.Model(&models.UserAchievement{}).Where("is_completed = ?", true), &st.CompletedAchievements},
		{"new users", db.Model(&models.User{}).Where("created_at >= ?", since), &st.NewUsersLast24Hours},
		{"new messages", db.Model(&models.Message{}).Where("created_at >= ?", since), &st.NewMessagesLast24Hours},
	}
	for _, c := range counts {
		if err := c.query.Count(c.dest).Error; err != nil {
			return nil, fmt.Errorf("count %s: %w", c.name, err)
		}
	}
	return &st, nil
}
