package services

import (
	"context"
	"fmt"
	"time"

	"nomad-gis/models"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

const DefaultLeaderboardSize = 10

// LeaderboardService materializes the top-N boards into leaderboard_entries.
// Readers only ever see a complete snapshot.
type LeaderboardService struct {
	DB   *gorm.DB
	Size int
	Log  *zap.Logger
	Now  func() time.Time
}

func NewLeaderboardService(db *gorm.DB, size int, log *zap.Logger) *LeaderboardService {
	if size <= 0 {
		size = DefaultLeaderboardSize
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &LeaderboardService{DB: db, Size: size, Log: log, Now: time.Now}
}

type leaderboardRow struct {
	UserID    string
	Username  string
	AvatarURL *string
	Level     int
	Score     int64
}

// TotalExperience is the lifetime XP implied by a level and the XP held inside it.
func TotalExperience(level int, experience int64) int64 {
	total := experience
	for l := 1; l < level; l++ {
		total += RequiredExperience(l)
	}
	return total
}

// Refresh rebuilds every board in one transaction.
func (s *LeaderboardService) Refresh(ctx context.Context) error {
	start := time.Now()
	now := s.Now().UTC()

	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("1 = 1").Delete(&models.LeaderboardEntry{}).Error; err != nil {
			return fmt.Errorf("clear leaderboard: %w", err)
		}
		for _, board := range models.LeaderboardBoards {
			rows, err := s.compute(tx, board)
			if err != nil {
				return err
			}
			if len(rows) == 0 {
				continue
			}
			entries := make([]models.LeaderboardEntry, 0, len(rows))
			for i, r := range rows {
				entries = append(entries, models.LeaderboardEntry{
					Board:       board,
					Rank:        i + 1,
					UserID:      r.UserID,
					Username:    r.Username,
					AvatarURL:   r.AvatarURL,
					Level:       r.Level,
					Score:       r.Score,
					RefreshedAt: now,
				})
			}
			if err := tx.Create(&entries).Error; err != nil {
				return fmt.Errorf("write %s leaderboard: %w", board, err)
			}
		}
		return nil
	})
	if err != nil {
		s.Log.Error("leaderboard refresh failed", zap.Error(err))
		return err
	}

	s.Log.Debug("leaderboard refreshed", zap.Duration("took", time.Since(start)))
	return nil
}

func (s *LeaderboardService) compute(tx *gorm.DB, board models.LeaderboardBoard) ([]leaderboardRow, error) {
	var rows []leaderboardRow
	switch board {
	case models.BoardExperience:
		var users []models.User
		if err := tx.Order("level DESC, experience DESC, id ASC").Limit(s.Size).Find(&users).Error; err != nil {
			return nil, fmt.Errorf("rank users by experience: %w", err)
		}
		for _, u := range users {
			rows = append(rows, leaderboardRow{
				UserID:    u.ID,
				Username:  u.Username,
				AvatarURL: u.AvatarURL,
				Level:     u.Level,
				Score:     TotalExperience(u.Level, u.Experience),
			})
		}
		return rows, nil

	case models.BoardPoints:
		err := tx.Table("users AS u").
			Select("u.id AS user_id, u.username, u.avatar_url, u.level, COUNT(p.map_point_id) AS score").
			Joins("JOIN user_map_progress p ON p.user_id = u.id").
			Where("u.deleted_at IS NULL").
			Group("u.id, u.username, u.avatar_url, u.level").
			Order("score DESC, u.id ASC").
			Limit(s.Size).
			Scan(&rows).Error
		if err != nil {
			return nil, fmt.Errorf("rank users by points: %w", err)
		}
		return rows, nil

	case models.BoardAchievements:
		err := tx.Table("users AS u").
			Select("u.id AS user_id, u.username, u.avatar_url, u.level, COUNT(ua.achievement_id) AS score").
			Joins("JOIN user_achievements ua ON ua.user_id = u.id AND ua.is_completed = ?", true).
			Where("u.deleted_at IS NULL").
			Group("u.id, u.username, u.avatar_url, u.level").
			Order("score DESC, u.id ASC").
			Limit(s.Size).
			Scan(&rows).Error
		if err != nil {
			return nil, fmt.Errorf("rank users by achievements: %w", err)
		}
		return rows, nil
	}
	return nil, fmt.Errorf("%w: unknown leaderboard %q", ErrValidation, board)
}

// Top returns the last snapshot of board, best rank first.
func (s *LeaderboardService) Top(ctx context.Context, board string) ([]models.LeaderboardEntry, error) {
	b := models.LeaderboardBoard(board)
	known := false
	for _, candidate := range models.LeaderboardBoards {
		if candidate == b {
			known = true
			break
		}
	}
	if !known {
		return nil, fmt.Errorf("%w: unknown leaderboard %q", ErrValidation, board)
	}

	entries := []models.LeaderboardEntry{}
	if err := s.DB.WithContext(ctx).Where("board = ?", b).Order("rank ASC").Find(&entries).Error; err != nil {
		return nil, fmt.Errorf("read %s leaderboard: %w", board, err)
	}
	return entries, nil
}
