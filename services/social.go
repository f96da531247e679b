package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"nomad-gis/metrics"
	"nomad-gis/models"

	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const MaxMessageLength = 1000

type SocialEventOrchestrator struct {
	DB           *gorm.DB
	Achievements *AchievementEngine
	Log          *zap.Logger
	Metrics      *metrics.Metrics
	Now          func() time.Time
}

func NewSocialEventOrchestrator(db *gorm.DB, achievements *AchievementEngine, log *zap.Logger, m *metrics.Metrics) *SocialEventOrchestrator {
	if log == nil {
		log = zap.NewNop()
	}
	return &SocialEventOrchestrator{DB: db, Achievements: achievements, Log: log, Metrics: m, Now: time.Now}
}

// PostMessage stores a message on a point and evaluates the poster's message rules.
func (s *SocialEventOrchestrator) PostMessage(ctx context.Context, userID, pointID, content string) (*GameEventOutcome, error) {
	content = strings.TrimSpace(content)
	if content == "" {
		return nil, fmt.Errorf("%w: message content is required", ErrValidation)
	}
	if utf8.RuneCountInString(content) > MaxMessageLength {
		return nil, fmt.Errorf("%w: message exceeds %d characters", ErrValidation, MaxMessageLength)
	}

	var out *GameEventOutcome
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		user, err := lockUser(tx, userID)
		if err != nil {
			return err
		}

		var point models.MapPoint
		if err := tx.Select("id").Where("id = ?", pointID).First(&point).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return fmt.Errorf("%w: point %s", ErrNotFound, pointID)
			}
			return fmt.Errorf("load point %s: %w", pointID, err)
		}

		var posted int64
		if err := tx.Model(&models.Message{}).Where("user_id = ?", userID).Count(&posted).Error; err != nil {
			return fmt.Errorf("count messages for %s: %w", userID, err)
		}

		msg := models.Message{
			Content:    content,
			UserID:     userID,
			MapPointID: pointID,
			CreatedAt:  s.Now().UTC(),
		}
		if err := tx.Create(&msg).Error; err != nil {
			return fmt.Errorf("create message: %w", err)
		}

		eval, err := s.Achievements.Evaluate(tx, user, MessagePosted{TotalMessagesPosted: posted + 1})
		if err != nil {
			return err
		}
		if err := saveProgress(tx, user); err != nil {
			return err
		}

		out = &GameEventOutcome{
			Success:              true,
			Message:              "Message posted.",
			ExperienceGained:     eval.ExperienceAwarded,
			LeveledUp:            eval.LeveledUp,
			User:                 snapshotOf(user),
			UnlockedAchievements: summarize(eval.Granted),
			CreatedMessage: &MessageView{
				ID:         msg.ID,
				Content:    msg.Content,
				CreatedAt:  msg.CreatedAt,
				UserID:     user.ID,
				Username:   user.Username,
				AvatarURL:  user.AvatarURL,
				MapPointID: msg.MapPointID,
			},
		}
		return nil
	})
	if err != nil {
		s.logFailure(err, userID, EventMessagePosted)
		return nil, err
	}

	s.Metrics.Experience("achievement", out.ExperienceGained)
	return out, nil
}

// ToggleLike likes the message, or removes the like if userID already holds one.
// Removing a like never touches experience or grants. A self-like counts toward
// the liker's given-likes rules but never toward received likes.
func (s *SocialEventOrchestrator) ToggleLike(ctx context.Context, messageID, userID string) (*GameEventOutcome, error) {
	var (
		out    *GameEventOutcome
		action string
	)
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		// shared lock: deleteMessage holds FOR UPDATE, so a like cannot land on a deleted message
		var msg models.Message
		if err := tx.Clauses(clause.Locking{Strength: "SHARE"}).Where("id = ?", messageID).First(&msg).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return fmt.Errorf("%w: message %s", ErrNotFound, messageID)
			}
			return fmt.Errorf("load message %s: %w", messageID, err)
		}

		users, err := lockUsers(tx, userID, msg.UserID)
		if err != nil {
			return err
		}
		liker, ok := users[userID]
		if !ok {
			return fmt.Errorf("%w: user %s", ErrNotFound, userID)
		}

		removed := tx.Where("user_id = ? AND message_id = ?", userID, messageID).Delete(&models.MessageLike{})
		if removed.Error != nil {
			return fmt.Errorf("remove like: %w", removed.Error)
		}
		if removed.RowsAffected > 0 {
			action = "unlike"
			liked := false
			out = &GameEventOutcome{
				Success:              true,
				Message:              "Like removed.",
				User:                 snapshotOf(liker),
				UnlockedAchievements: []AchievementSummary{},
				IsLiked:              &liked,
			}
			return nil
		}

		var given int64
		if err := tx.Model(&models.MessageLike{}).Where("user_id = ?", userID).Count(&given).Error; err != nil {
			return fmt.Errorf("count likes by %s: %w", userID, err)
		}
		var received int64
		if err := tx.Model(&models.MessageLike{}).
			Where("message_id = ? AND user_id <> ?", messageID, msg.UserID).
			Count(&received).Error; err != nil {
			return fmt.Errorf("count likes on %s: %w", messageID, err)
		}

		like := models.MessageLike{UserID: userID, MessageID: messageID, LikedAt: s.Now().UTC()}
		res := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&like)
		if res.Error != nil {
			return fmt.Errorf("add like: %w", res.Error)
		}
		liked := true
		if res.RowsAffected == 0 {
			s.Metrics.Race("like")
			out = &GameEventOutcome{
				Success:              true,
				Message:              "Like added.",
				User:                 snapshotOf(liker),
				UnlockedAchievements: []AchievementSummary{},
				IsLiked:              &liked,
			}
			return nil
		}
		action = "like"

		likerEval, err := s.Achievements.Evaluate(tx, liker, MessageLiked{TotalMessagesLiked: given + 1})
		if err != nil {
			return err
		}
		if err := saveProgress(tx, liker); err != nil {
			return err
		}

		if author, ok := users[msg.UserID]; ok && msg.UserID != userID {
			authorEval, err := s.Achievements.Evaluate(tx, author, MessageLikeReceived{LikesOnThisMessage: received + 1})
			if err != nil {
				return err
			}
			if err := saveProgress(tx, author); err != nil {
				return err
			}
			s.Metrics.Experience("achievement", authorEval.ExperienceAwarded)
		}

		out = &GameEventOutcome{
			Success:              true,
			Message:              "Like added.",
			ExperienceGained:     likerEval.ExperienceAwarded,
			LeveledUp:            likerEval.LeveledUp,
			User:                 snapshotOf(liker),
			UnlockedAchievements: summarize(likerEval.Granted),
			IsLiked:              &liked,
		}
		return nil
	})
	if err != nil {
		s.logFailure(err, userID, EventMessageLiked)
		return nil, err
	}

	if action != "" {
		s.Metrics.Like(action)
	}
	s.Metrics.Experience("achievement", out.ExperienceGained)
	return out, nil
}

// ListMessagesByPoint returns a point's messages newest first. viewerID may be
// empty, in which case no message is reported as liked.
func (s *SocialEventOrchestrator) ListMessagesByPoint(ctx context.Context, pointID, viewerID string) ([]MessageView, error) {
	db := s.DB.WithContext(ctx)

	var exists int64
	if err := db.Model(&models.MapPoint{}).Where("id = ?", pointID).Count(&exists).Error; err != nil {
		return nil, fmt.Errorf("load point %s: %w", pointID, err)
	}
	if exists == 0 {
		return nil, fmt.Errorf("%w: point %s", ErrNotFound, pointID)
	}

	views := []MessageView{}
	err := db.Table("messages AS m").
		Select(`m.id, m.content, m.created_at, m.user_id, m.map_point_id, u.username, u.avatar_url,
			(SELECT COUNT(*) FROM message_likes ml WHERE ml.message_id = m.id) AS likes_count,
			EXISTS (SELECT 1 FROM message_likes mv WHERE mv.message_id = m.id AND mv.user_id = ?) AS is_liked_by_current_user`, viewerID).
		Joins("JOIN users u ON u.id = m.user_id").
		Where("m.map_point_id = ?", pointID).
		Order("m.created_at DESC, m.id DESC").
		Scan(&views).Error
	if err != nil {
		return nil, fmt.Errorf("list messages for %s: %w", pointID, err)
	}
	return views, nil
}

// DeleteMessage removes the caller's own message and its likes. Grants and XP
// earned through it are kept.
func (s *SocialEventOrchestrator) DeleteMessage(ctx context.Context, messageID, userID string) error {
	return s.deleteMessage(ctx, messageID, func(msg *models.Message) error {
		if msg.UserID != userID {
			return fmt.Errorf("%w: message %s is not owned by %s", ErrForbidden, messageID, userID)
		}
		return nil
	})
}

func (s *SocialEventOrchestrator) AdminDeleteMessage(ctx context.Context, messageID string) error {
	return s.deleteMessage(ctx, messageID, nil)
}

func (s *SocialEventOrchestrator) deleteMessage(ctx context.Context, messageID string, authorize func(*models.Message) error) error {
	return s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var msg models.Message
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).Where("id = ?", messageID).First(&msg).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return fmt.Errorf("%w: message %s", ErrNotFound, messageID)
			}
			return fmt.Errorf("load message %s: %w", messageID, err)
		}
		if authorize != nil {
			if err := authorize(&msg); err != nil {
				return err
			}
		}
		if err := tx.Where("message_id = ?", messageID).Delete(&models.MessageLike{}).Error; err != nil {
			return fmt.Errorf("delete likes of %s: %w", messageID, err)
		}
		if err := tx.Delete(&models.Message{}, "id = ?", messageID).Error; err != nil {
			return fmt.Errorf("delete message %s: %w", messageID, err)
		}
		s.Log.Info("message deleted", zap.String("message_id", messageID), zap.String("user_id", msg.UserID))
		return nil
	})
}

func (s *SocialEventOrchestrator) logFailure(err error, userID string, event EventKind) {
	if errors.Is(err, ErrNotFound) || errors.Is(err, ErrValidation) || errors.Is(err, ErrForbidden) {
		return
	}
	s.Log.Error("social event failed", zap.String("user_id", userID), zap.String("event", string(event)), zap.Error(err))
}
