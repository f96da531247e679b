package services

import (
	"errors"
	"fmt"
	"time"

	"nomad-gis/metrics"
	"nomad-gis/models"

	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type EventKind string

const (
	EventPointUnlocked       EventKind = "point_unlocked"
	EventMessagePosted       EventKind = "message_posted"
	EventMessageLiked        EventKind = "message_liked"
	EventMessageLikeReceived EventKind = "message_like_received"
)

// AchievementEvent is closed over the four types below; each carries only the
// post-event counter its rules look at.
type AchievementEvent interface {
	Kind() EventKind
	counter() int64
}

// PointUnlocked: TotalPointsUnlocked includes the unlock that just happened.
type PointUnlocked struct{ TotalPointsUnlocked int64 }

// MessagePosted: TotalMessagesPosted includes the new message.
type MessagePosted struct{ TotalMessagesPosted int64 }

// MessageLiked: TotalMessagesLiked is the liker's like count including the new like.
type MessageLiked struct{ TotalMessagesLiked int64 }

// MessageLikeReceived: LikesOnThisMessage excludes self-likes and includes the new like.
type MessageLikeReceived struct{ LikesOnThisMessage int64 }

func (PointUnlocked) Kind() EventKind       { return EventPointUnlocked }
func (MessagePosted) Kind() EventKind       { return EventMessagePosted }
func (MessageLiked) Kind() EventKind        { return EventMessageLiked }
func (MessageLikeReceived) Kind() EventKind { return EventMessageLikeReceived }

func (e PointUnlocked) counter() int64       { return e.TotalPointsUnlocked }
func (e MessagePosted) counter() int64       { return e.TotalMessagesPosted }
func (e MessageLiked) counter() int64        { return e.TotalMessagesLiked }
func (e MessageLikeReceived) counter() int64 { return e.LikesOnThisMessage }

type achievementRule struct {
	Threshold int64
	Code      string
}

// achievementRules fire on exact equality so each code is attempted once as the
// counter passes through its threshold.
var achievementRules = map[EventKind][]achievementRule{
	EventPointUnlocked: {
		{Threshold: 1, Code: models.AchievementOpen1Point},
		{Threshold: 10, Code: models.AchievementOpen10Points},
		{Threshold: 50, Code: models.AchievementOpen50Points},
	},
	EventMessagePosted: {
		{Threshold: 1, Code: models.AchievementFirstComment},
	},
	EventMessageLiked: {
		{Threshold: 1, Code: models.AchievementFirstLike},
	},
	EventMessageLikeReceived: {
		{Threshold: 1, Code: models.AchievementMessage1Like},
		{Threshold: 5, Code: models.AchievementMessage5Likes},
		{Threshold: 10, Code: models.AchievementMessage10Likes},
	},
}

// RuleCodes lists every achievement code the rule table can grant.
func RuleCodes() []string {
	var codes []string
	for _, kind := range []EventKind{EventPointUnlocked, EventMessagePosted, EventMessageLiked, EventMessageLikeReceived} {
		for _, r := range achievementRules[kind] {
			codes = append(codes, r.Code)
		}
	}
	return codes
}

type EvaluationResult struct {
	Granted           []models.Achievement
	ExperienceAwarded int64
	LeveledUp         bool
}

type AchievementEngine struct {
	Log     *zap.Logger
	Metrics *metrics.Metrics
	Now     func() time.Time
}

func NewAchievementEngine(log *zap.Logger, m *metrics.Metrics) *AchievementEngine {
	if log == nil {
		log = zap.NewNop()
	}
	return &AchievementEngine{Log: log, Metrics: m, Now: time.Now}
}

// Evaluate grants every achievement whose threshold equals the event counter and
// that user does not hold yet. Reward XP is applied to user in memory; the caller
// must be holding the user's row lock inside tx and persists user afterwards.
func (e *AchievementEngine) Evaluate(tx *gorm.DB, user *models.User, event AchievementEvent) (EvaluationResult, error) {
	var res EvaluationResult
	if user == nil || event == nil {
		return res, nil
	}

	count := event.counter()
	for _, rule := range achievementRules[event.Kind()] {
		if count != rule.Threshold {
			continue
		}
		achievement, granted, err := e.grant(tx, user, rule.Code, count)
		if err != nil {
			return EvaluationResult{}, err
		}
		if !granted {
			continue
		}

		res.Granted = append(res.Granted, *achievement)
		if achievement.RewardPoints > 0 {
			lvl := AddExperience(user, achievement.RewardPoints)
			res.ExperienceAwarded += achievement.RewardPoints
			res.LeveledUp = res.LeveledUp || lvl.LeveledUp
		}
	}
	return res, nil
}

func (e *AchievementEngine) grant(tx *gorm.DB, user *models.User, code string, progress int64) (*models.Achievement, bool, error) {
	var achievement models.Achievement
	if err := tx.Where("code = ?", code).First(&achievement).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			e.Log.Warn("achievement code not in catalog, skipping", zap.String("code", code), zap.String("user_id", user.ID))
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("load achievement %s: %w", code, err)
	}

	var existing models.UserAchievement
	err := tx.Where("user_id = ? AND achievement_id = ?", user.ID, achievement.ID).First(&existing).Error
	switch {
	case err == nil && existing.IsCompleted:
		return nil, false, nil
	case err == nil:
		return e.complete(tx, user, &achievement, progress)
	case !errors.Is(err, gorm.ErrRecordNotFound):
		return nil, false, fmt.Errorf("check grant %s for %s: %w", code, user.ID, err)
	}

	now := e.Now().UTC()
	row := models.UserAchievement{
		UserID:        user.ID,
		AchievementID: achievement.ID,
		IsCompleted:   true,
		CompletedAt:   &now,
		Progress:      progress,
	}
	res := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&row)
	if res.Error != nil {
		return nil, false, fmt.Errorf("grant %s to %s: %w", code, user.ID, res.Error)
	}
	if res.RowsAffected == 0 {
		e.Metrics.Race("grant")
		return nil, false, nil
	}

	e.Metrics.Granted(code)
	e.Log.Info("achievement granted", zap.String("user_id", user.ID), zap.String("code", code))
	return &achievement, true, nil
}

// complete flips a pre-existing in-progress row. The is_completed guard makes the
// flip happen at most once.
func (e *AchievementEngine) complete(tx *gorm.DB, user *models.User, achievement *models.Achievement, progress int64) (*models.Achievement, bool, error) {
	now := e.Now().UTC()
	res := tx.Model(&models.UserAchievement{}).
		Where("user_id = ? AND achievement_id = ? AND is_completed = ?", user.ID, achievement.ID, false).
		Updates(map[string]interface{}{
			"is_completed": true,
			"completed_at": now,
			"progress":     progress,
		})
	if res.Error != nil {
		return nil, false, fmt.Errorf("complete %s for %s: %w", achievement.Code, user.ID, res.Error)
	}
	if res.RowsAffected == 0 {
		e.Metrics.Race("grant")
		return nil, false, nil
	}
	e.Metrics.Granted(achievement.Code)
	e.Log.Info("achievement granted", zap.String("user_id", user.ID), zap.String("code", achievement.Code))
	return achievement, true, nil
}
