package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"nomad-gis/metrics"
	"nomad-gis/models"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

// DefaultUnlockXP is the flat reward for unlocking a point.
const DefaultUnlockXP int64 = 100

type UnlockOrchestrator struct {
	DB           *gorm.DB
	Ledger       *ProgressionLedger
	Achievements *AchievementEngine
	BaseXP       int64
	Log          *zap.Logger
	Metrics      *metrics.Metrics
	Now          func() time.Time
}

func NewUnlockOrchestrator(db *gorm.DB, ledger *ProgressionLedger, achievements *AchievementEngine, baseXP int64, log *zap.Logger, m *metrics.Metrics) *UnlockOrchestrator {
	if log == nil {
		log = zap.NewNop()
	}
	return &UnlockOrchestrator{
		DB:           db,
		Ledger:       ledger,
		Achievements: achievements,
		BaseXP:       baseXP,
		Log:          log,
		Metrics:      m,
		Now:          time.Now,
	}
}

// CheckAndUnlock unlocks at most one not-yet-unlocked point whose radius contains
// (lat, lon). Candidates are scanned in point id order. The unlock fact, base XP
// and any achievement grants commit together or not at all.
func (o *UnlockOrchestrator) CheckAndUnlock(ctx context.Context, userID string, lat, lon float64) (*GameEventOutcome, error) {
	here := Location{Latitude: lat, Longitude: lon}
	if err := here.Validate(); err != nil {
		return nil, err
	}

	var out *GameEventOutcome
	err := o.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		user, err := lockUser(tx, userID)
		if err != nil {
			return err
		}

		unlocked := tx.Model(&models.UserMapProgress{}).Select("map_point_id").Where("user_id = ?", userID)
		var candidates []models.MapPoint
		if err := tx.Where("id NOT IN (?)", unlocked).Order("id ASC").Find(&candidates).Error; err != nil {
			return fmt.Errorf("load candidate points: %w", err)
		}

		var point *models.MapPoint
		for i := range candidates {
			p := &candidates[i]
			if !IsWithinRadius(here, Location{Latitude: p.Latitude, Longitude: p.Longitude}, p.UnlockRadiusMeters) {
				continue
			}
			status, err := o.Ledger.TryRecordUnlock(tx, userID, p.ID, o.Now())
			if err != nil {
				return err
			}
			if status == UnlockAlreadyExists {
				continue
			}
			point = p
			break
		}

		if point == nil {
			out = &GameEventOutcome{
				Success:              false,
				Message:              "No new points nearby.",
				User:                 snapshotOf(user),
				UnlockedAchievements: []AchievementSummary{},
			}
			return nil
		}

		lvl := AddExperience(user, o.BaseXP)

		total, err := o.Ledger.CountUnlocksForUser(tx, userID)
		if err != nil {
			return err
		}
		eval, err := o.Achievements.Evaluate(tx, user, PointUnlocked{TotalPointsUnlocked: total})
		if err != nil {
			return err
		}

		if err := saveProgress(tx, user); err != nil {
			return err
		}

		pointID := point.ID
		out = &GameEventOutcome{
			Success:              true,
			Message:              fmt.Sprintf("You unlocked %s!", point.Name),
			ExperienceGained:     o.BaseXP + eval.ExperienceAwarded,
			LeveledUp:            lvl.LeveledUp || eval.LeveledUp,
			User:                 snapshotOf(user),
			UnlockedAchievements: summarize(eval.Granted),
			UnlockedPointID:      &pointID,
		}
		return nil
	})
	if err != nil {
		if !errors.Is(err, ErrNotFound) {
			o.Log.Error("unlock failed", zap.String("user_id", userID), zap.String("event", string(EventPointUnlocked)), zap.Error(err))
		}
		return nil, err
	}

	if out.Success {
		o.Metrics.Unlocked()
		o.Metrics.Experience("unlock", o.BaseXP)
		o.Metrics.Experience("achievement", out.ExperienceGained-o.BaseXP)
		o.Log.Info("point unlocked",
			zap.String("user_id", userID),
			zap.String("point_id", *out.UnlockedPointID),
			zap.Int64("xp", out.ExperienceGained),
			zap.Int("achievements", len(out.UnlockedAchievements)),
		)
	}
	return out, nil
}
