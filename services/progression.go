package services

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"nomad-gis/metrics"
	"nomad-gis/models"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

// LevelConfig: XP needed for the *next* level (level 1 → 2 needs BaseXPPerLevel * 1^1.2)
const BaseXPPerLevel = 100

// RequiredExperience returns the XP needed to go from level to level+1.
// L_n = floor(BaseXPPerLevel * n^1.2), levels below 1 are treated as 1.
func RequiredExperience(level int) int64 {
	if level < 1 {
		level = 1
	}
	return int64(float64(BaseXPPerLevel) * math.Pow(float64(level), 1.2))
}

// RankThresholds: rank → min level. Display only, derived from level on read.
var RankThresholds = map[int]int{
	1: 1,   // Bronze (start)
	2: 10,  // Silver
	3: 25,  // Gold
	4: 50,  // Platinum
	5: 100, // Diamond
}

func RankForLevel(level int) int {
	for rank := 5; rank >= 1; rank-- {
		if level >= RankThresholds[rank] {
			return rank
		}
	}
	return 1
}

func RankName(rank int) string {
	switch rank {
	case 2:
		return "Silver"
	case 3:
		return "Gold"
	case 4:
		return "Platinum"
	case 5:
		return "Diamond"
	default:
		return "Bronze"
	}
}

// MaxExperienceGain caps a single credit. It bounds admin grants and
// achievement rewards and keeps the level rollover loop short.
const MaxExperienceGain int64 = 1_000_000

type LevelResult struct {
	LeveledUp    bool
	LevelsGained int
}

// AddExperience credits amount to u and rolls overflow into as many levels as it
// covers. Experience is stored relative to the current level. A non-positive
// amount is a no-op and amounts above MaxExperienceGain are capped. The caller
// persists u.
func AddExperience(u *models.User, amount int64) LevelResult {
	if u == nil || amount <= 0 {
		return LevelResult{}
	}
	if u.Level < 1 {
		u.Level = 1
	}
	if amount > MaxExperienceGain {
		amount = MaxExperienceGain
	}
	if u.Experience < 0 {
		u.Experience = 0
	}
	if u.Experience > math.MaxInt64-amount {
		amount = math.MaxInt64 - u.Experience
	}

	u.Experience += amount

	var res LevelResult
	for required := RequiredExperience(u.Level); u.Experience >= required; required = RequiredExperience(u.Level) {
		u.Experience -= required
		u.Level++
		res.LevelsGained++
	}
	res.LeveledUp = res.LevelsGained > 0
	return res
}

type ProgressionService struct {
	DB      *gorm.DB
	Ledger  *ProgressionLedger
	Log     *zap.Logger
	Metrics *metrics.Metrics
}

func NewProgressionService(db *gorm.DB, ledger *ProgressionLedger, log *zap.Logger, m *metrics.Metrics) *ProgressionService {
	if log == nil {
		log = zap.NewNop()
	}
	return &ProgressionService{DB: db, Ledger: ledger, Log: log, Metrics: m}
}

type CompletedAchievement struct {
	AchievementSummary
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

type ProgressView struct {
	User              *UserSnapshot          `json:"user"`
	UnlockedPointIDs  []string               `json:"unlocked_point_ids"`
	UnlockedCount     int                    `json:"unlocked_count"`
	Achievements      []CompletedAchievement `json:"achievements"`
	AchievementsCount int                    `json:"achievements_count"`
}

// GetProgress returns the user's level, unlocked points and completed achievements.
func (s *ProgressionService) GetProgress(ctx context.Context, userID string) (*ProgressView, error) {
	db := s.DB.WithContext(ctx)

	var user models.User
	if err := db.Where("id = ?", userID).First(&user).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: user %s", ErrNotFound, userID)
		}
		return nil, fmt.Errorf("load user %s: %w", userID, err)
	}

	pointIDs, err := s.Ledger.ListUnlockedPointIDs(db, userID)
	if err != nil {
		return nil, err
	}

	var rows []struct {
		models.Achievement
		CompletedAt *time.Time
	}
	if err := db.Table("user_achievements AS ua").
		Select("a.*, ua.completed_at").
		Joins("JOIN achievements a ON a.id = ua.achievement_id").
		Where("ua.user_id = ? AND ua.is_completed = ?", userID, true).
		Order("ua.completed_at ASC, a.code ASC").
		Scan(&rows).Error; err != nil {
		return nil, fmt.Errorf("load achievements for %s: %w", userID, err)
	}

	completed := make([]CompletedAchievement, 0, len(rows))
	for _, r := range rows {
		completed = append(completed, CompletedAchievement{
			AchievementSummary: summarize([]models.Achievement{r.Achievement})[0],
			CompletedAt:        r.CompletedAt,
		})
	}
	if pointIDs == nil {
		pointIDs = []string{}
	}

	return &ProgressView{
		User:              snapshotOf(&user),
		UnlockedPointIDs:  pointIDs,
		UnlockedCount:     len(pointIDs),
		Achievements:      completed,
		AchievementsCount: len(completed),
	}, nil
}

// GrantExperience is the admin XP grant. Unlike AddExperience, amounts outside
// 1..MaxExperienceGain are rejected since they are caller input.
func (s *ProgressionService) GrantExperience(ctx context.Context, userID string, amount int64, reason string) (*UserSnapshot, LevelResult, error) {
	if amount <= 0 {
		return nil, LevelResult{}, fmt.Errorf("%w: xp amount must be positive, got %d", ErrValidation, amount)
	}
	if amount > MaxExperienceGain {
		return nil, LevelResult{}, fmt.Errorf("%w: xp amount must be at most %d, got %d", ErrValidation, MaxExperienceGain, amount)
	}

	var (
		snapshot *UserSnapshot
		result   LevelResult
	)
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		user, err := lockUser(tx, userID)
		if err != nil {
			return err
		}
		result = AddExperience(user, amount)
		if err := saveProgress(tx, user); err != nil {
			return err
		}
		snapshot = snapshotOf(user)
		return nil
	})
	if err != nil {
		if !errors.Is(err, ErrNotFound) {
			s.Log.Error("xp grant failed", zap.String("user_id", userID), zap.String("event", "admin_grant"), zap.Error(err))
		}
		return nil, LevelResult{}, err
	}

	s.Metrics.Experience("admin", amount)
	s.Log.Info("xp awarded",
		zap.String("user_id", userID),
		zap.Int64("xp", amount),
		zap.Int("level", snapshot.Level),
		zap.String("reason", reason),
	)
	return snapshot, result, nil
}
