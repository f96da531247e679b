package services

import (
	"fmt"
	"time"

	"nomad-gis/metrics"
	"nomad-gis/models"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type UnlockStatus int

const (
	UnlockCreated UnlockStatus = iota + 1
	UnlockAlreadyExists
)

func (s UnlockStatus) String() string {
	switch s {
	case UnlockCreated:
		return "created"
	case UnlockAlreadyExists:
		return "already_exists"
	default:
		return "unknown"
	}
}

// ProgressionLedger owns the (user, point) unlock facts. All methods take the
// caller's *gorm.DB so they compose into the caller's transaction.
type ProgressionLedger struct {
	Metrics *metrics.Metrics
}

func NewProgressionLedger(m *metrics.Metrics) *ProgressionLedger {
	return &ProgressionLedger{Metrics: m}
}

// TryRecordUnlock inserts the fact unless it already exists. The composite primary
// key decides concurrent races: the loser sees zero affected rows.
func (l *ProgressionLedger) TryRecordUnlock(tx *gorm.DB, userID, pointID string, at time.Time) (UnlockStatus, error) {
	fact := models.UserMapProgress{
		UserID:     userID,
		MapPointID: pointID,
		UnlockedAt: at.UTC(),
	}
	res := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&fact)
	if res.Error != nil {
		return 0, fmt.Errorf("record unlock %s/%s: %w", userID, pointID, res.Error)
	}
	if res.RowsAffected == 0 {
		l.Metrics.Race("unlock")
		return UnlockAlreadyExists, nil
	}
	return UnlockCreated, nil
}

func (l *ProgressionLedger) CountUnlocksForUser(tx *gorm.DB, userID string) (int64, error) {
	var n int64
	if err := tx.Model(&models.UserMapProgress{}).Where("user_id = ?", userID).Count(&n).Error; err != nil {
		return 0, fmt.Errorf("count unlocks for %s: %w", userID, err)
	}
	return n, nil
}

// ListUnlockedPointIDs returns the distinct ids of points the user has unlocked.
func (l *ProgressionLedger) ListUnlockedPointIDs(tx *gorm.DB, userID string) ([]string, error) {
	var ids []string
	if err := tx.Model(&models.UserMapProgress{}).
		Where("user_id = ?", userID).
		Order("map_point_id ASC").
		Pluck("map_point_id", &ids).Error; err != nil {
		return nil, fmt.Errorf("list unlocked points for %s: %w", userID, err)
	}
	return ids, nil
}
