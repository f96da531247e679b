package services

import (
	"errors"
	"fmt"
	"sort"

	"nomad-gis/models"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// lockUser loads a user row with FOR UPDATE so that concurrent calls for the same
// user are linearized for the rest of the transaction.
func lockUser(tx *gorm.DB, userID string) (*models.User, error) {
	var u models.User
	err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).Where("id = ?", userID).First(&u).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("%w: user %s", ErrNotFound, userID)
	}
	if err != nil {
		return nil, fmt.Errorf("load user %s: %w", userID, err)
	}
	return &u, nil
}

// lockUsers locks several users in id order, which keeps two transactions that
// touch the same pair of users from deadlocking. Missing ids are simply absent
// from the result.
func lockUsers(tx *gorm.DB, userIDs ...string) (map[string]*models.User, error) {
	seen := make(map[string]struct{}, len(userIDs))
	ids := make([]string, 0, len(userIDs))
	for _, id := range userIDs {
		if _, ok := seen[id]; ok || id == "" {
			continue
		}
		seen[id] = struct{}{}
		ids = append(ids, id)
	}
	sort.Strings(ids)

	var users []models.User
	if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("id IN ?", ids).
		Order("id ASC").
		Find(&users).Error; err != nil {
		return nil, fmt.Errorf("lock users: %w", err)
	}

	out := make(map[string]*models.User, len(users))
	for i := range users {
		out[users[i].ID] = &users[i]
	}
	return out, nil
}

// saveProgress persists the two columns owned by the experience engine.
func saveProgress(tx *gorm.DB, u *models.User) error {
	if err := tx.Model(&models.User{}).
		Where("id = ?", u.ID).
		Updates(map[string]interface{}{
			"experience": u.Experience,
			"level":      u.Level,
		}).Error; err != nil {
		return fmt.Errorf("save progress for %s: %w", u.ID, err)
	}
	return nil
}
