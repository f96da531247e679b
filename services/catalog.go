package services

import (
	"context"
	"errors"
	"fmt"
	"math"
	"mime/multipart"
	"strings"
	"unicode/utf8"

	"nomad-gis/models"

	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// BadgeStorage stores achievement badge images and returns their public URL.
type BadgeStorage interface {
	UploadBadge(ctx context.Context, code string, file *multipart.FileHeader) (string, error)
	DeleteBadge(ctx context.Context, url string) error
}

// CatalogService manages the admin-owned achievement and map point catalogs.
type CatalogService struct {
	DB     *gorm.DB
	Badges BadgeStorage // nil when object storage is not configured
	Log    *zap.Logger
}

func NewCatalogService(db *gorm.DB, badges BadgeStorage, log *zap.Logger) *CatalogService {
	if log == nil {
		log = zap.NewNop()
	}
	return &CatalogService{DB: db, Badges: badges, Log: log}
}

// EnsureDefaultAchievements inserts every default achievement whose code is
// missing. Existing rows are left alone so admin edits survive restarts.
func (s *CatalogService) EnsureDefaultAchievements(ctx context.Context) (int64, error) {
	defaults := make([]models.Achievement, len(models.DefaultAchievements))
	copy(defaults, models.DefaultAchievements)

	res := s.DB.WithContext(ctx).
		Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "code"}}, DoNothing: true}).
		Create(&defaults)
	if res.Error != nil {
		return 0, fmt.Errorf("seed achievements: %w", res.Error)
	}
	if res.RowsAffected > 0 {
		s.Log.Info("seeded default achievements", zap.Int64("count", res.RowsAffected))
	}
	return res.RowsAffected, nil
}

func (s *CatalogService) ListAchievements(ctx context.Context) ([]models.Achievement, error) {
	var out []models.Achievement
	if err := s.DB.WithContext(ctx).Order("code ASC").Find(&out).Error; err != nil {
		return nil, fmt.Errorf("list achievements: %w", err)
	}
	return out, nil
}

type CreateAchievementInput struct {
	Code         string
	Title        string
	Description  string
	RewardPoints int64
	Badge        *multipart.FileHeader
}

func (s *CatalogService) CreateAchievement(ctx context.Context, in CreateAchievementInput) (*models.Achievement, error) {
	code := strings.ToUpper(strings.TrimSpace(in.Code))
	title := strings.TrimSpace(in.Title)
	switch {
	case code == "":
		return nil, fmt.Errorf("%w: code is required", ErrValidation)
	case title == "":
		return nil, fmt.Errorf("%w: title is required", ErrValidation)
	case in.RewardPoints < 0:
		return nil, fmt.Errorf("%w: reward_points must be >= 0", ErrValidation)
	case in.RewardPoints > MaxExperienceGain:
		return nil, fmt.Errorf("%w: reward_points must be at most %d", ErrValidation, MaxExperienceGain)
	case in.Badge != nil && s.Badges == nil:
		return nil, fmt.Errorf("%w: badge storage is not configured", ErrValidation)
	}

	db := s.DB.WithContext(ctx)
	var taken int64
	if err := db.Model(&models.Achievement{}).Where("code = ?", code).Count(&taken).Error; err != nil {
		return nil, fmt.Errorf("check achievement code: %w", err)
	}
	if taken > 0 {
		return nil, fmt.Errorf("%w: achievement %s", ErrConflict, code)
	}

	a := models.Achievement{
		Code:         code,
		Title:        title,
		Description:  strings.TrimSpace(in.Description),
		RewardPoints: in.RewardPoints,
	}
	if in.Badge != nil {
		url, err := s.Badges.UploadBadge(ctx, code, in.Badge)
		if err != nil {
			return nil, fmt.Errorf("upload badge for %s: %w", code, err)
		}
		a.BadgeImageURL = &url
	}

	if err := db.Create(&a).Error; err != nil {
		return nil, fmt.Errorf("create achievement %s: %w", code, err)
	}
	s.Log.Info("achievement created", zap.String("code", code), zap.Int64("reward_points", a.RewardPoints))
	return &a, nil
}

// DeleteAchievement removes the achievement and its grants. Badge cleanup is
// best-effort and runs after the commit.
func (s *CatalogService) DeleteAchievement(ctx context.Context, id string) error {
	var a models.Achievement
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("id = ?", id).First(&a).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return fmt.Errorf("%w: achievement %s", ErrNotFound, id)
			}
			return fmt.Errorf("load achievement %s: %w", id, err)
		}
		if err := tx.Where("achievement_id = ?", id).Delete(&models.UserAchievement{}).Error; err != nil {
			return fmt.Errorf("delete grants of %s: %w", id, err)
		}
		return tx.Delete(&models.Achievement{}, "id = ?", id).Error
	})
	if err != nil {
		return err
	}

	if a.BadgeImageURL != nil && s.Badges != nil {
		if err := s.Badges.DeleteBadge(ctx, *a.BadgeImageURL); err != nil {
			s.Log.Warn("badge cleanup failed", zap.String("code", a.Code), zap.Error(err))
		}
	}
	s.Log.Info("achievement deleted", zap.String("code", a.Code))
	return nil
}

func (s *CatalogService) ListMapPoints(ctx context.Context) ([]models.MapPoint, error) {
	var out []models.MapPoint
	if err := s.DB.WithContext(ctx).Order("name ASC, id ASC").Find(&out).Error; err != nil {
		return nil, fmt.Errorf("list map points: %w", err)
	}
	return out, nil
}

type CreateMapPointInput struct {
	Name               string  `json:"name"`
	Latitude           float64 `json:"latitude"`
	Longitude          float64 `json:"longitude"`
	UnlockRadiusMeters float64 `json:"unlock_radius_meters"`
	Description        *string `json:"description,omitempty"`
}

func (s *CatalogService) CreateMapPoint(ctx context.Context, in CreateMapPointInput) (*models.MapPoint, error) {
	name := strings.TrimSpace(in.Name)
	if name == "" || utf8.RuneCountInString(name) > 150 {
		return nil, fmt.Errorf("%w: name must be 1-150 characters", ErrValidation)
	}
	if err := (Location{Latitude: in.Latitude, Longitude: in.Longitude}).Validate(); err != nil {
		return nil, err
	}
	if math.IsNaN(in.UnlockRadiusMeters) || math.IsInf(in.UnlockRadiusMeters, 0) || in.UnlockRadiusMeters <= 0 {
		return nil, fmt.Errorf("%w: unlock_radius_meters must be positive", ErrValidation)
	}

	p := models.MapPoint{
		Name:               name,
		Latitude:           in.Latitude,
		Longitude:          in.Longitude,
		UnlockRadiusMeters: in.UnlockRadiusMeters,
		Description:        in.Description,
	}
	if err := s.DB.WithContext(ctx).Create(&p).Error; err != nil {
		return nil, fmt.Errorf("create map point: %w", err)
	}
	s.Log.Info("map point created", zap.String("point_id", p.ID), zap.String("name", p.Name))
	return &p, nil
}
