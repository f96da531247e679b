package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// MapPoint is a geo-tagged point of interest (WGS84).
type MapPoint struct {
	ID                 string    `gorm:"primaryKey;type:uuid" json:"id"`
	Name               string    `gorm:"size:150;not null" json:"name"`
	Latitude           float64   `gorm:"not null" json:"latitude"`
	Longitude          float64   `gorm:"not null" json:"longitude"`
	UnlockRadiusMeters float64   `gorm:"not null;check:unlock_radius_meters > 0" json:"unlock_radius_meters"`
	Description        *string   `gorm:"type:text" json:"description,omitempty"`
	CreatedAt          time.Time `gorm:"autoCreateTime" json:"created_at"`
}

func (p *MapPoint) BeforeCreate(tx *gorm.DB) error {
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	return nil
}
