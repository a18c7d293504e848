package models

import (
	"time"

	"gorm.io/gorm"
)

// Post represents a board post created by a user.
type Post struct {
	ID        uint      `gorm:"primaryKey"`
	Title     string    `gorm:"size:255;not null"`
	Text      string    `gorm:"type:text;not null"`
	Points    int       `gorm:"not null;default:0"`
	CreatorID uint      `gorm:"index;not null"`
	Creator   User      `gorm:"foreignKey:CreatorID"`
	CreatedAt time.Time `gorm:"precision:3;index"`
	UpdatedAt time.Time `gorm:"precision:3"`
}

// BeforeCreate keeps CreatedAt at cursor precision.
func (p *Post) BeforeCreate(tx *gorm.DB) error {
	now := Now()
	if p.CreatedAt.IsZero() {
		p.CreatedAt = now
	}
	p.CreatedAt = p.CreatedAt.UTC().Truncate(time.Millisecond)
	p.UpdatedAt = now
	return nil
}
