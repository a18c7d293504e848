package models

import (
	"time"

	"gorm.io/gorm"
)

// User represents a board member. Passwords are stored as argon2id hashes only;
// rows imported from older deployments may still carry bcrypt hashes.
type User struct {
	ID           uint      `gorm:"primaryKey"`
	Username     string    `gorm:"size:64;uniqueIndex;not null"`
	Email        string    `gorm:"size:255;uniqueIndex;not null"`
	PasswordHash string    `gorm:"size:255;not null" json:"-"`
	Provider     string    `gorm:"size:32"`
	ProviderID   string    `gorm:"size:255"`
	CreatedAt    time.Time `gorm:"precision:3"`
	UpdatedAt    time.Time `gorm:"precision:3"`
	Posts        []Post    `gorm:"foreignKey:CreatorID" json:"-"`
}

// BeforeCreate hook ensures timestamps are set even when not provided.
func (u *User) BeforeCreate(tx *gorm.DB) error {
	now := Now()
	if u.CreatedAt.IsZero() {
		u.CreatedAt = now
	}
	u.UpdatedAt = now
	return nil
}

// BeforeUpdate ensures the UpdatedAt timestamp is refreshed.
func (u *User) BeforeUpdate(tx *gorm.DB) error {
	u.UpdatedAt = Now()
	return nil
}

// Now is the clock used for stored timestamps, truncated to the millisecond
// precision of the columns and of post cursors.
func Now() time.Time {
	return time.Now().UTC().Truncate(time.Millisecond)
}
