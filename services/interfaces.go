package services

import (
	"context"
	"time"

	"github.com/cppla/gqlbbs/models"
	"github.com/cppla/gqlbbs/stores"
)

// UserRepository persists users. Lookups return stores.ErrNotFound when nothing matches.
type UserRepository interface {
	Create(ctx context.Context, u *models.User) error
	FindByID(ctx context.Context, id uint) (*models.User, error)
	FindByUsername(ctx context.Context, username string) (*models.User, error)
	FindByEmail(ctx context.Context, email string) (*models.User, error)
	FindByProvider(ctx context.Context, provider, providerID string) (*models.User, error)
	UsernameTaken(ctx context.Context, username string) (bool, error)
	UpdatePassword(ctx context.Context, id uint, hash string) error
}

// PostRepository persists posts.
type PostRepository interface {
	Create(ctx context.Context, p *models.Post) error
	List(ctx context.Context, limit int, before *time.Time) ([]models.Post, error)
	FindByID(ctx context.Context, id uint) (*models.Post, error)
}

// SessionRepository keeps sessions and reset tokens with a time to live.
type SessionRepository interface {
	CreateSession(ctx context.Context, userID uint, ttl time.Duration) (string, error)
	SessionUserID(ctx context.Context, sid string) (uint, bool, error)
	DestroySession(ctx context.Context, sid string) error
	SaveResetToken(ctx context.Context, userID uint, ttl time.Duration) (string, error)
	ConsumeResetToken(ctx context.Context, token string) (stores.ResetGrant, bool, error)
	RestoreResetToken(ctx context.Context, g stores.ResetGrant) error
}

// PasswordHasher hashes and verifies passwords.
type PasswordHasher interface {
	Hash(password string) (string, error)
	Verify(password, hash string) (bool, error)
	NeedsUpgrade(hash string) bool
}

// Mail is a single outgoing HTML message.
type Mail struct {
	To      string `json:"to"`
	Subject string `json:"subject"`
	HTML    string `json:"html"`
}

// Mailer hands a message to a delivery transport. Implementations may fail transiently.
type Mailer interface {
	Send(ctx context.Context, m Mail) error
}
