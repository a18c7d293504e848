package stores

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

const oauthStatePrefix = "oauth:state:"

// OAuthStateStore keeps single-use OAuth state values to mitigate CSRF on the callback.
type OAuthStateStore struct {
	sessions *SessionStore
}

func NewOAuthStateStore(rdb redis.Cmdable) *OAuthStateStore {
	return &OAuthStateStore{sessions: NewSessionStore(rdb)}
}

// Save stores state with ttl, 10 minutes when ttl <= 0.
func (s *OAuthStateStore) Save(ctx context.Context, state string, ttl time.Duration) error {
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	ctx, cancel := context.WithTimeout(ctx, redisTimeout)
	defer cancel()
	return s.sessions.rdb.Set(ctx, oauthStatePrefix+state, "1", ttl).Err()
}

// Consume validates and removes a state value.
func (s *OAuthStateStore) Consume(ctx context.Context, state string) bool {
	if state == "" {
		return false
	}
	ctx, cancel := context.WithTimeout(ctx, redisTimeout)
	defer cancel()
	v, err := s.sessions.getDel(ctx, oauthStatePrefix+state)
	return err == nil && v != ""
}
