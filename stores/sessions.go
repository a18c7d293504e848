package stores

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const (
	sessionPrefix = "sess:"
	// ResetTokenPrefix namespaces password reset tokens.
	ResetTokenPrefix = "forget-password:"
	resetIndexPrefix = "forget-password-user:"

	redisTimeout = 2 * time.Second
)

// getDelScript is used when the server predates GETDEL (Redis < 6.2).
const getDelScript = `local v=redis.call('GET', KEYS[1]); if v then redis.call('DEL', KEYS[1]); end; return v`

// SessionStore keeps login sessions and password reset tokens in Redis.
// Both map an opaque key to a user id and expire through Redis TTLs.
type SessionStore struct {
	rdb redis.Cmdable
}

func NewSessionStore(rdb redis.Cmdable) *SessionStore {
	return &SessionStore{rdb: rdb}
}

// CreateSession stores a new session for userID and returns its id.
func (s *SessionStore) CreateSession(ctx context.Context, userID uint, ttl time.Duration) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, redisTimeout)
	defer cancel()
	sid := uuid.NewString()
	if err := s.rdb.Set(ctx, sessionPrefix+sid, userID, ttl).Err(); err != nil {
		return "", fmt.Errorf("store session: %w", err)
	}
	return sid, nil
}

// SessionUserID resolves a session id. ok is false when the session does not exist or expired.
func (s *SessionStore) SessionUserID(ctx context.Context, sid string) (uint, bool, error) {
	if sid == "" {
		return 0, false, nil
	}
	ctx, cancel := context.WithTimeout(ctx, redisTimeout)
	defer cancel()
	val, err := s.rdb.Get(ctx, sessionPrefix+sid).Result()
	if errors.Is(err, redis.Nil) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("load session: %w", err)
	}
	return parseUserID(val)
}

// DestroySession deletes the session. Deleting a missing session is not an error.
func (s *SessionStore) DestroySession(ctx context.Context, sid string) error {
	if sid == "" {
		return nil
	}
	ctx, cancel := context.WithTimeout(ctx, redisTimeout)
	defer cancel()
	if err := s.rdb.Del(ctx, sessionPrefix+sid).Err(); err != nil {
		return fmt.Errorf("destroy session: %w", err)
	}
	return nil
}

// SaveResetToken issues a fresh reset token for userID with ttl. Any token
// previously issued to the same user is revoked, so at most one is outstanding.
func (s *SessionStore) SaveResetToken(ctx context.Context, userID uint, ttl time.Duration) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, redisTimeout)
	defer cancel()

	index := resetIndexPrefix + strconv.FormatUint(uint64(userID), 10)
	old, err := s.getDel(ctx, index)
	if err != nil {
		return "", fmt.Errorf("revoke reset token: %w", err)
	}

	token := uuid.NewString()
	_, err = s.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		if old != "" {
			pipe.Del(ctx, ResetTokenPrefix+old)
		}
		pipe.Set(ctx, ResetTokenPrefix+token, userID, ttl)
		pipe.Set(ctx, index, token, ttl)
		return nil
	})
	if err != nil {
		return "", fmt.Errorf("store reset token: %w", err)
	}
	return token, nil
}

// ResetGrant is a redeemed password reset token.
type ResetGrant struct {
	Token  string
	UserID uint
	// TTL is what was left of the token's lifetime when it was redeemed.
	TTL time.Duration
}

// ConsumeResetToken atomically reads and deletes a reset token. ok is false
// when the token is unknown, expired or already used.
func (s *SessionStore) ConsumeResetToken(ctx context.Context, token string) (ResetGrant, bool, error) {
	if token == "" {
		return ResetGrant{}, false, nil
	}
	ctx, cancel := context.WithTimeout(ctx, redisTimeout)
	defer cancel()

	key := ResetTokenPrefix + token
	ttl := s.rdb.PTTL(ctx, key).Val()
	val, err := s.getDel(ctx, key)
	if err != nil {
		return ResetGrant{}, false, fmt.Errorf("consume reset token: %w", err)
	}
	if val == "" {
		return ResetGrant{}, false, nil
	}
	userID, ok, err := parseUserID(val)
	if err != nil || !ok {
		return ResetGrant{}, false, err
	}

	index := resetIndexPrefix + val
	if cur, err := s.rdb.Get(ctx, index).Result(); err == nil && cur == token {
		_ = s.rdb.Del(ctx, index).Err()
	}
	return ResetGrant{Token: token, UserID: userID, TTL: ttl}, true, nil
}

// RestoreResetToken puts back a token consumed by a change that could not
// complete. It does nothing when a newer token was issued in the meantime.
func (s *SessionStore) RestoreResetToken(ctx context.Context, g ResetGrant) error {
	if g.Token == "" || g.TTL <= 0 {
		return nil
	}
	ctx, cancel := context.WithTimeout(ctx, redisTimeout)
	defer cancel()

	index := resetIndexPrefix + strconv.FormatUint(uint64(g.UserID), 10)
	claimed, err := s.rdb.SetNX(ctx, index, g.Token, g.TTL).Result()
	if err != nil {
		return fmt.Errorf("restore reset token: %w", err)
	}
	if !claimed {
		return nil
	}
	if err := s.rdb.Set(ctx, ResetTokenPrefix+g.Token, g.UserID, g.TTL).Err(); err != nil {
		return fmt.Errorf("restore reset token: %w", err)
	}
	return nil
}

// getDel returns "" for a missing key.
func (s *SessionStore) getDel(ctx context.Context, key string) (string, error) {
	val, err := s.rdb.GetDel(ctx, key).Result()
	if err == nil {
		return val, nil
	}
	if errors.Is(err, redis.Nil) {
		return "", nil
	}
	res, evalErr := s.rdb.Eval(ctx, getDelScript, []string{key}).Result()
	if errors.Is(evalErr, redis.Nil) {
		return "", nil
	}
	if evalErr != nil {
		return "", err
	}
	v, _ := res.(string)
	return v, nil
}

func parseUserID(val string) (uint, bool, error) {
	id, err := strconv.ParseUint(val, 10, 64)
	if err != nil {
		return 0, false, fmt.Errorf("corrupt user id %q: %w", val, err)
	}
	return uint(id), true, nil
}
