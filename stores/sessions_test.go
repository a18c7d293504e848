package stores

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRedis(t *testing.T) (*redis.Client, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return rdb, mr
}

func TestSessionStore_Lifecycle(t *testing.T) {
	rdb, mr := newTestRedis(t)
	s := NewSessionStore(rdb)
	ctx := context.Background()

	sid, err := s.CreateSession(ctx, 7, 24*time.Hour)
	require.NoError(t, err)
	require.NotEmpty(t, sid)
	assert.Equal(t, 24*time.Hour, mr.TTL("sess:"+sid))

	uid, ok, err := s.SessionUserID(ctx, sid)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, uint(7), uid)

	require.NoError(t, s.DestroySession(ctx, sid))
	_, ok, err = s.SessionUserID(ctx, sid)
	require.NoError(t, err)
	assert.False(t, ok)

	// destroying twice is harmless
	require.NoError(t, s.DestroySession(ctx, sid))
}

func TestSessionStore_ExpiredSession(t *testing.T) {
	rdb, mr := newTestRedis(t)
	s := NewSessionStore(rdb)
	ctx := context.Background()

	sid, err := s.CreateSession(ctx, 1, time.Minute)
	require.NoError(t, err)
	mr.FastForward(2 * time.Minute)

	_, ok, err := s.SessionUserID(ctx, sid)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestSessionStore_CorruptSession(t *testing.T) {
	rdb, mr := newTestRedis(t)
	s := NewSessionStore(rdb)
	require.NoError(t, mr.Set("sess:abc", "not-a-number"))

	_, ok, err := s.SessionUserID(context.Background(), "abc")
	assert.Error(t, err)
	assert.False(t, ok)
}

func TestSessionStore_ResetTokenIsSingleUse(t *testing.T) {
	rdb, mr := newTestRedis(t)
	s := NewSessionStore(rdb)
	ctx := context.Background()

	token, err := s.SaveResetToken(ctx, 42, time.Hour)
	require.NoError(t, err)
	assert.Equal(t, time.Hour, mr.TTL(ResetTokenPrefix+token))
	got, err := mr.Get(ResetTokenPrefix + token)
	require.NoError(t, err)
	assert.Equal(t, "42", got)

	grant, ok, err := s.ConsumeResetToken(ctx, token)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, uint(42), grant.UserID)
	assert.Equal(t, time.Hour, grant.TTL)
	assert.False(t, mr.Exists("forget-password-user:42"))

	_, ok, err = s.ConsumeResetToken(ctx, token)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestSessionStore_ResetTokenExpires(t *testing.T) {
	rdb, mr := newTestRedis(t)
	s := NewSessionStore(rdb)
	ctx := context.Background()

	token, err := s.SaveResetToken(ctx, 42, time.Hour)
	require.NoError(t, err)
	mr.FastForward(time.Hour + time.Second)

	_, ok, err := s.ConsumeResetToken(ctx, token)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestSessionStore_NewResetTokenRevokesPrevious(t *testing.T) {
	rdb, mr := newTestRedis(t)
	s := NewSessionStore(rdb)
	ctx := context.Background()

	first, err := s.SaveResetToken(ctx, 5, time.Hour)
	require.NoError(t, err)
	second, err := s.SaveResetToken(ctx, 5, time.Hour)
	require.NoError(t, err)
	require.NotEqual(t, first, second)

	assert.False(t, mr.Exists(ResetTokenPrefix+first))
	assert.True(t, mr.Exists(ResetTokenPrefix+second))

	_, ok, err := s.ConsumeResetToken(ctx, first)
	require.NoError(t, err)
	assert.False(t, ok)

	grant, ok, err := s.ConsumeResetToken(ctx, second)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, uint(5), grant.UserID)
}

func TestSessionStore_RestoreResetToken(t *testing.T) {
	rdb, mr := newTestRedis(t)
	s := NewSessionStore(rdb)
	ctx := context.Background()

	token, err := s.SaveResetToken(ctx, 42, time.Hour)
	require.NoError(t, err)
	mr.FastForward(20 * time.Minute)
	grant, ok, err := s.ConsumeResetToken(ctx, token)
	require.NoError(t, err)
	require.True(t, ok)

	require.NoError(t, s.RestoreResetToken(ctx, grant))
	assert.Equal(t, 40*time.Minute, mr.TTL(ResetTokenPrefix+token))
	assert.Equal(t, 40*time.Minute, mr.TTL("forget-password-user:42"))

	again, ok, err := s.ConsumeResetToken(ctx, token)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, uint(42), again.UserID)
}

func TestSessionStore_RestoreLosesToNewerToken(t *testing.T) {
	rdb, mr := newTestRedis(t)
	s := NewSessionStore(rdb)
	ctx := context.Background()

	first, err := s.SaveResetToken(ctx, 7, time.Hour)
	require.NoError(t, err)
	grant, ok, err := s.ConsumeResetToken(ctx, first)
	require.NoError(t, err)
	require.True(t, ok)
	second, err := s.SaveResetToken(ctx, 7, time.Hour)
	require.NoError(t, err)

	require.NoError(t, s.RestoreResetToken(ctx, grant))
	assert.False(t, mr.Exists(ResetTokenPrefix+first))
	assert.True(t, mr.Exists(ResetTokenPrefix+second))
}

func TestSessionStore_RedisDown(t *testing.T) {
	rdb, mr := newTestRedis(t)
	s := NewSessionStore(rdb)
	mr.Close()

	_, err := s.CreateSession(context.Background(), 1, time.Minute)
	assert.Error(t, err)
	_, _, err = s.ConsumeResetToken(context.Background(), "tok")
	assert.Error(t, err)
}

func TestOAuthStateStore(t *testing.T) {
	rdb, _ := newTestRedis(t)
	s := NewOAuthStateStore(rdb)
	ctx := context.Background()

	require.NoError(t, s.Save(ctx, "state-1", 0))
	assert.True(t, s.Consume(ctx, "state-1"))
	assert.False(t, s.Consume(ctx, "state-1"))
	assert.False(t, s.Consume(ctx, ""))
}
