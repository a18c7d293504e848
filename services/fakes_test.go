package services

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/cppla/gqlbbs/models"
	"github.com/cppla/gqlbbs/stores"
)

type memUsers struct {
	mu      sync.Mutex
	nextID  uint
	byID    map[uint]*models.User
	failAll error
}

func newMemUsers() *memUsers {
	return &memUsers{byID: map[uint]*models.User{}}
}

func (m *memUsers) Create(_ context.Context, u *models.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failAll != nil {
		return m.failAll
	}
	for _, existing := range m.byID {
		if strings.EqualFold(existing.Username, u.Username) || strings.EqualFold(existing.Email, u.Email) {
			return stores.ErrDuplicate
		}
	}
	m.nextID++
	u.ID = m.nextID
	u.CreatedAt = models.Now()
	u.UpdatedAt = u.CreatedAt
	cp := *u
	m.byID[u.ID] = &cp
	return nil
}

func (m *memUsers) find(match func(*models.User) bool) (*models.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failAll != nil {
		return nil, m.failAll
	}
	for _, u := range m.byID {
		if match(u) {
			cp := *u
			return &cp, nil
		}
	}
	return nil, stores.ErrNotFound
}

func (m *memUsers) FindByID(_ context.Context, id uint) (*models.User, error) {
	return m.find(func(u *models.User) bool { return u.ID == id })
}

func (m *memUsers) FindByUsername(_ context.Context, username string) (*models.User, error) {
	return m.find(func(u *models.User) bool { return strings.EqualFold(u.Username, username) })
}

func (m *memUsers) FindByEmail(_ context.Context, email string) (*models.User, error) {
	return m.find(func(u *models.User) bool { return strings.EqualFold(u.Email, email) })
}

func (m *memUsers) FindByProvider(_ context.Context, provider, providerID string) (*models.User, error) {
	return m.find(func(u *models.User) bool { return u.Provider == provider && u.ProviderID == providerID })
}

func (m *memUsers) UsernameTaken(ctx context.Context, username string) (bool, error) {
	_, err := m.FindByUsername(ctx, username)
	if errors.Is(err, stores.ErrNotFound) {
		return false, nil
	}
	return err == nil, err
}

func (m *memUsers) UpdatePassword(_ context.Context, id uint, hash string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.byID[id]
	if !ok {
		return stores.ErrNotFound
	}
	u.PasswordHash = hash
	return nil
}

func (m *memUsers) delete(id uint) {
	m.mu.Lock()
	delete(m.byID, id)
	m.mu.Unlock()
}

func (m *memUsers) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.byID)
}

// plainHasher keeps tests fast; the argon2id hasher has its own tests.
type plainHasher struct{}

func (plainHasher) Hash(pw string) (string, error) { return "$argon2id$plain$" + pw, nil }
func (plainHasher) Verify(pw, hash string) (bool, error) {
	if strings.HasPrefix(hash, "$legacy$") {
		return hash == "$legacy$"+pw, nil
	}
	if !strings.HasPrefix(hash, "$argon2id$plain$") {
		return false, errors.New("invalid hash format")
	}
	return hash == "$argon2id$plain$"+pw, nil
}
func (plainHasher) NeedsUpgrade(hash string) bool { return !strings.HasPrefix(hash, "$argon2id$") }

type captureMailer struct {
	mu   sync.Mutex
	sent []Mail
	err  error
}

func (c *captureMailer) Send(_ context.Context, m Mail) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.err != nil {
		return c.err
	}
	c.sent = append(c.sent, m)
	return nil
}

func (c *captureMailer) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.sent)
}

type fakeCookie struct{ sid string }

func (f *fakeCookie) SessionID() string       { return f.sid }
func (f *fakeCookie) SetSessionID(sid string) { f.sid = sid }
func (f *fakeCookie) ClearSessionID()         { f.sid = "" }

type authFixture struct {
	svc    *AuthService
	users  *memUsers
	mailer *captureMailer
	mr     *miniredis.Miniredis
}

func newAuthFixture(t *testing.T) *authFixture {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	users := newMemUsers()
	mailer := &captureMailer{}
	svc := NewAuthService(users, stores.NewSessionStore(rdb), plainHasher{}, mailer, AuthConfig{FrontendURL: "http://front.test/"})
	return &authFixture{svc: svc, users: users, mailer: mailer, mr: mr}
}

// newRequest simulates one HTTP request carrying the given browser cookie.
func (f *authFixture) newRequest(t *testing.T, cookie *fakeCookie) *RequestContext {
	t.Helper()
	rc := &RequestContext{Cookie: cookie}
	f.svc.Resume(context.Background(), rc)
	return rc
}
