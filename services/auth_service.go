package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/samber/oops"

	"github.com/cppla/gqlbbs/metrics"
	"github.com/cppla/gqlbbs/models"
	"github.com/cppla/gqlbbs/stores"
	"github.com/cppla/gqlbbs/utils"
)

const (
	// SessionTTL matches the cookie max-age: ten years.
	SessionTTL = 10 * 365 * 24 * time.Hour
	// ResetTokenTTL bounds how long a password reset link stays valid.
	ResetTokenTTL = time.Hour
)

// AuthConfig tunes AuthService. Zero values fall back to the defaults above.
type AuthConfig struct {
	SessionTTL  time.Duration
	ResetTTL    time.Duration
	FrontendURL string
}

// UserResponse is the outcome of an operation that either yields a user or field errors.
type UserResponse struct {
	Errors []FieldError
	User   *models.User
}

// AuthService implements registration, login, logout and the password reset flow.
type AuthService struct {
	users    UserRepository
	sessions SessionRepository
	hasher   PasswordHasher
	mailer   Mailer
	cfg      AuthConfig
}

func NewAuthService(users UserRepository, sessions SessionRepository, hasher PasswordHasher, mailer Mailer, cfg AuthConfig) *AuthService {
	if cfg.SessionTTL <= 0 {
		cfg.SessionTTL = SessionTTL
	}
	if cfg.ResetTTL <= 0 {
		cfg.ResetTTL = ResetTokenTTL
	}
	if cfg.FrontendURL == "" {
		cfg.FrontendURL = "http://localhost:3000"
	}
	cfg.FrontendURL = strings.TrimRight(cfg.FrontendURL, "/")
	return &AuthService{users: users, sessions: sessions, hasher: hasher, mailer: mailer, cfg: cfg}
}

// Resume resolves the session cookie of rc into rc.UserID. A missing, expired
// or unreadable session leaves the request anonymous.
func (s *AuthService) Resume(ctx context.Context, rc *RequestContext) {
	sid := cookieOf(rc).SessionID()
	if sid == "" {
		return
	}
	uid, ok, err := s.sessions.SessionUserID(ctx, sid)
	if err != nil {
		utils.Sugar.Warnw("session lookup failed", "error", err)
		return
	}
	if ok {
		rc.UserID = uid
	}
}

// Register validates the input, creates the user and logs them in.
func (s *AuthService) Register(ctx context.Context, rc *RequestContext, in UsernamePasswordInput) (UserResponse, error) {
	if errs := validateRegister(in); errs != nil {
		metrics.RecordAuth("register", metrics.OutcomeRejected)
		return UserResponse{Errors: errs}, nil
	}

	hash, err := s.hasher.Hash(in.Password)
	if err != nil {
		metrics.RecordAuth("register", metrics.OutcomeError)
		return UserResponse{}, oops.Code("AUTH_HASH_FAILED").Wrap(err)
	}

	user := &models.User{Username: in.Username, Email: in.Email, PasswordHash: hash}
	if err := s.users.Create(ctx, user); err != nil {
		if errors.Is(err, stores.ErrDuplicate) {
			metrics.RecordAuth("register", metrics.OutcomeRejected)
			return UserResponse{Errors: fieldErrors("username", msgUsernameTaken)}, nil
		}
		metrics.RecordAuth("register", metrics.OutcomeError)
		return UserResponse{}, oops.Code("AUTH_STORE_FAILED").With("operation", "create user").Wrap(err)
	}

	if err := s.establish(ctx, rc, user.ID); err != nil {
		metrics.RecordAuth("register", metrics.OutcomeError)
		return UserResponse{}, err
	}
	metrics.RecordAuth("register", metrics.OutcomeSuccess)
	return UserResponse{User: user}, nil
}

// Login authenticates by username, or by email when the identifier contains "@".
func (s *AuthService) Login(ctx context.Context, rc *RequestContext, usernameOrEmail, password string) (UserResponse, error) {
	var (
		user *models.User
		err  error
	)
	if strings.Contains(usernameOrEmail, "@") {
		user, err = s.users.FindByEmail(ctx, usernameOrEmail)
	} else {
		user, err = s.users.FindByUsername(ctx, usernameOrEmail)
	}
	if errors.Is(err, stores.ErrNotFound) {
		metrics.RecordAuth("login", metrics.OutcomeRejected)
		return UserResponse{Errors: fieldErrors("usernameOrEmail", msgUnknownIdentifier)}, nil
	}
	if err != nil {
		metrics.RecordAuth("login", metrics.OutcomeError)
		return UserResponse{}, oops.Code("AUTH_STORE_FAILED").With("operation", "find user").Wrap(err)
	}

	valid := false
	if user.PasswordHash != "" {
		valid, err = s.hasher.Verify(password, user.PasswordHash)
		if err != nil {
			utils.Sugar.Warnw("stored password hash unreadable", "user_id", user.ID, "error", err)
			valid = false
		}
	}
	if !valid {
		metrics.RecordAuth("login", metrics.OutcomeRejected)
		return UserResponse{Errors: fieldErrors("password", msgWrongPassword)}, nil
	}

	if s.hasher.NeedsUpgrade(user.PasswordHash) {
		if upgraded, err := s.hasher.Hash(password); err == nil {
			if err := s.users.UpdatePassword(ctx, user.ID, upgraded); err != nil {
				utils.Sugar.Warnw("password hash upgrade failed", "user_id", user.ID, "error", err)
			} else {
				user.PasswordHash = upgraded
			}
		}
	}

	if err := s.establish(ctx, rc, user.ID); err != nil {
		metrics.RecordAuth("login", metrics.OutcomeError)
		return UserResponse{}, err
	}
	metrics.RecordAuth("login", metrics.OutcomeSuccess)
	return UserResponse{User: user}, nil
}

// Logout destroys the session and clears the cookie. It reports false when
// the session store could not delete the session; the failure is not retried.
func (s *AuthService) Logout(ctx context.Context, rc *RequestContext) bool {
	cookie := cookieOf(rc)
	sid := cookie.SessionID()
	cookie.ClearSessionID()
	rc.UserID = 0

	if err := s.sessions.DestroySession(ctx, sid); err != nil {
		utils.Sugar.Errorw("logout failed", "error", err)
		metrics.RecordAuth("logout", metrics.OutcomeError)
		return false
	}
	metrics.RecordAuth("logout", metrics.OutcomeSuccess)
	return true
}

// ForgotPassword always reports success so callers cannot learn which emails
// are registered. For a known email a reset token is issued and mailed.
func (s *AuthService) ForgotPassword(ctx context.Context, email string) bool {
	user, err := s.users.FindByEmail(ctx, email)
	if err != nil {
		if !errors.Is(err, stores.ErrNotFound) {
			utils.Sugar.Errorw("forgot password lookup failed", "error", err)
			metrics.RecordAuth("forgot_password", metrics.OutcomeError)
		} else {
			metrics.RecordAuth("forgot_password", metrics.OutcomeRejected)
		}
		return true
	}

	token, err := s.sessions.SaveResetToken(ctx, user.ID, s.cfg.ResetTTL)
	if err != nil {
		utils.Sugar.Errorw("store reset token failed", "user_id", user.ID, "error", err)
		metrics.RecordAuth("forgot_password", metrics.OutcomeError)
		return true
	}

	mail := Mail{
		To:      user.Email,
		Subject: "Change password",
		HTML:    fmt.Sprintf(`<a href="%s">reset password</a>`, s.ResetLink(token)),
	}
	if err := s.mailer.Send(ctx, mail); err != nil {
		utils.Sugar.Errorw("reset mail dispatch failed", "user_id", user.ID, "error", err)
		metrics.RecordAuth("forgot_password", metrics.OutcomeError)
		return true
	}
	metrics.RecordAuth("forgot_password", metrics.OutcomeSuccess)
	return true
}

// ResetLink is the front-end URL a reset token is delivered as.
func (s *AuthService) ResetLink(token string) string {
	return s.cfg.FrontendURL + "/change-password/" + token
}

// ChangePassword redeems a reset token. The token is consumed by the lookup,
// so it cannot be replayed. It is put back when the change fails for an
// infrastructure reason.
func (s *AuthService) ChangePassword(ctx context.Context, rc *RequestContext, token, newPassword string) (UserResponse, error) {
	if !passwordLongEnough(newPassword) {
		metrics.RecordAuth("change_password", metrics.OutcomeRejected)
		return UserResponse{Errors: fieldErrors("newPassword", msgPasswordTooShort)}, nil
	}

	grant, ok, err := s.sessions.ConsumeResetToken(ctx, token)
	if err != nil {
		metrics.RecordAuth("change_password", metrics.OutcomeError)
		return UserResponse{}, oops.Code("SESSION_STORE_FAILED").With("operation", "consume reset token").Wrap(err)
	}
	if !ok {
		metrics.RecordAuth("change_password", metrics.OutcomeRejected)
		return UserResponse{Errors: fieldErrors("token", msgTokenExpired)}, nil
	}
	fail := func(err error) (UserResponse, error) {
		metrics.RecordAuth("change_password", metrics.OutcomeError)
		if rerr := s.sessions.RestoreResetToken(context.WithoutCancel(ctx), grant); rerr != nil {
			utils.Sugar.Warnw("restore reset token failed", "user_id", grant.UserID, "error", rerr)
		}
		return UserResponse{}, err
	}

	user, err := s.users.FindByID(ctx, grant.UserID)
	if errors.Is(err, stores.ErrNotFound) {
		metrics.RecordAuth("change_password", metrics.OutcomeRejected)
		return UserResponse{Errors: fieldErrors("token", msgUserGone)}, nil
	}
	if err != nil {
		return fail(oops.Code("AUTH_STORE_FAILED").With("operation", "find user").Wrap(err))
	}

	hash, err := s.hasher.Hash(newPassword)
	if err != nil {
		return fail(oops.Code("AUTH_HASH_FAILED").Wrap(err))
	}
	if err := s.users.UpdatePassword(ctx, user.ID, hash); err != nil {
		if errors.Is(err, stores.ErrNotFound) {
			metrics.RecordAuth("change_password", metrics.OutcomeRejected)
			return UserResponse{Errors: fieldErrors("token", msgUserGone)}, nil
		}
		return fail(oops.Code("AUTH_STORE_FAILED").With("operation", "update password").Wrap(err))
	}
	user.PasswordHash = hash

	if err := s.establish(ctx, rc, user.ID); err != nil {
		metrics.RecordAuth("change_password", metrics.OutcomeError)
		return UserResponse{}, err
	}
	metrics.RecordAuth("change_password", metrics.OutcomeSuccess)
	return UserResponse{User: user}, nil
}

// Me returns the session user, or nil for anonymous requests and users that no longer exist.
func (s *AuthService) Me(ctx context.Context, rc *RequestContext) (*models.User, error) {
	if !rc.Authenticated() {
		return nil, nil
	}
	user, err := s.users.FindByID(ctx, rc.UserID)
	if errors.Is(err, stores.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, oops.Code("AUTH_STORE_FAILED").With("operation", "find user").Wrap(err)
	}
	return user, nil
}

// establish starts a fresh session for userID, replacing any session the request carried.
func (s *AuthService) establish(ctx context.Context, rc *RequestContext, userID uint) error {
	cookie := cookieOf(rc)
	if old := cookie.SessionID(); old != "" {
		if err := s.sessions.DestroySession(ctx, old); err != nil {
			utils.Sugar.Warnw("drop previous session failed", "error", err)
		}
	}
	sid, err := s.sessions.CreateSession(ctx, userID, s.cfg.SessionTTL)
	if err != nil {
		return oops.Code("SESSION_STORE_FAILED").With("operation", "create session").Wrap(err)
	}
	cookie.SetSessionID(sid)
	rc.UserID = userID
	return nil
}
