package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/samber/oops"

	"github.com/cppla/gqlbbs/metrics"
	"github.com/cppla/gqlbbs/models"
	"github.com/cppla/gqlbbs/stores"
)

// OAuthIdentity is what a provider tells us about the person signing in.
type OAuthIdentity struct {
	Provider   string
	ProviderID string
	Username   string
	Email      string
}

// LoginOAuth finds or creates the local account linked to id and starts a session for it.
// Accounts created this way have no password; they can set one through the reset flow.
func (s *AuthService) LoginOAuth(ctx context.Context, rc *RequestContext, id OAuthIdentity) (*models.User, error) {
	user, err := s.findOrCreateOAuthUser(ctx, id)
	if err != nil {
		metrics.RecordAuth("oauth", metrics.OutcomeError)
		return nil, err
	}
	if err := s.establish(ctx, rc, user.ID); err != nil {
		metrics.RecordAuth("oauth", metrics.OutcomeError)
		return nil, err
	}
	metrics.RecordAuth("oauth", metrics.OutcomeSuccess)
	return user, nil
}

func (s *AuthService) findOrCreateOAuthUser(ctx context.Context, id OAuthIdentity) (*models.User, error) {
	user, err := s.users.FindByProvider(ctx, id.Provider, id.ProviderID)
	if err == nil {
		return user, nil
	}
	if !errors.Is(err, stores.ErrNotFound) {
		return nil, oops.Code("AUTH_STORE_FAILED").With("operation", "find oauth user").Wrap(err)
	}

	username, err := s.ensureUniqueUsername(ctx, id.Username, id.Provider, id.ProviderID)
	if err != nil {
		return nil, err
	}
	email := strings.TrimSpace(id.Email)
	if !strings.Contains(email, "@") {
		email = placeholderEmail(id)
	}

	user = &models.User{Username: username, Email: email, Provider: id.Provider, ProviderID: id.ProviderID}
	err = s.users.Create(ctx, user)
	if errors.Is(err, stores.ErrDuplicate) && email != placeholderEmail(id) {
		// The email belongs to a local account; never link to it implicitly.
		user.ID = 0
		user.Email = placeholderEmail(id)
		err = s.users.Create(ctx, user)
	}
	if err != nil {
		return nil, oops.Code("AUTH_STORE_FAILED").With("operation", "create oauth user").Wrap(err)
	}
	return user, nil
}

func placeholderEmail(id OAuthIdentity) string {
	return fmt.Sprintf("%s+%s@oauth.invalid", id.Provider, id.ProviderID)
}

// sanitizeUsername keeps a username that passes registration rules: lower case
// letters, digits and underscores only.
func sanitizeUsername(input string) string {
	input = strings.ToLower(strings.TrimSpace(input))
	if at := strings.Index(input, "@"); at > 0 {
		input = input[:at]
	}
	var builder strings.Builder
	for _, r := range input {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			builder.WriteRune(r)
		case r == '_' || r == '-' || r == '.':
			builder.WriteRune('_')
		}
	}
	return strings.Trim(builder.String(), "_")
}

func (s *AuthService) ensureUniqueUsername(ctx context.Context, base, provider, id string) (string, error) {
	base = sanitizeUsername(base)
	if len(base) <= 2 {
		base = sanitizeUsername(fmt.Sprintf("%s_%s", provider, id))
	}
	if len(base) <= 2 {
		base = "user_" + base
	}

	candidate := base
	for suffix := 1; suffix <= 100; suffix++ {
		taken, err := s.users.UsernameTaken(ctx, candidate)
		if err != nil {
			return "", oops.Code("AUTH_STORE_FAILED").With("operation", "check username").Wrap(err)
		}
		if !taken {
			return candidate, nil
		}
		candidate = fmt.Sprintf("%s_%d", base, suffix)
	}
	return "", oops.Code("AUTH_USERNAME_EXHAUSTED").Errorf("no free username for %q", base)
}
