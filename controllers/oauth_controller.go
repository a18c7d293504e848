package controllers

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/github"
	"golang.org/x/oauth2/google"

	"github.com/cppla/gqlbbs/config"
	"github.com/cppla/gqlbbs/middleware"
	"github.com/cppla/gqlbbs/models"
	"github.com/cppla/gqlbbs/services"
	"github.com/cppla/gqlbbs/utils"
)

const oauthStateTTL = 10 * time.Minute

// OAuthLogin starts a session for a provider identity.
type OAuthLogin interface {
	LoginOAuth(ctx context.Context, rc *services.RequestContext, id services.OAuthIdentity) (*models.User, error)
}

// StateStore keeps one-time OAuth state values.
type StateStore interface {
	Save(ctx context.Context, state string, ttl time.Duration) error
	Consume(ctx context.Context, state string) bool
}

type oauthProvider struct {
	config      *oauth2.Config
	userInfoURL string
	fetch       func(ctx context.Context, client *http.Client, userInfoURL string) (*services.OAuthIdentity, error)
}

// OAuthController signs users in through GitHub or Google.
type OAuthController struct {
	auth        OAuthLogin
	states      StateStore
	providers   map[string]*oauthProvider
	frontendURL string
}

// NewOAuthController registers every provider that has client credentials configured.
func NewOAuthController(cfg config.AppConfig, auth OAuthLogin, states StateStore) *OAuthController {
	c := &OAuthController{
		auth:        auth,
		states:      states,
		providers:   map[string]*oauthProvider{},
		frontendURL: strings.TrimRight(cfg.FrontendURL, "/"),
	}
	base := strings.TrimRight(cfg.OAuthRedirectBase, "/")

	if cfg.GitHubClientID != "" && cfg.GitHubClientSecret != "" {
		c.providers["github"] = &oauthProvider{
			config: &oauth2.Config{
				ClientID:     cfg.GitHubClientID,
				ClientSecret: cfg.GitHubClientSecret,
				RedirectURL:  fmt.Sprintf("%s/auth/oauth/github/callback", base),
				Scopes:       []string{"read:user", "user:email"},
				Endpoint:     github.Endpoint,
			},
			userInfoURL: "https://api.github.com/user",
			fetch:       fetchGitHubUser,
		}
	}
	if cfg.GoogleClientID != "" && cfg.GoogleClientSecret != "" {
		c.providers["google"] = &oauthProvider{
			config: &oauth2.Config{
				ClientID:     cfg.GoogleClientID,
				ClientSecret: cfg.GoogleClientSecret,
				RedirectURL:  fmt.Sprintf("%s/auth/oauth/google/callback", base),
				Scopes:       []string{"openid", "profile", "email"},
				Endpoint:     google.Endpoint,
			},
			userInfoURL: "https://www.googleapis.com/oauth2/v2/userinfo",
			fetch:       fetchGoogleUser,
		}
	}
	return c
}

func (o *OAuthController) provider(name string) (*oauthProvider, error) {
	name = strings.ToLower(name)
	if p, ok := o.providers[name]; ok {
		return p, nil
	}
	switch name {
	case "github", "google":
		return nil, fmt.Errorf("%s oauth not configured", name)
	default:
		return nil, fmt.Errorf("unsupported provider: %s", name)
	}
}

// Redirect sends the browser to the provider's consent page.
func (o *OAuthController) Redirect(ctx *gin.Context) {
	p, err := o.provider(ctx.Param("provider"))
	if err != nil {
		utils.Error(ctx, http.StatusBadRequest, 40004, err.Error())
		return
	}

	state := uuid.NewString()
	if err := o.states.Save(ctx.Request.Context(), state, oauthStateTTL); err != nil {
		utils.Sugar.Errorw("save oauth state failed", "error", err)
		utils.Error(ctx, http.StatusServiceUnavailable, 50301, "login temporarily unavailable")
		return
	}

	ctx.Redirect(http.StatusFound, p.config.AuthCodeURL(state))
}

// Callback exchanges the authorization code for an identity, starts a session
// and sends the browser back to the front end.
func (o *OAuthController) Callback(ctx *gin.Context) {
	code := ctx.Query("code")
	state := ctx.Query("state")
	if code == "" || state == "" {
		utils.Error(ctx, http.StatusBadRequest, 40005, "missing code or state")
		return
	}

	if !o.states.Consume(ctx.Request.Context(), state) {
		utils.Error(ctx, http.StatusBadRequest, 40006, "invalid or expired state")
		return
	}

	p, err := o.provider(ctx.Param("provider"))
	if err != nil {
		utils.Error(ctx, http.StatusBadRequest, 40004, err.Error())
		return
	}

	token, err := p.config.Exchange(ctx.Request.Context(), code)
	if err != nil {
		utils.Error(ctx, http.StatusBadRequest, 40007, "failed to exchange code")
		return
	}

	identity, err := p.fetch(ctx.Request.Context(), p.config.Client(ctx.Request.Context(), token), p.userInfoURL)
	if err != nil {
		utils.Sugar.Warnw("fetch oauth user failed", "provider", ctx.Param("provider"), "error", err)
		utils.Error(ctx, http.StatusBadGateway, 50205, "failed to fetch user profile")
		return
	}

	if _, err := o.auth.LoginOAuth(ctx.Request.Context(), middleware.RequestContext(ctx), *identity); err != nil {
		utils.Sugar.Errorw("oauth login failed", "provider", identity.Provider, "error", err)
		utils.Error(ctx, http.StatusInternalServerError, 50006, "failed to persist user")
		return
	}

	ctx.Redirect(http.StatusFound, o.frontendURL+"/")
}

func getJSON(ctx context.Context, client *http.Client, url string, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("request %s failed: %s", url, resp.Status)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

func fetchGitHubUser(ctx context.Context, client *http.Client, userURL string) (*services.OAuthIdentity, error) {
	var payload struct {
		ID    int64  `json:"id"`
		Login string `json:"login"`
		Email string `json:"email"`
	}
	if err := getJSON(ctx, client, userURL, &payload); err != nil {
		return nil, err
	}
	if payload.ID == 0 {
		return nil, fmt.Errorf("github user without id")
	}

	email := payload.Email
	if email == "" {
		email, _ = fetchGitHubEmail(ctx, client, userURL+"/emails")
	}

	return &services.OAuthIdentity{
		Provider:   "github",
		ProviderID: fmt.Sprintf("%d", payload.ID),
		Username:   payload.Login,
		Email:      email,
	}, nil
}

func fetchGitHubEmail(ctx context.Context, client *http.Client, emailsURL string) (string, error) {
	var emails []struct {
		Email    string `json:"email"`
		Primary  bool   `json:"primary"`
		Verified bool   `json:"verified"`
	}
	if err := getJSON(ctx, client, emailsURL, &emails); err != nil {
		return "", err
	}

	for _, email := range emails {
		if email.Primary && email.Verified {
			return email.Email, nil
		}
	}
	// an unverified address must not claim an account
	return "", nil
}

func fetchGoogleUser(ctx context.Context, client *http.Client, userInfoURL string) (*services.OAuthIdentity, error) {
	var payload struct {
		ID            string `json:"id"`
		Email         string `json:"email"`
		VerifiedEmail bool   `json:"verified_email"`
	}
	if err := getJSON(ctx, client, userInfoURL, &payload); err != nil {
		return nil, err
	}
	if payload.ID == "" {
		return nil, fmt.Errorf("google user without id")
	}

	email := ""
	if payload.VerifiedEmail {
		email = payload.Email
	}
	return &services.OAuthIdentity{
		Provider:   "google",
		ProviderID: payload.ID,
		Username:   payload.Email,
		Email:      email,
	}, nil
}
