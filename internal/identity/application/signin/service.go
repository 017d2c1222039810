// Package signin implements OAuth sign-in against the platform's external
// auth provider. Accounts are created on first sign-in.
package signin

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"

	"golang.org/x/oauth2"

	"github.com/iahome/platform/internal/identity/domain"
)

// Profile is the subset of provider user info the platform needs.
type Profile struct {
	Email string
	Name  string
}

// ProfileFetcher retrieves the signed-in user's profile from the provider.
type ProfileFetcher func(ctx context.Context, token *oauth2.Token) (Profile, error)

// SignupBonus is the token balance granted to new accounts.
const SignupBonus = 10

// Service manages the OAuth sign-in flow and account provisioning.
type Service struct {
	oauthConfig  *oauth2.Config
	provider     string
	users        domain.UserRepository
	tokens       domain.OAuthTokenRepository
	fetchProfile ProfileFetcher
	logger       *slog.Logger
}

// Config holds the provider settings for the sign-in service.
type Config struct {
	Provider     string
	ClientID     string
	ClientSecret string
	AuthURL      string
	TokenURL     string
	RedirectURL  string
	Scopes       []string
}

// NewService creates a new sign-in service.
func NewService(cfg Config, users domain.UserRepository, tokens domain.OAuthTokenRepository, fetchProfile ProfileFetcher, logger *slog.Logger) (*Service, error) {
	if cfg.Provider == "" {
		return nil, errors.New("oauth provider is required")
	}
	if cfg.ClientID == "" || cfg.ClientSecret == "" || cfg.AuthURL == "" || cfg.TokenURL == "" || cfg.RedirectURL == "" {
		return nil, errors.New("oauth configuration is incomplete")
	}
	if users == nil || tokens == nil || fetchProfile == nil {
		return nil, errors.New("sign-in dependencies are required")
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &Service{
		oauthConfig: &oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			Endpoint: oauth2.Endpoint{
				AuthURL:  cfg.AuthURL,
				TokenURL: cfg.TokenURL,
			},
			RedirectURL: cfg.RedirectURL,
			Scopes:      cfg.Scopes,
		},
		provider:     cfg.Provider,
		users:        users,
		tokens:       tokens,
		fetchProfile: fetchProfile,
		logger:       logger,
	}, nil
}

// AuthURL returns the provider authorization URL.
func (s *Service) AuthURL(state string) string {
	return s.oauthConfig.AuthCodeURL(state, oauth2.AccessTypeOffline)
}

// CompleteSignIn exchanges the authorization code, provisions the account if
// needed, and stores the provider token. Returns the signed-in user.
func (s *Service) CompleteSignIn(ctx context.Context, code string) (*domain.User, error) {
	token, err := s.oauthConfig.Exchange(ctx, code)
	if err != nil {
		return nil, err
	}

	profile, err := s.fetchProfile(ctx, token)
	if err != nil {
		return nil, err
	}

	email, err := domain.NewEmail(profile.Email)
	if err != nil {
		return nil, err
	}

	user, err := s.users.FindByEmail(ctx, email)
	if errors.Is(err, domain.ErrUserNotFound) {
		user, err = s.provision(ctx, email, profile)
	}
	if err != nil {
		return nil, err
	}

	tokenJSON, err := json.Marshal(token)
	if err != nil {
		return nil, err
	}
	if err := s.tokens.Save(ctx, user.ID(), s.provider, tokenJSON); err != nil {
		return nil, err
	}

	return user, nil
}

func (s *Service) provision(ctx context.Context, email domain.Email, profile Profile) (*domain.User, error) {
	name, err := domain.NewName(profile.Name)
	if err != nil {
		// Providers do not always return a display name.
		name, _ = domain.NewName(localPart(email.String()))
	}

	user := domain.NewUser(email, name)
	user.Credit(SignupBonus)
	if err := s.users.Save(ctx, user); err != nil {
		return nil, err
	}

	s.logger.Info("account provisioned", "user_id", user.ID(), "email", email.String())
	return user, nil
}

// ScopesFromEnv parses a comma-separated list of scopes.
func ScopesFromEnv(raw string) []string {
	if raw == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	scopes := make([]string, 0, len(parts))
	for _, part := range parts {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			scopes = append(scopes, trimmed)
		}
	}
	return scopes
}

func localPart(email string) string {
	if i := strings.IndexByte(email, '@'); i > 0 {
		return email[:i]
	}
	return email
}
