// Package access mints short-lived bearer tokens that authorize opening a
// module's external URL. Tokens are scoped to one (user, module) pair and
// are never cached: every open mints a fresh one.
package access

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/iahome/platform/internal/activation/domain"
	catalogDomain "github.com/iahome/platform/internal/catalog/domain"
)

// ErrMissingSecret indicates the issuer has no signing key configured.
var ErrMissingSecret = errors.New("access token secret is not configured")

// DefaultTTL is the default token lifetime.
const DefaultTTL = 5 * time.Minute

// Claims are the token claims for module access.
type Claims struct {
	UserID   string `json:"uid"`
	Email    string `json:"email"`
	ModuleID string `json:"module"`
	jwt.RegisteredClaims
}

// Checker reports whether a module is unlocked for a user.
type Checker interface {
	Check(ctx context.Context, userID uuid.UUID, moduleID string) (bool, error)
}

// Grant is a minted token together with the ready-to-open URL.
type Grant struct {
	Token string `json:"token"`
	URL   string `json:"url"`
}

// Issuer mints module access tokens.
type Issuer struct {
	secret       []byte
	ttl          time.Duration
	moduleDomain string
	modules      catalogDomain.ModuleRepository
	checker      Checker
}

// NewIssuer creates a token issuer. moduleDomain is the apex domain used to
// derive module URLs when the catalog entry has no BaseURL (e.g. "iahome.fr"
// yields "https://comfyui.iahome.fr").
func NewIssuer(secret []byte, ttl time.Duration, moduleDomain string, modules catalogDomain.ModuleRepository, checker Checker) (*Issuer, error) {
	if len(secret) == 0 {
		return nil, ErrMissingSecret
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Issuer{
		secret:       secret,
		ttl:          ttl,
		moduleDomain: moduleDomain,
		modules:      modules,
		checker:      checker,
	}, nil
}

// Issue mints a token for the (user, module) pair. It requires an active
// activation record; ErrNotActivated otherwise.
func (i *Issuer) Issue(ctx context.Context, userID uuid.UUID, email, moduleID string) (*Grant, error) {
	module, err := i.modules.FindBySlug(ctx, moduleID)
	if err != nil {
		return nil, err
	}

	active, err := i.checker.Check(ctx, userID, moduleID)
	if err != nil {
		return nil, err
	}
	if !active {
		return nil, domain.ErrNotActivated
	}

	now := time.Now()
	claims := Claims{
		UserID:   userID.String(),
		Email:    email,
		ModuleID: moduleID,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(i.ttl)),
			ID:        uuid.NewString(),
		},
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(i.secret)
	if err != nil {
		return nil, err
	}

	return &Grant{Token: token, URL: i.SignedURL(module, token)}, nil
}

// SignedURL appends the token as a query parameter to the module URL.
func (i *Issuer) SignedURL(module *catalogDomain.Module, token string) string {
	base := module.BaseURL
	if base == "" {
		base = fmt.Sprintf("https://%s.%s", module.Slug, i.moduleDomain)
	}
	u, err := url.Parse(base)
	if err != nil {
		return base + "?token=" + url.QueryEscape(token)
	}
	q := u.Query()
	q.Set("token", token)
	u.RawQuery = q.Encode()
	return u.String()
}

// Parse verifies a token's signature, signing method, and expiry.
func (i *Issuer) Parse(token string) (*Claims, error) {
	parsed, err := jwt.ParseWithClaims(token, &Claims{}, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return i.secret, nil
	})
	if err != nil {
		return nil, err
	}
	claims, ok := parsed.Claims.(*Claims)
	if !ok || !parsed.Valid {
		return nil, errors.New("invalid token")
	}
	return claims, nil
}
