package domain

import (
	"context"
	"errors"

	"github.com/google/uuid"
)

// ErrTokenNotFound indicates no stored token for the user and provider.
var ErrTokenNotFound = errors.New("oauth token not found")

// UserRepository defines the interface for user persistence.
type UserRepository interface {
	Save(ctx context.Context, user *User) error
	FindByID(ctx context.Context, id uuid.UUID) (*User, error)
	FindByEmail(ctx context.Context, email Email) (*User, error)
	ExistsByEmail(ctx context.Context, email Email) (bool, error)
}

// OAuthTokenRepository stores third-party sign-in tokens per user.
type OAuthTokenRepository interface {
	Save(ctx context.Context, userID uuid.UUID, provider string, tokenJSON []byte) error
	Find(ctx context.Context, userID uuid.UUID, provider string) ([]byte, error)
}
