package persistence

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/iahome/platform/internal/identity/domain"
)

// ErrTokenNotFound indicates no stored token for the user and provider.
var ErrTokenNotFound = errors.New("oauth token not found")

// PostgresOAuthTokenRepository stores serialized OAuth tokens in PostgreSQL.
type PostgresOAuthTokenRepository struct {
	pool *pgxpool.Pool
}

// NewPostgresOAuthTokenRepository creates a new repository.
func NewPostgresOAuthTokenRepository(pool *pgxpool.Pool) *PostgresOAuthTokenRepository {
	return &PostgresOAuthTokenRepository{pool: pool}
}

// Save upserts a token for the user and provider.
func (r *PostgresOAuthTokenRepository) Save(ctx context.Context, userID uuid.UUID, provider string, tokenJSON []byte) error {
	query := `
		INSERT INTO oauth_tokens (user_id, provider, token, created_at, updated_at)
		VALUES ($1, $2, $3, NOW(), NOW())
		ON CONFLICT (user_id, provider) DO UPDATE SET
			token = EXCLUDED.token,
			updated_at = NOW()
	`
	_, err := r.pool.Exec(ctx, query, userID, provider, tokenJSON)
	return err
}

// Find returns the stored token for the user and provider.
func (r *PostgresOAuthTokenRepository) Find(ctx context.Context, userID uuid.UUID, provider string) ([]byte, error) {
	var token []byte
	err := r.pool.QueryRow(ctx,
		`SELECT token FROM oauth_tokens WHERE user_id = $1 AND provider = $2`,
		userID, provider,
	).Scan(&token)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrTokenNotFound
		}
		return nil, err
	}
	return token, nil
}

var _ domain.OAuthTokenRepository = (*PostgresOAuthTokenRepository)(nil)
