package persistence

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/iahome/platform/internal/identity/domain"
)

// SQLiteOAuthTokenRepository stores provider token JSON using SQLite.
// Used for local development and tests.
type SQLiteOAuthTokenRepository struct {
	dbConn *sql.DB
}

// NewSQLiteOAuthTokenRepository creates a new repository.
func NewSQLiteOAuthTokenRepository(dbConn *sql.DB) *SQLiteOAuthTokenRepository {
	return &SQLiteOAuthTokenRepository{dbConn: dbConn}
}

// Save upserts the token for the (user, provider) pair.
func (r *SQLiteOAuthTokenRepository) Save(ctx context.Context, userID uuid.UUID, provider string, tokenJSON []byte) error {
	now := time.Now().UTC().Format(time.RFC3339)
	query := `
		INSERT INTO oauth_tokens (user_id, provider, token, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (user_id, provider) DO UPDATE SET
			token = excluded.token,
			updated_at = excluded.updated_at
	`
	_, err := r.dbConn.ExecContext(ctx, query, userID.String(), provider, string(tokenJSON), now, now)
	return err
}

// Find returns the stored token JSON for the (user, provider) pair.
func (r *SQLiteOAuthTokenRepository) Find(ctx context.Context, userID uuid.UUID, provider string) ([]byte, error) {
	var token string
	err := r.dbConn.QueryRowContext(ctx,
		`SELECT token FROM oauth_tokens WHERE user_id = ? AND provider = ?`,
		userID.String(), provider,
	).Scan(&token)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrTokenNotFound
		}
		return nil, err
	}
	return []byte(token), nil
}

var _ domain.OAuthTokenRepository = (*SQLiteOAuthTokenRepository)(nil)
