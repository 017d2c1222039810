package persistence

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/iahome/platform/internal/identity/domain"
)

// SQLiteUserRepository handles persistence for users using SQLite.
// Used for local development and tests.
type SQLiteUserRepository struct {
	dbConn *sql.DB
}

// NewSQLiteUserRepository creates a new SQLiteUserRepository.
func NewSQLiteUserRepository(dbConn *sql.DB) *SQLiteUserRepository {
	return &SQLiteUserRepository{dbConn: dbConn}
}

// Save persists a user to the database.
func (r *SQLiteUserRepository) Save(ctx context.Context, user *domain.User) error {
	query := `
		INSERT INTO users (id, email, name, role, token_balance, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			name = excluded.name,
			role = excluded.role,
			token_balance = excluded.token_balance,
			updated_at = excluded.updated_at
	`
	_, err := r.dbConn.ExecContext(ctx, query,
		user.ID().String(),
		user.Email().String(),
		user.Name().String(),
		string(user.Role()),
		user.TokenBalance(),
		user.CreatedAt().Format(time.RFC3339),
		time.Now().UTC().Format(time.RFC3339),
	)
	return err
}

// FindByID retrieves a user by their ID.
func (r *SQLiteUserRepository) FindByID(ctx context.Context, id uuid.UUID) (*domain.User, error) {
	return r.findOne(ctx, selectSQLiteUsers+` WHERE id = ?`, id.String())
}

// FindByEmail retrieves a user by their email address.
func (r *SQLiteUserRepository) FindByEmail(ctx context.Context, email domain.Email) (*domain.User, error) {
	return r.findOne(ctx, selectSQLiteUsers+` WHERE email = ?`, email.String())
}

// ExistsByEmail checks whether an account with the email already exists.
func (r *SQLiteUserRepository) ExistsByEmail(ctx context.Context, email domain.Email) (bool, error) {
	var count int
	err := r.dbConn.QueryRowContext(ctx, `SELECT COUNT(1) FROM users WHERE email = ?`, email.String()).Scan(&count)
	return count > 0, err
}

const selectSQLiteUsers = `
	SELECT id, email, name, role, token_balance, created_at, updated_at
	FROM users`

func (r *SQLiteUserRepository) findOne(ctx context.Context, query string, args ...any) (*domain.User, error) {
	var (
		idStr, email, name, role   string
		balance                    int
		createdAtStr, updatedAtStr string
	)
	err := r.dbConn.QueryRowContext(ctx, query, args...).Scan(&idStr, &email, &name, &role, &balance, &createdAtStr, &updatedAtStr)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrUserNotFound
		}
		return nil, err
	}
	id, err := uuid.Parse(idStr)
	if err != nil {
		return nil, err
	}
	createdAt, _ := time.Parse(time.RFC3339, createdAtStr)
	updatedAt, _ := time.Parse(time.RFC3339, updatedAtStr)
	return toDomainUser(id, email, name, role, balance, createdAt, updatedAt)
}

var _ domain.UserRepository = (*SQLiteUserRepository)(nil)
