package persistence

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/iahome/platform/internal/identity/domain"
	sharedDomain "github.com/iahome/platform/internal/shared/domain"
)

// PostgresUserRepository handles persistence for users using PostgreSQL.
type PostgresUserRepository struct {
	pool *pgxpool.Pool
}

// NewPostgresUserRepository creates a new PostgresUserRepository.
func NewPostgresUserRepository(pool *pgxpool.Pool) *PostgresUserRepository {
	return &PostgresUserRepository{pool: pool}
}

// Save persists a user to the database.
func (r *PostgresUserRepository) Save(ctx context.Context, user *domain.User) error {
	query := `
		INSERT INTO users (id, email, name, role, token_balance, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (id) DO UPDATE SET
			name = EXCLUDED.name,
			role = EXCLUDED.role,
			token_balance = EXCLUDED.token_balance,
			updated_at = NOW()
	`
	_, err := r.pool.Exec(ctx, query,
		user.ID(),
		user.Email().String(),
		user.Name().String(),
		string(user.Role()),
		user.TokenBalance(),
		user.CreatedAt(),
		user.UpdatedAt(),
	)
	return err
}

// FindByID retrieves a user by their ID.
func (r *PostgresUserRepository) FindByID(ctx context.Context, id uuid.UUID) (*domain.User, error) {
	return r.findOne(ctx, selectUsers+` WHERE id = $1`, id)
}

// FindByEmail retrieves a user by their email address.
func (r *PostgresUserRepository) FindByEmail(ctx context.Context, email domain.Email) (*domain.User, error) {
	return r.findOne(ctx, selectUsers+` WHERE email = $1`, email.String())
}

// ExistsByEmail checks whether an account with the email already exists.
func (r *PostgresUserRepository) ExistsByEmail(ctx context.Context, email domain.Email) (bool, error) {
	var exists bool
	err := r.pool.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM users WHERE email = $1)`, email.String()).Scan(&exists)
	return exists, err
}

const selectUsers = `
	SELECT id, email, name, role, token_balance, created_at, updated_at
	FROM users`

func (r *PostgresUserRepository) findOne(ctx context.Context, query string, args ...any) (*domain.User, error) {
	var (
		id                   uuid.UUID
		email, name, role    string
		balance              int
		createdAt, updatedAt time.Time
	)
	err := r.pool.QueryRow(ctx, query, args...).Scan(&id, &email, &name, &role, &balance, &createdAt, &updatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrUserNotFound
		}
		return nil, err
	}
	return toDomainUser(id, email, name, role, balance, createdAt, updatedAt)
}

func toDomainUser(id uuid.UUID, email, name, role string, balance int, createdAt, updatedAt time.Time) (*domain.User, error) {
	emailVO, err := domain.NewEmail(email)
	if err != nil {
		return nil, err
	}
	nameVO, err := domain.NewName(name)
	if err != nil {
		return nil, err
	}
	roleVO, err := domain.NewRole(role)
	if err != nil {
		return nil, err
	}
	entity := sharedDomain.RehydrateBaseEntity(id, createdAt, updatedAt)
	return domain.RehydrateUser(id, emailVO, nameVO, roleVO, balance, entity), nil
}

var _ domain.UserRepository = (*PostgresUserRepository)(nil)
