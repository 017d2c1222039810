package persistence

import (
	"context"
	"database/sql"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/iahome/platform/internal/identity/domain"
	"github.com/iahome/platform/internal/shared/infrastructure/migrations"

	_ "modernc.org/sqlite"
)

// setupUserTestDB creates an in-memory SQLite database with the schema applied.
func setupUserTestDB(t *testing.T) *sql.DB {
	t.Helper()

	sqlDB, err := sql.Open("sqlite", ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { sqlDB.Close() })
	require.NoError(t, migrations.RunSQLiteMigrations(context.Background(), sqlDB))

	return sqlDB
}

func newTestUser(t *testing.T, emailAddr string) *domain.User {
	t.Helper()

	email, err := domain.NewEmail(emailAddr)
	require.NoError(t, err)
	name, err := domain.NewName("Test User")
	require.NoError(t, err)
	return domain.NewUser(email, name)
}

func TestUserSaveAndFindByID(t *testing.T) {
	repo := NewSQLiteUserRepository(setupUserTestDB(t))
	ctx := context.Background()

	user := newTestUser(t, "alice@example.com")
	user.Credit(25)
	require.NoError(t, repo.Save(ctx, user))

	found, err := repo.FindByID(ctx, user.ID())
	require.NoError(t, err)
	require.Equal(t, user.ID(), found.ID())
	require.Equal(t, "alice@example.com", found.Email().String())
	require.Equal(t, 25, found.TokenBalance())
	require.False(t, found.Role().IsAdmin())
}

func TestUserSave_UpdatesBalanceAndRole(t *testing.T) {
	repo := NewSQLiteUserRepository(setupUserTestDB(t))
	ctx := context.Background()

	user := newTestUser(t, "alice@example.com")
	user.Credit(25)
	require.NoError(t, repo.Save(ctx, user))

	require.NoError(t, user.Debit(10))
	user.Promote()
	require.NoError(t, repo.Save(ctx, user))

	found, err := repo.FindByID(ctx, user.ID())
	require.NoError(t, err)
	require.Equal(t, 15, found.TokenBalance())
	require.True(t, found.Role().IsAdmin())
}

func TestUserFindByEmail(t *testing.T) {
	repo := NewSQLiteUserRepository(setupUserTestDB(t))
	ctx := context.Background()

	user := newTestUser(t, "alice@example.com")
	require.NoError(t, repo.Save(ctx, user))

	email, err := domain.NewEmail("Alice@Example.com")
	require.NoError(t, err)
	found, err := repo.FindByEmail(ctx, email)
	require.NoError(t, err)
	require.Equal(t, user.ID(), found.ID())
}

func TestUserFind_NotFound(t *testing.T) {
	repo := NewSQLiteUserRepository(setupUserTestDB(t))

	_, err := repo.FindByID(context.Background(), uuid.New())
	require.ErrorIs(t, err, domain.ErrUserNotFound)
}

func TestUserExistsByEmail(t *testing.T) {
	repo := NewSQLiteUserRepository(setupUserTestDB(t))
	ctx := context.Background()

	email, err := domain.NewEmail("alice@example.com")
	require.NoError(t, err)

	exists, err := repo.ExistsByEmail(ctx, email)
	require.NoError(t, err)
	require.False(t, exists)

	require.NoError(t, repo.Save(ctx, newTestUser(t, "alice@example.com")))

	exists, err = repo.ExistsByEmail(ctx, email)
	require.NoError(t, err)
	require.True(t, exists)
}

func TestOAuthTokenSaveAndFind(t *testing.T) {
	sqlDB := setupUserTestDB(t)
	users := NewSQLiteUserRepository(sqlDB)
	tokens := NewSQLiteOAuthTokenRepository(sqlDB)
	ctx := context.Background()

	user := newTestUser(t, "alice@example.com")
	require.NoError(t, users.Save(ctx, user))

	require.NoError(t, tokens.Save(ctx, user.ID(), "google", []byte(`{"access_token":"a"}`)))
	require.NoError(t, tokens.Save(ctx, user.ID(), "google", []byte(`{"access_token":"b"}`)))

	stored, err := tokens.Find(ctx, user.ID(), "google")
	require.NoError(t, err)
	require.JSONEq(t, `{"access_token":"b"}`, string(stored))

	_, err = tokens.Find(ctx, user.ID(), "github")
	require.ErrorIs(t, err, ErrTokenNotFound)
}
