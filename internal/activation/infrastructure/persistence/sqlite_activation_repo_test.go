package persistence

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/iahome/platform/internal/activation/domain"
	identityDomain "github.com/iahome/platform/internal/identity/domain"
	"github.com/iahome/platform/internal/shared/infrastructure/migrations"

	_ "modernc.org/sqlite"
)

// setupActivationTestDB creates an in-memory SQLite database with the schema applied.
func setupActivationTestDB(t *testing.T) *sql.DB {
	t.Helper()

	sqlDB, err := sql.Open("sqlite", ":memory:")
	require.NoError(t, err)
	require.NoError(t, migrations.RunSQLiteMigrations(context.Background(), sqlDB))

	return sqlDB
}

func insertTestUser(t *testing.T, sqlDB *sql.DB, balance int) uuid.UUID {
	t.Helper()

	userID := uuid.New()
	now := time.Now().UTC().Format(time.RFC3339)
	_, err := sqlDB.Exec(
		`INSERT INTO users (id, email, name, role, token_balance, created_at, updated_at) VALUES (?, ?, ?, 'user', ?, ?, ?)`,
		userID.String(), userID.String()+"@example.com", "Test User", balance, now, now,
	)
	require.NoError(t, err)
	return userID
}

func userBalance(t *testing.T, sqlDB *sql.DB, userID uuid.UUID) int {
	t.Helper()

	var balance int
	err := sqlDB.QueryRow(`SELECT token_balance FROM users WHERE id = ?`, userID.String()).Scan(&balance)
	require.NoError(t, err)
	return balance
}

func outboxCount(t *testing.T, sqlDB *sql.DB, routingKey string) int {
	t.Helper()

	var count int
	err := sqlDB.QueryRow(`SELECT COUNT(*) FROM outbox WHERE routing_key = ?`, routingKey).Scan(&count)
	require.NoError(t, err)
	return count
}

func TestActivate_DebitsBalanceOnce(t *testing.T) {
	sqlDB := setupActivationTestDB(t)
	defer sqlDB.Close()

	repo := NewSQLiteActivationRepository(sqlDB)
	ctx := context.Background()
	userID := insertTestUser(t, sqlDB, 20)

	record, debited, err := repo.Activate(ctx, domain.ActivateParams{
		UserID:   userID,
		ModuleID: "pdf",
		Cost:     15,
		Source:   domain.SourceTokens,
	})
	require.NoError(t, err)
	require.True(t, debited)
	require.True(t, record.IsActive())
	require.Equal(t, 5, userBalance(t, sqlDB, userID))
	require.Equal(t, 1, outboxCount(t, sqlDB, "activation.module.activated"))
	require.Equal(t, 1, outboxCount(t, sqlDB, "identity.tokens.debited"))
}

func TestActivate_SecondCallIsIdempotent(t *testing.T) {
	sqlDB := setupActivationTestDB(t)
	defer sqlDB.Close()

	repo := NewSQLiteActivationRepository(sqlDB)
	ctx := context.Background()
	userID := insertTestUser(t, sqlDB, 20)

	params := domain.ActivateParams{
		UserID:   userID,
		ModuleID: "pdf",
		Cost:     15,
		Source:   domain.SourceTokens,
	}

	_, debited, err := repo.Activate(ctx, params)
	require.NoError(t, err)
	require.True(t, debited)

	record, debited, err := repo.Activate(ctx, params)
	require.NoError(t, err)
	require.False(t, debited, "second activation must not debit again")
	require.True(t, record.IsActive())
	require.Equal(t, 5, userBalance(t, sqlDB, userID))
	require.Equal(t, 1, outboxCount(t, sqlDB, "activation.module.activated"))
}

func TestActivate_InsufficientBalanceLeavesNoTrace(t *testing.T) {
	sqlDB := setupActivationTestDB(t)
	defer sqlDB.Close()

	repo := NewSQLiteActivationRepository(sqlDB)
	ctx := context.Background()
	userID := insertTestUser(t, sqlDB, 10)

	_, _, err := repo.Activate(ctx, domain.ActivateParams{
		UserID:   userID,
		ModuleID: "pdf",
		Cost:     15,
		Source:   domain.SourceTokens,
	})
	require.ErrorIs(t, err, identityDomain.ErrInsufficientTokens)
	require.Equal(t, 10, userBalance(t, sqlDB, userID))

	active, err := repo.IsActive(ctx, userID, "pdf")
	require.NoError(t, err)
	require.False(t, active)
	require.Equal(t, 0, outboxCount(t, sqlDB, "activation.module.activated"))
}

func TestActivate_FreeModuleSkipsDebit(t *testing.T) {
	sqlDB := setupActivationTestDB(t)
	defer sqlDB.Close()

	repo := NewSQLiteActivationRepository(sqlDB)
	ctx := context.Background()
	userID := insertTestUser(t, sqlDB, 0)

	record, debited, err := repo.Activate(ctx, domain.ActivateParams{
		UserID:   userID,
		ModuleID: "demo",
		Source:   domain.SourceFree,
	})
	require.NoError(t, err)
	require.False(t, debited)
	require.Equal(t, domain.SourceFree, record.Source)
	require.Equal(t, 0, outboxCount(t, sqlDB, "identity.tokens.debited"))
}

func TestActivate_UnknownUser(t *testing.T) {
	sqlDB := setupActivationTestDB(t)
	defer sqlDB.Close()

	repo := NewSQLiteActivationRepository(sqlDB)

	_, _, err := repo.Activate(context.Background(), domain.ActivateParams{
		UserID:   uuid.New(),
		ModuleID: "pdf",
		Cost:     15,
		Source:   domain.SourceTokens,
	})
	require.ErrorIs(t, err, identityDomain.ErrUserNotFound)
}

func TestActivate_ReactivatesDeactivatedRecord(t *testing.T) {
	sqlDB := setupActivationTestDB(t)
	defer sqlDB.Close()

	repo := NewSQLiteActivationRepository(sqlDB)
	ctx := context.Background()
	userID := insertTestUser(t, sqlDB, 30)

	params := domain.ActivateParams{
		UserID:   userID,
		ModuleID: "pdf",
		Cost:     15,
		Source:   domain.SourceTokens,
	}

	_, _, err := repo.Activate(ctx, params)
	require.NoError(t, err)
	require.NoError(t, repo.Deactivate(ctx, userID, "pdf"))

	active, err := repo.IsActive(ctx, userID, "pdf")
	require.NoError(t, err)
	require.False(t, active)

	// Reactivation charges again; the earlier record is no longer active.
	_, debited, err := repo.Activate(ctx, params)
	require.NoError(t, err)
	require.True(t, debited)
	require.Equal(t, 0, userBalance(t, sqlDB, userID))
}

func TestDeactivate_MissingRecord(t *testing.T) {
	sqlDB := setupActivationTestDB(t)
	defer sqlDB.Close()

	repo := NewSQLiteActivationRepository(sqlDB)
	err := repo.Deactivate(context.Background(), uuid.New(), "pdf")
	require.ErrorIs(t, err, domain.ErrRecordNotFound)
}

func TestList_SkipsInactiveAndExpired(t *testing.T) {
	sqlDB := setupActivationTestDB(t)
	defer sqlDB.Close()

	repo := NewSQLiteActivationRepository(sqlDB)
	ctx := context.Background()
	userID := insertTestUser(t, sqlDB, 0)

	_, _, err := repo.Activate(ctx, domain.ActivateParams{UserID: userID, ModuleID: "alpha", Source: domain.SourceFree})
	require.NoError(t, err)

	_, _, err = repo.Activate(ctx, domain.ActivateParams{UserID: userID, ModuleID: "beta", Source: domain.SourceFree})
	require.NoError(t, err)
	require.NoError(t, repo.Deactivate(ctx, userID, "beta"))

	expired := time.Now().Add(-time.Hour)
	_, _, err = repo.Activate(ctx, domain.ActivateParams{
		UserID:    userID,
		ModuleID:  "gamma",
		Source:    domain.SourceAdmin,
		ExpiresAt: &expired,
	})
	require.NoError(t, err)

	records, err := repo.List(ctx, userID)
	require.NoError(t, err)
	require.Len(t, records, 1)
	require.Equal(t, "alpha", records[0].ModuleID)
}

func TestIsActive_ExpiredRecord(t *testing.T) {
	sqlDB := setupActivationTestDB(t)
	defer sqlDB.Close()

	repo := NewSQLiteActivationRepository(sqlDB)
	ctx := context.Background()
	userID := insertTestUser(t, sqlDB, 0)

	expired := time.Now().Add(-time.Minute)
	_, _, err := repo.Activate(ctx, domain.ActivateParams{
		UserID:    userID,
		ModuleID:  "trial",
		Source:    domain.SourceAdmin,
		ExpiresAt: &expired,
	})
	require.NoError(t, err)

	active, err := repo.IsActive(ctx, userID, "trial")
	require.NoError(t, err)
	require.False(t, active)
}
