package persistence

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/iahome/platform/internal/activation/domain"
	identityDomain "github.com/iahome/platform/internal/identity/domain"
	"github.com/iahome/platform/internal/shared/infrastructure/outbox"
)

// PostgresActivationRepository implements both the activation read path and
// the transactional store with PostgreSQL.
type PostgresActivationRepository struct {
	pool *pgxpool.Pool
}

// NewPostgresActivationRepository creates a new repository.
func NewPostgresActivationRepository(pool *pgxpool.Pool) *PostgresActivationRepository {
	return &PostgresActivationRepository{pool: pool}
}

const selectActivations = `
	SELECT user_id, module_id, active, source, access_level, created_at, updated_at, expires_at
	FROM activations`

// Find returns the record for the (user, module) pair.
func (r *PostgresActivationRepository) Find(ctx context.Context, userID uuid.UUID, moduleID string) (*domain.Record, error) {
	row := r.pool.QueryRow(ctx, selectActivations+` WHERE user_id = $1 AND module_id = $2`, userID, moduleID)
	return scanRecord(row)
}

// List returns the user's currently active records, ordered by module.
func (r *PostgresActivationRepository) List(ctx context.Context, userID uuid.UUID) ([]domain.Record, error) {
	query := selectActivations + `
		WHERE user_id = $1
			AND active
			AND (expires_at IS NULL OR expires_at > NOW())
		ORDER BY module_id
	`
	rows, err := r.pool.Query(ctx, query, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	records := make([]domain.Record, 0)
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, *rec)
	}
	return records, rows.Err()
}

// IsActive checks whether the module is unlocked for the user.
func (r *PostgresActivationRepository) IsActive(ctx context.Context, userID uuid.UUID, moduleID string) (bool, error) {
	query := `
		SELECT active AND (expires_at IS NULL OR expires_at > NOW())
		FROM activations
		WHERE user_id = $1 AND module_id = $2
	`
	var active bool
	if err := r.pool.QueryRow(ctx, query, userID, moduleID).Scan(&active); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return false, nil
		}
		return false, err
	}
	return active, nil
}

// Activate unlocks the module for the user. The token debit, the record
// upsert, and the outbox writes commit as one transaction; a record that is
// already active short-circuits without a debit.
func (r *PostgresActivationRepository) Activate(ctx context.Context, params domain.ActivateParams) (*domain.Record, bool, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, false, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	// Lock the record row first so concurrent activations for the same
	// pair serialize here.
	existing, err := lockRecord(ctx, tx, params.UserID, params.ModuleID)
	if err != nil && !errors.Is(err, domain.ErrRecordNotFound) {
		return nil, false, err
	}
	if existing.IsActive() {
		return existing, false, tx.Commit(ctx)
	}

	var balance int
	if err := tx.QueryRow(ctx, `SELECT token_balance FROM users WHERE id = $1 FOR UPDATE`, params.UserID).Scan(&balance); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, false, identityDomain.ErrUserNotFound
		}
		return nil, false, err
	}

	debited := false
	if params.Cost > 0 {
		if balance < params.Cost {
			return nil, false, identityDomain.ErrInsufficientTokens
		}
		_, err = tx.Exec(ctx,
			`UPDATE users SET token_balance = token_balance - $2, updated_at = NOW() WHERE id = $1`,
			params.UserID, params.Cost,
		)
		if err != nil {
			return nil, false, err
		}
		debited = true
	}

	record := domain.NewRecord(params.UserID, params.ModuleID, params.Source)
	if params.AccessLevel != "" {
		record.AccessLevel = params.AccessLevel
	}
	record.ExpiresAt = params.ExpiresAt

	_, err = tx.Exec(ctx, `
		INSERT INTO activations (user_id, module_id, active, source, access_level, created_at, updated_at, expires_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (user_id, module_id) DO UPDATE SET
			active = EXCLUDED.active,
			source = EXCLUDED.source,
			access_level = EXCLUDED.access_level,
			expires_at = EXCLUDED.expires_at,
			updated_at = NOW()
	`, record.UserID, record.ModuleID, record.Active, record.Source, record.AccessLevel,
		record.CreatedAt, record.UpdatedAt, record.ExpiresAt,
	)
	if err != nil {
		return nil, false, err
	}

	activated := domain.NewModuleActivated(params.UserID, params.ModuleID, record.Source, params.Cost)
	msg, err := outbox.NewMessage(activated)
	if err != nil {
		return nil, false, err
	}
	if err := outbox.InsertTx(ctx, tx, msg); err != nil {
		return nil, false, err
	}

	if debited {
		debitEvent := identityDomain.NewTokensDebited(params.UserID, params.Cost, balance-params.Cost)
		debitMsg, err := outbox.NewMessage(debitEvent)
		if err != nil {
			return nil, false, err
		}
		if err := outbox.InsertTx(ctx, tx, debitMsg); err != nil {
			return nil, false, err
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, false, err
	}
	return record, debited, nil
}

// Deactivate flips the record to inactive.
func (r *PostgresActivationRepository) Deactivate(ctx context.Context, userID uuid.UUID, moduleID string) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	tag, err := tx.Exec(ctx,
		`UPDATE activations SET active = FALSE, updated_at = NOW() WHERE user_id = $1 AND module_id = $2`,
		userID, moduleID,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrRecordNotFound
	}

	msg, err := outbox.NewMessage(domain.NewModuleDeactivated(userID, moduleID))
	if err != nil {
		return err
	}
	if err := outbox.InsertTx(ctx, tx, msg); err != nil {
		return err
	}

	return tx.Commit(ctx)
}

func lockRecord(ctx context.Context, tx pgx.Tx, userID uuid.UUID, moduleID string) (*domain.Record, error) {
	row := tx.QueryRow(ctx, selectActivations+` WHERE user_id = $1 AND module_id = $2 FOR UPDATE`, userID, moduleID)
	return scanRecord(row)
}

func scanRecord(row pgx.Row) (*domain.Record, error) {
	var rec domain.Record
	err := row.Scan(
		&rec.UserID, &rec.ModuleID, &rec.Active, &rec.Source, &rec.AccessLevel,
		&rec.CreatedAt, &rec.UpdatedAt, &rec.ExpiresAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrRecordNotFound
		}
		return nil, fmt.Errorf("scan activation record: %w", err)
	}
	return &rec, nil
}

var (
	_ domain.Repository = (*PostgresActivationRepository)(nil)
	_ domain.Store      = (*PostgresActivationRepository)(nil)
)
