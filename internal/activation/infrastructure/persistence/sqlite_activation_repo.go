package persistence

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/iahome/platform/internal/activation/domain"
	identityDomain "github.com/iahome/platform/internal/identity/domain"
	"github.com/iahome/platform/internal/shared/infrastructure/outbox"
)

// SQLiteActivationRepository implements the activation read path and the
// transactional store with SQLite. Used for local development and tests.
type SQLiteActivationRepository struct {
	dbConn *sql.DB
}

// NewSQLiteActivationRepository creates a new repository.
func NewSQLiteActivationRepository(dbConn *sql.DB) *SQLiteActivationRepository {
	return &SQLiteActivationRepository{dbConn: dbConn}
}

const selectSQLiteActivations = `
	SELECT user_id, module_id, active, source, access_level, created_at, updated_at, expires_at
	FROM activations`

// Find returns the record for the (user, module) pair.
func (r *SQLiteActivationRepository) Find(ctx context.Context, userID uuid.UUID, moduleID string) (*domain.Record, error) {
	row := r.dbConn.QueryRowContext(ctx, selectSQLiteActivations+` WHERE user_id = ? AND module_id = ?`, userID.String(), moduleID)
	return scanSQLiteRecord(row)
}

// List returns the user's currently active records, ordered by module.
func (r *SQLiteActivationRepository) List(ctx context.Context, userID uuid.UUID) ([]domain.Record, error) {
	query := selectSQLiteActivations + `
		WHERE user_id = ? AND active = 1
		ORDER BY module_id
	`
	rows, err := r.dbConn.QueryContext(ctx, query, userID.String())
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	records := make([]domain.Record, 0)
	for rows.Next() {
		rec, err := scanSQLiteRecord(rows)
		if err != nil {
			return nil, err
		}
		// Expiry is evaluated in Go; SQLite stores RFC3339 strings.
		if rec.IsActive() {
			records = append(records, *rec)
		}
	}
	return records, rows.Err()
}

// IsActive checks whether the module is unlocked for the user.
func (r *SQLiteActivationRepository) IsActive(ctx context.Context, userID uuid.UUID, moduleID string) (bool, error) {
	rec, err := r.Find(ctx, userID, moduleID)
	if err != nil {
		if errors.Is(err, domain.ErrRecordNotFound) {
			return false, nil
		}
		return false, err
	}
	return rec.IsActive(), nil
}

// Activate unlocks the module for the user inside one transaction.
func (r *SQLiteActivationRepository) Activate(ctx context.Context, params domain.ActivateParams) (*domain.Record, bool, error) {
	tx, err := r.dbConn.BeginTx(ctx, nil)
	if err != nil {
		return nil, false, err
	}
	defer func() { _ = tx.Rollback() }()

	existing, err := findRecordTx(ctx, tx, params.UserID, params.ModuleID)
	if err != nil && !errors.Is(err, domain.ErrRecordNotFound) {
		return nil, false, err
	}
	if existing.IsActive() {
		return existing, false, tx.Commit()
	}

	var balance int
	err = tx.QueryRowContext(ctx, `SELECT token_balance FROM users WHERE id = ?`, params.UserID.String()).Scan(&balance)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, false, identityDomain.ErrUserNotFound
		}
		return nil, false, err
	}

	debited := false
	if params.Cost > 0 {
		if balance < params.Cost {
			return nil, false, identityDomain.ErrInsufficientTokens
		}
		_, err = tx.ExecContext(ctx,
			`UPDATE users SET token_balance = token_balance - ?, updated_at = ? WHERE id = ?`,
			params.Cost, time.Now().UTC().Format(time.RFC3339), params.UserID.String(),
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

	var expiresAt any
	if record.ExpiresAt != nil {
		expiresAt = record.ExpiresAt.UTC().Format(time.RFC3339)
	}
	_, err = tx.ExecContext(ctx, `
		INSERT INTO activations (user_id, module_id, active, source, access_level, created_at, updated_at, expires_at)
		VALUES (?, ?, 1, ?, ?, ?, ?, ?)
		ON CONFLICT (user_id, module_id) DO UPDATE SET
			active = 1,
			source = excluded.source,
			access_level = excluded.access_level,
			expires_at = excluded.expires_at,
			updated_at = excluded.updated_at
	`, record.UserID.String(), record.ModuleID, record.Source, record.AccessLevel,
		record.CreatedAt.Format(time.RFC3339), record.UpdatedAt.Format(time.RFC3339), expiresAt,
	)
	if err != nil {
		return nil, false, err
	}

	msg, err := outbox.NewMessage(domain.NewModuleActivated(params.UserID, params.ModuleID, record.Source, params.Cost))
	if err != nil {
		return nil, false, err
	}
	if err := outbox.InsertSQLiteTx(ctx, tx, msg); err != nil {
		return nil, false, err
	}

	if debited {
		debitMsg, err := outbox.NewMessage(identityDomain.NewTokensDebited(params.UserID, params.Cost, balance-params.Cost))
		if err != nil {
			return nil, false, err
		}
		if err := outbox.InsertSQLiteTx(ctx, tx, debitMsg); err != nil {
			return nil, false, err
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, false, err
	}
	return record, debited, nil
}

// Deactivate flips the record to inactive.
func (r *SQLiteActivationRepository) Deactivate(ctx context.Context, userID uuid.UUID, moduleID string) error {
	tx, err := r.dbConn.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	res, err := tx.ExecContext(ctx,
		`UPDATE activations SET active = 0, updated_at = ? WHERE user_id = ? AND module_id = ?`,
		time.Now().UTC().Format(time.RFC3339), userID.String(), moduleID,
	)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return domain.ErrRecordNotFound
	}

	msg, err := outbox.NewMessage(domain.NewModuleDeactivated(userID, moduleID))
	if err != nil {
		return err
	}
	if err := outbox.InsertSQLiteTx(ctx, tx, msg); err != nil {
		return err
	}

	return tx.Commit()
}

func findRecordTx(ctx context.Context, tx *sql.Tx, userID uuid.UUID, moduleID string) (*domain.Record, error) {
	row := tx.QueryRowContext(ctx, selectSQLiteActivations+` WHERE user_id = ? AND module_id = ?`, userID.String(), moduleID)
	return scanSQLiteRecord(row)
}

type sqliteRowScanner interface {
	Scan(dest ...any) error
}

func scanSQLiteRecord(row sqliteRowScanner) (*domain.Record, error) {
	var (
		rec                  domain.Record
		userIDStr            string
		active               int
		createdAt, updatedAt string
		expiresAt            sql.NullString
	)
	err := row.Scan(
		&userIDStr, &rec.ModuleID, &active, &rec.Source, &rec.AccessLevel,
		&createdAt, &updatedAt, &expiresAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrRecordNotFound
		}
		return nil, err
	}
	rec.UserID, _ = uuid.Parse(userIDStr)
	rec.Active = active == 1
	rec.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
	rec.UpdatedAt, _ = time.Parse(time.RFC3339, updatedAt)
	if expiresAt.Valid {
		if t, err := time.Parse(time.RFC3339, expiresAt.String); err == nil {
			rec.ExpiresAt = &t
		}
	}
	return &rec, nil
}

var (
	_ domain.Repository = (*SQLiteActivationRepository)(nil)
	_ domain.Store      = (*SQLiteActivationRepository)(nil)
)
