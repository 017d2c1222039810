package domain

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Repository defines read access for activation records.
type Repository interface {
	Find(ctx context.Context, userID uuid.UUID, moduleID string) (*Record, error)
	// List returns the user's currently active records, ordered by module.
	List(ctx context.Context, userID uuid.UUID) ([]Record, error)
	IsActive(ctx context.Context, userID uuid.UUID, moduleID string) (bool, error)
}

// ActivateParams describes one activation attempt.
type ActivateParams struct {
	UserID      uuid.UUID
	ModuleID    string
	Cost        int
	Source      string
	AccessLevel string
	ExpiresAt   *time.Time
}

// Store performs activation state changes. Implementations must make the
// token debit, the record upsert, and the outbox write one atomic unit, and
// must not debit twice for an already-active record.
type Store interface {
	// Activate unlocks the module. The returned bool reports whether a
	// debit happened (false when the record was already active).
	Activate(ctx context.Context, params ActivateParams) (*Record, bool, error)

	// Deactivate flips the record to inactive. Returns ErrRecordNotFound
	// when no record exists.
	Deactivate(ctx context.Context, userID uuid.UUID, moduleID string) error
}
