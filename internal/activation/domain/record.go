// Package domain holds the activation record model: the link between a user
// and an unlocked module.
package domain

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

var (
	// ErrRecordNotFound indicates no activation record exists for the
	// (user, module) pair.
	ErrRecordNotFound = errors.New("activation record not found")

	// ErrNotActivated indicates the module is not unlocked for the user.
	ErrNotActivated = errors.New("module not activated")
)

// Access levels recorded on activation.
const (
	AccessLevelStandard = "standard"
	AccessLevelPremium  = "premium"
)

// Activation sources.
const (
	SourceTokens = "tokens"
	SourceFree   = "free"
	SourceAdmin  = "admin"
)

// Record links a user to an unlocked module. Records are never hard-deleted;
// deactivation flips Active to false.
type Record struct {
	UserID      uuid.UUID
	ModuleID    string
	Active      bool
	Source      string
	AccessLevel string
	CreatedAt   time.Time
	UpdatedAt   time.Time
	ExpiresAt   *time.Time
}

// NewRecord creates an active record for the (user, module) pair.
func NewRecord(userID uuid.UUID, moduleID, source string) *Record {
	now := time.Now().UTC()
	return &Record{
		UserID:      userID,
		ModuleID:    moduleID,
		Active:      true,
		Source:      source,
		AccessLevel: AccessLevelStandard,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
}

// IsActive reports whether the record currently grants access.
func (r *Record) IsActive() bool {
	if r == nil || !r.Active {
		return false
	}
	if r.ExpiresAt != nil && time.Now().After(*r.ExpiresAt) {
		return false
	}
	return true
}
