// Package domain provides the core entities for the IAhome module catalog.
package domain

import (
	"errors"
	"regexp"
	"time"

	"github.com/google/uuid"
)

var (
	// ErrModuleNotFound indicates the requested catalog entry does not exist.
	ErrModuleNotFound = errors.New("module not found")

	// ErrInvalidSlug indicates the module slug is malformed.
	ErrInvalidSlug = errors.New("invalid module slug")

	// ErrEmptyTitle indicates the module title is missing.
	ErrEmptyTitle = errors.New("module title cannot be empty")

	// ErrNegativePrice indicates a negative token price.
	ErrNegativePrice = errors.New("module price cannot be negative")
)

// Slugs are used in URLs and as activation keys, so they are kept strict.
var slugRegex = regexp.MustCompile(`^[a-z0-9]+(-[a-z0-9]+)*$`)

// Module is a catalog entry describing a third-party AI tool gated behind
// token payment.
type Module struct {
	// ID is the unique identifier for this catalog entry.
	ID uuid.UUID

	// Slug is the stable public identifier (e.g. "pdf", "comfyui").
	// Activation records are keyed by slug.
	Slug string

	// Title is the human-readable module name.
	Title string

	// Description is a brief description of what the module does.
	Description string

	// Category groups modules on the landing pages.
	Category string

	// Price is the activation cost in tokens. Zero means free.
	Price int

	// BaseURL is the authenticated module URL; access tokens are appended
	// to it as a query parameter.
	BaseURL string

	// FallbackURL is an optional unauthenticated URL used when token
	// issuance fails.
	FallbackURL string

	// Featured marks modules highlighted on the home page.
	Featured bool

	// Active controls whether the module is visible and activatable.
	Active bool

	CreatedAt time.Time
	UpdatedAt time.Time
}

// NewModule creates a validated catalog entry.
func NewModule(slug, title string, price int) (*Module, error) {
	if !slugRegex.MatchString(slug) {
		return nil, ErrInvalidSlug
	}
	if title == "" {
		return nil, ErrEmptyTitle
	}
	if price < 0 {
		return nil, ErrNegativePrice
	}
	now := time.Now().UTC()
	return &Module{
		ID:        uuid.New(),
		Slug:      slug,
		Title:     title,
		Price:     price,
		Active:    true,
		CreatedAt: now,
		UpdatedAt: now,
	}, nil
}

// IsFree reports whether the module can be activated without a token debit.
func (m *Module) IsFree() bool {
	return m.Price == 0
}
