package domain

import (
	"context"

	"github.com/google/uuid"
)

// ListFilter narrows catalog listings.
type ListFilter struct {
	Category string
	Featured *bool
	// ActiveOnly hides disabled modules. The public API always sets it.
	ActiveOnly bool
	Offset     int
	Limit      int
}

// ModuleRepository defines access for catalog persistence.
type ModuleRepository interface {
	Save(ctx context.Context, module *Module) error
	FindByID(ctx context.Context, id uuid.UUID) (*Module, error)
	FindBySlug(ctx context.Context, slug string) (*Module, error)
	List(ctx context.Context, filter ListFilter) ([]*Module, error)
}
