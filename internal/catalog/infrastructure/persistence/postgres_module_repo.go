package persistence

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/iahome/platform/internal/catalog/domain"
)

// PostgresModuleRepository implements ModuleRepository with PostgreSQL.
type PostgresModuleRepository struct {
	pool *pgxpool.Pool
}

// NewPostgresModuleRepository creates a new repository.
func NewPostgresModuleRepository(pool *pgxpool.Pool) *PostgresModuleRepository {
	return &PostgresModuleRepository{pool: pool}
}

// Save upserts a catalog entry, keyed by slug.
func (r *PostgresModuleRepository) Save(ctx context.Context, module *domain.Module) error {
	query := `
		INSERT INTO modules (id, slug, title, description, category, price, base_url, fallback_url, featured, active, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		ON CONFLICT (slug) DO UPDATE SET
			title = EXCLUDED.title,
			description = EXCLUDED.description,
			category = EXCLUDED.category,
			price = EXCLUDED.price,
			base_url = EXCLUDED.base_url,
			fallback_url = EXCLUDED.fallback_url,
			featured = EXCLUDED.featured,
			active = EXCLUDED.active,
			updated_at = NOW()
	`
	_, err := r.pool.Exec(ctx, query,
		module.ID, module.Slug, module.Title, module.Description, module.Category,
		module.Price, module.BaseURL, module.FallbackURL, module.Featured, module.Active,
		module.CreatedAt, module.UpdatedAt,
	)
	return err
}

// FindByID retrieves a catalog entry by its ID.
func (r *PostgresModuleRepository) FindByID(ctx context.Context, id uuid.UUID) (*domain.Module, error) {
	row := r.pool.QueryRow(ctx, selectModules+` WHERE id = $1`, id)
	return scanModule(row)
}

// FindBySlug retrieves a catalog entry by its public slug.
func (r *PostgresModuleRepository) FindBySlug(ctx context.Context, slug string) (*domain.Module, error) {
	row := r.pool.QueryRow(ctx, selectModules+` WHERE slug = $1`, slug)
	return scanModule(row)
}

// List returns catalog entries matching the filter, ordered by title.
func (r *PostgresModuleRepository) List(ctx context.Context, filter domain.ListFilter) ([]*domain.Module, error) {
	query := selectModules + ` WHERE 1=1`
	args := []any{}

	if filter.ActiveOnly {
		query += ` AND active`
	}
	if filter.Category != "" {
		args = append(args, filter.Category)
		query += fmt.Sprintf(` AND category = $%d`, len(args))
	}
	if filter.Featured != nil {
		args = append(args, *filter.Featured)
		query += fmt.Sprintf(` AND featured = $%d`, len(args))
	}
	query += ` ORDER BY title`
	if filter.Limit > 0 {
		args = append(args, filter.Limit)
		query += fmt.Sprintf(` LIMIT $%d`, len(args))
	}
	if filter.Offset > 0 {
		args = append(args, filter.Offset)
		query += fmt.Sprintf(` OFFSET $%d`, len(args))
	}

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	modules := make([]*domain.Module, 0)
	for rows.Next() {
		module, err := scanModule(rows)
		if err != nil {
			return nil, err
		}
		modules = append(modules, module)
	}
	return modules, rows.Err()
}

const selectModules = `
	SELECT id, slug, title, description, category, price, base_url, fallback_url, featured, active, created_at, updated_at
	FROM modules`

func scanModule(row pgx.Row) (*domain.Module, error) {
	var m domain.Module
	err := row.Scan(
		&m.ID, &m.Slug, &m.Title, &m.Description, &m.Category,
		&m.Price, &m.BaseURL, &m.FallbackURL, &m.Featured, &m.Active,
		&m.CreatedAt, &m.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrModuleNotFound
		}
		return nil, err
	}
	return &m, nil
}
