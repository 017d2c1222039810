package persistence

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/iahome/platform/internal/catalog/domain"
)

// SQLiteModuleRepository implements ModuleRepository with SQLite.
// Used for local development and tests.
type SQLiteModuleRepository struct {
	dbConn *sql.DB
}

// NewSQLiteModuleRepository creates a new repository.
func NewSQLiteModuleRepository(dbConn *sql.DB) *SQLiteModuleRepository {
	return &SQLiteModuleRepository{dbConn: dbConn}
}

// Save upserts a catalog entry, keyed by slug.
func (r *SQLiteModuleRepository) Save(ctx context.Context, module *domain.Module) error {
	query := `
		INSERT INTO modules (id, slug, title, description, category, price, base_url, fallback_url, featured, active, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (slug) DO UPDATE SET
			title = excluded.title,
			description = excluded.description,
			category = excluded.category,
			price = excluded.price,
			base_url = excluded.base_url,
			fallback_url = excluded.fallback_url,
			featured = excluded.featured,
			active = excluded.active,
			updated_at = excluded.updated_at
	`
	_, err := r.dbConn.ExecContext(ctx, query,
		module.ID.String(), module.Slug, module.Title, module.Description, module.Category,
		module.Price, module.BaseURL, module.FallbackURL, boolToInt(module.Featured), boolToInt(module.Active),
		module.CreatedAt.Format(time.RFC3339), time.Now().UTC().Format(time.RFC3339),
	)
	return err
}

// FindByID retrieves a catalog entry by its ID.
func (r *SQLiteModuleRepository) FindByID(ctx context.Context, id uuid.UUID) (*domain.Module, error) {
	row := r.dbConn.QueryRowContext(ctx, selectSQLiteModules+` WHERE id = ?`, id.String())
	return scanSQLiteModule(row)
}

// FindBySlug retrieves a catalog entry by its public slug.
func (r *SQLiteModuleRepository) FindBySlug(ctx context.Context, slug string) (*domain.Module, error) {
	row := r.dbConn.QueryRowContext(ctx, selectSQLiteModules+` WHERE slug = ?`, slug)
	return scanSQLiteModule(row)
}

// List returns catalog entries matching the filter, ordered by title.
func (r *SQLiteModuleRepository) List(ctx context.Context, filter domain.ListFilter) ([]*domain.Module, error) {
	query := selectSQLiteModules + ` WHERE 1=1`
	args := []any{}

	if filter.ActiveOnly {
		query += ` AND active = 1`
	}
	if filter.Category != "" {
		query += ` AND category = ?`
		args = append(args, filter.Category)
	}
	if filter.Featured != nil {
		query += ` AND featured = ?`
		args = append(args, boolToInt(*filter.Featured))
	}
	query += ` ORDER BY title`
	if filter.Limit > 0 {
		query += ` LIMIT ?`
		args = append(args, filter.Limit)
	}
	if filter.Offset > 0 {
		query += ` OFFSET ?`
		args = append(args, filter.Offset)
	}

	rows, err := r.dbConn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	modules := make([]*domain.Module, 0)
	for rows.Next() {
		module, err := scanSQLiteModule(rows)
		if err != nil {
			return nil, err
		}
		modules = append(modules, module)
	}
	return modules, rows.Err()
}

const selectSQLiteModules = `
	SELECT id, slug, title, description, category, price, base_url, fallback_url, featured, active, created_at, updated_at
	FROM modules`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSQLiteModule(row rowScanner) (*domain.Module, error) {
	var (
		m                    domain.Module
		idStr                string
		featured, active     int
		createdAt, updatedAt string
	)
	err := row.Scan(
		&idStr, &m.Slug, &m.Title, &m.Description, &m.Category,
		&m.Price, &m.BaseURL, &m.FallbackURL, &featured, &active,
		&createdAt, &updatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrModuleNotFound
		}
		return nil, err
	}
	m.ID, _ = uuid.Parse(idStr)
	m.Featured = featured == 1
	m.Active = active == 1
	m.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
	m.UpdatedAt, _ = time.Parse(time.RFC3339, updatedAt)
	return &m, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

var _ domain.ModuleRepository = (*SQLiteModuleRepository)(nil)
var _ domain.ModuleRepository = (*PostgresModuleRepository)(nil)
