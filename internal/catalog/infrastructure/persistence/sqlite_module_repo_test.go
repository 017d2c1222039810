package persistence

import (
	"context"
	"database/sql"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/iahome/platform/internal/catalog/domain"
	"github.com/iahome/platform/internal/shared/infrastructure/migrations"

	_ "modernc.org/sqlite"
)

// setupModuleTestDB creates an in-memory SQLite database with the schema applied.
func setupModuleTestDB(t *testing.T) *sql.DB {
	t.Helper()

	sqlDB, err := sql.Open("sqlite", ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { sqlDB.Close() })
	require.NoError(t, migrations.RunSQLiteMigrations(context.Background(), sqlDB))

	return sqlDB
}

func saveModule(t *testing.T, repo *SQLiteModuleRepository, slug string, price int, mutate func(*domain.Module)) *domain.Module {
	t.Helper()

	module, err := domain.NewModule(slug, "Module "+slug, price)
	require.NoError(t, err)
	if mutate != nil {
		mutate(module)
	}
	require.NoError(t, repo.Save(context.Background(), module))
	return module
}

func TestModuleSaveAndFindBySlug(t *testing.T) {
	repo := NewSQLiteModuleRepository(setupModuleTestDB(t))

	saved := saveModule(t, repo, "pdf", 15, func(m *domain.Module) {
		m.Description = "PDF tools"
		m.Category = "documents"
		m.BaseURL = "https://pdf.internal.example.com"
		m.Featured = true
	})

	found, err := repo.FindBySlug(context.Background(), "pdf")
	require.NoError(t, err)
	require.Equal(t, saved.ID, found.ID)
	require.Equal(t, "PDF tools", found.Description)
	require.Equal(t, "documents", found.Category)
	require.Equal(t, 15, found.Price)
	require.Equal(t, "https://pdf.internal.example.com", found.BaseURL)
	require.True(t, found.Featured)
	require.True(t, found.Active)
}

func TestModuleSave_UpsertsBySlug(t *testing.T) {
	repo := NewSQLiteModuleRepository(setupModuleTestDB(t))

	saveModule(t, repo, "pdf", 15, nil)
	saveModule(t, repo, "pdf", 25, func(m *domain.Module) {
		m.Title = "PDF Tools Pro"
	})

	found, err := repo.FindBySlug(context.Background(), "pdf")
	require.NoError(t, err)
	require.Equal(t, 25, found.Price)
	require.Equal(t, "PDF Tools Pro", found.Title)

	modules, err := repo.List(context.Background(), domain.ListFilter{})
	require.NoError(t, err)
	require.Len(t, modules, 1, "saving the same slug twice must not duplicate")
}

func TestModuleFind_NotFound(t *testing.T) {
	repo := NewSQLiteModuleRepository(setupModuleTestDB(t))

	_, err := repo.FindBySlug(context.Background(), "missing")
	require.ErrorIs(t, err, domain.ErrModuleNotFound)
}

func TestModuleList_Filters(t *testing.T) {
	repo := NewSQLiteModuleRepository(setupModuleTestDB(t))
	ctx := context.Background()

	saveModule(t, repo, "pdf", 15, func(m *domain.Module) {
		m.Category = "documents"
		m.Featured = true
	})
	saveModule(t, repo, "comfyui", 25, func(m *domain.Module) {
		m.Category = "images"
	})
	saveModule(t, repo, "legacy", 5, func(m *domain.Module) {
		m.Category = "documents"
		m.Active = false
	})

	all, err := repo.List(ctx, domain.ListFilter{})
	require.NoError(t, err)
	require.Len(t, all, 3)

	active, err := repo.List(ctx, domain.ListFilter{ActiveOnly: true})
	require.NoError(t, err)
	require.Len(t, active, 2)

	documents, err := repo.List(ctx, domain.ListFilter{Category: "documents", ActiveOnly: true})
	require.NoError(t, err)
	require.Len(t, documents, 1)
	require.Equal(t, "pdf", documents[0].Slug)

	featured := true
	highlighted, err := repo.List(ctx, domain.ListFilter{Featured: &featured})
	require.NoError(t, err)
	require.Len(t, highlighted, 1)
	require.Equal(t, "pdf", highlighted[0].Slug)
}

func TestModuleList_Pagination(t *testing.T) {
	repo := NewSQLiteModuleRepository(setupModuleTestDB(t))
	ctx := context.Background()

	for _, slug := range []string{"alpha", "beta", "gamma"} {
		saveModule(t, repo, slug, 0, nil)
	}

	page, err := repo.List(ctx, domain.ListFilter{Limit: 2})
	require.NoError(t, err)
	require.Len(t, page, 2)
	require.Equal(t, "alpha", page[0].Slug)

	rest, err := repo.List(ctx, domain.ListFilter{Limit: 2, Offset: 2})
	require.NoError(t, err)
	require.Len(t, rest, 1)
	require.Equal(t, "gamma", rest[0].Slug)
}
