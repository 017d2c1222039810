package application

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/iahome/platform/internal/activation/domain"
	catalogDomain "github.com/iahome/platform/internal/catalog/domain"
	identityDomain "github.com/iahome/platform/internal/identity/domain"
)

type fakeModuleRepo struct {
	modules map[string]*catalogDomain.Module
}

func (f fakeModuleRepo) Save(ctx context.Context, module *catalogDomain.Module) error { return nil }

func (f fakeModuleRepo) FindByID(ctx context.Context, id uuid.UUID) (*catalogDomain.Module, error) {
	return nil, catalogDomain.ErrModuleNotFound
}

func (f fakeModuleRepo) FindBySlug(ctx context.Context, slug string) (*catalogDomain.Module, error) {
	if m, ok := f.modules[slug]; ok {
		return m, nil
	}
	return nil, catalogDomain.ErrModuleNotFound
}

func (f fakeModuleRepo) List(ctx context.Context, filter catalogDomain.ListFilter) ([]*catalogDomain.Module, error) {
	return nil, nil
}

type fakeRecordRepo struct {
	active  map[string]bool
	records []domain.Record
	err     error
}

func (f *fakeRecordRepo) Find(ctx context.Context, userID uuid.UUID, moduleID string) (*domain.Record, error) {
	return nil, domain.ErrRecordNotFound
}

func (f *fakeRecordRepo) List(ctx context.Context, userID uuid.UUID) ([]domain.Record, error) {
	return f.records, f.err
}

func (f *fakeRecordRepo) IsActive(ctx context.Context, userID uuid.UUID, moduleID string) (bool, error) {
	if f.err != nil {
		return false, f.err
	}
	return f.active[moduleID], nil
}

type fakeStore struct {
	activations []domain.ActivateParams
	record      *domain.Record
	debited     bool
	err         error
}

func (f *fakeStore) Activate(ctx context.Context, params domain.ActivateParams) (*domain.Record, bool, error) {
	if f.err != nil {
		return nil, false, f.err
	}
	f.activations = append(f.activations, params)
	if f.record != nil {
		return f.record, f.debited, nil
	}
	return domain.NewRecord(params.UserID, params.ModuleID, params.Source), f.debited, nil
}

func (f *fakeStore) Deactivate(ctx context.Context, userID uuid.UUID, moduleID string) error {
	return f.err
}

type fakeCache struct {
	state map[string]bool
	err   error
	sets  int
}

func (f *fakeCache) GetActive(ctx context.Context, userID uuid.UUID, moduleID string) (bool, bool, error) {
	if f.err != nil {
		return false, false, f.err
	}
	active, found := f.state[moduleID]
	return active, found, nil
}

func (f *fakeCache) SetActive(ctx context.Context, userID uuid.UUID, moduleID string, active bool) error {
	if f.err != nil {
		return f.err
	}
	if f.state == nil {
		f.state = make(map[string]bool)
	}
	f.state[moduleID] = active
	f.sets++
	return nil
}

func (f *fakeCache) Invalidate(ctx context.Context, userID uuid.UUID, moduleID string) error {
	delete(f.state, moduleID)
	return f.err
}

func paidModule(t *testing.T, slug string, price int) *catalogDomain.Module {
	t.Helper()
	m, err := catalogDomain.NewModule(slug, "Module "+slug, price)
	require.NoError(t, err)
	return m
}

func TestCheck_AnonymousUserNeverActivated(t *testing.T) {
	records := &fakeRecordRepo{active: map[string]bool{"pdf": true}}
	svc := NewService(fakeModuleRepo{}, records, &fakeStore{}, nil, nil, nil)

	active, err := svc.Check(context.Background(), uuid.Nil, "pdf")
	require.NoError(t, err)
	require.False(t, active)
}

func TestCheck_CacheHitSkipsStorage(t *testing.T) {
	records := &fakeRecordRepo{err: errors.New("storage should not be reached")}
	cache := &fakeCache{state: map[string]bool{"pdf": true}}
	svc := NewService(fakeModuleRepo{}, records, &fakeStore{}, cache, nil, nil)

	active, err := svc.Check(context.Background(), uuid.New(), "pdf")
	require.NoError(t, err)
	require.True(t, active)
}

func TestCheck_CacheErrorFallsThroughToStorage(t *testing.T) {
	records := &fakeRecordRepo{active: map[string]bool{"pdf": true}}
	cache := &fakeCache{err: errors.New("redis down")}
	svc := NewService(fakeModuleRepo{}, records, &fakeStore{}, cache, nil, nil)

	active, err := svc.Check(context.Background(), uuid.New(), "pdf")
	require.NoError(t, err)
	require.True(t, active)
}

func TestCheck_StorageErrorReportsNotActivated(t *testing.T) {
	records := &fakeRecordRepo{err: errors.New("connection refused")}
	svc := NewService(fakeModuleRepo{}, records, &fakeStore{}, nil, nil, nil)

	active, err := svc.Check(context.Background(), uuid.New(), "pdf")
	require.Error(t, err)
	require.False(t, active)
}

func TestActivate_UnknownModule(t *testing.T) {
	svc := NewService(fakeModuleRepo{}, &fakeRecordRepo{}, &fakeStore{}, nil, nil, nil)

	_, err := svc.Activate(context.Background(), ActivateCommand{
		UserID:   uuid.New(),
		ModuleID: "missing",
	})
	require.ErrorIs(t, err, catalogDomain.ErrModuleNotFound)
}

func TestActivate_DisabledModuleHiddenFromActivation(t *testing.T) {
	module := paidModule(t, "legacy", 10)
	module.Active = false
	repo := fakeModuleRepo{modules: map[string]*catalogDomain.Module{"legacy": module}}
	svc := NewService(repo, &fakeRecordRepo{}, &fakeStore{}, nil, nil, nil)

	_, err := svc.Activate(context.Background(), ActivateCommand{
		UserID:   uuid.New(),
		ModuleID: "legacy",
	})
	require.ErrorIs(t, err, catalogDomain.ErrModuleNotFound)
}

func TestActivate_CatalogPriceIsAuthoritative(t *testing.T) {
	repo := fakeModuleRepo{modules: map[string]*catalogDomain.Module{
		"pdf": paidModule(t, "pdf", 15),
	}}
	store := &fakeStore{debited: true}
	svc := NewService(repo, &fakeRecordRepo{}, store, nil, nil, nil)

	// Client declares a stale cost of 5; the stored cost must be 15.
	_, err := svc.Activate(context.Background(), ActivateCommand{
		UserID:       uuid.New(),
		ModuleID:     "pdf",
		DeclaredCost: 5,
	})
	require.NoError(t, err)
	require.Len(t, store.activations, 1)
	require.Equal(t, 15, store.activations[0].Cost)
	require.Equal(t, domain.SourceTokens, store.activations[0].Source)
}

func TestActivate_FreeModuleUsesFreeSource(t *testing.T) {
	repo := fakeModuleRepo{modules: map[string]*catalogDomain.Module{
		"demo": paidModule(t, "demo", 0),
	}}
	store := &fakeStore{}
	svc := NewService(repo, &fakeRecordRepo{}, store, nil, nil, nil)

	record, err := svc.Activate(context.Background(), ActivateCommand{
		UserID:   uuid.New(),
		ModuleID: "demo",
	})
	require.NoError(t, err)
	require.Equal(t, domain.SourceFree, record.Source)
	require.Equal(t, 0, store.activations[0].Cost)
}

func TestActivate_InsufficientTokens(t *testing.T) {
	repo := fakeModuleRepo{modules: map[string]*catalogDomain.Module{
		"pdf": paidModule(t, "pdf", 15),
	}}
	store := &fakeStore{err: identityDomain.ErrInsufficientTokens}
	cache := &fakeCache{}
	svc := NewService(repo, &fakeRecordRepo{}, store, cache, nil, nil)

	_, err := svc.Activate(context.Background(), ActivateCommand{
		UserID:   uuid.New(),
		ModuleID: "pdf",
	})
	require.ErrorIs(t, err, identityDomain.ErrInsufficientTokens)
	require.Zero(t, cache.sets, "failed activation must not touch the cache")
}

func TestActivate_SuccessWarmsCache(t *testing.T) {
	repo := fakeModuleRepo{modules: map[string]*catalogDomain.Module{
		"pdf": paidModule(t, "pdf", 15),
	}}
	cache := &fakeCache{}
	svc := NewService(repo, &fakeRecordRepo{}, &fakeStore{debited: true}, cache, nil, nil)

	userID := uuid.New()
	_, err := svc.Activate(context.Background(), ActivateCommand{
		UserID:   userID,
		ModuleID: "pdf",
	})
	require.NoError(t, err)
	require.True(t, cache.state["pdf"])
}

func TestGrant_SkipsDebit(t *testing.T) {
	repo := fakeModuleRepo{modules: map[string]*catalogDomain.Module{
		"pdf": paidModule(t, "pdf", 15),
	}}
	store := &fakeStore{}
	svc := NewService(repo, &fakeRecordRepo{}, store, nil, nil, nil)

	record, err := svc.Grant(context.Background(), uuid.New(), "pdf")
	require.NoError(t, err)
	require.Equal(t, domain.SourceAdmin, record.Source)
	require.Equal(t, 0, store.activations[0].Cost)
}

func TestList_AnonymousUserEmpty(t *testing.T) {
	svc := NewService(fakeModuleRepo{}, &fakeRecordRepo{}, &fakeStore{}, nil, nil, nil)

	records, err := svc.List(context.Background(), uuid.Nil)
	require.NoError(t, err)
	require.Empty(t, records)
}

func TestDeactivate_InvalidatesCache(t *testing.T) {
	cache := &fakeCache{state: map[string]bool{"pdf": true}}
	svc := NewService(fakeModuleRepo{}, &fakeRecordRepo{}, &fakeStore{}, cache, nil, nil)

	err := svc.Deactivate(context.Background(), uuid.New(), "pdf")
	require.NoError(t, err)
	_, cached := cache.state["pdf"]
	require.False(t, cached)
}
