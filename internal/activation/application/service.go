// Package application orchestrates module activation: catalog validation,
// token debit, record persistence, and cache maintenance.
package application

import (
	"context"
	"log/slog"

	"github.com/google/uuid"

	"github.com/iahome/platform/internal/activation/domain"
	catalogDomain "github.com/iahome/platform/internal/catalog/domain"
	"github.com/iahome/platform/pkg/observability"
)

// Cache is the read cache for activation lookups. Implementations may be
// unavailable at any time; the service treats cache failures as misses.
type Cache interface {
	GetActive(ctx context.Context, userID uuid.UUID, moduleID string) (active bool, found bool, err error)
	SetActive(ctx context.Context, userID uuid.UUID, moduleID string, active bool) error
	Invalidate(ctx context.Context, userID uuid.UUID, moduleID string) error
}

// ActivateCommand carries one activation request.
type ActivateCommand struct {
	UserID    uuid.UUID
	UserEmail string
	ModuleID  string
	// DeclaredCost is the cost the client displayed. The catalog price is
	// authoritative; a mismatch is logged but never charged.
	DeclaredCost int
}

// Service provides module activation and access checks.
type Service struct {
	modules catalogDomain.ModuleRepository
	records domain.Repository
	store   domain.Store
	cache   Cache
	logger  *slog.Logger
	metrics observability.Metrics
}

// NewService creates a new activation service. The cache is optional.
func NewService(modules catalogDomain.ModuleRepository, records domain.Repository, store domain.Store, cache Cache, logger *slog.Logger, metrics observability.Metrics) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	if metrics == nil {
		metrics = observability.NoopMetrics{}
	}
	return &Service{
		modules: modules,
		records: records,
		store:   store,
		cache:   cache,
		logger:  logger,
		metrics: metrics,
	}
}

// Check reports whether the module is unlocked for the user. Anonymous users
// (uuid.Nil) are never activated; that is not an error. Cache errors fall
// through to storage, and storage errors report not-activated, so a failing
// read path can only under-report access.
func (s *Service) Check(ctx context.Context, userID uuid.UUID, moduleID string) (bool, error) {
	if userID == uuid.Nil {
		return false, nil
	}

	if s.cache != nil {
		active, found, err := s.cache.GetActive(ctx, userID, moduleID)
		if err != nil {
			s.logger.Warn("activation cache read failed", "error", err)
		} else if found {
			s.metrics.Counter("activation_check_cache_hit", 1)
			return active, nil
		}
	}

	active, err := s.records.IsActive(ctx, userID, moduleID)
	if err != nil {
		return false, err
	}

	if s.cache != nil {
		if err := s.cache.SetActive(ctx, userID, moduleID, active); err != nil {
			s.logger.Warn("activation cache write failed", "error", err)
		}
	}
	return active, nil
}

// Activate unlocks the module for the user, debiting the catalog price.
// Already-active records return without a second debit.
func (s *Service) Activate(ctx context.Context, cmd ActivateCommand) (*domain.Record, error) {
	module, err := s.modules.FindBySlug(ctx, cmd.ModuleID)
	if err != nil {
		return nil, err
	}
	if !module.Active {
		return nil, catalogDomain.ErrModuleNotFound
	}

	if cmd.DeclaredCost != module.Price {
		s.logger.Warn("declared cost differs from catalog price",
			"module", module.Slug,
			"declared", cmd.DeclaredCost,
			"price", module.Price,
		)
	}

	source := domain.SourceTokens
	if module.IsFree() {
		source = domain.SourceFree
	}

	record, debited, err := s.store.Activate(ctx, domain.ActivateParams{
		UserID:   cmd.UserID,
		ModuleID: module.Slug,
		Cost:     module.Price,
		Source:   source,
	})
	if err != nil {
		s.metrics.Counter("activation_failed", 1, observability.T("module", module.Slug))
		return nil, err
	}

	if s.cache != nil {
		if err := s.cache.SetActive(ctx, cmd.UserID, module.Slug, true); err != nil {
			s.logger.Warn("activation cache write failed", "error", err)
		}
	}

	if debited {
		s.metrics.Counter("activation_succeeded", 1, observability.T("module", module.Slug))
		s.logger.Info("module activated",
			"user_id", cmd.UserID,
			"module", module.Slug,
			"cost", module.Price,
		)
	}
	return record, nil
}

// Grant unlocks the module for the user without a debit. Used by operators
// to comp access; the record carries the admin source.
func (s *Service) Grant(ctx context.Context, userID uuid.UUID, moduleID string) (*domain.Record, error) {
	module, err := s.modules.FindBySlug(ctx, moduleID)
	if err != nil {
		return nil, err
	}

	record, _, err := s.store.Activate(ctx, domain.ActivateParams{
		UserID:   userID,
		ModuleID: module.Slug,
		Source:   domain.SourceAdmin,
	})
	if err != nil {
		return nil, err
	}

	if s.cache != nil {
		if err := s.cache.SetActive(ctx, userID, module.Slug, true); err != nil {
			s.logger.Warn("activation cache write failed", "error", err)
		}
	}
	s.logger.Info("module granted", "user_id", userID, "module", module.Slug)
	return record, nil
}

// List returns the user's active records. It backs the client's session
// cache population.
func (s *Service) List(ctx context.Context, userID uuid.UUID) ([]domain.Record, error) {
	if userID == uuid.Nil {
		return nil, nil
	}
	return s.records.List(ctx, userID)
}

// Deactivate switches the record off and drops the cached state.
func (s *Service) Deactivate(ctx context.Context, userID uuid.UUID, moduleID string) error {
	if err := s.store.Deactivate(ctx, userID, moduleID); err != nil {
		return err
	}
	if s.cache != nil {
		if err := s.cache.Invalidate(ctx, userID, moduleID); err != nil {
			s.logger.Warn("activation cache invalidate failed", "error", err)
		}
	}
	s.logger.Info("module deactivated", "user_id", userID, "module", moduleID)
	return nil
}
