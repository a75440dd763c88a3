package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/prn-tf/shoppingcart/internal/domain"
	"github.com/prn-tf/shoppingcart/internal/lock"
	"github.com/prn-tf/shoppingcart/internal/repository"
)

// DefaultRoleNames is the role catalog seeded by EnsureDefaults.
var DefaultRoleNames = []string{"admin", "user", "data"}

// RoleService manages the role catalog. Lookups by name go through the cache.
type RoleService struct {
	roleRepo repository.RoleRepository
	cache    repository.Cache
	cacheTTL time.Duration
	locker   lock.Locker
	metrics  *Metrics
	logger   zerolog.Logger
}

// NewRoleService creates a new RoleService.
func NewRoleService(
	roleRepo repository.RoleRepository,
	cache repository.Cache,
	cacheTTL time.Duration,
	locker lock.Locker,
	metrics *Metrics,
	logger zerolog.Logger,
) *RoleService {
	return &RoleService{
		roleRepo: roleRepo,
		cache:    cache,
		cacheTTL: cacheTTL,
		locker:   locker,
		metrics:  metrics,
		logger:   logger.With().Str("service", "role").Logger(),
	}
}

// Create adds a role to the catalog.
func (s *RoleService) Create(ctx context.Context, name string) (*domain.Role, error) {
	if err := domain.ValidateRoleName(name); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrValidation, err)
	}

	role := domain.NewRole(name)
	if err := s.roleRepo.Create(ctx, role); err != nil {
		if errors.Is(err, domain.ErrRoleAlreadyExists) {
			return nil, fmt.Errorf("%w: '%s'", ErrRoleAlreadyExists, name)
		}
		s.logger.Error().Err(err).Str("role", name).Msg("failed to create role")
		return nil, fmt.Errorf("%w: %v", ErrInternalError, err)
	}

	s.logger.Info().Int64("role_id", role.ID).Str("role", name).Msg("role created")
	return role, nil
}

// Get returns the role with the given name.
func (s *RoleService) Get(ctx context.Context, name string) (*domain.Role, error) {
	key := repository.CacheKeys.RoleByName(name)

	if data, err := s.cache.Get(ctx, key); err == nil {
		var role domain.Role
		if err := json.Unmarshal(data, &role); err == nil {
			s.metrics.RoleCacheLookups.WithLabelValues("hit").Inc()
			return &role, nil
		}
		s.logger.Warn().Str("role", name).Msg("discarding undecodable cached role")
	} else if !errors.Is(err, repository.ErrCacheMiss) {
		s.logger.Warn().Err(err).Str("role", name).Msg("role cache unavailable")
	}
	s.metrics.RoleCacheLookups.WithLabelValues("miss").Inc()

	role, err := s.roleRepo.GetByName(ctx, name)
	if err != nil {
		if errors.Is(err, domain.ErrRoleNotFound) {
			return nil, fmt.Errorf("%w: '%s'", ErrRoleNotFound, name)
		}
		s.logger.Error().Err(err).Str("role", name).Msg("failed to get role")
		return nil, fmt.Errorf("%w: %v", ErrInternalError, err)
	}

	if data, err := json.Marshal(role); err == nil {
		if err := s.cache.Set(ctx, key, data, s.cacheTTL); err != nil {
			s.logger.Warn().Err(err).Str("role", name).Msg("failed to cache role")
		}
	}
	return role, nil
}

// List returns every role ordered by name.
func (s *RoleService) List(ctx context.Context) ([]*domain.Role, error) {
	roles, err := s.roleRepo.List(ctx)
	if err != nil {
		s.logger.Error().Err(err).Msg("failed to list roles")
		return nil, fmt.Errorf("%w: %v", ErrInternalError, err)
	}
	return roles, nil
}

// Delete removes a role that no account holds.
func (s *RoleService) Delete(ctx context.Context, name string) error {
	role, err := s.Get(ctx, name)
	if err != nil {
		return err
	}

	if err := s.roleRepo.Delete(ctx, role.ID); err != nil {
		switch {
		case errors.Is(err, domain.ErrRoleInUse):
			return fmt.Errorf("%w: '%s'", ErrRoleInUse, name)
		case errors.Is(err, domain.ErrRoleNotFound):
			s.evict(ctx, name)
			return fmt.Errorf("%w: '%s'", ErrRoleNotFound, name)
		}
		s.logger.Error().Err(err).Str("role", name).Msg("failed to delete role")
		return fmt.Errorf("%w: %v", ErrInternalError, err)
	}

	s.evict(ctx, name)
	s.logger.Info().Str("role", name).Msg("role deleted")
	return nil
}

// EnsureDefaults creates any missing role from names, or from
// DefaultRoleNames when names is empty.
func (s *RoleService) EnsureDefaults(ctx context.Context, names ...string) error {
	if len(names) == 0 {
		names = DefaultRoleNames
	}

	policy := lock.RetryPolicy{TTL: 30 * time.Second, MaxRetries: 50, RetryDelay: 100 * time.Millisecond}
	err := lock.WithLock(ctx, s.locker, lock.Keys.RoleSeed(), policy, func(ctx context.Context) error {
		for _, name := range names {
			_, err := s.roleRepo.GetByName(ctx, name)
			if err == nil {
				continue
			}
			if !errors.Is(err, domain.ErrRoleNotFound) {
				return fmt.Errorf("%w: %v", ErrInternalError, err)
			}
			if _, err := s.Create(ctx, name); err != nil && !errors.Is(err, ErrRoleAlreadyExists) {
				return err
			}
		}
		return nil
	})
	if errors.Is(err, lock.ErrNotAcquired) {
		return fmt.Errorf("%w: role seeding in progress elsewhere", ErrInternalError)
	}
	return err
}

func (s *RoleService) evict(ctx context.Context, name string) {
	if err := s.cache.Delete(ctx, repository.CacheKeys.RoleByName(name)); err != nil {
		s.logger.Warn().Err(err).Str("role", name).Msg("failed to evict cached role")
	}
}
