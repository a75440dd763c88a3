package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/prn-tf/shoppingcart/internal/domain"
	"github.com/prn-tf/shoppingcart/internal/lock"
	"github.com/prn-tf/shoppingcart/internal/pkg/crypto"
	"github.com/prn-tf/shoppingcart/internal/repository"
)

// List paging bounds.
const (
	DefaultListLimit = 100
	MaxListLimit     = 1000
)

// UserServiceConfig controls account policy.
type UserServiceConfig struct {
	// EnforcePasswordPolicy rejects credentials shorter than domain.MinPasswordLength.
	EnforcePasswordPolicy bool

	// DefaultRoles are granted when Create is called without roles.
	DefaultRoles []string

	// LockTTL bounds how long a per-user or per-username lock is held.
	LockTTL time.Duration
}

// UserService handles user account operations.
type UserService struct {
	userRepo repository.UserRepository
	cartRepo repository.CartRepository
	roles    *RoleService
	locker   lock.Locker
	metrics  *Metrics
	cfg      UserServiceConfig
	logger   zerolog.Logger
}

// NewUserService creates a new UserService.
func NewUserService(
	userRepo repository.UserRepository,
	cartRepo repository.CartRepository,
	roles *RoleService,
	locker lock.Locker,
	metrics *Metrics,
	cfg UserServiceConfig,
	logger zerolog.Logger,
) *UserService {
	if cfg.LockTTL <= 0 {
		cfg.LockTTL = 10 * time.Second
	}
	return &UserService{
		userRepo: userRepo,
		cartRepo: cartRepo,
		roles:    roles,
		locker:   locker,
		metrics:  metrics,
		cfg:      cfg,
		logger:   logger.With().Str("service", "user").Logger(),
	}
}

// CreateUserInput contains the data needed to create a new user.
type CreateUserInput struct {
	Username string
	Password string
	Comments string

	// Roles names the roles to grant. Empty means the configured defaults.
	Roles []string
}

// CreateUserOutput contains the result of creating a user.
type CreateUserOutput struct {
	User *domain.UserAccount
}

// Create creates a new user account.
func (s *UserService) Create(ctx context.Context, input CreateUserInput) (*CreateUserOutput, error) {
	user := domain.NewUserAccount(input.Username, input.Comments)
	if err := user.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrValidation, err)
	}
	if err := s.setCredential(user, input.Password); err != nil {
		return nil, err
	}

	names := input.Roles
	if len(names) == 0 {
		names = s.cfg.DefaultRoles
	}
	seen := make(map[string]bool, len(names))
	for _, name := range names {
		if seen[name] {
			continue
		}
		seen[name] = true

		role, err := s.roles.Get(ctx, name)
		if err != nil {
			return nil, err
		}
		user.AddRole(role)
	}

	err := s.withLock(ctx, lock.Keys.Username(input.Username), func(ctx context.Context) error {
		exists, err := s.userRepo.ExistsByUsername(ctx, input.Username)
		if err != nil {
			s.logger.Error().Err(err).Str("username", input.Username).Msg("failed to check username existence")
			return fmt.Errorf("%w: %v", ErrInternalError, err)
		}
		if exists {
			return fmt.Errorf("%w: username '%s'", ErrUserAlreadyExists, input.Username)
		}

		if err := s.userRepo.Create(ctx, user); err != nil {
			return s.mapWriteError(err, user.Username, "failed to create user")
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.metrics.AccountsCreated.Inc()
	s.logger.Info().
		Int64("user_id", user.ID).
		Str("username", user.Username).
		Strs("authorities", user.Authorities()).
		Msg("user created")

	return &CreateUserOutput{User: user}, nil
}

// Authenticate verifies user credentials and returns the user.
func (s *UserService) Authenticate(ctx context.Context, username, password string) (*domain.UserAccount, error) {
	user, err := s.userRepo.GetByUsername(ctx, username)
	if err != nil {
		if !errors.Is(err, domain.ErrUserNotFound) {
			s.logger.Error().Err(err).Str("username", username).Msg("failed to load user for authentication")
			return nil, fmt.Errorf("%w: %v", ErrInternalError, err)
		}
		// Don't expose whether the username exists.
		s.metrics.Authentications.WithLabelValues(authResultUnknownUser).Inc()
		s.logger.Debug().Str("username", username).Msg("user not found during authentication")
		return nil, ErrInvalidCredentials
	}

	if !user.VerifyCredential(password) {
		s.metrics.Authentications.WithLabelValues(authResultBadPassword).Inc()
		s.logger.Debug().Str("username", username).Msg("invalid password during authentication")
		return nil, ErrInvalidCredentials
	}

	s.metrics.Authentications.WithLabelValues(authResultSuccess).Inc()
	s.logger.Info().
		Int64("user_id", user.ID).
		Str("username", user.Username).
		Msg("user authenticated")

	return user, nil
}

// GetByID retrieves a user by ID.
func (s *UserService) GetByID(ctx context.Context, id int64) (*domain.UserAccount, error) {
	user, err := s.userRepo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, domain.ErrUserNotFound) {
			return nil, ErrUserNotFound
		}
		s.logger.Error().Err(err).Int64("user_id", id).Msg("failed to get user")
		return nil, fmt.Errorf("%w: %v", ErrInternalError, err)
	}
	return user, nil
}

// GetByUsername retrieves a user by username.
func (s *UserService) GetByUsername(ctx context.Context, username string) (*domain.UserAccount, error) {
	user, err := s.userRepo.GetByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, domain.ErrUserNotFound) {
			return nil, ErrUserNotFound
		}
		s.logger.Error().Err(err).Str("username", username).Msg("failed to get user")
		return nil, fmt.Errorf("%w: %v", ErrInternalError, err)
	}
	return user, nil
}

// Authorities returns the capability tokens derived from the user's roles.
func (s *UserService) Authorities(ctx context.Context, userID int64) ([]string, error) {
	user, err := s.GetByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	return user.Authorities(), nil
}

// UpdateProfileInput contains the profile fields to change. Nil fields are kept.
type UpdateProfileInput struct {
	UserID   int64
	Username *string
	Comments *string
}

// UpdateProfile changes a user's username and/or comments.
func (s *UserService) UpdateProfile(ctx context.Context, input UpdateProfileInput) (*domain.UserAccount, error) {
	var updated *domain.UserAccount

	err := s.withLock(ctx, lock.Keys.User(input.UserID), func(ctx context.Context) error {
		user, err := s.GetByID(ctx, input.UserID)
		if err != nil {
			return err
		}

		if input.Comments != nil {
			user.Comments = *input.Comments
		}

		rename := input.Username != nil && *input.Username != user.Username
		if rename {
			user.Username = *input.Username
		}
		if err := user.Validate(); err != nil {
			return fmt.Errorf("%w: %w", ErrValidation, err)
		}

		save := func(ctx context.Context) error {
			if rename {
				exists, err := s.userRepo.ExistsByUsername(ctx, user.Username)
				if err != nil {
					return fmt.Errorf("%w: %v", ErrInternalError, err)
				}
				if exists {
					return fmt.Errorf("%w: username '%s'", ErrUserAlreadyExists, user.Username)
				}
			}
			if err := s.userRepo.Update(ctx, user); err != nil {
				return s.mapWriteError(err, user.Username, "failed to update user")
			}
			return nil
		}

		if rename {
			err = s.withLock(ctx, lock.Keys.Username(user.Username), save)
		} else {
			err = save(ctx)
		}
		if err != nil {
			return err
		}

		updated = user
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info().Int64("user_id", updated.ID).Str("username", updated.Username).Msg("user profile updated")
	return updated, nil
}

// SetCredentialInput contains the data needed to replace a user's credential.
type SetCredentialInput struct {
	UserID int64

	// CurrentPassword, when set, must match the stored credential.
	CurrentPassword *string

	NewPassword string
}

// SetCredential replaces a user's credential with a fresh hash.
func (s *UserService) SetCredential(ctx context.Context, input SetCredentialInput) error {
	return s.withLock(ctx, lock.Keys.User(input.UserID), func(ctx context.Context) error {
		user, err := s.GetByID(ctx, input.UserID)
		if err != nil {
			return err
		}

		if input.CurrentPassword != nil && !user.VerifyCredential(*input.CurrentPassword) {
			return ErrInvalidCredentials
		}
		if err := s.setCredential(user, input.NewPassword); err != nil {
			return err
		}

		if err := s.userRepo.Update(ctx, user); err != nil {
			return s.mapWriteError(err, user.Username, "failed to update credential")
		}

		s.logger.Info().Int64("user_id", user.ID).Msg("user credential changed")
		return nil
	})
}

// Delete removes a user with its carts and role assignments.
func (s *UserService) Delete(ctx context.Context, id int64) error {
	err := s.withLock(ctx, lock.Keys.User(id), func(ctx context.Context) error {
		if err := s.userRepo.Delete(ctx, id); err != nil {
			if errors.Is(err, domain.ErrUserNotFound) {
				return ErrUserNotFound
			}
			s.logger.Error().Err(err).Int64("user_id", id).Msg("failed to delete user")
			return fmt.Errorf("%w: %v", ErrInternalError, err)
		}
		return nil
	})
	if err != nil {
		return err
	}

	s.metrics.AccountsDeleted.Inc()
	s.logger.Info().Int64("user_id", id).Msg("user deleted")
	return nil
}

// List returns users with pagination. A zero limit means DefaultListLimit.
func (s *UserService) List(ctx context.Context, opts repository.ListOptions) (*repository.ListResult[domain.UserAccount], error) {
	if opts.Limit <= 0 {
		opts.Limit = DefaultListLimit
	}
	if opts.Limit > MaxListLimit {
		opts.Limit = MaxListLimit
	}
	if opts.Offset < 0 {
		opts.Offset = 0
	}

	result, err := s.userRepo.List(ctx, opts)
	if err != nil {
		s.logger.Error().Err(err).Msg("failed to list users")
		return nil, fmt.Errorf("%w: %v", ErrInternalError, err)
	}
	return result, nil
}

// GrantRole assigns a catalog role to a user.
func (s *UserService) GrantRole(ctx context.Context, userID int64, roleName string) (*domain.UserAccount, error) {
	var updated *domain.UserAccount

	err := s.withLock(ctx, lock.Keys.User(userID), func(ctx context.Context) error {
		user, err := s.GetByID(ctx, userID)
		if err != nil {
			return err
		}
		if user.HasRole(roleName) {
			return fmt.Errorf("%w: '%s'", ErrRoleAlreadyGranted, roleName)
		}

		role, err := s.roles.Get(ctx, roleName)
		if err != nil {
			return err
		}
		user.AddRole(role)

		if err := s.userRepo.Update(ctx, user); err != nil {
			return s.mapWriteError(err, user.Username, "failed to grant role")
		}
		updated = user
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info().Int64("user_id", userID).Str("role", roleName).Msg("role granted")
	return updated, nil
}

// RevokeRole removes every assignment of a role from a user.
func (s *UserService) RevokeRole(ctx context.Context, userID int64, roleName string) (*domain.UserAccount, error) {
	var updated *domain.UserAccount

	err := s.withLock(ctx, lock.Keys.User(userID), func(ctx context.Context) error {
		user, err := s.GetByID(ctx, userID)
		if err != nil {
			return err
		}
		if err := user.RemoveRole(roleName); err != nil {
			return err
		}

		if err := s.userRepo.Update(ctx, user); err != nil {
			return s.mapWriteError(err, user.Username, "failed to revoke role")
		}
		updated = user
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info().Int64("user_id", userID).Str("role", roleName).Msg("role revoked")
	return updated, nil
}

// AddCart creates an empty cart owned by the user.
func (s *UserService) AddCart(ctx context.Context, userID int64) (*domain.Cart, error) {
	cart := domain.NewCart()
	cart.UserID = userID

	err := s.withLock(ctx, lock.Keys.User(userID), func(ctx context.Context) error {
		if err := s.cartRepo.Create(ctx, cart); err != nil {
			if errors.Is(err, domain.ErrUserNotFound) {
				return ErrUserNotFound
			}
			s.logger.Error().Err(err).Int64("user_id", userID).Msg("failed to create cart")
			return fmt.Errorf("%w: %v", ErrInternalError, err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Debug().Int64("user_id", userID).Int64("cart_id", cart.ID).Msg("cart created")
	return cart, nil
}

// ListCarts returns the carts owned by the user.
func (s *UserService) ListCarts(ctx context.Context, userID int64) ([]*domain.Cart, error) {
	carts, err := s.cartRepo.ListByUser(ctx, userID)
	if err != nil {
		s.logger.Error().Err(err).Int64("user_id", userID).Msg("failed to list carts")
		return nil, fmt.Errorf("%w: %v", ErrInternalError, err)
	}
	return carts, nil
}

// RemoveCart deletes a cart owned by the user.
func (s *UserService) RemoveCart(ctx context.Context, userID, cartID int64) error {
	return s.withLock(ctx, lock.Keys.User(userID), func(ctx context.Context) error {
		if err := s.cartRepo.Delete(ctx, userID, cartID); err != nil {
			if errors.Is(err, domain.ErrCartNotFound) {
				return ErrCartNotFound
			}
			s.logger.Error().Err(err).Int64("user_id", userID).Int64("cart_id", cartID).Msg("failed to delete cart")
			return fmt.Errorf("%w: %v", ErrInternalError, err)
		}
		return nil
	})
}

// setCredential applies the password policy and re-hashes the credential.
func (s *UserService) setCredential(user *domain.UserAccount, password string) error {
	if s.cfg.EnforcePasswordPolicy {
		if err := domain.ValidatePassword(password); err != nil {
			return fmt.Errorf("%w: %w", ErrValidation, err)
		}
	}

	if err := user.SetCredential(password); err != nil {
		if crypto.IsPasswordTooLong(err) {
			return fmt.Errorf("%w: %w", ErrValidation, err)
		}
		s.logger.Error().Err(err).Msg("failed to hash password")
		return fmt.Errorf("%w: failed to hash password", ErrInternalError)
	}

	s.metrics.CredentialHashes.Inc()
	return nil
}

func (s *UserService) withLock(ctx context.Context, key string, fn func(ctx context.Context) error) error {
	policy := lock.RetryPolicy{
		TTL:        s.cfg.LockTTL,
		MaxRetries: 20,
		RetryDelay: 50 * time.Millisecond,
	}

	err := lock.WithLock(ctx, s.locker, key, policy, fn)
	if errors.Is(err, lock.ErrNotAcquired) {
		return fmt.Errorf("%w: %s", ErrUserBusy, key)
	}
	return err
}

func (s *UserService) mapWriteError(err error, username, msg string) error {
	switch {
	case errors.Is(err, domain.ErrUserAlreadyExists):
		return fmt.Errorf("%w: username '%s'", ErrUserAlreadyExists, username)
	case errors.Is(err, domain.ErrUserNotFound):
		return ErrUserNotFound
	case errors.Is(err, domain.ErrRoleNotFound):
		return err
	}
	s.logger.Error().Err(err).Str("username", username).Msg(msg)
	return fmt.Errorf("%w: %v", ErrInternalError, err)
}
