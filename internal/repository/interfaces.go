// Package repository defines data access interfaces for the shopping cart.
// These interfaces abstract database operations, allowing for different implementations
// (PostgreSQL, SQLite, in-memory for testing) while keeping the service layer clean.
package repository

import (
	"context"

	"github.com/prn-tf/shoppingcart/internal/domain"
)

// =============================================================================
// User Repository
// =============================================================================

// UserRepository defines the interface for user account data access.
// Accounts are loaded together with their carts and role links.
type UserRepository interface {
	// Create saves a new account together with its carts and role links,
	// and assigns the account ID.
	Create(ctx context.Context, user *domain.UserAccount) error

	// GetByID retrieves an account by ID.
	GetByID(ctx context.Context, id int64) (*domain.UserAccount, error)

	// GetByUsername retrieves an account by username.
	GetByUsername(ctx context.Context, username string) (*domain.UserAccount, error)

	// Update saves the account row and replaces its role links.
	Update(ctx context.Context, user *domain.UserAccount) error

	// Delete removes the account's carts and role links, then the account.
	Delete(ctx context.Context, id int64) error

	// List returns accounts with pagination.
	List(ctx context.Context, opts ListOptions) (*ListResult[domain.UserAccount], error)

	// ExistsByUsername checks if an account with the given username exists.
	ExistsByUsername(ctx context.Context, username string) (bool, error)
}

// =============================================================================
// Role Repository
// =============================================================================

// RoleRepository defines the interface for role catalog data access.
type RoleRepository interface {
	// Create creates a new role.
	Create(ctx context.Context, role *domain.Role) error

	// GetByName retrieves a role by name.
	GetByName(ctx context.Context, name string) (*domain.Role, error)

	// List returns all roles ordered by name.
	List(ctx context.Context) ([]*domain.Role, error)

	// Delete deletes a role by ID. Fails with domain.ErrRoleInUse while assigned.
	Delete(ctx context.Context, id int64) error
}

// =============================================================================
// Cart Repository
// =============================================================================

// CartRepository defines the interface for cart data access.
type CartRepository interface {
	// Create creates a new cart for cart.UserID.
	Create(ctx context.Context, cart *domain.Cart) error

	// ListByUser returns the carts owned by a user in creation order.
	ListByUser(ctx context.Context, userID int64) ([]*domain.Cart, error)

	// Delete deletes a cart owned by userID.
	Delete(ctx context.Context, userID, cartID int64) error
}

// =============================================================================
// Common Types
// =============================================================================

// ListOptions contains common pagination options.
type ListOptions struct {
	// Offset is the number of records to skip.
	Offset int

	// Limit is the maximum number of records to return.
	Limit int
}

// ListResult is a generic paginated list result.
type ListResult[T any] struct {
	// Items is the list of items.
	Items []*T

	// Total is the total number of items (without pagination).
	Total int64

	// Offset is the current offset.
	Offset int

	// Limit is the current limit.
	Limit int
}
