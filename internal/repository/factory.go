// Package repository provides data access layer for the shopping cart.
// This file contains the types shared by the per-driver repository constructors.
package repository

import (
	"context"
)

// Repositories holds all repository instances.
type Repositories struct {
	User UserRepository
	Role RoleRepository
	Cart CartRepository
}

// DatabaseHealth is an interface for database health checks.
// This interface satisfies handler.HealthChecker for health endpoints.
type DatabaseHealth interface {
	Ping(ctx context.Context) error
	Health(ctx context.Context) error
	Close() error
}

// Store bundles the repositories with the connection they share.
type Store struct {
	Repos    *Repositories
	Database DatabaseHealth
}
