package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/prn-tf/shoppingcart/internal/domain"
	"github.com/prn-tf/shoppingcart/internal/repository"
)

// roleRepository implements repository.RoleRepository.
type roleRepository struct {
	db *DB
}

// NewRoleRepository creates a new PostgreSQL role repository.
func NewRoleRepository(db *DB) repository.RoleRepository {
	return &roleRepository{db: db}
}

// Create creates a new role.
func (r *roleRepository) Create(ctx context.Context, role *domain.Role) error {
	err := r.db.Pool.QueryRow(ctx,
		`INSERT INTO roles (name, created_at, updated_at) VALUES ($1, $2, $3) RETURNING id`,
		role.Name, role.CreatedAt, role.UpdatedAt,
	).Scan(&role.ID)
	if err != nil {
		if isUniqueViolation(err) {
			return domain.NewDomainError(domain.ErrRoleAlreadyExists, "", role.Name)
		}
		return fmt.Errorf("failed to create role: %w", err)
	}
	return nil
}

// GetByName retrieves a role by name.
func (r *roleRepository) GetByName(ctx context.Context, name string) (*domain.Role, error) {
	return getRoleByName(ctx, r.db.Pool, name)
}

// List returns all roles ordered by name.
func (r *roleRepository) List(ctx context.Context) ([]*domain.Role, error) {
	rows, err := r.db.Pool.Query(ctx, `SELECT id, name, created_at, updated_at FROM roles ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("failed to list roles: %w", err)
	}

	roles, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (*domain.Role, error) {
		return scanRole(row)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to scan roles: %w", err)
	}
	return roles, nil
}

// Delete deletes a role by ID.
func (r *roleRepository) Delete(ctx context.Context, id int64) error {
	tag, err := r.db.Pool.Exec(ctx, `DELETE FROM roles WHERE id = $1`, id)
	if err != nil {
		if isForeignKeyViolation(err) {
			return domain.ErrRoleInUse
		}
		return fmt.Errorf("failed to delete role: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrRoleNotFound
	}
	return nil
}

func getRoleByName(ctx context.Context, q Querier, name string) (*domain.Role, error) {
	row := q.QueryRow(ctx, `SELECT id, name, created_at, updated_at FROM roles WHERE name = $1`, name)
	role, err := scanRole(row)
	if err != nil {
		if isNoRows(err) {
			return nil, domain.NewDomainError(domain.ErrRoleNotFound, "", name)
		}
		return nil, fmt.Errorf("failed to get role by name: %w", err)
	}
	return role, nil
}

func scanRole(row pgx.Row) (*domain.Role, error) {
	role := &domain.Role{}
	if err := row.Scan(&role.ID, &role.Name, &role.CreatedAt, &role.UpdatedAt); err != nil {
		return nil, err
	}
	return role, nil
}

// Ensure roleRepository implements repository.RoleRepository.
var _ repository.RoleRepository = (*roleRepository)(nil)
