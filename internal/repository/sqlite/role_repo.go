package sqlite

import (
	"context"
	"fmt"

	"github.com/prn-tf/shoppingcart/internal/domain"
	"github.com/prn-tf/shoppingcart/internal/repository"
)

// roleRepository implements repository.RoleRepository for SQLite.
type roleRepository struct {
	db *DB
}

// NewRoleRepository creates a new SQLite role repository.
func NewRoleRepository(db *DB) repository.RoleRepository {
	return &roleRepository{db: db}
}

// Create creates a new role.
func (r *roleRepository) Create(ctx context.Context, role *domain.Role) error {
	result, err := r.db.ExecContext(ctx,
		`INSERT INTO roles (name, created_at, updated_at) VALUES (?, ?, ?)`,
		role.Name, formatTime(role.CreatedAt), formatTime(role.UpdatedAt),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return domain.NewDomainError(domain.ErrRoleAlreadyExists, "", role.Name)
		}
		return fmt.Errorf("failed to create role: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get last insert ID: %w", err)
	}
	role.ID = id
	return nil
}

// GetByName retrieves a role by name.
func (r *roleRepository) GetByName(ctx context.Context, name string) (*domain.Role, error) {
	return getRoleByName(ctx, r.db, name)
}

// List returns all roles ordered by name.
func (r *roleRepository) List(ctx context.Context) ([]*domain.Role, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT id, name, created_at, updated_at FROM roles ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("failed to list roles: %w", err)
	}
	defer rows.Close()

	var roles []*domain.Role
	for rows.Next() {
		role, err := scanRole(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan role: %w", err)
		}
		roles = append(roles, role)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating roles: %w", err)
	}
	return roles, nil
}

// Delete deletes a role by ID.
func (r *roleRepository) Delete(ctx context.Context, id int64) error {
	result, err := r.db.ExecContext(ctx, `DELETE FROM roles WHERE id = ?`, id)
	if err != nil {
		if isForeignKeyViolation(err) {
			return domain.ErrRoleInUse
		}
		return fmt.Errorf("failed to delete role: %w", err)
	}

	rowsAffected, _ := result.RowsAffected()
	if rowsAffected == 0 {
		return domain.ErrRoleNotFound
	}
	return nil
}

func getRoleByName(ctx context.Context, q querier, name string) (*domain.Role, error) {
	row := q.QueryRowContext(ctx, `SELECT id, name, created_at, updated_at FROM roles WHERE name = ?`, name)
	role, err := scanRole(row)
	if err != nil {
		if isNoRows(err) {
			return nil, domain.NewDomainError(domain.ErrRoleNotFound, "", name)
		}
		return nil, fmt.Errorf("failed to get role by name: %w", err)
	}
	return role, nil
}

func scanRole(row rowScanner) (*domain.Role, error) {
	role := &domain.Role{}
	var createdAt, updatedAt string
	if err := row.Scan(&role.ID, &role.Name, &createdAt, &updatedAt); err != nil {
		return nil, err
	}
	role.CreatedAt = parseTime(createdAt)
	role.UpdatedAt = parseTime(updatedAt)
	return role, nil
}

// Ensure roleRepository implements repository.RoleRepository.
var _ repository.RoleRepository = (*roleRepository)(nil)
