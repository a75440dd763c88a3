package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/prn-tf/shoppingcart/internal/domain"
	"github.com/prn-tf/shoppingcart/internal/repository"
)

// userRepository implements repository.UserRepository.
type userRepository struct {
	db *DB
}

// NewUserRepository creates a new PostgreSQL user repository.
func NewUserRepository(db *DB) repository.UserRepository {
	return &userRepository{db: db}
}

const userColumns = `id, username, password_hash, comments, created_at, updated_at`

// Create creates a new user with its carts and role links.
func (r *userRepository) Create(ctx context.Context, user *domain.UserAccount) error {
	restore := user.Checkpoint()
	err := r.db.WithTx(ctx, pgx.TxOptions{}, func(tx pgx.Tx) error {
		query := `
			INSERT INTO users (username, password_hash, comments, created_at, updated_at)
			VALUES ($1, $2, $3, $4, $5)
			RETURNING id
		`

		var id int64
		err := tx.QueryRow(ctx, query,
			user.Username,
			user.PasswordHash,
			user.Comments,
			user.CreatedAt,
			user.UpdatedAt,
		).Scan(&id)
		if err != nil {
			if isUniqueViolation(err) {
				return domain.NewDomainError(domain.ErrUserAlreadyExists, "username already exists", user.Username)
			}
			return fmt.Errorf("failed to create user: %w", err)
		}

		if err := user.AssignID(id); err != nil {
			return err
		}
		if err := insertRoleLinks(ctx, tx, user); err != nil {
			return err
		}
		return syncCarts(ctx, tx, user)
	})
	if err != nil {
		restore()
		return err
	}
	user.ClearRemovedCarts()
	return nil
}

// GetByID retrieves a user by ID.
func (r *userRepository) GetByID(ctx context.Context, id int64) (*domain.UserAccount, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE id = $1`

	user, err := scanUser(r.db.Pool.QueryRow(ctx, query, id))
	if err != nil {
		if isNoRows(err) {
			return nil, domain.ErrUserNotFound
		}
		return nil, fmt.Errorf("failed to get user by ID: %w", err)
	}

	if err := loadAssociations(ctx, r.db.Pool, user); err != nil {
		return nil, err
	}
	return user, nil
}

// GetByUsername retrieves a user by username.
func (r *userRepository) GetByUsername(ctx context.Context, username string) (*domain.UserAccount, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE username = $1`

	user, err := scanUser(r.db.Pool.QueryRow(ctx, query, username))
	if err != nil {
		if isNoRows(err) {
			return nil, domain.ErrUserNotFound
		}
		return nil, fmt.Errorf("failed to get user by username: %w", err)
	}

	if err := loadAssociations(ctx, r.db.Pool, user); err != nil {
		return nil, err
	}
	return user, nil
}

// Update updates an existing user, replaces its role links, inserts its
// unsaved carts and deletes the carts detached with RemoveCart.
func (r *userRepository) Update(ctx context.Context, user *domain.UserAccount) error {
	user.Touch(time.Now())

	restore := user.Checkpoint()
	err := r.db.WithTx(ctx, pgx.TxOptions{}, func(tx pgx.Tx) error {
		query := `
			UPDATE users
			SET username = $1, password_hash = $2, comments = $3, updated_at = $4
			WHERE id = $5
		`

		tag, err := tx.Exec(ctx, query,
			user.Username,
			user.PasswordHash,
			user.Comments,
			user.UpdatedAt,
			user.ID,
		)
		if err != nil {
			if isUniqueViolation(err) {
				return domain.NewDomainError(domain.ErrUserAlreadyExists, "username already exists", user.Username)
			}
			return fmt.Errorf("failed to update user: %w", err)
		}
		if tag.RowsAffected() == 0 {
			return domain.ErrUserNotFound
		}

		if _, err := tx.Exec(ctx, `DELETE FROM user_roles WHERE user_id = $1`, user.ID); err != nil {
			return fmt.Errorf("failed to clear user roles: %w", err)
		}
		if err := insertRoleLinks(ctx, tx, user); err != nil {
			return err
		}
		return syncCarts(ctx, tx, user)
	})
	if err != nil {
		restore()
		return err
	}
	user.ClearRemovedCarts()
	return nil
}

// Delete removes the user's carts and role links, then the user.
func (r *userRepository) Delete(ctx context.Context, id int64) error {
	return r.db.WithTx(ctx, pgx.TxOptions{}, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `DELETE FROM carts WHERE user_id = $1`, id); err != nil {
			return fmt.Errorf("failed to delete user carts: %w", err)
		}
		if _, err := tx.Exec(ctx, `DELETE FROM user_roles WHERE user_id = $1`, id); err != nil {
			return fmt.Errorf("failed to delete user roles: %w", err)
		}

		tag, err := tx.Exec(ctx, `DELETE FROM users WHERE id = $1`, id)
		if err != nil {
			return fmt.Errorf("failed to delete user: %w", err)
		}
		if tag.RowsAffected() == 0 {
			return domain.ErrUserNotFound
		}
		return nil
	})
}

// List returns all users with pagination.
func (r *userRepository) List(ctx context.Context, opts repository.ListOptions) (*repository.ListResult[domain.UserAccount], error) {
	var total int64
	if err := r.db.Pool.QueryRow(ctx, `SELECT COUNT(*) FROM users`).Scan(&total); err != nil {
		return nil, fmt.Errorf("failed to count users: %w", err)
	}

	query := `SELECT ` + userColumns + ` FROM users ORDER BY id LIMIT $1 OFFSET $2`

	rows, err := r.db.Pool.Query(ctx, query, opts.Limit, opts.Offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list users: %w", err)
	}

	users, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (*domain.UserAccount, error) {
		return scanUser(row)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to scan users: %w", err)
	}

	for _, user := range users {
		if err := loadAssociations(ctx, r.db.Pool, user); err != nil {
			return nil, err
		}
	}

	return &repository.ListResult[domain.UserAccount]{
		Items:  users,
		Total:  total,
		Offset: opts.Offset,
		Limit:  opts.Limit,
	}, nil
}

// ExistsByUsername checks if a user with the given username exists.
func (r *userRepository) ExistsByUsername(ctx context.Context, username string) (bool, error) {
	var exists bool
	err := r.db.Pool.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM users WHERE username = $1)`, username).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check username existence: %w", err)
	}
	return exists, nil
}

func scanUser(row pgx.Row) (*domain.UserAccount, error) {
	user := &domain.UserAccount{
		Carts: []*domain.Cart{},
		Roles: []*domain.UserRoleLink{},
	}
	err := row.Scan(
		&user.ID,
		&user.Username,
		&user.PasswordHash,
		&user.Comments,
		&user.CreatedAt,
		&user.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return user, nil
}

// loadAssociations fills the user's role links and carts in insertion order.
func loadAssociations(ctx context.Context, q Querier, user *domain.UserAccount) error {
	query := `
		SELECT ur.user_id, ur.created_at, ur.updated_at,
		       r.id, r.name, r.created_at, r.updated_at
		FROM user_roles ur
		JOIN roles r ON r.id = ur.role_id
		WHERE ur.user_id = $1
		ORDER BY ur.id
	`

	rows, err := q.Query(ctx, query, user.ID)
	if err != nil {
		return fmt.Errorf("failed to list user roles: %w", err)
	}

	links, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (*domain.UserRoleLink, error) {
		link := &domain.UserRoleLink{Role: &domain.Role{}}
		err := row.Scan(
			&link.UserID, &link.CreatedAt, &link.UpdatedAt,
			&link.Role.ID, &link.Role.Name, &link.Role.CreatedAt, &link.Role.UpdatedAt,
		)
		return link, err
	})
	if err != nil {
		return fmt.Errorf("failed to scan user roles: %w", err)
	}
	user.Roles = append([]*domain.UserRoleLink{}, links...)

	carts, err := listCarts(ctx, q, user.ID)
	if err != nil {
		return err
	}
	user.Carts = carts
	return nil
}

// insertRoleLinks writes the user's role links. Roles are always resolved
// by name; a caller-supplied role ID is not trusted.
func insertRoleLinks(ctx context.Context, q Querier, user *domain.UserAccount) error {
	now := time.Now().UTC()
	for _, link := range user.Roles {
		if link.Role == nil {
			continue
		}
		role, err := getRoleByName(ctx, q, link.Role.Name)
		if err != nil {
			return err
		}
		link.Role = role
		if link.CreatedAt.IsZero() {
			link.CreatedAt = now
		}
		if link.UpdatedAt.IsZero() {
			link.UpdatedAt = now
		}
		link.UserID = user.ID

		_, err = q.Exec(ctx,
			`INSERT INTO user_roles (user_id, role_id, created_at, updated_at) VALUES ($1, $2, $3, $4)`,
			user.ID, link.Role.ID, link.CreatedAt, link.UpdatedAt,
		)
		if err != nil {
			if isForeignKeyViolation(err) {
				return domain.NewDomainError(domain.ErrRoleNotFound, "", link.Role.Name)
			}
			return fmt.Errorf("failed to assign role: %w", err)
		}
	}
	return nil
}

// syncCarts inserts the user's unsaved carts and deletes the carts detached
// with RemoveCart. Stored carts the account did not load are left alone.
func syncCarts(ctx context.Context, q Querier, user *domain.UserAccount) error {
	for _, cart := range user.Carts {
		cart.UserID = user.ID
		if cart.ID != 0 {
			continue
		}
		if err := insertCart(ctx, q, cart); err != nil {
			return err
		}
	}

	removed := user.RemovedCartIDs()
	if len(removed) == 0 {
		return nil
	}
	_, err := q.Exec(ctx, `DELETE FROM carts WHERE user_id = $1 AND id = ANY($2)`, user.ID, removed)
	if err != nil {
		return fmt.Errorf("failed to delete detached carts: %w", err)
	}
	return nil
}

// Ensure userRepository implements repository.UserRepository.
var _ repository.UserRepository = (*userRepository)(nil)
