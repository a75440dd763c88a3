package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/prn-tf/shoppingcart/internal/domain"
	"github.com/prn-tf/shoppingcart/internal/repository"
)

// querier is satisfied by *sql.DB, *sql.Tx and *DB.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// userRepository implements repository.UserRepository for SQLite.
type userRepository struct {
	db *DB
}

// NewUserRepository creates a new SQLite user repository.
func NewUserRepository(db *DB) repository.UserRepository {
	return &userRepository{db: db}
}

const userColumns = `id, username, password_hash, comments, created_at, updated_at`

// Create creates a new user with its carts and role links.
func (r *userRepository) Create(ctx context.Context, user *domain.UserAccount) error {
	restore := user.Checkpoint()
	err := r.db.WithTx(ctx, func(tx *sql.Tx) error {
		query := `
			INSERT INTO users (username, password_hash, comments, created_at, updated_at)
			VALUES (?, ?, ?, ?, ?)
		`

		result, err := tx.ExecContext(ctx, query,
			user.Username,
			user.PasswordHash,
			user.Comments,
			formatTime(user.CreatedAt),
			formatTime(user.UpdatedAt),
		)
		if err != nil {
			if isUniqueViolation(err) {
				return domain.NewDomainError(domain.ErrUserAlreadyExists, "username already exists", user.Username)
			}
			return fmt.Errorf("failed to create user: %w", err)
		}

		id, err := result.LastInsertId()
		if err != nil {
			return fmt.Errorf("failed to get last insert ID: %w", err)
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
	query := `SELECT ` + userColumns + ` FROM users WHERE id = ?`

	user, err := scanUser(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if isNoRows(err) {
			return nil, domain.ErrUserNotFound
		}
		return nil, fmt.Errorf("failed to get user by ID: %w", err)
	}

	if err := loadAssociations(ctx, r.db, user); err != nil {
		return nil, err
	}
	return user, nil
}

// GetByUsername retrieves a user by username.
func (r *userRepository) GetByUsername(ctx context.Context, username string) (*domain.UserAccount, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE username = ?`

	user, err := scanUser(r.db.QueryRowContext(ctx, query, username))
	if err != nil {
		if isNoRows(err) {
			return nil, domain.ErrUserNotFound
		}
		return nil, fmt.Errorf("failed to get user by username: %w", err)
	}

	if err := loadAssociations(ctx, r.db, user); err != nil {
		return nil, err
	}
	return user, nil
}

// Update updates an existing user, replaces its role links, inserts its
// unsaved carts and deletes the carts detached with RemoveCart.
func (r *userRepository) Update(ctx context.Context, user *domain.UserAccount) error {
	user.Touch(time.Now())

	restore := user.Checkpoint()
	err := r.db.WithTx(ctx, func(tx *sql.Tx) error {
		query := `
			UPDATE users
			SET username = ?, password_hash = ?, comments = ?, updated_at = ?
			WHERE id = ?
		`

		result, err := tx.ExecContext(ctx, query,
			user.Username,
			user.PasswordHash,
			user.Comments,
			formatTime(user.UpdatedAt),
			user.ID,
		)
		if err != nil {
			if isUniqueViolation(err) {
				return domain.NewDomainError(domain.ErrUserAlreadyExists, "username already exists", user.Username)
			}
			return fmt.Errorf("failed to update user: %w", err)
		}

		rowsAffected, _ := result.RowsAffected()
		if rowsAffected == 0 {
			return domain.ErrUserNotFound
		}

		if _, err := tx.ExecContext(ctx, `DELETE FROM user_roles WHERE user_id = ?`, user.ID); err != nil {
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
	return r.db.WithTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `DELETE FROM carts WHERE user_id = ?`, id); err != nil {
			return fmt.Errorf("failed to delete user carts: %w", err)
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM user_roles WHERE user_id = ?`, id); err != nil {
			return fmt.Errorf("failed to delete user roles: %w", err)
		}

		result, err := tx.ExecContext(ctx, `DELETE FROM users WHERE id = ?`, id)
		if err != nil {
			return fmt.Errorf("failed to delete user: %w", err)
		}

		rowsAffected, _ := result.RowsAffected()
		if rowsAffected == 0 {
			return domain.ErrUserNotFound
		}
		return nil
	})
}

// List returns all users with pagination.
func (r *userRepository) List(ctx context.Context, opts repository.ListOptions) (*repository.ListResult[domain.UserAccount], error) {
	var total int64
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM users`).Scan(&total); err != nil {
		return nil, fmt.Errorf("failed to count users: %w", err)
	}

	query := `SELECT ` + userColumns + ` FROM users ORDER BY id LIMIT ? OFFSET ?`

	rows, err := r.db.QueryContext(ctx, query, opts.Limit, opts.Offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list users: %w", err)
	}
	defer rows.Close()

	var users []*domain.UserAccount
	for rows.Next() {
		user, err := scanUser(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan user: %w", err)
		}
		users = append(users, user)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating users: %w", err)
	}
	rows.Close()

	for _, user := range users {
		if err := loadAssociations(ctx, r.db, user); err != nil {
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
	var count int
	err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM users WHERE username = ?`, username).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("failed to check username existence: %w", err)
	}
	return count > 0, nil
}

// rowScanner is satisfied by *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanUser(row rowScanner) (*domain.UserAccount, error) {
	user := &domain.UserAccount{
		Carts: []*domain.Cart{},
		Roles: []*domain.UserRoleLink{},
	}
	var createdAt, updatedAt string

	if err := row.Scan(
		&user.ID,
		&user.Username,
		&user.PasswordHash,
		&user.Comments,
		&createdAt,
		&updatedAt,
	); err != nil {
		return nil, err
	}

	user.CreatedAt = parseTime(createdAt)
	user.UpdatedAt = parseTime(updatedAt)
	return user, nil
}

// loadAssociations fills the user's role links and carts in insertion order.
func loadAssociations(ctx context.Context, q querier, user *domain.UserAccount) error {
	links, err := listRoleLinks(ctx, q, user.ID)
	if err != nil {
		return err
	}
	user.Roles = links

	carts, err := listCarts(ctx, q, user.ID)
	if err != nil {
		return err
	}
	user.Carts = carts
	return nil
}

func listRoleLinks(ctx context.Context, q querier, userID int64) ([]*domain.UserRoleLink, error) {
	query := `
		SELECT ur.user_id, ur.created_at, ur.updated_at,
		       r.id, r.name, r.created_at, r.updated_at
		FROM user_roles ur
		JOIN roles r ON r.id = ur.role_id
		WHERE ur.user_id = ?
		ORDER BY ur.id
	`

	rows, err := q.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list user roles: %w", err)
	}
	defer rows.Close()

	links := []*domain.UserRoleLink{}
	for rows.Next() {
		link := &domain.UserRoleLink{Role: &domain.Role{}}
		var linkCreated, linkUpdated, roleCreated, roleUpdated string
		if err := rows.Scan(
			&link.UserID, &linkCreated, &linkUpdated,
			&link.Role.ID, &link.Role.Name, &roleCreated, &roleUpdated,
		); err != nil {
			return nil, fmt.Errorf("failed to scan user role: %w", err)
		}
		link.CreatedAt = parseTime(linkCreated)
		link.UpdatedAt = parseTime(linkUpdated)
		link.Role.CreatedAt = parseTime(roleCreated)
		link.Role.UpdatedAt = parseTime(roleUpdated)
		links = append(links, link)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating user roles: %w", err)
	}
	return links, nil
}

// insertRoleLinks writes the user's role links. Roles are always resolved
// by name; a caller-supplied role ID is not trusted.
func insertRoleLinks(ctx context.Context, q querier, user *domain.UserAccount) error {
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

		_, err = q.ExecContext(ctx,
			`INSERT INTO user_roles (user_id, role_id, created_at, updated_at) VALUES (?, ?, ?, ?)`,
			user.ID, link.Role.ID, formatTime(link.CreatedAt), formatTime(link.UpdatedAt),
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
func syncCarts(ctx context.Context, q querier, user *domain.UserAccount) error {
	for _, cart := range user.Carts {
		cart.UserID = user.ID
		if cart.ID != 0 {
			continue
		}
		if err := insertCart(ctx, q, cart); err != nil {
			return err
		}
	}

	for _, id := range user.RemovedCartIDs() {
		if _, err := q.ExecContext(ctx, `DELETE FROM carts WHERE id = ? AND user_id = ?`, id, user.ID); err != nil {
			return fmt.Errorf("failed to delete cart: %w", err)
		}
	}
	return nil
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		t = time.Now()
	}
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(s string) time.Time {
	t, _ := time.Parse(time.RFC3339Nano, s)
	return t
}

// Ensure userRepository implements repository.UserRepository.
var _ repository.UserRepository = (*userRepository)(nil)
