package sqlite

import (
	"context"
	"fmt"

	"github.com/prn-tf/shoppingcart/internal/domain"
	"github.com/prn-tf/shoppingcart/internal/repository"
)

// cartRepository implements repository.CartRepository for SQLite.
type cartRepository struct {
	db *DB
}

// NewCartRepository creates a new SQLite cart repository.
func NewCartRepository(db *DB) repository.CartRepository {
	return &cartRepository{db: db}
}

// Create creates a new cart for cart.UserID.
func (r *cartRepository) Create(ctx context.Context, cart *domain.Cart) error {
	return insertCart(ctx, r.db, cart)
}

// ListByUser returns the carts owned by a user in creation order.
func (r *cartRepository) ListByUser(ctx context.Context, userID int64) ([]*domain.Cart, error) {
	return listCarts(ctx, r.db, userID)
}

// Delete deletes a cart owned by userID.
func (r *cartRepository) Delete(ctx context.Context, userID, cartID int64) error {
	result, err := r.db.ExecContext(ctx, `DELETE FROM carts WHERE id = ? AND user_id = ?`, cartID, userID)
	if err != nil {
		return fmt.Errorf("failed to delete cart: %w", err)
	}

	rowsAffected, _ := result.RowsAffected()
	if rowsAffected == 0 {
		return domain.ErrCartNotFound
	}
	return nil
}

func insertCart(ctx context.Context, q querier, cart *domain.Cart) error {
	result, err := q.ExecContext(ctx,
		`INSERT INTO carts (user_id, created_at, updated_at) VALUES (?, ?, ?)`,
		cart.UserID, formatTime(cart.CreatedAt), formatTime(cart.UpdatedAt),
	)
	if err != nil {
		if isForeignKeyViolation(err) {
			return domain.ErrUserNotFound
		}
		return fmt.Errorf("failed to create cart: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get last insert ID: %w", err)
	}
	cart.ID = id
	return nil
}

func listCarts(ctx context.Context, q querier, userID int64) ([]*domain.Cart, error) {
	rows, err := q.QueryContext(ctx,
		`SELECT id, user_id, created_at, updated_at FROM carts WHERE user_id = ? ORDER BY id`, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list carts: %w", err)
	}
	defer rows.Close()

	carts := []*domain.Cart{}
	for rows.Next() {
		cart := &domain.Cart{}
		var createdAt, updatedAt string
		if err := rows.Scan(&cart.ID, &cart.UserID, &createdAt, &updatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan cart: %w", err)
		}
		cart.CreatedAt = parseTime(createdAt)
		cart.UpdatedAt = parseTime(updatedAt)
		carts = append(carts, cart)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating carts: %w", err)
	}
	return carts, nil
}

// Ensure cartRepository implements repository.CartRepository.
var _ repository.CartRepository = (*cartRepository)(nil)
