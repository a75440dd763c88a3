package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/prn-tf/shoppingcart/internal/domain"
	"github.com/prn-tf/shoppingcart/internal/repository"
)

// cartRepository implements repository.CartRepository.
type cartRepository struct {
	db *DB
}

// NewCartRepository creates a new PostgreSQL cart repository.
func NewCartRepository(db *DB) repository.CartRepository {
	return &cartRepository{db: db}
}

// Create creates a new cart for cart.UserID.
func (r *cartRepository) Create(ctx context.Context, cart *domain.Cart) error {
	return insertCart(ctx, r.db.Pool, cart)
}

// ListByUser returns the carts owned by a user in creation order.
func (r *cartRepository) ListByUser(ctx context.Context, userID int64) ([]*domain.Cart, error) {
	return listCarts(ctx, r.db.Pool, userID)
}

// Delete deletes a cart owned by userID.
func (r *cartRepository) Delete(ctx context.Context, userID, cartID int64) error {
	tag, err := r.db.Pool.Exec(ctx, `DELETE FROM carts WHERE id = $1 AND user_id = $2`, cartID, userID)
	if err != nil {
		return fmt.Errorf("failed to delete cart: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrCartNotFound
	}
	return nil
}

func insertCart(ctx context.Context, q Querier, cart *domain.Cart) error {
	err := q.QueryRow(ctx,
		`INSERT INTO carts (user_id, created_at, updated_at) VALUES ($1, $2, $3) RETURNING id`,
		cart.UserID, cart.CreatedAt, cart.UpdatedAt,
	).Scan(&cart.ID)
	if err != nil {
		if isForeignKeyViolation(err) {
			return domain.ErrUserNotFound
		}
		return fmt.Errorf("failed to create cart: %w", err)
	}
	return nil
}

func listCarts(ctx context.Context, q Querier, userID int64) ([]*domain.Cart, error) {
	rows, err := q.Query(ctx,
		`SELECT id, user_id, created_at, updated_at FROM carts WHERE user_id = $1 ORDER BY id`, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list carts: %w", err)
	}

	carts, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (*domain.Cart, error) {
		cart := &domain.Cart{}
		err := row.Scan(&cart.ID, &cart.UserID, &cart.CreatedAt, &cart.UpdatedAt)
		return cart, err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to scan carts: %w", err)
	}
	return append([]*domain.Cart{}, carts...), nil
}

// Ensure cartRepository implements repository.CartRepository.
var _ repository.CartRepository = (*cartRepository)(nil)
