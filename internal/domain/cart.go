package domain

import "time"

// Cart is a shopping cart owned by exactly one UserAccount.
// Its lifetime is bound to the owning account.
type Cart struct {
	// ID is the unique identifier for the cart (auto-generated).
	ID int64 `json:"id"`

	// UserID is the owning account. Omitted on output to avoid the back-reference.
	UserID int64 `json:"-"`

	Auditable
}

// NewCart creates an unsaved cart with audit timestamps set.
func NewCart() *Cart {
	return &Cart{Auditable: NewAuditable(time.Now())}
}
