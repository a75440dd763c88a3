// Package domain contains the core business entities for the shopping cart.
// These are plain Go structs; the only collaborator they call into is the
// credential hasher in internal/pkg/crypto.
package domain

import (
	"encoding/json"
	"time"

	"github.com/prn-tf/shoppingcart/internal/pkg/crypto"
)

// UserAccount represents a registered shopper.
// An account owns its carts and role links: they are created, updated and
// destroyed together with it.
type UserAccount struct {
	// ID is the unique identifier for the account (assigned on first save).
	ID int64 `json:"id"`

	// Username is the unique username for sign on.
	// Constraints: required, 2-30 characters.
	Username string `json:"username" validate:"required,min=2,max=30"`

	// PasswordHash is the bcrypt hash of the account's password.
	// It is never serialized.
	PasswordHash string `json:"-"`

	// Comments is free-form text about the account.
	Comments string `json:"comments"`

	// Carts are the carts owned by this account, in insertion order.
	Carts []*Cart `json:"carts"`

	// Roles are the role assignments owned by this account, in insertion order.
	Roles []*UserRoleLink `json:"roles"`

	Auditable

	// removedCarts holds IDs of stored carts detached since the last save.
	removedCarts []int64
}

// NewUserAccount creates a new account with no carts and no roles.
func NewUserAccount(username, comments string) *UserAccount {
	return &UserAccount{
		Username:  username,
		Comments:  comments,
		Carts:     []*Cart{},
		Roles:     []*UserRoleLink{},
		Auditable: NewAuditable(time.Now()),
	}
}

// SetCredential hashes plaintext with a fresh salt and stores only the hash.
// Every call re-hashes, even when the plaintext is unchanged.
// The length rule from ValidatePassword is not applied here.
func (u *UserAccount) SetCredential(plaintext string) error {
	hash, err := crypto.HashPassword(plaintext)
	if err != nil {
		return err
	}
	u.PasswordHash = hash
	return nil
}

// CredentialHash returns the stored password hash.
func (u *UserAccount) CredentialHash() string {
	return u.PasswordHash
}

// VerifyCredential reports whether plaintext matches the stored hash.
func (u *UserAccount) VerifyCredential(plaintext string) bool {
	return crypto.ComparePassword(u.PasswordHash, plaintext)
}

// Authorities derives one capability token per role link, in link order,
// without removing duplicates. The result is recomputed on every call.
func (u *UserAccount) Authorities() []string {
	authorities := make([]string, 0, len(u.Roles))
	for _, link := range u.Roles {
		authorities = append(authorities, link.Authority())
	}
	return authorities
}

// HasAuthority reports whether any role link yields the given token.
func (u *UserAccount) HasAuthority(authority string) bool {
	for _, link := range u.Roles {
		if link.Authority() == authority {
			return true
		}
	}
	return false
}

// AssignID records the identifier given by the persistence layer and
// propagates it to owned children. Once set, the identifier cannot change.
func (u *UserAccount) AssignID(id int64) error {
	if u.ID != 0 && u.ID != id {
		return NewDomainError(ErrIDAlreadyAssigned, "user id cannot change", u.Username)
	}
	u.ID = id
	for _, c := range u.Carts {
		c.UserID = id
	}
	for _, l := range u.Roles {
		l.UserID = id
	}
	return nil
}

// Checkpoint records the identifiers a save may assign. The returned
// function puts them back and is called when the save is rolled back, so the
// account can be saved again.
func (u *UserAccount) Checkpoint() (restore func()) {
	id := u.ID
	var unsaved []*Cart
	for _, c := range u.Carts {
		if c.ID == 0 {
			unsaved = append(unsaved, c)
		}
	}
	return func() {
		u.ID = id
		for _, c := range unsaved {
			c.ID = 0
		}
		for _, c := range u.Carts {
			c.UserID = id
		}
		for _, l := range u.Roles {
			l.UserID = id
		}
	}
}

// AddCart attaches a cart to the account and makes the account its owner.
func (u *UserAccount) AddCart(cart *Cart) {
	cart.UserID = u.ID
	u.Carts = append(u.Carts, cart)
}

// RemoveCart detaches the cart with the given ID. A stored cart is
// deleted by the next save of the account.
func (u *UserAccount) RemoveCart(cartID int64) error {
	for i, c := range u.Carts {
		if c.ID == cartID {
			u.Carts = append(u.Carts[:i], u.Carts[i+1:]...)
			if cartID != 0 {
				u.removedCarts = append(u.removedCarts, cartID)
			}
			return nil
		}
	}
	return ErrCartNotFound
}

// RemovedCartIDs returns the stored carts detached since the last save.
// Carts the account never loaded are not listed and survive a save.
func (u *UserAccount) RemovedCartIDs() []int64 {
	return u.removedCarts
}

// ClearRemovedCarts forgets detached carts once their deletion is committed.
func (u *UserAccount) ClearRemovedCarts() {
	u.removedCarts = nil
}

// AddRole assigns a role to the account. Assigning the same role twice
// produces two links.
func (u *UserAccount) AddRole(role *Role) {
	u.Roles = append(u.Roles, &UserRoleLink{
		UserID:    u.ID,
		Role:      role,
		Auditable: NewAuditable(time.Now()),
	})
}

// RemoveRole removes every link to the named role.
func (u *UserAccount) RemoveRole(roleName string) error {
	kept := u.Roles[:0]
	removed := false
	for _, l := range u.Roles {
		if l.RoleName() == roleName {
			removed = true
			continue
		}
		kept = append(kept, l)
	}
	if !removed {
		return NewDomainError(ErrRoleNotAssigned, "", roleName)
	}
	u.Roles = kept
	return nil
}

// HasRole reports whether the account holds the named role.
func (u *UserAccount) HasRole(roleName string) bool {
	for _, l := range u.Roles {
		if l.RoleName() == roleName {
			return true
		}
	}
	return false
}

// accountInput is the inbound JSON shape of a UserAccount.
// The ID and the hash are not settable from input; the plaintext password is.
type accountInput struct {
	Username *string         `json:"username"`
	Comments *string         `json:"comments"`
	Password *string         `json:"password"`
	Carts    []*Cart         `json:"carts"`
	Roles    []*UserRoleLink `json:"roles"`
}

// UnmarshalJSON applies an inbound representation. A "password" member is
// routed through SetCredential; associated carts and roles become owned by u.
func (u *UserAccount) UnmarshalJSON(data []byte) error {
	var in accountInput
	if err := json.Unmarshal(data, &in); err != nil {
		return err
	}

	if in.Username != nil {
		u.Username = *in.Username
	}
	if in.Comments != nil {
		u.Comments = *in.Comments
	}
	if in.Password != nil {
		if err := u.SetCredential(*in.Password); err != nil {
			return err
		}
	}
	if in.Carts != nil {
		listed := make(map[int64]bool, len(in.Carts))
		for _, c := range in.Carts {
			if c != nil && c.ID != 0 {
				listed[c.ID] = true
			}
		}
		for _, c := range u.Carts {
			if c.ID != 0 && !listed[c.ID] {
				u.removedCarts = append(u.removedCarts, c.ID)
			}
		}

		u.Carts = make([]*Cart, 0, len(in.Carts))
		for _, c := range in.Carts {
			if c != nil {
				u.AddCart(c)
			}
		}
	}
	if in.Roles != nil {
		u.Roles = make([]*UserRoleLink, 0, len(in.Roles))
		for _, l := range in.Roles {
			if l == nil || l.Role == nil {
				continue
			}
			l.UserID = u.ID
			if l.CreatedAt.IsZero() {
				l.Auditable = NewAuditable(time.Now())
			}
			u.Roles = append(u.Roles, l)
		}
	}
	if u.Carts == nil {
		u.Carts = []*Cart{}
	}
	if u.Roles == nil {
		u.Roles = []*UserRoleLink{}
	}

	return nil
}
