package domain

import (
	"strings"
	"time"
	"unicode/utf8"
)

// AuthorityPrefix is prepended to upper-cased role names to form capability tokens.
const AuthorityPrefix = "ROLE_"

// MaxRoleNameLength is the longest accepted role name.
const MaxRoleNameLength = 50

// Role is a named permission group, e.g. "admin" or "user".
type Role struct {
	// ID is the unique identifier for the role (auto-generated).
	ID int64 `json:"id"`

	// Name is the unique role name.
	Name string `json:"name"`

	Auditable
}

// NewRole creates a new Role with audit timestamps set.
func NewRole(name string) *Role {
	return &Role{
		Name:      name,
		Auditable: NewAuditable(time.Now()),
	}
}

// Authority returns the capability token for the role: "ROLE_" followed by
// the upper-cased name.
func (r *Role) Authority() string {
	return AuthorityPrefix + strings.ToUpper(r.Name)
}

// ValidateRoleName checks that a role name is non-blank and at most MaxRoleNameLength runes.
func ValidateRoleName(name string) error {
	if strings.TrimSpace(name) == "" || utf8.RuneCountInString(name) > MaxRoleNameLength {
		return NewDomainError(ErrInvalidRoleName, "", name)
	}
	return nil
}

// UserRoleLink assigns a Role to a UserAccount. The link is owned by the account.
type UserRoleLink struct {
	// UserID is the owning account. Omitted on output to avoid the back-reference.
	UserID int64 `json:"-"`

	// Role is the referenced role.
	Role *Role `json:"role"`

	Auditable
}

// Authority returns the capability token for the linked role,
// or "" when the link carries no role.
func (l *UserRoleLink) Authority() string {
	if l == nil || l.Role == nil {
		return ""
	}
	return l.Role.Authority()
}

// RoleName returns the linked role's name, or "" when the link carries no role.
func (l *UserRoleLink) RoleName() string {
	if l == nil || l.Role == nil {
		return ""
	}
	return l.Role.Name
}
