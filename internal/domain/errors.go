// Package domain contains the core business entities for the shopping cart.
package domain

import (
	"errors"
	"fmt"
)

// Domain errors - these represent business rule violations.
// They are distinct from infrastructure errors (database, network, etc.).

var (
	// ===========================================
	// User Account Errors
	// ===========================================

	// ErrUserNotFound indicates the requested user account does not exist.
	ErrUserNotFound = errors.New("user not found")

	// ErrUserAlreadyExists indicates an account with the same username exists.
	ErrUserAlreadyExists = errors.New("user already exists")

	// ErrInvalidCredentials indicates authentication failed.
	ErrInvalidCredentials = errors.New("invalid credentials")

	// ErrInvalidUsername indicates the username violates its constraints (required, 2-30 chars).
	ErrInvalidUsername = errors.New("username must be between 2 and 30 characters")

	// ErrInvalidPassword indicates the plaintext credential is shorter than 4 characters.
	ErrInvalidPassword = errors.New("password must be 4 or more characters")

	// ErrIDAlreadyAssigned indicates an attempt to change an identifier after first save.
	ErrIDAlreadyAssigned = errors.New("identifier already assigned")

	// ErrForeignOwner indicates an owned child references a different account.
	ErrForeignOwner = errors.New("child belongs to another account")

	// ===========================================
	// Role Errors
	// ===========================================

	// ErrRoleNotFound indicates the requested role does not exist.
	ErrRoleNotFound = errors.New("role not found")

	// ErrRoleAlreadyExists indicates a role with the same name exists.
	ErrRoleAlreadyExists = errors.New("role already exists")

	// ErrInvalidRoleName indicates the role name is empty or too long.
	ErrInvalidRoleName = errors.New("role name must be between 1 and 50 characters")

	// ErrRoleNotAssigned indicates the account does not hold the role.
	ErrRoleNotAssigned = errors.New("role not assigned to user")

	// ErrRoleInUse indicates the role is still assigned to accounts.
	ErrRoleInUse = errors.New("role is assigned to users")

	// ===========================================
	// Cart Errors
	// ===========================================

	// ErrCartNotFound indicates the requested cart does not exist.
	ErrCartNotFound = errors.New("cart not found")
)

// DomainError wraps a domain error with additional context.
type DomainError struct {
	// Err is the underlying domain error.
	Err error

	// Message provides additional context.
	Message string

	// Resource identifies the affected resource (e.g., username, role name).
	Resource string
}

// Error implements the error interface.
func (e *DomainError) Error() string {
	if e.Resource != "" {
		return fmt.Sprintf("%s: %s (%s)", e.Err.Error(), e.Message, e.Resource)
	}
	if e.Message != "" {
		return fmt.Sprintf("%s: %s", e.Err.Error(), e.Message)
	}
	return e.Err.Error()
}

// Unwrap returns the underlying error for errors.Is/errors.As.
func (e *DomainError) Unwrap() error {
	return e.Err
}

// NewDomainError creates a new DomainError with context.
func NewDomainError(err error, message, resource string) *DomainError {
	return &DomainError{
		Err:      err,
		Message:  message,
		Resource: resource,
	}
}

// WrapError wraps an error with domain context if it's not already a DomainError.
func WrapError(err error, message string) error {
	if err == nil {
		return nil
	}

	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return err
	}

	return &DomainError{
		Err:     err,
		Message: message,
	}
}
