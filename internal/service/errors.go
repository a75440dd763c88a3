// Package service provides the account and role business logic of the shopping cart.
package service

import (
	"errors"

	"github.com/prn-tf/shoppingcart/internal/domain"
)

// Common service errors. Entity errors alias the domain sentinels so callers
// can match with errors.Is against either package.
var (
	// User errors
	ErrUserNotFound       = domain.ErrUserNotFound
	ErrUserAlreadyExists  = domain.ErrUserAlreadyExists
	ErrInvalidCredentials = domain.ErrInvalidCredentials
	ErrUserBusy           = errors.New("user is being modified by another request")

	// Role errors
	ErrRoleNotFound       = domain.ErrRoleNotFound
	ErrRoleAlreadyExists  = domain.ErrRoleAlreadyExists
	ErrRoleAlreadyGranted = errors.New("role already granted to user")
	ErrRoleNotAssigned    = domain.ErrRoleNotAssigned
	ErrRoleInUse          = domain.ErrRoleInUse

	// Cart errors
	ErrCartNotFound = domain.ErrCartNotFound

	// General errors
	ErrValidation    = errors.New("validation failed")
	ErrInternalError = errors.New("internal server error")
)
