// Package crypto provides credential hashing and generation utilities.
package crypto

import (
	"errors"
	"fmt"
	"sync/atomic"

	"golang.org/x/crypto/bcrypt"
)

// ErrInvalidCost indicates the bcrypt cost is outside bcrypt's accepted range.
var ErrInvalidCost = fmt.Errorf("bcrypt cost must be between %d and %d", bcrypt.MinCost, bcrypt.MaxCost)

// bcryptCost is the work factor used by HashPassword.
// Stored atomically because it is set once at startup and read from any goroutine.
var bcryptCost atomic.Int64

func init() {
	bcryptCost.Store(int64(bcrypt.DefaultCost))
}

// SetBcryptCost sets the process-wide bcrypt work factor.
func SetBcryptCost(cost int) error {
	if cost < bcrypt.MinCost || cost > bcrypt.MaxCost {
		return ErrInvalidCost
	}
	bcryptCost.Store(int64(cost))
	return nil
}

// BcryptCost returns the current bcrypt work factor.
func BcryptCost() int {
	return int(bcryptCost.Load())
}

// HashPassword returns a salted bcrypt hash of plaintext.
// Every call draws a fresh salt, so hashing the same input twice yields
// two different hashes.
func HashPassword(plaintext string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(plaintext), BcryptCost())
	if err != nil {
		return "", fmt.Errorf("failed to hash password: %w", err)
	}
	return string(hash), nil
}

// ComparePassword reports whether plaintext matches the bcrypt hash.
func ComparePassword(hash, plaintext string) bool {
	if hash == "" {
		return false
	}
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(plaintext)) == nil
}

// IsPasswordTooLong reports whether err was caused by an input longer than
// bcrypt accepts (72 bytes).
func IsPasswordTooLong(err error) bool {
	return errors.Is(err, bcrypt.ErrPasswordTooLong)
}

// HashCost returns the cost a stored hash was generated with.
func HashCost(hash string) (int, error) {
	return bcrypt.Cost([]byte(hash))
}
