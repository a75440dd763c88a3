package crypto

import (
	"crypto/rand"
	"fmt"
)

// passwordChars contains characters used in generated passwords.
const passwordChars = "ABCDEFGHJKLMNPQRSTUVWXYZabcdefghijkmnopqrstuvwxyz23456789!@#%+=-_"

// DefaultGeneratedPasswordLength is the length of passwords from GeneratePassword
// when no length is requested.
const DefaultGeneratedPasswordLength = 20

// GeneratePassword generates a random password of the given length.
// A non-positive length falls back to DefaultGeneratedPasswordLength.
func GeneratePassword(length int) (string, error) {
	if length <= 0 {
		length = DefaultGeneratedPasswordLength
	}
	return generateRandomString(length, passwordChars)
}

// generateRandomString generates a random string of the specified length
// using characters from the provided character set.
func generateRandomString(length int, charset string) (string, error) {
	result := make([]byte, length)
	charsetLen := len(charset)

	randomBytes := make([]byte, length)
	if _, err := rand.Read(randomBytes); err != nil {
		return "", fmt.Errorf("failed to generate random bytes: %w", err)
	}

	for i := 0; i < length; i++ {
		result[i] = charset[int(randomBytes[i])%charsetLen]
	}

	return string(result), nil
}
