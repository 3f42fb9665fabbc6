package auth

import (
	"fmt"

	"golang.org/x/crypto/bcrypt"

	"sams/pkg/interfaces"
)

// ErrInvalidPassword is returned when a password does not match its hash.
// Unknown emails report the same error.
var ErrInvalidPassword = fmt.Errorf("%w: invalid email or password", interfaces.ErrUnauthenticated)

// MinPasswordLength is enforced at registration
const MinPasswordLength = 8

// HashPassword hashes a password with bcrypt's default cost
func HashPassword(password string) (string, error) {
	if len(password) < MinPasswordLength {
		return "", fmt.Errorf("password must be at least %d characters", MinPasswordLength)
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("failed to hash password: %w", err)
	}
	return string(hash), nil
}

// CheckPassword compares a password against a stored hash
func CheckPassword(hash, password string) error {
	if err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)); err != nil {
		return ErrInvalidPassword
	}
	return nil
}
