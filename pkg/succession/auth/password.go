package auth

import (
	"strings"
	"unicode"

	"golang.org/x/crypto/bcrypt"
)

// SpecialCharacters is the punctuation set a password must draw from
const SpecialCharacters = "!@#$%^&*()_+-=[]{}|;:,.<>?"

// MinPasswordLength is the minimum number of characters in a password
const MinPasswordLength = 8

// WeakPasswordError explains the first strength rule a password fails
type WeakPasswordError struct {
	Reason string
}

func (e *WeakPasswordError) Error() string {
	return e.Reason
}

// HashPassword returns the bcrypt hash of password
func HashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}

// CheckPassword reports whether password matches hash
func CheckPassword(password, hash string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) == nil
}

// ValidatePasswordStrength checks length, then upper, lower, digit and
// special characters, in that order, returning the first failure
func ValidatePasswordStrength(password string) error {
	if len([]rune(password)) < MinPasswordLength {
		return &WeakPasswordError{"Password must be at least 8 characters long"}
	}

	var upper, lower, digit, special bool
	for _, r := range password {
		switch {
		case unicode.IsUpper(r):
			upper = true
		case unicode.IsLower(r):
			lower = true
		case unicode.IsDigit(r):
			digit = true
		case strings.ContainsRune(SpecialCharacters, r):
			special = true
		}
	}

	switch {
	case !upper:
		return &WeakPasswordError{"Password must contain at least one uppercase letter"}
	case !lower:
		return &WeakPasswordError{"Password must contain at least one lowercase letter"}
	case !digit:
		return &WeakPasswordError{"Password must contain at least one digit"}
	case !special:
		return &WeakPasswordError{"Password must contain at least one special character (" + SpecialCharacters + ")"}
	}
	return nil
}
