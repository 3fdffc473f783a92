// Package auth verifies passwords and derives session tokens.
package auth

import (
	"crypto/md5"
	"crypto/sha1"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/crypto/bcrypt"
)

// MinPasswordLength applies to passwords set through this package.
const MinPasswordLength = 8

var (
	ErrInvalidCredentials = errors.New("invalid username or password")
	ErrPasswordTooShort   = fmt.Errorf("password must be at least %d characters", MinPasswordLength)
)

func HashPassword(password string) (string, error) {
	if len(password) < MinPasswordLength {
		return "", ErrPasswordTooShort
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("hash password: %w", err)
	}
	return string(hash), nil
}

// CheckPassword compares password with a stored hash. Besides bcrypt it
// accepts the salted "sha1$salt$hex" and "md5$salt$hex" forms carried over
// by the legacy import. Anything else, including an empty hash, fails.
func CheckPassword(hash, password string) error {
	switch {
	case hash == "" || strings.HasPrefix(hash, "!"):
		return ErrInvalidCredentials
	case strings.HasPrefix(hash, "$2"):
		if bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) != nil {
			return ErrInvalidCredentials
		}
		return nil
	}

	parts := strings.Split(hash, "$")
	if len(parts) != 3 {
		return ErrInvalidCredentials
	}
	algo, salt, want := parts[0], parts[1], parts[2]
	var got string
	switch algo {
	case "sha1":
		sum := sha1.Sum([]byte(salt + password))
		got = hex.EncodeToString(sum[:])
	case "md5":
		sum := md5.Sum([]byte(salt + password))
		got = hex.EncodeToString(sum[:])
	default:
		return ErrInvalidCredentials
	}
	if subtle.ConstantTimeCompare([]byte(got), []byte(want)) != 1 {
		return ErrInvalidCredentials
	}
	return nil
}

// NeedsRehash reports whether a stored hash should be upgraded to bcrypt
// after a successful sign-in.
func NeedsRehash(hash string) bool {
	return !strings.HasPrefix(hash, "$2")
}
