package auth

import (
	"crypto/sha256"
	"fmt"

	"github.com/google/uuid"
)

// NewSessionToken returns a fresh opaque token. Only its hash is stored.
func NewSessionToken() string {
	return uuid.NewString() + uuid.NewString()
}

func HashToken(value string) string {
	sum := sha256.Sum256([]byte(value))
	return fmt.Sprintf("%x", sum)
}
