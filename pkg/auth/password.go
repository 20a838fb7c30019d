package auth

import (
	"errors"

	"golang.org/x/crypto/bcrypt"

	"github.com/platinummonkey/taskdesk/pkg/apperr"
)

// MaxPasswordBytes is bcrypt's input limit
const MaxPasswordBytes = 72

// Hasher hashes and verifies passwords
type Hasher interface {
	Hash(plain string) (string, error)
	Verify(plain, hash string) bool
}

// BcryptHasher implements Hasher with bcrypt
type BcryptHasher struct {
	cost int
}

// NewBcryptHasher creates a hasher. A cost outside bcrypt's range falls back
// to bcrypt.DefaultCost.
func NewBcryptHasher(cost int) *BcryptHasher {
	if cost < bcrypt.MinCost || cost > bcrypt.MaxCost {
		cost = bcrypt.DefaultCost
	}
	return &BcryptHasher{cost: cost}
}

// Hash returns a salted bcrypt hash of plain
func (h *BcryptHasher) Hash(plain string) (string, error) {
	if plain == "" {
		return "", apperr.Validation("password is required")
	}
	if len(plain) > MaxPasswordBytes {
		return "", apperr.Validation("password must be at most %d bytes", MaxPasswordBytes)
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(plain), h.cost)
	if err != nil {
		if errors.Is(err, bcrypt.ErrPasswordTooLong) {
			return "", apperr.Validation("password must be at most %d bytes", MaxPasswordBytes)
		}
		return "", apperr.Internal(err, "failed to hash password")
	}
	return string(hash), nil
}

// Verify reports whether plain matches hash. A malformed hash never matches.
func (h *BcryptHasher) Verify(plain, hash string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(plain)) == nil
}
