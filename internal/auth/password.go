package auth

import (
	"errors"
	"fmt"

	"github.com/isdelr/todo-api/internal/apperr"
	"golang.org/x/crypto/bcrypt"
)

// MaxPasswordBytes is the longest password bcrypt accepts.
const MaxPasswordBytes = 72

// Hasher produces and checks salted bcrypt password digests.
type Hasher struct {
	cost int

	// dummy is compared against when a login names an unknown account, so the
	// response time does not reveal whether the email is registered.
	dummy []byte
}

// NewHasher creates a Hasher. Out-of-range costs fall back to bcrypt.DefaultCost.
func NewHasher(cost int) *Hasher {
	if cost < bcrypt.MinCost || cost > bcrypt.MaxCost {
		cost = bcrypt.DefaultCost
	}
	dummy, err := bcrypt.GenerateFromPassword([]byte("not-a-real-password"), cost)
	if err != nil {
		dummy = nil
	}
	return &Hasher{cost: cost, dummy: dummy}
}

// Hash returns a bcrypt digest of plaintext. Each call uses a fresh salt. Passwords
// longer than MaxPasswordBytes are a validation error.
func (h *Hasher) Hash(plaintext string) (string, error) {
	if len(plaintext) > MaxPasswordBytes {
		return "", apperr.Validation("password", "Password must be at most 72 bytes")
	}
	digest, err := bcrypt.GenerateFromPassword([]byte(plaintext), h.cost)
	if err != nil {
		if errors.Is(err, bcrypt.ErrPasswordTooLong) {
			return "", apperr.Validation("password", "Password must be at most 72 bytes")
		}
		return "", fmt.Errorf("failed to hash password: %w", err)
	}
	return string(digest), nil
}

// Verify reports whether plaintext matches digest. A malformed digest is a mismatch.
func (h *Hasher) Verify(plaintext, digest string) bool {
	return bcrypt.CompareHashAndPassword([]byte(digest), []byte(plaintext)) == nil
}

// VerifyNothing burns one comparison's worth of time for an unknown account.
func (h *Hasher) VerifyNothing(plaintext string) {
	if h.dummy != nil {
		_ = bcrypt.CompareHashAndPassword(h.dummy, []byte(plaintext))
	}
}
