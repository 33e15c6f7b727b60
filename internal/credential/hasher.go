// Package credential protects secrets at rest. Hasher produces one-way
// bcrypt hashes for proving possession (PINs, passwords, upload tokens);
// Redisplay keeps a reversible AES-GCM copy of upload tokens so an admin can
// look at an issued link again. The two are independent: neither is ever
// derived from the other.
package credential

import (
	"crypto/subtle"
	"errors"
	"strings"

	"golang.org/x/crypto/bcrypt"
)

type Hasher struct {
	cost int
}

// NewHasher returns a bcrypt hasher. A zero cost means bcrypt.DefaultCost.
func NewHasher(cost int) (*Hasher, error) {
	if cost == 0 {
		cost = bcrypt.DefaultCost
	}
	if cost < bcrypt.MinCost || cost > bcrypt.MaxCost {
		return nil, errors.New("bcrypt cost out of range")
	}
	return &Hasher{cost: cost}, nil
}

func (h *Hasher) Hash(plain string) (string, error) {
	b, err := bcrypt.GenerateFromPassword([]byte(plain), h.cost)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// Verify reports whether plain matches hash. Malformed hashes never match.
func (h *Hasher) Verify(plain, hash string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(plain)) == nil
}

// IsHashed recognizes bcrypt's own "$2a$", "$2b$", "$2y$" format so stored
// legacy plaintext can be told apart from migrated values.
func IsHashed(v string) bool {
	if !strings.HasPrefix(v, "$2") {
		return false
	}
	_, err := bcrypt.Cost([]byte(v))
	return err == nil
}

// Matches checks plain against stored, which may be a hash or legacy
// plaintext. upgrade is true when stored was plaintext and matched, meaning
// the caller should replace it with a hash.
func (h *Hasher) Matches(plain, stored string) (ok, upgrade bool) {
	if IsHashed(stored) {
		return h.Verify(plain, stored), false
	}
	if stored == "" {
		return false, false
	}
	if subtle.ConstantTimeCompare([]byte(plain), []byte(stored)) == 1 {
		return true, true
	}
	return false, false
}
