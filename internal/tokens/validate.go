package tokens

import (
	"photoframe/internal/common"
)

// Validate resolves a plaintext secret to its token and checks that it may
// still be used. Every stored hash is tried in order and the first match
// wins. The checks run enabled, then expiry, then limit, and each failure
// carries its own reason code.
func (m *Manager) Validate(secret string) (Token, error) {
	if secret == "" {
		return Token{}, common.Deny(common.ErrNoCredential, common.CodeTokenRequired, "Token is required")
	}

	var (
		t     Token
		found bool
	)
	for _, cand := range m.store.Load() {
		if m.hasher.Verify(secret, cand.TokenHash) {
			t, found = cand, true
			break
		}
	}
	if !found {
		return Token{}, common.Deny(common.ErrInvalidCredential, common.CodeInvalidToken, "Invalid token")
	}

	if !t.Enabled {
		return Token{}, common.Deny(common.ErrDisabled, common.CodeTokenDisabled, "This upload link has been disabled")
	}
	if t.ExpiresAt != nil && m.now().After(t.ExpiresAt.Time) {
		return Token{}, common.Deny(common.ErrExpired, common.CodeTokenExpired, "This upload link has expired")
	}
	if t.UploadLimit != nil && *t.UploadLimit > 0 && t.UploadCount >= *t.UploadLimit {
		return Token{}, common.Deny(common.ErrLimitReached, common.CodeTokenLimitReached, "Upload limit reached for this link")
	}
	return t, nil
}
