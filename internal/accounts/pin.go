package accounts

import (
	"photoframe/internal/common"
)

// AuthenticateByPIN finds the account whose PIN matches. clientKey is the
// rate-limit key, normally the caller's IP.
//
// Accounts are scanned in stored order and the first match wins. A legacy plaintext PIN that matches is migrated to a hash
// in the same write that stamps lastAccessed.
func (m *Manager) AuthenticateByPIN(pin, clientKey string) (Account, error) {
	if st := m.limiter.Check(clientKey); !st.Allowed {
		m.log.Warn("pin auth rate limited", "client", clientKey)
		return Account{}, common.RateLimited(st.RetryAfterMinutes)
	}
	if pin == "" {
		return Account{}, common.Validation("PIN is required")
	}

	var (
		matched Account
		found   bool
		upgrade bool
	)
	for _, a := range m.store.Load() {
		ok, up := m.hasher.Matches(pin, a.PIN)
		if ok {
			matched, found, upgrade = a, true, up
			break
		}
	}
	if !found {
		m.limiter.RecordFailure(clientKey)
		st := m.limiter.Check(clientKey)
		return Account{}, common.InvalidCredential(common.CodeInvalidPIN, "Invalid PIN", st.AttemptsRemaining)
	}

	m.limiter.RecordSuccess(clientKey)

	var newHash string
	if upgrade {
		h, err := m.hasher.Hash(pin)
		if err != nil {
			return Account{}, err
		}
		newHash = h
	}
	now := m.now().UTC()
	err := m.store.Update(func(all []Account) ([]Account, error) {
		i := indexOf(all, matched.ID)
		if i < 0 {
			// Deleted between scan and write; the PIN was still valid.
			return all, nil
		}
		a := &all[i]
		if upgrade && a.PIN == matched.PIN {
			a.PIN = newHash
		}
		a.LastAccessed = &now
		matched = *a
		return all, nil
	})
	if err != nil {
		return Account{}, err
	}
	if upgrade {
		m.log.Info("migrated legacy plaintext pin", "account_id", matched.ID)
	}
	return matched, nil
}
