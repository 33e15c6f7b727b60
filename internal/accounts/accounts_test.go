package accounts

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"photoframe/internal/common"
	"photoframe/internal/credential"
	"photoframe/internal/ratelimit"
	"photoframe/internal/store"
)

type clock struct{ t time.Time }

func (c *clock) Now() time.Time { return c.t }

func newManager(t *testing.T) (*Manager, *store.Store[Account], *clock) {
	t.Helper()
	st, err := store.Open[Account](filepath.Join(t.TempDir(), "access-accounts.json"), nil)
	require.NoError(t, err)
	h, err := credential.NewHasher(bcrypt.MinCost)
	require.NoError(t, err)
	c := &clock{t: time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)}
	m := New(Options{
		Store:   st,
		Hasher:  h,
		Limiter: ratelimit.New(ratelimit.Options{Now: c.Now}),
		Now:     c.Now,
	})
	return m, st, c
}

func boolPtr(b bool) *bool { return &b }

func TestCreate_HashesPIN(t *testing.T) {
	m, st, _ := newManager(t)

	acc, err := m.Create(Input{Name: "Kids", PIN: "0000", AssignedFolders: []string{"/family/"}, UploadAccess: boolPtr(true)})
	require.NoError(t, err)
	assert.NotEmpty(t, acc.ID)
	assert.True(t, credential.IsHashed(acc.PIN))
	assert.Equal(t, []string{"family"}, acc.AssignedFolders)
	assert.True(t, acc.UploadAccess)
	assert.Nil(t, acc.LastAccessed)

	stored := st.Load()
	require.Len(t, stored, 1)
	assert.NotEqual(t, "0000", stored[0].PIN)
}

func TestCreate_Validation(t *testing.T) {
	m, _, _ := newManager(t)

	_, err := m.Create(Input{Name: "", PIN: "1"})
	assert.ErrorIs(t, err, common.ErrValidation)
	_, err = m.Create(Input{Name: "x", PIN: ""})
	assert.ErrorIs(t, err, common.ErrValidation)
	assert.Empty(t, m.List())
}

func TestUpdate(t *testing.T) {
	m, _, _ := newManager(t)
	acc, err := m.Create(Input{Name: "Kids", PIN: "0000", UploadAccess: boolPtr(true)})
	require.NoError(t, err)

	t.Run("pin is mandatory", func(t *testing.T) {
		_, err := m.Update(acc.ID, Input{Name: "Kids", AssignedFolders: []string{"family"}})
		assert.ErrorIs(t, err, common.ErrValidation)
	})

	t.Run("upload access preserved when omitted", func(t *testing.T) {
		got, err := m.Update(acc.ID, Input{Name: "Children", PIN: "1111", AssignedFolders: []string{"family"}})
		require.NoError(t, err)
		assert.Equal(t, "Children", got.Name)
		assert.True(t, got.UploadAccess)
		assert.Equal(t, []string{"family"}, got.AssignedFolders)

		_, err = m.AuthenticateByPIN("1111", "ip")
		require.NoError(t, err)
	})

	t.Run("upload access can be revoked", func(t *testing.T) {
		got, err := m.Update(acc.ID, Input{Name: "Children", PIN: "1111", UploadAccess: boolPtr(false)})
		require.NoError(t, err)
		assert.False(t, got.UploadAccess)
	})

	t.Run("unknown id", func(t *testing.T) {
		_, err := m.Update("nope", Input{Name: "x", PIN: "1"})
		assert.ErrorIs(t, err, common.ErrNotFound)
		d, ok := common.AsDenial(err)
		require.True(t, ok)
		assert.Equal(t, common.CodeAccountNotFound, d.Code)
	})
}

func TestDelete(t *testing.T) {
	m, _, _ := newManager(t)
	a, err := m.Create(Input{Name: "a", PIN: "1"})
	require.NoError(t, err)
	b, err := m.Create(Input{Name: "b", PIN: "2"})
	require.NoError(t, err)

	require.NoError(t, m.Delete(a.ID))
	all := m.List()
	require.Len(t, all, 1)
	assert.Equal(t, b.ID, all[0].ID)

	assert.ErrorIs(t, m.Delete(a.ID), common.ErrNotFound)
	_, err = m.Get(a.ID)
	assert.ErrorIs(t, err, common.ErrNotFound)
}

func TestAuthenticateByPIN_StampsLastAccessed(t *testing.T) {
	m, st, c := newManager(t)
	acc, err := m.Create(Input{Name: "Kids", PIN: "0000"})
	require.NoError(t, err)

	c.t = c.t.Add(time.Hour)
	got, err := m.AuthenticateByPIN("0000", "10.0.0.1")
	require.NoError(t, err)
	assert.Equal(t, acc.ID, got.ID)
	require.NotNil(t, got.LastAccessed)
	assert.True(t, got.LastAccessed.Equal(c.t))

	stored := st.Load()
	require.NotNil(t, stored[0].LastAccessed)
	assert.True(t, stored[0].LastAccessed.Equal(c.t))

	_, err = m.AuthenticateByPIN("0001", "10.0.0.1")
	assert.ErrorIs(t, err, common.ErrInvalidCredential)
}

func TestAuthenticateByPIN_MigratesLegacyPlaintext(t *testing.T) {
	m, st, _ := newManager(t)
	require.NoError(t, st.Save([]Account{{ID: "legacy", Name: "Old", PIN: "1234"}}))

	_, err := m.AuthenticateByPIN("1234", "ip")
	require.NoError(t, err)

	stored := st.Load()
	require.Len(t, stored, 1)
	assert.True(t, credential.IsHashed(stored[0].PIN))
	assert.NotEqual(t, "1234", stored[0].PIN)

	_, err = m.AuthenticateByPIN("1234", "ip")
	assert.NoError(t, err)
}

func TestAuthenticateByPIN_FirstMatchWins(t *testing.T) {
	m, _, _ := newManager(t)
	first, err := m.Create(Input{Name: "first", PIN: "5555"})
	require.NoError(t, err)
	_, err = m.Create(Input{Name: "second", PIN: "5555"})
	require.NoError(t, err)

	got, err := m.AuthenticateByPIN("5555", "ip")
	require.NoError(t, err)
	assert.Equal(t, first.ID, got.ID)
}

func TestAuthenticateByPIN_RateLimit(t *testing.T) {
	m, _, c := newManager(t)
	_, err := m.Create(Input{Name: "Kids", PIN: "0000"})
	require.NoError(t, err)

	for i := 1; i <= 4; i++ {
		_, err := m.AuthenticateByPIN("9999", "1.2.3.4")
		d, ok := common.AsDenial(err)
		require.True(t, ok)
		require.ErrorIs(t, err, common.ErrInvalidCredential)
		require.NotNil(t, d.AttemptsRemaining)
		assert.Equal(t, 5-i, *d.AttemptsRemaining)
	}
	_, err = m.AuthenticateByPIN("9999", "1.2.3.4")
	assert.ErrorIs(t, err, common.ErrInvalidCredential)

	// Locked out now, even with the right PIN.
	_, err = m.AuthenticateByPIN("0000", "1.2.3.4")
	require.ErrorIs(t, err, common.ErrRateLimited)
	d, _ := common.AsDenial(err)
	assert.Equal(t, 15, d.RetryAfterMinutes)

	// Other clients are unaffected.
	_, err = m.AuthenticateByPIN("0000", "5.6.7.8")
	assert.NoError(t, err)

	c.t = c.t.Add(16 * time.Minute)
	_, err = m.AuthenticateByPIN("0000", "1.2.3.4")
	assert.NoError(t, err)
}

func TestAuthenticateByPIN_EmptyPIN(t *testing.T) {
	m, _, _ := newManager(t)
	_, err := m.AuthenticateByPIN("", "ip")
	assert.ErrorIs(t, err, common.ErrValidation)
}

func TestView_HasNoPIN(t *testing.T) {
	m, _, _ := newManager(t)
	acc, err := m.Create(Input{Name: "Kids", PIN: "0000"})
	require.NoError(t, err)

	b, err := json.Marshal(acc.View())
	require.NoError(t, err)
	var fields map[string]any
	require.NoError(t, json.Unmarshal(b, &fields))
	assert.NotContains(t, fields, "pin")
	assert.Equal(t, "Kids", fields["name"])
}

func TestCreate_WriteFailure(t *testing.T) {
	if os.Geteuid() == 0 {
		t.Skip("root ignores directory permissions")
	}
	m, st, _ := newManager(t)
	require.NoError(t, os.Chmod(filepath.Dir(st.Path()), 0o500))
	t.Cleanup(func() { _ = os.Chmod(filepath.Dir(st.Path()), 0o700) })

	_, err := m.Create(Input{Name: "x", PIN: "1"})
	assert.True(t, errors.Is(err, common.ErrStorage))
	assert.False(t, errors.Is(err, common.ErrValidation))
}
