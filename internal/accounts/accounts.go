// Package accounts manages PIN guest accounts: lightweight identities that an
// admin creates, scoped to a list of folders and optionally allowed to
// upload.
package accounts

import (
	"log/slog"
	"time"

	"github.com/google/uuid"

	"photoframe/internal/common"
	"photoframe/internal/credential"
	"photoframe/internal/fsutil"
	"photoframe/internal/ratelimit"
	"photoframe/internal/store"
)

// Account is the persisted record.
type Account struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	// PIN holds a bcrypt hash. Records written by older versions may hold
	// the plaintext PIN; it is replaced by a hash on the first successful
	// login.
	PIN             string     `json:"pin"`
	AssignedFolders []string   `json:"assignedFolders"`
	UploadAccess    bool       `json:"uploadAccess"`
	CreatedAt       time.Time  `json:"createdAt"`
	LastAccessed    *time.Time `json:"lastAccessed"`
}

// View is an Account without PIN material, safe to hand to clients.
type View struct {
	ID              string     `json:"id"`
	Name            string     `json:"name"`
	AssignedFolders []string   `json:"assignedFolders"`
	UploadAccess    bool       `json:"uploadAccess"`
	CreatedAt       time.Time  `json:"createdAt"`
	LastAccessed    *time.Time `json:"lastAccessed"`
}

func (a Account) View() View {
	return View{
		ID:              a.ID,
		Name:            a.Name,
		AssignedFolders: a.AssignedFolders,
		UploadAccess:    a.UploadAccess,
		CreatedAt:       a.CreatedAt,
		LastAccessed:    a.LastAccessed,
	}
}

// Input carries admin-supplied fields for Create and Update. A nil
// UploadAccess means "not supplied".
type Input struct {
	Name            string   `json:"name"`
	PIN             string   `json:"pin"`
	AssignedFolders []string `json:"assignedFolders"`
	UploadAccess    *bool    `json:"uploadAccess"`
}

type Options struct {
	Store   *store.Store[Account]
	Hasher  *credential.Hasher
	Limiter *ratelimit.Limiter
	Logger  *slog.Logger
	Now     func() time.Time
}

type Manager struct {
	store   *store.Store[Account]
	hasher  *credential.Hasher
	limiter *ratelimit.Limiter
	log     *slog.Logger
	now     func() time.Time
}

func New(opts Options) *Manager {
	m := &Manager{
		store:   opts.Store,
		hasher:  opts.Hasher,
		limiter: opts.Limiter,
		log:     opts.Logger,
		now:     opts.Now,
	}
	if m.log == nil {
		m.log = slog.Default()
	}
	if m.now == nil {
		m.now = time.Now
	}
	return m
}

func (m *Manager) List() []Account {
	return m.store.Load()
}

func (m *Manager) Get(id string) (Account, error) {
	for _, a := range m.store.Load() {
		if a.ID == id {
			return a, nil
		}
	}
	return Account{}, notFound()
}

func (m *Manager) Create(in Input) (Account, error) {
	if in.Name == "" || in.PIN == "" {
		return Account{}, common.Validation("Name and PIN are required")
	}
	hash, err := m.hasher.Hash(in.PIN)
	if err != nil {
		return Account{}, err
	}
	acc := Account{
		ID:              uuid.NewString(),
		Name:            in.Name,
		PIN:             hash,
		AssignedFolders: cleanFolders(in.AssignedFolders),
		UploadAccess:    in.UploadAccess != nil && *in.UploadAccess,
		CreatedAt:       m.now().UTC(),
	}
	err = m.store.Update(func(all []Account) ([]Account, error) {
		return append(all, acc), nil
	})
	if err != nil {
		return Account{}, err
	}
	m.log.Info("access account created", "account_id", acc.ID, "folders", len(acc.AssignedFolders))
	return acc, nil
}

// Update replaces name, PIN and folders of an account. The PIN is required
// on every update and always re-hashed. UploadAccess is kept when omitted.
func (m *Manager) Update(id string, in Input) (Account, error) {
	if in.Name == "" || in.PIN == "" {
		return Account{}, common.Validation("Name and PIN are required")
	}
	hash, err := m.hasher.Hash(in.PIN)
	if err != nil {
		return Account{}, err
	}
	var out Account
	err = m.store.Update(func(all []Account) ([]Account, error) {
		i := indexOf(all, id)
		if i < 0 {
			return nil, notFound()
		}
		a := &all[i]
		a.Name = in.Name
		a.PIN = hash
		a.AssignedFolders = cleanFolders(in.AssignedFolders)
		if in.UploadAccess != nil {
			a.UploadAccess = *in.UploadAccess
		}
		out = *a
		return all, nil
	})
	if err != nil {
		return Account{}, err
	}
	return out, nil
}

func (m *Manager) Delete(id string) error {
	return m.store.Update(func(all []Account) ([]Account, error) {
		i := indexOf(all, id)
		if i < 0 {
			return nil, notFound()
		}
		return append(all[:i], all[i+1:]...), nil
	})
}

func indexOf(all []Account, id string) int {
	for i := range all {
		if all[i].ID == id {
			return i
		}
	}
	return -1
}

func notFound() error {
	return common.Deny(common.ErrNotFound, common.CodeAccountNotFound, "Account not found")
}

func cleanFolders(in []string) []string {
	out := make([]string, 0, len(in))
	for _, f := range in {
		if c := fsutil.CleanRelPath(f); c != "" {
			out = append(out, c)
		}
	}
	return out
}
