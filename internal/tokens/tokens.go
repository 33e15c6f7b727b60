// Package tokens issues and validates upload tokens: bearer secrets that let
// anyone holding the link upload into one folder, bounded by an optional
// expiry and an optional upload count.
//
// The secret is stored twice, for two unrelated purposes. TokenHash is a
// bcrypt hash checked on every validation. EncryptedToken is a reversible
// copy that exists only so an admin can look at the link again.
package tokens

import (
	"crypto/rand"
	"encoding/base64"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"photoframe/internal/common"
	"photoframe/internal/credential"
	"photoframe/internal/fsutil"
	"photoframe/internal/store"
)

const (
	DefaultName         = "Unnamed Token"
	DefaultTargetFolder = "uploads"
	DefaultLifetime     = 30 * 24 * time.Hour

	secretBytes = 32
)

// Token is the persisted record.
type Token struct {
	ID             string            `json:"id"`
	TokenHash      string            `json:"tokenHash"`
	EncryptedToken credential.Sealed `json:"encryptedToken"`
	Name           string            `json:"name"`
	CreatedAt      Timestamp         `json:"createdAt"`
	CreatedBy      *string           `json:"createdBy"`
	ExpiresAt      *Timestamp        `json:"expiresAt"`
	UploadLimit    *int              `json:"uploadLimit"`
	UploadCount    int               `json:"uploadCount"`
	Enabled        bool              `json:"enabled"`
	TargetFolder   string            `json:"targetFolder"`
}

// Summary is a Token without any secret material.
type Summary struct {
	ID           string     `json:"id"`
	Name         string     `json:"name"`
	CreatedAt    Timestamp  `json:"createdAt"`
	CreatedBy    *string    `json:"createdBy"`
	ExpiresAt    *Timestamp `json:"expiresAt"`
	UploadLimit  *int       `json:"uploadLimit"`
	UploadCount  int        `json:"uploadCount"`
	Enabled      bool       `json:"enabled"`
	TargetFolder string     `json:"targetFolder"`
}

func (t Token) Summary() Summary {
	return Summary{
		ID:           t.ID,
		Name:         t.Name,
		CreatedAt:    t.CreatedAt,
		CreatedBy:    t.CreatedBy,
		ExpiresAt:    t.ExpiresAt,
		UploadLimit:  t.UploadLimit,
		UploadCount:  t.UploadCount,
		Enabled:      t.Enabled,
		TargetFolder: t.TargetFolder,
	}
}

// Detail is returned by Get. PlainToken is nil when the redisplay copy could
// not be decrypted, for example after the server secret changed.
type Detail struct {
	Summary
	PlainToken *string `json:"plainToken"`
}

// CreateInput is the admin request to issue a token. An absent ExpiresAt
// means DefaultLifetime from now; an explicit null means never.
type CreateInput struct {
	Name         string              `json:"name"`
	ExpiresAt    Optional[Timestamp] `json:"expiresAt"`
	UploadLimit  Optional[int]       `json:"uploadLimit"`
	TargetFolder string              `json:"targetFolder"`
}

// Patch lists the mutable fields. Anything else in a request is ignored.
type Patch struct {
	Name         *string             `json:"name"`
	ExpiresAt    Optional[Timestamp] `json:"expiresAt"`
	UploadLimit  Optional[int]       `json:"uploadLimit"`
	Enabled      *bool               `json:"enabled"`
	TargetFolder *string             `json:"targetFolder"`
}

type Options struct {
	Store     *store.Store[Token]
	Hasher    *credential.Hasher
	Redisplay *credential.Redisplay
	Logger    *slog.Logger
	Now       func() time.Time
}

type Manager struct {
	store     *store.Store[Token]
	hasher    *credential.Hasher
	redisplay *credential.Redisplay
	log       *slog.Logger
	now       func() time.Time
}

func New(opts Options) *Manager {
	m := &Manager{
		store:     opts.Store,
		hasher:    opts.Hasher,
		redisplay: opts.Redisplay,
		log:       opts.Logger,
		now:       opts.Now,
	}
	if m.log == nil {
		m.log = slog.Default()
	}
	if m.now == nil {
		m.now = time.Now
	}
	return m
}

// Create issues a token and returns its plaintext secret. This is the only
// time the secret is handed out directly.
func (m *Manager) Create(in CreateInput, createdBy *string) (Token, string, error) {
	secret, err := newSecret()
	if err != nil {
		return Token{}, "", err
	}
	hash, err := m.hasher.Hash(secret)
	if err != nil {
		return Token{}, "", err
	}
	sealed, err := m.redisplay.Seal(secret)
	if err != nil {
		return Token{}, "", err
	}

	now := m.now().UTC()
	t := Token{
		ID:             uuid.NewString(),
		TokenHash:      hash,
		EncryptedToken: sealed,
		Name:           in.Name,
		CreatedAt:      At(now),
		CreatedBy:      createdBy,
		UploadLimit:    positive(in.UploadLimit.Ptr()),
		Enabled:        true,
		TargetFolder:   fsutil.CleanRelPath(in.TargetFolder),
	}
	if t.Name == "" {
		t.Name = DefaultName
	}
	if t.TargetFolder == "" {
		t.TargetFolder = DefaultTargetFolder
	}
	switch {
	case !in.ExpiresAt.Set:
		exp := At(now.Add(DefaultLifetime))
		t.ExpiresAt = &exp
	case in.ExpiresAt.Valid:
		exp := At(in.ExpiresAt.Value.Time)
		t.ExpiresAt = &exp
	}

	err = m.store.Update(func(all []Token) ([]Token, error) {
		return append(all, t), nil
	})
	if err != nil {
		return Token{}, "", err
	}
	m.log.Info("upload token created", "token_id", t.ID, "target", t.TargetFolder)
	return t, secret, nil
}

func (m *Manager) List() []Summary {
	all := m.store.Load()
	out := make([]Summary, 0, len(all))
	for _, t := range all {
		out = append(out, t.Summary())
	}
	return out
}

func (m *Manager) Get(id string) (Detail, error) {
	for _, t := range m.store.Load() {
		if t.ID != id {
			continue
		}
		d := Detail{Summary: t.Summary()}
		if !t.EncryptedToken.IsZero() {
			if plain, ok := m.redisplay.Open(t.EncryptedToken); ok {
				d.PlainToken = &plain
			} else {
				m.log.Warn("cannot decrypt token for redisplay", "token_id", id)
			}
		}
		return d, nil
	}
	return Detail{}, notFound()
}

func (m *Manager) Update(id string, p Patch) (Summary, error) {
	var out Token
	err := m.store.Update(func(all []Token) ([]Token, error) {
		i := indexOf(all, id)
		if i < 0 {
			return nil, notFound()
		}
		t := &all[i]
		if p.Name != nil {
			t.Name = *p.Name
		}
		if p.ExpiresAt.Set {
			t.ExpiresAt = nil
			if p.ExpiresAt.Valid {
				exp := At(p.ExpiresAt.Value.Time)
				t.ExpiresAt = &exp
			}
		}
		if p.UploadLimit.Set {
			t.UploadLimit = positive(p.UploadLimit.Ptr())
		}
		if p.Enabled != nil {
			t.Enabled = *p.Enabled
		}
		if p.TargetFolder != nil {
			t.TargetFolder = fsutil.CleanRelPath(*p.TargetFolder)
			if t.TargetFolder == "" {
				t.TargetFolder = DefaultTargetFolder
			}
		}
		out = *t
		return all, nil
	})
	if err != nil {
		return Summary{}, err
	}
	return out.Summary(), nil
}

func (m *Manager) Delete(id string) error {
	return m.store.Update(func(all []Token) ([]Token, error) {
		i := indexOf(all, id)
		if i < 0 {
			return nil, notFound()
		}
		return append(all[:i], all[i+1:]...), nil
	})
}

// IncrementUploadCount records one accepted upload. It reports false when
// the token no longer exists or the write failed.
func (m *Manager) IncrementUploadCount(id string) bool {
	found := false
	err := m.store.Update(func(all []Token) ([]Token, error) {
		i := indexOf(all, id)
		if i < 0 {
			return all, nil
		}
		all[i].UploadCount++
		found = true
		return all, nil
	})
	if err != nil {
		m.log.Error("increment upload count", "token_id", id, "err", err)
		return false
	}
	return found
}

// ReserveUpload counts one accepted upload only if the token still exists
// and is below its limit. Concurrent uploads through one link can therefore
// never push the count past the limit.
func (m *Manager) ReserveUpload(id string) bool {
	ok := false
	err := m.store.Update(func(all []Token) ([]Token, error) {
		i := indexOf(all, id)
		if i < 0 {
			return all, nil
		}
		if l := all[i].UploadLimit; l != nil && all[i].UploadCount >= *l {
			return all, nil
		}
		all[i].UploadCount++
		ok = true
		return all, nil
	})
	if err != nil {
		m.log.Error("reserve upload", "token_id", id, "err", err)
		return false
	}
	return ok
}

func newSecret() (string, error) {
	b := make([]byte, secretBytes)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}

func indexOf(all []Token, id string) int {
	for i := range all {
		if all[i].ID == id {
			return i
		}
	}
	return -1
}

// positive maps zero and negative limits to "unlimited".
func positive(n *int) *int {
	if n == nil || *n <= 0 {
		return nil
	}
	return n
}

func notFound() error {
	return common.Deny(common.ErrNotFound, common.CodeTokenNotFound, "Token not found")
}
