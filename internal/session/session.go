// Package session keeps server-side session state in memory. The browser
// only holds a signed cookie naming the session; the state itself never
// leaves the process and is lost on restart.
package session

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/hkdf"
)

const (
	CookieName    = "photoframe.sid"
	DefaultMaxAge = 24 * time.Hour

	hkdfInfo = "photoframe session cookie v1"
)

// AccessAccount is the snapshot of a PIN account stored in a guest session.
// It never carries PIN material.
type AccessAccount struct {
	ID              string   `json:"id"`
	Name            string   `json:"name"`
	AssignedFolders []string `json:"assignedFolders"`
	UploadAccess    bool     `json:"uploadAccess"`
}

// Session is the per-browser state bag. An admin session has Authenticated
// set; a guest session carries AccessAccount.
type Session struct {
	ID            string
	Authenticated bool
	LoginTime     time.Time
	AccessAccount *AccessAccount
}

func (s *Session) clone() *Session {
	c := *s
	if s.AccessAccount != nil {
		a := *s.AccessAccount
		a.AssignedFolders = append([]string(nil), s.AccessAccount.AssignedFolders...)
		c.AccessAccount = &a
	}
	return &c
}

type claims struct {
	SID string `json:"sid"`
	jwt.RegisteredClaims
}

type entry struct {
	sess    *Session
	expires time.Time
}

type Options struct {
	Secret string
	MaxAge time.Duration
	// Secure marks the cookie Secure; set it when served over TLS.
	Secure bool
	Logger *slog.Logger
	Now    func() time.Time
}

type Manager struct {
	key    []byte
	maxAge time.Duration
	secure bool
	log    *slog.Logger
	now    func() time.Time

	mu       sync.Mutex
	sessions map[string]entry
}

func NewManager(opts Options) (*Manager, error) {
	if opts.Secret == "" {
		return nil, errors.New("session secret is required")
	}
	key := make([]byte, 32)
	if _, err := io.ReadFull(hkdf.New(sha256.New, []byte(opts.Secret), nil, []byte(hkdfInfo)), key); err != nil {
		return nil, fmt.Errorf("derive session key: %w", err)
	}
	m := &Manager{
		key:      key,
		maxAge:   opts.MaxAge,
		secure:   opts.Secure,
		log:      opts.Logger,
		now:      opts.Now,
		sessions: make(map[string]entry),
	}
	if m.maxAge <= 0 {
		m.maxAge = DefaultMaxAge
	}
	if m.log == nil {
		m.log = slog.Default()
	}
	if m.now == nil {
		m.now = time.Now
	}
	return m, nil
}

// Load returns the request's session, or a fresh unsaved one when the
// cookie is missing, forged, expired or names a session that is gone.
// Callers get a copy; changes only stick after Save.
func (m *Manager) Load(r *http.Request) *Session {
	c, err := r.Cookie(CookieName)
	if err != nil || c.Value == "" {
		return &Session{}
	}
	sid, ok := m.parse(c.Value)
	if !ok {
		return &Session{}
	}
	now := m.now()
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.sessions[sid]
	if !ok {
		return &Session{}
	}
	if !now.Before(e.expires) {
		delete(m.sessions, sid)
		return &Session{}
	}
	return e.sess.clone()
}

// Save stores s and (re)issues its cookie. A session gets its id on first
// save.
func (m *Manager) Save(w http.ResponseWriter, s *Session) error {
	if s.ID == "" {
		id, err := newID()
		if err != nil {
			return err
		}
		s.ID = id
	}
	now := m.now()
	exp := now.Add(m.maxAge)
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims{
		SID: s.ID,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(exp),
		},
	}).SignedString(m.key)
	if err != nil {
		return fmt.Errorf("sign session cookie: %w", err)
	}

	m.mu.Lock()
	m.prune(now)
	m.sessions[s.ID] = entry{sess: s.clone(), expires: exp}
	m.mu.Unlock()

	http.SetCookie(w, &http.Cookie{
		Name:     CookieName,
		Value:    signed,
		Path:     "/",
		Expires:  exp,
		MaxAge:   int(m.maxAge / time.Second),
		HttpOnly: true,
		Secure:   m.secure,
		SameSite: http.SameSiteLaxMode,
	})
	return nil
}

// Destroy drops the server-side state and clears the cookie. It is safe on
// sessions that were never saved.
func (m *Manager) Destroy(w http.ResponseWriter, s *Session) {
	if s.ID != "" {
		m.mu.Lock()
		delete(m.sessions, s.ID)
		m.mu.Unlock()
	}
	*s = Session{}
	http.SetCookie(w, &http.Cookie{
		Name:     CookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   m.secure,
		SameSite: http.SameSiteLaxMode,
	})
}

// Regenerate forgets the server-side state under s's current id so the
// next Save issues a new one. Used on privilege changes.
func (m *Manager) Regenerate(s *Session) {
	if s.ID == "" {
		return
	}
	m.mu.Lock()
	delete(m.sessions, s.ID)
	m.mu.Unlock()
	s.ID = ""
}

// Len reports the number of live sessions.
func (m *Manager) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}

func (m *Manager) parse(raw string) (string, bool) {
	var c claims
	tok, err := jwt.ParseWithClaims(raw, &c, func(*jwt.Token) (any, error) {
		return m.key, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithTimeFunc(m.now))
	if err != nil || !tok.Valid || c.SID == "" {
		return "", false
	}
	return c.SID, true
}

// prune drops expired sessions. Callers hold m.mu.
func (m *Manager) prune(now time.Time) {
	for id, e := range m.sessions {
		if !now.Before(e.expires) {
			delete(m.sessions, id)
		}
	}
}

func newID() (string, error) {
	b := make([]byte, 24)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}
