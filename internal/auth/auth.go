// Package auth decides who may do what. Gate composes the session store,
// the account and token managers and the admin login limiter into the
// decision functions the web layer calls before touching any photo.
package auth

import (
	"context"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"photoframe/internal/access"
	"photoframe/internal/accounts"
	"photoframe/internal/common"
	"photoframe/internal/credential"
	"photoframe/internal/ratelimit"
	"photoframe/internal/session"
	"photoframe/internal/tokens"
)

const DefaultAdminMaxAge = 24 * time.Hour

type ctxKey string

const tokenKey ctxKey = "photoframe.uploadToken"

// UploadTokenFromContext returns the token attached by RequireValidUploadToken.
func UploadTokenFromContext(ctx context.Context) (tokens.Token, bool) {
	t, ok := ctx.Value(tokenKey).(tokens.Token)
	return t, ok
}

func WithUploadToken(ctx context.Context, t tokens.Token) context.Context {
	return context.WithValue(ctx, tokenKey, t)
}

type Options struct {
	Sessions     *session.Manager
	Accounts     *accounts.Manager
	Tokens       *tokens.Manager
	Hasher       *credential.Hasher
	AdminLimiter *ratelimit.Limiter
	// AdminPassword is a bcrypt hash or, for older setups, plaintext.
	AdminPassword string
	AdminMaxAge   time.Duration
	Logger        *slog.Logger
	Now           func() time.Time
}

type Gate struct {
	sessions     *session.Manager
	accounts     *accounts.Manager
	tokens       *tokens.Manager
	hasher       *credential.Hasher
	adminLimiter *ratelimit.Limiter
	maxAge       time.Duration
	log          *slog.Logger
	now          func() time.Time

	mu          sync.RWMutex
	adminSecret string
}

func New(opts Options) *Gate {
	g := &Gate{
		sessions:     opts.Sessions,
		accounts:     opts.Accounts,
		tokens:       opts.Tokens,
		hasher:       opts.Hasher,
		adminLimiter: opts.AdminLimiter,
		maxAge:       opts.AdminMaxAge,
		log:          opts.Logger,
		now:          opts.Now,
		adminSecret:  opts.AdminPassword,
	}
	if g.maxAge <= 0 {
		g.maxAge = DefaultAdminMaxAge
	}
	if g.log == nil {
		g.log = slog.Default()
	}
	if g.now == nil {
		g.now = time.Now
	}
	return g
}

func (g *Gate) Sessions() *session.Manager {
	return g.sessions
}

// IsAdmin reports whether s holds an admin login that is still within the
// allowed age. It has no side effects.
func (g *Gate) IsAdmin(s *session.Session) bool {
	return s.Authenticated && g.now().Sub(s.LoginTime) <= g.maxAge
}

// RequireAdmin passes admin sessions younger than the max age. An older
// admin session is destroyed before the denial is returned.
//
// The session store drops a session max age after its last Save, so the
// SESSION_EXPIRED branch only fires for a session saved again after login.
// An untouched admin session simply vanishes and gets AUTH_REQUIRED.
func (g *Gate) RequireAdmin(w http.ResponseWriter, s *session.Session) error {
	if !s.Authenticated {
		return common.Deny(common.ErrNoCredential, common.CodeAuthRequired, "Authentication required")
	}
	if g.now().Sub(s.LoginTime) > g.maxAge {
		g.sessions.Destroy(w, s)
		return common.Deny(common.ErrExpired, common.CodeSessionExpired, "Session expired")
	}
	return nil
}

// RequireGuest keeps an authenticated admin off the login flow.
func (g *Gate) RequireGuest(s *session.Session) error {
	if s.Authenticated {
		return common.Deny(common.ErrForbidden, common.CodeAlreadyAuthed, "Already authenticated")
	}
	return nil
}

func (g *Gate) RequireUploadCapability(s *session.Session) error {
	if g.IsAdmin(s) {
		return nil
	}
	if s.AccessAccount != nil && s.AccessAccount.UploadAccess {
		return nil
	}
	return common.Deny(common.ErrNoCredential, common.CodeUploadAccess, "Upload access required")
}

// RequireValidUploadToken validates secret and returns ctx with the token
// attached for the upload handler.
func (g *Gate) RequireValidUploadToken(ctx context.Context, secret string) (context.Context, tokens.Token, error) {
	t, err := g.tokens.Validate(secret)
	if err != nil {
		return ctx, tokens.Token{}, err
	}
	return WithUploadToken(ctx, t), t, nil
}

// ScopeFor returns the folder scope of s. Admins and visitors without a PIN
// session are unrestricted.
func (g *Gate) ScopeFor(s *session.Session) access.Scope {
	if g.IsAdmin(s) || s.AccessAccount == nil {
		return nil
	}
	return access.NewScope(s.AccessAccount.AssignedFolders)
}

// LoginAdmin checks password against the configured admin credential and
// marks s as an admin session on success. Any PIN login held by s is
// dropped.
func (g *Gate) LoginAdmin(w http.ResponseWriter, s *session.Session, password, clientKey string) error {
	if err := g.VerifyAdmin(password, clientKey); err != nil {
		return err
	}
	g.sessions.Regenerate(s)
	s.Authenticated = true
	s.LoginTime = g.now()
	s.AccessAccount = nil
	if err := g.sessions.Save(w, s); err != nil {
		return err
	}
	g.log.Info("admin login", "client", clientKey)
	return nil
}

// VerifyAdmin runs the rate-limited password check on its own. A matching
// plaintext admin password is swapped for its hash in memory; the
// configuration source is left alone.
func (g *Gate) VerifyAdmin(password, clientKey string) error {
	if st := g.adminLimiter.Check(clientKey); !st.Allowed {
		g.log.Warn("admin login rate limited", "client", clientKey)
		return common.RateLimited(st.RetryAfterMinutes)
	}
	if password == "" {
		return common.Validation("Password is required")
	}

	g.mu.RLock()
	stored := g.adminSecret
	g.mu.RUnlock()

	ok, upgrade := g.hasher.Matches(password, stored)
	if !ok {
		g.adminLimiter.RecordFailure(clientKey)
		st := g.adminLimiter.Check(clientKey)
		return common.InvalidCredential(common.CodeInvalidPassword, "Invalid password", st.AttemptsRemaining)
	}
	g.adminLimiter.RecordSuccess(clientKey)

	if upgrade {
		if h, err := g.hasher.Hash(password); err == nil {
			g.mu.Lock()
			if g.adminSecret == stored {
				g.adminSecret = h
			}
			g.mu.Unlock()
		}
	}
	return nil
}

func (g *Gate) LogoutAdmin(w http.ResponseWriter, s *session.Session) {
	g.sessions.Destroy(w, s)
}

// AuthenticatePIN logs a guest in and stores the account snapshot in s.
func (g *Gate) AuthenticatePIN(w http.ResponseWriter, s *session.Session, pin, clientKey string) (*session.AccessAccount, error) {
	acc, err := g.accounts.AuthenticateByPIN(pin, clientKey)
	if err != nil {
		return nil, err
	}
	snap := &session.AccessAccount{
		ID:              acc.ID,
		Name:            acc.Name,
		AssignedFolders: append([]string{}, acc.AssignedFolders...),
		UploadAccess:    acc.UploadAccess,
	}
	g.sessions.Regenerate(s)
	s.AccessAccount = snap
	if err := g.sessions.Save(w, s); err != nil {
		return nil, err
	}
	g.log.Info("pin login", "account_id", acc.ID, "client", clientKey)
	return snap, nil
}
