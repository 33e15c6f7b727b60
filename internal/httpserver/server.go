package httpserver

import (
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"golang.org/x/net/webdav"

	"photoframe/internal/accounts"
	"photoframe/internal/auth"
	"photoframe/internal/config"
	"photoframe/internal/photos"
	"photoframe/internal/ratelimit"
	"photoframe/internal/session"
	"photoframe/internal/tokens"
	"photoframe/internal/uploads"
)

// maxFilesPerRequest caps how many files one multipart upload may carry.
const maxFilesPerRequest = 20

type Options struct {
	Config   config.Config
	Gate     *auth.Gate
	Accounts *accounts.Manager
	Tokens   *tokens.Manager
	Library  *photos.Library
	Uploads  *uploads.Ledger
	Logger   *slog.Logger
}

type Server struct {
	cfg      config.Config
	gate     *auth.Gate
	sessions *session.Manager
	accounts *accounts.Manager
	tokens   *tokens.Manager
	lib      *photos.Library
	uploads  *uploads.Ledger
	log      *slog.Logger

	validateLimit    *ratelimit.Window
	tokenUploadLimit *ratelimit.Window
	tokenAdminLimit  *ratelimit.Window

	dav     *webdav.Handler
	maxBody int64
}

func New(opts Options) (*Server, error) {
	log := opts.Logger
	if log == nil {
		log = slog.Default()
	}
	s := &Server{
		cfg:      opts.Config,
		gate:     opts.Gate,
		sessions: opts.Gate.Sessions(),
		accounts: opts.Accounts,
		tokens:   opts.Tokens,
		lib:      opts.Library,
		uploads:  opts.Uploads,
		log:      log,

		validateLimit:    ratelimit.NewWindow(20, 5*time.Minute),
		tokenUploadLimit: ratelimit.NewWindow(10, time.Hour),
		tokenAdminLimit:  ratelimit.NewWindow(30, 15*time.Minute),

		maxBody: opts.Library.MaxFileSize()*maxFilesPerRequest + 1<<20,
	}
	s.dav = &webdav.Handler{
		Prefix:     "/dav",
		FileSystem: webdav.Dir(opts.Library.Root()),
		LockSystem: webdav.NewMemLS(),
		Logger: func(r *http.Request, err error) {
			if err != nil {
				log.Debug("webdav", "method", r.Method, "path", r.URL.Path, "err", err)
			}
		},
	}
	return s, nil
}

func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	// health
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		_, _ = io.WriteString(w, "ok\n")
	})
	mux.HandleFunc("GET /api/csrf-token", s.handleCSRFToken)

	// admin login
	mux.HandleFunc("POST /api/auth/login", s.handleLogin)
	mux.HandleFunc("POST /api/auth/logout", s.handleLogout)
	mux.HandleFunc("GET /api/auth/status", s.handleStatus)

	// access accounts
	mux.HandleFunc("GET /api/access-accounts", s.admin(s.handleListAccounts))
	mux.HandleFunc("POST /api/access-accounts", s.admin(s.handleCreateAccount))
	mux.HandleFunc("PUT /api/access-accounts/{id}", s.admin(s.handleUpdateAccount))
	mux.HandleFunc("DELETE /api/access-accounts/{id}", s.admin(s.handleDeleteAccount))
	mux.HandleFunc("POST /api/access-accounts/auth", s.handlePINAuth)
	mux.HandleFunc("GET /api/access-accounts/session", s.handlePINSession)
	mux.HandleFunc("POST /api/access-accounts/logout", s.handlePINLogout)

	// upload tokens
	mux.HandleFunc("GET /api/upload-tokens", s.limit(s.tokenAdminLimit, s.admin(s.handleListTokens)))
	mux.HandleFunc("POST /api/upload-tokens", s.limit(s.tokenAdminLimit, s.admin(s.handleCreateToken)))
	mux.HandleFunc("GET /api/upload-tokens/{id}", s.limit(s.tokenAdminLimit, s.admin(s.handleGetToken)))
	mux.HandleFunc("PATCH /api/upload-tokens/{id}", s.limit(s.tokenAdminLimit, s.admin(s.handleUpdateToken)))
	mux.HandleFunc("DELETE /api/upload-tokens/{id}", s.limit(s.tokenAdminLimit, s.admin(s.handleDeleteToken)))
	mux.HandleFunc("GET /api/upload-tokens/validate", s.limit(s.validateLimit, s.handleValidateToken))
	mux.HandleFunc("POST /api/upload-tokens/upload", s.limit(s.tokenUploadLimit, s.handleTokenUpload))

	// browsing
	mux.HandleFunc("GET /api/folders", s.handleFolders)
	mux.HandleFunc("GET /api/images/random", s.handleRandom)
	mux.HandleFunc("GET /api/thumb", s.handleThumb)
	mux.HandleFunc("GET /photos/{path...}", s.handleFile)
	mux.HandleFunc("POST /api/upload", s.admin(s.handleAdminUpload))

	// guests with upload access
	mux.HandleFunc("GET /api/guest/folders", s.uploader(s.handleGuestFolders))
	mux.HandleFunc("POST /api/guest/upload", s.uploader(s.handleGuestUpload))
	mux.HandleFunc("DELETE /api/guest/images", s.uploader(s.handleGuestDelete))
	mux.HandleFunc("POST /api/guest/images/batch-delete", s.uploader(s.handleGuestBatchDelete))

	// WebDAV
	mux.Handle("/dav/", http.HandlerFunc(s.handleDAV))

	return s.withHeaders(s.logRequests(s.limitBody(s.csrf(mux))))
}

// admin wraps h so it only runs for a live admin session.
func (s *Server) admin(h func(http.ResponseWriter, *http.Request, *session.Session)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sess := s.sessions.Load(r)
		if err := s.gate.RequireAdmin(w, sess); err != nil {
			s.fail(w, r, err)
			return
		}
		h(w, r, sess)
	}
}

// uploader wraps h so it only runs for admins and guests with upload access.
func (s *Server) uploader(h func(http.ResponseWriter, *http.Request, *session.Session)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sess := s.sessions.Load(r)
		if err := s.gate.RequireUploadCapability(sess); err != nil {
			s.fail(w, r, err)
			return
		}
		h(w, r, sess)
	}
}

func (s *Server) handleDAV(w http.ResponseWriter, r *http.Request) {
	if !s.gate.IsAdmin(s.sessions.Load(r)) {
		if err := s.gate.BasicAdmin(r, s.clientIP(r)); err != nil {
			if d, ok := isRateLimited(err); ok {
				s.fail(w, r, d)
				return
			}
			s.authChallenge(w)
			return
		}
	}
	s.dav.ServeHTTP(w, r)
}

func (s *Server) authChallenge(w http.ResponseWriter) {
	w.Header().Set("WWW-Authenticate", `Basic realm="photoframe"`)
	http.Error(w, "unauthorized", http.StatusUnauthorized)
}

func isDAV(p string) bool {
	return p == "/dav" || strings.HasPrefix(p, "/dav/")
}
