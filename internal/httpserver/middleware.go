package httpserver

import (
	"context"
	"crypto/rand"
	"crypto/subtle"
	"encoding/hex"
	"log/slog"
	"math"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"photoframe/internal/common"
	"photoframe/internal/ratelimit"
)

const (
	csrfCookie = "_csrf"
	csrfMaxAge = 24 * time.Hour
)

type csrfKey struct{}

func (s *Server) withHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h := w.Header()
		h.Set("X-Content-Type-Options", "nosniff")
		h.Set("X-Frame-Options", "DENY")
		h.Set("Referrer-Policy", "strict-origin-when-cross-origin")
		h.Set("Content-Security-Policy", "default-src 'self'; img-src 'self' data: blob:")
		if strings.HasPrefix(r.URL.Path, "/api/") {
			h.Set("Cache-Control", "no-store")
		}
		next.ServeHTTP(w, r)
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
	bytes  int64
}

func (r *statusRecorder) WriteHeader(code int) {
	if r.status == 0 {
		r.status = code
	}
	r.ResponseWriter.WriteHeader(code)
}

func (r *statusRecorder) Write(b []byte) (int, error) {
	if r.status == 0 {
		r.status = http.StatusOK
	}
	n, err := r.ResponseWriter.Write(b)
	r.bytes += int64(n)
	return n, err
}

// Unwrap lets http.ResponseController reach the underlying writer.
func (r *statusRecorder) Unwrap() http.ResponseWriter {
	return r.ResponseWriter
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w}
		next.ServeHTTP(rec, r)
		if rec.status == 0 {
			rec.status = http.StatusOK
		}
		lvl := slog.LevelInfo
		switch {
		case rec.status >= 500:
			lvl = slog.LevelError
		case rec.status >= 400:
			lvl = slog.LevelWarn
		}
		s.log.LogAttrs(r.Context(), lvl, "http request",
			slog.String("method", r.Method),
			slog.String("path", r.URL.Path),
			slog.Int("status", rec.status),
			slog.Int64("bytes", rec.bytes),
			slog.String("remote_ip", s.clientIP(r)),
			slog.Int64("duration_ms", time.Since(start).Milliseconds()),
		)
	})
}

// limitBody caps request bodies everywhere except WebDAV, which streams
// whole files.
func (s *Server) limitBody(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !isDAV(r.URL.Path) && r.Body != nil {
			r.Body = http.MaxBytesReader(w, r.Body, s.maxBody)
		}
		next.ServeHTTP(w, r)
	})
}

// csrf implements the double-submit cookie check. Safe requests get a
// token cookie; unsafe API requests must echo it back in a header or form
// field. Token-authorized uploads are exempt.
func (s *Server) csrf(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var tok string
		if c, err := r.Cookie(csrfCookie); err == nil {
			tok = c.Value
		}
		if isSafeMethod(r.Method) {
			if tok == "" {
				var err error
				if tok, err = newCSRFToken(); err != nil {
					s.fail(w, r, err)
					return
				}
				http.SetCookie(w, &http.Cookie{
					Name:     csrfCookie,
					Value:    tok,
					Path:     "/",
					MaxAge:   int(csrfMaxAge / time.Second),
					HttpOnly: true,
					Secure:   s.cfg.SecureCookies,
					SameSite: http.SameSiteLaxMode,
				})
			}
			next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), csrfKey{}, tok)))
			return
		}
		if !strings.HasPrefix(r.URL.Path, "/api/") || csrfExempt(r.URL.Path) {
			next.ServeHTTP(w, r)
			return
		}
		sent := r.Header.Get("X-CSRF-Token")
		if sent == "" {
			sent = r.Header.Get("X-XSRF-Token")
		}
		if sent == "" && isForm(r) {
			sent = r.FormValue(csrfCookie)
		}
		if tok == "" || subtle.ConstantTimeCompare([]byte(tok), []byte(sent)) != 1 {
			s.log.Warn("csrf check failed", "method", r.Method, "path", r.URL.Path, "client", s.clientIP(r))
			s.fail(w, r, common.Deny(common.ErrForbidden, common.CodeCSRF, "Invalid CSRF token"))
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) handleCSRFToken(w http.ResponseWriter, r *http.Request) {
	tok, _ := r.Context().Value(csrfKey{}).(string)
	writeJSON(w, http.StatusOK, map[string]string{"csrfToken": tok})
}

func csrfExempt(p string) bool {
	return p == "/api/upload-tokens/upload"
}

func isSafeMethod(m string) bool {
	switch m {
	case http.MethodGet, http.MethodHead, http.MethodOptions:
		return true
	}
	return false
}

func isForm(r *http.Request) bool {
	ct := r.Header.Get("Content-Type")
	return strings.HasPrefix(ct, "application/x-www-form-urlencoded") || strings.HasPrefix(ct, "multipart/form-data")
}

func newCSRFToken() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}

// limit counts every request against win per client address.
func (s *Server) limit(win *ratelimit.Window, next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ok, wait := win.Allow(s.clientIP(r))
		if !ok {
			w.Header().Set("Retry-After", strconv.Itoa(int(math.Ceil(wait.Seconds()))))
			writeJSON(w, http.StatusTooManyRequests, errorBody{
				Error: "Too many requests, please try again later",
				Code:  common.CodeRequestRateExceeded,
			})
			return
		}
		next(w, r)
	}
}

// clientIP returns the address used as the rate-limiting key. Behind a
// trusted proxy it is the rightmost X-Forwarded-For entry, the one the
// proxy itself appended.
func (s *Server) clientIP(r *http.Request) string {
	if s.cfg.TrustProxy {
		if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
			parts := strings.Split(xff, ",")
			for i := len(parts) - 1; i >= 0; i-- {
				if p := strings.TrimSpace(parts[i]); p != "" {
					return p
				}
			}
		}
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
