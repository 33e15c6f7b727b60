package auth

import (
	"encoding/base64"
	"net/http"
	"strings"

	"photoframe/internal/common"
)

// AdminUser is the only user name accepted over HTTP Basic auth.
const AdminUser = "admin"

// BasicAdmin authenticates a Basic Authorization header as the admin. It
// goes through the same limiter as the login form.
func (g *Gate) BasicAdmin(r *http.Request, clientKey string) error {
	h := r.Header.Get("Authorization")
	if h == "" {
		return common.Deny(common.ErrNoCredential, common.CodeAuthRequired, "Authentication required")
	}
	u, p, ok := parseBasicAuth(h)
	if !ok || u != AdminUser {
		return common.InvalidCredential(common.CodeInvalidPassword, "Invalid credentials", g.adminLimiter.Check(clientKey).AttemptsRemaining)
	}
	return g.VerifyAdmin(p, clientKey)
}

func parseBasicAuth(v string) (user, pass string, ok bool) {
	const prefix = "Basic "
	if !strings.HasPrefix(v, prefix) {
		return "", "", false
	}
	raw, err := base64.StdEncoding.DecodeString(strings.TrimSpace(strings.TrimPrefix(v, prefix)))
	if err != nil {
		return "", "", false
	}
	s := string(raw)
	i := strings.IndexByte(s, ':')
	if i < 0 {
		return "", "", false
	}
	u, p := s[:i], s[i+1:]
	if u == "" || strings.Contains(u, "\x00") || strings.Contains(p, "\x00") {
		return "", "", false
	}
	return u, p, true
}
