package httpserver

import (
	"net/http"

	"photoframe/internal/accounts"
)

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	sess := s.sessions.Load(r)
	if sess.Authenticated && !s.gate.IsAdmin(sess) {
		// stale admin login; start over
		s.sessions.Destroy(w, sess)
	}
	if err := s.gate.RequireGuest(sess); err != nil {
		s.fail(w, r, err)
		return
	}
	var body struct {
		Password string `json:"password"`
	}
	if err := decodeJSON(r, &body); err != nil {
		s.fail(w, r, err)
		return
	}
	if err := s.gate.LoginAdmin(w, sess, body.Password, s.clientIP(r)); err != nil {
		s.fail(w, r, err)
		return
	}
	writeOK(w, nil)
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	s.gate.LogoutAdmin(w, s.sessions.Load(r))
	writeOK(w, nil)
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	sess := s.sessions.Load(r)
	writeJSON(w, http.StatusOK, map[string]any{
		"authenticated": s.gate.IsAdmin(sess),
		"accessAccount": sess.AccessAccount,
	})
}

func (s *Server) handlePINAuth(w http.ResponseWriter, r *http.Request) {
	var body struct {
		PIN string `json:"pin"`
	}
	if err := decodeJSON(r, &body); err != nil {
		s.fail(w, r, err)
		return
	}
	acc, err := s.gate.AuthenticatePIN(w, s.sessions.Load(r), body.PIN, s.clientIP(r))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeOK(w, map[string]any{"account": acc})
}

func (s *Server) handlePINSession(w http.ResponseWriter, r *http.Request) {
	sess := s.sessions.Load(r)
	writeJSON(w, http.StatusOK, map[string]any{
		"authenticated": sess.AccessAccount != nil,
		"account":       sess.AccessAccount,
	})
}

func (s *Server) handlePINLogout(w http.ResponseWriter, r *http.Request) {
	s.sessions.Destroy(w, s.sessions.Load(r))
	writeOK(w, nil)
}

func views(all []accounts.Account) []accounts.View {
	out := make([]accounts.View, 0, len(all))
	for _, a := range all {
		out = append(out, a.View())
	}
	return out
}
