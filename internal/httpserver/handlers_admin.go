package httpserver

import (
	"net/http"
	"net/url"

	"photoframe/internal/accounts"
	"photoframe/internal/auth"
	"photoframe/internal/session"
	"photoframe/internal/tokens"
)

func (s *Server) handleListAccounts(w http.ResponseWriter, r *http.Request, _ *session.Session) {
	writeOK(w, map[string]any{"accounts": views(s.accounts.List())})
}

func (s *Server) handleCreateAccount(w http.ResponseWriter, r *http.Request, _ *session.Session) {
	var in accounts.Input
	if err := decodeJSON(r, &in); err != nil {
		s.fail(w, r, err)
		return
	}
	acc, err := s.accounts.Create(in)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"success": true, "account": acc.View()})
}

func (s *Server) handleUpdateAccount(w http.ResponseWriter, r *http.Request, _ *session.Session) {
	var in accounts.Input
	if err := decodeJSON(r, &in); err != nil {
		s.fail(w, r, err)
		return
	}
	acc, err := s.accounts.Update(r.PathValue("id"), in)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeOK(w, map[string]any{"account": acc.View()})
}

func (s *Server) handleDeleteAccount(w http.ResponseWriter, r *http.Request, _ *session.Session) {
	if err := s.accounts.Delete(r.PathValue("id")); err != nil {
		s.fail(w, r, err)
		return
	}
	writeOK(w, nil)
}

func (s *Server) handleListTokens(w http.ResponseWriter, r *http.Request, _ *session.Session) {
	writeOK(w, map[string]any{"tokens": s.tokens.List()})
}

func (s *Server) handleCreateToken(w http.ResponseWriter, r *http.Request, _ *session.Session) {
	var in tokens.CreateInput
	if err := decodeJSON(r, &in); err != nil {
		s.fail(w, r, err)
		return
	}
	by := auth.AdminUser
	t, secret, err := s.tokens.Create(in, &by)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{
		"success":   true,
		"token":     tokens.Detail{Summary: t.Summary(), PlainToken: &secret},
		"uploadUrl": "/upload?token=" + url.QueryEscape(secret),
	})
}

func (s *Server) handleGetToken(w http.ResponseWriter, r *http.Request, _ *session.Session) {
	d, err := s.tokens.Get(r.PathValue("id"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeOK(w, map[string]any{"token": d})
}

func (s *Server) handleUpdateToken(w http.ResponseWriter, r *http.Request, _ *session.Session) {
	var p tokens.Patch
	if err := decodeJSON(r, &p); err != nil {
		s.fail(w, r, err)
		return
	}
	sum, err := s.tokens.Update(r.PathValue("id"), p)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeOK(w, map[string]any{"token": sum})
}

func (s *Server) handleDeleteToken(w http.ResponseWriter, r *http.Request, _ *session.Session) {
	if err := s.tokens.Delete(r.PathValue("id")); err != nil {
		s.fail(w, r, err)
		return
	}
	writeOK(w, nil)
}
