package httpserver

import (
	"mime"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"photoframe/internal/access"
	"photoframe/internal/common"
	"photoframe/internal/fsutil"
	"photoframe/internal/photos"
	"photoframe/internal/session"
)

// scopedPath rejects unsafe paths, then cleans raw.
func scopedPath(raw string) (string, error) {
	if !fsutil.IsSafeRelPath(raw) {
		return "", common.Deny(common.ErrValidation, common.CodeInvalidPath, "Invalid path")
	}
	return fsutil.CleanRelPath(raw), nil
}

func forbidden() error {
	return common.Deny(common.ErrForbidden, common.CodeFolderForbidden, "You do not have access to this folder")
}

func (s *Server) handleFolders(w http.ResponseWriter, r *http.Request) {
	scope := s.gate.ScopeFor(s.sessions.Load(r))
	l, err := s.lib.List(r.URL.Query().Get("path"), scope)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, l)
}

func (s *Server) handleRandom(w http.ResponseWriter, r *http.Request) {
	scope := s.gate.ScopeFor(s.sessions.Load(r))
	folder, err := scopedPath(r.URL.Query().Get("folder"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	if !scope.AllowsFolder(folder) {
		s.fail(w, r, forbidden())
		return
	}
	rel, ok, err := s.lib.Random(folder, scope)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	if !ok {
		s.fail(w, r, common.Deny(common.ErrNotFound, common.CodeImageNotFound, "No images found"))
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"path": rel,
		"url":  photoURL(rel),
	})
}

func (s *Server) handleThumb(w http.ResponseWriter, r *http.Request) {
	rel, err := s.readableFile(r, r.URL.Query().Get("path"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	b, err := s.lib.Thumb(rel, photos.DefaultThumbSize)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	w.Header().Set("Content-Type", "image/jpeg")
	w.Header().Set("Cache-Control", "private, max-age=3600")
	_, _ = w.Write(b)
}

// handleFile serves an original image with Range support.
func (s *Server) handleFile(w http.ResponseWriter, r *http.Request) {
	rel, err := s.readableFile(r, r.PathValue("path"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	abs, err := s.lib.Abs(rel)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	st, err := os.Stat(abs)
	if err != nil || st.IsDir() || !photos.IsImage(st.Name()) {
		s.fail(w, r, common.Deny(common.ErrNotFound, common.CodeImageNotFound, "Image not found"))
		return
	}
	f, err := os.Open(abs)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	defer f.Close()

	if ct := contentTypeForName(st.Name()); ct != "" {
		w.Header().Set("Content-Type", ct)
	}
	w.Header().Set("Cache-Control", "private, max-age=3600")
	http.ServeContent(w, r, st.Name(), st.ModTime(), f)
}

// readableFile resolves raw and checks it against the requester's scope.
func (s *Server) readableFile(r *http.Request, raw string) (string, error) {
	rel, err := scopedPath(raw)
	if err != nil {
		return "", err
	}
	if rel == "" {
		return "", common.Deny(common.ErrValidation, common.CodeInvalidPath, "Invalid path")
	}
	if !s.gate.ScopeFor(s.sessions.Load(r)).AllowsFile(rel) {
		return "", forbidden()
	}
	return rel, nil
}

func (s *Server) handleAdminUpload(w http.ResponseWriter, r *http.Request, _ *session.Session) {
	dir, err := scopedPath(r.URL.Query().Get("path"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	res, err := s.uploadFiles(r, dir, nil)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.log.Info("admin upload", "dir", dir, "stored", len(res.Uploaded), "rejected", len(res.Failed))
	s.writeUpload(w, r, res)
}

// uploadDir picks the target folder for a guest upload and checks that
// scope allows writing there.
func uploadDir(r *http.Request, scope access.Scope) (string, error) {
	raw := r.URL.Query().Get("path")
	if raw == "" {
		raw = r.FormValue("path")
	}
	dir, err := scopedPath(raw)
	if err != nil {
		return "", err
	}
	if !scope.AllowsWrite(dir) {
		return "", forbidden()
	}
	return dir, nil
}

func photoURL(rel string) string {
	parts := strings.Split(rel, "/")
	for i, p := range parts {
		parts[i] = url.PathEscape(p)
	}
	return "/photos/" + strings.Join(parts, "/")
}

func contentTypeForName(name string) string {
	ext := strings.ToLower(filepath.Ext(name))
	if ext == "" {
		return ""
	}
	if ct := mime.TypeByExtension(ext); ct != "" {
		return ct
	}
	// Fallbacks for systems with sparse mime tables.
	switch ext {
	case ".jpg", ".jpeg":
		return "image/jpeg"
	case ".png":
		return "image/png"
	case ".gif":
		return "image/gif"
	case ".webp":
		return "image/webp"
	default:
		return ""
	}
}
