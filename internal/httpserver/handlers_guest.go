package httpserver

import (
	"net/http"

	"photoframe/internal/common"
	"photoframe/internal/photos"
	"photoframe/internal/session"
)

// owns reports whether the session may delete rel. Admins own everything;
// guests only what they uploaded.
func (s *Server) owns(sess *session.Session, rel string) bool {
	if s.gate.IsAdmin(sess) {
		return true
	}
	if sess.AccessAccount == nil {
		return false
	}
	return s.uploads.IsOwner(sess.AccessAccount.ID, rel)
}

func notOwner() error {
	return common.Deny(common.ErrForbidden, common.CodeNotOwner, "You can only delete your own photos")
}

// handleGuestFolders lists folders within the guest's scope, but only the
// images the guest uploaded.
func (s *Server) handleGuestFolders(w http.ResponseWriter, r *http.Request, sess *session.Session) {
	l, err := s.lib.List(r.URL.Query().Get("path"), s.gate.ScopeFor(sess))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	if !s.gate.IsAdmin(sess) && sess.AccessAccount != nil {
		owned := s.uploads.OwnedPaths(sess.AccessAccount.ID)
		mine := make([]photos.Image, 0, len(l.Images))
		for _, img := range l.Images {
			if owned[img.Path] {
				mine = append(mine, img)
			}
		}
		l.Images = mine
	}
	writeJSON(w, http.StatusOK, l)
}

func (s *Server) handleGuestUpload(w http.ResponseWriter, r *http.Request, sess *session.Session) {
	dir, err := uploadDir(r, s.gate.ScopeFor(sess))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	res, err := s.uploadFiles(r, dir, nil)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	if acc := sess.AccessAccount; acc != nil && !s.gate.IsAdmin(sess) && len(res.Uploaded) > 0 {
		if err := s.uploads.Record(acc.ID, acc.Name, res.Uploaded...); err != nil {
			s.log.Error("record upload ownership", "account_id", acc.ID, "err", err)
		}
		s.log.Info("guest upload", "account_id", acc.ID, "dir", dir, "stored", len(res.Uploaded))
	}
	s.writeUpload(w, r, res)
}

func (s *Server) handleGuestDelete(w http.ResponseWriter, r *http.Request, sess *session.Session) {
	rel, err := scopedPath(r.URL.Query().Get("path"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	if !s.owns(sess, rel) {
		s.fail(w, r, notOwner())
		return
	}
	if err := s.lib.Delete(rel); err != nil {
		s.fail(w, r, err)
		return
	}
	if err := s.uploads.Forget(rel); err != nil {
		s.log.Error("forget upload", "path", rel, "err", err)
	}
	writeOK(w, nil)
}

type batchResult struct {
	Success      bool     `json:"success"`
	DeletedCount int      `json:"deletedCount"`
	FailedCount  int      `json:"failedCount"`
	Errors       []string `json:"errors"`
}

// handleGuestBatchDelete deletes several images. Every path is checked for
// safety and ownership before anything is removed.
func (s *Server) handleGuestBatchDelete(w http.ResponseWriter, r *http.Request, sess *session.Session) {
	var body struct {
		Paths []string `json:"paths"`
	}
	if err := decodeJSON(r, &body); err != nil {
		s.fail(w, r, err)
		return
	}
	if len(body.Paths) == 0 {
		s.fail(w, r, common.Validation("Invalid paths provided"))
		return
	}
	rels := make([]string, 0, len(body.Paths))
	for _, p := range body.Paths {
		rel, err := scopedPath(p)
		if err != nil {
			s.fail(w, r, err)
			return
		}
		if !s.owns(sess, rel) {
			s.fail(w, r, notOwner())
			return
		}
		rels = append(rels, rel)
	}

	res := batchResult{Errors: []string{}}
	for _, rel := range rels {
		if err := s.lib.Delete(rel); err != nil {
			res.FailedCount++
			if d, ok := common.AsDenial(err); ok {
				res.Errors = append(res.Errors, d.Message+": "+rel)
			} else {
				s.log.Error("batch delete", "path", rel, "err", err)
				res.Errors = append(res.Errors, "Failed to delete: "+rel)
			}
			continue
		}
		res.DeletedCount++
	}
	if err := s.uploads.Forget(rels...); err != nil {
		s.log.Error("forget uploads", "count", len(rels), "err", err)
	}

	status := http.StatusOK
	if res.FailedCount > 0 {
		status = http.StatusMultiStatus
	}
	res.Success = res.FailedCount == 0
	writeJSON(w, status, res)
}
