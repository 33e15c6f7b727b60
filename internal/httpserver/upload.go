package httpserver

import (
	"errors"
	"mime/multipart"
	"net/http"

	"photoframe/internal/auth"
	"photoframe/internal/common"
	"photoframe/internal/tokens"
)

// multipartMemory is how much of a multipart body is held in memory before
// spilling to temp files.
const multipartMemory = 32 << 20

type uploadFailure struct {
	Filename string `json:"filename"`
	Error    string `json:"error"`
	Code     string `json:"code,omitempty"`
}

type uploadResult struct {
	Uploaded []string        `json:"uploaded"`
	Failed   []uploadFailure `json:"failed"`
}

// uploadFiles saves every file in the request to dir. accept is called for
// each stored file; when it returns an error the file is removed again and
// the remaining files are skipped.
func (s *Server) uploadFiles(r *http.Request, dir string, accept func(rel string) error) (uploadResult, error) {
	res := uploadResult{Uploaded: []string{}, Failed: []uploadFailure{}}
	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		var tooBig *http.MaxBytesError
		if errors.As(err, &tooBig) {
			return res, common.Deny(common.ErrValidation, common.CodeFileTooLarge, "Request body too large")
		}
		return res, common.Validation("Expected a multipart upload")
	}
	defer r.MultipartForm.RemoveAll()

	files := formFiles(r.MultipartForm)
	if len(files) == 0 {
		return res, common.Validation("No files uploaded")
	}
	if len(files) > maxFilesPerRequest {
		return res, common.Validation("Too many files in one upload")
	}

	var stop error
	for _, fh := range files {
		if stop != nil {
			res.Failed = append(res.Failed, failure(fh.Filename, stop))
			continue
		}
		rel, err := s.saveOne(r, dir, fh)
		if err == nil && accept != nil {
			if err = accept(rel); err != nil {
				if derr := s.lib.Delete(rel); derr != nil {
					s.log.Warn("remove rejected upload", "path", rel, "err", derr)
				}
				stop = err
			}
		}
		if err != nil {
			if _, ok := common.AsDenial(err); !ok {
				s.log.Error("upload failed", "file", fh.Filename, "dir", dir, "err", err)
			}
			res.Failed = append(res.Failed, failure(fh.Filename, err))
			continue
		}
		res.Uploaded = append(res.Uploaded, rel)
	}
	return res, nil
}

func (s *Server) saveOne(r *http.Request, dir string, fh *multipart.FileHeader) (string, error) {
	f, err := fh.Open()
	if err != nil {
		return "", err
	}
	defer f.Close()
	return s.lib.Save(r.Context(), dir, fh.Filename, f)
}

func failure(name string, err error) uploadFailure {
	if d, ok := common.AsDenial(err); ok {
		return uploadFailure{Filename: name, Error: d.Message, Code: d.Code}
	}
	return uploadFailure{Filename: name, Error: "Upload failed", Code: common.CodeServerError}
}

// formFiles returns the uploaded files, preferring the "photos" field.
func formFiles(mf *multipart.Form) []*multipart.FileHeader {
	if mf == nil || mf.File == nil {
		return nil
	}
	for _, k := range []string{"photos", "images", "file"} {
		if fhs := mf.File[k]; len(fhs) > 0 {
			return fhs
		}
	}
	var out []*multipart.FileHeader
	for _, fhs := range mf.File {
		out = append(out, fhs...)
	}
	return out
}

// writeUpload reports res, or the first per-file error when nothing was
// stored.
func (s *Server) writeUpload(w http.ResponseWriter, r *http.Request, res uploadResult) {
	if len(res.Uploaded) == 0 && len(res.Failed) > 0 {
		f := res.Failed[0]
		d := common.Deny(kindFor(f.Code), f.Code, f.Error)
		if f.Code == common.CodeServerError {
			writeJSON(w, http.StatusInternalServerError, errorBody{Error: f.Error, Code: f.Code})
			return
		}
		writeJSON(w, statusFor(d), map[string]any{"success": false, "error": f.Error, "code": f.Code, "failed": res.Failed})
		return
	}
	writeOK(w, map[string]any{"uploaded": res.Uploaded, "failed": res.Failed})
}

func kindFor(code string) error {
	switch code {
	case common.CodeTokenLimitReached:
		return common.ErrLimitReached
	case common.CodeFolderForbidden:
		return common.ErrForbidden
	default:
		return common.ErrValidation
	}
}

type publicToken struct {
	ID           string            `json:"id"`
	Name         string            `json:"name"`
	UploadCount  int               `json:"uploadCount"`
	UploadLimit  *int              `json:"uploadLimit"`
	ExpiresAt    *tokens.Timestamp `json:"expiresAt"`
	TargetFolder string            `json:"targetFolder"`
}

func (s *Server) handleValidateToken(w http.ResponseWriter, r *http.Request) {
	_, t, err := s.gate.RequireValidUploadToken(r.Context(), r.URL.Query().Get("token"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeOK(w, map[string]any{"token": publicToken{
		ID:           t.ID,
		Name:         t.Name,
		UploadCount:  t.UploadCount,
		UploadLimit:  t.UploadLimit,
		ExpiresAt:    t.ExpiresAt,
		TargetFolder: t.TargetFolder,
	}})
}

// handleTokenUpload stores files sent through an upload link into the
// link's target folder. Each stored file consumes one upload from the
// link; once the limit is hit the rest of the batch is rejected.
func (s *Server) handleTokenUpload(w http.ResponseWriter, r *http.Request) {
	secret := r.URL.Query().Get("token")
	if secret == "" {
		secret = r.Header.Get("X-Upload-Token")
	}
	ctx, _, err := s.gate.RequireValidUploadToken(r.Context(), secret)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	r = r.WithContext(ctx)
	t, _ := auth.UploadTokenFromContext(ctx)

	res, err := s.uploadFiles(r, t.TargetFolder, func(string) error {
		if !s.tokens.ReserveUpload(t.ID) {
			return common.Deny(common.ErrLimitReached, common.CodeTokenLimitReached, "Upload limit reached for this link")
		}
		return nil
	})
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.log.Info("token upload", "token_id", t.ID, "stored", len(res.Uploaded), "rejected", len(res.Failed))
	s.writeUpload(w, r, res)
}
