package httpserver

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"photoframe/internal/common"
)

type errorBody struct {
	Success           bool   `json:"success"`
	Error             string `json:"error"`
	Code              string `json:"code,omitempty"`
	AttemptsRemaining *int   `json:"attemptsRemaining,omitempty"`
	RetryAfterMinutes int    `json:"retryAfterMinutes,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	_ = enc.Encode(v)
}

func writeOK(w http.ResponseWriter, extra map[string]any) {
	body := map[string]any{"success": true}
	for k, v := range extra {
		body[k] = v
	}
	writeJSON(w, http.StatusOK, body)
}

// fail writes err as a JSON error. Denials keep their message and hints;
// anything else is logged and reported as an opaque server error.
func (s *Server) fail(w http.ResponseWriter, r *http.Request, err error) {
	d, ok := common.AsDenial(err)
	if !ok {
		s.log.Error("request failed", "method", r.Method, "path", r.URL.Path, "err", err)
		writeJSON(w, http.StatusInternalServerError, errorBody{Error: "Server error", Code: common.CodeServerError})
		return
	}
	if d.RetryAfterMinutes > 0 {
		w.Header().Set("Retry-After", strconv.Itoa(d.RetryAfterMinutes*60))
	}
	writeJSON(w, statusFor(d), errorBody{
		Error:             d.Message,
		Code:              d.Code,
		AttemptsRemaining: d.AttemptsRemaining,
		RetryAfterMinutes: d.RetryAfterMinutes,
	})
}

// statusFor maps a denial onto an HTTP status. Upload-token outcomes are
// all 403 apart from a missing token, whatever their kind.
func statusFor(d *common.Denial) int {
	switch d.Code {
	case common.CodeTokenRequired:
		return http.StatusBadRequest
	case common.CodeInvalidToken, common.CodeTokenDisabled, common.CodeTokenExpired, common.CodeTokenLimitReached:
		return http.StatusForbidden
	case common.CodeFileTooLarge:
		return http.StatusRequestEntityTooLarge
	}
	switch {
	case errors.Is(d, common.ErrValidation):
		return http.StatusBadRequest
	case errors.Is(d, common.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(d, common.ErrNoCredential),
		errors.Is(d, common.ErrInvalidCredential),
		errors.Is(d, common.ErrExpired):
		return http.StatusUnauthorized
	case errors.Is(d, common.ErrRateLimited):
		return http.StatusTooManyRequests
	case errors.Is(d, common.ErrDisabled),
		errors.Is(d, common.ErrLimitReached),
		errors.Is(d, common.ErrForbidden):
		return http.StatusForbidden
	default:
		return http.StatusInternalServerError
	}
}

func isRateLimited(err error) (*common.Denial, bool) {
	d, ok := common.AsDenial(err)
	if ok && errors.Is(d, common.ErrRateLimited) {
		return d, true
	}
	return nil, false
}

// decodeJSON reads a JSON request body into v.
func decodeJSON(r *http.Request, v any) error {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		var tooBig *http.MaxBytesError
		if errors.As(err, &tooBig) {
			return common.Deny(common.ErrValidation, common.CodeFileTooLarge, "Request body too large")
		}
		return common.Validation("Invalid JSON body")
	}
	return nil
}
