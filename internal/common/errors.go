// Package common holds the error taxonomy shared by the access-control
// packages and the web layer. Callers match kinds with errors.Is and read
// hints with errors.As(*Denial).
package common

import (
	"errors"
	"fmt"
)

var (
	ErrValidation        = errors.New("validation error")
	ErrNotFound          = errors.New("not found")
	ErrNoCredential      = errors.New("no credential presented")
	ErrInvalidCredential = errors.New("invalid credential")
	ErrRateLimited       = errors.New("rate limited")
	ErrExpired           = errors.New("expired")
	ErrDisabled          = errors.New("disabled")
	ErrLimitReached      = errors.New("limit reached")
	ErrForbidden         = errors.New("forbidden")

	// ErrStorage marks write-side failures of the record store.
	ErrStorage = errors.New("storage failure")
)

// Reason codes returned to clients.
const (
	CodeValidation          = "VALIDATION_ERROR"
	CodeAccountNotFound     = "ACCOUNT_NOT_FOUND"
	CodeTokenNotFound       = "TOKEN_NOT_FOUND"
	CodeAuthRequired        = "AUTH_REQUIRED"
	CodeSessionExpired      = "SESSION_EXPIRED"
	CodeInvalidPassword     = "INVALID_PASSWORD"
	CodeInvalidPIN          = "INVALID_PIN"
	CodeRateLimited         = "RATE_LIMITED"
	CodeUploadAccess        = "UPLOAD_ACCESS_REQUIRED"
	CodeTokenRequired       = "TOKEN_REQUIRED"
	CodeInvalidToken        = "INVALID_TOKEN"
	CodeTokenDisabled       = "TOKEN_DISABLED"
	CodeTokenExpired        = "TOKEN_EXPIRED"
	CodeTokenLimitReached   = "TOKEN_LIMIT_REACHED"
	CodeAlreadyAuthed       = "ALREADY_AUTHENTICATED"
	CodeFolderForbidden     = "FOLDER_FORBIDDEN"
	CodeCSRF                = "CSRF_VALIDATION_FAILED"
	CodeServerError         = "SERVER_ERROR"
	CodeNotOwner            = "NOT_OWNER"
	CodeRequestRateExceeded = "TOO_MANY_REQUESTS"
	CodeFolderNotFound      = "FOLDER_NOT_FOUND"
	CodeImageNotFound       = "IMAGE_NOT_FOUND"
	CodeInvalidFileType     = "INVALID_FILE_TYPE"
	CodeFileTooLarge        = "FILE_TOO_LARGE"
	CodeInvalidPath         = "INVALID_PATH"
)

// Denial is an expected, user-facing outcome. It unwraps to exactly one of
// the sentinel errors above.
type Denial struct {
	Kind    error
	Code    string
	Message string

	// AttemptsRemaining is set on invalid-credential outcomes that went
	// through a rate limiter.
	AttemptsRemaining *int
	// RetryAfterMinutes is set on rate-limited outcomes.
	RetryAfterMinutes int
}

func (d *Denial) Error() string {
	return d.Message
}

func (d *Denial) Unwrap() error {
	return d.Kind
}

func Deny(kind error, code, msg string) *Denial {
	return &Denial{Kind: kind, Code: code, Message: msg}
}

func Validation(msg string) *Denial {
	return Deny(ErrValidation, CodeValidation, msg)
}

func InvalidCredential(code, msg string, remaining int) *Denial {
	d := Deny(ErrInvalidCredential, code, msg)
	d.AttemptsRemaining = &remaining
	return d
}

func RateLimited(retryAfterMinutes int) *Denial {
	d := Deny(ErrRateLimited, CodeRateLimited,
		fmt.Sprintf("Too many failed attempts. Try again in %d minutes.", retryAfterMinutes))
	d.RetryAfterMinutes = retryAfterMinutes
	return d
}

// AsDenial returns the Denial in err's chain, if any.
func AsDenial(err error) (*Denial, bool) {
	var d *Denial
	if errors.As(err, &d) {
		return d, true
	}
	return nil, false
}

// Storage wraps a write failure so errors.Is(err, ErrStorage) holds.
func Storage(op string, err error) error {
	return fmt.Errorf("%w: %s: %v", ErrStorage, op, err)
}
