package apperrors

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

var (
	ErrAuthRejected        = errors.New("authentication rejected")
	ErrRegistrationFailed  = errors.New("registration failed")
	ErrIdentityUnavailable = errors.New("identity unavailable")
	ErrRefreshRejected     = errors.New("refresh token rejected")
	ErrNetworkFailure      = errors.New("network failure")
	ErrMalformedResponse   = errors.New("malformed response")

	// Protected call answered with 401
	ErrUnauthorized = errors.New("access token rejected")
	// Any other non-200 answer from the identity service
	ErrRequestFailed = errors.New("request failed")

	ErrNoAccessToken  = errors.New("no access token")
	ErrNoRefreshToken = errors.New("no refresh token")

	ErrEmailTaken  = errors.New("email already exists")
	ErrInvalidForm = errors.New("invalid form")

	ErrUnknownStore     = errors.New("unknown credential store")
	ErrStoreNotMigrated = errors.New("credential store is not migrated")
)

// StatusError is returned when the identity service answers with an unexpected status
type StatusError struct {
	Op         string
	StatusCode int
	Err        error
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s: status %d: %v", e.Op, e.StatusCode, e.Err)
}

func (e *StatusError) Unwrap() error {
	return e.Err
}

func NewStatusError(op string, code int, err error) *StatusError {
	return &StatusError{Op: op, StatusCode: code, Err: err}
}

// FormError reports form level failures field by field
// Fields keys are json field names, values are user facing messages
type FormError struct {
	Fields map[string]string
	Err    error
}

func (e *FormError) Error() string {
	keys := make([]string, 0, len(e.Fields))
	for k := range e.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, k+": "+e.Fields[k])
	}

	if len(parts) == 0 {
		return e.Err.Error()
	}
	return fmt.Sprintf("%v (%s)", e.Err, strings.Join(parts, "; "))
}

func (e *FormError) Unwrap() error {
	return e.Err
}

// NewFormError creates form error for a single field
func NewFormError(err error, field string, message string) *FormError {
	return &FormError{
		Fields: map[string]string{field: message},
		Err:    err,
	}
}
