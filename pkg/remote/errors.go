package remote

import (
	"errors"
	"fmt"
	"strings"
)

// ErrorKind classifies a failed remote call.
type ErrorKind string

const (
	KindNotFound       ErrorKind = "not-found"
	KindAuthFailed     ErrorKind = "auth-failed"
	KindForbidden      ErrorKind = "forbidden"
	KindInvalidRequest ErrorKind = "invalid-request"
	KindAPI            ErrorKind = "api-error"
	KindTransport      ErrorKind = "transport-error"
)

// Error is the typed failure returned by every Client implementation.
type Error struct {
	Kind       ErrorKind
	StatusCode int
	Message    string
	// RateLimited is set for forbidden responses caused by rate limiting.
	RateLimited bool
	// Err is the underlying cause for transport errors.
	Err error
}

func (e *Error) Error() string {
	var b strings.Builder
	b.WriteString(string(e.Kind))
	if e.StatusCode != 0 {
		fmt.Fprintf(&b, " (%d)", e.StatusCode)
	}
	if e.RateLimited {
		b.WriteString(" rate limit exceeded")
	}
	if e.Message != "" {
		b.WriteString(": ")
		b.WriteString(e.Message)
	}
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

func (e *Error) Unwrap() error {
	return e.Err
}

// NewStatusError maps an HTTP status code and API message to an *Error.
func NewStatusError(status int, message string) *Error {
	e := &Error{StatusCode: status, Message: message}
	switch status {
	case 404:
		e.Kind = KindNotFound
	case 401:
		e.Kind = KindAuthFailed
	case 403, 429:
		e.Kind = KindForbidden
		e.RateLimited = status == 429 || strings.Contains(strings.ToLower(message), "rate limit")
	case 422:
		e.Kind = KindInvalidRequest
	default:
		e.Kind = KindAPI
	}
	return e
}

// NewTransportError wraps a network or decoding failure.
func NewTransportError(err error) *Error {
	return &Error{Kind: KindTransport, Err: err}
}

// KindOf returns the kind of the first *Error in err's chain, or "".
func KindOf(err error) ErrorKind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

// IsNotFound reports whether err is a not-found *Error.
func IsNotFound(err error) bool {
	return KindOf(err) == KindNotFound
}

// FileTooLargeError is returned when a file exceeds the download limit.
type FileTooLargeError struct {
	Path  string
	Size  int64
	Limit int64
}

func (e *FileTooLargeError) Error() string {
	if e.Size > 0 {
		return fmt.Sprintf("file %s is %d bytes, exceeding the %d byte limit", e.Path, e.Size, e.Limit)
	}
	return fmt.Sprintf("file %s exceeds the %d byte limit", e.Path, e.Limit)
}

// Hint returns a user-facing suggestion for err, or "" when none applies.
// Rate limit and auth hints differ depending on whether a token was used.
func Hint(err error, hasToken bool) string {
	var e *Error
	if !errors.As(err, &e) {
		return ""
	}
	switch {
	case e.Kind == KindForbidden && e.RateLimited && hasToken:
		return "API rate limit reached for the provided token; wait for the limit to reset and retry"
	case e.Kind == KindForbidden && e.RateLimited:
		return "anonymous API rate limit reached; set GITHUB_TOKEN or GH_TOKEN (or pass --token) to raise it"
	case e.Kind == KindForbidden && hasToken:
		return "the token lacks access to this repository; check its scopes"
	case e.Kind == KindForbidden:
		return "access denied; private repositories require GITHUB_TOKEN, GH_TOKEN or --token"
	case e.Kind == KindAuthFailed:
		return "authentication failed; the token is invalid or expired"
	case e.Kind == KindNotFound && !hasToken:
		return "repository not found; if it is private, set GITHUB_TOKEN or GH_TOKEN"
	case e.Kind == KindNotFound:
		return "repository or ref not found; check the source and ref spelling"
	}
	return ""
}
