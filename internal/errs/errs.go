// Package errs defines the error taxonomy shared by the import pipeline.
// Handlers map kinds to HTTP statuses; the pipeline maps them to import
// record statuses and user-facing messages.
package errs

import (
	"errors"
	"fmt"
)

// Kind classifies an error for propagation decisions.
type Kind string

const (
	KindAuthentication Kind = "authentication"
	KindValidation     Kind = "validation"
	KindNotFound       Kind = "not_found"
	KindDownload       Kind = "download"

	// Encryption failures. PasswordRequired and WrongPassword are
	// recoverable: the import returns to password_required and the user
	// may retry indefinitely.
	KindPasswordRequired Kind = "password_required"
	KindWrongPassword    Kind = "wrong_password"
	KindDecryptFailure   Kind = "decrypt_failure"

	// Extraction failures.
	KindRateLimited         Kind = "rate_limited"
	KindTimeout             Kind = "timeout"
	KindQuotaExhausted      Kind = "quota_exhausted"
	KindEmptyResponse       Kind = "empty_response"
	KindUnparseableResponse Kind = "unparseable_response"
	KindNoTransactions      Kind = "no_transactions_found"

	KindDuplicateStatement Kind = "duplicate_statement"
	KindPersistence        Kind = "persistence"
	KindCategorization     Kind = "categorization"
	KindCommit             Kind = "commit"
)

// Error carries a kind, a user-safe message and an optional wrapped cause.
// Internal causes are logged but never surfaced in Message.
type Error struct {
	Kind    Kind
	Message string
	cause   error
}

func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.cause }

// New creates an error of the given kind with a user-safe message.
func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Wrap creates an error of the given kind wrapping an internal cause.
func Wrap(kind Kind, message string, cause error) *Error {
	return &Error{Kind: kind, Message: message, cause: cause}
}

// KindOf returns the kind of err, or "" if err carries none.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

// Is reports whether err carries the given kind.
func Is(err error, kind Kind) bool {
	return KindOf(err) == kind
}

// UserMessage returns the user-safe message of err, or a generic fallback.
func UserMessage(err error) string {
	var e *Error
	if errors.As(err, &e) && e.Message != "" {
		return e.Message
	}
	return "an unexpected error occurred"
}

// PasswordRelated reports whether err should route the import back to the
// password_required state instead of failing it.
func PasswordRelated(err error) bool {
	switch KindOf(err) {
	case KindPasswordRequired, KindWrongPassword, KindDecryptFailure:
		return true
	}
	return false
}
