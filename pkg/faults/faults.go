package faults

import (
	"errors"
	"fmt"
)

// Kind classifies a failure for retry and recovery dispatch.
type Kind string

const (
	// KindBase is the catch-all for failures no other kind anticipates.
	KindBase Kind = "base"

	// KindConfig indicates invalid or missing configuration.
	KindConfig Kind = "config"

	// KindAuth indicates an authentication failure.
	KindAuth Kind = "auth"

	// KindToken indicates a token failure. Token is a refinement of auth:
	// a handler matching KindAuth also matches token errors.
	KindToken Kind = "token"

	// KindBrowser indicates a browser-automation failure.
	KindBrowser Kind = "browser"

	// KindFileOp indicates a local file operation failure.
	KindFileOp Kind = "file_operation"

	// KindDatabase indicates a persistent-store failure.
	KindDatabase Kind = "database"
)

// Matches reports whether k satisfies target. Every kind matches itself;
// token additionally matches auth. The edge is fixed, there is no other
// subtyping in the taxonomy.
func (k Kind) Matches(target Kind) bool {
	if k == target {
		return true
	}
	return k == KindToken && target == KindAuth
}

// Error is a kind-tagged error with an optional wrapped cause.
// An instance carries exactly one kind.
type Error struct {
	// Kind is the failure classification.
	Kind Kind

	// Message is the human-readable error message.
	Message string

	// Field names the offending configuration field, if applicable.
	Field string

	// Err is the underlying cause, if any.
	Err error

	// Details contains additional context-specific information.
	Details map[string]interface{}
}

// Error implements the error interface.
func (e *Error) Error() string {
	switch {
	case e.Field != "" && e.Err != nil:
		return fmt.Sprintf("[%s] %s (field=%s): %v", e.Kind, e.Message, e.Field, e.Err)
	case e.Field != "":
		return fmt.Sprintf("[%s] %s (field=%s)", e.Kind, e.Message, e.Field)
	case e.Err != nil:
		return fmt.Sprintf("[%s] %s: %v", e.Kind, e.Message, e.Err)
	default:
		return fmt.Sprintf("[%s] %s", e.Kind, e.Message)
	}
}

// Unwrap returns the underlying cause for error chain inspection.
func (e *Error) Unwrap() error {
	return e.Err
}

// Is implements kind-based matching for errors.Is. A token-kind error
// matches an auth-kind target through the fixed refinement edge.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Kind.Matches(t.Kind)
}

// WithField attaches the offending field name to the error.
func (e *Error) WithField(field string) *Error {
	e.Field = field
	return e
}

// WithDetail adds a detail entry to the error context.
func (e *Error) WithDetail(key string, value interface{}) *Error {
	if e.Details == nil {
		e.Details = make(map[string]interface{})
	}
	e.Details[key] = value
	return e
}

// New creates an error with an explicit kind.
func New(kind Kind, message string, err error) *Error {
	return &Error{Kind: kind, Message: message, Err: err}
}

// NewBaseError creates a catch-all error.
func NewBaseError(message string, err error) *Error {
	return New(KindBase, message, err)
}

// NewConfigError creates a configuration error.
func NewConfigError(message string, err error) *Error {
	return New(KindConfig, message, err)
}

// NewAuthError creates an authentication error.
func NewAuthError(message string, err error) *Error {
	return New(KindAuth, message, err)
}

// NewTokenError creates a token error. Its kind reports as token and
// matches handlers catching auth.
func NewTokenError(message string, err error) *Error {
	return New(KindToken, message, err)
}

// NewBrowserError creates a browser-automation error.
func NewBrowserError(message string, err error) *Error {
	return New(KindBrowser, message, err)
}

// NewFileOpError creates a file operation error.
func NewFileOpError(message string, err error) *Error {
	return New(KindFileOp, message, err)
}

// NewDatabaseError creates a persistent-store error.
func NewDatabaseError(message string, err error) *Error {
	return New(KindDatabase, message, err)
}

// KindOf returns the kind carried by err, or KindBase when err is not a
// taxonomy error. The tag is returned as declared: a token error reports
// KindToken here, use HasKind for refinement-aware matching.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindBase
}

// HasKind reports whether err carries a kind satisfying target,
// honoring the token-refines-auth edge.
func HasKind(err error, target Kind) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind.Matches(target)
	}
	return target == KindBase && err != nil
}

// Classify returns err as a taxonomy error, wrapping foreign errors as
// KindBase with the original cause preserved. A nil err returns nil.
func Classify(err error) *Error {
	if err == nil {
		return nil
	}
	var e *Error
	if errors.As(err, &e) {
		return e
	}
	return NewBaseError("unclassified failure", err)
}
