package accounts

import (
	"errors"
	"fmt"
	"strings"
)

// Failure modes that callers are expected to branch on. Authentication and
// token failures are deliberately generic: the message never reveals whether
// an account exists or whether a token expired versus never existed.
var (
	// ErrUnauthorized is returned for any bad-credentials outcome.
	ErrUnauthorized = errors.New("invalid identifier or password")

	// ErrTokenNotFound covers a token that is absent, issued for a different
	// context, or aged out. The three causes are indistinguishable.
	ErrTokenNotFound = errors.New("invalid or expired token")

	// ErrAlreadyConfirmed is returned when confirming an account that is
	// already confirmed.
	ErrAlreadyConfirmed = errors.New("account is already confirmed")

	// ErrCurrentSession is returned when a revocation targets the session
	// the caller is currently authenticated with.
	ErrCurrentSession = errors.New("cannot revoke the current session")
)

// FieldError describes a single validation failure on a named field.
type FieldError struct {
	Field   string
	Message string
}

// ValidationError aggregates field-level validation failures.
type ValidationError struct {
	Fields []FieldError
}

// Add appends a failure for the given field.
func (e *ValidationError) Add(field, message string) {
	e.Fields = append(e.Fields, FieldError{Field: field, Message: message})
}

// On returns the messages recorded against a field.
func (e *ValidationError) On(field string) []string {
	var msgs []string
	for _, f := range e.Fields {
		if f.Field == field {
			msgs = append(msgs, f.Message)
		}
	}
	return msgs
}

// Err returns the error itself when any failure was recorded, nil otherwise.
func (e *ValidationError) Err() error {
	if len(e.Fields) == 0 {
		return nil
	}
	return e
}

func (e *ValidationError) Error() string {
	parts := make([]string, len(e.Fields))
	for i, f := range e.Fields {
		parts[i] = f.Field + " " + f.Message
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

// UnconfirmedAccountError rejects an OAuth login against a local account
// that has not confirmed its email yet. It names the provider so the outer
// application can tell the user which login was refused.
type UnconfirmedAccountError struct {
	Provider string
}

func (e *UnconfirmedAccountError) Error() string {
	return fmt.Sprintf("account matched by %s login is not confirmed", e.Provider)
}

// UpstreamError wraps a failure from an external collaborator (store, OAuth
// provider, email sink). The core never leaks their raw errors directly.
type UpstreamError struct {
	Op  string
	Err error
}

func (e *UpstreamError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *UpstreamError) Unwrap() error { return e.Err }

// wrapErr wraps collaborator failures as UpstreamError while letting the
// package's own error taxonomy pass through untouched.
func wrapErr(op string, err error) error {
	if err == nil {
		return nil
	}
	if isDomainErr(err) {
		return err
	}
	return &UpstreamError{Op: op, Err: err}
}

func isDomainErr(err error) bool {
	if errors.Is(err, ErrUnauthorized) ||
		errors.Is(err, ErrTokenNotFound) ||
		errors.Is(err, ErrAlreadyConfirmed) ||
		errors.Is(err, ErrCurrentSession) {
		return true
	}
	var (
		verr *ValidationError
		uerr *UnconfirmedAccountError
		serr *UpstreamError
	)
	return errors.As(err, &verr) || errors.As(err, &uerr) || errors.As(err, &serr)
}
