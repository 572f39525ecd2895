// Package common defines shared constants and sentinel errors used across
// gophgate layers. Callers should use errors.Is to match these values.
package common

import "errors"

var (
	// Repository-level errors.
	ErrorNotFound      = errors.New("not found")
	ErrorAlreadyExists = errors.New("already exists")

	// Service-level errors (generic/internal flow control).
	ErrorInternal     = errors.New("internal error")
	ErrorUnauthorized = errors.New("unauthorized")
	ErrorForbidden    = errors.New("forbidden")
	ErrorValidation   = errors.New("validation error")

	// ErrStoreUnavailable marks infrastructure failures of the identity store.
	// It must never be collapsed into an anonymous request.
	ErrStoreUnavailable = errors.New("identity store unavailable")

	// Auth errors. Every token failure wraps ErrInvalidToken so transports can
	// treat them as one class.
	ErrInvalidToken      = errors.New("invalid token")
	ErrTokenMalformed    = errors.New("token malformed")
	ErrTokenBadSignature = errors.New("token signature invalid")
	ErrTokenExpired      = errors.New("token expired")

	// Key management errors.
	ErrKeyTooShort = errors.New("signing key too short")
)
