// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package auth

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

// Sentinel errors. Call sites wrap them with oops codes, so classify with
// errors.Is rather than comparing values.
var (
	// ErrNotFound is the root of every "record does not exist" error.
	ErrNotFound = errors.New("not found")

	// ErrUserNotFound is returned when no live user matches a lookup.
	ErrUserNotFound = fmt.Errorf("user %w", ErrNotFound)

	// ErrSessionNotFound is returned when a (user, session) pair is not stored.
	ErrSessionNotFound = fmt.Errorf("session %w", ErrNotFound)

	// ErrDuplicateEmail is returned when an email is already used by a live user.
	ErrDuplicateEmail = errors.New("email already registered")

	// ErrInvalidCredentials covers both unknown email and wrong password.
	ErrInvalidCredentials = errors.New("invalid email or password")

	// ErrHashingFailed reports a password hashing failure on the server side.
	ErrHashingFailed = errors.New("password hashing failed")

	// ErrSigning reports a failure to sign a token.
	ErrSigning = errors.New("token signing failed")

	// ErrTokenInvalid is the parent of every token validation failure.
	ErrTokenInvalid = errors.New("invalid token")

	ErrTokenMalformed    = fmt.Errorf("%w: malformed", ErrTokenInvalid)
	ErrTokenBadSignature = fmt.Errorf("%w: bad signature", ErrTokenInvalid)
	ErrTokenExpired      = fmt.Errorf("%w: expired", ErrTokenInvalid)
)

// ValidationError carries field-level input problems.
type ValidationError struct {
	Fields map[string][]string
}

// NewValidationError creates a ValidationError holding a single field message.
func NewValidationError(field, msg string) *ValidationError {
	v := &ValidationError{}
	v.Add(field, msg)
	return v
}

// Add records a message for field.
func (e *ValidationError) Add(field, msg string) {
	if e.Fields == nil {
		e.Fields = make(map[string][]string)
	}
	e.Fields[field] = append(e.Fields[field], msg)
}

// Empty reports whether no field messages were recorded.
func (e *ValidationError) Empty() bool {
	return e == nil || len(e.Fields) == 0
}

// Error lists the fields in a stable order.
func (e *ValidationError) Error() string {
	names := make([]string, 0, len(e.Fields))
	for name := range e.Fields {
		names = append(names, name)
	}
	sort.Strings(names)

	parts := make([]string, 0, len(names))
	for _, name := range names {
		parts = append(parts, name+": "+strings.Join(e.Fields[name], ", "))
	}
	return "validation failed: " + strings.Join(parts, "; ")
}
