// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package auth

import (
	"context"

	"github.com/google/uuid"
	"github.com/samber/oops"
)

// Session proves a token was issued and has not been revoked. A user may hold
// any number of sessions at once.
type Session struct {
	UserID int64
	ID     uuid.UUID
}

// NewSession creates a session with a fresh random id.
func NewSession(userID int64) (Session, error) {
	if userID <= 0 {
		return Session{}, oops.Code("SESSION_INVALID_USER").With("user_id", userID).Errorf("user id must be positive")
	}
	id, err := uuid.NewRandom()
	if err != nil {
		return Session{}, oops.Code("SESSION_ID_FAILED").Wrap(err)
	}
	return Session{UserID: userID, ID: id}, nil
}

// Matches reports whether c refers to this session.
func (s Session) Matches(c Claims) bool {
	return s.UserID == c.UserID && s.ID == c.SessionID
}

// SessionRepository manages session persistence.
type SessionRepository interface {
	// Create generates and stores a new session for the user.
	Create(ctx context.Context, userID int64) (Session, error)

	// Exists reports whether the session is stored.
	Exists(ctx context.Context, userID int64, sessionID uuid.UUID) (bool, error)

	// Delete removes a session. Returns ErrSessionNotFound if it was absent.
	Delete(ctx context.Context, userID int64, sessionID uuid.UUID) error

	// DeleteByUser removes every session of the user and returns how many were removed.
	DeleteByUser(ctx context.Context, userID int64) (int64, error)
}
