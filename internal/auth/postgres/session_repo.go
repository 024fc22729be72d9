// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package postgres

import (
	"context"

	"github.com/google/uuid"
	"github.com/samber/oops"

	"github.com/holomush/accounts/internal/auth"
	"github.com/holomush/accounts/internal/store"
)

// SessionRepository implements auth.SessionRepository using PostgreSQL.
type SessionRepository struct {
	db store.Querier
}

// NewSessionRepository creates a new SessionRepository.
func NewSessionRepository(db store.Querier) *SessionRepository {
	return &SessionRepository{db: db}
}

// Create stores a new session with a random id.
func (r *SessionRepository) Create(ctx context.Context, userID int64) (auth.Session, error) {
	session, err := auth.NewSession(userID)
	if err != nil {
		return auth.Session{}, err
	}

	_, err = r.db.Exec(ctx, `
		INSERT INTO sessions (user_id, session_uuid)
		VALUES ($1, $2)
	`, session.UserID, session.ID)
	if err != nil {
		return auth.Session{}, oops.Code("SESSION_CREATE_FAILED").
			With("operation", "insert session").
			With("user_id", userID).
			Wrap(err)
	}
	return session, nil
}

// Exists is a single primary-key lookup.
func (r *SessionRepository) Exists(ctx context.Context, userID int64, sessionID uuid.UUID) (bool, error) {
	var exists bool
	err := r.db.QueryRow(ctx, `
		SELECT EXISTS (SELECT 1 FROM sessions WHERE user_id = $1 AND session_uuid = $2)
	`, userID, sessionID).Scan(&exists)
	if err != nil {
		return false, oops.Code("SESSION_EXISTS_FAILED").
			With("operation", "check session").
			With("user_id", userID).
			Wrap(err)
	}
	return exists, nil
}

// Delete removes one session.
func (r *SessionRepository) Delete(ctx context.Context, userID int64, sessionID uuid.UUID) error {
	result, err := r.db.Exec(ctx, `
		DELETE FROM sessions WHERE user_id = $1 AND session_uuid = $2
	`, userID, sessionID)
	if err != nil {
		return oops.Code("SESSION_DELETE_FAILED").
			With("operation", "delete session").
			With("user_id", userID).
			Wrap(err)
	}
	if result.RowsAffected() == 0 {
		return oops.Code("SESSION_NOT_FOUND").
			With("session_id", sessionID.String()).
			Wrap(auth.ErrSessionNotFound)
	}
	return nil
}

// DeleteByUser removes every session of a user.
func (r *SessionRepository) DeleteByUser(ctx context.Context, userID int64) (int64, error) {
	result, err := r.db.Exec(ctx, `DELETE FROM sessions WHERE user_id = $1`, userID)
	if err != nil {
		return 0, oops.Code("SESSION_DELETE_FAILED").
			With("operation", "delete sessions by user").
			With("user_id", userID).
			Wrap(err)
	}
	return result.RowsAffected(), nil
}

var _ auth.SessionRepository = (*SessionRepository)(nil)
