// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package auth

import (
	"context"
	"errors"
	"log/slog"

	"github.com/samber/oops"
)

// UserService provides profile operations on existing users.
type UserService struct {
	users    UserRepository
	sessions SessionRepository
	avatars  AvatarStore
}

// NewUserService creates a new UserService.
func NewUserService(users UserRepository, sessions SessionRepository, avatars AvatarStore) *UserService {
	return &UserService{users: users, sessions: sessions, avatars: avatars}
}

// FindByID returns a live user.
func (s *UserService) FindByID(ctx context.Context, id int64) (*User, error) {
	user, err := s.users.GetByID(ctx, id)
	if err != nil {
		return nil, oops.With("operation", "find user").With("user_id", id).Wrap(err)
	}
	return user, nil
}

// List returns every live user.
func (s *UserService) List(ctx context.Context) ([]*User, error) {
	users, err := s.users.List(ctx)
	if err != nil {
		return nil, oops.With("operation", "list users").Wrap(err)
	}
	return users, nil
}

// Update changes a user's name and/or email. A new email must not belong to
// another live user.
func (s *UserService) Update(ctx context.Context, id int64, update UserUpdate) (*User, error) {
	if err := update.Validate(); err != nil {
		return nil, oops.Code("AUTH_VALIDATION_FAILED").Wrap(err)
	}
	if update.Empty() {
		return s.FindByID(ctx, id)
	}

	if update.Email != nil {
		existing, err := s.users.GetByEmail(ctx, *update.Email)
		switch {
		case err == nil && existing.ID != id:
			return nil, oops.Code("AUTH_DUPLICATE_EMAIL").With("email", *update.Email).Wrap(ErrDuplicateEmail)
		case err != nil && !errors.Is(err, ErrNotFound):
			return nil, oops.Code("USER_UPDATE_FAILED").
				With("operation", "get user by email").
				Wrap(err)
		}
	}

	user, err := s.users.Update(ctx, id, update)
	if err != nil {
		return nil, oops.With("operation", "update user").With("user_id", id).Wrap(err)
	}
	return user, nil
}

// Delete soft-deletes a user and revokes all of its sessions. The avatar is
// removed on a best-effort basis.
func (s *UserService) Delete(ctx context.Context, id int64) error {
	user, err := s.users.GetByID(ctx, id)
	if err != nil {
		return oops.With("operation", "delete user").With("user_id", id).Wrap(err)
	}

	// Revoke before hiding so a failure never leaves a deleted user with
	// live tokens.
	revoked, err := s.sessions.DeleteByUser(ctx, id)
	if err != nil {
		return oops.Code("USER_DELETE_FAILED").
			With("operation", "delete sessions").
			With("user_id", id).
			Wrap(err)
	}

	if err := s.users.SoftDelete(ctx, id); err != nil {
		return oops.With("operation", "soft delete user").With("user_id", id).Wrap(err)
	}

	if user.Avatar != nil && s.avatars != nil {
		if err := s.avatars.Remove(ctx, *user.Avatar); err != nil {
			slog.WarnContext(ctx, "avatar removal failed", "user_id", id, "key", *user.Avatar, "error", err)
		}
	}

	slog.InfoContext(ctx, "user deleted", "user_id", id, "sessions_revoked", revoked)
	return nil
}
