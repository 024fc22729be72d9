// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package auth

import (
	"context"
	"encoding/base64"
	"errors"
	"log/slog"
	"sync"

	"github.com/google/uuid"
	"github.com/samber/oops"
)

// AvatarStore persists avatar images under a key.
type AvatarStore interface {
	Save(ctx context.Context, key string, data []byte) error
	Remove(ctx context.Context, key string) error
}

// RegisterInput is the data supplied by a new user. Avatar, when set, is a
// base64 encoded image.
type RegisterInput struct {
	Name     string
	Email    string
	Password string
	Avatar   *string
}

// Validate checks field formats and lengths.
func (in RegisterInput) Validate() error {
	v := &ValidationError{}
	validateName(v, in.Name)
	validateEmail(v, in.Email)
	validatePassword(v, in.Password)
	if in.Avatar != nil && *in.Avatar == "" {
		v.Add("avatar", "must not be empty")
	}
	if !v.Empty() {
		return v
	}
	return nil
}

// AuthResult is returned by Register and Login.
type AuthResult struct {
	User   PublicUser `json:"user"`
	Token  string     `json:"token"`
	Claims Claims     `json:"-"`
}

// Service provides registration, login, logout and session checks.
type Service struct {
	users    UserRepository
	sessions SessionRepository
	hasher   PasswordHasher
	tokens   Issuer
	avatars  AvatarStore

	dummyOnce sync.Once
	dummyHash string
	dummyErr  error
}

// NewAuthService creates a new Service. All collaborators are required.
func NewAuthService(users UserRepository, sessions SessionRepository, hasher PasswordHasher, tokens Issuer, avatars AvatarStore) (*Service, error) {
	switch {
	case users == nil:
		return nil, oops.Code("AUTH_INVALID_CONFIG").Errorf("user repository is required")
	case sessions == nil:
		return nil, oops.Code("AUTH_INVALID_CONFIG").Errorf("session repository is required")
	case hasher == nil:
		return nil, oops.Code("AUTH_INVALID_CONFIG").Errorf("password hasher is required")
	case tokens == nil:
		return nil, oops.Code("AUTH_INVALID_CONFIG").Errorf("token issuer is required")
	case avatars == nil:
		return nil, oops.Code("AUTH_INVALID_CONFIG").Errorf("avatar store is required")
	}
	return &Service{
		users:    users,
		sessions: sessions,
		hasher:   hasher,
		tokens:   tokens,
		avatars:  avatars,
	}, nil
}

// dummy returns a hash made with the hasher's own parameters. It is verified
// when the email is unknown so that login costs the same whether or not the
// account exists, and it never matches a submitted password.
func (s *Service) dummy() (string, error) {
	s.dummyOnce.Do(func() {
		s.dummyHash, s.dummyErr = s.hasher.Hash(uuid.NewString())
	})
	return s.dummyHash, s.dummyErr
}

// Register creates an account and signs the caller in. The token is issued
// only after every storage side effect has succeeded; any failure before that
// removes the new user again.
func (s *Service) Register(ctx context.Context, in RegisterInput) (AuthResult, error) {
	if err := in.Validate(); err != nil {
		return AuthResult{}, oops.Code("AUTH_VALIDATION_FAILED").Wrap(err)
	}

	// Best-effort pre-check; the unique index decides races.
	if _, err := s.users.GetByEmail(ctx, in.Email); err == nil {
		return AuthResult{}, oops.Code("AUTH_DUPLICATE_EMAIL").With("email", in.Email).Wrap(ErrDuplicateEmail)
	} else if !errors.Is(err, ErrNotFound) {
		return AuthResult{}, oops.Code("AUTH_REGISTER_FAILED").
			With("operation", "get user by email").
			Wrap(err)
	}

	hash, err := s.hasher.Hash(in.Password)
	if err != nil {
		return AuthResult{}, oops.Code("AUTH_HASHING_FAILED").Wrap(errors.Join(ErrHashingFailed, err))
	}

	user, err := s.users.Create(ctx, NewUser{Name: in.Name, Email: in.Email, PasswordHash: hash})
	if err != nil {
		if errors.Is(err, ErrDuplicateEmail) {
			return AuthResult{}, oops.Code("AUTH_DUPLICATE_EMAIL").With("email", in.Email).Wrap(err)
		}
		return AuthResult{}, oops.Code("AUTH_REGISTER_FAILED").
			With("operation", "create user").
			Wrap(err)
	}

	if in.Avatar != nil {
		if err := s.attachAvatar(ctx, user, *in.Avatar); err != nil {
			s.rollbackUser(ctx, user.ID)
			return AuthResult{}, err
		}
	}

	result, err := s.openSession(ctx, user)
	if err != nil {
		if user.Avatar != nil {
			s.removeAvatar(ctx, *user.Avatar)
		}
		s.rollbackUser(ctx, user.ID)
		return AuthResult{}, oops.Code("AUTH_REGISTER_FAILED").
			With("operation", "open session").
			With("user_id", user.ID).
			Wrap(err)
	}

	slog.InfoContext(ctx, "user registered", "user_id", user.ID)
	return result, nil
}

func (s *Service) attachAvatar(ctx context.Context, user *User, payload string) error {
	data, err := base64.StdEncoding.DecodeString(payload)
	if err != nil || len(data) == 0 {
		return oops.Code("AUTH_VALIDATION_FAILED").
			With("user_id", user.ID).
			Wrap(NewValidationError("avatar", "must be base64 encoded image data"))
	}

	key := AvatarKey(user.ID)
	if err := s.avatars.Save(ctx, key, data); err != nil {
		return oops.Code("AUTH_AVATAR_FAILED").
			With("operation", "save avatar").
			With("user_id", user.ID).
			Wrap(err)
	}

	if err := s.users.SetAvatar(ctx, user.ID, key); err != nil {
		s.removeAvatar(ctx, key)
		return oops.Code("AUTH_AVATAR_FAILED").
			With("operation", "set avatar").
			With("user_id", user.ID).
			Wrap(err)
	}

	user.Avatar = &key
	return nil
}

// rollbackUser deletes a partially registered user. Failure leaves an orphan
// row, so it is logged at error level.
func (s *Service) rollbackUser(ctx context.Context, userID int64) {
	if err := s.users.Delete(context.WithoutCancel(ctx), userID); err != nil {
		slog.ErrorContext(ctx, "registration rollback failed", "user_id", userID, "error", err)
	}
}

func (s *Service) removeAvatar(ctx context.Context, key string) {
	if err := s.avatars.Remove(context.WithoutCancel(ctx), key); err != nil {
		slog.WarnContext(ctx, "avatar cleanup failed", "key", key, "error", err)
	}
}

// Login verifies credentials and opens a new session. Unknown email and wrong
// password produce the same error.
func (s *Service) Login(ctx context.Context, email, password string) (AuthResult, error) {
	user, lookupErr := s.users.GetByEmail(ctx, email)

	var targetHash string
	switch {
	case lookupErr == nil:
		targetHash = user.PasswordHash
	case errors.Is(lookupErr, ErrNotFound):
		dummy, err := s.dummy()
		if err != nil {
			return AuthResult{}, oops.Code("AUTH_LOGIN_FAILED").
				With("operation", "hash dummy password").
				Wrap(errors.Join(ErrHashingFailed, err))
		}
		targetHash = dummy
	default:
		return AuthResult{}, oops.Code("AUTH_LOGIN_FAILED").
			With("operation", "get user by email").
			Wrap(lookupErr)
	}

	// Always verify, even against the dummy hash.
	valid, verifyErr := s.hasher.Verify(password, targetHash)
	if verifyErr != nil {
		if user == nil {
			return AuthResult{}, invalidCredentials()
		}
		return AuthResult{}, oops.Code("AUTH_LOGIN_FAILED").
			With("operation", "verify password").
			With("user_id", user.ID).
			Wrap(errors.Join(ErrHashingFailed, verifyErr))
	}

	if user == nil || !valid {
		return AuthResult{}, invalidCredentials()
	}

	result, err := s.openSession(ctx, user)
	if err != nil {
		return AuthResult{}, oops.Code("AUTH_LOGIN_FAILED").
			With("operation", "open session").
			With("user_id", user.ID).
			Wrap(err)
	}
	return result, nil
}

func invalidCredentials() error {
	return oops.Code("AUTH_INVALID_CREDENTIALS").Wrap(ErrInvalidCredentials)
}

// openSession stores a session and signs a token for it. If signing fails the
// session is deleted again.
func (s *Service) openSession(ctx context.Context, user *User) (AuthResult, error) {
	session, err := s.sessions.Create(ctx, user.ID)
	if err != nil {
		return AuthResult{}, oops.Code("AUTH_SESSION_CREATE_FAILED").
			With("operation", "persist session").
			Wrap(err)
	}

	token, claims, err := s.tokens.Issue(session)
	if err != nil {
		if delErr := s.sessions.Delete(context.WithoutCancel(ctx), session.UserID, session.ID); delErr != nil {
			slog.WarnContext(ctx, "orphan session cleanup failed",
				"user_id", session.UserID,
				"session_id", session.ID.String(),
				"error", delErr)
		}
		return AuthResult{}, err
	}

	return AuthResult{User: user.Public(), Token: token, Claims: claims}, nil
}

// Logout revokes the session named by claims. Revoking an absent session
// succeeds.
func (s *Service) Logout(ctx context.Context, claims Claims) error {
	err := s.sessions.Delete(ctx, claims.UserID, claims.SessionID)
	if err == nil || errors.Is(err, ErrSessionNotFound) {
		return nil
	}
	return oops.Code("AUTH_LOGOUT_FAILED").
		With("operation", "delete session").
		With("user_id", claims.UserID).
		With("session_id", claims.SessionID.String()).
		Wrap(err)
}

// Check reports whether the session named by claims is still live.
func (s *Service) Check(ctx context.Context, claims Claims) (bool, error) {
	if claims.SessionID == uuid.Nil {
		return false, nil
	}
	ok, err := s.sessions.Exists(ctx, claims.UserID, claims.SessionID)
	if err != nil {
		return false, oops.Code("AUTH_CHECK_FAILED").
			With("operation", "session exists").
			With("user_id", claims.UserID).
			Wrap(err)
	}
	return ok, nil
}
