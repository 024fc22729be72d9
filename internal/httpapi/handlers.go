// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package httpapi

import (
	"context"
	"errors"
	"net/http"

	"github.com/holomush/accounts/internal/auth"
	"github.com/holomush/accounts/internal/observability"
)

// AuthService is the account lifecycle the API exposes.
type AuthService interface {
	SessionChecker
	Register(ctx context.Context, in auth.RegisterInput) (auth.AuthResult, error)
	Login(ctx context.Context, email, password string) (auth.AuthResult, error)
	Logout(ctx context.Context, claims auth.Claims) error
}

// UserService manages existing users.
type UserService interface {
	UserFinder
	List(ctx context.Context) ([]*auth.User, error)
	Update(ctx context.Context, id int64, update auth.UserUpdate) (*auth.User, error)
	Delete(ctx context.Context, id int64) error
}

func outcome(err error) string {
	switch {
	case err == nil:
		return observability.OutcomeSuccess
	case errors.Is(err, auth.ErrInvalidCredentials),
		errors.Is(err, auth.ErrDuplicateEmail),
		errors.As(err, new(*auth.ValidationError)):
		return observability.OutcomeFailure
	default:
		return observability.OutcomeError
	}
}

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := s.schemas.decode(r, s.schemas.register, &req); err != nil {
		s.metrics.RecordAuthAttempt("register", outcome(err))
		writeError(w, r, err)
		return
	}

	result, err := s.auth.Register(r.Context(), auth.RegisterInput{
		Name:     req.Name,
		Email:    req.Email,
		Password: req.Password,
		Avatar:   req.Avatar,
	})
	s.metrics.RecordAuthAttempt("register", outcome(err))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, result)
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := s.schemas.decode(r, s.schemas.login, &req); err != nil {
		s.metrics.RecordAuthAttempt("login", outcome(err))
		writeError(w, r, err)
		return
	}

	result, err := s.auth.Login(r.Context(), req.Email, req.Password)
	s.metrics.RecordAuthAttempt("login", outcome(err))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	identity, _ := IdentityFrom(r.Context())
	err := s.auth.Logout(r.Context(), identity.Claims)
	s.metrics.RecordAuthAttempt("logout", outcome(err))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeEmpty(w, http.StatusOK)
}

func (s *Server) handleMe(w http.ResponseWriter, r *http.Request) {
	identity, _ := IdentityFrom(r.Context())
	writeJSON(w, http.StatusOK, identity.User.Public())
}

func (s *Server) handleListUsers(w http.ResponseWriter, r *http.Request) {
	users, err := s.users.List(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	out := make([]auth.PublicUser, 0, len(users))
	for _, u := range users {
		out = append(out, u.Public())
	}
	writeJSON(w, http.StatusOK, newListResponse(out))
}

func (s *Server) handleGetUser(w http.ResponseWriter, r *http.Request) {
	user, _ := ObjectFrom[*auth.User](r.Context())
	writeJSON(w, http.StatusOK, user.Public())
}

func (s *Server) handleUpdateUser(w http.ResponseWriter, r *http.Request) {
	user, _ := ObjectFrom[*auth.User](r.Context())

	var req updateUserRequest
	if err := s.schemas.decode(r, s.schemas.updateUser, &req); err != nil {
		writeError(w, r, err)
		return
	}

	updated, err := s.users.Update(r.Context(), user.ID, auth.UserUpdate{Name: req.Name, Email: req.Email})
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, updated.Public())
}

func (s *Server) handleDeleteUser(w http.ResponseWriter, r *http.Request) {
	user, _ := ObjectFrom[*auth.User](r.Context())
	if err := s.users.Delete(r.Context(), user.ID); err != nil {
		writeError(w, r, err)
		return
	}
	writeEmpty(w, http.StatusOK)
}
