// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package httpapi

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/holomush/accounts/internal/auth"
	"github.com/holomush/accounts/pkg/errutil"
)

// SessionChecker reports whether the session named by claims is live.
type SessionChecker interface {
	Check(ctx context.Context, claims auth.Claims) (bool, error)
}

// UserFinder loads a live user by id.
type UserFinder interface {
	FindByID(ctx context.Context, id int64) (*auth.User, error)
}

// Middleware authenticates bearer tokens.
type Middleware struct {
	tokens   auth.Validator
	sessions SessionChecker
	users    UserFinder
}

// NewMiddleware creates a Middleware.
func NewMiddleware(tokens auth.Validator, sessions SessionChecker, users UserFinder) *Middleware {
	return &Middleware{tokens: tokens, sessions: sessions, users: users}
}

const bearerPrefix = "Bearer "

// Authenticate admits requests carrying a valid token for a live session and
// attaches the caller's Identity. The response of next is passed through
// unchanged.
func (m *Middleware) Authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		header := r.Header.Get("Authorization")
		if header == "" {
			writeMessage(w, http.StatusUnauthorized, "missing authorization header")
			return
		}
		raw := strings.TrimPrefix(header, bearerPrefix)

		claims, err := m.tokens.Validate(raw)
		if err != nil {
			slog.DebugContext(r.Context(), "token rejected", "error", err)
			writeMessage(w, http.StatusUnauthorized, "invalid token")
			return
		}

		// Only a dead session is a 401; storage errors go through classify.
		live, err := m.sessions.Check(r.Context(), claims)
		if err != nil {
			writeError(w, r, err)
			return
		}
		if !live {
			writeMessage(w, http.StatusUnauthorized, "invalid token")
			return
		}

		user, err := m.users.FindByID(r.Context(), claims.UserID)
		if err != nil {
			if !errors.Is(err, auth.ErrNotFound) {
				errutil.LogErrorContext(r.Context(), slog.Default(), "load authenticated user failed", err)
			}
			writeMessage(w, http.StatusBadRequest, "user not found")
			return
		}

		ctx := WithIdentity(r.Context(), Identity{User: user, Claims: claims})
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// Ownable is implemented by objects that belong to a single user.
type Ownable interface {
	OwnerID() int64
}

// Finder loads the object named by a path id.
type Finder[T any] func(ctx context.Context, id int64) (T, error)

// PathObject loads the object named by the path parameter param and attaches
// it to the request context. A missing or non-positive id, or any loader
// error, is a 400.
func PathObject[T any](param string, find Finder[T]) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id, err := strconv.ParseInt(r.PathValue(param), 10, 64)
			if err != nil || id <= 0 {
				writeMessage(w, http.StatusBadRequest, "invalid "+param)
				return
			}

			obj, err := find(r.Context(), id)
			if err != nil {
				if !errors.Is(err, auth.ErrNotFound) {
					errutil.LogErrorContext(r.Context(), slog.Default(), "load path object failed", err)
				}
				writeMessage(w, http.StatusBadRequest, "object not found")
				return
			}

			next.ServeHTTP(w, r.WithContext(WithObject(r.Context(), obj)))
		})
	}
}

// RequireOwner rejects callers who do not own the path object of type T.
// It must run after Authenticate and PathObject[T].
func RequireOwner[T Ownable]() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			identity, ok := IdentityFrom(r.Context())
			if !ok {
				writeMessage(w, http.StatusUnauthorized, "missing authorization header")
				return
			}
			obj, ok := ObjectFrom[T](r.Context())
			if !ok {
				slog.ErrorContext(r.Context(), "ownership check without path object")
				writeMessage(w, http.StatusInternalServerError, "internal server error")
				return
			}
			if obj.OwnerID() != identity.User.ID {
				writeMessage(w, http.StatusForbidden, "permission denied")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// chain wraps h so that mws run in the order given.
func chain(h http.Handler, mws ...func(http.Handler) http.Handler) http.Handler {
	for i := len(mws) - 1; i >= 0; i-- {
		h = mws[i](h)
	}
	return h
}
