// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package httpapi

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/holomush/accounts/internal/auth"
	"github.com/holomush/accounts/internal/store"
	"github.com/holomush/accounts/pkg/errutil"
)

// ErrorResponse is the body of every failed request.
type ErrorResponse struct {
	Error       string              `json:"error"`
	FieldErrors map[string][]string `json:"field_errors,omitempty"`
}

// ListResponse wraps collection results. Lists are not paginated, so Page is
// always 1 and Total equals len(Data).
type ListResponse[T any] struct {
	Data  []T `json:"data"`
	Total int `json:"total"`
	Page  int `json:"page"`
}

func newListResponse[T any](data []T) ListResponse[T] {
	return ListResponse[T]{Data: data, Total: len(data), Page: 1}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Warn("write response failed", "error", err)
	}
}

// writeEmpty sends status with no body.
func writeEmpty(w http.ResponseWriter, status int) {
	w.WriteHeader(status)
}

func writeMessage(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, ErrorResponse{Error: msg})
}

// writeError maps err to a status and body. Unexpected errors are logged and
// answered with a generic message.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	status, body := classify(err)
	if status == http.StatusInternalServerError {
		errutil.LogErrorContext(r.Context(), slog.Default(), "request failed", err)
	}
	writeJSON(w, status, body)
}

func classify(err error) (int, ErrorResponse) {
	var validation *auth.ValidationError
	switch {
	case errors.As(err, &validation):
		return http.StatusBadRequest, ErrorResponse{Error: "validation failed", FieldErrors: validation.Fields}
	case errors.Is(err, errBodyTooLarge):
		return http.StatusRequestEntityTooLarge, ErrorResponse{Error: errBodyTooLarge.Error()}
	case errors.Is(err, errBadBody):
		return http.StatusBadRequest, ErrorResponse{Error: errBadBody.Error()}
	case errors.Is(err, auth.ErrDuplicateEmail):
		return http.StatusBadRequest, ErrorResponse{Error: auth.ErrDuplicateEmail.Error()}
	case errors.Is(err, auth.ErrInvalidCredentials):
		return http.StatusBadRequest, ErrorResponse{Error: auth.ErrInvalidCredentials.Error()}
	case errors.Is(err, auth.ErrUserNotFound):
		return http.StatusBadRequest, ErrorResponse{Error: auth.ErrUserNotFound.Error()}
	case errors.Is(err, auth.ErrNotFound):
		return http.StatusBadRequest, ErrorResponse{Error: auth.ErrNotFound.Error()}
	case errors.Is(err, auth.ErrTokenInvalid):
		return http.StatusUnauthorized, ErrorResponse{Error: "invalid token"}
	case errors.Is(err, store.ErrPoolExhausted):
		return http.StatusServiceUnavailable, ErrorResponse{Error: "service busy, retry later"}
	default:
		return http.StatusInternalServerError, ErrorResponse{Error: "internal server error"}
	}
}
