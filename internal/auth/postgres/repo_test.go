// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package postgres

import (
	"context"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/holomush/accounts/internal/auth"
	"github.com/holomush/accounts/pkg/errutil"
)

var userCols = []string{"id", "name", "email", "password_hash", "avatar", "created_at", "updated_at", "deleted_at"}

func userRow(id int64, name, email string) *pgxmock.Rows {
	now := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	return pgxmock.NewRows(userCols).AddRow(id, name, email, "hash", nil, now, now, nil)
}

func q(s string) string { return regexp.QuoteMeta(s) }

func TestUserRepository_Create(t *testing.T) {
	tests := []struct {
		name      string
		setupMock func(mock pgxmock.PgxPoolIface)
		wantErr   error
		wantCode  string
	}{
		{
			name: "returns the inserted user",
			setupMock: func(mock pgxmock.PgxPoolIface) {
				mock.ExpectQuery(q("INSERT INTO users (name, email, password_hash)")).
					WithArgs("alice", "a@x.com", "hash").
					WillReturnRows(userRow(1, "alice", "a@x.com"))
			},
		},
		{
			name: "unique violation is a duplicate email",
			setupMock: func(mock pgxmock.PgxPoolIface) {
				mock.ExpectQuery(q("INSERT INTO users")).
					WithArgs("alice", "a@x.com", "hash").
					WillReturnError(&pgconn.PgError{Code: pgerrcode.UniqueViolation})
			},
			wantErr:  auth.ErrDuplicateEmail,
			wantCode: "USER_DUPLICATE_EMAIL",
		},
		{
			name: "other errors are wrapped",
			setupMock: func(mock pgxmock.PgxPoolIface) {
				mock.ExpectQuery(q("INSERT INTO users")).
					WithArgs("alice", "a@x.com", "hash").
					WillReturnError(errors.New("connection refused"))
			},
			wantCode: "USER_CREATE_FAILED",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mock, err := pgxmock.NewPool()
			require.NoError(t, err)
			defer mock.Close()
			tt.setupMock(mock)

			repo := NewUserRepository(mock)
			user, err := repo.Create(context.Background(), auth.NewUser{Name: "alice", Email: "a@x.com", PasswordHash: "hash"})

			if tt.wantCode == "" {
				require.NoError(t, err)
				assert.Equal(t, int64(1), user.ID)
				assert.Equal(t, "alice", user.Name)
				assert.Nil(t, user.Avatar)
				assert.Nil(t, user.DeletedAt)
			} else {
				errutil.AssertErrorCode(t, err, tt.wantCode)
				if tt.wantErr != nil {
					assert.True(t, errors.Is(err, tt.wantErr))
				}
			}
			assert.NoError(t, mock.ExpectationsWereMet())
		})
	}
}

func TestUserRepository_Lookups(t *testing.T) {
	ctx := context.Background()

	t.Run("GetByID filters soft-deleted rows", func(t *testing.T) {
		mock, err := pgxmock.NewPool()
		require.NoError(t, err)
		defer mock.Close()
		mock.ExpectQuery(q("WHERE id = $1 AND deleted_at IS NULL")).
			WithArgs(int64(1)).
			WillReturnRows(userRow(1, "alice", "a@x.com"))

		user, err := NewUserRepository(mock).GetByID(ctx, 1)
		require.NoError(t, err)
		assert.Equal(t, "a@x.com", user.Email)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("GetByID no rows is not found", func(t *testing.T) {
		mock, err := pgxmock.NewPool()
		require.NoError(t, err)
		defer mock.Close()
		mock.ExpectQuery(q("FROM users")).WithArgs(int64(2)).WillReturnError(pgx.ErrNoRows)

		_, err = NewUserRepository(mock).GetByID(ctx, 2)
		assert.True(t, errors.Is(err, auth.ErrUserNotFound))
		errutil.AssertErrorCode(t, err, "USER_NOT_FOUND")
		errutil.AssertErrorContext(t, err, "id", int64(2))
	})

	t.Run("GetByEmail no rows is not found", func(t *testing.T) {
		mock, err := pgxmock.NewPool()
		require.NoError(t, err)
		defer mock.Close()
		mock.ExpectQuery(q("WHERE email = $1 AND deleted_at IS NULL")).
			WithArgs("x@x.com").
			WillReturnError(pgx.ErrNoRows)

		_, err = NewUserRepository(mock).GetByEmail(ctx, "x@x.com")
		assert.True(t, errors.Is(err, auth.ErrNotFound))
	})

	t.Run("GetByEmail query failure", func(t *testing.T) {
		mock, err := pgxmock.NewPool()
		require.NoError(t, err)
		defer mock.Close()
		mock.ExpectQuery(q("FROM users")).WithArgs("x@x.com").WillReturnError(errors.New("boom"))

		_, err = NewUserRepository(mock).GetByEmail(ctx, "x@x.com")
		assert.False(t, errors.Is(err, auth.ErrNotFound))
		errutil.AssertErrorCode(t, err, "USER_GET_FAILED")
	})

	t.Run("List returns users in order", func(t *testing.T) {
		mock, err := pgxmock.NewPool()
		require.NoError(t, err)
		defer mock.Close()
		now := time.Now().UTC()
		mock.ExpectQuery(q("ORDER BY id")).
			WillReturnRows(pgxmock.NewRows(userCols).
				AddRow(int64(1), "alice", "a@x.com", "h", nil, now, now, nil).
				AddRow(int64(2), "bobby", "b@x.com", "h", nil, now, now, nil))

		users, err := NewUserRepository(mock).List(ctx)
		require.NoError(t, err)
		require.Len(t, users, 2)
		assert.Equal(t, "bobby", users[1].Name)
	})

	t.Run("List with no users is empty, not nil", func(t *testing.T) {
		mock, err := pgxmock.NewPool()
		require.NoError(t, err)
		defer mock.Close()
		mock.ExpectQuery(q("ORDER BY id")).WillReturnRows(pgxmock.NewRows(userCols))

		users, err := NewUserRepository(mock).List(ctx)
		require.NoError(t, err)
		assert.NotNil(t, users)
		assert.Empty(t, users)
	})
}

func TestUserRepository_Update(t *testing.T) {
	ctx := context.Background()
	name := "alice smith"

	t.Run("passes nil for unchanged fields", func(t *testing.T) {
		mock, err := pgxmock.NewPool()
		require.NoError(t, err)
		defer mock.Close()
		mock.ExpectQuery(q("COALESCE($2, name)")).
			WithArgs(int64(1), &name, (*string)(nil)).
			WillReturnRows(userRow(1, name, "a@x.com"))

		user, err := NewUserRepository(mock).Update(ctx, 1, auth.UserUpdate{Name: &name})
		require.NoError(t, err)
		assert.Equal(t, name, user.Name)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("unique violation is a duplicate email", func(t *testing.T) {
		mock, err := pgxmock.NewPool()
		require.NoError(t, err)
		defer mock.Close()
		email := "b@x.com"
		mock.ExpectQuery(q("UPDATE users")).
			WithArgs(int64(1), (*string)(nil), &email).
			WillReturnError(&pgconn.PgError{Code: pgerrcode.UniqueViolation})

		_, err = NewUserRepository(mock).Update(ctx, 1, auth.UserUpdate{Email: &email})
		assert.True(t, errors.Is(err, auth.ErrDuplicateEmail))
	})

	t.Run("no rows is not found", func(t *testing.T) {
		mock, err := pgxmock.NewPool()
		require.NoError(t, err)
		defer mock.Close()
		mock.ExpectQuery(q("UPDATE users")).
			WithArgs(int64(9), &name, (*string)(nil)).
			WillReturnError(pgx.ErrNoRows)

		_, err = NewUserRepository(mock).Update(ctx, 9, auth.UserUpdate{Name: &name})
		assert.True(t, errors.Is(err, auth.ErrUserNotFound))
	})
}

func TestUserRepository_Mutations(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name     string
		sql      string
		args     []any
		result   pgconn.CommandTag
		execErr  error
		run      func(r *UserRepository) error
		wantCode string
	}{
		{
			name:   "SetAvatar",
			sql:    "UPDATE users SET avatar = $2",
			args:   []any{int64(1), "user/user_avatar_1.png"},
			result: pgxmock.NewResult("UPDATE", 1),
			run:    func(r *UserRepository) error { return r.SetAvatar(ctx, 1, "user/user_avatar_1.png") },
		},
		{
			name:     "SetAvatar on missing user",
			sql:      "UPDATE users SET avatar = $2",
			args:     []any{int64(1), "k"},
			result:   pgxmock.NewResult("UPDATE", 0),
			run:      func(r *UserRepository) error { return r.SetAvatar(ctx, 1, "k") },
			wantCode: "USER_NOT_FOUND",
		},
		{
			name:   "SoftDelete",
			sql:    "SET deleted_at = now()",
			args:   []any{int64(1)},
			result: pgxmock.NewResult("UPDATE", 1),
			run:    func(r *UserRepository) error { return r.SoftDelete(ctx, 1) },
		},
		{
			name:     "SoftDelete twice",
			sql:      "SET deleted_at = now()",
			args:     []any{int64(1)},
			result:   pgxmock.NewResult("UPDATE", 0),
			run:      func(r *UserRepository) error { return r.SoftDelete(ctx, 1) },
			wantCode: "USER_NOT_FOUND",
		},
		{
			name:   "Delete",
			sql:    "DELETE FROM users WHERE id = $1",
			args:   []any{int64(1)},
			result: pgxmock.NewResult("DELETE", 1),
			run:    func(r *UserRepository) error { return r.Delete(ctx, 1) },
		},
		{
			name:     "Delete failure",
			sql:      "DELETE FROM users",
			args:     []any{int64(1)},
			execErr:  errors.New("boom"),
			run:      func(r *UserRepository) error { return r.Delete(ctx, 1) },
			wantCode: "USER_DELETE_FAILED",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mock, err := pgxmock.NewPool()
			require.NoError(t, err)
			defer mock.Close()

			exp := mock.ExpectExec(q(tt.sql)).WithArgs(tt.args...)
			if tt.execErr != nil {
				exp.WillReturnError(tt.execErr)
			} else {
				exp.WillReturnResult(tt.result)
			}

			err = tt.run(NewUserRepository(mock))
			if tt.wantCode == "" {
				assert.NoError(t, err)
			} else {
				errutil.AssertErrorCode(t, err, tt.wantCode)
			}
			assert.NoError(t, mock.ExpectationsWereMet())
		})
	}
}

func TestSessionRepository(t *testing.T) {
	ctx := context.Background()
	sid := uuid.New()

	t.Run("Create inserts a fresh session", func(t *testing.T) {
		mock, err := pgxmock.NewPool()
		require.NoError(t, err)
		defer mock.Close()
		mock.ExpectExec(q("INSERT INTO sessions (user_id, session_uuid)")).
			WithArgs(int64(5), pgxmock.AnyArg()).
			WillReturnResult(pgxmock.NewResult("INSERT", 1))

		s, err := NewSessionRepository(mock).Create(ctx, 5)
		require.NoError(t, err)
		assert.Equal(t, int64(5), s.UserID)
		assert.NotEqual(t, uuid.Nil, s.ID)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("Create failure", func(t *testing.T) {
		mock, err := pgxmock.NewPool()
		require.NoError(t, err)
		defer mock.Close()
		mock.ExpectExec(q("INSERT INTO sessions")).
			WithArgs(int64(5), pgxmock.AnyArg()).
			WillReturnError(&pgconn.PgError{Code: pgerrcode.ForeignKeyViolation})

		_, err = NewSessionRepository(mock).Create(ctx, 5)
		errutil.AssertErrorCode(t, err, "SESSION_CREATE_FAILED")
	})

	t.Run("Exists", func(t *testing.T) {
		for _, want := range []bool{true, false} {
			mock, err := pgxmock.NewPool()
			require.NoError(t, err)
			mock.ExpectQuery(q("SELECT EXISTS")).
				WithArgs(int64(5), sid).
				WillReturnRows(pgxmock.NewRows([]string{"exists"}).AddRow(want))

			got, err := NewSessionRepository(mock).Exists(ctx, 5, sid)
			require.NoError(t, err)
			assert.Equal(t, want, got)
			mock.Close()
		}
	})

	t.Run("Exists failure", func(t *testing.T) {
		mock, err := pgxmock.NewPool()
		require.NoError(t, err)
		defer mock.Close()
		mock.ExpectQuery(q("SELECT EXISTS")).WithArgs(int64(5), sid).WillReturnError(errors.New("boom"))

		ok, err := NewSessionRepository(mock).Exists(ctx, 5, sid)
		assert.False(t, ok)
		errutil.AssertErrorCode(t, err, "SESSION_EXISTS_FAILED")
	})

	t.Run("Delete of absent session is not found", func(t *testing.T) {
		mock, err := pgxmock.NewPool()
		require.NoError(t, err)
		defer mock.Close()
		mock.ExpectExec(q("DELETE FROM sessions WHERE user_id = $1 AND session_uuid = $2")).
			WithArgs(int64(5), sid).
			WillReturnResult(pgxmock.NewResult("DELETE", 0))

		err = NewSessionRepository(mock).Delete(ctx, 5, sid)
		assert.True(t, errors.Is(err, auth.ErrSessionNotFound))
	})

	t.Run("DeleteByUser reports count", func(t *testing.T) {
		mock, err := pgxmock.NewPool()
		require.NoError(t, err)
		defer mock.Close()
		mock.ExpectExec(q("DELETE FROM sessions WHERE user_id = $1")).
			WithArgs(int64(5)).
			WillReturnResult(pgxmock.NewResult("DELETE", 3))

		n, err := NewSessionRepository(mock).DeleteByUser(ctx, 5)
		require.NoError(t, err)
		assert.Equal(t, int64(3), n)
	})
}
