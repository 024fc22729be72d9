// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package auth

import (
	"context"
	"fmt"
	"net/mail"
	"strings"
	"time"
	"unicode/utf8"
)

// Field limits enforced on user input.
const (
	MinNameLength     = 4
	MaxNameLength     = 64
	MinPasswordLength = 4
	MaxPasswordLength = 128
	MaxEmailLength    = 254
)

// User is an account. Soft-deleted users have DeletedAt set and are invisible
// to every repository lookup.
type User struct {
	ID           int64
	Name         string
	Email        string
	PasswordHash string
	Avatar       *string
	CreatedAt    time.Time
	UpdatedAt    time.Time
	DeletedAt    *time.Time
}

// OwnerID returns the id of the user owning this record, which is the user itself.
func (u *User) OwnerID() int64 {
	return u.ID
}

// PublicUser is the externally visible view of a User.
type PublicUser struct {
	ID        int64     `json:"id"`
	Name      string    `json:"name"`
	Email     string    `json:"email"`
	Avatar    *string   `json:"avatar,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Public strips credentials and deletion state.
func (u *User) Public() PublicUser {
	return PublicUser{
		ID:        u.ID,
		Name:      u.Name,
		Email:     u.Email,
		Avatar:    u.Avatar,
		CreatedAt: u.CreatedAt,
		UpdatedAt: u.UpdatedAt,
	}
}

// AvatarKey returns the storage key of a user's avatar image.
func AvatarKey(userID int64) string {
	return fmt.Sprintf("user/user_avatar_%d.png", userID)
}

// NewUser holds the columns written when a user is created.
type NewUser struct {
	Name         string
	Email        string
	PasswordHash string
}

// UserUpdate holds optional profile changes. Nil fields are left unchanged.
type UserUpdate struct {
	Name  *string
	Email *string
}

// Empty reports whether the update changes nothing.
func (u UserUpdate) Empty() bool {
	return u.Name == nil && u.Email == nil
}

// Validate checks every present field.
func (u UserUpdate) Validate() error {
	v := &ValidationError{}
	if u.Name != nil {
		validateName(v, *u.Name)
	}
	if u.Email != nil {
		validateEmail(v, *u.Email)
	}
	if !v.Empty() {
		return v
	}
	return nil
}

// UserRepository manages user persistence. Lookups never return soft-deleted
// users.
type UserRepository interface {
	// Create inserts a user and returns it with its assigned id.
	// Returns ErrDuplicateEmail if a live user already has the email.
	Create(ctx context.Context, user NewUser) (*User, error)

	// GetByID returns ErrUserNotFound for unknown or soft-deleted ids.
	GetByID(ctx context.Context, id int64) (*User, error)

	// GetByEmail matches the email exactly as stored.
	GetByEmail(ctx context.Context, email string) (*User, error)

	// List returns all live users ordered by id.
	List(ctx context.Context) ([]*User, error)

	// Update applies non-nil fields and returns the updated user.
	Update(ctx context.Context, id int64, update UserUpdate) (*User, error)

	// SetAvatar records the avatar storage key for a user.
	SetAvatar(ctx context.Context, id int64, key string) error

	// SoftDelete stamps the user as deleted.
	SoftDelete(ctx context.Context, id int64) error

	// Delete removes the user row. Used to roll back a failed registration.
	Delete(ctx context.Context, id int64) error
}

func validateName(v *ValidationError, name string) {
	n := utf8.RuneCountInString(strings.TrimSpace(name))
	switch {
	case n < MinNameLength:
		v.Add("name", fmt.Sprintf("must be at least %d characters", MinNameLength))
	case n > MaxNameLength:
		v.Add("name", fmt.Sprintf("must be at most %d characters", MaxNameLength))
	}
}

func validateEmail(v *ValidationError, email string) {
	if len(email) > MaxEmailLength {
		v.Add("email", fmt.Sprintf("must be at most %d characters", MaxEmailLength))
		return
	}
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email {
		v.Add("email", "must be a valid email address")
	}
}

func validatePassword(v *ValidationError, password string) {
	n := utf8.RuneCountInString(password)
	switch {
	case n < MinPasswordLength:
		v.Add("password", fmt.Sprintf("must be at least %d characters", MinPasswordLength))
	case n > MaxPasswordLength:
		v.Add("password", fmt.Sprintf("must be at most %d characters", MaxPasswordLength))
	}
}
