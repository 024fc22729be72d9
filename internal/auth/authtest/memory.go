// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

// Package authtest provides in-memory implementations of the auth
// repositories and stores for tests.
package authtest

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/samber/oops"

	"github.com/holomush/accounts/internal/auth"
)

// Users is a concurrency-safe in-memory auth.UserRepository.
type Users struct {
	mu     sync.Mutex
	nextID int64
	byID   map[int64]*auth.User

	// Optional injected failures.
	CreateErr    error
	SetAvatarErr error
	GetErr       error
}

// NewUsers creates an empty Users repository.
func NewUsers() *Users {
	return &Users{byID: make(map[int64]*auth.User)}
}

func (r *Users) liveByEmail(email string) *auth.User {
	for _, u := range r.byID {
		if u.DeletedAt == nil && u.Email == email {
			return u
		}
	}
	return nil
}

// Create inserts a user, enforcing email uniqueness among live users.
func (r *Users) Create(_ context.Context, nu auth.NewUser) (*auth.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.CreateErr != nil {
		return nil, r.CreateErr
	}
	if r.liveByEmail(nu.Email) != nil {
		return nil, oops.Code("USER_DUPLICATE_EMAIL").Wrap(auth.ErrDuplicateEmail)
	}
	r.nextID++
	now := time.Now().UTC()
	u := &auth.User{
		ID:           r.nextID,
		Name:         nu.Name,
		Email:        nu.Email,
		PasswordHash: nu.PasswordHash,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	r.byID[u.ID] = u
	return clone(u), nil
}

// GetByID returns a live user.
func (r *Users) GetByID(_ context.Context, id int64) (*auth.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.GetErr != nil {
		return nil, r.GetErr
	}
	u, ok := r.byID[id]
	if !ok || u.DeletedAt != nil {
		return nil, oops.Code("USER_NOT_FOUND").With("id", id).Wrap(auth.ErrUserNotFound)
	}
	return clone(u), nil
}

// GetByEmail returns the live user with the email.
func (r *Users) GetByEmail(_ context.Context, email string) (*auth.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.GetErr != nil {
		return nil, r.GetErr
	}
	u := r.liveByEmail(email)
	if u == nil {
		return nil, oops.Code("USER_NOT_FOUND").Wrap(auth.ErrUserNotFound)
	}
	return clone(u), nil
}

// List returns live users ordered by id.
func (r *Users) List(_ context.Context) ([]*auth.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*auth.User, 0, len(r.byID))
	for _, u := range r.byID {
		if u.DeletedAt == nil {
			out = append(out, clone(u))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// Update applies non-nil fields.
func (r *Users) Update(_ context.Context, id int64, upd auth.UserUpdate) (*auth.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.byID[id]
	if !ok || u.DeletedAt != nil {
		return nil, oops.Code("USER_NOT_FOUND").With("id", id).Wrap(auth.ErrUserNotFound)
	}
	if upd.Email != nil {
		if other := r.liveByEmail(*upd.Email); other != nil && other.ID != id {
			return nil, oops.Code("USER_DUPLICATE_EMAIL").Wrap(auth.ErrDuplicateEmail)
		}
		u.Email = *upd.Email
	}
	if upd.Name != nil {
		u.Name = *upd.Name
	}
	u.UpdatedAt = time.Now().UTC()
	return clone(u), nil
}

// SetAvatar records the avatar key.
func (r *Users) SetAvatar(_ context.Context, id int64, key string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.SetAvatarErr != nil {
		return r.SetAvatarErr
	}
	u, ok := r.byID[id]
	if !ok || u.DeletedAt != nil {
		return oops.Code("USER_NOT_FOUND").With("id", id).Wrap(auth.ErrUserNotFound)
	}
	u.Avatar = &key
	return nil
}

// SoftDelete stamps DeletedAt.
func (r *Users) SoftDelete(_ context.Context, id int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.byID[id]
	if !ok || u.DeletedAt != nil {
		return oops.Code("USER_NOT_FOUND").With("id", id).Wrap(auth.ErrUserNotFound)
	}
	now := time.Now().UTC()
	u.DeletedAt = &now
	return nil
}

// Delete removes the row.
func (r *Users) Delete(_ context.Context, id int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.byID[id]; !ok {
		return oops.Code("USER_NOT_FOUND").With("id", id).Wrap(auth.ErrUserNotFound)
	}
	delete(r.byID, id)
	return nil
}

// Count returns the number of stored rows, including soft-deleted ones.
func (r *Users) Count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.byID)
}

func clone(u *auth.User) *auth.User {
	c := *u
	if u.Avatar != nil {
		a := *u.Avatar
		c.Avatar = &a
	}
	if u.DeletedAt != nil {
		d := *u.DeletedAt
		c.DeletedAt = &d
	}
	return &c
}

type sessionKey struct {
	userID int64
	id     uuid.UUID
}

// Sessions is a concurrency-safe in-memory auth.SessionRepository.
type Sessions struct {
	mu   sync.Mutex
	rows map[sessionKey]struct{}

	// Optional injected failures.
	CreateErr       error
	ExistsErr       error
	DeleteErr       error
	DeleteByUserErr error
}

// NewSessions creates an empty Sessions repository.
func NewSessions() *Sessions {
	return &Sessions{rows: make(map[sessionKey]struct{})}
}

// Create stores a fresh session.
func (r *Sessions) Create(_ context.Context, userID int64) (auth.Session, error) {
	if r.CreateErr != nil {
		return auth.Session{}, r.CreateErr
	}
	s, err := auth.NewSession(userID)
	if err != nil {
		return auth.Session{}, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.rows[sessionKey{userID, s.ID}] = struct{}{}
	return s, nil
}

// Exists reports whether the pair is stored.
func (r *Sessions) Exists(_ context.Context, userID int64, id uuid.UUID) (bool, error) {
	if r.ExistsErr != nil {
		return false, r.ExistsErr
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.rows[sessionKey{userID, id}]
	return ok, nil
}

// Delete removes the pair.
func (r *Sessions) Delete(_ context.Context, userID int64, id uuid.UUID) error {
	if r.DeleteErr != nil {
		return r.DeleteErr
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	k := sessionKey{userID, id}
	if _, ok := r.rows[k]; !ok {
		return oops.Code("SESSION_NOT_FOUND").With("session_id", id.String()).Wrap(auth.ErrSessionNotFound)
	}
	delete(r.rows, k)
	return nil
}

// DeleteByUser removes every session of the user.
func (r *Sessions) DeleteByUser(_ context.Context, userID int64) (int64, error) {
	if r.DeleteByUserErr != nil {
		return 0, r.DeleteByUserErr
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	var n int64
	for k := range r.rows {
		if k.userID == userID {
			delete(r.rows, k)
			n++
		}
	}
	return n, nil
}

// Count returns the number of sessions stored for the user.
func (r *Sessions) Count(userID int64) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for k := range r.rows {
		if k.userID == userID {
			n++
		}
	}
	return n
}

// Avatars is an in-memory avatar store.
type Avatars struct {
	mu    sync.Mutex
	files map[string][]byte

	SaveErr error
}

// NewAvatars creates an empty Avatars store.
func NewAvatars() *Avatars {
	return &Avatars{files: make(map[string][]byte)}
}

// Save stores data under key.
func (a *Avatars) Save(_ context.Context, key string, data []byte) error {
	if a.SaveErr != nil {
		return a.SaveErr
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	a.files[key] = append([]byte(nil), data...)
	return nil
}

// Remove deletes key. Missing keys are ignored.
func (a *Avatars) Remove(_ context.Context, key string) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	delete(a.files, key)
	return nil
}

// Get returns the stored bytes for key.
func (a *Avatars) Get(key string) ([]byte, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	b, ok := a.files[key]
	return b, ok
}

var (
	_ auth.UserRepository    = (*Users)(nil)
	_ auth.SessionRepository = (*Sessions)(nil)
	_ auth.AvatarStore       = (*Avatars)(nil)
)
