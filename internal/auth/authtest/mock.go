// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package authtest

import (
	"github.com/stretchr/testify/mock"

	"github.com/holomush/accounts/internal/auth"
)

// MockIssuer is a testify mock of auth.Issuer.
type MockIssuer struct {
	mock.Mock
}

// Issue returns the values configured with On("Issue", ...).
func (m *MockIssuer) Issue(session auth.Session) (string, auth.Claims, error) {
	args := m.Called(session)
	return args.String(0), args.Get(1).(auth.Claims), args.Error(2)
}

// MockHasher is a testify mock of auth.PasswordHasher.
type MockHasher struct {
	mock.Mock
}

// Hash returns the values configured with On("Hash", ...).
func (m *MockHasher) Hash(password string) (string, error) {
	args := m.Called(password)
	return args.String(0), args.Error(1)
}

// Verify returns the values configured with On("Verify", ...).
func (m *MockHasher) Verify(password, hash string) (bool, error) {
	args := m.Called(password, hash)
	return args.Bool(0), args.Error(1)
}

// FastArgon2Params are cheap argon2id parameters for tests.
func FastArgon2Params() auth.Argon2Params {
	return auth.Argon2Params{Memory: 1024, Time: 1, Threads: 1, SaltLen: 16, KeyLen: 32}
}

// TestSecret is a signing secret that satisfies auth.MinSecretLength.
var TestSecret = []byte("0123456789abcdef0123456789abcdef")

var (
	_ auth.Issuer         = (*MockIssuer)(nil)
	_ auth.PasswordHasher = (*MockHasher)(nil)
)
