// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package auth_test

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/holomush/accounts/internal/auth"
	"github.com/holomush/accounts/internal/auth/authtest"
	"github.com/holomush/accounts/pkg/errutil"
)

func newHasher(t *testing.T) *auth.Argon2idHasher {
	t.Helper()
	h, err := auth.NewArgon2idHasher(authtest.FastArgon2Params())
	require.NoError(t, err)
	return h
}

func TestHashPassword(t *testing.T) {
	hasher := newHasher(t)

	t.Run("produces PHC string with configured parameters", func(t *testing.T) {
		hash, err := hasher.Hash("password123")
		require.NoError(t, err)
		assert.True(t, strings.HasPrefix(hash, "$argon2id$v=19$m=1024,t=1,p=1$"))
	})

	t.Run("same password produces different hashes (salt)", func(t *testing.T) {
		hash1, err := hasher.Hash("samepassword")
		require.NoError(t, err)
		hash2, err := hasher.Hash("samepassword")
		require.NoError(t, err)
		assert.NotEqual(t, hash1, hash2)
	})

	t.Run("rejects empty password", func(t *testing.T) {
		_, err := hasher.Hash("")
		errutil.AssertErrorCode(t, err, "AUTH_EMPTY_PASSWORD")
	})
}

func TestVerifyPassword(t *testing.T) {
	hasher := newHasher(t)

	hash, err := hasher.Hash("correctpassword")
	require.NoError(t, err)

	t.Run("correct password verifies", func(t *testing.T) {
		ok, err := hasher.Verify("correctpassword", hash)
		require.NoError(t, err)
		assert.True(t, ok)
	})

	t.Run("incorrect password is a mismatch, not an error", func(t *testing.T) {
		ok, err := hasher.Verify("wrongpassword", hash)
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("hash written with other parameters still verifies", func(t *testing.T) {
		other, err := auth.NewArgon2idHasher(auth.Argon2Params{Memory: 2048, Time: 2, Threads: 2, SaltLen: 8, KeyLen: 16})
		require.NoError(t, err)
		otherHash, err := other.Hash("correctpassword")
		require.NoError(t, err)

		ok, err := hasher.Verify("correctpassword", otherHash)
		require.NoError(t, err)
		assert.True(t, ok)
	})

	malformed := []struct {
		name string
		hash string
	}{
		{"not a PHC string", "not-a-valid-hash"},
		{"bcrypt hash", "$2a$05$abcdefghijklmnopqrstuuABCDEFGHIJKLMNOPQRSTUVWXYZ01234"},
		{"wrong algorithm", "$argon2i$v=19$m=65536,t=1,p=4$c2FsdA$aGFzaA"},
		{"bad version field", "$argon2id$vXX$m=65536,t=1,p=4$c2FsdA$aGFzaA"},
		{"unsupported version", "$argon2id$v=16$m=65536,t=1,p=4$c2FsdA$aGFzaA"},
		{"bad params", "$argon2id$v=19$m=x,t=1,p=4$c2FsdA$aGFzaA"},
		{"zero time", "$argon2id$v=19$m=1024,t=0,p=1$c2FsdA$aGFzaA"},
		{"threads overflow", "$argon2id$v=19$m=65536,t=1,p=256$c2FsdA$aGFzaA"},
		{"bad salt encoding", "$argon2id$v=19$m=1024,t=1,p=1$!!!$aGFzaA"},
		{"bad key encoding", "$argon2id$v=19$m=1024,t=1,p=1$c2FsdA$!!!"},
		{"empty key", "$argon2id$v=19$m=1024,t=1,p=1$c2FsdA$"},
	}
	for _, tt := range malformed {
		t.Run(tt.name+" is an error", func(t *testing.T) {
			ok, err := hasher.Verify("password", tt.hash)
			assert.False(t, ok)
			errutil.AssertErrorCode(t, err, "AUTH_INVALID_HASH")
		})
	}
}

func TestArgon2ParamsValidate(t *testing.T) {
	assert.NoError(t, auth.DefaultArgon2Params().Validate())

	tests := []struct {
		name   string
		mutate func(p *auth.Argon2Params)
	}{
		{"memory below per-thread minimum", func(p *auth.Argon2Params) { p.Memory = 8 * uint32(p.Threads-1) }},
		{"zero time", func(p *auth.Argon2Params) { p.Time = 0 }},
		{"zero threads", func(p *auth.Argon2Params) { p.Threads = 0 }},
		{"short salt", func(p *auth.Argon2Params) { p.SaltLen = 4 }},
		{"short key", func(p *auth.Argon2Params) { p.KeyLen = 8 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := auth.DefaultArgon2Params()
			tt.mutate(&p)
			_, err := auth.NewArgon2idHasher(p)
			errutil.AssertErrorCode(t, err, "AUTH_INVALID_PARAMS")
		})
	}
}
