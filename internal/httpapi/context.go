// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package httpapi

import (
	"context"

	"github.com/holomush/accounts/internal/auth"
)

// Identity is the authenticated caller of a request.
type Identity struct {
	User   *auth.User
	Claims auth.Claims
}

type identityKey struct{}

// objectKey is distinct for every T, so objects of different types never
// collide in a context.
type objectKey[T any] struct{}

// WithIdentity attaches id to ctx.
func WithIdentity(ctx context.Context, id Identity) context.Context {
	return context.WithValue(ctx, identityKey{}, id)
}

// IdentityFrom returns the identity attached by Authenticate.
func IdentityFrom(ctx context.Context) (Identity, bool) {
	id, ok := ctx.Value(identityKey{}).(Identity)
	return id, ok
}

// WithObject attaches a path object of type T to ctx.
func WithObject[T any](ctx context.Context, obj T) context.Context {
	return context.WithValue(ctx, objectKey[T]{}, obj)
}

// ObjectFrom returns the path object of type T attached by PathObject.
func ObjectFrom[T any](ctx context.Context) (T, bool) {
	obj, ok := ctx.Value(objectKey[T]{}).(T)
	return obj, ok
}
