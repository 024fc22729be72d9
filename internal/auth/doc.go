// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

// Package auth provides account authentication: password hashing, session
// tokens, and the services built on them.
//
// # Domain Types
//
//   - [User]: an account, identified by an integer id and a unique email
//   - [Session]: a server-side record of an issued token, keyed by user id and
//     a random UUID
//   - [Claims]: the decoded payload of a bearer token
//
// A token is accepted only when its signature and expiry are valid and its
// session still exists. Deleting the session revokes the token.
//
// # Services
//
//   - [Service]: register, login, logout and session checks
//   - [UserService]: list, find, update and delete users
//   - [TokenIssuer]: HS256 JWT signing and validation
//   - [Argon2idHasher]: password hashing
//
// Persistence is defined by [UserRepository] and [SessionRepository]; the
// postgres subpackage implements both.
package auth
