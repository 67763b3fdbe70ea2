// Package session provides Redis-backed session records for identity/redisidp
// and a compact binary encoding for them.
//
// # Binary encoding
//
// Records carry a leading format version byte. Decode rejects versions it does
// not know rather than guessing.
//
// # Revocation
//
// Delete and DeleteAllForUser publish each removed session id on the store's
// revocation channel so every process watching the session learns about it.
//
// This package does not interpret tokens or credentials and imports no other
// goAdmin package.
package session
