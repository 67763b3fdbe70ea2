// Package jwt issues and verifies the signed session tokens handed out by
// identity/redisidp. A token only names a session; revocation is decided by
// the session record it points at.
package jwt
