// Package internal holds the goAdmin building blocks that are not part of
// its public API.
//
// # Sub-packages
//
//   - httpapi: chi router, JSON envelope and handlers for the panel shell
//   - limiters: reauthentication failure budget used by the gate
//   - rate: sign-in throttle used by identity/redisidp
//   - sessionhub: presence fan-out shared by the identity adapters
//
// # What this package must NOT do
//
//   - Export types that appear in the public goAdmin API.
//   - Be imported by any package outside the goAdmin module.
package internal
