// Package limiters provides Redis-backed attempt counters for the panel.
//
// # Limiters
//
//   - [ReauthLimiter]: per-principal failure budget for step-up challenges.
//
// Limiters are nil-safe: calling any method on a nil receiver returns nil.
//
// # Architecture boundaries
//
// Each limiter owns its own Redis key namespace and error types. Policy
// thresholds come from Config structs supplied at construction time.
//
// # What this package must NOT do
//
//   - Import goAdmin or any sibling internal package.
//   - Make policy decisions beyond counting; the gate decides consequences.
package limiters
