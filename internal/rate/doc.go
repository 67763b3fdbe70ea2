// Package rate throttles interactive sign-in with Redis counters.
//
// # Window semantics
//
// Fixed-window counters: INCR + conditional EXPIRE on first hit. Keys under
// the configured prefix:
//   - si:  sign-in failures per email
//   - sii: sign-in failures per client IP
//
// The reauthentication budget of the panel gate lives in internal/limiters.
package rate
