// Package goAdmin provides an administrative account directory panel whose
// destructive action, deleting an account, is gated behind a step-up
// reauthentication challenge and carried out across two independently
// consistent stores.
//
// Panel methods are safe to call from multiple goroutines after
// initialization through [Builder.Build].
//
// # Architecture boundaries
//
// goAdmin is the public surface. It exposes [Panel], [Builder], [Config], the
// collaborator interfaces ([ProfileStore], [IdentityProvider], [Navigator],
// [OrphanRecorder]) and value types. Concrete backends live in sub-packages:
//
//   - profile/redisstore, profile/pgstore: ProfileStore implementations
//   - identity/redisidp, identity/kratosidp: IdentityProvider implementations
//   - reconcile: OrphanRecorder ledger for half-completed deletions
//   - metrics/export: Prometheus and OpenTelemetry exporters
//
// # Deletion contract
//
// A deletion removes the profile record first and the identity second. If the
// first phase fails nothing else is touched. If the second phase fails the
// account is orphaned: the returned *[IdentityDeleteError] has Orphaned set,
// the incident is handed to the configured OrphanRecorder and the record stays
// in the cached directory. The panel never retries on its own.
//
// # What this package must NOT do
//
//   - Validate a credential against the deletion target rather than the
//     signed-in principal.
//   - Delete an identity whose profile record could not be deleted.
//   - Import any sub-package that re-imports goAdmin outside tests.
package goAdmin
