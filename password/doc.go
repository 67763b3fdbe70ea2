// Package password hashes and verifies operator credentials with Argon2id.
//
// Hashes are encoded in PHC string format:
//
//	$argon2id$v=19$m=<memory>,t=<time>,p=<threads>$<salt>$<hash>
//
// [Hasher.NeedsRehash] reports hashes produced with weaker parameters than
// the current configuration.
//
// This package never stores secrets and imports no other goAdmin package.
package password
