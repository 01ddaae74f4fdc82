// Package password provides argon2id hashing in PHC string format and a
// configurable strength policy.
//
// Hashes are self-describing: verification reads cost parameters from the
// stored string, so parameters can be raised without invalidating existing
// hashes. [Hasher.NeedsUpgrade] tells callers when a stored hash was made
// with weaker parameters than currently configured; the engine rehashes on
// the next successful login.
//
// Password bytes are used exactly as provided, with no Unicode
// normalization.
package password
