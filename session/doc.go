// Package session implements the Redis-backed revocation registry for
// refresh credentials.
//
// The registry is allowlist-shaped: a refresh credential is live only while
// its marker key exists. Logout, rotation, and revoke-all remove markers, so
// a signature-valid credential whose marker is gone is dead. Markers expire
// with the credential they track, which bounds registry growth even when a
// client never logs out.
//
// Every marker is also indexed in a per-principal set so revoke-all can find
// the principal's live credentials without scanning the keyspace. Set
// members can outlive their markers (the set TTL is stamped, not per
// member); [Store.Reconcile] prunes dead members.
//
// # What this package must NOT do
//
//   - Parse or verify credentials. The registry stores digests only and
//     never sees why a credential was issued.
//   - Import authcore or any sibling package.
package session
