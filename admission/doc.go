// Package admission gates request admission with Redis-backed fixed-window
// rate limits and a per-principal concurrency cap.
//
// Both mechanisms are counters with TTLs, so state self-heals: an orphaned
// window resets when its TTL lapses, and a concurrency slot leaked by a
// crashed worker expires on its own.
//
// Admission is a load-shedding layer, not a security boundary. When Redis is
// unreachable the controller reports [ErrUnavailable] and callers are
// expected to admit the request anyway; the session manager makes the
// opposite call for the same failure.
package admission
