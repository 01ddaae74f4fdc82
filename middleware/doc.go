// Package middleware exposes net/http adapters over the engine: bearer
// authentication, role gating, and admission control.
//
// # Guards
//
//   - [Guard] — verifies the bearer access credential and attaches the
//     identity to the request context.
//   - [RequireRole] — denies identities below a minimum role.
//   - [Admit] — charges the request against the client IP's window budget.
//
// # Architecture boundaries
//
// This package translates HTTP semantics into Engine calls. It does NOT
// implement authentication or authorization itself; every decision is
// delegated to the engine.
//
// # What this package must NOT do
//
//   - Parse or create credentials directly (delegates to Engine).
//   - Access Redis (Engine handles I/O).
//   - Make authorization decisions beyond pass/reject from the engine.
package middleware
