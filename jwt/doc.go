// Package jwt implements the credential codec: issuance and verification of
// the three signed credential classes used by authcore (access, refresh,
// password-reset).
//
// Each class signs with its own secret and carries its own audience claim,
// so a credential of one class can never verify where another class is
// expected. Verification is fail-closed: every structural, signature, or
// expiry problem maps to exactly one of [ErrMalformed], [ErrExpired], or
// [ErrWrongType].
//
// # What this package must NOT do
//
//   - Talk to the revocation registry. Signature validity and registry
//     presence are separate checks owned by separate packages.
//   - Import authcore or any sibling package.
package jwt
