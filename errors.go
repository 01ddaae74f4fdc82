package authcore

import "errors"

var (
	// ErrCredentialMissing is returned when an operation expecting a bearer
	// credential receives none.
	ErrCredentialMissing = errors.New("credential missing")
	// ErrCredentialMalformed covers undecodable, unsigned, and
	// wrongly-signed credentials.
	ErrCredentialMalformed = errors.New("credential malformed")
	// ErrCredentialExpired is returned for a well-formed credential past
	// its expiry.
	ErrCredentialExpired = errors.New("credential expired")
	// ErrCredentialRevoked is returned for a signature-valid refresh
	// credential with no live registry marker.
	ErrCredentialRevoked = errors.New("credential revoked")
	// ErrCredentialWrongType is returned when a credential of one class is
	// presented where another class is expected.
	ErrCredentialWrongType = errors.New("credential of wrong type")
	// ErrInvalidCredentials is the uniform login failure. Unknown email and
	// wrong password are deliberately indistinguishable.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrPrincipalNotFound is returned by identity-store lookups outside
	// the login path.
	ErrPrincipalNotFound = errors.New("principal not found")
	// ErrPrincipalInactive is returned when the principal exists but is
	// deactivated.
	ErrPrincipalInactive = errors.New("principal inactive")
	// ErrPermissionDenied is returned when a policy check fails.
	ErrPermissionDenied = errors.New("permission denied")
	// ErrRateLimited is returned when a window budget is exhausted.
	ErrRateLimited = errors.New("rate limited")
	// ErrTooManyConcurrent is returned when the concurrency cap is reached.
	ErrTooManyConcurrent = errors.New("too many concurrent requests")
	// ErrWeakPassword is returned when a password fails the strength
	// policy.
	ErrWeakPassword = errors.New("password too weak")
	// ErrDuplicateEmail is returned when registration targets an email that
	// already has an account.
	ErrDuplicateEmail = errors.New("email already registered")
	// ErrInvalidDepartment is returned when registration names a department
	// outside the configured set.
	ErrInvalidDepartment = errors.New("invalid department")
	// ErrInvalidRole is returned when a role is outside the configured
	// hierarchy.
	ErrInvalidRole = errors.New("invalid role")
	// ErrResetInvalid is the uniform reset-confirmation failure. Expired,
	// consumed, superseded, and forged credentials all map here.
	ErrResetInvalid = errors.New("reset credential invalid")
	// ErrRegistryUnavailable is returned when Redis cannot be reached for
	// an operation that fails closed.
	ErrRegistryUnavailable = errors.New("revocation registry unavailable")
	// ErrEngineClosed is returned after [Engine.Close].
	ErrEngineClosed = errors.New("engine closed")
	// ErrEngineNotReady is returned when the builder has not completed.
	ErrEngineNotReady = errors.New("engine not initialized")
)
