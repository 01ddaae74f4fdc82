package authcore

import (
	"context"
	"errors"
	"log"
	"sync/atomic"
	"time"

	"github.com/stratushr/authcore/admission"
	"github.com/stratushr/authcore/internal/stores"
	"github.com/stratushr/authcore/jwt"
	"github.com/stratushr/authcore/password"
	"github.com/stratushr/authcore/rbac"
	"github.com/stratushr/authcore/session"
)

// Audit event types emitted by the engine.
const (
	auditEventLoginSuccess          = "login_success"
	auditEventLoginFailure          = "login_failure"
	auditEventRefreshSuccess        = "refresh_success"
	auditEventRefreshFailure        = "refresh_failure"
	auditEventRefreshRevoked        = "refresh_revoked"
	auditEventLogout                = "logout"
	auditEventLogoutAll             = "logout_all"
	auditEventRegisterSuccess       = "register_success"
	auditEventRegisterFailure       = "register_failure"
	auditEventPasswordChangeSuccess = "password_change_success"
	auditEventPasswordChangeFailure = "password_change_failure"
	auditEventResetRequest          = "reset_request"
	auditEventResetConfirmSuccess   = "reset_confirm_success"
	auditEventResetConfirmFailure   = "reset_confirm_failure"
	auditEventPermissionDenied      = "permission_denied"
	auditEventAdmissionDenied       = "admission_denied"
	auditEventAdmissionFailOpen     = "admission_fail_open"
	auditEventNotifyFailure         = "notify_failure"
)

// Engine is the authentication and authorization core. All methods are safe
// for concurrent use; construct it with [New] and a [Builder].
type Engine struct {
	config      Config
	codec       *jwt.Codec
	registry    *session.Store
	resetStore  *stores.ResetStore
	admission   *admission.Controller
	hierarchy   *rbac.Hierarchy
	hasher      *password.Hasher
	policy      password.Policy
	identities  IdentityStore
	notifier    Notifier
	audit       *auditDispatcher
	metrics     *Metrics
	departments map[string]struct{}
	closed      atomic.Bool
}

// Close shuts the engine down, draining buffered audit events. Operations
// after Close return [ErrEngineClosed]. Idempotent.
func (e *Engine) Close() {
	if e == nil {
		return
	}
	e.closed.Store(true)
	if e.audit != nil {
		e.audit.Close()
	}
}

// Hierarchy returns the engine's role hierarchy for direct policy
// evaluation outside the engine.
func (e *Engine) Hierarchy() *rbac.Hierarchy {
	return e.hierarchy
}

// AuditDropped returns the number of audit events shed under pressure.
func (e *Engine) AuditDropped() uint64 {
	if e == nil || e.audit == nil {
		return 0
	}
	return e.audit.Dropped()
}

// MetricsSnapshot returns a point-in-time copy of all engine counters.
func (e *Engine) MetricsSnapshot() MetricsSnapshot {
	if e == nil || e.metrics == nil {
		return MetricsSnapshot{
			Counters:   map[MetricID]uint64{},
			Histograms: map[MetricID][]uint64{},
		}
	}
	return e.metrics.Snapshot()
}

func (e *Engine) metricInc(id MetricID) {
	if e == nil || e.metrics == nil {
		return
	}
	e.metrics.Inc(id)
}

func (e *Engine) emitAudit(ctx context.Context, eventType string, success bool, principalID, email string, opErr error, meta map[string]string) {
	if e == nil || e.audit == nil {
		return
	}

	event := AuditEvent{
		Timestamp:   time.Now().UTC(),
		EventType:   eventType,
		PrincipalID: principalID,
		Email:       email,
		IP:          clientIPFromContext(ctx),
		Success:     success,
		Metadata:    meta,
	}
	if opErr != nil {
		event.Error = opErr.Error()
	}

	e.audit.Emit(ctx, event)
}

func (e *Engine) checkReady() error {
	if e == nil || e.codec == nil || e.registry == nil || e.identities == nil {
		return ErrEngineNotReady
	}
	if e.closed.Load() {
		return ErrEngineClosed
	}
	return nil
}

// enumerationDelay pads failure paths that would otherwise reveal whether
// an email has an account.
func (e *Engine) enumerationDelay(ctx context.Context) {
	d := e.config.Security.EnumerationDelay
	if d <= 0 {
		return
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
	case <-ctx.Done():
	}
}

// Login verifies an email/password pair and, on success, issues a fresh
// credential pair with the refresh credential registered as live.
//
// Unknown email and wrong password both return [ErrInvalidCredentials];
// [ErrPrincipalInactive] is only ever revealed to a caller holding the
// correct password.
func (e *Engine) Login(ctx context.Context, email, pass string) (TokenPair, error) {
	if err := e.checkReady(); err != nil {
		return TokenPair{}, err
	}

	if err := e.admit(ctx, admission.PurposeAuth, "login:"+email); err != nil {
		return TokenPair{}, err
	}

	if email == "" || pass == "" {
		e.metricInc(MetricLoginFailure)
		e.emitAudit(ctx, auditEventLoginFailure, false, "", email, ErrInvalidCredentials,
			map[string]string{"reason": "empty_input"})
		return TokenPair{}, ErrInvalidCredentials
	}

	principal, err := e.identities.GetByEmail(ctx, email)
	if err != nil {
		e.metricInc(MetricLoginFailure)
		e.emitAudit(ctx, auditEventLoginFailure, false, "", email, ErrInvalidCredentials,
			map[string]string{"reason": "principal_not_found"})
		e.enumerationDelay(ctx)
		return TokenPair{}, ErrInvalidCredentials
	}

	ok, err := e.hasher.Verify(pass, principal.PasswordHash)
	if err != nil || !ok {
		e.metricInc(MetricLoginFailure)
		e.emitAudit(ctx, auditEventLoginFailure, false, principal.ID, email, ErrInvalidCredentials,
			map[string]string{"reason": "password_mismatch"})
		e.enumerationDelay(ctx)
		return TokenPair{}, ErrInvalidCredentials
	}

	if !principal.Active {
		e.metricInc(MetricLoginFailure)
		e.emitAudit(ctx, auditEventLoginFailure, false, principal.ID, email, ErrPrincipalInactive,
			map[string]string{"reason": "inactive"})
		return TokenPair{}, ErrPrincipalInactive
	}

	if e.config.Password.UpgradeOnLogin {
		e.maybeUpgradeHash(ctx, principal, pass)
	}
	pass = ""

	pair, err := e.issuePair(ctx, principal)
	if err != nil {
		e.metricInc(MetricLoginFailure)
		e.emitAudit(ctx, auditEventLoginFailure, false, principal.ID, email, err,
			map[string]string{"reason": "issue_failed"})
		return TokenPair{}, err
	}

	// A successful login clears the account's auth window so earlier failed
	// attempts stop counting against the owner.
	e.resetAuthWindow(ctx, "login:"+email)

	e.metricInc(MetricLoginSuccess)
	e.emitAudit(ctx, auditEventLoginSuccess, true, principal.ID, email, nil, nil)

	return pair, nil
}

// resetAuthWindow clears an auth-purpose window. Best effort; limiter state
// is advisory and never blocks a success path.
func (e *Engine) resetAuthWindow(ctx context.Context, key string) {
	if e.admission == nil {
		return
	}
	if err := e.admission.Reset(ctx, key, admission.PurposeAuth); err != nil {
		log.Print("authcore: auth window reset failed")
	}
}

// maybeUpgradeHash rehashes the principal's password when the stored hash
// is weaker than current parameters. Best effort; login succeeds either
// way.
func (e *Engine) maybeUpgradeHash(ctx context.Context, principal Principal, pass string) {
	needs, err := e.hasher.NeedsUpgrade(principal.PasswordHash)
	if err != nil || !needs {
		return
	}
	upgraded, err := e.hasher.Hash(pass)
	if err != nil {
		log.Print("authcore: password hash upgrade generation failed")
		return
	}
	if err := e.identities.UpdatePasswordHash(ctx, principal.ID, upgraded); err != nil {
		log.Print("authcore: password hash upgrade update failed")
	}
}

func (e *Engine) issuePair(ctx context.Context, principal Principal) (TokenPair, error) {
	payload := jwt.Payload{PrincipalID: principal.ID, Email: principal.Email, Role: principal.Role}

	access, err := e.codec.IssueAccess(payload)
	if err != nil {
		return TokenPair{}, err
	}
	refresh, err := e.codec.IssueRefresh(payload)
	if err != nil {
		return TokenPair{}, err
	}

	if err := e.registry.Save(ctx, principal.ID, refresh, e.config.JWT.RefreshTTL); err != nil {
		e.metricInc(MetricRegistryError)
		return TokenPair{}, errorsJoinRegistry(err)
	}

	return TokenPair{AccessToken: access, RefreshToken: refresh}, nil
}

// Refresh rotates a live refresh credential into a fresh pair. The new
// refresh credential is registered before the old one is revoked, so a
// failure mid-rotation leaves the principal logged in rather than locked
// out.
//
// Registry unavailability fails closed with [ErrRegistryUnavailable]: a
// credential that cannot be proven live is treated as dead.
func (e *Engine) Refresh(ctx context.Context, refreshToken string) (TokenPair, error) {
	if err := e.checkReady(); err != nil {
		return TokenPair{}, err
	}
	if refreshToken == "" {
		return TokenPair{}, ErrCredentialMissing
	}

	claims, err := e.codec.VerifyRefresh(refreshToken)
	if err != nil {
		e.metricInc(MetricRefreshFailure)
		e.emitAudit(ctx, auditEventRefreshFailure, false, "", "", err, nil)
		return TokenPair{}, mapCredentialError(err)
	}

	if err := e.admit(ctx, admission.PurposeAuth, "refresh:"+claims.Subject); err != nil {
		return TokenPair{}, err
	}

	live, err := e.registry.Validate(ctx, claims.Subject, refreshToken)
	if err != nil {
		e.metricInc(MetricRegistryError)
		e.emitAudit(ctx, auditEventRefreshFailure, false, claims.Subject, claims.Email, ErrRegistryUnavailable, nil)
		return TokenPair{}, errorsJoinRegistry(err)
	}
	if !live {
		e.metricInc(MetricRefreshRevoked)
		e.emitAudit(ctx, auditEventRefreshRevoked, false, claims.Subject, claims.Email, ErrCredentialRevoked, nil)
		return TokenPair{}, ErrCredentialRevoked
	}

	// Re-read the principal so role changes and deactivation take effect at
	// rotation time, not at refresh credential expiry.
	principal, err := e.identities.GetByID(ctx, claims.Subject)
	if err != nil {
		e.metricInc(MetricRefreshFailure)
		e.emitAudit(ctx, auditEventRefreshFailure, false, claims.Subject, claims.Email, ErrPrincipalNotFound, nil)
		return TokenPair{}, ErrPrincipalNotFound
	}
	if !principal.Active {
		if err := e.registry.RevokeAll(ctx, principal.ID); err != nil {
			e.metricInc(MetricRegistryError)
			return TokenPair{}, errorsJoinRegistry(err)
		}
		e.metricInc(MetricRefreshFailure)
		e.emitAudit(ctx, auditEventRefreshFailure, false, principal.ID, principal.Email, ErrPrincipalInactive, nil)
		return TokenPair{}, ErrPrincipalInactive
	}

	payload := jwt.Payload{PrincipalID: principal.ID, Email: principal.Email, Role: principal.Role}
	access, err := e.codec.IssueAccess(payload)
	if err != nil {
		e.metricInc(MetricRefreshFailure)
		return TokenPair{}, err
	}
	next, err := e.codec.IssueRefresh(payload)
	if err != nil {
		e.metricInc(MetricRefreshFailure)
		return TokenPair{}, err
	}

	if err := e.registry.Rotate(ctx, principal.ID, refreshToken, next, e.config.JWT.RefreshTTL); err != nil {
		e.metricInc(MetricRegistryError)
		e.emitAudit(ctx, auditEventRefreshFailure, false, principal.ID, principal.Email, ErrRegistryUnavailable, nil)
		return TokenPair{}, errorsJoinRegistry(err)
	}

	e.metricInc(MetricRefreshSuccess)
	e.emitAudit(ctx, auditEventRefreshSuccess, true, principal.ID, principal.Email, nil, nil)

	return TokenPair{AccessToken: access, RefreshToken: next}, nil
}

// Authenticate verifies an access credential and returns the identity it
// carries. Purely computational; the registry is never consulted for
// access credentials.
func (e *Engine) Authenticate(ctx context.Context, accessToken string) (Identity, error) {
	if err := e.checkReady(); err != nil {
		return Identity{}, err
	}
	if e.metrics.LatencyEnabled() {
		start := time.Now()
		defer func() { e.metrics.Observe(MetricAuthenticateLatency, time.Since(start)) }()
	}

	if accessToken == "" {
		e.metricInc(MetricAuthenticateFailure)
		return Identity{}, ErrCredentialMissing
	}

	claims, err := e.codec.VerifyAccess(accessToken)
	if err != nil {
		e.metricInc(MetricAuthenticateFailure)
		return Identity{}, mapCredentialError(err)
	}

	e.metricInc(MetricAuthenticateSuccess)
	payload := claims.Payload()
	return Identity{PrincipalID: payload.PrincipalID, Email: payload.Email, Role: payload.Role}, nil
}

// Logout revokes a single refresh credential. Revoking one that is already
// dead succeeds; logout is idempotent. The companion access credential
// stays valid until its own expiry.
func (e *Engine) Logout(ctx context.Context, refreshToken string) error {
	if err := e.checkReady(); err != nil {
		return err
	}
	if refreshToken == "" {
		return ErrCredentialMissing
	}

	claims, err := e.codec.VerifyRefresh(refreshToken)
	if err != nil {
		// An expired credential is already dead; treat its logout as done.
		if errors.Is(err, jwt.ErrExpired) {
			return nil
		}
		return mapCredentialError(err)
	}

	if err := e.registry.Revoke(ctx, claims.Subject, refreshToken); err != nil {
		e.metricInc(MetricRegistryError)
		return errorsJoinRegistry(err)
	}

	e.metricInc(MetricLogout)
	e.emitAudit(ctx, auditEventLogout, true, claims.Subject, claims.Email, nil, nil)

	return nil
}

// LogoutAll revokes every live refresh credential of a principal. Used for
// explicit logout-everywhere and as the cascade after password changes.
func (e *Engine) LogoutAll(ctx context.Context, principalID string) error {
	if err := e.checkReady(); err != nil {
		return err
	}
	if principalID == "" {
		return ErrPrincipalNotFound
	}

	if err := e.registry.RevokeAll(ctx, principalID); err != nil {
		e.metricInc(MetricRegistryError)
		e.emitAudit(ctx, auditEventLogoutAll, false, principalID, "", err, nil)
		return errorsJoinRegistry(err)
	}

	e.metricInc(MetricLogoutAll)
	e.emitAudit(ctx, auditEventLogoutAll, true, principalID, "", nil, nil)

	return nil
}

// mapCredentialError translates codec errors into the engine's sentinels.
func mapCredentialError(err error) error {
	switch {
	case errors.Is(err, jwt.ErrExpired):
		return ErrCredentialExpired
	case errors.Is(err, jwt.ErrWrongType):
		return ErrCredentialWrongType
	default:
		return ErrCredentialMalformed
	}
}

func errorsJoinRegistry(err error) error {
	if errors.Is(err, session.ErrUnavailable) {
		return errors.Join(ErrRegistryUnavailable, err)
	}
	return err
}
