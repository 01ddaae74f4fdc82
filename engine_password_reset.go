package authcore

import (
	"context"
	"errors"
	"log"

	"github.com/stratushr/authcore/admission"
	"github.com/stratushr/authcore/internal/stores"
)

// RequestPasswordReset issues a single-use reset credential for the
// account behind email and hands it to the notifier for delivery. The
// return value is identical for known and unknown emails; only the audit
// trail records which it was. A repeated request supersedes the previous
// credential, so at most one reset credential is live per principal.
func (e *Engine) RequestPasswordReset(ctx context.Context, email string) error {
	if err := e.checkReady(); err != nil {
		return err
	}

	if err := e.admit(ctx, admission.PurposeReset, ""); err != nil {
		return err
	}

	if email == "" {
		e.enumerationDelay(ctx)
		return nil
	}

	principal, err := e.identities.GetByEmail(ctx, email)
	if err != nil || !principal.Active {
		e.metricInc(MetricResetRequest)
		e.emitAudit(ctx, auditEventResetRequest, false, "", email, nil,
			map[string]string{"reason": "no_eligible_account"})
		e.enumerationDelay(ctx)
		return nil
	}

	token, err := e.codec.IssueReset(principal.ID, principal.Email)
	if err != nil {
		return err
	}
	if err := e.resetStore.Issue(ctx, principal.ID, token, e.config.JWT.ResetTTL); err != nil {
		e.metricInc(MetricRegistryError)
		return errors.Join(ErrRegistryUnavailable, err)
	}

	if err := e.notifier.SendPasswordResetNotification(ctx, principal.Email, token); err != nil {
		e.emitAudit(ctx, auditEventNotifyFailure, false, principal.ID, principal.Email, err,
			map[string]string{"notification": "password_reset"})
		log.Print("authcore: reset notification failed")
	}

	e.metricInc(MetricResetRequest)
	e.emitAudit(ctx, auditEventResetRequest, true, principal.ID, principal.Email, nil, nil)

	return nil
}

// ConfirmPasswordReset consumes a reset credential and installs a new
// password. The credential must be the most recently issued one and can
// succeed exactly once; afterwards every live refresh credential of the
// principal is revoked.
//
// All credential problems collapse to [ErrResetInvalid]: expired, forged,
// superseded, and already-consumed credentials are indistinguishable to
// the caller.
//
// The marker is consumed before the password is written. A store failure
// after that point leaves the old password in place with the credential
// spent; the caller recovers by requesting a fresh reset. The inverse
// order would let one credential install two passwords.
func (e *Engine) ConfirmPasswordReset(ctx context.Context, resetToken, newPassword string) error {
	if err := e.checkReady(); err != nil {
		return err
	}
	if resetToken == "" {
		return ErrResetInvalid
	}

	claims, err := e.codec.VerifyReset(resetToken)
	if err != nil {
		e.metricInc(MetricResetConfirmFailure)
		e.emitAudit(ctx, auditEventResetConfirmFailure, false, "", "", err, nil)
		return ErrResetInvalid
	}

	if err := e.admit(ctx, admission.PurposeReset, "confirm:"+claims.Subject); err != nil {
		return err
	}

	// Policy runs before the marker is consumed so a weak password does not
	// burn the single-use credential.
	if err := e.policy.Check(newPassword); err != nil {
		e.metricInc(MetricResetConfirmFailure)
		e.emitAudit(ctx, auditEventResetConfirmFailure, false, claims.Subject, claims.Email, err,
			map[string]string{"reason": "weak_password"})
		return errors.Join(ErrWeakPassword, err)
	}

	if err := e.resetStore.Consume(ctx, claims.Subject, resetToken); err != nil {
		switch {
		case errors.Is(err, stores.ErrResetNotFound), errors.Is(err, stores.ErrResetMismatch):
			e.metricInc(MetricResetConfirmFailure)
			e.emitAudit(ctx, auditEventResetConfirmFailure, false, claims.Subject, claims.Email, err, nil)
			return ErrResetInvalid
		default:
			e.metricInc(MetricRegistryError)
			return errors.Join(ErrRegistryUnavailable, err)
		}
	}

	principal, err := e.identities.GetByID(ctx, claims.Subject)
	if err != nil {
		e.metricInc(MetricResetConfirmFailure)
		return ErrResetInvalid
	}

	hash, err := e.hasher.Hash(newPassword)
	if err != nil {
		e.metricInc(MetricResetConfirmFailure)
		return err
	}
	newPassword = ""

	if err := e.identities.UpdatePasswordHash(ctx, principal.ID, hash); err != nil {
		e.metricInc(MetricResetConfirmFailure)
		e.emitAudit(ctx, auditEventResetConfirmFailure, false, principal.ID, principal.Email, err, nil)
		return err
	}

	if err := e.registry.RevokeAll(ctx, principal.ID); err != nil {
		e.metricInc(MetricRegistryError)
		e.emitAudit(ctx, auditEventResetConfirmFailure, false, principal.ID, principal.Email, ErrRegistryUnavailable,
			map[string]string{"stage": "revoke_all"})
		return errorsJoinRegistry(err)
	}

	if err := e.notifier.SendPasswordChangedNotification(ctx, principal.Email); err != nil {
		e.emitAudit(ctx, auditEventNotifyFailure, false, principal.ID, principal.Email, err,
			map[string]string{"notification": "password_changed"})
		log.Print("authcore: password changed notification failed")
	}

	e.metricInc(MetricResetConfirmSuccess)
	e.emitAudit(ctx, auditEventResetConfirmSuccess, true, principal.ID, principal.Email, nil, nil)

	return nil
}
